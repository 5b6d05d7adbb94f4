// Package memory implements the storage interface in process memory.
//
// It honors the same conditional-write contract as the DynamoDB
// implementation and exists for tests and local development, mirroring
// how the file provider backs the cloud providers elsewhere in this
// codebase's lineage.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/3leaps/dynastore/pkg/storage"
)

type table struct {
	spec  storage.TableSpec
	items map[string]storage.Record
}

// Store implements storage.Storage with an in-process map per table.
// Safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	tables map[string]*table
}

var _ storage.Storage = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{tables: map[string]*table{}}
}

// keyString flattens the key attributes of an item into a map key.
func (t *table) keyString(item storage.Record) string {
	var b strings.Builder
	b.WriteString(stringAttr(item[t.spec.HashKey]))
	if t.spec.RangeKey != "" {
		b.WriteByte(0)
		b.WriteString(stringAttr(item[t.spec.RangeKey]))
	}
	return b.String()
}

func stringAttr(v types.AttributeValue) string {
	switch av := v.(type) {
	case *types.AttributeValueMemberS:
		return av.Value
	case *types.AttributeValueMemberN:
		return av.Value
	default:
		return ""
	}
}

// Get returns the item with the given key.
func (s *Store) Get(ctx context.Context, name string, key storage.Record) (storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[name]
	if !ok {
		return nil, &storage.StorageError{Op: "Get", Table: name, Err: storage.ErrNotFound}
	}
	item, ok := t.items[t.keyString(key)]
	if !ok {
		return nil, &storage.StorageError{Op: "Get", Table: name, Err: storage.ErrNotFound}
	}
	return cloneRecord(item), nil
}

// Put writes an item, optionally guarded by a condition.
func (s *Store) Put(ctx context.Context, name string, item storage.Record, cond *storage.Condition) (storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[name]
	if !ok {
		return nil, &storage.StorageError{Op: "Put", Table: name, Err: storage.ErrTableNotFound}
	}

	ks := t.keyString(item)
	prior, exists := t.items[ks]

	if !cond.None() {
		if err := checkCondition(cond, prior, exists); err != nil {
			return nil, &storage.StorageError{Op: "Put", Table: name, Err: err}
		}
	}

	t.items[ks] = cloneRecord(item)
	if !exists {
		return nil, nil
	}
	return cloneRecord(prior), nil
}

// checkCondition evaluates the structured condition against the stored
// item, matching the DynamoDB expression semantics.
func checkCondition(cond *storage.Condition, prior storage.Record, exists bool) error {
	if cond.AbsentAttr != "" && exists {
		if _, has := prior[cond.AbsentAttr]; has {
			return storage.ErrConditionFailed
		}
	}
	if len(cond.Equals) > 0 {
		if !exists {
			return storage.ErrConditionFailed
		}
		for attr, want := range cond.Equals {
			got, has := prior[attr]
			if !has || !attrEqual(got, want) {
				return storage.ErrConditionFailed
			}
		}
	}
	return nil
}

// Delete removes the item with the given key.
func (s *Store) Delete(ctx context.Context, name string, key storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[name]
	if !ok {
		return nil
	}
	delete(t.items, t.keyString(key))
	return nil
}

// Scan returns every item in the table in stable key order.
func (s *Store) Scan(ctx context.Context, name string) ([]storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[name]
	if !ok {
		return nil, nil
	}

	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]storage.Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, cloneRecord(t.items[k]))
	}
	return out, nil
}

// BatchPut writes items without conditions.
func (s *Store) BatchPut(ctx context.Context, name string, items []storage.Record) error {
	for _, item := range items {
		if _, err := s.Put(ctx, name, item, nil); err != nil {
			return err
		}
	}
	return nil
}

// CreateTable creates the table. Creating an existing table is a no-op.
func (s *Store) CreateTable(ctx context.Context, name string, spec storage.TableSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[name]; ok {
		return nil
	}
	s.tables[name] = &table{spec: spec, items: map[string]storage.Record{}}
	return nil
}

// DescribeTable returns table metadata.
func (s *Store) DescribeTable(ctx context.Context, name string) (*storage.TableInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[name]
	if !ok {
		return nil, &storage.StorageError{Op: "DescribeTable", Table: name, Err: storage.ErrTableNotFound}
	}
	return &storage.TableInfo{
		Name:      name,
		Status:    storage.TableStatusActive,
		ItemCount: int64(len(t.items)),
	}, nil
}

// DeleteTable removes the table and all its items.
func (s *Store) DeleteTable(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tables, name)
	return nil
}
