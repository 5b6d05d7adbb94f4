package jobstore

import (
	"context"

	"github.com/3leaps/dynastore/pkg/storage"
)

// Entity is the storable capability: an entity names its table, renders
// its primary key, and round-trips itself through a flat record.
// Deserialize(Serialize(e)) must reproduce every field of e.
type Entity interface {
	TableName() string
	KeyRecord() storage.Record
	MarshalRecord() (storage.Record, error)
	UnmarshalRecord(storage.Record) error
}

// Repository provides typed Load/Store/Delete/Scan over any entity.
// No entity-specific logic lives here.
type Repository[T any, PT interface {
	Entity
	*T
}] struct {
	store storage.Storage
}

// NewRepository creates a repository bound to a storage backend.
func NewRepository[T any, PT interface {
	Entity
	*T
}](store storage.Storage) *Repository[T, PT] {
	return &Repository[T, PT]{store: store}
}

// tableName resolves the entity's table without a live instance.
func (r *Repository[T, PT]) tableName() string {
	return PT(new(T)).TableName()
}

// Load reads the entity with the given key. Returns nil without error
// when the entity is absent.
func (r *Repository[T, PT]) Load(ctx context.Context, key storage.Record) (PT, error) {
	rec, err := r.store.Get(ctx, r.tableName(), key)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	e := PT(new(T))
	if err := e.UnmarshalRecord(rec); err != nil {
		return nil, err
	}
	return e, nil
}

// Store writes the entity unconditionally.
func (r *Repository[T, PT]) Store(ctx context.Context, e PT) error {
	rec, err := e.MarshalRecord()
	if err != nil {
		return err
	}
	_, err = r.store.Put(ctx, e.TableName(), rec, nil)
	return err
}

// StoreConditional writes the entity guarded by a condition and returns
// the prior entity when one was replaced. A failed condition surfaces
// storage.ErrConditionFailed for the caller's optimistic-concurrency
// handling.
func (r *Repository[T, PT]) StoreConditional(ctx context.Context, e PT, cond *storage.Condition) (PT, error) {
	rec, err := e.MarshalRecord()
	if err != nil {
		return nil, err
	}
	prior, err := r.store.Put(ctx, e.TableName(), rec, cond)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		return nil, nil
	}
	old := PT(new(T))
	if err := old.UnmarshalRecord(prior); err != nil {
		return nil, err
	}
	return old, nil
}

// StoreBatch writes entities without conditions, chunked by the backend.
func (r *Repository[T, PT]) StoreBatch(ctx context.Context, entities []PT) error {
	if len(entities) == 0 {
		return nil
	}
	recs := make([]storage.Record, 0, len(entities))
	for _, e := range entities {
		rec, err := e.MarshalRecord()
		if err != nil {
			return err
		}
		recs = append(recs, rec)
	}
	return r.store.BatchPut(ctx, r.tableName(), recs)
}

// Delete removes the entity with the given key. Deleting an absent
// entity is not an error.
func (r *Repository[T, PT]) Delete(ctx context.Context, key storage.Record) error {
	return r.store.Delete(ctx, r.tableName(), key)
}

// Scan returns every entity in the table. Records that fail to decode
// abort the scan: a malformed row is data corruption, not noise.
func (r *Repository[T, PT]) Scan(ctx context.Context) ([]PT, error) {
	recs, err := r.store.Scan(ctx, r.tableName())
	if err != nil {
		return nil, err
	}
	out := make([]PT, 0, len(recs))
	for _, rec := range recs {
		e := PT(new(T))
		if err := e.UnmarshalRecord(rec); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
