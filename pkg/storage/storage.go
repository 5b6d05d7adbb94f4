// Package storage defines abstractions for flat key-value table storage.
//
// Implementations provide a minimal surface: item CRUD with optional
// conditional writes, full-table scans, batched writes, and table
// lifecycle. Conditional writes are the only concurrency-control
// primitive; implementations must guarantee that a Put with a Condition
// either applies atomically or fails with ErrConditionFailed.
package storage

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Record is a flat stored item: attribute name to attribute value.
type Record = map[string]types.AttributeValue

// Condition restricts a Put to apply only when the stored item satisfies
// the listed requirements. The zero value imposes no restriction.
//
// This is deliberately narrower than a raw condition expression: the two
// forms below are the only ones the scheduling protocol needs, and both
// can be honored by non-DynamoDB implementations.
type Condition struct {
	// AbsentAttr requires the stored item to lack the named attribute.
	// Naming a key attribute makes this "the item must not exist".
	AbsentAttr string

	// Equals requires each named attribute to currently equal the given
	// value. An item missing any named attribute fails the condition.
	Equals Record
}

// None reports whether the condition imposes no restriction.
func (c *Condition) None() bool {
	return c == nil || (c.AbsentAttr == "" && len(c.Equals) == 0)
}

// TableSpec describes the key schema for table creation.
type TableSpec struct {
	// HashKey is the partition key attribute name (required).
	HashKey string

	// RangeKey is the sort key attribute name. Empty for hash-only tables.
	RangeKey string
}

// TableStatus is the lifecycle status of a table.
type TableStatus string

const (
	TableStatusActive   TableStatus = "ACTIVE"
	TableStatusCreating TableStatus = "CREATING"
	TableStatusDeleting TableStatus = "DELETING"
	TableStatusUpdating TableStatus = "UPDATING"
)

// TableInfo contains table metadata returned by DescribeTable.
type TableInfo struct {
	Name      string
	Status    TableStatus
	ItemCount int64
}

// Storage abstracts the backing table store.
//
// Implementations should:
//   - Treat absent tables on Get/Scan as empty, not as errors
//   - Retry throttled requests internally with bounded backoff
//   - Be safe for concurrent use
type Storage interface {
	// Get returns the item with the given key.
	// Returns ErrNotFound if the item or the table does not exist.
	Get(ctx context.Context, table string, key Record) (Record, error)

	// Put writes an item, optionally guarded by a condition. It returns
	// the prior item when one was replaced, nil otherwise.
	// Returns ErrConditionFailed when the condition is not met.
	Put(ctx context.Context, table string, item Record, cond *Condition) (Record, error)

	// Delete removes the item with the given key. Deleting an absent
	// item is not an error.
	Delete(ctx context.Context, table string, key Record) error

	// Scan returns every item in the table. An absent table yields an
	// empty result.
	Scan(ctx context.Context, table string) ([]Record, error)

	// BatchPut writes items without conditions, chunked to the store's
	// batch limit.
	BatchPut(ctx context.Context, table string, items []Record) error

	// CreateTable creates the table with the given key schema.
	// Creating a table that already exists is not an error.
	CreateTable(ctx context.Context, table string, spec TableSpec) error

	// DescribeTable returns table metadata.
	// Returns ErrTableNotFound if the table does not exist.
	DescribeTable(ctx context.Context, table string) (*TableInfo, error)

	// DeleteTable removes the table and all its items.
	DeleteTable(ctx context.Context, table string) error
}
