package jobstore

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/3leaps/dynastore/pkg/storage"
)

// Logical table names. Physical names may carry a deployment prefix
// applied by the storage backend.
const (
	TableJob          = "Job"
	TableJobGroup     = "JobGroup"
	TableTrigger      = "Trigger"
	TableTriggerGroup = "TriggerGroup"
	TableScheduler    = "Scheduler"
	TableCalendar     = "Calendar"
)

// Stored attribute names shared across entity codecs.
const (
	attrGroup      = "Group"
	attrName       = "Name"
	attrState      = "State"
	attrScheduler  = "SchedulerInstanceId"
	attrInstanceID = "InstanceId"
)

// TableSpecs maps every logical table to its key schema. Bootstrapping
// iterates this map; the engine assumes these schemas at runtime.
func TableSpecs() map[string]storage.TableSpec {
	return map[string]storage.TableSpec{
		TableJob:          {HashKey: attrGroup, RangeKey: attrName},
		TableTrigger:      {HashKey: attrGroup, RangeKey: attrName},
		TableJobGroup:     {HashKey: attrName},
		TableTriggerGroup: {HashKey: attrName},
		TableScheduler:    {HashKey: attrInstanceID},
		TableCalendar:     {HashKey: attrName},
	}
}

// EnsureTables creates every table the store needs. Creation is
// idempotent; tables already present are left alone. Tables are created
// in parallel since they are independent.
func EnsureTables(ctx context.Context, store storage.Storage) error {
	g, ctx := errgroup.WithContext(ctx)
	for name, spec := range TableSpecs() {
		g.Go(func() error {
			return store.CreateTable(ctx, name, spec)
		})
	}
	return g.Wait()
}

// DropTables deletes every table the store uses. Absent tables are
// ignored.
func DropTables(ctx context.Context, store storage.Storage) error {
	g, ctx := errgroup.WithContext(ctx)
	for name := range TableSpecs() {
		g.Go(func() error {
			return store.DeleteTable(ctx, name)
		})
	}
	return g.Wait()
}
