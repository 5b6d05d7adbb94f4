package bundle

import (
	"context"
	"fmt"
	"time"

	"github.com/3leaps/dynastore/pkg/jobstore"
)

// ApplyResult summarizes what an Apply wrote.
type ApplyResult struct {
	Jobs      int
	Triggers  int
	Calendars int
}

// Apply writes the bundle's calendars, jobs, and triggers into the
// store. Calendars go first so triggers referencing them validate.
// With Replace unset, pre-existing entities fail the whole apply
// before anything is written by the job pass.
func Apply(ctx context.Context, store *jobstore.JobStore, b *Bundle, now time.Time) (*ApplyResult, error) {
	sets, cals, err := b.Build(now)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{}

	for _, cal := range cals {
		if err := store.StoreCalendar(ctx, cal, b.Replace); err != nil {
			return nil, fmt.Errorf("store calendar %s: %w", cal.Name, err)
		}
		result.Calendars++
	}

	if err := store.StoreJobsAndTriggers(ctx, sets, b.Replace); err != nil {
		return nil, err
	}
	for _, set := range sets {
		result.Jobs++
		result.Triggers += len(set.Triggers)
	}

	return result, nil
}
