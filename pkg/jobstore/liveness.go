package jobstore

import (
	"context"

	"go.uber.org/zap"
)

// Instance liveness. Every instance renews a leased record under its
// own id; an instance whose lease lapsed is presumed dead and its
// acquired or executing triggers are handed back to the pool. Lease
// sweeping is best effort: two instances sweeping the same corpse at
// once is harmless because every reclamation write is conditional.

// refreshHeartbeat renews this instance's lease, preserving its
// recorded state.
func (s *JobStore) refreshHeartbeat(ctx context.Context) error {
	me, err := s.schedulers.Load(ctx, (&SchedulerInstance{InstanceID: s.cfg.InstanceID}).KeyRecord())
	if err != nil {
		return err
	}
	state := SchedulerStateRunning
	if me != nil {
		state = me.State
	}
	return s.recordInstanceState(ctx, state)
}

// liveInstances returns the ids of instances with an unexpired lease.
// Expired records are deleted along the way.
func (s *JobStore) liveInstances(ctx context.Context) (map[string]bool, error) {
	all, err := s.schedulers.Scan(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	live := make(map[string]bool, len(all))
	for _, inst := range all {
		if inst.Expired(now) {
			s.log.Info("scheduler lease expired", zap.String("dead_instance", inst.InstanceID))
			// Best effort; the records are also harmless if left.
			if err := s.schedulers.Delete(ctx, inst.KeyRecord()); err != nil {
				s.log.Warn("failed to remove expired scheduler record",
					zap.String("dead_instance", inst.InstanceID), zap.Error(err))
			}
			continue
		}
		live[inst.InstanceID] = true
	}
	return live, nil
}

// reclaimOrphanedTriggers resets triggers held by dead instances back
// to the waiting pool and releases concurrency blocks those instances
// held. Losing a reclamation write to a concurrent sweeper is fine.
func (s *JobStore) reclaimOrphanedTriggers(ctx context.Context, live map[string]bool) error {
	all, err := s.scanTriggers(ctx)
	if err != nil {
		return err
	}

	deadJobs := map[JobKey]bool{}
	reclaimed := 0

	for _, t := range all {
		c := t.Core()
		if c.State != StateAcquired && c.State != StateExecuting {
			continue
		}
		if c.SchedulerInstanceID == "" || live[c.SchedulerInstanceID] {
			continue
		}

		prior := c.State
		owner := c.SchedulerInstanceID
		if prior == StateExecuting {
			deadJobs[c.Job] = true
		}

		c.State = StateWaiting
		c.SchedulerInstanceID = ""
		c.FireInstanceID = ""
		if err := s.conditionalPut(ctx, t, expectOwned(prior, owner)); err != nil {
			return err
		}
		reclaimed++
	}

	// Triggers blocked on behalf of a job whose executor died stay
	// blocked forever unless released here.
	for job := range deadJobs {
		if err := s.unblockJobTriggers(ctx, job); err != nil {
			return err
		}
	}

	if reclaimed > 0 {
		s.log.Info("reclaimed orphaned triggers", zap.Int("count", reclaimed))
	}
	return nil
}
