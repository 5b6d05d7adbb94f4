package jobstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3leaps/dynastore/pkg/storage"
)

// The acquisition engine. Every exclusive transition here is a
// conditional write; a failed condition means another instance won the
// race and is swallowed, never surfaced. Fewer acquired triggers than
// requested is normal operation, not an error.

// TriggerFiredBundle describes one successful firing.
type TriggerFiredBundle struct {
	Trigger   Trigger
	JobDetail *JobDetail

	// FireTime is when the firing was recorded.
	FireTime time.Time

	// ScheduledFireTime is the fire time the schedule had computed.
	ScheduledFireTime *time.Time
}

// CompletedExecutionInstruction tells the store what to do with a
// trigger once its job execution finished.
type CompletedExecutionInstruction int

const (
	InstructionNoInstruction CompletedExecutionInstruction = iota
	InstructionReExecuteJob
	InstructionSetTriggerComplete
	InstructionDeleteTrigger
	InstructionSetAllJobTriggersComplete
	InstructionSetTriggerError
	InstructionSetAllJobTriggersError
)

// AcquireNextTriggers claims up to maxCount triggers due to fire no
// later than noLaterThan plus timeWindow. Returned triggers are ordered
// by fire time ascending, ties broken by priority descending; the batch
// never spans more than timeWindow past the first acquired fire time.
//
// Concurrent calls from other instances are safe: each acquisition is
// conditional on the trigger still being in the waiting state, so a
// trigger is returned to at most one caller.
func (s *JobStore) AcquireNextTriggers(ctx context.Context, noLaterThan time.Time, maxCount int, timeWindow time.Duration) ([]Trigger, error) {
	now := s.now()

	if err := s.refreshHeartbeat(ctx); err != nil {
		return nil, err
	}
	live, err := s.liveInstances(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.reclaimOrphanedTriggers(ctx, live); err != nil {
		return nil, err
	}

	all, err := s.scanTriggers(ctx)
	if err != nil {
		return nil, err
	}

	horizon := noLaterThan.Add(timeWindow)
	candidates := all[:0]
	for _, t := range all {
		c := t.Core()
		if c.State != StateWaiting || c.NextFireTime == nil {
			continue
		}
		if c.NextFireTime.After(horizon) {
			continue
		}
		candidates = append(candidates, t)
	}
	sortByFireTime(candidates)

	var (
		acquired  []Trigger
		firstFire *time.Time
		jobCache  = map[JobKey]*JobDetail{}
		jobsTaken = map[JobKey]bool{}
	)

	for _, t := range candidates {
		if len(acquired) >= maxCount {
			break
		}
		c := t.Core()

		// One firing window per batch.
		if firstFire != nil && c.NextFireTime.After(firstFire.Add(timeWindow)) {
			break
		}

		if handled, err := s.applyMisfire(ctx, t, now, horizon); err != nil {
			return nil, err
		} else if handled {
			continue
		}

		job, ok := jobCache[c.Job]
		if !ok {
			job, err = s.RetrieveJob(ctx, c.Job)
			if err != nil {
				return nil, err
			}
			jobCache[c.Job] = job
		}
		if job == nil {
			// Referential decay: the job vanished under the trigger.
			c.State = StateError
			if err := s.conditionalPut(ctx, t, expectState(StateWaiting)); err != nil {
				return nil, err
			}
			s.log.Warn("trigger references missing job, marked error",
				zap.String("trigger", c.Key.String()),
				zap.String("job", c.Job.String()))
			continue
		}

		// At most one acquisition per concurrency-disallowed job per batch.
		if job.ConcurrentExecutionDisallowed && jobsTaken[c.Job] {
			continue
		}

		fireTime := *c.NextFireTime
		c.State = StateAcquired
		c.SchedulerInstanceID = s.cfg.InstanceID
		c.FireInstanceID = uuid.NewString()

		err := s.putTrigger(ctx, t, expectState(StateWaiting))
		if err != nil {
			if storage.IsConditionFailed(err) {
				// Another instance won this trigger.
				continue
			}
			return nil, err
		}

		acquired = append(acquired, t)
		if job.ConcurrentExecutionDisallowed {
			jobsTaken[c.Job] = true
		}
		if firstFire == nil {
			firstFire = &fireTime
		}
	}

	s.log.Debug("acquired triggers",
		zap.Int("count", len(acquired)),
		zap.Int("candidates", len(candidates)))
	return acquired, nil
}

// applyMisfire checks a candidate for staleness and applies its misfire
// instruction. It returns true when the trigger was finalized or moved
// out of the acquisition horizon and the caller should skip it.
func (s *JobStore) applyMisfire(ctx context.Context, t Trigger, now time.Time, horizon time.Time) (bool, error) {
	c := t.Core()
	if c.NextFireTime == nil || !c.NextFireTime.Before(now.Add(-s.cfg.MisfireThreshold)) {
		return false, nil
	}

	t.UpdateAfterMisfire(now)

	if c.NextFireTime == nil || !t.MayFireAgain() {
		// The schedule cannot fire again; finalize instead of acquiring.
		c.State = StateComplete
		c.NextFireTime = nil
		if err := s.conditionalPut(ctx, t, expectState(StateWaiting)); err != nil {
			return true, err
		}
		s.log.Debug("misfired trigger finalized", zap.String("trigger", c.Key.String()))
		return true, nil
	}

	if c.NextFireTime.After(horizon) {
		// Recovered to a fire time outside this acquisition window.
		if err := s.conditionalPut(ctx, t, expectState(StateWaiting)); err != nil {
			return true, err
		}
		return true, nil
	}

	// Still eligible; the recomputed fire time rides along with the
	// acquisition write.
	return false, nil
}

// conditionalPut persists the trigger under a guard, swallowing losses.
func (s *JobStore) conditionalPut(ctx context.Context, t Trigger, cond *storage.Condition) error {
	err := s.putTrigger(ctx, t, cond)
	if storage.IsConditionFailed(err) {
		return nil
	}
	return err
}

// ReleaseAcquiredTrigger returns an acquired trigger to the waiting
// state. A trigger no longer acquired by this instance is left alone.
func (s *JobStore) ReleaseAcquiredTrigger(ctx context.Context, trigger Trigger) error {
	key := trigger.Core().Key
	stored, err := s.loadTrigger(ctx, key)
	if err != nil {
		return err
	}
	if stored == nil {
		return nil
	}
	c := stored.Core()
	if c.State != StateAcquired || c.SchedulerInstanceID != s.cfg.InstanceID {
		return nil
	}

	c.State = StateWaiting
	c.SchedulerInstanceID = ""
	c.FireInstanceID = ""
	return s.conditionalPut(ctx, stored, expectOwned(StateAcquired, s.cfg.InstanceID))
}

// TriggersFired transitions acquired triggers to executing and returns
// a firing bundle per trigger that made the transition. Triggers that
// were released or re-acquired elsewhere in the meantime are silently
// excluded: the result may be shorter than the input.
func (s *JobStore) TriggersFired(ctx context.Context, triggers []Trigger) ([]*TriggerFiredBundle, error) {
	now := s.now()
	bundles := make([]*TriggerFiredBundle, 0, len(triggers))

	for _, t := range triggers {
		key := t.Core().Key
		stored, err := s.loadTrigger(ctx, key)
		if err != nil {
			return nil, err
		}
		if stored == nil {
			continue
		}
		c := stored.Core()
		if c.State != StateAcquired || c.SchedulerInstanceID != s.cfg.InstanceID {
			continue
		}
		if want := t.Core().FireInstanceID; want != "" && want != c.FireInstanceID {
			continue
		}

		job, err := s.RetrieveJob(ctx, c.Job)
		if err != nil {
			return nil, err
		}
		if job == nil {
			continue
		}

		scheduled := copyTime(c.NextFireTime)
		stored.Triggered(now)
		c.State = StateExecuting

		err = s.putTrigger(ctx, stored, expectOwned(StateAcquired, s.cfg.InstanceID))
		if err != nil {
			if storage.IsConditionFailed(err) {
				continue
			}
			return nil, err
		}

		if job.ConcurrentExecutionDisallowed {
			if err := s.blockJobTriggers(ctx, job.Key, key); err != nil {
				return nil, err
			}
		}

		bundles = append(bundles, &TriggerFiredBundle{
			Trigger:           stored,
			JobDetail:         job,
			FireTime:          now,
			ScheduledFireTime: scheduled,
		})
	}
	return bundles, nil
}

// blockJobTriggers moves the job's other triggers out of contention
// while a concurrency-disallowed job runs.
func (s *JobStore) blockJobTriggers(ctx context.Context, job JobKey, firing TriggerKey) error {
	siblings, err := s.triggersForJob(ctx, job)
	if err != nil {
		return err
	}
	for _, sib := range siblings {
		c := sib.Core()
		if c.Key == firing {
			continue
		}
		prior := c.State
		switch prior {
		case StateWaiting:
			c.State = StateBlocked
		case StatePaused:
			c.State = StatePausedAndBlocked
		default:
			continue
		}
		if err := s.conditionalPut(ctx, sib, expectState(prior)); err != nil {
			return err
		}
	}
	return nil
}

// unblockJobTriggers reverses blockJobTriggers once the job finished.
func (s *JobStore) unblockJobTriggers(ctx context.Context, job JobKey) error {
	siblings, err := s.triggersForJob(ctx, job)
	if err != nil {
		return err
	}
	for _, sib := range siblings {
		c := sib.Core()
		prior := c.State
		switch prior {
		case StateBlocked:
			c.State = StateWaiting
		case StatePausedAndBlocked:
			c.State = StatePaused
		default:
			continue
		}
		if err := s.conditionalPut(ctx, sib, expectState(prior)); err != nil {
			return err
		}
	}
	return nil
}

// TriggeredJobComplete applies the scheduler's completion instruction
// and releases concurrency blocks held by the finished job.
func (s *JobStore) TriggeredJobComplete(ctx context.Context, trigger Trigger, job *JobDetail, instruction CompletedExecutionInstruction) error {
	key := trigger.Core().Key
	stored, err := s.loadTrigger(ctx, key)
	if err != nil {
		return err
	}

	switch instruction {
	case InstructionDeleteTrigger:
		if stored != nil {
			if _, err := s.RemoveTrigger(ctx, key); err != nil {
				return err
			}
		}

	case InstructionSetTriggerComplete:
		if stored != nil {
			if err := s.finalizeTrigger(ctx, stored, StateComplete); err != nil {
				return err
			}
		}

	case InstructionSetTriggerError:
		if stored != nil {
			s.log.Warn("trigger set to error state", zap.String("trigger", key.String()))
			if err := s.finalizeTrigger(ctx, stored, StateError); err != nil {
				return err
			}
		}

	case InstructionSetAllJobTriggersComplete:
		if err := s.finalizeJobTriggers(ctx, trigger.Core().Job, StateComplete); err != nil {
			return err
		}

	case InstructionSetAllJobTriggersError:
		s.log.Warn("all job triggers set to error state", zap.String("job", trigger.Core().Job.String()))
		if err := s.finalizeJobTriggers(ctx, trigger.Core().Job, StateError); err != nil {
			return err
		}

	default:
		// No instruction: fold the executing trigger back into the
		// schedule, or finalize it when exhausted.
		if stored != nil {
			c := stored.Core()
			if c.State == StateExecuting && c.SchedulerInstanceID == s.cfg.InstanceID {
				if c.NextFireTime == nil {
					c.State = StateComplete
				} else {
					c.State = StateWaiting
				}
				c.SchedulerInstanceID = ""
				c.FireInstanceID = ""
				if err := s.conditionalPut(ctx, stored, expectOwned(StateExecuting, s.cfg.InstanceID)); err != nil {
					return err
				}
			}
		}
	}

	if job == nil {
		return nil
	}

	if job.PersistJobDataAfterExecution {
		current, err := s.RetrieveJob(ctx, job.Key)
		if err != nil {
			return err
		}
		if current != nil {
			current.JobData = job.JobData
			if err := s.jobs.Store(ctx, current); err != nil {
				return err
			}
		}
	}

	if job.ConcurrentExecutionDisallowed {
		return s.unblockJobTriggers(ctx, job.Key)
	}
	return nil
}

// finalizeTrigger parks a trigger in a terminal state.
func (s *JobStore) finalizeTrigger(ctx context.Context, t Trigger, state InternalState) error {
	c := t.Core()
	prior := c.State
	c.State = state
	c.SchedulerInstanceID = ""
	c.FireInstanceID = ""
	return s.conditionalPut(ctx, t, expectState(prior))
}

func (s *JobStore) finalizeJobTriggers(ctx context.Context, job JobKey, state InternalState) error {
	triggers, err := s.triggersForJob(ctx, job)
	if err != nil {
		return err
	}
	for _, t := range triggers {
		if err := s.finalizeTrigger(ctx, t, state); err != nil {
			return err
		}
	}
	return nil
}

// sortByFireTime orders triggers by next fire time ascending, ties by
// priority descending. The scheduling framework depends on this exact
// ordering for fairness.
func sortByFireTime(triggers []Trigger) {
	sort.SliceStable(triggers, func(i, j int) bool {
		a, b := triggers[i].Core(), triggers[j].Core()
		if !a.NextFireTime.Equal(*b.NextFireTime) {
			return a.NextFireTime.Before(*b.NextFireTime)
		}
		return a.Priority > b.Priority
	})
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}
