package jobstore

import (
	"context"

	"go.uber.org/zap"

	"github.com/3leaps/dynastore/pkg/storage"
)

// Group pause coordination. A group's pause state lives in its own
// record so it survives having zero members; matchers resolve against
// stored group records, the groups of current members, and the literal
// name of an exact matcher even when nothing exists under it yet.

// PauseTrigger pauses a single trigger.
func (s *JobStore) PauseTrigger(ctx context.Context, key TriggerKey) error {
	t, err := s.loadTrigger(ctx, key)
	if err != nil || t == nil {
		return err
	}
	return s.pauseTriggerEntity(ctx, t)
}

func (s *JobStore) pauseTriggerEntity(ctx context.Context, t Trigger) error {
	c := t.Core()
	prior := c.State
	switch prior {
	case StateWaiting, StateAcquired:
		c.State = StatePaused
	case StateBlocked:
		c.State = StatePausedAndBlocked
	default:
		return nil
	}
	c.SchedulerInstanceID = ""
	c.FireInstanceID = ""
	err := s.putTrigger(ctx, t, expectState(prior))
	if storage.IsConditionFailed(err) {
		// Lost a race with an acquiring instance; the trigger will be
		// paused by that instance's release or the next pause sweep.
		s.log.Debug("pause lost state race", zap.String("trigger", c.Key.String()))
		return nil
	}
	return err
}

// PauseTriggers pauses every group the matcher selects, including
// groups with no stored record yet, and transitions each member
// trigger. Returns the affected group names.
func (s *JobStore) PauseTriggers(ctx context.Context, matcher GroupMatcher) ([]string, error) {
	groups, triggers, err := s.matchTriggerGroups(ctx, matcher)
	if err != nil {
		return nil, err
	}

	for _, name := range groups {
		if err := s.triggerGroups.Store(ctx, &TriggerGroup{Name: name, State: GroupStatePaused}); err != nil {
			return nil, err
		}
	}
	for _, t := range triggers {
		if err := s.pauseTriggerEntity(ctx, t); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

// ResumeTrigger resumes a single trigger, applying the misfire policy
// if its fire time went stale while paused.
func (s *JobStore) ResumeTrigger(ctx context.Context, key TriggerKey) error {
	t, err := s.loadTrigger(ctx, key)
	if err != nil || t == nil {
		return err
	}
	return s.resumeTriggerEntity(ctx, t)
}

func (s *JobStore) resumeTriggerEntity(ctx context.Context, t Trigger) error {
	c := t.Core()
	prior := c.State
	switch prior {
	case StatePaused, StatePausedAndBlocked:
	default:
		return nil
	}

	// A trigger stays paused while its own group or its job's group is
	// still recorded paused; only a group-level resume lifts that.
	if paused, err := s.resumeBlockedByGroup(ctx, c); err != nil || paused {
		return err
	}

	switch prior {
	case StatePaused:
		c.State = StateWaiting
	case StatePausedAndBlocked:
		c.State = StateBlocked
	}

	now := s.now()
	if c.NextFireTime != nil && c.NextFireTime.Before(now.Add(-s.cfg.MisfireThreshold)) {
		t.UpdateAfterMisfire(now)
		if !t.MayFireAgain() {
			c.State = StateComplete
		}
	}

	err := s.putTrigger(ctx, t, expectState(prior))
	if storage.IsConditionFailed(err) {
		return nil
	}
	return err
}

// resumeBlockedByGroup reports whether the trigger's group or its
// job's group is still recorded paused.
func (s *JobStore) resumeBlockedByGroup(ctx context.Context, c *TriggerCore) (bool, error) {
	if paused, err := s.IsTriggerGroupPaused(ctx, c.Key.Group); err != nil || paused {
		return paused, err
	}
	return s.IsJobGroupPaused(ctx, c.Job.Group)
}

// ResumeTriggers resumes every group the matcher selects. Resuming a
// group with no stored triggers is not an error. Returns the affected
// group names.
func (s *JobStore) ResumeTriggers(ctx context.Context, matcher GroupMatcher) ([]string, error) {
	groups, triggers, err := s.matchTriggerGroups(ctx, matcher)
	if err != nil {
		return nil, err
	}

	for _, name := range groups {
		if err := s.triggerGroups.Store(ctx, &TriggerGroup{Name: name, State: GroupStateActive}); err != nil {
			return nil, err
		}
	}
	for _, t := range triggers {
		if err := s.resumeTriggerEntity(ctx, t); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

// matchTriggerGroups resolves a matcher to group names and member
// triggers. Group names come from stored group records, member
// triggers, and the matcher's literal for exact matches.
func (s *JobStore) matchTriggerGroups(ctx context.Context, matcher GroupMatcher) ([]string, []Trigger, error) {
	names := map[string]bool{}
	if literal := matcher.Literal(); literal != "" {
		names[literal] = true
	}

	stored, err := s.triggerGroups.Scan(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, g := range stored {
		if matcher.Matches(g.Name) {
			names[g.Name] = true
		}
	}

	all, err := s.scanTriggers(ctx)
	if err != nil {
		return nil, nil, err
	}
	var members []Trigger
	for _, t := range all {
		if matcher.Matches(t.Core().Key.Group) {
			names[t.Core().Key.Group] = true
			members = append(members, t)
		}
	}
	return sortedNames(names), members, nil
}

// PauseJob pauses every trigger of the job.
func (s *JobStore) PauseJob(ctx context.Context, key JobKey) error {
	triggers, err := s.triggersForJob(ctx, key)
	if err != nil {
		return err
	}
	for _, t := range triggers {
		if err := s.pauseTriggerEntity(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// PauseJobs pauses every matching job group and the triggers of its
// member jobs. The group record is written even when the group has no
// members yet, so jobs stored later inherit the pause. Returns the
// affected group names.
func (s *JobStore) PauseJobs(ctx context.Context, matcher GroupMatcher) ([]string, error) {
	groups, jobs, err := s.matchJobGroups(ctx, matcher)
	if err != nil {
		return nil, err
	}

	for _, name := range groups {
		if err := s.jobGroups.Store(ctx, &JobGroup{Name: name, State: GroupStatePaused}); err != nil {
			return nil, err
		}
	}
	for _, job := range jobs {
		if err := s.PauseJob(ctx, job.Key); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

// ResumeJob resumes every trigger of the job.
func (s *JobStore) ResumeJob(ctx context.Context, key JobKey) error {
	triggers, err := s.triggersForJob(ctx, key)
	if err != nil {
		return err
	}
	for _, t := range triggers {
		if err := s.resumeTriggerEntity(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// ResumeJobs resumes every matching job group. Returns the affected
// group names.
func (s *JobStore) ResumeJobs(ctx context.Context, matcher GroupMatcher) ([]string, error) {
	groups, jobs, err := s.matchJobGroups(ctx, matcher)
	if err != nil {
		return nil, err
	}

	for _, name := range groups {
		if err := s.jobGroups.Store(ctx, &JobGroup{Name: name, State: GroupStateActive}); err != nil {
			return nil, err
		}
	}
	for _, job := range jobs {
		if err := s.ResumeJob(ctx, job.Key); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

func (s *JobStore) matchJobGroups(ctx context.Context, matcher GroupMatcher) ([]string, []*JobDetail, error) {
	names := map[string]bool{}
	if literal := matcher.Literal(); literal != "" {
		names[literal] = true
	}

	stored, err := s.jobGroups.Scan(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, g := range stored {
		if matcher.Matches(g.Name) {
			names[g.Name] = true
		}
	}

	all, err := s.jobs.Scan(ctx)
	if err != nil {
		return nil, nil, err
	}
	var members []*JobDetail
	for _, job := range all {
		if matcher.Matches(job.Key.Group) {
			names[job.Key.Group] = true
			members = append(members, job)
		}
	}
	return sortedNames(names), members, nil
}

// PauseAll pauses every trigger group.
func (s *JobStore) PauseAll(ctx context.Context) error {
	_, err := s.PauseTriggers(ctx, AnyGroup())
	return err
}

// ResumeAll resumes every trigger group.
func (s *JobStore) ResumeAll(ctx context.Context) error {
	_, err := s.ResumeTriggers(ctx, AnyGroup())
	return err
}

// GetPausedTriggerGroups returns the names of trigger groups currently
// recorded paused.
func (s *JobStore) GetPausedTriggerGroups(ctx context.Context) ([]string, error) {
	groups, err := s.triggerGroups.Scan(ctx)
	if err != nil {
		return nil, err
	}
	names := map[string]bool{}
	for _, g := range groups {
		if g.State == GroupStatePaused {
			names[g.Name] = true
		}
	}
	return sortedNames(names), nil
}

// IsTriggerGroupPaused reports whether the trigger group is paused.
// Absence of a group record means not paused.
func (s *JobStore) IsTriggerGroupPaused(ctx context.Context, group string) (bool, error) {
	g := &TriggerGroup{Name: group}
	stored, err := s.triggerGroups.Load(ctx, g.KeyRecord())
	if err != nil {
		return false, err
	}
	return stored != nil && stored.State == GroupStatePaused, nil
}

// IsJobGroupPaused reports whether the job group is paused. Absence of
// a group record means not paused.
func (s *JobStore) IsJobGroupPaused(ctx context.Context, group string) (bool, error) {
	g := &JobGroup{Name: group}
	stored, err := s.jobGroups.Load(ctx, g.KeyRecord())
	if err != nil {
		return false, err
	}
	return stored != nil && stored.State == GroupStatePaused, nil
}
