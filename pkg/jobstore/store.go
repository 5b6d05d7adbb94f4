package jobstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3leaps/dynastore/pkg/storage"
)

// Config configures a JobStore instance.
type Config struct {
	// InstanceID uniquely identifies this scheduler process in the
	// cluster. Empty generates a random id.
	InstanceID string

	// MisfireThreshold is how far past its fire time a trigger may be
	// before the misfire policy applies. Default 60s.
	MisfireThreshold time.Duration

	// LeaseDuration is the heartbeat lease; an instance silent for this
	// long is treated as dead and its triggers are reclaimed.
	// Default 10m.
	LeaseDuration time.Duration
}

// DefaultMisfireThreshold is how stale a fire time may be before the
// misfire policy applies.
const DefaultMisfireThreshold = time.Minute

// DefaultLeaseDuration is the heartbeat lease.
const DefaultLeaseDuration = 10 * time.Minute

// Option customizes store construction.
type Option func(*JobStore)

// WithClock substitutes the time source. Tests use this to control
// misfire and lease expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *JobStore) { s.now = now }
}

// JobStore is a job store backed by table storage. It is safe for the
// surrounding scheduler's call discipline; it takes no internal locks
// and relies entirely on conditional writes for cross-instance
// exclusion.
type JobStore struct {
	storage storage.Storage
	log     *zap.Logger
	cfg     Config
	now     func() time.Time

	jobs          *Repository[JobDetail, *JobDetail]
	calendars     *Repository[Calendar, *Calendar]
	jobGroups     *Repository[JobGroup, *JobGroup]
	triggerGroups *Repository[TriggerGroup, *TriggerGroup]
	schedulers    *Repository[SchedulerInstance, *SchedulerInstance]
}

// New creates a job store over the given storage backend. The store is
// ready for use immediately; table bootstrap is a separate, idempotent
// concern (EnsureTables).
func New(store storage.Storage, cfg Config, log *zap.Logger, opts ...Option) *JobStore {
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.MisfireThreshold <= 0 {
		cfg.MisfireThreshold = DefaultMisfireThreshold
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = DefaultLeaseDuration
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &JobStore{
		storage:       store,
		log:           log.With(zap.String("instance_id", cfg.InstanceID)),
		cfg:           cfg,
		now:           time.Now,
		jobs:          NewRepository[JobDetail](store),
		calendars:     NewRepository[Calendar](store),
		jobGroups:     NewRepository[JobGroup](store),
		triggerGroups: NewRepository[TriggerGroup](store),
		schedulers:    NewRepository[SchedulerInstance](store),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InstanceID returns this store's scheduler instance id.
func (s *JobStore) InstanceID() string { return s.cfg.InstanceID }

// --- lifecycle ------------------------------------------------------

// SchedulerStarted records this instance as running.
func (s *JobStore) SchedulerStarted(ctx context.Context) error {
	return s.recordInstanceState(ctx, SchedulerStateRunning)
}

// SchedulerPaused records this instance as paused; its heartbeat keeps
// renewing so its triggers are not reclaimed.
func (s *JobStore) SchedulerPaused(ctx context.Context) error {
	return s.recordInstanceState(ctx, SchedulerStatePaused)
}

// SchedulerResumed records this instance as running again.
func (s *JobStore) SchedulerResumed(ctx context.Context) error {
	return s.recordInstanceState(ctx, SchedulerStateRunning)
}

// SchedulerShutdown removes this instance's liveness record so other
// instances reclaim its triggers immediately instead of waiting out the
// lease.
func (s *JobStore) SchedulerShutdown(ctx context.Context) error {
	me := &SchedulerInstance{InstanceID: s.cfg.InstanceID}
	return s.schedulers.Delete(ctx, me.KeyRecord())
}

func (s *JobStore) recordInstanceState(ctx context.Context, state SchedulerState) error {
	return s.schedulers.Store(ctx, &SchedulerInstance{
		InstanceID: s.cfg.InstanceID,
		Expires:    s.now().Add(s.cfg.LeaseDuration),
		State:      state,
	})
}

// --- trigger persistence helpers ------------------------------------

func (s *JobStore) loadTrigger(ctx context.Context, key TriggerKey) (Trigger, error) {
	rec, err := s.storage.Get(ctx, TableTrigger, triggerKeyRecord(key))
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return UnmarshalTrigger(rec)
}

// putTrigger persists the trigger, optionally guarded by a condition.
func (s *JobStore) putTrigger(ctx context.Context, t Trigger, cond *storage.Condition) error {
	rec, err := MarshalTrigger(t)
	if err != nil {
		return err
	}
	_, err = s.storage.Put(ctx, TableTrigger, rec, cond)
	return err
}

// expectState builds the optimistic-concurrency guard for a state
// transition.
func expectState(state InternalState) *storage.Condition {
	return &storage.Condition{Equals: storage.Record{attrState: attrN(int64(state))}}
}

// expectOwned additionally pins the owning instance.
func expectOwned(state InternalState, instanceID string) *storage.Condition {
	return &storage.Condition{Equals: storage.Record{
		attrState:     attrN(int64(state)),
		attrScheduler: attrS(instanceID),
	}}
}

func (s *JobStore) scanTriggers(ctx context.Context) ([]Trigger, error) {
	recs, err := s.storage.Scan(ctx, TableTrigger)
	if err != nil {
		return nil, err
	}
	out := make([]Trigger, 0, len(recs))
	for _, rec := range recs {
		t, err := UnmarshalTrigger(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// triggersForJob returns all triggers referencing the job.
func (s *JobStore) triggersForJob(ctx context.Context, job JobKey) ([]Trigger, error) {
	all, err := s.scanTriggers(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, t := range all {
		if t.Core().Job == job {
			out = append(out, t)
		}
	}
	return out, nil
}

// --- jobs -----------------------------------------------------------

// StoreJob persists a job definition. Without replaceExisting, storing
// over an existing key is a conflict and the stored job is unchanged.
func (s *JobStore) StoreJob(ctx context.Context, job *JobDetail, replaceExisting bool) error {
	if job.Key.Group == "" {
		job.Key.Group = DefaultGroup
	}
	if replaceExisting {
		return s.jobs.Store(ctx, job)
	}
	_, err := s.jobs.StoreConditional(ctx, job, &storage.Condition{AbsentAttr: attrName})
	if storage.IsConditionFailed(err) {
		return &AlreadyExistsError{Kind: "job", Key: job.Key.String()}
	}
	return err
}

// JobWithTriggers pairs a job with the triggers to schedule it.
type JobWithTriggers struct {
	Job      *JobDetail
	Triggers []Trigger
}

// StoreJobsAndTriggers stores the given jobs with their triggers. With
// replace false, any pre-existing job or trigger aborts the whole call
// before anything is written.
func (s *JobStore) StoreJobsAndTriggers(ctx context.Context, sets []JobWithTriggers, replace bool) error {
	if !replace {
		for _, set := range sets {
			exists, err := s.CheckJobExists(ctx, set.Job.Key)
			if err != nil {
				return err
			}
			if exists {
				return &AlreadyExistsError{Kind: "job", Key: set.Job.Key.String()}
			}
			for _, t := range set.Triggers {
				exists, err := s.CheckTriggerExists(ctx, t.Core().Key)
				if err != nil {
					return err
				}
				if exists {
					return &AlreadyExistsError{Kind: "trigger", Key: t.Core().Key.String()}
				}
			}
		}
	}

	for _, set := range sets {
		if err := s.StoreJob(ctx, set.Job, true); err != nil {
			return err
		}
		for _, t := range set.Triggers {
			if err := s.StoreTrigger(ctx, t, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// RetrieveJob returns the stored job, or nil when absent.
func (s *JobStore) RetrieveJob(ctx context.Context, key JobKey) (*JobDetail, error) {
	return s.jobs.Load(ctx, jobKeyRecord(key))
}

// RemoveJob deletes the job and every trigger referencing it. Returns
// whether the job existed.
func (s *JobStore) RemoveJob(ctx context.Context, key JobKey) (bool, error) {
	job, err := s.RetrieveJob(ctx, key)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	triggers, err := s.triggersForJob(ctx, key)
	if err != nil {
		return false, err
	}
	for _, t := range triggers {
		if err := s.storage.Delete(ctx, TableTrigger, triggerKeyRecord(t.Core().Key)); err != nil {
			return false, err
		}
	}
	if err := s.jobs.Delete(ctx, jobKeyRecord(key)); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveJobs deletes all given jobs. Returns true only when every job
// existed.
func (s *JobStore) RemoveJobs(ctx context.Context, keys []JobKey) (bool, error) {
	all := true
	for _, key := range keys {
		found, err := s.RemoveJob(ctx, key)
		if err != nil {
			return false, err
		}
		all = all && found
	}
	return all, nil
}

// CheckJobExists reports whether the job is stored.
func (s *JobStore) CheckJobExists(ctx context.Context, key JobKey) (bool, error) {
	job, err := s.RetrieveJob(ctx, key)
	return job != nil, err
}

// --- triggers -------------------------------------------------------

// StoreTrigger persists a trigger. The referenced job must already
// exist. A trigger stored into a paused group is created directly in
// the paused state; one stored for a concurrency-disallowed job that is
// currently running is created blocked.
func (s *JobStore) StoreTrigger(ctx context.Context, t Trigger, replaceExisting bool) error {
	c := t.Core()
	if c.Key.Group == "" {
		c.Key.Group = DefaultGroup
	}
	if c.Job.Group == "" {
		c.Job.Group = DefaultGroup
	}
	if err := t.Validate(); err != nil {
		return err
	}

	job, err := s.RetrieveJob(ctx, c.Job)
	if err != nil {
		return err
	}
	if job == nil {
		return &MissingJobError{Trigger: c.Key, Job: c.Job}
	}

	existing, err := s.loadTrigger(ctx, c.Key)
	if err != nil {
		return err
	}
	if existing != nil && !replaceExisting {
		return &AlreadyExistsError{Kind: "trigger", Key: c.Key.String()}
	}

	state, err := s.initialTriggerState(ctx, c, job)
	if err != nil {
		return err
	}
	c.State = state
	t.ComputeFirstFireTime(s.now())

	if existing != nil {
		return s.putTrigger(ctx, t, nil)
	}
	err = s.putTrigger(ctx, t, &storage.Condition{AbsentAttr: attrName})
	if storage.IsConditionFailed(err) {
		return &AlreadyExistsError{Kind: "trigger", Key: c.Key.String()}
	}
	return err
}

// initialTriggerState derives the creation state from the pause state
// of the trigger's group and its job's group, and from the job's
// concurrency constraint.
func (s *JobStore) initialTriggerState(ctx context.Context, c *TriggerCore, job *JobDetail) (InternalState, error) {
	paused, err := s.IsTriggerGroupPaused(ctx, c.Key.Group)
	if err != nil {
		return StateNone, err
	}
	if !paused {
		paused, err = s.IsJobGroupPaused(ctx, c.Job.Group)
		if err != nil {
			return StateNone, err
		}
	}

	blocked := false
	if job.ConcurrentExecutionDisallowed {
		siblings, err := s.triggersForJob(ctx, c.Job)
		if err != nil {
			return StateNone, err
		}
		for _, sib := range siblings {
			switch sib.Core().State {
			case StateAcquired, StateExecuting:
				blocked = true
			}
		}
	}

	switch {
	case paused && blocked:
		return StatePausedAndBlocked, nil
	case paused:
		return StatePaused, nil
	case blocked:
		return StateBlocked, nil
	default:
		return StateWaiting, nil
	}
}

// RetrieveTrigger returns the stored trigger, or nil when absent.
func (s *JobStore) RetrieveTrigger(ctx context.Context, key TriggerKey) (Trigger, error) {
	return s.loadTrigger(ctx, key)
}

// RemoveTrigger deletes the trigger. If its job is non-durable and has
// no other triggers, the job is removed with it. Returns whether the
// trigger existed.
func (s *JobStore) RemoveTrigger(ctx context.Context, key TriggerKey) (bool, error) {
	t, err := s.loadTrigger(ctx, key)
	if err != nil {
		return false, err
	}
	if t == nil {
		return false, nil
	}
	if err := s.storage.Delete(ctx, TableTrigger, triggerKeyRecord(key)); err != nil {
		return false, err
	}

	job, err := s.RetrieveJob(ctx, t.Core().Job)
	if err != nil {
		return false, err
	}
	if job != nil && !job.Durable {
		rest, err := s.triggersForJob(ctx, job.Key)
		if err != nil {
			return false, err
		}
		if len(rest) == 0 {
			if err := s.jobs.Delete(ctx, jobKeyRecord(job.Key)); err != nil {
				return false, err
			}
			s.log.Debug("removed orphaned non-durable job", zap.String("job", job.Key.String()))
		}
	}
	return true, nil
}

// RemoveTriggers deletes all given triggers. Returns true only when
// every trigger existed.
func (s *JobStore) RemoveTriggers(ctx context.Context, keys []TriggerKey) (bool, error) {
	all := true
	for _, key := range keys {
		found, err := s.RemoveTrigger(ctx, key)
		if err != nil {
			return false, err
		}
		all = all && found
	}
	return all, nil
}

// ReplaceTrigger swaps the stored trigger for a new one scheduling the
// same job. Returns whether the old trigger existed.
func (s *JobStore) ReplaceTrigger(ctx context.Context, key TriggerKey, newTrigger Trigger) (bool, error) {
	old, err := s.loadTrigger(ctx, key)
	if err != nil {
		return false, err
	}
	if old == nil {
		return false, nil
	}
	if old.Core().Job != newTrigger.Core().Job {
		return false, fmt.Errorf("replacement trigger %s must reference job %s", newTrigger.Core().Key, old.Core().Job)
	}
	// Reject a bad replacement before touching the stored trigger.
	if err := newTrigger.Validate(); err != nil {
		return false, err
	}
	if err := s.storage.Delete(ctx, TableTrigger, triggerKeyRecord(key)); err != nil {
		return false, err
	}
	if err := s.StoreTrigger(ctx, newTrigger, true); err != nil {
		// Put the old trigger back so a failed swap loses nothing.
		if restoreErr := s.putTrigger(ctx, old, nil); restoreErr != nil {
			s.log.Error("restore after failed trigger replace",
				zap.String("trigger", key.String()), zap.Error(restoreErr))
		}
		return true, err
	}
	return true, nil
}

// GetTriggerState reports the externally visible trigger state.
func (s *JobStore) GetTriggerState(ctx context.Context, key TriggerKey) (TriggerState, error) {
	t, err := s.loadTrigger(ctx, key)
	if err != nil {
		return TriggerStateNone, err
	}
	if t == nil {
		return TriggerStateNone, nil
	}
	return t.Core().State.External(), nil
}

// GetTriggersForJob returns every trigger scheduling the job.
func (s *JobStore) GetTriggersForJob(ctx context.Context, key JobKey) ([]Trigger, error) {
	return s.triggersForJob(ctx, key)
}

// CheckTriggerExists reports whether the trigger is stored.
func (s *JobStore) CheckTriggerExists(ctx context.Context, key TriggerKey) (bool, error) {
	t, err := s.loadTrigger(ctx, key)
	return t != nil, err
}

// --- calendars ------------------------------------------------------

// StoreCalendar persists a calendar definition.
func (s *JobStore) StoreCalendar(ctx context.Context, cal *Calendar, replaceExisting bool) error {
	if replaceExisting {
		return s.calendars.Store(ctx, cal)
	}
	_, err := s.calendars.StoreConditional(ctx, cal, &storage.Condition{AbsentAttr: attrName})
	if storage.IsConditionFailed(err) {
		return &AlreadyExistsError{Kind: "calendar", Key: cal.Name}
	}
	return err
}

// RemoveCalendar deletes the calendar. Removal is refused with
// ErrCalendarReferenced while any trigger references it: breaking live
// schedules silently is worse than making the caller retarget them
// first. Returns whether the calendar existed.
func (s *JobStore) RemoveCalendar(ctx context.Context, name string) (bool, error) {
	cal := &Calendar{Name: name}
	existing, err := s.calendars.Load(ctx, cal.KeyRecord())
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	triggers, err := s.scanTriggers(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range triggers {
		if t.Core().CalendarName == name {
			return false, fmt.Errorf("remove calendar %q: %w", name, ErrCalendarReferenced)
		}
	}
	return true, s.calendars.Delete(ctx, cal.KeyRecord())
}

// RetrieveCalendar returns the stored calendar, or nil when absent.
func (s *JobStore) RetrieveCalendar(ctx context.Context, name string) (*Calendar, error) {
	cal := &Calendar{Name: name}
	return s.calendars.Load(ctx, cal.KeyRecord())
}

// CheckCalendarExists reports whether the calendar is stored.
func (s *JobStore) CheckCalendarExists(ctx context.Context, name string) (bool, error) {
	cal, err := s.RetrieveCalendar(ctx, name)
	return cal != nil, err
}

// GetCalendarNames returns the names of stored calendars, sorted.
func (s *JobStore) GetCalendarNames(ctx context.Context) ([]string, error) {
	cals, err := s.calendars.Scan(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cals))
	for _, cal := range cals {
		names = append(names, cal.Name)
	}
	sort.Strings(names)
	return names, nil
}

// --- queries --------------------------------------------------------

// GetNumberOfJobs counts stored jobs.
func (s *JobStore) GetNumberOfJobs(ctx context.Context) (int, error) {
	jobs, err := s.jobs.Scan(ctx)
	return len(jobs), err
}

// GetNumberOfTriggers counts stored triggers.
func (s *JobStore) GetNumberOfTriggers(ctx context.Context) (int, error) {
	recs, err := s.storage.Scan(ctx, TableTrigger)
	return len(recs), err
}

// GetNumberOfCalendars counts stored calendars.
func (s *JobStore) GetNumberOfCalendars(ctx context.Context) (int, error) {
	cals, err := s.calendars.Scan(ctx)
	return len(cals), err
}

// GetJobKeys returns the keys of jobs in matching groups.
func (s *JobStore) GetJobKeys(ctx context.Context, matcher GroupMatcher) ([]JobKey, error) {
	jobs, err := s.jobs.Scan(ctx)
	if err != nil {
		return nil, err
	}
	var out []JobKey
	for _, job := range jobs {
		if matcher.Matches(job.Key.Group) {
			out = append(out, job.Key)
		}
	}
	sortJobKeys(out)
	return out, nil
}

// GetTriggerKeys returns the keys of triggers in matching groups.
func (s *JobStore) GetTriggerKeys(ctx context.Context, matcher GroupMatcher) ([]TriggerKey, error) {
	triggers, err := s.scanTriggers(ctx)
	if err != nil {
		return nil, err
	}
	var out []TriggerKey
	for _, t := range triggers {
		if matcher.Matches(t.Core().Key.Group) {
			out = append(out, t.Core().Key)
		}
	}
	sortTriggerKeys(out)
	return out, nil
}

// GetJobGroupNames returns the distinct groups of stored jobs.
func (s *JobStore) GetJobGroupNames(ctx context.Context) ([]string, error) {
	jobs, err := s.jobs.Scan(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, job := range jobs {
		seen[job.Key.Group] = true
	}
	return sortedNames(seen), nil
}

// GetTriggerGroupNames returns the distinct groups of stored triggers.
func (s *JobStore) GetTriggerGroupNames(ctx context.Context) ([]string, error) {
	triggers, err := s.scanTriggers(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, t := range triggers {
		seen[t.Core().Key.Group] = true
	}
	return sortedNames(seen), nil
}

// ClearAllSchedulingData removes every job, trigger, calendar, and
// group record. Scheduler liveness records are left alone.
func (s *JobStore) ClearAllSchedulingData(ctx context.Context) error {
	for _, table := range []string{TableTrigger, TableJob, TableCalendar, TableJobGroup, TableTriggerGroup} {
		recs, err := s.storage.Scan(ctx, table)
		if err != nil {
			return err
		}
		spec := TableSpecs()[table]
		for _, rec := range recs {
			key := storage.Record{spec.HashKey: rec[spec.HashKey]}
			if spec.RangeKey != "" {
				key[spec.RangeKey] = rec[spec.RangeKey]
			}
			if err := s.storage.Delete(ctx, table, key); err != nil {
				return err
			}
		}
	}
	return nil
}

func sortedNames(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func sortJobKeys(keys []JobKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Group != keys[j].Group {
			return keys[i].Group < keys[j].Group
		}
		return keys[i].Name < keys[j].Name
	})
}

func sortTriggerKeys(keys []TriggerKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Group != keys[j].Group {
			return keys[i].Group < keys[j].Group
		}
		return keys[i].Name < keys[j].Name
	})
}
