package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/dynastore/pkg/storage/memory"
)

// fixedClock is a controllable time source for store tests.
type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time          { return c.now }
func (c *fixedClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
func (c *fixedClock) Set(at time.Time)        { c.now = at }

func newTestStore(t *testing.T) (*JobStore, *fixedClock) {
	t.Helper()
	return newTestStoreOn(t, memory.New(), "instance-1")
}

// newTestStoreOn builds a store over an existing backend so tests can
// run several instances against shared tables.
func newTestStoreOn(t *testing.T, backend *memory.Store, instanceID string) (*JobStore, *fixedClock) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, EnsureTables(ctx, backend))

	clock := &fixedClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := New(backend, Config{InstanceID: instanceID}, nil, WithClock(clock.Now))
	return store, clock
}

func testJob(name string) *JobDetail {
	return &JobDetail{
		Key:         NewJobKey(name),
		Description: "test job",
		JobType:     "com.example.TestJob",
		Durable:     true,
	}
}

func testTrigger(name, jobName string, start time.Time) *SimpleTrigger {
	return NewSimpleTrigger(NewTriggerKey(name), NewJobKey(jobName), start, time.Minute, RepeatIndefinitely)
}

func TestStoreJobAndRetrieve(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	job := testJob("reports")
	job.JobData = map[string]string{"target": "s3://bucket/out"}
	require.NoError(t, store.StoreJob(ctx, job, false))

	got, err := store.RetrieveJob(ctx, job.Key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job.Key, got.Key)
	assert.Equal(t, "test job", got.Description)
	assert.Equal(t, map[string]string{"target": "s3://bucket/out"}, got.JobData)
	assert.True(t, got.Durable)

	exists, err := store.CheckJobExists(ctx, job.Key)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStoreJobConflict(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.StoreJob(ctx, testJob("reports"), false))

	dup := testJob("reports")
	dup.Description = "changed"
	err := store.StoreJob(ctx, dup, false)
	require.Error(t, err)
	assert.True(t, IsAlreadyExists(err))

	// The stored job is unchanged.
	got, err := store.RetrieveJob(ctx, dup.Key)
	require.NoError(t, err)
	assert.Equal(t, "test job", got.Description)

	// Replace is allowed when asked for.
	require.NoError(t, store.StoreJob(ctx, dup, true))
	got, err = store.RetrieveJob(ctx, dup.Key)
	require.NoError(t, err)
	assert.Equal(t, "changed", got.Description)
}

func TestRetrieveMissingJobIsNil(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	got, err := store.RetrieveJob(ctx, NewJobKey("ghost"))
	require.NoError(t, err)
	assert.Nil(t, got)

	found, err := store.RemoveJob(ctx, NewJobKey("ghost"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStoreTriggerRequiresJob(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	err := store.StoreTrigger(ctx, testTrigger("t1", "missing", clock.Now()), false)
	require.Error(t, err)
	assert.True(t, IsMissingJob(err))
}

func TestStoreTriggerSetsWaitingAndFirstFireTime(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.StoreJob(ctx, testJob("reports"), false))
	start := clock.Now().Add(time.Hour)
	require.NoError(t, store.StoreTrigger(ctx, testTrigger("t1", "reports", start), false))

	got, err := store.RetrieveTrigger(ctx, NewTriggerKey("t1"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StateWaiting, got.Core().State)
	require.NotNil(t, got.Core().NextFireTime)
	assert.True(t, got.Core().NextFireTime.Equal(start))

	state, err := store.GetTriggerState(ctx, NewTriggerKey("t1"))
	require.NoError(t, err)
	assert.Equal(t, TriggerStateNormal, state)
}

func TestStoreTriggerConflict(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.StoreJob(ctx, testJob("reports"), false))
	require.NoError(t, store.StoreTrigger(ctx, testTrigger("t1", "reports", clock.Now()), false))

	err := store.StoreTrigger(ctx, testTrigger("t1", "reports", clock.Now()), false)
	require.Error(t, err)
	assert.True(t, IsAlreadyExists(err))
}

func TestRemoveJobCascadesTriggers(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.StoreJob(ctx, testJob("reports"), false))
	require.NoError(t, store.StoreTrigger(ctx, testTrigger("t1", "reports", clock.Now()), false))
	require.NoError(t, store.StoreTrigger(ctx, testTrigger("t2", "reports", clock.Now()), false))

	found, err := store.RemoveJob(ctx, NewJobKey("reports"))
	require.NoError(t, err)
	assert.True(t, found)

	for _, name := range []string{"t1", "t2"} {
		got, err := store.RetrieveTrigger(ctx, NewTriggerKey(name))
		require.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestRemoveTriggerCleansUpNonDurableJob(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	job := testJob("ephemeral")
	job.Durable = false
	require.NoError(t, store.StoreJob(ctx, job, false))
	require.NoError(t, store.StoreTrigger(ctx, testTrigger("t1", "ephemeral", clock.Now()), false))

	found, err := store.RemoveTrigger(ctx, NewTriggerKey("t1"))
	require.NoError(t, err)
	assert.True(t, found)

	got, err := store.RetrieveJob(ctx, job.Key)
	require.NoError(t, err)
	assert.Nil(t, got, "non-durable job without triggers should be removed")
}

func TestRemoveTriggerKeepsDurableJob(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.StoreJob(ctx, testJob("reports"), false))
	require.NoError(t, store.StoreTrigger(ctx, testTrigger("t1", "reports", clock.Now()), false))

	_, err := store.RemoveTrigger(ctx, NewTriggerKey("t1"))
	require.NoError(t, err)

	got, err := store.RetrieveJob(ctx, NewJobKey("reports"))
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestReplaceTrigger(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.StoreJob(ctx, testJob("reports"), false))
	require.NoError(t, store.StoreJob(ctx, testJob("other"), false))
	require.NoError(t, store.StoreTrigger(ctx, testTrigger("t1", "reports", clock.Now()), false))

	t.Run("different job rejected", func(t *testing.T) {
		_, err := store.ReplaceTrigger(ctx, NewTriggerKey("t1"), testTrigger("t2", "other", clock.Now()))
		require.Error(t, err)
	})

	t.Run("same job replaces", func(t *testing.T) {
		replacement := NewCronTrigger(NewTriggerKey("t2"), NewJobKey("reports"), clock.Now(), "0 0 3 * * ?")
		found, err := store.ReplaceTrigger(ctx, NewTriggerKey("t1"), replacement)
		require.NoError(t, err)
		assert.True(t, found)

		old, err := store.RetrieveTrigger(ctx, NewTriggerKey("t1"))
		require.NoError(t, err)
		assert.Nil(t, old)

		got, err := store.RetrieveTrigger(ctx, NewTriggerKey("t2"))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "CronTriggerImpl", got.TypeTag())
	})

	t.Run("missing trigger", func(t *testing.T) {
		found, err := store.ReplaceTrigger(ctx, NewTriggerKey("nope"), testTrigger("t3", "reports", clock.Now()))
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestReplaceTriggerInvalidReplacementKeepsOriginal(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.StoreJob(ctx, testJob("reports"), false))
	require.NoError(t, store.StoreTrigger(ctx, testTrigger("t1", "reports", clock.Now()), false))

	// A replacement that cannot validate must leave the stored trigger
	// untouched.
	bad := NewCronTrigger(NewTriggerKey("t2"), NewJobKey("reports"), clock.Now(), "not a cron expression")
	found, err := store.ReplaceTrigger(ctx, NewTriggerKey("t1"), bad)
	require.Error(t, err)
	assert.False(t, found)

	got, err := store.RetrieveTrigger(ctx, NewTriggerKey("t1"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "SimpleTriggerImpl", got.TypeTag())

	state, err := store.GetTriggerState(ctx, NewTriggerKey("t1"))
	require.NoError(t, err)
	assert.Equal(t, TriggerStateNormal, state)

	missing, err := store.RetrieveTrigger(ctx, NewTriggerKey("t2"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStoreJobsAndTriggersAtomicPrecheck(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.StoreJob(ctx, testJob("existing"), false))

	sets := []JobWithTriggers{
		{Job: testJob("fresh"), Triggers: []Trigger{testTrigger("ft", "fresh", clock.Now())}},
		{Job: testJob("existing"), Triggers: nil},
	}
	err := store.StoreJobsAndTriggers(ctx, sets, false)
	require.Error(t, err)
	assert.True(t, IsAlreadyExists(err))

	// Nothing from the batch was written.
	got, err := store.RetrieveJob(ctx, NewJobKey("fresh"))
	require.NoError(t, err)
	assert.Nil(t, got)

	// With replace the same batch goes through.
	require.NoError(t, store.StoreJobsAndTriggers(ctx, sets, true))
	got, err = store.RetrieveJob(ctx, NewJobKey("fresh"))
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestCalendarLifecycle(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	cal := &Calendar{
		Name:        "holidays",
		Description: "company holidays",
		Spec: &HolidayCalendar{ExcludedDates: []time.Time{
			time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC),
		}},
	}
	require.NoError(t, store.StoreCalendar(ctx, cal, false))

	err := store.StoreCalendar(ctx, cal, false)
	require.Error(t, err)
	assert.True(t, IsAlreadyExists(err))

	got, err := store.RetrieveCalendar(ctx, "holidays")
	require.NoError(t, err)
	require.NotNil(t, got)
	holiday, ok := got.Spec.(*HolidayCalendar)
	require.True(t, ok)
	require.Len(t, holiday.ExcludedDates, 1)

	// A trigger referencing the calendar blocks removal.
	require.NoError(t, store.StoreJob(ctx, testJob("reports"), false))
	trig := testTrigger("t1", "reports", clock.Now())
	trig.CalendarName = "holidays"
	require.NoError(t, store.StoreTrigger(ctx, trig, false))

	_, err = store.RemoveCalendar(ctx, "holidays")
	require.ErrorIs(t, err, ErrCalendarReferenced)

	// Retargeting the trigger unblocks removal.
	trig.CalendarName = ""
	require.NoError(t, store.StoreTrigger(ctx, trig, true))
	found, err := store.RemoveCalendar(ctx, "holidays")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = store.RemoveCalendar(ctx, "holidays")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCalendarDaySetsNormalizeOnRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	weekly := &Calendar{
		Name: "weekends",
		Spec: &WeeklyCalendar{ExcludedDays: []time.Weekday{
			time.Sunday, time.Saturday, time.Sunday,
		}},
	}
	require.NoError(t, store.StoreCalendar(ctx, weekly, false))

	monthly := &Calendar{
		Name: "paydays",
		Spec: &MonthlyCalendar{ExcludedDays: []int{15, 1, 15}},
	}
	require.NoError(t, store.StoreCalendar(ctx, monthly, false))

	got, err := store.RetrieveCalendar(ctx, "weekends")
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Sunday, time.Saturday},
		got.Spec.(*WeeklyCalendar).ExcludedDays)

	got, err = store.RetrieveCalendar(ctx, "paydays")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 15}, got.Spec.(*MonthlyCalendar).ExcludedDays)
}

func TestGroupQueries(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	jobA := &JobDetail{Key: JobKey{Name: "a", Group: "batch"}, Durable: true}
	jobB := &JobDetail{Key: JobKey{Name: "b", Group: "online"}, Durable: true}
	require.NoError(t, store.StoreJob(ctx, jobA, false))
	require.NoError(t, store.StoreJob(ctx, jobB, false))

	trigA := NewSimpleTrigger(TriggerKey{Name: "ta", Group: "batch"}, jobA.Key, clock.Now(), time.Minute, 0)
	trigB := NewSimpleTrigger(TriggerKey{Name: "tb", Group: "online"}, jobB.Key, clock.Now(), time.Minute, 0)
	require.NoError(t, store.StoreTrigger(ctx, trigA, false))
	require.NoError(t, store.StoreTrigger(ctx, trigB, false))

	jobs, err := store.GetJobKeys(ctx, GroupEquals("batch"))
	require.NoError(t, err)
	assert.Equal(t, []JobKey{{Name: "a", Group: "batch"}}, jobs)

	jobs, err = store.GetJobKeys(ctx, AnyGroup())
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	triggers, err := store.GetTriggerKeys(ctx, GroupStartsWith("on"))
	require.NoError(t, err)
	assert.Equal(t, []TriggerKey{{Name: "tb", Group: "online"}}, triggers)

	jobGroups, err := store.GetJobGroupNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"batch", "online"}, jobGroups)

	triggerGroups, err := store.GetTriggerGroupNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"batch", "online"}, triggerGroups)

	njobs, err := store.GetNumberOfJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, njobs)
	ntriggers, err := store.GetNumberOfTriggers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, ntriggers)
}

func TestClearAllSchedulingDataKeepsLiveness(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.StoreJob(ctx, testJob("reports"), false))
	require.NoError(t, store.StoreTrigger(ctx, testTrigger("t1", "reports", clock.Now()), false))
	require.NoError(t, store.StoreCalendar(ctx, &Calendar{Name: "cal", Spec: &MonthlyCalendar{}}, false))
	_, err := store.PauseTriggers(ctx, GroupEquals("DEFAULT"))
	require.NoError(t, err)
	require.NoError(t, store.SchedulerStarted(ctx))

	require.NoError(t, store.ClearAllSchedulingData(ctx))

	n, err := store.GetNumberOfJobs(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = store.GetNumberOfTriggers(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = store.GetNumberOfCalendars(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	paused, err := store.GetPausedTriggerGroups(ctx)
	require.NoError(t, err)
	assert.Empty(t, paused)

	// The instance's liveness record survives the clear.
	live, err := store.liveInstances(ctx)
	require.NoError(t, err)
	assert.True(t, live["instance-1"])
}
