package export

import (
	"context"
	"fmt"
	"time"

	"github.com/3leaps/dynastore/pkg/jobstore"
)

// Export streams every job, trigger, and calendar in the store through
// the writer, followed by a summary record, and returns the summary.
func Export(ctx context.Context, store *jobstore.JobStore, w Writer) (*SummaryRecord, error) {
	started := time.Now()
	sum := &SummaryRecord{}

	jobKeys, err := store.GetJobKeys(ctx, jobstore.AnyGroup())
	if err != nil {
		return nil, err
	}
	for _, key := range jobKeys {
		job, err := store.RetrieveJob(ctx, key)
		if err != nil {
			return nil, err
		}
		if job == nil {
			continue
		}
		if err := w.WriteJob(ctx, jobRecord(job)); err != nil {
			return nil, err
		}
		sum.Jobs++
	}

	trigKeys, err := store.GetTriggerKeys(ctx, jobstore.AnyGroup())
	if err != nil {
		return nil, err
	}
	for _, key := range trigKeys {
		trig, err := store.RetrieveTrigger(ctx, key)
		if err != nil {
			return nil, err
		}
		if trig == nil {
			continue
		}
		state, err := store.GetTriggerState(ctx, key)
		if err != nil {
			return nil, err
		}
		if err := w.WriteTrigger(ctx, triggerRecord(trig, state)); err != nil {
			return nil, err
		}
		sum.Triggers++
	}

	calNames, err := store.GetCalendarNames(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range calNames {
		cal, err := store.RetrieveCalendar(ctx, name)
		if err != nil {
			return nil, err
		}
		if cal == nil {
			continue
		}
		if err := w.WriteCalendar(ctx, calendarRecord(cal)); err != nil {
			return nil, err
		}
		sum.Calendars++
	}

	paused, err := store.GetPausedTriggerGroups(ctx)
	if err != nil {
		return nil, err
	}
	sum.PausedTriggerGroups = paused
	sum.DurationMs = time.Since(started).Milliseconds()

	if err := w.WriteSummary(ctx, sum); err != nil {
		return nil, err
	}
	return sum, nil
}

func jobRecord(job *jobstore.JobDetail) *JobRecord {
	return &JobRecord{
		Name:               job.Key.Name,
		Group:              job.Key.Group,
		Description:        job.Description,
		JobType:            job.JobType,
		Durable:            job.Durable,
		RequestsRecovery:   job.RequestsRecovery,
		DisallowConcurrent: job.ConcurrentExecutionDisallowed,
		PersistJobData:     job.PersistJobDataAfterExecution,
		Data:               job.JobData,
	}
}

func triggerRecord(trig jobstore.Trigger, state jobstore.TriggerState) *TriggerRecord {
	c := trig.Core()
	return &TriggerRecord{
		Name:             c.Key.Name,
		Group:            c.Key.Group,
		JobName:          c.Job.Name,
		JobGroup:         c.Job.Group,
		Type:             trig.TypeTag(),
		State:            string(state),
		Description:      c.Description,
		Calendar:         c.CalendarName,
		Priority:         c.Priority,
		Misfire:          misfireName(c.Misfire),
		StartTime:        c.StartTime,
		EndTime:          c.EndTime,
		NextFireTime:     c.NextFireTime,
		PreviousFireTime: c.PreviousFireTime,
		Owner:            c.SchedulerInstanceID,
		Schedule:         scheduleFields(trig),
	}
}

// scheduleFields flattens the type-specific schedule for inspection.
func scheduleFields(trig jobstore.Trigger) map[string]any {
	switch t := trig.(type) {
	case *jobstore.SimpleTrigger:
		return map[string]any{
			"repeat_count":    t.RepeatCount,
			"repeat_interval": t.RepeatInterval.String(),
			"times_triggered": t.TimesTriggered,
		}
	case *jobstore.CronTrigger:
		out := map[string]any{"cron": t.CronExpression}
		if t.TimeZone != "" {
			out["timezone"] = t.TimeZone
		}
		return out
	case *jobstore.CalendarIntervalTrigger:
		out := map[string]any{
			"interval":        t.RepeatInterval,
			"interval_unit":   string(t.RepeatIntervalUnit),
			"times_triggered": t.TimesTriggered,
		}
		if t.TimeZone != "" {
			out["timezone"] = t.TimeZone
		}
		return out
	case *jobstore.DailyTimeIntervalTrigger:
		out := map[string]any{
			"interval":          t.RepeatInterval,
			"interval_unit":     string(t.RepeatIntervalUnit),
			"start_time_of_day": timeOfDay(t.StartTimeOfDay),
			"end_time_of_day":   timeOfDay(t.EndTimeOfDay),
			"repeat_count":      t.RepeatCount,
			"times_triggered":   t.TimesTriggered,
		}
		if len(t.DaysOfWeek) > 0 {
			days := make([]string, 0, len(t.DaysOfWeek))
			for _, d := range t.DaysOfWeek {
				days = append(days, d.String())
			}
			out["days_of_week"] = days
		}
		if t.TimeZone != "" {
			out["timezone"] = t.TimeZone
		}
		return out
	default:
		return nil
	}
}

func calendarRecord(cal *jobstore.Calendar) *CalendarRecord {
	rec := &CalendarRecord{
		Name:        cal.Name,
		Description: cal.Description,
	}
	switch cal.Spec.(type) {
	case *jobstore.AnnualCalendar:
		rec.Type = "annual"
	case *jobstore.CronCalendar:
		rec.Type = "cron"
	case *jobstore.DailyCalendar:
		rec.Type = "daily"
	case *jobstore.HolidayCalendar:
		rec.Type = "holiday"
	case *jobstore.MonthlyCalendar:
		rec.Type = "monthly"
	case *jobstore.WeeklyCalendar:
		rec.Type = "weekly"
	}
	return rec
}

func misfireName(m jobstore.MisfireInstruction) string {
	switch m {
	case jobstore.MisfireIgnore:
		return "ignore"
	case jobstore.MisfireFireOnceNow:
		return "fire-once-now"
	case jobstore.MisfireDoNothing:
		return "do-nothing"
	default:
		return "smart"
	}
}

func timeOfDay(seconds int) string {
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, seconds/60%60, seconds%60)
}
