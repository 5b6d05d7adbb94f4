package jobstore

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts standard five-field expressions plus an optional
// leading seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CronTrigger fires on a cron expression, evaluated in TimeZone.
type CronTrigger struct {
	TriggerCore

	CronExpression string

	// TimeZone is an IANA zone id; empty means UTC.
	TimeZone string

	sched cron.Schedule
}

var _ Trigger = (*CronTrigger)(nil)

// NewCronTrigger creates a trigger for the given expression starting at
// start.
func NewCronTrigger(key TriggerKey, job JobKey, start time.Time, expression string) *CronTrigger {
	return &CronTrigger{
		TriggerCore: TriggerCore{
			Key:       key,
			Job:       job,
			Priority:  DefaultPriority,
			StartTime: start.UTC(),
		},
		CronExpression: expression,
	}
}

// Core implements Trigger.
func (t *CronTrigger) Core() *TriggerCore { return &t.TriggerCore }

// TypeTag implements Trigger.
func (t *CronTrigger) TypeTag() string { return "CronTriggerImpl" }

// Validate implements Trigger. Parsing is delegated to the cron
// library; the parsed schedule is cached for fire-time computation.
func (t *CronTrigger) Validate() error {
	sched, err := cronParser.Parse(t.CronExpression)
	if err != nil {
		return fmt.Errorf("cron trigger %s: %w", t.Key, err)
	}
	t.sched = sched
	return nil
}

// nextAfter returns the first schedule time strictly after the given
// instant, or nil when parsing failed or the schedule passed EndTime.
func (t *CronTrigger) nextAfter(after time.Time) *time.Time {
	if t.sched == nil {
		if t.Validate() != nil {
			return nil
		}
	}
	next := t.sched.Next(after.In(loadLocation(t.TimeZone))).UTC()
	if next.IsZero() || t.pastEnd(next) {
		return nil
	}
	return &next
}

// ComputeFirstFireTime implements Trigger.
func (t *CronTrigger) ComputeFirstFireTime(now time.Time) {
	if t.NextFireTime != nil {
		return
	}
	t.NextFireTime = t.nextAfter(t.StartTime.Add(-time.Second))
}

// Triggered implements Trigger.
func (t *CronTrigger) Triggered(now time.Time) {
	fired := t.NextFireTime
	t.PreviousFireTime = fired
	if fired == nil {
		return
	}
	t.NextFireTime = t.nextAfter(*fired)
}

// UpdateAfterMisfire implements Trigger.
func (t *CronTrigger) UpdateAfterMisfire(now time.Time) {
	switch t.Misfire {
	case MisfireIgnore:
		// Fire for every missed occurrence.
	case MisfireDoNothing:
		t.NextFireTime = t.nextAfter(now)
	default:
		// Smart policy and fire-once-now.
		n := now.UTC()
		t.setNext(&n)
	}
}

// MayFireAgain implements Trigger.
func (t *CronTrigger) MayFireAgain() bool { return t.mayFireAgain() }

func (t *CronTrigger) marshalSchedule(rec record) {
	rec["CronExpression"] = attrS(t.CronExpression)
	setOptS(rec, "TimeZoneId", t.TimeZone)
}

func (t *CronTrigger) unmarshalSchedule(rec record) error {
	t.CronExpression = getS(rec, "CronExpression")
	t.TimeZone = getS(rec, "TimeZoneId")
	return nil
}
