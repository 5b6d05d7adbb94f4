package jobstore

import (
	"fmt"
	"time"
)

// CalendarIntervalTrigger fires every N calendar units (days, months,
// years...), honoring variable month and year lengths.
type CalendarIntervalTrigger struct {
	TriggerCore

	RepeatInterval     int
	RepeatIntervalUnit IntervalUnit

	// TimeZone is the zone in which calendar arithmetic is performed;
	// empty means UTC.
	TimeZone string

	// TimesTriggered counts completed firings.
	TimesTriggered int
}

var _ Trigger = (*CalendarIntervalTrigger)(nil)

// NewCalendarIntervalTrigger creates a trigger firing every interval
// units starting at start.
func NewCalendarIntervalTrigger(key TriggerKey, job JobKey, start time.Time, unit IntervalUnit, interval int) *CalendarIntervalTrigger {
	return &CalendarIntervalTrigger{
		TriggerCore: TriggerCore{
			Key:       key,
			Job:       job,
			Priority:  DefaultPriority,
			StartTime: start.UTC(),
		},
		RepeatInterval:     interval,
		RepeatIntervalUnit: unit,
	}
}

// Core implements Trigger.
func (t *CalendarIntervalTrigger) Core() *TriggerCore { return &t.TriggerCore }

// TypeTag implements Trigger.
func (t *CalendarIntervalTrigger) TypeTag() string { return "CalendarIntervalTriggerImpl" }

// Validate implements Trigger.
func (t *CalendarIntervalTrigger) Validate() error {
	if t.RepeatInterval <= 0 {
		return fmt.Errorf("calendar interval trigger %s: repeat interval must be positive", t.Key)
	}
	return nil
}

// step advances an instant by one repeat interval in the trigger's zone.
func (t *CalendarIntervalTrigger) step(from time.Time) time.Time {
	loc := loadLocation(t.TimeZone)
	return addInterval(from.In(loc), t.RepeatIntervalUnit, t.RepeatInterval).UTC()
}

// ComputeFirstFireTime implements Trigger.
func (t *CalendarIntervalTrigger) ComputeFirstFireTime(now time.Time) {
	if t.NextFireTime != nil {
		return
	}
	first := t.StartTime
	t.setNext(&first)
}

// Triggered implements Trigger.
func (t *CalendarIntervalTrigger) Triggered(now time.Time) {
	fired := t.NextFireTime
	t.PreviousFireTime = fired
	t.TimesTriggered++
	if fired == nil {
		return
	}
	next := t.step(*fired)
	t.setNext(&next)
}

// UpdateAfterMisfire implements Trigger.
func (t *CalendarIntervalTrigger) UpdateAfterMisfire(now time.Time) {
	switch t.Misfire {
	case MisfireIgnore:
		// Fire for every missed occurrence.
	case MisfireDoNothing:
		if t.NextFireTime == nil {
			return
		}
		next := *t.NextFireTime
		for next.Before(now) {
			next = t.step(next)
			if t.pastEnd(next) {
				t.NextFireTime = nil
				return
			}
		}
		t.setNext(&next)
	default:
		n := now.UTC()
		t.setNext(&n)
	}
}

// MayFireAgain implements Trigger.
func (t *CalendarIntervalTrigger) MayFireAgain() bool { return t.mayFireAgain() }

func (t *CalendarIntervalTrigger) marshalSchedule(rec record) {
	rec["RepeatInterval"] = attrN(int64(t.RepeatInterval))
	rec["RepeatIntervalUnit"] = attrS(string(t.RepeatIntervalUnit))
	rec["TimesTriggered"] = attrN(int64(t.TimesTriggered))
	setOptS(rec, "TimeZoneId", t.TimeZone)
}

func (t *CalendarIntervalTrigger) unmarshalSchedule(rec record) error {
	t.RepeatInterval = int(getN(rec, "RepeatInterval"))
	t.RepeatIntervalUnit = IntervalUnit(getS(rec, "RepeatIntervalUnit"))
	t.TimesTriggered = int(getN(rec, "TimesTriggered"))
	t.TimeZone = getS(rec, "TimeZoneId")
	return nil
}
