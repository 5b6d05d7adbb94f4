package jobstore

import (
	"fmt"
	"time"
)

// RepeatIndefinitely makes a simple trigger repeat until its end time.
const RepeatIndefinitely = -1

// SimpleTrigger fires at a fixed interval a fixed number of times.
type SimpleTrigger struct {
	TriggerCore

	// RepeatCount is the number of repeats after the first firing;
	// RepeatIndefinitely repeats until EndTime.
	RepeatCount int

	// RepeatInterval is the pause between firings. Sub-second precision
	// is not preserved by the stored record.
	RepeatInterval time.Duration

	// TimesTriggered counts completed firings.
	TimesTriggered int
}

var _ Trigger = (*SimpleTrigger)(nil)

// NewSimpleTrigger creates a trigger firing every interval starting at
// start, with the framework default priority.
func NewSimpleTrigger(key TriggerKey, job JobKey, start time.Time, interval time.Duration, repeatCount int) *SimpleTrigger {
	return &SimpleTrigger{
		TriggerCore: TriggerCore{
			Key:       key,
			Job:       job,
			Priority:  DefaultPriority,
			StartTime: start.UTC(),
		},
		RepeatCount:    repeatCount,
		RepeatInterval: interval,
	}
}

// Core implements Trigger.
func (t *SimpleTrigger) Core() *TriggerCore { return &t.TriggerCore }

// TypeTag implements Trigger.
func (t *SimpleTrigger) TypeTag() string { return "SimpleTriggerImpl" }

// Validate implements Trigger.
func (t *SimpleTrigger) Validate() error {
	if t.RepeatCount != 0 && t.RepeatInterval <= 0 {
		return fmt.Errorf("simple trigger %s: repeat interval must be positive", t.Key)
	}
	return nil
}

// ComputeFirstFireTime implements Trigger.
func (t *SimpleTrigger) ComputeFirstFireTime(now time.Time) {
	if t.NextFireTime != nil {
		return
	}
	first := t.StartTime
	t.setNext(&first)
}

// Triggered implements Trigger.
func (t *SimpleTrigger) Triggered(now time.Time) {
	fired := t.NextFireTime
	t.PreviousFireTime = fired
	t.TimesTriggered++

	if fired == nil {
		return
	}
	if t.RepeatCount != RepeatIndefinitely && t.TimesTriggered > t.RepeatCount {
		t.NextFireTime = nil
		return
	}
	next := fired.Add(t.RepeatInterval)
	t.setNext(&next)
}

// UpdateAfterMisfire implements Trigger.
func (t *SimpleTrigger) UpdateAfterMisfire(now time.Time) {
	switch t.Misfire {
	case MisfireIgnore:
		// Fire for every missed occurrence.
	case MisfireDoNothing:
		t.setNext(t.nextAtOrAfter(now))
	default:
		// Smart policy and fire-once-now: fire immediately, then resume
		// the interval from there.
		n := now.UTC()
		t.setNext(&n)
	}
}

// nextAtOrAfter steps the schedule forward to the first occurrence not
// before the given time, or nil when the schedule is exhausted first.
func (t *SimpleTrigger) nextAtOrAfter(after time.Time) *time.Time {
	if t.NextFireTime == nil || t.RepeatInterval <= 0 {
		return nil
	}
	next := *t.NextFireTime
	remaining := t.RepeatCount
	for next.Before(after) {
		if remaining != RepeatIndefinitely {
			remaining--
			if remaining < 0 {
				return nil
			}
		}
		next = next.Add(t.RepeatInterval)
		if t.pastEnd(next) {
			return nil
		}
	}
	return &next
}

// MayFireAgain implements Trigger.
func (t *SimpleTrigger) MayFireAgain() bool { return t.mayFireAgain() }

func (t *SimpleTrigger) marshalSchedule(rec record) {
	rec["RepeatCount"] = attrN(int64(t.RepeatCount))
	rec["RepeatIntervalSeconds"] = attrN(int64(t.RepeatInterval / time.Second))
	rec["TimesTriggered"] = attrN(int64(t.TimesTriggered))
}

func (t *SimpleTrigger) unmarshalSchedule(rec record) error {
	t.RepeatCount = int(getN(rec, "RepeatCount"))
	t.RepeatInterval = time.Duration(getN(rec, "RepeatIntervalSeconds")) * time.Second
	t.TimesTriggered = int(getN(rec, "TimesTriggered"))
	return nil
}
