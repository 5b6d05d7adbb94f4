package jobstore

import (
	"fmt"
	"sort"
	"time"
)

// DailyTimeIntervalTrigger fires every N seconds/minutes/hours within a
// daily time window, optionally restricted to certain weekdays.
type DailyTimeIntervalTrigger struct {
	TriggerCore

	RepeatInterval     int
	RepeatIntervalUnit IntervalUnit

	// StartTimeOfDay and EndTimeOfDay bound the daily firing window,
	// expressed as seconds from midnight in TimeZone. A zero
	// EndTimeOfDay means end of day.
	StartTimeOfDay int
	EndTimeOfDay   int

	// DaysOfWeek restricts firing days; empty means every day. The
	// store keeps the set, not the slice: days come back sorted and
	// deduplicated.
	DaysOfWeek []time.Weekday

	// RepeatCount bounds total firings; RepeatIndefinitely is unbounded.
	RepeatCount int

	// TimesTriggered counts completed firings.
	TimesTriggered int

	// TimeZone is the zone the daily window is evaluated in; empty
	// means UTC.
	TimeZone string
}

var _ Trigger = (*DailyTimeIntervalTrigger)(nil)

const endOfDaySeconds = 24*60*60 - 1

// Core implements Trigger.
func (t *DailyTimeIntervalTrigger) Core() *TriggerCore { return &t.TriggerCore }

// TypeTag implements Trigger.
func (t *DailyTimeIntervalTrigger) TypeTag() string { return "DailyTimeIntervalTriggerImpl" }

// Validate implements Trigger.
func (t *DailyTimeIntervalTrigger) Validate() error {
	switch t.RepeatIntervalUnit {
	case IntervalSecond, IntervalMinute, IntervalHour:
	default:
		return fmt.Errorf("daily interval trigger %s: unit must be Second, Minute, or Hour", t.Key)
	}
	if t.RepeatInterval <= 0 {
		return fmt.Errorf("daily interval trigger %s: repeat interval must be positive", t.Key)
	}
	if t.EndTimeOfDay != 0 && t.EndTimeOfDay <= t.StartTimeOfDay {
		return fmt.Errorf("daily interval trigger %s: end of window must follow start", t.Key)
	}
	return nil
}

// dayAllowed reports whether the trigger may fire on the given weekday.
func (t *DailyTimeIntervalTrigger) dayAllowed(d time.Weekday) bool {
	if len(t.DaysOfWeek) == 0 {
		return true
	}
	for _, allowed := range t.DaysOfWeek {
		if allowed == d {
			return true
		}
	}
	return false
}

func (t *DailyTimeIntervalTrigger) windowEnd() int {
	if t.EndTimeOfDay == 0 {
		return endOfDaySeconds
	}
	return t.EndTimeOfDay
}

func (t *DailyTimeIntervalTrigger) intervalSeconds() int {
	switch t.RepeatIntervalUnit {
	case IntervalMinute:
		return t.RepeatInterval * 60
	case IntervalHour:
		return t.RepeatInterval * 3600
	default:
		return t.RepeatInterval
	}
}

// nextAtOrAfter returns the first window slot not before the given
// instant, or nil when no allowed day exists before EndTime.
func (t *DailyTimeIntervalTrigger) nextAtOrAfter(after time.Time) *time.Time {
	loc := loadLocation(t.TimeZone)
	local := after.In(loc)
	step := t.intervalSeconds()

	// Bounded day walk: a non-empty weekday set repeats within a week.
	for day := 0; day <= 8; day++ {
		date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, day)
		if !t.dayAllowed(date.Weekday()) {
			continue
		}
		for sec := t.StartTimeOfDay; sec <= t.windowEnd(); sec += step {
			candidate := date.Add(time.Duration(sec) * time.Second)
			if candidate.Before(local) {
				continue
			}
			utc := candidate.UTC()
			if t.pastEnd(utc) {
				return nil
			}
			return &utc
		}
	}
	return nil
}

// ComputeFirstFireTime implements Trigger.
func (t *DailyTimeIntervalTrigger) ComputeFirstFireTime(now time.Time) {
	if t.NextFireTime != nil {
		return
	}
	t.NextFireTime = t.nextAtOrAfter(t.StartTime)
}

// Triggered implements Trigger.
func (t *DailyTimeIntervalTrigger) Triggered(now time.Time) {
	fired := t.NextFireTime
	t.PreviousFireTime = fired
	t.TimesTriggered++
	if fired == nil {
		return
	}
	if t.RepeatCount != RepeatIndefinitely && t.RepeatCount != 0 && t.TimesTriggered > t.RepeatCount {
		t.NextFireTime = nil
		return
	}
	t.NextFireTime = t.nextAtOrAfter(fired.Add(time.Second))
}

// UpdateAfterMisfire implements Trigger.
func (t *DailyTimeIntervalTrigger) UpdateAfterMisfire(now time.Time) {
	switch t.Misfire {
	case MisfireIgnore:
		// Fire for every missed occurrence.
	case MisfireDoNothing:
		t.NextFireTime = t.nextAtOrAfter(now)
	default:
		n := now.UTC()
		t.setNext(&n)
	}
}

// MayFireAgain implements Trigger.
func (t *DailyTimeIntervalTrigger) MayFireAgain() bool { return t.mayFireAgain() }

func (t *DailyTimeIntervalTrigger) marshalSchedule(rec record) {
	rec["RepeatInterval"] = attrN(int64(t.RepeatInterval))
	rec["RepeatIntervalUnit"] = attrS(string(t.RepeatIntervalUnit))
	rec["StartTimeOfDay"] = attrN(int64(t.StartTimeOfDay))
	rec["EndTimeOfDay"] = attrN(int64(t.EndTimeOfDay))
	rec["RepeatCount"] = attrN(int64(t.RepeatCount))
	rec["TimesTriggered"] = attrN(int64(t.TimesTriggered))
	setOptS(rec, "TimeZoneId", t.TimeZone)

	if len(t.DaysOfWeek) > 0 {
		days := make([]time.Weekday, len(t.DaysOfWeek))
		copy(days, t.DaysOfWeek)
		sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
		packed := int64(0)
		for _, d := range days {
			packed |= 1 << uint(d)
		}
		rec["DaysOfWeek"] = attrN(packed)
	}
}

func (t *DailyTimeIntervalTrigger) unmarshalSchedule(rec record) error {
	t.RepeatInterval = int(getN(rec, "RepeatInterval"))
	t.RepeatIntervalUnit = IntervalUnit(getS(rec, "RepeatIntervalUnit"))
	t.StartTimeOfDay = int(getN(rec, "StartTimeOfDay"))
	t.EndTimeOfDay = int(getN(rec, "EndTimeOfDay"))
	t.RepeatCount = int(getN(rec, "RepeatCount"))
	t.TimesTriggered = int(getN(rec, "TimesTriggered"))
	t.TimeZone = getS(rec, "TimeZoneId")

	t.DaysOfWeek = nil
	if packed := getN(rec, "DaysOfWeek"); packed != 0 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			if packed&(1<<uint(d)) != 0 {
				t.DaysOfWeek = append(t.DaysOfWeek, d)
			}
		}
	}
	return nil
}
