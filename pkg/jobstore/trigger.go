package jobstore

import (
	"time"
)

// MisfireInstruction selects the recovery policy applied when a
// trigger's fire time passes unfired beyond the misfire threshold.
type MisfireInstruction int

const (
	// MisfireIgnore leaves the stale fire time in place; the trigger
	// fires for every missed occurrence as fast as it can be acquired.
	MisfireIgnore MisfireInstruction = -1

	// MisfireSmartPolicy lets the trigger type choose (fire once now).
	MisfireSmartPolicy MisfireInstruction = 0

	// MisfireFireOnceNow reschedules the trigger to fire immediately,
	// then resumes the normal schedule.
	MisfireFireOnceNow MisfireInstruction = 1

	// MisfireDoNothing skips missed occurrences and waits for the next
	// scheduled time.
	MisfireDoNothing MisfireInstruction = 2
)

// TriggerCore holds the fields every trigger variant shares, including
// the protocol state the acquisition engine owns. Identity is
// (Name, Group); the referenced job must exist before the trigger is
// stored.
type TriggerCore struct {
	Key         TriggerKey
	Job         JobKey
	Description string

	// CalendarName optionally names a calendar excluding fire times.
	CalendarName string

	// Priority breaks ties between triggers with equal fire times;
	// higher fires first.
	Priority int

	Misfire MisfireInstruction

	StartTime time.Time
	EndTime   *time.Time

	NextFireTime     *time.Time
	PreviousFireTime *time.Time

	// State, SchedulerInstanceID, and FireInstanceID are mutated only
	// by the acquisition engine and the pause coordinator, always under
	// a conditional write.
	State InternalState

	// SchedulerInstanceID is the owning instance while Acquired or
	// Executing.
	SchedulerInstanceID string

	// FireInstanceID identifies one firing occurrence.
	FireInstanceID string
}

// DefaultPriority matches the scheduling framework's default.
const DefaultPriority = 5

// Trigger is a schedule entity that fires at computed times. The
// schedule math of each variant is self-contained; the store and engine
// drive it only through this interface.
type Trigger interface {
	// Core returns the shared trigger fields.
	Core() *TriggerCore

	// TypeTag discriminates the persisted variant.
	TypeTag() string

	// ComputeFirstFireTime seeds NextFireTime from the schedule when it
	// is not already set.
	ComputeFirstFireTime(now time.Time)

	// Triggered advances the schedule past a firing: the fire time
	// becomes PreviousFireTime and NextFireTime moves to the following
	// occurrence, or nil when the schedule is exhausted.
	Triggered(now time.Time)

	// UpdateAfterMisfire applies the trigger's misfire instruction.
	UpdateAfterMisfire(now time.Time)

	// MayFireAgain reports whether the schedule has remaining fire
	// times.
	MayFireAgain() bool

	// Validate checks schedule fields (e.g. expression syntax) before
	// the trigger is stored.
	Validate() error

	marshalSchedule(rec record)
	unmarshalSchedule(rec record) error
}

// MayFireAgain on the core: a trigger with no next fire time is done.
func (c *TriggerCore) mayFireAgain() bool {
	return c.NextFireTime != nil
}

// pastEnd reports whether t falls beyond the trigger's end time.
func (c *TriggerCore) pastEnd(t time.Time) bool {
	return c.EndTime != nil && t.After(*c.EndTime)
}

// setNext assigns the next fire time, clearing it when past the end.
func (c *TriggerCore) setNext(t *time.Time) {
	if t != nil && c.pastEnd(*t) {
		t = nil
	}
	c.NextFireTime = t
}

// IntervalUnit is the calendar unit for interval-based triggers. The
// string values are part of the persisted record contract.
type IntervalUnit string

const (
	IntervalSecond IntervalUnit = "Second"
	IntervalMinute IntervalUnit = "Minute"
	IntervalHour   IntervalUnit = "Hour"
	IntervalDay    IntervalUnit = "Day"
	IntervalWeek   IntervalUnit = "Week"
	IntervalMonth  IntervalUnit = "Month"
	IntervalYear   IntervalUnit = "Year"
)

// addInterval advances t by count units.
func addInterval(t time.Time, unit IntervalUnit, count int) time.Time {
	switch unit {
	case IntervalSecond:
		return t.Add(time.Duration(count) * time.Second)
	case IntervalMinute:
		return t.Add(time.Duration(count) * time.Minute)
	case IntervalHour:
		return t.Add(time.Duration(count) * time.Hour)
	case IntervalDay:
		return t.AddDate(0, 0, count)
	case IntervalWeek:
		return t.AddDate(0, 0, 7*count)
	case IntervalMonth:
		return t.AddDate(0, count, 0)
	case IntervalYear:
		return t.AddDate(count, 0, 0)
	default:
		return t.Add(time.Duration(count) * time.Second)
	}
}

// loadLocation resolves an IANA zone id, defaulting to UTC.
func loadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
