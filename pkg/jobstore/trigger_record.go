package jobstore

import (
	"fmt"

	"github.com/3leaps/dynastore/pkg/storage"
)

// The trigger record is a tagged variant: shared fields plus a Type
// discriminator selecting the schedule codec.

func triggerKeyRecord(key TriggerKey) storage.Record {
	return storage.Record{
		attrGroup: attrS(key.Group),
		attrName:  attrS(key.Name),
	}
}

// MarshalTrigger renders a trigger to its stored record.
func MarshalTrigger(t Trigger) (storage.Record, error) {
	c := t.Core()
	rec := storage.Record{
		attrGroup:      attrS(c.Key.Group),
		attrName:       attrS(c.Key.Name),
		"JobGroup":     attrS(c.Job.Group),
		"JobName":      attrS(c.Job.Name),
		"Type":         attrS(t.TypeTag()),
		"Priority":     attrN(int64(c.Priority)),
		"Misfire":      attrN(int64(c.Misfire)),
		"StartTimeUtc": attrTime(c.StartTime),
		attrState:      attrN(int64(c.State)),
	}
	setOptS(rec, "Description", c.Description)
	setOptS(rec, "CalendarName", c.CalendarName)
	setOptS(rec, attrScheduler, c.SchedulerInstanceID)
	setOptS(rec, "FireInstanceId", c.FireInstanceID)
	setOptTime(rec, "EndTimeUtc", c.EndTime)
	setOptTime(rec, "NextFireTimeUtc", c.NextFireTime)
	setOptTime(rec, "PreviousFireTimeUtc", c.PreviousFireTime)

	t.marshalSchedule(rec)
	return rec, nil
}

// UnmarshalTrigger decodes a stored record into the trigger variant
// named by its Type tag.
func UnmarshalTrigger(rec storage.Record) (Trigger, error) {
	var t Trigger
	tag := getS(rec, "Type")
	switch tag {
	case "SimpleTriggerImpl":
		t = &SimpleTrigger{}
	case "CronTriggerImpl":
		t = &CronTrigger{}
	case "CalendarIntervalTriggerImpl":
		t = &CalendarIntervalTrigger{}
	case "DailyTimeIntervalTriggerImpl":
		t = &DailyTimeIntervalTrigger{}
	default:
		return nil, fmt.Errorf("unknown trigger type %q", tag)
	}

	c := t.Core()
	c.Key = TriggerKey{Name: getS(rec, attrName), Group: getS(rec, attrGroup)}
	c.Job = JobKey{Name: getS(rec, "JobName"), Group: getS(rec, "JobGroup")}
	c.Description = getS(rec, "Description")
	c.CalendarName = getS(rec, "CalendarName")
	c.Priority = int(getN(rec, "Priority"))
	c.Misfire = MisfireInstruction(getN(rec, "Misfire"))
	c.State = InternalState(getN(rec, attrState))
	c.SchedulerInstanceID = getS(rec, attrScheduler)
	c.FireInstanceID = getS(rec, "FireInstanceId")
	if start, ok := getTime(rec, "StartTimeUtc"); ok {
		c.StartTime = start
	}
	c.EndTime = getOptTime(rec, "EndTimeUtc")
	c.NextFireTime = getOptTime(rec, "NextFireTimeUtc")
	c.PreviousFireTime = getOptTime(rec, "PreviousFireTimeUtc")

	if err := t.unmarshalSchedule(rec); err != nil {
		return nil, err
	}
	return t, nil
}
