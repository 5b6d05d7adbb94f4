package jobstore

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/3leaps/dynastore/pkg/storage"
)

// Calendar names a set of excluded fire times. The exclusion math is
// evaluated by the scheduling framework; the store persists the
// definition as a tagged variant and preserves it bit-for-bit.
type Calendar struct {
	Name        string
	Description string
	Spec        CalendarSpec
}

// CalendarSpec is one calendar variant's payload.
type CalendarSpec interface {
	calendarType() string
	marshalSpec(rec record)
	unmarshalSpec(rec record)
}

// AnnualCalendar excludes a set of days, every year.
type AnnualCalendar struct {
	// ExcludedDays holds one date per excluded day; the year component
	// is ignored by the exclusion math but preserved by the store.
	ExcludedDays []time.Time
}

// CronCalendar excludes every time matched by a cron expression.
type CronCalendar struct {
	CronExpression string
	TimeZone       string
}

// DailyCalendar excludes a time range within each day, expressed as
// seconds from midnight.
type DailyCalendar struct {
	RangeStart int
	RangeEnd   int

	// InvertTimeRange excludes everything outside the range instead.
	InvertTimeRange bool
}

// HolidayCalendar excludes a set of whole dates.
type HolidayCalendar struct {
	ExcludedDates []time.Time
}

// MonthlyCalendar excludes days of the month (1-31). The store keeps
// the set, not the slice: days come back sorted and deduplicated.
type MonthlyCalendar struct {
	ExcludedDays []int
}

// WeeklyCalendar excludes days of the week. The store keeps the set,
// not the slice: days come back sorted and deduplicated.
type WeeklyCalendar struct {
	ExcludedDays []time.Weekday
}

func (*AnnualCalendar) calendarType() string  { return "AnnualCalendar" }
func (*CronCalendar) calendarType() string    { return "CronCalendar" }
func (*DailyCalendar) calendarType() string   { return "DailyCalendar" }
func (*HolidayCalendar) calendarType() string { return "HolidayCalendar" }
func (*MonthlyCalendar) calendarType() string { return "MonthlyCalendar" }
func (*WeeklyCalendar) calendarType() string  { return "WeeklyCalendar" }

func marshalDates(rec record, name string, dates []time.Time) {
	if len(dates) == 0 {
		return
	}
	out := make([]types.AttributeValue, 0, len(dates))
	for _, d := range dates {
		out = append(out, attrTime(d))
	}
	rec[name] = &types.AttributeValueMemberL{Value: out}
}

func unmarshalDates(rec record, name string) []time.Time {
	list, ok := rec[name].(*types.AttributeValueMemberL)
	if !ok {
		return nil
	}
	out := make([]time.Time, 0, len(list.Value))
	for _, v := range list.Value {
		if n, ok := v.(*types.AttributeValueMemberN); ok {
			out = append(out, parseEpoch(n.Value))
		}
	}
	return out
}

func (c *AnnualCalendar) marshalSpec(rec record) {
	marshalDates(rec, "ExcludedDays", c.ExcludedDays)
}

func (c *AnnualCalendar) unmarshalSpec(rec record) {
	c.ExcludedDays = unmarshalDates(rec, "ExcludedDays")
}

func (c *CronCalendar) marshalSpec(rec record) {
	rec["CronExpression"] = attrS(c.CronExpression)
	setOptS(rec, "TimeZoneId", c.TimeZone)
}

func (c *CronCalendar) unmarshalSpec(rec record) {
	c.CronExpression = getS(rec, "CronExpression")
	c.TimeZone = getS(rec, "TimeZoneId")
}

func (c *DailyCalendar) marshalSpec(rec record) {
	rec["RangeStart"] = attrN(int64(c.RangeStart))
	rec["RangeEnd"] = attrN(int64(c.RangeEnd))
	rec["InvertTimeRange"] = attrBool(c.InvertTimeRange)
}

func (c *DailyCalendar) unmarshalSpec(rec record) {
	c.RangeStart = int(getN(rec, "RangeStart"))
	c.RangeEnd = int(getN(rec, "RangeEnd"))
	c.InvertTimeRange = getBool(rec, "InvertTimeRange")
}

func (c *HolidayCalendar) marshalSpec(rec record) {
	marshalDates(rec, "ExcludedDates", c.ExcludedDates)
}

func (c *HolidayCalendar) unmarshalSpec(rec record) {
	c.ExcludedDates = unmarshalDates(rec, "ExcludedDates")
}

func (c *MonthlyCalendar) marshalSpec(rec record) {
	packed := int64(0)
	for _, d := range c.ExcludedDays {
		if d >= 1 && d <= 31 {
			packed |= 1 << uint(d)
		}
	}
	rec["ExcludedDays"] = attrN(packed)
}

func (c *MonthlyCalendar) unmarshalSpec(rec record) {
	c.ExcludedDays = nil
	packed := getN(rec, "ExcludedDays")
	for d := 1; d <= 31; d++ {
		if packed&(1<<uint(d)) != 0 {
			c.ExcludedDays = append(c.ExcludedDays, d)
		}
	}
}

func (c *WeeklyCalendar) marshalSpec(rec record) {
	packed := int64(0)
	for _, d := range c.ExcludedDays {
		packed |= 1 << uint(d)
	}
	rec["ExcludedDays"] = attrN(packed)
}

func (c *WeeklyCalendar) unmarshalSpec(rec record) {
	c.ExcludedDays = nil
	packed := getN(rec, "ExcludedDays")
	for d := time.Sunday; d <= time.Saturday; d++ {
		if packed&(1<<uint(d)) != 0 {
			c.ExcludedDays = append(c.ExcludedDays, d)
		}
	}
}

// TableName implements Entity.
func (c *Calendar) TableName() string { return TableCalendar }

// KeyRecord implements Entity.
func (c *Calendar) KeyRecord() storage.Record {
	return storage.Record{attrName: attrS(c.Name)}
}

// MarshalRecord implements Entity.
func (c *Calendar) MarshalRecord() (storage.Record, error) {
	if c.Spec == nil {
		return nil, fmt.Errorf("calendar %q has no spec", c.Name)
	}
	rec := storage.Record{
		attrName: attrS(c.Name),
		"Type":   attrS(c.Spec.calendarType()),
	}
	setOptS(rec, "Description", c.Description)
	c.Spec.marshalSpec(rec)
	return rec, nil
}

// UnmarshalRecord implements Entity.
func (c *Calendar) UnmarshalRecord(rec storage.Record) error {
	c.Name = getS(rec, attrName)
	c.Description = getS(rec, "Description")

	switch tag := getS(rec, "Type"); tag {
	case "AnnualCalendar":
		c.Spec = &AnnualCalendar{}
	case "CronCalendar":
		c.Spec = &CronCalendar{}
	case "DailyCalendar":
		c.Spec = &DailyCalendar{}
	case "HolidayCalendar":
		c.Spec = &HolidayCalendar{}
	case "MonthlyCalendar":
		c.Spec = &MonthlyCalendar{}
	case "WeeklyCalendar":
		c.Spec = &WeeklyCalendar{}
	default:
		return fmt.Errorf("unknown calendar type %q", tag)
	}
	c.Spec.unmarshalSpec(rec)
	return nil
}
