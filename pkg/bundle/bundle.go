// Package bundle loads declarative scheduling data (jobs, triggers,
// calendars) from YAML or JSON files and applies it to a job store.
package bundle

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/3leaps/dynastore/pkg/jobstore"
)

// Bundle is the file-level document.
type Bundle struct {
	Version int `yaml:"version" json:"version"`

	// Replace allows overwriting jobs, triggers, and calendars that
	// already exist in the store.
	Replace bool `yaml:"replace" json:"replace"`

	Jobs      []JobSpec      `yaml:"jobs" json:"jobs"`
	Calendars []CalendarSpec `yaml:"calendars" json:"calendars"`
}

// JobSpec declares one job and its triggers.
type JobSpec struct {
	Name               string            `yaml:"name" json:"name"`
	Group              string            `yaml:"group" json:"group"`
	Description        string            `yaml:"description" json:"description"`
	JobType            string            `yaml:"job_type" json:"job_type"`
	Durable            bool              `yaml:"durable" json:"durable"`
	RequestsRecovery   bool              `yaml:"requests_recovery" json:"requests_recovery"`
	DisallowConcurrent bool              `yaml:"disallow_concurrent" json:"disallow_concurrent"`
	PersistJobData     bool              `yaml:"persist_job_data" json:"persist_job_data"`
	Data               map[string]string `yaml:"data" json:"data"`
	Triggers           []TriggerSpec     `yaml:"triggers" json:"triggers"`
}

// TriggerSpec declares one trigger of any supported type.
type TriggerSpec struct {
	Name        string `yaml:"name" json:"name"`
	Group       string `yaml:"group" json:"group"`
	Type        string `yaml:"type" json:"type"`
	Description string `yaml:"description" json:"description"`
	Calendar    string `yaml:"calendar" json:"calendar"`
	Priority    *int   `yaml:"priority" json:"priority"`
	Misfire     string `yaml:"misfire" json:"misfire"`
	StartTime   string `yaml:"start_time" json:"start_time"`
	EndTime     string `yaml:"end_time" json:"end_time"`

	// cron
	Cron     string `yaml:"cron" json:"cron"`
	TimeZone string `yaml:"timezone" json:"timezone"`

	// simple
	RepeatCount    *int   `yaml:"repeat_count" json:"repeat_count"`
	RepeatInterval string `yaml:"repeat_interval" json:"repeat_interval"`

	// calendar-interval / daily-interval
	Interval     int    `yaml:"interval" json:"interval"`
	IntervalUnit string `yaml:"interval_unit" json:"interval_unit"`

	// daily-interval
	StartTimeOfDay string   `yaml:"start_time_of_day" json:"start_time_of_day"`
	EndTimeOfDay   string   `yaml:"end_time_of_day" json:"end_time_of_day"`
	DaysOfWeek     []string `yaml:"days_of_week" json:"days_of_week"`
}

// CalendarSpec declares one calendar of any supported type.
type CalendarSpec struct {
	Name        string   `yaml:"name" json:"name"`
	Type        string   `yaml:"type" json:"type"`
	Description string   `yaml:"description" json:"description"`
	Dates       []string `yaml:"dates" json:"dates"`
	Cron        string   `yaml:"cron" json:"cron"`
	TimeZone    string   `yaml:"timezone" json:"timezone"`
	RangeStart  string   `yaml:"range_start" json:"range_start"`
	RangeEnd    string   `yaml:"range_end" json:"range_end"`
	Invert      bool     `yaml:"invert" json:"invert"`
	DaysOfMonth []int    `yaml:"days_of_month" json:"days_of_month"`
	DaysOfWeek  []string `yaml:"days_of_week" json:"days_of_week"`
}

// ApplyDefaults fills optional fields with their documented defaults.
func (b *Bundle) ApplyDefaults() {
	if b.Version == 0 {
		b.Version = 1
	}
	for i := range b.Jobs {
		job := &b.Jobs[i]
		if job.Group == "" {
			job.Group = jobstore.DefaultGroup
		}
		for j := range job.Triggers {
			trig := &job.Triggers[j]
			if trig.Group == "" {
				trig.Group = jobstore.DefaultGroup
			}
		}
	}
}

// Build converts the bundle into store entities. The current time
// seeds trigger start times that the bundle leaves unset.
func (b *Bundle) Build(now time.Time) ([]jobstore.JobWithTriggers, []*jobstore.Calendar, error) {
	sets := make([]jobstore.JobWithTriggers, 0, len(b.Jobs))
	for i := range b.Jobs {
		set, err := b.Jobs[i].build(now)
		if err != nil {
			return nil, nil, err
		}
		sets = append(sets, set)
	}

	cals := make([]*jobstore.Calendar, 0, len(b.Calendars))
	for i := range b.Calendars {
		cal, err := b.Calendars[i].build()
		if err != nil {
			return nil, nil, err
		}
		cals = append(cals, cal)
	}
	return sets, cals, nil
}

func (j *JobSpec) build(now time.Time) (jobstore.JobWithTriggers, error) {
	jobKey := jobstore.JobKey{Name: j.Name, Group: j.Group}
	detail := &jobstore.JobDetail{
		Key:                           jobKey,
		Description:                   j.Description,
		JobType:                       j.JobType,
		JobData:                       j.Data,
		Durable:                       j.Durable,
		RequestsRecovery:              j.RequestsRecovery,
		ConcurrentExecutionDisallowed: j.DisallowConcurrent,
		PersistJobDataAfterExecution:  j.PersistJobData,
	}

	triggers := make([]jobstore.Trigger, 0, len(j.Triggers))
	for i := range j.Triggers {
		t, err := j.Triggers[i].build(jobKey, now)
		if err != nil {
			return jobstore.JobWithTriggers{}, fmt.Errorf("job %s: %w", jobKey, err)
		}
		triggers = append(triggers, t)
	}
	return jobstore.JobWithTriggers{Job: detail, Triggers: triggers}, nil
}

func (t *TriggerSpec) build(job jobstore.JobKey, now time.Time) (jobstore.Trigger, error) {
	key := jobstore.TriggerKey{Name: t.Name, Group: t.Group}

	start := now
	if t.StartTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.StartTime)
		if err != nil {
			return nil, fmt.Errorf("trigger %s: invalid start_time: %w", key, err)
		}
		start = parsed
	}

	var trig jobstore.Trigger
	switch t.Type {
	case "simple":
		interval := time.Second
		if t.RepeatInterval != "" {
			parsed, err := time.ParseDuration(t.RepeatInterval)
			if err != nil {
				return nil, fmt.Errorf("trigger %s: invalid repeat_interval: %w", key, err)
			}
			interval = parsed
		}
		count := 0
		if t.RepeatCount != nil {
			count = *t.RepeatCount
		}
		trig = jobstore.NewSimpleTrigger(key, job, start, interval, count)

	case "cron":
		ct := jobstore.NewCronTrigger(key, job, start, t.Cron)
		ct.TimeZone = t.TimeZone
		trig = ct

	case "calendar-interval":
		unit, err := parseIntervalUnit(t.IntervalUnit)
		if err != nil {
			return nil, fmt.Errorf("trigger %s: %w", key, err)
		}
		ct := jobstore.NewCalendarIntervalTrigger(key, job, start, unit, t.Interval)
		ct.TimeZone = t.TimeZone
		trig = ct

	case "daily-interval":
		dt, err := t.buildDailyInterval(key, job, start)
		if err != nil {
			return nil, err
		}
		trig = dt

	default:
		return nil, fmt.Errorf("trigger %s: unknown type %q", key, t.Type)
	}

	core := trig.Core()
	core.Description = t.Description
	core.CalendarName = t.Calendar
	if t.Priority != nil {
		core.Priority = *t.Priority
	}

	misfire, err := parseMisfire(t.Misfire)
	if err != nil {
		return nil, fmt.Errorf("trigger %s: %w", key, err)
	}
	core.Misfire = misfire

	if t.EndTime != "" {
		end, err := time.Parse(time.RFC3339, t.EndTime)
		if err != nil {
			return nil, fmt.Errorf("trigger %s: invalid end_time: %w", key, err)
		}
		core.EndTime = &end
	}

	if err := trig.Validate(); err != nil {
		return nil, fmt.Errorf("trigger %s: %w", key, err)
	}
	return trig, nil
}

func (t *TriggerSpec) buildDailyInterval(key jobstore.TriggerKey, job jobstore.JobKey, start time.Time) (*jobstore.DailyTimeIntervalTrigger, error) {
	unit, err := parseIntervalUnit(t.IntervalUnit)
	if err != nil {
		return nil, fmt.Errorf("trigger %s: %w", key, err)
	}

	startOfDay, err := parseTimeOfDay(t.StartTimeOfDay)
	if err != nil {
		return nil, fmt.Errorf("trigger %s: invalid start_time_of_day: %w", key, err)
	}
	endOfDay, err := parseTimeOfDay(t.EndTimeOfDay)
	if err != nil {
		return nil, fmt.Errorf("trigger %s: invalid end_time_of_day: %w", key, err)
	}

	days, err := parseWeekdays(t.DaysOfWeek)
	if err != nil {
		return nil, fmt.Errorf("trigger %s: %w", key, err)
	}

	count := jobstore.RepeatIndefinitely
	if t.RepeatCount != nil {
		count = *t.RepeatCount
	}

	dt := &jobstore.DailyTimeIntervalTrigger{
		RepeatInterval:     t.Interval,
		RepeatIntervalUnit: unit,
		StartTimeOfDay:     startOfDay,
		EndTimeOfDay:       endOfDay,
		DaysOfWeek:         days,
		RepeatCount:        count,
		TimeZone:           t.TimeZone,
	}
	core := dt.Core()
	core.Key = key
	core.Job = job
	core.StartTime = start
	core.Priority = jobstore.DefaultPriority
	return dt, nil
}

func (c *CalendarSpec) build() (*jobstore.Calendar, error) {
	cal := &jobstore.Calendar{
		Name:        c.Name,
		Description: c.Description,
	}

	switch c.Type {
	case "annual", "holiday":
		dates := make([]time.Time, 0, len(c.Dates))
		for _, raw := range c.Dates {
			d, err := time.Parse("2006-01-02", raw)
			if err != nil {
				return nil, fmt.Errorf("calendar %s: invalid date %q: %w", c.Name, raw, err)
			}
			dates = append(dates, d)
		}
		if c.Type == "annual" {
			cal.Spec = &jobstore.AnnualCalendar{ExcludedDays: dates}
		} else {
			cal.Spec = &jobstore.HolidayCalendar{ExcludedDates: dates}
		}

	case "cron":
		if c.Cron == "" {
			return nil, fmt.Errorf("calendar %s: cron expression required", c.Name)
		}
		cal.Spec = &jobstore.CronCalendar{CronExpression: c.Cron, TimeZone: c.TimeZone}

	case "daily":
		start, err := parseTimeOfDay(c.RangeStart)
		if err != nil {
			return nil, fmt.Errorf("calendar %s: invalid range_start: %w", c.Name, err)
		}
		end, err := parseTimeOfDay(c.RangeEnd)
		if err != nil {
			return nil, fmt.Errorf("calendar %s: invalid range_end: %w", c.Name, err)
		}
		cal.Spec = &jobstore.DailyCalendar{RangeStart: start, RangeEnd: end, InvertTimeRange: c.Invert}

	case "monthly":
		days := append([]int(nil), c.DaysOfMonth...)
		sort.Ints(days)
		cal.Spec = &jobstore.MonthlyCalendar{ExcludedDays: days}

	case "weekly":
		days, err := parseWeekdays(c.DaysOfWeek)
		if err != nil {
			return nil, fmt.Errorf("calendar %s: %w", c.Name, err)
		}
		cal.Spec = &jobstore.WeeklyCalendar{ExcludedDays: days}

	default:
		return nil, fmt.Errorf("calendar %s: unknown type %q", c.Name, c.Type)
	}
	return cal, nil
}

func parseMisfire(s string) (jobstore.MisfireInstruction, error) {
	switch s {
	case "", "smart":
		return jobstore.MisfireSmartPolicy, nil
	case "ignore":
		return jobstore.MisfireIgnore, nil
	case "fire-once-now":
		return jobstore.MisfireFireOnceNow, nil
	case "do-nothing":
		return jobstore.MisfireDoNothing, nil
	default:
		return 0, fmt.Errorf("unknown misfire instruction %q", s)
	}
}

func parseIntervalUnit(s string) (jobstore.IntervalUnit, error) {
	switch strings.ToLower(s) {
	case "", "second":
		return jobstore.IntervalSecond, nil
	case "minute":
		return jobstore.IntervalMinute, nil
	case "hour":
		return jobstore.IntervalHour, nil
	case "day":
		return jobstore.IntervalDay, nil
	case "week":
		return jobstore.IntervalWeek, nil
	case "month":
		return jobstore.IntervalMonth, nil
	case "year":
		return jobstore.IntervalYear, nil
	default:
		return "", fmt.Errorf("unknown interval unit %q", s)
	}
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseWeekdays(names []string) ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(names))
	for _, name := range names {
		day, ok := weekdayNames[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		out = append(out, day)
	}
	return out, nil
}

// parseTimeOfDay converts "HH:MM" or "HH:MM:SS" to seconds from
// midnight. Empty input is zero.
func parseTimeOfDay(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("expected HH:MM or HH:MM:SS, got %q", s)
	}
	total := 0
	scale := []int{3600, 60, 1}
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("expected HH:MM or HH:MM:SS, got %q", s)
		}
		total += n * scale[i]
	}
	if total >= 24*3600 {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return total, nil
}
