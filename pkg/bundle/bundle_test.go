package bundle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/dynastore/pkg/jobstore"
)

var buildNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const sampleYAML = `
version: 1
jobs:
  - name: nightly-report
    group: reporting
    job_type: com.example.ReportJob
    durable: true
    disallow_concurrent: true
    data:
      target: s3://bucket/reports
    triggers:
      - name: nightly
        group: reporting
        type: cron
        cron: "0 0 3 * * ?"
        timezone: America/New_York
        calendar: holidays
        misfire: fire-once-now
  - name: heartbeat
    triggers:
      - name: every-minute
        type: simple
        repeat_interval: 1m
        repeat_count: -1
calendars:
  - name: holidays
    type: holiday
    dates:
      - "2025-12-25"
      - "2026-01-01"
`

func TestLoadYAML(t *testing.T) {
	b, err := LoadFromBytes([]byte(sampleYAML), "bundle.yaml")
	require.NoError(t, err)

	assert.Equal(t, 1, b.Version)
	require.Len(t, b.Jobs, 2)
	require.Len(t, b.Calendars, 1)

	report := b.Jobs[0]
	assert.Equal(t, "reporting", report.Group)
	assert.True(t, report.DisallowConcurrent)
	assert.Equal(t, map[string]string{"target": "s3://bucket/reports"}, report.Data)

	// Omitted groups default.
	assert.Equal(t, jobstore.DefaultGroup, b.Jobs[1].Group)
	assert.Equal(t, jobstore.DefaultGroup, b.Jobs[1].Triggers[0].Group)
}

func TestLoadJSON(t *testing.T) {
	data := []byte(`{
		"version": 1,
		"jobs": [
			{"name": "j", "triggers": [{"name": "t", "type": "simple", "repeat_interval": "30s", "repeat_count": 3}]}
		]
	}`)

	b, err := LoadFromBytes(data, "bundle.json")
	require.NoError(t, err)
	require.Len(t, b.Jobs, 1)
	assert.Equal(t, "30s", b.Jobs[0].Triggers[0].RepeatInterval)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	data := []byte(`
version: 1
jobs:
  - name: j
    retries: 3
`)
	_, err := LoadFromBytes(data, "bundle.yaml")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestLoadRejectsUnknownTriggerType(t *testing.T) {
	data := []byte(`
version: 1
jobs:
  - name: j
    triggers:
      - name: t
        type: lunar
`)
	_, err := LoadFromBytes(data, "bundle.yaml")
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestLoadEmpty(t *testing.T) {
	_, err := LoadFromBytes(nil, "bundle.yaml")
	assert.Error(t, err)
}

func TestBuildTriggers(t *testing.T) {
	b, err := LoadFromBytes([]byte(sampleYAML), "bundle.yaml")
	require.NoError(t, err)

	sets, cals, err := b.Build(buildNow)
	require.NoError(t, err)
	require.Len(t, sets, 2)
	require.Len(t, cals, 1)

	cron, ok := sets[0].Triggers[0].(*jobstore.CronTrigger)
	require.True(t, ok)
	assert.Equal(t, "0 0 3 * * ?", cron.CronExpression)
	assert.Equal(t, "America/New_York", cron.TimeZone)
	assert.Equal(t, "holidays", cron.Core().CalendarName)
	assert.Equal(t, jobstore.MisfireFireOnceNow, cron.Core().Misfire)
	assert.True(t, cron.StartTime.Equal(buildNow), "unset start_time defaults to now")

	simple, ok := sets[1].Triggers[0].(*jobstore.SimpleTrigger)
	require.True(t, ok)
	assert.Equal(t, time.Minute, simple.RepeatInterval)
	assert.Equal(t, jobstore.RepeatIndefinitely, simple.RepeatCount)

	holiday, ok := cals[0].Spec.(*jobstore.HolidayCalendar)
	require.True(t, ok)
	assert.Len(t, holiday.ExcludedDates, 2)
}

func TestBuildDailyIntervalTrigger(t *testing.T) {
	spec := TriggerSpec{
		Name:           "office-hours",
		Group:          "ops",
		Type:           "daily-interval",
		Interval:       30,
		IntervalUnit:   "minute",
		StartTimeOfDay: "09:00",
		EndTimeOfDay:   "17:30:00",
		DaysOfWeek:     []string{"monday", "friday"},
		TimeZone:       "Europe/Berlin",
	}

	trig, err := spec.build(jobstore.NewJobKey("j"), buildNow)
	require.NoError(t, err)

	dt, ok := trig.(*jobstore.DailyTimeIntervalTrigger)
	require.True(t, ok)
	assert.Equal(t, 30, dt.RepeatInterval)
	assert.Equal(t, jobstore.IntervalMinute, dt.RepeatIntervalUnit)
	assert.Equal(t, 9*3600, dt.StartTimeOfDay)
	assert.Equal(t, 17*3600+30*60, dt.EndTimeOfDay)
	assert.Equal(t, []time.Weekday{time.Monday, time.Friday}, dt.DaysOfWeek)
	assert.Equal(t, jobstore.RepeatIndefinitely, dt.RepeatCount)
	assert.Equal(t, "Europe/Berlin", dt.TimeZone)
}

func TestBuildRejectsInvalidSpecs(t *testing.T) {
	tests := []struct {
		name string
		spec TriggerSpec
	}{
		{
			name: "bad start time",
			spec: TriggerSpec{Name: "t", Type: "simple", StartTime: "tomorrow-ish"},
		},
		{
			name: "bad repeat interval",
			spec: TriggerSpec{Name: "t", Type: "simple", RepeatInterval: "fortnight"},
		},
		{
			name: "bad cron expression",
			spec: TriggerSpec{Name: "t", Type: "cron", Cron: "every tuesday"},
		},
		{
			name: "bad misfire",
			spec: TriggerSpec{Name: "t", Type: "simple", Misfire: "panic"},
		},
		{
			name: "bad interval unit",
			spec: TriggerSpec{Name: "t", Type: "calendar-interval", Interval: 1, IntervalUnit: "fortnight"},
		},
		{
			name: "daily interval with day unit",
			spec: TriggerSpec{Name: "t", Type: "daily-interval", Interval: 1, IntervalUnit: "day"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.spec.build(jobstore.NewJobKey("j"), buildNow)
			assert.Error(t, err)
		})
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "", want: 0},
		{in: "09:00", want: 9 * 3600},
		{in: "23:59:59", want: 24*3600 - 1},
		{in: "00:00:30", want: 30},
		{in: "24:00", wantErr: true},
		{in: "9", wantErr: true},
		{in: "09:xx", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseTimeOfDay(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestValidationErrorsUnwrap(t *testing.T) {
	errs := ValidationErrors{{Path: "/jobs/0", Message: "missing name"}}
	assert.True(t, errors.Is(errs, ErrValidationFailed))
	assert.Contains(t, errs.Error(), "missing name")
}
