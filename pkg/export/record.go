// Package export streams scheduling data as newline-delimited JSON.
//
// Output is structured as typed record envelopes containing jobs,
// triggers, calendars, and a closing summary. Each line is a
// self-contained JSON object that can be parsed independently, so
// exports pipe cleanly into jq, log shippers, or diff tooling.
package export

import (
	"encoding/json"
	"time"
)

// Record type constants.
const (
	TypeJob      = "job"
	TypeTrigger  = "trigger"
	TypeCalendar = "calendar"
	TypeSummary  = "summary"
)

// Record is the envelope wrapping every exported line.
type Record struct {
	// Type identifies the payload kind (job, trigger, calendar, summary).
	Type string `json:"type"`

	// TS is when the record was written.
	TS time.Time `json:"ts"`

	// Source identifies the exporting scheduler instance.
	Source string `json:"source,omitempty"`

	// Data is the typed payload.
	Data json.RawMessage `json:"data"`
}

// JobRecord is the exported form of one job. Field names line up with
// the bundle file format so exports read like declarative specs.
type JobRecord struct {
	Name               string            `json:"name"`
	Group              string            `json:"group"`
	Description        string            `json:"description,omitempty"`
	JobType            string            `json:"job_type,omitempty"`
	Durable            bool              `json:"durable"`
	RequestsRecovery   bool              `json:"requests_recovery,omitempty"`
	DisallowConcurrent bool              `json:"disallow_concurrent,omitempty"`
	PersistJobData     bool              `json:"persist_job_data,omitempty"`
	Data               map[string]string `json:"data,omitempty"`
}

// TriggerRecord is the exported form of one trigger, including the
// live protocol state an operator diagnoses with.
type TriggerRecord struct {
	Name        string `json:"name"`
	Group       string `json:"group"`
	JobName     string `json:"job_name"`
	JobGroup    string `json:"job_group"`
	Type        string `json:"trigger_type"`
	State       string `json:"state"`
	Description string `json:"description,omitempty"`
	Calendar    string `json:"calendar,omitempty"`
	Priority    int    `json:"priority"`
	Misfire     string `json:"misfire"`

	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	NextFireTime     *time.Time `json:"next_fire_time,omitempty"`
	PreviousFireTime *time.Time `json:"previous_fire_time,omitempty"`

	// Owner is the scheduler instance holding the trigger while it is
	// acquired or executing.
	Owner string `json:"owner,omitempty"`

	// Schedule carries the type-specific schedule fields.
	Schedule map[string]any `json:"schedule,omitempty"`
}

// CalendarRecord is the exported form of one calendar.
type CalendarRecord struct {
	Name        string `json:"name"`
	Type        string `json:"calendar_type"`
	Description string `json:"description,omitempty"`
}

// SummaryRecord closes an export with totals.
type SummaryRecord struct {
	Jobs                int      `json:"jobs"`
	Triggers            int      `json:"triggers"`
	Calendars           int      `json:"calendars"`
	PausedTriggerGroups []string `json:"paused_trigger_groups,omitempty"`
	DurationMs          int64    `json:"duration_ms"`
}
