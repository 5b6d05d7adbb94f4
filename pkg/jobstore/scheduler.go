package jobstore

import (
	"time"

	"github.com/3leaps/dynastore/pkg/storage"
)

// SchedulerState is the reported state of a scheduler instance.
type SchedulerState string

const (
	SchedulerStateRunning  SchedulerState = "Running"
	SchedulerStatePaused   SchedulerState = "Paused"
	SchedulerStateShutdown SchedulerState = "Shutdown"
)

// SchedulerInstance is a scheduler's expiring liveness record. Identity
// is InstanceID alone, so each instance has at most one record; the
// owning instance upserts it every acquisition cycle and any instance
// deletes it once expired.
type SchedulerInstance struct {
	InstanceID string
	Expires    time.Time
	State      SchedulerState
}

// Expired reports whether the lease has lapsed at the given instant.
func (s *SchedulerInstance) Expired(now time.Time) bool {
	return s.Expires.Before(now)
}

// TableName implements Entity.
func (s *SchedulerInstance) TableName() string { return TableScheduler }

// KeyRecord implements Entity.
func (s *SchedulerInstance) KeyRecord() storage.Record {
	return storage.Record{attrInstanceID: attrS(s.InstanceID)}
}

// MarshalRecord implements Entity.
func (s *SchedulerInstance) MarshalRecord() (storage.Record, error) {
	return storage.Record{
		attrInstanceID: attrS(s.InstanceID),
		"ExpiresUtc":   attrTime(s.Expires),
		attrState:      attrS(string(s.State)),
	}, nil
}

// UnmarshalRecord implements Entity.
func (s *SchedulerInstance) UnmarshalRecord(rec storage.Record) error {
	s.InstanceID = getS(rec, attrInstanceID)
	if t, ok := getTime(rec, "ExpiresUtc"); ok {
		s.Expires = t
	}
	s.State = SchedulerState(getS(rec, attrState))
	return nil
}
