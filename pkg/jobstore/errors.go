package jobstore

import (
	"errors"
	"fmt"
)

// Sentinel errors for scheduler-facing operations.
var (
	// ErrCalendarReferenced indicates a calendar removal was refused
	// because triggers still reference it.
	ErrCalendarReferenced = errors.New("calendar is referenced by triggers")
)

// AlreadyExistsError indicates a store without replaceExisting hit an
// existing object. The stored object is left unchanged.
type AlreadyExistsError struct {
	// Kind is the object kind ("job", "trigger", "calendar").
	Kind string

	// Key is the object's "group.name" rendering, or a bare name.
	Key string
}

// Error implements the error interface.
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Kind, e.Key)
}

// IsAlreadyExists returns true if the error indicates a store conflict
// with an existing object.
func IsAlreadyExists(err error) bool {
	var target *AlreadyExistsError
	return errors.As(err, &target)
}

// MissingJobError indicates a trigger referenced a job that does not
// exist. The referential violation is surfaced, never auto-healed.
type MissingJobError struct {
	Trigger TriggerKey
	Job     JobKey
}

// Error implements the error interface.
func (e *MissingJobError) Error() string {
	return fmt.Sprintf("trigger %s references missing job %s", e.Trigger, e.Job)
}

// IsMissingJob returns true if the error indicates a referential
// violation between a trigger and its job.
func IsMissingJob(err error) bool {
	var target *MissingJobError
	return errors.As(err, &target)
}
