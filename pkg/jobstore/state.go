package jobstore

// InternalState is the stored trigger state. The numeric values are
// part of the persisted record contract.
type InternalState int

const (
	// StateNone marks a trigger that does not exist.
	StateNone InternalState = 0

	// StatePaused triggers are not eligible for acquisition until the
	// trigger, its group, or its job's group is resumed.
	StatePaused InternalState = 2

	// StatePausedAndBlocked combines a pause with a concurrency block;
	// resume yields StateBlocked, unblock yields StatePaused.
	StatePausedAndBlocked InternalState = 3

	// StateComplete triggers have no remaining fire times.
	StateComplete InternalState = 4

	// StateError triggers were failed permanently by the scheduler.
	StateError InternalState = 5

	// StateBlocked triggers wait for a concurrency-disallowed job to
	// finish executing.
	StateBlocked InternalState = 6

	// StateWaiting triggers are eligible for acquisition.
	StateWaiting InternalState = 7

	// StateAcquired triggers are held by one scheduler instance pending
	// fire.
	StateAcquired InternalState = 8

	// StateExecuting triggers have fired and their job is running.
	StateExecuting InternalState = 9
)

// String returns the state name for logs.
func (s InternalState) String() string {
	switch s {
	case StateNone:
		return "None"
	case StatePaused:
		return "Paused"
	case StatePausedAndBlocked:
		return "PausedAndBlocked"
	case StateComplete:
		return "Complete"
	case StateError:
		return "Error"
	case StateBlocked:
		return "Blocked"
	case StateWaiting:
		return "Waiting"
	case StateAcquired:
		return "Acquired"
	case StateExecuting:
		return "Executing"
	default:
		return "Unknown"
	}
}

// TriggerState is the state reported to the scheduling framework. It
// collapses the two paused variants and the three live variants.
type TriggerState string

const (
	TriggerStateNone     TriggerState = "None"
	TriggerStateNormal   TriggerState = "Normal"
	TriggerStatePaused   TriggerState = "Paused"
	TriggerStateBlocked  TriggerState = "Blocked"
	TriggerStateComplete TriggerState = "Complete"
	TriggerStateError    TriggerState = "Error"
)

// External maps the stored state to the reported state.
func (s InternalState) External() TriggerState {
	switch s {
	case StateWaiting, StateAcquired, StateExecuting:
		return TriggerStateNormal
	case StatePaused, StatePausedAndBlocked:
		return TriggerStatePaused
	case StateBlocked:
		return TriggerStateBlocked
	case StateComplete:
		return TriggerStateComplete
	case StateError:
		return TriggerStateError
	default:
		return TriggerStateNone
	}
}
