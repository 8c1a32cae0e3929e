// Package logic contains the barrier sequencing state machine.
// It has no hardware dependencies: the actuator and the timer service are
// injected, and event timestamps come from an injectable clock.
package logic

import (
	"errors"
	"fmt"
	"time"
)

// Position is the barrier arm position.
type Position string

const (
	PositionClosed Position = "CLOSED"
	PositionOpen   Position = "OPEN"
)

// Transition marks a crossing that is waiting for the opposite sensor.
type Transition string

const (
	TransitionNone Transition = "NONE"
	EntryPending   Transition = "ENTRY_PENDING"
	ExitPending    Transition = "EXIT_PENDING"
)

// EventType identifies a barrier event.
type EventType string

const (
	EventEntryStarted   EventType = "ENTRY_STARTED"
	EventEntryCompleted EventType = "ENTRY_COMPLETED"
	EventEntryTimeout   EventType = "ENTRY_TIMEOUT"
	EventExitStarted    EventType = "EXIT_STARTED"
	EventExitCompleted  EventType = "EXIT_COMPLETED"
	EventExitTimeout    EventType = "EXIT_TIMEOUT"
	EventManualOpen     EventType = "MANUAL_OPEN"
	EventManualClose    EventType = "MANUAL_CLOSE"
	EventAutoClose      EventType = "AUTO_CLOSE"
	EventActuatorFault  EventType = "ACTUATOR_FAULT"
)

// Event is a barrier state change to be published.
type Event struct {
	Timestamp  time.Time
	Type       EventType
	SequenceID string // empty outside an entry, exit or manual-open sequence
	Position   Position
	Pending    Transition
	Count      int
	Detail     string
}

// EventCounts tracks the number of each outcome since startup.
type EventCounts struct {
	Entries       int
	Exits         int
	EntryTimeouts int
	ExitTimeouts  int
	ManualOpens   int
	ManualCloses  int
	AutoCloses    int
	Faults        int
}

// Fault describes the most recent actuator failure.
type Fault struct {
	Time    time.Time
	Command string // "open" or "close"
	Message string
}

// Snapshot is a consistent point-in-time view of the machine.
type Snapshot struct {
	Position         Position
	Pending          Transition
	Count            int
	SequenceID       string
	Counts           EventCounts
	LastFault        *Fault
	EntryTimerArmed  bool
	ExitTimerArmed   bool
	ManualTimerArmed bool
}

// ErrActuatorFault is matched by every error caused by a failed actuator
// command.
var ErrActuatorFault = errors.New("actuator fault")

// FaultError reports a failed actuator command. The barrier position was
// left at its last confirmed value.
type FaultError struct {
	Command string
	Err     error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("actuator fault on %s: %v", e.Command, e.Err)
}

// Unwrap exposes both ErrActuatorFault and the hardware error.
func (e *FaultError) Unwrap() []error {
	return []error{ErrActuatorFault, e.Err}
}
