package mend

// EventType identifies a lifecycle event emitted to an Observer.
type EventType string

const (
	EventCreated      EventType = "created"
	EventRetry        EventType = "retry"
	EventRevert       EventType = "revert"
	EventOutcome      EventType = "outcome"
	EventGroupOutcome EventType = "group_outcome"
)

// Event describes a task or group phase transition.
type Event struct {
	Type    EventType
	TaskID  string
	GroupID string
	// Attempt is the retry or revert attempt number, starting at 1.
	Attempt int
	// Size is the number of members, set on EventGroupOutcome.
	Size int
	// Rejected is set on EventRevert when the revert returned false.
	Rejected bool
	Outcome  Outcome
	Err      error
}

// Observer receives lifecycle events. Observe must not block; a panicking
// observer is ignored.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }
