package notification

import "time"

// EventType represents a notification event type.
type EventType int

const (
	EventTrackChanged EventType = iota // Current track advanced
	EventRequestState                  // Remote request changed state
	EventCycleState                    // Refresh cycle changed state
	EventStoreChanged                  // Persisted store was rewritten outside the daemon
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackChanged:
		return "track_changed"
	case EventRequestState:
		return "request_state"
	case EventCycleState:
		return "cycle_state"
	case EventStoreChanged:
		return "store_changed"
	default:
		return "unknown"
	}
}

// Event is a notification delivered to subscribers.
// SequenceNo is assigned by Broadcast.
type Event struct {
	Type       EventType
	SequenceNo uint64
	Timestamp  time.Time
	Payload    any
}

// NewEvent creates an event stamped with the current time.
func NewEvent(typ EventType, payload any) *Event {
	return &Event{
		Type:      typ,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}
