package refresh

import (
	"time"

	"github.com/osa030/cloudwave/internal/domain/track"
)

// State represents the orchestrator state.
type State int

const (
	StateIdle                   State = iota // No cycle has run yet
	StateRunning                             // A cycle is in progress
	StateCompleted                           // Last cycle succeeded
	StateFailed                              // Last cycle failed, next trigger retries
	StateWaitingForConnectivity              // Last cycle was deferred until the network is back
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateWaitingForConnectivity:
		return "waiting_for_connectivity"
	default:
		return "unknown"
	}
}

// Step identifies where a cycle ended.
type Step int

const (
	StepNone Step = iota
	StepLoad
	StepFetchArtist
	StepAdvance
	StepDownload
	StepSave
)

// String returns the string representation of the step.
func (s Step) String() string {
	switch s {
	case StepNone:
		return "none"
	case StepLoad:
		return "load"
	case StepFetchArtist:
		return "fetch_artist"
	case StepAdvance:
		return "advance"
	case StepDownload:
		return "download"
	case StepSave:
		return "save"
	default:
		return "unknown"
	}
}

// Result describes one Trigger call.
type Result struct {
	State        State
	Step         Step
	TrackChanged bool
	// Skipped is set when another cycle was already running.
	Skipped bool
	Track   *track.Track
	Err     error
	At      time.Time
}

// CycleEvent is the payload of cycle_state notifications.
type CycleEvent struct {
	State        string `json:"state"`
	Step         string `json:"step,omitempty"`
	TrackChanged bool   `json:"track_changed"`
	Error        string `json:"error,omitempty"`
}

func newCycleEvent(r Result) CycleEvent {
	ev := CycleEvent{
		State:        r.State.String(),
		TrackChanged: r.TrackChanged,
	}
	if r.Step != StepNone {
		ev.Step = r.Step.String()
	}
	if r.Err != nil {
		ev.Error = r.Err.Error()
	}
	return ev
}
