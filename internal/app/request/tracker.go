// Package request tracks the single in-flight remote request and its cancellation.
package request

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// State represents the state of a remote request.
type State int

const (
	StateNone      State = iota // No request made yet
	StateRunning                // Request in flight
	StateCanceled               // Canceled before completion
	StateFailed                 // Ended with an error
	StateCompleted              // Ended successfully
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateRunning:
		return "running"
	case StateCanceled:
		return "canceled"
	case StateFailed:
		return "failed"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a request.
func (s State) Terminal() bool {
	return s == StateCanceled || s == StateFailed || s == StateCompleted
}

// Type represents the kind of remote request.
type Type int

const (
	TypeNone      Type = iota
	TypeArtist         // Artist track list
	TypeSoundwave      // Soundwave image download
)

// String returns the string representation of the request type.
func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeArtist:
		return "artist"
	case TypeSoundwave:
		return "soundwave"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time copy of the tracker state.
type Snapshot struct {
	State     State
	Type      Type
	Payload   string
	UpdatedAt time.Time
}

// Listener receives every state transition.
type Listener func(Snapshot)

// Tracker holds the state of at most one running request.
type Tracker struct {
	mu       sync.Mutex
	state    State
	typ      Type
	payload  string
	updated  time.Time
	cancel   context.CancelFunc
	listener Listener
}

// NewTracker creates a tracker. listener may be nil.
func NewTracker(listener Listener) *Tracker {
	return &Tracker{
		state:    StateNone,
		typ:      TypeNone,
		updated:  time.Now(),
		listener: listener,
	}
}

// Start marks a request of typ as running and returns the context it must use.
// It returns false when another request is still running.
func (t *Tracker) Start(ctx context.Context, typ Type) (context.Context, bool) {
	t.mu.Lock()
	if t.state == StateRunning {
		t.mu.Unlock()
		zlog.Warn().Msgf("request already running: type=%s", t.typ)
		return ctx, false
	}

	reqCtx, cancel := context.WithCancel(ctx)
	t.state = StateRunning
	t.typ = typ
	t.payload = ""
	t.cancel = cancel
	t.updated = time.Now()
	snap := t.snapshotLocked()
	t.mu.Unlock()

	zlog.Debug().Msgf("request started: type=%s", typ)
	t.publish(snap)
	return reqCtx, true
}

// Finish records the terminal state of the running request. A request that was
// canceled stays canceled. Calls without a running request are ignored.
func (t *Tracker) Finish(state State, payload string) {
	if !state.Terminal() {
		state = StateFailed
	}

	t.mu.Lock()
	if t.state != StateRunning {
		t.mu.Unlock()
		return
	}
	t.state = state
	t.payload = payload
	t.updated = time.Now()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	zlog.Debug().Msgf("request finished: type=%s state=%s", snap.Type, snap.State)
	t.publish(snap)
}

// Cancel cancels the running request. It returns false when nothing is running.
func (t *Tracker) Cancel() bool {
	t.mu.Lock()
	if t.state != StateRunning {
		t.mu.Unlock()
		return false
	}
	t.state = StateCanceled
	t.updated = time.Now()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	snap := t.snapshotLocked()
	t.mu.Unlock()

	zlog.Info().Msgf("request canceled: type=%s", snap.Type)
	t.publish(snap)
	return true
}

// Snapshot returns the current tracker state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	return Snapshot{
		State:     t.state,
		Type:      t.typ,
		Payload:   t.payload,
		UpdatedAt: t.updated,
	}
}

func (t *Tracker) publish(s Snapshot) {
	if t.listener != nil {
		t.listener(s)
	}
}
