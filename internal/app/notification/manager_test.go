package notification

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingStream struct {
	mu     sync.Mutex
	events []*Event
}

func (s *recordingStream) Send(e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingStream) received() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Event(nil), s.events...)
}

func TestEventType_String(t *testing.T) {
	tests := []struct {
		typ  EventType
		want string
	}{
		{EventTrackChanged, "track_changed"},
		{EventRequestState, "request_state"},
		{EventCycleState, "cycle_state"},
		{EventStoreChanged, "store_changed"},
		{EventType(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.typ.String())
	}
}

func TestManager_SubscribeAndBroadcast(t *testing.T) {
	m := NewManager()
	a, b := &recordingStream{}, &recordingStream{}

	idA := m.Subscribe(a)
	idB := m.Subscribe(b)
	assert.NotEqual(t, idA, idB)
	assert.Equal(t, 2, m.SubscriberCount())

	m.Broadcast(NewEvent(EventTrackChanged, "one"))
	m.Broadcast(NewEvent(EventCycleState, "completed"))

	for _, s := range []*recordingStream{a, b} {
		got := s.received()
		require.Len(t, got, 2)
		assert.Equal(t, EventTrackChanged, got[0].Type)
		assert.Equal(t, uint64(1), got[0].SequenceNo)
		assert.Equal(t, uint64(2), got[1].SequenceNo)
		assert.Equal(t, "completed", got[1].Payload)
	}

	m.Unsubscribe(idA)
	m.Broadcast(NewEvent(EventStoreChanged, nil))
	assert.Len(t, a.received(), 2)
	assert.Len(t, b.received(), 3)
}

func TestManager_BroadcastSlowSubscriber(t *testing.T) {
	m := NewManager()
	m.sendTimeout = 50 * time.Millisecond

	block := make(chan struct{})
	defer close(block)
	m.Subscribe(StreamFunc(func(*Event) error {
		<-block
		return nil
	}))
	fast := &recordingStream{}
	m.Subscribe(fast)
	m.Subscribe(StreamFunc(func(*Event) error {
		return errors.New("gone")
	}))

	start := time.Now()
	m.Broadcast(NewEvent(EventTrackChanged, nil))
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, fast.received(), 1)
}

func TestManager_BroadcastNil(t *testing.T) {
	m := NewManager()
	s := &recordingStream{}
	m.Subscribe(s)
	m.Broadcast(nil)
	assert.Empty(t, s.received())
}

func TestManager_Close(t *testing.T) {
	m := NewManager()
	m.Subscribe(&recordingStream{})
	m.Close()
	assert.Zero(t, m.SubscriberCount())
}
