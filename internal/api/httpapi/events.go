package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cloudwave/internal/app/notification"
	"github.com/osa030/cloudwave/internal/app/request"
	"github.com/osa030/cloudwave/internal/domain/track"
)

const keepAliveInterval = 30 * time.Second

var errStreamClosed = errors.New("event stream closed")

// sseStream queues events for one SSE client.
type sseStream struct {
	events chan *notification.Event
	done   <-chan struct{}
}

func (s *sseStream) Send(e *notification.Event) error {
	select {
	case s.events <- e:
		return nil
	case <-s.done:
		return errStreamClosed
	}
}

// WireEvent is the data of one server-sent event.
type WireEvent struct {
	Type       string    `json:"type"`
	SequenceNo uint64    `json:"sequence_no"`
	Timestamp  time.Time `json:"timestamp"`
	Payload    any       `json:"payload,omitempty"`
}

func newWireEvent(e *notification.Event) WireEvent {
	payload := e.Payload
	switch p := e.Payload.(type) {
	case track.Track:
		payload = newTrackInfo(p, true)
	case request.Snapshot:
		payload = newRequestInfo(p)
	}
	return WireEvent{
		Type:       e.Type.String(),
		SequenceNo: e.SequenceNo,
		Timestamp:  e.Timestamp,
		Payload:    payload,
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	if s.notifier == nil {
		writeError(w, http.StatusServiceUnavailable, "events unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	stream := &sseStream{
		events: make(chan *notification.Event, 16),
		done:   r.Context().Done(),
	}
	id := s.notifier.Subscribe(stream)
	defer s.notifier.Unsubscribe(id)
	zlog.Info().Msgf("event subscriber connected: id=%s remote=%s", id, r.RemoteAddr)

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			zlog.Info().Msgf("event subscriber disconnected: id=%s", id)
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e := <-stream.events:
			data, err := json.Marshal(newWireEvent(e))
			if err != nil {
				zlog.Error().Err(err).Msgf("failed to encode event: type=%s", e.Type)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", e.SequenceNo, e.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
