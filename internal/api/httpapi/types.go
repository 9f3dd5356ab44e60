package httpapi

import (
	"time"

	"github.com/osa030/cloudwave/internal/app/request"
	"github.com/osa030/cloudwave/internal/app/refresh"
	"github.com/osa030/cloudwave/internal/domain/track"
)

// TrackInfo is the JSON form of a track.
type TrackInfo struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	PermalinkURL string `json:"permalink_url"`
	WaveformURL  string `json:"waveform_url"`
	Cached       bool   `json:"cached"`
}

// RequestInfo is the JSON form of a request tracker snapshot.
type RequestInfo struct {
	State     string    `json:"state"`
	Type      string    `json:"type"`
	Payload   string    `json:"payload,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResultInfo is the JSON form of a refresh result.
type ResultInfo struct {
	State        string     `json:"state"`
	Step         string     `json:"step"`
	TrackChanged bool       `json:"track_changed"`
	Skipped      bool       `json:"skipped,omitempty"`
	Track        *TrackInfo `json:"track,omitempty"`
	Error        string     `json:"error,omitempty"`
	At           *time.Time `json:"at,omitempty"`
}

// Status is the response of GET /api/status.
type Status struct {
	Artist       string      `json:"artist"`
	State        string      `json:"state"`
	GateEnabled  bool        `json:"gate_enabled"`
	LastResult   *ResultInfo `json:"last_result,omitempty"`
	Request      RequestInfo `json:"request"`
	TrackCount   int         `json:"track_count"`
	CurrentTrack *TrackInfo  `json:"current_track,omitempty"`
	NextTrack    *TrackInfo  `json:"next_track,omitempty"`
	Subscribers  int         `json:"subscribers"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newTrackInfo(t track.Track, cached bool) *TrackInfo {
	return &TrackInfo{
		ID:           t.ID,
		Title:        t.Title,
		PermalinkURL: t.PermalinkURL,
		WaveformURL:  t.WaveformURL,
		Cached:       cached,
	}
}

func newRequestInfo(s request.Snapshot) RequestInfo {
	return RequestInfo{
		State:     s.State.String(),
		Type:      s.Type.String(),
		Payload:   s.Payload,
		UpdatedAt: s.UpdatedAt,
	}
}

func newResultInfo(r refresh.Result) *ResultInfo {
	info := &ResultInfo{
		State:        r.State.String(),
		Step:         r.Step.String(),
		TrackChanged: r.TrackChanged,
		Skipped:      r.Skipped,
	}
	if r.Track != nil {
		info.Track = newTrackInfo(*r.Track, true)
	}
	if r.Err != nil {
		info.Error = r.Err.Error()
	}
	if !r.At.IsZero() {
		at := r.At
		info.At = &at
	}
	return info
}
