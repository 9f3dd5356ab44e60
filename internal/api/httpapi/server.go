// Package httpapi serves the status and control API of the refresh daemon.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/cloudwave/internal/app/notification"
	"github.com/osa030/cloudwave/internal/app/refresh"
	"github.com/osa030/cloudwave/internal/app/request"
	"github.com/osa030/cloudwave/internal/domain/track"
	"github.com/osa030/cloudwave/internal/infra/metrics"
	"github.com/osa030/cloudwave/internal/infra/storage"
)

// Refresher is the orchestrator surface exposed over HTTP.
type Refresher interface {
	Trigger(ctx context.Context) refresh.Result
	Cancel() bool
	State() refresh.State
	LastResult() refresh.Result
	GateEnabled() bool
	RequestSnapshot() request.Snapshot
	Artist() string
}

// StoreReader reads the persisted track store.
type StoreReader interface {
	Load() (*track.Store, error)
	ImagePathFor(trackID int64) string
	HasImage(trackID int64) bool
}

// Option configures a Server.
type Option func(*Server)

// WithAdminToken enables the mutating endpoints.
func WithAdminToken(token string) Option {
	return func(s *Server) {
		s.adminToken = token
	}
}

// WithMetrics serves the registry on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server is the HTTP API.
type Server struct {
	// ctx bounds cycles started by POST /api/refresh without wait.
	ctx        context.Context
	refresher  Refresher
	store      StoreReader
	notifier   *notification.Manager
	metrics    *metrics.Metrics
	adminToken string
}

// New creates the API server.
func New(ctx context.Context, refresher Refresher, store StoreReader, notifier *notification.Manager, opts ...Option) *Server {
	s := &Server{
		ctx:       ctx,
		refresher: refresher,
		store:     store,
		notifier:  notifier,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routes of the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/track/current", s.handleCurrentTrack)
	mux.HandleFunc("GET /api/track/current/soundwave", s.handleCurrentSoundwave)
	mux.HandleFunc("POST /api/refresh", requireAdmin(s.adminToken, s.handleRefresh))
	mux.HandleFunc("POST /api/cancel", requireAdmin(s.adminToken, s.handleCancel))
	mux.HandleFunc("GET /api/events", s.handleEvents)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// NewHTTPServer wraps the API in an h2c (HTTP/2 cleartext) server.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := Status{
		Artist:      s.refresher.Artist(),
		State:       s.refresher.State().String(),
		GateEnabled: s.refresher.GateEnabled(),
		Request:     newRequestInfo(s.refresher.RequestSnapshot()),
	}
	if s.notifier != nil {
		status.Subscribers = s.notifier.SubscriberCount()
	}
	if last := s.refresher.LastResult(); !last.At.IsZero() {
		status.LastResult = newResultInfo(last)
	}

	st, err := s.store.Load()
	switch {
	case err == nil:
		status.TrackCount = len(st.Tracks)
		if cur, ok := st.CurrentTrack(); ok {
			status.CurrentTrack = newTrackInfo(cur, s.store.HasImage(cur.ID))
		}
		if next, ok := st.NextTrack(); ok {
			status.NextTrack = newTrackInfo(next, s.store.HasImage(next.ID))
		}
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrCorrupt):
	default:
		zlog.Error().Err(err).Msg("failed to load track store for status")
		writeError(w, http.StatusInternalServerError, "failed to load track store")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (s *Server) currentTrack(w http.ResponseWriter) (track.Track, bool) {
	st, err := s.store.Load()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrCorrupt) {
			writeError(w, http.StatusNotFound, "no track store")
			return track.Track{}, false
		}
		writeError(w, http.StatusInternalServerError, "failed to load track store")
		return track.Track{}, false
	}

	cur, ok := st.CurrentTrack()
	if !ok {
		writeError(w, http.StatusNotFound, "no current track")
		return track.Track{}, false
	}
	return cur, true
}

func (s *Server) handleCurrentTrack(w http.ResponseWriter, r *http.Request) {
	cur, ok := s.currentTrack(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newTrackInfo(cur, s.store.HasImage(cur.ID)))
}

func (s *Server) handleCurrentSoundwave(w http.ResponseWriter, r *http.Request) {
	cur, ok := s.currentTrack(w)
	if !ok {
		return
	}
	if !s.store.HasImage(cur.ID) {
		writeError(w, http.StatusNotFound, "soundwave not cached")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, s.store.ImagePathFor(cur.ID))
}

// handleRefresh starts a cycle. With ?wait=true it responds with the result,
// otherwise it responds 202 once the cycle is started.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher.State() == refresh.StateRunning {
		writeError(w, http.StatusConflict, "refresh already running")
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		res := s.refresher.Trigger(r.Context())
		code := http.StatusOK
		if res.Skipped {
			code = http.StatusConflict
		}
		writeJSON(w, code, newResultInfo(res))
		return
	}

	go s.refresher.Trigger(s.ctx)
	zlog.Info().Msgf("refresh requested over API: remote=%s", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	canceled := s.refresher.Cancel()
	writeJSON(w, http.StatusOK, map[string]bool{"canceled": canceled})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Debug().Msgf("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}
