// Package refresh runs one track refresh cycle at a time: load the store, fetch
// the artist list when empty, make sure the next soundwave is cached and advance.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cloudwave/internal/app/gate"
	"github.com/osa030/cloudwave/internal/app/notification"
	"github.com/osa030/cloudwave/internal/app/request"
	"github.com/osa030/cloudwave/internal/domain/track"
	"github.com/osa030/cloudwave/internal/infra/connectivity"
	"github.com/osa030/cloudwave/internal/infra/metrics"
	"github.com/osa030/cloudwave/internal/infra/soundcloud"
	"github.com/osa030/cloudwave/internal/infra/storage"
)

var (
	// ErrBusy is returned by Reset while a cycle is running.
	ErrBusy = errors.New("refresh cycle in progress")
	// ErrNoTracks is reported when the artist has no usable tracks.
	ErrNoTracks = errors.New("artist has no tracks")
	// ErrRequestBusy is reported when the request tracker still holds a running request.
	ErrRequestBusy = errors.New("another remote request is running")
)

// Store is the persistence the orchestrator needs.
type Store interface {
	Load() (*track.Store, error)
	Save(*track.Store) error
	Delete() error
	ImagePathFor(trackID int64) string
	HasImage(trackID int64) bool
	PickNextRandom(*track.Store)
	Intn(n int) int
}

// Remote is the SoundCloud access the orchestrator needs.
type Remote interface {
	FetchArtistTracks(ctx context.Context, artistName string) ([]byte, error)
	DownloadFile(ctx context.Context, url, dest string, progress soundcloud.ProgressFunc) (int64, error)
}

// Broadcaster delivers notifications.
type Broadcaster interface {
	Broadcast(*notification.Event)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records cycle and request counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithBroadcaster sends track, cycle and request events.
func WithBroadcaster(b Broadcaster) Option {
	return func(o *Orchestrator) {
		o.notifier = b
	}
}

// WithProgress reports soundwave download progress.
func WithProgress(fn soundcloud.ProgressFunc) Option {
	return func(o *Orchestrator) {
		o.progress = fn
	}
}

// Orchestrator is the refresh state machine. At most one cycle runs at a time.
type Orchestrator struct {
	artist   string
	store    Store
	remote   Remote
	checker  connectivity.Checker
	gate     *gate.Gate
	requests *request.Tracker
	metrics  *metrics.Metrics
	notifier Broadcaster
	progress soundcloud.ProgressFunc

	mu    sync.Mutex
	state State
	last  Result
}

// New creates an orchestrator for artist. The connectivity gate is owned by the
// orchestrator and re-triggers a cycle when the network comes back.
func New(artist string, store Store, remote Remote, checker connectivity.Checker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		artist:  artist,
		store:   store,
		remote:  remote,
		checker: checker,
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}

	o.requests = request.NewTracker(o.onRequest)
	o.gate = gate.New(checker, func(ctx context.Context) {
		o.Trigger(ctx)
	}, gate.WithObserver(o.metrics.SetGateEnabled))
	return o
}

// Gate returns the connectivity gate driven by this orchestrator.
func (o *Orchestrator) Gate() *gate.Gate {
	return o.gate
}

// Requests returns the remote request tracker.
func (o *Orchestrator) Requests() *request.Tracker {
	return o.requests
}

// GateEnabled reports whether the orchestrator waits for connectivity.
func (o *Orchestrator) GateEnabled() bool {
	return o.gate.Enabled()
}

// RequestSnapshot returns the state of the last remote request.
func (o *Orchestrator) RequestSnapshot() request.Snapshot {
	return o.requests.Snapshot()
}

// Artist returns the configured artist.
func (o *Orchestrator) Artist() string {
	return o.artist
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastResult returns the result of the last finished cycle.
func (o *Orchestrator) LastResult() Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// Cancel cancels the in-flight remote request, if any.
func (o *Orchestrator) Cancel() bool {
	return o.requests.Cancel()
}

// Reset deletes the persisted store so the next cycle refetches the artist list.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateRunning {
		return ErrBusy
	}
	if err := o.store.Delete(); err != nil {
		return err
	}
	zlog.Info().Msgf("track store reset: artist=%s", o.artist)
	return nil
}

// Trigger runs one refresh cycle. If a cycle is already running it returns
// immediately with Skipped set.
func (o *Orchestrator) Trigger(ctx context.Context) Result {
	o.mu.Lock()
	if o.state == StateRunning {
		o.mu.Unlock()
		zlog.Debug().Msg("refresh already running, trigger skipped")
		return Result{State: StateRunning, Skipped: true, At: time.Now()}
	}
	o.state = StateRunning
	o.mu.Unlock()

	zlog.Info().Msgf("refresh cycle started: artist=%s", o.artist)
	o.broadcast(notification.EventCycleState, CycleEvent{State: StateRunning.String()})

	res := o.run(ctx)
	res.At = time.Now()

	o.mu.Lock()
	o.state = res.State
	o.last = res
	o.mu.Unlock()

	o.metrics.CycleFinished(res.State.String())
	o.logResult(res)
	o.broadcast(notification.EventCycleState, newCycleEvent(res))
	if res.TrackChanged && res.Track != nil {
		o.broadcast(notification.EventTrackChanged, *res.Track)
	}
	return res
}

func (o *Orchestrator) run(ctx context.Context) Result {
	s, err := o.load()
	if err != nil {
		return Result{State: StateFailed, Step: StepLoad, Err: err}
	}

	if s.IsEmpty() {
		return o.populate(ctx, s)
	}

	if _, ok := s.NextTrack(); !ok {
		o.store.PickNextRandom(s)
	}
	next, _ := s.NextTrack()

	if o.store.HasImage(next.ID) {
		zlog.Debug().Msgf("soundwave cached: track=%s", next)
		return o.advance(s)
	}

	if !o.checker.Online(ctx) {
		return o.waitForNetwork(StepDownload)
	}

	if err := o.download(ctx, next); err != nil {
		return Result{State: StateFailed, Step: StepDownload, Err: err}
	}
	return o.advance(s)
}

// load returns the persisted store, or a fresh one for the configured artist
// when none exists, it cannot be decoded, or it belongs to another artist.
func (o *Orchestrator) load() (*track.Store, error) {
	s, err := o.store.Load()
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		zlog.Info().Msgf("no track store yet, starting empty: artist=%s", o.artist)
		return track.NewStore(o.artist), nil
	case errors.Is(err, storage.ErrCorrupt):
		zlog.Warn().Err(err).Msg("track store unreadable, starting empty")
		return track.NewStore(o.artist), nil
	default:
		return nil, err
	}

	if s.ArtistName != o.artist {
		zlog.Info().Msgf("configured artist changed, discarding track list: from=%s to=%s", s.ArtistName, o.artist)
		return track.NewStore(o.artist), nil
	}
	return s, nil
}

// populate fills an empty store with the artist's tracks. It does not change
// the current track.
func (o *Orchestrator) populate(ctx context.Context, s *track.Store) Result {
	if !o.checker.Online(ctx) {
		return o.waitForNetwork(StepFetchArtist)
	}

	tracks, err := o.fetchArtist(ctx)
	if err != nil {
		return Result{State: StateFailed, Step: StepFetchArtist, Err: err}
	}

	s.ArtistName = o.artist
	s.SetTracks(tracks)
	o.store.PickNextRandom(s)

	if err := o.store.Save(s); err != nil {
		return Result{State: StateFailed, Step: StepSave, Err: err}
	}
	zlog.Info().Msgf("artist tracks stored: artist=%s count=%d next=%d", o.artist, len(s.Tracks), s.NextRandomIndex)
	return Result{State: StateCompleted, Step: StepFetchArtist}
}

func (o *Orchestrator) fetchArtist(ctx context.Context) ([]track.Track, error) {
	reqCtx, ok := o.requests.Start(ctx, request.TypeArtist)
	if !ok {
		return nil, ErrRequestBusy
	}

	data, err := o.remote.FetchArtistTracks(reqCtx, o.artist)
	if err != nil {
		o.finishRequest(err, "")
		return nil, err
	}

	tracks, err := soundcloud.ParseTracks(data)
	if err == nil && len(tracks) == 0 {
		err = errors.Wrapf(ErrNoTracks, "artist %s", o.artist)
	}
	if err != nil {
		o.finishRequest(err, "")
		return nil, err
	}

	o.finishRequest(nil, o.artist)
	return tracks, nil
}

func (o *Orchestrator) download(ctx context.Context, next track.Track) error {
	reqCtx, ok := o.requests.Start(ctx, request.TypeSoundwave)
	if !ok {
		return ErrRequestBusy
	}

	dest := o.store.ImagePathFor(next.ID)
	n, err := o.remote.DownloadFile(reqCtx, next.WaveformURL, dest, o.progress)
	if err != nil {
		o.finishRequest(err, "")
		return errors.Wrapf(err, "soundwave of track %d", next.ID)
	}

	o.metrics.SoundwaveDownloaded(n)
	o.finishRequest(nil, dest)
	return nil
}

// finishRequest closes the running request as completed or failed.
func (o *Orchestrator) finishRequest(err error, payload string) {
	if err != nil {
		o.requests.Finish(request.StateFailed, err.Error())
		return
	}
	o.requests.Finish(request.StateCompleted, payload)
}

func (o *Orchestrator) advance(s *track.Store) Result {
	if !s.Advance(o.store.Intn) {
		return Result{State: StateFailed, Step: StepAdvance, Err: errors.New("no next track to advance to")}
	}
	if err := o.store.Save(s); err != nil {
		return Result{State: StateFailed, Step: StepSave, Err: err}
	}

	current, _ := s.CurrentTrack()
	return Result{State: StateCompleted, Step: StepAdvance, TrackChanged: true, Track: &current}
}

func (o *Orchestrator) waitForNetwork(step Step) Result {
	o.gate.Enable()
	return Result{State: StateWaitingForConnectivity, Step: step}
}

func (o *Orchestrator) onRequest(s request.Snapshot) {
	if s.State.Terminal() {
		o.metrics.RequestFinished(s.Type.String(), s.State.String())
	}
	o.broadcast(notification.EventRequestState, s)
}

func (o *Orchestrator) broadcast(typ notification.EventType, payload any) {
	if o.notifier == nil {
		return
	}
	o.notifier.Broadcast(notification.NewEvent(typ, payload))
}

func (o *Orchestrator) logResult(r Result) {
	switch r.State {
	case StateCompleted:
		if r.TrackChanged && r.Track != nil {
			zlog.Info().Msgf("refresh cycle completed, track changed: track=%s", r.Track)
		} else {
			zlog.Info().Msgf("refresh cycle completed: step=%s", r.Step)
		}
	case StateWaitingForConnectivity:
		zlog.Info().Msgf("refresh cycle deferred until network is back: step=%s", r.Step)
	case StateFailed:
		zlog.Error().Msgf("refresh cycle failed: step=%s error=%v", r.Step, r.Err)
	}
}
