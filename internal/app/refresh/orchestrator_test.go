package refresh

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/cloudwave/internal/app/notification"
	"github.com/osa030/cloudwave/internal/app/request"
	"github.com/osa030/cloudwave/internal/domain/track"
	"github.com/osa030/cloudwave/internal/infra/connectivity"
	"github.com/osa030/cloudwave/internal/infra/metrics"
	"github.com/osa030/cloudwave/internal/infra/soundcloud"
	"github.com/osa030/cloudwave/internal/infra/storage"
)

const testArtist = "heedthesound"

const threeTracks = `[
	{"id": 11, "title": "One", "permalink_url": "https://soundcloud.com/h/one", "waveform_url": "https://w1.sndcdn.com/11.png"},
	{"id": 12, "title": "Two", "permalink_url": "https://soundcloud.com/h/two", "waveform_url": "https://w1.sndcdn.com/12.png"},
	{"id": 13, "title": "Three", "permalink_url": "https://soundcloud.com/h/three", "waveform_url": "https://w1.sndcdn.com/13.png"}
]`

// fakeRemote serves a fixed artist list and writes fake images on download.
type fakeRemote struct {
	mu           sync.Mutex
	tracksJSON   string
	fetchErr     error
	downloadErr  error
	fetchCalls   int
	downloads    []string
	downloadHook func(ctx context.Context) error
}

func (f *fakeRemote) FetchArtistTracks(ctx context.Context, artistName string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return []byte(f.tracksJSON), nil
}

func (f *fakeRemote) DownloadFile(ctx context.Context, url, dest string, progress soundcloud.ProgressFunc) (int64, error) {
	f.mu.Lock()
	f.downloads = append(f.downloads, url)
	hook, downloadErr := f.downloadHook, f.downloadErr
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return 0, err
		}
	}
	if downloadErr != nil {
		return 0, downloadErr
	}
	if err := os.WriteFile(dest, []byte("\x89PNG\r\n\x1a\nfake"), 0644); err != nil {
		return 0, err
	}
	if progress != nil {
		progress(12, 12)
	}
	return 12, nil
}

func (f *fakeRemote) downloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.downloads)
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []*notification.Event
}

func (b *recordingBroadcaster) Broadcast(e *notification.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBroadcaster) count(typ notification.EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

type fixture struct {
	store    *storage.Manager
	remote   *fakeRemote
	checker  *connectivity.Static
	notifier *recordingBroadcaster
	metrics  *metrics.Metrics
	orch     *Orchestrator
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewManager(
		filepath.Join(dir, "soundwave_storage.json"),
		filepath.Join(dir, "soundwaves"),
		storage.WithRand(rand.New(rand.NewSource(7))),
	)
	require.NoError(t, err)

	f := &fixture{
		store:    store,
		remote:   &fakeRemote{tracksJSON: threeTracks},
		checker:  connectivity.NewStatic(online),
		notifier: &recordingBroadcaster{},
		metrics:  metrics.New(),
	}
	f.orch = New(testArtist, f.store, f.remote, f.checker,
		WithBroadcaster(f.notifier),
		WithMetrics(f.metrics),
	)
	return f
}

func (f *fixture) seed(t *testing.T, current, next int) *track.Store {
	t.Helper()
	s := track.NewStore(testArtist)
	for i := 0; i < 3; i++ {
		id := int64(11 + i)
		s.Tracks = append(s.Tracks, track.Track{
			ID:          id,
			Title:       fmt.Sprintf("Track %d", id),
			WaveformURL: fmt.Sprintf("https://w1.sndcdn.com/%d.png", id),
		})
	}
	s.CurrentTrackIndex = current
	s.NextRandomIndex = next
	require.NoError(t, f.store.Save(s))
	return s
}

func (f *fixture) cacheImage(t *testing.T, id int64) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.store.ImagePathFor(id), []byte("\x89PNG\r\n\x1a\n"), 0644))
}

func readStoreFile(t *testing.T, f *fixture) string {
	t.Helper()
	data, err := os.ReadFile(f.store.StorePath())
	require.NoError(t, err)
	return string(data)
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateRunning, "running"},
		{StateCompleted, "completed"},
		{StateFailed, "failed"},
		{StateWaitingForConnectivity, "waiting_for_connectivity"},
		{State(9), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestTrigger_EmptyStoreOnlinePopulates(t *testing.T) {
	f := newFixture(t, true)
	assert.Equal(t, StateIdle, f.orch.State())

	res := f.orch.Trigger(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, StepFetchArtist, res.Step)
	assert.False(t, res.TrackChanged)

	s, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, testArtist, s.ArtistName)
	assert.Len(t, s.Tracks, 3)
	assert.Contains(t, []int{0, 1, 2}, s.NextRandomIndex)
	assert.Equal(t, track.Unset, s.CurrentTrackIndex)

	assert.Zero(t, f.notifier.count(notification.EventTrackChanged))
	assert.Zero(t, f.remote.downloadCount())
	assert.Equal(t, StateCompleted, f.orch.State())
	assert.Equal(t, request.StateCompleted, f.orch.Requests().Snapshot().State)
}

func TestTrigger_EmptyStoreOfflineWaits(t *testing.T) {
	f := newFixture(t, false)

	res := f.orch.Trigger(context.Background())
	assert.Equal(t, StateWaitingForConnectivity, res.State)
	assert.True(t, f.orch.Gate().Enabled())
	assert.False(t, f.store.Exists(), "nothing is persisted while offline")
	assert.Zero(t, f.remote.fetchCalls)
}

func TestTrigger_FetchFailures(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		fetchErr error
	}{
		{name: "remote error", fetchErr: errors.Mark(errors.New("404"), soundcloud.ErrHTTPStatus)},
		{name: "unparseable body", json: "<html>"},
		{name: "no usable tracks", json: `[{"id": 0}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			f.remote.tracksJSON = tt.json
			f.remote.fetchErr = tt.fetchErr

			res := f.orch.Trigger(context.Background())
			assert.Equal(t, StateFailed, res.State)
			assert.Equal(t, StepFetchArtist, res.Step)
			assert.Error(t, res.Err)
			assert.False(t, f.store.Exists())
			assert.Equal(t, request.StateFailed, f.orch.Requests().Snapshot().State)
		})
	}
}

func TestTrigger_CachedImageAdvancesWithoutDownload(t *testing.T) {
	f := newFixture(t, false)
	f.seed(t, 0, 2)
	f.cacheImage(t, 13)

	res := f.orch.Trigger(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, StateCompleted, res.State)
	assert.True(t, res.TrackChanged)
	require.NotNil(t, res.Track)
	assert.Equal(t, int64(13), res.Track.ID)

	s, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, s.CurrentTrackIndex)
	assert.Contains(t, []int{0, 1, 2}, s.NextRandomIndex)

	assert.Zero(t, f.remote.downloadCount())
	assert.Equal(t, 1, f.notifier.count(notification.EventTrackChanged))
	assert.False(t, f.orch.Gate().Enabled())
}

func TestTrigger_MissingImageOnlineDownloads(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, 0, 1)

	res := f.orch.Trigger(context.Background())
	require.NoError(t, res.Err)
	assert.True(t, res.TrackChanged)
	assert.Equal(t, StepAdvance, res.Step)

	assert.Equal(t, []string{"https://w1.sndcdn.com/12.png"}, f.remote.downloads)
	assert.True(t, f.store.HasImage(12))

	s, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, s.CurrentTrackIndex)
	assert.Equal(t, request.StateCompleted, f.orch.Requests().Snapshot().State)
	assert.Equal(t, 1, f.notifier.count(notification.EventTrackChanged))
}

func TestTrigger_MissingImageOfflineLeavesStoreUnchanged(t *testing.T) {
	f := newFixture(t, false)
	f.seed(t, 0, 1)
	before := readStoreFile(t, f)

	res := f.orch.Trigger(context.Background())
	assert.Equal(t, StateWaitingForConnectivity, res.State)
	assert.Equal(t, StepDownload, res.Step)
	assert.True(t, f.orch.Gate().Enabled())

	assert.Equal(t, before, readStoreFile(t, f))
	assert.Zero(t, f.remote.downloadCount())
	assert.Zero(t, f.notifier.count(notification.EventTrackChanged))
}

func TestTrigger_FailedDownloadLeavesStoreUnchanged(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, 0, 1)
	f.remote.downloadErr = errors.New("connection reset")
	before := readStoreFile(t, f)

	res := f.orch.Trigger(context.Background())
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StepDownload, res.Step)
	assert.Error(t, res.Err)

	assert.Equal(t, before, readStoreFile(t, f))
	assert.False(t, f.store.HasImage(12))
	assert.Equal(t, request.StateFailed, f.orch.Requests().Snapshot().State)
	assert.Zero(t, f.notifier.count(notification.EventTrackChanged))

	// next trigger retries from scratch
	f.remote.downloadErr = nil
	res = f.orch.Trigger(context.Background())
	assert.Equal(t, StateCompleted, res.State)
	assert.True(t, res.TrackChanged)
}

func TestTrigger_PicksNextWhenUnset(t *testing.T) {
	f := newFixture(t, false)
	f.seed(t, 0, track.Unset)
	for id := int64(11); id <= 13; id++ {
		f.cacheImage(t, id)
	}

	res := f.orch.Trigger(context.Background())
	require.NoError(t, res.Err)
	assert.True(t, res.TrackChanged)
}

func TestTrigger_CorruptStoreStartsOver(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, os.WriteFile(f.store.StorePath(), []byte("{broken"), 0600))

	res := f.orch.Trigger(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, StateCompleted, res.State)

	s, err := f.store.Load()
	require.NoError(t, err)
	assert.Len(t, s.Tracks, 3)
}

func TestTrigger_ArtistChangeRefetches(t *testing.T) {
	f := newFixture(t, true)
	s := f.seed(t, 0, 1)
	s.ArtistName = "someone-else"
	require.NoError(t, f.store.Save(s))

	res := f.orch.Trigger(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, StepFetchArtist, res.Step)
	assert.Equal(t, 1, f.remote.fetchCalls)

	loaded, err := f.store.Load()
	require.NoError(t, err)
	assert.Equal(t, testArtist, loaded.ArtistName)
}

func TestTrigger_ConcurrentIsSkipped(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, 0, 1)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.remote.downloadHook = func(ctx context.Context) error {
		close(entered)
		<-release
		return nil
	}

	done := make(chan Result, 1)
	go func() {
		done <- f.orch.Trigger(context.Background())
	}()
	<-entered

	assert.Equal(t, StateRunning, f.orch.State())
	second := f.orch.Trigger(context.Background())
	assert.True(t, second.Skipped)
	assert.ErrorIs(t, f.orch.Reset(), ErrBusy)

	close(release)
	first := <-done
	assert.False(t, first.Skipped)
	assert.Equal(t, StateCompleted, first.State)
	assert.Equal(t, 1, f.remote.downloadCount())
}

func TestCancel_DuringDownload(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, 0, 1)
	before := readStoreFile(t, f)

	entered := make(chan struct{})
	f.remote.downloadHook = func(ctx context.Context) error {
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	}

	done := make(chan Result, 1)
	go func() {
		done <- f.orch.Trigger(context.Background())
	}()
	<-entered

	assert.True(t, f.orch.Cancel())
	res := <-done

	assert.Equal(t, StateFailed, res.State)
	assert.True(t, errors.Is(res.Err, context.Canceled))
	assert.Equal(t, request.StateCanceled, f.orch.Requests().Snapshot().State)
	assert.False(t, f.store.HasImage(12))
	assert.Equal(t, before, readStoreFile(t, f))
	assert.False(t, f.orch.Cancel(), "nothing left to cancel")
}

func TestGate_RetriggersWhenOnline(t *testing.T) {
	f := newFixture(t, false)
	f.seed(t, 0, 1)

	res := f.orch.Trigger(context.Background())
	require.Equal(t, StateWaitingForConnectivity, res.State)

	f.checker.Set(true)
	assert.True(t, f.orch.Gate().Notify(context.Background()))

	assert.False(t, f.orch.Gate().Enabled())
	last := f.orch.LastResult()
	assert.Equal(t, StateCompleted, last.State)
	assert.True(t, last.TrackChanged)
	assert.Equal(t, 1, f.remote.downloadCount())
}

func TestReset(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, 0, 1)

	require.NoError(t, f.orch.Reset())
	assert.False(t, f.store.Exists())

	res := f.orch.Trigger(context.Background())
	assert.Equal(t, StepFetchArtist, res.Step)
}

func TestTrigger_EmitsCycleAndRequestEvents(t *testing.T) {
	f := newFixture(t, true)
	var progressCalls atomic.Int32
	f.orch.progress = func(written, total int64) { progressCalls.Add(1) }
	f.seed(t, 0, 1)

	f.orch.Trigger(context.Background())

	assert.Equal(t, 2, f.notifier.count(notification.EventCycleState), "running and completed")
	assert.Equal(t, 2, f.notifier.count(notification.EventRequestState), "running and completed")
	assert.Equal(t, int32(1), progressCalls.Load())

	last := f.orch.LastResult()
	assert.WithinDuration(t, time.Now(), last.At, time.Minute)
}
