// Package storage persists the track store and resolves cached soundwave images.
package storage

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cloudwave/internal/domain/track"
)

const (
	soundwaveFilePrefix = "soundwave_"
	soundwaveFileSuffix = ".png"
)

var (
	// ErrNotFound is returned by Load when no store has been persisted yet.
	ErrNotFound = errors.New("track store not found")
	// ErrCorrupt is returned by Load when the persisted store cannot be decoded.
	ErrCorrupt = errors.New("track store is corrupt")
)

// Manager reads and writes the persisted track store.
// It does no locking of its own: callers serialize access.
type Manager struct {
	storePath    string
	soundwaveDir string

	randMu sync.Mutex
	rand   *rand.Rand
}

// Option configures a Manager.
type Option func(*Manager)

// WithRand replaces the random source used by PickNextRandom.
func WithRand(r *rand.Rand) Option {
	return func(m *Manager) {
		m.rand = r
	}
}

// NewManager creates a storage manager and makes sure its directories exist.
func NewManager(storePath, soundwaveDir string, opts ...Option) (*Manager, error) {
	if storePath == "" || soundwaveDir == "" {
		return nil, errors.New("store path and soundwave directory are required")
	}

	for _, dir := range []string{filepath.Dir(storePath), soundwaveDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create directory %s", dir)
		}
	}

	m := &Manager{
		storePath:    storePath,
		soundwaveDir: soundwaveDir,
		rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// StorePath returns the path of the persisted store file.
func (m *Manager) StorePath() string {
	return m.storePath
}

// Exists reports whether a store has been persisted.
func (m *Manager) Exists() bool {
	info, err := os.Stat(m.storePath)
	return err == nil && !info.IsDir()
}

// Load reads the persisted store. Cursors pointing outside the track list are reset.
func (m *Manager) Load() (*track.Store, error) {
	data, err := os.ReadFile(m.storePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		zlog.Error().Err(err).Msgf("cannot read track store: path=%s", m.storePath)
		return nil, errors.Wrap(err, "failed to read track store")
	}

	var s track.Store
	if err := json.Unmarshal(data, &s); err != nil {
		zlog.Warn().Err(err).Msgf("track store is not valid JSON: path=%s", m.storePath)
		return nil, errors.Mark(errors.Wrap(err, "failed to decode track store"), ErrCorrupt)
	}

	if s.Normalize() {
		zlog.Warn().Msgf("track store had out-of-range indices, reset: path=%s", m.storePath)
	}
	return &s, nil
}

// Save writes the store atomically: a temp file in the same directory is
// synced and renamed over the previous store.
func (m *Manager) Save(s *track.Store) error {
	if s == nil {
		return errors.New("cannot save nil track store")
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode track store")
	}

	if err := writeFileAtomic(m.storePath, data, 0600); err != nil {
		zlog.Error().Err(err).Msgf("cannot write track store: path=%s", m.storePath)
		return err
	}
	zlog.Debug().Msgf("saved track store: tracks=%d current=%d next=%d",
		len(s.Tracks), s.CurrentTrackIndex, s.NextRandomIndex)
	return nil
}

// Delete removes the persisted store. Cached soundwaves are kept.
func (m *Manager) Delete() error {
	if err := os.Remove(m.storePath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove track store")
	}
	return nil
}

// ImagePathFor returns the cached soundwave path of a track.
func (m *Manager) ImagePathFor(trackID int64) string {
	return filepath.Join(m.soundwaveDir, fmt.Sprintf("%s%d%s", soundwaveFilePrefix, trackID, soundwaveFileSuffix))
}

// HasImage reports whether the soundwave of a track is cached.
func (m *Manager) HasImage(trackID int64) bool {
	info, err := os.Stat(m.ImagePathFor(trackID))
	return err == nil && !info.IsDir() && info.Size() > 0
}

// PickNextRandom sets the next track to a uniformly random position.
// An empty store is left untouched.
func (m *Manager) PickNextRandom(s *track.Store) {
	if s.IsEmpty() {
		return
	}
	s.NextRandomIndex = m.Intn(len(s.Tracks))
}

// Intn returns a uniformly random index in [0, n). n must be positive.
func (m *Manager) Intn(n int) int {
	m.randMu.Lock()
	defer m.randMu.Unlock()
	return m.rand.Intn(n)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return errors.Wrap(err, "failed to write temp file")
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return errors.Wrap(err, "failed to sync temp file")
	}
	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return errors.Wrap(err, "failed to chmod temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "failed to close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "failed to replace track store")
	}
	return nil
}
