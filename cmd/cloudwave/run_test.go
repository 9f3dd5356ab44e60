package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/cloudwave/internal/domain/track"
	"github.com/osa030/cloudwave/internal/infra/config"
	"github.com/osa030/cloudwave/internal/infra/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("SOUNDCLOUD_CONSUMER_KEY", "test_key")
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Storage.Dir = t.TempDir()
	return cfg
}

func TestRunShow(t *testing.T) {
	cfg := testConfig(t)

	var out bytes.Buffer
	require.NoError(t, runShow(cfg, &out))
	assert.Contains(t, out.String(), "No track store")

	store, err := storage.NewManager(cfg.StorePath(), cfg.SoundwavePath())
	require.NoError(t, err)
	s := track.NewStore("heedthesound")
	s.Tracks = []track.Track{
		{ID: 1, Title: "One", WaveformURL: "w1"},
		{ID: 2, Title: "Two", WaveformURL: "w2"},
	}
	s.CurrentTrackIndex = 0
	s.NextRandomIndex = 1
	require.NoError(t, store.Save(s))
	require.NoError(t, os.WriteFile(store.ImagePathFor(1), []byte("png"), 0644))

	out.Reset()
	require.NoError(t, runShow(cfg, &out))
	assert.Contains(t, out.String(), "Artist: heedthesound")
	assert.Contains(t, out.String(), "Tracks: 2")
	assert.Contains(t, out.String(), "One  [cached]")
}

func TestRunReset(t *testing.T) {
	cfg := testConfig(t)
	store, err := storage.NewManager(cfg.StorePath(), cfg.SoundwavePath())
	require.NoError(t, err)
	require.NoError(t, store.Save(track.NewStore("heedthesound")))

	require.NoError(t, runReset(cfg))
	assert.False(t, store.Exists())
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("SOUNDCLOUD_CONSUMER_KEY", "test_key")
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "heedthesound", cfg.Artist.Name)
}
