package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cloudwave.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SOUNDCLOUD_CONSUMER_KEY",
		"SOUNDCLOUD_CLIENT_ID",
		"SOUNDCLOUD_CLIENT_SECRET",
		"CLOUDWAVE_ADMIN_TOKEN",
		"CLOUDWAVE_ARTIST",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
soundcloud:
  consumer_key: test-key
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, "heedthesound", cfg.Artist.Name)
	assert.Equal(t, "https://api.soundcloud.com", cfg.SoundCloud.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.SoundCloud.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.SoundCloud.ReadTimeout)
	assert.Equal(t, time.Hour, cfg.Schedule.Interval)
	assert.Equal(t, time.Second, cfg.Schedule.InitialDelay)
	assert.Equal(t, 10*time.Second, cfg.Connectivity.PollInterval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, filepath.Join("data", "soundwave_storage.json"), cfg.StorePath())
	assert.Equal(t, filepath.Join("data", "soundwaves"), cfg.SoundwavePath())
	assert.False(t, cfg.UsesClientCredentials())
}

func TestLoad_FileValues(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  addr: ":9090"
artist:
  name: someone
storage:
  dir: /var/lib/cloudwave
schedule:
  interval: 30m
  initial_delay: 0s
soundcloud:
  client_id: id
  client_secret: secret
connectivity:
  probes:
    - type: tcp
      settings:
        address: example.com:443
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "someone", cfg.Artist.Name)
	assert.Equal(t, 30*time.Minute, cfg.Schedule.Interval)
	assert.True(t, cfg.UsesClientCredentials())
	assert.Equal(t, "/var/lib/cloudwave/soundwave_storage.json", cfg.StorePath())
	require.Len(t, cfg.Connectivity.Probes, 1)
	assert.Equal(t, "example.com:443", cfg.Connectivity.Probes[0].Settings["address"])
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SOUNDCLOUD_CONSUMER_KEY", "env-key")
	t.Setenv("CLOUDWAVE_ADMIN_TOKEN", "env-token")
	t.Setenv("CLOUDWAVE_ARTIST", "env-artist")
	path := writeConfig(t, `
artist:
  name: file-artist
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.SoundCloud.ConsumerKey)
	assert.Equal(t, "env-token", cfg.Admin.Token)
	assert.Equal(t, "env-artist", cfg.Artist.Name)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "missing credentials",
			content: "artist:\n  name: x\n",
			errMsg:  "consumer_key",
		},
		{
			name:    "client id without secret",
			content: "soundcloud:\n  client_id: id\n",
			errMsg:  "client_secret",
		},
		{
			name:    "unknown probe type",
			content: "soundcloud:\n  consumer_key: k\nconnectivity:\n  probes:\n    - type: carrier-pigeon\n",
			errMsg:  "Type",
		},
		{
			name:    "interval too short",
			content: "soundcloud:\n  consumer_key: k\nschedule:\n  interval: 10ms\n",
			errMsg:  "Interval",
		},
		{
			name:    "invalid yaml",
			content: "soundcloud: [this is not valid yaml\n",
			errMsg:  "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	cfg, err := Load("non_existent_file.yaml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestDefault(t *testing.T) {
	clearEnv(t)
	_, err := Default()
	require.Error(t, err, "no credentials available")

	t.Setenv("SOUNDCLOUD_CONSUMER_KEY", "k")
	cfg, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "k", cfg.SoundCloud.ConsumerKey)
}

func TestLoad_ExampleConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("SOUNDCLOUD_CONSUMER_KEY", "k")

	cfg, err := Load(filepath.Join("..", "..", "..", "config", "cloudwave.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "heedthesound", cfg.Artist.Name)
	assert.Equal(t, time.Hour, cfg.Schedule.Interval)
	assert.Equal(t, filepath.Join("data", "soundwave_storage.json"), cfg.StorePath())
	require.Len(t, cfg.Connectivity.Probes, 3)
	assert.Equal(t, "sysfs", cfg.Connectivity.Probes[0].Type)
}
