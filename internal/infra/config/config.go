// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Admin        AdminConfig        `yaml:"admin"`
	Artist       ArtistConfig       `yaml:"artist"`
	Storage      StorageConfig      `yaml:"storage"`
	SoundCloud   SoundCloudConfig   `yaml:"soundcloud"`
	Schedule     ScheduleConfig     `yaml:"schedule"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Log          LogConfig          `yaml:"log"`
}

// ServerConfig represents the status API server configuration.
type ServerConfig struct {
	Addr     string `yaml:"addr" default:"127.0.0.1:8080" validate:"required"`
	Disabled bool   `yaml:"disabled"`
}

// AdminConfig represents admin-related configuration.
// An empty token disables the mutating API endpoints.
type AdminConfig struct {
	Token string `yaml:"token"`
}

// ArtistConfig represents the artist whose tracks are shown.
type ArtistConfig struct {
	Name string `yaml:"name" default:"heedthesound" validate:"required"`
}

// StorageConfig represents local storage locations.
type StorageConfig struct {
	Dir          string `yaml:"dir" default:"data" validate:"required"`
	StoreFile    string `yaml:"store_file" default:"soundwave_storage.json" validate:"required"`
	SoundwaveDir string `yaml:"soundwave_dir" default:"soundwaves" validate:"required"`
}

// SoundCloudConfig represents SoundCloud API configuration.
type SoundCloudConfig struct {
	BaseURL        string        `yaml:"base_url" default:"https://api.soundcloud.com" validate:"required,url"`
	ConsumerKey    string        `yaml:"consumer_key"`
	ClientID       string        `yaml:"client_id"`
	ClientSecret   string        `yaml:"client_secret"`
	TokenURL       string        `yaml:"token_url" default:"https://secure.soundcloud.com/oauth/token" validate:"omitempty,url"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"15s" validate:"gte=1s"`
	ReadTimeout    time.Duration `yaml:"read_timeout" default:"10s" validate:"gte=1s"`
}

// ScheduleConfig represents the wallpaper change schedule.
type ScheduleConfig struct {
	Interval     time.Duration `yaml:"interval" default:"1h" validate:"gte=1s"`
	InitialDelay time.Duration `yaml:"initial_delay" default:"1s" validate:"gte=0"`
}

// ConnectivityConfig represents connectivity detection configuration.
type ConnectivityConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" default:"10s" validate:"gte=100ms"`
	Probes       []ProbeConfig `yaml:"probes" validate:"dive"`
}

// ProbeConfig represents a single connectivity probe configuration.
type ProbeConfig struct {
	Type     string         `yaml:"type" validate:"required,oneof=tcp http sysfs"`
	Settings map[string]any `yaml:"settings"`
}

// LogConfig represents logger configuration.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	Output string `yaml:"output" default:"stdout"`
	File   string `yaml:"file"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	return finish(&cfg)
}

// Default returns a configuration built only from defaults and environment variables.
func Default() (*Config, error) {
	return finish(&Config{})
}

func finish(cfg *Config) (*Config, error) {
	cfg.overrideFromEnv()

	if err := defaults.Set(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SOUNDCLOUD_CONSUMER_KEY"); v != "" {
		c.SoundCloud.ConsumerKey = v
	}
	if v := os.Getenv("SOUNDCLOUD_CLIENT_ID"); v != "" {
		c.SoundCloud.ClientID = v
	}
	if v := os.Getenv("SOUNDCLOUD_CLIENT_SECRET"); v != "" {
		c.SoundCloud.ClientSecret = v
	}
	if v := os.Getenv("CLOUDWAVE_ADMIN_TOKEN"); v != "" {
		c.Admin.Token = v
	}
	if v := os.Getenv("CLOUDWAVE_ARTIST"); v != "" {
		c.Artist.Name = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if err := c.validateCredentials(); err != nil {
		return err
	}

	return nil
}

// validateCredentials checks that exactly one way of authenticating is usable.
func (c *Config) validateCredentials() error {
	sc := c.SoundCloud
	if sc.ClientID != "" || sc.ClientSecret != "" {
		if sc.ClientID == "" || sc.ClientSecret == "" {
			return errors.New("soundcloud client_id and client_secret must be set together")
		}
		if sc.TokenURL == "" {
			return errors.New("soundcloud token_url is required with client credentials")
		}
		return nil
	}
	if sc.ConsumerKey == "" {
		return errors.New("soundcloud consumer_key or client_id/client_secret is required")
	}
	return nil
}

// UsesClientCredentials reports whether requests authenticate with OAuth2 client credentials.
func (c *Config) UsesClientCredentials() bool {
	return c.SoundCloud.ClientID != "" && c.SoundCloud.ClientSecret != ""
}

// StorePath returns the full path of the persisted track store.
func (c *Config) StorePath() string {
	if filepath.IsAbs(c.Storage.StoreFile) {
		return c.Storage.StoreFile
	}
	return filepath.Join(c.Storage.Dir, c.Storage.StoreFile)
}

// SoundwavePath returns the directory holding cached soundwave images.
func (c *Config) SoundwavePath() string {
	if filepath.IsAbs(c.Storage.SoundwaveDir) {
		return c.Storage.SoundwaveDir
	}
	return filepath.Join(c.Storage.Dir, c.Storage.SoundwaveDir)
}
