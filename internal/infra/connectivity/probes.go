package connectivity

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
)

// decodeSettings fills cfg from a probe's free-form settings, then applies
// defaults and validation.
func decodeSettings(settings map[string]any, cfg any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           cfg,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create settings decoder")
	}
	if err := dec.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(cfg); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}

type TCPProbeConfig struct {
	Address string        `mapstructure:"address" default:"api.soundcloud.com:443" validate:"required,hostname_port"`
	Timeout time.Duration `mapstructure:"timeout" default:"3s" validate:"gt=0"`
}

// TCPProbe is online when a TCP connection to Address can be opened.
type TCPProbe struct {
	config TCPProbeConfig
	dial   func(ctx context.Context, network, address string) (net.Conn, error)
}

// NewTCPProbe creates a TCPProbe from probe settings.
func NewTCPProbe(settings map[string]any) (*TCPProbe, error) {
	var cfg TCPProbeConfig
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, err
	}
	zlog.Debug().Msgf("tcp probe config: %+v", cfg)
	d := &net.Dialer{Timeout: cfg.Timeout}
	return &TCPProbe{config: cfg, dial: d.DialContext}, nil
}

func (p *TCPProbe) Online(ctx context.Context) bool {
	conn, err := p.dial(ctx, "tcp", p.config.Address)
	if err != nil {
		zlog.Debug().Msgf("tcp probe failed: address=%s error=%v", p.config.Address, err)
		return false
	}
	_ = conn.Close()
	return true
}

func (p *TCPProbe) Name() string {
	return "tcp:" + p.config.Address
}

type HTTPProbeConfig struct {
	URL     string        `mapstructure:"url" default:"https://api.soundcloud.com" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout" default:"5s" validate:"gt=0"`
}

// HTTPProbe is online when a HEAD request to URL gets any non-5xx answer.
type HTTPProbe struct {
	config HTTPProbeConfig
	client *http.Client
}

// NewHTTPProbe creates an HTTPProbe from probe settings.
func NewHTTPProbe(settings map[string]any) (*HTTPProbe, error) {
	var cfg HTTPProbeConfig
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, err
	}
	zlog.Debug().Msgf("http probe config: %+v", cfg)
	return &HTTPProbe{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

func (p *HTTPProbe) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.config.URL, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		zlog.Debug().Msgf("http probe failed: url=%s error=%v", p.config.URL, err)
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

func (p *HTTPProbe) Name() string {
	return "http:" + p.config.URL
}

type SysfsProbeConfig struct {
	Root       string   `mapstructure:"root" default:"/sys/class/net" validate:"required"`
	Interfaces []string `mapstructure:"interfaces" default:"[\"eth0\",\"end0\",\"wlan0\",\"wlan1\"]" validate:"min=1,dive,required"`
}

// SysfsProbe is online when any configured interface reports a carrier or an
// "up" operstate. It only proves a link exists, not that the internet is reachable.
type SysfsProbe struct {
	config SysfsProbeConfig
}

// NewSysfsProbe creates a SysfsProbe from probe settings.
func NewSysfsProbe(settings map[string]any) (*SysfsProbe, error) {
	var cfg SysfsProbeConfig
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, err
	}
	zlog.Debug().Msgf("sysfs probe config: %+v", cfg)
	return &SysfsProbe{config: cfg}, nil
}

func (p *SysfsProbe) Online(context.Context) bool {
	for _, iface := range p.config.Interfaces {
		if readFlag(filepath.Join(p.config.Root, iface, "carrier")) == "1" {
			return true
		}
		if readFlag(filepath.Join(p.config.Root, iface, "operstate")) == "up" {
			return true
		}
	}
	return false
}

func (p *SysfsProbe) Name() string {
	return "sysfs:" + strings.Join(p.config.Interfaces, ",")
}

func readFlag(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
