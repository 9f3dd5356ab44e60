// Package soundcloud provides a client for the SoundCloud API and soundwave downloads.
package soundcloud

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultBaseURL        = "https://api.soundcloud.com"
	defaultConnectTimeout = 15 * time.Second
	defaultReadTimeout    = 10 * time.Second
)

var (
	// ErrHTTPStatus marks responses with a status other than 200.
	ErrHTTPStatus = errors.New("unexpected HTTP status")
	// ErrReadTimeout is returned when the server stops sending data for longer than the read timeout.
	ErrReadTimeout = errors.New("read timeout")
)

// StatusError carries the HTTP status of a failed request.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP status %d for %s", e.Code, e.URL)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// Config represents SoundCloud client configuration.
type Config struct {
	BaseURL        string
	ConsumerKey    string
	ClientID       string
	ClientSecret   string
	TokenURL       string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Client is a SoundCloud API client.
type Client struct {
	baseURL     string
	consumerKey string
	readTimeout time.Duration
	httpClient  *http.Client
}

// New creates a new SoundCloud client.
// With client credentials the returned client fetches and refreshes OAuth2
// tokens on its own; otherwise every API request carries the consumer key.
func New(ctx context.Context, cfg Config) (*Client, error) {
	oauth := cfg.ClientID != "" && cfg.ClientSecret != ""
	if !oauth && cfg.ConsumerKey == "" {
		return nil, errors.New("soundcloud consumer key or client credentials are required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}

	base := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   connectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   connectTimeout,
			ResponseHeaderTimeout: readTimeout,
			IdleConnTimeout:       90 * time.Second,
		},
	}

	httpClient := base
	if oauth {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		// The token endpoint is reached through the same timeouts.
		httpClient = cc.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
	}

	return &Client{
		baseURL:     baseURL,
		consumerKey: cfg.ConsumerKey,
		readTimeout: readTimeout,
		httpClient:  httpClient,
	}, nil
}

// ArtistTracksURL returns the API URL listing the tracks of an artist.
func (c *Client) ArtistTracksURL(artistName string) string {
	u := c.baseURL + "/users/" + url.PathEscape(artistName) + "/tracks.json"
	if c.consumerKey != "" {
		params := url.Values{}
		params.Set("consumer_key", c.consumerKey)
		u += "?" + params.Encode()
	}
	return u
}

// FetchArtistTracks retrieves the raw JSON track list of an artist.
func (c *Client) FetchArtistTracks(ctx context.Context, artistName string) ([]byte, error) {
	if artistName == "" {
		return nil, errors.New("artist name is required")
	}

	reqURL := c.ArtistTracksURL(artistName)
	zlog.Debug().Msgf("fetching artist tracks: artist=%s", artistName)

	resp, body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch artist tracks")
	}
	defer body.Close()

	if resp.StatusCode != http.StatusOK {
		zlog.Error().Msgf("HTTP status %d fetching artist tracks: artist=%s", resp.StatusCode, artistName)
		return nil, errors.Mark(&StatusError{Code: resp.StatusCode, URL: redact(reqURL)}, ErrHTTPStatus)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Wrap(body.mapErr(err), "failed to read response body")
	}
	return data, nil
}

// get sends a GET request whose body is guarded by the read timeout.
func (c *Client) get(ctx context.Context, reqURL string) (*http.Response, *timeoutBody, error) {
	reqCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		cancel()
		return nil, nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json, image/png;q=0.9, */*;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, nil, errors.Wrap(err, "failed to send request")
	}

	return resp, newTimeoutBody(resp.Body, c.readTimeout, cancel), nil
}

// timeoutBody cancels the request when no data arrives within the read timeout.
type timeoutBody struct {
	rc       io.ReadCloser
	timeout  time.Duration
	timer    *time.Timer
	cancel   context.CancelFunc
	timedOut atomic.Bool
}

func newTimeoutBody(rc io.ReadCloser, timeout time.Duration, cancel context.CancelFunc) *timeoutBody {
	b := &timeoutBody{rc: rc, timeout: timeout, cancel: cancel}
	b.timer = time.AfterFunc(timeout, func() {
		b.timedOut.Store(true)
		cancel()
	})
	return b
}

func (b *timeoutBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 {
		b.timer.Reset(b.timeout)
	}
	return n, err
}

func (b *timeoutBody) Close() error {
	b.timer.Stop()
	err := b.rc.Close()
	b.cancel()
	return err
}

// mapErr reports timeouts as ErrReadTimeout.
func (b *timeoutBody) mapErr(err error) error {
	if err != nil && b.timedOut.Load() {
		return errors.Mark(errors.Wrap(err, "no data received"), ErrReadTimeout)
	}
	return err
}

// redact hides the consumer key in URLs used in errors and logs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("consumer_key") {
		q.Set("consumer_key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
