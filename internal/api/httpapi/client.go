package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

// Client talks to the API of a running daemon.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates an API client. token may be empty for read-only use.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: http.DefaultClient,
	}
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var s Status
	if err := c.do(ctx, http.MethodGet, "/api/status", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// CurrentTrack returns the track currently shown.
func (c *Client) CurrentTrack(ctx context.Context) (*TrackInfo, error) {
	var t TrackInfo
	if err := c.do(ctx, http.MethodGet, "/api/track/current", &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Refresh starts a cycle. With wait it blocks until the cycle ends and
// returns its result; otherwise the result is nil.
func (c *Client) Refresh(ctx context.Context, wait bool) (*ResultInfo, error) {
	if !wait {
		return nil, c.do(ctx, http.MethodPost, "/api/refresh", nil)
	}
	var r ResultInfo
	if err := c.do(ctx, http.MethodPost, "/api/refresh?wait=true", &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Cancel cancels the in-flight remote request and reports whether one was running.
func (c *Client) Cancel(ctx context.Context) (bool, error) {
	var r map[string]bool
	if err := c.do(ctx, http.MethodPost, "/api/cancel", &r); err != nil {
		return false, err
	}
	return r["canceled"], nil
}

// Watch streams events to fn until ctx is done or the server closes the stream.
func (c *Client) Watch(ctx context.Context, fn func(WireEvent)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/events", nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to connect to event stream")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("event stream returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev WireEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return errors.Wrap(err, "failed to decode event")
		}
		fn(ev)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "event stream failed")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	if c.token != "" {
		req.Header.Set(AdminTokenHeader, c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e errorResponse
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return errors.Newf("%s (HTTP %d)", e.Error, resp.StatusCode)
		}
		return errors.Newf("HTTP %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "failed to decode %s response", path)
	}
	return nil
}
