// Package remote is the station's HTTP client for the sync gateway. Fetched
// race states are cached through the persistence layer so they stay
// browsable offline.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rpggio/skitimer/internal/api"
	"github.com/rpggio/skitimer/internal/persist"
)

const maxErrorBody = 64 << 10

// Client talks to one gateway with one bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	cache   persist.ReadWriter
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCache stores fetched race states in rw.
func WithCache(rw persist.ReadWriter) Option {
	return func(c *Client) { c.cache = rw }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the gateway at baseURL.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

type cachedRace struct {
	ETag  string        `json:"etag"`
	State api.RaceState `json:"state"`
}

// PushEntries submits entries for raceID. Re-pushing entries the gateway
// already has is harmless.
func (c *Client) PushEntries(ctx context.Context, raceID string, req api.SubmitEntriesRequest) (api.SubmitEntriesResponse, error) {
	var out api.SubmitEntriesResponse

	body, err := json.Marshal(req)
	if err != nil {
		return out, fmt.Errorf("encoding entries: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, c.racePath(raceID, "entries"), bytes.NewReader(body), nil)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return out, statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decoding submit response: %w", err)
	}
	return out, nil
}

// DeleteEntry removes an entry on the gateway. ErrNotFound means the
// gateway never had it.
func (c *Client) DeleteEntry(ctx context.Context, raceID, entryID string) error {
	resp, err := c.do(ctx, http.MethodDelete, c.racePath(raceID, "entries", entryID), nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return statusError(resp)
	}
}

// FetchRace returns the gateway's state of raceID. When the cached copy is
// still current the gateway answers 304 and the cached state is returned
// with notModified set.
func (c *Client) FetchRace(ctx context.Context, raceID string) (state *api.RaceState, notModified bool, err error) {
	cached, haveCache := c.loadCache(ctx, raceID)

	headers := map[string]string{}
	if haveCache && cached.ETag != "" {
		headers["If-None-Match"] = cached.ETag
	}

	resp, err := c.do(ctx, http.MethodGet, c.racePath(raceID), nil, headers)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		if !haveCache {
			return nil, false, &StatusError{Status: resp.StatusCode, Message: "not modified without cached copy"}
		}
		return &cached.State, true, nil
	case http.StatusOK:
	default:
		return nil, false, statusError(resp)
	}

	var fresh api.RaceState
	if err := json.NewDecoder(io.LimitReader(resp.Body, 32<<20)).Decode(&fresh); err != nil {
		return nil, false, fmt.Errorf("decoding race %s: %w", raceID, err)
	}
	if fresh.Entries == nil {
		fresh.Entries = []api.Entry{}
	}
	c.storeCache(ctx, raceID, cachedRace{ETag: resp.Header.Get("ETag"), State: fresh})
	return &fresh, false, nil
}

// CachedRace returns the last fetched state of raceID without touching the
// network.
func (c *Client) CachedRace(ctx context.Context, raceID string) (*api.RaceState, bool) {
	cached, ok := c.loadCache(ctx, raceID)
	if !ok {
		return nil, false
	}
	return &cached.State, true
}

func (c *Client) loadCache(ctx context.Context, raceID string) (cachedRace, bool) {
	if c.cache == nil {
		return cachedRace{}, false
	}
	cached, outcome := persist.Load(ctx, c.cache, persist.RaceCacheKey(raceID), cachedRace{})
	if outcome == persist.Corrupt {
		c.logger.Warn("race cache unreadable", "race_id", raceID)
	}
	return cached, outcome == persist.Loaded
}

func (c *Client) storeCache(ctx context.Context, raceID string, v cachedRace) {
	if c.cache == nil {
		return
	}
	if err := persist.Save(ctx, c.cache, persist.RaceCacheKey(raceID), v); err != nil {
		c.logger.Warn("caching race failed", "race_id", raceID, "error", err)
	}
}

func (c *Client) racePath(raceID string, rest ...string) string {
	parts := append([]string{c.baseURL, "api/v1/races", url.PathEscape(raceID)}, escapeAll(rest)...)
	return strings.Join(parts, "/")
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrOffline, ctxErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrOffline, err)
	}
	c.logger.Debug("gateway request", "method", method, "url", target, "status", resp.StatusCode)
	return resp, nil
}

func statusError(resp *http.Response) error {
	se := &StatusError{Status: resp.StatusCode}

	var body api.ErrorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err := json.Unmarshal(data, &body); err == nil {
		se.Message = body.Error
		se.RetryAfter = body.RetryAfter
		se.Expired = body.Expired
	}
	if se.RetryAfter == 0 {
		if n, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			se.RetryAfter = n
		}
	}
	if resp.StatusCode == http.StatusNotFound {
		return errors.Join(ErrNotFound, se)
	}
	return se
}

func escapeAll(parts []string) []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = url.PathEscape(p)
	}
	return out
}
