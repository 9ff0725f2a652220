// Package api is the HTTP/JSON client for the lab backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"

	"github.com/iotlab-io/labwatch/internal/buildinfo"
	"github.com/iotlab-io/labwatch/internal/models"
)

// DefaultURL is the backend address used when none is configured.
const DefaultURL = "http://localhost:8000"

// maxErrorBody bounds how much of a failed response is kept in a StatusError.
const maxErrorBody = 4 << 10

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = http.StatusText(e.Code)
	}
	return fmt.Sprintf("%s %s: backend returned %d: %s", e.Method, e.Path, e.Code, msg)
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger for request tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l.With().Str("component", "api").Logger() }
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(c *Client) { c.session = id }
}

// Client talks to the backend.
type Client struct {
	baseURL string
	http    *http.Client
	session string
	logger  zerolog.Logger
}

// New creates a client for baseURL. A missing scheme defaults to http.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		session: uuid.NewString(),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = DefaultURL
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid backend URL %q", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// BaseURL returns the normalized backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SessionID identifies this client in backend logs.
func (c *Client) SessionID() string {
	return c.session
}

// RunExperiment launches a single run.
func (c *Client) RunExperiment(ctx context.Context, p models.RunParameters) (*models.LaunchResponse, error) {
	var resp models.LaunchResponse
	if err := c.do(ctx, http.MethodPost, "/experiments/run", nil, p, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExperimentStatus polls the single run.
func (c *Client) ExperimentStatus(ctx context.Context) (*models.ExperimentStatus, error) {
	var raw map[string]any
	if err := c.do(ctx, http.MethodGet, "/experiments/status", nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeExperimentStatus(raw), nil
}

// StartBatch launches a batch of runs.
func (c *Client) StartBatch(ctx context.Context, req models.BatchRequest) (*models.LaunchResponse, error) {
	var resp models.LaunchResponse
	if err := c.do(ctx, http.MethodPost, "/experiments/batch", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BatchStatus polls the batch.
func (c *Client) BatchStatus(ctx context.Context) (*models.BatchStatus, error) {
	var raw map[string]any
	if err := c.do(ctx, http.MethodGet, "/experiments/batch/status", nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeBatchStatus(raw), nil
}

// Logs fetches the last tail lines of every container. filter is passed
// through to the backend when non-empty.
func (c *Client) Logs(ctx context.Context, tail int, filter string) (*models.LogsResponse, error) {
	q := url.Values{}
	if tail > 0 {
		q.Set("tail", strconv.Itoa(tail))
	}
	if filter != "" {
		q.Set("filter", filter)
	}
	var resp models.LogsResponse
	if err := c.do(ctx, http.MethodGet, "/logs", q, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListExperiments returns experiment ids, newest first.
func (c *Client) ListExperiments(ctx context.Context) ([]string, error) {
	var resp struct {
		Experiments []any `json:"experiments"`
	}
	if err := c.do(ctx, http.MethodGet, "/experiments", nil, nil, &resp); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Experiments))
	for _, e := range resp.Experiments {
		if s := cast.ToString(e); s != "" {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

// Get fetches an arbitrary read-only endpoint and returns the decoded JSON.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (any, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	var v any
	if err := c.do(ctx, http.MethodGet, path, query, nil, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "labwatch/"+buildinfo.Version)
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("X-Labwatch-Session", c.session)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Trace().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
