// Package client talks to the ocsup control API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Client provides HTTP access to a running ocsup control API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration // per request; start and restart can take as long as the startup timeout
	Logger  *slog.Logger  // optional
}

const defaultBaseURL = "http://127.0.0.1:14097/api"

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: defaultBaseURL,
		Timeout: 2 * time.Minute,
	}
}

// APIError is a non-2xx reply from the control API.
type APIError struct {
	StatusCode int
	Message    string
	Status     *Status // supervisor status when the API included it
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return "API error: " + e.Message
}

func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the control API answers.
func (c *Client) IsReachable(ctx context.Context) bool {
	_, err := c.Status(ctx)
	if err != nil {
		c.logger.Debug("control API unreachable", "error", err)
		var apiErr *APIError
		return errors.As(err, &apiErr) && apiErr.StatusCode != http.StatusNotFound
	}
	return true
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodGet, "/status", nil, &st)
	return st, err
}

// Start asks the supervisor to start the server and waits for the outcome.
// timeout bounds the wait on the server side; zero uses the configured startup timeout.
func (c *Client) Start(ctx context.Context, timeout time.Duration) (Status, error) {
	return c.start(ctx, "/start", timeout)
}

// Restart stops the server, if any, and starts it again.
func (c *Client) Restart(ctx context.Context, timeout time.Duration) (Status, error) {
	return c.start(ctx, "/restart", timeout)
}

func (c *Client) start(ctx context.Context, path string, timeout time.Duration) (Status, error) {
	q := url.Values{}
	if timeout > 0 {
		q.Set("timeout", timeout.String())
	}
	var st Status
	err := c.do(ctx, http.MethodPost, path, q, &st)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status != nil {
		st = *apiErr.Status
	}
	return st, err
}

func (c *Client) Stop(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/stop", nil, nil)
}

// URL returns the project URL and the server origin.
func (c *Client) URL(ctx context.Context) (URLs, error) {
	var u URLs
	err := c.do(ctx, http.MethodGet, "/url", nil, &u)
	return u, err
}

// SetProjectDirectory changes the project used by the next start.
func (c *Client) SetProjectDirectory(ctx context.Context, dir string) (URLs, error) {
	var u URLs
	err := c.do(ctx, http.MethodPut, "/project", url.Values{"dir": {dir}}, &u)
	return u, err
}

// Resolve asks the daemon how it would resolve path; empty means the configured executable.
func (c *Client) Resolve(ctx context.Context, path string) (Resolution, error) {
	q := url.Values{}
	if path != "" {
		q.Set("path", path)
	}
	var r Resolution
	err := c.do(ctx, http.MethodGet, "/resolve", q, &r)
	return r, err
}

// do performs the request and decodes a 200 reply into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.handleErrorResponse(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) handleErrorResponse(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.logger.Debug("failed to decode error response", "status", resp.StatusCode)
		return apiErr
	}
	apiErr.Message = body.Error
	apiErr.Status = body.Status
	c.logger.Debug("API request failed", "error", body.Error, "status", resp.StatusCode)
	return apiErr
}
