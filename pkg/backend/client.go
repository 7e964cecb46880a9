package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/payback159/raidsplit/pkg/logging"
	"github.com/payback159/raidsplit/pkg/models"
)

// maxBodyBytes bounds how much of a backend response is read
const maxBodyBytes = 8 << 20

// SeedKind names one of the backend's roster seeding endpoints
type SeedKind string

const (
	SeedSchema SeedKind = "schema"
	SeedRaid   SeedKind = "raid"
	SeedTest   SeedKind = "test"
	SeedStress SeedKind = "stress"
)

var seedPaths = map[SeedKind]string{
	SeedSchema: "/api/initialize-schema",
	SeedRaid:   "/api/generate-raid-roster",
	SeedTest:   "/api/generate-test-roster",
	SeedStress: "/api/generate-stress-test",
}

// ParseSeedKind maps a user-supplied name onto a SeedKind
func ParseSeedKind(s string) (SeedKind, bool) {
	k := SeedKind(strings.ToLower(strings.TrimSpace(s)))
	_, ok := seedPaths[k]
	return k, ok
}

// Config holds API configuration
type Config struct {
	BaseURL string
	// Timeout of zero leaves request deadlines to the caller's context
	Timeout time.Duration
}

// Client talks to the raid splitter backend
type Client struct {
	config Config
	http   *http.Client
}

// NewClient creates a backend client for cfg
func NewClient(cfg Config) *Client {
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
	}
}

// BaseURL returns the configured backend base URL
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.config.BaseURL, "/") + path
}

// do sends a request and returns the status code and body. Transport
// failures are wrapped; status codes are left to the caller.
func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logging.LogError("Backend request failed", err,
			"method", method,
			"path", path)
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s response: %w", path, err)
	}

	logging.LogDebug("Backend request completed",
		"method", method,
		"path", path,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"size_bytes", len(data))

	return resp.StatusCode, data, nil
}

// getJSON fetches path and decodes a 2xx body into out
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	code, data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if code < 200 || code > 299 {
		return newStatusError(path, code, data)
	}
	if err := decodeBody(path, data, out); err != nil {
		return err
	}
	return nil
}

// GenerateSplits asks the backend to partition the roster
func (c *Client) GenerateSplits(ctx context.Context, req models.SplitRequest) ([]models.Group, error) {
	const path = "/api/generate-splits"

	code, data, err := c.do(ctx, http.MethodPost, path, req)
	if err != nil {
		return nil, err
	}

	// The backend reports failures as {success:false,error} with a 5xx code;
	// prefer its message over a bare status.
	resp, perr := parseSplitResponse(path, data)
	if code < 200 || code > 299 {
		if perr == nil && resp.Error != "" {
			return nil, &StatusError{Endpoint: path, Code: code, Message: resp.Error}
		}
		return nil, newStatusError(path, code, data)
	}
	if perr != nil {
		return nil, perr
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "backend reported failure without a message"
		}
		return nil, &StatusError{Endpoint: path, Code: code, Message: msg}
	}
	return resp.Groups, nil
}

// RosterStats fetches roster-wide distributions
func (c *Client) RosterStats(ctx context.Context) (models.RosterStats, error) {
	var out models.RosterStats
	if err := c.getJSON(ctx, "/api/roster-stats", &out); err != nil {
		return models.RosterStats{}, err
	}
	return out, nil
}

// Players fetches the roster's players with their characters
func (c *Client) Players(ctx context.Context) (models.PlayerList, error) {
	var out models.PlayerList
	if err := c.getJSON(ctx, "/api/players", &out); err != nil {
		return models.PlayerList{}, err
	}
	if err := validatePlayers("/api/players", out); err != nil {
		return models.PlayerList{}, err
	}
	return out, nil
}

// Stats fetches the roster summary used by the diagnostics panel
func (c *Client) Stats(ctx context.Context) (models.RosterSummary, error) {
	var out models.RosterSummary
	if err := c.getJSON(ctx, "/api/stats", &out); err != nil {
		return models.RosterSummary{}, err
	}
	return out, nil
}

// DBStatus reports whether the backend can reach its database
func (c *Client) DBStatus(ctx context.Context) (models.BackendStatus, error) {
	const path = "/api/db-status"
	code, data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return models.BackendStatus{}, err
	}
	var out models.BackendStatus
	if derr := decodeBody(path, data, &out); derr != nil {
		if code < 200 || code > 299 {
			return models.BackendStatus{}, newStatusError(path, code, data)
		}
		return models.BackendStatus{}, derr
	}
	if code < 200 || code > 299 {
		return out, &StatusError{Endpoint: path, Code: code, Message: out.Error}
	}
	return out, nil
}

// Seed triggers one of the backend's roster seeding endpoints and returns
// the backend's message
func (c *Client) Seed(ctx context.Context, kind SeedKind) (string, error) {
	path, ok := seedPaths[kind]
	if !ok {
		return "", fmt.Errorf("unknown seed kind %q", kind)
	}

	code, data, err := c.do(ctx, http.MethodPost, path, struct{}{})
	if err != nil {
		return "", err
	}
	var out struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if code < 200 || code > 299 {
		return "", newStatusError(path, code, data)
	}
	if err := decodeBody(path, data, &out); err != nil {
		return "", err
	}
	if out.Status != "success" {
		return "", &StatusError{Endpoint: path, Code: code, Message: out.Message}
	}
	return out.Message, nil
}
