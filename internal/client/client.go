// Package client provides an HTTP client for the voxrecon server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/raphaelgruber/voxrecon/internal/metrics"
	"github.com/raphaelgruber/voxrecon/internal/models"
	"github.com/raphaelgruber/voxrecon/internal/service"
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("not found")

// Client talks to the /api/v1 routes of a voxrecon server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client. If baseURL is empty, VOXRECON_SERVER_URL is used,
// falling back to http://localhost:8080. VOXRECON_CLIENT_TIMEOUT overrides the
// default 5 minute timeout; finalization can run a full report synthesis.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("VOXRECON_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	timeout := 5 * time.Minute
	if t := os.Getenv("VOXRECON_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Detail  string          `json:"detail"`
}

// StatusError is a non-2xx server response.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.Status, e.Message)
}

// Is lets callers match 404s with errors.Is(err, ErrNotFound).
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// do sends a request and decodes the "data" field of the response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/v1"+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return &StatusError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.StatusCode >= 300 {
		msg := env.Error
		if env.Detail != "" {
			msg += ": " + env.Detail
		}
		return &StatusError{Status: resp.StatusCode, Message: msg}
	}

	if result != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("unmarshal data: %w", err)
		}
	}
	return nil
}

func sessionPath(id string, parts ...string) string {
	p := "/sessions/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// Version returns the server version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var out struct {
		Version string `json:"version"`
	}
	if err := c.do(ctx, http.MethodGet, "/version", nil, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// PipelineStats returns the server's in-memory operation statistics.
func (c *Client) PipelineStats(ctx context.Context) (*metrics.Snapshot, error) {
	var snap metrics.Snapshot
	if err := c.do(ctx, http.MethodGet, "/pipeline-stats", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListSessions returns all live sessions, newest first.
func (c *Client) ListSessions(ctx context.Context) ([]service.Info, error) {
	var infos []service.Info
	if err := c.do(ctx, http.MethodGet, "/sessions", nil, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// GetSession returns a single session summary.
func (c *Client) GetSession(ctx context.Context, id string) (*service.Info, error) {
	var info service.Info
	if err := c.do(ctx, http.MethodGet, sessionPath(id), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// DeleteSession drops a live session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, sessionPath(id), nil, nil)
}

// Transcript returns the session's reconciled transcript.
func (c *Client) Transcript(ctx context.Context, id string) ([]models.ReconciledUtterance, error) {
	var utts []models.ReconciledUtterance
	if err := c.do(ctx, http.MethodGet, sessionPath(id, "transcript"), nil, &utts); err != nil {
		return nil, err
	}
	return utts, nil
}

// Report returns the most recent report for a session.
func (c *Client) Report(ctx context.Context, id string) (*models.Report, error) {
	var rep models.Report
	if err := c.do(ctx, http.MethodGet, sessionPath(id, "report"), nil, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// Finalize runs final analysis and report synthesis for a session.
func (c *Client) Finalize(ctx context.Context, id string) (*models.Report, error) {
	var rep models.Report
	if err := c.do(ctx, http.MethodPost, sessionPath(id, "finalize"), nil, &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}
