// Package viewer implements the terminal client: it polls the simulator's
// HTTP API, projects frames onto a character grid, and sonifies deaths.
package viewer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/talgya/infall/internal/engine"
)

// Status mirrors GET /api/v1/status.
type Status struct {
	Name       string          `json:"name"`
	RunID      string          `json:"run_id"`
	Tick       uint64          `json:"tick"`
	Cycle      uint64          `json:"cycle"`
	Status     string          `json:"status"`
	Speed      float64         `json:"speed"`
	Running    bool            `json:"running"`
	MassSolar  float64         `json:"mass_solar"`
	Rs         float64         `json:"rs"`
	Law        string          `json:"law"`
	Strategy   string          `json:"strategy"`
	BodyCount  int             `json:"body_count"`
	Stats      engine.SimStats `json:"stats"`
	CooldownMs int64           `json:"cooldown_ms"`
}

// Client talks to the simulator API.
type Client struct {
	BaseURL    string
	AdminKey   string // Needed only for session control
	HTTPClient *http.Client
}

// NewClient creates a Client targeting the given API base URL.
func NewClient(baseURL, adminKey string) *Client {
	return &Client{
		BaseURL:  baseURL,
		AdminKey: adminKey,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Frame fetches the latest published frame.
func (c *Client) Frame(ctx context.Context) (*engine.Frame, error) {
	var f engine.Frame
	if err := c.fetchJSON(ctx, "/api/v1/frame", &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Status fetches the simulator status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.fetchJSON(ctx, "/api/v1/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// History fetches up to limit finished cycles, oldest first.
func (c *Client) History(ctx context.Context, limit int) ([]engine.CycleSummary, error) {
	var cycles []engine.CycleSummary
	err := c.fetchJSON(ctx, fmt.Sprintf("/api/v1/history?limit=%d", limit), &cycles)
	return cycles, err
}

// Session starts or ends a session ("start" or "end").
func (c *Client) Session(ctx context.Context, action string) error {
	body, err := json.Marshal(map[string]string{"action": action})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v1/session", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.AdminKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("POST session returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (c *Client) fetchJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// WaitForAPI polls the status endpoint with exponential backoff until it
// responds or maxWait passes.
func WaitForAPI(ctx context.Context, c *Client, maxWait time.Duration) error {
	backoff := 250 * time.Millisecond
	maxBackoff := 5 * time.Second
	deadline := time.Now().Add(maxWait)

	for {
		_, err := c.Status(ctx)
		if err == nil {
			slog.Info("simulator API is ready", "url", c.BaseURL)
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("simulator API not ready after %s: %w", maxWait, err)
		}
		slog.Info("simulator not ready, retrying", "backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
