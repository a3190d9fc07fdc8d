package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cotimer/server/internal/httputil"
)

// ErrSessionNotFound reports a lookup for a session id the broker does not
// currently hold. Invalid id shapes map here too.
var ErrSessionNotFound = errors.New("api: session not found")

// Client talks to the broker's HTTP endpoints. WebSocket traffic lives in
// pkg/client; this covers the read-only lookup surface.
type Client struct {
	baseURL string
	http    *httputil.Client
}

// NewClient builds a lookup client for a broker base URL such as
// http://localhost:3000.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httputil.New(),
	}
}

// GetSession fetches the sanitized snapshot of one session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*SessionSnapshot, error) {
	endpoint := c.baseURL + "/api/session/" + url.PathEscape(sessionID)
	resp, err := c.http.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrSessionNotFound
	default:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("session lookup failed with status %d: %s", resp.StatusCode, string(body))
	}

	var snap SessionSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &snap, nil
}

// Health is the broker's liveness summary.
type Health struct {
	Status     string            `json:"status"`
	Sessions   int               `json:"sessions"`
	Clients    int               `json:"clients"`
	Components map[string]string `json:"components,omitempty"`
}

// Health fetches the liveness summary. The call is not retried: a degraded
// broker answers 503 with the payload we want, so insisting would hide it.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("failed to decode health: %w", err)
	}
	return &h, nil
}
