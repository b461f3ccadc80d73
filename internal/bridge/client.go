// Package bridge talks to the WhatsApp bridge: pairing status, QR code,
// logout. Read-mostly; the only status this core acts on is ready.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Instance statuses reported by the bridge.
const (
	StatusBooting       = "booting"
	StatusLoadingScreen = "loading_screen"
	StatusQR            = "qr"
	StatusReady         = "ready"
	StatusAuthenticated = "authenticated"
	StatusAuthFailure   = "auth_failure"
	StatusDisconnected  = "disconnected"
)

// Status is one bridge status report.
type Status struct {
	InstanceStatus string `json:"instanceStatus"`
}

// Ready reports whether the bridge can deliver messages.
func (s Status) Ready() bool { return s.InstanceStatus == StatusReady }

// Client is a thin HTTP client for the bridge sidecar.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a bridge client; an empty base URL yields a client
// whose calls fail with a clear error, keeping the sidecar optional.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Status fetches the current pairing status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var status Status
	if err := c.getJSON(ctx, "/status", &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

// QR fetches the current pairing QR blob; empty when not in qr state.
func (c *Client) QR(ctx context.Context) (string, error) {
	var payload struct {
		QR string `json:"qr"`
	}
	if err := c.getJSON(ctx, "/qr", &payload); err != nil {
		return "", err
	}
	return payload.QR, nil
}

// Logout unpairs the bridge session.
func (c *Client) Logout(ctx context.Context) error {
	if c.baseURL == "" {
		return fmt.Errorf("bridge: not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/logout", nil)
	if err != nil {
		return fmt.Errorf("bridge: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bridge: logout: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("bridge: logout: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	if c.baseURL == "" {
		return fmt.Errorf("bridge: not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("bridge: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bridge: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("bridge: %s: unexpected status %d", path, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("bridge: %s: read body: %w", path, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("bridge: %s: decode: %w", path, err)
	}
	return nil
}
