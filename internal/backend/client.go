// Package backend wraps the authoritative REST API: schedule document,
// appointment lifecycle, and conversation reads. The server is the single
// source of truth; this client only translates wire shapes and the error
// taxonomy.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/praxishq/dashboard-core/internal/appointment"
	"github.com/praxishq/dashboard-core/internal/chat"
	"github.com/praxishq/dashboard-core/internal/schedule"
	"github.com/praxishq/dashboard-core/pkg/logging"
)

const defaultUserAgent = "praxis-dashboard-core/0.1"

// Config controls how the backend client behaves.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
	UserAgent  string
}

// Client talks to the authoritative backend with a bearer credential.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *logging.Logger
	userAgent  string
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("backend: base URL is required")
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		baseURL:    baseURL,
		token:      cfg.Token,
		httpClient: httpClient,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
		userAgent:  userAgent,
	}, nil
}

// GetSchedule fetches the weekly schedule plus non-work dates.
func (c *Client) GetSchedule(ctx context.Context) (schedule.Definition, error) {
	data, err := c.invoke(ctx, http.MethodGet, "/schedule", nil, nil)
	if err != nil {
		return schedule.Definition{}, err
	}
	var dto scheduleDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return schedule.Definition{}, fmt.Errorf("backend: decode schedule: %w", err)
	}
	return decodeSchedule(dto)
}

// PutSchedule replaces the schedule document.
func (c *Client) PutSchedule(ctx context.Context, def schedule.Definition) error {
	body, err := json.Marshal(encodeSchedule(def))
	if err != nil {
		return fmt.Errorf("backend: marshal schedule: %w", err)
	}
	_, err = c.invoke(ctx, http.MethodPut, "/schedule", nil, body)
	return err
}

// ListAppointments fetches appointments inside [start, end].
func (c *Client) ListAppointments(ctx context.Context, start, end time.Time) ([]appointment.Appointment, error) {
	query := url.Values{
		"startDate": {start.UTC().Format(wireDate)},
		"endDate":   {end.UTC().Format(wireDate)},
	}
	data, err := c.invoke(ctx, http.MethodGet, "/appointments", query, nil)
	if err != nil {
		return nil, err
	}
	var dtos []appointmentDTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		return nil, fmt.Errorf("backend: decode appointments: %w", err)
	}
	out := make([]appointment.Appointment, 0, len(dtos))
	for _, dto := range dtos {
		a, err := decodeAppointment(dto)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// CreateAppointment posts a new appointment; the server may still reject
// with a conflict even after local validation passed.
func (c *Client) CreateAppointment(ctx context.Context, appt appointment.Appointment) (appointment.Appointment, error) {
	body, err := json.Marshal(encodeAppointment(appt))
	if err != nil {
		return appointment.Appointment{}, fmt.Errorf("backend: marshal appointment: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPost, "/appointments", nil, body)
	if err != nil {
		return appointment.Appointment{}, err
	}
	var dto appointmentDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return appointment.Appointment{}, fmt.Errorf("backend: decode appointment: %w", err)
	}
	return decodeAppointment(dto)
}

// UpdateAppointment patches an existing appointment.
func (c *Client) UpdateAppointment(ctx context.Context, appt appointment.Appointment) (appointment.Appointment, error) {
	body, err := json.Marshal(encodeAppointment(appt))
	if err != nil {
		return appointment.Appointment{}, fmt.Errorf("backend: marshal appointment: %w", err)
	}
	data, err := c.invoke(ctx, http.MethodPatch, "/appointments/"+url.PathEscape(appt.ID), nil, body)
	if err != nil {
		return appointment.Appointment{}, err
	}
	var dto appointmentDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return appointment.Appointment{}, fmt.Errorf("backend: decode appointment: %w", err)
	}
	return decodeAppointment(dto)
}

// DeleteAppointment removes an appointment.
func (c *Client) DeleteAppointment(ctx context.Context, id string) error {
	_, err := c.invoke(ctx, http.MethodDelete, "/appointments/"+url.PathEscape(id), nil, nil)
	return err
}

// ListConversations fetches the conversation roster.
func (c *Client) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	data, err := c.invoke(ctx, http.MethodGet, "/chats", nil, nil)
	if err != nil {
		return nil, err
	}
	var dtos []conversationDTO
	if err := json.Unmarshal(data, &dtos); err != nil {
		return nil, fmt.Errorf("backend: decode conversations: %w", err)
	}
	out := make([]chat.Conversation, 0, len(dtos))
	for _, dto := range dtos {
		out = append(out, decodeConversation(dto))
	}
	return out, nil
}

// GetConversation fetches one conversation with its message history.
func (c *Client) GetConversation(ctx context.Context, id string) (chat.Conversation, error) {
	data, err := c.invoke(ctx, http.MethodGet, "/chats/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return chat.Conversation{}, err
	}
	var dto conversationDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return chat.Conversation{}, fmt.Errorf("backend: decode conversation: %w", err)
	}
	return decodeConversation(dto), nil
}

// invoke performs one HTTP call, retrying transport failures for idempotent
// GETs only. Status codes map onto the error taxonomy: 401/403 are final,
// 409 is a conflict, 5xx and network errors are transport failures.
func (c *Client) invoke(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	attempts := 1
	if method == http.MethodGet {
		attempts += c.maxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &TransportError{Op: method + " " + path, Err: ctx.Err()}
			case <-time.After(c.backoff * time.Duration(1<<(attempt-1))):
			}
			c.logger.Debug("backend retry", "method", method, "path", path, "attempt", attempt+1)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, fmt.Errorf("backend: build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &TransportError{Op: method + " " + path, Err: err}
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = &TransportError{Op: method + " " + path, Err: readErr}
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return data, nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, &AuthError{Status: resp.StatusCode}
		case resp.StatusCode == http.StatusConflict:
			return nil, &ConflictError{Detail: errorDetail(data)}
		case resp.StatusCode >= 500:
			lastErr = &TransportError{Op: method + " " + path, Err: fmt.Errorf("status %d", resp.StatusCode)}
			continue
		default:
			return nil, fmt.Errorf("backend: %s %s: unexpected status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
		}
	}
	return nil, lastErr
}

func errorDetail(data []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		return payload.Message
	}
	return strings.TrimSpace(string(data))
}
