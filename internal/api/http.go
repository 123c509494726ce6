package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/doorsync/internal/models"
)

// HTTPClient talks to the check-in server over its JSON API, authenticated
// with the bearer token issued at device login.
type HTTPClient struct {
	baseURL  string
	token    string
	deviceID uuid.UUID
	client   *http.Client
}

func NewHTTPClient(baseURL, token string, deviceID uuid.UUID) *HTTPClient {
	return &HTTPClient{
		baseURL:  baseURL,
		token:    token,
		deviceID: deviceID,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type submitRequest struct {
	AttendeeID     string    `json:"attendee_id"`
	Method         string    `json:"method"`
	DeviceID       string    `json:"device_id"`
	Seq            int64     `json:"seq"`
	CheckedInAt    time.Time `json:"checked_in_at"`
	OverrideReason string    `json:"override_reason,omitempty"`
}

type rosterResponse struct {
	Attendees []models.Attendee `json:"attendees"`
}

type checkinsResponse struct {
	Checkins []models.RemoteCheckin `json:"checkins"`
	Cursor   int64                  `json:"cursor"`
}

func (c *HTTPClient) FetchRoster(ctx context.Context, eventID string) ([]models.Attendee, error) {
	var resp rosterResponse
	path := fmt.Sprintf("/events/%s/attendees", url.PathEscape(eventID))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Attendees, nil
}

func (c *HTTPClient) SubmitCheckin(ctx context.Context, checkin *models.Checkin) (*SubmitResult, error) {
	body := submitRequest{
		AttendeeID:     checkin.AttendeeID,
		Method:         string(checkin.Method),
		DeviceID:       checkin.DeviceID.String(),
		Seq:            checkin.Seq,
		CheckedInAt:    checkin.CheckedInAt,
		OverrideReason: checkin.OverrideReason,
	}

	path := fmt.Sprintf("/events/%s/checkins", url.PathEscape(checkin.EventID))
	var result SubmitResult
	if err := c.do(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) FetchCheckins(ctx context.Context, eventID string, since int64) ([]models.RemoteCheckin, int64, error) {
	path := fmt.Sprintf("/events/%s/checkins?since=%s",
		url.PathEscape(eventID), strconv.FormatInt(since, 10))

	var resp checkinsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, 0, err
	}
	return resp.Checkins, resp.Cursor, nil
}

func (c *HTTPClient) Heartbeat(ctx context.Context, eventID string) error {
	path := fmt.Sprintf("/events/%s/heartbeat", url.PathEscape(eventID))
	return c.do(ctx, http.MethodPost, path, map[string]string{
		"device_id": c.deviceID.String(),
	}, nil)
}

// do runs one request and decodes the JSON response. Network failures and
// 5xx responses collapse into ErrUnavailable so callers can treat them as
// retryable without inspecting transport details.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: server returned %d", ErrUnavailable, resp.StatusCode)
	}

	// Conflicts carry a SubmitResult body; other 4xx are protocol errors.
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("server rejected request: %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
