package scanclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"seminar-attendance/internal/api"
)

// Client submits scans to the attendance API.
type Client struct {
	BaseURL   string
	ScannerID string
	HTTP      *http.Client
}

// New creates a client with configurable timeout.
func New(baseURL, scannerID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ScannerID: scannerID,
		HTTP:      &http.Client{Timeout: timeout},
	}
}

// Scan posts a raw QR payload.
//
// A rejected scan returns both the decoded response, so the caller can show
// its message, and an error.
func (c *Client) Scan(ctx context.Context, text string) (*api.ResolveResponse, error) {
	return c.post(ctx, "/v1/scans", api.ScanRequest{Payload: text})
}

// Manual posts a seminar id and email entered by hand.
func (c *Client) Manual(ctx context.Context, seminarID, email string) (*api.ResolveResponse, error) {
	return c.post(ctx, "/v1/attendance/manual", api.ManualRequest{SeminarID: seminarID, ParticipantEmail: email})
}

func (c *Client) post(ctx context.Context, path string, in any) (*api.ResolveResponse, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ScannerID != "" {
		req.Header.Set("X-Scanner-ID", c.ScannerID)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("attendance api request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var out api.ResolveResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode >= 300 {
		if decodeErr != nil || out.Message == "" {
			return nil, fmt.Errorf("attendance api error %s: %s", resp.Status, string(raw))
		}
		return &out, fmt.Errorf("attendance api error %s: %s", resp.Status, out.Error)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	return &out, nil
}
