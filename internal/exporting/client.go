// Package exporting is the HTTP client for the downstream export destination.
// Every post carries an idempotency key so a retried request can never create
// a second downstream record.
package exporting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client communicates with the export destination over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting the given export destination base URL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// postResponse is the JSON returned by POST /v1/exports.
type postResponse struct {
	DestinationID string `json:"destination_id"`
}

// Post sends a prepared export payload to the destination. A response in the
// 2xx range confirms acceptance; the destination deduplicates on the
// idempotency key, so a replayed post returns the original record's id.
func (c *Client) Post(ctx context.Context, idempotencyKey string, payload json.RawMessage) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/exports", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating export request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("export request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("export: unexpected status %d", resp.StatusCode)
	}

	var result postResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding export response: %w", err)
	}
	if result.DestinationID == "" {
		return "", fmt.Errorf("export: missing destination id")
	}

	return result.DestinationID, nil
}
