// Package enhancement is the HTTP client for the confidence enhancement
// service. Only fields whose confidence falls below the configured threshold
// are submitted; the service returns revised values with rationales.
package enhancement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JaimeStill/tally/internal/invoices"
	"github.com/JaimeStill/tally/pkg/formatting"
)

// Client communicates with the enhancement service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting the given enhancement service base URL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// enhanceRequest is the JSON body for POST /v1/enhance. Fields carries only
// the low-confidence subset; Context carries the full set for reference.
type enhanceRequest struct {
	Fields  invoices.FieldSet `json:"fields"`
	Context invoices.FieldSet `json:"context"`
}

// enhanceResponse is the JSON returned by POST /v1/enhance.
type enhanceResponse struct {
	Fields invoices.FieldSet `json:"fields"`
}

// Enhance submits low-confidence fields for revision and returns the revised
// subset. Returned fields are tagged with the enhanced origin; fields the
// service declined to revise are absent from the result.
func (c *Client) Enhance(ctx context.Context, low, full invoices.FieldSet) (invoices.FieldSet, error) {
	if len(low) == 0 {
		return invoices.FieldSet{}, nil
	}

	body, err := json.Marshal(enhanceRequest{Fields: low, Context: full})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/enhance", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating enhance request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enhance request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("enhance: unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading enhance response: %w", err)
	}

	// Model-backed enhancement services occasionally fence their JSON.
	result, err := formatting.Parse[enhanceResponse](string(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding enhance response: %w", err)
	}

	for k := range result.Fields {
		f := result.Fields[k]
		f.Origin = invoices.OriginEnhanced
		result.Fields[k] = f
	}

	return result.Fields, nil
}
