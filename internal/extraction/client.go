// Package extraction is the HTTP client for the document extraction service.
// The service receives raw invoice bytes and returns typed header fields with
// confidence scores plus structured line items.
package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JaimeStill/tally/internal/invoices"
)

// Client communicates with the extraction service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting the given extraction service base URL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// extractRequest is the JSON body for POST /v1/extract. Document bytes are
// base64 in transit.
type extractRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Document    string `json:"document"`
}

// Result is the typed extraction output.
type Result struct {
	Fields           invoices.FieldSet  `json:"fields"`
	LineItems        []invoices.LineItem `json:"line_items"`
	ExtractorVersion string             `json:"extractor_version"`
	DurationMS       int64              `json:"duration_ms"`
}

// IsRunning returns true if the extraction service responds to GET /healthz with 200.
func (c *Client) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Extract submits a document and returns the extracted fields. The document
// reader is consumed fully before the request is sent.
func (c *Client) Extract(ctx context.Context, filename, contentType string, document io.Reader) (*Result, error) {
	data, err := io.ReadAll(document)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}

	body, err := json.Marshal(extractRequest{
		Filename:    filename,
		ContentType: contentType,
		Document:    base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating extract request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extract request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extract: unexpected status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding extract response: %w", err)
	}

	if len(result.Fields) == 0 {
		return nil, fmt.Errorf("extract: empty field set")
	}
	for k := range result.Fields {
		f := result.Fields[k]
		if f.Origin == "" {
			f.Origin = invoices.OriginExtracted
			result.Fields[k] = f
		}
	}

	return &result, nil
}
