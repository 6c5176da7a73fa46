// Package upstream talks to the Gravix Layer inference API, an
// OpenAI-compatible HTTP surface. It owns every wire shape the rest of
// the system should not have to know about.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// errorBodyLimit caps how much of a failed response body makes it into
// an error message.
const errorBodyLimit = 2048

// Client calls one upstream inference API with a fixed credential.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// New builds a Client. timeout bounds every call, including the full
// read of a streaming body.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// ChatStream opens a streaming chat completion and returns the raw SSE
// body. The caller owns closing it. Usage accounting is requested
// inline with the stream.
func (c *Client) ChatStream(ctx context.Context, model, prompt string, temperature float64) (io.ReadCloser, error) {
	body := chatRequest{
		Model:         model,
		Messages:      []Message{{Role: "user", Content: prompt}},
		Temperature:   temperature,
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	}
	resp, err := c.post(ctx, "/chat/completions", body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}
	if resp.Body == nil {
		return nil, fmt.Errorf("upstream: empty response body for model %s", model)
	}
	return resp.Body, nil
}

// Chat performs one non-streaming completion. Used as the fallback when
// a stream completes without producing any tokens.
func (c *Client) Chat(ctx context.Context, model, prompt string, temperature float64) (string, *UsageCounts, error) {
	body := chatRequest{
		Model:       model,
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: temperature,
	}
	resp, err := c.post(ctx, "/chat/completions", body)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil, c.statusError(resp)
	}

	var completion Chunk
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", nil, fmt.Errorf("upstream: decoding completion: %w", err)
	}
	return completion.DeltaText(), completion.Usage, nil
}

// Models fetches the raw upstream catalog.
func (c *Client) Models(ctx context.Context) ([]CatalogModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("upstream: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: listing models: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var catalog catalogResponse
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return nil, fmt.Errorf("upstream: decoding catalog: %w", err)
	}
	if len(catalog.Data) > 0 {
		return catalog.Data, nil
	}
	return catalog.Models, nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("upstream: encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("upstream: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: calling %s: %w", path, err)
	}
	return resp, nil
}

// statusError drains and closes the failed response and folds its
// status plus a bounded slice of its body into the error.
func (c *Client) statusError(resp *http.Response) error {
	defer resp.Body.Close()
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	log.WithFields(log.Fields{
		"status": resp.StatusCode,
		"url":    resp.Request.URL.Path,
		"event":  "upstream_error",
	}).Warn("Upstream returned non-success status")
	if len(detail) == 0 {
		return fmt.Errorf("upstream: status %d", resp.StatusCode)
	}
	return fmt.Errorf("upstream: status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
}
