// Package warsclient consumes an llm-wars generation stream. It issues
// the request, folds the NDJSON event stream into per-model state as
// bytes arrive, and guarantees every model reaches a terminal state
// even when the server-side end event never makes it across the wire.
package warsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultWatchdog bounds the whole read; pending models are marked
// timed out when it fires.
const DefaultWatchdog = 120 * time.Second

const clientReadBuffer = 4096

// GenerationRequest is the body sent to POST /api/generate. A nil
// Temperature is omitted so the server applies its own default.
type GenerationRequest struct {
	Prompt      string   `json:"prompt"`
	Models      []string `json:"models"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Temp is a convenience for setting GenerationRequest.Temperature.
func Temp(v float64) *float64 { return &v }

// Client issues generation requests against one llm-wars server.
type Client struct {
	baseURL  string
	httpc    *http.Client
	watchdog time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithWatchdog overrides the read deadline.
func WithWatchdog(d time.Duration) Option {
	return func(c *Client) { c.watchdog = d }
}

// New creates a Client for the given server base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  baseURL,
		httpc:    &http.Client{},
		watchdog: DefaultWatchdog,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate streams one request and returns the folded final state.
// onUpdate, when non-nil, runs after every folded fragment so callers
// can re-render incrementally. The returned Reconstructor is complete:
// every requested model is terminal, by server event, by watchdog, or
// by transport failure. The error is non-nil only when no stream could
// be opened at all.
func (c *Client) Generate(ctx context.Context, req GenerationRequest, onUpdate func(*Reconstructor)) (*Reconstructor, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("warsclient: encoding request: %w", err)
	}

	// The watchdog doubles as the cancellation path: expiry tears down
	// the connection, which surfaces as a read error below.
	readCtx, cancel := context.WithTimeout(ctx, c.watchdog)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(readCtx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("warsclient: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("warsclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("warsclient: server returned %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	rec := NewReconstructor()
	for _, id := range req.Models {
		rec.state(id)
	}

	buf := make([]byte, clientReadBuffer)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			ended := rec.Feed(buf[:n])
			if onUpdate != nil {
				onUpdate(rec)
			}
			if ended {
				return rec, nil
			}
		}
		if readErr == nil {
			continue
		}
		if readErr == io.EOF {
			rec.Flush()
		}
		break
	}

	// The stream stopped without an end event: timeout or transport
	// failure. Either way no model may be left spinning.
	if !rec.Ended() {
		reason := "stream ended unexpectedly"
		if errors.Is(readCtx.Err(), context.DeadlineExceeded) {
			reason = fmt.Sprintf("timed out after %s", c.watchdog)
		} else if errors.Is(ctx.Err(), context.Canceled) {
			reason = "request cancelled"
		}
		rec.MarkPendingErrored(reason)
		if onUpdate != nil {
			onUpdate(rec)
		}
	}
	return rec, nil
}
