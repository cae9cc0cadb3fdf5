// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package lmstudio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// DefaultBaseURL is where LM Studio listens out of the box.
const DefaultBaseURL = "http://localhost:1234"

// maxErrorBody bounds how much of a failed response is read for a message.
const maxErrorBody = 4 * 1024

// ClientConfig holds configuration options for the client.
type ClientConfig struct {
	// BaseURL is the server base URL without the /v1 suffix (default: http://localhost:1234)
	BaseURL string

	// Timeout for non-streaming requests (default: 30s)
	Timeout time.Duration

	// HTTPClient overrides the transport used for every request. Streaming
	// requests never get a client-side timeout; the context bounds them.
	HTTPClient *http.Client
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL: DefaultBaseURL,
		Timeout: 30 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the /v1 endpoints of an OpenAI-compatible local server.
// The Client is safe for concurrent use.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient creates a client. A nil config uses DefaultConfig.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := &http.Client{Timeout: timeout}
	streamClient := &http.Client{}
	if config.HTTPClient != nil {
		httpClient = config.HTTPClient
		// Copy so the stream client can drop the timeout without touching the caller's.
		sc := *config.HTTPClient
		sc.Timeout = 0
		streamClient = &sc
	}

	return &Client{
		baseURL:      baseURL,
		httpClient:   httpClient,
		streamClient: streamClient,
	}
}

// BaseURL returns the normalized server base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// ListModels retrieves the identifiers the server can serve.
// An empty listing is reported as ErrNoModels.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError("failed to list models", resp)
	}

	var result ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	if len(result.Data) == 0 {
		return nil, ErrNoModels
	}

	return result.Data, nil
}

// CheckRunning verifies that the server is reachable and serves a model.
func (c *Client) CheckRunning(ctx context.Context) error {
	_, err := c.ListModels(ctx)
	return err
}

// EjectModel asks the server to unload a model. The call is best effort:
// callers log a failure and carry on.
func (c *Client) EjectModel(ctx context.Context, model string) error {
	body, err := json.Marshal(EjectRequest{Model: model})
	if err != nil {
		return &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/model/eject", bytes.NewReader(body))
	if err != nil {
		return &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("eject request failed", resp)
	}
	return nil
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// ChatStream sends a streaming completion request and calls fn for each
// text delta in order. It returns the accumulated content once the stream
// ends. Connectivity failures are returned before any delta is delivered;
// an error event from the server ends the stream with ErrServerEvent.
func (c *Client) ChatStream(ctx context.Context, request ChatRequest, fn DeltaFunc) (string, error) {
	request.Stream = true

	body, err := json.Marshal(request)
	if err != nil {
		return "", &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	start := time.Now()
	resp, err := c.streamClient.Do(req)
	if err != nil {
		return "", transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError("stream request failed", resp)
	}

	reader := NewStreamReader(resp.Body)
	err = reader.Process(ctx, fn)
	log.Printf("STREAM_COMPLETE | model=%s deltas=%d skipped=%d latency=%dms error=%v",
		request.Model, reader.DeltaCount(), reader.SkippedCount(), time.Since(start).Milliseconds(), err)
	if err != nil {
		return reader.Accumulated(), err
	}
	return reader.Accumulated(), nil
}

// =============================================================================
// HELPERS
// =============================================================================

// transportError maps a failed round trip onto the client error types.
func transportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &ClientError{Type: ErrTypeNotRunning, Message: "inference server is not reachable", Cause: err}
}

// statusError builds an error for a non-success response, preferring the
// message the server put in its body.
func statusError(prefix string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := prefix + ": " + resp.Status

	if gjson.ValidBytes(raw) {
		for _, path := range []string{"error.message", "error", "message"} {
			if v := gjson.GetBytes(raw, path); v.Type == gjson.String && v.Str != "" {
				message += " (" + v.Str + ")"
				break
			}
		}
	}

	return &ClientError{Type: ErrTypeConnection, Message: message}
}

// drainAndClose lets the transport reuse the connection.
func drainAndClose(r io.ReadCloser) {
	io.Copy(io.Discard, r)
	r.Close()
}
