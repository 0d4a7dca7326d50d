// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm is the HTTP transport to chat-completion backends.
//
// Two wire dialects are supported: the OpenAI-compatible API
// (POST {base}/chat/completions, bearer auth, SSE streaming) and the
// native Ollama API (POST {base}/api/chat, no auth, NDJSON streaming).
// The dialect is fixed by the ResolvedEndpoint; nothing here inspects
// provider names.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jeranaias/snag/internal/model"
	"github.com/jeranaias/snag/internal/provider"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultTimeout bounds a request when the caller supplies none.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion.
	MaxResponseSize = 10 * 1024 * 1024
)

// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
var (
	sharedHTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	// No client-level timeout for streaming; controlled via context.
	sharedStreamingClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrTimeout indicates the request exceeded its deadline.
	ErrTimeout = errors.New("request timed out")

	// ErrMalformedResponse indicates the backend answered with a body
	// that does not match the expected dialect shape.
	ErrMalformedResponse = errors.New("malformed response from provider")
)

// TransportError reports a non-2xx status or a connection-level failure.
// Status is 0 when no HTTP response was received.
type TransportError struct {
	Status  int
	Message string
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider returned HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("request failed: %s", e.Message)
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// ChatMessage is the role/content pair both dialects exchange.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the OpenAI-compatible request body. The Ollama native
// endpoint accepts the same field names.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// chatResponse is the non-streaming OpenAI-compatible response body.
type chatResponse struct {
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// ollamaResponse is the non-streaming Ollama native response body.
type ollamaResponse struct {
	Message ChatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// apiErrorResponse is the error envelope both dialects use.
type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// wireMessages converts conversation messages to the wire shape.
func wireMessages(msgs []model.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ChatMessage{Role: m.Role.String(), Content: m.Content})
	}
	return out
}

// =============================================================================
// CLIENT
// =============================================================================

// Client sends chat-completion requests to one resolved endpoint.
type Client struct {
	endpoint provider.ResolvedEndpoint
	timeout  time.Duration
}

// New creates a client bound to an endpoint.
func New(endpoint provider.ResolvedEndpoint) *Client {
	return &Client{
		endpoint: endpoint,
		timeout:  DefaultTimeout,
	}
}

// WithTimeout sets the per-request deadline.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.timeout = timeout
	}
	return c
}

// Endpoint returns the endpoint the client is bound to.
func (c *Client) Endpoint() provider.ResolvedEndpoint { return c.endpoint }

// chatURL returns the dialect's chat endpoint URL.
func (c *Client) chatURL() string {
	base := c.endpoint.BaseURL
	if c.endpoint.Dialect == provider.DialectOllama {
		// Local stores usually carry the OpenAI-compatible /v1 base;
		// the native API lives at the server root.
		base = strings.TrimSuffix(base, "/v1")
		return base + "/api/chat"
	}
	return base + "/chat/completions"
}

// setHeaders sets the request headers, including bearer auth only when
// a credential is present.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "snag/0.3.0")
	if c.endpoint.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.endpoint.APIKey)
	}
}

// Chat sends the whole conversation and returns the assistant's reply
// as one string. The entire message list is resent every call; the
// backends are stateless.
func (c *Client) Chat(ctx context.Context, msgs []model.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:    c.endpoint.ModelID,
		Messages: wireMessages(msgs),
		Stream:   false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return "", classifyRequestError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := readResponse(resp)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errorFromStatus(resp.StatusCode, respBody)
	}

	return c.parseReply(respBody)
}

// parseReply extracts the assistant content per the endpoint's dialect.
func (c *Client) parseReply(body []byte) (string, error) {
	if c.endpoint.Dialect == provider.DialectOllama {
		var or ollamaResponse
		if err := json.Unmarshal(body, &or); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if or.Message.Content == "" && !or.Done {
			return "", fmt.Errorf("%w: empty message", ErrMalformedResponse)
		}
		return or.Message.Content, nil
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	return cr.Choices[0].Message.Content, nil
}

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

// classifyRequestError maps connection-level failures onto the error
// taxonomy. Caller cancellation passes through untouched so interrupt
// handling upstream can recognize it.
func classifyRequestError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w after deadline: %v", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return context.Canceled
	default:
		return &TransportError{Message: err.Error()}
	}
}

// errorFromStatus builds a TransportError from a non-2xx response,
// preferring the API's own error message when the body carries one.
func errorFromStatus(status int, body []byte) error {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return &TransportError{Status: status, Message: apiErr.Error.Message}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &TransportError{Status: status, Message: msg}
}

// readResponse reads the body with a size limit.
// SECURITY: Response size limit prevents memory exhaustion.
func readResponse(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, MaxResponseSize)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, &TransportError{Message: fmt.Sprintf("failed to read response: %v", err)}
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("%w: response exceeded %d bytes", ErrMalformedResponse, MaxResponseSize)
	}
	return body, nil
}
