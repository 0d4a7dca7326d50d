// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jeranaias/snag/internal/model"
	"github.com/jeranaias/snag/internal/provider"
)

// =============================================================================
// STREAMING
// =============================================================================

// StreamCallback receives each content fragment as it arrives.
type StreamCallback func(content string)

// StreamError reports a stream that died mid-response. Partial holds
// everything received before the failure; it has already been shown to
// the user and is never retracted.
type StreamError struct {
	Partial string
	Err     error
}

func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream interrupted after %d chars: %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// sseChunk is one OpenAI-compatible SSE data frame.
type sseChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// ollamaChunk is one Ollama NDJSON line.
type ollamaChunk struct {
	Message ChatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// ChatStream sends the conversation and streams the reply through
// callback as fragments arrive, returning the assembled text.
//
// If the stream terminates before the backend signals completion, the
// partial text is returned alongside a *StreamError so the caller can
// keep what was already shown.
func (c *Client) ChatStream(ctx context.Context, msgs []model.Message, callback StreamCallback) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:    c.endpoint.ModelID,
		Messages: wireMessages(msgs),
		Stream:   true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	if c.endpoint.Dialect == provider.DialectOpenAI {
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-cache")
	}

	resp, err := sharedStreamingClient.Do(req)
	if err != nil {
		return "", classifyRequestError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		return "", errorFromStatus(resp.StatusCode, respBody)
	}

	var assembled strings.Builder
	emit := func(content string) {
		if content != "" {
			assembled.WriteString(content)
			callback(content)
		}
	}

	var streamErr error
	if c.endpoint.Dialect == provider.DialectOllama {
		streamErr = processNDJSON(ctx, resp.Body, emit)
	} else {
		streamErr = processSSE(ctx, resp.Body, emit)
	}

	if streamErr != nil {
		streamErr = classifyStreamError(ctx, streamErr)
		return assembled.String(), &StreamError{Partial: assembled.String(), Err: streamErr}
	}
	return assembled.String(), nil
}

func classifyStreamError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return context.Canceled
	default:
		return err
	}
}

// processSSE reads OpenAI-compatible "data:" frames until [DONE],
// finish_reason, or EOF. A clean EOF without a completion signal is an
// early termination and reported as an error.
func processSSE(ctx context.Context, body io.Reader, emit func(string)) error {
	reader := bufio.NewReader(body)
	finished := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				if finished {
					return nil
				}
				return io.ErrUnexpectedEOF
			}
			return err
		}

		line = bytes.TrimRight(line, "\r\n")
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		data := bytes.TrimSpace(line[5:])

		if bytes.Equal(data, []byte("[DONE]")) {
			return nil
		}

		var chunk sseChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			// Skip malformed frames rather than killing the stream.
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		emit(chunk.Choices[0].Delta.Content)
		if chunk.Choices[0].FinishReason != "" {
			finished = true
		}
	}
}

// processNDJSON reads Ollama's one-JSON-object-per-line stream until a
// line with done=true or EOF.
func processNDJSON(ctx context.Context, body io.Reader, emit func(string)) error {
	reader := bufio.NewReader(body)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return err
		}

		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			var chunk ollamaChunk
			if jsonErr := json.Unmarshal(trimmed, &chunk); jsonErr == nil {
				emit(chunk.Message.Content)
				if chunk.Done {
					return nil
				}
			}
		}

		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
	}
}
