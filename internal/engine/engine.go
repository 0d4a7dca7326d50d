// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine owns the diagnostic conversation: it builds prompts
// from captures, talks to the resolved endpoint, and appends messages
// to the history only when a turn actually completes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jeranaias/snag/internal/capture"
	"github.com/jeranaias/snag/internal/llm"
	"github.com/jeranaias/snag/internal/model"
	"github.com/jeranaias/snag/internal/provider"
	"github.com/jeranaias/snag/internal/transcript"
)

// =============================================================================
// STATE MACHINE
// =============================================================================

// State is the engine's per-turn lifecycle.
type State string

const (
	// StateIdle means no turn has run yet.
	StateIdle State = "idle"
	// StateAwaitingResponse means a request is in flight.
	StateAwaitingResponse State = "awaiting_response"
	// StateReady means the engine can accept another turn.
	StateReady State = "ready"
)

// TruncationNotice is appended to an assistant message whose stream died
// early. The partial text was already shown and is never retracted.
const TruncationNotice = "\n\n[response interrupted]"

// ChatClient is the transport the engine drives. *llm.Client satisfies
// it; tests substitute fakes.
type ChatClient interface {
	Chat(ctx context.Context, msgs []model.Message) (string, error)
	ChatStream(ctx context.Context, msgs []model.Message, callback llm.StreamCallback) (string, error)
}

// Recorder mirrors completed turns to durable storage.
// *transcript.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, t transcript.Turn) error
}

// Engine drives one conversation against one endpoint. Not safe for
// concurrent use; each invocation owns its own engine.
type Engine struct {
	client   ChatClient
	endpoint provider.ResolvedEndpoint
	conv     *model.Conversation
	state    State
	recorder Recorder
	warnW    io.Writer

	// firstCapture holds the capture fields for the opening turn's
	// transcript record; cleared once recorded.
	firstCapture *capture.FailureContext
}

// New creates an engine for one session.
func New(client ChatClient, endpoint provider.ResolvedEndpoint) *Engine {
	return &Engine{
		client:   client,
		endpoint: endpoint,
		conv:     model.NewConversation(),
		state:    StateIdle,
		warnW:    os.Stderr,
	}
}

// WithRecorder enables transcript mirroring. Recording failures are
// warnings, never fatal.
func (e *Engine) WithRecorder(r Recorder) *Engine {
	e.recorder = r
	return e
}

// WithWarnWriter redirects warning output (tests).
func (e *Engine) WithWarnWriter(w io.Writer) *Engine {
	e.warnW = w
	return e
}

// State returns the engine's current state.
func (e *Engine) State() State { return e.state }

// SessionID returns the conversation's session identifier.
func (e *Engine) SessionID() string { return e.conv.ID }

// MessageCount returns the number of messages in the history.
func (e *Engine) MessageCount() int { return e.conv.Len() }

// History returns a copy of the conversation so far.
func (e *Engine) History() []model.Message { return e.conv.Snapshot() }

// =============================================================================
// TURNS
// =============================================================================

// SendCapture runs the opening turn from a capture: the diagnostician
// system message plus a user message embedding the command, exit code,
// and output. Only valid as the first turn.
//
// See Send for callback and error semantics.
func (e *Engine) SendCapture(ctx context.Context, fc capture.FailureContext, callback llm.StreamCallback) (string, error) {
	if e.conv.Len() > 0 {
		return "", errors.New("capture turn must be the first turn of a session")
	}
	e.firstCapture = &fc
	sys, user := buildFirstTurn(fc)
	return e.send(ctx, callback, sys, user)
}

// Send runs a free-form user turn.
//
// With a nil callback the request is non-streaming. With a callback,
// fragments are delivered as they arrive. A successful turn appends
// exactly the user and assistant messages; a failed turn appends
// nothing and returns a typed error. The one exception: a stream that
// dies after producing output keeps the partial reply, stores it with
// TruncationNotice appended, and still returns the *llm.StreamError so
// the caller can tell the user.
func (e *Engine) Send(ctx context.Context, text string, callback llm.StreamCallback) (string, error) {
	msgs := []model.Message{model.NewUserMessage(text)}
	// A capture turn that failed before committing left the history
	// empty; replay its context under the follow-up so the diagnostic
	// framing is not lost.
	if e.conv.Len() == 0 && e.firstCapture != nil {
		sys, user := buildFirstTurn(*e.firstCapture)
		msgs = append([]model.Message{sys, user}, msgs...)
	}
	return e.send(ctx, callback, msgs...)
}

func (e *Engine) send(ctx context.Context, callback llm.StreamCallback, newMsgs ...model.Message) (string, error) {
	e.state = StateAwaitingResponse
	defer func() { e.state = StateReady }()

	// Providers are stateless: the entire history rides on every request.
	outgoing := append(e.conv.Snapshot(), newMsgs...)

	var reply string
	var err error
	if callback != nil {
		reply, err = e.client.ChatStream(ctx, outgoing, callback)
	} else {
		reply, err = e.client.Chat(ctx, outgoing)
	}

	if err != nil {
		var streamErr *llm.StreamError
		if errors.As(err, &streamErr) && streamErr.Partial != "" {
			// Shown output is never retracted; store it marked as cut.
			stored := streamErr.Partial + TruncationNotice
			e.commit(ctx, newMsgs, stored)
			return stored, err
		}
		// The failed turn is not recorded; the caller may retry it.
		return "", err
	}

	e.commit(ctx, newMsgs, reply)
	return reply, nil
}

// commit appends the completed turn to the history and mirrors it to
// the transcript when enabled.
func (e *Engine) commit(ctx context.Context, newMsgs []model.Message, reply string) {
	e.conv.Append(newMsgs...)
	e.conv.Append(model.NewAssistantMessage(reply))
	e.conv.Prune()

	if e.recorder == nil {
		return
	}

	turn := transcript.Turn{
		SessionID: e.conv.ID,
		Provider:  e.endpoint.Provider,
		Model:     e.endpoint.ModelID,
		Prompt:    newMsgs[len(newMsgs)-1].Content,
		Response:  reply,
	}
	if e.firstCapture != nil {
		turn.Command = e.firstCapture.Command
		if e.firstCapture.HasExitCode() {
			turn.ExitCode = e.firstCapture.ExitCode
		}
		e.firstCapture = nil
	}
	if err := e.recorder.Record(ctx, turn); err != nil {
		fmt.Fprintf(e.warnW, "Warning: failed to record transcript: %v\n", err)
	}
}
