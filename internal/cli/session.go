// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// session.go - Single-shot and interactive analysis sessions.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/snag/internal/capture"
	"github.com/jeranaias/snag/internal/engine"
	"github.com/jeranaias/snag/internal/llm"
	"github.com/jeranaias/snag/internal/provider"
)

// Exit codes returned by Session.Run.
const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

// Session drives the analysis conversation: one captured failure sent
// to the model, optionally followed by interactive follow-up turns.
type Session struct {
	engine   *engine.Engine
	endpoint provider.ResolvedEndpoint
	opts     *Options
	markdown bool

	mu          sync.Mutex
	cancelTurn  context.CancelFunc
	interrupted bool
}

// NewSession creates a session over an engine bound to the resolved
// endpoint.
func NewSession(eng *engine.Engine, endpoint provider.ResolvedEndpoint, opts *Options, markdown bool) *Session {
	return &Session{
		engine:   eng,
		endpoint: endpoint,
		opts:     opts,
		markdown: markdown,
	}
}

// Run sends the captured failure for analysis and, with -i, keeps the
// conversation open for follow-up questions. Returns the process exit
// code.
func (s *Session) Run(fc capture.FailureContext) int {
	// RELIABILITY: Ctrl+C cancels the in-flight request instead of
	// killing the process mid-stream.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			s.mu.Lock()
			s.interrupted = true
			if s.cancelTurn != nil {
				s.cancelTurn()
			}
			s.mu.Unlock()
			fmt.Fprintln(os.Stderr, warningStyle.Render("[Cancelled]"))
		}
	}()

	s.printBanner(fc)
	verbosef(s.opts.Verbose, "provider=%s model=%s dialect=%s base=%s",
		s.endpoint.Provider, s.endpoint.ModelID, s.endpoint.Dialect, s.endpoint.BaseURL)

	rendered := 0
	err := s.runTurn(func(ctx context.Context, cb llm.StreamCallback) (string, error) {
		return s.engine.SendCapture(ctx, fc, cb)
	})
	if err != nil {
		reportError(err)
	} else {
		rendered++
	}

	if s.opts.Interactive {
		// The loop opens even when the first turn failed; the engine
		// kept the capture context, so asking again retries it.
		if err != nil {
			fmt.Println(dimStyle.Render("Ask again to retry, or 'exit' to quit."))
		}
		rendered += s.interactiveLoop()
	}

	s.mu.Lock()
	interrupted := s.interrupted
	s.mu.Unlock()
	switch {
	case rendered > 0:
		return exitOK
	case interrupted:
		return exitInterrupted
	default:
		return exitFailure
	}
}

// interactiveLoop reads follow-up questions until the user quits.
// Returns the number of successfully rendered replies.
func (s *Session) interactiveLoop() int {
	reader := NewLineReader()
	defer reader.Close()

	fmt.Println(dimStyle.Render("Follow-up questions welcome. Empty line or 'exit' to quit."))
	rendered := 0
	for {
		input, err := reader.ReadInput(promptStyle.Render("snag> "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println()
				return rendered
			}
			reportError(err)
			return rendered
		}
		input = strings.TrimSpace(input)
		switch input {
		case "", "exit", "quit", "/quit":
			return rendered
		}

		err = s.runTurn(func(ctx context.Context, cb llm.StreamCallback) (string, error) {
			return s.engine.Send(ctx, input, cb)
		})
		if err != nil {
			// The conversation is still usable after a failed turn.
			reportError(err)
			continue
		}
		rendered++
	}
}

// runTurn executes one request against the model and renders the
// reply. Streaming output is used unless markdown rendering is on and
// stdout is a terminal, in which case the reply is buffered so glamour
// can format the whole document.
func (s *Session) runTurn(send func(ctx context.Context, cb llm.StreamCallback) (string, error)) error {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancelTurn = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancelTurn = nil
		s.mu.Unlock()
		cancel()
	}()

	streaming := !(s.markdown && IsStdoutTTY())
	var cb llm.StreamCallback
	if streaming {
		cb = func(chunk string) { fmt.Print(chunk) }
	}

	start := time.Now()
	reply, err := send(ctx, cb)
	verbosef(s.opts.Verbose, "turn completed in %s", time.Since(start).Round(time.Millisecond))

	if err != nil {
		var streamErr *llm.StreamError
		if errors.As(err, &streamErr) && reply != "" {
			// Partial output was kept; show what arrived.
			if streaming {
				fmt.Println()
				fmt.Fprintln(os.Stderr, warningStyle.Render("[response interrupted]"))
			} else {
				displayResponse(reply, s.markdown)
			}
			return nil
		}
		return err
	}

	if streaming {
		fmt.Println()
	} else {
		displayResponse(reply, s.markdown)
	}
	return nil
}

// printBanner shows what is being analyzed.
func (s *Session) printBanner(fc capture.FailureContext) {
	parts := []string{"Analyzing: " + commandPreview(fc.Command)}
	if fc.HasExitCode() {
		parts = append(parts, fmt.Sprintf("(exit %d)", fc.ExitCode))
	}
	fmt.Fprintln(os.Stderr, dimStyle.Render(joinNonEmpty(" ", parts...)))
}
