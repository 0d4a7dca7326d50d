// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package capture normalizes the three ways snag learns about a command
// into one FailureContext: running the command itself, reading context a
// shell integration exported, or looking a command up in shell history.
//
// Downstream code consumes FailureContext without caring which mode
// produced it.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jeranaias/snag/internal/util"
)

// =============================================================================
// FAILURE CONTEXT
// =============================================================================

// Source identifies which capture mode produced a FailureContext.
type Source string

const (
	// SourceExecuted means snag ran the command as a child process.
	SourceExecuted Source = "executed"
	// SourceShellSupplied means a shell integration exported the last
	// command and its exit code before invoking snag.
	SourceShellSupplied Source = "shell"
	// SourceHistoryLookup means the command text came from the shell
	// history file; output and exit code are unknown.
	SourceHistoryLookup Source = "history"
)

// ExitUnknown marks a capture whose exit code history does not record.
const ExitUnknown = -1

// FailureContext is the normalized record of one diagnosed command.
// Immutable once constructed; it seeds exactly one conversation turn.
// An exit code of 0 is valid: the user may ask about a successful run.
type FailureContext struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Source   Source
}

// HasExitCode reports whether the exit code is known.
func (fc FailureContext) HasExitCode() bool { return fc.ExitCode != ExitUnknown }

// Succeeded reports whether the captured command is known to have
// exited zero.
func (fc FailureContext) Succeeded() bool { return fc.ExitCode == 0 }

// Environment variables populated by the shell-integration snippet.
const (
	EnvLastCommand = "SNAG_LAST_COMMAND"
	EnvLastExit    = "SNAG_LAST_EXIT"
)

// ErrNoShellContext indicates ShellSupplied capture was requested but the
// shell integration has not exported the last-command context.
var ErrNoShellContext = errors.New("no shell context available (run 'snag shell-init' and add the snippet to your shell rc)")

// =============================================================================
// EXECUTED MODE
// =============================================================================

// Execute runs command through the shell, capturing stdout and stderr
// separately, each capped at maxOutputBytes with a visible truncation
// marker. The child inherits the current working directory and
// environment.
//
// A command that cannot even be started still yields a FailureContext
// with a synthetic exit code and the OS error as stderr; launch failures
// are data here, not errors, because diagnosing them is the point.
func Execute(ctx context.Context, command string, maxOutputBytes int) FailureContext {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Stdin = os.Stdin

	fc := FailureContext{
		Command: command,
		Source:  SourceExecuted,
	}

	err := cmd.Run()
	switch {
	case err == nil:
		fc.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			fc.ExitCode = exitErr.ExitCode()
		} else {
			// The shell itself could not be started. Synthesize the
			// conventional not-found status and keep the OS error as
			// the command's stderr.
			fc.ExitCode = 127
			fmt.Fprintln(&stderr, err.Error())
		}
	}

	fc.Stdout = capOutput(stdout.String(), maxOutputBytes)
	fc.Stderr = capOutput(stderr.String(), maxOutputBytes)
	return fc
}

// TruncationMarker is appended to captured output that was cut at the
// configured byte cap, so the user and the model both see the cut.
const TruncationMarker = "\n[output truncated]"

// capOutput caps a stream at maxBytes; a non-positive cap disables
// capping rather than emptying the stream.
func capOutput(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return s
	}
	return util.TruncateBytes(s, maxBytes, TruncationMarker)
}

// =============================================================================
// SHELL-SUPPLIED MODE
// =============================================================================

// FromShellEnv builds a FailureContext from the two variables the shell
// integration exports. The command text is required; a missing or
// unparseable exit code degrades to ExitUnknown rather than failing the
// capture.
func FromShellEnv() (FailureContext, error) {
	command := strings.TrimSpace(os.Getenv(EnvLastCommand))
	if command == "" {
		return FailureContext{}, ErrNoShellContext
	}

	exitCode := ExitUnknown
	if raw := os.Getenv(EnvLastExit); raw != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			exitCode = n
		}
	}

	return FailureContext{
		Command:  command,
		ExitCode: exitCode,
		Source:   SourceShellSupplied,
	}, nil
}
