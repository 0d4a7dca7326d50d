// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package engine

import (
	"fmt"
	"strings"

	"github.com/jeranaias/snag/internal/capture"
	"github.com/jeranaias/snag/internal/model"
)

// =============================================================================
// PROMPT CONSTRUCTION
// =============================================================================

// systemPrompt frames the assistant as a terminal-error diagnostician.
// It insists on analyzing the command as typed because models love to
// "correct" a typo'd command into a different one and diagnose that
// instead.
const systemPrompt = `You are a command-line error analysis expert.
Analyze the command failure below and explain what went wrong and how to fix it.
Important: the command is exactly what the user typed. Do not assume they meant
a different command unless the error output itself says the system resolved it
to something else. Keep the answer focused and actionable.`

// buildFirstTurn converts a capture into the opening system+user pair.
// Fields history cannot know (exit code, output) are omitted, never
// fabricated.
func buildFirstTurn(fc capture.FailureContext) (model.Message, model.Message) {
	var b strings.Builder

	fmt.Fprintf(&b, "Command: %s\n", fc.Command)
	if fc.HasExitCode() {
		fmt.Fprintf(&b, "Exit code: %d\n", fc.ExitCode)
	}
	if fc.Stdout != "" {
		fmt.Fprintf(&b, "Standard output:\n%s\n", fc.Stdout)
	}
	if fc.Stderr != "" {
		fmt.Fprintf(&b, "Error output:\n%s\n", fc.Stderr)
	}
	if fc.Source == capture.SourceHistoryLookup {
		b.WriteString("(Command taken from shell history; its output and exit code were not recorded.)\n")
	}
	b.WriteString("\nAnalyze the error this specific command produced and suggest a fix.")

	return model.NewSystemMessage(systemPrompt), model.NewUserMessage(b.String())
}
