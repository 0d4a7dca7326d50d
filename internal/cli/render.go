// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - Response and diagnostic rendering for snag.

package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/snag/internal/util"
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// markdownRenderer is the global glamour renderer.
// USABILITY: Renders markdown responses with syntax highlighting.
var markdownRenderer *glamour.TermRenderer

func init() {
	var err error
	markdownRenderer, err = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(DefaultTerminalWidth),
	)
	if err != nil {
		// Fall back to plain text.
		markdownRenderer = nil
	}
}

// renderMarkdown renders markdown for terminal display, falling back to
// the raw content if rendering fails.
func renderMarkdown(content string) string {
	if markdownRenderer == nil {
		return content
	}
	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// displayResponse prints an assistant response. Markdown rendering is
// only applied on a TTY so piped output stays machine-readable.
func displayResponse(response string, markdown bool) {
	if markdown && IsStdoutTTY() {
		fmt.Print(renderMarkdown(response))
		return
	}
	fmt.Println(response)
}

// reportError prints a failure in a consistent, styled form.
func reportError(err error) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
}

// commandPreview returns a one-line, width-bounded rendering of the
// captured command for banners and verbose output.
func commandPreview(command string) string {
	return util.TruncateWidth(util.FirstLine(command), GetTerminalWidth()-20)
}

// verbosef prints debug diagnostics to stderr when enabled.
func verbosef(enabled bool, format string, args ...any) {
	if !enabled {
		return
	}
	fmt.Fprintln(os.Stderr, dimStyle.Render("[debug] "+fmt.Sprintf(format, args...)))
}

// shellInitSnippet is printed by `snag shell-init`. The integration
// exports the two context variables before every prompt so a bare
// `snag` can diagnose the most recent command.
const shellInitSnippet = `# snag shell integration
# Add to your shell rc:  eval "$(snag shell-init)"
_snag_capture_last() {
  SNAG_LAST_EXIT=$?
  SNAG_LAST_COMMAND=$(fc -ln -1 2>/dev/null | sed 's/^[[:space:]]*//')
  export SNAG_LAST_COMMAND SNAG_LAST_EXIT
}
if [ -n "$ZSH_VERSION" ]; then
  precmd_functions+=(_snag_capture_last)
elif [ -n "$BASH_VERSION" ]; then
  PROMPT_COMMAND="_snag_capture_last${PROMPT_COMMAND:+;$PROMPT_COMMAND}"
fi
`

// usage is the -h text.
const usage = `snag - explain the last terminal failure

Usage:
  snag                    diagnose the most recent command (shell integration)
  snag <command ...>      run a command and diagnose its failure
  snag -n <line>          diagnose a command from shell history (1-based)
  snag config <op>        manage providers: list | add | remove | default
  snag shell-init         print the shell integration snippet

Flags:
  -m, --model NAME        use a configured provider by name
  -n, --number LINE       pick a shell history line
  -i, --interactive       keep the conversation open for follow-up questions
  -f, --force             analyze even when the command succeeded
  -v, --verbose           debug diagnostics on stderr
  -h, --help              this help
      --version           print the version

Config files live in ~/.snag (config.json for providers, settings.toml
for tuning). API keys come from api_key entries or <PROVIDER>_API_KEY
environment variables.
`

func printUsage() {
	fmt.Print(usage)
}

// joinNonEmpty joins parts with sep, skipping empties.
func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
