// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// =============================================================================
// HISTORY LOOKUP MODE
// =============================================================================

// HistoryRangeError reports a 1-based history index outside the file.
type HistoryRangeError struct {
	Index  int
	Length int
}

func (e *HistoryRangeError) Error() string {
	return fmt.Sprintf("history line %d out of range (history has %d entries)", e.Index, e.Length)
}

// HistoryFile returns the history file for the user's shell, following
// $SHELL: zsh gets ~/.zsh_history, everything else falls back to
// ~/.bash_history.
func HistoryFile() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	if strings.Contains(os.Getenv("SHELL"), "zsh") {
		return filepath.Join(home, ".zsh_history"), nil
	}
	return filepath.Join(home, ".bash_history"), nil
}

// FromHistory resolves a 1-based index into the shell history file to a
// FailureContext. History records neither output nor exit status, so
// both are represented as unknown; the prompt builder omits them rather
// than fabricating values.
func FromHistory(index int) (FailureContext, error) {
	path, err := HistoryFile()
	if err != nil {
		return FailureContext{}, err
	}
	return FromHistoryFile(path, index)
}

// FromHistoryFile is FromHistory against an explicit history file.
func FromHistoryFile(path string, index int) (FailureContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FailureContext{}, fmt.Errorf("failed to read history file %s: %w", path, err)
	}

	lines := splitHistoryLines(string(data))
	if index < 1 || index > len(lines) {
		return FailureContext{}, &HistoryRangeError{Index: index, Length: len(lines)}
	}

	return FailureContext{
		Command:  parseHistoryLine(lines[index-1]),
		ExitCode: ExitUnknown,
		Source:   SourceHistoryLookup,
	}, nil
}

func splitHistoryLines(data string) []string {
	raw := strings.Split(data, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// parseHistoryLine strips zsh extended-history metadata when present.
// Extended format: ": <timestamp>:<duration>;<command>". Plain bash
// lines pass through untouched.
func parseHistoryLine(line string) string {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, ": ") {
		if i := strings.Index(line, ";"); i >= 0 {
			return strings.TrimSpace(line[i+1:])
		}
	}
	return line
}
