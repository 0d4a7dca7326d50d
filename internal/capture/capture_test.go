// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestExecute_Success(t *testing.T) {
	requireUnix(t)

	fc := Execute(context.Background(), "echo hello", 8192)
	if fc.ExitCode != 0 {
		t.Errorf("expected exit 0, got %d (stderr: %q)", fc.ExitCode, fc.Stderr)
	}
	if strings.TrimSpace(fc.Stdout) != "hello" {
		t.Errorf("unexpected stdout %q", fc.Stdout)
	}
	if fc.Stderr != "" {
		t.Errorf("expected empty stderr, got %q", fc.Stderr)
	}
	if fc.Source != SourceExecuted {
		t.Errorf("unexpected source %q", fc.Source)
	}
	if !fc.Succeeded() {
		t.Error("exit 0 must count as success")
	}
}

func TestExecute_SeparateStreams(t *testing.T) {
	requireUnix(t)

	fc := Execute(context.Background(), "echo out; echo err >&2; exit 3", 8192)
	if fc.ExitCode != 3 {
		t.Errorf("expected exit 3, got %d", fc.ExitCode)
	}
	if strings.TrimSpace(fc.Stdout) != "out" {
		t.Errorf("stdout polluted: %q", fc.Stdout)
	}
	if strings.TrimSpace(fc.Stderr) != "err" {
		t.Errorf("stderr polluted: %q", fc.Stderr)
	}
}

func TestExecute_NonexistentCommand(t *testing.T) {
	requireUnix(t)

	fc := Execute(context.Background(), "definitely-not-a-command-xyz", 8192)
	if fc.ExitCode == 0 {
		t.Error("expected non-zero exit code")
	}
	if fc.Stderr == "" {
		t.Error("expected shell error text on stderr")
	}
}

func TestExecute_MissingFile(t *testing.T) {
	requireUnix(t)

	fc := Execute(context.Background(), "ls /nonexistent-path-for-test", 8192)
	if fc.ExitCode == 0 {
		t.Error("expected non-zero exit code")
	}
	if fc.Stderr == "" {
		t.Error("expected error output on stderr")
	}
	if fc.Command != "ls /nonexistent-path-for-test" {
		t.Errorf("command text must be preserved: %q", fc.Command)
	}
}

func TestExecute_OutputCap(t *testing.T) {
	requireUnix(t)

	fc := Execute(context.Background(), "yes x | head -c 4096", 100)
	if len(fc.Stdout) > 100+len(TruncationMarker) {
		t.Errorf("stdout not capped: %d bytes", len(fc.Stdout))
	}
	if !strings.HasSuffix(fc.Stdout, TruncationMarker) {
		t.Error("truncated output must carry the visible marker")
	}
}

func TestCapOutput_UTF8Boundary(t *testing.T) {
	// "日" is 3 bytes; cutting at 4 must back up to the rune boundary.
	s := "日本語"
	got := capOutput(s, 4)
	want := "日" + TruncationMarker
	if got != want {
		t.Errorf("capOutput = %q, want %q", got, want)
	}
}

func TestCapOutput_NonPositiveCapDisablesCapping(t *testing.T) {
	s := strings.Repeat("x", 64)
	for _, limit := range []int{0, -1} {
		if got := capOutput(s, limit); got != s {
			t.Errorf("capOutput(%d) altered the stream: %q", limit, got)
		}
	}
}

func TestFromShellEnv(t *testing.T) {
	t.Setenv(EnvLastCommand, "git psuh")
	t.Setenv(EnvLastExit, "1")

	fc, err := FromShellEnv()
	if err != nil {
		t.Fatalf("FromShellEnv: %v", err)
	}
	if fc.Command != "git psuh" || fc.ExitCode != 1 {
		t.Errorf("unexpected context %+v", fc)
	}
	if fc.Source != SourceShellSupplied {
		t.Errorf("unexpected source %q", fc.Source)
	}
}

func TestFromShellEnv_Missing(t *testing.T) {
	t.Setenv(EnvLastCommand, "")
	t.Setenv(EnvLastExit, "")

	_, err := FromShellEnv()
	if !errors.Is(err, ErrNoShellContext) {
		t.Errorf("expected ErrNoShellContext, got %v", err)
	}
}

func TestFromShellEnv_BadExitCode(t *testing.T) {
	t.Setenv(EnvLastCommand, "make")
	t.Setenv(EnvLastExit, "not-a-number")

	fc, err := FromShellEnv()
	if err != nil {
		t.Fatalf("FromShellEnv: %v", err)
	}
	if fc.HasExitCode() {
		t.Errorf("unparseable exit code must degrade to unknown, got %d", fc.ExitCode)
	}
}

func writeHistory(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFromHistoryFile_Bash(t *testing.T) {
	path := writeHistory(t, "ls -la\ngit status\nmake test\n")

	fc, err := FromHistoryFile(path, 2)
	if err != nil {
		t.Fatalf("FromHistoryFile: %v", err)
	}
	if fc.Command != "git status" {
		t.Errorf("expected 'git status', got %q", fc.Command)
	}
	if fc.HasExitCode() {
		t.Error("history capture must not fabricate an exit code")
	}
	if fc.Stdout != "" || fc.Stderr != "" {
		t.Error("history capture must not fabricate output")
	}
	if fc.Source != SourceHistoryLookup {
		t.Errorf("unexpected source %q", fc.Source)
	}
}

func TestFromHistoryFile_ZshExtendedFormat(t *testing.T) {
	path := writeHistory(t, ": 1714730000:0;cargo build --release\n: 1714730042:3;npm run test\n")

	fc, err := FromHistoryFile(path, 1)
	if err != nil {
		t.Fatalf("FromHistoryFile: %v", err)
	}
	if fc.Command != "cargo build --release" {
		t.Errorf("zsh metadata not stripped: %q", fc.Command)
	}
}

func TestFromHistoryFile_OutOfRange(t *testing.T) {
	path := writeHistory(t, "ls\n")

	_, err := FromHistoryFile(path, 5)
	var rangeErr *HistoryRangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("expected HistoryRangeError, got %v", err)
	}
	if rangeErr.Index != 5 || rangeErr.Length != 1 {
		t.Errorf("error must carry index and length: %+v", rangeErr)
	}

	if _, err := FromHistoryFile(path, 0); err == nil {
		t.Error("index 0 must be rejected (history is 1-based)")
	}
}

func TestFromHistoryFile_SkipsBlankLines(t *testing.T) {
	path := writeHistory(t, "ls\n\n\ngit status\n")

	fc, err := FromHistoryFile(path, 2)
	if err != nil {
		t.Fatalf("FromHistoryFile: %v", err)
	}
	if fc.Command != "git status" {
		t.Errorf("blank lines must not consume indices: %q", fc.Command)
	}
}
