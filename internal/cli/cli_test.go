// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/jeranaias/snag/internal/config"
)

func TestParseArgsFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Options
	}{
		{"empty", nil, Options{}},
		{"interactive short", []string{"-i"}, Options{Interactive: true}},
		{"interactive long", []string{"--interactive"}, Options{Interactive: true}},
		{"provider short", []string{"-m", "openai"}, Options{Provider: "openai"}},
		{"provider equals", []string{"--model=deepseek"}, Options{Provider: "deepseek"}},
		{"history", []string{"-n", "3"}, Options{HistoryIndex: 3}},
		{"verbose force", []string{"-v", "-f"}, Options{Verbose: true, Force: true}},
		{"help", []string{"-h"}, Options{ShowHelp: true}},
		{"version", []string{"--version"}, Options{ShowVersion: true}},
		{
			"command tail verbatim",
			[]string{"-v", "ls", "-la", "/tmp"},
			Options{Verbose: true, Command: []string{"ls", "-la", "/tmp"}},
		},
		{
			"flags after command belong to the command",
			[]string{"git", "push", "-f"},
			Options{Command: []string{"git", "push", "-f"}},
		},
		{
			"subcommand config",
			[]string{"config", "list"},
			Options{Subcommand: "config", SubArgs: []string{"list"}},
		},
		{
			"subcommand shell-init",
			[]string{"shell-init"},
			Options{Subcommand: "shell-init", SubArgs: []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArgs(tt.args)
			if err != nil {
				t.Fatalf("ParseArgs(%v): %v", tt.args, err)
			}
			if !optionsEqual(*got, tt.want) {
				t.Errorf("ParseArgs(%v) = %+v, want %+v", tt.args, *got, tt.want)
			}
		})
	}
}

// optionsEqual compares ignoring nil-vs-empty slice noise.
func optionsEqual(a, b Options) bool {
	if len(a.Command) == 0 {
		a.Command = nil
	}
	if len(b.Command) == 0 {
		b.Command = nil
	}
	if len(a.SubArgs) == 0 {
		a.SubArgs = nil
	}
	if len(b.SubArgs) == 0 {
		b.SubArgs = nil
	}
	return reflect.DeepEqual(a, b)
}

func TestParseArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"-x"}},
		{"model missing value", []string{"-m"}},
		{"history not a number", []string{"-n", "abc"}},
		{"history zero", []string{"-n", "0"}},
		{"history negative", []string{"-n", "-2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseArgs(tt.args); err == nil {
				t.Fatalf("ParseArgs(%v): expected error", tt.args)
			}
		})
	}
}

func TestCommandLineJoins(t *testing.T) {
	opts := &Options{Command: []string{"ls", "-la", "/tmp"}}
	if got := opts.CommandLine(); got != "ls -la /tmp" {
		t.Errorf("CommandLine() = %q", got)
	}
}

func TestShellInitSnippet(t *testing.T) {
	for _, want := range []string{"SNAG_LAST_COMMAND", "SNAG_LAST_EXIT", "precmd", "PROMPT_COMMAND"} {
		if !strings.Contains(shellInitSnippet, want) {
			t.Errorf("shell-init snippet missing %q", want)
		}
	}
}

func testStore(t *testing.T) *config.Store {
	t.Helper()
	store, err := config.LoadFrom(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	return store
}

func TestRunConfigList(t *testing.T) {
	store := testStore(t)
	var out bytes.Buffer
	if err := runConfig(store, []string{"list"}, &out); err != nil {
		t.Fatalf("config list: %v", err)
	}
	for _, want := range []string{"ollama (default)", "openai", "deepseek", "OPENAI_API_KEY", "not required"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("config list output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunConfigAdd(t *testing.T) {
	store := testStore(t)
	var out bytes.Buffer
	args := []string{"add", "openrouter", "--base", "https://openrouter.ai/api/v1", "--model", "qwen/qwen-2.5-coder-32b-instruct", "--default"}
	if err := runConfig(store, args, &out); err != nil {
		t.Fatalf("config add: %v", err)
	}

	// The change must survive a reload.
	reloaded, err := config.LoadFrom(store.Path())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	p, err := reloaded.Get("openrouter")
	if err != nil {
		t.Fatalf("Get after add: %v", err)
	}
	if !p.IsDefault {
		t.Error("added provider should be the default")
	}
	if prev, _ := reloaded.Get("ollama"); prev.IsDefault {
		t.Error("previous default flag not cleared")
	}
}

func TestRunConfigAddErrors(t *testing.T) {
	store := testStore(t)
	var out bytes.Buffer
	tests := [][]string{
		{"add"},
		{"add", "--base", "https://x"},
		{"add", "name"},
		{"add", "name", "--base"},
		{"add", "name", "--bogus", "x"},
	}
	for _, args := range tests {
		if err := runConfig(store, args, &out); err == nil {
			t.Errorf("runConfig(%v): expected error", args)
		}
	}
}

func TestRunConfigRemoveAndDefault(t *testing.T) {
	store := testStore(t)
	var out bytes.Buffer

	if err := runConfig(store, []string{"remove", "ollama"}, &out); err == nil {
		t.Error("removing the default provider should fail")
	}
	if err := runConfig(store, []string{"default", "openai"}, &out); err != nil {
		t.Fatalf("config default: %v", err)
	}
	if err := runConfig(store, []string{"remove", "ollama"}, &out); err != nil {
		t.Fatalf("config remove after default change: %v", err)
	}

	reloaded, err := config.LoadFrom(store.Path())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, err := reloaded.Get("ollama"); err == nil {
		t.Error("removed provider still present after reload")
	}
	if p, ok := reloaded.Default(); !ok || p.Name != "openai" {
		t.Errorf("default after change = %+v, %v", p, ok)
	}
}

func TestRunConfigUnknownAction(t *testing.T) {
	store := testStore(t)
	var out bytes.Buffer
	if err := runConfig(store, []string{"frobnicate"}, &out); err == nil {
		t.Error("unknown action should error")
	}
}
