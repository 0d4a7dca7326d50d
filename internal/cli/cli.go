// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Top-level command dispatch: parse arguments, load
// configuration, capture the failure, and hand off to a Session.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jeranaias/snag/internal/capture"
	"github.com/jeranaias/snag/internal/config"
	"github.com/jeranaias/snag/internal/engine"
	"github.com/jeranaias/snag/internal/llm"
	"github.com/jeranaias/snag/internal/provider"
	"github.com/jeranaias/snag/internal/transcript"
)

// Version is the snag release version.
const Version = "0.3.0"

// Run executes the snag command line and returns the process exit code.
func Run(args []string) int {
	opts, err := ParseArgs(args)
	if err != nil {
		reportError(err)
		fmt.Fprintln(os.Stderr, "Run 'snag -h' for usage.")
		return 2
	}

	if opts.ShowHelp {
		printUsage()
		return exitOK
	}
	if opts.ShowVersion {
		fmt.Println("snag " + Version)
		return exitOK
	}

	switch opts.Subcommand {
	case "shell-init":
		fmt.Print(shellInitSnippet)
		return exitOK
	case "config":
		store, err := config.Load()
		if err != nil {
			reportError(err)
			return exitFailure
		}
		if err := runConfig(store, opts.SubArgs, os.Stdout); err != nil {
			reportError(err)
			return exitFailure
		}
		return exitOK
	}

	settings, err := config.LoadSettings()
	if err != nil {
		// Bad settings degrade to defaults rather than blocking the run.
		fmt.Fprintln(os.Stderr, warningStyle.Render("Warning: ")+err.Error())
	}

	store, err := config.Load()
	if err != nil {
		reportError(err)
		var corrupt *config.CorruptError
		if errors.As(err, &corrupt) {
			fmt.Fprintf(os.Stderr, "Fix or remove %s and try again.\n", corrupt.Path)
		}
		return exitFailure
	}

	selector := opts.Provider
	if selector == "" {
		selector = settings.Model
	}
	endpoint, err := provider.Resolve(selector, store)
	if err != nil {
		reportError(err)
		return exitFailure
	}

	fc, code, done := captureFailure(opts, settings)
	if done {
		return code
	}

	client := llm.New(endpoint).WithTimeout(settings.RequestTimeout())
	eng := engine.New(client, endpoint)

	if settings.Transcript.Enabled {
		path, err := settings.TranscriptPath()
		var recorder *transcript.Store
		if err == nil {
			recorder, err = transcript.Open(path)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, warningStyle.Render("Warning: ")+"transcript disabled: "+err.Error())
		} else {
			eng = eng.WithRecorder(recorder)
			defer recorder.Close()
		}
	}

	session := NewSession(eng, endpoint, opts, settings.UI.Markdown)
	return session.Run(fc)
}

// captureFailure picks the capture mode from the options: -n reads the
// shell history, a command tail re-executes it, and otherwise the
// shell-integration environment is consulted. The bool result reports
// that the run is already decided (code is the exit status).
func captureFailure(opts *Options, settings *config.Settings) (capture.FailureContext, int, bool) {
	switch {
	case opts.HistoryIndex > 0:
		fc, err := capture.FromHistory(opts.HistoryIndex)
		if err != nil {
			reportError(err)
			return capture.FailureContext{}, exitFailure, true
		}
		return fc, 0, false

	case len(opts.Command) > 0:
		fc := capture.Execute(context.Background(), opts.CommandLine(), settings.Capture.MaxOutputBytes)
		if fc.Succeeded() && !opts.Force {
			// Nothing to diagnose; behave like a transparent wrapper.
			if fc.Stdout != "" {
				fmt.Print(fc.Stdout)
			}
			fmt.Fprintln(os.Stderr, dimStyle.Render("Command succeeded; nothing to analyze (use -f to force)."))
			return capture.FailureContext{}, exitOK, true
		}
		return fc, 0, false

	default:
		fc, err := capture.FromShellEnv()
		if err != nil {
			reportError(err)
			return capture.FailureContext{}, exitFailure, true
		}
		return fc, 0, false
	}
}
