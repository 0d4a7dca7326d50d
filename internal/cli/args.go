// args.go - Argument parsing for the snag command line.
//
// snag's own flags come before the command to diagnose; the first token
// that is not a recognized flag starts the command tail, which is passed
// to the shell verbatim. That keeps `snag ls -la` working without any
// escaping.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// Options is the parsed command-line surface.
type Options struct {
	// Subcommand is "config" or "shell-init" when given, else empty.
	Subcommand string
	// SubArgs are the arguments after the subcommand.
	SubArgs []string

	// Provider selects a configured provider by name (-m).
	Provider string
	// HistoryIndex is a 1-based shell history line (-n); 0 means unset.
	HistoryIndex int
	// Interactive continues the conversation after the first analysis (-i).
	Interactive bool
	// Verbose enables debug diagnostics on stderr (-v).
	Verbose bool
	// Force requests analysis even when the executed command succeeded (-f).
	Force bool

	ShowHelp    bool
	ShowVersion bool

	// Command is the command tail to execute and diagnose.
	Command []string
}

// CommandLine returns the command tail as one shell line.
func (o *Options) CommandLine() string {
	return strings.Join(o.Command, " ")
}

// subcommands handled before any capture happens.
var subcommands = map[string]bool{
	"config":     true,
	"shell-init": true,
}

// ParseArgs parses the snag argument list (without the program name).
func ParseArgs(args []string) (*Options, error) {
	opts := &Options{}

	if len(args) > 0 && subcommands[args[0]] {
		opts.Subcommand = args[0]
		opts.SubArgs = args[1:]
		return opts, nil
	}

	i := 0
	for i < len(args) {
		arg := args[i]

		if !strings.HasPrefix(arg, "-") {
			// Everything from here on is the command to diagnose.
			opts.Command = args[i:]
			return opts, nil
		}

		// Support --flag=value for value flags.
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")

		takeValue := func() (string, error) {
			if hasValue {
				return value, nil
			}
			if i+1 >= len(args) {
				return "", fmt.Errorf("flag -%s requires a value", name)
			}
			i++
			return args[i], nil
		}

		switch name {
		case "m", "model":
			v, err := takeValue()
			if err != nil {
				return nil, err
			}
			opts.Provider = v
		case "n", "number":
			v, err := takeValue()
			if err != nil {
				return nil, err
			}
			idx, err := strconv.Atoi(v)
			if err != nil || idx < 1 {
				return nil, fmt.Errorf("-n wants a 1-based history line number, got %q", v)
			}
			opts.HistoryIndex = idx
		case "i", "interactive":
			opts.Interactive = true
		case "v", "verbose":
			opts.Verbose = true
		case "f", "force":
			opts.Force = true
		case "h", "help":
			opts.ShowHelp = true
		case "version":
			opts.ShowVersion = true
		default:
			return nil, fmt.Errorf("unknown flag %q (see 'snag -h')", arg)
		}
		i++
	}

	return opts, nil
}
