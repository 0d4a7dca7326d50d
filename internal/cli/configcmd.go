// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// configcmd.go - The 'snag config' subcommand.

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/snag/internal/config"
	"github.com/jeranaias/snag/internal/provider"
)

const configUsage = `Usage: snag config <action>

Actions:
  list                       Show configured providers
  add <name> --base <url>    Add or replace a provider
      [--model <id>] [--key <key>] [--default]
  remove <name>              Remove a provider (not the default)
  default <name>             Set the default provider
`

// runConfig dispatches the config subcommand against the given store.
// Mutating actions persist the store before returning.
func runConfig(store *config.Store, args []string, w io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(w, configUsage)
		return nil
	}

	switch args[0] {
	case "list":
		return configList(store, w)
	case "add":
		if err := configAdd(store, args[1:]); err != nil {
			return err
		}
	case "remove":
		if len(args) < 2 {
			return fmt.Errorf("usage: snag config remove <name>")
		}
		if err := store.Remove(args[1]); err != nil {
			return err
		}
	case "default":
		if len(args) < 2 {
			return fmt.Errorf("usage: snag config default <name>")
		}
		if err := store.SetDefault(args[1]); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown config action %q (try 'snag config')", args[0])
	}

	if err := store.Save(); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintln(w, successStyle.Render("Saved ")+store.Path())
	return nil
}

// configList prints every provider with its endpoint, model, and the
// environment variable consulted for its credential.
func configList(store *config.Store, w io.Writer) error {
	for _, p := range store.List() {
		name := p.Name
		if p.IsDefault {
			name += " (default)"
		}
		fmt.Fprintln(w, promptStyle.Render(name))
		fmt.Fprintln(w, labelStyle.Render("  endpoint")+p.APIBase)
		fmt.Fprintln(w, labelStyle.Render("  model")+p.Model)
		key := "from " + provider.CredentialEnvVar(p.APIBase)
		if p.APIKey != "" {
			key = "configured"
		}
		if provider.DialectFor(p.APIBase) == provider.DialectOllama {
			key = "not required"
		}
		fmt.Fprintln(w, labelStyle.Render("  api key")+key)
	}
	return nil
}

// configAdd parses 'config add' arguments and upserts the entry.
func configAdd(store *config.Store, args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return fmt.Errorf("usage: snag config add <name> --base <url> [--model <id>] [--key <key>] [--default]")
	}
	p := config.ProviderConfig{Name: args[0]}

	for i := 1; i < len(args); i++ {
		arg := args[i]
		value := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("flag %s requires a value", arg)
			}
			i++
			return args[i], nil
		}
		var err error
		switch arg {
		case "--base":
			p.APIBase, err = value()
		case "--model":
			p.Model, err = value()
		case "--key":
			p.APIKey, err = value()
		case "--default":
			p.IsDefault = true
		default:
			return fmt.Errorf("unknown flag %q for config add", arg)
		}
		if err != nil {
			return err
		}
	}
	return store.Upsert(p)
}
