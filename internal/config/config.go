// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config manages the durable provider store and ambient settings
// for snag.
//
// Providers live in a single JSON document at ~/.snag/config.json, an
// object keyed by provider name. Ambient settings (timeouts, output caps,
// UI toggles) live in ~/.snag/settings.toml and are always optional.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jeranaias/snag/internal/util"
)

// =============================================================================
// PROVIDER STORE
// =============================================================================

// ProviderConfig describes one named backend: where it lives, how to
// authenticate, and which model to request.
type ProviderConfig struct {
	// Name is the store key; it is not serialized into the entry body.
	Name string `json:"-"`
	// APIBase is the base URL of the provider's chat-completion API.
	APIBase string `json:"api_base"`
	// APIKey is an optional literal credential. When empty, the key is
	// resolved from the environment at request time.
	APIKey string `json:"api_key,omitempty"`
	// Model is the model identifier sent in request bodies.
	Model string `json:"model"`
	// IsDefault marks the provider used when no selector is given.
	// At most one entry in a store may set this.
	IsDefault bool `json:"is_default"`
}

// Store is an in-memory view of the provider config file. Mutations are
// not durable until Save is called.
type Store struct {
	path      string
	providers map[string]ProviderConfig
}

// Sentinel errors for the provider store.
var (
	// ErrCorrupt indicates the config file exists but cannot be parsed.
	// The store is never silently overwritten in this state.
	ErrCorrupt = errors.New("config file is corrupt")
	// ErrNotFound indicates a lookup for an unknown provider name.
	ErrNotFound = errors.New("provider not found")
)

// CorruptError reports an unparseable config file, carrying the path so
// the user knows exactly which file to fix or delete.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("config file %s is corrupt: %v (fix or delete it, then re-run)", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() []error { return []error{ErrCorrupt, e.Err} }

// NotFoundError reports a lookup of a provider name absent from the store.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown provider %q (run 'snag config list' to see configured providers)", e.Name)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConfigDir returns the per-user snag directory (~/.snag).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".snag"), nil
}

// ConfigPath returns the path to the provider store file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the snag directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 (owner read/write only) to protect API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// defaultProviders is the built-in set written on first run: a key-less
// local provider (the default) plus two cloud templates.
func defaultProviders() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"ollama": {
			Name:      "ollama",
			APIBase:   "http://127.0.0.1:11434/v1",
			Model:     "qwen2.5-coder:7b",
			IsDefault: true,
		},
		"openai": {
			Name:    "openai",
			APIBase: "https://api.openai.com/v1",
			Model:   "gpt-4o",
		},
		"deepseek": {
			Name:    "deepseek",
			APIBase: "https://api.deepseek.com/v1",
			Model:   "deepseek-chat",
		},
	}
}

// Load reads the provider store from the default path. If no store exists
// yet, the built-in default set is created, persisted, and returned.
func Load() (*Store, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the provider store from an explicit path.
// A malformed file fails with a *CorruptError naming the path; it is
// never overwritten.
func LoadFrom(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s := &Store{path: path, providers: defaultProviders()}
		if err := s.Save(); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// SECURITY: Check and fix file permissions if needed
	if permErr := ensureSecurePermissions(path); permErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, permErr)
	}

	var providers map[string]ProviderConfig
	if err := json.Unmarshal(data, &providers); err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}
	for name, p := range providers {
		p.Name = name
		providers[name] = p
	}
	s := &Store{path: path, providers: providers}
	s.normalizeDefault()
	return s, nil
}

// normalizeDefault restores the at-most-one-default invariant after a
// hand-edited file marked several entries. The first by name keeps the
// flag so resolution stays deterministic; the file itself is untouched.
func (s *Store) normalizeDefault() {
	var defaults []string
	for name, p := range s.providers {
		if p.IsDefault {
			defaults = append(defaults, name)
		}
	}
	if len(defaults) < 2 {
		return
	}
	sort.Strings(defaults)
	for _, name := range defaults[1:] {
		p := s.providers[name]
		p.IsDefault = false
		s.providers[name] = p
	}
}

// Save writes the store to its file.
// RELIABILITY: Atomic write with fsync prevents data loss on crash.
// SECURITY: Written with restrictive permissions (0600 = owner read/write only).
func (s *Store) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(s.providers, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	data = append(data, '\n')
	if err := util.AtomicWriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Path returns the file the store was loaded from.
func (s *Store) Path() string { return s.path }

// Len returns the number of configured providers.
func (s *Store) Len() int { return len(s.providers) }

// Get looks up a provider by name.
func (s *Store) Get(name string) (ProviderConfig, error) {
	p, ok := s.providers[name]
	if !ok {
		return ProviderConfig{}, &NotFoundError{Name: name}
	}
	return p, nil
}

// Default returns the provider marked is_default, if any.
func (s *Store) Default() (ProviderConfig, bool) {
	for _, p := range s.providers {
		if p.IsDefault {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// List returns all providers sorted by name.
func (s *Store) List() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(s.providers))
	for _, p := range s.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Upsert adds or replaces a provider entry. If the entry claims the
// default slot, that flag is cleared from every other entry so at most
// one default survives.
func (s *Store) Upsert(p ProviderConfig) error {
	if p.Name == "" {
		return errors.New("provider name must not be empty")
	}
	if p.APIBase == "" {
		return fmt.Errorf("provider %q: api_base must not be empty", p.Name)
	}
	if p.IsDefault {
		s.clearDefault()
	}
	s.providers[p.Name] = p
	return nil
}

// Remove deletes a provider by name. Removing the default provider is
// refused so the store never loses its fallback.
func (s *Store) Remove(name string) error {
	p, ok := s.providers[name]
	if !ok {
		return &NotFoundError{Name: name}
	}
	if p.IsDefault {
		return fmt.Errorf("cannot remove default provider %q (set another default first)", name)
	}
	delete(s.providers, name)
	return nil
}

// SetDefault marks the named provider as the default and clears the flag
// everywhere else.
func (s *Store) SetDefault(name string) error {
	p, ok := s.providers[name]
	if !ok {
		return &NotFoundError{Name: name}
	}
	s.clearDefault()
	p.IsDefault = true
	s.providers[name] = p
	return nil
}

func (s *Store) clearDefault() {
	for name, p := range s.providers {
		if p.IsDefault {
			p.IsDefault = false
			s.providers[name] = p
		}
	}
}
