// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// AMBIENT SETTINGS
// =============================================================================

// Settings holds ambient behavior knobs from ~/.snag/settings.toml.
// Every field is optional; a missing file means full defaults.
type Settings struct {
	// Model overrides the provider selection when set (SNAG_MODEL).
	Model string `toml:"model"`
	// RequestTimeoutSecs bounds each HTTP request.
	RequestTimeoutSecs int `toml:"request_timeout_secs"`

	Capture    CaptureSettings    `toml:"capture"`
	Transcript TranscriptSettings `toml:"transcript"`
	UI         UISettings         `toml:"ui"`
}

// CaptureSettings tunes how much command output is kept.
type CaptureSettings struct {
	// MaxOutputBytes caps each of stdout and stderr before the capture
	// is embedded into a prompt. Truncation is always marked visibly.
	MaxOutputBytes int `toml:"max_output_bytes"`
}

// TranscriptSettings controls the opt-in local turn log.
type TranscriptSettings struct {
	Enabled bool `toml:"enabled"`
	// Path overrides the default ~/.snag/transcript.db location.
	Path string `toml:"path"`
}

// UISettings controls terminal rendering.
type UISettings struct {
	// Markdown renders assistant responses through the markdown
	// renderer when stdout is a terminal.
	Markdown bool `toml:"markdown"`
	// Color enables ANSI styling. NO_COLOR and SNAG_NO_COLOR force it off.
	Color bool `toml:"color"`
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() *Settings {
	return &Settings{
		RequestTimeoutSecs: 60,
		Capture: CaptureSettings{
			MaxOutputBytes: 8192,
		},
		Transcript: TranscriptSettings{
			Enabled: false,
		},
		UI: UISettings{
			Markdown: true,
			Color:    true,
		},
	}
}

// SettingsPath returns the path to the settings file.
func SettingsPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.toml"), nil
}

// LoadSettings reads settings from the default path, fills defaults, and
// applies environment overrides. A missing file is not an error; a
// malformed file returns defaults alongside the parse error so the caller
// can warn and continue.
func LoadSettings() (*Settings, error) {
	path, err := SettingsPath()
	if err != nil {
		return DefaultSettings().applyEnvOverrides(), nil
	}
	return LoadSettingsFrom(path)
}

// LoadSettingsFrom reads settings from an explicit path.
func LoadSettingsFrom(path string) (*Settings, error) {
	s := DefaultSettings()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return s.applyEnvOverrides(), nil
	}
	if _, err := toml.DecodeFile(path, s); err != nil {
		return DefaultSettings().applyEnvOverrides(), fmt.Errorf("failed to decode settings file %s: %w", path, err)
	}
	s.fillDefaults()
	return s.applyEnvOverrides(), nil
}

// fillDefaults restores defaults for zero values that have no meaningful
// zero semantics.
func (s *Settings) fillDefaults() {
	defaults := DefaultSettings()
	if s.RequestTimeoutSecs <= 0 {
		s.RequestTimeoutSecs = defaults.RequestTimeoutSecs
	}
	if s.Capture.MaxOutputBytes <= 0 {
		s.Capture.MaxOutputBytes = defaults.Capture.MaxOutputBytes
	}
}

// applyEnvOverrides applies environment variables on top of file values.
// Environment always wins; it is the last layer applied.
func (s *Settings) applyEnvOverrides() *Settings {
	// SNAG_MODEL
	if model := os.Getenv("SNAG_MODEL"); model != "" {
		s.Model = model
	}

	// SNAG_TIMEOUT_SECS
	if secs := os.Getenv("SNAG_TIMEOUT_SECS"); secs != "" {
		if n, err := strconv.Atoi(secs); err == nil && n > 0 {
			s.RequestTimeoutSecs = n
		}
	}

	// NO_COLOR (https://no-color.org) and SNAG_NO_COLOR
	if os.Getenv("NO_COLOR") != "" {
		s.UI.Color = false
	}
	if v := os.Getenv("SNAG_NO_COLOR"); v == "1" || strings.ToLower(v) == "true" {
		s.UI.Color = false
	}

	return s
}

// RequestTimeout returns the request timeout as a duration.
func (s *Settings) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSecs) * time.Second
}

// TranscriptPath returns the resolved transcript database path.
func (s *Settings) TranscriptPath() (string, error) {
	if s.Transcript.Path != "" {
		return s.Transcript.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "transcript.db"), nil
}
