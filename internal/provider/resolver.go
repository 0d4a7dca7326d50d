// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider resolves a provider selection into a fully-specified
// endpoint: base URL, credential, model identifier, and request dialect.
//
// Resolution is pure derivation over the loaded store plus the process
// environment. No network I/O happens here.
package provider

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/jeranaias/snag/internal/config"
)

// =============================================================================
// DIALECTS
// =============================================================================

// Dialect identifies the request/response wire format an endpoint speaks.
// It is a small closed set; transport code switches on it rather than
// inspecting provider names.
type Dialect string

const (
	// DialectOpenAI is the OpenAI-compatible chat-completion API:
	// POST {base}/chat/completions, bearer auth, SSE streaming.
	DialectOpenAI Dialect = "openai"
	// DialectOllama is the local Ollama API: POST {base}/api/chat,
	// no auth, NDJSON streaming.
	DialectOllama Dialect = "ollama"
)

// ResolvedEndpoint is the derived, never-persisted target of one session.
type ResolvedEndpoint struct {
	BaseURL string
	// APIKey is empty for endpoints whose dialect needs no auth.
	APIKey  string
	ModelID string
	Dialect Dialect
	// Provider is the store name the endpoint was resolved from.
	Provider string
}

// RequiresAuth reports whether requests to this endpoint carry a
// credential header.
func (e ResolvedEndpoint) RequiresAuth() bool {
	return e.Dialect != DialectOllama
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrNoProvider indicates no selector was given and the store has no
// default entry.
var ErrNoProvider = errors.New("no provider configured")

// MissingCredentialError reports an endpoint that requires a credential
// none could be resolved for. The message names the exact environment
// variable to set.
// USABILITY: This message is what unblocks a first-time user; keep the
// variable name in it.
type MissingCredentialError struct {
	Provider string
	EnvVar   string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("no API key for provider %q: set the %s environment variable or add api_key to the config", e.Provider, e.EnvVar)
}

// =============================================================================
// RESOLUTION
// =============================================================================

// Resolve turns a selector (possibly empty) and a loaded store into a
// ResolvedEndpoint.
//
// Order: an explicit selector must name a configured provider; with no
// selector the default entry is used; with neither, ErrNoProvider.
// Credential order: literal api_key, then the environment variable
// derived from the endpoint host, then none iff the dialect is local.
func Resolve(selector string, store *config.Store) (ResolvedEndpoint, error) {
	var pc config.ProviderConfig
	if selector != "" {
		var err error
		pc, err = store.Get(selector)
		if err != nil {
			return ResolvedEndpoint{}, err
		}
	} else {
		var ok bool
		pc, ok = store.Default()
		if !ok {
			return ResolvedEndpoint{}, fmt.Errorf("%w: no default provider in %s", ErrNoProvider, store.Path())
		}
	}

	dialect := DialectFor(pc.APIBase)
	ep := ResolvedEndpoint{
		BaseURL:  strings.TrimRight(pc.APIBase, "/"),
		ModelID:  pc.Model,
		Dialect:  dialect,
		Provider: pc.Name,
	}

	switch {
	case pc.APIKey != "":
		ep.APIKey = pc.APIKey
	default:
		envVar := CredentialEnvVar(pc.APIBase)
		if key := os.Getenv(envVar); key != "" {
			ep.APIKey = key
		} else if ep.RequiresAuth() {
			return ResolvedEndpoint{}, &MissingCredentialError{Provider: pc.Name, EnvVar: envVar}
		}
	}

	return ep, nil
}

// DialectFor derives the wire dialect from a base URL. Endpoints on the
// local host speak the Ollama dialect; everything else is treated as
// OpenAI-compatible.
func DialectFor(apiBase string) Dialect {
	u, err := url.Parse(apiBase)
	if err != nil {
		return DialectOpenAI
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return DialectOllama
	}
	return DialectOpenAI
}

// CredentialEnvVar derives the conventional credential variable name for
// a base URL: the first dot-separated host label that is not a common
// subdomain marker ("api", "www"), upper-cased, plus "_API_KEY".
//
//	https://api.openai.com/v1          -> OPENAI_API_KEY
//	https://api.deepseek.com/v1        -> DEEPSEEK_API_KEY
//	https://dashscope.aliyuncs.com/... -> DASHSCOPE_API_KEY
func CredentialEnvVar(apiBase string) string {
	label := hostLabel(apiBase)
	if label == "" {
		return "SNAG_API_KEY"
	}
	return sanitizeEnvLabel(label) + "_API_KEY"
}

// hostLabel extracts the first meaningful dot-separated label of the
// host part of apiBase.
func hostLabel(apiBase string) string {
	u, err := url.Parse(apiBase)
	if err != nil {
		return ""
	}
	host := u.Hostname()
	if host == "" {
		return ""
	}
	for _, label := range strings.Split(host, ".") {
		switch strings.ToLower(label) {
		case "", "api", "www":
			continue
		}
		return label
	}
	return ""
}

// sanitizeEnvLabel upper-cases a host label and maps characters that are
// not valid in environment variable names to underscores.
func sanitizeEnvLabel(label string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(label) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
