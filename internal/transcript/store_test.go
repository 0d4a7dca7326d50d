// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transcript

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "transcript.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndQuery(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	turn := Turn{
		SessionID: "sess-1",
		Provider:  "ollama",
		Model:     "qwen2.5-coder:7b",
		Command:   "ls /nope",
		ExitCode:  2,
		Prompt:    "why did this fail?",
		Response:  "the directory does not exist",
		At:        time.Now(),
	}
	if err := s.Record(ctx, turn); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Record(ctx, Turn{
		SessionID: "sess-1",
		Provider:  "ollama",
		Model:     "qwen2.5-coder:7b",
		Prompt:    "how do I create it?",
		Response:  "use mkdir",
	}); err != nil {
		t.Fatalf("Record follow-up: %v", err)
	}

	turns, err := s.Session(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Command != "ls /nope" || turns[0].ExitCode != 2 {
		t.Errorf("first turn lost capture fields: %+v", turns[0])
	}
	if turns[1].Command != "" {
		t.Errorf("follow-up turn must not carry a command: %+v", turns[1])
	}
	if turns[0].Response != "the directory does not exist" {
		t.Errorf("unexpected response %q", turns[0].Response)
	}
}

func TestSessionIsolation(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "a", "b"} {
		if err := s.Record(ctx, Turn{SessionID: id, Provider: "p", Model: "m", Prompt: "q", Response: "r"}); err != nil {
			t.Fatal(err)
		}
	}

	turns, err := s.Session(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Errorf("expected 2 turns for session a, got %d", len(turns))
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expected 3 total turns, got %d", n)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.Record(context.Background(), Turn{SessionID: "x", Provider: "p", Model: "m", Prompt: "q", Response: "r"}); err != nil {
		t.Fatal(err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	n, err := s2.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("data lost across reopen: %d turns", n)
	}
}
