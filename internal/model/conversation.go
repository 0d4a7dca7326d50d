// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// Pruning thresholds for interactive sessions. When a conversation grows
// past PruneThreshold messages, the oldest non-system messages are dropped
// until PruneKeep recent messages remain. System messages always survive.
const (
	PruneThreshold = 24
	PruneKeep      = 20
)

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds an ordered, append-only message history for one session.
// It lives only in memory; it is never persisted across invocations (the
// optional transcript log records completed turns separately).
type Conversation struct {
	ID        string
	CreatedAt time.Time
	Messages  []Message
}

// NewConversation creates an empty conversation with a generated session ID.
func NewConversation() *Conversation {
	return &Conversation{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		Messages:  make([]Message, 0),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// Append adds messages to the history in order.
func (c *Conversation) Append(msgs ...Message) {
	c.Messages = append(c.Messages, msgs...)
}

// Len returns the number of messages in the conversation.
func (c *Conversation) Len() int {
	return len(c.Messages)
}

// Last returns the most recent message and true, or a zero Message and
// false when the conversation is empty.
func (c *Conversation) Last() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// Snapshot returns a copy of the message slice. Callers may not mutate the
// conversation through the returned slice.
func (c *Conversation) Snapshot() []Message {
	out := make([]Message, len(c.Messages))
	copy(out, c.Messages)
	return out
}

// EstimateTokens returns a rough token estimate for the whole history.
func (c *Conversation) EstimateTokens() int {
	total := 0
	for _, m := range c.Messages {
		total += m.EstimateTokens()
	}
	return total
}

// Prune trims old history once the conversation exceeds PruneThreshold
// messages: system messages are kept in place, then the most recent
// PruneKeep non-system messages. Returns the number of messages dropped.
func (c *Conversation) Prune() int {
	if len(c.Messages) <= PruneThreshold {
		return 0
	}

	var system []Message
	var rest []Message
	for _, m := range c.Messages {
		if m.Role == RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}

	if len(rest) > PruneKeep {
		rest = rest[len(rest)-PruneKeep:]
	}

	dropped := len(c.Messages) - len(system) - len(rest)
	pruned := make([]Message, 0, len(system)+len(rest))
	pruned = append(pruned, system...)
	pruned = append(pruned, rest...)
	c.Messages = pruned
	return dropped
}
