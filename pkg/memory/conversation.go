// Copyright 2026 © The Praxis Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sync"

	"github.com/jllopis/praxis/pkg/llm"
)

// ConversationStore persists ordered conversation history per tenant and
// conversation id.
type ConversationStore interface {
	// History returns all messages of a conversation, oldest first.
	History(ctx context.Context, tenant, conversationID string) ([]llm.Message, error)
	// Append adds messages to the end of a conversation.
	Append(ctx context.Context, tenant, conversationID string, messages []llm.Message) error
	// Clear removes a conversation entirely.
	Clear(ctx context.Context, tenant, conversationID string) error
}

// Window trims history to the last max messages, always keeping leading
// system messages. Applied before history is embedded into model calls.
func Window(messages []llm.Message, max int) []llm.Message {
	if max <= 0 || len(messages) <= max {
		return messages
	}
	var system []llm.Message
	for _, msg := range messages {
		if msg.Role != llm.RoleSystem {
			break
		}
		system = append(system, msg)
	}
	rest := messages[len(system):]
	keep := max - len(system)
	if keep < 0 {
		keep = 0
	}
	if len(rest) > keep {
		rest = rest[len(rest)-keep:]
	}
	return append(append([]llm.Message{}, system...), rest...)
}

// InMemoryConversations is a ConversationStore held in process memory.
type InMemoryConversations struct {
	mu    sync.RWMutex
	turns map[string][]llm.Message
}

// NewInMemoryConversations creates an empty conversation store.
func NewInMemoryConversations() *InMemoryConversations {
	return &InMemoryConversations{turns: make(map[string][]llm.Message)}
}

func conversationKey(tenant, conversationID string) string {
	return tenant + "\x00" + conversationID
}

// History implements ConversationStore.
func (s *InMemoryConversations) History(_ context.Context, tenant, conversationID string) ([]llm.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.turns[conversationKey(tenant, conversationID)]
	return append([]llm.Message{}, stored...), nil
}

// Append implements ConversationStore.
func (s *InMemoryConversations) Append(_ context.Context, tenant, conversationID string, messages []llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := conversationKey(tenant, conversationID)
	s.turns[key] = append(s.turns[key], messages...)
	return nil
}

// Clear implements ConversationStore.
func (s *InMemoryConversations) Clear(_ context.Context, tenant, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, conversationKey(tenant, conversationID))
	return nil
}
