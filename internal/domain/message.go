// Package domain holds the types shared across the chat pipeline.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Role identifies who authored a conversation turn.
type Role string

const (
	// RoleUser marks a turn typed by the student.
	RoleUser Role = "user"
	// RoleSystem marks a reply produced by NetworkU.
	RoleSystem Role = "system"
	// roleAssistant is accepted on input as an alias of RoleSystem.
	roleAssistant Role = "assistant"
)

var (
	// ErrEmptyConversation is returned when no turns were sent.
	ErrEmptyConversation = errors.New("conversation is empty")
	// ErrLastTurnNotUser is returned when the newest turn is not a user message.
	ErrLastTurnNotUser = errors.New("last message must be a non-empty user message")
)

// Message is one turn of the conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is the ordered list of turns, oldest first.
type Conversation []Message

// Normalize maps role aliases onto the canonical roles and trims role casing.
func (c Conversation) Normalize() Conversation {
	out := make(Conversation, len(c))
	for i, m := range c {
		role := Role(strings.ToLower(strings.TrimSpace(string(m.Role))))
		if role == roleAssistant {
			role = RoleSystem
		}
		out[i] = Message{Role: role, Content: m.Content}
	}
	return out
}

// Validate checks that the conversation can be sent to the pipeline.
func (c Conversation) Validate() error {
	if len(c) == 0 {
		return ErrEmptyConversation
	}
	for i, m := range c {
		if m.Role != RoleUser && m.Role != RoleSystem {
			return fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
	}
	last := c[len(c)-1]
	if last.Role != RoleUser || strings.TrimSpace(last.Content) == "" {
		return ErrLastTurnNotUser
	}
	return nil
}

// Last returns the most recent turn.
func (c Conversation) Last() Message {
	if len(c) == 0 {
		return Message{}
	}
	return c[len(c)-1]
}
