package engine

import (
	"context"
	"fmt"
)

// MessageRole represents the role of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is the provider-agnostic chat message passed around the loop.
// The conversation history is an append-only ordered sequence owned
// exclusively by the Engine.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// Validate checks if the Message is valid.
func (m Message) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant:
		return nil
	default:
		return fmt.Errorf("invalid message role: %s", m.Role)
	}
}

// Caller issues one completion request against the configured LLM
// provider. The gateway package provides the production implementation
// with its capability fallback ladder.
type Caller interface {
	Call(ctx context.Context, messages []Message) (string, error)
}
