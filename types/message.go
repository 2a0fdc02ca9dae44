// Package types provides core types used across naya.
// This package has ZERO dependencies on other naya packages to avoid circular imports.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a role accepted on the client-to-relay hop.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// ChatMessage is the wire shape of a conversation turn: role and content only.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Message represents one entry of a conversation.
// ID, Role and Timestamp never change after creation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a new message with the given role and content.
func NewMessage(role Role, content string) Message {
	return NewMessageAt(role, content, time.Now())
}

// NewMessageAt creates a message stamped with the given time.
func NewMessageAt(role Role, content string, at time.Time) Message {
	return Message{
		ID:        string(role) + "-" + uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: at,
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// Wire strips the message down to its wire form.
func (m Message) Wire() ChatMessage {
	return ChatMessage{Role: m.Role, Content: m.Content}
}

// WireMessages converts a slice of messages to their wire form.
func WireMessages(msgs []Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Wire())
	}
	return out
}
