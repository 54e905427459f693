package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageRole is the closed set of authors a message can have.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleSystem    MessageRole = "system"
	RoleAssistant MessageRole = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r MessageRole) Valid() bool {
	switch r {
	case RoleUser, RoleSystem, RoleAssistant:
		return true
	}
	return false
}

// Message represents a single message in a conversation.
// Messages are append-only and ordered by CreatedAt, then insertion order.
type Message struct {
	ID             uuid.UUID   `db:"id"`
	ConversationID uuid.UUID   `db:"conversation_id"`
	Role           MessageRole `db:"role"`
	Body           string      `db:"body"`
	CreatedAt      time.Time   `db:"created_at"`
}
