package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a user in the database.
type User struct {
	ID             uuid.UUID `db:"id"`
	Username       string    `db:"username"`
	HashedPassword string    `db:"hashed_password"`
	Age            *int32    `db:"age"` // Optional
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Conversation is a chat thread owned by exactly one user.
// UserID never changes after creation.
type Conversation struct {
	ID        uuid.UUID `db:"id"`
	Name      string    `db:"name"`
	UserID    uuid.UUID `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Context is a snippet of retrieved text returned by the answer backend,
// attached to the conversation it was produced for.
type Context struct {
	ID             uuid.UUID `db:"id"`
	ConversationID uuid.UUID `db:"conversation_id"`
	Content        string    `db:"content"`
	Sources        []string  `db:"sources"` // Encoded as a JSON array by the store
	CreatedAt      time.Time `db:"created_at"`
}

// ConversationDetail is a conversation loaded together with its children.
type ConversationDetail struct {
	Conversation
	Messages []Message
	Contexts []Context
}
