package store

import (
	"context"
	"errors"
	"time"

	"ragchat-backend/internal/models"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a specific record is not found.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a write violates a unique constraint (e.g. username).
var ErrDuplicate = errors.New("duplicate record")

// CreateConversationParams contains parameters for creating a conversation.
// CreatedAt is also used as the initial UpdatedAt.
type CreateConversationParams struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	CreatedAt time.Time
}

// UpdateConversationNameParams contains parameters for renaming a conversation.
type UpdateConversationNameParams struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	UpdatedAt time.Time
}

// CreateMessageParams contains parameters for appending a message.
// The parent conversation's updated_at is set to CreatedAt in the same transaction.
type CreateMessageParams struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           models.MessageRole
	Body           string
	CreatedAt      time.Time
}

// CreateContextParams contains parameters for appending a retrieved context.
type CreateContextParams struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Content        string
	Sources        []string
	CreatedAt      time.Time
}

// Store defines the interface for database operations.
// This allows for mocking in tests and DB backend switching (postgres, sqlite).
type Store interface {
	// User operations
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUsername(ctx context.Context, id uuid.UUID, username string, updatedAt time.Time) (*models.User, error)
	UpdateUserPassword(ctx context.Context, id uuid.UUID, hashedPassword string, updatedAt time.Time) error

	// Conversation operations
	CreateConversation(ctx context.Context, arg CreateConversationParams) (*models.Conversation, error)
	GetConversationByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	ListConversationsByUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)
	UpdateConversationName(ctx context.Context, arg UpdateConversationNameParams) (*models.Conversation, error)
	// DeleteConversation removes the conversation and all its messages and
	// contexts in a single transaction.
	DeleteConversation(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	// Message operations
	CreateMessage(ctx context.Context, arg CreateMessageParams) (*models.Message, error)
	ListMessagesByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error)
	// ListRecentMessages returns at most limit of the newest messages, oldest first.
	ListRecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error)

	// Context operations
	CreateContext(ctx context.Context, arg CreateContextParams) (*models.Context, error)
	ListContextsByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Context, error)
}
