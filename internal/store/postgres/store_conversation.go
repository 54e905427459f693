package postgres

import (
	"context"
	"errors"
	"fmt"

	"ragchat-backend/internal/models"
	"ragchat-backend/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// --- Conversation Methods ---

const createConversation = `
INSERT INTO conversations (id, user_id, name, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
RETURNING id, name, user_id, created_at, updated_at`

func (s *PostgresStore) CreateConversation(ctx context.Context, arg store.CreateConversationParams) (*models.Conversation, error) {
	conv, err := scanConversation(s.db.QueryRow(ctx, createConversation,
		arg.ID,
		arg.UserID,
		arg.Name,
		arg.CreatedAt,
	))
	if err != nil {
		s.log.Error("create conversation failed", zap.Stringer("user_id", arg.UserID), zap.Error(err))
		return nil, fmt.Errorf("database error creating conversation: %w", err)
	}
	return conv, nil
}

const getConversationByID = `
SELECT id, name, user_id, created_at, updated_at
FROM conversations
WHERE id = $1`

// GetConversationByID loads a conversation regardless of owner.
// Ownership is checked by the caller.
func (s *PostgresStore) GetConversationByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	conv, err := scanConversation(s.db.QueryRow(ctx, getConversationByID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		s.log.Error("get conversation failed", zap.Stringer("conversation_id", id), zap.Error(err))
		return nil, fmt.Errorf("database error fetching conversation: %w", err)
	}
	return conv, nil
}

const listConversationsByUser = `
SELECT id, name, user_id, created_at, updated_at
FROM conversations
WHERE user_id = $1
ORDER BY updated_at DESC, created_at DESC, id`

func (s *PostgresStore) ListConversationsByUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	rows, err := s.db.Query(ctx, listConversationsByUser, userID)
	if err != nil {
		s.log.Error("list conversations failed", zap.Stringer("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("database error listing conversations: %w", err)
	}
	defer rows.Close()

	conversations := []models.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning conversation row: %w", err)
		}
		conversations = append(conversations, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversation rows: %w", err)
	}
	return conversations, nil
}

const updateConversationName = `
UPDATE conversations SET name = $3, updated_at = $4
WHERE id = $1 AND user_id = $2
RETURNING id, name, user_id, created_at, updated_at`

func (s *PostgresStore) UpdateConversationName(ctx context.Context, arg store.UpdateConversationNameParams) (*models.Conversation, error) {
	conv, err := scanConversation(s.db.QueryRow(ctx, updateConversationName,
		arg.ID,
		arg.UserID,
		arg.Name,
		arg.UpdatedAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		s.log.Error("rename conversation failed", zap.Stringer("conversation_id", arg.ID), zap.Error(err))
		return nil, fmt.Errorf("database error renaming conversation: %w", err)
	}
	return conv, nil
}

// DeleteConversation removes the conversation's contexts, then its messages,
// then the conversation itself, all in one transaction.
func (s *PostgresStore) DeleteConversation(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var locked uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM conversations WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		id, userID,
	).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		return fmt.Errorf("database error locking conversation: %w", err)
	}

	steps := []struct {
		name  string
		query string
	}{
		{"contexts", `DELETE FROM contexts WHERE conversation_id = $1`},
		{"messages", `DELETE FROM messages WHERE conversation_id = $1`},
		{"conversation", `DELETE FROM conversations WHERE id = $1`},
	}
	for _, step := range steps {
		tag, err := tx.Exec(ctx, step.query, id)
		if err != nil {
			s.log.Error("delete conversation step failed",
				zap.String("step", step.name),
				zap.Stringer("conversation_id", id),
				zap.Error(err),
			)
			return fmt.Errorf("database error deleting %s: %w", step.name, err)
		}
		s.log.Debug("deleted rows", zap.String("step", step.name), zap.Int64("rows", tag.RowsAffected()))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var c models.Conversation
	if err := row.Scan(
		&c.ID,
		&c.Name,
		&c.UserID,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}
