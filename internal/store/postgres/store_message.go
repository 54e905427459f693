package postgres

import (
	"context"
	"errors"
	"fmt"

	"ragchat-backend/internal/models"
	"ragchat-backend/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// foreignKeyViolation is the PostgreSQL error code for foreign_key_violation.
const foreignKeyViolation = "23503"

// --- Message Methods ---

const createMessage = `
INSERT INTO messages (id, conversation_id, role, body, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, conversation_id, role, body, created_at`

const touchConversation = `
UPDATE conversations SET updated_at = $2
WHERE id = $1`

// CreateMessage appends a message and bumps the parent conversation's
// updated_at in the same transaction.
func (s *PostgresStore) CreateMessage(ctx context.Context, arg store.CreateMessageParams) (*models.Message, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	msg, err := scanMessage(tx.QueryRow(ctx, createMessage,
		arg.ID,
		arg.ConversationID,
		string(arg.Role),
		arg.Body,
		arg.CreatedAt,
	))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		s.log.Error("create message failed", zap.Stringer("conversation_id", arg.ConversationID), zap.Error(err))
		return nil, fmt.Errorf("database error creating message: %w", err)
	}

	if _, err := tx.Exec(ctx, touchConversation, arg.ConversationID, arg.CreatedAt); err != nil {
		return nil, fmt.Errorf("database error touching conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}
	return msg, nil
}

const listMessagesByConversation = `
SELECT id, conversation_id, role, body, created_at
FROM messages
WHERE conversation_id = $1
ORDER BY created_at, seq`

func (s *PostgresStore) ListMessagesByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	return s.queryMessages(ctx, listMessagesByConversation, conversationID)
}

const listRecentMessages = `
SELECT id, conversation_id, role, body, created_at
FROM (
    SELECT id, conversation_id, role, body, created_at, seq
    FROM messages
    WHERE conversation_id = $1
    ORDER BY created_at DESC, seq DESC
    LIMIT $2
) recent
ORDER BY created_at, seq`

func (s *PostgresStore) ListRecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return []models.Message{}, nil
	}
	return s.queryMessages(ctx, listRecentMessages, conversationID, limit)
}

func (s *PostgresStore) queryMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		s.log.Error("list messages failed", zap.Error(err))
		return nil, fmt.Errorf("database error listing messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning message row: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

// --- Context Methods ---

const createContext = `
INSERT INTO contexts (id, conversation_id, content, sources, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, conversation_id, content, sources, created_at`

func (s *PostgresStore) CreateContext(ctx context.Context, arg store.CreateContextParams) (*models.Context, error) {
	sources, err := store.EncodeSources(arg.Sources)
	if err != nil {
		return nil, err
	}

	c, err := scanContext(s.db.QueryRow(ctx, createContext,
		arg.ID,
		arg.ConversationID,
		arg.Content,
		sources,
		arg.CreatedAt,
	))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		s.log.Error("create context failed", zap.Stringer("conversation_id", arg.ConversationID), zap.Error(err))
		return nil, fmt.Errorf("database error creating context: %w", err)
	}
	return c, nil
}

const listContextsByConversation = `
SELECT id, conversation_id, content, sources, created_at
FROM contexts
WHERE conversation_id = $1
ORDER BY created_at, seq`

func (s *PostgresStore) ListContextsByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Context, error) {
	rows, err := s.db.Query(ctx, listContextsByConversation, conversationID)
	if err != nil {
		s.log.Error("list contexts failed", zap.Stringer("conversation_id", conversationID), zap.Error(err))
		return nil, fmt.Errorf("database error listing contexts: %w", err)
	}
	defer rows.Close()

	contexts := []models.Context{}
	for rows.Next() {
		c, err := scanContext(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning context row: %w", err)
		}
		contexts = append(contexts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating context rows: %w", err)
	}
	return contexts, nil
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var (
		m    models.Message
		role string
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &role, &m.Body, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Role = models.MessageRole(role)
	return &m, nil
}

func scanContext(row pgx.Row) (*models.Context, error) {
	var (
		c   models.Context
		raw []byte
	)
	if err := row.Scan(&c.ID, &c.ConversationID, &c.Content, &raw, &c.CreatedAt); err != nil {
		return nil, err
	}
	sources, err := store.DecodeSources(raw)
	if err != nil {
		return nil, err
	}
	c.Sources = sources
	return &c, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}
