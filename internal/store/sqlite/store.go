// Package sqlite implements store.Store on an embedded SQLite database.
// It backs local development and the test suites.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"ragchat-backend/internal/models"
	"ragchat-backend/internal/store"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Compile-time check to ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (or creates) the database at dsn and applies migrations.
// ":memory:" gives a private in-memory database.
func Open(ctx context.Context, dsn string, log *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", withForeignKeys(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// An in-memory database only lives as long as its connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s := &SQLiteStore{db: db, log: log.Named("sqlite")}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, migrations)
	if err != nil {
		return fmt.Errorf("failed to create goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}
	for _, r := range results {
		s.log.Debug("applied migration", zap.String("source", r.Source.Path))
	}
	return nil
}

func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

// --- User Methods ---

const userColumns = `id, username, hashed_password, age, created_at, updated_at`

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error fetching user by username: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error fetching user by id: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.HashedPassword,
		user.Age,
		user.CreatedAt.UnixNano(),
		user.UpdatedAt.UnixNano(),
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintUnique) || isConstraint(err, sqlite3.ErrConstraintPrimaryKey) {
			return store.ErrDuplicate
		}
		s.log.Error("create user failed", zap.String("username", user.Username), zap.Error(err))
		return fmt.Errorf("database error creating user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateUsername(ctx context.Context, id uuid.UUID, username string, updatedAt time.Time) (*models.User, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = ?, updated_at = ? WHERE id = ?`,
		username, updatedAt.UnixNano(), id,
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintUnique) {
			return nil, store.ErrDuplicate
		}
		return nil, fmt.Errorf("database error updating username: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetUserByID(ctx, id)
}

func (s *SQLiteStore) UpdateUserPassword(ctx context.Context, id uuid.UUID, hashedPassword string, updatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET hashed_password = ?, updated_at = ? WHERE id = ?`,
		hashedPassword, updatedAt.UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("database error updating password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- Conversation Methods ---

const conversationColumns = `id, name, user_id, created_at, updated_at`

func (s *SQLiteStore) CreateConversation(ctx context.Context, arg store.CreateConversationParams) (*models.Conversation, error) {
	ts := arg.CreatedAt.UnixNano()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (`+conversationColumns+`) VALUES (?, ?, ?, ?, ?)`,
		arg.ID, arg.Name, arg.UserID, ts, ts,
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
			return nil, store.ErrNotFound
		}
		s.log.Error("create conversation failed", zap.Stringer("user_id", arg.UserID), zap.Error(err))
		return nil, fmt.Errorf("database error creating conversation: %w", err)
	}
	created := fromNanos(ts)
	return &models.Conversation{
		ID:        arg.ID,
		Name:      arg.Name,
		UserID:    arg.UserID,
		CreatedAt: created,
		UpdatedAt: created,
	}, nil
}

func (s *SQLiteStore) GetConversationByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("database error fetching conversation: %w", err)
	}
	return conv, nil
}

func (s *SQLiteStore) ListConversationsByUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE user_id = ?
		 ORDER BY updated_at DESC, created_at DESC, id`,
		userID,
	)
	if err != nil {
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

func (s *SQLiteStore) UpdateConversationName(ctx context.Context, arg store.UpdateConversationNameParams) (*models.Conversation, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET name = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		arg.Name, arg.UpdatedAt.UnixNano(), arg.ID, arg.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("database error renaming conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetConversationByID(ctx, arg.ID)
}

// DeleteConversation removes contexts, messages and the conversation in one transaction.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var owned int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM conversations WHERE id = ? AND user_id = ?`, id, userID,
	).Scan(&owned)
	if err != nil {
		return fmt.Errorf("database error checking conversation: %w", err)
	}
	if owned == 0 {
		return store.ErrNotFound
	}

	for _, q := range []string{
		`DELETE FROM contexts WHERE conversation_id = ?`,
		`DELETE FROM messages WHERE conversation_id = ?`,
		`DELETE FROM conversations WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			s.log.Error("delete conversation failed", zap.Stringer("conversation_id", id), zap.Error(err))
			return fmt.Errorf("database error deleting conversation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// --- Message Methods ---

const messageColumns = `id, conversation_id, role, body, created_at`

// CreateMessage appends a message and bumps the conversation's updated_at
// in the same transaction.
func (s *SQLiteStore) CreateMessage(ctx context.Context, arg store.CreateMessageParams) (*models.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ts := arg.CreatedAt.UnixNano()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?)`,
		arg.ID, arg.ConversationID, string(arg.Role), arg.Body, ts,
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
			return nil, store.ErrNotFound
		}
		s.log.Error("create message failed", zap.Stringer("conversation_id", arg.ConversationID), zap.Error(err))
		return nil, fmt.Errorf("database error creating message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, ts, arg.ConversationID,
	); err != nil {
		return nil, fmt.Errorf("database error touching conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message: %w", err)
	}
	return &models.Message{
		ID:             arg.ID,
		ConversationID: arg.ConversationID,
		Role:           arg.Role,
		Body:           arg.Body,
		CreatedAt:      fromNanos(ts),
	}, nil
}

func (s *SQLiteStore) ListMessagesByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	return s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE conversation_id = ?
		 ORDER BY created_at, rowid`,
		conversationID,
	)
}

func (s *SQLiteStore) ListRecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return []models.Message{}, nil
	}
	return s.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM (
		     SELECT `+messageColumns+`, rowid AS seq FROM messages
		     WHERE conversation_id = ?
		     ORDER BY created_at DESC, rowid DESC
		     LIMIT ?
		 ) ORDER BY created_at, seq`,
		conversationID, limit,
	)
}

func (s *SQLiteStore) queryMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("database error listing messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var (
			m    models.Message
			role string
			ts   int64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Body, &ts); err != nil {
			return nil, fmt.Errorf("error scanning message row: %w", err)
		}
		m.Role = models.MessageRole(role)
		m.CreatedAt = fromNanos(ts)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

// --- Context Methods ---

const contextColumns = `id, conversation_id, content, sources, created_at`

func (s *SQLiteStore) CreateContext(ctx context.Context, arg store.CreateContextParams) (*models.Context, error) {
	raw, err := store.EncodeSources(arg.Sources)
	if err != nil {
		return nil, err
	}
	ts := arg.CreatedAt.UnixNano()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contexts (`+contextColumns+`) VALUES (?, ?, ?, ?, ?)`,
		arg.ID, arg.ConversationID, arg.Content, string(raw), ts,
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
			return nil, store.ErrNotFound
		}
		s.log.Error("create context failed", zap.Stringer("conversation_id", arg.ConversationID), zap.Error(err))
		return nil, fmt.Errorf("database error creating context: %w", err)
	}

	sources, err := store.DecodeSources(raw)
	if err != nil {
		return nil, err
	}
	return &models.Context{
		ID:             arg.ID,
		ConversationID: arg.ConversationID,
		Content:        arg.Content,
		Sources:        sources,
		CreatedAt:      fromNanos(ts),
	}, nil
}

func (s *SQLiteStore) ListContextsByConversation(ctx context.Context, conversationID uuid.UUID) ([]models.Context, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contextColumns+` FROM contexts
		 WHERE conversation_id = ?
		 ORDER BY created_at, rowid`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("database error listing contexts: %w", err)
	}
	defer rows.Close()

	contexts := []models.Context{}
	for rows.Next() {
		var (
			c   models.Context
			raw string
			ts  int64
		)
		if err := rows.Scan(&c.ID, &c.ConversationID, &c.Content, &raw, &ts); err != nil {
			return nil, fmt.Errorf("error scanning context row: %w", err)
		}
		if c.Sources, err = store.DecodeSources([]byte(raw)); err != nil {
			return nil, err
		}
		c.CreatedAt = fromNanos(ts)
		contexts = append(contexts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating context rows: %w", err)
	}
	return contexts, nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u                models.User
		created, updated int64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.HashedPassword, &u.Age, &created, &updated); err != nil {
		return nil, err
	}
	u.CreatedAt = fromNanos(created)
	u.UpdatedAt = fromNanos(updated)
	return &u, nil
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var (
		c                models.Conversation
		created, updated int64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.UserID, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = fromNanos(created)
	c.UpdatedAt = fromNanos(updated)
	return &c, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == code
}
