package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ragchat-backend/internal/models"
	"ragchat-backend/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Compile-time check to ensure PostgresStore implements store.Store
var _ store.Store = (*PostgresStore)(nil)

// uniqueViolation is the PostgreSQL error code for unique_violation.
const uniqueViolation = "23505"

type PostgresStore struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

func NewPostgresStore(db *pgxpool.Pool, log *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: log.Named("postgres")}
}

// --- User Methods ---

const getUserByUsername = `
SELECT id, username, hashed_password, age, created_at, updated_at
FROM users
WHERE username = $1`

// GetUserByUsername retrieves a user by username.
// Returns store.ErrNotFound if the user does not exist.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := scanUser(s.db.QueryRow(ctx, getUserByUsername, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		s.log.Error("get user by username failed", zap.String("username", username), zap.Error(err))
		return nil, fmt.Errorf("database error fetching user by username: %w", err)
	}
	return user, nil
}

const getUserByID = `
SELECT id, username, hashed_password, age, created_at, updated_at
FROM users
WHERE id = $1`

// GetUserByID retrieves a user by ID.
// Returns store.ErrNotFound if the user does not exist.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := scanUser(s.db.QueryRow(ctx, getUserByID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		s.log.Error("get user by id failed", zap.Stringer("user_id", id), zap.Error(err))
		return nil, fmt.Errorf("database error fetching user by id: %w", err)
	}
	return user, nil
}

const createUser = `
INSERT INTO users (id, username, hashed_password, age, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`

// CreateUser inserts a new user record into the database.
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.db.Exec(ctx, createUser,
		user.ID,
		user.Username,
		user.HashedPassword,
		user.Age,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.ErrDuplicate
		}
		s.log.Error("create user failed", zap.String("username", user.Username), zap.Error(err))
		return fmt.Errorf("database error creating user: %w", err)
	}

	s.log.Debug("created user", zap.Stringer("user_id", user.ID))
	return nil
}

const updateUsername = `
UPDATE users SET username = $2, updated_at = $3
WHERE id = $1
RETURNING id, username, hashed_password, age, created_at, updated_at`

func (s *PostgresStore) UpdateUsername(ctx context.Context, id uuid.UUID, username string, updatedAt time.Time) (*models.User, error) {
	user, err := scanUser(s.db.QueryRow(ctx, updateUsername, id, username, updatedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, store.ErrDuplicate
		}
		s.log.Error("update username failed", zap.Stringer("user_id", id), zap.Error(err))
		return nil, fmt.Errorf("database error updating username: %w", err)
	}
	return user, nil
}

const updateUserPassword = `
UPDATE users SET hashed_password = $2, updated_at = $3
WHERE id = $1`

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, id uuid.UUID, hashedPassword string, updatedAt time.Time) error {
	tag, err := s.db.Exec(ctx, updateUserPassword, id, hashedPassword, updatedAt)
	if err != nil {
		s.log.Error("update password failed", zap.Stringer("user_id", id), zap.Error(err))
		return fmt.Errorf("database error updating password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(
		&u.ID,
		&u.Username,
		&u.HashedPassword,
		&u.Age,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}
