package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ragchat-backend/internal/auth"
	"ragchat-backend/internal/config"
	"ragchat-backend/internal/models"
	"ragchat-backend/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Custom errors for auth service
var (
	ErrUserAlreadyExists  = errors.New("username is already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrHashingPassword    = errors.New("failed to hash password")
	ErrCreatingToken      = errors.New("failed to create access token")
	ErrCreatingUser       = errors.New("failed to create user")
	ErrValidation         = errors.New("input validation failed") // Generic validation error
)

type AuthService struct {
	store store.Store
	cfg   *config.Config
	log   *zap.Logger
}

func NewAuthService(s store.Store, cfg *config.Config, log *zap.Logger) *AuthService {
	return &AuthService{
		store: s,
		cfg:   cfg,
		log:   log.Named("auth"),
	}
}

// Signup creates a new user account.
func (s *AuthService) Signup(ctx context.Context, username, password string, age *int32) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", ErrValidation)
	}
	if len(password) < auth.MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, auth.MinPasswordLength)
	}
	if age != nil && (*age < 0 || *age > 150) {
		return nil, fmt.Errorf("%w: age must be between 0 and 150", ErrValidation)
	}

	_, err := s.store.GetUserByUsername(ctx, username)
	if err == nil {
		return nil, ErrUserAlreadyExists
	}
	if !errors.Is(err, store.ErrNotFound) {
		s.log.Error("checking user existence failed", zap.String("username", username), zap.Error(err))
		return nil, fmt.Errorf("failed to check user existence: %w", err)
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		s.log.Error("hashing password failed", zap.Error(err))
		return nil, ErrHashingPassword
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	user := &models.User{
		ID:             uuid.New(),
		Username:       username,
		HashedPassword: hashedPassword,
		Age:            age,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("%w: %v", ErrCreatingUser, err)
	}

	s.log.Info("user signed up", zap.Stringer("user_id", user.ID))
	return user, nil
}

// Login verifies user credentials and returns an access token and user info.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", nil, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, ErrInvalidCredentials // Don't reveal if user exists or password is wrong
		}
		return "", nil, fmt.Errorf("failed to retrieve user: %w", err)
	}

	if !auth.CheckPasswordHash(password, user.HashedPassword) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := auth.NewAccessToken(user.ID, s.cfg.JWTSecret, s.cfg.TokenExpiration)
	if err != nil {
		s.log.Error("generating token failed", zap.Stringer("user_id", user.ID), zap.Error(err))
		return "", nil, ErrCreatingToken
	}

	s.log.Info("user logged in", zap.Stringer("user_id", user.ID))
	return token, user, nil
}

// GetUser returns the profile of userID.
func (s *AuthService) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, storeError(err, "loading user")
	}
	return user, nil
}

// UpdateUsername changes the caller's username.
func (s *AuthService) UpdateUsername(ctx context.Context, userID uuid.UUID, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username cannot be empty", ErrValidation)
	}

	user, err := s.store.UpdateUsername(ctx, userID, username, time.Now().UTC().Truncate(time.Microsecond))
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrUserAlreadyExists
		}
		return nil, storeError(err, "updating username")
	}
	return user, nil
}

// UpdatePassword replaces the caller's password after checking the current one.
func (s *AuthService) UpdatePassword(ctx context.Context, userID uuid.UUID, current, newPassword string) error {
	if len(newPassword) < auth.MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, auth.MinPasswordLength)
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return storeError(err, "loading user")
	}
	if !auth.CheckPasswordHash(current, user.HashedPassword) {
		return ErrInvalidCredentials
	}

	hashed, err := auth.HashPassword(newPassword)
	if err != nil {
		s.log.Error("hashing password failed", zap.Error(err))
		return ErrHashingPassword
	}
	if err := s.store.UpdateUserPassword(ctx, userID, hashed, time.Now().UTC().Truncate(time.Microsecond)); err != nil {
		return storeError(err, "updating password")
	}
	s.log.Info("password changed", zap.Stringer("user_id", userID))
	return nil
}
