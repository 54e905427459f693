package handlers

import (
	"context"
	"net/http"

	api_models "ragchat-backend/internal/models"
	db_models "ragchat-backend/internal/models"
	"ragchat-backend/pkg/httputil"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuthService defines the interface expected from the auth service.
type AuthService interface {
	Signup(ctx context.Context, username, password string, age *int32) (*db_models.User, error)
	Login(ctx context.Context, username, password string) (string, *db_models.User, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*db_models.User, error)
	UpdateUsername(ctx context.Context, userID uuid.UUID, username string) (*db_models.User, error)
	UpdatePassword(ctx context.Context, userID uuid.UUID, current, newPassword string) error
}

type AuthHandler struct {
	authService AuthService
	log         *zap.Logger
}

func NewAuthHandler(authSvc AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authSvc,
		log:         log.Named("auth_handler"),
	}
}

// HandleSignup handles the POST /v1/auth/signup request.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req api_models.SignupRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Username == "" || req.Password == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := h.authService.Signup(r.Context(), req.Username, req.Password, req.Age)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, api_models.NewUserResponse(user))
}

// HandleLogin handles the POST /v1/auth/login request.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req api_models.LoginRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Username == "" || req.Password == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	token, user, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, api_models.AuthResponse{
		AccessToken: token,
		User:        api_models.NewUserResponse(user),
	})
}
