package handlers

import (
	"net/http"

	api_models "ragchat-backend/internal/models"
	"ragchat-backend/pkg/httputil"
)

// HandleGetMe handles GET /v1/me.
func (h *AuthHandler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	user, err := h.authService.GetUser(r.Context(), userID)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, api_models.NewUserResponse(user))
}

// HandleUpdateUsername handles PATCH /v1/me/username.
func (h *AuthHandler) HandleUpdateUsername(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req api_models.UpdateUsernameRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	user, err := h.authService.UpdateUsername(r.Context(), userID, req.Username)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, api_models.NewUserResponse(user))
}

// HandleUpdatePassword handles PUT /v1/me/password. The new password must be
// typed twice.
func (h *AuthHandler) HandleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req api_models.UpdatePasswordRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.NewPassword != req.NewPasswordCheck {
		httputil.RespondError(w, http.StatusBadRequest, "New passwords do not match")
		return
	}

	if err := h.authService.UpdatePassword(r.Context(), userID, req.Password, req.NewPassword); err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
