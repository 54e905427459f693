package handlers

import (
	"errors"
	"net/http"
	"strings"

	"ragchat-backend/internal/askclient"
	"ragchat-backend/internal/auth"
	"ragchat-backend/internal/services"
	"ragchat-backend/pkg/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// respondServiceError maps a service error to an HTTP status and a short,
// user-facing message. Details only go to the log.
func respondServiceError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, "Resource not found")
	case errors.Is(err, services.ErrForbidden):
		httputil.RespondError(w, http.StatusForbidden, "You do not have access to this conversation")
	case errors.Is(err, services.ErrInvalidArgument):
		httputil.RespondError(w, http.StatusBadRequest, detail(err, services.ErrInvalidArgument))
	case errors.Is(err, services.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, detail(err, services.ErrValidation))
	case errors.Is(err, services.ErrUserAlreadyExists):
		httputil.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		httputil.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, askclient.ErrBackendUnavailable):
		log.Warn("answer backend unavailable", zap.Error(err))
		httputil.RespondError(w, http.StatusServiceUnavailable, "The answer service is unavailable, please try again later")
	case errors.Is(err, services.ErrDocumentsFailed):
		log.Warn("document backend failed", zap.Error(err))
		httputil.RespondError(w, http.StatusBadGateway, "The document service could not process the request")
	case errors.Is(err, askclient.ErrBackendRejected), errors.Is(err, services.ErrAskFailed):
		log.Warn("answer backend failed", zap.Error(err))
		httputil.RespondError(w, http.StatusBadGateway, "The answer service could not process the request")
	default:
		log.Error("request failed", zap.Error(err))
		httputil.RespondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// detail strips the sentinel prefix from a wrapped validation error.
func detail(err, sentinel error) string {
	msg := strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
	if msg == "" {
		return sentinel.Error()
	}
	return msg
}

// callerID returns the authenticated user, writing a 401 if there is none.
func callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok || userID == uuid.Nil {
		httputil.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, false
	}
	return userID, true
}

// uuidParam parses a UUID URL parameter, writing a 400 if it is malformed.
func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
