package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"ragchat-backend/internal/models"
	"ragchat-backend/pkg/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DocumentService defines the document operations exposed over HTTP.
type DocumentService interface {
	Stats(ctx context.Context, userID uuid.UUID) (json.RawMessage, error)
	ProcessAll(ctx context.Context, userID uuid.UUID, customPath *string) (json.RawMessage, error)
	DeleteFile(ctx context.Context, userID uuid.UUID, fileName string) (json.RawMessage, error)
}

type DocumentHandlers struct {
	service DocumentService
	log     *zap.Logger
}

func NewDocumentHandlers(service DocumentService, log *zap.Logger) *DocumentHandlers {
	return &DocumentHandlers{service: service, log: log.Named("document_handler")}
}

// HandleStats handles GET /v1/documents/stats.
func (h *DocumentHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	out, err := h.service.Stats(r.Context(), userID)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, models.BackendPayload{Data: out})
}

// HandleProcessAll handles POST /v1/documents/process-all. The body is optional.
func (h *DocumentHandlers) HandleProcessAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req models.ProcessAllRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	out, err := h.service.ProcessAll(r.Context(), userID, req.CustomPDFPath)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, models.BackendPayload{Data: out})
}

// HandleDeleteFile handles DELETE /v1/documents/files/{fileName}.
func (h *DocumentHandlers) HandleDeleteFile(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	fileName, err := url.PathUnescape(chi.URLParam(r, "fileName"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid fileName")
		return
	}

	out, err := h.service.DeleteFile(r.Context(), userID, fileName)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, models.BackendPayload{Data: out})
}
