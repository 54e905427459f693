package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"ragchat-backend/internal/models"
	"ragchat-backend/internal/services"
	"ragchat-backend/pkg/httputil"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConversationService is the orchestration core as used by the HTTP layer.
type ConversationService interface {
	CreateConversation(ctx context.Context, name string, ownerID uuid.UUID) (*models.Conversation, error)
	ListConversations(ctx context.Context, ownerID uuid.UUID) ([]models.Conversation, error)
	GetConversation(ctx context.Context, callerID, conversationID uuid.UUID) (*models.ConversationDetail, error)
	RenameConversation(ctx context.Context, callerID, conversationID uuid.UUID, newName string) (*models.Conversation, error)
	DeleteConversation(ctx context.Context, callerID, conversationID uuid.UUID) error
	AppendMessage(ctx context.Context, callerID, conversationID uuid.UUID, body string, role models.MessageRole) (*models.Message, error)
	ListConversationContexts(ctx context.Context, callerID, conversationID uuid.UUID) ([]models.Context, error)
	Ask(ctx context.Context, callerID, conversationID uuid.UUID, question string) (*services.TurnResult, error)
}

// ConversationHandlers handles HTTP requests related to conversations.
type ConversationHandlers struct {
	service ConversationService
	log     *zap.Logger
}

func NewConversationHandlers(service ConversationService, log *zap.Logger) *ConversationHandlers {
	return &ConversationHandlers{service: service, log: log.Named("conversation_handler")}
}

// HandleCreateConversation handles POST /v1/conversations. The body is optional.
func (h *ConversationHandlers) HandleCreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req models.CreateConversationRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	conv, err := h.service.CreateConversation(r.Context(), req.Name, userID)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, models.NewConversationResponse(conv))
}

// HandleListConversations handles GET /v1/conversations.
func (h *ConversationHandlers) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	convs, err := h.service.ListConversations(r.Context(), userID)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	resp := models.ListConversationsResponse{Conversations: make([]models.ConversationResponse, 0, len(convs))}
	for i := range convs {
		resp.Conversations = append(resp.Conversations, models.NewConversationResponse(&convs[i]))
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleGetConversation handles GET /v1/conversations/{conversationID}.
func (h *ConversationHandlers) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	convID, ok := uuidParam(w, r, "conversationID")
	if !ok {
		return
	}

	detail, err := h.service.GetConversation(r.Context(), userID, convID)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, models.NewConversationDetailResponse(detail))
}

// HandleRenameConversation handles PATCH /v1/conversations/{conversationID}.
func (h *ConversationHandlers) HandleRenameConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	convID, ok := uuidParam(w, r, "conversationID")
	if !ok {
		return
	}
	var req models.RenameConversationRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	conv, err := h.service.RenameConversation(r.Context(), userID, convID, req.Name)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, models.NewConversationResponse(conv))
}

// HandleDeleteConversation handles DELETE /v1/conversations/{conversationID}.
func (h *ConversationHandlers) HandleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	convID, ok := uuidParam(w, r, "conversationID")
	if !ok {
		return
	}

	if err := h.service.DeleteConversation(r.Context(), userID, convID); err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAppendMessage handles POST /v1/conversations/{conversationID}/messages.
func (h *ConversationHandlers) HandleAppendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	convID, ok := uuidParam(w, r, "conversationID")
	if !ok {
		return
	}
	var req models.AppendMessageRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	msg, err := h.service.AppendMessage(r.Context(), userID, convID, req.Body, req.Role)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, models.NewMessageResponse(msg))
}

// HandleAsk handles POST /v1/conversations/{conversationID}/ask.
func (h *ConversationHandlers) HandleAsk(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	convID, ok := uuidParam(w, r, "conversationID")
	if !ok {
		return
	}
	var req models.AskRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	turn, err := h.service.Ask(r.Context(), userID, convID, req.Question)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	resp := models.TurnResponse{
		UserMessage:      models.NewMessageResponse(turn.UserMessage),
		AssistantMessage: models.NewMessageResponse(turn.AssistantMessage),
		SourcesCount:     turn.SourcesCount,
		ProcessingTime:   turn.ProcessingTime,
	}
	if turn.Context != nil {
		c := models.NewContextResponse(turn.Context)
		resp.Context = &c
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleListContexts handles GET /v1/conversations/{conversationID}/contexts.
func (h *ConversationHandlers) HandleListContexts(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	convID, ok := uuidParam(w, r, "conversationID")
	if !ok {
		return
	}

	contexts, err := h.service.ListConversationContexts(r.Context(), userID, convID)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	resp := models.ListContextsResponse{Contexts: make([]models.ContextResponse, 0, len(contexts))}
	for i := range contexts {
		resp.Contexts = append(resp.Contexts, models.NewContextResponse(&contexts[i]))
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}
