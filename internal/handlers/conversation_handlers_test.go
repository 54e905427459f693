package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ragchat-backend/internal/askclient"
	"ragchat-backend/internal/auth"
	"ragchat-backend/internal/models"
	"ragchat-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockConversationService struct {
	mock.Mock
}

func (m *mockConversationService) CreateConversation(ctx context.Context, name string, ownerID uuid.UUID) (*models.Conversation, error) {
	args := m.Called(ctx, name, ownerID)
	conv, _ := args.Get(0).(*models.Conversation)
	return conv, args.Error(1)
}

func (m *mockConversationService) ListConversations(ctx context.Context, ownerID uuid.UUID) ([]models.Conversation, error) {
	args := m.Called(ctx, ownerID)
	convs, _ := args.Get(0).([]models.Conversation)
	return convs, args.Error(1)
}

func (m *mockConversationService) GetConversation(ctx context.Context, callerID, conversationID uuid.UUID) (*models.ConversationDetail, error) {
	args := m.Called(ctx, callerID, conversationID)
	detail, _ := args.Get(0).(*models.ConversationDetail)
	return detail, args.Error(1)
}

func (m *mockConversationService) RenameConversation(ctx context.Context, callerID, conversationID uuid.UUID, newName string) (*models.Conversation, error) {
	args := m.Called(ctx, callerID, conversationID, newName)
	conv, _ := args.Get(0).(*models.Conversation)
	return conv, args.Error(1)
}

func (m *mockConversationService) DeleteConversation(ctx context.Context, callerID, conversationID uuid.UUID) error {
	return m.Called(ctx, callerID, conversationID).Error(0)
}

func (m *mockConversationService) AppendMessage(ctx context.Context, callerID, conversationID uuid.UUID, body string, role models.MessageRole) (*models.Message, error) {
	args := m.Called(ctx, callerID, conversationID, body, role)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

func (m *mockConversationService) ListConversationContexts(ctx context.Context, callerID, conversationID uuid.UUID) ([]models.Context, error) {
	args := m.Called(ctx, callerID, conversationID)
	contexts, _ := args.Get(0).([]models.Context)
	return contexts, args.Error(1)
}

func (m *mockConversationService) Ask(ctx context.Context, callerID, conversationID uuid.UUID, question string) (*services.TurnResult, error) {
	args := m.Called(ctx, callerID, conversationID, question)
	turn, _ := args.Get(0).(*services.TurnResult)
	return turn, args.Error(1)
}

// serve routes a request through chi so URL params resolve, with userID
// already authenticated.
func serve(h *ConversationHandlers, userID uuid.UUID, method, target, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(auth.WithUserID(req.Context(), userID)))
		})
	})
	r.Post("/conversations", h.HandleCreateConversation)
	r.Patch("/conversations/{conversationID}", h.HandleRenameConversation)
	r.Delete("/conversations/{conversationID}", h.HandleDeleteConversation)
	r.Post("/conversations/{conversationID}/messages", h.HandleAppendMessage)
	r.Post("/conversations/{conversationID}/ask", h.HandleAsk)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func TestHandleCreateConversation_EmptyBodyUsesDefault(t *testing.T) {
	svc := new(mockConversationService)
	h := NewConversationHandlers(svc, zap.NewNop())
	userID := uuid.New()
	now := time.Now().UTC()

	svc.On("CreateConversation", mock.Anything, "", userID).Return(&models.Conversation{
		ID: uuid.New(), UserID: userID, Name: services.DefaultConversationName, CreatedAt: now, UpdatedAt: now,
	}, nil)

	rec := serve(h, userID, http.MethodPost, "/conversations", "")
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp models.ConversationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, services.DefaultConversationName, resp.Name)
	svc.AssertExpectations(t)
}

func TestHandleCreateConversation_MalformedBody(t *testing.T) {
	svc := new(mockConversationService)
	h := NewConversationHandlers(svc, zap.NewNop())

	rec := serve(h, uuid.New(), http.MethodPost, "/conversations", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "CreateConversation", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleRenameConversation_InvalidID(t *testing.T) {
	svc := new(mockConversationService)
	h := NewConversationHandlers(svc, zap.NewNop())

	rec := serve(h, uuid.New(), http.MethodPatch, "/conversations/42", `{"name":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid conversationID", errorMessage(t, rec))
}

func TestHandleDeleteConversation(t *testing.T) {
	svc := new(mockConversationService)
	h := NewConversationHandlers(svc, zap.NewNop())
	userID, convID := uuid.New(), uuid.New()

	svc.On("DeleteConversation", mock.Anything, userID, convID).Return(nil).Once()
	rec := serve(h, userID, http.MethodDelete, "/conversations/"+convID.String(), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	svc.On("DeleteConversation", mock.Anything, userID, convID).Return(fmt.Errorf("%w: conversation %s", services.ErrNotFound, convID)).Once()
	rec = serve(h, userID, http.MethodDelete, "/conversations/"+convID.String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	svc.AssertExpectations(t)
}

func TestHandleAppendMessage_PassesRole(t *testing.T) {
	svc := new(mockConversationService)
	h := NewConversationHandlers(svc, zap.NewNop())
	userID, convID := uuid.New(), uuid.New()

	svc.On("AppendMessage", mock.Anything, userID, convID, "hello", models.RoleAssistant).Return(&models.Message{
		ID: uuid.New(), ConversationID: convID, Role: models.RoleAssistant, Body: "hello", CreatedAt: time.Now().UTC(),
	}, nil)

	rec := serve(h, userID, http.MethodPost, "/conversations/"+convID.String()+"/messages", `{"body":"hello","role":"assistant"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp models.MessageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, models.RoleAssistant, resp.Role)
	svc.AssertExpectations(t)
}

func TestHandleAsk_WithoutContext(t *testing.T) {
	svc := new(mockConversationService)
	h := NewConversationHandlers(svc, zap.NewNop())
	userID, convID := uuid.New(), uuid.New()
	now := time.Now().UTC()

	svc.On("Ask", mock.Anything, userID, convID, "why?").Return(&services.TurnResult{
		UserMessage:      &models.Message{ID: uuid.New(), ConversationID: convID, Role: models.RoleUser, Body: "why?", CreatedAt: now},
		AssistantMessage: &models.Message{ID: uuid.New(), ConversationID: convID, Role: models.RoleAssistant, Body: "because", CreatedAt: now},
	}, nil)

	rec := serve(h, userID, http.MethodPost, "/conversations/"+convID.String()+"/ask", `{"question":"why?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))
	assert.NotContains(t, raw, "context")
	assert.Contains(t, raw, "assistant_message")
}

func TestRespondServiceError(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not found", fmt.Errorf("%w: conversation x", services.ErrNotFound), http.StatusNotFound, "Resource not found"},
		{"forbidden", services.ErrForbidden, http.StatusForbidden, "You do not have access to this conversation"},
		{"invalid argument", fmt.Errorf("%w: question must not be empty", services.ErrInvalidArgument), http.StatusBadRequest, "question must not be empty"},
		{"validation", fmt.Errorf("%w: username cannot be empty", services.ErrValidation), http.StatusBadRequest, "username cannot be empty"},
		{"duplicate user", services.ErrUserAlreadyExists, http.StatusConflict, services.ErrUserAlreadyExists.Error()},
		{"bad credentials", services.ErrInvalidCredentials, http.StatusUnauthorized, services.ErrInvalidCredentials.Error()},
		{"backend down", fmt.Errorf("%w: %w", services.ErrAskFailed, askclient.ErrBackendUnavailable), http.StatusServiceUnavailable, "The answer service is unavailable, please try again later"},
		{"backend rejected", fmt.Errorf("%w: %w", services.ErrAskFailed, &askclient.StatusError{StatusCode: 500}), http.StatusBadGateway, "The answer service could not process the request"},
		{"document backend rejected", fmt.Errorf("%w: %w", services.ErrDocumentsFailed, &askclient.StatusError{StatusCode: 500}), http.StatusBadGateway, "The document service could not process the request"},
		{"document backend down", fmt.Errorf("%w: %w", services.ErrDocumentsFailed, askclient.ErrBackendUnavailable), http.StatusServiceUnavailable, "The answer service is unavailable, please try again later"},
		{"persistence", fmt.Errorf("%w: boom", services.ErrPersistence), http.StatusInternalServerError, "Internal server error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondServiceError(rec, zap.NewNop(), tc.err)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.message, errorMessage(t, rec))
		})
	}
}
