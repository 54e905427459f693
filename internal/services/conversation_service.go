package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"ragchat-backend/internal/askclient"
	"ragchat-backend/internal/models"
	"ragchat-backend/internal/store"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const (
	// DefaultConversationName is used when a conversation is created without a name.
	DefaultConversationName = "New conversation"
	// MaxQuestionLength is the longest question, in characters, accepted by Ask.
	MaxQuestionLength = 250
	// MaxHistoryLimit caps how many prior messages are sent with a question.
	MaxHistoryLimit = 50
)

// Asker is the answer backend as seen by the conversation service.
type Asker interface {
	Ask(ctx context.Context, req askclient.AskRequest) (*askclient.AskResponse, error)
}

// TurnResult is everything a successful Ask wrote, plus backend metadata.
type TurnResult struct {
	UserMessage      *models.Message
	AssistantMessage *models.Message
	Context          *models.Context // nil when the backend returned no context
	SourcesCount     int
	ProcessingTime   *float64
}

// ConversationService owns conversation lifecycle, ownership checks and the
// ask turn. It holds no per-user state; the caller is always passed in.
type ConversationService struct {
	store        store.Store
	asker        Asker
	historyLimit int
	log          *zap.Logger
	now          func() time.Time
}

func NewConversationService(s store.Store, asker Asker, historyLimit int, log *zap.Logger) *ConversationService {
	switch {
	case historyLimit < 0:
		historyLimit = 0
	case historyLimit > MaxHistoryLimit:
		historyLimit = MaxHistoryLimit
	}
	return &ConversationService{
		store:        s,
		asker:        asker,
		historyLimit: historyLimit,
		log:          log.Named("conversations"),
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
}

// CreateConversation starts an empty conversation owned by ownerID.
func (s *ConversationService) CreateConversation(ctx context.Context, name string, ownerID uuid.UUID) (*models.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultConversationName
	}

	conv, err := s.store.CreateConversation(ctx, store.CreateConversationParams{
		ID:        uuid.New(),
		UserID:    ownerID,
		Name:      name,
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating conversation: %v", ErrPersistence, err)
	}
	s.log.Info("conversation created", zap.Stringer("conversation_id", conv.ID), zap.Stringer("user_id", ownerID))
	return conv, nil
}

// ListConversations returns the owner's conversations, most recently updated first.
func (s *ConversationService) ListConversations(ctx context.Context, ownerID uuid.UUID) ([]models.Conversation, error) {
	convs, err := s.store.ListConversationsByUser(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing conversations: %v", ErrPersistence, err)
	}
	return convs, nil
}

// GetConversation loads a conversation with its messages and contexts.
func (s *ConversationService) GetConversation(ctx context.Context, callerID, conversationID uuid.UUID) (*models.ConversationDetail, error) {
	conv, err := s.loadOwned(ctx, callerID, conversationID)
	if err != nil {
		return nil, err
	}

	var (
		messages []models.Message
		contexts []models.Context
	)
	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		var err error
		messages, err = s.store.ListMessagesByConversation(ctx, conversationID)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		contexts, err = s.store.ListContextsByConversation(ctx, conversationID)
		return err
	})
	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("%w: loading conversation children: %v", ErrPersistence, err)
	}

	return &models.ConversationDetail{
		Conversation: *conv,
		Messages:     messages,
		Contexts:     contexts,
	}, nil
}

// RenameConversation changes the display name. Renaming to the current name
// returns the stored record without writing.
func (s *ConversationService) RenameConversation(ctx context.Context, callerID, conversationID uuid.UUID, newName string) (*models.Conversation, error) {
	conv, err := s.loadOwned(ctx, callerID, conversationID)
	if err != nil {
		return nil, err
	}

	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, fmt.Errorf("%w: conversation name must not be empty", ErrInvalidArgument)
	}
	if newName == conv.Name {
		return conv, nil
	}

	updated, err := s.store.UpdateConversationName(ctx, store.UpdateConversationNameParams{
		ID:        conversationID,
		UserID:    callerID,
		Name:      newName,
		UpdatedAt: s.now(),
	})
	if err != nil {
		return nil, storeError(err, "renaming conversation")
	}
	return updated, nil
}

// DeleteConversation removes the conversation with all its messages and contexts.
func (s *ConversationService) DeleteConversation(ctx context.Context, callerID, conversationID uuid.UUID) error {
	if _, err := s.loadOwned(ctx, callerID, conversationID); err != nil {
		return err
	}
	if err := s.store.DeleteConversation(ctx, conversationID, callerID); err != nil {
		return storeError(err, "deleting conversation")
	}
	s.log.Info("conversation deleted", zap.Stringer("conversation_id", conversationID), zap.Stringer("user_id", callerID))
	return nil
}

// AppendMessage adds a message to a conversation the caller owns.
// An empty role means user.
func (s *ConversationService) AppendMessage(ctx context.Context, callerID, conversationID uuid.UUID, body string, role models.MessageRole) (*models.Message, error) {
	if role == "" {
		role = models.RoleUser
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown message role %q", ErrInvalidArgument, role)
	}
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: message body must not be empty", ErrInvalidArgument)
	}
	if _, err := s.loadOwned(ctx, callerID, conversationID); err != nil {
		return nil, err
	}

	msg, err := s.appendMessage(ctx, conversationID, role, body, s.now())
	if err != nil {
		return nil, storeError(err, "appending message")
	}
	return msg, nil
}

// AppendContext records retrieved context for a conversation. It does not
// check ownership; only Ask and trusted internal callers use it.
func (s *ConversationService) AppendContext(ctx context.Context, conversationID uuid.UUID, content string, sources []string) (*models.Context, error) {
	c, err := s.appendContext(ctx, conversationID, content, sources, s.now())
	if err != nil {
		return nil, storeError(err, "appending context")
	}
	return c, nil
}

// ListContexts returns a conversation's contexts in creation order, without an ownership check.
func (s *ConversationService) ListContexts(ctx context.Context, conversationID uuid.UUID) ([]models.Context, error) {
	contexts, err := s.store.ListContextsByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing contexts: %v", ErrPersistence, err)
	}
	return contexts, nil
}

// ListConversationContexts is ListContexts for a conversation the caller owns.
func (s *ConversationService) ListConversationContexts(ctx context.Context, callerID, conversationID uuid.UUID) ([]models.Context, error) {
	if _, err := s.loadOwned(ctx, callerID, conversationID); err != nil {
		return nil, err
	}
	return s.ListContexts(ctx, conversationID)
}

// Ask runs one turn: validate, check ownership, call the backend, then
// persist the question, the answer and any retrieved context, in that order.
// Nothing is written if the backend call fails. A write failure after the
// backend answered leaves earlier writes of the turn in place.
func (s *ConversationService) Ask(ctx context.Context, callerID, conversationID uuid.UUID, question string) (*TurnResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question must not be empty", ErrInvalidArgument)
	}
	if utf8.RuneCountInString(question) > MaxQuestionLength {
		return nil, fmt.Errorf("%w: question must be at most %d characters", ErrInvalidArgument, MaxQuestionLength)
	}
	conv, err := s.loadOwned(ctx, callerID, conversationID)
	if err != nil {
		return nil, err
	}

	history, err := s.history(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	answer, err := s.asker.Ask(ctx, askclient.AskRequest{
		UserID:    callerID.String(),
		Question:  question,
		Historics: history,
	})
	if err != nil {
		s.log.Warn("ask failed", zap.Stringer("conversation_id", conversationID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrAskFailed, err)
	}

	// Each write of the turn is stamped no earlier than the one before it,
	// so read-back order holds even if the wall clock steps back.
	userMsg, err := s.appendMessage(ctx, conversationID, models.RoleUser, question, s.notBefore(conv.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("%w: storing question: %v", ErrPersistence, err)
	}
	assistantMsg, err := s.appendMessage(ctx, conversationID, models.RoleAssistant, answer.Response, s.notBefore(userMsg.CreatedAt))
	if err != nil {
		s.log.Error("turn left without answer", zap.Stringer("conversation_id", conversationID), zap.Error(err))
		return nil, fmt.Errorf("%w: storing answer: %v", ErrPersistence, err)
	}

	result := &TurnResult{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		SourcesCount:     answer.SourcesCount,
		ProcessingTime:   answer.ProcessingTime,
	}
	if strings.TrimSpace(answer.Context) != "" {
		c, err := s.appendContext(ctx, conversationID, answer.Context, answer.Sources, s.notBefore(assistantMsg.CreatedAt))
		if err != nil {
			s.log.Error("turn left without context", zap.Stringer("conversation_id", conversationID), zap.Error(err))
			return nil, fmt.Errorf("%w: storing context: %v", ErrPersistence, err)
		}
		result.Context = c
	}
	return result, nil
}

// history returns the most recent messages as backend history turns, oldest first.
func (s *ConversationService) history(ctx context.Context, conversationID uuid.UUID) ([]askclient.HistoryTurn, error) {
	turns := []askclient.HistoryTurn{}
	if s.historyLimit == 0 {
		return turns, nil
	}
	recent, err := s.store.ListRecentMessages(ctx, conversationID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: loading history: %v", ErrPersistence, err)
	}
	for _, m := range recent {
		if !m.Role.Valid() || strings.TrimSpace(m.Body) == "" {
			continue
		}
		turns = append(turns, askclient.HistoryTurn{Role: string(m.Role), Content: m.Body})
	}
	return turns, nil
}

func (s *ConversationService) appendMessage(ctx context.Context, conversationID uuid.UUID, role models.MessageRole, body string, at time.Time) (*models.Message, error) {
	return s.store.CreateMessage(ctx, store.CreateMessageParams{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Body:           body,
		CreatedAt:      at,
	})
}

func (s *ConversationService) appendContext(ctx context.Context, conversationID uuid.UUID, content string, sources []string, at time.Time) (*models.Context, error) {
	if sources == nil {
		sources = []string{}
	}
	return s.store.CreateContext(ctx, store.CreateContextParams{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Content:        content,
		Sources:        sources,
		CreatedAt:      at,
	})
}

// notBefore returns the current time, or floor if the clock reads earlier.
func (s *ConversationService) notBefore(floor time.Time) time.Time {
	if now := s.now(); now.After(floor) {
		return now
	}
	return floor
}

// loadOwned fetches a conversation and checks that callerID owns it.
func (s *ConversationService) loadOwned(ctx context.Context, callerID, conversationID uuid.UUID) (*models.Conversation, error) {
	conv, err := s.store.GetConversationByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
		}
		return nil, fmt.Errorf("%w: loading conversation: %v", ErrPersistence, err)
	}
	if conv.UserID != callerID {
		s.log.Warn("conversation access denied",
			zap.Stringer("conversation_id", conversationID),
			zap.Stringer("caller_id", callerID),
		)
		return nil, ErrForbidden
	}
	return conv, nil
}
