package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// --- Request Structs ---

// SignupRequest defines the expected body for the signup endpoint.
type SignupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Age      *int32 `json:"age,omitempty"`
}

// LoginRequest defines the expected body for the login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UpdateUsernameRequest defines the body for PATCH /v1/me/username.
type UpdateUsernameRequest struct {
	Username string `json:"username"`
}

// UpdatePasswordRequest defines the body for PUT /v1/me/password.
type UpdatePasswordRequest struct {
	Password         string `json:"password"`
	NewPassword      string `json:"new_password"`
	NewPasswordCheck string `json:"new_password_check"`
}

// --- Response Structs ---

// UserResponse defines the user information returned by the API.
// Avoid returning sensitive info like HashedPassword.
type UserResponse struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Age      *int32    `json:"age,omitempty"`
}

// AuthResponse defines the response body for successful authentication.
type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	User        UserResponse `json:"user"`
}

// ErrorResponse defines the standard structure for API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewUserResponse maps a stored user to its public representation.
func NewUserResponse(u *User) UserResponse {
	return UserResponse{ID: u.ID, Username: u.Username, Age: u.Age}
}

// --- Conversation DTOs ---

// CreateConversationRequest defines the body for creating a conversation.
// An empty name gets the default conversation name.
type CreateConversationRequest struct {
	Name string `json:"name"`
}

// RenameConversationRequest defines the body for renaming a conversation.
type RenameConversationRequest struct {
	Name string `json:"name"`
}

// AppendMessageRequest defines the body for appending a raw message.
type AppendMessageRequest struct {
	Body string      `json:"body"`
	Role MessageRole `json:"role,omitempty"` // Defaults to "user"
}

// AskRequest defines the body for a chat turn.
type AskRequest struct {
	Question string `json:"question"`
}

// ConversationResponse defines the standard representation of a conversation.
type ConversationResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageResponse defines a message in API responses.
type MessageResponse struct {
	ID             uuid.UUID   `json:"id"`
	ConversationID uuid.UUID   `json:"conversation_id"`
	Role           MessageRole `json:"role"`
	Body           string      `json:"body"`
	CreatedAt      time.Time   `json:"created_at"`
}

// ContextResponse defines a retrieved-context record in API responses.
type ContextResponse struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Content        string    `json:"content"`
	Sources        []string  `json:"sources"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationDetailResponse is a conversation with its messages and contexts.
type ConversationDetailResponse struct {
	ConversationResponse
	Messages []MessageResponse `json:"messages"`
	Contexts []ContextResponse `json:"contexts"`
}

// ListConversationsResponse defines the response structure for listing conversations.
type ListConversationsResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

// ListContextsResponse defines the response structure for listing contexts.
type ListContextsResponse struct {
	Contexts []ContextResponse `json:"contexts"`
}

// TurnResponse is returned after a successful ask.
type TurnResponse struct {
	UserMessage      MessageResponse  `json:"user_message"`
	AssistantMessage MessageResponse  `json:"assistant_message"`
	Context          *ContextResponse `json:"context,omitempty"`
	SourcesCount     int              `json:"sources_count"`
	ProcessingTime   *float64         `json:"processing_time,omitempty"`
}

// --- Document DTOs ---

// ProcessAllRequest defines the optional body for POST /v1/documents/process-all.
type ProcessAllRequest struct {
	CustomPDFPath *string `json:"custom_pdf_path,omitempty"`
}

// BackendPayload wraps a JSON document returned verbatim by the answer backend.
type BackendPayload struct {
	Data json.RawMessage `json:"data"`
}

func NewConversationResponse(c *Conversation) ConversationResponse {
	return ConversationResponse{
		ID:        c.ID,
		Name:      c.Name,
		UserID:    c.UserID,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func NewMessageResponse(m *Message) MessageResponse {
	return MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           m.Role,
		Body:           m.Body,
		CreatedAt:      m.CreatedAt,
	}
}

func NewContextResponse(c *Context) ContextResponse {
	sources := c.Sources
	if sources == nil {
		sources = []string{}
	}
	return ContextResponse{
		ID:             c.ID,
		ConversationID: c.ConversationID,
		Content:        c.Content,
		Sources:        sources,
		CreatedAt:      c.CreatedAt,
	}
}

// NewConversationDetailResponse maps a loaded conversation and its children.
func NewConversationDetailResponse(d *ConversationDetail) ConversationDetailResponse {
	resp := ConversationDetailResponse{
		ConversationResponse: NewConversationResponse(&d.Conversation),
		Messages:             make([]MessageResponse, 0, len(d.Messages)),
		Contexts:             make([]ContextResponse, 0, len(d.Contexts)),
	}
	for i := range d.Messages {
		resp.Messages = append(resp.Messages, NewMessageResponse(&d.Messages[i]))
	}
	for i := range d.Contexts {
		resp.Contexts = append(resp.Contexts, NewContextResponse(&d.Contexts[i]))
	}
	return resp
}
