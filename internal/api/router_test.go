package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ragchat-backend/internal/askclient"
	"ragchat-backend/internal/auth"
	"ragchat-backend/internal/config"
	"ragchat-backend/internal/handlers"
	"ragchat-backend/internal/models"
	"ragchat-backend/internal/services"
	"ragchat-backend/internal/store/sqlite"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type RouterSuite struct {
	suite.Suite
	db      *sqlite.SQLiteStore
	backend *httptest.Server
	server  *httptest.Server
	cfg     *config.Config
	askFail atomic.Bool
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	log := zap.NewNop()
	ctx := context.Background()

	db, err := sqlite.Open(ctx, ":memory:", log)
	s.Require().NoError(err)
	s.db = db

	s.askFail.Store(false)
	s.backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.askFail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		switch r.URL.Path {
		case "/ask":
			var req askclient.AskRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"question": req.Question,
				"response": "echo: " + req.Question,
				"context":  "retrieved passage",
				"sources":  []string{"doc.pdf"},
			})
		case "/stat":
			_, _ = io.WriteString(w, `{"user_id":"`+r.URL.Query().Get("user_id")+`"}`)
		default:
			http.NotFound(w, r)
		}
	}))

	s.cfg = &config.Config{
		JWTSecret:          "router-secret",
		TokenExpiration:    time.Hour,
		AskTimeout:         2 * time.Second,
		AskHistoryLimit:    10,
		CORSAllowedOrigins: []string{"http://localhost:3000"},
	}
	client, err := askclient.New(s.backend.URL, s.cfg.AskTimeout, log)
	s.Require().NoError(err)

	router := NewRouter(RouterDependencies{
		AuthHandler:         handlers.NewAuthHandler(services.NewAuthService(db, s.cfg, log), log),
		ConversationHandler: handlers.NewConversationHandlers(services.NewConversationService(db, client, s.cfg.AskHistoryLimit, log), log),
		DocumentHandler:     handlers.NewDocumentHandlers(services.NewDocumentService(client, log), log),
		Config:              s.cfg,
		Logger:              log,
	})
	s.server = httptest.NewServer(router)
}

func (s *RouterSuite) TearDownTest() {
	s.server.Close()
	s.backend.Close()
	s.Require().NoError(s.db.Close())
}

func (s *RouterSuite) do(method, path, token string, body any) *http.Response {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	s.T().Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (s *RouterSuite) signupAndLogin(username string) string {
	resp := s.do(http.MethodPost, "/v1/auth/signup", "", models.SignupRequest{Username: username, Password: "secret1"})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	resp = s.do(http.MethodPost, "/v1/auth/login", "", models.LoginRequest{Username: username, Password: "secret1"})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	return decode[models.AuthResponse](s.T(), resp).AccessToken
}

func (s *RouterSuite) TestHealth() {
	resp := s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *RouterSuite) TestProtectedRoutesRequireToken() {
	resp := s.do(http.MethodGet, "/v1/conversations", "", nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(http.MethodGet, "/v1/conversations", "not-a-token", nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	expired, err := auth.NewAccessToken(uuid.New(), s.cfg.JWTSecret, -time.Minute)
	s.Require().NoError(err)
	resp = s.do(http.MethodGet, "/v1/conversations", expired, nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	s.Equal("Token has expired", decode[models.ErrorResponse](s.T(), resp).Error)
}

func (s *RouterSuite) TestConversationLifecycle() {
	token := s.signupAndLogin("alice")

	resp := s.do(http.MethodPost, "/v1/conversations", token, nil)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	conv := decode[models.ConversationResponse](s.T(), resp)
	s.Equal(services.DefaultConversationName, conv.Name)

	resp = s.do(http.MethodPatch, "/v1/conversations/"+conv.ID.String(), token, models.RenameConversationRequest{Name: "Go questions"})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("Go questions", decode[models.ConversationResponse](s.T(), resp).Name)

	resp = s.do(http.MethodPost, "/v1/conversations/"+conv.ID.String()+"/ask", token, models.AskRequest{Question: "what is chi?"})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	turn := decode[models.TurnResponse](s.T(), resp)
	s.Equal("echo: what is chi?", turn.AssistantMessage.Body)
	s.Require().NotNil(turn.Context)
	s.Equal([]string{"doc.pdf"}, turn.Context.Sources)
	s.Equal(1, turn.SourcesCount)

	resp = s.do(http.MethodGet, "/v1/conversations/"+conv.ID.String(), token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	detail := decode[models.ConversationDetailResponse](s.T(), resp)
	s.Len(detail.Messages, 2)
	s.Len(detail.Contexts, 1)

	resp = s.do(http.MethodGet, "/v1/conversations/"+conv.ID.String()+"/contexts", token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Len(decode[models.ListContextsResponse](s.T(), resp).Contexts, 1)

	resp = s.do(http.MethodGet, "/v1/conversations", token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Len(decode[models.ListConversationsResponse](s.T(), resp).Conversations, 1)

	resp = s.do(http.MethodDelete, "/v1/conversations/"+conv.ID.String(), token, nil)
	s.Equal(http.StatusNoContent, resp.StatusCode)

	resp = s.do(http.MethodGet, "/v1/conversations/"+conv.ID.String(), token, nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *RouterSuite) TestOtherUsersConversationIsForbidden() {
	alice := s.signupAndLogin("alice")
	bob := s.signupAndLogin("bob")

	resp := s.do(http.MethodPost, "/v1/conversations", alice, models.CreateConversationRequest{Name: "private"})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	conv := decode[models.ConversationResponse](s.T(), resp)

	resp = s.do(http.MethodGet, "/v1/conversations/"+conv.ID.String(), bob, nil)
	s.Equal(http.StatusForbidden, resp.StatusCode)

	resp = s.do(http.MethodPost, "/v1/conversations/"+conv.ID.String()+"/ask", bob, models.AskRequest{Question: "hi"})
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

func (s *RouterSuite) TestAskErrors() {
	token := s.signupAndLogin("alice")
	resp := s.do(http.MethodPost, "/v1/conversations", token, nil)
	conv := decode[models.ConversationResponse](s.T(), resp)
	path := "/v1/conversations/" + conv.ID.String() + "/ask"

	resp = s.do(http.MethodPost, path, token, models.AskRequest{Question: "  "})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal("question must not be empty", decode[models.ErrorResponse](s.T(), resp).Error)

	s.askFail.Store(true)
	resp = s.do(http.MethodPost, path, token, models.AskRequest{Question: "hello"})
	s.Equal(http.StatusBadGateway, resp.StatusCode)

	resp = s.do(http.MethodGet, "/v1/conversations/not-a-uuid", token, nil)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *RouterSuite) TestProfileAndDocuments() {
	token := s.signupAndLogin("alice")

	resp := s.do(http.MethodGet, "/v1/me", token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	me := decode[models.UserResponse](s.T(), resp)
	s.Equal("alice", me.Username)

	resp = s.do(http.MethodPut, "/v1/me/password", token, models.UpdatePasswordRequest{
		Password: "secret1", NewPassword: "secret2", NewPasswordCheck: "other",
	})
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	resp = s.do(http.MethodPut, "/v1/me/password", token, models.UpdatePasswordRequest{
		Password: "secret1", NewPassword: "secret2", NewPasswordCheck: "secret2",
	})
	s.Equal(http.StatusNoContent, resp.StatusCode)

	resp = s.do(http.MethodGet, "/v1/documents/stats", token, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	payload := decode[models.BackendPayload](s.T(), resp)
	assert.JSONEq(s.T(), `{"user_id":"`+me.ID.String()+`"}`, string(payload.Data))
}
