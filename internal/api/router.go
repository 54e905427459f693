package api

import (
	"net/http"
	"time"

	"ragchat-backend/internal/config"
	"ragchat-backend/internal/handlers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterDependencies holds all the dependencies required by the router setup,
// primarily handlers and configuration.
type RouterDependencies struct {
	AuthHandler         *handlers.AuthHandler
	ConversationHandler *handlers.ConversationHandlers
	DocumentHandler     *handlers.DocumentHandlers
	Config              *config.Config
	Logger              *zap.Logger
}

// NewRouter creates and configures the main Chi router for the application.
func NewRouter(deps RouterDependencies) *chi.Mux {
	log := deps.Logger.Named("http")
	r := chi.NewRouter()

	// --- Base Middleware Stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	// Must exceed the ask timeout.
	r.Use(middleware.Timeout(deps.Config.AskTimeout + 15*time.Second))

	// --- CORS Configuration ---
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	// --- Public Routes (No JWT Required) ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/v1/auth", func(r chi.Router) {
		if deps.AuthHandler == nil {
			panic("AuthHandler dependency is nil in router setup")
		}
		r.Post("/signup", deps.AuthHandler.HandleSignup)
		r.Post("/login", deps.AuthHandler.HandleLogin)
	})

	// --- Authenticated Routes (JWT Required) ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(JwtAuthMiddleware(deps.Config.JWTSecret, log))

		r.Get("/me", deps.AuthHandler.HandleGetMe)
		r.Patch("/me/username", deps.AuthHandler.HandleUpdateUsername)
		r.Put("/me/password", deps.AuthHandler.HandleUpdatePassword)

		if deps.ConversationHandler != nil {
			r.Route("/conversations", func(r chi.Router) {
				r.Post("/", deps.ConversationHandler.HandleCreateConversation)
				r.Get("/", deps.ConversationHandler.HandleListConversations)
				r.Get("/{conversationID}", deps.ConversationHandler.HandleGetConversation)
				r.Patch("/{conversationID}", deps.ConversationHandler.HandleRenameConversation)
				r.Delete("/{conversationID}", deps.ConversationHandler.HandleDeleteConversation)
				r.Post("/{conversationID}/messages", deps.ConversationHandler.HandleAppendMessage)
				r.Post("/{conversationID}/ask", deps.ConversationHandler.HandleAsk)
				r.Get("/{conversationID}/contexts", deps.ConversationHandler.HandleListContexts)
			})
		} else {
			log.Warn("ConversationHandler dependency is nil, skipping /v1/conversations routes")
		}

		if deps.DocumentHandler != nil {
			r.Route("/documents", func(r chi.Router) {
				r.Get("/stats", deps.DocumentHandler.HandleStats)
				r.Post("/process-all", deps.DocumentHandler.HandleProcessAll)
				r.Delete("/files/{fileName}", deps.DocumentHandler.HandleDeleteFile)
			})
		} else {
			log.Warn("DocumentHandler dependency is nil, skipping /v1/documents routes")
		}
	})

	return r
}
