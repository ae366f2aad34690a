package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/kolade-dev/pagetutor/internal/api/handlers"
	appMiddleware "github.com/kolade-dev/pagetutor/internal/api/middlewares"
	"github.com/kolade-dev/pagetutor/internal/config"
	"github.com/kolade-dev/pagetutor/internal/core"
	"github.com/kolade-dev/pagetutor/internal/core/ingest"
	"github.com/kolade-dev/pagetutor/internal/core/rag"
	"github.com/kolade-dev/pagetutor/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, db core.DbClient, obj core.ObjectClient, ing *ingest.DocumentIngestor, retriever *rag.Retriever, streamer *rag.AnswerStreamer, llm core.LLMProvider) *Server {
	authHandler := handlers.NewAuthHandler(db, cfg.JWTSecret)
	docHandler := handlers.NewDocumentHandler(db, obj, ing, cfg)
	chatHandler := handlers.NewChatHandler(db, streamer)
	quizHandler := handlers.NewQuizHandler(services.NewQuizService(db, retriever, llm))

	chatLimiter := appMiddleware.NewUserRateLimiter(cfg.RateMinInterval, 10*time.Minute)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTAuth(cfg.JWTSecret))

			// Request-scoped deadline for everything except the streamed
			// answer: a generation stream may legitimately outlive 60s, and
			// cancelling its context mid-stream would cut the frame protocol
			// short.
			protected.Group(func(timed chi.Router) {
				timed.Use(chimiddleware.Timeout(60 * time.Second))

				timed.Post("/documents/upload", docHandler.UploadDocument)
				timed.Get("/documents", docHandler.GetDocuments)
				timed.Get("/documents/{id}/status", docHandler.GetStatus)
				timed.Post("/documents/{id}/reprocess", docHandler.Reprocess)
				timed.Delete("/documents/{id}", docHandler.DeleteDocument)

				timed.Get("/chats", chatHandler.ListChats)
				timed.Get("/chats/{id}/messages", chatHandler.GetMessages)

				timed.Post("/quiz/generate", quizHandler.Generate)
				timed.Post("/quiz/evaluate", quizHandler.Evaluate)
			})

			protected.With(chatLimiter.Middleware).Post("/chat/query", chatHandler.Query)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
