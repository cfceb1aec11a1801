package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-liveqa/internal/auth"
	"github.com/npezzotti/go-liveqa/internal/config"
	"github.com/npezzotti/go-liveqa/internal/database"
	"github.com/npezzotti/go-liveqa/internal/qa"
	"github.com/npezzotti/go-liveqa/internal/server"
	"github.com/npezzotti/go-liveqa/internal/stats"
	"go.uber.org/zap"
)

type QAApp struct {
	log            *zap.Logger
	repo           database.QARepository
	svc            *qa.Service
	qs             *server.QAServer
	authorizer     *auth.Authorizer
	tokens         *auth.TokenIssuer
	stats          stats.StatsProvider
	allowedOrigins []string
	storeTimeout   time.Duration
	mux            *http.Server
}

func NewQAApp(
	mux *http.ServeMux,
	logger *zap.Logger,
	qs *server.QAServer,
	svc *qa.Service,
	repo database.QARepository,
	su stats.StatsProvider,
	cfg *config.Config,
) *QAApp {
	tokens := auth.NewTokenIssuer(cfg.SigningKey, auth.DefaultTokenExpiration)
	s := &QAApp{
		log:            logger,
		repo:           repo,
		svc:            svc,
		qs:             qs,
		authorizer:     auth.NewAuthorizer(tokens, svc.Sessions),
		tokens:         tokens,
		stats:          su,
		allowedOrigins: cfg.AllowedOrigins,
		storeTimeout:   cfg.StoreTimeout,
	}
	if s.storeTimeout <= 0 {
		s.storeTimeout = config.DefaultStoreTimeout
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/sessions", s.createSession)
	mux.HandleFunc("GET /api/sessions/{code}", s.getSession)
	mux.Handle("DELETE /api/sessions/{id}", s.presenterMiddleware(s.endSession))
	mux.HandleFunc("POST /api/questions", s.createQuestion)
	mux.HandleFunc("GET /api/questions/session/{sessionId}", s.listQuestions)
	mux.Handle("PATCH /api/questions/{id}/answer", s.presenterMiddleware(s.answerQuestion))
	mux.HandleFunc("POST /api/questions/{id}/vote", s.voteQuestion)
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
	)(mux)

	h = s.requestLogger(h)
	h = s.errorHandler(h)

	s.mux = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *QAApp) Handler() http.Handler {
	return s.mux.Handler
}

func (s *QAApp) Start() error {
	s.log.Info("starting server", zap.String("addr", s.mux.Addr))
	return s.mux.ListenAndServe()
}

func (s *QAApp) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
