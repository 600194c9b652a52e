package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/shohag/webhookd/internal/auth"
	"github.com/shohag/webhookd/internal/config"
	"github.com/shohag/webhookd/internal/delivery"
	"github.com/shohag/webhookd/internal/storage"
)

const defaultMaxBodyBytes = 256 * 1024

// Dispatcher is satisfied by *delivery.Dispatcher.
type Dispatcher interface {
	Trigger(ctx context.Context, workspaceID, eventType string, data json.RawMessage) (delivery.Result, error)
	Test(ctx context.Context, workspaceID, webhookID string) (delivery.Result, error)
}

type Server struct {
	cfg        config.ServerConfig
	store      storage.Storage
	dispatcher Dispatcher
	guard      delivery.URLChecker
	tokens     *auth.TokenService
	router     *chi.Mux
	log        zerolog.Logger
	http       *http.Server
}

func NewServer(cfg config.ServerConfig, store storage.Storage, dispatcher Dispatcher, guard delivery.URLChecker, log zerolog.Logger) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	s := &Server{
		cfg:        cfg,
		store:      store,
		dispatcher: dispatcher,
		guard:      guard,
		log:        log,
	}
	if cfg.JWTSecret != "" {
		s.tokens = auth.NewTokenService(cfg.JWTSecret)
	} else {
		log.Warn().Msg("server.jwt_secret is empty, API authentication is disabled")
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.log))

	whHandler := NewWebhookHandler(s.store, s.guard, s.cfg.MaxBodyBytes)
	dispatchHandler := NewDispatchHandler(s.dispatcher, s.cfg.MaxBodyBytes, s.cfg.WriteTimeout, s.log)
	dlvHandler := NewDeliveryHandler(s.store)
	statsHandler := NewStatsHandler(s.store)

	// Health check, no auth
	r.Get("/health", statsHandler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(s.tokens))

		// Action envelope: ping | trigger | test
		r.Post("/dispatch", dispatchHandler.Dispatch)

		r.Route("/workspaces/{workspaceID}", func(r chi.Router) {
			r.Use(WorkspaceScope)

			r.Post("/events", dispatchHandler.Trigger)

			// Webhooks
			r.Post("/webhooks", whHandler.Create)
			r.Get("/webhooks", whHandler.List)
			r.Get("/webhooks/{webhookID}", whHandler.Get)
			r.Delete("/webhooks/{webhookID}", whHandler.Delete)
			r.Patch("/webhooks/{webhookID}/toggle", whHandler.Toggle)
			r.Post("/webhooks/{webhookID}/test", dispatchHandler.Test)

			// Audit
			r.Get("/deliveries", dlvHandler.List)
			r.Get("/stats", statsHandler.Stats)
		})
	})

	return r
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

// Shutdown stops accepting requests and waits for active ones until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
