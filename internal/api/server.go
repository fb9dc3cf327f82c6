package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"flow-field/internal/config"
	"flow-field/internal/session"
)

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with a WebSocket hub for field change events.
type Server struct {
	fields      *session.Registry
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
}

// NewServer creates an API server for registry.
//
// Background workers other than the rate limiter cleanup do NOT start until
// Start() is called, so tests can drive Router() with httptest.
func NewServer(registry *session.Registry, cfg config.AppConfig) *Server {
	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = DefaultOrigins
	}

	s := &Server{
		fields:      registry,
		wsHub:       NewWebSocketHub(cfg.RateLimit.MaxWSPerIP, origins),
		rateLimiter: NewIPRateLimiter(cfg.RateLimit),
	}

	s.router = NewRouter(RouterConfig{
		Fields:      registry,
		Notifier:    s.wsHub,
		Field:       cfg.Field,
		RateLimiter: s.rateLimiter,
		CORSOrigins: origins,
	})

	// Routes below need the hub or limiter instances
	s.router.Get("/ws", s.wsHub.HandleWebSocket)
	s.router.Get("/stats", s.handleStats)

	return s
}

// Start runs the hub and serves HTTP on addr until Shutdown. It returns nil
// after a clean shutdown.
func (s *Server) Start(addr string) error {
	go s.wsHub.Run()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.WithField("addr", addr).Info("API server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
//
// Example:
//
//	server := api.NewServer(registry, config.Load())
//	ts := httptest.NewServer(server.Router())
//	defer ts.Close()
//	resp, _ := http.Get(ts.URL + "/api/fields")
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx
// ends, then stops the background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.wsHub.Stop()
	s.rateLimiter.Stop()
	return err
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"fields":      s.fields.Len(),
		"wsClients":   s.wsHub.ClientCount(),
		"rateLimiter": s.rateLimiter.Stats(),
		"wsLimiter":   s.wsHub.conns.Stats(),
	})
}
