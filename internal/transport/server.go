package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"inkrelay/internal/config"
	"inkrelay/internal/handlers"
	"inkrelay/internal/middleware"
	"inkrelay/internal/registry"
	"inkrelay/internal/user"
)

// New connections per address: 10 a minute, burst of 5
const (
	connectEvery      = 6 * time.Second
	connectBurst      = 5
	limiterSweepEvery = 15 * time.Minute
	limiterMaxIdle    = time.Hour
)

// Server owns the HTTP listener and the websocket sessions
type Server struct {
	cfg       *config.Config
	registry  *registry.Registry
	router    *handlers.MessageRouter
	rateLimit *middleware.RateLimit
	ipLimiter *middleware.IPRateLimit
	colors    *user.ColorGenerator
	upgrader  websocket.Upgrader
	logger    *slog.Logger

	httpServer *http.Server
	baseCtx    context.Context
	cancel     context.CancelFunc

	// one per websocket handler, counted before the upgrade
	sessions sync.WaitGroup
}

func NewServer(cfg *config.Config, reg *registry.Registry, router *handlers.MessageRouter, logger *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		registry:  reg,
		router:    router,
		rateLimit: middleware.NewRateLimit(cfg.Limits.MaxMessageSize, cfg.Limits.MessagesPerSecond, cfg.Limits.MessageBurst),
		ipLimiter: middleware.NewIPRateLimit(connectEvery, connectBurst, logger),
		colors:    user.NewColorGenerator(),
		logger:    logger,
		baseCtx:   ctx,
		cancel:    cancel,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler: routes served by the relay
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.With(s.ipLimiter.Middleware).Get("/ws", s.HandleWebSocket)
	return r
}

// Start: binds the listener and serves in the background
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}

	go s.ipLimiter.Run(s.baseCtx, limiterSweepEvery, limiterMaxIdle)
	go func() {
		s.logger.Info("relay listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", "error", err)
		}
	}()
	return nil
}

// Stop: stops accepting, closes every connection, waits for the read loops
// to exit and then for in-flight recognitions to finish
func (s *Server) Stop(ctx context.Context) error {
	defer s.cancel()

	// Shutdown returns once every pending upgrade has been hijacked, so no
	// handler starts after this point
	err := s.httpServer.Shutdown(ctx)
	s.registry.CloseAll()
	if err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	done := make(chan struct{})
	go func() {
		// Read loops start recognitions, they must be gone before waiting on them
		s.sessions.Wait()
		s.router.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("shutdown before in-flight recognitions finished")
	}
	return nil
}

func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Origins()
	origin := r.Header.Get("Origin")
	if len(allowed) == 0 || origin == "" {
		return true
	}

	for _, candidate := range allowed {
		if origin == candidate {
			return true
		}
	}
	s.logger.Warn("rejected websocket origin", "origin", origin)
	return false
}

type healthResponse struct {
	Status                string `json:"status"`
	Connections           int    `json:"connections"`
	Provider              string `json:"provider"`
	RecognitionConfigured bool   `json:"recognitionConfigured"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthResponse{
		Status:                "ok",
		Connections:           s.registry.Count(),
		Provider:              s.cfg.Recognition.Provider,
		RecognitionConfigured: s.cfg.Recognition.APIKey != "",
	})
}
