package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fabriguespe/xmtp-faucet-bot/internal/bot"
	"github.com/fabriguespe/xmtp-faucet-bot/internal/metrics"
	"github.com/fabriguespe/xmtp-faucet-bot/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	maxRequestBodySize = 64 << 10
	shutdownTimeout    = 10 * time.Second
)

// MessageResponse is the webhook answer: every reply produced for the message, in order.
type MessageResponse struct {
	Replies []string `json:"replies"`
	Error   string   `json:"error,omitempty"`
}

// Server receives messages over HTTP and returns the bot's replies.
type Server struct {
	runner    *Runner
	catalog   bot.NetworkSource
	metrics   *metrics.Metrics
	router    chi.Router
	version   string
	startTime time.Time
	ready     atomic.Bool
}

// NewServer creates the webhook server. metrics may be nil.
func NewServer(runner *Runner, catalog bot.NetworkSource, m *metrics.Metrics, version string) *Server {
	s := &Server{
		runner:    runner,
		catalog:   catalog,
		metrics:   m,
		router:    chi.NewRouter(),
		version:   version,
		startTime: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	s.router.Post("/messages", s.handleMessage)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/version", s.handleVersion)
		r.Get("/networks", s.handleNetworks)
	})
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("version", s.version).Msg("Webhook server listening")
		s.ready.Store(true)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.ready.Store(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info().Msg("Shutting down webhook server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// SetReady marks the server ready for health checks. ListenAndServe does this itself.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var msg models.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Replies: []string{}, Error: "invalid message body"})
		return
	}
	if strings.TrimSpace(msg.SenderAddress) == "" {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Replies: []string{}, Error: "senderAddress is required"})
		return
	}

	replies := &BufferReplier{}
	if err := s.runner.Run(r.Context(), msg, replies); err != nil {
		// Replies sent before the failure are still part of the conversation.
		writeJSON(w, http.StatusBadGateway, MessageResponse{Replies: replies.Replies(), Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Replies: replies.Replies()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) handleNetworks(w http.ResponseWriter, r *http.Request) {
	networks, err := s.catalog.Networks(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load networks")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"networks": networks})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
