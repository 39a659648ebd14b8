// Package gateway is the HTTP face of the widget: it creates threads, relays
// assistant run streams as server-sent events or websocket frames, and serves
// generated files.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"lawggle-ai/internal/domain"
	"lawggle-ai/internal/infra/config"
	"lawggle-ai/internal/infra/middleware"
)

// Server serves the widget API on top of a domain.AssistantService.
type Server struct {
	svc     domain.AssistantService
	bus     domain.EventBus
	cfg     config.ServerConfig
	logger  *slog.Logger
	metrics *Metrics
	started time.Time

	mu        sync.Mutex
	httpSrv   *http.Server
	boundAddr string
	unsubs    []func()
}

// NewServer creates a gateway server. bus may be nil.
func NewServer(svc domain.AssistantService, bus domain.EventBus, cfg config.ServerConfig, logger *slog.Logger) *Server {
	return &Server{
		svc:     svc,
		bus:     bus,
		cfg:     cfg,
		logger:  logger,
		metrics: &Metrics{},
		started: time.Now(),
	}
}

// Handler builds the routed handler with the full middleware chain. ctx
// bounds background work owned by the middleware, such as the rate limiter
// janitor.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := mux.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.AccessLog(s.logger),
		middleware.SecurityHeaders,
		middleware.RateLimit(ctx, middleware.RateLimitConfig{
			RequestsPerMin: s.cfg.RateLimit.RequestsPerMin,
			BurstSize:      s.cfg.RateLimit.Burst,
			TrustedProxies: s.cfg.RateLimit.TrustedProxies,
		}),
	)

	r.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.BearerAuth(bearerTokens(s.cfg.AuthTokens)))
	api.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	api.HandleFunc("/assistants/threads", s.handleCreateThread).Methods(http.MethodPost)
	api.HandleFunc("/assistants/threads/{threadId}/messages", s.handleMessages).Methods(http.MethodPost)
	api.HandleFunc("/assistants/threads/{threadId}/actions", s.handleActions).Methods(http.MethodPost)
	api.HandleFunc("/assistants/threads/{threadId}/ws", s.handleWS).Methods(http.MethodGet)
	api.HandleFunc("/files/{fileId}", s.handleFile).Methods(http.MethodGet)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found", domain.CodeNotFound)
	})
	notAllowed := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed", domain.CodeInvalidInput)
	})
	// mux does not inherit these into subrouters.
	r.NotFoundHandler, api.NotFoundHandler = notFound, notFound
	r.MethodNotAllowedHandler, api.MethodNotAllowedHandler = notAllowed, notAllowed
	return r
}

// Start listens on the configured address and serves until ctx is cancelled
// or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}

	srv := &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.httpSrv = srv
	s.boundAddr = listener.Addr().String()
	s.unsubs = s.subscribe()
	s.mu.Unlock()

	s.logger.Info("gateway started", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		s.Stop(context.WithoutCancel(ctx))
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server. Streams still open after five
// seconds are cut.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// BoundAddr returns the address the server is listening on. Only valid after Start.
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

// subscribe hooks the metrics counters and the debug lifecycle log onto the bus.
func (s *Server) subscribe() []func() {
	if s.bus == nil {
		return nil
	}
	unsubs := s.metrics.subscribe(s.bus)
	unsubs = append(unsubs, s.bus.SubscribeAll(func(ctx context.Context, e domain.Event) {
		s.logger.DebugContext(ctx, "gateway event",
			"event", string(e.Type),
			"thread_id", e.SessionID,
			"payload", string(e.Payload),
		)
	}))
	return unsubs
}

func (s *Server) publish(ctx context.Context, t domain.EventType, threadID string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, domain.NewEvent(t, threadID, payload))
}

func bearerTokens(cfg []config.TokenConfig) []middleware.BearerToken {
	out := make([]middleware.BearerToken, len(cfg))
	for i, t := range cfg {
		out[i] = middleware.BearerToken{Name: t.Name, Token: t.Token}
	}
	return out
}
