package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Server represents the webhook HTTP server.
type Server struct {
	config   Config
	queue    Queue
	verifier *Verifier
	guard    *Guard
	logger   *slog.Logger
	server   *http.Server
}

// handlerFunc is a handler that reports failure by returning an error.
// Server.handle turns the error into a response.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// New creates a new webhook server instance.
func New(config Config, queue Queue, logger *slog.Logger) (*Server, error) {
	if queue == nil {
		return nil, fmt.Errorf("webhook: queue is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	alg, err := LookupAlgorithm(config.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("webhook: %w", err)
	}
	signer, err := NewSigner(alg, config.Secret)
	if err != nil {
		return nil, fmt.Errorf("webhook: %w", err)
	}

	// Apply defaults
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.MaxBodySize == 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	if config.SignatureHeader == "" {
		config.SignatureHeader = defaultHeader(alg)
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = DefaultReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}

	return &Server{
		config:   config,
		queue:    queue,
		verifier: NewVerifier(config.VerifyToken),
		guard:    NewGuard(signer, config.SignatureHeader, config.MaxBodySize),
		logger:   logger,
	}, nil
}

func defaultHeader(alg Algorithm) string {
	if alg.Name == SHA256.Name {
		return "X-Hub-Signature-256"
	}
	return "X-Hub-Signature"
}

// Handler returns the routed handler without binding a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the webhook HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.setupRoutes(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.logger.Info("webhook server starting",
		"listen", s.config.Listen,
		"path", s.config.Path,
		"algorithm", s.guard.signer.Algorithm().Name,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.tracingMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handle(s.handleIndex))
	r.Get("/healthz", s.handle(s.handleHealthz))
	r.Get(s.config.Path, s.handle(s.handleSubscription))
	r.Post(s.config.Path, s.handle(s.handleEvent))

	return r
}

// loggingMiddleware logs HTTP requests (excludes payloads).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// tracingMiddleware continues an incoming W3C trace, if any, and names the
// server span after the matched route.
func (s *Server) tracingMiddleware(next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			span.SetName(r.Method + " " + rctx.RoutePattern())
		}
		span.SetAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.Int("http.response.status_code", ww.Status()),
		)
		if ww.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(ww.Status()))
		}
	})
}

func (s *Server) handle(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			s.respondError(w, r, err)
		}
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) error {
	s.respondJSON(w, http.StatusOK, []any{})
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	if err := s.queue.Ping(ctx); err != nil {
		return err
	}
	depth, err := s.queue.Depth(ctx)
	if err != nil {
		return err
	}
	s.respondJSON(w, http.StatusOK, HealthResponse{Status: "ok", QueueSize: depth})
	return nil
}

// handleSubscription answers GET ?hub.mode=subscribe&hub.verify_token=...&hub.challenge=...
func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	challenge, ok := s.verifier.Verify(q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"))
	if !ok {
		return ErrSubscriptionRejected
	}

	s.logger.Info("webhook subscription verified", "path", r.URL.Path)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
	return nil
}

// handleEvent authenticates an event delivery and queues it.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	payload, err := s.guard.Authenticate(r)
	if err != nil {
		return err
	}

	if s.logger.Enabled(ctx, slog.LevelDebug) {
		s.logger.Debug("webhook payload", "body", string(payload.Raw))
	}

	receipt, err := s.queue.Enqueue(ctx, payload.Value)
	if err != nil {
		return err
	}

	s.logger.Info("webhook event queued",
		"path", r.URL.Path,
		"bytes", receipt.Bytes,
		"queue_size", receipt.Depth,
		"request_id", middleware.GetReqID(ctx),
	)

	w.WriteHeader(http.StatusOK)
	return nil
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError is the single place request failures become responses.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := errorStatus(err)

	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err,
	}
	switch {
	case errors.Is(err, ErrUnauthenticated), status >= http.StatusInternalServerError:
		s.logger.Error("webhook request rejected", attrs...)
	default:
		s.logger.Warn("webhook request rejected", attrs...)
	}

	if message == "" {
		w.WriteHeader(status)
		return
	}
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
