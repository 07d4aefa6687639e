package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/l0p7/idxauth-fetch/internal/config"
)

// Server owns the HTTP lifecycle and orchestrates graceful shutdown.
type Server struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	once       sync.Once
}

// New equips the lifecycle agent with the first handler hook so later reloads inherit consistent listener settings.
func New(cfg config.Config, logger *slog.Logger, handler http.Handler) (*Server, error) {
	if handler == nil {
		return nil, errors.New("server: handler required")
	}

	addr := net.JoinHostPort(cfg.Server.Listen.Address, strconv.Itoa(cfg.Server.Listen.Port))
	s := &Server{
		cfg:    cfg,
		logger: logger.With(slog.String("agent", "lifecycle")),
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.withAccessLog(handler),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s, nil
}

// Run keeps the lifecycle agent active until shutdown signals arrive, ensuring graceful exits over abrupt restarts.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("http listener starting", slog.String("address", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server: listen: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	}
}

// shutdown collapses the listener once to stop duplicate shutdown work during cascading cancellations.
func (s *Server) shutdown(ctx context.Context) error {
	var shutdownErr error
	s.once.Do(func() {
		s.logger.Info("http listener shutting down")
		shutdownErr = s.httpServer.Shutdown(ctx)
	})
	return shutdownErr
}

type requestLoggerKey struct{}

// RequestLogger returns the correlation-aware logger the access log
// middleware attached to the request context, or slog.Default() if ctx
// carries none (e.g. a handler invoked directly in a test).
func RequestLogger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(requestLoggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// statusRecorder captures the status code a handler wrote so the access log
// can report it without requiring every handler to track it itself.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withAccessLog wraps next with structured per-request logging. When
// cfg.Server.Logging.CorrelationHeader is set, its value on the incoming
// request is attached to every log line for that request and exposed via
// RequestLogger, so a caller-supplied correlation ID threads through to
// downstream handlers (e.g. the fetch handler's own log lines) for free.
func (s *Server) withAccessLog(next http.Handler) http.Handler {
	header := s.cfg.Server.Logging.CorrelationHeader
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLogger := s.logger
		var correlationID string
		if header != "" {
			correlationID = r.Header.Get(header)
		}
		if correlationID != "" {
			reqLogger = reqLogger.With(slog.String("correlation_id", correlationID))
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		ctx := context.WithValue(r.Context(), requestLoggerKey{}, reqLogger)
		next.ServeHTTP(rec, r.WithContext(ctx))

		reqLogger.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
