// Package control exposes the local HTTP surface for triggering queue runs,
// observing their progress, and managing stored sequences.
package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hexhaunt/promptq-cli/api/schemas"
	"github.com/hexhaunt/promptq-cli/internal/config"
	"github.com/hexhaunt/promptq-cli/internal/sequence"
)

const defaultShutdownTimeout = 10 * time.Second

// Runner is the slice of the queue processor the server drives.
type Runner interface {
	Start(ctx context.Context, prompts []string) error
	Status() schemas.RunStatus
}

// EventSource is the slice of the progress hub the server streams from.
type EventSource interface {
	Subscribe(buffer int) (<-chan schemas.ProgressEvent, func())
}

// Server hosts the control API. The sequence store may be nil, in which case
// the sequence endpoints answer 503 instead of failing at startup.
type Server struct {
	cfg    config.ControlConfig
	runner Runner
	events EventSource
	store  sequence.Store
	log    *zap.Logger

	// baseCtx bounds trigger-started runs to the server's lifetime.
	mu      sync.Mutex
	baseCtx context.Context
}

// NewServer wires the control API to its collaborators.
func NewServer(cfg config.ControlConfig, runner Runner, events EventSource, store sequence.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:    cfg,
		runner: runner,
		events: events,
		store:  store,
		log:    logger.Named("control"),
	}
}

// Serve runs the listener until ctx is cancelled, then drains in-flight
// requests within the configured shutdown timeout. Event streams are bound to
// ctx through the server's base context, so they end when shutdown starts.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	srv := &http.Server{
		Addr:        s.cfg.Addr,
		Handler:     s.Routes(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Control server listening.", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.log.Info("Control server shutting down.")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control server shutdown: %w", err)
	}
	<-errCh
	return nil
}

// runContext returns the context trigger-started runs should inherit.
func (s *Server) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

// requestLogger traces every request with the chi request ID attached.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("Request handled.",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("duration", time.Since(start)))
	})
}
