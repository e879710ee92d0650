// File: cmd/serve.go
package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hexhaunt/promptq-cli/internal/browser"
	"github.com/hexhaunt/promptq-cli/internal/config"
	"github.com/hexhaunt/promptq-cli/internal/control"
	"github.com/hexhaunt/promptq-cli/internal/observability"
	"github.com/hexhaunt/promptq-cli/internal/progress"
	"github.com/hexhaunt/promptq-cli/internal/queue"
)

func newServeCmd() *cobra.Command {
	var backend string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local control server",
		Long: `Serve starts the HTTP control server and keeps it running until
interrupted. Queue runs triggered over the API drive a lazily-started browser
session (or the direct API backend); progress events stream on /api/v1/events
and append to the progress log.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runServe(ctx, cfg, backend, logger)
		},
	}

	serveCmd.Flags().StringVarP(&backend, "backend", "b", backendUI, "submission backend: ui (browser) or api (direct)")
	return serveCmd
}

func runServe(ctx context.Context, cfg *config.Config, backend string, logger *zap.Logger) error {
	hub := progress.NewHub(logger)
	defer hub.Close()

	sink := progress.Sink(hub)
	fileSink, err := openProgressLog(cfg.Progress, logger)
	if err != nil {
		return err
	}
	if fileSink != nil {
		defer fileSink.Close()
		sink = progress.Multi(hub, fileSink)
	}

	var submitter queue.Submitter
	switch backend {
	case backendUI:
		manager := browser.NewManager(cfg.Browser, logger)
		defer shutdownBrowser(manager, logger)

		lazy := newLazySubmitter(manager, cfg, logger)
		defer lazy.Close()
		submitter = lazy
	case backendAPI:
		submitter, err = newAPISubmitter(cfg, sink, logger)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", backend, backendUI, backendAPI)
	}

	store, cleanup, err := openSequenceStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	proc := queue.NewProcessor(submitter, sink, cfg.Queue, logger)
	server := control.NewServer(cfg.Control, proc, hub, store, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx)
	})
	g.Go(func() error {
		// Let an in-flight run observe cancellation, then drain it before
		// the deferred teardown pulls the browser out from under it.
		<-gctx.Done()
		proc.Wait()
		return nil
	})

	logger.Info("Control server running.",
		zap.String("addr", cfg.Control.Addr), zap.String("backend", backend))
	return g.Wait()
}

// lazySubmitter defers browser startup until the first queued prompt needs
// it, so serve comes up without a browser on the box until a run arrives.
type lazySubmitter struct {
	manager *browser.Manager
	cfg     *config.Config
	logger  *zap.Logger

	mu      sync.Mutex
	session *browser.Session
	sub     queue.Submitter
}

func newLazySubmitter(manager *browser.Manager, cfg *config.Config, logger *zap.Logger) *lazySubmitter {
	return &lazySubmitter{manager: manager, cfg: cfg, logger: logger}
}

func (l *lazySubmitter) Send(ctx context.Context, prompt string) error {
	sub, err := l.submitter(ctx)
	if err != nil {
		return err
	}
	return sub.Send(ctx, prompt)
}

func (l *lazySubmitter) WaitForIdle(ctx context.Context) error {
	sub, err := l.submitter(ctx)
	if err != nil {
		return err
	}
	return sub.WaitForIdle(ctx)
}

func (l *lazySubmitter) submitter(ctx context.Context) (queue.Submitter, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub != nil {
		return l.sub, nil
	}
	if l.cfg.Browser.TargetURL == "" {
		return nil, fmt.Errorf("no target URL configured (set browser.target_url)")
	}

	session, err := l.manager.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting browser: %w", err)
	}
	if err := session.Navigate(ctx, l.cfg.Browser.TargetURL); err != nil {
		_ = session.Close()
		return nil, err
	}

	l.session = session
	l.sub = newUISubmitter(session, l.cfg, l.logger)
	l.logger.Info("Browser session ready.", zap.String("url", l.cfg.Browser.TargetURL))
	return l.sub, nil
}

// Close releases the lazily-created session, if one was ever started.
func (l *lazySubmitter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.session != nil {
		_ = l.session.Close()
		l.session = nil
		l.sub = nil
	}
}
