// Package browser owns the Chrome process and the tabs driven through it.
// The Manager launches one profile-carrying browser on first use; Sessions
// are tabs that expose the page primitives the automation layer consumes.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/hexhaunt/promptq-cli/internal/config"
)

const browserStartTimeout = 45 * time.Second

// Manager handles the browser process lifecycle and session creation.
// Launch is deferred until the first session is requested, so a serve process
// does not spawn Chrome before anything is queued.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	initOnce sync.Once
	initErr  error

	// wg tracks open sessions for graceful shutdown.
	wg sync.WaitGroup
}

// NewManager creates a browser manager. The browser itself is not launched
// until the first NewSession call.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		cfg:    cfg,
		logger: logger.Named("browser_manager"),
	}
	m.logger.Info("Browser manager created (launch deferred until first session).")
	return m
}

// initialize launches the browser process exactly once.
func (m *Manager) initialize() error {
	m.initOnce.Do(func() {
		m.logger.Info("Launching browser.",
			zap.Bool("headless", m.cfg.Headless),
			zap.String("user_data_dir", expandUserDataDir(m.cfg.UserDataDir)))

		// The browser outlives any single trigger, so its lifetime hangs off
		// the manager rather than the first caller's context.
		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(context.Background(), DefaultAllocatorOptions(m.cfg)...)
		m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocCtx)

		startCtx, cancel := context.WithTimeout(m.browserCtx, browserStartTimeout)
		defer cancel()
		if err := chromedp.Run(startCtx); err != nil {
			m.browserCancel()
			m.allocCancel()
			m.initErr = fmt.Errorf("browser failed to start or respond: %w", err)
			return
		}

		m.logger.Info("Browser launched and responsive.")
	})
	return m.initErr
}

// NewSession opens a fresh tab and wires it for automation. The first call
// launches the browser process.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	if err := m.initialize(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled before creating session: %w", err)
	}

	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx)

	// Realize the target before handing the session out.
	startCtx, startCancel := context.WithTimeout(tabCtx, browserStartTimeout)
	err := chromedp.Run(startCtx)
	startCancel()
	if err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open browser tab: %w", err)
	}

	m.wg.Add(1)
	s := newSession(tabCtx, tabCancel, m.cfg, m.logger)
	s.onClose = func() {
		m.wg.Done()
		m.logger.Debug("Session released.", zap.String("session_id", s.ID()))
	}

	m.logger.Info("New browser session created.", zap.String("session_id", s.ID()))
	return s, nil
}

// Shutdown waits for open sessions to close, then terminates the browser
// process. It is a no-op when the browser was never launched.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.browserCtx == nil {
		m.logger.Info("Browser never launched, nothing to shut down.")
		return nil
	}

	m.logger.Info("Shutting down browser manager.")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Debug("All sessions closed.")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for sessions to close. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	m.browserCancel()
	m.allocCancel()
	<-m.allocCtx.Done()

	m.logger.Info("Browser manager shutdown complete.")
	return nil
}
