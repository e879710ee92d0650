package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hexhaunt/promptq-cli/internal/automation"
	"github.com/hexhaunt/promptq-cli/internal/config"
)

const (
	defaultNavigationTimeout = 90 * time.Second
	defaultActionTimeout     = 15 * time.Second
)

// Session is one browser tab, driven over CDP. It implements automation.Page.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	cfg    config.BrowserConfig
	logger *zap.Logger

	onClose func()

	mu       sync.Mutex
	isClosed bool
}

var _ automation.Page = (*Session)(nil)

func newSession(ctx context.Context, cancel context.CancelFunc, cfg config.BrowserConfig, logger *zap.Logger) *Session {
	id := uuid.New().String()
	return &Session{
		id:     id,
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		logger: logger.With(zap.String("session_id", id)),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Close releases the tab. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")
	s.cancel()
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

// Navigate loads url and waits for the document to become ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Info("Navigating.", zap.String("url", url))
	return s.run(ctx, fmt.Sprintf("navigating to %s", url), s.navigationTimeout(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// CurrentURL reports the page's current location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, "reading location", s.actionTimeout(), chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// Snapshot returns the full-document outer HTML at this instant.
func (s *Session) Snapshot(ctx context.Context) (io.Reader, error) {
	var outerHTML string
	if err := s.run(ctx, "capturing snapshot", s.actionTimeout(),
		chromedp.OuterHTML("html", &outerHTML, chromedp.ByQuery),
	); err != nil {
		return nil, err
	}
	return strings.NewReader(outerHTML), nil
}

// Eval runs a JavaScript expression in the page and decodes its
// return-by-value result into out when out is non-nil.
func (s *Session) Eval(ctx context.Context, expr string, out any) error {
	var raw json.RawMessage
	err := s.run(ctx, "evaluating script", s.actionTimeout(),
		chromedp.Evaluate(expr, &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
		}),
	)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if len(raw) == 0 || string(raw) == "null" {
		// A null result leaves out at its zero value.
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode script result: %w", err)
	}
	return nil
}

// run executes chromedp actions under the operation timeout, respecting both
// the session lifetime and the caller's context.
func (s *Session) run(ctx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()

	opCtx, opCancel := context.WithTimeout(runCtx, timeout)
	defer opCancel()

	err := chromedp.Run(opCtx, actions...)
	return s.wrapOpErr(opCtx, ctx, op, timeout, err)
}

// wrapOpErr distinguishes an operation timeout from cancellation of the
// caller or the session itself.
func (s *Session) wrapOpErr(opCtx, callerCtx context.Context, op string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if opCtx.Err() == context.DeadlineExceeded && callerCtx.Err() == nil && s.ctx.Err() == nil {
		return fmt.Errorf("%s timed out after %v: %w", op, timeout, opCtx.Err())
	}
	if callerCtx.Err() != nil {
		return fmt.Errorf("%s cancelled: %w", op, callerCtx.Err())
	}
	if s.ctx.Err() != nil {
		return fmt.Errorf("%s aborted, session closed: %w", op, s.ctx.Err())
	}
	return fmt.Errorf("%s failed: %w", op, err)
}

func (s *Session) navigationTimeout() time.Duration {
	if s.cfg.NavigationTimeout > 0 {
		return s.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

func (s *Session) actionTimeout() time.Duration {
	if s.cfg.ActionTimeout > 0 {
		return s.cfg.ActionTimeout
	}
	return defaultActionTimeout
}
