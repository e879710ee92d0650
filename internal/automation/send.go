// internal/automation/send.go
package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hexhaunt/promptq-cli/api/schemas"
	"github.com/hexhaunt/promptq-cli/internal/config"
	"github.com/hexhaunt/promptq-cli/internal/dom"
)

// Orchestrator drives one prompt through the submission state machine:
//
//	EnsureComposer -> Focus+Inject -> LocateSubmit -> Click
//	                                  | unresolved -> keyboard submit chord
//	                                                  -> LocateSubmit -> Click
//	                                                  | unresolved -> fail
//
// followed by an acceptance check. Submission is never attempted without a
// successfully injected, focused composer.
type Orchestrator struct {
	page     Page
	locator  *dom.Locator
	injector *Injector
	detector *Detector
	cfg      config.QueueConfig
	log      *zap.Logger
}

// NewOrchestrator wires the orchestrator over shared collaborators. A nil
// locator, injector, or detector is constructed in place over the same page.
func NewOrchestrator(page Page, locator *dom.Locator, injector *Injector, detector *Detector, cfg config.QueueConfig, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locator == nil {
		locator = dom.NewLocator(dom.Tables{}, logger)
	}
	if injector == nil {
		injector = NewInjector(page, logger)
	}
	if detector == nil {
		detector = NewDetector(page, locator, cfg, logger)
	}
	return &Orchestrator{
		page:     page,
		locator:  locator,
		injector: injector,
		detector: detector,
		cfg:      cfg,
		log:      logger.Named("orchestrator"),
	}
}

// Detector exposes the completion detector sharing this orchestrator's page
// and tables, for callers that wait for idle between submissions.
func (o *Orchestrator) Detector() *Detector { return o.detector }

// WaitForIdle blocks until the interface finishes its current response.
func (o *Orchestrator) WaitForIdle(ctx context.Context) error {
	return o.detector.WaitForIdle(ctx)
}

// Send submits one prompt and confirms the interface accepted it.
func (o *Orchestrator) Send(ctx context.Context, prompt string) error {
	log := o.log.With(zap.Int("prompt_chars", len(prompt)))

	composer, err := o.EnsureComposer(ctx)
	if err != nil {
		return err
	}
	log.Debug("composer resolved",
		zap.String("matcher", composer.Matcher),
		zap.String("kind", composer.Kind.String()))

	if err := o.page.Focus(ctx, composer.XPath); err != nil {
		// The injector retargets by XPath anyway; focus here only helps
		// frameworks that gate edits on focus order.
		log.Debug("composer focus failed", zap.Error(err))
	}
	if err := o.injector.Inject(ctx, composer, prompt); err != nil {
		return fmt.Errorf("injecting prompt: %w", err)
	}

	clicked, err := o.clickSubmit(ctx)
	if err != nil {
		return err
	}
	if !clicked {
		log.Info("submit control unresolved, synthesizing keyboard submission")
		if err := o.keyboardSubmit(ctx, composer); err != nil {
			return fmt.Errorf("keyboard submission: %w", err)
		}
		clicked, err = o.clickSubmit(ctx)
		if err != nil {
			return err
		}
		if !clicked {
			return fmt.Errorf("no submit control after keyboard fallback: %w", ErrSubmitNotFound)
		}
	}

	if err := o.confirmAccepted(ctx, composer); err != nil {
		return err
	}
	log.Debug("prompt submitted")
	return nil
}

// EnsureComposer resolves the composer, retrying on a fixed interval while
// the page may still be loading. The attempt budget bounds worst-case
// latency when it never loads.
func (o *Orchestrator) EnsureComposer(ctx context.Context) (*dom.Element, error) {
	attempts := o.cfg.ComposerAttempts
	if attempts <= 0 {
		attempts = 1
	}
	interval := o.cfg.ComposerRetryInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := snapshotDoc(ctx, o.page)
		if err != nil {
			o.log.Debug("snapshot failed during composer search",
				zap.Int("attempt", attempt), zap.Error(err))
		} else if el := o.locator.FindComposer(doc); el != nil {
			return el, nil
		}
		if attempt < attempts {
			if err := sleepCtx(ctx, interval); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("composer not resolved after %d attempts: %w", attempts, ErrComposerNotFound)
}

// clickSubmit resolves the submit control from a fresh snapshot and clicks
// it. An unresolvable control is (false, nil), not an error; the caller owns
// the fallback.
func (o *Orchestrator) clickSubmit(ctx context.Context) (bool, error) {
	doc, err := snapshotDoc(ctx, o.page)
	if err != nil {
		return false, err
	}
	submit := o.locator.FindSubmit(doc, dom.SubmitOptions{})
	if submit == nil {
		return false, nil
	}
	if err := o.page.Click(ctx, submit.XPath); err != nil {
		return false, fmt.Errorf("clicking submit control (%s): %w", submit.Matcher, err)
	}
	o.log.Debug("submit control clicked", zap.String("matcher", submit.Matcher))
	return true, nil
}

// keyboardSubmit refocuses the composer and dispatches the full Enter chord.
// Some layouts only materialize or enable their send control after keyboard
// activity; others submit directly on Enter. Either way the caller re-runs
// submit resolution afterwards.
func (o *Orchestrator) keyboardSubmit(ctx context.Context, composer *dom.Element) error {
	if err := o.page.Focus(ctx, composer.XPath); err != nil {
		return fmt.Errorf("refocusing composer: %w", err)
	}
	return o.page.PressKey(ctx, schemas.KeyEventData{Key: "Enter"})
}

// confirmAccepted polls for evidence the interface took the submission: the
// composer clearing, or any busy signal appearing. Seeing neither inside the
// accept window means the prompt is most likely still sitting in the
// composer.
func (o *Orchestrator) confirmAccepted(ctx context.Context, composer *dom.Element) error {
	window := o.cfg.AcceptWindow
	if window <= 0 {
		return nil
	}
	interval := o.cfg.PollInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}

	acceptCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if got, err := o.injector.ReadBack(acceptCtx, composer); err == nil && strings.TrimSpace(got) == "" {
			o.log.Debug("submission accepted", zap.String("signal", "composer-cleared"))
			return nil
		}
		if busy, reason, err := o.detector.IsBusy(acceptCtx); err == nil && busy {
			o.log.Debug("submission accepted", zap.String("signal", reason))
			return nil
		}

		select {
		case <-acceptCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("no acceptance signal within %v: %w", window, ErrSubmitUnconfirmed)
		case <-ticker.C:
		}
	}
}
