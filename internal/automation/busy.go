// internal/automation/busy.go
package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hexhaunt/promptq-cli/internal/config"
	"github.com/hexhaunt/promptq-cli/internal/dom"
)

// Detector decides whether the target interface is still processing the most
// recent submission, from observable UI state only. There is no completion
// callback on an externally-rendered page; polling with a hard deadline is
// the only available primitive.
type Detector struct {
	page    Page
	locator *dom.Locator
	cfg     config.QueueConfig
	log     *zap.Logger
}

// NewDetector builds a detector polling the given page.
func NewDetector(page Page, locator *dom.Locator, cfg config.QueueConfig, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if locator == nil {
		locator = dom.NewLocator(dom.Tables{}, logger)
	}
	return &Detector{page: page, locator: locator, cfg: cfg, log: logger.Named("detector")}
}

// IsBusy samples the interface once. The checks run in a fixed order and any
// hit short-circuits: an in-progress response region or loading indicator, a
// visible stop/cancel control (a visible stop action implies an active
// generation), then a disabled submit control. The returned reason names the
// signal that fired.
func (d *Detector) IsBusy(ctx context.Context) (bool, string, error) {
	doc, err := snapshotDoc(ctx, d.page)
	if err != nil {
		return false, "", err
	}

	if name, busy := d.locator.BusyMarker(doc); busy {
		return true, "busy-marker/" + name, nil
	}
	if stop := d.locator.FindStop(doc); stop != nil && d.page.IsVisible(ctx, stop.XPath) {
		return true, "stop-visible", nil
	}
	if submit := d.locator.FindSubmit(doc, dom.SubmitOptions{IncludeDisabled: true}); submit != nil && submit.Disabled() {
		return true, "submit-disabled", nil
	}
	return false, "", nil
}

// WaitForIdle blocks until the interface reads idle twice in a row, the
// second reading taken after the settle delay, or until the idle timeout
// elapses. A single idle reading is not trusted: interfaces flicker through
// idle-looking states between a submission landing and the response starting.
func (d *Detector) WaitForIdle(ctx context.Context) error {
	timeout := d.cfg.IdleTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	interval := d.cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		busy, reason, err := d.IsBusy(waitCtx)
		switch {
		case err != nil:
			// A failed sample reads as still-busy; a dead page surfaces as
			// the timeout below rather than a spurious idle.
			d.log.Debug("busy check failed", zap.Error(err))
		case !busy:
			if err := sleepCtx(waitCtx, d.cfg.SettleDelay); err != nil {
				return d.deadlineError(ctx, waitCtx, timeout, start)
			}
			busyAgain, reasonAgain, errAgain := d.IsBusy(waitCtx)
			if errAgain == nil && !busyAgain {
				d.log.Debug("interface idle", zap.Duration("waited", time.Since(start)))
				return nil
			}
			d.log.Debug("idle reading did not settle", zap.String("reason", reasonAgain))
		default:
			d.log.Debug("interface busy", zap.String("reason", reason))
		}

		select {
		case <-waitCtx.Done():
			return d.deadlineError(ctx, waitCtx, timeout, start)
		case <-ticker.C:
		}
	}
}

// deadlineError discriminates the detector's own deadline from the caller
// cancelling, so ErrIdleTimeout always means the interface really stayed
// busy too long.
func (d *Detector) deadlineError(parent, waitCtx context.Context, timeout time.Duration, start time.Time) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("still busy after %v (deadline %v): %w",
			time.Since(start).Round(time.Millisecond), timeout, ErrIdleTimeout)
	}
	return waitCtx.Err()
}
