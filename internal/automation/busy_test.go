// internal/automation/busy_test.go
package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	idlePageHTML = `<html><body><form>
		<textarea data-testid="prompt-textarea"></textarea>
		<button data-testid="send-button">Send</button>
	</form></body></html>`

	busyMarkerHTML = `<html><body>
		<div class="markdown result-streaming">partial response</div>
		<form>
			<textarea data-testid="prompt-textarea"></textarea>
			<button data-testid="send-button">Send</button>
		</form>
	</body></html>`

	ariaBusyHTML = `<html><body>
		<div aria-busy="true">thinking</div>
		<form><textarea data-testid="prompt-textarea"></textarea></form>
	</body></html>`

	stopControlHTML = `<html><body><form>
		<textarea data-testid="prompt-textarea"></textarea>
		<button data-testid="stop-button" aria-label="Stop generating">Stop</button>
	</form></body></html>`

	disabledSubmitHTML = `<html><body><form>
		<textarea data-testid="prompt-textarea"></textarea>
		<button data-testid="send-button" disabled>Send</button>
	</form></body></html>`

	stopAndDisabledHTML = `<html><body><form>
		<textarea data-testid="prompt-textarea"></textarea>
		<button data-testid="stop-button" aria-label="Stop generating">Stop</button>
		<button data-testid="send-button" disabled>Send</button>
	</form></body></html>`
)

func TestDetectorIsBusy(t *testing.T) {
	tests := []struct {
		name         string
		src          string
		allInvisible bool
		busy         bool
		reason       string
	}{
		{"idle page", idlePageHTML, false, false, ""},
		{"streaming response region", busyMarkerHTML, false, true, "busy-marker/streaming-result"},
		{"aria-busy region", ariaBusyHTML, false, true, "busy-marker/aria-busy"},
		{"visible stop control", stopControlHTML, false, true, "stop-visible"},
		// The snapshot carries the stop button but the live page does not
		// render it; the live check vetoes the snapshot.
		{"stop control not rendered", stopControlHTML, true, false, ""},
		{"disabled submit control", disabledSubmitHTML, false, true, "submit-disabled"},
		{"stop outranks disabled submit", stopAndDisabledHTML, false, true, "stop-visible"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := newFakePage(tt.src)
			page.visibleDefault = !tt.allInvisible
			d := NewDetector(page, nil, fastQueueConfig(), zap.NewNop())

			busy, reason, err := d.IsBusy(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.busy, busy)
			assert.Equal(t, tt.reason, reason)
		})
	}

	t.Run("snapshot failure propagates", func(t *testing.T) {
		page := newFakePage(idlePageHTML)
		page.snapshotErr = errors.New("target closed")
		d := NewDetector(page, nil, fastQueueConfig(), zap.NewNop())

		_, _, err := d.IsBusy(context.Background())
		require.Error(t, err)
	})
}

func TestDetectorWaitForIdle(t *testing.T) {
	t.Run("busy then idle with settle agreement", func(t *testing.T) {
		page := newFakePage(busyMarkerHTML, busyMarkerHTML, idlePageHTML)
		d := NewDetector(page, nil, fastQueueConfig(), zap.NewNop())

		require.NoError(t, d.WaitForIdle(context.Background()))
		// Two busy samples, the idle sample, and the settle re-check.
		assert.GreaterOrEqual(t, page.snapshotCount(), 4)
	})

	t.Run("flicker does not count as idle", func(t *testing.T) {
		// Idle for one sample, busy again on the settle re-check, then
		// durably idle. A single idle reading must never end the wait.
		page := newFakePage(busyMarkerHTML, idlePageHTML, busyMarkerHTML, idlePageHTML, idlePageHTML)
		d := NewDetector(page, nil, fastQueueConfig(), zap.NewNop())

		require.NoError(t, d.WaitForIdle(context.Background()))
		assert.GreaterOrEqual(t, page.snapshotCount(), 5)
	})

	t.Run("deadline yields ErrIdleTimeout", func(t *testing.T) {
		page := newFakePage(busyMarkerHTML)
		cfg := fastQueueConfig()
		cfg.IdleTimeout = 30 * time.Millisecond
		d := NewDetector(page, nil, cfg, zap.NewNop())

		err := d.WaitForIdle(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrIdleTimeout)
	})

	t.Run("caller cancellation is not a timeout", func(t *testing.T) {
		page := newFakePage(busyMarkerHTML)
		d := NewDetector(page, nil, fastQueueConfig(), zap.NewNop())

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()

		err := d.WaitForIdle(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrIdleTimeout)
	})

	t.Run("persistent snapshot failure reads as busy until deadline", func(t *testing.T) {
		page := newFakePage(idlePageHTML)
		page.snapshotErr = errors.New("target crashed")
		cfg := fastQueueConfig()
		cfg.IdleTimeout = 30 * time.Millisecond
		d := NewDetector(page, nil, cfg, zap.NewNop())

		err := d.WaitForIdle(context.Background())
		assert.ErrorIs(t, err, ErrIdleTimeout)
	})
}
