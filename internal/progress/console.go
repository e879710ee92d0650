package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hexhaunt/promptq-cli/api/schemas"
)

// ConsoleSink renders each event as a single human-readable line, for the
// interactive CLI path.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSink writes rendered events to w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

// Post implements Sink.
func (s *ConsoleSink) Post(ev schemas.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, renderEvent(ev))
}

func renderEvent(ev schemas.ProgressEvent) string {
	switch ev.Phase {
	case schemas.PhaseRunStarted:
		return fmt.Sprintf("queue started: %d prompt(s)", ev.Total)
	case schemas.PhaseRunFinished:
		if ev.Error != "" {
			return fmt.Sprintf("queue failed at %d/%d: %s", ev.Index, ev.Total, ev.Error)
		}
		return fmt.Sprintf("queue finished: %d prompt(s)", ev.Total)
	}

	prefix := fmt.Sprintf("[%d/%d]", ev.Index, ev.Total)
	switch {
	case ev.WaitMs > 0:
		wait := (time.Duration(ev.WaitMs) * time.Millisecond).Round(time.Second)
		return fmt.Sprintf("%s rate limited, retrying in %s (attempt %d)", prefix, wait, ev.Attempt)
	case ev.Phase == schemas.PhaseSending:
		return fmt.Sprintf("%s sending: %s", prefix, ev.Text)
	case ev.Phase == schemas.PhaseWaiting:
		return prefix + " waiting for the interface to go idle"
	case ev.Phase == schemas.PhaseDone:
		return prefix + " done"
	default:
		return fmt.Sprintf("%s %s", prefix, ev.Phase)
	}
}
