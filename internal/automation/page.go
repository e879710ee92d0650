// internal/automation/page.go
// Package automation drives a prompt through the target web interface:
// resolving its controls from DOM snapshots, injecting text across the
// editable-field paradigms the interface is known to use, triggering
// submission, and detecting completion from observable UI state.
//
// The package never talks to a browser directly. Everything goes through the
// Page interface, implemented by internal/browser for a live chromedp session
// and by scripted fakes in tests.
package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"golang.org/x/net/html"

	"github.com/hexhaunt/promptq-cli/api/schemas"
	"github.com/hexhaunt/promptq-cli/internal/dom"
)

// Page is the minimal set of browser primitives the automation layer needs.
type Page interface {
	// CurrentURL reports the page's current location.
	CurrentURL(ctx context.Context) (string, error)

	// Snapshot returns the full-document outer HTML at this instant. The
	// returned reader is only valid until the next primitive call.
	Snapshot(ctx context.Context) (io.Reader, error)

	// Eval runs a JavaScript expression in the page and decodes its
	// return-by-value result into out when out is non-nil.
	Eval(ctx context.Context, expr string, out any) error

	// Focus gives input focus to the element addressed by xpath.
	Focus(ctx context.Context, xpath string) error

	// Click activates the element addressed by xpath.
	Click(ctx context.Context, xpath string) error

	// PressKey dispatches a full key chord (down, char, up) to the focused
	// element.
	PressKey(ctx context.Context, key schemas.KeyEventData) error

	// InsertText inserts text at the focused editable region the way an IME
	// or paste would, bypassing per-character key events.
	InsertText(ctx context.Context, text string) error

	// IsVisible reports whether the element addressed by xpath currently
	// renders with non-zero geometry and visible computed style. Unlike the
	// snapshot heuristics this sees the live cascade.
	IsVisible(ctx context.Context, xpath string) bool
}

// snapshotDoc captures and parses the current DOM in one step.
func snapshotDoc(ctx context.Context, page Page) (*html.Node, error) {
	r, err := page.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("capturing snapshot: %w", err)
	}
	doc, err := dom.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	return doc, nil
}

// jsonEncode is a helper to safely encode a value (especially strings) for JS
// injection. Arguments are always encoded, never concatenated, so prompt text
// cannot break out of a script.
func jsonEncode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}

// sleepCtx waits for d or the context, whichever ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
