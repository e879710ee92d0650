// internal/automation/helpers_test.go
package automation

// Shared test doubles. Tests live inside the package to reach the strategy
// internals the fake page keys on.

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hexhaunt/promptq-cli/api/schemas"
	"github.com/hexhaunt/promptq-cli/internal/config"
	"github.com/hexhaunt/promptq-cli/internal/dom"
)

// fakePage is a scripted Page implementation. Snapshot serves queued HTML
// documents (the last one sticks); Eval recognizes which injected script is
// running by markers unique to each template and answers from per-script
// results.
type fakePage struct {
	mu sync.Mutex

	snapshots   []string
	snapshotErr error
	snapshotN   int

	evalResults map[string]string   // script kind -> sticky result
	evalQueues  map[string][]string // script kind -> consumed-first results
	evalErrs    map[string]error

	url string

	visibleDefault bool
	visible        map[string]bool

	focusErr  error
	clickErr  error
	keyErr    error
	insertErr error

	focused  []string
	clicks   []string
	keys     []schemas.KeyEventData
	inserted []string
	calls    []string
}

func newFakePage(htmlDocs ...string) *fakePage {
	return &fakePage{
		snapshots: htmlDocs,
		evalResults: map[string]string{
			"native":   "ok",
			"clear":    "ok",
			"paste":    "ok",
			"replace":  "ok",
			"readback": "",
		},
		evalQueues:     map[string][]string{},
		evalErrs:       map[string]error{},
		visibleDefault: true,
		visible:        map[string]bool{},
	}
}

// scriptKind classifies an evaluated script by markers unique to each
// template in inject.go. Check order matters: the clear script also touches
// innerText.
func scriptKind(expr string) string {
	switch {
	case strings.Contains(expr, "getOwnPropertyDescriptor"):
		return "native"
	case strings.Contains(expr, "ClipboardEvent"):
		return "paste"
	case strings.Contains(expr, "execCommand"):
		return "clear"
	case strings.Contains(expr, "createElement"):
		return "replace"
	case strings.Contains(expr, "innerText"):
		return "readback"
	default:
		return "other"
	}
}

func (p *fakePage) CurrentURL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) Snapshot(context.Context) (io.Reader, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshotN++
	p.calls = append(p.calls, "snapshot")
	if p.snapshotErr != nil {
		return nil, p.snapshotErr
	}
	doc := ""
	if len(p.snapshots) > 0 {
		doc = p.snapshots[0]
		if len(p.snapshots) > 1 {
			p.snapshots = p.snapshots[1:]
		}
	}
	return strings.NewReader(doc), nil
}

func (p *fakePage) Eval(_ context.Context, expr string, out any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	kind := scriptKind(expr)
	p.calls = append(p.calls, "eval:"+kind)
	if err := p.evalErrs[kind]; err != nil {
		return err
	}
	res := p.evalResults[kind]
	if queue := p.evalQueues[kind]; len(queue) > 0 {
		res = queue[0]
		p.evalQueues[kind] = queue[1:]
	}
	if s, ok := out.(*string); ok && s != nil {
		*s = res
	}
	return nil
}

func (p *fakePage) Focus(_ context.Context, xpath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "focus")
	if p.focusErr != nil {
		return p.focusErr
	}
	p.focused = append(p.focused, xpath)
	return nil
}

func (p *fakePage) Click(_ context.Context, xpath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "click")
	if p.clickErr != nil {
		return p.clickErr
	}
	p.clicks = append(p.clicks, xpath)
	return nil
}

func (p *fakePage) PressKey(_ context.Context, key schemas.KeyEventData) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "key:"+key.Key)
	if p.keyErr != nil {
		return p.keyErr
	}
	p.keys = append(p.keys, key)
	return nil
}

func (p *fakePage) InsertText(_ context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "insert")
	if p.insertErr != nil {
		return p.insertErr
	}
	p.inserted = append(p.inserted, text)
	return nil
}

func (p *fakePage) IsVisible(_ context.Context, xpath string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "visible")
	if v, ok := p.visible[xpath]; ok {
		return v
	}
	return p.visibleDefault
}

func (p *fakePage) callLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePage) snapshotCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotN
}

// fastQueueConfig keeps the polling loops fast enough for tests.
func fastQueueConfig() config.QueueConfig {
	return config.QueueConfig{
		IdleTimeout:           250 * time.Millisecond,
		PollInterval:          2 * time.Millisecond,
		SettleDelay:           2 * time.Millisecond,
		ItemDelay:             time.Millisecond,
		ComposerAttempts:      3,
		ComposerRetryInterval: 2 * time.Millisecond,
		AcceptWindow:          100 * time.Millisecond,
	}
}

// resolveComposer runs the real locator over src so injector tests work with
// genuine Element values.
func resolveComposer(t *testing.T, src string) *dom.Element {
	t.Helper()
	doc, err := dom.Parse(strings.NewReader(src))
	require.NoError(t, err)
	el := dom.NewLocator(dom.Tables{}, nil).FindComposer(doc)
	require.NotNil(t, el, "fixture error: no composer in %s", src)
	return el
}
