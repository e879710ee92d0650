// internal/automation/inject_test.go
package automation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hexhaunt/promptq-cli/internal/dom"
)

const (
	textareaComposerHTML = `<html><body><form><textarea data-testid="prompt-textarea"></textarea></form></body></html>`
	richComposerHTML     = `<html><body><form><div role="textbox" contenteditable="true" class="ProseMirror"></div></form></body></html>`
)

func TestInjectorPlainField(t *testing.T) {
	t.Run("native setter accepted", func(t *testing.T) {
		page := newFakePage(textareaComposerHTML)
		inj := NewInjector(page, zap.NewNop())
		el := resolveComposer(t, textareaComposerHTML)

		require.NoError(t, inj.Inject(context.Background(), el, "draw a fox"))
		// One evaluated script does write, events, and verification.
		assert.Equal(t, []string{"eval:native"}, page.callLog())
	})

	t.Run("verification mismatch surfaces", func(t *testing.T) {
		page := newFakePage(textareaComposerHTML)
		page.evalResults["native"] = "mismatch"
		inj := NewInjector(page, zap.NewNop())

		err := inj.Inject(context.Background(), resolveComposer(t, textareaComposerHTML), "draw a fox")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInjectMismatch)
	})

	t.Run("element gone by injection time", func(t *testing.T) {
		page := newFakePage(textareaComposerHTML)
		page.evalResults["native"] = "notfound"
		inj := NewInjector(page, zap.NewNop())

		err := inj.Inject(context.Background(), resolveComposer(t, textareaComposerHTML), "draw a fox")
		assert.ErrorIs(t, err, ErrInjectFailed)
	})
}

func TestInjectorRichEditor(t *testing.T) {
	newRig := func(t *testing.T) (*fakePage, *Injector, *dom.Element) {
		t.Helper()
		page := newFakePage(richComposerHTML)
		return page, NewInjector(page, zap.NewNop()), resolveComposer(t, richComposerHTML)
	}

	t.Run("clipboard paste wins first", func(t *testing.T) {
		page, inj, el := newRig(t)
		page.evalQueues["readback"] = []string{"draw a fox"}

		require.NoError(t, inj.Inject(context.Background(), el, "draw a fox"))
		assert.Equal(t, []string{"focus", "eval:clear", "eval:paste", "eval:readback"}, page.callLog())
		assert.Empty(t, page.inserted)
	})

	t.Run("empty paste result falls through to insert-text", func(t *testing.T) {
		page, inj, el := newRig(t)
		page.evalQueues["readback"] = []string{"", "draw a fox"}

		require.NoError(t, inj.Inject(context.Background(), el, "draw a fox"))
		assert.Equal(t, []string{"draw a fox"}, page.inserted)
		assert.Equal(t, []string{
			"focus", "eval:clear",
			"eval:paste", "eval:readback",
			"focus", "insert", "eval:readback",
		}, page.callLog())
	})

	t.Run("insert failure falls through to direct replacement", func(t *testing.T) {
		page, inj, el := newRig(t)
		page.insertErr = errors.New("no focused editable element")
		// Readback normalizes whitespace, so the paragraph-per-line result
		// still verifies against the newline prompt.
		page.evalQueues["readback"] = []string{"", "multi line"}

		require.NoError(t, inj.Inject(context.Background(), el, "multi\nline"))
		assert.Contains(t, page.callLog(), "eval:replace")
		assert.Empty(t, page.inserted)
	})

	t.Run("no strategy produces text", func(t *testing.T) {
		page, inj, el := newRig(t)
		page.evalResults["readback"] = ""

		err := inj.Inject(context.Background(), el, "draw a fox")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInjectFailed)
	})

	t.Run("accepted strategy carrying wrong text", func(t *testing.T) {
		page, inj, el := newRig(t)
		page.evalQueues["readback"] = []string{"stale partial content"}

		err := inj.Inject(context.Background(), el, "draw a fox")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInjectMismatch)
	})
}

func TestInjectorRejectsUnusableElements(t *testing.T) {
	inj := NewInjector(newFakePage(""), zap.NewNop())

	assert.ErrorIs(t, inj.Inject(context.Background(), nil, "x"), ErrInjectFailed)
	assert.ErrorIs(t, inj.Inject(context.Background(), &dom.Element{Kind: dom.KindButton}, "x"), ErrInjectFailed)
}

func TestTextMatches(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		want     string
		expected bool
	}{
		{"exact", "hello", "hello", true},
		{"trailing editor newline", "hello\n", "hello", true},
		{"paragraph line breaks", "line one\n\nline two", "line one\nline two", true},
		{"different text", "something else", "hello", false},
		{"partial", "hel", "hello", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, textMatches(tt.got, tt.want))
		})
	}
}
