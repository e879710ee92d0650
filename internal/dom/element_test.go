// internal/dom/element_test.go
package dom

// These tests live inside the 'dom' package (not 'dom_test') to exercise the
// unexported classification helpers directly.

import (
	"strings"
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func mustNode(t *testing.T, fragment, xpath string) *html.Node {
	t.Helper()
	doc, err := htmlquery.Parse(strings.NewReader(fragment))
	require.NoError(t, err)
	n := htmlquery.FindOne(doc, xpath)
	require.NotNil(t, n, "fixture error: %s matched nothing in %s", xpath, fragment)
	return n
}

func TestEditableKind(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		xpath    string
		kind     Kind
		editable bool
	}{
		{"Input default type", `<input name="q">`, "//input", KindPlainInput, true},
		{"Input text", `<input type="text">`, "//input", KindPlainInput, true},
		{"Input search", `<input type="search">`, "//input", KindPlainInput, true},
		{"Input email", `<input type="email">`, "//input", KindPlainInput, true},
		{"Input checkbox", `<input type="checkbox">`, "//input", KindUnknown, false},
		{"Input submit", `<input type="submit">`, "//input", KindUnknown, false},
		{"Input readonly", `<input type="text" readonly>`, "//input", KindUnknown, false},
		{"Input disabled", `<input type="text" disabled>`, "//input", KindUnknown, false},
		{"Textarea", `<textarea></textarea>`, "//textarea", KindTextarea, true},
		{"Textarea readonly", `<textarea readonly></textarea>`, "//textarea", KindUnknown, false},
		{"ContentEditable true", `<div contenteditable="true"></div>`, "//div", KindRichEditor, true},
		{"ContentEditable empty", `<p contenteditable></p>`, "//p", KindRichEditor, true},
		{"ContentEditable false", `<div contenteditable="false"></div>`, "//div", KindUnknown, false},
		{"Plain div", `<div>text</div>`, "//div", KindUnknown, false},
		{"Button", `<button>Go</button>`, "//button", KindUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := editableKind(mustNode(t, tt.fragment, tt.xpath))
			assert.Equal(t, tt.editable, ok)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestIsActionable(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		xpath    string
		expected bool
	}{
		{"Button", `<button>Go</button>`, "//button", true},
		{"Input submit", `<input type="submit">`, "//input", true},
		{"Input button", `<input type="button">`, "//input", true},
		{"Input text", `<input type="text">`, "//input", false},
		{"Anchor with href", `<a href="/next">Next</a>`, "//a", true},
		{"Anchor without href", `<a name="top">Top</a>`, "//a", false},
		{"ARIA button", `<div role="button">Go</div>`, "//div", true},
		{"Plain div", `<div>Go</div>`, "//div", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isActionable(mustNode(t, tt.fragment, tt.xpath)))
		})
	}
}

func TestSnapshotHidden(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		xpath    string
		hidden   bool
	}{
		{"Visible", `<button>Go</button>`, "//button", false},
		{"Hidden attribute", `<button hidden>Go</button>`, "//button", true},
		{"Aria hidden", `<button aria-hidden="true">Go</button>`, "//button", true},
		{"Hidden input type", `<input type="hidden" name="csrf">`, "//input", true},
		{"Inline display none", `<button style="display: none">Go</button>`, "//button", true},
		{"Inline visibility hidden", `<button style="visibility: hidden">Go</button>`, "//button", true},
		{"Hidden ancestor", `<div style="display:none"><span><button>Go</button></span></div>`, "//button", true},
		{"Aria-hidden ancestor", `<div aria-hidden="true"><button>Go</button></div>`, "//button", true},
		{"Styled but visible ancestor", `<div style="display: flex"><button>Go</button></div>`, "//button", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.hidden, snapshotHidden(mustNode(t, tt.fragment, tt.xpath)))
		})
	}
}

func TestLooksLikeStop(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		expected bool
	}{
		{"Aria label", `<button aria-label="Stop generating">x</button>`, true},
		{"Title", `<button title="Cancel the request">x</button>`, true},
		{"Test id", `<button data-testid="composer-stop-button">x</button>`, true},
		{"Short text", `<button>Stop</button>`, true},
		{"Abort text", `<button>Abort</button>`, true},
		{"Send button", `<button aria-label="Send message">Send</button>`, false},
		// Long text is a message body, not a control label.
		{"Long text mentioning stop", `<button>Press here if you would like to stop the current generation</button>`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, looksLikeStop(mustNode(t, tt.fragment, "//button")))
		})
	}
}

func TestElementAccessors(t *testing.T) {
	n := mustNode(t, `<button data-testid="send-button" aria-disabled="true">Send</button>`, "//button")
	el := &Element{Node: n, Matcher: "send-testid", Kind: KindButton}

	assert.Equal(t, "button", el.Tag())
	assert.Equal(t, "send-button", el.Attr("data-testid"))
	assert.Equal(t, "", el.Attr("missing"))
	assert.True(t, el.Disabled())

	var nilEl *Element
	assert.Equal(t, "", nilEl.Tag())
	assert.Equal(t, "", nilEl.Attr("anything"))
	assert.False(t, nilEl.Disabled())
}

func TestTruncatedText(t *testing.T) {
	n := mustNode(t, `<p>  hello world  </p>`, "//p")
	assert.Equal(t, "hello world", truncatedText(n, 60))
	assert.Equal(t, "hello...", truncatedText(n, 5))
}
