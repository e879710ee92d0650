// internal/dom/element.go
package dom

import (
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Kind classifies a resolved element by its editing or activation paradigm.
type Kind int

const (
	KindUnknown Kind = iota
	// KindPlainInput is a single-line form field (<input type=text> and kin).
	KindPlainInput
	// KindTextarea is a multi-line plain form field.
	KindTextarea
	// KindRichEditor is a contenteditable region managed by an editor framework.
	KindRichEditor
	// KindButton is an activatable control.
	KindButton
)

func (k Kind) String() string {
	switch k {
	case KindPlainInput:
		return "input"
	case KindTextarea:
		return "textarea"
	case KindRichEditor:
		return "rich-editor"
	case KindButton:
		return "button"
	default:
		return "unknown"
	}
}

// Element is a usable node resolved from a snapshot: the node itself, the
// matcher that produced it, its paradigm, and a unique XPath for addressing
// the same element on the live page.
type Element struct {
	Node    *html.Node
	Matcher string
	Kind    Kind
	XPath   string
}

// Attr returns the value of the named attribute, or "".
func (e *Element) Attr(name string) string {
	if e == nil || e.Node == nil {
		return ""
	}
	return htmlquery.SelectAttr(e.Node, name)
}

// Tag returns the element's lowercase tag name.
func (e *Element) Tag() string {
	if e == nil || e.Node == nil {
		return ""
	}
	return strings.ToLower(e.Node.Data)
}

// Disabled reports whether the element is disabled natively or via ARIA.
func (e *Element) Disabled() bool {
	if e == nil || e.Node == nil {
		return false
	}
	return isDisabled(e.Node)
}

// -- Node classification helpers --

// textualInputTypes are the <input> types treated as composer candidates.
var textualInputTypes = map[string]bool{
	"":       true,
	"text":   true,
	"search": true,
	"email":  true,
	"url":    true,
}

// editableKind reports whether a node is directly editable and, if so, which
// paradigm it uses.
func editableKind(n *html.Node) (Kind, bool) {
	if n == nil || n.Type != html.ElementNode {
		return KindUnknown, false
	}
	if isDisabled(n) {
		return KindUnknown, false
	}

	switch strings.ToLower(n.Data) {
	case "input":
		if hasAttr(n, "readonly") {
			return KindUnknown, false
		}
		if textualInputTypes[strings.ToLower(htmlquery.SelectAttr(n, "type"))] {
			return KindPlainInput, true
		}
		return KindUnknown, false
	case "textarea":
		if hasAttr(n, "readonly") {
			return KindUnknown, false
		}
		return KindTextarea, true
	}

	// contenteditable can be "true", "false", or "" (empty implies true).
	if val, ok := attrValue(n, "contenteditable"); ok {
		val = strings.TrimSpace(strings.ToLower(val))
		if val == "true" || val == "" {
			return KindRichEditor, true
		}
	}
	return KindUnknown, false
}

// isActionable reports whether a node is an activatable control.
func isActionable(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	switch strings.ToLower(n.Data) {
	case "button":
		return true
	case "input":
		t := strings.ToLower(htmlquery.SelectAttr(n, "type"))
		return t == "submit" || t == "button" || t == "image"
	case "a":
		return hasAttr(n, "href")
	}
	return htmlquery.SelectAttr(n, "role") == "button"
}

// isDisabled covers the native attribute and aria-disabled.
func isDisabled(n *html.Node) bool {
	if hasAttr(n, "disabled") {
		return true
	}
	return htmlquery.SelectAttr(n, "aria-disabled") == "true"
}

// snapshotHidden applies the hiding heuristics observable in a static
// snapshot: the hidden attribute, aria-hidden, hidden input types, and inline
// display/visibility styles, on the node or any ancestor. CSS-computed
// visibility needs the live page and is checked separately.
func snapshotHidden(n *html.Node) bool {
	for cur := n; cur != nil && cur.Type != html.DocumentNode; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if hasAttr(cur, "hidden") {
			return true
		}
		if htmlquery.SelectAttr(cur, "aria-hidden") == "true" {
			return true
		}
		if strings.ToLower(cur.Data) == "input" &&
			strings.ToLower(htmlquery.SelectAttr(cur, "type")) == "hidden" {
			return true
		}
		style := strings.ReplaceAll(strings.ToLower(htmlquery.SelectAttr(cur, "style")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return true
		}
	}
	return false
}

// looksLikeStop applies the stop/cancel affordance heuristics to a single
// node: identifying attributes or visible text naming an abort action.
func looksLikeStop(n *html.Node) bool {
	if n == nil {
		return false
	}
	probe := strings.ToLower(strings.Join([]string{
		htmlquery.SelectAttr(n, "aria-label"),
		htmlquery.SelectAttr(n, "title"),
		htmlquery.SelectAttr(n, "data-testid"),
	}, " "))
	text := strings.ToLower(strings.TrimSpace(htmlquery.InnerText(n)))
	if len(text) > 32 {
		// A long text node is a message, not a control label.
		text = ""
	}

	for _, marker := range []string{"stop", "cancel", "abort", "halt"} {
		if strings.Contains(probe, marker) || strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// hasAttr reports attribute presence regardless of value.
func hasAttr(n *html.Node, name string) bool {
	_, ok := attrValue(n, name)
	return ok
}

// attrValue distinguishes a present-but-empty attribute from an absent one,
// which SelectAttr cannot.
func attrValue(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// truncatedText returns the node's trimmed inner text capped for logging.
func truncatedText(n *html.Node, max int) string {
	text := strings.TrimSpace(htmlquery.InnerText(n))
	if len(text) > max {
		return text[:max] + "..."
	}
	return text
}
