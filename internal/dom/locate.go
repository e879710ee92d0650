// internal/dom/locate.go
package dom

import (
	"io"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Tables bundles the four matcher tables the locator works from. Empty
// tables fall back to the built-in defaults.
type Tables struct {
	Composer MatcherList
	Submit   MatcherList
	Stop     MatcherList
	Busy     MatcherList
}

// SubmitOptions tunes actionable-control resolution.
type SubmitOptions struct {
	// IncludeDisabled keeps disabled controls in the candidate set. The
	// completion detector wants them (a disabled send control signals an
	// active generation); the send orchestrator does not.
	IncludeDisabled bool
}

// Locator resolves composer, submit, and stop controls from a parsed DOM
// snapshot by walking ranked matcher tables. Lookups never panic and never
// return an error: an unresolvable control is a nil result.
type Locator struct {
	tables Tables
	log    *zap.Logger
}

// NewLocator builds a locator over the given tables, substituting built-in
// defaults for any empty table.
func NewLocator(tables Tables, logger *zap.Logger) *Locator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(tables.Composer) == 0 {
		tables.Composer = DefaultComposerMatchers()
	}
	if len(tables.Submit) == 0 {
		tables.Submit = DefaultSubmitMatchers()
	}
	if len(tables.Stop) == 0 {
		tables.Stop = DefaultStopMatchers()
	}
	if len(tables.Busy) == 0 {
		tables.Busy = DefaultBusyMatchers()
	}
	return &Locator{tables: tables, log: logger.Named("locator")}
}

// Tables exposes the resolved matcher tables, defaults included.
func (l *Locator) Tables() Tables { return l.tables }

// Parse reads an HTML snapshot into a queryable document.
func Parse(r io.Reader) (*html.Node, error) {
	return htmlquery.Parse(r)
}

// FindComposer returns the first usable text-entry element, by matcher rank
// then document order, or nil when nothing resolves.
func (l *Locator) FindComposer(doc *html.Node) *Element {
	if doc == nil {
		return nil
	}
	for _, m := range l.tables.Composer {
		for _, n := range l.query(doc, m) {
			if el := l.resolveEditable(n, m.Name); el != nil {
				l.log.Debug("composer resolved",
					zap.String("matcher", el.Matcher),
					zap.String("kind", el.Kind.String()))
				return el
			}
		}
	}
	return nil
}

// FindSubmit returns the first usable submission control, or nil. Candidates
// that are hidden in the snapshot, recognizable as stop/cancel affordances,
// or (unless opted in) disabled are rejected.
func (l *Locator) FindSubmit(doc *html.Node, opts SubmitOptions) *Element {
	if doc == nil {
		return nil
	}
	for _, m := range l.tables.Submit {
		for _, n := range l.query(doc, m) {
			if el := l.resolveActionable(n, m.Name, opts); el != nil {
				l.log.Debug("submit control resolved",
					zap.String("matcher", el.Matcher),
					zap.Bool("disabled", el.Disabled()))
				return el
			}
		}
	}
	return nil
}

// FindStop returns the first stop/cancel control present in the snapshot,
// or nil. Disabled stop controls still count: the affordance existing at all
// is the signal.
func (l *Locator) FindStop(doc *html.Node) *Element {
	if doc == nil {
		return nil
	}
	for _, m := range l.tables.Stop {
		for _, n := range l.query(doc, m) {
			if snapshotHidden(n) {
				continue
			}
			return &Element{
				Node:    n,
				Matcher: m.Name,
				Kind:    KindButton,
				XPath:   GenerateUniqueXPath(n),
			}
		}
	}
	return nil
}

// BusyMarker reports the first in-progress indicator found in the snapshot
// and the name of the matcher that recognized it.
func (l *Locator) BusyMarker(doc *html.Node) (string, bool) {
	if doc == nil {
		return "", false
	}
	for _, m := range l.tables.Busy {
		for _, n := range l.query(doc, m) {
			if snapshotHidden(n) {
				continue
			}
			return m.Name, true
		}
	}
	return "", false
}

// query runs one matcher, treating a malformed expression as a non-match.
// Configured tables are user input; they must not be able to panic a run.
func (l *Locator) query(doc *html.Node, m Matcher) []*html.Node {
	nodes, err := htmlquery.QueryAll(doc, m.XPath)
	if err != nil {
		l.log.Warn("matcher expression rejected",
			zap.String("matcher", m.Name),
			zap.Error(err))
		return nil
	}
	return nodes
}

// resolveEditable applies two-stage resolution: the matched node itself when
// directly editable, otherwise its first editable descendant in document
// order.
func (l *Locator) resolveEditable(n *html.Node, matcher string) *Element {
	if n == nil || snapshotHidden(n) {
		return nil
	}
	if kind, ok := editableKind(n); ok {
		return &Element{Node: n, Matcher: matcher, Kind: kind, XPath: GenerateUniqueXPath(n)}
	}
	if found, kind := firstEditableDescendant(n); found != nil {
		return &Element{Node: found, Matcher: matcher, Kind: kind, XPath: GenerateUniqueXPath(found)}
	}
	return nil
}

// resolveActionable mirrors resolveEditable for activatable controls,
// applying the hidden/stop/disabled rejection rules at each stage.
func (l *Locator) resolveActionable(n *html.Node, matcher string, opts SubmitOptions) *Element {
	if n == nil || snapshotHidden(n) {
		return nil
	}
	usable := func(c *html.Node) bool {
		if !isActionable(c) || snapshotHidden(c) || looksLikeStop(c) {
			return false
		}
		return opts.IncludeDisabled || !isDisabled(c)
	}

	if usable(n) {
		return &Element{Node: n, Matcher: matcher, Kind: KindButton, XPath: GenerateUniqueXPath(n)}
	}
	for c := firstElement(n.FirstChild); c != nil; c = nextElementDFS(c, n) {
		if usable(c) {
			return &Element{Node: c, Matcher: matcher, Kind: KindButton, XPath: GenerateUniqueXPath(c)}
		}
	}
	return nil
}

// firstEditableDescendant walks the subtree in document order for the first
// node with an editable paradigm. Nodes inside hidden subtrees fail the
// ancestor check and fall through.
func firstEditableDescendant(root *html.Node) (*html.Node, Kind) {
	for c := firstElement(root.FirstChild); c != nil; c = nextElementDFS(c, root) {
		if snapshotHidden(c) {
			continue
		}
		if kind, ok := editableKind(c); ok {
			return c, kind
		}
	}
	return nil, KindUnknown
}

// firstElement skips non-element siblings starting at n.
func firstElement(n *html.Node) *html.Node {
	for ; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode {
			return n
		}
	}
	return nil
}

// nextElementDFS advances a depth-first walk constrained to root's subtree.
func nextElementDFS(n, root *html.Node) *html.Node {
	if child := firstElement(n.FirstChild); child != nil {
		return child
	}
	for cur := n; cur != nil && cur != root; cur = cur.Parent {
		if sib := firstElement(cur.NextSibling); sib != nil {
			return sib
		}
	}
	return nil
}
