// internal/dom/matcher.go
package dom

// Matcher is one entry of a ranked, declarative element query table. Name is
// a stable identifier used in logs; XPath is the structural pattern.
type Matcher struct {
	Name  string
	XPath string
}

// MatcherList is an ordered matcher table. Rank is positional: the most
// semantically specific patterns come first, the most generic last. The first
// matcher that yields a usable element wins.
type MatcherList []Matcher

// Names returns the table's matcher names in rank order.
func (ml MatcherList) Names() []string {
	names := make([]string, 0, len(ml))
	for _, m := range ml {
		names = append(names, m.Name)
	}
	return names
}

// The built-in tables target the composer-style layouts the tool is pointed
// at in practice. They end in maximally generic fallbacks so a redesigned
// page still resolves something usable. Order is a contract; tests pin it.

// DefaultComposerMatchers resolves the text-entry region.
func DefaultComposerMatchers() MatcherList {
	return MatcherList{
		{Name: "prompt-textarea", XPath: `//textarea[@data-testid='prompt-textarea' or @id='prompt-textarea']`},
		{Name: "composer-textbox", XPath: `//form//*[@role='textbox' and (@contenteditable='true' or @contenteditable='')]`},
		{Name: "prosemirror", XPath: `//div[contains(concat(' ', normalize-space(@class), ' '), ' ProseMirror ') and (@contenteditable='true' or @contenteditable='')]`},
		{Name: "composer-form", XPath: `//form[.//textarea or .//*[@contenteditable='true' or @contenteditable='']]`},
		{Name: "placeholder-textarea", XPath: `//textarea[@placeholder]`},
		{Name: "any-textbox", XPath: `//*[@role='textbox']`},
		{Name: "any-editable", XPath: `//textarea | //*[@contenteditable='true' or @contenteditable=''] | //input[@type='text' or @type='search' or not(@type)]`},
	}
}

// DefaultSubmitMatchers resolves the submission control.
func DefaultSubmitMatchers() MatcherList {
	return MatcherList{
		{Name: "send-testid", XPath: `//button[@data-testid='send-button' or @data-testid='composer-send-button']`},
		{Name: "send-aria", XPath: `//button[contains(@aria-label,'Send') or contains(@aria-label,'send')]`},
		{Name: "composer-form-button", XPath: `//form[.//textarea or .//*[@contenteditable='true' or @contenteditable='']]//button`},
		{Name: "form-submit", XPath: `//form//button[@type='submit' or not(@type)] | //form//input[@type='submit']`},
		{Name: "any-button", XPath: `//button | //*[@role='button'] | //input[@type='submit']`},
	}
}

// DefaultStopMatchers recognizes stop/cancel affordances. A visible stop
// control implies an active generation, and must never be clicked as a
// submit control.
func DefaultStopMatchers() MatcherList {
	return MatcherList{
		{Name: "stop-testid", XPath: `//button[@data-testid='stop-button' or @data-testid='composer-stop-button']`},
		{Name: "stop-aria", XPath: `//button[contains(@aria-label,'Stop') or contains(@aria-label,'stop') or contains(@aria-label,'Cancel')]`},
		{Name: "stop-text", XPath: `//button[contains(normalize-space(.),'Stop') or contains(normalize-space(.),'Cancel')]`},
	}
}

// DefaultBusyMatchers recognizes in-progress response regions and loading
// indicators.
func DefaultBusyMatchers() MatcherList {
	return MatcherList{
		{Name: "aria-busy", XPath: `//*[@aria-busy='true']`},
		{Name: "streaming-result", XPath: `//*[contains(concat(' ', normalize-space(@class), ' '), ' result-streaming ') or @data-message-streaming='true']`},
		{Name: "progressbar", XPath: `//*[@role='progressbar']`},
		{Name: "spinner-class", XPath: `//*[contains(@class,'spinner') or contains(@class,'animate-spin')]`},
	}
}
