// internal/automation/inject.go
package automation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hexhaunt/promptq-cli/internal/dom"
)

// nativeSetterJS writes a plain form field through the base prototype setter.
// Frameworks commonly intercept the value property on the instance; writing
// through the prototype descriptor and then dispatching input/change is the
// only path many of them accept as a real edit.
const nativeSetterJS = `
	(function(xpath, text) {
		const el = document.evaluate(xpath, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
		if (!el) { return "notfound"; }
		el.focus();
		const proto = el instanceof HTMLTextAreaElement
			? window.HTMLTextAreaElement.prototype
			: window.HTMLInputElement.prototype;
		const desc = Object.getOwnPropertyDescriptor(proto, "value");
		if (desc && desc.set) {
			desc.set.call(el, text);
		} else {
			el.value = text;
		}
		el.dispatchEvent(new Event("input", { bubbles: true }));
		el.dispatchEvent(new Event("change", { bubbles: true }));
		return el.value === text ? "ok" : "mismatch";
	})(%s, %s)`

// clearEditableJS empties a rich editable region: structured select-all +
// delete first, manual child removal as the fallback, verified empty.
const clearEditableJS = `
	(function(xpath) {
		const el = document.evaluate(xpath, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
		if (!el) { return "notfound"; }
		el.focus();
		try {
			const sel = window.getSelection();
			const range = document.createRange();
			range.selectNodeContents(el);
			sel.removeAllRanges();
			sel.addRange(range);
			if (document.execCommand && document.execCommand("delete", false, null)) {
				if ((el.innerText || "").trim() === "") { return "ok"; }
			}
		} catch (e) {}
		while (el.firstChild) { el.removeChild(el.firstChild); }
		return (el.innerText || "").trim() === "" ? "ok" : "dirty";
	})(%s)`

// pasteTextJS synthesizes a clipboard paste with a plain-text payload. Editor
// frameworks that own their document model handle this with full fidelity.
const pasteTextJS = `
	(function(xpath, text) {
		const el = document.evaluate(xpath, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
		if (!el) { return "notfound"; }
		el.focus();
		try {
			const dt = new DataTransfer();
			dt.setData("text/plain", text);
			const ev = new ClipboardEvent("paste", { clipboardData: dt, bubbles: true, cancelable: true });
			el.dispatchEvent(ev);
			return "ok";
		} catch (e) {
			return "error: " + String(e);
		}
	})(%s, %s)`

// replaceContentJS is the lowest-fidelity fallback: rebuild the region's
// children directly, one paragraph per line, then notify with an
// insertion-typed input event (raw input event when InputEvent is missing).
const replaceContentJS = `
	(function(xpath, text) {
		const el = document.evaluate(xpath, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
		if (!el) { return "notfound"; }
		while (el.firstChild) { el.removeChild(el.firstChild); }
		const lines = text.split("\n");
		for (let i = 0; i < lines.length; i++) {
			const p = document.createElement("p");
			if (lines[i] === "") {
				p.appendChild(document.createElement("br"));
			} else {
				p.appendChild(document.createTextNode(lines[i]));
			}
			el.appendChild(p);
		}
		try {
			el.dispatchEvent(new InputEvent("input", { inputType: "insertText", data: text, bubbles: true }));
		} catch (e) {
			el.dispatchEvent(new Event("input", { bubbles: true }));
		}
		return "ok";
	})(%s, %s)`

// readBackJS reports the element's effective text content for verification.
const readBackJS = `
	(function(xpath) {
		const el = document.evaluate(xpath, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
		if (!el) { return ""; }
		if (el instanceof HTMLInputElement || el instanceof HTMLTextAreaElement) { return el.value; }
		return el.innerText || el.textContent || "";
	})(%s)`

// Injector writes prompt text into a resolved composer element, picking the
// strategy by the element's editing paradigm. Plain fields take a single
// native-setter write; rich editable regions walk a fidelity-ordered chain of
// insertion strategies, accepting the first that leaves visible text. The
// accepted result is read back and compared to the prompt; a mismatch is an
// error, not silent degradation.
//
// Injection steals input focus as a side effect.
type Injector struct {
	page Page
	log  *zap.Logger
}

// NewInjector builds an injector over the given page primitives.
func NewInjector(page Page, logger *zap.Logger) *Injector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Injector{page: page, log: logger.Named("injector")}
}

// Inject makes the composer's effective content equal to text.
func (inj *Injector) Inject(ctx context.Context, el *dom.Element, text string) error {
	if el == nil {
		return fmt.Errorf("no composer element: %w", ErrInjectFailed)
	}
	switch el.Kind {
	case dom.KindPlainInput, dom.KindTextarea:
		return inj.injectNative(ctx, el, text)
	case dom.KindRichEditor:
		return inj.injectRich(ctx, el, text)
	default:
		return fmt.Errorf("cannot inject into %s element: %w", el.Kind, ErrInjectFailed)
	}
}

// injectNative handles input and textarea fields in one evaluated script:
// prototype-setter write, framework events, in-page verification.
func (inj *Injector) injectNative(ctx context.Context, el *dom.Element, text string) error {
	script := fmt.Sprintf(nativeSetterJS, jsonEncode(el.XPath), jsonEncode(text))
	var result string
	if err := inj.page.Eval(ctx, script, &result); err != nil {
		return fmt.Errorf("native value injection: %w", err)
	}
	switch result {
	case "ok":
		return nil
	case "notfound":
		return fmt.Errorf("composer vanished between snapshot and injection: %w", ErrInjectFailed)
	case "mismatch":
		return fmt.Errorf("native setter verification: %w", ErrInjectMismatch)
	default:
		return fmt.Errorf("native setter returned %q: %w", result, ErrInjectFailed)
	}
}

// injectRich clears the region, then tries insertion strategies in order of
// decreasing fidelity: synthesized clipboard paste, structured insert-text,
// direct content replacement. The first strategy whose readback is non-empty
// is accepted and verified against the prompt.
func (inj *Injector) injectRich(ctx context.Context, el *dom.Element, text string) error {
	log := inj.log.With(zap.String("matcher", el.Matcher))

	if err := inj.page.Focus(ctx, el.XPath); err != nil {
		return fmt.Errorf("focusing rich editor: %w", err)
	}
	if err := inj.clear(ctx, el); err != nil {
		// Residual content usually gets replaced by the insertion anyway;
		// the verification step catches the cases where it does not.
		log.Debug("editor clear incomplete", zap.Error(err))
	}

	strategies := []struct {
		name string
		run  func() error
	}{
		{"clipboard-paste", func() error { return inj.pasteText(ctx, el, text) }},
		{"insert-text", func() error { return inj.insertText(ctx, el, text) }},
		{"direct-replacement", func() error { return inj.replaceContent(ctx, el, text) }},
	}

	for _, strategy := range strategies {
		if err := strategy.run(); err != nil {
			log.Debug("injection strategy failed",
				zap.String("strategy", strategy.name), zap.Error(err))
			continue
		}
		got, err := inj.ReadBack(ctx, el)
		if err != nil {
			log.Debug("readback failed",
				zap.String("strategy", strategy.name), zap.Error(err))
			continue
		}
		if strings.TrimSpace(got) == "" {
			log.Debug("injection strategy produced no text",
				zap.String("strategy", strategy.name))
			continue
		}
		if !textMatches(got, text) {
			return fmt.Errorf("strategy %s left %d chars of other text: %w",
				strategy.name, len(got), ErrInjectMismatch)
		}
		log.Debug("prompt injected", zap.String("strategy", strategy.name))
		return nil
	}
	return fmt.Errorf("all injection strategies exhausted: %w", ErrInjectFailed)
}

// ReadBack reports the composer's current effective text.
func (inj *Injector) ReadBack(ctx context.Context, el *dom.Element) (string, error) {
	script := fmt.Sprintf(readBackJS, jsonEncode(el.XPath))
	var got string
	if err := inj.page.Eval(ctx, script, &got); err != nil {
		return "", fmt.Errorf("reading back composer text: %w", err)
	}
	return got, nil
}

func (inj *Injector) clear(ctx context.Context, el *dom.Element) error {
	script := fmt.Sprintf(clearEditableJS, jsonEncode(el.XPath))
	var result string
	if err := inj.page.Eval(ctx, script, &result); err != nil {
		return fmt.Errorf("clearing editor: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("clearing editor: result %q", result)
	}
	return nil
}

func (inj *Injector) pasteText(ctx context.Context, el *dom.Element, text string) error {
	script := fmt.Sprintf(pasteTextJS, jsonEncode(el.XPath), jsonEncode(text))
	var result string
	if err := inj.page.Eval(ctx, script, &result); err != nil {
		return fmt.Errorf("synthesizing paste: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("synthesizing paste: result %q", result)
	}
	return nil
}

func (inj *Injector) insertText(ctx context.Context, el *dom.Element, text string) error {
	// Input.insertText lands at the focused element, so refocus first.
	if err := inj.page.Focus(ctx, el.XPath); err != nil {
		return fmt.Errorf("refocusing editor: %w", err)
	}
	if err := inj.page.InsertText(ctx, text); err != nil {
		return fmt.Errorf("structured insert-text: %w", err)
	}
	return nil
}

func (inj *Injector) replaceContent(ctx context.Context, el *dom.Element, text string) error {
	script := fmt.Sprintf(replaceContentJS, jsonEncode(el.XPath), jsonEncode(text))
	var result string
	if err := inj.page.Eval(ctx, script, &result); err != nil {
		return fmt.Errorf("direct content replacement: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("direct content replacement: result %q", result)
	}
	return nil
}

// textMatches compares injected and requested text with whitespace
// normalized. Rich editors restructure line breaks (paragraph nodes, trailing
// newlines); exact byte equality across paradigms is not achievable.
func textMatches(got, want string) bool {
	return strings.Join(strings.Fields(got), " ") == strings.Join(strings.Fields(want), " ")
}
