package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/hexhaunt/promptq-cli/api/schemas"
)

// Focus scrolls the element addressed by xpath into view and gives it input
// focus, waiting for it to become visible first.
func (s *Session) Focus(ctx context.Context, xpath string) error {
	return s.run(ctx, fmt.Sprintf("focusing %s", xpath), s.actionTimeout(),
		chromedp.WaitVisible(xpath, chromedp.BySearch),
		chromedp.ScrollIntoView(xpath, chromedp.BySearch),
		chromedp.Focus(xpath, chromedp.BySearch),
	)
}

// Click scrolls the element addressed by xpath into view and clicks it.
func (s *Session) Click(ctx context.Context, xpath string) error {
	return s.run(ctx, fmt.Sprintf("clicking %s", xpath), s.actionTimeout(),
		chromedp.WaitVisible(xpath, chromedp.BySearch),
		chromedp.ScrollIntoView(xpath, chromedp.BySearch),
		chromedp.Click(xpath, chromedp.BySearch),
	)
}

// PressKey dispatches a full key chord to the focused element. Named keys
// such as Enter go out as rawKeyDown/char/keyUp so page-level key handlers
// fire the same way they would for a physical keypress.
func (s *Session) PressKey(ctx context.Context, key schemas.KeyEventData) error {
	events := keyEvents(key)
	return s.run(ctx, fmt.Sprintf("pressing %s", key.Key), s.actionTimeout(),
		chromedp.ActionFunc(func(c context.Context) error {
			for _, ev := range events {
				if err := ev.Do(c); err != nil {
					return err
				}
			}
			return nil
		}),
	)
}

// InsertText places text into the focused editable region in one CDP call,
// the way a paste would, without synthesizing per-character key events.
func (s *Session) InsertText(ctx context.Context, text string) error {
	return s.run(ctx, "inserting text", s.actionTimeout(),
		chromedp.ActionFunc(func(c context.Context) error {
			return input.InsertText(text).Do(c)
		}),
	)
}

// IsVisible reports whether the first node matching xpath exists, has
// geometry, and is not hidden by style. Lookup failures count as hidden.
func (s *Session) IsVisible(ctx context.Context, xpath string) bool {
	script := fmt.Sprintf(`(function(xp) {
	const node = document.evaluate(xp, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
	if (!node) { return false; }
	const rect = node.getBoundingClientRect();
	const style = window.getComputedStyle(node);
	return rect.width > 0 && rect.height > 0 &&
		style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0';
})(%s)`, jsonEncode(xpath))

	var visible bool
	if err := s.Eval(ctx, script, &visible); err != nil {
		s.logger.Debug("Visibility check failed, treating element as hidden.",
			zap.String("xpath", xpath), zap.Error(err))
		return false
	}
	return visible
}

// keyDefinition carries the CDP wire fields for a named key.
type keyDefinition struct {
	code string // physical key code, e.g. "Enter"
	vk   int64  // Windows virtual key code
	text string // character the key produces, empty for non-printing keys
}

// namedKeys maps the key names the automation layer dispatches to their CDP
// fields. Unlisted single-character keys fall back to the character itself.
var namedKeys = map[string]keyDefinition{
	"Enter":     {code: "Enter", vk: 13, text: "\r"},
	"Tab":       {code: "Tab", vk: 9},
	"Escape":    {code: "Escape", vk: 27},
	"Backspace": {code: "Backspace", vk: 8},
}

// keyEvents builds the CDP event sequence for one key chord: rawKeyDown,
// a char event when the key produces text, then keyUp.
func keyEvents(key schemas.KeyEventData) []*input.DispatchKeyEventParams {
	mods := cdpModifiers(key.Modifiers)

	def, ok := namedKeys[key.Key]
	if !ok {
		def = keyDefinition{text: key.Key}
		if r := []rune(key.Key); len(r) == 1 {
			if u := unicode.ToUpper(r[0]); (u >= 'A' && u <= 'Z') || (u >= '0' && u <= '9') {
				def.vk = int64(u)
			}
		}
	}

	down := input.DispatchKeyEvent(input.KeyRawDown).
		WithModifiers(mods).
		WithKey(key.Key)
	up := input.DispatchKeyEvent(input.KeyUp).
		WithModifiers(mods).
		WithKey(key.Key)
	if def.vk != 0 {
		down = down.WithWindowsVirtualKeyCode(def.vk)
		up = up.WithWindowsVirtualKeyCode(def.vk)
	}
	if def.code != "" {
		down = down.WithCode(def.code)
		up = up.WithCode(def.code)
	}

	events := []*input.DispatchKeyEventParams{down}
	if def.text != "" {
		events = append(events, input.DispatchKeyEvent(input.KeyChar).
			WithModifiers(mods).
			WithKey(key.Key).
			WithText(def.text))
	}
	return append(events, up)
}

// cdpModifiers translates the schema modifier bitmask into the CDP one. The
// two encodings match bit for bit, but the mapping stays explicit so a drift
// in either would surface here.
func cdpModifiers(m schemas.KeyModifier) input.Modifier {
	var mods input.Modifier
	if m&schemas.ModAlt != 0 {
		mods |= input.ModifierAlt
	}
	if m&schemas.ModCtrl != 0 {
		mods |= input.ModifierCtrl
	}
	if m&schemas.ModMeta != 0 {
		mods |= input.ModifierMeta
	}
	if m&schemas.ModShift != 0 {
		mods |= input.ModifierShift
	}
	return mods
}

// jsonEncode renders v as a JSON literal for safe injection into a script.
func jsonEncode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
