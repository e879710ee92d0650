// Package cooldown classifies rate-limit responses from generation backends
// and retries operations that tripped one. Backends rarely agree on what a
// cooldown looks like: some return a bare 429, some bury an apology inside a
// chat message, some wrap it in an OpenAI-style error object. The classifier
// probes every shape we have seen in the wild; the retry wrapper waits out
// the cooldown with a jittered delay and hands back the first clean result.
package cooldown

import (
	encodingjson "encoding/json"
	"errors"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
)

// DefaultPatterns match the cooldown phrasings observed across generation
// backends. Matching is deliberately loose: a false positive costs one
// delayed retry, a false negative keeps hammering a backend that asked us
// to stop.
var DefaultPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)hit\s+(?:your|the)\s+.{0,60}limit`),
	regexp.MustCompile(`(?i)rate[\s-]?limit`),
	regexp.MustCompile(`(?i)too\s+many\s+requests`),
	regexp.MustCompile(`(?i)try\s+again\s+(?:later|in)`),
	regexp.MustCompile(`(?i)cool[\s-]?down`),
	regexp.MustCompile(`(?i)(?:limit|quota)\s+(?:reached|exceeded)`),
	regexp.MustCompile(`\b429\b`),
}

// IsCooldownMessage reports whether text reads like a rate-limit notice.
// The pattern set defaults to DefaultPatterns; pass an explicit set to
// narrow or extend the match.
func IsCooldownMessage(text string, patterns ...[]*regexp.Regexp) bool {
	if text == "" {
		return false
	}
	active := DefaultPatterns
	if len(patterns) > 0 && patterns[0] != nil {
		active = patterns[0]
	}
	for _, re := range active {
		if re != nil && re.MatchString(text) {
			return true
		}
	}
	return false
}

// ExtractContent digs the human-readable message out of a backend payload.
// It understands raw strings, OpenAI-style choice arrays (message.content or
// the legacy text field), bare top-level message fields, and error objects,
// probed in that order. The bool is false when no textual content could be
// located.
func ExtractContent(payload any) (string, bool) {
	switch v := payload.(type) {
	case nil:
		return "", false
	case string:
		return v, v != ""
	case []byte:
		return extractFromRaw(v)
	case encodingjson.RawMessage:
		return extractFromRaw(v)
	}

	m, ok := asMap(payload)
	if !ok {
		return "", false
	}
	return extractFromMap(m)
}

// IsCooldownResponse reports whether a backend payload carries a cooldown
// notice in any of the shapes ExtractContent understands.
func IsCooldownResponse(payload any) bool {
	content, ok := ExtractContent(payload)
	return ok && IsCooldownMessage(content)
}

// ResponseCarrier is implemented by errors that retain the upstream payload
// which produced them. IsCooldownError unwraps through it, so a transport
// error wrapping a 429 body still classifies correctly.
type ResponseCarrier interface {
	ResponsePayload() any
}

// PayloadError couples an error message with the backend response behind it.
type PayloadError struct {
	Message string
	Payload any
}

func (e *PayloadError) Error() string { return e.Message }

// ResponsePayload implements ResponseCarrier.
func (e *PayloadError) ResponsePayload() any { return e.Payload }

// IsCooldownError reports whether err represents a rate limit, either by its
// own message or through a response payload it carries.
func IsCooldownError(err error) bool {
	if err == nil {
		return false
	}
	if IsCooldownMessage(err.Error()) {
		return true
	}
	var carrier ResponseCarrier
	if errors.As(err, &carrier) {
		return IsCooldownResponse(carrier.ResponsePayload())
	}
	return false
}

// asMap coerces maps and typed structs alike into map[string]any via a JSON
// round-trip, which keeps the probing logic in a single shape.
func asMap(payload any) (map[string]any, bool) {
	if m, ok := payload.(map[string]any); ok {
		return m, true
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	return m, true
}

func extractFromRaw(raw []byte) (string, bool) {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		// Not JSON at all; treat the bytes as plain text.
		s := strings.TrimSpace(string(raw))
		return s, s != ""
	}
	if decoded == nil {
		return "", false
	}
	return ExtractContent(decoded)
}

func extractFromMap(m map[string]any) (string, bool) {
	if choices, ok := m["choices"].([]any); ok {
		for _, entry := range choices {
			choice, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if msg, ok := choice["message"].(map[string]any); ok {
				if s, ok := msg["content"].(string); ok && s != "" {
					return s, true
				}
			}
			if s, ok := choice["text"].(string); ok && s != "" {
				return s, true
			}
		}
	}
	if s, ok := m["message"].(string); ok && s != "" {
		return s, true
	}
	switch e := m["error"].(type) {
	case map[string]any:
		if s, ok := e["message"].(string); ok && s != "" {
			return s, true
		}
	case string:
		if e != "" {
			return e, true
		}
	}
	return "", false
}
