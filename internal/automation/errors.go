// internal/automation/errors.go
package automation

import "errors"

// Sentinel errors for the automation failure taxonomy. Callers discriminate
// with errors.Is; messages wrapped around them name the control or deadline
// involved.
var (
	// ErrComposerNotFound indicates the text-entry region never resolved
	// within the bounded retry budget.
	ErrComposerNotFound = errors.New("composer not found")

	// ErrSubmitNotFound indicates no submission control resolved, even after
	// the keyboard fallback gave the page a chance to materialize one.
	ErrSubmitNotFound = errors.New("submit control not found")

	// ErrInjectFailed indicates no injection strategy produced visible text
	// in the composer.
	ErrInjectFailed = errors.New("prompt injection failed")

	// ErrInjectMismatch indicates an injection strategy produced text, but
	// not the text that was asked for.
	ErrInjectMismatch = errors.New("injected text does not match prompt")

	// ErrIdleTimeout indicates the interface stayed busy past the completion
	// deadline.
	ErrIdleTimeout = errors.New("interface did not become idle")

	// ErrSubmitUnconfirmed indicates submission was triggered but the page
	// showed no acceptance signal within the confirmation window.
	ErrSubmitUnconfirmed = errors.New("submission not confirmed")
)
