// api/schemas/schemas.go
package schemas

import "time"

// Phase identifies a stage in the lifecycle of a queue run or one of its items.
type Phase string

const (
	// Per item phases, emitted in order for every prompt.
	PhaseSending Phase = "sending"
	PhaseWaiting Phase = "waiting"
	PhaseDone    Phase = "done"

	// Run boundary phases.
	PhaseRunStarted  Phase = "run_started"
	PhaseRunFinished Phase = "run_finished"
)

// QueueRequest is the payload of a queue trigger: an ordered list of prompts.
// Order is significant and duplicates are allowed.
type QueueRequest struct {
	Prompts []string `json:"prompts"`
}

// QueueAck is the trigger reply. Exactly one of OK or Error is populated,
// producing {"ok":true} on acceptance or {"error":"..."} on rejection.
type QueueAck struct {
	OK    bool   `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`
}

// ProgressEvent is a fire and forget notification about queue progress.
// Index is 1-based. Text carries the prompt (possibly truncated for display)
// or, for run boundary phases, a short human readable summary.
type ProgressEvent struct {
	RunID   string    `json:"run_id"`
	Phase   Phase     `json:"phase"`
	Index   int       `json:"index,omitempty"`
	Total   int       `json:"total"`
	Text    string    `json:"text,omitempty"`
	Attempt int       `json:"attempt,omitempty"`
	WaitMs  int64     `json:"wait_ms,omitempty"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// RunStatus describes the queue processor's current occupancy.
type RunStatus struct {
	Running   bool       `json:"running"`
	RunID     string     `json:"run_id,omitempty"`
	Index     int        `json:"index,omitempty"`
	Total     int        `json:"total,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// KeyEventData represents a structured key event, including the main key and
// active modifiers. Key should match the string expected by the underlying
// executor (e.g. "Enter", "a").
type KeyEventData struct {
	Key       string
	Modifiers KeyModifier
}

// KeyModifier represents keyboard modifiers (Ctrl, Alt, Shift, Meta).
// The values correspond directly to the CDP input.DispatchKeyEvent bitfield.
type KeyModifier int

const (
	ModNone  KeyModifier = 0
	ModAlt   KeyModifier = 1
	ModCtrl  KeyModifier = 2
	ModMeta  KeyModifier = 4
	ModShift KeyModifier = 8
)
