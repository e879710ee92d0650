// api/schemas/schemas_test.go
package schemas

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueAckWireShape(t *testing.T) {
	t.Run("acceptance carries only ok", func(t *testing.T) {
		b, err := json.Marshal(QueueAck{OK: true})
		require.NoError(t, err)
		assert.JSONEq(t, `{"ok":true}`, string(b))
	})

	t.Run("rejection carries only error", func(t *testing.T) {
		b, err := json.Marshal(QueueAck{Error: "already running"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"error":"already running"}`, string(b))
	})
}

func TestProgressEventWireShape(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	b, err := json.Marshal(ProgressEvent{
		RunID:   "r1",
		Phase:   PhaseRunFinished,
		Index:   2,
		Total:   3,
		Attempt: 1,
		WaitMs:  60000,
		Error:   "composer not found",
		At:      at,
	})
	require.NoError(t, err)

	expected := map[string]any{
		"run_id":  "r1",
		"phase":   "run_finished",
		"index":   float64(2),
		"total":   float64(3),
		"attempt": float64(1),
		"wait_ms": float64(60000),
		"error":   "composer not found",
		"at":      "2026-03-14T09:26:53Z",
	}
	var actual map[string]any
	require.NoError(t, json.Unmarshal(b, &actual))
	if diff := cmp.Diff(expected, actual); diff != "" {
		t.Errorf("JSON mismatch. Diff:\n%s", diff)
	}
}

func TestProgressEventOptionalFields(t *testing.T) {
	b, err := json.Marshal(ProgressEvent{RunID: "r1", Phase: PhaseSending, Index: 1, Total: 3, Text: "a cat"})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "sending", m["phase"])
	assert.NotContains(t, m, "attempt")
	assert.NotContains(t, m, "wait_ms")
	assert.NotContains(t, m, "error")
}
