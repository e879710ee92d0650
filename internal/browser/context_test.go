package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctxKey string

func TestCombineContext(t *testing.T) {
	t.Run("ValuesComeFromPrimary", func(t *testing.T) {
		primary := context.WithValue(context.Background(), ctxKey("origin"), "primary")
		secondary := context.WithValue(context.Background(), ctxKey("origin"), "secondary")

		combined, cancel := CombineContext(primary, secondary)
		defer cancel()

		assert.Equal(t, "primary", combined.Value(ctxKey("origin")))
	})

	t.Run("PrimaryCancelPropagates", func(t *testing.T) {
		primary, primaryCancel := context.WithCancel(context.Background())
		combined, cancel := CombineContext(primary, context.Background())
		defer cancel()

		primaryCancel()
		waitDone(t, combined)
	})

	t.Run("SecondaryCancelPropagates", func(t *testing.T) {
		secondary, secondaryCancel := context.WithCancel(context.Background())
		combined, cancel := CombineContext(context.Background(), secondary)
		defer cancel()

		secondaryCancel()
		waitDone(t, combined)
	})

	t.Run("ExplicitCancel", func(t *testing.T) {
		combined, cancel := CombineContext(context.Background(), context.Background())
		cancel()
		waitDone(t, combined)
	})
}

func waitDone(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled in time")
	}
	require.ErrorIs(t, ctx.Err(), context.Canceled)
}
