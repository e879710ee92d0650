package queue_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/hexhaunt/promptq-cli/api/schemas"
	"github.com/hexhaunt/promptq-cli/internal/config"
	"github.com/hexhaunt/promptq-cli/internal/progress"
	"github.com/hexhaunt/promptq-cli/internal/queue"
)

// fakeSubmitter scripts Send/WaitForIdle outcomes by call ordinal (1-based).
type fakeSubmitter struct {
	mu       sync.Mutex
	sends    []string
	waits    int
	sendErrs map[int]error
	waitErrs map[int]error
	onWait   func(ordinal int)
	block    chan struct{}
}

func (f *fakeSubmitter) Send(ctx context.Context, prompt string) error {
	f.mu.Lock()
	f.sends = append(f.sends, prompt)
	n := len(f.sends)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendErrs[n]
}

func (f *fakeSubmitter) WaitForIdle(ctx context.Context) error {
	f.mu.Lock()
	f.waits++
	n := f.waits
	f.mu.Unlock()

	if f.onWait != nil {
		f.onWait(n)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waitErrs[n]
}

func (f *fakeSubmitter) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sends...)
}

func (f *fakeSubmitter) waitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waits
}

// eventRecorder is a thread-safe progress sink.
type eventRecorder struct {
	mu     sync.Mutex
	events []schemas.ProgressEvent
}

func (r *eventRecorder) Post(ev schemas.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []schemas.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schemas.ProgressEvent(nil), r.events...)
}

func (r *eventRecorder) phases() []schemas.Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schemas.Phase, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Phase
	}
	return out
}

func fastCfg() config.QueueConfig {
	return config.QueueConfig{
		ItemDelay:     time.Millisecond,
		PreviewLength: 40,
	}
}

func newProcessor(t *testing.T, sub queue.Submitter, rec *eventRecorder) *queue.Processor {
	t.Helper()
	var sink progress.Sink
	if rec != nil {
		sink = rec
	}
	return queue.NewProcessor(sub, sink, fastCfg(), zaptest.NewLogger(t))
}

func TestProcessorRunsPromptsInOrder(t *testing.T) {
	sub := &fakeSubmitter{}
	rec := &eventRecorder{}
	p := newProcessor(t, sub, rec)

	prompts := []string{"first prompt", "second prompt", "third prompt"}
	require.NoError(t, p.Run(context.Background(), prompts))

	assert.Equal(t, prompts, sub.sent())
	// One initial idle wait plus one per prompt.
	assert.Equal(t, 4, sub.waitCount())

	assert.Equal(t, []schemas.Phase{
		schemas.PhaseRunStarted,
		schemas.PhaseSending, schemas.PhaseWaiting, schemas.PhaseDone,
		schemas.PhaseSending, schemas.PhaseWaiting, schemas.PhaseDone,
		schemas.PhaseSending, schemas.PhaseWaiting, schemas.PhaseDone,
		schemas.PhaseRunFinished,
	}, rec.phases())

	events := rec.all()
	runID := events[0].RunID
	require.NotEmpty(t, runID)
	for _, ev := range events {
		assert.Equal(t, runID, ev.RunID)
		assert.Equal(t, 3, ev.Total)
		assert.False(t, ev.At.IsZero())
	}
	assert.Equal(t, 1, events[1].Index)
	assert.Equal(t, "first prompt", events[1].Text)
	assert.Empty(t, events[len(events)-1].Error)

	status := p.Status()
	assert.False(t, status.Running)
	assert.Empty(t, status.RunID)
}

func TestProcessorTruncatesPromptPreviews(t *testing.T) {
	sub := &fakeSubmitter{}
	rec := &eventRecorder{}
	p := newProcessor(t, sub, rec)

	long := strings.Repeat("paint a fox ", 20)
	require.NoError(t, p.Run(context.Background(), []string{long}))

	sending := rec.all()[1]
	require.Equal(t, schemas.PhaseSending, sending.Phase)
	assert.True(t, strings.HasSuffix(sending.Text, "..."))
	assert.LessOrEqual(t, len([]rune(sending.Text)), 40+len("..."))
	// The submitter still receives the full prompt.
	assert.Equal(t, long, sub.sent()[0])
}

func TestProcessorRejectsEmptyPrompts(t *testing.T) {
	p := newProcessor(t, &fakeSubmitter{}, nil)

	assert.ErrorIs(t, p.Run(context.Background(), nil), queue.ErrNoPrompts)
	assert.ErrorIs(t, p.Start(context.Background(), []string{}), queue.ErrNoPrompts)
}

func TestProcessorSingleFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	block := make(chan struct{})
	sub := &fakeSubmitter{block: block}
	p := newProcessor(t, sub, nil)

	require.NoError(t, p.Start(context.Background(), []string{"one"}))

	// Wait until the run is inside Send before poking the guard.
	require.Eventually(t, func() bool { return len(sub.sent()) == 1 }, 2*time.Second, time.Millisecond)

	assert.ErrorIs(t, p.Run(context.Background(), []string{"two"}), queue.ErrAlreadyRunning)
	assert.ErrorIs(t, p.Start(context.Background(), []string{"three"}), queue.ErrAlreadyRunning)
	assert.True(t, p.Busy())

	close(block)
	p.Wait()

	assert.False(t, p.Busy())
	// The rejected triggers never reached the submitter.
	assert.Equal(t, []string{"one"}, sub.sent())

	// A fresh run is accepted once the guard is free.
	sub.block = nil
	require.NoError(t, p.Run(context.Background(), []string{"four"}))
}

func TestProcessorAbortsOnSendFailure(t *testing.T) {
	boom := errors.New("composer went missing")
	sub := &fakeSubmitter{sendErrs: map[int]error{2: boom}}
	rec := &eventRecorder{}
	p := newProcessor(t, sub, rec)

	err := p.Run(context.Background(), []string{"a", "b", "c"})
	require.ErrorIs(t, err, boom)

	// The third prompt is never attempted.
	assert.Equal(t, []string{"a", "b"}, sub.sent())

	events := rec.all()
	last := events[len(events)-1]
	assert.Equal(t, schemas.PhaseRunFinished, last.Phase)
	assert.Equal(t, 2, last.Index)
	assert.Contains(t, last.Error, "composer went missing")

	done := 0
	for _, ev := range events {
		if ev.Phase == schemas.PhaseDone {
			done++
		}
	}
	assert.Equal(t, 1, done)
}

func TestProcessorAbortsOnInitialWaitFailure(t *testing.T) {
	boom := errors.New("interface never settled")
	sub := &fakeSubmitter{waitErrs: map[int]error{1: boom}}
	rec := &eventRecorder{}
	p := newProcessor(t, sub, rec)

	err := p.Run(context.Background(), []string{"a"})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, sub.sent())

	phases := rec.phases()
	require.Equal(t, []schemas.Phase{schemas.PhaseRunStarted, schemas.PhaseRunFinished}, phases)
	last := rec.all()[1]
	assert.Zero(t, last.Index)
	assert.Contains(t, last.Error, "interface never settled")
}

func TestProcessorReleasesGuardAfterFailure(t *testing.T) {
	sub := &fakeSubmitter{sendErrs: map[int]error{1: errors.New("boom")}}
	p := newProcessor(t, sub, nil)

	require.Error(t, p.Run(context.Background(), []string{"a"}))
	require.False(t, p.Busy())

	sub.mu.Lock()
	sub.sendErrs = nil
	sub.mu.Unlock()
	assert.NoError(t, p.Run(context.Background(), []string{"a"}))
}

func TestProcessorStatusDuringRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	block := make(chan struct{})
	sub := &fakeSubmitter{block: block}
	p := newProcessor(t, sub, nil)

	require.NoError(t, p.Start(context.Background(), []string{"a", "b"}))

	require.Eventually(t, func() bool {
		st := p.Status()
		return st.Running && st.Index == 1
	}, 2*time.Second, time.Millisecond)

	st := p.Status()
	assert.NotEmpty(t, st.RunID)
	assert.Equal(t, 2, st.Total)
	require.NotNil(t, st.StartedAt)
	assert.False(t, st.StartedAt.IsZero())

	close(block)
	p.Wait()
	assert.Equal(t, schemas.RunStatus{}, p.Status())
}

func TestProcessorCancelObservedBetweenItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := &fakeSubmitter{}
	// Cancel during wait number 2, the per-item wait of the first prompt.
	// The item is allowed to finish; the inter-item pause then aborts.
	sub.onWait = func(ordinal int) {
		if ordinal == 2 {
			cancel()
		}
	}
	rec := &eventRecorder{}
	p := queue.NewProcessor(sub, rec, config.QueueConfig{ItemDelay: 50 * time.Millisecond}, zaptest.NewLogger(t))

	err := p.Run(ctx, []string{"a", "b"})
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []string{"a"}, sub.sent())

	phases := rec.phases()
	assert.Contains(t, phases, schemas.PhaseDone)
	assert.Equal(t, schemas.PhaseRunFinished, phases[len(phases)-1])
}
