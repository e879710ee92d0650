// Package queue drives prompts through the target interface strictly one at
// a time. A run submits each prompt, waits for the interface to finish
// responding, and only then moves on; a single guard keeps concurrent
// triggers from interleaving keystrokes into the same composer.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hexhaunt/promptq-cli/api/schemas"
	"github.com/hexhaunt/promptq-cli/internal/config"
	"github.com/hexhaunt/promptq-cli/internal/progress"
)

var (
	// ErrAlreadyRunning rejects a trigger that arrives while a run holds the
	// guard. Triggers are rejected, never queued.
	ErrAlreadyRunning = errors.New("a queue run is already in progress")
	// ErrNoPrompts rejects an empty trigger.
	ErrNoPrompts = errors.New("no prompts to queue")
)

const defaultPreviewLength = 80

// Submitter sends a single prompt and knows when the target is ready for
// the next one. The browser orchestrator implements it; so does the direct
// API client.
type Submitter interface {
	Send(ctx context.Context, prompt string) error
	WaitForIdle(ctx context.Context) error
}

// Processor owns the sequential run loop and the single-flight guard.
type Processor struct {
	submitter Submitter
	sink      progress.Sink
	cfg       config.QueueConfig
	log       *zap.Logger

	guard RunGuard
	wg    sync.WaitGroup

	mu     sync.Mutex
	status schemas.RunStatus
}

// NewProcessor wires a processor over the given submitter. A nil sink
// discards progress.
func NewProcessor(submitter Submitter, sink progress.Sink, cfg config.QueueConfig, logger *zap.Logger) *Processor {
	if sink == nil {
		sink = progress.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		submitter: submitter,
		sink:      sink,
		cfg:       cfg,
		log:       logger.Named("queue"),
	}
}

// Run drives prompts through the interface in order and returns when the
// last one completes or the first failure aborts the remainder.
func (p *Processor) Run(ctx context.Context, prompts []string) error {
	if len(prompts) == 0 {
		return ErrNoPrompts
	}
	release, ok := p.guard.TryAcquire()
	if !ok {
		return ErrAlreadyRunning
	}
	defer release()
	return p.run(ctx, prompts)
}

// Start triggers Run on its own goroutine. The guard is claimed before
// returning, so a rejected trigger sees ErrAlreadyRunning synchronously.
func (p *Processor) Start(ctx context.Context, prompts []string) error {
	if len(prompts) == 0 {
		return ErrNoPrompts
	}
	release, ok := p.guard.TryAcquire()
	if !ok {
		return ErrAlreadyRunning
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer release()
		// run logs and reports its own failures through the sink.
		_ = p.run(ctx, prompts)
	}()
	return nil
}

// Wait blocks until any background run started via Start has finished.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// Status reports the current occupancy snapshot.
func (p *Processor) Status() schemas.RunStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Busy reports whether a run is in flight.
func (p *Processor) Busy() bool {
	return p.guard.Busy()
}

func (p *Processor) run(ctx context.Context, prompts []string) (err error) {
	runID := uuid.NewString()
	total := len(prompts)
	started := time.Now().UTC()

	p.setStatus(schemas.RunStatus{Running: true, RunID: runID, Total: total, StartedAt: &started})
	defer p.setStatus(schemas.RunStatus{})

	log := p.log.With(zap.String("run_id", runID), zap.Int("total", total))
	log.Info("Queue run starting.")

	var current int
	p.post(schemas.ProgressEvent{RunID: runID, Phase: schemas.PhaseRunStarted, Total: total})
	defer func() {
		fin := schemas.ProgressEvent{RunID: runID, Phase: schemas.PhaseRunFinished, Total: total}
		if err != nil {
			fin.Index = current
			fin.Error = err.Error()
			log.Error("Queue run failed.", zap.Int("index", current), zap.Error(err))
		} else {
			log.Info("Queue run finished.")
		}
		p.post(fin)
	}()

	// The interface may still be streaming a response from before this run.
	if err = p.submitter.WaitForIdle(ctx); err != nil {
		return fmt.Errorf("waiting for initial idle: %w", err)
	}

	for i, prompt := range prompts {
		index := i + 1
		current = index
		p.advance(index)

		text := preview(prompt, p.cfg.PreviewLength)
		itemLog := log.With(zap.Int("index", index))
		itemLog.Info("Submitting prompt.", zap.String("preview", text))

		p.post(schemas.ProgressEvent{RunID: runID, Phase: schemas.PhaseSending, Index: index, Total: total, Text: text})
		if err = p.submitter.Send(ctx, prompt); err != nil {
			return fmt.Errorf("sending prompt %d/%d: %w", index, total, err)
		}

		p.post(schemas.ProgressEvent{RunID: runID, Phase: schemas.PhaseWaiting, Index: index, Total: total})
		if err = p.submitter.WaitForIdle(ctx); err != nil {
			return fmt.Errorf("waiting after prompt %d/%d: %w", index, total, err)
		}

		p.post(schemas.ProgressEvent{RunID: runID, Phase: schemas.PhaseDone, Index: index, Total: total})
		itemLog.Info("Prompt completed.")

		if index < total {
			if err = sleepCtx(ctx, p.cfg.ItemDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Processor) post(ev schemas.ProgressEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	p.sink.Post(ev)
}

func (p *Processor) setStatus(s schemas.RunStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = s
}

func (p *Processor) advance(index int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Index = index
}

// preview collapses whitespace and truncates a prompt for logs and events.
func preview(s string, limit int) string {
	if limit <= 0 {
		limit = defaultPreviewLength
	}
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
