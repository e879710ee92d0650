package cooldown

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Stock retry policy. A one minute base clears most provider windows, and
// the jitter spreads concurrent queues apart so they do not stampede the
// backend in lockstep.
const (
	DefaultBaseDelayMs = 60000
	DefaultJitterMinMs = 5000
	DefaultJitterMaxMs = 10000
	DefaultMaxAttempts = 3
)

// Source tells where a cooldown signal was detected.
type Source string

const (
	// SourceResponse marks a cooldown notice found inside a successful reply.
	SourceResponse Source = "response"
	// SourceError marks a cooldown carried by a returned error.
	SourceError Source = "error"
)

// Event describes a single retry decision. It is emitted before the wait
// runs, so observers see the stall as it starts rather than after it ends.
type Event struct {
	Attempt int
	Wait    time.Duration
	Source  Source
	Payload any
}

// ExhaustedError is the terminal cooldown failure: every attempt classified
// as rate-limited and no fallback was configured.
type ExhaustedError struct {
	Attempts int
	Source   Source
	Payload  any
}

func (e *ExhaustedError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("cooldown retry gave up after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("cooldown persisted through %d attempts (last signal in %s)", e.Attempts, e.Source)
}

// ResponsePayload implements ResponseCarrier with the last payload seen, so
// an exhausted retry still classifies as a cooldown further up the stack.
func (e *ExhaustedError) ResponsePayload() any { return e.Payload }

// Options tunes Do. The zero value retries three times with the default one
// minute delay and no jitter; DefaultOptions restores the stock jitter
// window as well.
type Options[T any] struct {
	// BaseDelayMs is the fixed floor of every wait. Non-positive or
	// non-finite values fall back to DefaultBaseDelayMs.
	BaseDelayMs float64
	// JitterMinMs and JitterMaxMs bound the uniform jitter added on top of
	// the base delay. They pass through NormalizeJitterMs first.
	JitterMinMs float64
	JitterMaxMs float64
	// MaxAttempts caps op invocations. Non-positive means DefaultMaxAttempts.
	MaxAttempts int

	// Detector classifies successful results; nil means IsCooldownResponse.
	Detector func(payload any) bool
	// ErrorDetector classifies returned errors; nil means IsCooldownError.
	// Errors it rejects abort the loop immediately.
	ErrorDetector func(err error) bool

	// Fallback, when set, supplies the result once the attempt budget is
	// spent. Without it Do returns an *ExhaustedError.
	Fallback func(ctx context.Context) (T, error)

	// OnCooldown observes each retry decision before its wait starts.
	OnCooldown func(Event)

	// WaitStrategy performs the actual wait. The default sleeps on a timer
	// and aborts when ctx does. Tests substitute a recorder.
	WaitStrategy func(ctx context.Context, wait time.Duration) error

	// Logger receives debug-level retry traces. Nil disables them.
	Logger *zap.Logger
}

// DefaultOptions is the stock policy: three attempts, a one minute base
// delay, five to ten seconds of jitter.
func DefaultOptions[T any]() Options[T] {
	return Options[T]{
		BaseDelayMs: DefaultBaseDelayMs,
		JitterMinMs: DefaultJitterMinMs,
		JitterMaxMs: DefaultJitterMaxMs,
		MaxAttempts: DefaultMaxAttempts,
	}
}

func (o Options[T]) withDefaults() Options[T] {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if math.IsNaN(o.BaseDelayMs) || math.IsInf(o.BaseDelayMs, 0) || o.BaseDelayMs <= 0 {
		o.BaseDelayMs = DefaultBaseDelayMs
	}
	o.JitterMinMs, o.JitterMaxMs = NormalizeJitterMs(o.JitterMinMs, o.JitterMaxMs)
	if o.Detector == nil {
		o.Detector = IsCooldownResponse
	}
	if o.ErrorDetector == nil {
		o.ErrorDetector = IsCooldownError
	}
	if o.WaitStrategy == nil {
		o.WaitStrategy = sleepWait
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// NormalizeJitterMs sanitizes a jitter range: NaN, infinite and negative
// bounds collapse to zero, and a reversed range is swapped into order.
func NormalizeJitterMs(lo, hi float64) (float64, float64) {
	lo = clampMs(lo)
	hi = clampMs(hi)
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi
}

func clampMs(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// Allows deterministic jitter in tests.
var randFloat = rand.Float64

// computeWait is the base delay plus a uniform draw from the jitter range.
// The result never undercuts the base delay.
func computeWait(baseMs, jitterLo, jitterHi float64) time.Duration {
	jitter := jitterLo
	if span := jitterHi - jitterLo; span > 0 {
		jitter += randFloat() * span
	}
	return time.Duration((baseMs + jitter) * float64(time.Millisecond))
}

func sleepWait(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs op until it produces a result that does not classify as a
// cooldown. Results and errors that do classify trigger a jittered wait and
// another attempt; any other error aborts the loop untouched on the spot.
// Once the attempt budget is spent the fallback answers if present,
// otherwise an *ExhaustedError carrying the last cooldown payload.
func Do[T any](ctx context.Context, op func(ctx context.Context, attempt int) (T, error), opts Options[T]) (T, error) {
	var zero T
	o := opts.withDefaults()

	var lastSource Source
	var lastPayload any
	exhausted := false

	for attempt := 1; attempt <= o.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx, attempt)

		var source Source
		var payload any
		switch {
		case err != nil && !o.ErrorDetector(err):
			// Not a cooldown; the caller deals with it.
			return zero, err
		case err != nil:
			source, payload = SourceError, err
		case o.Detector(result):
			source, payload = SourceResponse, result
		default:
			return result, nil
		}

		if attempt == o.MaxAttempts {
			lastSource, lastPayload = source, payload
			exhausted = true
			break
		}

		wait := computeWait(o.BaseDelayMs, o.JitterMinMs, o.JitterMaxMs)
		o.Logger.Debug("Cooldown detected, backing off.",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", o.MaxAttempts),
			zap.Duration("wait", wait),
			zap.String("source", string(source)))
		if o.OnCooldown != nil {
			o.OnCooldown(Event{Attempt: attempt, Wait: wait, Source: source, Payload: payload})
		}
		if err := o.WaitStrategy(ctx, wait); err != nil {
			return zero, err
		}
	}

	if !exhausted {
		// Unreachable with a positive attempt budget.
		return zero, &ExhaustedError{Attempts: o.MaxAttempts}
	}

	if o.Fallback != nil {
		o.Logger.Debug("Cooldown attempts exhausted, using fallback.", zap.Int("attempts", o.MaxAttempts))
		return o.Fallback(ctx)
	}
	return zero, &ExhaustedError{Attempts: o.MaxAttempts, Source: lastSource, Payload: lastPayload}
}
