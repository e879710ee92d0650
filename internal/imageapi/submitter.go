package imageapi

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hexhaunt/promptq-cli/api/schemas"
	"github.com/hexhaunt/promptq-cli/internal/config"
	"github.com/hexhaunt/promptq-cli/internal/cooldown"
	"github.com/hexhaunt/promptq-cli/internal/progress"
)

// Submitter adapts the client to the queue's submitter contract. Send wraps
// Generate in the cooldown retry policy and reports its stalls through the
// progress sink (attempt and wait only, the run context belongs to the queue).
// WaitForIdle returns immediately because the API call is synchronous.
type Submitter struct {
	client *Client
	cfg    config.CooldownConfig
	sink   progress.Sink
	log    *zap.Logger
}

// NewSubmitter wires a client to the cooldown policy in cfg.
func NewSubmitter(client *Client, cfg config.CooldownConfig, sink progress.Sink, logger *zap.Logger) *Submitter {
	if sink == nil {
		sink = progress.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{
		client: client,
		cfg:    cfg,
		sink:   sink,
		log:    logger.Named("api_submitter"),
	}
}

// Send generates images for one prompt, waiting out rate limits per the
// configured cooldown policy.
func (s *Submitter) Send(ctx context.Context, prompt string) error {
	res, err := cooldown.Do(ctx, func(ctx context.Context, attempt int) (*Result, error) {
		return s.client.Generate(ctx, prompt)
	}, s.options())
	if err != nil {
		return err
	}

	s.log.Debug("Prompt accepted by the generation API.",
		zap.Int("images", len(res.Images)))
	return nil
}

// WaitForIdle is a no-op beyond honoring an already-cancelled context.
func (s *Submitter) WaitForIdle(ctx context.Context) error {
	return ctx.Err()
}

func (s *Submitter) options() cooldown.Options[*Result] {
	opts := cooldown.DefaultOptions[*Result]()
	if s.cfg.BaseDelay > 0 {
		opts.BaseDelayMs = float64(s.cfg.BaseDelay.Milliseconds())
	}
	opts.JitterMinMs = float64(s.cfg.JitterMin.Milliseconds())
	opts.JitterMaxMs = float64(s.cfg.JitterMax.Milliseconds())
	if s.cfg.MaxAttempts > 0 {
		opts.MaxAttempts = s.cfg.MaxAttempts
	}
	opts.Logger = s.log
	opts.OnCooldown = func(ev cooldown.Event) {
		s.sink.Post(schemas.ProgressEvent{
			Phase:   schemas.PhaseWaiting,
			Attempt: ev.Attempt,
			WaitMs:  ev.Wait.Milliseconds(),
			At:      time.Now().UTC(),
		})
	}
	return opts
}
