// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hexhaunt/promptq-cli/internal/browser"
	"github.com/hexhaunt/promptq-cli/internal/config"
	"github.com/hexhaunt/promptq-cli/internal/observability"
	"github.com/hexhaunt/promptq-cli/internal/progress"
	"github.com/hexhaunt/promptq-cli/internal/queue"
)

// browserShutdownTimeout bounds teardown so a wedged Chrome cannot hang
// process exit.
const browserShutdownTimeout = 15 * time.Second

func newRunCmd() *cobra.Command {
	var (
		fromFile   string
		sequenceID string
		backend    string
		target     string
	)

	runCmd := &cobra.Command{
		Use:   "run [prompts...]",
		Short: "Queue prompts and submit them one at a time",
		Long: `Run submits each prompt in order, waiting for the interface to finish
responding before sending the next. Prompts come from positional arguments,
from a file with one prompt per line (blank lines and #-comments are
ignored), or from a stored sequence.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if target != "" {
				cfg.Browser.TargetURL = target
			}

			prompts, err := collectPrompts(ctx, cfg, args, fromFile, sequenceID, logger)
			if err != nil {
				return err
			}
			if len(prompts) == 0 {
				return queue.ErrNoPrompts
			}

			return runQueue(ctx, cfg, prompts, backend, cmd.OutOrStdout(), logger)
		},
	}

	runCmd.Flags().StringVarP(&fromFile, "file", "f", "", "read prompts from a file, one per line (- for stdin)")
	runCmd.Flags().StringVarP(&sequenceID, "sequence", "s", "", "queue the prompts of a stored sequence")
	runCmd.Flags().StringVarP(&backend, "backend", "b", backendUI, "submission backend: ui (browser) or api (direct)")
	runCmd.Flags().StringVarP(&target, "target", "t", "", "URL of the page to drive (overrides browser.target_url)")
	return runCmd
}

// runQueue assembles the chosen backend and drives the prompts through it.
func runQueue(ctx context.Context, cfg *config.Config, prompts []string, backend string, out io.Writer, logger *zap.Logger) error {
	sink := progress.Sink(progress.NewConsoleSink(out))
	fileSink, err := openProgressLog(cfg.Progress, logger)
	if err != nil {
		return err
	}
	if fileSink != nil {
		defer fileSink.Close()
		sink = progress.Multi(sink, fileSink)
	}

	var submitter queue.Submitter
	switch backend {
	case backendUI:
		if cfg.Browser.TargetURL == "" {
			return fmt.Errorf("no target URL configured (set browser.target_url or pass --target)")
		}
		manager := browser.NewManager(cfg.Browser, logger)
		defer shutdownBrowser(manager, logger)

		session, err := manager.NewSession(ctx)
		if err != nil {
			return fmt.Errorf("starting browser: %w", err)
		}
		defer session.Close()

		if err := session.Navigate(ctx, cfg.Browser.TargetURL); err != nil {
			return err
		}
		submitter = newUISubmitter(session, cfg, logger)
	case backendAPI:
		submitter, err = newAPISubmitter(cfg, sink, logger)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", backend, backendUI, backendAPI)
	}

	proc := queue.NewProcessor(submitter, sink, cfg.Queue, logger)
	if err := proc.Run(ctx, prompts); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Run aborted by signal.")
		}
		return err
	}

	logger.Info("All prompts completed.", zap.Int("count", len(prompts)))
	return nil
}

func shutdownBrowser(manager *browser.Manager, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), browserShutdownTimeout)
	defer cancel()
	if err := manager.Shutdown(ctx); err != nil {
		logger.Warn("Browser shutdown reported an error.", zap.Error(err))
	}
}
