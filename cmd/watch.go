// File: cmd/watch.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hpcloud/tail"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hexhaunt/promptq-cli/api/schemas"
	"github.com/hexhaunt/promptq-cli/internal/observability"
	"github.com/hexhaunt/promptq-cli/internal/progress"
)

func newWatchCmd() *cobra.Command {
	var fromStart bool

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the progress log and render events",
		Long: `Watch tails the JSONL progress log written by run and serve, rendering
each event the way the console progress display does. It keeps following the
file until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if cfg.Progress.LogFile == "" {
				return fmt.Errorf("no progress log configured (set progress.log_file)")
			}
			path, err := expandPath(cfg.Progress.LogFile)
			if err != nil {
				return err
			}
			return watchProgressLog(ctx, path, fromStart, cmd.OutOrStdout(), logger)
		},
	}

	watchCmd.Flags().BoolVar(&fromStart, "from-start", false, "replay the log from the beginning instead of only new events")
	return watchCmd
}

// watchProgressLog follows the JSONL file and renders each event. Lines that
// do not decode are skipped with a warning so a truncated write cannot end
// the watch.
func watchProgressLog(ctx context.Context, path string, fromStart bool, out io.Writer, logger *zap.Logger) error {
	location := &tail.SeekInfo{Whence: io.SeekEnd}
	if fromStart {
		location = nil
	}

	t, err := tail.TailFile(path, tail.Config{
		Location:  location,
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("tailing progress log: %w", err)
	}
	defer t.Cleanup()

	logger.Info("Watching progress log.", zap.String("path", path))
	sink := progress.NewConsoleSink(out)

	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Wait()
			}
			if line.Err != nil {
				logger.Warn("Tail error.", zap.Error(line.Err))
				continue
			}
			if strings.TrimSpace(line.Text) == "" {
				continue
			}
			var ev schemas.ProgressEvent
			if err := json.Unmarshal([]byte(line.Text), &ev); err != nil {
				logger.Warn("Skipping malformed progress line.", zap.Error(err))
				continue
			}
			sink.Post(ev)
		}
	}
}
