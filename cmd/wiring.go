// File: cmd/wiring.go
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	homedir "github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/hexhaunt/promptq-cli/internal/automation"
	"github.com/hexhaunt/promptq-cli/internal/config"
	"github.com/hexhaunt/promptq-cli/internal/dom"
	"github.com/hexhaunt/promptq-cli/internal/imageapi"
	"github.com/hexhaunt/promptq-cli/internal/progress"
	"github.com/hexhaunt/promptq-cli/internal/sequence"
)

const (
	backendUI  = "ui"
	backendAPI = "api"
)

// locatorTables converts configured matcher overrides into locator tables.
// Empty config lists leave the built-in defaults in place.
func locatorTables(cfg config.LocatorConfig) dom.Tables {
	return dom.Tables{
		Composer: toMatcherList(cfg.Composer),
		Submit:   toMatcherList(cfg.Submit),
		Stop:     toMatcherList(cfg.Stop),
		Busy:     toMatcherList(cfg.Busy),
	}
}

func toMatcherList(entries []config.MatcherConfig) dom.MatcherList {
	if len(entries) == 0 {
		return nil
	}
	list := make(dom.MatcherList, 0, len(entries))
	for _, e := range entries {
		list = append(list, dom.Matcher{Name: e.Name, XPath: e.XPath})
	}
	return list
}

// newUISubmitter assembles the send orchestrator over an open page.
func newUISubmitter(page automation.Page, cfg *config.Config, logger *zap.Logger) *automation.Orchestrator {
	locator := dom.NewLocator(locatorTables(cfg.Locator), logger)
	injector := automation.NewInjector(page, logger)
	detector := automation.NewDetector(page, locator, cfg.Queue, logger)
	return automation.NewOrchestrator(page, locator, injector, detector, cfg.Queue, logger)
}

// newAPISubmitter assembles the direct image-generation backend.
func newAPISubmitter(cfg *config.Config, sink progress.Sink, logger *zap.Logger) (*imageapi.Submitter, error) {
	client, err := imageapi.NewClient(cfg.API, logger)
	if err != nil {
		return nil, fmt.Errorf("building API client: %w", err)
	}
	return imageapi.NewSubmitter(client, cfg.Cooldown, sink, logger), nil
}

// openSequenceStore builds the configured sequence store and a cleanup
// function releasing its resources.
func openSequenceStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (sequence.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.Store.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		store, err := sequence.NewPGStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		cleanup := func() {
			pool.Close()
			logger.Debug("Database connection pool closed.")
		}
		return store, cleanup, nil
	default:
		dir, err := expandPath(cfg.Store.DataDir)
		if err != nil {
			return nil, nil, err
		}
		store, err := sequence.NewFileStore(filepath.Join(dir, "sequences"), logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

// openProgressLog opens the configured JSONL progress sink. A blank path
// disables the durable log and returns nil.
func openProgressLog(cfg config.ProgressConfig, logger *zap.Logger) (*progress.FileSink, error) {
	if cfg.LogFile == "" {
		return nil, nil
	}
	path, err := expandPath(cfg.LogFile)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating progress log directory: %w", err)
	}
	return progress.NewFileSink(path, logger)
}

// expandPath resolves a leading ~ against the user's home directory.
func expandPath(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("expanding path %q: %w", path, err)
	}
	return expanded, nil
}

// collectPrompts resolves the single prompt source for a run: positional
// arguments, a file, or a stored sequence.
func collectPrompts(ctx context.Context, cfg *config.Config, args []string, fromFile, sequenceID string, logger *zap.Logger) ([]string, error) {
	sources := 0
	if len(args) > 0 {
		sources++
	}
	if fromFile != "" {
		sources++
	}
	if sequenceID != "" {
		sources++
	}
	if sources > 1 {
		return nil, fmt.Errorf("choose one prompt source: positional arguments, --file, or --sequence")
	}

	switch {
	case fromFile != "":
		return readPromptFile(fromFile)
	case sequenceID != "":
		store, cleanup, err := openSequenceStore(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		seq, err := store.Get(ctx, sequenceID)
		if err != nil {
			return nil, err
		}
		return seq.Prompts, nil
	default:
		return args, nil
	}
}

// readPromptFile loads prompts one per line. Blank lines and #-comment lines
// are skipped; "-" reads from stdin.
func readPromptFile(path string) ([]string, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening prompt file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var prompts []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		prompts = append(prompts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading prompt file: %w", err)
	}
	return prompts, nil
}
