// File: cmd/promptq/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/hexhaunt/promptq-cli/cmd"
	"github.com/hexhaunt/promptq-cli/internal/observability"
)

func main() {
	// SIGINT and SIGTERM cancel the command context; commands unwind their
	// own teardown before Execute returns.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := cmd.Execute(ctx)
	stop()
	observability.Sync()

	if err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
}
