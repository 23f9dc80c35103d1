// Command ddbtk reads and manages a DynamoDB table described by a YAML model
// file.
//
//	ddbtk --model model.yaml create-table
//	ddbtk --model model.yaml get User --key '{"id":"42"}'
//	ddbtk --model model.yaml query User Order --partition USER#42 --range-op beginsWith --range-value ORDER#
//	ddbtk --model model.yaml scan --options '{"limit":10,"noEntityMatchBehavior":"DISCARD"}'
//
// Settings come from flags, then DDBTK_* environment variables, which may be
// kept in a .env file.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		slog.Error("ddbtk failed", "err", err)
		os.Exit(1)
	}
}
