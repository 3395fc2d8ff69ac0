// Command donsim runs synthetic workloads and scripted scenarios against the
// donsched scheduler.
//
// Subcommands:
//   - run: simulate threads contending for locks and print a report.
//   - scenarios: list or run the built-in scenarios.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
