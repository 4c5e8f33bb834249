package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tdh8316/watson/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A second interrupt kills the process instead of waiting for the
	// partial report.
	go func() {
		<-ctx.Done()
		stop()
	}()

	os.Exit(app.Run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}
