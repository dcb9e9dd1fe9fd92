package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/replenishment/cmd/replenish/cli"
	"github.com/odyssey-erp/replenishment/internal/app"
)

func main() {
	if app.InTestMode() {
		fmt.Fprintln(os.Stderr, "test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "replenish:", err)
		os.Exit(1)
	}
}
