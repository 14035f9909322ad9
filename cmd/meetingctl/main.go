// Package main is the operator CLI for the meeting pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aura-notes/backend/config"
	"github.com/aura-notes/backend/internal/app"
	"github.com/aura-notes/backend/internal/cli"
	"github.com/aura-notes/backend/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := &cli.Dependencies{
		Out: os.Stdout,
		Connect: func(ctx context.Context) (cli.Backend, error) {
			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			logger := logging.Must(cfg.Log.Level)
			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return nil, err
			}
			return cli.NewAppBackend(a), nil
		},
	}

	if err := cli.NewRootCmd(deps).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
