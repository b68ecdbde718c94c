package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"fedauction/internal/core"
	"fedauction/internal/setup"
)

func main() {
	if err := run(setup.Init()); err != nil {
		os.Exit(1)
	}
}

// run returns instead of exiting so the mongo client is always disconnected.
func run(deps *setup.Dependencies) error {
	deps.Log.Infof(
		"Starting coordinator with %d workers for %d rounds",
		deps.Env.NumWorkers,
		deps.Env.Rounds,
	)
	if deps.Mongo != nil {
		defer func() {
			if err := deps.Mongo.Disconnect(context.Background()); err != nil {
				deps.Log.Errorw("failed disconnecting from mongo", "error", err)
			}
		}()
	}

	c, err := core.CreateCore(deps)
	if err != nil {
		deps.Log.Errorw("Failed creating coordinator", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if _, err := c.Run(ctx); err != nil {
		deps.Log.Errorw("Run failed", "error", err)
		return err
	}
	return nil
}
