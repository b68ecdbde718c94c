package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fedauction/internal/ledger/memledger"
	"fedauction/internal/ledger/server"
	"fedauction/internal/metrics"
	"fedauction/internal/setup"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
)

func main() {
	deps := setup.Init()
	network := deps.Env.Network

	kp, err := signature.KeyringPairFromSecret(setup.GetEnvOrPanic("LEDGER_KEY", deps.Log), network)
	if err != nil {
		deps.Log.Fatalw("Failed loading ledger key", "error", err)
	}
	owner := setup.GetEnv("LEDGER_OWNER", "")
	if owner == "" {
		requester, err := signature.KeyringPairFromSecret(deps.Env.RequesterKey, network)
		if err != nil {
			deps.Log.Fatalw("Failed loading requester key", "error", err)
		}
		owner = requester.Address
	}

	l := memledger.New(owner, deps.Log)
	srv := server.NewServer(l, kp.Address, owner, deps.Log, metrics.New())
	deps.Log.Infow("Starting ledger daemon", "address", kp.Address, "owner", owner, "addr", deps.Env.LedgerAddr)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			deps.Log.Errorw("Error during server shutdown", "error", err)
		}
	}()

	if err := srv.Start(deps.Env.LedgerAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		deps.Log.Fatalw("Failed to start server", "error", err)
	}
}
