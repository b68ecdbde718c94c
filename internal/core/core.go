// Package core wires a coordinator run from the loaded dependencies.
package core

import (
	"context"
	"fmt"

	"fedauction/internal/coordinator"
	"fedauction/internal/discord"
	"fedauction/internal/ledger"
	"fedauction/internal/ledger/httpledger"
	"fedauction/internal/ledger/memledger"
	"fedauction/internal/metrics"
	"fedauction/internal/registry"
	"fedauction/internal/setup"
	"fedauction/internal/store"
	"fedauction/internal/worker"
	"fedauction/internal/worker/sim"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/manifold-inc/manifold-sdk/lib/utils"
)

type Core struct {
	Deps        *setup.Dependencies
	Requester   signature.KeyringPair
	Registry    *registry.Registry
	Workers     []*sim.Worker
	Ledger      ledger.Ledger
	Metrics     *metrics.Metrics
	Coordinator *coordinator.Coordinator
}

// CreateCore derives the requester and worker keys, picks the ledger and
// registers the archive and discord round callbacks.
func CreateCore(d *setup.Dependencies) (*Core, error) {
	env := d.Env
	requester, err := signature.KeyringPairFromSecret(env.RequesterKey, env.Network)
	if err != nil {
		return nil, utils.Wrap("failed loading requester key", err)
	}

	reg, err := registry.FromSecrets(env.WorkerKeys, env.WorkerPrices, env.NumEvil, env.Network)
	if err != nil {
		return nil, utils.Wrap("failed building worker registry", err)
	}
	kps := make([]signature.KeyringPair, len(env.WorkerKeys))
	for i, secret := range env.WorkerKeys {
		kps[i], err = signature.KeyringPairFromSecret(secret, env.Network)
		if err != nil {
			return nil, utils.Wrap(fmt.Sprintf("failed loading key for worker %d", i), err)
		}
	}
	cohort, _ := sim.NewCohort(kps, env.NumEvil, env.Seed, env.TopK, d.Log)

	var l ledger.Ledger
	if env.LedgerURL == "" {
		l = memledger.New(requester.Address, d.Log)
		d.Log.Infow("Using in-process ledger", "owner", requester.Address)
	} else {
		l = httpledger.New(httpledger.Config{
			BaseURL:    env.LedgerURL,
			Keypair:    requester,
			Timeout:    env.CallTimeout,
			MaxRetries: uint64(env.LedgerMaxRetries),
			Log:        d.Log,
		})
		d.Log.Infow("Using ledger daemon", "url", env.LedgerURL, "owner", requester.Address)
	}

	workers := make([]worker.Worker, len(cohort))
	for i, w := range cohort {
		workers[i] = w
	}
	m := metrics.New()
	c, err := coordinator.New(coordinator.Params{
		Config:    env.CoordinatorConfig(),
		Ledger:    l,
		Registry:  reg,
		Workers:   workers,
		Requester: requester.Address,
		Log:       d.Log,
		Metrics:   m,
	})
	if err != nil {
		return nil, err
	}

	if d.Mongo != nil {
		c.AddRoundCallback(store.New(d.Mongo, d.Log).Callback())
	}
	if env.DiscordURL != "" {
		c.AddRoundCallback(func(r coordinator.RoundReport) {
			if err := discord.LogRoundToDiscord(env.DiscordURL, r); err != nil {
				d.Log.Warnw("Failed posting round to discord", "error", err)
			}
		})
	}

	return &Core{
		Deps:        d,
		Requester:   requester,
		Registry:    reg,
		Workers:     cohort,
		Ledger:      l,
		Metrics:     m,
		Coordinator: c,
	}, nil
}

// Run serves metrics when configured and runs every round.
func (c *Core) Run(ctx context.Context) ([]coordinator.RoundReport, error) {
	if addr := c.Deps.Env.MetricsAddr; addr != "" {
		c.Metrics.Serve(ctx, addr, c.Deps.Log)
	}
	c.Deps.Log.Infow("Starting run",
		"run", c.Coordinator.RunID(),
		"workers", c.Registry.Len(),
		"evil", c.Deps.Env.NumEvil,
		"rounds", c.Deps.Env.Rounds,
	)
	reports, err := c.Coordinator.Run(ctx)
	if err != nil {
		return reports, err
	}

	balances, err := c.Ledger.Balances(ctx)
	if err != nil {
		c.Deps.Log.Warnw("Failed reading balances", "error", err)
		return reports, nil
	}
	for _, w := range c.Registry.Workers() {
		c.Deps.Log.Infow("Final balance", "worker", w.Address, "honest", w.Honest, "bid", w.Bid, "balance", balances[w.Address].String())
	}
	return reports, nil
}
