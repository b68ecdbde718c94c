// Package coordinator drives the workers and the ledger through each round:
// train, evaluate, aggregate, select, auction, distribute, verify and
// advance.
package coordinator

import (
	"context"
	"fmt"

	"fedauction/internal/ledger"
	"fedauction/internal/metrics"
	"fedauction/internal/nonce"
	"fedauction/internal/registry"
	"fedauction/internal/scoring"
	"fedauction/internal/worker"

	"go.uber.org/zap"
)

type Params struct {
	Config   Config
	Ledger   ledger.Ledger
	Registry *registry.Registry
	// Workers are index aligned with Registry.
	Workers []worker.Worker
	// Requester is the task owner's address; it seeds the run id.
	Requester string
	Log       *zap.SugaredLogger
	Metrics   *metrics.Metrics
}

type Coordinator struct {
	cfg       Config
	ledger    ledger.Ledger
	registry  *registry.Registry
	workers   []worker.Worker
	reducer   scoring.Reducer
	log       *zap.SugaredLogger
	metrics   *metrics.Metrics
	callbacks []func(RoundReport)
	runID     string
}

func New(p Params) (*Coordinator, error) {
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("%w: no ledger", ErrSetup)
	}
	if p.Registry == nil || p.Registry.Len() < MinActiveWorkers {
		return nil, fmt.Errorf("%w: need at least %d workers", ErrSetup, MinActiveWorkers)
	}
	if len(p.Workers) != p.Registry.Len() {
		return nil, fmt.Errorf("%w: %d workers for %d registry entries", ErrSetup, len(p.Workers), p.Registry.Len())
	}
	for i, w := range p.Workers {
		if want := p.Registry.At(i).Address; w.Address() != want {
			return nil, fmt.Errorf("%w: worker %d is %s, registry has %s", ErrSetup, i, w.Address(), want)
		}
	}
	reducer, err := scoring.ReducerByName(p.Config.Reducer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	m := p.Metrics
	if m == nil {
		m = metrics.New()
	}
	runID := nonce.NewNonce(p.Requester)
	return &Coordinator{
		cfg:      p.Config,
		ledger:   p.Ledger,
		registry: p.Registry,
		workers:  append([]worker.Worker(nil), p.Workers...),
		reducer:  reducer,
		log:      log.With("run", runID),
		metrics:  m,
		runID:    runID,
	}, nil
}

func (c *Coordinator) RunID() string {
	return c.runID
}

// AddRoundCallback registers f to receive every round report, failed rounds
// included. Callbacks run in registration order on the coordinator's
// goroutine.
func (c *Coordinator) AddRoundCallback(f func(RoundReport)) {
	c.callbacks = append(c.callbacks, f)
}

func (c *Coordinator) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.CallTimeout)
}

// Setup deploys the contract, initializes the task, joins every worker in
// index order and starts the task.
func (c *Coordinator) Setup(ctx context.Context) error {
	callCtx, cancel := c.call(ctx)
	id, err := c.ledger.Deploy(callCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: deploy: %w", ErrSetup, err)
	}
	c.log.Infow("Contract deployed", "contract", id)

	callCtx, cancel = c.call(ctx)
	err = c.ledger.InitializeTask(callCtx, ledger.TaskParams{
		Stake:         c.cfg.Stake,
		ModelURI:      c.cfg.ModelURI,
		Rounds:        c.cfg.Rounds,
		CommitteeSize: c.cfg.CommitteeSize,
		Rule:          c.cfg.AuctionRule,
		Budget:        c.cfg.AuctionBudget,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("%w: initialize task: %w", ErrSetup, err)
	}
	c.log.Infow("Task initialized",
		"stake", c.cfg.Stake.String(),
		"rounds", c.cfg.Rounds,
		"committee_size", c.cfg.CommitteeSize,
		"rule", c.cfg.AuctionRule,
	)

	for _, w := range c.workers {
		callCtx, cancel = c.call(ctx)
		err = w.Join(callCtx, c.ledger)
		cancel()
		if err != nil {
			return fmt.Errorf("%w: join worker %s: %w", ErrSetup, w.Address(), err)
		}
	}

	callCtx, cancel = c.call(ctx)
	n, err := c.ledger.StartTask(callCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: start task: %w", ErrSetup, err)
	}
	if n != len(c.workers) {
		return fmt.Errorf("%w: ledger started with %d workers, registry has %d", ErrSetup, n, len(c.workers))
	}
	c.log.Infow("Task started", "workers", n)
	return nil
}

// Run sets the task up and runs every configured round. It stops at the
// first fatal round error; the reports of all attempted rounds are returned.
func (c *Coordinator) Run(ctx context.Context) ([]RoundReport, error) {
	if err := c.Setup(ctx); err != nil {
		c.log.Errorw("Setup failed", "error", err)
		return nil, err
	}
	reports := make([]RoundReport, 0, c.cfg.Rounds)
	for r := uint64(0); r < c.cfg.Rounds; r++ {
		report, err := c.RunRound(ctx, r)
		reports = append(reports, report)
		if err != nil {
			c.log.Errorw("Round failed", "round", r, "phase", report.FailedPhase, "error", err)
			return reports, err
		}
	}
	c.log.Infow("Run complete", "rounds", len(reports))
	return reports, nil
}
