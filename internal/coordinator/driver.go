package coordinator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"fedauction/internal/ledger"
	"fedauction/internal/scoring"
	"fedauction/internal/worker"

	"github.com/hashicorp/go-multierror"
)

// ledgerFailure marks a ledger error raised inside a worker pass. It fails the
// round instead of the worker.
type ledgerFailure struct {
	err error
}

func (e *ledgerFailure) Error() string { return e.err.Error() }
func (e *ledgerFailure) Unwrap() error { return e.err }

// forEach runs fn for every active worker and returns the errors by worker
// index. In parallel mode each worker gets its own goroutine and the call
// returns once all of them finish; otherwise workers run in index order and
// an abort policy stops at the first failure.
func (c *Coordinator) forEach(ctx context.Context, rc *RoundContext, fn func(ctx context.Context, i int, w worker.Worker) error) []error {
	errs := make([]error, len(c.workers))
	if !c.cfg.Parallel {
		for i, w := range c.workers {
			if !rc.Active[i] {
				continue
			}
			errs[i] = fn(ctx, i, w)
			if errs[i] != nil && c.cfg.FailurePolicy == Abort {
				break
			}
		}
		return errs
	}

	wg := sync.WaitGroup{}
	for i, w := range c.workers {
		if !rc.Active[i] {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = fn(ctx, i, w)
		}()
	}
	wg.Wait()
	return errs
}

// settle applies the failure policy to a finished pass. Failures are
// examined in index order so the outcome does not depend on scheduling.
func (c *Coordinator) settle(rc *RoundContext, phase Phase, sentinel error, errs []error) error {
	for i, err := range errs {
		if err == nil {
			continue
		}
		var lf *ledgerFailure
		if errors.As(err, &lf) {
			return lf.err
		}
		addr := c.registry.At(i).Address
		c.metrics.WorkerFailures.WithLabelValues(addr, phase.String()).Inc()
		if c.cfg.FailurePolicy == Abort {
			return fmt.Errorf("%w: worker %s: %w", sentinel, addr, err)
		}
		rc.Active[i] = false
		rc.Report.Workers[i].Abstained = true
		rc.Report.Workers[i].Phase = phase.String()
		rc.Report.Workers[i].Error = err.Error()
		rc.failures = multierror.Append(rc.failures, fmt.Errorf("worker %s %s: %w", addr, phase, err))
		rc.log.Warnw("Worker abstains", "worker", addr, "phase", phase.String(), "error", err)
	}
	if n := rc.activeCount(); n < MinActiveWorkers {
		if rc.failures != nil {
			return fmt.Errorf("%w: %d left after %s: %w", ErrQuorum, n, phase, rc.failures)
		}
		return fmt.Errorf("%w: %d left after %s", ErrQuorum, n, phase)
	}
	return nil
}

func (c *Coordinator) train(ctx context.Context, rc *RoundContext) error {
	callCtx, cancel := c.call(ctx)
	current, err := c.ledger.Round(callCtx)
	cancel()
	if err != nil {
		return err
	}
	if current != rc.Round {
		return fmt.Errorf("ledger is at round %d", current)
	}

	errs := c.forEach(ctx, rc, func(ctx context.Context, i int, w worker.Worker) error {
		callCtx, cancel := c.call(ctx)
		defer cancel()
		return w.Train(callCtx, rc.Round)
	})
	return c.settle(rc, PhaseTrain, ErrTrain, errs)
}

// evaluate collects each worker's score vector, applies its averaged model
// and records the vector on the ledger. One goroutine owns a worker for the
// whole sequence, so model updates stay serialized per worker.
func (c *Coordinator) evaluate(ctx context.Context, rc *RoundContext) error {
	n := len(c.workers)
	rc.Vectors = make([]scoring.ScoreVector, n)
	errs := c.forEach(ctx, rc, func(ctx context.Context, i int, w worker.Worker) error {
		callCtx, cancel := c.call(ctx)
		defer cancel()
		ev, err := w.Evaluate(callCtx, rc.Round)
		if err != nil {
			return err
		}
		if err := ev.Scores.Validate(i, n); err != nil {
			return err
		}
		if err := w.UpdateModel(callCtx, ev.Averaged); err != nil {
			return fmt.Errorf("update model: %w", err)
		}

		ledgerCtx, cancelSubmit := c.call(ctx)
		defer cancelSubmit()
		if err := c.ledger.SubmitScores(ledgerCtx, rc.Round, i, ev.Scores); err != nil {
			if !errors.Is(err, ledger.ErrDuplicateScores) || !c.recorded(ledgerCtx, rc.Round, i, ev.Scores) {
				return &ledgerFailure{err: fmt.Errorf("submit scores of %s: %w", w.Address(), err)}
			}
			rc.log.Warnw("Scores were already recorded", "worker", w.Address(), "error", err)
		}
		rc.Vectors[i] = ev.Scores
		return nil
	})
	if err := c.settle(rc, PhaseEvaluate, ErrEvaluate, errs); err != nil {
		return err
	}
	c.metrics.ActiveWorkers.Set(float64(rc.activeCount()))
	return nil
}

// recorded reports whether the ledger already holds v as evaluator's row.
func (c *Coordinator) recorded(ctx context.Context, round uint64, evaluator int, v scoring.ScoreVector) bool {
	rows, err := c.ledger.ScoreMatrix(ctx, round)
	if err != nil || evaluator >= len(rows) {
		return false
	}
	return slices.Equal(rows[evaluator], v)
}
