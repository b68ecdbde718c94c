package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fedauction/internal/auction"
	"fedauction/internal/commitment"
	"fedauction/internal/ledger"
	"fedauction/internal/scoring"
	"fedauction/internal/selection"

	"github.com/hashicorp/go-multierror"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RoundContext carries one round's state from phase to phase.
type RoundContext struct {
	Round   uint64
	Phase   Phase
	Active  []bool
	Vectors []scoring.ScoreVector
	Matrix  *scoring.ScoreMatrix
	Overall map[int]float64
	Report  *RoundReport

	log      *zap.SugaredLogger
	failures *multierror.Error
}

func (rc *RoundContext) activeCount() int {
	n := 0
	for _, a := range rc.Active {
		if a {
			n++
		}
	}
	return n
}

func (c *Coordinator) newRoundContext(round uint64) *RoundContext {
	n := len(c.workers)
	rc := &RoundContext{
		Round:  round,
		Active: make([]bool, n),
		Report: &RoundReport{
			RunID:   c.runID,
			Round:   round,
			Workers: make([]WorkerOutcome, n),
			Started: time.Now(),
		},
		log: c.log.With("round", round),
	}
	for i, w := range c.registry.Workers() {
		rc.Active[i] = true
		rc.Report.Workers[i] = WorkerOutcome{Index: i, Address: w.Address}
	}
	return rc
}

type stage struct {
	phase Phase
	run   func(context.Context, *RoundContext) error
}

// RunRound runs one round and returns its report. A fatal error comes back as
// a *RoundError naming the phase it stopped.
func (c *Coordinator) RunRound(ctx context.Context, round uint64) (RoundReport, error) {
	rc := c.newRoundContext(round)
	rc.log.Infow("Starting round", "workers", len(c.workers))

	err := c.runRound(ctx, rc)

	report := *rc.Report
	report.Duration = time.Since(report.Started)
	var re *RoundError
	if errors.As(err, &re) {
		report.FailedPhase = re.Phase.String()
	}
	if err != nil {
		report.Error = err.Error()
	}
	for _, cb := range c.callbacks {
		cb(report)
	}
	return report, err
}

func (c *Coordinator) runRound(ctx context.Context, rc *RoundContext) error {
	stages := []stage{
		{PhaseTrain, c.train},
		{PhaseEvaluate, c.evaluate},
		{PhaseAggregate, c.aggregate},
		{PhaseSelect, c.selectTopK},
		{PhaseAuction, c.auction},
		{PhaseDistribute, c.distribute},
		{PhaseVerify, c.verify},
		{PhaseAdvance, c.advance},
	}
	for _, s := range stages {
		if s.phase.Commits() {
			// once distribution starts the caller's cancellation no longer
			// applies, only the commit timeout
			if s.phase == PhaseDistribute {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), c.cfg.CommitTimeout)
				defer cancel()
			}
		} else if err := ctx.Err(); err != nil {
			return &RoundError{Round: rc.Round, Phase: s.phase, Err: err}
		}
		if err := c.step(ctx, rc, s); err != nil {
			return err
		}
	}
	c.metrics.RoundsCompleted.Inc()
	rc.log.Infow("Round complete", "duration", time.Since(rc.Report.Started).String())
	return nil
}

func (c *Coordinator) step(ctx context.Context, rc *RoundContext, s stage) error {
	rc.Phase = s.phase
	start := time.Now()
	err := s.run(ctx, rc)
	elapsed := time.Since(start)
	c.metrics.PhaseDuration.WithLabelValues(s.phase.String()).Observe(elapsed.Seconds())
	if err != nil {
		c.metrics.RoundFailures.WithLabelValues(s.phase.String()).Inc()
		return &RoundError{Round: rc.Round, Phase: s.phase, Err: err}
	}
	rc.log.Debugw("Phase complete", "phase", s.phase.String(), "duration", elapsed.String())
	return nil
}

// aggregate rebuilds the matrix from the ledger's record of the round and
// reduces it to overall scores.
func (c *Coordinator) aggregate(ctx context.Context, rc *RoundContext) error {
	callCtx, cancel := c.call(ctx)
	rows, err := c.ledger.ScoreMatrix(callCtx, rc.Round)
	cancel()
	if err != nil {
		return err
	}
	n := len(c.workers)
	if len(rows) != n {
		return fmt.Errorf("%w: ledger holds %d rows for %d workers", ErrAggregation, len(rows), n)
	}

	agg := scoring.NewAggregator(n, rc.Active)
	for i, row := range rows {
		if !rc.Active[i] || row == nil {
			continue
		}
		if err := agg.Submit(i, row); err != nil {
			return fmt.Errorf("%w: %w", ErrAggregation, err)
		}
	}
	m, err := agg.Matrix()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAggregation, err)
	}
	overall, err := c.reducer.Reduce(m)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAggregation, err)
	}
	rc.Matrix = m
	rc.Overall = overall

	// fixed index order keeps the weights reproducible
	idx := make([]int, 0, len(overall))
	vals := make([]float64, 0, len(overall))
	for i := 0; i < n; i++ {
		if s, ok := overall[i]; ok {
			idx = append(idx, i)
			vals = append(vals, s)
		}
	}
	weights := scoring.Normalize(vals, 1)
	rc.Report.Overall = make(map[string]float64, len(idx))
	rc.Report.Weights = make(map[string]float64, len(idx))
	for k, i := range idx {
		addr := c.registry.At(i).Address
		rc.Report.Overall[addr] = vals[k]
		rc.Report.Weights[addr] = weights[k]
		c.metrics.OverallScore.WithLabelValues(addr).Set(vals[k])
	}
	rc.log.Infow("Scores aggregated", "reducer", c.reducer.Name(), "overall", rc.Report.Overall)
	return nil
}

func (c *Coordinator) selectTopK(ctx context.Context, rc *RoundContext) error {
	topK := selection.TopK(c.registry.Addresses(), rc.Overall, c.cfg.TopK)
	if len(topK) == 0 {
		return fmt.Errorf("%w: no ranked workers", ErrAuction)
	}
	rc.Report.TopK = topK
	rc.log.Infow("Top-k selected", "top_k", selection.Addresses(topK))
	return nil
}

func (c *Coordinator) auction(ctx context.Context, rc *RoundContext) error {
	req, excluded, err := auction.BuildRequest(rc.Round, rc.Report.TopK, c.registry.Bids())
	rc.Report.Excluded = excluded
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuction, err)
	}
	rc.Report.Request = req
	for _, e := range excluded {
		rc.log.Warnw("Candidate left out of auction", "worker", e.Address, "reason", e.Reason)
	}

	callCtx, cancel := c.call(ctx)
	defer cancel()
	held := c.ledger.ReverseAuction(callCtx, req)
	if held != nil && !errors.Is(held, ledger.ErrAuctionClosed) {
		return fmt.Errorf("%w: %w", ErrAuction, held)
	}
	recorded, err := c.ledger.WorkerScores(callCtx)
	if err != nil {
		return fmt.Errorf("%w: read worker scores: %w", ErrAuction, err)
	}
	if !sameCandidates(recorded, req.Candidates) {
		if held != nil {
			return fmt.Errorf("%w: %w", ErrAuction, held)
		}
		return fmt.Errorf("%w: ledger recorded %d candidates, sent %d", ErrAuction, len(recorded), len(req.Candidates))
	}
	if held != nil {
		// a retried request landed after the first one was applied
		rc.log.Warnw("Auction was already held with this request", "error", held)
	}
	committee, err := c.ledger.Committee(callCtx)
	if err != nil {
		return fmt.Errorf("%w: read committee: %w", ErrAuction, err)
	}
	addrs := make([]string, len(committee))
	var cost uint64
	for i, e := range committee {
		addrs[i] = e.Address
		cost += e.Bid
	}
	if err := auction.ValidateCommittee(addrs, rc.Report.TopK); err != nil {
		return fmt.Errorf("%w: %w", ErrAuction, err)
	}
	rc.Report.Committee = committee
	c.metrics.CommitteeSize.Set(float64(len(committee)))
	c.metrics.AuctionCost.Set(float64(cost))
	rc.log.Infow("Committee selected", "committee", addrs, "cost", cost)
	return nil
}

func sameCandidates(a, b []auction.Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Address != b[i].Address || a[i].Bid != b[i].Bid || a[i].Score != b[i].Score {
			return false
		}
	}
	return true
}

// distribute pays the committee. When the ledger reports the round as already
// paid, the allocations are rebuilt from the balances the payout moved.
func (c *Coordinator) distribute(ctx context.Context, rc *RoundContext) error {
	callCtx, cancel := c.call(ctx)
	defer cancel()
	before, err := c.ledger.Balances(callCtx)
	if err != nil {
		return fmt.Errorf("read balances: %w", err)
	}
	allocs, err := c.ledger.DistributeRewards(callCtx)
	if errors.Is(err, ledger.ErrAlreadyDistributed) {
		allocs, err = c.paidSince(callCtx, rc, before, err)
	}
	if err != nil {
		return err
	}
	rc.Report.Allocations = allocs
	for _, a := range allocs {
		c.metrics.RewardsPaid.WithLabelValues(a.Address).Add(a.Reward.InexactFloat64())
	}
	return nil
}

// paidSince reports what each committee member received since before. It
// returns cause unchanged when no balance moved.
func (c *Coordinator) paidSince(ctx context.Context, rc *RoundContext, before map[string]decimal.Decimal, cause error) ([]auction.Allocation, error) {
	committee, err := c.ledger.Committee(ctx)
	if err != nil {
		return nil, cause
	}
	after, err := c.ledger.Balances(ctx)
	if err != nil {
		return nil, cause
	}
	allocs := make([]auction.Allocation, 0, len(committee))
	moved := false
	for _, e := range committee {
		reward := after[e.Address].Sub(before[e.Address])
		if !reward.IsZero() {
			moved = true
		}
		allocs = append(allocs, auction.Allocation{Address: e.Address, Bid: e.Bid, Score: e.Score, Reward: reward})
	}
	if !moved {
		return nil, cause
	}
	rc.log.Warnw("Distribution reported an error but rewards were paid", "error", cause)
	return allocs, nil
}

// verify compares the local commitment with the ledger's. A mismatch is
// reported and counted; it stops the round only with HaltOnMismatch.
func (c *Coordinator) verify(ctx context.Context, rc *RoundContext) error {
	h, err := commitment.ForRound(rc.Round)
	if err != nil {
		return err
	}
	rc.Report.Commitment = h.Hex()

	callCtx, cancel := c.call(ctx)
	ok, err := c.ledger.VerifyRound(callCtx, h)
	cancel()
	if err != nil {
		rc.Report.VerifyError = err.Error()
		ok = false
	}
	rc.Report.Verified = ok

	rc.log.Infow("Round summary",
		"committee", rc.Report.CommitteeAddresses(),
		"overall", rc.Report.Overall,
		"allocations", rc.Report.Allocations,
		"commitment", rc.Report.Commitment,
		"verified", ok,
	)
	if ok {
		return nil
	}
	c.metrics.VerificationMismatches.Inc()
	rc.log.Warnw("Round commitment mismatch", "commitment", rc.Report.Commitment, "error", err)
	if c.cfg.HaltOnMismatch {
		rc.log.Errorw("Halting on commitment mismatch, rewards for this round are already paid", "allocations", rc.Report.Allocations)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrVerificationMismatch, err)
		}
		return ErrVerificationMismatch
	}
	return nil
}

// advance moves the ledger to the next round. A failed call is reconciled by
// reading the counter back, since a retried request may have landed twice.
func (c *Coordinator) advance(ctx context.Context, rc *RoundContext) error {
	callCtx, cancel := c.call(ctx)
	defer cancel()
	want := rc.Round + 1
	next, err := c.ledger.NextRound(callCtx)
	if err != nil {
		current, rerr := c.ledger.Round(callCtx)
		if rerr != nil || current != want {
			return err
		}
		rc.log.Warnw("Advance reported an error but the ledger moved on", "error", err, "round", current)
		next = current
	}
	if next != want {
		return fmt.Errorf("ledger advanced to round %d, want %d", next, want)
	}
	rc.Report.Advanced = true
	return nil
}
