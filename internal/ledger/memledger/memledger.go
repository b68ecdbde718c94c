// Package memledger is an in-process implementation of the incentive
// contract. It enforces the same rules a deployed contract would and backs
// local runs, tests and the ledger daemon.
package memledger

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"fedauction/internal/auction"
	"fedauction/internal/commitment"
	"fedauction/internal/ledger"
	"fedauction/internal/scoring"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type state int

const (
	undeployed state = iota
	deployed
	initialized
	started
	finished
)

type Ledger struct {
	mu  sync.Mutex
	log *zap.SugaredLogger

	owner string
	id    string
	state state

	params    ledger.TaskParams
	budget    decimal.Decimal
	remaining decimal.Decimal

	workers []string
	index   map[string]int

	round       uint64
	scores      map[uint64][]scoring.ScoreVector
	request     *auction.Request
	result      *auction.Result
	distributed bool
	balances    map[string]decimal.Decimal
}

var _ ledger.Ledger = (*Ledger)(nil)

// New returns an undeployed ledger owned by owner. log may be nil.
func New(owner string, log *zap.SugaredLogger) *Ledger {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Ledger{
		log:      log.With("ledger", "memory"),
		owner:    owner,
		index:    map[string]int{},
		scores:   map[uint64][]scoring.ScoreVector{},
		balances: map[string]decimal.Decimal{},
	}
}

func (l *Ledger) Owner() string {
	return l.owner
}

func (l *Ledger) Deploy(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != undeployed {
		return "", ledger.ErrAlreadyDeployed
	}
	l.id = uuid.New().String()
	l.state = deployed
	l.log.Infow("Contract deployed", "id", l.id, "owner", l.owner)
	return l.id, nil
}

func (l *Ledger) InitializeTask(ctx context.Context, p ledger.TaskParams) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case undeployed:
		return ledger.ErrNotDeployed
	case deployed:
	default:
		return ledger.ErrAlreadyInitialized
	}
	if !p.Stake.IsPositive() {
		return fmt.Errorf("%w: stake must be positive", ledger.ErrInvalidParams)
	}
	if p.Rounds == 0 || p.Rounds > commitment.MaxRounds {
		return fmt.Errorf("%w: rounds must be within [1, %d]", ledger.ErrInvalidParams, commitment.MaxRounds)
	}
	if p.CommitteeSize < 1 {
		return fmt.Errorf("%w: committee size must be at least 1", ledger.ErrInvalidParams)
	}
	if _, err := auction.EngineFor(p.Rule, p.CommitteeSize, 0); err != nil {
		return fmt.Errorf("%w: %w", ledger.ErrInvalidParams, err)
	}
	budget := p.Budget
	if budget.IsNegative() {
		return fmt.Errorf("%w: negative budget", ledger.ErrInvalidParams)
	}
	if budget.IsZero() {
		budget = p.Stake.Div(decimal.NewFromUint64(p.Rounds)).Floor()
	}
	if budget.GreaterThan(p.Stake) {
		return fmt.Errorf("%w: budget %s exceeds stake %s", ledger.ErrInvalidParams, budget, p.Stake)
	}

	l.params = p
	l.budget = budget
	l.remaining = p.Stake
	l.state = initialized
	l.log.Infow("Task initialized",
		"stake", p.Stake.String(),
		"model", p.ModelURI,
		"rounds", p.Rounds,
		"committee_size", p.CommitteeSize,
		"budget", budget.String(),
	)
	return nil
}

func (l *Ledger) Join(ctx context.Context, address string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case undeployed:
		return ledger.ErrNotDeployed
	case deployed:
		return ledger.ErrNotInitialized
	case initialized:
	default:
		return ledger.ErrTaskStarted
	}
	if address == "" {
		return fmt.Errorf("%w: empty address", ledger.ErrUnknownWorker)
	}
	if _, ok := l.index[address]; ok {
		return fmt.Errorf("%w: %s", ledger.ErrAlreadyJoined, address)
	}
	l.index[address] = len(l.workers)
	l.workers = append(l.workers, address)
	l.log.Infow("Worker joined", "worker", address, "index", l.index[address])
	return nil
}

func (l *Ledger) StartTask(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.requireState(initialized); err != nil {
		return 0, err
	}
	if len(l.workers) == 0 {
		return 0, ledger.ErrNoWorkers
	}
	l.state = started
	l.log.Infow("Task started", "workers", len(l.workers))
	return len(l.workers), nil
}

func (l *Ledger) SubmitScores(ctx context.Context, round uint64, evaluator int, v scoring.ScoreVector) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.requireState(started); err != nil {
		return err
	}
	if round != l.round {
		return fmt.Errorf("%w: got %d, current %d", ledger.ErrWrongRound, round, l.round)
	}
	if evaluator < 0 || evaluator >= len(l.workers) {
		return fmt.Errorf("%w: evaluator %d", ledger.ErrUnknownWorker, evaluator)
	}
	if err := v.Validate(evaluator, len(l.workers)); err != nil {
		return fmt.Errorf("%w: %w", ledger.ErrInvalidScores, err)
	}
	rows := l.scores[round]
	if rows == nil {
		rows = make([]scoring.ScoreVector, len(l.workers))
		l.scores[round] = rows
	}
	if rows[evaluator] != nil {
		return fmt.Errorf("%w: evaluator %d round %d", ledger.ErrDuplicateScores, evaluator, round)
	}
	rows[evaluator] = slices.Clone(v)
	return nil
}

func (l *Ledger) ScoreMatrix(ctx context.Context, round uint64) ([]scoring.ScoreVector, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state < started {
		return nil, ledger.ErrNotStarted
	}
	if round > l.round {
		return nil, fmt.Errorf("%w: round %d not reached", ledger.ErrWrongRound, round)
	}
	out := make([]scoring.ScoreVector, len(l.workers))
	for i, row := range l.scores[round] {
		out[i] = slices.Clone(row)
	}
	return out, nil
}

func (l *Ledger) ReverseAuction(ctx context.Context, req auction.Request) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.requireState(started); err != nil {
		return err
	}
	if req.Round != l.round {
		return fmt.Errorf("%w: got %d, current %d", ledger.ErrWrongRound, req.Round, l.round)
	}
	if l.result != nil {
		return ledger.ErrAuctionClosed
	}
	for _, c := range req.Candidates {
		if _, ok := l.index[c.Address]; !ok {
			return fmt.Errorf("%w: %s", ledger.ErrUnknownWorker, c.Address)
		}
	}
	engine, err := auction.EngineFor(l.params.Rule, l.params.CommitteeSize, l.budgetUnits())
	if err != nil {
		return err
	}
	res, err := engine.Run(req)
	if err != nil {
		return err
	}
	stored := req
	stored.Candidates = slices.Clone(req.Candidates)
	l.request = &stored
	l.result = &res
	l.log.Infow("Reverse auction held",
		"round", l.round,
		"candidates", len(req.Candidates),
		"committee", res.Addresses(),
		"cost", res.Cost,
	)
	return nil
}

// budgetUnits clamps the per-round budget to the engine's integer domain.
func (l *Ledger) budgetUnits() uint64 {
	b := l.budget.BigInt()
	if !b.IsUint64() {
		return math.MaxUint64
	}
	return b.Uint64()
}

func (l *Ledger) WorkerScores(ctx context.Context) ([]auction.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.requireState(started); err != nil {
		return nil, err
	}
	if l.request == nil {
		return nil, ledger.ErrNoAuction
	}
	return slices.Clone(l.request.Candidates), nil
}

func (l *Ledger) Committee(ctx context.Context) ([]auction.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.requireState(started); err != nil {
		return nil, err
	}
	if l.result == nil {
		return nil, ledger.ErrNoAuction
	}
	return slices.Clone(l.result.Winners), nil
}

func (l *Ledger) DistributeRewards(ctx context.Context) ([]auction.Allocation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.requireState(started); err != nil {
		return nil, err
	}
	if l.result == nil {
		return nil, ledger.ErrNoAuction
	}
	if l.distributed {
		return nil, ledger.ErrAlreadyDistributed
	}
	pool := decimal.Min(l.budget, l.remaining)
	allocs, err := auction.Settle(*l.result, pool)
	if err != nil {
		return nil, err
	}
	for _, a := range allocs {
		l.balances[a.Address] = l.balances[a.Address].Add(a.Reward)
		l.remaining = l.remaining.Sub(a.Reward)
	}
	l.distributed = true
	l.log.Infow("Rewards distributed",
		"round", l.round,
		"recipients", len(allocs),
		"remaining", l.remaining.String(),
	)
	return allocs, nil
}

func (l *Ledger) VerifyRound(ctx context.Context, h commitment.Hash) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.requireState(started); err != nil {
		return false, err
	}
	return commitment.Verify(l.round, h)
}

func (l *Ledger) NextRound(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.requireState(started); err != nil {
		return 0, err
	}
	if !l.distributed {
		return 0, fmt.Errorf("%w: round %d", ledger.ErrNotDistributed, l.round)
	}
	l.round++
	l.request = nil
	l.result = nil
	l.distributed = false
	if l.round >= l.params.Rounds {
		l.state = finished
		l.log.Infow("Task finished", "rounds", l.round, "remaining", l.remaining.String())
	}
	return l.round, nil
}

func (l *Ledger) Round(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state < started {
		return 0, ledger.ErrNotStarted
	}
	return l.round, nil
}

func (l *Ledger) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(l.balances))
	for k, v := range l.balances {
		out[k] = v
	}
	return out, nil
}

// Remaining is the stake not yet paid out.
func (l *Ledger) Remaining() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remaining
}

// Workers returns joined addresses in join order.
func (l *Ledger) Workers() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.workers)
}

func (l *Ledger) requireState(want state) error {
	if l.state == want {
		return nil
	}
	switch l.state {
	case undeployed:
		return ledger.ErrNotDeployed
	case deployed:
		return ledger.ErrNotInitialized
	case finished:
		return ledger.ErrTaskFinished
	}
	if l.state < want {
		return ledger.ErrNotStarted
	}
	return ledger.ErrTaskStarted
}
