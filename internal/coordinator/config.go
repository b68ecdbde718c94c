package coordinator

import (
	"fmt"
	"time"

	"fedauction/internal/auction"
	"fedauction/internal/commitment"
	"fedauction/internal/scoring"

	"github.com/shopspring/decimal"
)

type FailurePolicy string

const (
	// Isolate marks a failing worker as abstaining for the rest of the round.
	Isolate FailurePolicy = "isolate"
	// Abort stops the round on the first worker failure.
	Abort FailurePolicy = "abort"
)

// MinActiveWorkers is the smallest cohort that can still score each other.
const MinActiveWorkers = 2

type Config struct {
	Rounds        uint64
	TopK          int
	CommitteeSize int
	Stake         decimal.Decimal
	ModelURI      string
	AuctionRule   string
	// AuctionBudget is paid out per round; zero leaves Stake/Rounds.
	AuctionBudget decimal.Decimal
	Reducer       string
	FailurePolicy FailurePolicy
	Parallel      bool

	// HaltOnMismatch fails the round on a commitment mismatch. Verification
	// runs after distribution, so a halted round keeps its payout and is not
	// advanced.
	HaltOnMismatch bool
	CallTimeout    time.Duration
	CommitTimeout  time.Duration
}

func DefaultConfig() Config {
	stake, _ := decimal.NewFromString("10000000000000000000")
	return Config{
		Rounds:        1,
		CommitteeSize: 1,
		Stake:         stake,
		AuctionRule:   auction.RuleGreedy,
		Reducer:       "mean",
		FailurePolicy: Isolate,
		Parallel:      true,
		CallTimeout:   30 * time.Second,
		CommitTimeout: 2 * time.Minute,
	}
}

func (c Config) Validate() error {
	if c.Rounds == 0 || c.Rounds > commitment.MaxRounds {
		return fmt.Errorf("%w: rounds must be within [1, %d], got %d", ErrSetup, commitment.MaxRounds, c.Rounds)
	}
	if c.CommitteeSize < 1 {
		return fmt.Errorf("%w: committee size must be at least 1", ErrSetup)
	}
	if c.TopK < 0 {
		return fmt.Errorf("%w: top-k must not be negative", ErrSetup)
	}
	if !c.Stake.IsPositive() {
		return fmt.Errorf("%w: stake must be positive", ErrSetup)
	}
	if c.AuctionBudget.IsNegative() {
		return fmt.Errorf("%w: auction budget must not be negative", ErrSetup)
	}
	if _, err := auction.EngineFor(c.AuctionRule, c.CommitteeSize, 0); err != nil {
		return fmt.Errorf("%w: %w", ErrSetup, err)
	}
	if _, err := scoring.ReducerByName(c.Reducer); err != nil {
		return fmt.Errorf("%w: %w", ErrSetup, err)
	}
	switch c.FailurePolicy {
	case Isolate, Abort:
	default:
		return fmt.Errorf("%w: unknown failure policy %q", ErrSetup, c.FailurePolicy)
	}
	if c.CallTimeout <= 0 || c.CommitTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrSetup)
	}
	return nil
}
