// Package ledger defines the incentive contract the coordinator drives: task
// lifecycle, score recording, the reverse auction, reward bookkeeping, the
// round commitment and the round counter.
package ledger

import (
	"context"

	"fedauction/internal/auction"
	"fedauction/internal/commitment"
	"fedauction/internal/scoring"

	"github.com/shopspring/decimal"
)

type TaskParams struct {
	Stake         decimal.Decimal `json:"stake"`
	ModelURI      string          `json:"model_uri"`
	Rounds        uint64          `json:"rounds"`
	CommitteeSize int             `json:"committee_size"`
	Rule          string          `json:"rule,omitempty"`

	// Budget is paid out per round. Zero means Stake / Rounds.
	Budget decimal.Decimal `json:"budget"`
}

// Ledger is the coordinator's view of the incentive contract. Rounds are
// 0-based; Round returns the round scores and auctions currently apply to.
type Ledger interface {
	Deploy(ctx context.Context) (string, error)
	InitializeTask(ctx context.Context, p TaskParams) error
	Join(ctx context.Context, address string) error
	StartTask(ctx context.Context) (int, error)

	SubmitScores(ctx context.Context, round uint64, evaluator int, v scoring.ScoreVector) error
	// ScoreMatrix returns one row per joined worker, nil where no vector was
	// recorded.
	ScoreMatrix(ctx context.Context, round uint64) ([]scoring.ScoreVector, error)

	ReverseAuction(ctx context.Context, req auction.Request) error
	// WorkerScores returns the candidates of the current round's auction.
	WorkerScores(ctx context.Context) ([]auction.Entry, error)
	Committee(ctx context.Context) ([]auction.Entry, error)
	DistributeRewards(ctx context.Context) ([]auction.Allocation, error)

	VerifyRound(ctx context.Context, h commitment.Hash) (bool, error)
	NextRound(ctx context.Context) (uint64, error)
	Round(ctx context.Context) (uint64, error)
	Balances(ctx context.Context) (map[string]decimal.Decimal, error)
}
