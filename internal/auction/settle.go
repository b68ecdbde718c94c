package auction

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Allocation is the reward owed to one committee member for a round.
type Allocation struct {
	Address string          `json:"address" bson:"address"`
	Bid     uint64          `json:"bid" bson:"bid"`
	Score   int64           `json:"score" bson:"score"`
	Reward  decimal.Decimal `json:"reward" bson:"reward"`
}

// Settle pays every winner its bid plus a share of the unspent pool
// proportional to its scaled score. Shares are floored to whole units and the
// remainder goes to the first winner, so the pool is paid out exactly.
func Settle(res Result, pool decimal.Decimal) ([]Allocation, error) {
	if len(res.Winners) == 0 {
		return nil, nil
	}
	cost := decimal.NewFromUint64(res.Cost)
	if pool.LessThan(cost) {
		return nil, fmt.Errorf("%w: pool %s, cost %s", ErrInsufficientPool, pool, cost)
	}
	surplus := pool.Sub(cost).Floor()

	totalScore := decimal.Zero
	for _, w := range res.Winners {
		totalScore = totalScore.Add(decimal.NewFromInt(w.Score))
	}

	out := make([]Allocation, len(res.Winners))
	paid := decimal.Zero
	for i, w := range res.Winners {
		share := decimal.Zero
		if totalScore.IsPositive() {
			share = surplus.Mul(decimal.NewFromInt(w.Score)).Div(totalScore).Floor()
		}
		paid = paid.Add(share)
		out[i] = Allocation{
			Address: w.Address,
			Bid:     w.Bid,
			Score:   w.Score,
			Reward:  decimal.NewFromUint64(w.Bid).Add(share),
		}
	}
	// Add remaining dust to the first winner
	out[0].Reward = out[0].Reward.Add(surplus.Sub(paid))
	return out, nil
}
