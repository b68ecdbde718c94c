package auction

import (
	"fmt"
	"math"
	"math/bits"
	"slices"
)

// MaxKnapsackCells bounds the exact selection table
// (candidates x committee slots x budget units).
const MaxKnapsackCells = 1 << 24

// Rule names accepted by EngineFor.
const (
	RuleGreedy   = "greedy"
	RuleKnapsack = "knapsack"
)

// Result is the winning committee in top-k order.
type Result struct {
	Winners []Entry `json:"winners" bson:"winners"`
	Cost    uint64  `json:"cost" bson:"cost"`
	Quality int64   `json:"quality" bson:"quality"`
}

func (r Result) Addresses() []string {
	out := make([]string, len(r.Winners))
	for i, w := range r.Winners {
		out[i] = w.Address
	}
	return out
}

// Engine selects a committee. maxCommittee <= 0 means no size limit and
// budget == 0 means no cost limit.
type Engine interface {
	Run(req Request) (Result, error)
}

func EngineFor(rule string, maxCommittee int, budget uint64) (Engine, error) {
	switch rule {
	case "", RuleGreedy:
		return &GreedyEngine{MaxCommittee: maxCommittee, Budget: budget}, nil
	case RuleKnapsack:
		return &KnapsackEngine{MaxCommittee: maxCommittee, Budget: budget}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRule, rule)
	}
}

// GreedyEngine admits candidates in order of quality per unit cost while the
// committee size and budget allow.
type GreedyEngine struct {
	MaxCommittee int
	Budget       uint64
}

func (e *GreedyEngine) Run(req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	sorted := slices.Clone(req.Candidates)
	slices.SortFunc(sorted, compareDensity)

	var res Result
	for _, c := range sorted {
		if e.MaxCommittee > 0 && len(res.Winners) >= e.MaxCommittee {
			break
		}
		if c.Score == 0 {
			continue
		}
		if e.Budget != 0 && e.Budget-res.Cost < c.Bid {
			continue
		}
		res.Winners = append(res.Winners, c)
		res.Cost += c.Bid
		res.Quality += c.Score
	}
	slices.SortFunc(res.Winners, byPosition)
	return res, nil
}

// compareDensity orders by score/bid descending, compared exactly by cross
// multiplication, then higher score, lower bid and earlier position.
func compareDensity(a, b Entry) int {
	ahi, alo := bits.Mul64(uint64(a.Score), b.Bid)
	bhi, blo := bits.Mul64(uint64(b.Score), a.Bid)
	switch {
	case ahi != bhi:
		if ahi > bhi {
			return -1
		}
		return 1
	case alo != blo:
		if alo > blo {
			return -1
		}
		return 1
	case a.Score != b.Score:
		if a.Score > b.Score {
			return -1
		}
		return 1
	case a.Bid != b.Bid:
		if a.Bid < b.Bid {
			return -1
		}
		return 1
	}
	return a.Position - b.Position
}

func byPosition(a, b Entry) int {
	return a.Position - b.Position
}

// KnapsackEngine picks the committee with the highest total quality whose
// bids fit the budget, using dynamic programming over (size, cost). Among
// equal quality it prefers the cheaper, then the smaller committee, then
// earlier candidates.
type KnapsackEngine struct {
	MaxCommittee int
	Budget       uint64
}

func (e *KnapsackEngine) Run(req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	// a budget above the sum of all bids constrains nothing
	var total uint64
	for _, c := range req.Candidates {
		sum, carry := bits.Add64(total, c.Bid, 0)
		if carry != 0 {
			total = math.MaxUint64
			break
		}
		total = sum
	}
	budget := e.Budget
	if budget == 0 || budget > total {
		budget = total
	}

	// Filter out candidates that cannot contribute
	items := make([]Entry, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		if c.Score > 0 && c.Bid <= budget {
			items = append(items, c)
		}
	}
	if len(items) == 0 {
		return Result{}, nil
	}

	size := len(items)
	if e.MaxCommittee > 0 && e.MaxCommittee < size {
		size = e.MaxCommittee
	}
	width := budget + 1
	if budget >= MaxKnapsackCells || uint64(len(items))*uint64(size+1)*width > MaxKnapsackCells {
		return Result{}, fmt.Errorf("%w: %d candidates, committee %d, budget %d", ErrBudgetTooLarge, len(items), size, budget)
	}
	W := int(width)

	// best[c][w]: max quality with exactly c members costing exactly w, -1 if unreachable
	best := make([][]int64, size+1)
	for c := range best {
		best[c] = make([]int64, W)
		for w := range best[c] {
			best[c][w] = -1
		}
	}
	best[0][0] = 0
	take := make([][]bool, len(items))

	for i, it := range items {
		take[i] = make([]bool, (size+1)*W)
		bid := int(it.Bid)
		// Process in reverse to avoid using same item twice
		for c := min(i+1, size); c >= 1; c-- {
			for w := W - 1; w >= bid; w-- {
				prev := best[c-1][w-bid]
				if prev < 0 {
					continue
				}
				if v := prev + it.Score; v > best[c][w] {
					best[c][w] = v
					take[i][c*W+w] = true
				}
			}
		}
	}

	bestC, bestW := 0, 0
	for w := 0; w < W; w++ {
		for c := 0; c <= size; c++ {
			if best[c][w] > best[bestC][bestW] {
				bestC, bestW = c, w
			}
		}
	}

	// Backtrack to find selected items
	var res Result
	c, w := bestC, bestW
	for i := len(items) - 1; i >= 0 && c > 0; i-- {
		if take[i][c*W+w] {
			res.Winners = append(res.Winners, items[i])
			res.Cost += items[i].Bid
			res.Quality += items[i].Score
			c--
			w -= int(items[i].Bid)
		}
	}
	slices.SortFunc(res.Winners, byPosition)
	return res, nil
}
