package auction

import (
	"math"
	"testing"

	"fedauction/internal/selection"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioTopK() []selection.Candidate {
	return []selection.Candidate{
		{Index: 2, Address: "w2", Score: 0.75},
		{Index: 0, Address: "w0", Score: 0.6},
		{Index: 1, Address: "w1", Score: 0.6},
	}
}

var scenarioBids = map[string]uint64{"w0": 2, "w1": 3, "w2": 1}

func TestBuildRequestScenario(t *testing.T) {
	req, excluded, err := BuildRequest(0, scenarioTopK(), scenarioBids)
	require.NoError(t, err)
	assert.Empty(t, excluded)
	assert.Equal(t, []Entry{
		{Address: "w2", Score: 750, Bid: 1, Position: 0},
		{Address: "w0", Score: 600, Bid: 2, Position: 1},
		{Address: "w1", Score: 600, Bid: 3, Position: 2},
	}, req.Candidates)
	require.NoError(t, req.Validate())
}

func TestBuildRequestExcludesMissingBids(t *testing.T) {
	bids := map[string]uint64{"w0": 2, "w1": 0}
	req, excluded, err := BuildRequest(4, scenarioTopK(), bids)
	require.NoError(t, err)

	assert.Equal(t, uint64(4), req.Round)
	require.Len(t, req.Candidates, 1)
	assert.Equal(t, "w0", req.Candidates[0].Address)
	assert.Equal(t, 0, req.Candidates[0].Position)
	assert.Equal(t, []Exclusion{
		{Address: "w2", Reason: "no bid"},
		{Address: "w1", Reason: "zero bid"},
	}, excluded)

	_, _, err = BuildRequest(0, scenarioTopK(), nil)
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestRequestValidate(t *testing.T) {
	assert.ErrorIs(t, Request{}.Validate(), ErrNoCandidates)

	dup := Request{Candidates: []Entry{
		{Address: "a", Score: 1, Bid: 1, Position: 0},
		{Address: "a", Score: 1, Bid: 1, Position: 1},
	}}
	assert.ErrorIs(t, dup.Validate(), ErrInvalidRequest)

	zero := Request{Candidates: []Entry{{Address: "a", Score: 1, Bid: 0}}}
	assert.ErrorIs(t, zero.Validate(), ErrInvalidRequest)

	big := Request{Candidates: []Entry{{Address: "a", Score: 1001, Bid: 1}}}
	assert.ErrorIs(t, big.Validate(), ErrInvalidRequest)
}

func TestGreedyScenario(t *testing.T) {
	req, _, err := BuildRequest(0, scenarioTopK(), scenarioBids)
	require.NoError(t, err)

	res, err := (&GreedyEngine{MaxCommittee: 1}).Run(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"w2"}, res.Addresses())

	res, err = (&GreedyEngine{MaxCommittee: 2}).Run(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"w2", "w0"}, res.Addresses())
	assert.Equal(t, uint64(3), res.Cost)
	assert.Equal(t, int64(1350), res.Quality)

	// a budget of 4 cannot fit w1 after w2 and w0
	res, err = (&GreedyEngine{Budget: 4}).Run(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"w2", "w0"}, res.Addresses())

	res, err = (&GreedyEngine{}).Run(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"w2", "w0", "w1"}, res.Addresses())
}

func TestGreedySkipsUnaffordableAndWorthless(t *testing.T) {
	req := Request{Candidates: []Entry{
		{Address: "pricey", Score: 900, Bid: 10, Position: 0},
		{Address: "zero", Score: 0, Bid: 1, Position: 1},
		{Address: "cheap", Score: 300, Bid: 2, Position: 2},
	}}
	res, err := (&GreedyEngine{Budget: 5}).Run(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"cheap"}, res.Addresses())
}

func TestCompareDensityTieBreaks(t *testing.T) {
	a := Entry{Address: "a", Score: 600, Bid: 2, Position: 1}
	b := Entry{Address: "b", Score: 300, Bid: 1, Position: 0}
	// equal density, higher score first
	assert.Negative(t, compareDensity(a, b))

	c := Entry{Address: "c", Score: 600, Bid: 2, Position: 2}
	assert.Negative(t, compareDensity(a, c))
	assert.Zero(t, compareDensity(a, a))

	huge := Entry{Address: "h", Score: 1000, Bid: math.MaxUint64, Position: 3}
	assert.Positive(t, compareDensity(huge, b))
}

func TestKnapsackFindsOptimum(t *testing.T) {
	// greedy by density takes a and b, then cannot fit c; the optimum is b+c
	req := Request{Candidates: []Entry{
		{Address: "a", Score: 500, Bid: 3, Position: 0},
		{Address: "b", Score: 600, Bid: 4, Position: 1},
		{Address: "c", Score: 550, Bid: 4, Position: 2},
	}}
	greedy, err := (&GreedyEngine{Budget: 8}).Run(req)
	require.NoError(t, err)
	assert.Equal(t, int64(1100), greedy.Quality)

	res, err := (&KnapsackEngine{Budget: 8}).Run(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, res.Addresses())
	assert.Equal(t, int64(1150), res.Quality)
	assert.Equal(t, uint64(8), res.Cost)
}

func TestKnapsackCommitteeSizeAndTies(t *testing.T) {
	req := Request{Candidates: []Entry{
		{Address: "a", Score: 500, Bid: 2, Position: 0},
		{Address: "b", Score: 500, Bid: 1, Position: 1},
		{Address: "c", Score: 500, Bid: 1, Position: 2},
	}}
	// one seat, equal quality: the cheaper, then the earlier one
	res, err := (&KnapsackEngine{MaxCommittee: 1, Budget: 10}).Run(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, res.Addresses())

	res, err = (&KnapsackEngine{MaxCommittee: 2, Budget: 10}).Run(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, res.Addresses())
	assert.Equal(t, uint64(2), res.Cost)
}

func TestKnapsackScenarioAndLimits(t *testing.T) {
	req, _, err := BuildRequest(0, scenarioTopK(), scenarioBids)
	require.NoError(t, err)

	res, err := (&KnapsackEngine{MaxCommittee: 1}).Run(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"w2"}, res.Addresses())

	// budgets beyond the total of all bids size the table by that total
	for _, budget := range []uint64{MaxKnapsackCells, 10_000_000_000_000_000_000, math.MaxUint64} {
		res, err = (&KnapsackEngine{MaxCommittee: 1, Budget: budget}).Run(req)
		require.NoError(t, err)
		assert.Equal(t, []string{"w2"}, res.Addresses())
	}

	huge := Request{Candidates: []Entry{
		{Address: "a", Score: 500, Bid: MaxKnapsackCells, Position: 0},
		{Address: "b", Score: 400, Bid: math.MaxUint64, Position: 1},
	}}
	_, err = (&KnapsackEngine{}).Run(huge)
	assert.ErrorIs(t, err, ErrBudgetTooLarge)
}

func TestEngineFor(t *testing.T) {
	e, err := EngineFor("", 1, 0)
	require.NoError(t, err)
	assert.IsType(t, &GreedyEngine{}, e)
	e, err = EngineFor(RuleKnapsack, 1, 10)
	require.NoError(t, err)
	assert.IsType(t, &KnapsackEngine{}, e)
	_, err = EngineFor("vickrey", 1, 0)
	assert.ErrorIs(t, err, ErrUnknownRule)
}

func TestValidateCommittee(t *testing.T) {
	require.NoError(t, ValidateCommittee([]string{"w2", "w1"}, scenarioTopK()))
	assert.ErrorIs(t, ValidateCommittee([]string{"w2", "w9"}, scenarioTopK()), ErrIneligibleWinner)
}

func TestSettle(t *testing.T) {
	res := Result{
		Winners: []Entry{
			{Address: "w2", Score: 750, Bid: 1, Position: 0},
			{Address: "w0", Score: 600, Bid: 2, Position: 1},
		},
		Cost:    3,
		Quality: 1350,
	}
	allocs, err := Settle(res, decimal.NewFromInt(103))
	require.NoError(t, err)
	require.Len(t, allocs, 2)

	// surplus 100 split 750:600 -> 55 and 44, one unit of dust to the first
	assert.Equal(t, "57", allocs[0].Reward.String())
	assert.Equal(t, "46", allocs[1].Reward.String())
	total := allocs[0].Reward.Add(allocs[1].Reward)
	assert.True(t, total.Equal(decimal.NewFromInt(103)))
	for _, a := range allocs {
		assert.True(t, a.Reward.GreaterThanOrEqual(decimal.NewFromUint64(a.Bid)))
	}

	_, err = Settle(res, decimal.NewFromInt(2))
	assert.ErrorIs(t, err, ErrInsufficientPool)

	none, err := Settle(Result{}, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestScaleScoreGrid(t *testing.T) {
	assert.Equal(t, int64(750), ScaleScore(0.75))
	assert.Equal(t, int64(600), ScaleScore(0.6))
	assert.Equal(t, int64(0), ScaleScore(0))
	assert.Equal(t, int64(1000), ScaleScore(1))

	prev := ScaleScore(0)
	for i := 1; i <= 100000; i++ {
		cur := ScaleScore(float64(i) / 100000)
		require.LessOrEqual(t, prev, cur)
		prev = cur
	}
}

func FuzzScaleScoreOrder(f *testing.F) {
	f.Add(0.6, 0.6000000000000001)
	f.Add(0.0005, 0.0004999)
	f.Add(0.0, 1.0)
	f.Fuzz(func(t *testing.T, s1, s2 float64) {
		if math.IsNaN(s1) || math.IsNaN(s2) || s1 < 0 || s1 > 1 || s2 < 0 || s2 > 1 {
			t.Skip()
		}
		if s1 > s2 {
			s1, s2 = s2, s1
		}
		a, b := ScaleScore(s1), ScaleScore(s2)
		if a > b {
			t.Fatalf("scaling inverted %v < %v into %d > %d", s1, s2, a, b)
		}
		if a < 0 || b > ScoreScale {
			t.Fatalf("scaled scores %d, %d outside [0, %d]", a, b, ScoreScale)
		}
	})
}
