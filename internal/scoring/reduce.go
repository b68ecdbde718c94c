package scoring

import (
	"fmt"
	"math"
	"slices"

	"github.com/shopspring/decimal"
)

// Reducer turns a complete score matrix into one overall score per active
// worker. Implementations must only read off-diagonal cells.
type Reducer interface {
	Name() string
	Reduce(m *ScoreMatrix) (map[int]float64, error)
}

func ReducerByName(name string) (Reducer, error) {
	switch name {
	case "", "mean":
		return MeanReducer{}, nil
	case "blockflow":
		return BlockflowReducer{}, nil
	default:
		return nil, fmt.Errorf("scoring: unknown reducer %q", name)
	}
}

// MeanReducer scores each worker with the mean of the scores its peers gave it.
type MeanReducer struct{}

func (MeanReducer) Name() string { return "mean" }

func (MeanReducer) Reduce(m *ScoreMatrix) (map[int]float64, error) {
	out := make(map[int]float64, m.n)
	for j := 0; j < m.n; j++ {
		if !m.active[j] {
			continue
		}
		received := m.Received(j)
		if len(received) == 0 {
			return nil, fmt.Errorf("%w: %d", ErrNoPeerScores, j)
		}
		out[j] = mean(received)
	}
	return out, nil
}

// BlockflowReducer follows the BlockFlow contribution scoring procedure: a
// worker's overall score is the smaller of its scaled median received score
// and its scaled worst evaluation accuracy, so dishonest evaluators are
// penalised as well as poor models.
type BlockflowReducer struct{}

func (BlockflowReducer) Name() string { return "blockflow" }

func (BlockflowReducer) Reduce(m *ScoreMatrix) (map[int]float64, error) {
	medians := make(map[int]float64, m.n)
	maxMedian := 0.0
	for j := 0; j < m.n; j++ {
		if !m.active[j] {
			continue
		}
		received := m.Received(j)
		if len(received) == 0 {
			return nil, fmt.Errorf("%w: %d", ErrNoPeerScores, j)
		}
		medians[j] = median(received)
		maxMedian = math.Max(maxMedian, medians[j])
	}

	// worst transformed evaluation accuracy per evaluator
	worst := make(map[int]float64, m.n)
	maxWorst := 0.0
	for i := 0; i < m.n; i++ {
		if !m.active[i] {
			continue
		}
		d := math.Inf(1)
		for j := 0; j < m.n; j++ {
			s, ok := m.At(i, j)
			if !ok {
				continue
			}
			t := math.Abs(s - medians[j])
			d = math.Min(d, math.Max(0, (0.5-t)/(0.5+t)))
		}
		if math.IsInf(d, 1) {
			d = 0
		}
		worst[i] = d
		maxWorst = math.Max(maxWorst, d)
	}

	out := make(map[int]float64, len(medians))
	for j, med := range medians {
		out[j] = math.Min(scaleBy(med, maxMedian), scaleBy(worst[j], maxWorst))
	}
	return out, nil
}

func scaleBy(v, max float64) float64 {
	if max == 0 {
		return 0
	}
	return v / max
}

// mean sums in decimal so {0.8, 0.4} and {0.7, 0.5} tie exactly, which float
// addition does not guarantee.
func mean(vals []float64) float64 {
	sum := decimal.Zero
	for _, v := range vals {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	return sum.Div(decimal.NewFromInt(int64(len(vals)))).InexactFloat64()
}

func median(vals []float64) float64 {
	s := slices.Clone(vals)
	slices.Sort(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}

// Normalize rescales arr so it sums to sumTo. An all-zero input is returned as is.
func Normalize(arr []float64, sumTo float64) []float64 {
	sum := 0.0
	for _, num := range arr {
		sum += num
	}
	if sum == 0.0 {
		return arr
	}
	newArr := []float64{}
	for _, num := range arr {
		newArr = append(newArr, (num/sum)*sumTo)
	}
	return newArr
}
