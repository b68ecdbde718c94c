package scoring

import (
	"fmt"
	"sync"
)

// ScoreMatrix holds cell (evaluator, evaluated). Rows of abstaining
// evaluators are empty and their columns are never reduced.
type ScoreMatrix struct {
	n      int
	active []bool
	cells  []ScoreVector
}

func (m *ScoreMatrix) Size() int {
	return m.n
}

func (m *ScoreMatrix) Active(i int) bool {
	return m.active[i]
}

// At returns the score evaluator gave evaluated. The diagonal is always absent.
func (m *ScoreMatrix) At(evaluator, evaluated int) (float64, bool) {
	if evaluator == evaluated || !m.active[evaluator] {
		return 0, false
	}
	s := m.cells[evaluator][evaluated]
	return s.Value, s.Present
}

// Received returns the scores worker j received from active peers in
// evaluator order. The self entry is never included.
func (m *ScoreMatrix) Received(j int) []float64 {
	out := make([]float64, 0, m.n-1)
	for i := 0; i < m.n; i++ {
		if v, ok := m.At(i, j); ok {
			out = append(out, v)
		}
	}
	return out
}

// Row returns a copy of what evaluator i submitted.
func (m *ScoreMatrix) Row(i int) ScoreVector {
	out := make(ScoreVector, len(m.cells[i]))
	copy(out, m.cells[i])
	return out
}

// Aggregator collects exactly one score vector per active worker for a round.
type Aggregator struct {
	mu        sync.Mutex
	n         int
	active    []bool
	submitted []bool
	cells     []ScoreVector
}

// NewAggregator expects submissions from every worker i with active[i] set.
// A nil active slice marks all n workers active.
func NewAggregator(n int, active []bool) *Aggregator {
	if active == nil {
		active = make([]bool, n)
		for i := range active {
			active[i] = true
		}
	}
	a := &Aggregator{
		n:         n,
		active:    append([]bool(nil), active...),
		submitted: make([]bool, n),
		cells:     make([]ScoreVector, n),
	}
	return a
}

func (a *Aggregator) Submit(evaluator int, v ScoreVector) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if evaluator < 0 || evaluator >= a.n || !a.active[evaluator] {
		return fmt.Errorf("%w: %d", ErrUnknownEvaluator, evaluator)
	}
	if a.submitted[evaluator] {
		return fmt.Errorf("%w: evaluator %d", ErrDuplicateSubmission, evaluator)
	}
	if err := v.Validate(evaluator, a.n); err != nil {
		return err
	}
	row := make(ScoreVector, a.n)
	for j, s := range v {
		// scores given to abstaining peers are dropped
		if !a.active[j] {
			continue
		}
		if j != evaluator && !s.Present {
			return fmt.Errorf("%w: evaluator %d left out active worker %d", ErrIncompleteMatrix, evaluator, j)
		}
		row[j] = s
	}
	a.cells[evaluator] = row
	a.submitted[evaluator] = true
	return nil
}

// Missing lists active evaluators that have not submitted yet.
func (a *Aggregator) Missing() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	var missing []int
	for i := 0; i < a.n; i++ {
		if a.active[i] && !a.submitted[i] {
			missing = append(missing, i)
		}
	}
	return missing
}

// Matrix refuses to build while any active evaluator is missing.
func (a *Aggregator) Matrix() (*ScoreMatrix, error) {
	if missing := a.Missing(); len(missing) != 0 {
		return nil, fmt.Errorf("%w: missing evaluators %v", ErrIncompleteMatrix, missing)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	m := &ScoreMatrix{
		n:      a.n,
		active: append([]bool(nil), a.active...),
		cells:  make([]ScoreVector, a.n),
	}
	for i := range a.cells {
		if a.cells[i] == nil {
			m.cells[i] = make(ScoreVector, a.n)
			continue
		}
		m.cells[i] = append(ScoreVector(nil), a.cells[i]...)
	}
	return m, nil
}
