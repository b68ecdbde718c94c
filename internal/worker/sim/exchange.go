package sim

import (
	"fmt"
	"slices"
	"sync"
)

// Exchange stands in for the transfer layer: workers publish the model they
// trained each round and read their peers' from it.
type Exchange struct {
	mu     sync.RWMutex
	roster []string
	models map[uint64]map[string][]float64
	dim    int
	target []float64
}

func NewExchange(roster []string, target []float64) *Exchange {
	return &Exchange{
		roster: slices.Clone(roster),
		models: map[uint64]map[string][]float64{},
		dim:    len(target),
		target: slices.Clone(target),
	}
}

func (e *Exchange) Roster() []string {
	return slices.Clone(e.roster)
}

func (e *Exchange) Publish(round uint64, addr string, model []float64) error {
	if len(model) != e.dim {
		return fmt.Errorf("model has %d parameters, want %d", len(model), e.dim)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	byAddr := e.models[round]
	if byAddr == nil {
		byAddr = map[string][]float64{}
		e.models[round] = byAddr
	}
	byAddr[addr] = slices.Clone(model)
	return nil
}

// Fetch returns a copy of addr's model for round, false when it never
// published one.
func (e *Exchange) Fetch(round uint64, addr string) ([]float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.models[round][addr]
	if !ok {
		return nil, false
	}
	return slices.Clone(m), true
}

// Loss is the mean squared distance from the target.
func (e *Exchange) Loss(model []float64) float64 {
	var sum float64
	for i, v := range model {
		d := v - e.target[i]
		sum += d * d
	}
	return sum / float64(e.dim)
}
