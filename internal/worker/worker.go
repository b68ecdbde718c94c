// Package worker defines the learning component the coordinator drives each
// round.
package worker

import (
	"context"

	"fedauction/internal/ledger"
	"fedauction/internal/scoring"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
)

// ModelDelta maps a parameter name to its values.
type ModelDelta map[string][]float64

func (d ModelDelta) Clone() ModelDelta {
	out := make(ModelDelta, len(d))
	for k, v := range d {
		out[k] = append([]float64(nil), v...)
	}
	return out
}

type Evaluation struct {
	// Averaged is the aggregate the worker applies to its own model.
	Averaged ModelDelta
	// TopK aggregates only the peers the worker ranked highest.
	TopK ModelDelta
	// Scores holds one entry per worker in index order, absent at the
	// worker's own slot.
	Scores scoring.ScoreVector
}

type Worker interface {
	Address() string
	Join(ctx context.Context, l ledger.Ledger) error
	Train(ctx context.Context, round uint64) error
	Evaluate(ctx context.Context, round uint64) (Evaluation, error)
	UpdateModel(ctx context.Context, d ModelDelta) error
}

// Signer is implemented by ledgers that sign requests and can act under
// another key.
type Signer interface {
	WithKeypair(kp signature.KeyringPair) ledger.Ledger
}

// As returns l acting under kp when it supports that, l otherwise.
func As(l ledger.Ledger, kp signature.KeyringPair) ledger.Ledger {
	if s, ok := l.(Signer); ok {
		return s.WithKeypair(kp)
	}
	return l
}
