package coordinator

import (
	"errors"
	"fmt"
)

var (
	ErrSetup                = errors.New("coordinator: setup failed")
	ErrTrain                = errors.New("coordinator: training failed")
	ErrEvaluate             = errors.New("coordinator: evaluation failed")
	ErrAggregation          = errors.New("coordinator: score aggregation failed")
	ErrAuction              = errors.New("coordinator: auction failed")
	ErrVerificationMismatch = errors.New("coordinator: round commitment does not match ledger")
	ErrQuorum               = errors.New("coordinator: fewer than two active workers")
)

// RoundError identifies the round and phase a fatal error stopped.
type RoundError struct {
	Round uint64
	Phase Phase
	Err   error
}

func (e *RoundError) Error() string {
	return fmt.Sprintf("round %d %s: %v", e.Round, e.Phase, e.Err)
}

func (e *RoundError) Unwrap() error {
	return e.Err
}
