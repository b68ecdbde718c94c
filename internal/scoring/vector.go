// Package scoring builds the per-round peer score matrix and reduces it to one
// overall score per worker.
package scoring

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrDuplicateSubmission = errors.New("scoring: duplicate score submission")
	ErrUnknownEvaluator    = errors.New("scoring: unknown or abstaining evaluator")
	ErrVectorLength        = errors.New("scoring: score vector has wrong length")
	ErrSelfScore           = errors.New("scoring: score vector contains a self score")
	ErrInvalidScore        = errors.New("scoring: score must be a finite value in [0,1]")
	ErrIncompleteMatrix    = errors.New("scoring: score matrix is incomplete")
	ErrNoPeerScores        = errors.New("scoring: worker received no peer scores")
)

// Score is one evaluator's judgement of one peer. Present is false for the
// evaluator's own slot and for peers it could not judge.
type Score struct {
	Value   float64 `json:"value" bson:"value"`
	Present bool    `json:"present" bson:"present"`
}

func Of(v float64) Score {
	return Score{Value: v, Present: true}
}

func Absent() Score {
	return Score{}
}

type ScoreVector []Score

// NewScoreVector places peer scores around the evaluator's own slot. peers
// must hold one score for every other worker, in index order.
func NewScoreVector(self int, peers []float64) ScoreVector {
	v := make(ScoreVector, 0, len(peers)+1)
	for i, p := range peers {
		if i == self {
			v = append(v, Absent())
		}
		v = append(v, Of(p))
	}
	if self >= len(peers) {
		v = append(v, Absent())
	}
	return v
}

// Validate checks the vector as produced by evaluator self among n workers.
func (v ScoreVector) Validate(self, n int) error {
	if len(v) != n {
		return fmt.Errorf("%w: got %d, want %d", ErrVectorLength, len(v), n)
	}
	for j, s := range v {
		if j == self {
			if s.Present {
				return fmt.Errorf("%w: evaluator %d", ErrSelfScore, self)
			}
			continue
		}
		if !s.Present {
			continue
		}
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) || s.Value < 0 || s.Value > 1 {
			return fmt.Errorf("%w: evaluator %d scored %d with %v", ErrInvalidScore, self, j, s.Value)
		}
	}
	return nil
}

// Values returns the present values, -1 standing in for absent ones. Only for
// display.
func (v ScoreVector) Values() []float64 {
	out := make([]float64, len(v))
	for i, s := range v {
		if !s.Present {
			out[i] = -1
			continue
		}
		out[i] = s.Value
	}
	return out
}
