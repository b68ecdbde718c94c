package coordinator

import (
	"time"

	"fedauction/internal/auction"
	"fedauction/internal/selection"
)

// WorkerOutcome is how one worker fared in a round. Abstaining workers are
// left out of aggregation, ranking and the auction.
type WorkerOutcome struct {
	Index     int    `json:"index" bson:"index"`
	Address   string `json:"address" bson:"address"`
	Abstained bool   `json:"abstained" bson:"abstained"`
	Phase     string `json:"phase,omitempty" bson:"phase,omitempty"`
	Error     string `json:"error,omitempty" bson:"error,omitempty"`
}

type RoundReport struct {
	RunID string `json:"run_id" bson:"run_id"`
	Round uint64 `json:"round" bson:"round"`

	Workers []WorkerOutcome `json:"workers" bson:"workers"`
	// address -> overall score
	Overall map[string]float64 `json:"overall" bson:"overall"`
	// address -> overall score normalized to sum to 1
	Weights map[string]float64 `json:"weights" bson:"weights"`

	TopK        []selection.Candidate `json:"top_k" bson:"top_k"`
	Request     auction.Request       `json:"request" bson:"request"`
	Excluded    []auction.Exclusion   `json:"excluded,omitempty" bson:"excluded,omitempty"`
	Committee   []auction.Entry       `json:"committee" bson:"committee"`
	Allocations []auction.Allocation  `json:"allocations" bson:"allocations"`

	Commitment  string `json:"commitment" bson:"commitment"`
	Verified    bool   `json:"verified" bson:"verified"`
	VerifyError string `json:"verify_error,omitempty" bson:"verify_error,omitempty"`
	Advanced    bool   `json:"advanced" bson:"advanced"`

	FailedPhase string `json:"failed_phase,omitempty" bson:"failed_phase,omitempty"`
	Error       string `json:"error,omitempty" bson:"error,omitempty"`

	Started  time.Time     `json:"started" bson:"started"`
	Duration time.Duration `json:"duration" bson:"duration"`
}

func (r RoundReport) Active() int {
	n := 0
	for _, w := range r.Workers {
		if !w.Abstained {
			n++
		}
	}
	return n
}

func (r RoundReport) Abstained() []WorkerOutcome {
	var out []WorkerOutcome
	for _, w := range r.Workers {
		if w.Abstained {
			out = append(out, w)
		}
	}
	return out
}

func (r RoundReport) CommitteeAddresses() []string {
	out := make([]string, len(r.Committee))
	for i, e := range r.Committee {
		out[i] = e.Address
	}
	return out
}
