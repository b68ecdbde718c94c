// Package auction prepares reverse auction requests from the ranked
// candidates and implements the committee selection rules the ledger
// enforces.
package auction

import (
	"errors"
	"fmt"
	"math"

	"fedauction/internal/selection"
)

var (
	ErrNoCandidates     = errors.New("auction: no eligible candidates")
	ErrInvalidRequest   = errors.New("auction: invalid request")
	ErrBudgetTooLarge   = errors.New("auction: budget too large for exact selection")
	ErrIneligibleWinner = errors.New("auction: committee member not in top-k set")
	ErrUnknownRule      = errors.New("auction: unknown selection rule")
	ErrInsufficientPool = errors.New("auction: reward pool below committee cost")
)

// ScoreScale is the factor applied to [0,1] quality scores before they are
// submitted as integers.
const ScoreScale = 1000

// ScaleScore maps a score onto the integer grid. It is monotone: s1 <= s2
// implies ScaleScore(s1) <= ScaleScore(s2).
func ScaleScore(s float64) int64 {
	return int64(math.Round(s * ScoreScale))
}

// Entry is one candidate in a request: its scaled quality and its bid.
type Entry struct {
	Address  string `json:"address" bson:"address"`
	Score    int64  `json:"score" bson:"score"`
	Bid      uint64 `json:"bid" bson:"bid"`
	Position int    `json:"position" bson:"position"`
}

type Request struct {
	Round      uint64  `json:"round" bson:"round"`
	Candidates []Entry `json:"candidates" bson:"candidates"`
}

// Exclusion records a top-k candidate that could not enter the auction.
type Exclusion struct {
	Address string `json:"address" bson:"address"`
	Reason  string `json:"reason" bson:"reason"`
}

// BuildRequest keeps the top-k order. Candidates without a positive bid are
// excluded rather than given a default.
func BuildRequest(round uint64, topK []selection.Candidate, bids map[string]uint64) (Request, []Exclusion, error) {
	req := Request{Round: round}
	var excluded []Exclusion
	for _, c := range topK {
		bid, ok := bids[c.Address]
		switch {
		case !ok:
			excluded = append(excluded, Exclusion{Address: c.Address, Reason: "no bid"})
			continue
		case bid == 0:
			excluded = append(excluded, Exclusion{Address: c.Address, Reason: "zero bid"})
			continue
		}
		req.Candidates = append(req.Candidates, Entry{
			Address:  c.Address,
			Score:    ScaleScore(c.Score),
			Bid:      bid,
			Position: len(req.Candidates),
		})
	}
	if len(req.Candidates) == 0 {
		return req, excluded, ErrNoCandidates
	}
	return req, excluded, nil
}

// Validate checks a request as received by the ledger.
func (r Request) Validate() error {
	if len(r.Candidates) == 0 {
		return ErrNoCandidates
	}
	seen := make(map[string]bool, len(r.Candidates))
	for i, c := range r.Candidates {
		if seen[c.Address] {
			return fmt.Errorf("%w: duplicate candidate %s", ErrInvalidRequest, c.Address)
		}
		seen[c.Address] = true
		if c.Bid == 0 {
			return fmt.Errorf("%w: zero bid from %s", ErrInvalidRequest, c.Address)
		}
		if c.Score < 0 || c.Score > ScoreScale {
			return fmt.Errorf("%w: score %d out of range for %s", ErrInvalidRequest, c.Score, c.Address)
		}
		if c.Position != i {
			return fmt.Errorf("%w: candidate %s at %d claims position %d", ErrInvalidRequest, c.Address, i, c.Position)
		}
	}
	return nil
}

// ValidateCommittee checks that every committee member was a top-k candidate.
func ValidateCommittee(committee []string, topK []selection.Candidate) error {
	for _, addr := range committee {
		if !selection.Contains(topK, addr) {
			return fmt.Errorf("%w: %s", ErrIneligibleWinner, addr)
		}
	}
	return nil
}
