// Package selection ranks workers by overall score.
package selection

import (
	"cmp"
	"slices"
)

type Candidate struct {
	Index   int     `json:"index" bson:"index"`
	Address string  `json:"address" bson:"address"`
	Score   float64 `json:"score" bson:"score"`
}

// TopK returns the k best scored workers, highest score first and ties broken
// by lower index. Workers missing from scores are not ranked. k <= 0 or k
// larger than the number of ranked workers selects all of them.
func TopK(addresses []string, scores map[int]float64, k int) []Candidate {
	ranked := make([]Candidate, 0, len(scores))
	for i, addr := range addresses {
		s, ok := scores[i]
		if !ok {
			continue
		}
		ranked = append(ranked, Candidate{Index: i, Address: addr, Score: s})
	}
	slices.SortFunc(ranked, func(a, b Candidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Index, b.Index)
	})
	if k > 0 && k < len(ranked) {
		ranked = ranked[:k]
	}
	return ranked
}

// Contains reports whether addr is one of the selected candidates.
func Contains(set []Candidate, addr string) bool {
	return slices.ContainsFunc(set, func(c Candidate) bool {
		return c.Address == addr
	})
}

func Addresses(set []Candidate) []string {
	out := make([]string, len(set))
	for i, c := range set {
		out[i] = c.Address
	}
	return out
}
