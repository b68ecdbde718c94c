package selection

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var addrs = []string{"w0", "w1", "w2"}

func TestTopKScenario(t *testing.T) {
	got := TopK(addrs, map[int]float64{0: 0.6, 1: 0.6, 2: 0.75}, 3)

	assert.Equal(t, []Candidate{
		{Index: 2, Address: "w2", Score: 0.75},
		{Index: 0, Address: "w0", Score: 0.6},
		{Index: 1, Address: "w1", Score: 0.6},
	}, got)
}

func TestTopKNarrows(t *testing.T) {
	scores := map[int]float64{0: 0.1, 1: 0.9, 2: 0.5}

	got := TopK(addrs, scores, 2)
	assert.Equal(t, []string{"w1", "w2"}, Addresses(got))
	assert.True(t, Contains(got, "w2"))
	assert.False(t, Contains(got, "w0"))

	assert.Len(t, TopK(addrs, scores, 0), 3)
	assert.Len(t, TopK(addrs, scores, 10), 3)
}

func TestTopKSkipsUnscoredWorkers(t *testing.T) {
	got := TopK(addrs, map[int]float64{0: 0.2, 2: 0.4}, 0)
	assert.Equal(t, []string{"w2", "w0"}, Addresses(got))
}

func TestTopKDeterministic(t *testing.T) {
	n := 50
	addresses := make([]string, n)
	scores := make(map[int]float64, n)
	r := rand.New(rand.NewSource(7))
	for i := 0; i < n; i++ {
		addresses[i] = string(rune('a'+i%26)) + string(rune('a'+i/26))
		// coarse buckets force many ties
		scores[i] = float64(r.Intn(5)) / 4
	}

	first := TopK(addresses, scores, 20)
	for i := 0; i < 20; i++ {
		require.Equal(t, first, TopK(addresses, scores, 20))
	}
	for i := 1; i < len(first); i++ {
		prev, cur := first[i-1], first[i]
		require.GreaterOrEqual(t, prev.Score, cur.Score)
		if prev.Score == cur.Score {
			require.Less(t, prev.Index, cur.Index)
		}
	}
}
