package store

import (
	"testing"
	"time"

	"fedauction/internal/auction"
	"fedauction/internal/coordinator"
	"fedauction/internal/selection"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func report() coordinator.RoundReport {
	return coordinator.RoundReport{
		RunID: "run-1",
		Round: 3,
		Workers: []coordinator.WorkerOutcome{
			{Index: 0, Address: "w0"},
			{Index: 1, Address: "w1", Abstained: true, Phase: "train", Error: "boom"},
		},
		Overall:     map[string]float64{"w0": 0.6},
		TopK:        []selection.Candidate{{Index: 0, Address: "w0", Score: 0.6}},
		Committee:   []auction.Entry{{Address: "w0", Score: 600, Bid: 2}},
		Allocations: []auction.Allocation{{Address: "w0", Bid: 2, Score: 600, Reward: decimal.RequireFromString("12.5")}},
		Commitment:  "0x01",
		Verified:    true,
		Advanced:    true,
		Started:     time.Unix(1700000000, 0),
		Duration:    1500 * time.Millisecond,
	}
}

func TestFromReport(t *testing.T) {
	rec := FromReport(report())

	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, int64(1700000000), rec.Timestamp)
	assert.Equal(t, int64(1500), rec.DurationMs)
	assert.Equal(t, []string{"w0"}, rec.TopK)
	assert.Equal(t, []string{"w0"}, rec.Committee)
	assert.Equal(t, map[string]string{"w0": "12.5"}, rec.Rewards)
	require.Len(t, rec.Abstained, 1)
	assert.Equal(t, "w1", rec.Abstained[0].Address)
}

func TestRecordBSON(t *testing.T) {
	raw, err := bson.Marshal(FromReport(report()))
	require.NoError(t, err)

	var back RoundRecord
	require.NoError(t, bson.Unmarshal(raw, &back))
	assert.Equal(t, "12.5", back.Rewards["w0"])
	assert.Equal(t, uint64(3), back.Round)
	assert.True(t, back.Verified)
}

func TestSyncRoundWithoutClient(t *testing.T) {
	var s *Store
	assert.Error(t, s.SyncRound(report()))
}
