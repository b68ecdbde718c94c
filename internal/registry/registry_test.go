package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWorkers() []Worker {
	return []Worker{
		{Address: "w0", Index: 0, Honest: true, Bid: 2},
		{Address: "w1", Index: 1, Honest: true, Bid: 3},
		{Address: "w2", Index: 2, Honest: false, Bid: 1},
	}
}

func TestNew(t *testing.T) {
	r, err := New(testWorkers())
	require.NoError(t, err)

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"w0", "w1", "w2"}, r.Addresses())
	assert.Equal(t, map[string]uint64{"w0": 2, "w1": 3, "w2": 1}, r.Bids())

	w, err := r.ByAddress("w2")
	require.NoError(t, err)
	assert.Equal(t, 2, w.Index)
	assert.False(t, w.Honest)

	_, err = r.ByAddress("nope")
	assert.ErrorIs(t, err, ErrUnknownWorker)
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNoWorkers)

	ws := testWorkers()
	ws[1].Address = "w0"
	_, err = New(ws)
	assert.ErrorIs(t, err, ErrDuplicateAddress)

	ws = testWorkers()
	ws[2].Bid = 0
	_, err = New(ws)
	assert.ErrorIs(t, err, ErrInvalidBid)

	ws = testWorkers()
	ws[1].Index = 5
	_, err = New(ws)
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func TestRegistryIsImmutable(t *testing.T) {
	ws := testWorkers()
	r, err := New(ws)
	require.NoError(t, err)

	ws[0].Bid = 100
	out := r.Workers()
	out[1].Bid = 100
	r.Bids()["w2"] = 100

	assert.Equal(t, uint64(2), r.At(0).Bid)
	assert.Equal(t, uint64(3), r.At(1).Bid)
	assert.Equal(t, uint64(1), r.At(2).Bid)
}

func TestFromSecrets(t *testing.T) {
	addr, err := AddressFromSecret("//Alice", 42)
	require.NoError(t, err)
	assert.Equal(t, "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY", addr)

	r, err := FromSecrets([]string{"//Alice", "//Bob", "//Charlie"}, []uint64{2, 3, 1}, 1, 42)
	require.NoError(t, err)
	assert.Equal(t, addr, r.At(0).Address)
	assert.False(t, r.At(0).Honest)
	assert.True(t, r.At(1).Honest)
	assert.True(t, r.At(2).Honest)

	_, err = FromSecrets([]string{"//Alice"}, []uint64{1, 2}, 0, 42)
	assert.Error(t, err)
}
