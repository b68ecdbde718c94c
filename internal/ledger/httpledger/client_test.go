package httpledger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"fedauction/internal/auction"
	"fedauction/internal/commitment"
	"fedauction/internal/ledger"
	"fedauction/internal/ledger/memledger"
	"fedauction/internal/ledger/server"
	"fedauction/internal/scoring"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const network = 42

func keypair(t *testing.T, secret string) signature.KeyringPair {
	t.Helper()
	kp, err := signature.KeyringPairFromSecret(secret, network)
	require.NoError(t, err)
	return kp
}

type fixture struct {
	owner   *Client
	workers []signature.KeyringPair
	mem     *memledger.Ledger
	srv     *httptest.Server
}

func newFixture(t *testing.T, wrap func(http.Handler) http.Handler) *fixture {
	t.Helper()
	owner := keypair(t, "//Alice")
	daemon := keypair(t, "//Ledger")
	mem := memledger.New(owner.Address, nil)

	var h http.Handler = server.NewServer(mem, daemon.Address, owner.Address, zap.NewNop().Sugar(), nil).Handler()
	if wrap != nil {
		h = wrap(h)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &fixture{
		owner: New(Config{
			BaseURL:         srv.URL,
			Keypair:         owner,
			Timeout:         5 * time.Second,
			MaxRetries:      3,
			InitialInterval: time.Millisecond,
		}),
		workers: []signature.KeyringPair{
			keypair(t, "//Bob"),
			keypair(t, "//Charlie"),
			keypair(t, "//Dave"),
		},
		mem: mem,
		srv: srv,
	}
}

func TestRoundOverHTTP(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	c := f.owner

	id, err := c.Deploy(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.NoError(t, c.InitializeTask(ctx, ledger.TaskParams{
		Stake:         decimal.NewFromInt(10),
		ModelURI:      "file:///tmp/model",
		Rounds:        1,
		CommitteeSize: 2,
	}))
	for _, kp := range f.workers {
		require.NoError(t, c.WithKeypair(kp).Join(ctx, kp.Address))
	}
	n, err := c.StartTask(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	v := scoring.NewScoreVector(0, []float64{0.8, 0.6})
	require.NoError(t, c.SubmitScores(ctx, 0, 0, v))
	err = c.SubmitScores(ctx, 0, 0, v)
	assert.ErrorIs(t, err, ledger.ErrDuplicateScores)

	rows, err := c.ScoreMatrix(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, v, rows[0])
	assert.Nil(t, rows[1])

	w := f.workers
	req := auction.Request{Round: 0, Candidates: []auction.Entry{
		{Address: w[2].Address, Score: 750, Bid: 1, Position: 0},
		{Address: w[0].Address, Score: 600, Bid: 2, Position: 1},
		{Address: w[1].Address, Score: 600, Bid: 3, Position: 2},
	}}
	require.NoError(t, c.ReverseAuction(ctx, req))

	candidates, err := c.WorkerScores(ctx)
	require.NoError(t, err)
	assert.Equal(t, req.Candidates, candidates)

	committee, err := c.Committee(ctx)
	require.NoError(t, err)
	require.Len(t, committee, 2)
	assert.Equal(t, w[2].Address, committee[0].Address)

	_, err = c.NextRound(ctx)
	assert.ErrorIs(t, err, ledger.ErrNotDistributed)

	allocs, err := c.DistributeRewards(ctx)
	require.NoError(t, err)
	require.Len(t, allocs, 2)

	h, err := commitment.ForRound(0)
	require.NoError(t, err)
	ok, err := c.VerifyRound(ctx, h)
	require.NoError(t, err)
	assert.True(t, ok)

	round, err := c.NextRound(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), round)

	balances, err := c.Balances(ctx)
	require.NoError(t, err)
	total := decimal.Zero
	for _, b := range balances {
		total = total.Add(b)
	}
	assert.True(t, total.Equal(decimal.NewFromInt(10)))
}

func TestOwnerOnlyRoutes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	stranger := f.owner.WithKeypair(f.workers[0])
	_, err := stranger.Deploy(ctx)
	assert.ErrorIs(t, err, ledger.ErrNotOwner)

	_, err = f.owner.Deploy(ctx)
	require.NoError(t, err)
	require.NoError(t, f.owner.InitializeTask(ctx, ledger.TaskParams{
		Stake: decimal.NewFromInt(10), Rounds: 1, CommitteeSize: 1,
	}))

	// a worker cannot register someone else
	err = stranger.Join(ctx, f.workers[1].Address)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	assert.Empty(t, f.mem.Workers())
}

func TestRetriesServerErrors(t *testing.T) {
	ctx := context.Background()
	var failures atomic.Int32
	failures.Store(2)
	var calls atomic.Int32
	f := newFixture(t, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == ledger.RouteDeploy {
				calls.Add(1)
				if failures.Add(-1) >= 0 {
					w.WriteHeader(http.StatusServiceUnavailable)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	})

	_, err := f.owner.Deploy(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	f := newFixture(t, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == ledger.RouteRound {
				calls.Add(1)
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	_, err := f.owner.Round(ctx)
	assert.ErrorIs(t, err, ledger.ErrInternal)
	assert.Equal(t, int32(4), calls.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	f := newFixture(t, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == ledger.RouteStart {
				calls.Add(1)
			}
			next.ServeHTTP(w, r)
		})
	})

	_, err := f.owner.StartTask(ctx)
	assert.ErrorIs(t, err, ledger.ErrNotDeployed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newFixture(t, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == ledger.RouteRound {
				cancel()
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	_, err := f.owner.Round(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
