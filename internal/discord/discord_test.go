package discord

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"fedauction/internal/auction"
	"fedauction/internal/coordinator"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inbox struct {
	mu   sync.Mutex
	msgs []Message
}

func (i *inbox) all() []Message {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]Message(nil), i.msgs...)
}

func capture(t *testing.T, status int) (*httptest.Server, *inbox) {
	t.Helper()
	got := &inbox{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m Message
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&m))
		got.mu.Lock()
		got.msgs = append(got.msgs, m)
		got.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte("rate limited"))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestLogRoundToDiscord(t *testing.T) {
	srv, got := capture(t, http.StatusNoContent)

	report := coordinator.RoundReport{
		RunID:       "run",
		Round:       2,
		Committee:   []auction.Entry{{Address: "w2", Score: 750, Bid: 1}},
		Allocations: []auction.Allocation{{Address: "w2", Bid: 1, Reward: decimal.NewFromInt(100)}},
		Commitment:  "0xabc",
		Verified:    true,
	}
	require.NoError(t, LogRoundToDiscord(srv.URL, report))

	report.Error = "round 2 verify: mismatch"
	report.FailedPhase = "verify"
	require.NoError(t, LogRoundToDiscord(srv.URL, report))

	msgs := got.all()
	require.Len(t, msgs, 2)
	ok, failed := msgs[0], msgs[1]
	embed := (*ok.Embeds)[0]
	assert.Equal(t, "Round 2 complete", *embed.Title)
	assert.Equal(t, "3447003", *embed.Color)
	assert.Contains(t, *embed.Description, "w2=100")
	assert.Contains(t, *embed.Description, "0xabc (verified: true)")

	embed = (*failed.Embeds)[0]
	assert.Equal(t, "Round 2 failed at verify", *embed.Title)
	assert.Equal(t, "15548997", *embed.Color)
	assert.Contains(t, *embed.Description, "Error: round 2 verify: mismatch")
}

func TestSendDiscordMessage(t *testing.T) {
	// no url configured
	require.NoError(t, SendDiscordMessage("", Message{}))

	srv, _ := capture(t, http.StatusTooManyRequests)
	content := "hello"
	err := SendDiscordMessage(srv.URL, Message{Content: &content})
	assert.EqualError(t, err, "rate limited")
}
