package nonce

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewNonce(t *testing.T) {
	a := NewNonce("5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY")
	b := NewNonce("5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY")
	assert.Len(t, a, 64)
	assert.Equal(t, a[:32], b[:32])
	assert.NotEqual(t, a, b)
}

func TestSeen(t *testing.T) {
	now := time.Unix(1000, 0)
	s := NewSeen(time.Minute)
	s.now = func() time.Time { return now }

	assert.True(t, s.Check("a"))
	assert.False(t, s.Check("a"))
	assert.True(t, s.Check("b"))

	now = now.Add(2 * time.Minute)
	assert.True(t, s.Check("a"))
}
