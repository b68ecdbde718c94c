package nonce

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewNonce returns a run id bound to ss58: a hash prefix of the address
// followed by a random uuid.
func NewNonce(ss58 string) string {
	prefix := sha256.Sum256([]byte(ss58))
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%x%s", prefix[:16], random)
}

// Seen remembers request ids for a window so a signed request cannot be
// replayed while its signature is still fresh.
type Seen struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

func NewSeen(window time.Duration) *Seen {
	return &Seen{
		window:  window,
		entries: map[string]time.Time{},
		now:     time.Now,
	}
}

// Check records id and reports whether it was new.
func (s *Seen) Check(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, at := range s.entries {
		if now.Sub(at) > s.window {
			delete(s.entries, k)
		}
	}
	if _, ok := s.entries[id]; ok {
		return false
	}
	s.entries[id] = now
	return true
}
