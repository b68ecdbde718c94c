// Package commitment computes the round commitment shared by the coordinator
// and the ledger: keccak256 over the single byte r+1, the same value a
// contract gets from keccak256(abi.encodePacked(uint8(r+1))).
package commitment

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"math"
	"sync"

	"golang.org/x/crypto/sha3"
)

// MaxRounds is the number of rounds whose index fits the one byte encoding.
const MaxRounds = math.MaxUint8

var ErrRoundOverflow = errors.New("commitment: round index does not fit in uint8")

type Hash [32]byte

func (h Hash) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) String() string {
	return h.Hex()
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHex(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHex accepts a 32 byte hex string with or without the 0x prefix.
func ParseHex(s string) (Hash, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("commitment: %w", err)
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("commitment: want %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

var keccakPool = sync.Pool{New: func() any {
	return sha3.NewLegacyKeccak256()
}}

// Keccak256 hashes data with the pre-standard Keccak padding used by EVM
// contracts.
func Keccak256(data []byte) Hash {
	h, ok := keccakPool.Get().(hash.Hash)
	if !ok {
		h = sha3.NewLegacyKeccak256()
	}
	defer keccakPool.Put(h)
	h.Reset()

	var out Hash
	h.Write(data)
	h.Sum(out[:0])
	return out
}

// ForRound returns the commitment for round r (0-based).
func ForRound(r uint64) (Hash, error) {
	if r >= MaxRounds {
		return Hash{}, fmt.Errorf("%w: round %d", ErrRoundOverflow, r)
	}
	return Keccak256([]byte{uint8(r + 1)}), nil
}

// Verify reports whether got is the commitment for round r.
func Verify(r uint64, got Hash) (bool, error) {
	want, err := ForRound(r)
	if err != nil {
		return false, err
	}
	return want == got, nil
}
