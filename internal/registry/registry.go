// Package registry holds the fixed set of workers taking part in a run.
package registry

import (
	"errors"
	"fmt"

	"fedauction/internal/utils"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
)

var (
	ErrNoWorkers        = errors.New("registry: no workers")
	ErrDuplicateAddress = errors.New("registry: duplicate worker address")
	ErrInvalidBid       = errors.New("registry: bid must be positive")
	ErrInvalidIndex     = errors.New("registry: worker indices must be contiguous from 0")
	ErrUnknownWorker    = errors.New("registry: unknown worker")
)

type Worker struct {
	Address string `json:"address" bson:"address"`
	Index   int    `json:"index" bson:"index"`
	Honest  bool   `json:"honest" bson:"honest"`
	Bid     uint64 `json:"bid" bson:"bid"`
}

// Registry is read-only once built.
type Registry struct {
	workers []Worker
	byAddr  map[string]int
}

func New(workers []Worker) (*Registry, error) {
	if len(workers) == 0 {
		return nil, ErrNoWorkers
	}
	r := &Registry{
		workers: make([]Worker, len(workers)),
		byAddr:  make(map[string]int, len(workers)),
	}
	for i, w := range workers {
		if w.Index != i {
			return nil, fmt.Errorf("%w: position %d has index %d", ErrInvalidIndex, i, w.Index)
		}
		if w.Bid == 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidBid, w.Address)
		}
		if _, ok := r.byAddr[w.Address]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateAddress, w.Address)
		}
		r.byAddr[w.Address] = i
		r.workers[i] = w
	}
	return r, nil
}

// FromSecrets derives one worker per secret. The first numEvil workers are
// flagged dishonest.
func FromSecrets(secrets []string, bids []uint64, numEvil int, network uint16) (*Registry, error) {
	if len(secrets) != len(bids) {
		return nil, fmt.Errorf("registry: %d secrets for %d bids", len(secrets), len(bids))
	}
	workers := make([]Worker, 0, len(secrets))
	for i, secret := range secrets {
		addr, err := AddressFromSecret(secret, network)
		if err != nil {
			return nil, utils.Wrap(fmt.Sprintf("failed deriving address for worker %d", i), err)
		}
		workers = append(workers, Worker{
			Address: addr,
			Index:   i,
			Honest:  i >= numEvil,
			Bid:     bids[i],
		})
	}
	return New(workers)
}

func AddressFromSecret(secret string, network uint16) (string, error) {
	kp, err := signature.KeyringPairFromSecret(secret, network)
	if err != nil {
		return "", err
	}
	return utils.PublicKeyToSS58(kp.PublicKey, network), nil
}

func (r *Registry) Len() int {
	return len(r.workers)
}

func (r *Registry) Workers() []Worker {
	out := make([]Worker, len(r.workers))
	copy(out, r.workers)
	return out
}

func (r *Registry) At(i int) Worker {
	return r.workers[i]
}

func (r *Registry) ByAddress(addr string) (Worker, error) {
	i, ok := r.byAddr[addr]
	if !ok {
		return Worker{}, fmt.Errorf("%w: %s", ErrUnknownWorker, addr)
	}
	return r.workers[i], nil
}

// Addresses returns addresses in index order.
func (r *Registry) Addresses() []string {
	out := make([]string, len(r.workers))
	for i, w := range r.workers {
		out[i] = w.Address
	}
	return out
}

// Bids returns a fresh address -> bid mapping.
func (r *Registry) Bids() map[string]uint64 {
	out := make(map[string]uint64, len(r.workers))
	for _, w := range r.workers {
		out[w.Address] = w.Bid
	}
	return out
}
