// Package sim is a deterministic stand-in for the learning component. Honest
// workers train towards a shared target and score peers by model quality;
// evil workers train away from it and invert their scores.
package sim

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"sync"

	"fedauction/internal/ledger"
	"fedauction/internal/scoring"
	"fedauction/internal/worker"

	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"go.uber.org/zap"
)

// Dim is the number of parameters in a simulated model.
const Dim = 8

const (
	weightsKey = "weights"
	trainNoise = 0.01
	scoreNoise = 0.005
	defaultLR  = 0.5
)

type Config struct {
	Keypair      signature.KeyringPair
	Index        int
	Honest       bool
	Seed         int64
	LearningRate float64
	// TopK is how many peers feed the top-k aggregate. Zero means all.
	TopK int
}

type Worker struct {
	kp     signature.KeyringPair
	index  int
	honest bool
	lr     float64
	topK   int
	ex     *Exchange
	log    *zap.SugaredLogger

	mu     sync.Mutex
	rng    *rand.Rand
	params []float64
}

var _ worker.Worker = (*Worker)(nil)

func NewWorker(cfg Config, ex *Exchange, log *zap.SugaredLogger) *Worker {
	lr := cfg.LearningRate
	if lr <= 0 || lr > 1 {
		lr = defaultLR
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Worker{
		kp:     cfg.Keypair,
		index:  cfg.Index,
		honest: cfg.Honest,
		lr:     lr,
		topK:   cfg.TopK,
		ex:     ex,
		log:    log.With("worker", cfg.Keypair.Address, "honest", cfg.Honest),
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		params: make([]float64, ex.dim),
	}
}

func (w *Worker) Address() string {
	return w.kp.Address
}

func (w *Worker) Join(ctx context.Context, l ledger.Ledger) error {
	return worker.As(l, w.kp).Join(ctx, w.Address())
}

func (w *Worker) Train(ctx context.Context, round uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	for i := range w.params {
		goal := w.ex.target[i]
		if !w.honest {
			goal = -goal
		}
		w.params[i] += w.lr*(goal-w.params[i]) + w.rng.NormFloat64()*trainNoise
	}
	model := slices.Clone(w.params)
	w.mu.Unlock()

	if err := w.ex.Publish(round, w.Address(), model); err != nil {
		return fmt.Errorf("failed publishing model: %w", err)
	}
	w.log.Debugw("Trained", "round", round, "loss", w.ex.Loss(model))
	return nil
}

type peerModel struct {
	index int
	model []float64
	score float64
}

func (w *Worker) Evaluate(ctx context.Context, round uint64) (worker.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return worker.Evaluation{}, err
	}
	own, ok := w.ex.Fetch(round, w.Address())
	if !ok {
		return worker.Evaluation{}, fmt.Errorf("no model published for round %d", round)
	}

	roster := w.ex.Roster()
	scores := make(scoring.ScoreVector, len(roster))
	all := [][]float64{own}
	var peers []peerModel

	w.mu.Lock()
	for j, addr := range roster {
		if j == w.index {
			continue
		}
		m, ok := w.ex.Fetch(round, addr)
		if !ok {
			// peer did not train this round
			continue
		}
		q := 1 / (1 + w.ex.Loss(m))
		var s float64
		if w.honest {
			s = q + w.rng.NormFloat64()*scoreNoise
		} else {
			s = 1 - q
		}
		s = math.Min(1, math.Max(0, s))
		scores[j] = scoring.Of(s)
		all = append(all, m)
		peers = append(peers, peerModel{index: j, model: m, score: s})
	}
	w.mu.Unlock()

	slices.SortFunc(peers, func(a, b peerModel) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return a.index - b.index
	})
	k := len(peers)
	if w.topK > 0 && w.topK < k {
		k = w.topK
	}
	best := [][]float64{own}
	for _, p := range peers[:k] {
		best = append(best, p.model)
	}

	return worker.Evaluation{
		Averaged: worker.ModelDelta{weightsKey: mean(all)},
		TopK:     worker.ModelDelta{weightsKey: mean(best)},
		Scores:   scores,
	}, nil
}

func (w *Worker) UpdateModel(ctx context.Context, d worker.ModelDelta) error {
	v, ok := d[weightsKey]
	if !ok {
		return fmt.Errorf("update has no %q entry", weightsKey)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(v) != len(w.params) {
		return fmt.Errorf("update has %d parameters, want %d", len(v), len(w.params))
	}
	copy(w.params, v)
	return nil
}

// Params returns a copy of the current model.
func (w *Worker) Params() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.params)
}

func mean(models [][]float64) []float64 {
	out := make([]float64, len(models[0]))
	for _, m := range models {
		for i, v := range m {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(models))
	}
	return out
}

// NewCohort builds one simulated worker per keypair sharing one exchange.
// The first numEvil workers are evil, matching registry.FromSecrets.
func NewCohort(kps []signature.KeyringPair, numEvil int, seed int64, topK int, log *zap.SugaredLogger) ([]*Worker, *Exchange) {
	roster := make([]string, len(kps))
	for i, kp := range kps {
		roster[i] = kp.Address
	}
	rng := rand.New(rand.NewSource(seed))
	target := make([]float64, Dim)
	for i := range target {
		target[i] = rng.Float64()*2 - 1
	}
	ex := NewExchange(roster, target)

	workers := make([]*Worker, len(kps))
	for i, kp := range kps {
		workers[i] = NewWorker(Config{
			Keypair: kp,
			Index:   i,
			Honest:  i >= numEvil,
			Seed:    seed + int64(i) + 1,
			TopK:    topK,
		}, ex, log)
	}
	return workers, ex
}
