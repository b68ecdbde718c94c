// Package metrics holds the prometheus collectors for a coordinator run and
// for the ledger daemon. Each instance owns its registry so tests and
// parallel runs do not collide on the global one.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Metrics struct {
	Registry *prometheus.Registry

	RoundsCompleted        prometheus.Counter
	RoundFailures          *prometheus.CounterVec
	PhaseDuration          *prometheus.HistogramVec
	WorkerFailures         *prometheus.CounterVec
	ActiveWorkers          prometheus.Gauge
	OverallScore           *prometheus.GaugeVec
	CommitteeSize          prometheus.Gauge
	AuctionCost            prometheus.Gauge
	RewardsPaid            *prometheus.CounterVec
	VerificationMismatches prometheus.Counter
	LedgerRequests         *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RoundsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fedauction_rounds_completed_total",
			Help: "Number of rounds advanced on the ledger.",
		}),
		RoundFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fedauction_round_failures_total",
			Help: "Number of rounds stopped by a fatal error, by phase.",
		}, []string{"phase"}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fedauction_phase_duration_seconds",
			Help:    "Time spent in each round phase.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"phase"}),
		WorkerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fedauction_worker_failures_total",
			Help: "Number of worker calls that failed, by worker and phase.",
		}, []string{"worker", "phase"}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedauction_active_workers",
			Help: "Workers that completed training and evaluation in the last round.",
		}),
		OverallScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fedauction_overall_score",
			Help: "Overall score of each worker in the last round.",
		}, []string{"worker"}),
		CommitteeSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedauction_committee_size",
			Help: "Size of the last selected committee.",
		}),
		AuctionCost: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fedauction_auction_cost",
			Help: "Summed bids of the last selected committee.",
		}),
		RewardsPaid: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fedauction_rewards_paid_total",
			Help: "Rewards distributed to each worker.",
		}, []string{"worker"}),
		VerificationMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fedauction_verification_mismatches_total",
			Help: "Rounds whose commitment did not match the ledger.",
		}),
		LedgerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fedauction_ledger_requests_total",
			Help: "Ledger daemon requests by route and result code.",
		}, []string{"route", "code"}),
	}
	m.Registry.MustRegister(
		m.RoundsCompleted,
		m.RoundFailures,
		m.PhaseDuration,
		m.WorkerFailures,
		m.ActiveWorkers,
		m.OverallScore,
		m.CommitteeSize,
		m.AuctionCost,
		m.RewardsPaid,
		m.VerificationMismatches,
		m.LedgerRequests,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	s := &http.Server{Addr: addr, Handler: mux, ReadTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()
	go func() {
		log.Infow("Serving metrics", "addr", addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("Metrics server stopped", "error", err)
		}
	}()
}
