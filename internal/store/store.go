// Package store archives round reports in mongo.
package store

import (
	"context"
	"errors"
	"time"

	"fedauction/internal/coordinator"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

const (
	Database   = "fedauction"
	Collection = "rounds"
)

// RoundRecord is the stored form of a round report. Rewards are kept as
// decimal strings.
type RoundRecord struct {
	RunID       string                      `bson:"run_id" json:"run_id"`
	Round       uint64                      `bson:"round" json:"round"`
	Timestamp   int64                       `bson:"timestamp" json:"timestamp"`
	DurationMs  int64                       `bson:"duration_ms" json:"duration_ms"`
	Overall     map[string]float64          `bson:"overall,omitempty" json:"overall,omitempty"`
	Weights     map[string]float64          `bson:"weights,omitempty" json:"weights,omitempty"`
	TopK        []string                    `bson:"top_k,omitempty" json:"top_k,omitempty"`
	Committee   []string                    `bson:"committee,omitempty" json:"committee,omitempty"`
	Rewards     map[string]string           `bson:"rewards,omitempty" json:"rewards,omitempty"`
	Abstained   []coordinator.WorkerOutcome `bson:"abstained,omitempty" json:"abstained,omitempty"`
	Commitment  string                      `bson:"commitment" json:"commitment"`
	Verified    bool                        `bson:"verified" json:"verified"`
	Advanced    bool                        `bson:"advanced" json:"advanced"`
	FailedPhase string                      `bson:"failed_phase,omitempty" json:"failed_phase,omitempty"`
	Error       string                      `bson:"error,omitempty" json:"error,omitempty"`
}

func FromReport(r coordinator.RoundReport) RoundRecord {
	rec := RoundRecord{
		RunID:       r.RunID,
		Round:       r.Round,
		Timestamp:   r.Started.Unix(),
		DurationMs:  r.Duration.Milliseconds(),
		Overall:     r.Overall,
		Weights:     r.Weights,
		Committee:   r.CommitteeAddresses(),
		Abstained:   r.Abstained(),
		Commitment:  r.Commitment,
		Verified:    r.Verified,
		Advanced:    r.Advanced,
		FailedPhase: r.FailedPhase,
		Error:       r.Error,
	}
	for _, c := range r.TopK {
		rec.TopK = append(rec.TopK, c.Address)
	}
	if len(r.Allocations) != 0 {
		rec.Rewards = make(map[string]string, len(r.Allocations))
		for _, a := range r.Allocations {
			rec.Rewards[a.Address] = a.Reward.String()
		}
	}
	return rec
}

type Store struct {
	col *mongo.Collection
	log *zap.SugaredLogger
}

func New(client *mongo.Client, log *zap.SugaredLogger) *Store {
	return &Store{col: client.Database(Database).Collection(Collection), log: log}
}

// SyncRound stores one report. It is meant to run as a round callback, so it
// bounds itself instead of taking a context.
func (s *Store) SyncRound(r coordinator.RoundReport) error {
	if s == nil || s.col == nil {
		return errors.New("no mongo client")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.col.InsertOne(ctx, FromReport(r))
	return err
}

// Callback adapts SyncRound for coordinator.AddRoundCallback, logging
// failures.
func (s *Store) Callback() func(coordinator.RoundReport) {
	return func(r coordinator.RoundReport) {
		if err := s.SyncRound(r); err != nil {
			s.log.Errorw("Failed syncing round to mongo", "round", r.Round, "error", err)
			return
		}
		s.log.Infow("Stored round report to MongoDB", "round", r.Round)
	}
}

// Recent returns the latest records, newest first. An empty runID matches
// every run.
func (s *Store) Recent(ctx context.Context, runID string, limit int64) ([]RoundRecord, error) {
	filter := bson.M{}
	if runID != "" {
		filter["run_id"] = runID
	}
	opts := options.Find().SetLimit(limit).SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "round", Value: -1}})
	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var out []RoundRecord
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
