// Package learning aggregates completed-task outcomes into duration and
// success statistics that feed scheduling and user-facing estimates.
package learning

import (
	"github.com/opsdeck/cos/internal/domain"
	"github.com/opsdeck/cos/internal/taskstore"
)

// Engine records completions and answers estimate queries.
type Engine struct {
	store *taskstore.Store
}

// NewEngine creates an Engine backed by the given store.
func NewEngine(store *taskstore.Store) *Engine {
	return &Engine{store: store}
}

// RecordCompletion updates the statistics for the bucket derived from the
// task description, plus the overall aggregate.
func (e *Engine) RecordCompletion(description string, durationMs int64, success bool) error {
	bucket := Classify(description)
	if err := e.store.RecordSample(bucket, durationMs, success); err != nil {
		return err
	}
	return e.store.RecordSample(domain.OverallBucket, durationMs, success)
}

// Estimate predicts how long a task will take. The bucket-specific stat is
// used when it has at least one sample; otherwise the overall aggregate.
// A nil return means no history exists at all.
func (e *Engine) Estimate(description string) (*domain.Estimate, error) {
	bucket := Classify(description)
	stat, err := e.store.GetStat(bucket)
	if err != nil {
		return nil, err
	}
	if stat == nil || stat.Completed == 0 {
		stat, err = e.store.GetStat(domain.OverallBucket)
		if err != nil || stat == nil {
			return nil, err
		}
	}

	return &domain.Estimate{
		EstimatedMin: float64(stat.P80DurationMs) / 60000.0,
		AvgMin:       stat.AvgDurationMin,
		BasedOnCount: stat.Completed,
		SuccessRate:  stat.SuccessRate,
		Bucket:       stat.Bucket,
	}, nil
}

// Stats returns the raw aggregate table.
func (e *Engine) Stats() ([]*domain.DurationStat, error) {
	return e.store.ListStats()
}
