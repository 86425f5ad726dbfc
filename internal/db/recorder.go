package db

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/robosim/internal/monitoring"
	"github.com/banshee-data/robosim/internal/position"
)

// Defaults for TelemetryRecorder.
const (
	DefaultSampleEvery = 10
	DefaultQueueSize   = 256
)

// RecorderStats counts what a TelemetryRecorder has done.
type RecorderStats struct {
	Queued  uint64 `json:"queued"`
	Dropped uint64 `json:"dropped"`
	Written uint64 `json:"written"`
	Errors  uint64 `json:"errors"`
}

// TelemetryRecorder stores device states for a run. Observe is called from
// the stepping goroutine and never blocks: batches are handed to the Run
// goroutine and dropped if it falls behind.
type TelemetryRecorder struct {
	DB    *DB
	RunID uuid.UUID
	// SampleEvery keeps one step out of every SampleEvery.
	SampleEvery int

	queue chan []Sample
	steps atomic.Uint64

	queued  atomic.Uint64
	dropped atomic.Uint64
	written atomic.Uint64
	errors  atomic.Uint64
}

// NewTelemetryRecorder returns a recorder writing to run.
func NewTelemetryRecorder(db *DB, run uuid.UUID, sampleEvery int) *TelemetryRecorder {
	if sampleEvery <= 0 {
		sampleEvery = DefaultSampleEvery
	}
	return &TelemetryRecorder{
		DB:          db,
		RunID:       run,
		SampleEvery: sampleEvery,
		queue:       make(chan []Sample, DefaultQueueSize),
	}
}

// Observe has the signature of a world observer.
func (r *TelemetryRecorder) Observe(now time.Duration, states []position.State) {
	step := r.steps.Add(1)
	if (step-1)%uint64(r.SampleEvery) != 0 || len(states) == 0 {
		return
	}
	batch := make([]Sample, len(states))
	for i, s := range states {
		batch[i] = SampleFromState(now, s)
	}
	select {
	case r.queue <- batch:
		r.queued.Add(1)
	default:
		r.dropped.Add(1)
	}
}

// Run writes queued batches until ctx is done, then drains what is left.
func (r *TelemetryRecorder) Run(ctx context.Context) error {
	for {
		select {
		case batch := <-r.queue:
			r.write(batch)
		case <-ctx.Done():
			for {
				select {
				case batch := <-r.queue:
					r.write(batch)
				default:
					return nil
				}
			}
		}
	}
}

func (r *TelemetryRecorder) write(batch []Sample) {
	if err := r.DB.RecordSamples(r.RunID, batch); err != nil {
		r.errors.Add(1)
		monitoring.Logf("[telemetry] failed to record %d samples: %v", len(batch), err)
		return
	}
	r.written.Add(uint64(len(batch)))
}

// Stats returns a snapshot of the counters.
func (r *TelemetryRecorder) Stats() RecorderStats {
	return RecorderStats{
		Queued:  r.queued.Load(),
		Dropped: r.dropped.Load(),
		Written: r.written.Load(),
		Errors:  r.errors.Load(),
	}
}
