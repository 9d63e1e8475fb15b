// Package backfill drives the historical archive ingest: one (region, year,
// month) unit at a time through download, parse and insert, with durable
// progress rows so an interrupted run can resume where it stopped.
package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-archive-backfill/internal/domain"
	"github.com/couchcryptid/storm-archive-backfill/internal/storage"
)

// Tracker records pipeline step transitions for backfill units. Writes are
// idempotent: one row per (region, year, month, step), overwritten on retry.
type Tracker struct {
	store storage.Store
	clock clockwork.Clock
}

// NewTracker creates a Tracker over the given store. A nil clock defaults to
// real time.
func NewTracker(store storage.Store, clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{store: store, clock: clock}
}

// StepStart marks a step as started with no completion timestamp.
func (t *Tracker) StepStart(ctx context.Context, region string, year int, month time.Month, step domain.ProgressStep, metadata map[string]string) error {
	rec := domain.ProgressRecord{
		Region:    region,
		Year:      year,
		Month:     month,
		Step:      step,
		StartedAt: t.clock.Now().UTC(),
		Metadata:  metadata,
	}
	if err := t.store.UpsertProgress(ctx, rec); err != nil {
		return fmt.Errorf("record step start %s: %w", step, err)
	}
	return nil
}

// StepResult finishes a step. With an empty errMsg the completion timestamp
// is set; with a non-empty errMsg it stays null so a failed step remains
// distinguishable from one still in flight.
func (t *Tracker) StepResult(ctx context.Context, region string, year int, month time.Month, step domain.ProgressStep, counts domain.StepCounts, errMsg string) error {
	rec := domain.ProgressRecord{
		Region:       region,
		Year:         year,
		Month:        month,
		Step:         step,
		StartedAt:    t.clock.Now().UTC(),
		Counts:       counts,
		ErrorMessage: errMsg,
	}

	// Preserve the original start time and metadata when the start row
	// exists; the upsert overwrites every column.
	if prev, err := t.store.GetProgress(ctx, region, year, month, step); err == nil && prev != nil {
		rec.StartedAt = prev.StartedAt
		rec.Metadata = prev.Metadata
	}

	if errMsg == "" {
		now := t.clock.Now().UTC()
		rec.CompletedAt = &now
	}

	if err := t.store.UpsertProgress(ctx, rec); err != nil {
		return fmt.Errorf("record step result %s: %w", step, err)
	}
	return nil
}

// Latest returns the most recently started step for a unit, or nil when the
// unit was never touched.
func (t *Tracker) Latest(ctx context.Context, region string, year int, month time.Month) (*domain.ProgressRecord, error) {
	return t.store.LatestProgress(ctx, region, year, month)
}
