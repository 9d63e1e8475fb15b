package backfill_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-archive-backfill/internal/backfill"
	"github.com/couchcryptid/storm-archive-backfill/internal/domain"
)

func TestTracker_StepLifecycle(t *testing.T) {
	store := newTestStore(t)
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	tracker := backfill.NewTracker(store, clock)
	ctx := context.Background()

	meta := map[string]string{"attempts": "3"}
	require.NoError(t, tracker.StepStart(ctx, "OUN", 2024, time.April, domain.StepDownload, meta))

	rec, err := store.GetProgress(ctx, "OUN", 2024, time.April, domain.StepDownload)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.InFlight())
	assert.Equal(t, meta, rec.Metadata)
	startedAt := rec.StartedAt

	clock.Advance(42 * time.Second)
	counts := domain.StepCounts{Processed: 10, Inserted: 7, Updated: 2, Skipped: 1}
	require.NoError(t, tracker.StepResult(ctx, "OUN", 2024, time.April, domain.StepDownload, counts, ""))

	rec, err = store.GetProgress(ctx, "OUN", 2024, time.April, domain.StepDownload)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, startedAt, rec.StartedAt, "result must not clobber the start time")
	assert.Equal(t, meta, rec.Metadata)
	assert.Equal(t, counts, rec.Counts)
	require.NotNil(t, rec.CompletedAt)
	assert.False(t, rec.InFlight())
}

func TestTracker_StepResultWithErrorLeavesCompletionNull(t *testing.T) {
	store := newTestStore(t)
	tracker := backfill.NewTracker(store, clockwork.NewFakeClock())
	ctx := context.Background()

	require.NoError(t, tracker.StepStart(ctx, "OUN", 2024, time.April, domain.StepDownload, nil))
	require.NoError(t, tracker.StepResult(ctx, "OUN", 2024, time.April, domain.StepDownload, domain.StepCounts{}, "503 from upstream"))

	rec, err := store.GetProgress(ctx, "OUN", 2024, time.April, domain.StepDownload)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Failed())
	assert.Nil(t, rec.CompletedAt)
	assert.Equal(t, "503 from upstream", rec.ErrorMessage)
}

func TestTracker_StepStartIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	tracker := backfill.NewTracker(store, clockwork.NewFakeClock())
	ctx := context.Background()

	require.NoError(t, tracker.StepStart(ctx, "OUN", 2024, time.April, domain.StepParse, nil))
	require.NoError(t, tracker.StepStart(ctx, "OUN", 2024, time.April, domain.StepParse, nil))

	rec, err := store.GetProgress(ctx, "OUN", 2024, time.April, domain.StepParse)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.InFlight())
}
