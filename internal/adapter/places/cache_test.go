package places

import (
	"context"
	"testing"
	"time"

	"github.com/couchcryptid/storm-archive-backfill/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock for cache tests ---

type countingFinder struct {
	nearbyCalls  int
	reverseCalls int
	textCalls    int
	nearby       []domain.PlaceCandidate
	single       domain.PlaceCandidate
}

func (m *countingFinder) NearbySearch(_ context.Context, _, _, _ float64, _ string) ([]domain.PlaceCandidate, error) {
	m.nearbyCalls++
	return m.nearby, nil
}

func (m *countingFinder) ReverseLookup(_ context.Context, _, _ float64) (domain.PlaceCandidate, error) {
	m.reverseCalls++
	return m.single, nil
}

func (m *countingFinder) TextSearch(_ context.Context, _ string) (domain.PlaceCandidate, error) {
	m.textCalls++
	return m.single, nil
}

func TestCachedFinder_NearbyCacheHit(t *testing.T) {
	inner := &countingFinder{nearby: []domain.PlaceCandidate{{Name: "Lincoln Elementary"}}}
	cached := NewCachedFinder(inner, 10, time.Hour, clockwork.NewFakeClock())

	r1, err := cached.NearbySearch(context.Background(), 35.0, -97.0, 5.0, "school")
	require.NoError(t, err)
	require.Len(t, r1, 1)

	r2, err := cached.NearbySearch(context.Background(), 35.0, -97.0, 5.0, "school")
	require.NoError(t, err)
	assert.Equal(t, r1, r2)

	assert.Equal(t, 1, inner.nearbyCalls, "should only call inner once")
}

func TestCachedFinder_DifferentCategoryMisses(t *testing.T) {
	inner := &countingFinder{nearby: []domain.PlaceCandidate{{Name: "X"}}}
	cached := NewCachedFinder(inner, 10, time.Hour, clockwork.NewFakeClock())

	_, _ = cached.NearbySearch(context.Background(), 35.0, -97.0, 5.0, "school")
	_, _ = cached.NearbySearch(context.Background(), 35.0, -97.0, 5.0, "hospital")

	assert.Equal(t, 2, inner.nearbyCalls)
}

func TestCachedFinder_TTLExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	inner := &countingFinder{single: domain.PlaceCandidate{Name: "Norman"}}
	cached := NewCachedFinder(inner, 10, time.Hour, clock)

	_, err := cached.ReverseLookup(context.Background(), 35.2, -97.4)
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	_, err = cached.ReverseLookup(context.Background(), 35.2, -97.4)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.reverseCalls, "entry still fresh")

	clock.Advance(31 * time.Minute)
	_, err = cached.ReverseLookup(context.Background(), 35.2, -97.4)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.reverseCalls, "entry expired after the TTL")
}

func TestCachedFinder_EmptyResultsNotCached(t *testing.T) {
	inner := &countingFinder{}
	cached := NewCachedFinder(inner, 10, time.Hour, clockwork.NewFakeClock())

	_, _ = cached.TextSearch(context.Background(), "nowhere")
	_, _ = cached.TextSearch(context.Background(), "nowhere")

	assert.Equal(t, 2, inner.textCalls, "empty answers should be retried")
}

func TestTTLCache_SizeCapEvictsOldest(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := newTTLCache(2, time.Hour, clock)

	c.put("a", 1)
	clock.Advance(time.Minute)
	c.put("b", 2)
	clock.Advance(time.Minute)
	c.put("c", 3) // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok)
	v, ok := c.get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	_, ok = c.get("c")
	assert.True(t, ok)
}

func TestTTLCache_OverwriteSameKey(t *testing.T) {
	c := newTTLCache(2, time.Hour, clockwork.NewFakeClock())

	c.put("a", 1)
	c.put("a", 2)

	v, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}
