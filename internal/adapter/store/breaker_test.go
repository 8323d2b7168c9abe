package store

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chrysalis/internal/domain"
	"chrysalis/internal/infra/config"
)

// flakyStore fails every call with err.
type flakyStore struct {
	domain.Store
	err   error
	calls int
}

func (f *flakyStore) GetMission(context.Context, string) (*domain.Mission, error) {
	f.calls++
	return nil, f.err
}

func (f *flakyStore) Ping(context.Context) error {
	f.calls++
	return f.err
}

func (f *flakyStore) Close() error { return nil }

func newTestBreaker(inner domain.Store, maxFailures uint32) *BreakerStore {
	return NewBreakerStore(inner, config.CircuitBreakerConfig{
		Enabled:     true,
		MaxFailures: maxFailures,
		Timeout:     time.Hour,
	}, slog.Default())
}

func TestBreakerStore_TripsOnConsecutiveFailures(t *testing.T) {
	inner := &flakyStore{err: errors.New("disk I/O error")}
	b := newTestBreaker(inner, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := b.Ping(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrStoreUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	err := b.Ping(ctx)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, domain.CodeStoreUnavailable, domain.ErrorCodeOf(err))
	assert.Equal(t, 3, inner.calls, "open breaker must not reach the store")
}

func TestBreakerStore_NotFoundDoesNotTrip(t *testing.T) {
	inner := &flakyStore{err: domain.NewSubSystemError(domain.SubSystemMission, "Store.GetMission", domain.ErrNotFound, "x")}
	b := newTestBreaker(inner, 2)

	for i := 0; i < 5; i++ {
		_, err := b.GetMission(context.Background(), "x")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, 5, inner.calls)
}

func TestBreakerStore_PassesThroughResults(t *testing.T) {
	s := newTestStore(t)
	b := newTestBreaker(s, 0)
	ctx := context.Background()

	m := &domain.Mission{Title: "Op Ghost", Status: domain.MissionAssigned, ClassificationLevel: domain.ClassificationSecret}
	require.NoError(t, b.CreateMission(ctx, m))

	got, err := b.GetMission(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Op Ghost", got.Title)

	list, err := b.ListMissions(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
