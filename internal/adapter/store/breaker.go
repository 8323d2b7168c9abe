package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"chrysalis/internal/domain"
	"chrysalis/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// BreakerStore guards a domain.Store with a circuit breaker. After
// MaxFailures consecutive store failures every call fails fast with
// domain.ErrStoreUnavailable until the breaker half-opens again.
// Lookups of missing rows and rejected input do not count as failures.
type BreakerStore struct {
	inner   domain.Store
	breaker *gobreaker.CircuitBreaker[struct{}]
}

var _ domain.Store = (*BreakerStore)(nil)

// NewBreakerStore wraps inner. Zero-valued cfg fields fall back to defaults.
func NewBreakerStore(inner domain.Store, cfg config.CircuitBreakerConfig, logger *slog.Logger) *BreakerStore {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "store",
		MaxRequests: 1, // single probe while half-open
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: isHealthyOutcome,
	})

	return &BreakerStore{inner: inner, breaker: cb}
}

// isHealthyOutcome reports whether err says nothing about store health.
func isHealthyOutcome(err error) bool {
	return err == nil ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, context.Canceled)
}

func (b *BreakerStore) call(op string, fn func() error) error {
	_, err := b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.NewDomainError(op, domain.ErrStoreUnavailable, "circuit open")
	}
	return err
}

// State returns the current circuit breaker state for monitoring.
func (b *BreakerStore) State() gobreaker.State {
	return b.breaker.State()
}

func (b *BreakerStore) CreateMission(ctx context.Context, m *domain.Mission) error {
	return b.call("Store.CreateMission", func() error { return b.inner.CreateMission(ctx, m) })
}

func (b *BreakerStore) GetMission(ctx context.Context, id string) (*domain.Mission, error) {
	var m *domain.Mission
	err := b.call("Store.GetMission", func() (err error) {
		m, err = b.inner.GetMission(ctx, id)
		return err
	})
	return m, err
}

func (b *BreakerStore) ListMissions(ctx context.Context) ([]domain.Mission, error) {
	var ms []domain.Mission
	err := b.call("Store.ListMissions", func() (err error) {
		ms, err = b.inner.ListMissions(ctx)
		return err
	})
	return ms, err
}

func (b *BreakerStore) UpdateMission(ctx context.Context, m *domain.Mission) error {
	return b.call("Store.UpdateMission", func() error { return b.inner.UpdateMission(ctx, m) })
}

func (b *BreakerStore) DeleteMission(ctx context.Context, id string) error {
	return b.call("Store.DeleteMission", func() error { return b.inner.DeleteMission(ctx, id) })
}

func (b *BreakerStore) CreateStep(ctx context.Context, s *domain.Step) error {
	return b.call("Store.CreateStep", func() error { return b.inner.CreateStep(ctx, s) })
}

func (b *BreakerStore) GetStep(ctx context.Context, id string) (*domain.Step, error) {
	var s *domain.Step
	err := b.call("Store.GetStep", func() (err error) {
		s, err = b.inner.GetStep(ctx, id)
		return err
	})
	return s, err
}

func (b *BreakerStore) ListSteps(ctx context.Context, missionID string) ([]domain.Step, error) {
	var ss []domain.Step
	err := b.call("Store.ListSteps", func() (err error) {
		ss, err = b.inner.ListSteps(ctx, missionID)
		return err
	})
	return ss, err
}

func (b *BreakerStore) UpdateStep(ctx context.Context, s *domain.Step) error {
	return b.call("Store.UpdateStep", func() error { return b.inner.UpdateStep(ctx, s) })
}

func (b *BreakerStore) DeleteStep(ctx context.Context, id string) error {
	return b.call("Store.DeleteStep", func() error { return b.inner.DeleteStep(ctx, id) })
}

func (b *BreakerStore) CreateReport(ctx context.Context, r *domain.FieldReport) error {
	return b.call("Store.CreateReport", func() error { return b.inner.CreateReport(ctx, r) })
}

func (b *BreakerStore) GetReport(ctx context.Context, id string) (*domain.FieldReport, error) {
	var r *domain.FieldReport
	err := b.call("Store.GetReport", func() (err error) {
		r, err = b.inner.GetReport(ctx, id)
		return err
	})
	return r, err
}

func (b *BreakerStore) ListReports(ctx context.Context, missionID string) ([]domain.FieldReport, error) {
	var rs []domain.FieldReport
	err := b.call("Store.ListReports", func() (err error) {
		rs, err = b.inner.ListReports(ctx, missionID)
		return err
	})
	return rs, err
}

func (b *BreakerStore) UpdateReport(ctx context.Context, r *domain.FieldReport) error {
	return b.call("Store.UpdateReport", func() error { return b.inner.UpdateReport(ctx, r) })
}

func (b *BreakerStore) DeleteReport(ctx context.Context, id string) error {
	return b.call("Store.DeleteReport", func() error { return b.inner.DeleteReport(ctx, id) })
}

func (b *BreakerStore) Ping(ctx context.Context) error {
	return b.call("Store.Ping", func() error { return b.inner.Ping(ctx) })
}

// Close bypasses the breaker.
func (b *BreakerStore) Close() error { return b.inner.Close() }
