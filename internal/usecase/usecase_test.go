package usecase

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"chrysalis/internal/adapter/store"
	"chrysalis/internal/domain"
)

// recordingNotifier captures notifications instead of delivering them.
type recordingNotifier struct {
	mu        sync.Mutex
	targeted  []domain.MissionNotification
	broadcast []domain.MissionNotification
}

func (r *recordingNotifier) Dispatch(_ context.Context, n domain.MissionNotification) domain.DeliveryOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targeted = append(r.targeted, n)
	return domain.DeliveryOutcome{Mode: domain.DeliveryTargeted, Attempted: 1, Delivered: 1}
}

func (r *recordingNotifier) BroadcastAll(_ context.Context, n domain.MissionNotification) domain.DeliveryOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcast = append(r.broadcast, n)
	return domain.DeliveryOutcome{Mode: domain.DeliveryBroadcast}
}

func (r *recordingNotifier) all() []domain.MissionNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]domain.MissionNotification{}, r.targeted...)
	return append(out, r.broadcast...)
}

// brokenStore fails every mission write.
type brokenStore struct {
	domain.Store
}

var errDiskGone = errors.New("disk I/O error")

func (brokenStore) UpdateMission(context.Context, *domain.Mission) error { return errDiskGone }
func (brokenStore) DeleteMission(context.Context, string) error          { return errDiskGone }

type fixture struct {
	store    domain.Store
	notifier *recordingNotifier
	missions *MissionManager
	steps    *StepCoordinator
	reports  *ReportCoordinator
}

func newFixtureWith(t *testing.T, wrap func(domain.Store) domain.Store) *fixture {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "missions.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	var st domain.Store = s
	if wrap != nil {
		st = wrap(s)
	}
	n := &recordingNotifier{}
	logger := slog.Default()
	missions := NewMissionManager(st, n, nil, logger)
	return &fixture{
		store:    st,
		notifier: n,
		missions: missions,
		steps:    NewStepCoordinator(st, missions, n, nil, logger),
		reports:  NewReportCoordinator(st, missions, n, nil, logger),
	}
}

func newFixture(t *testing.T) *fixture { return newFixtureWith(t, nil) }

func (f *fixture) mission(t *testing.T, title, agent string) *domain.Mission {
	t.Helper()
	m, err := f.missions.Create(context.Background(), domain.MissionInput{Title: title, AgentID: agent})
	require.NoError(t, err)
	return m
}
