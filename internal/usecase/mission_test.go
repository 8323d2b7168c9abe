package usecase

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"chrysalis/internal/domain"
	"chrysalis/internal/infra/tracer"
	"chrysalis/internal/usecase/eventbus"
)

func TestMissionManager_CreateNotifiesAgent(t *testing.T) {
	f := newFixture(t)
	m := f.mission(t, "Op Ghost", "agent-007")

	assert.Equal(t, domain.MissionAssigned, m.Status)
	assert.NotEmpty(t, m.ID)
	require.Len(t, f.notifier.targeted, 1)
	n := f.notifier.targeted[0]
	assert.Equal(t, domain.NotifyCreated, n.EventType)
	assert.Equal(t, "agent-007", n.AgentID)
	assert.Equal(t, m.ID, n.MissionID)
	assert.Empty(t, f.notifier.broadcast)
}

func TestMissionManager_SpanRecordsDelivery(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	f := newFixture(t)
	m := f.mission(t, "Op Ghost", "agent-007")

	var create sdktrace.ReadOnlySpan
	for _, s := range rec.Ended() {
		if s.Name() == "mission.create" {
			create = s
		}
	}
	require.NotNil(t, create)
	attrs := map[string]string{}
	for _, kv := range create.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, m.ID, attrs[string(tracer.KeyMissionID)])
	assert.Equal(t, string(domain.NotifyCreated), attrs[string(tracer.KeyEvent)])
	assert.Equal(t, string(domain.DeliveryTargeted), attrs[string(tracer.KeyDelivery)])
	assert.Equal(t, "1", attrs[string(tracer.KeyDelivered)])
}

func TestMissionManager_CreateWithoutAgentUsesSentinel(t *testing.T) {
	f := newFixture(t)
	f.mission(t, "Op Ghost", "")
	require.Len(t, f.notifier.targeted, 1)
	assert.Equal(t, domain.BroadcastAgentID, f.notifier.targeted[0].AgentID)
}

func TestMissionManager_InvalidInputIsNotPersisted(t *testing.T) {
	f := newFixture(t)
	_, err := f.missions.Create(context.Background(), domain.MissionInput{Title: "x", Status: "LOST"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	all, err := f.missions.FindAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, f.notifier.all())
}

func TestMissionManager_CancelAndComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.mission(t, "Op Ghost", "agent-007")

	done, err := f.missions.Complete(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MissionCompleted, done.Status)

	cancelled, err := f.missions.Cancel(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MissionCancelled, cancelled.Status)

	got, err := f.missions.FindOne(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MissionCancelled, got.Status)

	events := []domain.MissionEventType{}
	for _, n := range f.notifier.targeted {
		events = append(events, n.EventType)
	}
	assert.Equal(t, []domain.MissionEventType{domain.NotifyCreated, domain.NotifyCompleted, domain.NotifyCancelled}, events)
}

func TestMissionManager_Update(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.mission(t, "Op Ghost", "agent-007")

	agent := "agent-009"
	status := domain.MissionCompromised
	got, err := f.missions.Update(ctx, m.ID, domain.MissionPatch{AgentID: &agent, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, domain.MissionCompromised, got.Status)
	assert.Equal(t, "Op Ghost", got.Title)

	last := f.notifier.targeted[len(f.notifier.targeted)-1]
	assert.Equal(t, domain.NotifyUpdated, last.EventType)
	assert.Equal(t, "agent-009", last.AgentID, "notification follows the persisted mission")
}

func TestMissionManager_UnknownID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.missions.FindOne(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.missions.Cancel(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.missions.Complete(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.missions.Update(ctx, "missing", domain.MissionPatch{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, f.missions.Delete(ctx, "missing"), domain.ErrNotFound)
	assert.Empty(t, f.notifier.all())
}

func TestMissionManager_DeleteCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.mission(t, "Op Ghost", "agent-007")
	st, err := f.steps.Create(ctx, m.ID, domain.StepInput{Title: "Recon"})
	require.NoError(t, err)
	r, err := f.reports.Create(ctx, m.ID, domain.FieldReportInput{EncryptedContent: "x"})
	require.NoError(t, err)

	require.NoError(t, f.missions.Delete(ctx, m.ID))

	_, err = f.missions.FindOne(ctx, m.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.steps.FindOne(ctx, st.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.reports.FindOne(ctx, r.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	last := f.notifier.targeted[len(f.notifier.targeted)-1]
	assert.Equal(t, domain.NotifyDeleted, last.EventType)
	assert.Equal(t, "agent-007", last.AgentID)
}

func TestMissionManager_StoreFailureSkipsNotification(t *testing.T) {
	f := newFixtureWith(t, func(s domain.Store) domain.Store { return brokenStore{s} })
	ctx := context.Background()
	m := f.mission(t, "Op Ghost", "agent-007")
	before := len(f.notifier.all())

	_, err := f.missions.Cancel(ctx, m.ID)
	assert.ErrorIs(t, err, errDiskGone)
	assert.ErrorIs(t, f.missions.Delete(ctx, m.ID), errDiskGone)
	assert.Len(t, f.notifier.all(), before)
}

func TestMissionManager_PublishesChangeEvents(t *testing.T) {
	f := newFixture(t)
	bus := eventbus.New(slog.Default())
	var changes atomic.Int32
	bus.Subscribe(domain.EventMissionChanged, func(_ context.Context, e domain.Event) {
		if e.MissionID != "" && len(e.Payload) > 0 {
			changes.Add(1)
		}
	})
	mgr := NewMissionManager(f.store, f.notifier, bus, slog.Default())

	m, err := mgr.Create(context.Background(), domain.MissionInput{Title: "Op Ghost"})
	require.NoError(t, err)
	_, err = mgr.Complete(context.Background(), m.ID)
	require.NoError(t, err)

	bus.Close()
	assert.Equal(t, int32(2), changes.Load())
}
