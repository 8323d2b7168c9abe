package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chrysalis/internal/domain"
	"chrysalis/internal/usecase/eventbus"
)

func decodeNotification(t *testing.T, f Frame) domain.MissionNotification {
	t.Helper()
	require.Equal(t, FrameTypeEvent, f.Type)
	require.Equal(t, EventMissionNotification, f.Method)
	var n domain.MissionNotification
	require.NoError(t, json.Unmarshal(f.Payload, &n))
	return n
}

func TestDispatcher_TargetsRegisteredAgent(t *testing.T) {
	r := NewRegistry()
	bond, other := newFakeConn(1), newFakeConn(2)
	bind(t, r, "agent-007", bond)
	bind(t, r, "agent-009", other)
	d := NewDispatcher(r, nil, slog.Default())

	n := domain.NewMissionNotification("m-1", domain.NotifyCreated, "agent-007", "Mission 'Op Ghost' created")
	out := d.Dispatch(context.Background(), n)

	assert.Equal(t, domain.DeliveryOutcome{Mode: domain.DeliveryTargeted, Attempted: 1, Delivered: 1}, out)
	require.Len(t, bond.received(), 1)
	assert.Empty(t, other.received())
	assert.Equal(t, n.ID, decodeNotification(t, bond.received()[0]).ID)
}

func TestDispatcher_FallsBackToBroadcast(t *testing.T) {
	for _, agent := range []string{"", domain.BroadcastAgentID, "agent-unknown"} {
		t.Run("agent="+agent, func(t *testing.T) {
			r := NewRegistry()
			a, b, anon := newFakeConn(1), newFakeConn(2), newFakeConn(3)
			bind(t, r, "agent-007", a)
			bind(t, r, "agent-009", b)
			r.Add(anon)
			d := NewDispatcher(r, nil, slog.Default())

			out := d.Dispatch(context.Background(), domain.MissionNotification{MissionID: "m-1", EventType: domain.NotifyUpdated, AgentID: agent})
			assert.Equal(t, domain.DeliveryBroadcast, out.Mode)
			assert.Equal(t, 3, out.Attempted)
			assert.Equal(t, 3, out.Delivered)
			for _, c := range []*fakeConn{a, b, anon} {
				assert.Len(t, c.received(), 1)
			}
		})
	}
}

func TestDispatcher_BroadcastAllIgnoresAgent(t *testing.T) {
	r := NewRegistry()
	a, b := newFakeConn(1), newFakeConn(2)
	bind(t, r, "agent-007", a)
	bind(t, r, "agent-009", b)
	d := NewDispatcher(r, nil, slog.Default())

	out := d.BroadcastAll(context.Background(), domain.NewMissionNotification("m-1", domain.NotifyStepAdded, "agent-007", "x"))
	assert.Equal(t, domain.DeliveryBroadcast, out.Mode)
	assert.Equal(t, len(r.ListAgents()), out.Delivered)
	assert.Len(t, b.received(), 1)
}

func TestDispatcher_FailedSendsAreCountedNotReturned(t *testing.T) {
	r := NewRegistry()
	ok, closed, full := newFakeConn(1), newFakeConn(2), newFakeConn(3)
	closed.Close("gone")
	full.full = true
	r.Add(ok)
	r.Add(closed)
	bind(t, r, "agent-007", full)

	bus := eventbus.New(slog.Default())
	d := NewDispatcher(r, bus, slog.Default())

	out := d.BroadcastAll(context.Background(), domain.NewMissionNotification("m-1", domain.NotifyReportAdded, "", "x"))
	assert.Equal(t, 3, out.Attempted)
	assert.Equal(t, 1, out.Delivered)

	target := d.Dispatch(context.Background(), domain.NewMissionNotification("m-1", domain.NotifyUpdated, "agent-007", "x"))
	assert.Equal(t, domain.DeliveryOutcome{Mode: domain.DeliveryTargeted, Attempted: 1, Delivered: 0}, target)

	bus.Close()
	counts := bus.Published()
	assert.Equal(t, uint64(1), counts[domain.EventNotificationBroadcast])
	assert.Equal(t, uint64(1), counts[domain.EventNotificationTargeted])
	assert.Equal(t, uint64(2), counts[domain.EventNotificationUndelivered])
}

func TestDispatcher_NoConnections(t *testing.T) {
	d := NewDispatcher(NewRegistry(), nil, slog.Default())
	out := d.Dispatch(context.Background(), domain.NewMissionNotification("m-1", domain.NotifyCreated, "agent-007", "x"))
	assert.Equal(t, domain.DeliveryOutcome{Mode: domain.DeliveryBroadcast}, out)
}
