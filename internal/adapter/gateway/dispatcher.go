package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"chrysalis/internal/domain"
)

// Dispatcher delivers mission notifications over the registry's connections.
// Delivery is best effort: failures are counted and logged, never returned.
type Dispatcher struct {
	registry *Registry
	bus      domain.EventBus // nil = no delivery telemetry
	logger   *slog.Logger
}

var _ domain.Notifier = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher.
func NewDispatcher(registry *Registry, bus domain.EventBus, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, bus: bus, logger: logger}
}

// Dispatch targets n.AgentID when that agent is registered and broadcasts to
// every connection otherwise.
func (d *Dispatcher) Dispatch(ctx context.Context, n domain.MissionNotification) domain.DeliveryOutcome {
	if n.AgentID == "" || n.AgentID == domain.BroadcastAgentID {
		return d.BroadcastAll(ctx, n)
	}
	c, ok := d.registry.Lookup(n.AgentID)
	if !ok {
		d.logger.Debug("agent not connected, broadcasting instead",
			"agent_id", n.AgentID, "mission_id", n.MissionID)
		return d.BroadcastAll(ctx, n)
	}

	frame, err := eventFrame(EventMissionNotification, n)
	if err != nil {
		d.logger.Error("encode notification", "error", err)
		return domain.DeliveryOutcome{Mode: domain.DeliveryTargeted}
	}
	out := domain.DeliveryOutcome{Mode: domain.DeliveryTargeted, Attempted: 1}
	out.Delivered = fanOut(d.logger, []Conn{c}, frame, nil)
	d.report(ctx, n, out)
	return out
}

// BroadcastAll delivers n to every live connection.
func (d *Dispatcher) BroadcastAll(ctx context.Context, n domain.MissionNotification) domain.DeliveryOutcome {
	out := domain.DeliveryOutcome{Mode: domain.DeliveryBroadcast}
	frame, err := eventFrame(EventMissionNotification, n)
	if err != nil {
		d.logger.Error("encode notification", "error", err)
		return out
	}
	conns := d.registry.Connections()
	out.Attempted = len(conns)
	out.Delivered = fanOut(d.logger, conns, frame, nil)
	d.report(ctx, n, out)
	return out
}

func (d *Dispatcher) report(ctx context.Context, n domain.MissionNotification, out domain.DeliveryOutcome) {
	if out.Delivered < out.Attempted {
		d.logger.Warn("notification partially undelivered",
			"mission_id", n.MissionID,
			"event", string(n.EventType),
			"mode", string(out.Mode),
			"attempted", out.Attempted,
			"delivered", out.Delivered,
		)
	}
	if d.bus == nil {
		return
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return
	}
	evType := domain.EventNotificationBroadcast
	if out.Mode == domain.DeliveryTargeted {
		evType = domain.EventNotificationTargeted
	}
	ev := domain.Event{
		Type:      evType,
		Timestamp: time.Now(),
		MissionID: n.MissionID,
		AgentID:   n.AgentID,
		Payload:   payload,
	}
	d.bus.Publish(ctx, ev)
	if out.Delivered < out.Attempted {
		ev.Type = domain.EventNotificationUndelivered
		d.bus.Publish(ctx, ev)
	}
}

// fanOut enqueues f on every connection except skip and returns how many
// accepted it.
func fanOut(logger *slog.Logger, conns []Conn, f Frame, skip Conn) int {
	delivered := 0
	for _, c := range conns {
		if skip != nil && c == skip {
			continue
		}
		if err := c.Send(f); err != nil {
			logger.Debug("send skipped", "conn_id", c.ID(), "event", f.Method, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}
