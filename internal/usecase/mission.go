package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"chrysalis/internal/domain"
	"chrysalis/internal/infra/tracer"
)

// MissionManager owns mission state transitions. Each mutation is persisted,
// re-read, and only then announced through the Notifier.
type MissionManager struct {
	store    domain.MissionStore
	notifier domain.Notifier
	bus      domain.EventBus // nil = no change events
	logger   *slog.Logger
}

// NewMissionManager creates a MissionManager.
func NewMissionManager(store domain.MissionStore, notifier domain.Notifier, bus domain.EventBus, logger *slog.Logger) *MissionManager {
	return &MissionManager{
		store:    store,
		notifier: notifier,
		bus:      bus,
		logger:   logger,
	}
}

// Create persists a new mission and notifies its agent.
func (m *MissionManager) Create(ctx context.Context, in domain.MissionInput) (*domain.Mission, error) {
	ctx, span := tracer.StartSpan(ctx, "mission.create",
		trace.WithAttributes(tracer.AgentAttr(in.AgentID)),
	)
	defer span.End()

	t, err := planCreate(in)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if err := m.store.CreateMission(ctx, &t.Mission); err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("MissionManager.Create", err)
	}
	span.SetAttributes(tracer.MissionAttr(t.Mission.ID))
	return m.commit(ctx, span, t)
}

// FindAll returns every mission with its steps and reports.
func (m *MissionManager) FindAll(ctx context.Context) ([]domain.Mission, error) {
	ctx, span := tracer.StartSpan(ctx, "mission.find_all")
	defer span.End()

	missions, err := m.store.ListMissions(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("MissionManager.FindAll", err)
	}
	span.SetAttributes(tracer.CountAttr(len(missions)))
	return missions, nil
}

// FindOne returns a mission or an error wrapping domain.ErrNotFound.
func (m *MissionManager) FindOne(ctx context.Context, id string) (*domain.Mission, error) {
	ctx, span := tracer.StartSpan(ctx, "mission.find_one",
		trace.WithAttributes(tracer.MissionAttr(id)),
	)
	defer span.End()

	mission, err := m.store.GetMission(ctx, id)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("MissionManager.FindOne", err)
	}
	return mission, nil
}

// Update applies a partial update. Status may be set to any known value.
func (m *MissionManager) Update(ctx context.Context, id string, p domain.MissionPatch) (*domain.Mission, error) {
	return m.transition(ctx, "mission.update", id, func(cur domain.Mission) (Transition, error) {
		return planUpdate(cur, p)
	})
}

// Cancel forces the mission to CANCELLED whatever its current status.
func (m *MissionManager) Cancel(ctx context.Context, id string) (*domain.Mission, error) {
	return m.transition(ctx, "mission.cancel", id, func(cur domain.Mission) (Transition, error) {
		return planCancel(cur), nil
	})
}

// Complete forces the mission to COMPLETED whatever its current status.
func (m *MissionManager) Complete(ctx context.Context, id string) (*domain.Mission, error) {
	return m.transition(ctx, "mission.complete", id, func(cur domain.Mission) (Transition, error) {
		return planComplete(cur), nil
	})
}

// Delete removes the mission together with its steps and reports.
func (m *MissionManager) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.StartSpan(ctx, "mission.delete",
		trace.WithAttributes(tracer.MissionAttr(id)),
	)
	defer span.End()

	cur, err := m.FindOne(ctx, id)
	if err != nil {
		tracer.RecordError(span, err)
		return err
	}
	if err := m.store.DeleteMission(ctx, id); err != nil {
		tracer.RecordError(span, err)
		return domain.WrapOp("MissionManager.Delete", err)
	}

	t := planDelete(*cur)
	m.announce(ctx, missionNotification(t), true)
	m.logger.Info("mission deleted", "mission_id", id)
	tracer.SetOK(span)
	return nil
}

func (m *MissionManager) transition(ctx context.Context, spanName, id string, plan func(domain.Mission) (Transition, error)) (*domain.Mission, error) {
	ctx, span := tracer.StartSpan(ctx, spanName,
		trace.WithAttributes(tracer.MissionAttr(id)),
	)
	defer span.End()

	cur, err := m.FindOne(ctx, id)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	t, err := plan(*cur)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if err := m.store.UpdateMission(ctx, &t.Mission); err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("MissionManager.Update", err)
	}
	return m.commit(ctx, span, t)
}

// commit re-reads the persisted mission and announces the transition.
func (m *MissionManager) commit(ctx context.Context, span trace.Span, t Transition) (*domain.Mission, error) {
	saved, err := m.store.GetMission(ctx, t.Mission.ID)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("MissionManager.reload", err)
	}
	t.Mission = *saved
	m.announce(ctx, missionNotification(t), true)

	m.logger.Info("mission "+string(t.Event),
		"mission_id", saved.ID,
		"status", string(saved.Status),
		"agent_id", saved.AgentID,
	)
	tracer.SetOK(span)
	return saved, nil
}

// announce hands n to the notifier. Targeted announcements fall back to a
// broadcast inside the notifier; child announcements always broadcast.
func (m *MissionManager) announce(ctx context.Context, n domain.MissionNotification, targeted bool) {
	announce(ctx, m.notifier, m.bus, m.logger, n, targeted)
}

func announce(ctx context.Context, notifier domain.Notifier, bus domain.EventBus, logger *slog.Logger, n domain.MissionNotification, targeted bool) {
	var out domain.DeliveryOutcome
	if targeted {
		out = notifier.Dispatch(ctx, n)
	} else {
		out = notifier.BroadcastAll(ctx, n)
	}
	trace.SpanFromContext(ctx).SetAttributes(
		append(tracer.DeliveryAttrs(string(out.Mode), out.Attempted, out.Delivered),
			tracer.EventAttr(string(n.EventType)))...,
	)
	logger.Debug("notification dispatched",
		"mission_id", n.MissionID,
		"event", string(n.EventType),
		"mode", string(out.Mode),
		"attempted", out.Attempted,
		"delivered", out.Delivered,
	)

	if bus == nil {
		return
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return
	}
	bus.Publish(ctx, domain.Event{
		Type:      domain.EventMissionChanged,
		Timestamp: time.Now(),
		MissionID: n.MissionID,
		AgentID:   n.AgentID,
		Payload:   payload,
	})
}
