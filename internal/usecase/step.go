package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"chrysalis/internal/domain"
	"chrysalis/internal/infra/tracer"
)

// StepCoordinator manages mission steps. Every mutation resolves the owning
// mission through MissionManager.FindOne and broadcasts a step_* notification.
type StepCoordinator struct {
	store    domain.StepStore
	missions *MissionManager
	notifier domain.Notifier
	bus      domain.EventBus
	logger   *slog.Logger
}

// NewStepCoordinator creates a StepCoordinator.
func NewStepCoordinator(store domain.StepStore, missions *MissionManager, notifier domain.Notifier, bus domain.EventBus, logger *slog.Logger) *StepCoordinator {
	return &StepCoordinator{
		store:    store,
		missions: missions,
		notifier: notifier,
		bus:      bus,
		logger:   logger,
	}
}

// Create adds a step to missionID. in.MissionID is ignored.
func (c *StepCoordinator) Create(ctx context.Context, missionID string, in domain.StepInput) (*domain.Step, error) {
	const op = "StepCoordinator.Create"
	ctx, span := tracer.StartSpan(ctx, "step.create",
		trace.WithAttributes(tracer.MissionAttr(missionID)),
	)
	defer span.End()

	mission, err := c.missions.FindOne(ctx, missionID)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if err := checkDates(op, domain.SubSystemStep, in.StartDate, in.EndDate); err != nil {
		return nil, err
	}

	st := &domain.Step{
		MissionID:             mission.ID,
		Title:                 in.Title,
		Description:           in.Description,
		AssignedAgent:         in.AssignedAgent,
		Location:              in.Location,
		StartDate:             in.StartDate,
		EndDate:               in.EndDate,
		Status:                in.Status,
		Order:                 in.Order,
		EncryptedInstructions: in.EncryptedInstructions,
	}
	if err := c.store.CreateStep(ctx, st); err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp(op, err)
	}
	saved, err := c.store.GetStep(ctx, st.ID)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp(op, err)
	}

	c.announce(ctx, *mission, domain.NotifyStepAdded, fmt.Sprintf("Step '%s' added", stepLabel(*saved)))
	tracer.SetOK(span)
	return saved, nil
}

// FindOne returns a step by id.
func (c *StepCoordinator) FindOne(ctx context.Context, id string) (*domain.Step, error) {
	st, err := c.store.GetStep(ctx, id)
	if err != nil {
		return nil, domain.WrapOp("StepCoordinator.FindOne", err)
	}
	return st, nil
}

// FindInMission returns the step only if it belongs to missionID.
func (c *StepCoordinator) FindInMission(ctx context.Context, missionID, id string) (*domain.Step, error) {
	st, err := c.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.MissionID != missionID {
		return nil, domain.NewSubSystemError(domain.SubSystemStep, "StepCoordinator.FindInMission", domain.ErrNotFound, id)
	}
	return st, nil
}

// FindByMission returns the ordered steps of a mission.
func (c *StepCoordinator) FindByMission(ctx context.Context, missionID string) ([]domain.Step, error) {
	mission, err := c.missions.FindOne(ctx, missionID)
	if err != nil {
		return nil, err
	}
	return mission.Steps, nil
}

// FindAll returns every step of every mission.
func (c *StepCoordinator) FindAll(ctx context.Context) ([]domain.Step, error) {
	steps, err := c.store.ListSteps(ctx, "")
	if err != nil {
		return nil, domain.WrapOp("StepCoordinator.FindAll", err)
	}
	return steps, nil
}

// Update applies a partial update to a step.
func (c *StepCoordinator) Update(ctx context.Context, id string, p domain.StepPatch) (*domain.Step, error) {
	const op = "StepCoordinator.Update"
	ctx, span := tracer.StartSpan(ctx, "step.update", trace.WithAttributes(tracer.StepAttr(id)))
	defer span.End()

	st, err := c.FindOne(ctx, id)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	applyStepPatch(st, p)
	if err := checkDates(op, domain.SubSystemStep, st.StartDate, st.EndDate); err != nil {
		return nil, err
	}
	if err := c.store.UpdateStep(ctx, st); err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp(op, err)
	}
	saved, err := c.store.GetStep(ctx, id)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp(op, err)
	}

	c.announceFor(ctx, saved.MissionID, domain.NotifyStepUpdated, fmt.Sprintf("Step '%s' updated", stepLabel(*saved)))
	tracer.SetOK(span)
	return saved, nil
}

// Delete removes a step.
func (c *StepCoordinator) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.StartSpan(ctx, "step.delete", trace.WithAttributes(tracer.StepAttr(id)))
	defer span.End()

	st, err := c.FindOne(ctx, id)
	if err != nil {
		tracer.RecordError(span, err)
		return err
	}
	if err := c.store.DeleteStep(ctx, id); err != nil {
		tracer.RecordError(span, err)
		return domain.WrapOp("StepCoordinator.Delete", err)
	}

	c.announceFor(ctx, st.MissionID, domain.NotifyStepDeleted, fmt.Sprintf("Step '%s' deleted", stepLabel(*st)))
	tracer.SetOK(span)
	return nil
}

// announceFor resolves the owning mission and broadcasts. A mission that can
// no longer be found means there is no one to tell.
func (c *StepCoordinator) announceFor(ctx context.Context, missionID string, event domain.MissionEventType, what string) {
	mission, err := c.missions.FindOne(ctx, missionID)
	if err != nil {
		if !domain.IsNotFound(err) {
			c.logger.Warn("skipping step notification", "mission_id", missionID, "error", err)
		}
		return
	}
	c.announce(ctx, *mission, event, what)
}

func (c *StepCoordinator) announce(ctx context.Context, mission domain.Mission, event domain.MissionEventType, what string) {
	announce(ctx, c.notifier, c.bus, c.logger, childNotification(mission, event, what), false)
}

func applyStepPatch(st *domain.Step, p domain.StepPatch) {
	if p.Title != nil {
		st.Title = *p.Title
	}
	if p.Description != nil {
		st.Description = *p.Description
	}
	if p.AssignedAgent != nil {
		st.AssignedAgent = *p.AssignedAgent
	}
	if p.Location != nil {
		st.Location = *p.Location
	}
	if p.StartDate != nil {
		st.StartDate = p.StartDate
	}
	if p.EndDate != nil {
		st.EndDate = p.EndDate
	}
	if p.Status != nil {
		st.Status = *p.Status
	}
	if p.Order != nil {
		st.Order = *p.Order
	}
	if p.EncryptedInstructions != nil {
		st.EncryptedInstructions = *p.EncryptedInstructions
	}
}

func stepLabel(st domain.Step) string {
	if st.Title != "" {
		return st.Title
	}
	return st.ID
}
