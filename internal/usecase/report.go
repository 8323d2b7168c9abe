package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"chrysalis/internal/domain"
	"chrysalis/internal/infra/tracer"
)

// ReportCoordinator manages field reports. Every mutation resolves the owning
// mission through MissionManager.FindOne and broadcasts a report_* notification.
type ReportCoordinator struct {
	store    domain.FieldReportStore
	missions *MissionManager
	notifier domain.Notifier
	bus      domain.EventBus
	logger   *slog.Logger
}

// NewReportCoordinator creates a ReportCoordinator.
func NewReportCoordinator(store domain.FieldReportStore, missions *MissionManager, notifier domain.Notifier, bus domain.EventBus, logger *slog.Logger) *ReportCoordinator {
	return &ReportCoordinator{
		store:    store,
		missions: missions,
		notifier: notifier,
		bus:      bus,
		logger:   logger,
	}
}

func invalidReport(op, detail string) error {
	return domain.NewSubSystemError(domain.SubSystemReport, op, domain.ErrInvalidInput, detail)
}

func checkReport(op string, r *domain.FieldReport) error {
	if r.EncryptedContent == "" {
		return invalidReport(op, "encryptedContent is required")
	}
	if !r.Status.Valid() {
		return invalidReport(op, fmt.Sprintf("unknown status %q", r.Status))
	}
	if r.Latitude != nil && (*r.Latitude < -90 || *r.Latitude > 90) {
		return invalidReport(op, "latitude must be within [-90, 90]")
	}
	if r.Longitude != nil && (*r.Longitude < -180 || *r.Longitude > 180) {
		return invalidReport(op, "longitude must be within [-180, 180]")
	}
	return nil
}

// Create files a report against missionID. in.MissionID is ignored.
func (c *ReportCoordinator) Create(ctx context.Context, missionID string, in domain.FieldReportInput) (*domain.FieldReport, error) {
	const op = "ReportCoordinator.Create"
	ctx, span := tracer.StartSpan(ctx, "report.create",
		trace.WithAttributes(tracer.MissionAttr(missionID)),
	)
	defer span.End()

	mission, err := c.missions.FindOne(ctx, missionID)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	r := &domain.FieldReport{
		MissionID:        mission.ID,
		EncryptedContent: in.EncryptedContent,
		Location:         in.Location,
		Latitude:         in.Latitude,
		Longitude:        in.Longitude,
		Status:           in.Status,
		Attachments:      in.Attachments,
	}
	if r.Status == "" {
		r.Status = domain.ReportDraft
	}
	if err := checkReport(op, r); err != nil {
		return nil, err
	}
	if err := c.store.CreateReport(ctx, r); err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp(op, err)
	}
	saved, err := c.store.GetReport(ctx, r.ID)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp(op, err)
	}

	c.announce(ctx, *mission, domain.NotifyReportAdded, "Field report filed")
	tracer.SetOK(span)
	return saved, nil
}

// FindOne returns a report by id.
func (c *ReportCoordinator) FindOne(ctx context.Context, id string) (*domain.FieldReport, error) {
	r, err := c.store.GetReport(ctx, id)
	if err != nil {
		return nil, domain.WrapOp("ReportCoordinator.FindOne", err)
	}
	return r, nil
}

// FindInMission returns the report only if it belongs to missionID.
func (c *ReportCoordinator) FindInMission(ctx context.Context, missionID, id string) (*domain.FieldReport, error) {
	r, err := c.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.MissionID != missionID {
		return nil, domain.NewSubSystemError(domain.SubSystemReport, "ReportCoordinator.FindInMission", domain.ErrNotFound, id)
	}
	return r, nil
}

// FindByMission returns the reports of a mission.
func (c *ReportCoordinator) FindByMission(ctx context.Context, missionID string) ([]domain.FieldReport, error) {
	mission, err := c.missions.FindOne(ctx, missionID)
	if err != nil {
		return nil, err
	}
	return mission.Reports, nil
}

// FindAll returns every report.
func (c *ReportCoordinator) FindAll(ctx context.Context) ([]domain.FieldReport, error) {
	reports, err := c.store.ListReports(ctx, "")
	if err != nil {
		return nil, domain.WrapOp("ReportCoordinator.FindAll", err)
	}
	return reports, nil
}

// Update applies a partial update to a report.
func (c *ReportCoordinator) Update(ctx context.Context, id string, p domain.FieldReportPatch) (*domain.FieldReport, error) {
	const op = "ReportCoordinator.Update"
	ctx, span := tracer.StartSpan(ctx, "report.update", trace.WithAttributes(tracer.ReportAttr(id)))
	defer span.End()

	r, err := c.FindOne(ctx, id)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	applyReportPatch(r, p)
	if err := checkReport(op, r); err != nil {
		return nil, err
	}
	if err := c.store.UpdateReport(ctx, r); err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp(op, err)
	}
	saved, err := c.store.GetReport(ctx, id)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp(op, err)
	}

	c.announceFor(ctx, saved.MissionID, domain.NotifyReportUpdated, fmt.Sprintf("Field report %s", saved.Status))
	tracer.SetOK(span)
	return saved, nil
}

// Delete removes a report.
func (c *ReportCoordinator) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.StartSpan(ctx, "report.delete", trace.WithAttributes(tracer.ReportAttr(id)))
	defer span.End()

	r, err := c.FindOne(ctx, id)
	if err != nil {
		tracer.RecordError(span, err)
		return err
	}
	if err := c.store.DeleteReport(ctx, id); err != nil {
		tracer.RecordError(span, err)
		return domain.WrapOp("ReportCoordinator.Delete", err)
	}

	c.announceFor(ctx, r.MissionID, domain.NotifyReportDeleted, "Field report deleted")
	tracer.SetOK(span)
	return nil
}

func (c *ReportCoordinator) announceFor(ctx context.Context, missionID string, event domain.MissionEventType, what string) {
	mission, err := c.missions.FindOne(ctx, missionID)
	if err != nil {
		if !domain.IsNotFound(err) {
			c.logger.Warn("skipping report notification", "mission_id", missionID, "error", err)
		}
		return
	}
	c.announce(ctx, *mission, event, what)
}

func (c *ReportCoordinator) announce(ctx context.Context, mission domain.Mission, event domain.MissionEventType, what string) {
	announce(ctx, c.notifier, c.bus, c.logger, childNotification(mission, event, what), false)
}

func applyReportPatch(r *domain.FieldReport, p domain.FieldReportPatch) {
	if p.EncryptedContent != nil {
		r.EncryptedContent = *p.EncryptedContent
	}
	if p.Location != nil {
		r.Location = *p.Location
	}
	if p.Latitude != nil {
		r.Latitude = p.Latitude
	}
	if p.Longitude != nil {
		r.Longitude = p.Longitude
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Attachments != nil {
		r.Attachments = *p.Attachments
	}
}
