package usecase

import (
	"fmt"
	"time"

	"chrysalis/internal/domain"
)

// Transition is the outcome of a lifecycle step: the mission state to persist
// and the event that announces it. Transitions never touch the store.
type Transition struct {
	Mission domain.Mission
	Event   domain.MissionEventType
}

func invalidMission(op, detail string) error {
	return domain.NewSubSystemError(domain.SubSystemMission, op, domain.ErrInvalidInput, detail)
}

// planCreate builds a new mission from input. Status defaults to ASSIGNED and
// classification to CONFIDENTIAL.
func planCreate(in domain.MissionInput) (Transition, error) {
	const op = "MissionManager.Create"
	if in.Title == "" {
		return Transition{}, invalidMission(op, "title is required")
	}
	m := domain.Mission{
		CodeName:            in.CodeName,
		Description:         in.Description,
		Location:            in.Location,
		StartDate:           in.StartDate,
		EndDate:             in.EndDate,
		Status:              in.Status,
		ClassificationLevel: in.ClassificationLevel,
		EncryptedData:       in.EncryptedData,
		AgentID:             in.AgentID,
		Title:               in.Title,
	}
	if m.Status == "" {
		m.Status = domain.MissionAssigned
	}
	if m.ClassificationLevel == "" {
		m.ClassificationLevel = domain.ClassificationConfidential
	}
	if err := checkMission(op, m); err != nil {
		return Transition{}, err
	}
	return Transition{Mission: m, Event: domain.NotifyCreated}, nil
}

// planUpdate overlays p on m. Any status in the enum may replace any other.
func planUpdate(m domain.Mission, p domain.MissionPatch) (Transition, error) {
	const op = "MissionManager.Update"
	if p.CodeName != nil {
		m.CodeName = *p.CodeName
	}
	if p.Description != nil {
		m.Description = *p.Description
	}
	if p.Location != nil {
		m.Location = *p.Location
	}
	if p.StartDate != nil {
		m.StartDate = p.StartDate
	}
	if p.EndDate != nil {
		m.EndDate = p.EndDate
	}
	if p.Status != nil {
		m.Status = *p.Status
	}
	if p.ClassificationLevel != nil {
		m.ClassificationLevel = *p.ClassificationLevel
	}
	if p.EncryptedData != nil {
		m.EncryptedData = *p.EncryptedData
	}
	if p.AgentID != nil {
		m.AgentID = *p.AgentID
	}
	if p.Title != nil {
		if *p.Title == "" {
			return Transition{}, invalidMission(op, "title must not be empty")
		}
		m.Title = *p.Title
	}
	if err := checkMission(op, m); err != nil {
		return Transition{}, err
	}
	return Transition{Mission: m, Event: domain.NotifyUpdated}, nil
}

func planCancel(m domain.Mission) Transition {
	m.Status = domain.MissionCancelled
	return Transition{Mission: m, Event: domain.NotifyCancelled}
}

func planComplete(m domain.Mission) Transition {
	m.Status = domain.MissionCompleted
	return Transition{Mission: m, Event: domain.NotifyCompleted}
}

func planDelete(m domain.Mission) Transition {
	return Transition{Mission: m, Event: domain.NotifyDeleted}
}

func checkMission(op string, m domain.Mission) error {
	if !m.Status.Valid() {
		return invalidMission(op, fmt.Sprintf("unknown status %q", m.Status))
	}
	if !m.ClassificationLevel.Valid() {
		return invalidMission(op, fmt.Sprintf("unknown classification level %q", m.ClassificationLevel))
	}
	return checkDates(op, domain.SubSystemMission, m.StartDate, m.EndDate)
}

// missionLabel is how a mission is named in notification messages.
func missionLabel(m domain.Mission) string {
	switch {
	case m.Title != "":
		return m.Title
	case m.CodeName != "":
		return m.CodeName
	}
	return m.ID
}

var missionVerbs = map[domain.MissionEventType]string{
	domain.NotifyCreated:   "created",
	domain.NotifyUpdated:   "updated",
	domain.NotifyDeleted:   "deleted",
	domain.NotifyCancelled: "cancelled",
	domain.NotifyCompleted: "completed",
}

// missionNotification addresses t to the mission's agent, or to everyone when
// the mission has none.
func missionNotification(t Transition) domain.MissionNotification {
	msg := fmt.Sprintf("Mission '%s' %s", missionLabel(t.Mission), missionVerbs[t.Event])
	return domain.NewMissionNotification(t.Mission.ID, t.Event, t.Mission.AgentID, msg)
}

// childNotification is always a broadcast.
func childNotification(m domain.Mission, event domain.MissionEventType, what string) domain.MissionNotification {
	msg := fmt.Sprintf("%s on mission '%s'", what, missionLabel(m))
	return domain.NewMissionNotification(m.ID, event, domain.BroadcastAgentID, msg)
}

func checkDates(op, subsystem string, start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return domain.NewSubSystemError(subsystem, op, domain.ErrInvalidInput, "endDate is before startDate")
	}
	return nil
}
