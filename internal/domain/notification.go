package domain

import (
	"context"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// MissionEventType names the change a notification describes.
type MissionEventType string

const (
	NotifyCreated       MissionEventType = "created"
	NotifyUpdated       MissionEventType = "updated"
	NotifyDeleted       MissionEventType = "deleted"
	NotifyCancelled     MissionEventType = "cancelled"
	NotifyCompleted     MissionEventType = "completed"
	NotifyStepAdded     MissionEventType = "step_added"
	NotifyStepUpdated   MissionEventType = "step_updated"
	NotifyStepDeleted   MissionEventType = "step_deleted"
	NotifyReportAdded   MissionEventType = "report_added"
	NotifyReportUpdated MissionEventType = "report_updated"
	NotifyReportDeleted MissionEventType = "report_deleted"
)

// BroadcastAgentID is the agent id sentinel meaning "every connection".
const BroadcastAgentID = "all"

// MissionNotification is pushed to agents when a mission or one of its
// children changes. It is never persisted.
type MissionNotification struct {
	ID        string           `json:"id"`
	MissionID string           `json:"missionId"`
	EventType MissionEventType `json:"eventType"`
	AgentID   string           `json:"agentId"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
}

// NewMissionNotification builds a notification stamped with a fresh ULID and
// the current time. An empty agentID becomes BroadcastAgentID.
func NewMissionNotification(missionID string, eventType MissionEventType, agentID, message string) MissionNotification {
	if agentID == "" {
		agentID = BroadcastAgentID
	}
	now := time.Now().UTC()
	return MissionNotification{
		ID:        newNotificationID(now),
		MissionID: missionID,
		EventType: eventType,
		AgentID:   agentID,
		Message:   message,
		Timestamp: now,
	}
}

// DeliveryMode tells how a notification was routed.
type DeliveryMode string

const (
	DeliveryTargeted  DeliveryMode = "targeted"
	DeliveryBroadcast DeliveryMode = "broadcast"
)

// DeliveryOutcome summarises a best-effort fan-out.
type DeliveryOutcome struct {
	Mode      DeliveryMode `json:"mode"`
	Attempted int          `json:"attempted"`
	Delivered int          `json:"delivered"`
}

// Notifier delivers mission notifications to connected agents.
// Delivery failures are reported in the outcome, never as errors.
type Notifier interface {
	// Dispatch targets the notification's agent when it is connected and
	// falls back to a broadcast otherwise.
	Dispatch(ctx context.Context, n MissionNotification) DeliveryOutcome
	// BroadcastAll delivers to every live connection.
	BroadcastAll(ctx context.Context, n MissionNotification) DeliveryOutcome
}

func newNotificationID(t time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
