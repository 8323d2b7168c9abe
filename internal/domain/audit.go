package domain

import (
	"context"
	"time"
)

// AuditEntry is one line of the mission audit trail.
type AuditEntry struct {
	Timestamp      time.Time        `json:"timestamp"`
	MissionID      string           `json:"missionId"`
	Event          MissionEventType `json:"event"`
	AgentID        string           `json:"agentId"`
	Message        string           `json:"message"`
	NotificationID string           `json:"notificationId,omitempty"`
}

// AuditTrail persists announced mission changes.
type AuditTrail interface {
	Record(ctx context.Context, entry AuditEntry) error
	Close() error
}
