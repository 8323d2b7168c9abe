package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"chrysalis/internal/domain"
)

// Attach records every announced mission change on bus into trail. The
// returned func detaches the subscription.
func Attach(bus domain.EventBus, trail domain.AuditTrail, logger *slog.Logger) func() {
	return bus.Subscribe(domain.EventMissionChanged, func(ctx context.Context, e domain.Event) {
		var n domain.MissionNotification
		if err := json.Unmarshal(e.Payload, &n); err != nil {
			logger.Warn("audit: undecodable mission change", "mission_id", e.MissionID, "error", err)
			return
		}
		entry := domain.AuditEntry{
			Timestamp:      n.Timestamp,
			MissionID:      n.MissionID,
			Event:          n.EventType,
			AgentID:        n.AgentID,
			Message:        n.Message,
			NotificationID: n.ID,
		}
		if err := trail.Record(ctx, entry); err != nil {
			logger.Error("audit: record failed", "mission_id", n.MissionID, "event", string(n.EventType), "error", err)
		}
	})
}
