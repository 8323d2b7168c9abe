package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"chrysalis/internal/domain"
)

// Metrics tracks counters fed by the event bus for GET /metrics.
type Metrics struct {
	MissionChanges         atomic.Int64
	NotificationsTargeted  atomic.Int64
	NotificationsBroadcast atomic.Int64
	DeliveriesAttempted    atomic.Int64
	DeliveriesSucceeded    atomic.Int64
	AgentsConnected        atomic.Int64
	AgentsDisconnected     atomic.Int64
	ChatMessages           atomic.Int64
}

// NewMetrics subscribes a collector to bus. A nil bus yields idle counters.
func NewMetrics(bus domain.EventBus) *Metrics {
	m := &Metrics{}
	if bus == nil {
		return m
	}
	bus.Subscribe(domain.EventMissionChanged, func(_ context.Context, _ domain.Event) {
		m.MissionChanges.Add(1)
	})
	bus.Subscribe(domain.EventNotificationTargeted, func(_ context.Context, e domain.Event) {
		m.NotificationsTargeted.Add(1)
		m.addOutcome(e)
	})
	bus.Subscribe(domain.EventNotificationBroadcast, func(_ context.Context, e domain.Event) {
		m.NotificationsBroadcast.Add(1)
		m.addOutcome(e)
	})
	bus.Subscribe(domain.EventAgentConnected, func(_ context.Context, _ domain.Event) {
		m.AgentsConnected.Add(1)
	})
	bus.Subscribe(domain.EventAgentDisconnected, func(_ context.Context, _ domain.Event) {
		m.AgentsDisconnected.Add(1)
	})
	bus.Subscribe(domain.EventChatRelayed, func(_ context.Context, _ domain.Event) {
		m.ChatMessages.Add(1)
	})
	return m
}

func (m *Metrics) addOutcome(e domain.Event) {
	var out domain.DeliveryOutcome
	if err := json.Unmarshal(e.Payload, &out); err != nil {
		return
	}
	m.DeliveriesAttempted.Add(int64(out.Attempted))
	m.DeliveriesSucceeded.Add(int64(out.Delivered))
}

type metric struct {
	name, help, kind string
	value            float64
}

// metricsHandler returns an HTTP handler for GET /metrics in Prometheus text format.
func metricsHandler(deps HandlerDeps, registry *Registry, startTime time.Time, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)

		out := []metric{
			{"chrysalis_connections_active", "Live WebSocket connections.", "gauge", float64(registry.Len())},
			{"chrysalis_agents_registered", "Agents bound to a live connection.", "gauge", float64(len(registry.ListAgents()))},
			{"chrysalis_mission_changes_total", "Mission and child mutations announced.", "counter", float64(metrics.MissionChanges.Load())},
			{"chrysalis_notifications_targeted_total", "Notifications delivered to a single agent.", "counter", float64(metrics.NotificationsTargeted.Load())},
			{"chrysalis_notifications_broadcast_total", "Notifications fanned out to every connection.", "counter", float64(metrics.NotificationsBroadcast.Load())},
			{"chrysalis_deliveries_attempted_total", "Per-connection notification sends attempted.", "counter", float64(metrics.DeliveriesAttempted.Load())},
			{"chrysalis_deliveries_succeeded_total", "Per-connection notification sends accepted.", "counter", float64(metrics.DeliveriesSucceeded.Load())},
			{"chrysalis_agent_connects_total", "Agent registrations.", "counter", float64(metrics.AgentsConnected.Load())},
			{"chrysalis_agent_disconnects_total", "Registered agents that disconnected.", "counter", float64(metrics.AgentsDisconnected.Load())},
			{"chrysalis_chat_messages_total", "Chat messages relayed.", "counter", float64(metrics.ChatMessages.Load())},
			{"chrysalis_uptime_seconds", "Seconds since the server started.", "gauge", time.Since(startTime).Seconds()},
			{"go_goroutines", "Number of goroutines.", "gauge", float64(runtime.NumGoroutine())},
			{"go_memstats_alloc_bytes", "Bytes of allocated heap objects.", "gauge", float64(mem.Alloc)},
			{"go_memstats_sys_bytes", "Total bytes of memory obtained from the OS.", "gauge", float64(mem.Sys)},
		}
		if deps.Breaker != nil {
			out = append(out, metric{"chrysalis_store_breaker_state", "Store circuit breaker state (0 closed, 1 half-open, 2 open).", "gauge", float64(deps.Breaker.State())})
		}
		for _, m := range out {
			fmt.Fprintf(w, "# HELP %s %s\n", m.name, m.help)
			fmt.Fprintf(w, "# TYPE %s %s\n", m.name, m.kind)
			fmt.Fprintf(w, "%s %g\n", m.name, m.value)
		}

		if pc, ok := deps.Bus.(publishedCounter); ok {
			counts := pc.Published()
			types := make([]string, 0, len(counts))
			for t := range counts {
				types = append(types, string(t))
			}
			sort.Strings(types)
			fmt.Fprintf(w, "# HELP chrysalis_events_published_total Events published on the internal bus.\n")
			fmt.Fprintf(w, "# TYPE chrysalis_events_published_total counter\n")
			for _, t := range types {
				fmt.Fprintf(w, "chrysalis_events_published_total{type=%q} %d\n", t, counts[domain.EventType(t)])
			}
		}
	}
}
