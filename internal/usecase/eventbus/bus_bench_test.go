package eventbus

import (
	"context"
	"log/slog"
	"testing"

	"chrysalis/internal/domain"
)

func BenchmarkEventBusPublish(b *testing.B) {
	bus := New(slog.Default())
	ctx := context.Background()
	event := domain.Event{Type: domain.EventNotificationBroadcast, MissionID: "bench"}

	bus.Subscribe(domain.EventNotificationBroadcast, func(_ context.Context, _ domain.Event) {})

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		bus.Publish(ctx, event)
	}
	bus.Close()
}

func BenchmarkEventBusPublishFanOut(b *testing.B) {
	bus := New(slog.Default())
	ctx := context.Background()
	event := domain.Event{Type: domain.EventMissionChanged, MissionID: "bench"}

	for i := 0; i < 10; i++ {
		bus.Subscribe(domain.EventMissionChanged, func(_ context.Context, _ domain.Event) {})
	}
	bus.SubscribeAll(func(_ context.Context, _ domain.Event) {})

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		bus.Publish(ctx, event)
	}
	bus.Close()
}
