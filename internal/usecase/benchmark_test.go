package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"chrysalis/internal/adapter/store"
	"chrysalis/internal/domain"
)

func BenchmarkPlanCreate(b *testing.B) {
	in := domain.MissionInput{Title: "Op Ghost", AgentID: "agent-007", ClassificationLevel: domain.ClassificationSecret}
	b.ReportAllocs()
	for b.Loop() {
		t, err := planCreate(in)
		if err != nil {
			b.Fatal(err)
		}
		_ = missionNotification(t)
	}
}

func BenchmarkMissionManagerUpdate(b *testing.B) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.NewSQLiteStore(filepath.Join(b.TempDir(), "bench.db"), logger)
	if err != nil {
		b.Fatal(err)
	}
	defer st.Close()

	missions := NewMissionManager(st, &recordingNotifier{}, nil, logger)
	ctx := context.Background()
	m, err := missions.Create(ctx, domain.MissionInput{Title: "Op Ghost", AgentID: "agent-007"})
	if err != nil {
		b.Fatal(err)
	}

	i := 0
	for b.Loop() {
		loc := fmt.Sprintf("waypoint-%d", i)
		i++
		if _, err := missions.Update(ctx, m.ID, domain.MissionPatch{Location: &loc}); err != nil {
			b.Fatal(err)
		}
	}
}
