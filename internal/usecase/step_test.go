package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chrysalis/internal/domain"
)

func TestStepCoordinator_CreateBroadcasts(t *testing.T) {
	f := newFixture(t)
	m := f.mission(t, "Op Ghost", "agent-007")

	st, err := f.steps.Create(context.Background(), m.ID, domain.StepInput{Title: "Recon", Order: 1, MissionID: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, m.ID, st.MissionID)
	assert.Equal(t, domain.DefaultStepStatus, st.Status)

	require.Len(t, f.notifier.broadcast, 1)
	n := f.notifier.broadcast[0]
	assert.Equal(t, domain.NotifyStepAdded, n.EventType)
	assert.Equal(t, domain.BroadcastAgentID, n.AgentID, "child events are never targeted")
	assert.Equal(t, m.ID, n.MissionID)
}

func TestStepCoordinator_CreateForMissingMission(t *testing.T) {
	f := newFixture(t)
	_, err := f.steps.Create(context.Background(), "missing", domain.StepInput{Title: "Recon"})
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.CodeMissionNotFound, domain.ErrorCodeOf(err))
	assert.Empty(t, f.notifier.broadcast)
}

func TestStepCoordinator_FindByMissionOrdered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.mission(t, "Op Ghost", "")
	for _, in := range []domain.StepInput{{Title: "c", Order: 3}, {Title: "a", Order: 1}, {Title: "b", Order: 2}} {
		_, err := f.steps.Create(ctx, m.ID, in)
		require.NoError(t, err)
	}

	steps, err := f.steps.FindByMission(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, "a", steps[0].Title)
	assert.Equal(t, "c", steps[2].Title)

	_, err = f.steps.FindByMission(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	all, err := f.steps.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStepCoordinator_UpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.mission(t, "Op Ghost", "agent-007")
	st, err := f.steps.Create(ctx, m.ID, domain.StepInput{Title: "Recon"})
	require.NoError(t, err)

	status := "DONE"
	got, err := f.steps.Update(ctx, st.ID, domain.StepPatch{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, "DONE", got.Status)
	assert.Equal(t, "Recon", got.Title)

	require.NoError(t, f.steps.Delete(ctx, st.ID))
	_, err = f.steps.FindOne(ctx, st.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	events := []domain.MissionEventType{}
	for _, n := range f.notifier.broadcast {
		events = append(events, n.EventType)
	}
	assert.Equal(t, []domain.MissionEventType{domain.NotifyStepAdded, domain.NotifyStepUpdated, domain.NotifyStepDeleted}, events)
}

func TestStepCoordinator_FindInMission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.mission(t, "A", "")
	b := f.mission(t, "B", "")
	st, err := f.steps.Create(ctx, a.ID, domain.StepInput{Title: "Recon"})
	require.NoError(t, err)

	_, err = f.steps.FindInMission(ctx, a.ID, st.ID)
	assert.NoError(t, err)
	_, err = f.steps.FindInMission(ctx, b.ID, st.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, domain.CodeStepNotFound, domain.ErrorCodeOf(err))
}
