package scheduling

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chrysalis/internal/infra/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerStartStop(t *testing.T) {
	s := NewScheduler(newTestLogger())
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()), "second start is a no-op")
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop(), "second stop is a no-op")
}

func TestSchedulerActionFires(t *testing.T) {
	var count atomic.Int32

	s := NewScheduler(newTestLogger())
	s.RegisterAction(ActionPingConnections, func(ctx context.Context) error {
		count.Add(1)
		return nil
	})
	require.NoError(t, s.AddTask(ScheduledTask{Name: "keepalive", Schedule: "50ms", Action: ActionPingConnections}))

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.GreaterOrEqual(t, count.Load(), int32(1))
}

func TestSchedulerFailingActionKeepsRunning(t *testing.T) {
	var count atomic.Int32

	s := NewScheduler(newTestLogger())
	s.RegisterAction(ActionPingConnections, func(ctx context.Context) error {
		count.Add(1)
		return errors.New("peer gone")
	})
	require.NoError(t, s.AddTask(ScheduledTask{Name: "keepalive", Schedule: "30ms", Action: ActionPingConnections}))

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.GreaterOrEqual(t, count.Load(), int32(2))
}

func TestSchedulerRejectsBadTasks(t *testing.T) {
	s := NewScheduler(newTestLogger())
	s.RegisterAction(ActionPingConnections, func(context.Context) error { return nil })

	assert.Error(t, s.AddTask(ScheduledTask{Name: "x", Schedule: "100ms", Action: "does_not_exist"}))
	assert.Error(t, s.AddTask(ScheduledTask{Name: "x", Schedule: "soon", Action: ActionPingConnections}))

	require.NoError(t, s.AddTask(ScheduledTask{Name: "keepalive", Schedule: "1m", Action: ActionPingConnections}))
	assert.Error(t, s.AddTask(ScheduledTask{Name: "keepalive", Schedule: "1m", Action: ActionPingConnections}))
}

func TestSchedulerLoadTasksFromConfig(t *testing.T) {
	s := NewScheduler(newTestLogger())
	s.RegisterAction(ActionPingConnections, func(context.Context) error { return nil })

	require.NoError(t, s.LoadTasks(config.Defaults().Scheduler.Tasks))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	next := s.NextRun("keepalive")
	require.NotNil(t, next)
	assert.WithinDuration(t, time.Now().Add(30*time.Second), *next, 2*time.Second)

	require.NoError(t, s.RemoveTask("keepalive"))
	assert.Nil(t, s.NextRun("keepalive"))
	assert.Error(t, s.RemoveTask("keepalive"))
}

func TestSchedulerStopCancelsRunningTask(t *testing.T) {
	started := make(chan struct{})
	var sawCancel atomic.Bool

	s := NewScheduler(newTestLogger())
	s.RegisterAction(ActionPingConnections, func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		sawCancel.Store(true)
		return ctx.Err()
	})
	require.NoError(t, s.AddTask(ScheduledTask{Name: "slow", Schedule: "20ms", Action: ActionPingConnections}))
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("task never started")
	}
	require.NoError(t, s.Stop())
	assert.True(t, sawCancel.Load())
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"*/5 * * * *", false},
		{"@every 1m", false},
		{"30s", false},
		{"", true},
		{"-1s", true},
		{"sometimes", true},
	}
	for _, tt := range tests {
		_, err := ParseSchedule(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
		} else {
			assert.NoError(t, err, tt.in)
		}
	}
}
