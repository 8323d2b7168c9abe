package gateway

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"chrysalis/internal/domain"
)

// fakeConn records frames instead of writing them to a socket.
type fakeConn struct {
	id      uint64
	mu      sync.Mutex
	frames  []Frame
	closed  bool
	full    bool
	pingErr error
}

func newFakeConn(id uint64) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() uint64 { return c.id }

func (c *fakeConn) Send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrConnectionClosed
	}
	if c.full {
		return errSendQueueFull
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Ping(context.Context) error { return c.pingErr }

func (c *fakeConn) Close(string) {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) received() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame{}, c.frames...)
}

// bind tracks c as live and registers agentID on it.
func bind(t *testing.T, r *Registry, agentID string, c Conn) {
	t.Helper()
	r.Add(c)
	assert.True(t, r.Register(agentID, c), "register %s", agentID)
}

func TestRegistry_RegisterLookup(t *testing.T) {
	r := NewRegistry()
	h := newFakeConn(1)

	bind(t, r, "agent-007", h)
	got, ok := r.Lookup("agent-007")
	assert.True(t, ok)
	assert.Same(t, h, got)

	_, ok = r.Lookup("agent-009")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_RegisterRequiresLiveConnection(t *testing.T) {
	r := NewRegistry()
	c := newFakeConn(1)

	assert.False(t, r.Register("ghost", c), "never added")

	r.Add(c)
	r.Remove(c)
	assert.False(t, r.Register("ghost", c), "already removed")

	_, ok := r.Lookup("ghost")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.ListAgents())
}

func TestRegistry_UnregisterByHandle(t *testing.T) {
	r := NewRegistry()
	h := newFakeConn(1)
	bind(t, r, "agent-007", h)

	agent, ok := r.Unregister(h)
	assert.True(t, ok)
	assert.Equal(t, "agent-007", agent)
	_, ok = r.Lookup("agent-007")
	assert.False(t, ok)

	_, ok = r.Unregister(h)
	assert.False(t, ok, "second unregister is a no-op")
}

func TestRegistry_SupersededHandleDoesNotEvict(t *testing.T) {
	r := NewRegistry()
	h1, h2 := newFakeConn(1), newFakeConn(2)
	bind(t, r, "agent-007", h1)
	bind(t, r, "agent-007", h2)

	_, ok := r.Remove(h1)
	assert.False(t, ok)

	got, ok := r.Lookup("agent-007")
	assert.True(t, ok)
	assert.Same(t, h2, got)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ListAgentsSorted(t *testing.T) {
	r := NewRegistry()
	bind(t, r, "zulu", newFakeConn(1))
	bind(t, r, "alpha", newFakeConn(2))
	r.Add(newFakeConn(3))

	assert.Equal(t, []string{"alpha", "zulu"}, r.ListAgents())
	assert.Len(t, r.Connections(), 3)
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newFakeConn(uint64(i))
			bind(t, r, "agent", c)
			r.Lookup("agent")
			r.ListAgents()
			r.Remove(c)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, r.Len())
}
