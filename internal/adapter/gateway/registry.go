package gateway

import (
	"context"
	"sort"
	"sync"
)

// Conn is a live connection the registry can address. Implementations are
// compared by identity, so they must be pointer types.
type Conn interface {
	ID() uint64
	// Send enqueues f without blocking. It fails when the connection is
	// closed or its outbound queue is full.
	Send(f Frame) error
	Ping(ctx context.Context) error
	Close(reason string)
}

// Registry maps agent ids to their current connection and tracks every live
// connection, registered or not. The zero value is not usable; call NewRegistry.
type Registry struct {
	mu     sync.Mutex
	agents map[string]Conn
	conns  map[Conn]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]Conn),
		conns:  make(map[Conn]struct{}),
	}
}

// Add tracks a newly accepted connection.
func (r *Registry) Add(c Conn) {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
}

// Remove forgets a closed connection and unregisters any agent still bound to it.
func (r *Registry) Remove(c Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c)
	return r.unregisterLocked(c)
}

// Register binds agentID to c. A later registration for the same agent wins.
// It reports false, binding nothing, when c is no longer a live connection.
func (r *Registry) Register(agentID string, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, live := r.conns[c]; !live {
		return false
	}
	r.agents[agentID] = c
	return true
}

// Unregister removes the agent bound to exactly this connection. When the
// agent has since re-registered on another connection nothing changes.
func (r *Registry) Unregister(c Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unregisterLocked(c)
}

func (r *Registry) unregisterLocked(c Conn) (string, bool) {
	for agentID, held := range r.agents {
		if held == c {
			delete(r.agents, agentID)
			return agentID, true
		}
	}
	return "", false
}

// Lookup returns the connection currently bound to agentID.
func (r *Registry) Lookup(agentID string) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.agents[agentID]
	return c, ok
}

// ListAgents returns the registered agent ids, sorted.
func (r *Registry) ListAgents() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Connections returns a snapshot of every live connection.
func (r *Registry) Connections() []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Conn, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
