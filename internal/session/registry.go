// Package session tracks the relay's active chat sessions and the pool of
// session ids available for reuse.
package session

import (
	"cmp"
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"sync"
)

const (
	// MinID is the smallest session id ever assigned.
	MinID int32 = 1
	// DefaultCapacity is the number of concurrent sessions the protocol allows.
	DefaultCapacity = 10
)

var (
	// ErrFull is returned by Allocate when every id is in use.
	ErrFull = errors.New("session: no free session ids")
	// ErrNotFound is returned by Release for an id that is not active.
	ErrNotFound = errors.New("session: id not active")
)

// Session binds an active id to the endpoint frames for it are sent to.
type Session struct {
	ID       int32
	Endpoint netip.AddrPort
}

// Registry owns the id pool and the active sessions.
// All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	capacity int
	pool     []int32                  // ascending
	sessions map[int32]netip.AddrPort // id → endpoint
}

// NewRegistry creates a Registry whose pool holds ids [1, capacity].
// A capacity outside [1, DefaultCapacity] falls back to DefaultCapacity, so
// ids never leave [1, 10].
//
// Postcondition: Returns an empty Registry with a full, ascending pool.
func NewRegistry(capacity int) *Registry {
	if capacity < 1 || capacity > DefaultCapacity {
		capacity = DefaultCapacity
	}
	pool := make([]int32, 0, capacity)
	for id := MinID; id < MinID+int32(capacity); id++ {
		pool = append(pool, id)
	}
	return &Registry{
		capacity: capacity,
		pool:     pool,
		sessions: make(map[int32]netip.AddrPort, capacity),
	}
}

// Allocate takes the smallest free id and binds it to endpoint.
//
// Postcondition: Returns the assigned id, or ErrFull with no state change.
func (r *Registry) Allocate(endpoint netip.AddrPort) (int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pool) == 0 {
		return 0, fmt.Errorf("%w: %d sessions active", ErrFull, len(r.sessions))
	}
	id := r.pool[0]
	r.pool = r.pool[1:]
	r.sessions[id] = endpoint
	return id, nil
}

// Release ends the session for id and returns the id to the pool.
//
// Postcondition: The id is back in the pool in ascending order, or ErrNotFound
// is returned with no state change.
func (r *Registry) Release(id int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	delete(r.sessions, id)

	i, _ := slices.BinarySearch(r.pool, id)
	r.pool = slices.Insert(r.pool, i, id)
	return nil
}

// Lookup returns the endpoint bound to id.
func (r *Registry) Lookup(id int32) (netip.AddrPort, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.sessions[id]
	return ep, ok
}

// Active returns a snapshot of all active sessions ordered by id.
//
// Postcondition: The returned slice is owned by the caller; later registry
// changes do not affect it.
func (r *Registry) Active() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Session, 0, len(r.sessions))
	for id, ep := range r.sessions {
		out = append(out, Session{ID: id, Endpoint: ep})
	}
	slices.SortFunc(out, func(a, b Session) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Available returns the free ids in ascending order.
func (r *Registry) Available() []int32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.pool)
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Capacity returns the total number of ids managed by the registry.
func (r *Registry) Capacity() int {
	return r.capacity
}
