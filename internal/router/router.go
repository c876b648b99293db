package router

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"

	"github.com/thushan/olla-sidecard/internal/core/domain"
	"github.com/thushan/olla-sidecard/internal/core/ports"
)

// Router is the D component (spec §4.D): a bounded key→stack map.
// Recognize resolves a connection's service key and returns its stack
// handle, building the stack via StackFactory on first use. A Recognize
// for a not-yet-resident key when the map is already at capacity is
// refused with a NoCapacityError rather than evicting a live key — an
// evicted key's in-flight connections would otherwise be torn down to
// make room for an unrelated one.
//
// Construction is single-flighted with golang.org/x/sync/singleflight
// so concurrent Recognize calls for the same not-yet-seen key invoke
// StackFactory exactly once, mirroring linkerd2-proxy's per-destination
// "first request builds the service" behaviour.
type Router struct {
	mu       sync.Mutex
	capacity int
	entries  map[domain.ServiceKey]*entry

	factory ports.StackFactory
	group   singleflight.Group
}

type entry struct {
	key   domain.ServiceKey
	stack ports.ServiceStack
	// gone is set once this entry is evicted; handles cloned before
	// eviction observe it on their next Stack() call.
	gone atomic.Bool
	// lastUse is a UnixNano timestamp refreshed on every Recognize hit;
	// ReapIdle consults it to find LRU candidates (spec §4.D "Eviction.
	// LRU by last-use timestamp").
	lastUse atomic.Int64
}

func (e *entry) touch() {
	e.lastUse.Store(time.Now().UnixNano())
}

// New constructs a Router with the given resident-key capacity and the
// factory used to build a stack the first time a key is seen. A
// capacity of 0 means unbounded.
func New(capacity int, factory ports.StackFactory) *Router {
	return &Router{
		capacity: capacity,
		entries:  make(map[domain.ServiceKey]*entry),
		factory:  factory,
	}
}

func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Recognize resolves conn to a ServiceKey (its OriginalDst, falling
// back to its local address) and returns a handle to that key's stack.
func (r *Router) Recognize(ctx context.Context, conn *domain.Connection) (ports.StackHandle, error) {
	key := keyFor(conn)

	r.mu.Lock()
	if ent, ok := r.entries[key]; ok {
		r.mu.Unlock()
		ent.touch()
		return &handle{key: key, ent: ent}, nil
	}
	if r.capacity > 0 && len(r.entries) >= r.capacity {
		r.mu.Unlock()
		return nil, &domain.NoCapacityError{Capacity: r.capacity, Scope: "router"}
	}
	r.mu.Unlock()

	// Build outside the lock; singleflight collapses concurrent
	// builders for the same key into one factory call.
	v, err, _ := r.group.Do(key.String(), func() (interface{}, error) {
		stack, ferr := r.factory(ctx, key)
		if ferr != nil {
			return nil, ferr
		}
		return r.admit(key, stack), nil
	})
	if err != nil {
		return nil, err
	}
	return &handle{key: key, ent: v.(*entry)}, nil
}

func (r *Router) admit(key domain.ServiceKey, stack ports.ServiceStack) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ent, ok := r.entries[key]; ok {
		// Another caller admitted this key while we were building;
		// close our redundant stack and reuse the resident one.
		stack.Close()
		return ent
	}

	ent := &entry{key: key, stack: stack}
	ent.touch()
	r.entries[key] = ent
	return ent
}

// ReapIdle evicts every resident key whose last use is older than
// maxIdle, closing its stack the same way Evict does (spec §4.D
// "Eviction. LRU by last-use timestamp"). A maxIdle of 0 disables
// reaping entirely — callers wire it from the stack's
// metrics_retain_idle setting, whose zero value means "never".
func (r *Router) ReapIdle(maxIdle time.Duration) {
	if maxIdle <= 0 {
		return
	}
	cutoff := time.Now().Add(-maxIdle).UnixNano()

	r.mu.Lock()
	var idle []*entry
	for key, ent := range r.entries {
		if ent.lastUse.Load() < cutoff {
			idle = append(idle, ent)
			delete(r.entries, key)
		}
	}
	r.mu.Unlock()

	for _, ent := range idle {
		ent.gone.Store(true)
		ent.stack.Close()
	}
}

// Evict removes key, closing its stack and tombstoning any handle a
// caller still holds. A DoesNotExist from discovery does not evict the
// key: its stack fails Call and PollReady fast instead (spec §4.F).
func (r *Router) Evict(key domain.ServiceKey) {
	r.mu.Lock()
	ent, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}
	r.mu.Unlock()

	if ok {
		ent.gone.Store(true)
		ent.stack.Close()
	}
}

// Close tears down every resident stack; used during drain (spec §4.G).
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ent := range r.entries {
		ent.gone.Store(true)
		ent.stack.Close()
	}
	r.entries = make(map[domain.ServiceKey]*entry)
}

func keyFor(conn *domain.Connection) domain.ServiceKey {
	if conn.HasOriginalDst() {
		return domain.NewServiceKey(conn.OriginalDst.String())
	}
	return domain.NewServiceKey(conn.LocalAddr().String())
}

type handle struct {
	key domain.ServiceKey
	ent *entry
}

func (h *handle) Key() domain.ServiceKey {
	return h.key
}

func (h *handle) Stack() (ports.ServiceStack, error) {
	if h.ent.gone.Load() {
		return nil, &domain.ServiceGoneError{Key: h.key}
	}
	return h.ent.stack, nil
}

var _ ports.Router = (*Router)(nil)
