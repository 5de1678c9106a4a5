package checkout

import (
	"context"
	"sync"
	"time"
)

// Registry holds the live sessions of the process.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Orchestrator

	ttl      time.Duration
	onRemove func(id string)
}

type RegistryOption func(*Registry)

// WithSessionTTL evicts every session ttl after it was started.
func WithSessionTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		r.ttl = ttl
	}
}

// WithRemoveHook is called with the id of every session the registry drops.
func WithRemoveHook(fn func(id string)) RegistryOption {
	return func(r *Registry) {
		r.onRemove = fn
	}
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{sessions: make(map[string]*Orchestrator)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start registers o and consumes its results in the background until it is
// closed or ctx is done.
func (r *Registry) Start(ctx context.Context, o *Orchestrator) {
	r.mu.Lock()
	if old, ok := r.sessions[o.ID()]; ok && old != o {
		old.Close()
	}
	r.sessions[o.ID()] = o
	r.mu.Unlock()

	if r.ttl > 0 {
		r.RemoveAfter(o, r.ttl)
	}
	go o.Run(ctx)
}

// RemoveAfter evicts o once d has passed, unless it was removed or replaced
// in the meantime.
func (r *Registry) RemoveAfter(o *Orchestrator, d time.Duration) {
	time.AfterFunc(d, func() {
		r.mu.Lock()
		if cur, ok := r.sessions[o.ID()]; !ok || cur != o {
			r.mu.Unlock()
			return
		}
		delete(r.sessions, o.ID())
		r.mu.Unlock()

		o.Close()
		r.removed(o.ID())
	})
}

func (r *Registry) Get(id string) (*Orchestrator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.sessions[id]
	return o, ok
}

// Remove closes and forgets the session.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	o, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		o.Close()
		r.removed(id)
	}
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Orchestrator)
	r.mu.Unlock()

	for id, o := range sessions {
		o.Close()
		r.removed(id)
	}
}

func (r *Registry) removed(id string) {
	if r.onRemove != nil {
		r.onRemove(id)
	}
}
