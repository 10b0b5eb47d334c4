// Package presence tracks which participants currently hold a live channel.
//
// Each identity maps to at most one Handle. Registering a new handle for an
// identity supersedes the previous one, which is closed so it can no longer
// receive pushes. Unregister is a compare-and-swap: a late disconnect from a
// superseded handle never evicts its replacement.
package presence

import (
	"errors"
	"sort"
	"sync"

	"dm-service/internal/models"
	"dm-service/internal/observability"
)

// ErrHandleClosed is returned by Push once a handle has been closed or superseded.
var ErrHandleClosed = errors.New("live handle closed")

// ErrQueueFull is returned by Push when the handle cannot accept more events.
var ErrQueueFull = errors.New("live handle queue full")

// Handle is a live channel through which events reach one participant.
type Handle interface {
	Identity() string
	Push(event models.ChatEvent) error
	Close()
}

// Registry maps identities to their current live handle.
type Registry struct {
	mu      sync.Mutex
	handles map[string]Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]Handle)}
}

// Register installs h as the live channel for identity and closes any handle it replaces.
func (r *Registry) Register(identity string, h Handle) {
	r.mu.Lock()
	prev, had := r.handles[identity]
	r.handles[identity] = h
	online := len(r.handles)
	r.mu.Unlock()

	observability.SetPresenceOnline(online)
	if had && prev != h {
		observability.IncPresenceSuperseded()
		prev.Close()
	}
}

// Unregister removes h only if it is still the registered handle for its identity.
func (r *Registry) Unregister(h Handle) bool {
	r.mu.Lock()
	identity := h.Identity()
	current, ok := r.handles[identity]
	if !ok || current != h {
		r.mu.Unlock()
		return false
	}
	delete(r.handles, identity)
	online := len(r.handles)
	r.mu.Unlock()

	observability.SetPresenceOnline(online)
	return true
}

// Lookup returns the live handle for identity, if any.
func (r *Registry) Lookup(identity string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[identity]
	return h, ok
}

// IsOnline reports whether identity currently holds a live handle.
func (r *Registry) IsOnline(identity string) bool {
	_, ok := r.Lookup(identity)
	return ok
}

// OnlineSet returns a sorted snapshot of all registered identities.
func (r *Registry) OnlineSet() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// CloseAll closes every registered handle. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	handles := make([]Handle, 0, len(r.handles))
	for id, h := range r.handles {
		handles = append(handles, h)
		delete(r.handles, id)
	}
	r.mu.Unlock()

	observability.SetPresenceOnline(0)
	for _, h := range handles {
		h.Close()
	}
}
