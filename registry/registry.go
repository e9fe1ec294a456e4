// Package registry tracks every channel a process has created, by key.
//
// The original C library keeps this as a file-scope linked list
// (__mpc_base) threaded through each link; spec Design Notes §9 suggests
// promoting it to an explicit, passable type instead of a hidden global,
// which is what Registry does. A package-level Default instance is kept
// for callers happy with one process-wide table, mirroring how the
// original library only ever has one.
package registry

import (
	"fmt"
	"sync"
)

// Handle is anything a Registry can track: a created channel, in
// practice, but the registry package itself has no dependency on the
// channel package to keep the import graph acyclic.
type Handle interface {
	Close() error
}

// Registry is a concurrency-safe table of open handles keyed by an
// arbitrary caller-chosen key.
//
// The key is not required to be just a channel's Name: a server
// channel and a client channel of the same Name are a normal pairing
// (§8 scenario 6, a process talking to its own exported link), so
// callers that want both to coexist qualify the key with the role
// (e.g. "trivial#server" vs. "trivial#client") rather than registering
// under the bare name.
type Registry struct {
	mu    sync.Mutex
	items map[string]Handle
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{items: make(map[string]Handle)}
}

// Default is the process-wide registry every CreateServer/CreateClient
// call in the channel package registers into unless the caller supplies
// its own, matching the original library's single implicit __mpc_base.
var Default = New()

// Add registers h under key. It returns an error if key is already
// registered — the registry is an explicit addition to the API surface
// (§9), so it is allowed to enforce uniqueness rather than silently
// shadow a handle that Close would then leak.
func (r *Registry) Add(key string, h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[key]; exists {
		return fmt.Errorf("registry: %q already registered", key)
	}
	r.items[key] = h
	return nil
}

// Remove drops key from the table without closing it. Channel.Close
// calls this itself; callers normally never need to.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, key)
}

// Lookup returns the handle registered under key, if any.
func (r *Registry) Lookup(key string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.items[key]
	return h, ok
}

// Keys returns every currently registered key, for diagnostics.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.items))
	for k := range r.items {
		keys = append(keys, k)
	}
	return keys
}

// CloseAll closes every registered handle and empties the table. Errors
// are collected but do not stop the sweep, so one stuck handle can't
// leak the rest.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	items := r.items
	r.items = make(map[string]Handle)
	r.mu.Unlock()

	var firstErr error
	for _, h := range items {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
