package oilfox

import (
	"context"
	"fmt"
	"sync"
)

// Listener receives bridge events. Device handlers and the discovery
// listener implement it.
//
// Implementations must be comparable (typically pointers) because the
// registry identifies them by equality.
type Listener interface {
	// HWID returns the hwid the listener is responsible for, or "" for
	// listeners that are interested in every device.
	HWID() string

	// OnAdded is called once for a hwid that no listener claims.
	OnAdded(bridgeID, hwid string) error

	// OnRemoved is called when a previously announced hwid goes away.
	OnRemoved(bridgeID, hwid string) error

	// OnRefresh is called with the full device list after each successful poll.
	OnRefresh(ctx context.Context, devices []Device) error
}

// Registry holds the bridge's listeners in registration order.
// Listeners with a hwid are also indexed by it; at most one listener may
// claim a hwid.
//
// Thread Safety: All methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	order  []Listener
	byHWID map[string]Listener
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byHWID: make(map[string]Listener)}
}

// Register appends a listener.
//
// Returns:
//   - error: ErrListenerExists if l is already registered or its hwid is claimed
func (r *Registry) Register(l Listener) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.order {
		if existing == l {
			return ErrListenerExists
		}
	}

	if hwid := l.HWID(); hwid != "" {
		if _, ok := r.byHWID[hwid]; ok {
			return fmt.Errorf("%w: hwid %s", ErrListenerExists, hwid)
		}
		r.byHWID[hwid] = l
	}
	r.order = append(r.order, l)
	return nil
}

// Unregister removes a listener. It reports whether l was registered.
func (r *Registry) Unregister(l Listener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.order {
		if existing != l {
			continue
		}
		r.order = append(r.order[:i:i], r.order[i+1:]...)
		if hwid := l.HWID(); hwid != "" && r.byHWID[hwid] == l {
			delete(r.byHWID, hwid)
		}
		return true
	}
	return false
}

// Listeners returns a snapshot in registration order.
func (r *Registry) Listeners() []Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Listener, len(r.order))
	copy(out, r.order)
	return out
}

// Lookup returns the listener claiming hwid.
func (r *Registry) Lookup(hwid string) (Listener, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.byHWID[hwid]
	return l, ok
}

// Claimed reports whether any listener is responsible for hwid.
func (r *Registry) Claimed(hwid string) bool {
	_, ok := r.Lookup(hwid)
	return ok
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ClaimedHWIDs returns the hwids claimed by device listeners, in
// registration order.
func (r *Registry) ClaimedHWIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.byHWID))
	for _, l := range r.order {
		if hwid := l.HWID(); hwid != "" {
			out = append(out, hwid)
		}
	}
	return out
}
