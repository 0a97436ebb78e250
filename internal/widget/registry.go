package widget

import (
	"sync"

	"github.com/mescon/Tickarr/internal/domain"
)

// Registry records which widget owns each host. It replaces tagging host objects
// with a back-reference: the host environment keeps one Registry and every widget
// created against it goes through it to take a host.
//
// Lock order is Registry then Widget. A widget never calls into the registry while
// holding its own lock.
type Registry struct {
	mu     sync.Mutex
	owners map[string]*Widget
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{owners: make(map[string]*Widget)}
}

// eviction carries the event for a widget that lost its host, published after locks are released.
type eviction struct {
	widget *Widget
	event  domain.Event
}

// claim makes w the owner of its host. The previous owner is stopped and marked
// unowned before w becomes owner, and activate runs before the registry lock is
// released, so no other claim can interleave with the hand-off.
func (r *Registry) claim(w *Widget, activate func()) *eviction {
	r.mu.Lock()
	defer r.mu.Unlock()

	hostID := w.host.HostID()
	var ev *eviction
	if prev, ok := r.owners[hostID]; ok && prev != w {
		ev = &eviction{widget: prev, event: prev.evict()}
	}
	r.owners[hostID] = w
	if activate != nil {
		activate()
	}
	return ev
}

// Owner returns the widget currently owning hostID.
func (r *Registry) Owner(hostID string) (*Widget, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.owners[hostID]
	return w, ok
}

// Release stops w and gives up its host. It reports whether w was the owner.
func (r *Registry) Release(w *Widget) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	hostID := w.host.HostID()
	if r.owners[hostID] != w {
		return false
	}
	delete(r.owners, hostID)
	w.release()
	return true
}

// Len returns the number of owned hosts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owners)
}
