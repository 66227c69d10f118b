package dispatch

import (
	"fmt"
	"sync"

	"github.com/vladimirpesic/juggler/router"
)

// registration pairs one tool descriptor with the router that owns it.
type registration struct {
	router     router.Router
	descriptor router.Descriptor
}

// Registry collects all routers at startup and builds the name-to-router
// index. Tool names share one global namespace: registration fails on the
// first collision, before any traffic is served.
//
// Register and Freeze belong to startup; after Freeze the registry is
// immutable and safe for unsynchronized concurrent reads.
type Registry struct {
	mu     sync.Mutex
	frozen bool
	byName map[string]registration
	order  []string
}

// NewRegistry creates an empty router registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]registration),
	}
}

// Register adds a router and indexes every tool it advertises. It fails if
// the registry is frozen, a descriptor is malformed, or any tool name
// collides with one already registered; the caller must treat a failure as
// fatal to startup.
func (r *Registry) Register(rt router.Router) error {
	if rt == nil {
		return fmt.Errorf("register router: nil router")
	}
	if rt.ID() == "" {
		return fmt.Errorf("register router: missing router id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("register router %s: registry is frozen", rt.ID())
	}

	tools := rt.Tools()
	if len(tools) == 0 {
		return fmt.Errorf("register router %s: no tools advertised", rt.ID())
	}

	// Validate the whole set before touching the index so a failed
	// registration leaves the registry unchanged.
	for _, descriptor := range tools {
		if descriptor.Name == "" {
			return fmt.Errorf("register router %s: missing tool name", rt.ID())
		}
		if descriptor.InputSchema == nil {
			return fmt.Errorf("register router %s: missing input schema for %q", rt.ID(), descriptor.Name)
		}
		if existing, taken := r.byName[descriptor.Name]; taken {
			return fmt.Errorf("register router %s: tool %q already registered by router %s",
				rt.ID(), descriptor.Name, existing.router.ID())
		}
	}
	seen := make(map[string]struct{}, len(tools))
	for _, descriptor := range tools {
		if _, dup := seen[descriptor.Name]; dup {
			return fmt.Errorf("register router %s: tool %q declared twice", rt.ID(), descriptor.Name)
		}
		seen[descriptor.Name] = struct{}{}
	}

	for _, descriptor := range tools {
		r.byName[descriptor.Name] = registration{router: rt, descriptor: descriptor}
		r.order = append(r.order, descriptor.Name)
	}
	return nil
}

// Freeze marks the registry immutable. Call it once, after all routers are
// registered and before serving any traffic.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Resolve returns the router owning a tool name and its descriptor.
func (r *Registry) Resolve(name string) (router.Router, router.Descriptor, bool) {
	reg, ok := r.byName[name]
	if !ok {
		return nil, router.Descriptor{}, false
	}
	return reg.router, reg.descriptor, true
}

// Descriptors returns every registered tool descriptor in registration order
// then declaration order. The ordering is stable and deterministic.
func (r *Registry) Descriptors() []router.Descriptor {
	descriptors := make([]router.Descriptor, 0, len(r.order))
	for _, name := range r.order {
		descriptors = append(descriptors, r.byName[name].descriptor)
	}
	return descriptors
}
