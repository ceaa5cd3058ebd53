package dispatch

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
)

// Registry holds action specs by name. Specs are registered at startup;
// after Freeze the registry only serves lookups.
type Registry struct {
	mu     sync.RWMutex
	specs  map[string]*Spec
	frozen bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]*Spec)}
}

// Register adds a spec after checking that its path declarations are
// consistent with its parameter schema.
func (r *Registry) Register(spec *Spec) error {
	if spec == nil {
		return fmt.Errorf("action spec is nil")
	}
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return fmt.Errorf("action spec missing name")
	}
	if spec.Perform == nil {
		return fmt.Errorf("action %q has no effect function", name)
	}
	for _, pp := range spec.Paths {
		if strings.TrimSpace(pp.Param) == "" {
			return fmt.Errorf("action %q declares a path without a parameter name", name)
		}
		if !pp.Intent.Valid() {
			return fmt.Errorf("action %q path %q has unknown intent %q", name, pp.Param, pp.Intent)
		}
		if pp.Fixed != "" {
			if _, clash := spec.Params[pp.Param]; clash {
				return fmt.Errorf("action %q fixed path %q shadows a request parameter", name, pp.Param)
			}
			continue
		}
		info, ok := spec.Params[pp.Param]
		if !ok || info == nil {
			return fmt.Errorf("action %q path %q is not a declared parameter", name, pp.Param)
		}
		if info.Type != schema.String {
			return fmt.Errorf("action %q path %q must be a string parameter", name, pp.Param)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("registry is frozen, cannot register %q", name)
	}
	if _, exists := r.specs[name]; exists {
		return fmt.Errorf("action already registered: %s", name)
	}
	r.specs[name] = spec
	return nil
}

// Freeze rejects further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Get retrieves a spec by name.
func (r *Registry) Get(name string) (*Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[strings.TrimSpace(name)]
	return spec, ok
}

// Names returns registered action names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all specs sorted by name.
func (r *Registry) List() []*Spec {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Spec, 0, len(names))
	for _, name := range names {
		out = append(out, r.specs[name])
	}
	return out
}
