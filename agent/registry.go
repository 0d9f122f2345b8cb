package agent

import (
	"fmt"
	"sort"
	"sync"

	"github.com/parleyhq/parley/core"
)

// Registry resolves specialist ids to their definitions. Safe for
// concurrent use.
type Registry struct {
	mu          sync.RWMutex
	specialists map[string]*Specialist
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{specialists: map[string]*Specialist{}}
}

// NewDefaultRegistry creates a registry preloaded with the built-in
// specialists.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewRealityCheckerSpecialist())
	r.Register(NewBehaviorAnalystSpecialist())
	r.Register(NewMaterialConsultantSpecialist())
	r.Register(NewQuickAnswerSpecialist())
	return r
}

// Register adds or replaces a specialist by id.
func (r *Registry) Register(sp *Specialist) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specialists[sp.ID] = sp
}

// Resolve returns the specialist for an id, or core.ErrUnknownAgent.
func (r *Registry) Resolve(id string) (*Specialist, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sp, ok := r.specialists[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownAgent, id)
	}
	return sp, nil
}

// IDs returns the registered specialist ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.specialists))
	for id := range r.specialists {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
