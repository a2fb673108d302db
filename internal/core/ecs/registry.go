package ecs

import "reflect"

// Registry tracks every component store by component type and supports bulk
// cleanup on entity destroy.
type Registry struct {
	stores map[reflect.Type]Removable
	order  []Removable
}

func NewRegistry() *Registry {
	return &Registry{
		stores: make(map[reflect.Type]Removable, 16),
		order:  make([]Removable, 0, 16),
	}
}

// Register adds a component store for type t. Registering a type twice keeps
// the first store.
func (r *Registry) Register(t reflect.Type, store Removable) {
	if _, ok := r.stores[t]; ok {
		return
	}
	r.stores[t] = store
	r.order = append(r.order, store)
}

// Lookup returns the store registered for type t.
func (r *Registry) Lookup(t reflect.Type) (Removable, bool) {
	s, ok := r.stores[t]
	return s, ok
}

// Len returns the number of registered component types.
func (r *Registry) Len() int { return len(r.order) }

// RemoveAll clears the given entity from every registered component store.
func (r *Registry) RemoveAll(id EntityID) {
	for _, s := range r.order {
		s.Remove(id)
	}
}
