package ecs

import (
	"fmt"
	"reflect"
)

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// StoreOf returns the store for component type T, creating and registering it
// on first use.
func StoreOf[T any](m *Manager) *PtrComponentStore[T] {
	t := typeOf[T]()
	if s, ok := m.registry.Lookup(t); ok {
		return s.(*PtrComponentStore[T])
	}
	s := NewPtrComponentStore[T]()
	m.registry.Register(t, s)
	return s
}

func viewStore[T any](v View) (*PtrComponentStore[T], bool) {
	s, ok := v.store(typeOf[T]())
	if !ok {
		return nil, false
	}
	return s.(*PtrComponentStore[T]), true
}

// Set attaches c to id, replacing any existing component of the same type.
func Set[T any](m *Manager, id EntityID, c T) error {
	if !m.Alive(id) {
		return fmt.Errorf("set %s on entity %d: %w", typeOf[T](), id, ErrEntityNotFound)
	}
	StoreOf[T](m).Set(id, &c)
	return nil
}

// Lookup returns a mutable pointer to id's component of type T.
func Lookup[T any](m *Manager, id EntityID) (*T, bool) {
	s, ok := viewStore[T](m)
	if !ok {
		return nil, false
	}
	return s.Get(id)
}

// Remove detaches id's component of type T, if any.
func Remove[T any](m *Manager, id EntityID) {
	if s, ok := viewStore[T](m); ok {
		s.Remove(id)
	}
}

// Get returns a copy of id's component of type T.
func Get[T any](v View, id EntityID) (T, bool) {
	var zero T
	s, ok := viewStore[T](v)
	if !ok {
		return zero, false
	}
	c, ok := s.Get(id)
	if !ok {
		return zero, false
	}
	return *c, true
}

func Has[T any](v View, id EntityID) bool {
	s, ok := viewStore[T](v)
	return ok && s.Has(id)
}

// Each visits a copy of every component of type T in ascending entity order.
func Each[T any](v View, fn func(EntityID, T)) {
	s, ok := viewStore[T](v)
	if !ok {
		return
	}
	for _, id := range s.Sorted() {
		c, _ := s.Get(id)
		fn(id, *c)
	}
}

// EachMut visits every component of type T in ascending entity order.
func EachMut[T any](m *Manager, fn func(EntityID, *T)) {
	s, ok := viewStore[T](m)
	if !ok {
		return
	}
	for _, id := range s.Sorted() {
		c, _ := s.Get(id)
		fn(id, c)
	}
}

// Each2 iterates over entities that have both component A and B.
// It walks the smaller store and checks the larger one.
func Each2[A, B any](m *Manager, fn func(EntityID, *A, *B)) {
	sa, ok := viewStore[A](m)
	if !ok {
		return
	}
	sb, ok := viewStore[B](m)
	if !ok {
		return
	}
	if sa.Len() <= sb.Len() {
		for _, id := range sa.Sorted() {
			if b, ok := sb.data[id]; ok {
				fn(id, sa.data[id], b)
			}
		}
		return
	}
	for _, id := range sb.Sorted() {
		if a, ok := sa.data[id]; ok {
			fn(id, a, sb.data[id])
		}
	}
}
