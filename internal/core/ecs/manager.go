package ecs

import (
	"errors"
	"reflect"
)

// ErrEntityNotFound is returned when a component is attached to an entity
// that is not alive.
var ErrEntityNotFound = errors.New("ecs: entity not found")

// View is read-only access to a Manager. Post-update systems receive a View
// and nothing else; the concrete value handed out by Manager.ReadOnly cannot
// be converted back into a *Manager.
type View interface {
	Alive(id EntityID) bool
	EntityCount() int
	Entities() []EntityID
	store(t reflect.Type) (Removable, bool)
}

// Manager is the entity-component manager. It owns the entity pool, the
// component registry, and a deferred destruction queue flushed by the server
// at the end of every step.
type Manager struct {
	pool         *EntityPool
	registry     *Registry
	destroyQueue []EntityID
}

func NewManager() *Manager {
	return &Manager{
		pool:         NewEntityPool(),
		registry:     NewRegistry(),
		destroyQueue: make([]EntityID, 0, 64),
	}
}

func (m *Manager) Registry() *Registry { return m.registry }

func (m *Manager) CreateEntity() EntityID {
	return m.pool.Create()
}

func (m *Manager) Alive(id EntityID) bool {
	return m.pool.Alive(id)
}

func (m *Manager) EntityCount() int {
	return m.pool.Len()
}

// Entities returns every live entity in ascending index order.
func (m *Manager) Entities() []EntityID {
	ids := make([]EntityID, 0, m.pool.Len())
	m.pool.Each(func(id EntityID) {
		ids = append(ids, id)
	})
	return ids
}

// MarkForDestruction queues an entity for end-of-step cleanup.
func (m *Manager) MarkForDestruction(id EntityID) {
	if !m.pool.Alive(id) {
		return
	}
	m.destroyQueue = append(m.destroyQueue, id)
}

// PendingDestruction reports how many entities are queued.
func (m *Manager) PendingDestruction() int { return len(m.destroyQueue) }

// FlushDestroyQueue destroys all queued entities, clears their components and
// returns the ids that were actually destroyed.
func (m *Manager) FlushDestroyQueue() []EntityID {
	if len(m.destroyQueue) == 0 {
		return nil
	}
	destroyed := make([]EntityID, 0, len(m.destroyQueue))
	for _, id := range m.destroyQueue {
		if !m.pool.Destroy(id) {
			continue // queued twice
		}
		m.registry.RemoveAll(id)
		destroyed = append(destroyed, id)
	}
	m.destroyQueue = m.destroyQueue[:0]
	return destroyed
}

// ReadOnly returns a View over m that exposes no mutators.
func (m *Manager) ReadOnly() View {
	return readOnly{m: m}
}

func (m *Manager) store(t reflect.Type) (Removable, bool) {
	return m.registry.Lookup(t)
}

type readOnly struct {
	m *Manager
}

func (r readOnly) Alive(id EntityID) bool { return r.m.Alive(id) }
func (r readOnly) EntityCount() int       { return r.m.EntityCount() }
func (r readOnly) Entities() []EntityID   { return r.m.Entities() }

func (r readOnly) store(t reflect.Type) (Removable, bool) {
	return r.m.store(t)
}
