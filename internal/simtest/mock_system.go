package simtest

import (
	"sync"

	"github.com/stepsim/stepsim/internal/core/ecs"
	"github.com/stepsim/stepsim/internal/core/system"
)

// Callback is the shape of pre-update and update callbacks. They may mutate
// the store.
type Callback func(info system.UpdateInfo, ecm *ecs.Manager) error

// ReadOnlyCallback is the shape of post-update callbacks. The callback must
// not mutate the store; the View it receives has no mutators.
type ReadOnlyCallback func(info system.UpdateInfo, ecm ecs.View) error

var (
	_ system.PreUpdater  = (*MockSystem)(nil)
	_ system.Updater     = (*MockSystem)(nil)
	_ system.PostUpdater = (*MockSystem)(nil)
)

// MockSystem is a system whose three phases run whatever callbacks were set
// on it. An empty slot makes its phase a no-op. Errors and panics from a
// callback reach the server unchanged.
type MockSystem struct {
	mu         sync.Mutex
	preUpdate  Callback
	update     Callback
	postUpdate ReadOnlyCallback
}

func NewMockSystem() *MockSystem {
	return &MockSystem{}
}

func (s *MockSystem) Name() string { return "simtest.MockSystem" }

// SetPreUpdateCallback replaces the pre-update callback. nil empties the slot.
func (s *MockSystem) SetPreUpdateCallback(cb Callback) {
	s.mu.Lock()
	s.preUpdate = cb
	s.mu.Unlock()
}

// SetUpdateCallback replaces the update callback. nil empties the slot.
func (s *MockSystem) SetUpdateCallback(cb Callback) {
	s.mu.Lock()
	s.update = cb
	s.mu.Unlock()
}

// SetPostUpdateCallback replaces the post-update callback. nil empties the slot.
func (s *MockSystem) SetPostUpdateCallback(cb ReadOnlyCallback) {
	s.mu.Lock()
	s.postUpdate = cb
	s.mu.Unlock()
}

// PreUpdate runs the pre-update callback, if any. Every phase reads its slot
// under the lock and runs the callback outside it, so a callback that replaces
// a slot affects the next invocation, not this one.
func (s *MockSystem) PreUpdate(info system.UpdateInfo, ecm *ecs.Manager) error {
	s.mu.Lock()
	cb := s.preUpdate
	s.mu.Unlock()
	if cb == nil {
		return nil
	}
	return cb(info, ecm)
}

func (s *MockSystem) Update(info system.UpdateInfo, ecm *ecs.Manager) error {
	s.mu.Lock()
	cb := s.update
	s.mu.Unlock()
	if cb == nil {
		return nil
	}
	return cb(info, ecm)
}

func (s *MockSystem) PostUpdate(info system.UpdateInfo, ecm ecs.View) error {
	s.mu.Lock()
	cb := s.postUpdate
	s.mu.Unlock()
	if cb == nil {
		return nil
	}
	return cb(info, ecm)
}
