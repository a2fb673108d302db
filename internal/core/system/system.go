package system

import (
	"fmt"
	"time"

	"github.com/stepsim/stepsim/internal/core/ecs"
	"github.com/stepsim/stepsim/internal/core/event"
)

// Phase defines execution ordering within a single step.
type Phase int

const (
	PhasePreUpdate  Phase = iota // 0: prepare state for this step
	PhaseUpdate                  // 1: simulation logic
	PhasePostUpdate              // 2: read results, read-only
)

func (p Phase) String() string {
	switch p {
	case PhasePreUpdate:
		return "pre-update"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post-update"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// UpdateInfo describes the step being executed.
type UpdateInfo struct {
	Iterations uint64        // completed + current iteration count
	SimTime    time.Duration // simulation time at the end of this step
	RealTime   time.Duration // wall time since the run started
	Dt         time.Duration // step size, zero while paused
	Paused     bool
}

// A system implements any subset of the three phase capabilities below. The
// server registers every kind of system through the same path.

type PreUpdater interface {
	PreUpdate(info UpdateInfo, ecm *ecs.Manager) error
}

type Updater interface {
	Update(info UpdateInfo, ecm *ecs.Manager) error
}

// PostUpdater only ever sees a read-only view of the store.
type PostUpdater interface {
	PostUpdate(info UpdateInfo, ecm ecs.View) error
}

// Configurer is called once when the system is added to a server.
type Configurer interface {
	Configure(ecm *ecs.Manager, events *event.Bus) error
}

// Named systems are logged by name instead of by Go type.
type Named interface {
	Name() string
}

// NameOf returns a display name for a system.
func NameOf(sys any) string {
	if n, ok := sys.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", sys)
}
