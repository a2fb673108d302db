package event

import (
	"time"

	"github.com/stepsim/stepsim/internal/core/ecs"
)

// SystemAdded is emitted when a server accepts a system.
type SystemAdded struct {
	Name string
}

// StepCompleted is emitted after all three phases of a step ran.
type StepCompleted struct {
	Iterations uint64
	SimTime    time.Duration
}

// EntityDestroyed is emitted for every entity removed by the end-of-step flush.
type EntityDestroyed struct {
	ID ecs.EntityID
}
