package component

import "github.com/stepsim/stepsim/internal/core/ecs"

// Name is the unique, human-readable label of an entity.
type Name struct {
	Value string
}

// Pose is a position in meters plus heading in radians.
type Pose struct {
	X, Y, Z float64
	Yaw     float64
}

// LinearVelocity in meters per second. Pure data; nothing in the server
// integrates it.
type LinearVelocity struct {
	X, Y, Z float64
}

// FindByName returns the first live entity whose Name matches.
func FindByName(v ecs.View, name string) (ecs.EntityID, bool) {
	found := ecs.NullEntity
	ecs.Each(v, func(id ecs.EntityID, n Name) {
		if found.IsZero() && n.Value == name {
			found = id
		}
	})
	return found, !found.IsZero()
}
