package data

import (
	"fmt"
	"os"

	"github.com/stepsim/stepsim/internal/component"
	"github.com/stepsim/stepsim/internal/core/ecs"
	"gopkg.in/yaml.v3"
)

type poseEntry struct {
	X   float64 `yaml:"x"`
	Y   float64 `yaml:"y"`
	Z   float64 `yaml:"z"`
	Yaw float64 `yaml:"yaw"`
}

type velocityEntry struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// EntityEntry is one entity in a world file. Pose and velocity are optional.
type EntityEntry struct {
	Name           string         `yaml:"name"`
	Pose           *poseEntry     `yaml:"pose"`
	LinearVelocity *velocityEntry `yaml:"linear_velocity"`
}

// World is a parsed world fixture.
type World struct {
	Name     string        `yaml:"name"`
	Entities []EntityEntry `yaml:"entities"`
}

// Count returns the number of entities the world spawns.
func (w *World) Count() int {
	return len(w.Entities)
}

// LoadWorld reads and validates a YAML world file.
func LoadWorld(path string) (*World, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world: %w", err)
	}
	w, err := ParseWorld(raw)
	if err != nil {
		return nil, fmt.Errorf("world %s: %w", path, err)
	}
	return w, nil
}

// ParseWorld decodes a YAML world. Entity names must be present and unique.
func ParseWorld(raw []byte) (*World, error) {
	var w World
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("parse world: %w", err)
	}
	seen := make(map[string]bool, len(w.Entities))
	for i, e := range w.Entities {
		if e.Name == "" {
			return nil, fmt.Errorf("entities[%d]: name is required", i)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("entities[%d]: duplicate name %q", i, e.Name)
		}
		seen[e.Name] = true
	}
	return &w, nil
}

// Spawn creates one entity per entry in file order and attaches its
// components. It returns the new ids in the same order.
func (w *World) Spawn(m *ecs.Manager) ([]ecs.EntityID, error) {
	ids := make([]ecs.EntityID, 0, len(w.Entities))
	for _, e := range w.Entities {
		id := m.CreateEntity()
		if err := ecs.Set(m, id, component.Name{Value: e.Name}); err != nil {
			return ids, err
		}
		if e.Pose != nil {
			p := component.Pose{X: e.Pose.X, Y: e.Pose.Y, Z: e.Pose.Z, Yaw: e.Pose.Yaw}
			if err := ecs.Set(m, id, p); err != nil {
				return ids, err
			}
		}
		if e.LinearVelocity != nil {
			v := component.LinearVelocity{X: e.LinearVelocity.X, Y: e.LinearVelocity.Y, Z: e.LinearVelocity.Z}
			if err := ecs.Set(m, id, v); err != nil {
				return ids, err
			}
		}
		ids = append(ids, id)
	}
	return ids, nil
}
