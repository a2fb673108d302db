package system

import (
	"errors"
	"fmt"

	"github.com/stepsim/stepsim/internal/core/ecs"
	"go.uber.org/zap"
)

// ErrNoCapability is returned when a value registered as a system implements
// none of the phase interfaces.
var ErrNoCapability = errors.New("system implements no update phase")

// Runner executes systems phase by phase each step. Within a phase, systems
// run in registration order.
type Runner struct {
	preUpdaters  []PreUpdater
	updaters     []Updater
	postUpdaters []PostUpdater
	count        int
	log          *zap.Logger
}

func NewRunner(log *zap.Logger) *Runner {
	return &Runner{
		preUpdaters:  make([]PreUpdater, 0, 8),
		updaters:     make([]Updater, 0, 8),
		postUpdaters: make([]PostUpdater, 0, 8),
		log:          log,
	}
}

// Register adds sys to every phase it implements.
func (r *Runner) Register(sys any) error {
	pre, hasPre := sys.(PreUpdater)
	upd, hasUpd := sys.(Updater)
	post, hasPost := sys.(PostUpdater)
	if !hasPre && !hasUpd && !hasPost {
		return ErrNoCapability
	}
	if hasPre {
		r.preUpdaters = append(r.preUpdaters, pre)
	}
	if hasUpd {
		r.updaters = append(r.updaters, upd)
	}
	if hasPost {
		r.postUpdaters = append(r.postUpdaters, post)
	}
	r.count++
	r.log.Debug("system registered",
		zap.String("system", NameOf(sys)),
		zap.Bool("pre_update", hasPre),
		zap.Bool("update", hasUpd),
		zap.Bool("post_update", hasPost),
	)
	return nil
}

// Len returns the number of registered systems.
func (r *Runner) Len() int { return r.count }

// Step runs pre-update, update and post-update in that order. The first error
// stops the step and is returned as is.
func (r *Runner) Step(info UpdateInfo, ecm *ecs.Manager) error {
	for _, p := range [...]Phase{PhasePreUpdate, PhaseUpdate, PhasePostUpdate} {
		if err := r.RunPhase(p, info, ecm); err != nil {
			return err
		}
	}
	return nil
}

// RunPhase runs only the systems of one phase. Post-update systems receive
// ecm.ReadOnly().
func (r *Runner) RunPhase(phase Phase, info UpdateInfo, ecm *ecs.Manager) error {
	switch phase {
	case PhasePreUpdate:
		for _, s := range r.preUpdaters {
			if err := s.PreUpdate(info, ecm); err != nil {
				return err
			}
		}
	case PhaseUpdate:
		for _, s := range r.updaters {
			if err := s.Update(info, ecm); err != nil {
				return err
			}
		}
	case PhasePostUpdate:
		view := ecm.ReadOnly()
		for _, s := range r.postUpdaters {
			if err := s.PostUpdate(info, view); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown phase %s", phase)
	}
	return nil
}
