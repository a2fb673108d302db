package scripting

import (
	"fmt"

	"github.com/stepsim/stepsim/internal/component"
	"github.com/stepsim/stepsim/internal/core/ecs"
	"github.com/stepsim/stepsim/internal/core/event"
	"github.com/stepsim/stepsim/internal/core/system"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Phase entry points a script may define as globals. Missing ones are no-ops.
const (
	fnConfigure  = "configure"
	fnPreUpdate  = "pre_update"
	fnUpdate     = "update"
	fnPostUpdate = "post_update"
)

// System runs a Lua script as a simulation system. It wraps a single
// gopher-lua VM and must only be driven from the server's step goroutine.
//
// Scripts receive (info, ecm). info has iterations, sim_time, real_time, dt
// (seconds) and paused. ecm is a table of functions: find(name), name(id),
// pose(id), alive(id), entities(); in configure, pre_update and update it
// also has set_pose(id, x, y, z, yaw), create(name) and destroy(id).
type System struct {
	name string
	vm   *lua.LState
	log  *zap.Logger
}

var (
	_ system.Configurer  = (*System)(nil)
	_ system.PreUpdater  = (*System)(nil)
	_ system.Updater     = (*System)(nil)
	_ system.PostUpdater = (*System)(nil)
)

// NewSystem loads the script at path.
func NewSystem(name, path string, log *zap.Logger) (*System, error) {
	return newSystem(name, log, func(vm *lua.LState) error {
		if err := vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		return nil
	})
}

// NewSystemFromSource loads a script held in memory.
func NewSystemFromSource(name, source string, log *zap.Logger) (*System, error) {
	return newSystem(name, log, func(vm *lua.LState) error {
		if err := vm.DoString(source); err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
		return nil
	})
}

func newSystem(name string, log *zap.Logger, load func(*lua.LState) error) (*System, error) {
	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	if err := load(vm); err != nil {
		vm.Close()
		return nil, err
	}
	s := &System{name: name, vm: vm, log: log}
	s.log.Debug("loaded lua system",
		zap.String("system", name),
		zap.Bool(fnPreUpdate, s.defines(fnPreUpdate)),
		zap.Bool(fnUpdate, s.defines(fnUpdate)),
		zap.Bool(fnPostUpdate, s.defines(fnPostUpdate)),
	)
	return s, nil
}

func (s *System) Name() string { return s.name }

// Close releases the VM.
func (s *System) Close() {
	s.vm.Close()
}

func (s *System) defines(fn string) bool {
	return s.vm.GetGlobal(fn) != lua.LNil
}

func (s *System) Configure(ecm *ecs.Manager, _ *event.Bus) error {
	return s.call(fnConfigure, s.mutableAPI(ecm))
}

func (s *System) PreUpdate(info system.UpdateInfo, ecm *ecs.Manager) error {
	return s.call(fnPreUpdate, s.infoTable(info), s.mutableAPI(ecm))
}

func (s *System) Update(info system.UpdateInfo, ecm *ecs.Manager) error {
	return s.call(fnUpdate, s.infoTable(info), s.mutableAPI(ecm))
}

func (s *System) PostUpdate(info system.UpdateInfo, ecm ecs.View) error {
	return s.call(fnPostUpdate, s.infoTable(info), s.viewAPI(ecm))
}

func (s *System) call(name string, args ...lua.LValue) error {
	fn := s.vm.GetGlobal(name)
	if fn == lua.LNil {
		return nil
	}
	if err := s.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, args...); err != nil {
		return fmt.Errorf("lua %s %s: %w", s.name, name, err)
	}
	return nil
}

func (s *System) infoTable(info system.UpdateInfo) *lua.LTable {
	t := s.vm.NewTable()
	t.RawSetString("iterations", lua.LNumber(info.Iterations))
	t.RawSetString("sim_time", lua.LNumber(info.SimTime.Seconds()))
	t.RawSetString("real_time", lua.LNumber(info.RealTime.Seconds()))
	t.RawSetString("dt", lua.LNumber(info.Dt.Seconds()))
	t.RawSetString("paused", lua.LBool(info.Paused))
	return t
}

func entityArg(L *lua.LState, n int) ecs.EntityID {
	return ecs.EntityID(uint64(L.CheckNumber(n)))
}

func pushEntity(L *lua.LState, id ecs.EntityID) {
	L.Push(lua.LNumber(id))
}

// viewAPI builds the read-only ecm table.
func (s *System) viewAPI(v ecs.View) *lua.LTable {
	t := s.vm.NewTable()
	s.vm.SetFuncs(t, map[string]lua.LGFunction{
		"find": func(L *lua.LState) int {
			id, ok := component.FindByName(v, L.CheckString(1))
			if !ok {
				L.Push(lua.LNil)
				return 1
			}
			pushEntity(L, id)
			return 1
		},
		"name": func(L *lua.LState) int {
			n, ok := ecs.Get[component.Name](v, entityArg(L, 1))
			if !ok {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(lua.LString(n.Value))
			return 1
		},
		"pose": func(L *lua.LState) int {
			p, ok := ecs.Get[component.Pose](v, entityArg(L, 1))
			if !ok {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(lua.LNumber(p.X))
			L.Push(lua.LNumber(p.Y))
			L.Push(lua.LNumber(p.Z))
			L.Push(lua.LNumber(p.Yaw))
			return 4
		},
		"alive": func(L *lua.LState) int {
			L.Push(lua.LBool(v.Alive(entityArg(L, 1))))
			return 1
		},
		"entities": func(L *lua.LState) int {
			list := L.NewTable()
			for _, id := range v.Entities() {
				list.Append(lua.LNumber(id))
			}
			L.Push(list)
			return 1
		},
	})
	return t
}

// mutableAPI extends the read-only table with mutators.
func (s *System) mutableAPI(m *ecs.Manager) *lua.LTable {
	t := s.viewAPI(m)
	s.vm.SetFuncs(t, map[string]lua.LGFunction{
		"set_pose": func(L *lua.LState) int {
			p := component.Pose{
				X:   float64(L.CheckNumber(2)),
				Y:   float64(L.CheckNumber(3)),
				Z:   float64(L.CheckNumber(4)),
				Yaw: float64(L.OptNumber(5, 0)),
			}
			if err := ecs.Set(m, entityArg(L, 1), p); err != nil {
				L.RaiseError("%s", err.Error())
			}
			return 0
		},
		"create": func(L *lua.LState) int {
			id := m.CreateEntity()
			if name := L.OptString(1, ""); name != "" {
				if err := ecs.Set(m, id, component.Name{Value: name}); err != nil {
					L.RaiseError("%s", err.Error())
				}
			}
			pushEntity(L, id)
			return 1
		},
		"destroy": func(L *lua.LState) int {
			m.MarkForDestruction(entityArg(L, 1))
			return 0
		},
	})
	return t
}
