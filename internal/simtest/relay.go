package simtest

// Relay registers callbacks that run during the update cycle, so a test gets
// a working system without writing or loading a plugin.
//
//	relay := simtest.NewRelay().
//		OnPreUpdate(func(info system.UpdateInfo, ecm *ecs.Manager) error {
//			// set up state for this step
//			return nil
//		}).
//		OnPostUpdate(func(info system.UpdateInfo, ecm ecs.View) error {
//			// check expectations
//			return nil
//		})
//
//	if err := srv.AddSystem(relay.System()); err != nil { ... }
//	err := srv.Run(ctx, 10)
//
// Callbacks can be replaced at any time the server is not inside a step.
type Relay struct {
	sys *MockSystem
}

// NewRelay creates a Relay and the single MockSystem it configures.
func NewRelay() *Relay {
	return &Relay{sys: NewMockSystem()}
}

// OnPreUpdate sets the callback run every pre-update.
func (r *Relay) OnPreUpdate(cb Callback) *Relay {
	r.sys.SetPreUpdateCallback(cb)
	return r
}

// OnUpdate sets the callback run every update.
func (r *Relay) OnUpdate(cb Callback) *Relay {
	r.sys.SetUpdateCallback(cb)
	return r
}

// OnPostUpdate sets the callback run every post-update.
func (r *Relay) OnPostUpdate(cb ReadOnlyCallback) *Relay {
	r.sys.SetPostUpdateCallback(cb)
	return r
}

// System returns the system to pass to the server's AddSystem. The Relay
// keeps its reference, so callbacks set later still take effect.
func (r *Relay) System() *MockSystem {
	return r.sys
}
