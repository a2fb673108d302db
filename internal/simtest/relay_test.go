package simtest_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stepsim/stepsim/internal/component"
	"github.com/stepsim/stepsim/internal/config"
	"github.com/stepsim/stepsim/internal/core/ecs"
	"github.com/stepsim/stepsim/internal/core/system"
	"github.com/stepsim/stepsim/internal/server"
	"github.com/stepsim/stepsim/internal/simtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newServer(t *testing.T) *server.Server {
	t.Helper()
	return server.New(config.SimConfig{Name: t.Name(), StepSize: time.Millisecond}, zaptest.NewLogger(t))
}

func TestUpdateCallbackRunsOncePerStep(t *testing.T) {
	srv := newServer(t)
	var updates int
	relay := simtest.NewRelay().
		OnUpdate(func(system.UpdateInfo, *ecs.Manager) error {
			updates++
			return nil
		})
	require.NoError(t, srv.AddSystem(relay.System()))

	// The watcher counts every pre/post phase the server runs. The relay's
	// own pre/post slots are empty, so the counts match the steps exactly.
	var pre, post int
	watcher := simtest.NewRelay().
		OnPreUpdate(func(system.UpdateInfo, *ecs.Manager) error {
			pre++
			return nil
		}).
		OnPostUpdate(func(system.UpdateInfo, ecs.View) error {
			post++
			return nil
		})
	require.NoError(t, srv.AddSystem(watcher.System()))

	require.NoError(t, srv.Run(context.Background(), 5))

	assert.Equal(t, 5, updates)
	assert.Equal(t, uint64(5), srv.IterationCount())
	assert.Equal(t, 5, pre)
	assert.Equal(t, 5, post)
	assert.Equal(t, 0, srv.ECM().EntityCount(), "empty pre/post slots leave the store untouched")

	sys := relay.System()
	require.NoError(t, sys.PreUpdate(system.UpdateInfo{}, srv.ECM()))
	require.NoError(t, sys.PostUpdate(system.UpdateInfo{}, srv.ECM().ReadOnly()))
	assert.Equal(t, 5, updates, "empty slots do not reach the update callback")
	assert.Equal(t, 0, srv.ECM().EntityCount())
}

func TestPreUpdateMutationVisibleInPostUpdate(t *testing.T) {
	srv := newServer(t)
	box := srv.ECM().CreateEntity()
	require.NoError(t, ecs.Set(srv.ECM(), box, component.Pose{Z: 0.5}))

	var observed component.Pose
	relay := simtest.NewRelay().
		OnPreUpdate(func(_ system.UpdateInfo, ecm *ecs.Manager) error {
			pose, ok := ecs.Lookup[component.Pose](ecm, box)
			if !ok {
				return errors.New("box has no pose")
			}
			pose.Z = 2
			return nil
		}).
		OnPostUpdate(func(_ system.UpdateInfo, ecm ecs.View) error {
			observed, _ = ecs.Get[component.Pose](ecm, box)
			return nil
		})
	require.NoError(t, srv.AddSystem(relay.System()))

	require.NoError(t, srv.Run(context.Background(), 1))
	assert.Equal(t, 2.0, observed.Z)
}

func TestPostUpdateFailureStopsRun(t *testing.T) {
	srv := newServer(t)
	boom := errors.New("expectation failed")
	updates := 0
	relay := simtest.NewRelay().
		OnUpdate(func(system.UpdateInfo, *ecs.Manager) error {
			updates++
			return nil
		}).
		OnPostUpdate(func(system.UpdateInfo, ecs.View) error {
			return boom
		})
	require.NoError(t, srv.AddSystem(relay.System()))

	err := srv.Run(context.Background(), 5)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, updates, "no step runs after the failing one")
	assert.Equal(t, uint64(1), srv.IterationCount())
	assert.False(t, srv.Running())
}

func TestPhasesRunInOrderEveryStep(t *testing.T) {
	srv := newServer(t)
	var calls []string
	record := func(phase string) simtest.Callback {
		return func(info system.UpdateInfo, _ *ecs.Manager) error {
			calls = append(calls, fmt.Sprintf("%d:%s", info.Iterations, phase))
			return nil
		}
	}
	relay := simtest.NewRelay().
		OnPreUpdate(record("pre")).
		OnUpdate(record("update")).
		OnPostUpdate(func(info system.UpdateInfo, _ ecs.View) error {
			calls = append(calls, fmt.Sprintf("%d:post", info.Iterations))
			return nil
		})
	require.NoError(t, srv.AddSystem(relay.System()))

	require.NoError(t, srv.Run(context.Background(), 3))
	assert.Equal(t, []string{
		"1:pre", "1:update", "1:post",
		"2:pre", "2:update", "2:post",
		"3:pre", "3:update", "3:post",
	}, calls)
}

func TestLastRegistrationWins(t *testing.T) {
	srv := newServer(t)
	var first, second, third int
	relay := simtest.NewRelay().
		OnUpdate(func(system.UpdateInfo, *ecs.Manager) error {
			first++
			return nil
		}).
		OnUpdate(func(system.UpdateInfo, *ecs.Manager) error {
			second++
			return nil
		})
	require.NoError(t, srv.AddSystem(relay.System()))
	require.NoError(t, srv.Run(context.Background(), 2))

	relay.OnUpdate(func(system.UpdateInfo, *ecs.Manager) error {
		third++
		return nil
	})
	require.NoError(t, srv.Run(context.Background(), 3))

	assert.Equal(t, 0, first)
	assert.Equal(t, 2, second)
	assert.Equal(t, 3, third)
}

func TestChainedRegistrationMatchesSeparate(t *testing.T) {
	run := func(t *testing.T, configure func(r *simtest.Relay, calls *[]string)) []string {
		srv := newServer(t)
		var calls []string
		relay := simtest.NewRelay()
		configure(relay, &calls)
		require.NoError(t, srv.AddSystem(relay.System()))
		require.NoError(t, srv.Run(context.Background(), 2))
		return calls
	}
	pre := func(calls *[]string) simtest.Callback {
		return func(system.UpdateInfo, *ecs.Manager) error { *calls = append(*calls, "pre"); return nil }
	}
	upd := func(calls *[]string) simtest.Callback {
		return func(system.UpdateInfo, *ecs.Manager) error { *calls = append(*calls, "update"); return nil }
	}
	post := func(calls *[]string) simtest.ReadOnlyCallback {
		return func(system.UpdateInfo, ecs.View) error { *calls = append(*calls, "post"); return nil }
	}

	chained := run(t, func(r *simtest.Relay, calls *[]string) {
		r.OnPreUpdate(pre(calls)).OnUpdate(upd(calls)).OnPostUpdate(post(calls))
	})
	separate := run(t, func(r *simtest.Relay, calls *[]string) {
		r.OnPreUpdate(pre(calls))
		r.OnUpdate(upd(calls))
		r.OnPostUpdate(post(calls))
	})
	assert.Equal(t, chained, separate)
	assert.Len(t, chained, 6)
}

func TestUnregisteredPhasesAreSilent(t *testing.T) {
	srv := newServer(t)
	srv.ECM().CreateEntity()
	relay := simtest.NewRelay()
	require.NoError(t, srv.AddSystem(relay.System()))

	require.NoError(t, srv.Run(context.Background(), 4))
	assert.Equal(t, 1, srv.ECM().EntityCount())
	assert.Equal(t, uint64(4), srv.IterationCount())
}

func TestPostUpdateSeesReadOnlyView(t *testing.T) {
	srv := newServer(t)
	var isManager bool
	relay := simtest.NewRelay().
		OnPostUpdate(func(_ system.UpdateInfo, ecm ecs.View) error {
			_, isManager = ecm.(*ecs.Manager)
			return nil
		})
	require.NoError(t, srv.AddSystem(relay.System()))
	require.NoError(t, srv.Run(context.Background(), 1))
	assert.False(t, isManager)
}

func TestRelayHandleIsStable(t *testing.T) {
	relay := simtest.NewRelay()
	sys := relay.System()
	require.NotNil(t, sys)

	assert.Same(t, relay, relay.OnPreUpdate(nil))
	assert.Same(t, relay, relay.OnUpdate(nil))
	assert.Same(t, relay, relay.OnPostUpdate(nil))
	assert.Same(t, sys, relay.System())
}

func TestCallbackSetAfterRegistrationTakesEffect(t *testing.T) {
	srv := newServer(t)
	relay := simtest.NewRelay()
	require.NoError(t, srv.AddSystem(relay.System()))

	var posts int
	relay.OnPostUpdate(func(system.UpdateInfo, ecs.View) error {
		posts++
		return nil
	})
	require.NoError(t, srv.Run(context.Background(), 2))
	assert.Equal(t, 2, posts)
}

func TestCallbackPanicIsNotRecovered(t *testing.T) {
	srv := newServer(t)
	relay := simtest.NewRelay().
		OnUpdate(func(system.UpdateInfo, *ecs.Manager) error {
			panic("assertion blew up")
		})
	require.NoError(t, srv.AddSystem(relay.System()))

	assert.PanicsWithValue(t, "assertion blew up", func() {
		_ = srv.Run(context.Background(), 1)
	})
	assert.False(t, srv.Running())
}

func TestCallbackReplacingItselfAppliesNextStep(t *testing.T) {
	srv := newServer(t)
	var seq []string
	relay := simtest.NewRelay()
	relay.OnUpdate(func(system.UpdateInfo, *ecs.Manager) error {
		seq = append(seq, "first")
		relay.OnUpdate(func(system.UpdateInfo, *ecs.Manager) error {
			seq = append(seq, "second")
			return nil
		})
		return nil
	})
	require.NoError(t, srv.AddSystem(relay.System()))

	require.NoError(t, srv.Run(context.Background(), 3))
	assert.Equal(t, []string{"first", "second", "second"}, seq)
}

func TestPreUpdateCanCreateEntities(t *testing.T) {
	srv := newServer(t)
	var seen []int
	relay := simtest.NewRelay().
		OnPreUpdate(func(info system.UpdateInfo, ecm *ecs.Manager) error {
			id := ecm.CreateEntity()
			return ecs.Set(ecm, id, component.Name{Value: fmt.Sprintf("e%d", info.Iterations)})
		}).
		OnPostUpdate(func(_ system.UpdateInfo, ecm ecs.View) error {
			seen = append(seen, ecm.EntityCount())
			return nil
		})
	require.NoError(t, srv.AddSystem(relay.System()))

	require.NoError(t, srv.Run(context.Background(), 3))
	assert.Equal(t, []int{1, 2, 3}, seen)
	_, ok := component.FindByName(srv.ECM().ReadOnly(), "e2")
	assert.True(t, ok)
}
