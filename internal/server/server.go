package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stepsim/stepsim/internal/config"
	"github.com/stepsim/stepsim/internal/core/ecs"
	"github.com/stepsim/stepsim/internal/core/event"
	"github.com/stepsim/stepsim/internal/core/system"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrRunning is returned by operations that are not allowed while a run is
// in progress.
var ErrRunning = errors.New("server is running")

// Server drives the simulation: every step runs all pre-update systems, then
// all update systems, then all post-update systems, on a single goroutine.
// The ECM and event bus belong to that goroutine while a run is in progress.
type Server struct {
	cfg    config.SimConfig
	log    *zap.Logger
	ecm    *ecs.Manager
	events *event.Bus
	runner *system.Runner

	mu     sync.Mutex // guards runner registration and background run state
	group  *errgroup.Group
	cancel context.CancelFunc

	running    atomic.Bool
	paused     atomic.Bool
	iterations atomic.Uint64
	simTime    atomic.Int64
	created    time.Time
}

func New(cfg config.SimConfig, log *zap.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		log:     log,
		ecm:     ecs.NewManager(),
		events:  event.NewBus(),
		runner:  system.NewRunner(log),
		created: time.Now(),
	}
	s.paused.Store(cfg.Paused)
	return s
}

func (s *Server) ECM() *ecs.Manager      { return s.ecm }
func (s *Server) Events() *event.Bus     { return s.events }
func (s *Server) Running() bool          { return s.running.Load() }
func (s *Server) Paused() bool           { return s.paused.Load() }
func (s *Server) IterationCount() uint64 { return s.iterations.Load() }

func (s *Server) SimTime() time.Duration {
	return time.Duration(s.simTime.Load())
}

func (s *Server) SystemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runner.Len()
}

// SetPaused toggles pause. Paused steps still run every phase, with
// UpdateInfo.Paused set and a zero Dt; iterations and sim time hold.
func (s *Server) SetPaused(paused bool) {
	if s.paused.Swap(paused) != paused {
		s.log.Info("pause changed", zap.Bool("paused", paused))
	}
}

// AddSystem registers sys for every phase it implements. Test stand-ins and
// scripted systems go through exactly this path.
func (s *Server) AddSystem(sys any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return ErrRunning
	}
	name := system.NameOf(sys)
	if c, ok := sys.(system.Configurer); ok {
		if err := c.Configure(s.ecm, s.events); err != nil {
			return fmt.Errorf("configure %s: %w", name, err)
		}
	}
	if err := s.runner.Register(sys); err != nil {
		return fmt.Errorf("add system %s: %w", name, err)
	}
	event.Emit(s.events, event.SystemAdded{Name: name})
	s.log.Info("system added", zap.String("system", name), zap.Int("systems", s.runner.Len()))
	return nil
}

// Run executes iterations steps, or steps until ctx is done when iterations
// is 0, and blocks until then. The first failing step ends the run and its
// error is returned; no further step is executed. Cancellation is a clean
// stop and returns nil.
func (s *Server) Run(ctx context.Context, iterations uint64) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.running.Store(false)
	return s.loop(ctx, iterations)
}

// Start runs the same loop as Run on a background goroutine. Use Wait for the
// result and Stop to cancel.
func (s *Server) Start(ctx context.Context, iterations uint64) error {
	if err := s.begin(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer s.running.Store(false)
		return s.loop(gctx, iterations)
	})

	s.mu.Lock()
	s.group = g
	s.cancel = cancel
	s.mu.Unlock()
	return nil
}

// Stop cancels a run started with Start. It does not wait.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Wait blocks until the background run ends and returns its error.
func (s *Server) Wait() error {
	s.mu.Lock()
	g, cancel := s.group, s.cancel
	s.mu.Unlock()
	if g == nil {
		return nil
	}
	err := g.Wait()
	cancel()

	s.mu.Lock()
	if s.group == g {
		s.group = nil
		s.cancel = nil
	}
	s.mu.Unlock()
	return err
}

// Step executes exactly one step on the calling goroutine.
func (s *Server) Step(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.running.Store(false)
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.step()
}

// begin marks the server running. Holding mu keeps AddSystem from
// registering into a runner that has started stepping.
func (s *Server) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	return nil
}

func (s *Server) loop(ctx context.Context, iterations uint64) error {
	var tick <-chan time.Time
	if s.cfg.StepPeriod > 0 {
		ticker := time.NewTicker(s.cfg.StepPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}

	s.log.Info("run started",
		zap.String("world", s.cfg.Name),
		zap.Uint64("iterations", iterations),
		zap.Duration("step_size", s.cfg.StepSize),
		zap.Duration("step_period", s.cfg.StepPeriod),
	)

	var done uint64
	for iterations == 0 || done < iterations {
		if tick != nil {
			select {
			case <-ctx.Done():
				return s.stopped(done)
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return s.stopped(done)
		}

		if err := s.step(); err != nil {
			s.log.Error("step failed", zap.Uint64("steps", done), zap.Error(err))
			return err
		}
		done++
	}

	s.log.Info("run finished", zap.Uint64("steps", done), zap.Duration("sim_time", s.SimTime()))
	return nil
}

func (s *Server) stopped(done uint64) error {
	s.log.Info("run stopped", zap.Uint64("steps", done), zap.Duration("sim_time", s.SimTime()))
	return nil
}

func (s *Server) step() error {
	s.events.SwapBuffers()
	s.events.DispatchAll()

	info := s.nextInfo()
	if err := s.runner.Step(info, s.ecm); err != nil {
		return fmt.Errorf("iteration %d: %w", info.Iterations, err)
	}

	for _, id := range s.ecm.FlushDestroyQueue() {
		event.Emit(s.events, event.EntityDestroyed{ID: id})
	}
	event.Emit(s.events, event.StepCompleted{Iterations: info.Iterations, SimTime: info.SimTime})
	return nil
}

func (s *Server) nextInfo() system.UpdateInfo {
	info := system.UpdateInfo{
		RealTime: time.Since(s.created),
		Paused:   s.paused.Load(),
	}
	if !info.Paused {
		s.iterations.Add(1)
		s.simTime.Add(int64(s.cfg.StepSize))
		info.Dt = s.cfg.StepSize
	}
	info.Iterations = s.iterations.Load()
	info.SimTime = time.Duration(s.simTime.Load())
	return info
}
