package system

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/stepsim/stepsim/internal/component"
	"github.com/stepsim/stepsim/internal/core/ecs"
	coresys "github.com/stepsim/stepsim/internal/core/system"
	"github.com/stepsim/stepsim/internal/persist"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// StepSink receives recorded steps. persist.StateRepo is the Postgres sink.
type StepSink interface {
	WriteStep(ctx context.Context, rec persist.StepRecord) error
}

// StateRecorder snapshots every posed entity every N iterations.
// Post-update only: it reads the store and never changes it.
type StateRecorder struct {
	sink    StepSink
	runID   string
	every   uint64
	timeout time.Duration
	log     *zap.Logger
}

var (
	_ coresys.PostUpdater = (*StateRecorder)(nil)
	_ StepSink            = (*persist.StateRepo)(nil)
)

func NewStateRecorder(sink StepSink, runID string, every uint64, log *zap.Logger) *StateRecorder {
	if every == 0 {
		every = 1
	}
	return &StateRecorder{
		sink:    sink,
		runID:   runID,
		every:   every,
		timeout: 5 * time.Second,
		log:     log,
	}
}

func (r *StateRecorder) Name() string { return "state-recorder" }

func (r *StateRecorder) PostUpdate(info coresys.UpdateInfo, ecm ecs.View) error {
	if info.Paused || info.Iterations%r.every != 0 {
		return nil
	}
	poses := Snapshot(ecm)
	digest := Digest(poses)
	rec := persist.StepRecord{
		RunID:     r.runID,
		Iteration: info.Iterations,
		SimTime:   info.SimTime,
		Digest:    digest[:],
		Poses:     poses,
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.sink.WriteStep(ctx, rec); err != nil {
		return fmt.Errorf("record iteration %d: %w", info.Iterations, err)
	}
	r.log.Debug("step recorded",
		zap.Uint64("iteration", info.Iterations),
		zap.Int("poses", len(poses)),
		zap.Binary("digest", digest[:8]),
	)
	return nil
}

// Snapshot collects the pose of every entity that has one, in entity order.
func Snapshot(ecm ecs.View) []persist.PoseSample {
	var out []persist.PoseSample
	ecs.Each(ecm, func(id ecs.EntityID, p component.Pose) {
		name, _ := ecs.Get[component.Name](ecm, id)
		out = append(out, persist.PoseSample{
			EntityID: uint64(id),
			Name:     name.Value,
			X:        p.X,
			Y:        p.Y,
			Z:        p.Z,
			Yaw:      p.Yaw,
		})
	})
	return out
}

// Digest is a BLAKE2b-256 hash over the samples. Equal snapshots hash equal,
// so two runs can be compared step by step.
func Digest(poses []persist.PoseSample) [blake2b.Size256]byte {
	buf := make([]byte, 0, len(poses)*48)
	for _, p := range poses {
		buf = binary.LittleEndian.AppendUint64(buf, p.EntityID)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(p.Name)))
		buf = append(buf, p.Name...)
		for _, f := range [...]float64{p.X, p.Y, p.Z, p.Yaw} {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(f))
		}
	}
	return blake2b.Sum256(buf)
}
