package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// PoseSample is one entity's pose at a recorded step.
type PoseSample struct {
	EntityID uint64
	Name     string
	X, Y, Z  float64
	Yaw      float64
}

// StepRecord is the persisted state of one simulation step.
type StepRecord struct {
	RunID     string
	Iteration uint64
	SimTime   time.Duration
	Digest    []byte
	Poses     []PoseSample
}

type StateRepo struct {
	db *DB
}

func NewStateRepo(db *DB) *StateRepo {
	return &StateRepo{db: db}
}

// WriteStep stores a step and its pose samples in a single transaction.
func (r *StateRepo) WriteStep(ctx context.Context, rec StepRecord) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("step begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO sim_steps (run_id, iteration, sim_time_ns, digest)
		 VALUES ($1, $2, $3, $4)`,
		rec.RunID, int64(rec.Iteration), int64(rec.SimTime), rec.Digest,
	); err != nil {
		return fmt.Errorf("step insert: %w", err)
	}

	if len(rec.Poses) > 0 {
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"pose_samples"},
			[]string{"run_id", "iteration", "entity_id", "name", "x", "y", "z", "yaw"},
			pgx.CopyFromSlice(len(rec.Poses), func(i int) ([]any, error) {
				p := rec.Poses[i]
				return []any{rec.RunID, int64(rec.Iteration), int64(p.EntityID), p.Name, p.X, p.Y, p.Z, p.Yaw}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("pose copy: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// LatestIteration returns the highest recorded iteration for a run, or 0.
func (r *StateRepo) LatestIteration(ctx context.Context, runID string) (uint64, error) {
	var it int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(iteration), 0) FROM sim_steps WHERE run_id = $1`, runID,
	).Scan(&it)
	if err != nil {
		return 0, fmt.Errorf("latest iteration: %w", err)
	}
	return uint64(it), nil
}
