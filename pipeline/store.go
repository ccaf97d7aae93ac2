package pipeline

import (
	"context"

	"github.com/google/uuid"
)

// Store persists immutable context snapshots keyed by task id so a
// suspended pipeline can resume after an arbitrary delay, potentially in a
// different process. Save is called after every stage transition: a crash
// between stages loses at most the in-flight attempt, never committed
// progress. Implementations must make concurrent Save/Load for the same
// task id linearizable, detecting lost updates via the snapshot version.
type Store interface {
	// Save persists a snapshot of tc and advances its version. Returns
	// ErrVersionConflict if the stored snapshot has moved past tc.Version.
	Save(ctx context.Context, tc *Context) error
	// Load returns an independent copy of the latest snapshot.
	// Returns ErrTaskNotFound for an unknown task id.
	Load(ctx context.Context, taskID uuid.UUID) (*Context, error)
	// Exists reports whether a snapshot exists for the task id.
	Exists(ctx context.Context, taskID uuid.UUID) (bool, error)
}
