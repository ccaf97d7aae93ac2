package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]*Context
}

// NewMemoryStore creates an in-process Store holding deep-copied snapshots
// under a single lock. Suitable for tests and single-node local runs.
func NewMemoryStore() Store {
	return &memoryStore{
		snapshots: make(map[uuid.UUID]*Context),
	}
}

func (m *memoryStore) Save(ctx context.Context, tc *Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.snapshots[tc.TaskID]; ok && cur.Version != tc.Version {
		return fmt.Errorf(
			"%w: task %s at version %d, caller has %d",
			ErrVersionConflict, tc.TaskID, cur.Version, tc.Version,
		)
	}

	snap := tc.Clone()
	snap.Version++
	snap.UpdatedAt = time.Now().UTC()
	m.snapshots[tc.TaskID] = snap

	tc.Version = snap.Version
	tc.UpdatedAt = snap.UpdatedAt
	return nil
}

func (m *memoryStore) Load(ctx context.Context, taskID uuid.UUID) (*Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, ok := m.snapshots[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return snap.Clone(), nil
}

func (m *memoryStore) Exists(ctx context.Context, taskID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.snapshots[taskID]
	return ok, nil
}
