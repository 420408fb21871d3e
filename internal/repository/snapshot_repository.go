package repository

import (
	"fmt"
	"sync/atomic"
)

type memorySnapshotRepository struct {
	current atomic.Pointer[Snapshot]
}

// NewMemorySnapshotRepository creates a repository serving initial
func NewMemorySnapshotRepository(initial *Snapshot) (SnapshotRepository, error) {
	if initial == nil || initial.Indexes == nil {
		return nil, ErrInvalidSnapshot
	}
	if initial.Indexes.Generation != initial.Generation {
		return nil, fmt.Errorf("%w: indexes at generation %d, snapshot at %d",
			ErrInvalidSnapshot, initial.Indexes.Generation, initial.Generation)
	}
	r := &memorySnapshotRepository{}
	r.current.Store(initial)
	return r, nil
}

// Current returns the published snapshot
func (r *memorySnapshotRepository) Current() *Snapshot {
	return r.current.Load()
}

// Generation returns the current generation
func (r *memorySnapshotRepository) Generation() uint64 {
	return r.current.Load().Generation
}

// Publish atomically replaces the snapshot
func (r *memorySnapshotRepository) Publish(expected uint64, next *Snapshot) error {
	if next == nil || next.Indexes == nil {
		return ErrInvalidSnapshot
	}
	if next.Generation != expected+1 || next.Indexes.Generation != next.Generation {
		return fmt.Errorf("%w: cannot publish generation %d (indexes %d) over %d",
			ErrGenerationConflict, next.Generation, next.Indexes.Generation, expected)
	}

	cur := r.current.Load()
	if cur.Generation != expected {
		return fmt.Errorf("%w: expected %d, current %d", ErrGenerationConflict, expected, cur.Generation)
	}
	if !r.current.CompareAndSwap(cur, next) {
		return fmt.Errorf("%w: concurrent publish over %d", ErrGenerationConflict, expected)
	}
	return nil
}
