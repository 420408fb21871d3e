package repository

import (
	"time"

	"insight-gateway/internal/database/index"
	"insight-gateway/internal/model"
)

// Snapshot is one published generation: its tables and their indexes.
// A snapshot is immutable once published.
type Snapshot struct {
	Generation  uint64
	Tables      map[model.TableKind]*model.Table
	Indexes     *index.Set
	PublishedAt time.Time
	RefreshID   string
}

// Table returns the table of a kind, or nil
func (s *Snapshot) Table(kind model.TableKind) *model.Table {
	return s.Tables[kind]
}

// RowCounts returns the number of rows per table
func (s *Snapshot) RowCounts() map[model.TableKind]int {
	counts := make(map[model.TableKind]int, len(s.Tables))
	for kind, t := range s.Tables {
		counts[kind] = t.Len()
	}
	return counts
}

// SnapshotRepository defines the interface for owning the current generation
type SnapshotRepository interface {
	// Current returns the published snapshot; never nil
	Current() *Snapshot

	// Generation returns the generation of the published snapshot
	Generation() uint64

	// Publish swaps in next if the current generation is still expected
	// and next is exactly one generation ahead
	Publish(expected uint64, next *Snapshot) error
}
