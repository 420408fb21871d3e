package index

import (
	"sort"

	"github.com/RoaringBitmap/roaring"

	"insight-gateway/internal/database/metadata"
	"insight-gateway/internal/model"
)

// Index is a read-only mapping from key to the positions of matching rows.
// Postings are bitmaps, so row ids always come out in original row order.
type Index struct {
	Name       string
	Table      model.TableKind
	Column     string
	Type       metadata.IndexType
	Identifier bool
	Unique     bool
	Generation uint64

	postings map[string]*roaring.Bitmap
	keys     []string
}

// Key turns a query value into this index's key space
func (ix *Index) Key(value string) string {
	if ix.Identifier {
		return IdentifierKey(value)
	}
	return NormalizeKey(value)
}

// Lookup returns the row ids whose key equals the normalized value
func (ix *Index) Lookup(value string) []int {
	return ToRowIDs(ix.Bitmap(value))
}

// Bitmap returns the posting for a value, or nil. The bitmap is shared
// with the index and must not be mutated.
func (ix *Index) Bitmap(value string) *roaring.Bitmap {
	return ix.postings[ix.Key(value)]
}

// Posting returns the posting for an already-normalized key
func (ix *Index) Posting(key string) *roaring.Bitmap {
	return ix.postings[key]
}

// Contains reports whether any row has the value
func (ix *Index) Contains(value string) bool {
	_, ok := ix.postings[ix.Key(value)]
	return ok
}

// Keys returns all keys in sorted order
func (ix *Index) Keys() []string {
	return ix.keys
}

// Len returns the number of distinct keys
func (ix *Index) Len() int {
	return len(ix.postings)
}

// ToRowIDs converts a bitmap into ascending row ids
func ToRowIDs(bm *roaring.Bitmap) []int {
	if bm == nil || bm.IsEmpty() {
		return []int{}
	}
	ids := make([]int, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		ids = append(ids, int(it.Next()))
	}
	return ids
}

// Set holds every index of one generation, keyed by purpose
type Set struct {
	Generation uint64
	indexes    map[string]*Index
}

// NewSet creates an empty set for a generation
func NewSet(generation uint64) *Set {
	return &Set{Generation: generation, indexes: make(map[string]*Index)}
}

// Get returns an index by purpose name
func (s *Set) Get(name string) (*Index, bool) {
	ix, ok := s.indexes[name]
	return ix, ok
}

// ForColumn returns the exact index of a table column, if one is declared
func (s *Set) ForColumn(table model.TableKind, column string) (*Index, bool) {
	for _, ix := range s.indexes {
		if ix.Table == table && ix.Column == column && ix.Type == metadata.IndexTypeExact {
			return ix, true
		}
	}
	return nil, false
}

// Names returns the purpose names in sorted order
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of indexes
func (s *Set) Len() int {
	return len(s.indexes)
}

func (s *Set) add(ix *Index) {
	s.indexes[ix.Name] = ix
}

// merge adds all indexes of other, which must be of the same generation
func (s *Set) merge(other *Set) {
	for _, ix := range other.indexes {
		s.add(ix)
	}
}
