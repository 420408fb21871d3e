package index

import (
	"context"
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring"

	"insight-gateway/internal/database/metadata"
	"insight-gateway/internal/model"
)

// ctxCheckInterval is how many rows are indexed between cancellation checks
const ctxCheckInterval = 4096

// Build constructs every index declared for the table's schema in a single
// pass over the rows. Null values are not indexed.
func Build(table *model.Table, schema *metadata.TableSchema, generation uint64) *Set {
	set, _ := build(context.Background(), table, schema, generation)
	return set
}

func build(ctx context.Context, table *model.Table, schema *metadata.TableSchema, generation uint64) (*Set, error) {
	set := NewSet(generation)
	if len(schema.Indexes) == 0 {
		return set, nil
	}

	built := make([]*Index, len(schema.Indexes))
	for i, decl := range schema.Indexes {
		identifier := false
		if col, ok := schema.Column(decl.Column); ok {
			identifier = col.Identifier
		}
		built[i] = &Index{
			Name:       decl.Name,
			Table:      schema.Kind,
			Column:     decl.Column,
			Type:       decl.Type,
			Identifier: identifier,
			Unique:     decl.Unique,
			Generation: generation,
			postings:   make(map[string]*roaring.Bitmap),
		}
	}

	for rowID, row := range table.Rows {
		if rowID%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for _, ix := range built {
			value, ok := row[ix.Column]
			if !ok || value == nil {
				continue
			}
			text := model.FormatValue(value)
			if ix.Type == metadata.IndexTypeToken {
				for _, tok := range Tokens(text) {
					ix.insert(tok, rowID)
				}
				continue
			}
			ix.insert(ix.Key(text), rowID)
		}
	}

	for _, ix := range built {
		ix.keys = make([]string, 0, len(ix.postings))
		for key, bm := range ix.postings {
			bm.RunOptimize()
			ix.keys = append(ix.keys, key)
		}
		sort.Strings(ix.keys)
		set.add(ix)
	}
	return set, nil
}

func (ix *Index) insert(key string, rowID int) {
	if key == "" {
		return
	}
	bm, ok := ix.postings[key]
	if !ok {
		bm = roaring.New()
		ix.postings[key] = bm
	}
	bm.Add(uint32(rowID))
}

// BuildAll indexes every table of a generation and merges the results.
// A table without a schema in the catalog is an error.
func BuildAll(ctx context.Context, tables map[model.TableKind]*model.Table, catalog *metadata.Catalog, generation uint64) (*Set, error) {
	set := NewSet(generation)
	for _, kind := range model.AllTableKinds {
		table, ok := tables[kind]
		if !ok {
			continue
		}
		schema, ok := catalog.Table(kind)
		if !ok {
			return nil, fmt.Errorf("no schema for table %s", kind)
		}
		tableSet, err := build(ctx, table, schema, generation)
		if err != nil {
			return nil, err
		}
		set.merge(tableSet)
	}
	return set, nil
}
