package drivers

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"insight-gateway/internal/model"
)

// SourceCategory categorizes sources by where the files live
type SourceCategory string

const (
	CategoryFileSystem    SourceCategory = "file_system"
	CategoryObjectStorage SourceCategory = "object_storage"
)

// SourceBase provides common functionality for all sources
type SourceBase struct {
	sourceType string
	category   SourceCategory
}

func NewSourceBase(sourceType string, category SourceCategory) *SourceBase {
	return &SourceBase{sourceType: sourceType, category: category}
}

func (sb *SourceBase) GetSourceTypeName() string {
	return sb.sourceType
}

func (sb *SourceBase) GetCategory() SourceCategory {
	return sb.category
}

// Source is the ingestion boundary: it yields one raw table per entity
type Source interface {
	// GetSourceTypeName returns the source type name (local, minio, s3)
	GetSourceTypeName() string

	// GetCategory returns the source category
	GetCategory() SourceCategory

	// FetchTables reads every recognised CSV file. Kinds without a file are
	// absent from the result.
	FetchTables(ctx context.Context) (map[model.TableKind]*model.RawTable, error)

	// TestConnection tests if the source is reachable
	TestConnection(ctx context.Context) error
}

// ObjectInfo describes a listed file or object
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStore is the minimal listing and reading surface shared by the
// directory, MinIO and S3 sources.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// TableKindForKey maps a file or object key to a table kind by its
// lower-case basename without the .csv extension.
func TableKindForKey(key string) (model.TableKind, bool) {
	base := strings.ToLower(path.Base(strings.ReplaceAll(key, "\\", "/")))
	if !strings.HasSuffix(base, ".csv") {
		return "", false
	}
	return model.ParseTableKind(strings.TrimSuffix(base, ".csv"))
}

// FetchCSVTables lists the store, reads every recognised CSV and parses it.
// An exact basename match (customers.csv) takes precedence over an alias
// (customer.csv); two files of the same precedence are an error.
func FetchCSVTables(ctx context.Context, store ObjectStore, prefix string, opts CSVOptions) (map[model.TableKind]*model.RawTable, error) {
	objects, err := store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })

	chosen := make(map[model.TableKind]ObjectInfo)
	for _, obj := range objects {
		kind, ok := TableKindForKey(obj.Key)
		if !ok {
			continue
		}
		prev, taken := chosen[kind]
		if !taken {
			chosen[kind] = obj
			continue
		}
		prevExact, curExact := isExactName(prev.Key, kind), isExactName(obj.Key, kind)
		switch {
		case curExact && !prevExact:
			chosen[kind] = obj
		case curExact == prevExact:
			return nil, fmt.Errorf("both %s and %s map to table %s", prev.Key, obj.Key, kind)
		}
	}

	tables := make(map[model.TableKind]*model.RawTable, len(chosen))
	for kind, obj := range chosen {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := store.Get(ctx, obj.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", obj.Key, err)
		}
		raw, err := ReadCSV(data, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", obj.Key, err)
		}
		raw.Kind = kind
		raw.Source = obj.Key
		tables[kind] = raw
	}
	return tables, nil
}

func isExactName(key string, kind model.TableKind) bool {
	base := strings.ToLower(path.Base(strings.ReplaceAll(key, "\\", "/")))
	return strings.TrimSuffix(base, ".csv") == string(kind)
}
