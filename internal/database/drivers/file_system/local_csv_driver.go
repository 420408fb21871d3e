package file_system

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"insight-gateway/internal/database/drivers"
	"insight-gateway/internal/model"
)

// LocalCSVSource reads the CSV exports from a directory tree
type LocalCSVSource struct {
	*drivers.SourceBase
	root string
	opts drivers.CSVOptions
}

// NewLocalCSVSource creates a source rooted at dir
func NewLocalCSVSource(dir string, opts drivers.CSVOptions) (*LocalCSVSource, error) {
	if dir == "" {
		return nil, fmt.Errorf("directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	return &LocalCSVSource{
		SourceBase: drivers.NewSourceBase("local", drivers.CategoryFileSystem),
		root:       abs,
		opts:       opts,
	}, nil
}

// List walks the directory and returns slash-separated keys relative to the root
func (s *LocalCSVSource) List(ctx context.Context, prefix string) ([]drivers.ObjectInfo, error) {
	objects := make([]drivers.ObjectInfo, 0)
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, drivers.ObjectInfo{Key: key, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.root, err)
	}
	return objects, nil
}

// Get reads a file by its key
func (s *LocalCSVSource) Get(ctx context.Context, key string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.root, filepath.FromSlash(key)))
}

// FetchTables reads and parses every recognised CSV in the directory
func (s *LocalCSVSource) FetchTables(ctx context.Context) (map[model.TableKind]*model.RawTable, error) {
	return drivers.FetchCSVTables(ctx, s, "", s.opts)
}

// TestConnection checks the directory exists
func (s *LocalCSVSource) TestConnection(ctx context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.root)
	}
	return nil
}
