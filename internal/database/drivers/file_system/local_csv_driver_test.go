package file_system

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-gateway/internal/database/drivers"
	"insight-gateway/internal/model"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLocalCSVSourceFetchTables(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "customer.csv", "CID,Name\nC1,Melissa Wang\n")
	writeFile(t, dir, "nested/PRICELIST.csv", "item_id,name\nP1,Desk\n")
	writeFile(t, dir, "notes.md", "not data")

	source, err := NewLocalCSVSource(dir, drivers.CSVOptions{})
	require.NoError(t, err)
	require.NoError(t, source.TestConnection(context.Background()))

	tables, err := source.FetchTables(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 2)

	customers := tables[model.TableCustomers]
	require.NotNil(t, customers)
	assert.Equal(t, "customer.csv", customers.Source)
	assert.Equal(t, []string{"CID", "Name"}, customers.Header)
	assert.Equal(t, [][]string{{"C1", "Melissa Wang"}}, customers.Records)

	assert.Equal(t, "nested/PRICELIST.csv", tables[model.TableProducts].Source)
}

func TestLocalCSVSourceMissingDirectory(t *testing.T) {
	source, err := NewLocalCSVSource(filepath.Join(t.TempDir(), "absent"), drivers.CSVOptions{})
	require.NoError(t, err)

	assert.Error(t, source.TestConnection(context.Background()))
	_, err = source.FetchTables(context.Background())
	assert.Error(t, err)
}

func TestNewLocalCSVSourceRequiresDirectory(t *testing.T) {
	_, err := NewLocalCSVSource("", drivers.CSVOptions{})
	assert.Error(t, err)
}
