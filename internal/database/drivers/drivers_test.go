package drivers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-gateway/internal/model"
)

type memoryStore struct {
	objects map[string][]byte
	listErr error
}

func (m *memoryStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]ObjectInfo, 0, len(m.objects))
	for k, v := range m.objects {
		out = append(out, ObjectInfo{Key: k, Size: int64(len(v))})
	}
	return out, nil
}

func (m *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func TestReadCSV(t *testing.T) {
	data := []byte("\xEF\xBB\xBFcustomer_id,name,city\nC1,\"Wang, Melissa\",LA\n\n,,\nC2,John\n")

	raw, err := ReadCSV(data, CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"customer_id", "name", "city"}, raw.Header)
	require.Len(t, raw.Records, 2)
	assert.Equal(t, "Wang, Melissa", raw.Records[0][1])
	assert.Equal(t, []string{"C2", "John"}, raw.Records[1])
}

func TestReadCSVEmptyInput(t *testing.T) {
	raw, err := ReadCSV(nil, CSVOptions{})
	require.NoError(t, err)
	assert.Nil(t, raw.Header)
	assert.Empty(t, raw.Records)
}

func TestReadCSVNullTokensAndDelimiter(t *testing.T) {
	data := []byte("a;b;c\n1;-;x\n")

	raw, err := ReadCSV(data, CSVOptions{NullTokens: []string{"-"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, raw.Header)
	assert.Equal(t, []string{"1", "", "x"}, raw.Records[0])
}

func TestDetectDelimiter(t *testing.T) {
	assert.Equal(t, ',', DetectDelimiter([]byte("a,b,c\n1;2;3")))
	assert.Equal(t, '\t', DetectDelimiter([]byte("a\tb\tc")))
	assert.Equal(t, '|', DetectDelimiter([]byte("a|b")))
	assert.Equal(t, ',', DetectDelimiter([]byte("single")))
}

func TestTableKindForKey(t *testing.T) {
	kind, ok := TableKindForKey("exports/2024/Customers.CSV")
	require.True(t, ok)
	assert.Equal(t, model.TableCustomers, kind)

	kind, ok = TableKindForKey("pricelist.csv")
	require.True(t, ok)
	assert.Equal(t, model.TableProducts, kind)

	_, ok = TableKindForKey("customers.json")
	assert.False(t, ok)
	_, ok = TableKindForKey("notes.csv")
	assert.False(t, ok)
}

func TestFetchCSVTables(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{
		"data/customer.csv":  []byte("customer_id\nOLD\n"),
		"data/customers.csv": []byte("customer_id\nC1\n"),
		"data/inventory.csv": []byte("order_id\nO1\n"),
		"data/readme.txt":    []byte("ignored"),
	}}

	tables, err := FetchCSVTables(context.Background(), store, "data/", CSVOptions{})
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "data/customers.csv", tables[model.TableCustomers].Source)
	assert.Equal(t, "C1", tables[model.TableCustomers].Records[0][0])
	assert.Equal(t, model.TableOrders, tables[model.TableOrders].Kind)
}

func TestFetchCSVTablesAmbiguous(t *testing.T) {
	store := &memoryStore{objects: map[string][]byte{
		"a/orders.csv": []byte("order_id\n"),
		"b/orders.csv": []byte("order_id\n"),
	}}

	_, err := FetchCSVTables(context.Background(), store, "", CSVOptions{})
	assert.Error(t, err)
}

func TestFetchCSVTablesListError(t *testing.T) {
	store := &memoryStore{listErr: errors.New("connection refused")}

	_, err := FetchCSVTables(context.Background(), store, "", CSVOptions{})
	assert.ErrorContains(t, err, "connection refused")
}
