package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"insight-gateway/internal/logging"
	"insight-gateway/internal/model"
)

var (
	customerHeader = []string{"customer_id", "name", "email", "city", "state", "zip"}
	productHeader  = []string{"product_id", "name", "category", "unit_price", "stock_quantity"}
	orderHeader    = []string{"order_id", "customer_id", "product_id", "order_date", "status", "quantity", "total_amount"}
)

func customerRecords() [][]string {
	return [][]string{
		{"C1", "Melissa Wang", "melissa@example.com", "LA", "CA", "90001"},
		{"C2", "John Smith", "", "NY", "NY", "10001"},
		{"C3", "melissa  wang", "", "SF", "CA", "94105"},
		{"C4", "Ana Lopez", "", "Austin", "TX", "73301"},
	}
}

func productRecords() [][]string {
	return [][]string{
		{"P1", "USB-C Cable", "Electronics", "9.99", "100"},
		{"P2", "Wireless Mouse", "Electronics", "25.50", "20"},
		{"P3", "Desk Lamp", "Home", "45.00", ""},
		{"P4", "Office Chair", "Furniture", "150.00", "5"},
	}
}

func orderRecords() [][]string {
	return [][]string{
		{"O1", "C1", "P1", "2024-01-05", "delivered", "2", "19.98"},
		{"O2", "C1", "P2", "2024-01-06", "shipped", "1", "25.50"},
		{"O3", "C2", "P4", "2024-02-01", "delivered", "1", "150.00"},
		{"O4", "C3", "P3", "2024-02-03", "cancelled", "1", "45.00"},
		{"O5", "C4", "P1", "2024-03-10", "pending", "3", "29.97"},
	}
}

func rawTables(customers, products, orders [][]string) map[model.TableKind]*model.RawTable {
	raw := map[model.TableKind]*model.RawTable{}
	if customers != nil {
		raw[model.TableCustomers] = &model.RawTable{Kind: model.TableCustomers, Header: customerHeader, Records: customers}
	}
	if products != nil {
		raw[model.TableProducts] = &model.RawTable{Kind: model.TableProducts, Header: productHeader, Records: products}
	}
	if orders != nil {
		raw[model.TableOrders] = &model.RawTable{Kind: model.TableOrders, Header: orderHeader, Records: orders}
	}
	return raw
}

func sampleTables() map[model.TableKind]*model.RawTable {
	return rawTables(customerRecords(), productRecords(), orderRecords())
}

func newTestService(t *testing.T, opts RetrievalOptions) *RetrievalService {
	t.Helper()
	svc, err := NewRetrievalService(opts, logging.Discard(), NewMetricsCollector(nil))
	require.NoError(t, err)
	return svc
}

// loadedService returns a service at generation 1 with the sample data
func loadedService(t *testing.T) *RetrievalService {
	t.Helper()
	svc := newTestService(t, DefaultRetrievalOptions())
	result, err := svc.Refresh(context.Background(), sampleTables())
	require.NoError(t, err)
	require.True(t, result.Accepted)
	require.Equal(t, uint64(1), svc.Generation())
	return svc
}
