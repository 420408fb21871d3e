package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-gateway/internal/database/metadata"
	"insight-gateway/internal/model"
	"insight-gateway/internal/utils"
)

func TestPageWindow(t *testing.T) {
	cases := []struct {
		total, page, size      int
		wantStart, wantEnd, np int
	}{
		{0, 1, 10, 0, 0, 0},
		{4, 1, 3, 0, 3, 2},
		{4, 2, 3, 3, 4, 2},
		{4, 3, 3, 4, 4, 2},
		{6, 2, 3, 3, 6, 2},
		{4, 1 << 62, 4, 4, 4, 1},
		{4, math.MaxInt, 1, 4, 4, 4},
		{4, 2, math.MaxInt, 4, 4, 1},
		{4, 1, math.MaxInt, 0, 4, 1},
	}
	for _, tc := range cases {
		start, end, pages := pageWindow(tc.total, tc.page, tc.size)
		assert.Equal(t, []int{tc.wantStart, tc.wantEnd, tc.np}, []int{start, end, pages},
			"total=%d page=%d size=%d", tc.total, tc.page, tc.size)
	}
}

func TestListCustomersHugePage(t *testing.T) {
	svc := loadedService(t)
	ctx := context.Background()

	for _, page := range []int{1 << 62, math.MaxInt} {
		result, err := svc.ListCustomers(ctx, page, 4)
		require.NoError(t, err)
		assert.Empty(t, result.Rows)
		assert.Empty(t, result.RowIDs)
		assert.Equal(t, 4, result.TotalCount)
		assert.Equal(t, 1, result.TotalPages)
		assert.False(t, result.HasMore)
	}

	result, err := svc.ListCustomers(ctx, 1, math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, result.RowIDs)

	q, err := svc.Execute(ctx, model.Query{Operation: model.OpListOrders, Args: map[string]any{
		"status": "delivered", "page": float64(1 << 62), "page_size": float64(4),
	}})
	require.NoError(t, err)
	assert.Empty(t, q.(*model.PageResult).RowIDs)
	assert.Equal(t, 2, q.(*model.PageResult).TotalCount)

	_, err = svc.Execute(ctx, model.Query{Operation: model.OpListCustomers, Args: map[string]any{"page": 1e300}})
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeInvalidQuery))
}

// Every listing is walked page by page for several page sizes; the pages
// must partition the matching rows in order.
func TestPagesCoverEveryRowOnce(t *testing.T) {
	svc := loadedService(t)
	ctx := context.Background()

	listings := []struct {
		name string
		want []int
		list func(page, size int) (*model.PageResult, error)
	}{
		{"customers", []int{0, 1, 2, 3}, func(page, size int) (*model.PageResult, error) {
			return svc.ListCustomers(ctx, page, size)
		}},
		{"orders", []int{0, 1, 2, 3, 4}, func(page, size int) (*model.PageResult, error) {
			return svc.ListOrders(ctx, OrderFilter{}, page, size)
		}},
		{"delivered orders", []int{0, 2}, func(page, size int) (*model.PageResult, error) {
			return svc.ListOrders(ctx, OrderFilter{Status: "delivered"}, page, size)
		}},
		{"orders of C1", []int{0, 1}, func(page, size int) (*model.PageResult, error) {
			return svc.ListOrders(ctx, OrderFilter{CustomerID: "C1"}, page, size)
		}},
		{"electronics", []int{0, 1}, func(page, size int) (*model.PageResult, error) {
			return svc.ListProducts(ctx, ProductFilter{Category: "electronics"}, page, size)
		}},
		{"products", []int{0, 1, 2, 3}, func(page, size int) (*model.PageResult, error) {
			return svc.ListProducts(ctx, ProductFilter{}, page, size)
		}},
	}

	for _, l := range listings {
		for size := 1; size <= 6; size++ {
			t.Run(fmt.Sprintf("%s/size=%d", l.name, size), func(t *testing.T) {
				wantPages := (len(l.want) + size - 1) / size
				var seen []int
				for page := 1; page <= wantPages+1; page++ {
					result, err := l.list(page, size)
					require.NoError(t, err)
					assert.Equal(t, len(l.want), result.TotalCount)
					assert.Equal(t, wantPages, result.TotalPages)
					assert.Equal(t, page < wantPages, result.HasMore)
					assert.LessOrEqual(t, len(result.RowIDs), size)
					assert.Len(t, result.Rows, len(result.RowIDs))
					if page > wantPages {
						assert.Empty(t, result.RowIDs)
					}
					seen = append(seen, result.RowIDs...)
				}
				assert.Equal(t, l.want, seen)
				assert.True(t, sort.IntsAreSorted(seen))
			})
		}
	}
}

func TestListOrdersFilters(t *testing.T) {
	svc := loadedService(t)
	ctx := context.Background()

	result, err := svc.ListOrders(ctx, OrderFilter{Status: " Delivered ", CustomerID: "C1"}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, result.RowIDs)
	assert.Equal(t, "O1", result.Rows[0]["order_id"])
	assert.Equal(t, model.OpListOrders, result.Operation)
	assert.Equal(t, []string{metadata.IndexOrdersByStatus, metadata.IndexOrdersByCustomer}, result.Indexes)
	assert.Equal(t, map[string]string{"status": "delivered", "customer_id": "C1"}, result.Filter)

	none, err := svc.ListOrders(ctx, OrderFilter{CustomerID: "C9"}, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, none.Rows)
	assert.Equal(t, 0, none.TotalCount)
	assert.Equal(t, 0, none.TotalPages)

	_, err = svc.ListOrders(ctx, OrderFilter{Status: "lost"}, 1, 10)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeInvalidQuery))
	_, err = svc.ListOrders(ctx, OrderFilter{}, 0, 10)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeInvalidPage))

	again, err := svc.ListOrders(ctx, OrderFilter{Status: "DELIVERED", CustomerID: " C1 "}, 1, 10)
	require.NoError(t, err)
	assert.True(t, again.Cached)
}

func TestListProductsFilters(t *testing.T) {
	svc := loadedService(t)
	ctx := context.Background()

	result, err := svc.ListProducts(ctx, ProductFilter{Name: "lamp DESK"}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, result.RowIDs)
	assert.Equal(t, "desk lamp", result.Filter["name"])

	result, err = svc.ListProducts(ctx, ProductFilter{Category: "Electronics", Name: "mouse"}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, result.RowIDs)

	result, err = svc.ListProducts(ctx, ProductFilter{Category: "Electronics", Name: "chair"}, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, result.RowIDs)

	_, err = svc.ListProducts(ctx, ProductFilter{Name: " ;; "}, 1, 10)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeInvalidQuery))
}

func TestExecuteListingDefaults(t *testing.T) {
	svc := loadedService(t)
	ctx := context.Background()

	first, err := svc.Execute(ctx, model.Query{Operation: model.OpListOrders, Args: map[string]any{"status": "delivered"}})
	require.NoError(t, err)
	page := first.(*model.PageResult)
	assert.Equal(t, []int{0, 2}, page.RowIDs)
	assert.Equal(t, DefaultRetrievalOptions().DefaultPageSize, page.PageSize)

	second, err := svc.Execute(ctx, model.Query{Operation: model.OpListOrders, Args: map[string]any{
		"status": "delivered", "page": float64(1), "page_size": float64(DefaultRetrievalOptions().DefaultPageSize),
	}})
	require.NoError(t, err)
	assert.True(t, second.Meta().Cached)

	products, err := svc.Execute(ctx, model.Query{Operation: model.OpListProducts, Args: map[string]any{"category": "home"}})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, products.(*model.PageResult).RowIDs)

	_, err = svc.Execute(ctx, model.Query{Operation: model.OpListOrders, Args: map[string]any{"status": 3}})
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeInvalidQuery))
}

func TestListingClaimsVerify(t *testing.T) {
	svc := loadedService(t)
	verifier := NewFactVerifier(svc, DefaultTolerance, nil, nil)
	query := model.Query{Operation: model.OpListOrders, Args: map[string]any{"status": "delivered"}}

	ok, err := verifier.Verify(context.Background(), model.Claim{
		Statement: "two delivered orders", Query: query, Field: model.ClaimFieldTotalCount, Value: 2,
	}, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = verifier.Verify(context.Background(), model.Claim{
		Statement: "the second delivered order is O3", Query: query, Field: "rows.1.order_id", Value: "O3",
	}, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}
