package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-gateway/internal/model"
	"insight-gateway/internal/utils"
)

func countQuery(table string, filter map[string]any) model.Query {
	args := map[string]any{"op": "count", "table": table}
	if filter != nil {
		args["filter"] = filter
	}
	return model.Query{Operation: model.OpAggregate, Args: args}
}

func TestVerifyAcceptsReproducedClaims(t *testing.T) {
	svc := loadedService(t)
	verifier := NewFactVerifier(svc, DefaultTolerance, nil, nil)
	ctx := context.Background()

	claims := []model.Claim{
		{Statement: "One customer lives in LA", Query: countQuery("customers", map[string]any{"city": "LA"}), Value: 1},
		{Statement: "within tolerance", Query: countQuery("customers", map[string]any{"city": "LA"}), Value: 1.004},
		{
			Statement: "Delivered revenue is 169.98",
			Query: model.Query{Operation: model.OpAggregate, Args: map[string]any{
				"op": "sum", "table": "orders", "column": "total_amount", "filter": map[string]any{"status": "delivered"},
			}},
			Value: "169.98",
		},
		{
			Statement: "Two orders were delivered",
			Query:     model.Query{Operation: model.OpAggregate, Args: map[string]any{"op": "count", "table": "orders", "group_by": "status"}},
			Group:     "delivered",
			Value:     2,
		},
		{
			Statement: "Two customers are called Melissa Wang",
			Query:     model.Query{Operation: model.OpLookupCustomer, Args: map[string]any{"name": "Melissa Wang"}},
			Field:     "rows",
			Value:     2,
		},
		{
			Statement: "The first Melissa Wang lives in LA",
			Query:     model.Query{Operation: model.OpLookupCustomer, Args: map[string]any{"name": "Melissa Wang"}},
			Field:     "rows.0.city",
			Value:     "la",
		},
		{
			Statement: "Melissa Wang placed three orders",
			Query:     model.Query{Operation: model.OpCustomerOrders, Args: map[string]any{"name": "Melissa Wang"}},
			Field:     "orders",
			Value:     3,
		},
		{
			Statement: "There are two pages of three customers",
			Query:     model.Query{Operation: model.OpListCustomers, Args: map[string]any{"page_size": 3}},
			Field:     "total_pages",
			Value:     2,
		},
	}
	for _, claim := range claims {
		t.Run(claim.Statement, func(t *testing.T) {
			ok, err := verifier.Verify(ctx, claim, nil)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestVerifyRejectsWrongValue(t *testing.T) {
	svc := loadedService(t)
	verifier := NewFactVerifier(svc, DefaultTolerance, nil, nil)

	claim := model.Claim{Statement: "Two customers live in LA", Query: countQuery("customers", map[string]any{"city": "LA"}), Value: 2}
	ok, err := verifier.Verify(context.Background(), claim, nil)
	assert.False(t, ok)
	assert.True(t, IsUnsupported(err))

	claim.Value = 1.01
	ok, err = verifier.Verify(context.Background(), claim, nil)
	assert.False(t, ok)
	assert.True(t, IsUnsupported(err))

	missing := model.Claim{
		Query: model.Query{Operation: model.OpAggregate, Args: map[string]any{"op": "count", "table": "orders", "group_by": "status"}},
		Group: "processing",
		Value: 0,
	}
	_, err = verifier.Verify(context.Background(), missing, nil)
	assert.True(t, IsUnsupported(err))
}

func TestVerifyPassesQueryErrorsThrough(t *testing.T) {
	svc := loadedService(t)
	verifier := NewFactVerifier(svc, DefaultTolerance, nil, nil)

	_, err := verifier.Verify(context.Background(), model.Claim{Query: model.Query{Operation: "guess"}, Value: 1}, nil)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeInvalidQuery))
	assert.False(t, IsUnsupported(err))

	_, err = verifier.Verify(context.Background(), model.Claim{
		Query: countQuery("customers", nil),
		Field: "total_pages",
		Value: 1,
	}, nil)
	assert.True(t, utils.IsErrorType(err, utils.ErrCodeInvalidQuery))
}

func TestVerifySupportingResultMustBeCurrent(t *testing.T) {
	svc := loadedService(t)
	verifier := NewFactVerifier(svc, DefaultTolerance, nil, nil)
	ctx := context.Background()

	claim := model.Claim{Query: countQuery("customers", map[string]any{"state": "CA"}), Value: 2}
	supporting, err := svc.Execute(ctx, claim.Query)
	require.NoError(t, err)

	ok, err := verifier.Verify(ctx, claim, supporting)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.Refresh(ctx, sampleTables())
	require.NoError(t, err)

	ok, err = verifier.Verify(ctx, claim, supporting)
	assert.False(t, ok)
	assert.True(t, IsUnsupported(err))
	assert.Contains(t, err.Error(), "generation 1")
}

func TestVerifyAllReportsEachClaim(t *testing.T) {
	svc := loadedService(t)
	verifier := NewFactVerifier(svc, -1, nil, NewMetricsCollector(nil))

	verdicts := verifier.VerifyAll(context.Background(), []model.Claim{
		{Statement: "right", Query: countQuery("orders", nil), Value: 5},
		{Statement: "wrong", Query: countQuery("orders", nil), Value: 6},
		{Statement: "fuzzy", Query: model.Query{Operation: model.OpLookupCustomer, Args: map[string]any{"name": "Jon Smith"}}, Value: 1},
		{Statement: "broken", Query: model.Query{Operation: "guess"}, Value: 1},
	})
	require.Len(t, verdicts, 4)

	assert.True(t, verdicts[0].Verified)
	assert.Empty(t, verdicts[0].Error)
	assert.Equal(t, int64(5), verdicts[0].Observed)
	assert.Equal(t, uint64(1), verdicts[0].Generation)

	assert.False(t, verdicts[1].Verified)
	assert.Contains(t, verdicts[1].Error, utils.ErrCodeUnsupportedClaim)

	assert.True(t, verdicts[2].Verified)
	assert.True(t, verdicts[2].Fuzzy)

	assert.False(t, verdicts[3].Verified)
	assert.Contains(t, verdicts[3].Error, utils.ErrCodeInvalidQuery)
}

func TestVerifyNullClaims(t *testing.T) {
	svc := loadedService(t)
	verifier := NewFactVerifier(svc, DefaultTolerance, nil, nil)

	claim := model.Claim{
		Query: model.Query{Operation: model.OpAggregate, Args: map[string]any{
			"op": "average", "table": "orders", "column": "total_amount", "filter": map[string]any{"status": "processing"},
		}},
		Value: nil,
	}
	ok, err := verifier.Verify(context.Background(), claim, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	claim.Value = 0
	ok, err = verifier.Verify(context.Background(), claim, nil)
	assert.False(t, ok)
	assert.True(t, IsUnsupported(err))
}
