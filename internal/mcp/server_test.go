package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"insight-gateway/internal/model"
	"insight-gateway/internal/service"
	"insight-gateway/internal/utils"
)

func sampleTables() map[model.TableKind]*model.RawTable {
	return map[model.TableKind]*model.RawTable{
		model.TableCustomers: {
			Kind:   model.TableCustomers,
			Header: []string{"customer_id", "name", "email", "city", "state", "zip"},
			Records: [][]string{
				{"C1", "Melissa Wang", "melissa@example.com", "LA", "CA", "90001"},
				{"C2", "John Smith", "", "NY", "NY", "10001"},
				{"C3", "melissa  wang", "", "SF", "CA", "94105"},
			},
		},
		model.TableProducts: {
			Kind:   model.TableProducts,
			Header: []string{"product_id", "name", "category", "unit_price", "stock_quantity"},
			Records: [][]string{
				{"P1", "USB-C Cable", "Electronics", "9.99", "100"},
				{"P2", "Office Chair", "Furniture", "150.00", "5"},
			},
		},
		model.TableOrders: {
			Kind:   model.TableOrders,
			Header: []string{"order_id", "customer_id", "product_id", "order_date", "status", "quantity", "total_amount"},
			Records: [][]string{
				{"O1", "C1", "P1", "2024-01-05", "delivered", "2", "19.98"},
				{"O2", "C2", "P2", "2024-02-01", "delivered", "1", "150.00"},
				{"O3", "C3", "P1", "2024-02-03", "pending", "1", "9.99"},
			},
		},
	}
}

func newTestServer(t *testing.T) *MCPServer {
	t.Helper()
	engine, err := service.NewRetrievalService(service.DefaultRetrievalOptions(), nil, nil)
	require.NoError(t, err)
	_, err = engine.Refresh(context.Background(), sampleTables())
	require.NoError(t, err)

	verifier := service.NewFactVerifier(engine, service.DefaultTolerance, nil, nil)
	return NewMCPServer("insight-gateway", "test", engine, verifier, service.NewReportService(engine, nil), nil)
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is %T", result.Content[0])
	return text.Text
}

func decodeResult(t *testing.T, result *mcp.CallToolResult, v any) {
	t.Helper()
	require.False(t, result.IsError, resultText(t, result))
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), v))
}

func errorCode(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.True(t, result.IsError)
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &body))
	return body.Error.Code
}

func TestQueryTools(t *testing.T) {
	m := newTestServer(t)
	ctx := context.Background()

	cases := []struct {
		op   string
		args map[string]any
		want []int
	}{
		{model.OpLookupCustomer, map[string]any{"name": "Melissa Wang"}, []int{0, 2}},
		{model.OpOrdersForCustomer, map[string]any{"customer_id": "C2"}, []int{1}},
		{model.OpProductsByCategory, map[string]any{"category": "furniture"}, []int{1}},
		{model.OpSearchProducts, map[string]any{"term": "usb cable"}, []int{0}},
		{model.OpListCustomers, map[string]any{"page": float64(1), "page_size": float64(2)}, []int{0, 1}},
		{model.OpListOrders, map[string]any{"status": "delivered"}, []int{0, 1}},
		{model.OpListOrders, map[string]any{"status": "delivered", "customer_id": "C2", "page_size": float64(5)}, []int{1}},
		{model.OpListProducts, map[string]any{"name": "chair"}, []int{1}},
		{model.OpListProducts, map[string]any{"page": float64(2), "page_size": float64(1)}, []int{1}},
	}
	for _, tc := range cases {
		t.Run(tc.op, func(t *testing.T) {
			result, err := m.queryHandler(tc.op)(ctx, callRequest(tc.op, tc.args))
			require.NoError(t, err)
			var out struct {
				Operation  string `json:"operation"`
				Generation uint64 `json:"generation"`
				RowIDs     []int  `json:"rowIds"`
			}
			decodeResult(t, result, &out)
			assert.Equal(t, tc.op, out.Operation)
			assert.Equal(t, uint64(1), out.Generation)
			assert.Equal(t, tc.want, out.RowIDs)
		})
	}
}

func TestAggregateTool(t *testing.T) {
	m := newTestServer(t)

	result, err := m.queryHandler(model.OpAggregate)(context.Background(), callRequest(model.OpAggregate, map[string]any{
		"table":    "orders",
		"op":       "count",
		"group_by": "status",
	}))
	require.NoError(t, err)
	var out struct {
		Groups map[string]int64 `json:"groups"`
	}
	decodeResult(t, result, &out)
	assert.Equal(t, map[string]int64{"delivered": 2, "pending": 1}, out.Groups)

	result, err = m.queryHandler(model.OpAggregate)(context.Background(), callRequest(model.OpAggregate, map[string]any{
		"table": "orders",
		"op":    "sum",
	}))
	require.NoError(t, err)
	assert.Equal(t, utils.ErrCodeInvalidQuery, errorCode(t, result))
}

func TestQueryTool(t *testing.T) {
	m := newTestServer(t)
	ctx := context.Background()

	result, err := m.handleQuery(ctx, callRequest("query", map[string]any{
		"operation": "customer_orders",
		"args":      map[string]any{"name": "john smith"},
	}))
	require.NoError(t, err)
	var out struct {
		Customers []struct {
			Orders []json.RawMessage `json:"orders"`
		} `json:"customers"`
	}
	decodeResult(t, result, &out)
	require.Len(t, out.Customers, 1)
	assert.Len(t, out.Customers[0].Orders, 1)

	result, err = m.handleQuery(ctx, callRequest("query", map[string]any{"operation": "customer_orders", "args": "john"}))
	require.NoError(t, err)
	assert.Equal(t, utils.ErrCodeInvalidQuery, errorCode(t, result))

	result, err = m.handleQuery(ctx, callRequest("query", map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, utils.ErrCodeInvalidQuery, errorCode(t, result))
}

func TestVerifyClaimTool(t *testing.T) {
	m := newTestServer(t)
	ctx := context.Background()

	claim := func(value any) map[string]any {
		return map[string]any{
			"statement": "delivered orders",
			"query": map[string]any{
				"operation": "aggregate",
				"args":      map[string]any{"op": "count", "table": "orders", "filter": map[string]any{"status": "delivered"}},
			},
			"value": value,
		}
	}
	result, err := m.handleVerifyClaim(ctx, callRequest("verify_claim", map[string]any{
		"claims": []any{claim(float64(2)), claim(float64(3))},
	}))
	require.NoError(t, err)
	var out struct {
		Verdicts   []model.Verdict `json:"verdicts"`
		Verified   int             `json:"verified"`
		Total      int             `json:"total"`
		Generation uint64          `json:"generation"`
	}
	decodeResult(t, result, &out)
	assert.Equal(t, 2, out.Total)
	assert.Equal(t, 1, out.Verified)
	assert.True(t, out.Verdicts[0].Verified)
	assert.False(t, out.Verdicts[1].Verified)
	assert.Equal(t, uint64(1), out.Generation)

	for _, args := range []map[string]any{
		{},
		{"claims": []any{}},
		{"claims": "everything is fine"},
	} {
		result, err = m.handleVerifyClaim(ctx, callRequest("verify_claim", args))
		require.NoError(t, err)
		assert.Equal(t, utils.ErrCodeInvalidQuery, errorCode(t, result))
	}
}

func TestExecutiveSummaryTool(t *testing.T) {
	m := newTestServer(t)
	ctx := context.Background()

	result, err := m.handleExecutiveSummary(ctx, callRequest(model.OpExecutiveSummary, nil))
	require.NoError(t, err)
	var summary model.ExecutiveSummary
	decodeResult(t, result, &summary)
	assert.Equal(t, uint64(1), summary.Generation)
	assert.Equal(t, int64(3), summary.Overview.TotalOrders)
	assert.NotEmpty(t, summary.Claims)

	result, err = m.handleExecutiveSummary(ctx, callRequest(model.OpExecutiveSummary, map[string]any{"format": "yaml"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(resultText(t, result)), &doc))
	assert.Contains(t, doc, "inventory")

	result, err = m.handleExecutiveSummary(ctx, callRequest(model.OpExecutiveSummary, map[string]any{"format": "pdf"}))
	require.NoError(t, err)
	assert.Equal(t, utils.ErrCodeInvalidQuery, errorCode(t, result))
}

func TestDataStatusTool(t *testing.T) {
	m := newTestServer(t)
	result, err := m.handleDataStatus(context.Background(), callRequest("data_status", nil))
	require.NoError(t, err)
	var stats struct {
		Generation uint64                     `json:"generation"`
		Tables     map[string]json.RawMessage `json:"tables"`
	}
	decodeResult(t, result, &stats)
	assert.Equal(t, uint64(1), stats.Generation)
	assert.Len(t, stats.Tables, 3)
}

func TestToolsListedOverJSONRPC(t *testing.T) {
	m := newTestServer(t)
	ctx := context.Background()

	reply := m.server.HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(reply)
	require.NoError(t, err)
	var listed struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(data, &listed))

	names := make([]string, 0, len(listed.Result.Tools))
	for _, tool := range listed.Result.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		model.OpLookupCustomer, model.OpListCustomers, model.OpOrdersForCustomer, model.OpCustomerOrders,
		model.OpProductsByCategory, model.OpSearchProducts, model.OpListOrders, model.OpListProducts,
		model.OpAggregate, "query", "verify_claim", model.OpExecutiveSummary, "data_status",
	}, names)

	reply = m.server.HandleMessage(ctx, json.RawMessage(
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"lookup_customer","arguments":{"name":"John Smith"}}}`))
	data, err = json.Marshal(reply)
	require.NoError(t, err)
	assert.Contains(t, string(data), `\"rowIds\":[1]`)
}
