package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"insight-gateway/internal/database/metadata"
	"insight-gateway/internal/logging"
	"insight-gateway/internal/model"
	"insight-gateway/internal/service"
	"insight-gateway/internal/utils"
	"insight-gateway/pkg/response"
)

// MCPServer exposes the retrieval operations as MCP tools for an intent
// classifier. Every tool answers with a JSON document.
type MCPServer struct {
	engine   *service.RetrievalService
	verifier *service.FactVerifier
	reports  *service.ReportService
	logger   *slog.Logger
	server   *server.MCPServer
}

// NewMCPServer creates a new MCP server instance
func NewMCPServer(name, version string, engine *service.RetrievalService, verifier *service.FactVerifier, reports *service.ReportService, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = logging.Discard()
	}
	s := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(false),
	)

	mcpServer := &MCPServer{
		engine:   engine,
		verifier: verifier,
		reports:  reports,
		logger:   logger.With("component", "mcp"),
		server:   s,
	}

	mcpServer.registerTools()

	return mcpServer
}

// ServeStdio serves tool calls over stdin/stdout until the input closes
func (m *MCPServer) ServeStdio() error {
	return server.ServeStdio(m.server)
}

// registerTools registers all available tools with the MCP server
func (m *MCPServer) registerTools() {
	lookupCustomerTool := mcp.NewTool(model.OpLookupCustomer,
		mcp.WithDescription("Find customers by name. Exact normalized match first, fuzzy fallback when nothing matches exactly"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Customer name, e.g. \"Melissa Smith\"")))
	m.server.AddTool(lookupCustomerTool, m.queryHandler(model.OpLookupCustomer))

	listCustomersTool := mcp.NewTool(model.OpListCustomers,
		mcp.WithDescription("List one page of customers in load order"),
		mcp.WithNumber("page", mcp.Description("1-based page number, default 1")),
		mcp.WithNumber("page_size", mcp.Description("Rows per page, default from configuration")))
	m.server.AddTool(listCustomersTool, m.queryHandler(model.OpListCustomers))

	ordersForCustomerTool := mcp.NewTool(model.OpOrdersForCustomer,
		mcp.WithDescription("List the orders placed by a customer id"),
		mcp.WithString("customer_id", mcp.Required(), mcp.Description("The customer_id value")))
	m.server.AddTool(ordersForCustomerTool, m.queryHandler(model.OpOrdersForCustomer))

	customerOrdersTool := mcp.NewTool(model.OpCustomerOrders,
		mcp.WithDescription("Find customers by name together with their orders and the ordered products"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Customer name")))
	m.server.AddTool(customerOrdersTool, m.queryHandler(model.OpCustomerOrders))

	productsByCategoryTool := mcp.NewTool(model.OpProductsByCategory,
		mcp.WithDescription("List the products of a category"),
		mcp.WithString("category", mcp.Required(), mcp.Description("Product category, e.g. \"Electronics\"")))
	m.server.AddTool(productsByCategoryTool, m.queryHandler(model.OpProductsByCategory))

	searchProductsTool := mcp.NewTool(model.OpSearchProducts,
		mcp.WithDescription("Find products whose name contains every word of the search term"),
		mcp.WithString("term", mcp.Required(), mcp.Description("Search words")))
	m.server.AddTool(searchProductsTool, m.queryHandler(model.OpSearchProducts))

	listOrdersTool := mcp.NewTool(model.OpListOrders,
		mcp.WithDescription("List one page of orders, optionally only those with a status or of a customer id"),
		mcp.WithString("status", mcp.Enum(metadata.OrderStatuses...)),
		mcp.WithString("customer_id", mcp.Description("The customer_id value")),
		mcp.WithNumber("page", mcp.Description("1-based page number, default 1")),
		mcp.WithNumber("page_size", mcp.Description("Rows per page, default from configuration")))
	m.server.AddTool(listOrdersTool, m.queryHandler(model.OpListOrders))

	listProductsTool := mcp.NewTool(model.OpListProducts,
		mcp.WithDescription("List one page of products, optionally of a category or whose name contains every given word"),
		mcp.WithString("category", mcp.Description("Product category")),
		mcp.WithString("name", mcp.Description("Words the product name must contain")),
		mcp.WithNumber("page", mcp.Description("1-based page number, default 1")),
		mcp.WithNumber("page_size", mcp.Description("Rows per page, default from configuration")))
	m.server.AddTool(listProductsTool, m.queryHandler(model.OpListProducts))

	aggregateTool := mcp.NewTool(model.OpAggregate,
		mcp.WithDescription("Count, sum or average a column over filtered rows, optionally grouped"),
		mcp.WithString("table", mcp.Required(), mcp.Enum("customers", "orders", "products")),
		mcp.WithString("op", mcp.Required(), mcp.Enum("count", "sum", "average")),
		mcp.WithString("column", mcp.Description("Column to sum or average; count ignores nulls of it when set")),
		mcp.WithString("weight", mcp.Description("Numeric column multiplied into column before summing or averaging")),
		mcp.WithString("group_by", mcp.Description("Column to group by")),
		mcp.WithObject("filter", mcp.Description("Column to value, or column to {eq|ne|lt|lte|gt|gte|in: operand}")),
		mcp.WithBoolean("require_index", mcp.Description("Fail instead of scanning when no index covers the filter")))
	m.server.AddTool(aggregateTool, m.queryHandler(model.OpAggregate))

	queryTool := mcp.NewTool("query",
		mcp.WithDescription("Run any structured query given as an operation and its arguments"),
		mcp.WithString("operation", mcp.Required(), mcp.Description("One of the retrieval operation names")),
		mcp.WithObject("args", mcp.Description("Operation arguments")))
	m.server.AddTool(queryTool, m.handleQuery)

	verifyClaimTool := mcp.NewTool("verify_claim",
		mcp.WithDescription("Check claims against the current data by re-running their supporting queries"),
		mcp.WithArray("claims", mcp.Required(),
			mcp.Description("Claims of the form {statement, query: {operation, args}, field, group, value}")))
	m.server.AddTool(verifyClaimTool, m.handleVerifyClaim)

	executiveSummaryTool := mcp.NewTool(model.OpExecutiveSummary,
		mcp.WithDescription("Overview, sales, customer and inventory figures with the claims backing them"),
		mcp.WithString("format", mcp.Enum(service.FormatJSON, service.FormatYAML), mcp.Description("Output format, default json")))
	m.server.AddTool(executiveSummaryTool, m.handleExecutiveSummary)

	dataStatusTool := mcp.NewTool("data_status",
		mcp.WithDescription("Current generation, table sizes, indexes and cache counters"))
	m.server.AddTool(dataStatusTool, m.handleDataStatus)
}

// queryHandler runs op with the tool arguments as query args
func (m *MCPServer) queryHandler(op string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return m.execute(ctx, model.Query{Operation: op, Args: request.GetArguments()})
	}
}

// handleQuery handles the query tool call
func (m *MCPServer) handleQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := model.Query{Operation: mcp.ParseString(request, "operation", "")}
	if raw, ok := request.GetArguments()["args"]; ok && raw != nil {
		args, ok := raw.(map[string]any)
		if !ok {
			return m.toolError(utils.NewInvalidQueryError("args must be an object")), nil
		}
		q.Args = args
	}
	return m.execute(ctx, q)
}

// handleVerifyClaim handles the verify_claim tool call
func (m *MCPServer) handleVerifyClaim(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, ok := request.GetArguments()["claims"]
	if !ok || raw == nil {
		return m.toolError(utils.NewInvalidQueryError("claims is required")), nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode claims: %w", err)
	}
	var claims []model.Claim
	if err := json.Unmarshal(data, &claims); err != nil {
		return m.toolError(utils.NewInvalidQueryError(fmt.Sprintf("invalid claims: %v", err))), nil
	}
	if len(claims) == 0 {
		return m.toolError(utils.NewInvalidQueryError("claims must not be empty")), nil
	}

	verdicts := m.verifier.VerifyAll(ctx, claims)
	verified := 0
	for _, v := range verdicts {
		if v.Verified {
			verified++
		}
	}
	return jsonResult(map[string]any{
		"verdicts":   verdicts,
		"verified":   verified,
		"total":      len(verdicts),
		"generation": m.engine.Generation(),
	})
}

// handleExecutiveSummary handles the executive_summary tool call
func (m *MCPServer) handleExecutiveSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := service.ParseFormat(mcp.ParseString(request, "format", service.FormatJSON))
	if err != nil {
		return m.toolError(err), nil
	}
	summary, err := m.reports.ExecutiveSummary(ctx)
	if err != nil {
		return m.toolError(err), nil
	}
	data, _, err := service.RenderSummary(summary, format)
	if err != nil {
		return nil, fmt.Errorf("failed to render summary: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(string(data)),
		},
	}, nil
}

// handleDataStatus handles the data_status tool call
func (m *MCPServer) handleDataStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(m.engine.Stats())
}

func (m *MCPServer) execute(ctx context.Context, q model.Query) (*mcp.CallToolResult, error) {
	result, err := m.engine.Execute(ctx, q)
	if err != nil {
		m.logger.Debug("tool query failed", "operation", q.Operation, "error", err)
		return m.toolError(err), nil
	}
	return jsonResult(result)
}

// toolError reports err to the caller in the HTTP error envelope
func (m *MCPServer) toolError(err error) *mcp.CallToolResult {
	_, body := response.FromError(err, "")
	data, marshalErr := json.Marshal(body)
	if marshalErr != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultError(string(data))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonResp, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(string(jsonResp)),
		},
	}, nil
}
