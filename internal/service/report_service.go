package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"insight-gateway/internal/database/metadata"
	"insight-gateway/internal/logging"
	"insight-gateway/internal/model"
	"insight-gateway/internal/utils"
)

const (
	// LowStockThreshold is the stock level below which a product counts as low
	LowStockThreshold = 50
	// TopStatesLimit is the length of the top states ranking
	TopStatesLimit = 5
	// HighValueLimit is the length of the high value items ranking
	HighValueLimit = 5
	// LowStockItemsLimit caps the low stock listing; the count stays exact
	LowStockItemsLimit = 100

	maxSummaryAttempts = 3
	rateScale          = 4
)

// priceBuckets are the price distribution ranges, Max 0 meaning open-ended
var priceBuckets = []model.PriceBucket{
	{Label: "under 10", Min: 0, Max: 10},
	{Label: "10 to 50", Min: 10, Max: 50},
	{Label: "50 to 100", Min: 50, Max: 100},
	{Label: "100 and over", Min: 100},
}

// Report formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ReportService assembles the executive summary from aggregates
type ReportService struct {
	engine *RetrievalService
	logger *slog.Logger
}

// NewReportService creates a report service over the engine
func NewReportService(engine *RetrievalService, logger *slog.Logger) *ReportService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &ReportService{engine: engine, logger: logger}
}

// ExecutiveSummary computes the nested business summary. All figures come
// from one generation; if a refresh lands while they are computed the
// summary is recomputed.
func (r *ReportService) ExecutiveSummary(ctx context.Context) (*model.ExecutiveSummary, error) {
	for attempt := 1; attempt <= maxSummaryAttempts; attempt++ {
		b := &summaryBuilder{ctx: ctx, engine: r.engine, generation: r.engine.Generation()}
		summary := b.build()
		if b.err != nil {
			return nil, b.err
		}
		if !b.mixed {
			summary.Generation = b.generation
			summary.GeneratedAt = time.Now().UTC()
			summary.Claims = b.claims
			return summary, nil
		}
		r.logger.Debug("generation changed while building summary, retrying", "attempt", attempt)
	}
	return nil, utils.NewErrorBuilder(utils.ErrCodeStaleGeneration).
		WithDetails(fmt.Sprintf("generation kept changing across %d attempts", maxSummaryAttempts)).
		Build()
}

// ParseFormat resolves a report format name, defaulting to JSON
func ParseFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	}
	return "", utils.NewInvalidQueryError(fmt.Sprintf("unsupported format %q, expected json or yaml", format))
}

// RenderSummary serializes a summary as JSON or YAML and returns the content type
func RenderSummary(summary *model.ExecutiveSummary, format string) ([]byte, string, error) {
	format, err := ParseFormat(format)
	if err != nil {
		return nil, "", err
	}
	if format == FormatYAML {
		data, err := yaml.Marshal(summary)
		return data, "application/yaml; charset=utf-8", err
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	return data, "application/json; charset=utf-8", err
}

// summaryBuilder runs the aggregates behind one summary. The first error
// stops further queries; mixed is set when results span generations.
type summaryBuilder struct {
	ctx        context.Context
	engine     *RetrievalService
	generation uint64
	mixed      bool
	err        error
	claims     []model.Claim
}

func (b *summaryBuilder) build() *model.ExecutiveSummary {
	s := &model.ExecutiveSummary{}

	s.Overview.TotalCustomers = asInt64(b.scalar("total customers", countSpec(model.TableCustomers, nil)))
	s.Overview.TotalOrders = asInt64(b.scalar("total orders", countSpec(model.TableOrders, nil)))
	s.Overview.TotalProducts = asInt64(b.scalar("total products", countSpec(model.TableProducts, nil)))
	s.Overview.DeliveredRevenue = asFloat(b.scalar("delivered revenue", model.AggregateSpec{
		Op: model.AggregateSum, Table: model.TableOrders, Column: "total_amount",
		Filter: map[string]any{"status": "delivered"},
	}))

	statusCounts := b.grouped("orders with status", model.AggregateSpec{
		Op: model.AggregateCount, Table: model.TableOrders, GroupBy: "status",
	})
	s.Sales.StatusCounts = int64Map(statusCounts)
	s.Sales.RevenueByStatus = floatMap(b.grouped("revenue with status", model.AggregateSpec{
		Op: model.AggregateSum, Table: model.TableOrders, Column: "total_amount", GroupBy: "status",
	}))
	s.Sales.AverageOrderValue = asFloat(b.scalar("average order value", model.AggregateSpec{
		Op: model.AggregateAverage, Table: model.TableOrders, Column: "total_amount",
	}))
	if s.Overview.TotalOrders > 0 {
		rate := decimal.NewFromInt(s.Sales.StatusCounts["delivered"]).
			DivRound(decimal.NewFromInt(s.Overview.TotalOrders), rateScale)
		s.Sales.DeliveredRate = rate.InexactFloat64()
	}

	s.Customers.ByState = int64Map(b.grouped("customers in state", model.AggregateSpec{
		Op: model.AggregateCount, Table: model.TableCustomers, GroupBy: "state",
	}))
	s.Customers.TopStates = topStates(s.Customers.ByState, TopStatesLimit)
	s.Customers.ByCity = int64Map(b.grouped("customers in city", model.AggregateSpec{
		Op: model.AggregateCount, Table: model.TableCustomers, GroupBy: "city",
	}))

	s.Inventory.ProductsByCategory = int64Map(b.grouped("products in category", model.AggregateSpec{
		Op: model.AggregateCount, Table: model.TableProducts, GroupBy: "category",
	}))
	s.Inventory.StockByCategory = int64Map(b.grouped("stock in category", model.AggregateSpec{
		Op: model.AggregateSum, Table: model.TableProducts, Column: "stock_quantity", GroupBy: "category",
	}))
	s.Inventory.LowStockThreshold = LowStockThreshold
	s.Inventory.LowStockProducts = asInt64(b.scalar("low stock products", countSpec(model.TableProducts, map[string]any{
		"stock_quantity": map[string]any{"lt": LowStockThreshold},
	})))

	s.Inventory.AverageStockPerProduct = asFloat(b.scalar("average stock per product", model.AggregateSpec{
		Op: model.AggregateAverage, Table: model.TableProducts, Column: "stock_quantity",
	}))
	valueSpec := model.AggregateSpec{
		Op: model.AggregateSum, Table: model.TableProducts, Column: "stock_quantity", Weight: "unit_price",
	}
	s.Inventory.TotalInventoryValue = asFloat(b.scalar("total inventory value", valueSpec))
	byCategory := valueSpec
	byCategory.GroupBy = "category"
	s.Inventory.InventoryValueByCategory = floatMap(b.grouped("inventory value in category", byCategory))
	s.Inventory.LowStockItems = b.lowStockItems()
	s.Inventory.HighValueItems = b.highValueItems(valueSpec)

	s.Inventory.PriceDistribution = make([]model.PriceBucket, 0, len(priceBuckets))
	for _, bucket := range priceBuckets {
		price := map[string]any{"gte": bucket.Min}
		if bucket.Max > 0 {
			price["lt"] = bucket.Max
		}
		bucket.Products = asInt64(b.scalar("products priced "+bucket.Label, countSpec(model.TableProducts, map[string]any{
			"unit_price": price,
		})))
		s.Inventory.PriceDistribution = append(s.Inventory.PriceDistribution, bucket)
	}
	return s
}

func countSpec(table model.TableKind, filter map[string]any) model.AggregateSpec {
	return model.AggregateSpec{Op: model.AggregateCount, Table: table, Filter: filter}
}

func (b *summaryBuilder) aggregate(spec model.AggregateSpec) *model.AggregateResult {
	if b.err != nil || b.mixed {
		return nil
	}
	res, err := b.engine.Aggregate(b.ctx, spec)
	if err != nil {
		b.err = err
		return nil
	}
	if res.Generation != b.generation {
		b.mixed = true
		return nil
	}
	return res
}

// scalar runs an ungrouped aggregate and records the claim backing it
func (b *summaryBuilder) scalar(statement string, spec model.AggregateSpec) any {
	res := b.aggregate(spec)
	if res == nil {
		return nil
	}
	b.claims = append(b.claims, model.Claim{
		Statement: statement,
		Query:     model.Query{Operation: model.OpAggregate, Args: AggregateArgs(spec)},
		Field:     model.ClaimFieldValue,
		Value:     claimValue(res.Value),
	})
	return res.Value
}

// grouped runs a grouped aggregate and records one claim per group
func (b *summaryBuilder) grouped(statement string, spec model.AggregateSpec) map[string]any {
	res := b.aggregate(spec)
	if res == nil {
		return nil
	}
	keys := make([]string, 0, len(res.Groups))
	for key := range res.Groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	b.groupClaims(statement, spec, res, keys)
	return res.Groups
}

// groupClaims records a claim for each of keys of a grouped result
func (b *summaryBuilder) groupClaims(statement string, spec model.AggregateSpec, res *model.AggregateResult, keys []string) {
	args := AggregateArgs(spec)
	for _, key := range keys {
		b.claims = append(b.claims, model.Claim{
			Statement: fmt.Sprintf("%s %s", statement, key),
			Query:     model.Query{Operation: model.OpAggregate, Args: args},
			Field:     model.ClaimFieldGroup,
			Group:     key,
			Value:     claimValue(res.Groups[key]),
		})
	}
}

// lowStockItems lists the products below LowStockThreshold, lowest stock
// first, with a claim for each stock level.
func (b *summaryBuilder) lowStockItems() []model.InventoryItem {
	spec := model.AggregateSpec{
		Op: model.AggregateSum, Table: model.TableProducts, Column: "stock_quantity", GroupBy: "product_id",
		Filter: map[string]any{"stock_quantity": map[string]any{"lt": LowStockThreshold}},
	}
	res := b.aggregate(spec)
	if res == nil {
		return nil
	}
	items := b.inventoryItems(res, func(item *model.InventoryItem, v any) {
		item.StockQuantity = asInt64(v)
	})
	sort.Slice(items, func(i, j int) bool {
		if items[i].StockQuantity != items[j].StockQuantity {
			return items[i].StockQuantity < items[j].StockQuantity
		}
		return items[i].ProductID < items[j].ProductID
	})
	if len(items) > LowStockItemsLimit {
		items = items[:LowStockItemsLimit]
	}
	b.groupClaims("stock of low stock product", spec, res, itemIDs(items))
	return items
}

// highValueItems ranks products by inventory value, highest first
func (b *summaryBuilder) highValueItems(valueSpec model.AggregateSpec) []model.InventoryItem {
	spec := valueSpec
	spec.GroupBy = "product_id"
	spec.Filter = map[string]any{"stock_quantity": map[string]any{"gt": 0}}
	res := b.aggregate(spec)
	if res == nil {
		return nil
	}
	items := b.inventoryItems(res, func(item *model.InventoryItem, v any) {
		item.InventoryValue = asFloat(v)
	})
	sort.Slice(items, func(i, j int) bool {
		if items[i].InventoryValue != items[j].InventoryValue {
			return items[i].InventoryValue > items[j].InventoryValue
		}
		return items[i].ProductID < items[j].ProductID
	})
	if len(items) > HighValueLimit {
		items = items[:HighValueLimit]
	}
	b.groupClaims("inventory value of product", spec, res, itemIDs(items))
	return items
}

// inventoryItems turns a result grouped by product_id into items, reading
// the descriptive columns from the builder's generation. Rows without a
// product id are left out.
func (b *summaryBuilder) inventoryItems(res *model.AggregateResult, set func(*model.InventoryItem, any)) []model.InventoryItem {
	snap := b.engine.Snapshot()
	if snap.Generation != b.generation {
		b.mixed = true
		return nil
	}
	byID, err := requireIndex(snap, metadata.IndexProductByID)
	if err != nil {
		b.err = err
		return nil
	}
	products := snap.Table(model.TableProducts)

	items := make([]model.InventoryItem, 0, len(res.Groups))
	for id, v := range res.Groups {
		if id == NullGroup {
			continue
		}
		item := model.InventoryItem{ProductID: id}
		if rows := byID.Lookup(id); len(rows) > 0 {
			row := products.Rows[rows[0]]
			item.Name = model.FormatValue(row["name"])
			item.Category = model.FormatValue(row["category"])
			item.StockQuantity = asInt64(row["stock_quantity"])
			if stock, ok := numeric(row["stock_quantity"]); ok {
				if price, ok := numeric(row["unit_price"]); ok {
					item.InventoryValue = stock.Mul(price).InexactFloat64()
				}
			}
		}
		set(&item, v)
		items = append(items, item)
	}
	return items
}

func itemIDs(items []model.InventoryItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}
	return ids
}

func topStates(byState map[string]int64, limit int) []model.StateCount {
	ranking := make([]model.StateCount, 0, len(byState))
	for state, n := range byState {
		if state == NullGroup {
			continue
		}
		ranking = append(ranking, model.StateCount{State: state, Customers: n})
	}
	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].Customers != ranking[j].Customers {
			return ranking[i].Customers > ranking[j].Customers
		}
		return ranking[i].State < ranking[j].State
	})
	if len(ranking) > limit {
		ranking = ranking[:limit]
	}
	return ranking
}

// claimValue renders an aggregate value as a plain JSON/YAML scalar
func claimValue(v any) any {
	switch n := v.(type) {
	case decimal.Decimal:
		if n.IsInteger() {
			return n.IntPart()
		}
		return n.InexactFloat64()
	}
	return v
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case decimal.Decimal:
		return n.IntPart()
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case decimal.Decimal:
		return n.InexactFloat64()
	}
	return 0
}

func int64Map(groups map[string]any) map[string]int64 {
	out := make(map[string]int64, len(groups))
	for k, v := range groups {
		out[k] = asInt64(v)
	}
	return out
}

func floatMap(groups map[string]any) map[string]float64 {
	out := make(map[string]float64, len(groups))
	for k, v := range groups {
		out[k] = asFloat(v)
	}
	return out
}
