package model

import (
	"strings"
)

// Operation names accepted at the query boundary
const (
	OpLookupCustomer     = "lookup_customer"
	OpListCustomers      = "list_customers"
	OpOrdersForCustomer  = "orders_for_customer"
	OpProductsByCategory = "products_by_category"
	OpSearchProducts     = "search_products"
	OpCustomerOrders     = "customer_orders"
	OpListOrders         = "list_orders"
	OpListProducts       = "list_products"
	OpAggregate          = "aggregate"
	OpExecutiveSummary   = "executive_summary"
)

// Operations lists every operation Execute understands. The executive
// summary is assembled by the report service from aggregates.
var Operations = []string{
	OpLookupCustomer,
	OpListCustomers,
	OpOrdersForCustomer,
	OpProductsByCategory,
	OpSearchProducts,
	OpCustomerOrders,
	OpListOrders,
	OpListProducts,
	OpAggregate,
}

// Query is a structured query produced by the intent classifier:
// an operation name plus JSON-typed arguments.
type Query struct {
	Operation string         `json:"operation" yaml:"operation" validate:"required"`
	Args      map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
}

// AggregateOp is the reduction applied by an aggregate query
type AggregateOp string

const (
	AggregateCount   AggregateOp = "count"
	AggregateSum     AggregateOp = "sum"
	AggregateAverage AggregateOp = "average"
)

// ParseAggregateOp resolves an aggregate name, accepting avg/mean for average
func ParseAggregateOp(name string) (AggregateOp, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "count":
		return AggregateCount, true
	case "sum", "total":
		return AggregateSum, true
	case "average", "avg", "mean":
		return AggregateAverage, true
	}
	return "", false
}

// AggregateSpec describes count/sum/average over a filtered row set. When
// Weight is set, sum and average reduce Column × Weight per row; rows where
// either is null are skipped.
//
// Filter values are either scalars (equality) or maps of operator to operand
// with the operators eq, ne, lt, lte, gt, gte and in, all of which must hold.
type AggregateSpec struct {
	Op           AggregateOp    `json:"op" yaml:"op" validate:"required"`
	Table        TableKind      `json:"table" yaml:"table" validate:"required"`
	Column       string         `json:"column,omitempty" yaml:"column,omitempty"`
	Weight       string         `json:"weight,omitempty" yaml:"weight,omitempty"`
	Filter       map[string]any `json:"filter,omitempty" yaml:"filter,omitempty"`
	GroupBy      string         `json:"group_by,omitempty" yaml:"group_by,omitempty"`
	MaxCost      int            `json:"max_cost,omitempty" yaml:"max_cost,omitempty" validate:"omitempty,min=1"`
	RequireIndex bool           `json:"require_index,omitempty" yaml:"require_index,omitempty"`
}

// ListCustomersRequest binds pagination query parameters
type ListCustomersRequest struct {
	Page     *int `form:"page" validate:"omitempty,min=1"`
	PageSize *int `form:"page_size" validate:"omitempty,min=1,max=10000"`
}

// ListOrdersRequest binds an order listing
type ListOrdersRequest struct {
	Status     string `form:"status" validate:"omitempty,max=64"`
	CustomerID string `form:"customer_id" validate:"omitempty,max=256"`
	Page       *int   `form:"page" validate:"omitempty,min=1"`
	PageSize   *int   `form:"page_size" validate:"omitempty,min=1,max=10000"`
}

// ListProductsRequest binds a product listing
type ListProductsRequest struct {
	Category string `form:"category" validate:"omitempty,max=256"`
	Name     string `form:"name" validate:"omitempty,max=256"`
	Page     *int   `form:"page" validate:"omitempty,min=1"`
	PageSize *int   `form:"page_size" validate:"omitempty,min=1,max=10000"`
}

// LookupRequest binds a name lookup
type LookupRequest struct {
	Name string `form:"name" validate:"required,max=256"`
}

// CategoryRequest binds a category lookup
type CategoryRequest struct {
	Category string `form:"category" validate:"required,max=256"`
}

// SearchRequest binds a product search
type SearchRequest struct {
	Term string `form:"q" validate:"required,max=256"`
}
