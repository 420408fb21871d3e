package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TableKind identifies one of the fixed business entities
type TableKind string

const (
	TableCustomers TableKind = "customers"
	TableOrders    TableKind = "orders"
	TableProducts  TableKind = "products"
)

// AllTableKinds lists the entities in dependency order (referenced tables first)
var AllTableKinds = []TableKind{TableCustomers, TableProducts, TableOrders}

// tableKindAliases maps source file basenames to table kinds.
// customer/inventory/pricelist are the names used by the legacy CSV export.
var tableKindAliases = map[string]TableKind{
	"customers": TableCustomers,
	"customer":  TableCustomers,
	"orders":    TableOrders,
	"order":     TableOrders,
	"inventory": TableOrders,
	"products":  TableProducts,
	"product":   TableProducts,
	"pricelist": TableProducts,
}

// ParseTableKind resolves a table name or source file basename
func ParseTableKind(name string) (TableKind, bool) {
	kind, ok := tableKindAliases[strings.ToLower(strings.TrimSpace(name))]
	return kind, ok
}

// IsValid reports whether the kind is one of the fixed entities
func (k TableKind) IsValid() bool {
	switch k {
	case TableCustomers, TableOrders, TableProducts:
		return true
	}
	return false
}

// ColumnType is the declared scalar type of a column
type ColumnType string

const (
	ColumnTypeString  ColumnType = "string"
	ColumnTypeInteger ColumnType = "integer"
	ColumnTypeDecimal ColumnType = "decimal"
	ColumnTypeDate    ColumnType = "date"
	ColumnTypeEnum    ColumnType = "enum"
)

// IsNumeric reports whether values of this type can be summed
func (t ColumnType) IsNumeric() bool {
	return t == ColumnTypeInteger || t == ColumnTypeDecimal
}

// Row maps column name to a typed scalar: string, int64, decimal.Decimal,
// time.Time or nil for null. Rows handed out by the engine are read-only.
type Row map[string]any

// Copy returns a shallow copy of the row
func (r Row) Copy() Row {
	cp := make(Row, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp
}

// RawTable is an ordered sequence of string records with column headers,
// exactly as read from the ingestion boundary.
type RawTable struct {
	Kind    TableKind  `json:"kind"`
	Source  string     `json:"source,omitempty"`
	Header  []string   `json:"header"`
	Records [][]string `json:"records"`
}

// Table is a validated, typed table. Row identifiers are positions in Rows.
type Table struct {
	Kind    TableKind `json:"kind"`
	Source  string    `json:"source,omitempty"`
	Columns []string  `json:"columns"`
	Rows    []Row     `json:"rows"`
}

// Len returns the number of rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// EmptyTable returns a zero-row table with the given columns
func EmptyTable(kind TableKind, columns []string) *Table {
	return &Table{Kind: kind, Columns: columns, Rows: []Row{}}
}

// DateLayout is the canonical rendering of date values
const DateLayout = "2006-01-02"

// FormatValue renders a typed scalar canonically. It is the basis of index
// keys and filter comparisons, so equal values always render identically.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return decimal.NewFromInt(val).String()
	case int:
		return decimal.NewFromInt(int64(val)).String()
	case decimal.Decimal:
		return val.String()
	case time.Time:
		return val.UTC().Format(DateLayout)
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(val)
	}
}
