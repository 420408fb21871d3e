package metadata

import (
	"strings"

	"insight-gateway/internal/model"
)

// Index purposes declared by the default catalog
const (
	IndexCustomerByName      = "customer_by_name"
	IndexCustomerByID        = "customer_by_id"
	IndexCustomerByCity      = "customer_by_city"
	IndexCustomerByState     = "customer_by_state"
	IndexOrderByID           = "order_by_id"
	IndexOrdersByCustomer    = "orders_by_customer"
	IndexOrdersByProduct     = "orders_by_product"
	IndexOrdersByStatus      = "orders_by_status"
	IndexProductByID         = "product_by_id"
	IndexProductsByCategory  = "products_by_category"
	IndexProductsByNameToken = "products_by_name_token"
)

// IndexType selects how keys are derived from a column value
type IndexType string

const (
	// IndexTypeExact keys each row by its whole (normalized) value
	IndexTypeExact IndexType = "exact"
	// IndexTypeToken keys each row by every word of its value
	IndexTypeToken IndexType = "token"
)

// Catalog holds the schema of every table kind
type Catalog struct {
	Tables map[model.TableKind]*TableSchema `json:"tables"`
}

// TableSchema represents the schema of a single table
type TableSchema struct {
	Kind        model.TableKind    `json:"kind"`
	Columns     []ColumnSchema     `json:"columns"`
	PrimaryKey  string             `json:"primaryKey,omitempty"`
	Indexes     []IndexSchema      `json:"indexes,omitempty"`
	ForeignKeys []ForeignKeySchema `json:"foreignKeys,omitempty"`
}

// ColumnSchema represents a column definition.
// Identifier columns are matched verbatim (trimmed) rather than normalized.
type ColumnSchema struct {
	Name       string           `json:"name"`
	Type       model.ColumnType `json:"type"`
	Nullable   bool             `json:"nullable"`
	Aliases    []string         `json:"aliases,omitempty"`
	EnumValues []string         `json:"enumValues,omitempty"`
	Identifier bool             `json:"identifier,omitempty"`
}

// IndexSchema represents an index definition
type IndexSchema struct {
	Name   string    `json:"name"`
	Column string    `json:"column"`
	Unique bool      `json:"unique"`
	Type   IndexType `json:"type"`
}

// ForeignKeySchema represents a foreign key constraint. RefIndex names the
// unique index on the referenced table used for membership checks.
type ForeignKeySchema struct {
	Name     string          `json:"name"`
	Column   string          `json:"column"`
	RefTable model.TableKind `json:"refTable"`
	RefIndex string          `json:"refIndex"`
}

// OrderStatuses are the canonical members of orders.status
var OrderStatuses = []string{"pending", "processing", "shipped", "delivered", "cancelled"}

// DefaultCatalog returns the schemas of customers, orders and products.
// Aliases cover the headers of the legacy export (CID, IID, INDATE, ...).
func DefaultCatalog() *Catalog {
	customers := &TableSchema{
		Kind: model.TableCustomers,
		Columns: []ColumnSchema{
			{Name: "customer_id", Type: model.ColumnTypeString, Aliases: []string{"cid", "id"}, Identifier: true},
			{Name: "name", Type: model.ColumnTypeString, Aliases: []string{"customer_name", "full_name"}},
			{Name: "email", Type: model.ColumnTypeString, Nullable: true},
			{Name: "city", Type: model.ColumnTypeString, Nullable: true},
			{Name: "state", Type: model.ColumnTypeString, Nullable: true},
			{Name: "zip", Type: model.ColumnTypeString, Nullable: true, Aliases: []string{"zip_code", "postal_code"}, Identifier: true},
		},
		PrimaryKey: "customer_id",
		Indexes: []IndexSchema{
			{Name: IndexCustomerByName, Column: "name", Type: IndexTypeExact},
			{Name: IndexCustomerByID, Column: "customer_id", Unique: true, Type: IndexTypeExact},
			{Name: IndexCustomerByCity, Column: "city", Type: IndexTypeExact},
			{Name: IndexCustomerByState, Column: "state", Type: IndexTypeExact},
		},
	}

	products := &TableSchema{
		Kind: model.TableProducts,
		Columns: []ColumnSchema{
			{Name: "product_id", Type: model.ColumnTypeString, Aliases: []string{"item_id", "sku"}, Identifier: true},
			{Name: "name", Type: model.ColumnTypeString, Aliases: []string{"product_name", "description"}},
			{Name: "category", Type: model.ColumnTypeString},
			{Name: "unit_price", Type: model.ColumnTypeDecimal, Aliases: []string{"baseprice", "price"}},
			{Name: "stock_quantity", Type: model.ColumnTypeInteger, Nullable: true, Aliases: []string{"stock", "quantity_on_hand"}},
		},
		PrimaryKey: "product_id",
		Indexes: []IndexSchema{
			{Name: IndexProductByID, Column: "product_id", Unique: true, Type: IndexTypeExact},
			{Name: IndexProductsByCategory, Column: "category", Type: IndexTypeExact},
			{Name: IndexProductsByNameToken, Column: "name", Type: IndexTypeToken},
		},
	}

	orders := &TableSchema{
		Kind: model.TableOrders,
		Columns: []ColumnSchema{
			{Name: "order_id", Type: model.ColumnTypeString, Aliases: []string{"iid", "invoice_id"}, Identifier: true},
			{Name: "customer_id", Type: model.ColumnTypeString, Aliases: []string{"cid"}, Identifier: true},
			{Name: "product_id", Type: model.ColumnTypeString, Aliases: []string{"item_id", "sku"}, Identifier: true},
			{Name: "order_date", Type: model.ColumnTypeDate, Aliases: []string{"indate", "date"}},
			{Name: "status", Type: model.ColumnTypeEnum, EnumValues: OrderStatuses},
			{Name: "quantity", Type: model.ColumnTypeInteger, Aliases: []string{"qty"}},
			{Name: "total_amount", Type: model.ColumnTypeDecimal, Aliases: []string{"subtotal", "total"}},
		},
		PrimaryKey: "order_id",
		Indexes: []IndexSchema{
			{Name: IndexOrderByID, Column: "order_id", Unique: true, Type: IndexTypeExact},
			{Name: IndexOrdersByCustomer, Column: "customer_id", Type: IndexTypeExact},
			{Name: IndexOrdersByProduct, Column: "product_id", Type: IndexTypeExact},
			{Name: IndexOrdersByStatus, Column: "status", Type: IndexTypeExact},
		},
		ForeignKeys: []ForeignKeySchema{
			{Name: "fk_orders_customer", Column: "customer_id", RefTable: model.TableCustomers, RefIndex: IndexCustomerByID},
			{Name: "fk_orders_product", Column: "product_id", RefTable: model.TableProducts, RefIndex: IndexProductByID},
		},
	}

	return &Catalog{
		Tables: map[model.TableKind]*TableSchema{
			model.TableCustomers: customers,
			model.TableProducts:  products,
			model.TableOrders:    orders,
		},
	}
}

// Table returns the schema for a table kind
func (c *Catalog) Table(kind model.TableKind) (*TableSchema, bool) {
	s, ok := c.Tables[kind]
	return s, ok
}

// Column returns the declared column with the given name
func (s *TableSchema) Column(name string) (*ColumnSchema, bool) {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return &s.Columns[i], true
		}
	}
	return nil, false
}

// ColumnNames returns the declared column names in order
func (s *TableSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// IndexOn returns the first exact index declared on a column
func (s *TableSchema) IndexOn(column string) (*IndexSchema, bool) {
	for i := range s.Indexes {
		if s.Indexes[i].Column == column && s.Indexes[i].Type == IndexTypeExact {
			return &s.Indexes[i], true
		}
	}
	return nil, false
}

// ResolveHeader maps each declared column to its position in header.
// Columns absent from the header are left out of the result.
func (s *TableSchema) ResolveHeader(header []string) map[string]int {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, taken := positions[key]; !taken {
			positions[key] = i
		}
	}

	resolved := make(map[string]int, len(s.Columns))
	for _, col := range s.Columns {
		if pos, ok := positions[normalizeHeader(col.Name)]; ok {
			resolved[col.Name] = pos
			continue
		}
		for _, alias := range col.Aliases {
			if pos, ok := positions[normalizeHeader(alias)]; ok {
				resolved[col.Name] = pos
				break
			}
		}
	}
	return resolved
}

// normalizeHeader makes "Customer ID", "customer-id" and a BOM-prefixed "CUSTOMER_ID" equal
func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.ReplaceAll(h, "-", " "))
	return strings.Join(strings.Fields(h), "_")
}
