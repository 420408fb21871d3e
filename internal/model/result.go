package model

// Result is implemented by every retrieval result
type Result interface {
	Meta() *ResultMeta
}

// ResultMeta is attached to every result so that callers can trace which
// generation produced it.
type ResultMeta struct {
	Operation  string `json:"operation" yaml:"operation"`
	Generation uint64 `json:"generation" yaml:"generation"`
	Cached     bool   `json:"cached" yaml:"cached"`
}

// Meta returns the result metadata
func (m *ResultMeta) Meta() *ResultMeta { return m }

// FuzzyMatch explains why a fallback key matched a lookup
type FuzzyMatch struct {
	Key       string  `json:"key"`
	Distance  int     `json:"distance"`
	Score     float64 `json:"score"`
	Substring bool    `json:"substring"`
}

// LookupResult is returned by a customer name lookup. Fuzzy is set when the
// exact index lookup was empty and the fallback matcher produced the rows.
type LookupResult struct {
	ResultMeta
	Query   string       `json:"query"`
	Rows    []Row        `json:"rows"`
	RowIDs  []int        `json:"rowIds"`
	Fuzzy   bool         `json:"fuzzy"`
	Matches []FuzzyMatch `json:"matches,omitempty"`
}

// PageResult is one page of a listing
type PageResult struct {
	ResultMeta
	Table      TableKind `json:"table"`
	Rows       []Row     `json:"rows"`
	RowIDs     []int     `json:"rowIds"`
	Page       int       `json:"page"`
	PageSize   int       `json:"pageSize"`
	TotalCount int       `json:"totalCount"`
	TotalPages int       `json:"totalPages"`
	HasMore    bool      `json:"hasMore"`

	// Indexes and Filter describe how a filtered listing was answered
	Indexes []string          `json:"indexes,omitempty"`
	Filter  map[string]string `json:"filter,omitempty"`
}

// RowsResult is returned by direct index lookups
type RowsResult struct {
	ResultMeta
	Table  TableKind `json:"table"`
	Index  string    `json:"index"`
	Key    string    `json:"key"`
	Rows   []Row     `json:"rows"`
	RowIDs []int     `json:"rowIds"`
}

// OrderDetail is an order joined with its product
type OrderDetail struct {
	Order   Row `json:"order"`
	OrderID int `json:"orderRowId"`
	Product Row `json:"product,omitempty"`
}

// CustomerOrders groups a customer's orders with product details
type CustomerOrders struct {
	Customer   Row           `json:"customer"`
	CustomerID int           `json:"customerRowId"`
	Orders     []OrderDetail `json:"orders"`
}

// CustomerOrdersResult is returned by the detailed customer orders query
type CustomerOrdersResult struct {
	ResultMeta
	Query     string           `json:"query"`
	Fuzzy     bool             `json:"fuzzy"`
	Customers []CustomerOrders `json:"customers"`
}

// QueryCost reports how an aggregate was evaluated
type QueryCost struct {
	Strategy     string   `json:"strategy"`
	FullScan     bool     `json:"fullScan"`
	RowsExamined int      `json:"rowsExamined"`
	IndexesUsed  []string `json:"indexesUsed,omitempty"`
}

// AggregateResult holds a scalar Value, or Groups when GroupBy was requested.
// Count values are int64; sum and average values are decimal.Decimal, and
// the average of an empty set is nil.
type AggregateResult struct {
	ResultMeta
	Spec        AggregateSpec  `json:"spec"`
	Value       any            `json:"value"`
	Groups      map[string]any `json:"groups,omitempty"`
	MatchedRows int            `json:"matchedRows"`
	RowIDs      []int          `json:"rowIds,omitempty"`
	Cost        QueryCost      `json:"cost"`
}
