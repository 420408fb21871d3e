package model

import "time"

// ExecutiveSummary is the nested report handed to the response generator.
// Every figure is backed by one of Claims, which the fact verifier can re-check.
type ExecutiveSummary struct {
	Generation  uint64           `json:"generation" yaml:"generation"`
	GeneratedAt time.Time        `json:"generatedAt" yaml:"generated_at"`
	Overview    OverviewSection  `json:"overview" yaml:"overview"`
	Sales       SalesSection     `json:"sales" yaml:"sales"`
	Customers   CustomerSection  `json:"customers" yaml:"customers"`
	Inventory   InventorySection `json:"inventory" yaml:"inventory"`
	Claims      []Claim          `json:"claims" yaml:"claims"`
}

type OverviewSection struct {
	TotalCustomers   int64   `json:"totalCustomers" yaml:"total_customers"`
	TotalOrders      int64   `json:"totalOrders" yaml:"total_orders"`
	TotalProducts    int64   `json:"totalProducts" yaml:"total_products"`
	DeliveredRevenue float64 `json:"deliveredRevenue" yaml:"delivered_revenue"`
}

type SalesSection struct {
	StatusCounts      map[string]int64   `json:"statusCounts" yaml:"status_counts"`
	RevenueByStatus   map[string]float64 `json:"revenueByStatus" yaml:"revenue_by_status"`
	AverageOrderValue float64            `json:"averageOrderValue" yaml:"average_order_value"`
	DeliveredRate     float64            `json:"deliveredRate" yaml:"delivered_rate"`
}

// StateCount is one entry of the top states ranking
type StateCount struct {
	State     string `json:"state" yaml:"state"`
	Customers int64  `json:"customers" yaml:"customers"`
}

type CustomerSection struct {
	ByState   map[string]int64 `json:"byState" yaml:"by_state"`
	TopStates []StateCount     `json:"topStates" yaml:"top_states"`
	ByCity    map[string]int64 `json:"byCity" yaml:"by_city"`
}

// PriceBucket counts products with Min <= unit_price < Max. Max is zero for
// the open-ended top bucket.
type PriceBucket struct {
	Label    string  `json:"label" yaml:"label"`
	Min      float64 `json:"min" yaml:"min"`
	Max      float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Products int64   `json:"products" yaml:"products"`
}

// InventoryItem is one product of the low stock or high value listings.
// InventoryValue is stock_quantity × unit_price.
type InventoryItem struct {
	ProductID      string  `json:"productId" yaml:"product_id"`
	Name           string  `json:"name" yaml:"name"`
	Category       string  `json:"category" yaml:"category"`
	StockQuantity  int64   `json:"stockQuantity" yaml:"stock_quantity"`
	InventoryValue float64 `json:"inventoryValue" yaml:"inventory_value"`
}

type InventorySection struct {
	ProductsByCategory       map[string]int64   `json:"productsByCategory" yaml:"products_by_category"`
	StockByCategory          map[string]int64   `json:"stockByCategory" yaml:"stock_by_category"`
	AverageStockPerProduct   float64            `json:"averageStockPerProduct" yaml:"average_stock_per_product"`
	TotalInventoryValue      float64            `json:"totalInventoryValue" yaml:"total_inventory_value"`
	InventoryValueByCategory map[string]float64 `json:"inventoryValueByCategory" yaml:"inventory_value_by_category"`
	LowStockThreshold        int64              `json:"lowStockThreshold" yaml:"low_stock_threshold"`
	LowStockProducts         int64              `json:"lowStockProducts" yaml:"low_stock_products"`
	LowStockItems            []InventoryItem    `json:"lowStockItems" yaml:"low_stock_items"`
	HighValueItems           []InventoryItem    `json:"highValueItems" yaml:"high_value_items"`
	PriceDistribution        []PriceBucket      `json:"priceDistribution" yaml:"price_distribution"`
}
