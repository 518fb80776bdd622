package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MovementSale       = "sale"
	MovementReturn     = "return"
	MovementRestock    = "restock"
	MovementAdjustment = "adjustment" // correction à la baisse par un admin
)

// StockMovement trace un mouvement de stock lié à une commande (journal ScyllaDB)
type StockMovement struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	OrderID   string    `json:"order_id,omitempty"` // vide pour un réassort
	Type      string    `json:"type"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats regroupe les statistiques du tableau de bord admin
type Stats struct {
	TotalOrders        int                 `json:"total_orders"`
	TotalProducts      int                 `json:"total_products"`
	TotalRevenue       decimal.Decimal     `json:"total_revenue"`
	StatusCounts       map[OrderStatus]int `json:"status_counts"`
	LowStockProducts   int                 `json:"low_stock_products"`
	OutOfStockProducts int                 `json:"out_of_stock_products"`
}
