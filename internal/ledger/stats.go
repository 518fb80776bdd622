package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"storefront_back_end/internal/models"
)

// LowStockThreshold : un produit avec 0 < stock <= seuil est signalé
const LowStockThreshold = 5

// Stats agrège le tableau de bord admin. Le chiffre d'affaires ne compte que
// les commandes paid et done.
func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	orders, err := s.store.Orders(ctx)
	if err != nil {
		return models.Stats{}, err
	}
	products, err := s.store.Products(ctx)
	if err != nil {
		return models.Stats{}, err
	}

	stats := models.Stats{
		TotalOrders:   len(orders),
		TotalProducts: len(products),
		TotalRevenue:  decimal.Zero,
		StatusCounts:  make(map[models.OrderStatus]int, len(models.AllStatuses)),
	}
	for _, st := range models.AllStatuses {
		stats.StatusCounts[st] = 0
	}

	for _, o := range orders {
		stats.StatusCounts[o.Status]++
		if o.Status == models.StatusPaid || o.Status == models.StatusDone {
			stats.TotalRevenue = stats.TotalRevenue.Add(o.Total)
		}
	}
	for _, p := range products {
		switch {
		case p.Stock == 0:
			stats.OutOfStockProducts++
		case p.Stock <= LowStockThreshold:
			stats.LowStockProducts++
		}
	}
	return stats, nil
}
