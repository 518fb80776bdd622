package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront_back_end/internal/models"
	"storefront_back_end/internal/store"
)

// ProductChanges décrit une modification admin. Un champ nil reste inchangé ;
// StockDelta s'ajoute au stock lu dans la transaction (réassort ou correction).
type ProductChanges struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	ImageURL    *string
	StockDelta  int
}

func (c ProductChanges) editsCatalog() bool {
	return c.Name != nil || c.Description != nil || c.Price != nil || c.ImageURL != nil
}

func (c ProductChanges) validate() error {
	if !c.editsCatalog() && c.StockDelta == 0 {
		return fmt.Errorf("%w : aucune modification", ErrInvalidProduct)
	}
	if c.Name != nil && strings.TrimSpace(*c.Name) == "" {
		return fmt.Errorf("%w : nom vide", ErrInvalidProduct)
	}
	if c.Price != nil && c.Price.IsNegative() {
		return fmt.Errorf("%w : prix négatif", ErrInvalidProduct)
	}
	return nil
}

// UpdateProduct modifie la fiche d'un produit et ajuste son stock dans une seule
// transaction. Le stock est relu puis ajusté : une vente concurrente provoque un
// conflit et un nouvel essai, jamais une écriture à l'aveugle.
func (s *Service) UpdateProduct(ctx context.Context, productID string, changes ProductChanges) (models.Product, error) {
	if err := changes.validate(); err != nil {
		return models.Product{}, err
	}

	var updated models.Product
	err := s.runTx(ctx, "update_product", func(ctx context.Context, tx store.Tx) error {
		p, err := tx.Product(ctx, productID)
		if errors.Is(err, store.ErrNotFound) {
			return &ProductNotFoundError{ProductID: productID, Name: productID}
		}
		if err != nil {
			return err
		}

		if changes.editsCatalog() {
			if changes.Name != nil {
				p.Name = strings.TrimSpace(*changes.Name)
			}
			if changes.Description != nil {
				p.Description = *changes.Description
			}
			if changes.Price != nil {
				p.Price = *changes.Price
			}
			if changes.ImageURL != nil {
				p.ImageURL = *changes.ImageURL
			}
			tx.UpdateProduct(p)
		}

		if changes.StockDelta != 0 {
			if p.Stock+changes.StockDelta < 0 {
				return &InsufficientStockError{
					ProductID: p.ID,
					Name:      p.Name,
					Available: p.Stock,
					Requested: -changes.StockDelta,
				}
			}
			p.Stock += changes.StockDelta
			tx.SetStock(p.ID, p.Stock)
		}

		updated = p
		return nil
	})
	if err != nil {
		return models.Product{}, err
	}

	s.log.Info("✏️ Produit modifié",
		zap.String("product_id", productID),
		zap.Int("stock_delta", changes.StockDelta),
		zap.Int("stock", updated.Stock))

	if changes.StockDelta != 0 {
		kind := models.MovementRestock
		if changes.StockDelta < 0 {
			kind = models.MovementAdjustment
		}
		s.record(ctx, "", kind, []store.StockAdjustment{{ProductID: productID, Delta: changes.StockDelta}})
	}
	return updated, nil
}
