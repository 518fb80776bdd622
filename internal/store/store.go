// Package store définit la primitive de persistance utilisée par le ledger :
// lectures sur instantané, écritures conditionnelles et commit tout-ou-rien.
package store

import (
	"context"
	"errors"
	"time"

	"storefront_back_end/internal/models"
)

var (
	// ErrConflict : un document lu pendant la transaction a changé avant le commit.
	// Rien n'a été écrit, la transaction peut être rejouée.
	ErrConflict = errors.New("store: conflit d'écriture concurrente")
	ErrNotFound = errors.New("store: document introuvable")
	ErrExists   = errors.New("store: document déjà existant")
)

// Tx est une unité de travail. Les lectures voient un instantané cohérent ;
// les écritures sont mises en tampon et appliquées seulement au commit.
type Tx interface {
	Product(ctx context.Context, id string) (models.Product, error)
	Order(ctx context.Context, id string) (models.Order, error)
	SetStock(productID string, stock int)
	// UpdateProduct réécrit les champs catalogue (nom, description, prix, image).
	// Le stock n'est jamais touché : il passe par SetStock après lecture.
	UpdateProduct(p models.Product)
	PutOrder(order models.Order)
	DeleteOrder(orderID string)
}

// TxFunc est le corps d'une transaction. Une erreur retournée annule tout.
type TxFunc func(ctx context.Context, tx Tx) error

// StockAdjustment ajoute Delta au stock d'un produit
type StockAdjustment struct {
	ProductID string
	Delta     int
}

type Store interface {
	// Transact exécute fn une seule fois puis commit. Retourne ErrConflict si un
	// document lu a été modifié entre-temps ; la boucle de retry appartient à l'appelant.
	Transact(ctx context.Context, fn TxFunc) error

	// RestoreStock applique tous les ajustements en un seul lot atomique.
	// Les produits absents sont ignorés et retournés dans missing.
	RestoreStock(ctx context.Context, adjustments []StockAdjustment) (missing []string, err error)

	Product(ctx context.Context, id string) (models.Product, error)
	Products(ctx context.Context) ([]models.Product, error)
	// CreateProduct échoue avec ErrExists si l'ID est déjà pris : le stock d'un
	// produit existant n'est jamais écrasé.
	CreateProduct(ctx context.Context, p models.Product) error
	DeleteProduct(ctx context.Context, id string) error

	Order(ctx context.Context, id string) (models.Order, error)
	// Orders retourne les commandes, les plus récentes d'abord
	Orders(ctx context.Context) ([]models.Order, error)
	// OrdersCreatedBefore retourne au plus limit commandes au statut status créées
	// avant cutoff, les plus anciennes d'abord
	OrdersCreatedBefore(ctx context.Context, cutoff time.Time, status models.OrderStatus, limit int) ([]models.Order, error)

	Ping(ctx context.Context) error
}
