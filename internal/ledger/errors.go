package ledger

import (
	"errors"
	"fmt"

	"storefront_back_end/internal/models"
)

var (
	ErrEmptyCart          = errors.New("le panier est vide")
	ErrProductNotFound    = errors.New("produit introuvable")
	ErrInsufficientStock  = errors.New("stock insuffisant")
	ErrInvalidQuantity    = errors.New("quantité invalide")
	ErrInvalidStatus      = errors.New("statut invalide")
	ErrInvalidProduct     = errors.New("modification de produit invalide")
	ErrIllegalTransition  = errors.New("transition de statut interdite")
	ErrOrderNotFound      = errors.New("commande introuvable")
	ErrTransactionFailed  = errors.New("transaction abandonnée")
	ErrCompensationFailed = errors.New("compensation du stock échouée")
)

// domainErrors ne sont jamais rejouées ni converties en ErrTransactionFailed
var domainErrors = []error{
	ErrProductNotFound,
	ErrInsufficientStock,
	ErrInvalidQuantity,
	ErrInvalidProduct,
	ErrIllegalTransition,
	ErrOrderNotFound,
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type ProductNotFoundError struct {
	ProductID string
	Name      string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("produit introuvable : %s", e.Name)
}

func (e *ProductNotFoundError) Unwrap() error { return ErrProductNotFound }

type InsufficientStockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stock insuffisant pour le produit : %s (disponible %d, demandé %d)",
		e.Name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

type InvalidQuantityError struct {
	ProductID string
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantité invalide pour %s : %d", e.ProductID, e.Quantity)
}

func (e *InvalidQuantityError) Unwrap() error { return ErrInvalidQuantity }

type InvalidStatusError struct {
	Value string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("statut invalide : %q", e.Value)
}

func (e *InvalidStatusError) Unwrap() error { return ErrInvalidStatus }

type IllegalTransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("transition interdite : %s → %s", e.From, e.To)
}

func (e *IllegalTransitionError) Unwrap() error { return ErrIllegalTransition }

// CompensationFailedError signale que le statut est enregistré mais que le
// stock n'a pas pu être restitué.
type CompensationFailedError struct {
	OrderID string
	Err     error
}

func (e *CompensationFailedError) Error() string {
	return fmt.Sprintf("compensation du stock échouée pour la commande %s : %v", e.OrderID, e.Err)
}

func (e *CompensationFailedError) Unwrap() []error {
	return []error{ErrCompensationFailed, e.Err}
}
