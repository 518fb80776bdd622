package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus est l'état d'une commande. Ensemble fermé : toute valeur lue depuis
// l'extérieur passe par ParseOrderStatus.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusPreparing OrderStatus = "preparing"
	StatusShipped   OrderStatus = "shipped"
	StatusDone      OrderStatus = "done"
	StatusCancelled OrderStatus = "cancelled"
)

// rang dans le cycle de vie normal ; cancelled est hors séquence
var statusRank = map[OrderStatus]int{
	StatusPending:   1,
	StatusPaid:      2,
	StatusPreparing: 3,
	StatusShipped:   4,
	StatusDone:      5,
}

// AllStatuses liste les statuts exposés au sélecteur admin
var AllStatuses = []OrderStatus{
	StatusPending,
	StatusPaid,
	StatusPreparing,
	StatusShipped,
	StatusDone,
	StatusCancelled,
}

// ParseOrderStatus convertit une valeur libre en statut connu
func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("statut de commande inconnu: %q", s)
	}
	return st, nil
}

func (s OrderStatus) Valid() bool {
	if s == StatusCancelled {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// Rank donne la position dans le cycle de vie ; 0 pour cancelled ou inconnu
func (s OrderStatus) Rank() int {
	return statusRank[s]
}

// IsTerminal indique qu'aucune transition ne peut suivre
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// CanTransitionTo applique les règles du cycle de vie :
// avancer dans pending → paid → preparing → shipped → done, ou annuler
// depuis pending/paid. Jamais de retour en arrière.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if !s.Valid() || !next.Valid() || s.IsTerminal() {
		return false
	}
	if next == StatusCancelled {
		return s == StatusPending || s == StatusPaid
	}
	return statusRank[next] > statusRank[s]
}

type ClientInfo struct {
	Name    string `json:"name" binding:"required"`
	Phone   string `json:"phone" binding:"required"`
	Address string `json:"address" binding:"required"`
	Email   string `json:"email,omitempty"`
}

// OrderItem est une copie figée du produit au moment de l'achat
type OrderItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Issue du dernier paiement Stripe reçu pour une commande
const (
	PaymentSucceeded = "succeeded"
	PaymentFailed    = "failed"
)

type Order struct {
	ID              string          `json:"id"`
	Client          ClientInfo      `json:"client"`
	Items           []OrderItem     `json:"items"`
	Total           decimal.Decimal `json:"total"`
	Status          OrderStatus     `json:"status"`
	PaymentIntentID string          `json:"payment_intent_id,omitempty"`
	PaymentStatus   string          `json:"payment_status,omitempty"`
	PaymentError    string          `json:"payment_error,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       *time.Time      `json:"updated_at,omitempty"`
}

// CalcTotal calcule Σ prix × quantité
func CalcTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}
