package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product est un article du catalogue. Stock ne descend jamais sous zéro.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" binding:"gte=0"`
	ImageURL    string          `json:"image_url"`
	CreatedAt   time.Time       `json:"created_at"`
}
