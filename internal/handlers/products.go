package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront_back_end/internal/ledger"
	"storefront_back_end/internal/logger"
	"storefront_back_end/internal/models"
	"storefront_back_end/internal/services"
	"storefront_back_end/internal/store"
)

// ListProducts - GET /api/products
func (h *Handler) ListProducts(c *gin.Context) {
	products, err := h.catalog.Products(c.Request.Context())
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "total": len(products)})
}

// GetProduct - GET /api/products/:id
func (h *Handler) GetProduct(c *gin.Context) {
	p, err := h.catalog.Product(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, p)
}

// CreateProduct - POST /api/admin/products
// Création seule : un ID existant est refusé, le stock n'est jamais écrasé ici.
func (h *Handler) CreateProduct(c *gin.Context) {
	var p models.Product
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Produit invalide", "details": err.Error()})
		return
	}
	if p.Price.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Le prix doit être positif"})
		return
	}
	if p.ID == "" {
		p.ID = h.newID()
	}
	p.CreatedAt = h.now()

	err := h.catalog.CreateProduct(c.Request.Context(), p)
	if errors.Is(err, store.ErrExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "Un produit avec cet ID existe déjà"})
		return
	}
	if err != nil {
		respondError(c, err, nil)
		return
	}

	logger.FromGin(c).Info("✅ Produit créé", zap.String("product_id", p.ID), zap.Int("stock", p.Stock))
	c.JSON(http.StatusCreated, p)
}

type updateProductRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	ImageURL    *string          `json:"image_url"`
	StockDelta  int              `json:"stock_delta"`
}

// UpdateProduct - PATCH /api/admin/products/:id
// Le stock ne s'écrit pas directement : stock_delta s'ajoute (réassort) ou se
// retranche (correction) au stock courant.
func (h *Handler) UpdateProduct(c *gin.Context) {
	var req updateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Modification invalide", "details": err.Error()})
		return
	}

	p, err := h.ledger.UpdateProduct(c.Request.Context(), c.Param("id"), ledger.ProductChanges{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		ImageURL:    req.ImageURL,
		StockDelta:  req.StockDelta,
	})
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, p)
}

// DeleteProduct - DELETE /api/admin/products/:id
func (h *Handler) DeleteProduct(c *gin.Context) {
	if err := h.catalog.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Produit supprimé"})
}

// ProductMovements - GET /api/admin/products/:id/movements?limit=50
func (h *Handler) ProductMovements(c *gin.Context) {
	if h.movements == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Journal des mouvements non configuré"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	movements, err := h.movements.List(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"movements": movements, "total": len(movements)})
}

// ArchiveLink - GET /api/admin/archives/*key
func (h *Handler) ArchiveLink(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Archive non configurée"})
		return
	}

	key := strings.TrimPrefix(c.Param("key"), "/")
	link, err := h.archive.SignedURL(c.Request.Context(), key, 15*time.Minute)
	if errors.Is(err, services.ErrArchiveNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Archive introuvable"})
		return
	}
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": link, "expires_in": int((15 * time.Minute).Seconds())})
}
