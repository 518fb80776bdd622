package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront_back_end/internal/ledger"
	"storefront_back_end/internal/logger"
	"storefront_back_end/internal/models"
)

type createOrderRequest struct {
	Client models.ClientInfo `json:"client" binding:"required"`
	Items  []models.CartLine `json:"items"`
}

// CreateOrder - POST /api/orders
func (h *Handler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Requête invalide", "details": err.Error()})
		return
	}

	order, err := h.ledger.CreateOrder(c.Request.Context(), req.Client, req.Items)
	if err != nil {
		respondError(c, err, nil)
		return
	}

	logger.FromGin(c).Info("🛒 Commande passée", zap.String("order_id", order.ID))
	c.JSON(http.StatusCreated, order)
}

// GetOrder - GET /api/orders/:id
func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.ledger.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, order)
}

// ListOrders - GET /api/admin/orders[?status=paid]
func (h *Handler) ListOrders(c *gin.Context) {
	orders, err := h.ledger.ListOrders(c.Request.Context())
	if err != nil {
		respondError(c, err, nil)
		return
	}

	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseOrderStatus(raw)
		if err != nil {
			respondError(c, &ledger.InvalidStatusError{Value: raw}, nil)
			return
		}
		filtered := orders[:0]
		for _, o := range orders {
			if o.Status == status {
				filtered = append(filtered, o)
			}
		}
		orders = filtered
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders, "total": len(orders)})
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateOrderStatus - PATCH /api/admin/orders/:id/status
// En cas d'échec, la commande telle qu'enregistrée est renvoyée avec l'erreur.
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	orderID := c.Param("id")

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Statut requis"})
		return
	}

	status, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		h.statusFailure(c, orderID, &ledger.InvalidStatusError{Value: req.Status})
		return
	}

	order, err := h.ledger.SetStatus(c.Request.Context(), orderID, status)
	if err != nil {
		h.statusFailure(c, orderID, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Statut mis à jour", "order": order})
}

func (h *Handler) statusFailure(c *gin.Context, orderID string, err error) {
	current, getErr := h.ledger.GetOrder(c.Request.Context(), orderID)
	if getErr != nil {
		respondError(c, err, nil)
		return
	}
	respondError(c, err, gin.H{"order": current})
}

// Stats - GET /api/admin/stats
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.ledger.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, stats)
}
