package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront_back_end/internal/ledger"
	"storefront_back_end/internal/logger"
	"storefront_back_end/internal/models"
	"storefront_back_end/internal/store"
)

// MovementLister lit le journal des mouvements de stock
type MovementLister interface {
	List(ctx context.Context, productID string, limit int) ([]models.StockMovement, error)
}

// ArchiveLinker génère un lien de téléchargement vers une commande archivée
type ArchiveLinker interface {
	SignedURL(ctx context.Context, key string, duration time.Duration) (string, error)
}

type Handler struct {
	ledger        *ledger.Service
	catalog       store.Store
	movements     MovementLister
	archive       ArchiveLinker
	webhookSecret string
	now           func() time.Time
	newID         func() string
}

type Option func(*Handler)

func WithMovements(m MovementLister) Option { return func(h *Handler) { h.movements = m } }

func WithArchive(a ArchiveLinker) Option { return func(h *Handler) { h.archive = a } }

func WithWebhookSecret(secret string) Option { return func(h *Handler) { h.webhookSecret = secret } }

func New(l *ledger.Service, catalog store.Store, opts ...Option) *Handler {
	h := &Handler{
		ledger:  l,
		catalog: catalog,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// respondError traduit les erreurs du ledger en réponses HTTP
func respondError(c *gin.Context, err error, extra gin.H) {
	status, body := errorBody(err)
	for k, v := range extra {
		body[k] = v
	}
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("❌ Erreur serveur", zap.Error(err))
	}
	c.JSON(status, body)
}

func errorBody(err error) (int, gin.H) {
	var (
		stockErr *ledger.InsufficientStockError
		nfErr    *ledger.ProductNotFoundError
	)
	switch {
	case errors.As(err, &stockErr):
		return http.StatusBadRequest, gin.H{
			"error":      err.Error(),
			"code":       "insufficient_stock",
			"product":    stockErr.Name,
			"product_id": stockErr.ProductID,
			"available":  stockErr.Available,
			"requested":  stockErr.Requested,
		}
	case errors.As(err, &nfErr):
		return http.StatusNotFound, gin.H{
			"error":   err.Error(),
			"code":    "product_not_found",
			"product": nfErr.Name,
		}
	case errors.Is(err, ledger.ErrEmptyCart):
		return http.StatusBadRequest, gin.H{"error": err.Error(), "code": "empty_cart"}
	case errors.Is(err, ledger.ErrInvalidQuantity):
		return http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_quantity"}
	case errors.Is(err, ledger.ErrInvalidStatus):
		return http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_status"}
	case errors.Is(err, ledger.ErrInvalidProduct):
		return http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_product"}
	case errors.Is(err, ledger.ErrOrderNotFound):
		return http.StatusNotFound, gin.H{"error": "Commande introuvable", "code": "order_not_found"}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, gin.H{"error": "Produit introuvable", "code": "product_not_found"}
	case errors.Is(err, ledger.ErrIllegalTransition):
		return http.StatusConflict, gin.H{"error": err.Error(), "code": "illegal_transition"}
	case errors.Is(err, ledger.ErrCompensationFailed):
		return http.StatusInternalServerError, gin.H{
			"error": "Statut enregistré mais le stock n'a pas pu être restitué",
			"code":  "compensation_failed",
		}
	case errors.Is(err, ledger.ErrTransactionFailed):
		return http.StatusServiceUnavailable, gin.H{
			"error": "Service momentanément indisponible, réessayez",
			"code":  "transaction_failed",
		}
	default:
		return http.StatusInternalServerError, gin.H{"error": "Erreur serveur"}
	}
}
