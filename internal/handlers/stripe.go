package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"
	"go.uber.org/zap"

	"storefront_back_end/internal/ledger"
	"storefront_back_end/internal/logger"
	"storefront_back_end/internal/models"
)

const maxWebhookBody = 65536

// StripeWebhook - POST /api/webhooks/stripe
// Un paiement réussi fait passer la commande de metadata.order_id à "paid".
// Seules les erreurs temporaires renvoient un 5xx, pour que Stripe réessaie.
func (h *Handler) StripeWebhook(c *gin.Context) {
	log := logger.FromGin(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn("❌ Événement Stripe trop volumineux", zap.Int64("limit", tooLarge.Limit))
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Payload trop volumineux"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Échec lecture body"})
		return
	}

	var event stripe.Event
	if h.webhookSecret == "" {
		log.Warn("⚠️ Pas de STRIPE_WEBHOOK_SECRET : signature non vérifiée")
		if err := json.Unmarshal(payload, &event); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "JSON invalide"})
			return
		}
	} else {
		event, err = webhook.ConstructEventWithOptions(payload, c.GetHeader("Stripe-Signature"), h.webhookSecret,
			webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
		if err != nil {
			log.Warn("❌ Signature Stripe invalide", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "Signature invalide"})
			return
		}
	}

	log.Info("📥 Événement Stripe reçu", zap.String("type", string(event.Type)), zap.String("event_id", event.ID))

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		h.paymentSucceeded(c, event)
	case stripe.EventTypePaymentIntentPaymentFailed:
		h.paymentFailed(c, event)
	default:
		c.JSON(http.StatusOK, gin.H{"received": true, "ignored": true})
	}
}

func (h *Handler) paymentSucceeded(c *gin.Context, event stripe.Event) {
	log := logger.FromGin(c)

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "PaymentIntent illisible"})
		return
	}
	orderID := pi.Metadata["order_id"]
	if orderID == "" {
		log.Warn("⚠️ PaymentIntent sans order_id", zap.String("payment_intent", pi.ID))
		c.JSON(http.StatusOK, gin.H{"received": true, "ignored": true})
		return
	}

	order, err := h.ledger.SetStatus(c.Request.Context(), orderID, models.StatusPaid,
		ledger.WithPaymentReference(pi.ID))
	switch {
	case err == nil:
		log.Info("✅ Paiement confirmé", zap.String("order_id", orderID), zap.String("payment_intent", pi.ID))
		c.JSON(http.StatusOK, gin.H{"received": true, "status": order.Status})
	case errors.Is(err, ledger.ErrTransactionFailed):
		respondError(c, err, nil)
	default:
		// commande inconnue ou déjà plus loin dans le cycle : rien à rejouer
		log.Warn("⚠️ Paiement non appliqué", zap.String("order_id", orderID), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"received": true, "applied": false})
	}
}

func (h *Handler) paymentFailed(c *gin.Context, event stripe.Event) {
	log := logger.FromGin(c)

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "PaymentIntent illisible"})
		return
	}
	orderID := pi.Metadata["order_id"]
	log.Warn("💳 Paiement échoué", zap.String("payment_intent", pi.ID), zap.String("order_id", orderID))
	if orderID == "" {
		c.JSON(http.StatusOK, gin.H{"received": true, "ignored": true})
		return
	}

	reason := "Paiement refusé"
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		reason = pi.LastPaymentError.Msg
	}

	_, applied, err := h.ledger.RecordPaymentFailure(c.Request.Context(), orderID, pi.ID, reason)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"received": true, "applied": applied})
	case errors.Is(err, ledger.ErrTransactionFailed):
		respondError(c, err, nil)
	default:
		log.Warn("⚠️ Échec de paiement non enregistré", zap.String("order_id", orderID), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"received": true, "applied": false})
	}
}
