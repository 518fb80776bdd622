package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"storefront_back_end/internal/models"
	"storefront_back_end/internal/store"
)

// RecordPaymentFailure note l'échec d'un paiement sur la commande sans changer
// son statut. Seule une commande encore en attente est modifiée : un échec qui
// arrive après un paiement réussi est périmé. applied indique si la commande a
// été écrite.
func (s *Service) RecordPaymentFailure(ctx context.Context, orderID, paymentIntentID, reason string) (order models.Order, applied bool, err error) {
	err = s.runTx(ctx, "payment_failed", func(ctx context.Context, tx store.Tx) error {
		current, err := tx.Order(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w : %s", ErrOrderNotFound, orderID)
		}
		if err != nil {
			return err
		}

		order, applied = current, false
		if current.Status != models.StatusPending {
			return nil
		}

		now := s.now()
		order.PaymentStatus = models.PaymentFailed
		order.PaymentIntentID = paymentIntentID
		order.PaymentError = reason
		order.UpdatedAt = &now
		tx.PutOrder(order)
		applied = true
		return nil
	})
	if err != nil {
		return models.Order{}, false, err
	}

	if applied {
		s.log.Warn("💳 Échec de paiement enregistré",
			zap.String("order_id", orderID),
			zap.String("payment_intent", paymentIntentID),
			zap.String("reason", reason))
	}
	return order, applied, nil
}
