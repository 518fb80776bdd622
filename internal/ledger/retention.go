package ledger

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"storefront_back_end/internal/models"
	"storefront_back_end/internal/store"
)

// Archiver conserve une copie d'une commande avant sa suppression
type Archiver interface {
	Archive(ctx context.Context, order models.Order) error
}

// WithRetention règle l'âge au-delà duquel une commande terminée est purgée
// et le nombre maximum de suppressions par passage.
func WithRetention(age time.Duration, limit int) Option {
	return func(s *Service) {
		if age > 0 {
			s.retention = age
		}
		if limit > 0 {
			s.sweepMax = limit
		}
	}
}

func WithArchiver(a Archiver) Option { return func(s *Service) { s.archive = a } }

// SweepCompleted supprime les commandes "done" plus vieilles que la rétention.
// Chaque commande est relue dans la transaction de suppression : une commande
// modifiée entre-temps n'est pas touchée.
func (s *Service) SweepCompleted(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.retention)

	candidates, err := s.sweepCandidates(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		s.log.Info("🧹 Aucune commande terminée à purger", zap.Time("cutoff", cutoff))
		return 0, nil
	}

	ids := make([]string, 0, len(candidates))
	for _, o := range candidates {
		if s.archive != nil {
			if err := s.archive.Archive(ctx, o); err != nil {
				s.log.Warn("⚠️ Archivage impossible, commande conservée",
					zap.String("order_id", o.ID), zap.Error(err))
				continue
			}
		}
		ids = append(ids, o.ID)
	}

	var deleted int
	err = s.runTx(ctx, "sweep", func(ctx context.Context, tx store.Tx) error {
		deleted = 0
		for _, id := range ids {
			o, err := tx.Order(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if o.Status != models.StatusDone || !o.CreatedAt.Before(cutoff) {
				continue
			}
			tx.DeleteOrder(id)
			deleted++
		}
		return nil
	})
	if err != nil {
		s.log.Error("❌ Purge des commandes échouée", zap.Error(err))
		return 0, err
	}

	s.metrics.OrdersSwept.Add(float64(deleted))
	s.log.Info("🧹 Commandes terminées purgées",
		zap.Int("deleted", deleted), zap.Time("cutoff", cutoff))
	return deleted, nil
}

// sweepCandidates lit directement les commandes "done" : les commandes anciennes
// restées à un autre statut ne prennent jamais la place d'une commande purgeable
func (s *Service) sweepCandidates(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	return s.store.OrdersCreatedBefore(ctx, cutoff, models.StatusDone, s.sweepMax)
}
