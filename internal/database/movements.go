package database

import (
	"context"
	"time"

	"github.com/gocql/gocql"

	"storefront_back_end/internal/models"
)

const (
	insertMovementQuery = `INSERT INTO stock_movements (product_id, id, order_id, type, quantity, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	selectMovementsQuery = `SELECT id, product_id, order_id, type, quantity, created_at
		FROM stock_movements WHERE product_id = ? LIMIT ?`
)

// MovementJournal écrit l'historique des mouvements de stock dans ScyllaDB.
// Ce n'est pas la source de vérité du stock, seulement une trace.
type MovementJournal struct {
	session *gocql.Session
}

func NewMovementJournal(session *gocql.Session) *MovementJournal {
	return &MovementJournal{session: session}
}

// Record insère tous les mouvements d'une commande dans un seul batch
func (j *MovementJournal) Record(ctx context.Context, movements []models.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}
	batch := j.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	for _, m := range withIDs(movements) {
		id, err := gocql.ParseUUID(m.ID)
		if err != nil {
			return err
		}
		batch.Query(insertMovementQuery, m.ProductID, id, m.OrderID, m.Type, m.Quantity, m.CreatedAt)
	}
	return j.session.ExecuteBatch(batch)
}

// List retourne les derniers mouvements d'un produit, les plus récents d'abord
func (j *MovementJournal) List(ctx context.Context, productID string, limit int) ([]models.StockMovement, error) {
	iter := j.session.Query(selectMovementsQuery, productID, limit).WithContext(ctx).Iter()

	var (
		movements []models.StockMovement
		m         models.StockMovement
		id        gocql.UUID
	)
	for iter.Scan(&id, &m.ProductID, &m.OrderID, &m.Type, &m.Quantity, &m.CreatedAt) {
		m.ID = id.String()
		movements = append(movements, m)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return movements, nil
}

// withIDs attribue un TimeUUID aux mouvements qui n'en ont pas
func withIDs(movements []models.StockMovement) []models.StockMovement {
	out := make([]models.StockMovement, len(movements))
	for i, m := range movements {
		if m.ID == "" {
			if m.CreatedAt.IsZero() {
				m.CreatedAt = time.Now().UTC()
			}
			m.ID = gocql.UUIDFromTime(m.CreatedAt).String()
		}
		out[i] = m
	}
	return out
}
