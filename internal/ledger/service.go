// Package ledger garde la cohérence entre commandes et stock : création
// transactionnelle, transitions de statut et restitution du stock.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront_back_end/internal/metrics"
	"storefront_back_end/internal/models"
	"storefront_back_end/internal/store"
)

// Notifier est prévenu après commit. Ses erreurs sont journalisées, jamais remontées.
type Notifier interface {
	OrderCreated(ctx context.Context, order models.Order) error
	StatusChanged(ctx context.Context, order models.Order, from models.OrderStatus) error
}

// MovementRecorder tient le journal des mouvements de stock
type MovementRecorder interface {
	Record(ctx context.Context, movements []models.StockMovement) error
}

type Service struct {
	store       store.Store
	log         *zap.Logger
	notifier    Notifier
	movements   MovementRecorder
	metrics     *metrics.Ledger
	now         func() time.Time
	newID       func() string
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration

	retention time.Duration
	sweepMax  int
	archive   Archiver
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithMovements(m MovementRecorder) Option { return func(s *Service) { s.movements = m } }

func WithMetrics(m *metrics.Ledger) Option { return func(s *Service) { s.metrics = m } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithIDGenerator(fn func() string) Option { return func(s *Service) { s.newID = fn } }

// WithMaxAttempts borne le nombre de tentatives par transaction (minimum 1)
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithBackoff règle l'attente entre deux tentatives ; base à 0 désactive l'attente
func WithBackoff(base, max time.Duration) Option {
	return func(s *Service) {
		s.backoffBase = base
		s.backoffMax = max
	}
}

func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:       st,
		log:         zap.NewNop(),
		metrics:     metrics.NewLedger(),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
		maxAttempts: 5,
		backoffBase: 10 * time.Millisecond,
		backoffMax:  200 * time.Millisecond,
		retention:   30 * 24 * time.Hour,
		sweepMax:    100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// runTx rejoue fn tant que le store signale un conflit. Les erreurs métier
// passent telles quelles ; tout le reste devient ErrTransactionFailed.
func (s *Service) runTx(ctx context.Context, op string, fn store.TxFunc) error {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		s.metrics.TransactionAttempts.Inc()

		err := s.store.Transact(ctx, fn)
		if err == nil {
			return nil
		}
		if isDomainError(err) {
			return err
		}
		if !errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("%w (%s) : %w", ErrTransactionFailed, op, err)
		}

		s.metrics.TransactionConflicts.Inc()
		lastErr = err
		s.log.Debug("conflit de transaction, nouvelle tentative",
			zap.String("op", op), zap.Int("attempt", attempt))

		if attempt < s.maxAttempts {
			if err := s.wait(ctx, attempt); err != nil {
				return fmt.Errorf("%w (%s) : %w", ErrTransactionFailed, op, err)
			}
		}
	}
	return fmt.Errorf("%w (%s) : %d tentatives : %w", ErrTransactionFailed, op, s.maxAttempts, lastErr)
}

// wait applique un backoff exponentiel avec jitter : entre d/2 et d
func (s *Service) wait(ctx context.Context, attempt int) error {
	if s.backoffBase <= 0 {
		return ctx.Err()
	}
	d := s.backoffBase << (attempt - 1)
	if s.backoffMax > 0 && (d > s.backoffMax || d <= 0) {
		d = s.backoffMax
	}
	d = d/2 + rand.N(d/2+1)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CreateOrder vérifie le stock de chaque ligne et enregistre la commande avec
// les décréments, le tout dans une seule transaction.
func (s *Service) CreateOrder(ctx context.Context, client models.ClientInfo, lines []models.CartLine) (models.Order, error) {
	if len(lines) == 0 {
		s.metrics.OrderFailures.WithLabelValues("empty_cart").Inc()
		return models.Order{}, ErrEmptyCart
	}
	for _, line := range lines {
		if line.Quantity < 1 {
			s.metrics.OrderFailures.WithLabelValues("invalid_quantity").Inc()
			return models.Order{}, &InvalidQuantityError{ProductID: line.ProductID, Quantity: line.Quantity}
		}
	}

	orderID := s.newID()
	var (
		order    models.Order
		reserved []store.StockAdjustment
	)
	err := s.runTx(ctx, "create_order", func(ctx context.Context, tx store.Tx) error {
		var err error
		order, reserved, err = s.reserve(ctx, tx, orderID, client, lines)
		return err
	})
	if err != nil {
		s.metrics.OrderFailures.WithLabelValues(failureReason(err)).Inc()
		s.log.Warn("❌ Commande refusée", zap.String("order_id", orderID), zap.Error(err))
		return models.Order{}, err
	}

	s.metrics.OrdersCreated.Inc()
	s.log.Info("✅ Commande créée",
		zap.String("order_id", order.ID),
		zap.String("total", order.Total.StringFixed(2)),
		zap.Int("items", len(order.Items)))

	s.record(ctx, order.ID, models.MovementSale, reserved)
	if s.notifier != nil {
		if err := s.notifier.OrderCreated(ctx, order); err != nil {
			s.log.Warn("⚠️ Notification de commande non envoyée", zap.String("order_id", order.ID), zap.Error(err))
		}
	}
	return order, nil
}

// reserve est le corps de la transaction de création. Les lignes sont visitées
// dans l'ordre ; la quantité demandée est cumulée par produit. Rien n'est écrit
// tant qu'une ligne échoue.
func (s *Service) reserve(ctx context.Context, tx store.Tx, orderID string, client models.ClientInfo, lines []models.CartLine) (models.Order, []store.StockAdjustment, error) {
	snapshots := make(map[string]models.Product, len(lines))
	requested := make(map[string]int, len(lines))
	var visit []string
	items := make([]models.OrderItem, 0, len(lines))

	for _, line := range lines {
		p, seen := snapshots[line.ProductID]
		if !seen {
			var err error
			p, err = tx.Product(ctx, line.ProductID)
			if errors.Is(err, store.ErrNotFound) {
				return models.Order{}, nil, &ProductNotFoundError{ProductID: line.ProductID, Name: line.DisplayName()}
			}
			if err != nil {
				return models.Order{}, nil, err
			}
			snapshots[line.ProductID] = p
			visit = append(visit, line.ProductID)
		}

		requested[line.ProductID] += line.Quantity
		if p.Stock < requested[line.ProductID] {
			name := p.Name
			if name == "" {
				name = line.DisplayName()
			}
			return models.Order{}, nil, &InsufficientStockError{
				ProductID: p.ID,
				Name:      name,
				Available: p.Stock,
				Requested: requested[line.ProductID],
			}
		}

		items = append(items, models.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  line.Quantity,
		})
	}

	order := models.Order{
		ID:        orderID,
		Client:    client,
		Items:     items,
		Total:     models.CalcTotal(items),
		Status:    models.StatusPending,
		CreatedAt: s.now(),
	}
	tx.PutOrder(order)

	reserved := make([]store.StockAdjustment, 0, len(visit))
	for _, id := range visit {
		tx.SetStock(id, snapshots[id].Stock-requested[id])
		reserved = append(reserved, store.StockAdjustment{ProductID: id, Delta: requested[id]})
	}
	return order, reserved, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrTransactionFailed):
		return "transaction_failed"
	default:
		return "other"
	}
}

type statusOptions struct {
	paymentRef string
}

type StatusOption func(*statusOptions)

// WithPaymentReference attache l'identifiant de paiement lors du passage du statut
func WithPaymentReference(ref string) StatusOption {
	return func(o *statusOptions) { o.paymentRef = ref }
}

// SetStatus change le statut d'une commande si la transition est permise, puis
// lance la compensation. Un statut identique ne produit aucune écriture.
// En cas de CompensationFailedError la commande retournée porte le nouveau statut.
func (s *Service) SetStatus(ctx context.Context, orderID string, status models.OrderStatus, opts ...StatusOption) (models.Order, error) {
	if !status.Valid() {
		return models.Order{}, &InvalidStatusError{Value: string(status)}
	}
	var o statusOptions
	for _, opt := range opts {
		opt(&o)
	}

	var (
		before, after models.Order
		changed       bool
	)
	err := s.runTx(ctx, "set_status", func(ctx context.Context, tx store.Tx) error {
		current, err := tx.Order(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w : %s", ErrOrderNotFound, orderID)
		}
		if err != nil {
			return err
		}

		before, after, changed = current, current, false
		if current.Status == status {
			return nil
		}
		if !current.Status.CanTransitionTo(status) {
			return &IllegalTransitionError{From: current.Status, To: status}
		}

		now := s.now()
		after.Status = status
		after.UpdatedAt = &now
		if o.paymentRef != "" {
			after.PaymentIntentID = o.paymentRef
			after.PaymentStatus = models.PaymentSucceeded
			after.PaymentError = ""
		}
		tx.PutOrder(after)
		changed = true
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}
	if !changed {
		return after, nil
	}

	s.log.Info("📦 Statut de commande mis à jour",
		zap.String("order_id", orderID),
		zap.String("from", string(before.Status)),
		zap.String("to", string(status)))

	compErr := s.Compensate(ctx, after, before.Status, status)

	if s.notifier != nil {
		if err := s.notifier.StatusChanged(ctx, after, before.Status); err != nil {
			s.log.Warn("⚠️ Notification de statut non envoyée", zap.String("order_id", orderID), zap.Error(err))
		}
	}
	return after, compErr
}

// Compensate applique l'effet stock d'une transition déjà enregistrée.
// Seule l'annulation depuis pending ou paid restitue le stock ; le décrément
// fait à la création reste la seule réservation.
func (s *Service) Compensate(ctx context.Context, order models.Order, from, to models.OrderStatus) error {
	if to != models.StatusCancelled || (from != models.StatusPending && from != models.StatusPaid) {
		return nil
	}

	adjustments := aggregate(order.Items)
	missing, err := s.store.RestoreStock(ctx, adjustments)
	if err != nil {
		s.metrics.Compensations.WithLabelValues("failed").Inc()
		s.log.Error("❌ Restitution du stock échouée",
			zap.String("order_id", order.ID),
			zap.String("from", string(from)),
			zap.Error(err))
		return &CompensationFailedError{OrderID: order.ID, Err: err}
	}

	skipped := make(map[string]bool, len(missing))
	for _, id := range missing {
		skipped[id] = true
		s.log.Warn("⚠️ Produit disparu, stock non restitué",
			zap.String("order_id", order.ID), zap.String("product_id", id))
	}
	restored := make([]store.StockAdjustment, 0, len(adjustments))
	for _, adj := range adjustments {
		if !skipped[adj.ProductID] {
			restored = append(restored, adj)
		}
	}

	s.metrics.Compensations.WithLabelValues("restored").Inc()
	s.log.Info("🔁 Stock restitué",
		zap.String("order_id", order.ID),
		zap.Int("products", len(restored)),
		zap.Int("skipped", len(missing)))

	s.record(ctx, order.ID, models.MovementReturn, restored)
	return nil
}

// aggregate regroupe les quantités par produit en gardant l'ordre d'apparition
func aggregate(items []models.OrderItem) []store.StockAdjustment {
	index := make(map[string]int, len(items))
	var out []store.StockAdjustment
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			out[i].Delta += item.Quantity
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, store.StockAdjustment{ProductID: item.ProductID, Delta: item.Quantity})
	}
	return out
}

// record écrit le journal au mieux : un échec n'annule rien
func (s *Service) record(ctx context.Context, orderID, kind string, adjustments []store.StockAdjustment) {
	if s.movements == nil || len(adjustments) == 0 {
		return
	}
	now := s.now()
	movements := make([]models.StockMovement, 0, len(adjustments))
	for _, adj := range adjustments {
		movements = append(movements, models.StockMovement{
			ProductID: adj.ProductID,
			OrderID:   orderID,
			Type:      kind,
			Quantity:  adj.Delta,
			CreatedAt: now,
		})
	}
	if err := s.movements.Record(ctx, movements); err != nil {
		s.log.Warn("⚠️ Journal des mouvements non écrit",
			zap.String("order_id", orderID), zap.String("type", kind), zap.Error(err))
	}
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (models.Order, error) {
	o, err := s.store.Order(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return models.Order{}, fmt.Errorf("%w : %s", ErrOrderNotFound, orderID)
	}
	return o, err
}

// ListOrders retourne toutes les commandes, les plus récentes d'abord
func (s *Service) ListOrders(ctx context.Context) ([]models.Order, error) {
	return s.store.Orders(ctx)
}
