package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront_back_end/internal/metrics"
	"storefront_back_end/internal/models"
	"storefront_back_end/internal/store"
	"storefront_back_end/internal/store/memory"
)

var client = models.ClientInfo{Name: "Jeanne", Phone: "0470000000", Address: "Rue Haute 1, Bruxelles"}

// countingStore compte les appels qui touchent au stockage
type countingStore struct {
	store.Store
	calls atomic.Int32
}

func (c *countingStore) Transact(ctx context.Context, fn store.TxFunc) error {
	c.calls.Add(1)
	return c.Store.Transact(ctx, fn)
}

func (c *countingStore) RestoreStock(ctx context.Context, adj []store.StockAdjustment) ([]string, error) {
	c.calls.Add(1)
	return c.Store.RestoreStock(ctx, adj)
}

func (c *countingStore) Order(ctx context.Context, id string) (models.Order, error) {
	c.calls.Add(1)
	return c.Store.Order(ctx, id)
}

// flakyStore remplace le résultat des premières transactions par err
type flakyStore struct {
	store.Store
	failures int
	err      error
	calls    int
}

func (f *flakyStore) Transact(ctx context.Context, fn store.TxFunc) error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return f.Store.Transact(ctx, fn)
}

type brokenRestoreStore struct {
	store.Store
}

func (brokenRestoreStore) RestoreStock(context.Context, []store.StockAdjustment) ([]string, error) {
	return nil, errors.New("redis: connection refused")
}

type recordingNotifier struct {
	mu      sync.Mutex
	created []models.Order
	changed []models.OrderStatus
	err     error
}

func (n *recordingNotifier) OrderCreated(_ context.Context, o models.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, o)
	return n.err
}

func (n *recordingNotifier) StatusChanged(_ context.Context, o models.Order, _ models.OrderStatus) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed = append(n.changed, o.Status)
	return n.err
}

type recordingJournal struct {
	mu        sync.Mutex
	movements []models.StockMovement
}

func (j *recordingJournal) Record(_ context.Context, m []models.StockMovement) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.movements = append(j.movements, m...)
	return nil
}

func seedProduct(t *testing.T, st store.Store, id, name, price string, stock int) {
	t.Helper()
	require.NoError(t, st.CreateProduct(context.Background(), models.Product{
		ID:    id,
		Name:  name,
		Price: decimal.RequireFromString(price),
		Stock: stock,
	}))
}

func stockOf(t *testing.T, st store.Store, id string) int {
	t.Helper()
	p, err := st.Product(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func newService(st store.Store, opts ...Option) *Service {
	return New(st, append([]Option{WithBackoff(0, 0)}, opts...)...)
}

func TestCreateOrderComputesTotalAndDecrementsStock(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedProduct(t, st, "p1", "Chaise", "10.99", 5)
	seedProduct(t, st, "p2", "Table", "15.99", 3)

	notifier := &recordingNotifier{}
	journal := &recordingJournal{}
	m := metrics.NewLedger()
	svc := newService(st, WithNotifier(notifier), WithMovements(journal), WithMetrics(m))

	order, err := svc.CreateOrder(ctx, client, []models.CartLine{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, order.Status)
	assert.Equal(t, "37.97", order.Total.StringFixed(2))
	require.Len(t, order.Items, 2)
	assert.Equal(t, "Chaise", order.Items[0].Name)
	assert.True(t, decimal.RequireFromString("10.99").Equal(order.Items[0].Price))
	assert.False(t, order.CreatedAt.IsZero())

	assert.Equal(t, 3, stockOf(t, st, "p1"))
	assert.Equal(t, 2, stockOf(t, st, "p2"))

	stored, err := svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, order.Total.Equal(stored.Total))

	require.Len(t, notifier.created, 1)
	assert.Equal(t, order.ID, notifier.created[0].ID)

	require.Len(t, journal.movements, 2)
	assert.Equal(t, models.MovementSale, journal.movements[0].Type)
	assert.Equal(t, 2, journal.movements[0].Quantity)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersCreated))
}

func TestCreateOrderInsufficientStockRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedProduct(t, st, "p1", "Chaise", "10.99", 5)
	seedProduct(t, st, "p2", "Lampe", "15.99", 0)
	seedProduct(t, st, "p3", "Tapis", "5.00", 0)

	svc := newService(st)
	_, err := svc.CreateOrder(ctx, client, []models.CartLine{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 1},
		{ProductID: "p3", Quantity: 1},
	})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, "Lampe", stockErr.Name)
	assert.Equal(t, 0, stockErr.Available)
	assert.Equal(t, 1, stockErr.Requested)

	assert.Equal(t, 5, stockOf(t, st, "p1"))
	orders, err := svc.ListOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCreateOrderChecksCumulativeQuantityPerProduct(t *testing.T) {
	st := memory.New()
	seedProduct(t, st, "p1", "Chaise", "10.00", 3)

	_, err := newService(st).CreateOrder(context.Background(), client, []models.CartLine{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p1", Quantity: 2},
	})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 3, stockErr.Available)
	assert.Equal(t, 4, stockErr.Requested)
	assert.Equal(t, 3, stockOf(t, st, "p1"))
}

func TestCreateOrderUnknownProductUsesCartName(t *testing.T) {
	st := memory.New()
	seedProduct(t, st, "p1", "Chaise", "10.00", 3)

	_, err := newService(st).CreateOrder(context.Background(), client, []models.CartLine{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "ghost", Name: "Fauteuil retiré", Quantity: 1},
	})

	var nf *ProductNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Fauteuil retiré", nf.Name)
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.Equal(t, 3, stockOf(t, st, "p1"))
}

func TestCreateOrderRejectsBadInputWithoutStoreAccess(t *testing.T) {
	st := &countingStore{Store: memory.New()}
	svc := newService(st)

	_, err := svc.CreateOrder(context.Background(), client, nil)
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = svc.CreateOrder(context.Background(), client, []models.CartLine{{ProductID: "p1", Quantity: 0}})
	var qErr *InvalidQuantityError
	require.ErrorAs(t, err, &qErr)
	assert.Equal(t, 0, qErr.Quantity)

	_, err = svc.CreateOrder(context.Background(), client, []models.CartLine{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "p2", Quantity: -3},
	})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	assert.Zero(t, st.calls.Load())
}

func TestConcurrentOrdersForLastUnit(t *testing.T) {
	st := memory.New()
	seedProduct(t, st, "p1", "Dernière chaise", "99.00", 1)
	svc := New(st, WithMaxAttempts(100), WithBackoff(time.Microsecond, time.Millisecond))

	const buyers = 20
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		start     = make(chan struct{})
	)
	errs := make(chan error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.CreateOrder(context.Background(), client, []models.CartLine{{ProductID: "p1", Quantity: 1}})
			if err == nil {
				successes.Add(1)
				return
			}
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	assert.Equal(t, int32(1), successes.Load())
	for err := range errs {
		assert.True(t, errors.Is(err, ErrInsufficientStock) || errors.Is(err, ErrTransactionFailed), err.Error())
	}
	assert.Equal(t, 0, stockOf(t, st, "p1"))

	orders, err := svc.ListOrders(context.Background())
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	st := memory.New()
	seedProduct(t, st, "p1", "Tabouret", "20.00", 10)
	seedProduct(t, st, "p2", "Coussin", "5.00", 7)
	svc := New(st, WithMaxAttempts(200), WithBackoff(time.Microsecond, 2*time.Millisecond))

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lines := []models.CartLine{{ProductID: "p1", Quantity: 1}}
			if i%2 == 0 {
				lines = append(lines, models.CartLine{ProductID: "p2", Quantity: 1})
			}
			_, _ = svc.CreateOrder(context.Background(), client, lines)
		}(i)
	}
	wg.Wait()

	orders, err := svc.ListOrders(context.Background())
	require.NoError(t, err)

	sold := map[string]int{}
	for _, o := range orders {
		for _, item := range o.Items {
			sold[item.ProductID] += item.Quantity
		}
	}
	assert.Equal(t, 10, stockOf(t, st, "p1")+sold["p1"])
	assert.Equal(t, 7, stockOf(t, st, "p2")+sold["p2"])
	assert.GreaterOrEqual(t, stockOf(t, st, "p1"), 0)
	assert.GreaterOrEqual(t, stockOf(t, st, "p2"), 0)
}

func TestCreateOrderRetriesConflicts(t *testing.T) {
	base := memory.New()
	seedProduct(t, base, "p1", "Chaise", "10.00", 2)
	st := &flakyStore{Store: base, failures: 2, err: store.ErrConflict}
	m := metrics.NewLedger()

	order, err := newService(st, WithMetrics(m)).CreateOrder(context.Background(), client,
		[]models.CartLine{{ProductID: "p1", Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.Equal(t, 3, st.calls)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.TransactionAttempts))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransactionConflicts))
	assert.Equal(t, 1, stockOf(t, base, "p1"))
}

func TestCreateOrderGivesUpAfterMaxAttempts(t *testing.T) {
	base := memory.New()
	seedProduct(t, base, "p1", "Chaise", "10.00", 2)
	st := &flakyStore{Store: base, failures: 1000, err: store.ErrConflict}

	_, err := newService(st, WithMaxAttempts(3)).CreateOrder(context.Background(), client,
		[]models.CartLine{{ProductID: "p1", Quantity: 1}})
	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.ErrorIs(t, err, store.ErrConflict)
	assert.Equal(t, 3, st.calls)
	assert.Equal(t, 2, stockOf(t, base, "p1"))
}

func TestCreateOrderDoesNotRetryStoreFailures(t *testing.T) {
	base := memory.New()
	seedProduct(t, base, "p1", "Chaise", "10.00", 2)
	down := errors.New("dial tcp: connection refused")
	st := &flakyStore{Store: base, failures: 1000, err: down}

	_, err := newService(st).CreateOrder(context.Background(), client,
		[]models.CartLine{{ProductID: "p1", Quantity: 1}})
	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.ErrorIs(t, err, down)
	assert.Equal(t, 1, st.calls)
}

func TestCreateOrderStopsWhenContextCancelled(t *testing.T) {
	st := memory.New()
	seedProduct(t, st, "p1", "Chaise", "10.00", 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newService(st).CreateOrder(ctx, client, []models.CartLine{{ProductID: "p1", Quantity: 1}})
	assert.ErrorIs(t, err, ErrTransactionFailed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, stockOf(t, st, "p1"))
}

func TestNotifierFailureDoesNotFailOrder(t *testing.T) {
	st := memory.New()
	seedProduct(t, st, "p1", "Chaise", "10.00", 2)
	notifier := &recordingNotifier{err: errors.New("smtp: 554")}

	order, err := newService(st, WithNotifier(notifier)).CreateOrder(context.Background(), client,
		[]models.CartLine{{ProductID: "p1", Quantity: 1}})
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Len(t, notifier.created, 1)
}

func createOrder(t *testing.T, svc *Service, lines ...models.CartLine) models.Order {
	t.Helper()
	o, err := svc.CreateOrder(context.Background(), client, lines)
	require.NoError(t, err)
	return o
}

func TestCancelRestoresStock(t *testing.T) {
	for _, from := range []models.OrderStatus{models.StatusPending, models.StatusPaid} {
		t.Run(string(from), func(t *testing.T) {
			ctx := context.Background()
			st := memory.New()
			seedProduct(t, st, "p1", "Chaise", "10.00", 5)
			seedProduct(t, st, "p2", "Table", "50.00", 2)
			journal := &recordingJournal{}
			svc := newService(st, WithMovements(journal))

			o := createOrder(t, svc,
				models.CartLine{ProductID: "p1", Quantity: 2},
				models.CartLine{ProductID: "p2", Quantity: 1},
				models.CartLine{ProductID: "p1", Quantity: 1})
			assert.Equal(t, 2, stockOf(t, st, "p1"))

			if from == models.StatusPaid {
				_, err := svc.SetStatus(ctx, o.ID, models.StatusPaid)
				require.NoError(t, err)
				assert.Equal(t, 2, stockOf(t, st, "p1"))
			}

			cancelled, err := svc.SetStatus(ctx, o.ID, models.StatusCancelled)
			require.NoError(t, err)
			assert.Equal(t, models.StatusCancelled, cancelled.Status)
			require.NotNil(t, cancelled.UpdatedAt)

			assert.Equal(t, 5, stockOf(t, st, "p1"))
			assert.Equal(t, 2, stockOf(t, st, "p2"))

			var returns []models.StockMovement
			for _, m := range journal.movements {
				if m.Type == models.MovementReturn {
					returns = append(returns, m)
				}
			}
			require.Len(t, returns, 2)
			assert.Equal(t, 3, returns[0].Quantity)
		})
	}
}

func TestCancelSkipsVanishedProducts(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedProduct(t, st, "p1", "Chaise", "10.00", 5)
	seedProduct(t, st, "p2", "Table", "50.00", 2)
	svc := newService(st)

	o := createOrder(t, svc,
		models.CartLine{ProductID: "p1", Quantity: 1},
		models.CartLine{ProductID: "p2", Quantity: 1})
	require.NoError(t, st.DeleteProduct(ctx, "p2"))

	_, err := svc.SetStatus(ctx, o.ID, models.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, 5, stockOf(t, st, "p1"))
	_, err = st.Product(ctx, "p2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPaymentDoesNotTouchStock(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedProduct(t, st, "p1", "Chaise", "10.00", 5)
	svc := newService(st)
	o := createOrder(t, svc, models.CartLine{ProductID: "p1", Quantity: 2})

	paid, err := svc.SetStatus(ctx, o.ID, models.StatusPaid, WithPaymentReference("pi_123"))
	require.NoError(t, err)
	assert.Equal(t, "pi_123", paid.PaymentIntentID)
	assert.Equal(t, 3, stockOf(t, st, "p1"))

	for _, next := range []models.OrderStatus{models.StatusPreparing, models.StatusShipped, models.StatusDone} {
		_, err := svc.SetStatus(ctx, o.ID, next)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, stockOf(t, st, "p1"))
}

func TestSetStatusRejectsUnknownStatusBeforeIO(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	seedProduct(t, base, "p1", "Chaise", "10.00", 5)
	o := createOrder(t, newService(base), models.CartLine{ProductID: "p1", Quantity: 1})

	st := &countingStore{Store: base}
	_, err := newService(st).SetStatus(ctx, o.ID, models.OrderStatus("bogus"))

	var statusErr *InvalidStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "bogus", statusErr.Value)
	assert.Zero(t, st.calls.Load())

	unchanged, err := base.Order(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, unchanged.Status)
	assert.Nil(t, unchanged.UpdatedAt)
}

func TestSetStatusRejectsIllegalTransitions(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedProduct(t, st, "p1", "Chaise", "10.00", 5)
	svc := newService(st)
	o := createOrder(t, svc, models.CartLine{ProductID: "p1", Quantity: 1})

	_, err := svc.SetStatus(ctx, o.ID, models.StatusShipped)
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, o.ID, models.StatusPending)
	var trErr *IllegalTransitionError
	require.ErrorAs(t, err, &trErr)
	assert.Equal(t, models.StatusShipped, trErr.From)

	_, err = svc.SetStatus(ctx, o.ID, models.StatusCancelled)
	assert.ErrorIs(t, err, ErrIllegalTransition)

	current, err := svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusShipped, current.Status)
	assert.Equal(t, 4, stockOf(t, st, "p1"))
}

func TestSetStatusSameStatusIsNoop(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedProduct(t, st, "p1", "Chaise", "10.00", 5)
	notifier := &recordingNotifier{}
	svc := newService(st, WithNotifier(notifier))
	o := createOrder(t, svc, models.CartLine{ProductID: "p1", Quantity: 1})

	got, err := svc.SetStatus(ctx, o.ID, models.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Nil(t, got.UpdatedAt)
	assert.Empty(t, notifier.changed)
}

func TestSetStatusUnknownOrder(t *testing.T) {
	_, err := newService(memory.New()).SetStatus(context.Background(), "nope", models.StatusPaid)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = newService(memory.New()).GetOrder(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCancellationIsAppliedOnce(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedProduct(t, st, "p1", "Chaise", "10.00", 5)
	svc := New(st, WithMaxAttempts(50), WithBackoff(time.Microsecond, time.Millisecond))
	o := createOrder(t, svc, models.CartLine{ProductID: "p1", Quantity: 3})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.SetStatus(ctx, o.ID, models.StatusCancelled)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, stockOf(t, st, "p1"))
}

func TestCompensationFailureKeepsStatus(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	seedProduct(t, base, "p1", "Chaise", "10.00", 5)
	m := metrics.NewLedger()
	o := createOrder(t, newService(base), models.CartLine{ProductID: "p1", Quantity: 2})

	svc := newService(brokenRestoreStore{Store: base}, WithMetrics(m))
	got, err := svc.SetStatus(ctx, o.ID, models.StatusCancelled)

	var compErr *CompensationFailedError
	require.ErrorAs(t, err, &compErr)
	assert.ErrorIs(t, err, ErrCompensationFailed)
	assert.Equal(t, o.ID, compErr.OrderID)
	assert.Equal(t, models.StatusCancelled, got.Status)

	persisted, err := base.Order(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, persisted.Status)
	assert.Equal(t, 3, stockOf(t, base, "p1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Compensations.WithLabelValues("failed")))
}

func TestCompensateIgnoresOtherTransitions(t *testing.T) {
	st := &countingStore{Store: memory.New()}
	svc := newService(st)
	order := models.Order{ID: "o1", Items: []models.OrderItem{{ProductID: "p1", Quantity: 1}}}

	pairs := [][2]models.OrderStatus{
		{models.StatusPending, models.StatusPaid},
		{models.StatusPaid, models.StatusPreparing},
		{models.StatusShipped, models.StatusDone},
		{models.StatusPreparing, models.StatusCancelled},
	}
	for _, p := range pairs {
		assert.NoError(t, svc.Compensate(context.Background(), order, p[0], p[1]), fmt.Sprint(p))
	}
	assert.Zero(t, st.calls.Load())
}
