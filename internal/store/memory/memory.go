// Package memory fournit un store en mémoire avec concurrence optimiste.
// Chaque document porte une version ; le commit vérifie que rien de ce qui a été lu n'a bougé.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront_back_end/internal/models"
	"storefront_back_end/internal/store"
)

type productDoc struct {
	product models.Product
	version uint64
}

type orderDoc struct {
	order   models.Order
	version uint64
}

type Store struct {
	mu       sync.Mutex
	seq      uint64
	products map[string]productDoc
	orders   map[string]orderDoc
	// dernière version connue des documents supprimés, pour détecter suppression puis recréation
	tombstones map[string]uint64
}

func New() *Store {
	return &Store{
		products:   make(map[string]productDoc),
		orders:     make(map[string]orderDoc),
		tombstones: make(map[string]uint64),
	}
}

var _ store.Store = (*Store)(nil)

func productKey(id string) string { return "product:" + id }
func orderKey(id string) string   { return "order:" + id }

func (s *Store) next() uint64 {
	s.seq++
	return s.seq
}

// versionOf doit être appelé verrou tenu
func (s *Store) versionOf(key string) uint64 {
	if id, ok := strings.CutPrefix(key, "product:"); ok {
		if d, ok := s.products[id]; ok {
			return d.version
		}
	} else if id, ok := strings.CutPrefix(key, "order:"); ok {
		if d, ok := s.orders[id]; ok {
			return d.version
		}
	}
	return s.tombstones[key]
}

type tx struct {
	s        *Store
	reads    map[string]uint64
	products map[string]*models.Product
	orders   map[string]*models.Order
	stock    map[string]int
	edits    map[string]models.Product
	puts     map[string]models.Order
	deletes  map[string]struct{}
}

func (t *tx) Product(ctx context.Context, id string) (models.Product, error) {
	if err := ctx.Err(); err != nil {
		return models.Product{}, err
	}
	key := productKey(id)
	if _, seen := t.reads[key]; seen {
		if p := t.products[id]; p != nil {
			return *p, nil
		}
		return models.Product{}, store.ErrNotFound
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.reads[key] = t.s.versionOf(key)
	d, ok := t.s.products[id]
	if !ok {
		t.products[id] = nil
		return models.Product{}, store.ErrNotFound
	}
	p := d.product
	t.products[id] = &p
	return p, nil
}

func (t *tx) Order(ctx context.Context, id string) (models.Order, error) {
	if err := ctx.Err(); err != nil {
		return models.Order{}, err
	}
	key := orderKey(id)
	if _, seen := t.reads[key]; seen {
		if o := t.orders[id]; o != nil {
			return cloneOrder(*o), nil
		}
		return models.Order{}, store.ErrNotFound
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.reads[key] = t.s.versionOf(key)
	d, ok := t.s.orders[id]
	if !ok {
		t.orders[id] = nil
		return models.Order{}, store.ErrNotFound
	}
	o := cloneOrder(d.order)
	t.orders[id] = &o
	return cloneOrder(o), nil
}

func (t *tx) SetStock(productID string, stock int) { t.stock[productID] = stock }
func (t *tx) UpdateProduct(p models.Product)       { t.edits[p.ID] = p }
func (t *tx) PutOrder(order models.Order)          { t.puts[order.ID] = cloneOrder(order) }
func (t *tx) DeleteOrder(orderID string)           { t.deletes[orderID] = struct{}{} }

func (s *Store) Transact(ctx context.Context, fn store.TxFunc) error {
	t := &tx{
		s:        s,
		reads:    make(map[string]uint64),
		products: make(map[string]*models.Product),
		orders:   make(map[string]*models.Order),
		stock:    make(map[string]int),
		edits:    make(map[string]models.Product),
		puts:     make(map[string]models.Order),
		deletes:  make(map[string]struct{}),
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, v := range t.reads {
		if s.versionOf(key) != v {
			return store.ErrConflict
		}
	}
	// écriture sur un produit non lu et disparu : on n'en recrée pas un fantôme
	for id := range t.stock {
		if _, ok := s.products[id]; !ok {
			return store.ErrConflict
		}
	}
	for id := range t.edits {
		if _, ok := s.products[id]; !ok {
			return store.ErrConflict
		}
	}
	for id, stock := range t.stock {
		d := s.products[id]
		d.product.Stock = stock
		d.version = s.next()
		s.products[id] = d
	}
	for id, p := range t.edits {
		d := s.products[id]
		d.product.Name = p.Name
		d.product.Description = p.Description
		d.product.Price = p.Price
		d.product.ImageURL = p.ImageURL
		d.version = s.next()
		s.products[id] = d
	}
	for id, o := range t.puts {
		s.orders[id] = orderDoc{order: o, version: s.next()}
	}
	for id := range t.deletes {
		if _, ok := s.orders[id]; ok {
			delete(s.orders, id)
			s.tombstones[orderKey(id)] = s.next()
		}
	}
	return nil
}

func (s *Store) RestoreStock(ctx context.Context, adjustments []store.StockAdjustment) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var missing []string
	for _, adj := range adjustments {
		d, ok := s.products[adj.ProductID]
		if !ok {
			missing = append(missing, adj.ProductID)
			continue
		}
		d.product.Stock += adj.Delta
		d.version = s.next()
		s.products[adj.ProductID] = d
	}
	return missing, nil
}

func (s *Store) Product(ctx context.Context, id string) (models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.products[id]
	if !ok {
		return models.Product{}, store.ErrNotFound
	}
	return d.product, nil
}

func (s *Store) Products(ctx context.Context) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Product, 0, len(s.products))
	for _, d := range s.products {
		out = append(out, d.product)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) CreateProduct(ctx context.Context, p models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; ok {
		return store.ErrExists
	}
	s.products[p.ID] = productDoc{product: p, version: s.next()}
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, id)
	s.tombstones[productKey(id)] = s.next()
	return nil
}

func (s *Store) Order(ctx context.Context, id string) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.orders[id]
	if !ok {
		return models.Order{}, store.ErrNotFound
	}
	return cloneOrder(d.order), nil
}

func (s *Store) Orders(ctx context.Context) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Order, 0, len(s.orders))
	for _, d := range s.orders {
		out = append(out, cloneOrder(d.order))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) OrdersCreatedBefore(ctx context.Context, cutoff time.Time, status models.OrderStatus, limit int) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, d := range s.orders {
		if d.order.Status == status && d.order.CreatedAt.Before(cutoff) {
			out = append(out, cloneOrder(d.order))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func cloneOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem(nil), o.Items...)
	if o.UpdatedAt != nil {
		ts := *o.UpdatedAt
		o.UpdatedAt = &ts
	}
	return o
}
