// Package redisstore implémente store.Store sur Redis.
//
// Produits : hash "product:{id}" + set "products".
// Commandes : JSON "order:{id}" + sorted set "orders:by_created" (score = ms unix),
// doublé d'un index par statut "orders:{status}:by_created" mis à jour dans le même EXEC.
// Les transactions utilisent WATCH/MULTI/EXEC : chaque lecture pose un WATCH sur sa clé,
// et EXEC échoue (redis.TxFailedErr) si une clé surveillée a changé.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"storefront_back_end/internal/models"
	"storefront_back_end/internal/store"
)

const (
	productsSetKey   = "products"
	ordersIndexKey   = "orders:by_created"
	productKeyPrefix = "product:"
	orderKeyPrefix   = "order:"
)

func productKey(id string) string { return productKeyPrefix + id }
func orderKey(id string) string   { return orderKeyPrefix + id }

func statusIndexKey(status models.OrderStatus) string {
	return "orders:" + string(status) + ":by_created"
}

// restoreScript incrémente le stock de chaque produit existant en une seule
// exécution atomique et retourne les positions (1-based) des produits absents.
var restoreScript = redis.NewScript(`
local missing = {}
for i, key in ipairs(KEYS) do
	if redis.call('EXISTS', key) == 1 then
		redis.call('HINCRBY', key, 'stock', ARGV[i])
	else
		table.insert(missing, i)
	end
end
return missing
`)

type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

var _ store.Store = (*Store)(nil)

type tx struct {
	rtx      *redis.Tx
	products map[string]*models.Product
	orders   map[string]*models.Order
	stock    map[string]int
	edits    map[string]models.Product
	puts     []models.Order
	deletes  []string
}

func (t *tx) Product(ctx context.Context, id string) (models.Product, error) {
	if p, seen := t.products[id]; seen {
		if p == nil {
			return models.Product{}, store.ErrNotFound
		}
		return *p, nil
	}

	key := productKey(id)
	if err := t.rtx.Watch(ctx, key).Err(); err != nil {
		return models.Product{}, fmt.Errorf("watch %s: %w", key, err)
	}
	fields, err := t.rtx.HGetAll(ctx, key).Result()
	if err != nil {
		return models.Product{}, fmt.Errorf("lecture %s: %w", key, err)
	}
	if len(fields) == 0 {
		t.products[id] = nil
		return models.Product{}, store.ErrNotFound
	}
	p, err := decodeProduct(fields)
	if err != nil {
		return models.Product{}, err
	}
	t.products[id] = &p
	return p, nil
}

func (t *tx) Order(ctx context.Context, id string) (models.Order, error) {
	if o, seen := t.orders[id]; seen {
		if o == nil {
			return models.Order{}, store.ErrNotFound
		}
		return *o, nil
	}

	key := orderKey(id)
	if err := t.rtx.Watch(ctx, key).Err(); err != nil {
		return models.Order{}, fmt.Errorf("watch %s: %w", key, err)
	}
	data, err := t.rtx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		t.orders[id] = nil
		return models.Order{}, store.ErrNotFound
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("lecture %s: %w", key, err)
	}
	var o models.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return models.Order{}, fmt.Errorf("décodage %s: %w", key, err)
	}
	t.orders[id] = &o
	return o, nil
}

func (t *tx) SetStock(productID string, stock int) { t.stock[productID] = stock }
func (t *tx) UpdateProduct(p models.Product)       { t.edits[p.ID] = p }
func (t *tx) PutOrder(order models.Order)          { t.puts = append(t.puts, order) }
func (t *tx) DeleteOrder(orderID string)           { t.deletes = append(t.deletes, orderID) }

func (t *tx) hasWrites() bool {
	return len(t.stock) > 0 || len(t.edits) > 0 || len(t.puts) > 0 || len(t.deletes) > 0
}

func (t *tx) flush(ctx context.Context, pipe redis.Pipeliner) error {
	for id, stock := range t.stock {
		pipe.HSet(ctx, productKey(id), "stock", stock)
	}
	for id, p := range t.edits {
		pipe.HSet(ctx, productKey(id),
			"name", p.Name,
			"description", p.Description,
			"price", p.Price.String(),
			"image_url", p.ImageURL)
	}
	for _, o := range t.puts {
		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("encodage commande %s: %w", o.ID, err)
		}
		z := redis.Z{Score: float64(o.CreatedAt.UnixMilli()), Member: o.ID}
		pipe.Set(ctx, orderKey(o.ID), data, 0)
		pipe.ZAdd(ctx, ordersIndexKey, z)
		// une commande n'est indexée que sous son statut courant
		for _, st := range models.AllStatuses {
			if st != o.Status {
				pipe.ZRem(ctx, statusIndexKey(st), o.ID)
			}
		}
		pipe.ZAdd(ctx, statusIndexKey(o.Status), z)
	}
	for _, id := range t.deletes {
		pipe.Del(ctx, orderKey(id))
		pipe.ZRem(ctx, ordersIndexKey, id)
		for _, st := range models.AllStatuses {
			pipe.ZRem(ctx, statusIndexKey(st), id)
		}
	}
	return nil
}

func (s *Store) Transact(ctx context.Context, fn store.TxFunc) error {
	err := s.rdb.Watch(ctx, func(rtx *redis.Tx) error {
		t := &tx{
			rtx:      rtx,
			products: make(map[string]*models.Product),
			orders:   make(map[string]*models.Order),
			stock:    make(map[string]int),
			edits:    make(map[string]models.Product),
		}
		if err := fn(ctx, t); err != nil {
			return err
		}
		if !t.hasWrites() {
			return nil
		}
		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return t.flush(ctx, pipe)
		})
		return err
	})
	if errors.Is(err, redis.TxFailedErr) {
		return store.ErrConflict
	}
	return err
}

func (s *Store) RestoreStock(ctx context.Context, adjustments []store.StockAdjustment) ([]string, error) {
	if len(adjustments) == 0 {
		return nil, nil
	}
	keys := make([]string, len(adjustments))
	args := make([]interface{}, len(adjustments))
	for i, adj := range adjustments {
		keys[i] = productKey(adj.ProductID)
		args[i] = adj.Delta
	}

	positions, err := restoreScript.Run(ctx, s.rdb, keys, args...).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("restauration du stock: %w", err)
	}
	var missing []string
	for _, pos := range positions {
		missing = append(missing, adjustments[pos-1].ProductID)
	}
	return missing, nil
}

func (s *Store) Product(ctx context.Context, id string) (models.Product, error) {
	fields, err := s.rdb.HGetAll(ctx, productKey(id)).Result()
	if err != nil {
		return models.Product{}, err
	}
	if len(fields) == 0 {
		return models.Product{}, store.ErrNotFound
	}
	return decodeProduct(fields)
}

func (s *Store) Products(ctx context.Context) ([]models.Product, error) {
	ids, err := s.rdb.SMembers(ctx, productsSetKey).Result()
	if err != nil {
		return nil, err
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, productKey(id))
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, err
		}
	}

	products := make([]models.Product, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue // supprimé entre SMEMBERS et HGETALL
		}
		p, err := decodeProduct(fields)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	sortProducts(products)
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, p models.Product) error {
	key := productKey(p.ID)
	err := s.rdb.Watch(ctx, func(rtx *redis.Tx) error {
		n, err := rtx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return store.ErrExists
		}
		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, encodeProduct(p))
			pipe.SAdd(ctx, productsSetKey, p.ID)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return store.ErrConflict
	}
	return err
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, productKey(id))
		pipe.SRem(ctx, productsSetKey, id)
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Order(ctx context.Context, id string) (models.Order, error) {
	data, err := s.rdb.Get(ctx, orderKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Order{}, store.ErrNotFound
	}
	if err != nil {
		return models.Order{}, err
	}
	var o models.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return models.Order{}, fmt.Errorf("décodage commande %s: %w", id, err)
	}
	return o, nil
}

func (s *Store) Orders(ctx context.Context) ([]models.Order, error) {
	ids, err := s.rdb.ZRevRange(ctx, ordersIndexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return s.loadOrders(ctx, ids)
}

func (s *Store) OrdersCreatedBefore(ctx context.Context, cutoff time.Time, status models.OrderStatus, limit int) ([]models.Order, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, statusIndexKey(status), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}
	return s.loadOrders(ctx, ids)
}

func (s *Store) loadOrders(ctx context.Context, ids []string) ([]models.Order, error) {
	if len(ids) == 0 {
		return []models.Order{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = orderKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // index en avance sur le document
		}
		var o models.Order
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			return nil, fmt.Errorf("décodage commande %s: %w", ids[i], err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func encodeProduct(p models.Product) map[string]interface{} {
	return map[string]interface{}{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"price":       p.Price.String(),
		"stock":       p.Stock,
		"image_url":   p.ImageURL,
		"created_at":  p.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeProduct(fields map[string]string) (models.Product, error) {
	p := models.Product{
		ID:          fields["id"],
		Name:        fields["name"],
		Description: fields["description"],
		ImageURL:    fields["image_url"],
	}
	var err error
	if p.Price, err = decimal.NewFromString(fields["price"]); err != nil {
		return models.Product{}, fmt.Errorf("produit %s: prix invalide: %w", p.ID, err)
	}
	if p.Stock, err = strconv.Atoi(fields["stock"]); err != nil {
		return models.Product{}, fmt.Errorf("produit %s: stock invalide: %w", p.ID, err)
	}
	if ts := fields["created_at"]; ts != "" {
		if p.CreatedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return models.Product{}, fmt.Errorf("produit %s: date invalide: %w", p.ID, err)
		}
	}
	return p, nil
}

// plus récents d'abord, comme le store mémoire
func sortProducts(products []models.Product) {
	sort.Slice(products, func(i, j int) bool {
		if products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].ID < products[j].ID
		}
		return products[i].CreatedAt.After(products[j].CreatedAt)
	})
}
