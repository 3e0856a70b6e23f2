package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/grocery-agent-core/server/internal/agent/model"
	errx "github.com/grocery-agent-core/server/internal/core/error"
	logx "github.com/grocery-agent-core/server/pkg/logger"
)

// RedisCartRepository keeps one cart per session in two hashes: product
// snapshots and quantities. Quantities change through HINCRBY so concurrent
// adds for the same session stay consistent without client-side locking.
type RedisCartRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
	now func() time.Time
}

func NewRedisCartRepository(rdb redis.Cmdable, ttl time.Duration) *RedisCartRepository {
	return &RedisCartRepository{rdb: rdb, ttl: ttl, now: time.Now}
}

func (r *RedisCartRepository) itemsKey(sessionID string) string {
	return fmt.Sprintf("cart:%s:items", sessionID)
}

func (r *RedisCartRepository) qtyKey(sessionID string) string {
	return fmt.Sprintf("cart:%s:qty", sessionID)
}

// AddItem adds quantity units of product and returns the new line quantity.
func (r *RedisCartRepository) AddItem(ctx context.Context, sessionID string, product model.Product, quantity int) (int, error) {
	item := model.CartItem{
		ProductID: product.ID,
		Name:      product.Name,
		Brand:     product.Brand,
		Price:     product.SalePrice,
		AddedAt:   r.now().UTC(),
	}
	b, err := json.Marshal(item)
	if err != nil {
		return 0, fmt.Errorf("marshal cart item: %w", err)
	}

	itemsKey, qtyKey := r.itemsKey(sessionID), r.qtyKey(sessionID)
	pipe := r.rdb.TxPipeline()
	pipe.HSetNX(ctx, itemsKey, product.ID, b)
	incr := pipe.HIncrBy(ctx, qtyKey, product.ID, int64(quantity))
	if r.ttl > 0 {
		pipe.Expire(ctx, itemsKey, r.ttl)
		pipe.Expire(ctx, qtyKey, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Str("product_id", product.ID).Msg("failed to add cart item")
		return 0, errx.WrapRedis(err)
	}
	return int(incr.Val()), nil
}

// Items returns the cart lines ordered by the time they were first added.
func (r *RedisCartRepository) Items(ctx context.Context, sessionID string) ([]model.CartItem, error) {
	itemsKey, qtyKey := r.itemsKey(sessionID), r.qtyKey(sessionID)

	pipe := r.rdb.Pipeline()
	itemsCmd := pipe.HGetAll(ctx, itemsKey)
	qtyCmd := pipe.HGetAll(ctx, qtyKey)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to load cart")
		return nil, errx.WrapRedis(err)
	}

	qty := qtyCmd.Val()
	items := make([]model.CartItem, 0, len(itemsCmd.Val()))
	for id, raw := range itemsCmd.Val() {
		var item model.CartItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			logx.Warn().Err(err).Str("session_id", sessionID).Str("product_id", id).Msg("skipping malformed cart item")
			continue
		}
		n, err := strconv.Atoi(qty[id])
		if err != nil || n <= 0 {
			continue
		}
		item.Quantity = n
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].AddedAt.Equal(items[j].AddedAt) {
			return items[i].ProductID < items[j].ProductID
		}
		return items[i].AddedAt.Before(items[j].AddedAt)
	})
	return items, nil
}

// Clear empties the cart and returns the number of lines removed.
func (r *RedisCartRepository) Clear(ctx context.Context, sessionID string) (int, error) {
	itemsKey, qtyKey := r.itemsKey(sessionID), r.qtyKey(sessionID)

	pipe := r.rdb.TxPipeline()
	count := pipe.HLen(ctx, itemsKey)
	pipe.Del(ctx, itemsKey, qtyKey)
	if _, err := pipe.Exec(ctx); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to clear cart")
		return 0, errx.WrapRedis(err)
	}
	return int(count.Val()), nil
}
