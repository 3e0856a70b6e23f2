package repo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grocery-agent-core/server/internal/agent/model"
	errx "github.com/grocery-agent-core/server/internal/core/error"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestChatRepositoryRoundTrip(t *testing.T) {
	mr, rdb := newTestRedis(t)
	repo := NewRedisChatRepository(rdb, time.Hour)
	ctx := context.Background()

	require.NoError(t, repo.AddMessages(ctx, "alice_1", "chat-1",
		schema.UserMessage("ingredients for butter chicken"),
		schema.AssistantMessage("You will need chicken.", nil),
	))
	require.NoError(t, repo.AddMessages(ctx, "alice_1", "chat-2", schema.UserMessage("hi")))

	history, err := repo.LoadHistory(ctx, "alice_1", "chat-1")
	require.NoError(t, err)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, schema.User, history.Messages[0].Role)
	assert.Equal(t, "You will need chicken.", history.Messages[1].Content)

	n, err := repo.GetMessageCount(ctx, "alice_1", "chat-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, time.Hour, mr.TTL("chat:alice_1:chat-1:messages"))

	removed, err := repo.ClearSession(ctx, "alice_1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	history, err = repo.LoadHistory(ctx, "alice_1", "chat-1")
	require.NoError(t, err)
	assert.Empty(t, history.Messages)
}

func TestCartRepositoryAccumulatesAndClears(t *testing.T) {
	mr, rdb := newTestRedis(t)
	repo := NewRedisCartRepository(rdb, 24*time.Hour)
	ctx := context.Background()

	honey := model.Product{ID: "42", Name: "Organic Honey", Brand: "Golden Hive", SalePrice: 7.99}
	milk := model.Product{ID: "8", Name: "Whole Milk", Brand: "Dairyland", SalePrice: 3.99}

	qty, err := repo.AddItem(ctx, "s1", honey, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, qty)
	qty, err = repo.AddItem(ctx, "s1", honey, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, qty)
	_, err = repo.AddItem(ctx, "s1", milk, 1)
	require.NoError(t, err)

	items, err := repo.Items(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	byID := map[string]model.CartItem{}
	for _, it := range items {
		byID[it.ProductID] = it
	}
	assert.Equal(t, 3, byID["42"].Quantity)
	assert.InDelta(t, 23.97, byID["42"].Subtotal(), 1e-9)
	assert.Equal(t, 24*time.Hour, mr.TTL("cart:s1:qty"))

	cleared, err := repo.Clear(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, cleared)

	cleared, err = repo.Clear(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, cleared)

	items, err = repo.Items(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMemoryProductRepository(t *testing.T) {
	products, err := SeedProducts()
	require.NoError(t, err)
	require.NotEmpty(t, products)

	repo := NewMemoryProductRepository(products)
	ctx := context.Background()

	p, err := repo.GetByID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "Organic Honey", p.Name)

	_, err = repo.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, errx.ErrProductNotFound)

	hits, err := repo.KeywordSearch(ctx, ProductCriteria{Terms: SearchTerms("chicken"), Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Contains(t, hits[0].Name, "Chicken")

	dairy, err := repo.KeywordSearch(ctx, ProductCriteria{Terms: []string{"cheese"}, Category: "dairy", MaxPrice: 5})
	require.NoError(t, err)
	for _, d := range dairy {
		assert.Equal(t, "dairy", d.Category)
		assert.LessOrEqual(t, d.SalePrice, 5.0)
	}
	require.NotEmpty(t, dairy)
}

func TestRedisProductRepositoryGetByID(t *testing.T) {
	_, rdb := newTestRedis(t)
	repo := NewRedisProductRepository(rdb, "idx:products", "products:")
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, model.Product{ID: "7", Name: "Unsalted Butter", Brand: "Dairyland", Category: "dairy", SalePrice: 4.99, MarketPrice: 5.49, Rating: 4.8, InStock: true}))

	p, err := repo.GetByID(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "Unsalted Butter", p.Name)
	assert.InDelta(t, 4.99, p.SalePrice, 1e-9)
	assert.True(t, p.OnSale())

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, errx.ErrProductNotFound)
}

func TestRedisProductKeywordArgs(t *testing.T) {
	repo := NewRedisProductRepository(nil, "idx:products", "products:")
	args := repo.keywordArgs(ProductCriteria{Terms: []string{"milk", "x"}, Category: "dairy", MaxPrice: 5, MinRating: 4})
	require.NotNil(t, args)
	assert.Equal(t, "(@name:(milk) | @description:(milk)) @category:{dairy} @salePrice:[0 5] @rating:[4 +inf]", args[2])

	assert.Nil(t, repo.keywordArgs(ProductCriteria{Terms: []string{"a"}}))
}
