package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/philippgille/chromem-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grocery-agent-core/server/internal/agent/model"
	"github.com/grocery-agent-core/server/internal/vector"
)

// phraseEmbedder maps known normalized prompts to fixed vectors so tests can
// control which prompts are semantically close.
type phraseEmbedder map[string][]float64

func (p phraseEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, ok := p[t]
		if !ok {
			v = []float64{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

var phrases = phraseEmbedder{
	"ingredients for butter chicken":   {1, 0, 0},
	"what do i need for butter chicken": {0.98, 0.2, 0},
	"cheap pasta ideas":                {0, 1, 0},
}

func newTestStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	idx := vector.NewChromemIndex(chromem.NewDB(), "semantic-cache")
	return mr, NewRedisStore(rdb, idx, phrases, RedisStoreConfig{SemanticThreshold: 0.9})
}

func both() []SearchStrategy { return []SearchStrategy{StrategyExact, StrategySemantic} }

func TestRedisStoreExactBeforeSemantic(t *testing.T) {
	_, s := newTestStore(t)
	ctx := context.Background()
	attrs := map[string]string{"sessionId": "alice_1"}

	require.NoError(t, s.Set(ctx, model.CacheEntry{Prompt: "Ingredients for  Butter Chicken", Response: "recipe answer", TTLMillis: RecipeTTL.Milliseconds(), Attributes: attrs}))

	m, err := s.Search(ctx, SearchRequest{Prompt: "ingredients for butter chicken", Attributes: attrs, Strategies: both()})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, StrategyExact, m.Strategy)
	assert.Equal(t, "recipe answer", m.Entry.Response)
	assert.Equal(t, EntryID("ingredients for butter chicken", attrs), m.Entry.PromptKey)

	m, err = s.Search(ctx, SearchRequest{Prompt: "What do I need for butter chicken", Attributes: attrs, Strategies: both()})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, StrategySemantic, m.Strategy)
	assert.Greater(t, m.Similarity, 0.9)

	m, err = s.Search(ctx, SearchRequest{Prompt: "What do I need for butter chicken", Attributes: attrs, Strategies: []SearchStrategy{StrategyExact}})
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = s.Search(ctx, SearchRequest{Prompt: "cheap pasta ideas", Attributes: attrs, Strategies: both()})
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestRedisStoreScopesBySession(t *testing.T) {
	_, s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, model.CacheEntry{Prompt: "cheap pasta ideas", Response: "spaghetti", TTLMillis: PriceTTL.Milliseconds(), Attributes: map[string]string{"sessionId": "alice_1"}}))

	m, err := s.Search(ctx, SearchRequest{Prompt: "cheap pasta ideas", Attributes: map[string]string{"sessionId": "bob_2"}, Strategies: both()})
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestRedisStoreExpiry(t *testing.T) {
	mr, s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, model.CacheEntry{Prompt: "cheap pasta ideas", Response: "spaghetti", TTLMillis: PriceTTL.Milliseconds()}))
	mr.FastForward(PriceTTL + time.Second)

	m, err := s.Search(ctx, SearchRequest{Prompt: "cheap pasta ideas", Strategies: both()})
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestRedisStoreRejectsZeroTTL(t *testing.T) {
	_, s := newTestStore(t)
	assert.Error(t, s.Set(context.Background(), model.CacheEntry{Prompt: "q", Response: "r"}))
}

func TestRedisStoreDeleteByAttributes(t *testing.T) {
	_, s := newTestStore(t)
	ctx := context.Background()
	alice := map[string]string{"sessionId": "alice_1"}
	bob := map[string]string{"sessionId": "bob_2"}

	require.NoError(t, s.Set(ctx, model.CacheEntry{Prompt: "ingredients for butter chicken", Response: "a", TTLMillis: 1000, Attributes: alice}))
	require.NoError(t, s.Set(ctx, model.CacheEntry{Prompt: "cheap pasta ideas", Response: "b", TTLMillis: 1000, Attributes: alice}))
	require.NoError(t, s.Set(ctx, model.CacheEntry{Prompt: "cheap pasta ideas", Response: "c", TTLMillis: 1000, Attributes: bob}))

	n, err := s.DeleteByAttributes(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	m, err := s.Search(ctx, SearchRequest{Prompt: "cheap pasta ideas", Attributes: alice, Strategies: both()})
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = s.Search(ctx, SearchRequest{Prompt: "cheap pasta ideas", Attributes: bob, Strategies: both()})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "c", m.Entry.Response)

	n, err = s.DeleteByAttributes(ctx, alice)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGatewayOverRedisStoreShortCircuits(t *testing.T) {
	_, s := newTestStore(t)
	g := NewGateway(s, true)
	ctx := context.Background()

	_, ok := g.Lookup(ctx, "ingredients for butter chicken", "alice_1")
	assert.False(t, ok)

	require.NoError(t, g.Write(ctx, "ingredients for butter chicken", "you need chicken", DecideTTL([]string{"fast_recipe_ingredients"}), "alice_1"))
	resp, ok := g.Lookup(ctx, "ingredients for butter chicken", "alice_1")
	assert.True(t, ok)
	assert.Equal(t, "you need chicken", resp)

	removed, err := g.Invalidate(ctx, "alice_1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, ok = g.Lookup(ctx, "ingredients for butter chicken", "alice_1")
	assert.False(t, ok)
}

func TestNormalizePrompt(t *testing.T) {
	assert.Equal(t, "add product 42 to cart", NormalizePrompt("  Add   product 42\tto CART "))
	assert.Equal(t, EntryID("A b", nil), EntryID("a  B", nil))
	assert.NotEqual(t, EntryID("a", map[string]string{"sessionId": "x"}), EntryID("a", map[string]string{"sessionId": "y"}))
}
