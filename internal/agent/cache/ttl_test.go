package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/grocery-agent-core/server/internal/agent/graph/tools"
)

func TestDecideTTL(t *testing.T) {
	tests := []struct {
		name   string
		tools  []string
		millis int64
	}{
		{name: "add to cart", tools: []string{"add_to_cart"}, millis: 0},
		{name: "view cart", tools: []string{"view_cart"}, millis: 0},
		{name: "clear cart", tools: []string{"clear_cart"}, millis: 0},
		{name: "recipe", tools: []string{"fast_recipe_ingredients"}, millis: 86_400_000},
		{name: "direct answer", tools: []string{"direct_answer"}, millis: 43_200_000},
		{name: "search", tools: []string{"search_products"}, millis: 7_200_000},
		{name: "none", tools: nil, millis: 21_600_000},
		{name: "empty", tools: []string{}, millis: 21_600_000},
		{name: "unknown", tools: []string{"unknown_tool"}, millis: 21_600_000},
		{name: "cart wins over recipe", tools: []string{"fast_recipe_ingredients", "add_to_cart"}, millis: 0},
		{name: "recipe wins over search", tools: []string{"search_products", "fast_recipe_ingredients"}, millis: 86_400_000},
		{name: "knowledge wins over search", tools: []string{"search_products", "direct_answer"}, millis: 43_200_000},
		{name: "error marker", tools: []string{"error"}, millis: 21_600_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.millis, DecideTTL(tt.tools).Milliseconds())
		})
	}
}

func TestDecideTTLCartAlwaysZero(t *testing.T) {
	others := []string{"fast_recipe_ingredients", "direct_answer", "search_products", "unknown_tool"}
	for _, cartTool := range []string{"add_to_cart", "view_cart", "clear_cart"} {
		for i := range others {
			used := append([]string{}, others[:i+1]...)
			used = append(used, cartTool)
			assert.Equal(t, NoCache, DecideTTL(used), used)
		}
	}
}

func TestDecideTTLCoversToolSet(t *testing.T) {
	for _, n := range tools.AllTools {
		ttl := DecideTTL([]string{n.String()})
		if n.SessionScoped() {
			assert.Equal(t, NoCache, ttl, n)
			continue
		}
		assert.NotEqual(t, DefaultTTL, ttl, "%s has no dedicated tier", n)
		assert.Positive(t, ttl, n)
	}
}

func TestClassifyQueryTTL(t *testing.T) {
	tests := map[string]time.Duration{
		"add product 42 to cart":          NoCache,
		"Remove the milk":                 NoCache,
		"Ingredients for butter chicken":  RecipeTTL,
		"how to make pancakes":            RecipeTTL,
		"what's the price of eggs":        PriceTTL,
		"something cheap for dinner":      PriceTTL,
		"what is a shallot":               DefaultTTL,
		"   ":                             DefaultTTL,
		"show me a recipe for my cart":    NoCache,
	}
	for q, want := range tests {
		assert.Equal(t, want, ClassifyQueryTTL(q), q)
	}
}

func TestResolveTTL(t *testing.T) {
	assert.Equal(t, PriceTTL, ResolveTTL([]string{"search_products"}, "add to cart"))
	assert.Equal(t, NoCache, ResolveTTL(nil, "add to cart"))
	assert.Equal(t, DefaultTTL, ResolveTTL(nil, "hello"))
}
