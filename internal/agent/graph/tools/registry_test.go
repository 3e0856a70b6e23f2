package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grocery-agent-core/server/internal/agent/model"
	"github.com/grocery-agent-core/server/internal/agent/service"
	errx "github.com/grocery-agent-core/server/internal/core/error"
	"github.com/grocery-agent-core/server/internal/testutil"
)

type fakeSearcher struct {
	out   *model.SearchOutcome
	err   error
	query model.SearchQuery
}

func (f *fakeSearcher) Search(_ context.Context, q model.SearchQuery) (*model.SearchOutcome, error) {
	f.query = q
	return f.out, f.err
}

type fakeCart struct {
	sessions []string
	ids      []string
	qty      []int
	items    []model.CartItem
	cleared  int
	err      error
}

func (f *fakeCart) AddItems(_ context.Context, sessionID string, ids []string, qty []int) (*service.AddResult, error) {
	f.sessions = append(f.sessions, sessionID)
	f.ids, f.qty = ids, qty
	if f.err != nil {
		return nil, f.err
	}
	res := &service.AddResult{}
	for i, id := range ids {
		if id == "999" {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		q := 1
		if i < len(qty) {
			q = qty[i]
		}
		res.Added = append(res.Added, model.AddedItem{ProductID: id, Name: "Product " + id, Quantity: q, NewQuantity: q, Price: 2})
	}
	if len(res.Added) == 0 {
		return res, errx.ErrProductNotFound
	}
	res.Summary = model.CartSummary{TotalItems: len(res.Added), UniqueProducts: len(res.Added)}
	return res, nil
}

func (f *fakeCart) View(_ context.Context, sessionID string) ([]model.CartItem, model.CartSummary, error) {
	f.sessions = append(f.sessions, sessionID)
	if f.err != nil {
		return nil, model.CartSummary{}, f.err
	}
	return f.items, service.Summarize(f.items), nil
}

func (f *fakeCart) Clear(_ context.Context, sessionID string) (int, error) {
	f.sessions = append(f.sessions, sessionID)
	return f.cleared, f.err
}

type fakeMatcher struct {
	names []string
	panic bool
}

func (f *fakeMatcher) Match(_ context.Context, names []string) []model.IngredientMatch {
	if f.panic {
		panic("index corrupted")
	}
	f.names = names
	out := make([]model.IngredientMatch, len(names))
	for i, n := range names {
		ref := model.ProductRef{ID: n + "-id", Name: strings.ToUpper(n), Price: 3}
		out[i] = model.IngredientMatch{IngredientName: n, SuggestedProduct: &ref}
	}
	return out
}

type fixture struct {
	reg      *Registry
	searcher *fakeSearcher
	cart     *fakeCart
	matcher  *fakeMatcher
	utility  *testutil.ChatModel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		searcher: &fakeSearcher{out: &model.SearchOutcome{SearchType: model.SearchSemantic}},
		cart:     &fakeCart{},
		matcher:  &fakeMatcher{},
		utility:  &testutil.ChatModel{},
	}
	reg, err := NewRegistry(Deps{
		Products: f.searcher,
		Cart:     f.cart,
		Matcher:  f.matcher,
		Utility:  f.utility,
		Matching: model.MatcherConfig{MaxIngredients: 6},
	})
	require.NoError(t, err)
	f.reg = reg
	return f
}

func decode(t *testing.T, payload string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &m), payload)
	return m
}

func TestParseToolName(t *testing.T) {
	tests := []struct {
		name     string
		known    bool
		session  bool
		mutating bool
	}{
		{"fast_recipe_ingredients", true, false, false},
		{"search_products", true, false, false},
		{"add_to_cart", true, true, true},
		{"view_cart", true, true, false},
		{"clear_cart", true, true, true},
		{"direct_answer", true, false, false},
		{"save_to_semantic_cache", false, false, false},
		{"", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := ParseToolName(tt.name)
			assert.Equal(t, tt.known, ok)
			assert.Equal(t, tt.session, n.SessionScoped())
			assert.Equal(t, tt.mutating, n.MutatesCart())
		})
	}
}

func TestPrepareArgs(t *testing.T) {
	tests := []struct {
		name     string
		tool     ToolName
		args     string
		expected string
	}{
		{"limit clamped high", ToolSearchProducts, `{"query":" rice ","limit":"50"}`, `{"limit":20,"query":"rice"}`},
		{"limit clamped low", ToolSearchProducts, `{"query":"rice","limit":0}`, `{"limit":1,"query":"rice"}`},
		{"bad category dropped", ToolSearchProducts, `{"query":"rice","category":7,"maxPrice":"$5.50","useSemanticSearch":"false"}`, `{"maxPrice":5.5,"query":"rice","useSemanticSearch":false}`},
		{"non-string recipe", ToolRecipeIngredients, `{"recipe":42}`, `{"recipe":"42"}`},
		{"cart ids and quantities", ToolAddToCart, `{"productIds":[42," 7 ",""],"quantities":["2",0]}`, `{"productIds":["42","7"],"quantities":[2,1],"sessionId":"alice_1"}`},
		{"single id", ToolAddToCart, `{"productIds":"42"}`, `{"productIds":["42"],"sessionId":"alice_1"}`},
		{"session overwritten", ToolViewCart, `{"sessionId":"bob_2"}`, `{"sessionId":"alice_1"}`},
		{"empty arguments", ToolClearCart, ``, `{"sessionId":"alice_1"}`},
		{"no session for stateless tools", ToolDirectAnswer, `{"question":"how to store basil","sessionId":"x"}`, `{"question":"how to store basil","sessionId":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := prepareArgs(tt.tool, tt.args, "alice_1")
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, got)
		})
	}

	_, err := prepareArgs(ToolSearchProducts, `{not json`, "alice_1")
	assert.ErrorIs(t, err, errx.ErrInvalidArguments)
}

func TestToolInfos(t *testing.T) {
	f := newFixture(t)
	infos, err := f.reg.ToolInfos(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, len(AllTools))

	for i, info := range infos {
		assert.Equal(t, AllTools[i].String(), info.Name)
		js, err := info.ParamsOneOf.ToJSONSchema()
		require.NoError(t, err)
		b, err := json.Marshal(js)
		require.NoError(t, err)
		assert.NotContains(t, string(b), "sessionId", info.Name)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	f := newFixture(t)
	inv := f.reg.Dispatch(context.Background(), "alice_1", testutil.Call("c1", "delete_everything", `{}`))

	assert.False(t, inv.Known)
	assert.Equal(t, "delete_everything", inv.Name)
	assert.ErrorIs(t, inv.Err, errx.ErrUnknownTool)
	res, err := model.ParseToolResult(inv.Output)
	require.NoError(t, err)
	assert.Equal(t, model.ResultError, res.Type)
	assert.False(t, res.Success)
}

func TestDispatchRecipe(t *testing.T) {
	f := newFixture(t)
	f.utility.Replies = []*schema.Message{schema.AssistantMessage("```json\n"+`{"recipe":"Butter Chicken","ingredients":[
		{"name":"chicken","quantity":"500g","essential":true},
		{"name":"salt","quantity":"1 tsp","essential":false},
		{"name":"tomatoes","quantity":"","essential":true},
		{"name":"cream","quantity":"1/2 cup","essential":true}]}`+"\n```", nil)}

	inv := f.reg.Dispatch(context.Background(), "alice_1", testutil.Call("c1", "fast_recipe_ingredients", `{"recipe":"butter chicken"}`))
	require.NoError(t, inv.Err)
	assert.True(t, inv.Known)

	var out RecipeOutput
	require.NoError(t, json.Unmarshal([]byte(inv.Output), &out))
	assert.True(t, out.Success)
	assert.Equal(t, model.ResultRecipeIngredients, out.Type)
	assert.Equal(t, "Butter Chicken", out.Recipe)
	assert.Equal(t, 3, out.TotalIngredients)
	assert.Equal(t, []string{"chicken", "tomatoes", "cream"}, f.matcher.names)
	require.Len(t, out.IngredientProducts, 3)
	assert.Equal(t, "500g", out.IngredientProducts[0].QuantityHint)
	assert.Equal(t, "as needed", out.IngredientProducts[1].QuantityHint)
	assert.Equal(t, "cream-id", out.IngredientProducts[2].SuggestedProduct.ID)

	res, err := model.ParseToolResult(inv.Output)
	require.NoError(t, err)
	assert.Len(t, res.FoundProducts(), 3)
}

func TestDispatchRecipeExtractionFailure(t *testing.T) {
	f := newFixture(t)
	f.utility.Replies = []*schema.Message{schema.AssistantMessage("I don't know that dish", nil)}

	inv := f.reg.Dispatch(context.Background(), "alice_1", testutil.Call("c1", "fast_recipe_ingredients", `{"recipe":"moon cheese"}`))
	require.NoError(t, inv.Err)
	m := decode(t, inv.Output)
	assert.Equal(t, "recipe_ingredients", m["type"])
	assert.Equal(t, false, m["success"])
	assert.Contains(t, m["error"], "moon cheese")
	assert.Nil(t, f.matcher.names)
}

func TestDispatchMatcherPanicIsContained(t *testing.T) {
	f := newFixture(t)
	f.matcher.panic = true
	f.utility.Replies = []*schema.Message{schema.AssistantMessage(`{"ingredients":[{"name":"flour","essential":true}]}`, nil)}

	inv := f.reg.Dispatch(context.Background(), "alice_1", testutil.Call("c1", "fast_recipe_ingredients", `{"recipe":"bread"}`))
	require.Error(t, inv.Err)
	assert.True(t, inv.Known)
	m := decode(t, inv.Output)
	assert.Equal(t, "error", m["type"])
	assert.Equal(t, "tool_failed", m["error"])
}

func TestDispatchSearch(t *testing.T) {
	f := newFixture(t)
	f.searcher.out = &model.SearchOutcome{
		SearchType: model.SearchHybrid,
		Products: []model.ScoredProduct{
			{Product: model.Product{ID: "42", Name: "Organic Honey", Brand: "Nature's Best", Category: "Pantry", SalePrice: 7.99, MarketPrice: 9.49, Rating: 4.7, Description: strings.Repeat("sweet ", 30)}, Similarity: 0.82},
			{Product: model.Product{ID: "11", Name: "Granulated Sugar", SalePrice: 3.49, MarketPrice: 3.49}},
		},
	}

	inv := f.reg.Dispatch(context.Background(), "alice_1", testutil.Call("c1", "search_products", `{"query":"honey","limit":99}`))
	require.NoError(t, inv.Err)
	assert.Equal(t, 20, f.searcher.query.Limit)
	assert.True(t, f.searcher.query.UseSemanticSearch)

	var out SearchOutput
	require.NoError(t, json.Unmarshal([]byte(inv.Output), &out))
	assert.Equal(t, model.ResultProductSearch, out.Type)
	assert.Equal(t, model.SearchHybrid, out.SearchType)
	assert.Equal(t, 2, out.TotalFound)
	assert.InDelta(t, 11.48, out.TotalCost, 1e-9)

	honey := out.Products[0]
	assert.Equal(t, "/product/42", honey.ProductURL)
	assert.True(t, honey.IsOnSale)
	assert.InDelta(t, 1.5, honey.Discount, 1e-9)
	assert.Len(t, []rune(honey.Description), maxDescriptionLen+3)
	require.NotNil(t, honey.SemanticScore)

	sugar := out.Products[1]
	assert.False(t, sugar.IsOnSale)
	assert.Equal(t, "Generic", sugar.Brand)
	assert.Nil(t, sugar.SemanticScore)

	res, err := model.ParseToolResult(inv.Output)
	require.NoError(t, err)
	require.Len(t, res.FoundProducts(), 2)
	assert.Equal(t, "42", res.FoundProducts()[0].ID)
}

func TestDispatchSearchValidation(t *testing.T) {
	f := newFixture(t)
	inv := f.reg.Dispatch(context.Background(), "alice_1", testutil.Call("c1", "search_products", `{"category":"Dairy"}`))
	require.Error(t, inv.Err)
	m := decode(t, inv.Output)
	assert.Equal(t, "error", m["type"])
	assert.Equal(t, false, m["success"])
}

func TestDispatchCart(t *testing.T) {
	ctx := context.Background()

	t.Run("add injects session", func(t *testing.T) {
		f := newFixture(t)
		inv := f.reg.Dispatch(ctx, "alice_1", testutil.Call("c1", "add_to_cart", `{"productIds":[42,"999"],"quantities":[2],"sessionId":"mallory"}`))
		require.NoError(t, inv.Err)
		assert.Equal(t, []string{"alice_1"}, f.cart.sessions)
		assert.Equal(t, []string{"42", "999"}, f.cart.ids)

		var out AddToCartOutput
		require.NoError(t, json.Unmarshal([]byte(inv.Output), &out))
		assert.True(t, out.Success)
		assert.Equal(t, "add", out.Operation)
		assert.Equal(t, 2, out.TotalAdded)
		assert.Equal(t, []string{"999"}, out.SkippedIDs)
	})

	t.Run("add nothing", func(t *testing.T) {
		f := newFixture(t)
		inv := f.reg.Dispatch(ctx, "alice_1", testutil.Call("c1", "add_to_cart", `{"productIds":["999"]}`))
		require.NoError(t, inv.Err)
		m := decode(t, inv.Output)
		assert.Equal(t, "cart_operation", m["type"])
		assert.Equal(t, false, m["success"])
		assert.Equal(t, noItemsAddedMessage, m["error"])
	})

	t.Run("view empty", func(t *testing.T) {
		f := newFixture(t)
		inv := f.reg.Dispatch(ctx, "alice_1", testutil.Call("c1", "view_cart", ``))
		require.NoError(t, inv.Err)
		var out ViewCartOutput
		require.NoError(t, json.Unmarshal([]byte(inv.Output), &out))
		assert.Equal(t, "view", out.Operation)
		assert.NotNil(t, out.Items)
		assert.Equal(t, "Your cart is empty", out.Message)
	})

	t.Run("clear already empty", func(t *testing.T) {
		f := newFixture(t)
		inv := f.reg.Dispatch(ctx, "alice_1", testutil.Call("c1", "clear_cart", `{}`))
		require.NoError(t, inv.Err)
		var out ClearCartOutput
		require.NoError(t, json.Unmarshal([]byte(inv.Output), &out))
		assert.Equal(t, "clear", out.Operation)
		assert.Zero(t, out.ItemsCleared)
		assert.Equal(t, "Cart is already empty", out.Message)
	})

	t.Run("store failure becomes error result", func(t *testing.T) {
		f := newFixture(t)
		f.cart.err = errors.New("redis: connection refused")
		inv := f.reg.Dispatch(ctx, "alice_1", testutil.Call("c1", "view_cart", `{}`))
		require.Error(t, inv.Err)
		m := decode(t, inv.Output)
		assert.Equal(t, "error", m["type"])
		assert.Equal(t, "tool_failed", m["error"])
		assert.NotContains(t, inv.Output, "connection refused")
	})
}

func TestDispatchDirectAnswer(t *testing.T) {
	f := newFixture(t)
	f.utility.Replies = []*schema.Message{schema.AssistantMessage("Keep basil in water at room temperature.", nil)}

	inv := f.reg.Dispatch(context.Background(), "alice_1", testutil.Call("c1", "direct_answer", `{"question":"How do I store basil?"}`))
	require.NoError(t, inv.Err)
	var out AnswerOutput
	require.NoError(t, json.Unmarshal([]byte(inv.Output), &out))
	assert.True(t, out.Success)
	assert.Equal(t, "How do I store basil?", out.Question)
	assert.Equal(t, "Keep basil in water at room temperature.", out.Content)

	f.utility.Replies = nil
	f.utility.Err = errors.New("quota")
	inv = f.reg.Dispatch(context.Background(), "alice_1", testutil.Call("c2", "direct_answer", `{"question":"How do I store basil?"}`))
	require.NoError(t, inv.Err)
	assert.Equal(t, false, decode(t, inv.Output)["success"])
}

func TestNewRegistryRequiresDeps(t *testing.T) {
	_, err := NewRegistry(Deps{})
	assert.Error(t, err)
}
