package tools

// ToolName identifies one member of the closed tool set.
type ToolName string

const (
	ToolRecipeIngredients ToolName = "fast_recipe_ingredients"
	ToolSearchProducts    ToolName = "search_products"
	ToolAddToCart         ToolName = "add_to_cart"
	ToolViewCart          ToolName = "view_cart"
	ToolClearCart         ToolName = "clear_cart"
	ToolDirectAnswer      ToolName = "direct_answer"
)

// AllTools lists the tool set in the order it is offered to the model.
var AllTools = []ToolName{
	ToolRecipeIngredients,
	ToolSearchProducts,
	ToolAddToCart,
	ToolViewCart,
	ToolClearCart,
	ToolDirectAnswer,
}

// ParseToolName maps a model-supplied name onto the tool set.
func ParseToolName(s string) (ToolName, bool) {
	switch n := ToolName(s); n {
	case ToolRecipeIngredients, ToolSearchProducts, ToolAddToCart, ToolViewCart, ToolClearCart, ToolDirectAnswer:
		return n, true
	default:
		return "", false
	}
}

// SessionScoped reports whether the tool receives the caller's sessionId.
func (n ToolName) SessionScoped() bool {
	switch n {
	case ToolAddToCart, ToolViewCart, ToolClearCart:
		return true
	default:
		return false
	}
}

// MutatesCart reports whether the tool changes cart state.
func (n ToolName) MutatesCart() bool {
	return n == ToolAddToCart || n == ToolClearCart
}

func (n ToolName) String() string {
	return string(n)
}
