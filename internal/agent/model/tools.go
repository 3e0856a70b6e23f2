package model

import (
	"encoding/json"
)

// ToolResultType tags every tool payload.
type ToolResultType string

const (
	ResultProductSearch     ToolResultType = "product_search"
	ResultRecipeIngredients ToolResultType = "recipe_ingredients"
	ResultCartOperation     ToolResultType = "cart_operation"
	ResultDirectAnswer      ToolResultType = "direct_answer"
	ResultError             ToolResultType = "error"
)

// ToolResult is the common envelope of a tool payload, decoded loosely so
// that products can be folded into ConversationState.
type ToolResult struct {
	Type               ToolResultType    `json:"type"`
	Success            bool              `json:"success"`
	Error              string            `json:"error,omitempty"`
	Products           []ProductRef      `json:"products,omitempty"`
	IngredientProducts []IngredientMatch `json:"ingredientProducts,omitempty"`
}

// ParseToolResult decodes the envelope of a tool payload.
func ParseToolResult(payload string) (*ToolResult, error) {
	var r ToolResult
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// FoundProducts returns the products a result contributes to the conversation.
func (r *ToolResult) FoundProducts() []ProductRef {
	switch r.Type {
	case ResultProductSearch:
		return r.Products
	case ResultRecipeIngredients:
		out := make([]ProductRef, 0, len(r.IngredientProducts))
		for _, m := range r.IngredientProducts {
			if m.SuggestedProduct != nil {
				out = append(out, *m.SuggestedProduct)
			}
		}
		return out
	default:
		return nil
	}
}

// ErrorResult builds the payload returned for failed dispatches.
func ErrorResult(tool, code, message string) string {
	b, _ := json.Marshal(map[string]any{
		"type":    ResultError,
		"success": false,
		"tool":    tool,
		"error":   code,
		"message": message,
	})
	return string(b)
}

// ToolInvocation is the outcome of dispatching one tool call.
type ToolInvocation struct {
	Name   string
	Known  bool
	Output string
	Err    error
}
