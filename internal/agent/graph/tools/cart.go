package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/grocery-agent-core/server/internal/agent/model"
	"github.com/grocery-agent-core/server/internal/agent/service"
	errx "github.com/grocery-agent-core/server/internal/core/error"
)

const (
	opAdd   = "add"
	opView  = "view"
	opClear = "clear"

	noItemsAddedMessage = "Could not add any items to cart. Please check product IDs."
)

// ===================================
// Cart Tools
// ===================================

type AddToCartInput struct {
	SessionID  string   `json:"sessionId" validate:"required"`
	ProductIDs []string `json:"productIds" validate:"required,min=1,max=20,dive,required"`
	Quantities []int    `json:"quantities,omitempty" validate:"omitempty,dive,gte=1"`
}

type AddToCartOutput struct {
	Type        model.ToolResultType `json:"type"`
	Operation   string               `json:"operation"`
	Success     bool                 `json:"success"`
	AddedItems  []model.AddedItem    `json:"addedItems"`
	TotalAdded  int                  `json:"totalAdded"`
	SkippedIDs  []string             `json:"skippedIds,omitempty"`
	CartSummary *model.CartSummary   `json:"cartSummary,omitempty"`
	Message     string               `json:"message,omitempty"`
	Error       string               `json:"error,omitempty"`
}

type SessionInput struct {
	SessionID string `json:"sessionId" validate:"required"`
}

type ViewCartOutput struct {
	Type      model.ToolResultType `json:"type"`
	Operation string               `json:"operation"`
	Success   bool                 `json:"success"`
	Items     []model.CartItem     `json:"items"`
	Summary   model.CartSummary    `json:"summary"`
	Message   string               `json:"message,omitempty"`
}

type ClearCartOutput struct {
	Type         model.ToolResultType `json:"type"`
	Operation    string               `json:"operation"`
	Success      bool                 `json:"success"`
	ItemsCleared int                  `json:"itemsCleared"`
	Message      string               `json:"message"`
}

func (r *Registry) newAddToCartTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolAddToCart.String(),
			Desc: "Add products to the shopping cart by product ID. Use IDs from earlier tool results or ones the user typed.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"productIds": {
					Type:     schema.Array,
					Desc:     "Product IDs to add",
					ElemInfo: &schema.ParameterInfo{Type: schema.String},
					Required: true,
				},
				"quantities": {
					Type:     schema.Array,
					Desc:     "Quantity for each product ID, in the same order (default 1)",
					ElemInfo: &schema.ParameterInfo{Type: schema.Integer},
				},
			}),
		},
		r.addToCart,
	)
}

func (r *Registry) addToCart(ctx context.Context, in *AddToCartInput) (*AddToCartOutput, error) {
	if err := r.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", errx.ErrInvalidArguments, err)
	}

	res, err := r.deps.Cart.AddItems(ctx, in.SessionID, in.ProductIDs, in.Quantities)
	if service.IsNoItemsAdded(err) {
		return &AddToCartOutput{
			Type:       model.ResultCartOperation,
			Operation:  opAdd,
			Success:    false,
			AddedItems: []model.AddedItem{},
			SkippedIDs: res.Skipped,
			Error:      noItemsAddedMessage,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("add to cart: %w", err)
	}

	total := 0
	for _, it := range res.Added {
		total += it.Quantity
	}
	return &AddToCartOutput{
		Type:        model.ResultCartOperation,
		Operation:   opAdd,
		Success:     true,
		AddedItems:  res.Added,
		TotalAdded:  total,
		SkippedIDs:  res.Skipped,
		CartSummary: &res.Summary,
		Message:     fmt.Sprintf("Added %d item(s) to cart", total),
	}, nil
}

func (r *Registry) newViewCartTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name:        ToolViewCart.String(),
			Desc:        "Show the current shopping cart with item totals.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		r.viewCart,
	)
}

func (r *Registry) viewCart(ctx context.Context, in *SessionInput) (*ViewCartOutput, error) {
	if err := r.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", errx.ErrInvalidArguments, err)
	}
	items, summary, err := r.deps.Cart.View(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	out := &ViewCartOutput{
		Type:      model.ResultCartOperation,
		Operation: opView,
		Success:   true,
		Items:     items,
		Summary:   summary,
	}
	if len(items) == 0 {
		out.Items = []model.CartItem{}
		out.Message = "Your cart is empty"
	}
	return out, nil
}

func (r *Registry) newClearCartTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name:        ToolClearCart.String(),
			Desc:        "Remove every item from the shopping cart.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		r.clearCart,
	)
}

func (r *Registry) clearCart(ctx context.Context, in *SessionInput) (*ClearCartOutput, error) {
	if err := r.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", errx.ErrInvalidArguments, err)
	}
	n, err := r.deps.Cart.Clear(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	out := &ClearCartOutput{
		Type:         model.ResultCartOperation,
		Operation:    opClear,
		Success:      true,
		ItemsCleared: n,
		Message:      fmt.Sprintf("Cleared %d item(s) from cart", n),
	}
	if n == 0 {
		out.Message = "Cart is already empty"
	}
	return out, nil
}
