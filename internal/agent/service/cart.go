package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/grocery-agent-core/server/internal/agent/model"
	errx "github.com/grocery-agent-core/server/internal/core/error"
	logx "github.com/grocery-agent-core/server/pkg/logger"
)

// CartStore is the cart persistence contract.
type CartStore interface {
	AddItem(ctx context.Context, sessionID string, product model.Product, quantity int) (int, error)
	Items(ctx context.Context, sessionID string) ([]model.CartItem, error)
	Clear(ctx context.Context, sessionID string) (int, error)
}

// ProductLookup resolves catalog products by id.
type ProductLookup interface {
	GetByID(ctx context.Context, id string) (*model.Product, error)
}

// CartService applies cart operations on behalf of one session.
type CartService struct {
	store    CartStore
	products ProductLookup
}

func NewCartService(store CartStore, products ProductLookup) *CartService {
	return &CartService{store: store, products: products}
}

// AddResult reports the outcome of AddItems.
type AddResult struct {
	Added   []model.AddedItem
	Skipped []string
	Summary model.CartSummary
}

// AddItems adds each product independently. Unknown ids and failed writes are
// skipped; the call fails only when nothing could be added.
func (s *CartService) AddItems(ctx context.Context, sessionID string, productIDs []string, quantities []int) (*AddResult, error) {
	res := &AddResult{}
	for i, rawID := range productIDs {
		id := strings.TrimSpace(rawID)
		qty := 1
		if i < len(quantities) && quantities[i] > 0 {
			qty = quantities[i]
		}

		p, err := s.products.GetByID(ctx, id)
		if err != nil {
			logx.Warn().Err(err).Str("session_id", sessionID).Str("product_id", id).Msg("Skipping cart item")
			res.Skipped = append(res.Skipped, id)
			continue
		}
		newQty, err := s.store.AddItem(ctx, sessionID, *p, qty)
		if err != nil {
			logx.Warn().Err(err).Str("session_id", sessionID).Str("product_id", id).Msg("Failed to add cart item")
			res.Skipped = append(res.Skipped, id)
			continue
		}
		res.Added = append(res.Added, model.AddedItem{
			ProductID:   p.ID,
			Name:        p.Name,
			Quantity:    qty,
			NewQuantity: newQty,
			Price:       p.SalePrice,
		})
	}

	if len(res.Added) == 0 {
		return res, fmt.Errorf("%w: no cart items added", errx.ErrProductNotFound)
	}

	items, err := s.store.Items(ctx, sessionID)
	if err != nil {
		logx.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to load cart summary after add")
	}
	res.Summary = Summarize(items)
	return res, nil
}

// View returns the cart lines and their summary.
func (s *CartService) View(ctx context.Context, sessionID string) ([]model.CartItem, model.CartSummary, error) {
	items, err := s.store.Items(ctx, sessionID)
	if err != nil {
		return nil, model.CartSummary{}, fmt.Errorf("load cart: %w", err)
	}
	return items, Summarize(items), nil
}

// Clear empties the cart and returns how many lines were removed.
func (s *CartService) Clear(ctx context.Context, sessionID string) (int, error) {
	n, err := s.store.Clear(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}
	return n, nil
}

// Summarize totals a list of cart lines.
func Summarize(items []model.CartItem) model.CartSummary {
	var sum model.CartSummary
	for _, it := range items {
		sum.TotalItems += it.Quantity
		sum.TotalCost += it.Subtotal()
	}
	sum.UniqueProducts = len(items)
	sum.TotalCost = RoundCents(sum.TotalCost)
	return sum
}

// RoundCents rounds a currency amount to two decimals.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// IsNoItemsAdded reports whether err came from AddItems adding nothing.
func IsNoItemsAdded(err error) bool {
	return errors.Is(err, errx.ErrProductNotFound)
}
