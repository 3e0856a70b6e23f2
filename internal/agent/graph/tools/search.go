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

const maxDescriptionLen = 100

// ===================================
// Search Products Tool
// ===================================

type SearchInput struct {
	Query             string  `json:"query" validate:"required,max=200"`
	Category          string  `json:"category,omitempty" validate:"max=60"`
	MaxPrice          float64 `json:"maxPrice,omitempty" validate:"gte=0"`
	MinRating         float64 `json:"minRating,omitempty" validate:"gte=0,lte=5"`
	Limit             int     `json:"limit,omitempty" validate:"gte=0,lte=20"`
	UseSemanticSearch *bool   `json:"useSemanticSearch,omitempty"`
}

type SearchProduct struct {
	model.ProductRef
	MarketPrice   float64  `json:"marketPrice"`
	Discount      float64  `json:"discount"`
	IsOnSale      bool     `json:"isOnSale"`
	Description   string   `json:"description"`
	SemanticScore *float64 `json:"semanticScore,omitempty"`
	ProductURL    string   `json:"productUrl"`
}

type SearchOutput struct {
	Type       model.ToolResultType `json:"type"`
	Success    bool                 `json:"success"`
	Query      string               `json:"query"`
	Products   []SearchProduct      `json:"products"`
	TotalFound int                  `json:"totalFound"`
	TotalCost  float64              `json:"totalCost"`
	SearchType model.SearchType     `json:"searchType"`
	Message    string               `json:"message,omitempty"`
}

func (r *Registry) newSearchTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolSearchProducts.String(),
			Desc: "Search the grocery catalog. Use for specific product requests and for more options or brands after a recipe answer. Returns products with id, price, brand and rating.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     schema.String,
					Desc:     "What to search for, e.g. \"basmati rice\" or \"organic honey\"",
					Required: true,
				},
				"category": {
					Type: schema.String,
					Desc: "Optional category filter, e.g. Dairy, Produce, Meat & Seafood, Spices, Pantry, Bakery",
				},
				"maxPrice": {
					Type: schema.Number,
					Desc: "Optional maximum sale price",
				},
				"minRating": {
					Type: schema.Number,
					Desc: "Optional minimum rating from 0 to 5",
				},
				"limit": {
					Type: schema.Integer,
					Desc: "Maximum number of products to return (default 8, max 20)",
				},
				"useSemanticSearch": {
					Type: schema.Boolean,
					Desc: "Use meaning-based search (default true). Set false for exact keyword matching.",
				},
			}),
		},
		r.searchProducts,
	)
}

func (r *Registry) searchProducts(ctx context.Context, in *SearchInput) (*SearchOutput, error) {
	if err := r.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", errx.ErrInvalidArguments, err)
	}

	semantic := true
	if in.UseSemanticSearch != nil {
		semantic = *in.UseSemanticSearch
	}
	res, err := r.deps.Products.Search(ctx, model.SearchQuery{
		Query:             in.Query,
		Category:          in.Category,
		MaxPrice:          in.MaxPrice,
		MinRating:         in.MinRating,
		Limit:             in.Limit,
		UseSemanticSearch: semantic,
	})
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}

	out := &SearchOutput{
		Type:       model.ResultProductSearch,
		Success:    true,
		Query:      in.Query,
		Products:   make([]SearchProduct, 0, len(res.Products)),
		SearchType: res.SearchType,
	}
	for _, sp := range res.Products {
		out.Products = append(out.Products, toSearchProduct(sp))
		out.TotalCost += sp.Product.SalePrice
	}
	out.TotalFound = len(out.Products)
	out.TotalCost = service.RoundCents(out.TotalCost)

	switch {
	case out.TotalFound == 0:
		out.Message = fmt.Sprintf("No products found for %q", in.Query)
	case res.CategoryDropped:
		out.Message = fmt.Sprintf("No %s products matched; showing results from all categories", in.Category)
	}
	return out, nil
}

func toSearchProduct(sp model.ScoredProduct) SearchProduct {
	p := sp.Product
	out := SearchProduct{
		ProductRef:  p.Ref(),
		MarketPrice: p.MarketPrice,
		IsOnSale:    p.OnSale(),
		Description: truncateRunes(p.Description, maxDescriptionLen),
		ProductURL:  "/product/" + p.ID,
	}
	if out.IsOnSale {
		out.Discount = service.RoundCents(p.MarketPrice - p.SalePrice)
	}
	if sp.Similarity > 0 {
		score := sp.Similarity
		out.SemanticScore = &score
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
