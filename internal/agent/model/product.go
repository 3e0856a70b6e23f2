package model

// Product is a catalog record as stored by the product repository.
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Brand       string  `json:"brand"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	SalePrice   float64 `json:"salePrice"`
	MarketPrice float64 `json:"marketPrice"`
	Rating      float64 `json:"rating"`
	InStock     bool    `json:"inStock"`
}

// Ref projects the product into the read-only shape handed to the model.
func (p Product) Ref() ProductRef {
	rating := p.Rating
	brand := p.Brand
	if brand == "" {
		brand = "Generic"
	}
	return ProductRef{
		ID:       p.ID,
		Name:     p.Name,
		Brand:    brand,
		Price:    p.SalePrice,
		Category: p.Category,
		Rating:   &rating,
	}
}

// OnSale reports whether the sale price undercuts the market price.
func (p Product) OnSale() bool {
	return p.MarketPrice > 0 && p.SalePrice < p.MarketPrice
}

// ProductRef is a read-only projection of a catalog product.
type ProductRef struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Brand    string   `json:"brand"`
	Price    float64  `json:"price"`
	Category string   `json:"category"`
	Rating   *float64 `json:"rating,omitempty"`
}

// ScoredProduct is a product returned by similarity search.
type ScoredProduct struct {
	Product    Product
	Similarity float64
}

// IngredientMatch pairs an ingredient with its best catalog product; a nil
// SuggestedProduct means nothing cleared the similarity floor.
type IngredientMatch struct {
	IngredientName   string      `json:"ingredientName"`
	QuantityHint     string      `json:"quantityHint,omitempty"`
	SuggestedProduct *ProductRef `json:"suggestedProduct"`
}

// Ingredient is one item of a model-extracted recipe ingredient list.
type Ingredient struct {
	Name      string `json:"name"`
	Quantity  string `json:"quantity"`
	Essential bool   `json:"essential"`
}

// RecipeIngredients is the parsed output of the ingredient extraction prompt.
type RecipeIngredients struct {
	Recipe      string       `json:"recipe"`
	Ingredients []Ingredient `json:"ingredients"`
}

// SearchQuery is the validated input of a product search.
type SearchQuery struct {
	Query             string
	Category          string
	MaxPrice          float64
	MinRating         float64
	Limit             int
	UseSemanticSearch bool
}

// SearchType reports which retrieval produced the results.
type SearchType string

const (
	SearchSemantic SearchType = "semantic"
	SearchKeyword  SearchType = "keyword"
	SearchHybrid   SearchType = "hybrid"
)

// SearchOutcome is the result of ProductService.Search.
type SearchOutcome struct {
	Products   []ScoredProduct
	SearchType SearchType
	// CategoryDropped is set when the category filter was relaxed to find results.
	CategoryDropped bool
}
