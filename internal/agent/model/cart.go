package model

import "time"

// CartItem is one product line of a session cart.
type CartItem struct {
	ProductID string    `json:"productId"`
	Name      string    `json:"name"`
	Brand     string    `json:"brand"`
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"addedAt"`
}

// Subtotal is price times quantity.
func (c CartItem) Subtotal() float64 {
	return c.Price * float64(c.Quantity)
}

// CartSummary aggregates a cart.
type CartSummary struct {
	TotalItems     int     `json:"totalItems"`
	UniqueProducts int     `json:"uniqueProducts"`
	TotalCost      float64 `json:"totalCost"`
}

// AddedItem reports one successfully added line.
type AddedItem struct {
	ProductID   string  `json:"productId"`
	Name        string  `json:"name"`
	Quantity    int     `json:"quantity"`
	NewQuantity int     `json:"newQuantity"`
	Price       float64 `json:"price"`
}
