package domain

import "time"

// Product is the slice of the catalog the pricing engine needs: a base
// price, its currency, and the category used by rule narrowing filters.
// Catalog management itself lives outside this service.
type Product struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	CategoryID string  `json:"categoryId,omitempty"`
	BasePrice  float64 `json:"basePrice"`
	Currency   string  `json:"currency"`

	// GSTPercent is the flat tax rate resolved upstream for this product.
	GSTPercent float64 `json:"gstPercent,omitempty"`

	Active    bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}
