package domain

import "time"

// Product is the catalog entry managed over the CRUD endpoints.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       float64
	Quantity    int
	CreatedBy   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductPatch carries a partial update; nil fields stay unchanged.
type ProductPatch struct {
	Name        *string
	Description *string
	Price       *float64
	Quantity    *int
}

// Empty reports whether the patch changes nothing.
func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil && p.Quantity == nil
}
