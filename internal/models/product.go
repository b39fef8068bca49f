package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the minimal listing subset the swap core needs: ownership,
// valuation inputs and the wants graph. Listing CRUD lives elsewhere.
type Product struct {
	ID         uuid.UUID `db:"id" json:"id"`
	OwnerID    uuid.UUID `db:"owner_id" json:"owner_id"`
	Title      string    `db:"title" json:"title"`
	Category   string    `db:"category" json:"category"`
	Condition  string    `db:"condition" json:"condition"`
	City       *string   `db:"city" json:"city,omitempty"`
	District   *string   `db:"district" json:"district,omitempty"`
	ValorPrice int64     `db:"valor_price" json:"valor_price"`
	ViewCount  int       `db:"view_count" json:"view_count"`
	Status     string    `db:"status" json:"status"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// ProductWant is one directed edge of the wants graph: the owner of
// ProductID would accept WantedProductID (explicit want) or anything in
// WantedCategory within the value tolerance.
type ProductWant struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	ProductID       uuid.UUID  `db:"product_id" json:"product_id"`
	WantedProductID *uuid.UUID `db:"wanted_product_id" json:"wanted_product_id,omitempty"`
	WantedCategory  *string    `db:"wanted_category" json:"wanted_category,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// CategoryStats is one row of the demand analytics pass input.
type CategoryStats struct {
	Category       string  `db:"category" json:"category"`
	ListingCount   int     `db:"listing_count" json:"listing_count"`
	AvgViews       float64 `db:"avg_views" json:"avg_views"`
	CompletedSwaps int     `db:"completed_swaps" json:"completed_swaps"`
}
