package models

import (
	"time"

	"github.com/google/uuid"
)

// MultiSwap groups the SwapRequests materialized from an accepted barter
// chain. Completion is all-or-nothing across participants.
type MultiSwap struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	Status           string     `db:"status" json:"status"`
	ChainLength      int        `db:"chain_length" json:"chain_length"`
	TotalScore       float64    `db:"total_score" json:"total_score"`
	ConfirmDeadline  time.Time  `db:"confirm_deadline" json:"confirm_deadline"`
	CompletedAt      *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// MultiSwapParticipant is one member of a materialized chain. Each
// participant gives GiveProductID and receives ReceiveProductID from the
// next member of the cycle.
type MultiSwapParticipant struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	MultiSwapID      uuid.UUID  `db:"multi_swap_id" json:"multi_swap_id"`
	UserID           uuid.UUID  `db:"user_id" json:"user_id"`
	GiveProductID    uuid.UUID  `db:"give_product_id" json:"give_product_id"`
	ReceiveProductID uuid.UUID  `db:"receive_product_id" json:"receive_product_id"`
	Position         int        `db:"position" json:"position"`
	Confirmed        bool       `db:"confirmed" json:"confirmed"`
	ConfirmedAt      *time.Time `db:"confirmed_at" json:"confirmed_at,omitempty"`
}

// ChainNode is one hop of a candidate barter cycle before materialization.
type ChainNode struct {
	UserID           uuid.UUID `json:"user_id"`
	ProductID        uuid.UUID `json:"product_id"`
	WantsProductID   uuid.UUID `json:"wants_product_id"`
	ValorPrice       int64     `json:"valor_price"`
	City             *string   `json:"city,omitempty"`
	District         *string   `json:"district,omitempty"`
}

// SwapChain is a transient candidate cycle produced by the matcher.
type SwapChain struct {
	Participants      []ChainNode `json:"participants"`
	ChainLength       int         `json:"chain_length"`
	ValueBalanceScore float64     `json:"value_balance_score"`
	LocationScore     float64     `json:"location_score"`
	TotalScore        float64     `json:"total_score"`
}

// AverageValorPrice returns the mean of the participants' valor prices.
func (c *SwapChain) AverageValorPrice() float64 {
	if len(c.Participants) == 0 {
		return 0
	}
	var sum int64
	for _, p := range c.Participants {
		sum += p.ValorPrice
	}
	return float64(sum) / float64(len(c.Participants))
}
