package models

import (
	"time"

	"github.com/google/uuid"
)

// SwapRequest describes one proposed or executing exchange between a
// requester and an owner over a product. Kept forever as an audit record
// after reaching a terminal state.
type SwapRequest struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	RequesterID          uuid.UUID  `db:"requester_id" json:"requester_id"`
	OwnerID              uuid.UUID  `db:"owner_id" json:"owner_id"`
	ProductID            uuid.UUID  `db:"product_id" json:"product_id"`
	OfferedProductID     *uuid.UUID `db:"offered_product_id" json:"offered_product_id,omitempty"`
	MultiSwapID          *uuid.UUID `db:"multi_swap_id" json:"multi_swap_id,omitempty"`
	Status               string     `db:"status" json:"status"`
	NegotiationStatus    string     `db:"negotiation_status" json:"negotiation_status"`
	AgreedPriceRequester *int64     `db:"agreed_price_requester" json:"agreed_price_requester,omitempty"`
	AgreedPriceOwner     *int64     `db:"agreed_price_owner" json:"agreed_price_owner,omitempty"`
	CounterOfferCount    int        `db:"counter_offer_count" json:"counter_offer_count"`
	MaxCounterOffers     int        `db:"max_counter_offers" json:"max_counter_offers"`
	LastCounterOfferAt   *time.Time `db:"last_counter_offer_at" json:"last_counter_offer_at,omitempty"`
	NegotiationDeadline  *time.Time `db:"negotiation_deadline" json:"negotiation_deadline,omitempty"`
	PriceAgreedAt        *time.Time `db:"price_agreed_at" json:"price_agreed_at,omitempty"`
	PendingValorAmount   int64      `db:"pending_valor_amount" json:"pending_valor_amount"`
	DeliveryType         string     `db:"delivery_type" json:"delivery_type"`
	RiskTier             *string    `db:"risk_tier" json:"risk_tier,omitempty"`
	DropOffDeadline      *time.Time `db:"drop_off_deadline" json:"drop_off_deadline,omitempty"`
	DisputeWindowEndsAt  *time.Time `db:"dispute_window_ends_at" json:"dispute_window_ends_at,omitempty"`
	AutoCompleteBlocked  bool       `db:"auto_complete_blocked" json:"-"`
	Version              int        `db:"version" json:"-"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// AgreedPrice returns the agreed price once both sides match, otherwise nil.
func (s *SwapRequest) AgreedPrice() *int64 {
	if s.AgreedPriceRequester == nil || s.AgreedPriceOwner == nil {
		return nil
	}
	if *s.AgreedPriceRequester != *s.AgreedPriceOwner {
		return nil
	}
	return s.AgreedPriceRequester
}

// IsParty reports whether the user is one of the two swap parties.
func (s *SwapRequest) IsParty(userID uuid.UUID) bool {
	return userID == s.RequesterID || userID == s.OwnerID
}

// Counterparty returns the other party of the swap.
func (s *SwapRequest) Counterparty(userID uuid.UUID) uuid.UUID {
	if userID == s.RequesterID {
		return s.OwnerID
	}
	return s.RequesterID
}

// NegotiationEvent is one immutable log entry of a negotiation action.
// Never mutated or deleted.
type NegotiationEvent struct {
	ID            uuid.UUID `db:"id" json:"id"`
	SwapRequestID uuid.UUID `db:"swap_request_id" json:"swap_request_id"`
	ActorID       uuid.UUID `db:"actor_id" json:"actor_id"`
	ActionType    string    `db:"action_type" json:"action_type"`
	ProposedPrice *int64    `db:"proposed_price" json:"proposed_price,omitempty"`
	PreviousPrice *int64    `db:"previous_price" json:"previous_price,omitempty"`
	Message       *string   `db:"message" json:"message,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
