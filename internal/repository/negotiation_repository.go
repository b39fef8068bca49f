package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gokselkaptan/takas-app-sub005/internal/models"
)

// NegotiationRepository stores the append-only negotiation event log.
// Entries are never updated or deleted.
type NegotiationRepository struct {
	db *sqlx.DB
}

func NewNegotiationRepository(db *sqlx.DB) *NegotiationRepository {
	return &NegotiationRepository{db: db}
}

// Append writes one negotiation event.
func (r *NegotiationRepository) Append(ctx context.Context, event *models.NegotiationEvent) error {
	query := `
		INSERT INTO negotiation_events (swap_request_id, actor_id, action_type, proposed_price, previous_price, message)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, swap_request_id, actor_id, action_type, proposed_price, previous_price, message, created_at
	`
	err := r.db.GetContext(ctx, event, query,
		event.SwapRequestID, event.ActorID, event.ActionType,
		event.ProposedPrice, event.PreviousPrice, event.Message)
	if err != nil {
		return fmt.Errorf("negotiation repository: append %w", err)
	}
	return nil
}

// ListBySwap returns the full negotiation history in order.
func (r *NegotiationRepository) ListBySwap(ctx context.Context, swapID uuid.UUID) ([]models.NegotiationEvent, error) {
	var events []models.NegotiationEvent
	err := r.db.SelectContext(ctx, &events, `
		SELECT id, swap_request_id, actor_id, action_type, proposed_price, previous_price, message, created_at
		FROM negotiation_events WHERE swap_request_id = $1 ORDER BY created_at, id
	`, swapID)
	return events, err
}
