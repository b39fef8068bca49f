package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gokselkaptan/takas-app-sub005/internal/models"
	"github.com/gokselkaptan/takas-app-sub005/internal/repository/common"
)

const swapColumns = `
	id, requester_id, owner_id, product_id, offered_product_id, multi_swap_id,
	status, negotiation_status, agreed_price_requester, agreed_price_owner,
	counter_offer_count, max_counter_offers, last_counter_offer_at,
	negotiation_deadline, price_agreed_at, pending_valor_amount, delivery_type,
	risk_tier, drop_off_deadline, dispute_window_ends_at, auto_complete_blocked,
	version, created_at, updated_at`

// SwapRepository stores swap requests. Writes go through an optimistic
// version check: a mutation computed against a stale row affects zero rows
// and surfaces common.ErrStaleVersion, never a lost update.
type SwapRepository struct {
	db *sqlx.DB
}

func NewSwapRepository(db *sqlx.DB) *SwapRepository {
	return &SwapRepository{db: db}
}

// Create inserts a new swap request in its initial state.
func (r *SwapRepository) Create(ctx context.Context, swap *models.SwapRequest) error {
	query := `
		INSERT INTO swap_requests (
			requester_id, owner_id, product_id, offered_product_id, multi_swap_id,
			status, negotiation_status, max_counter_offers, negotiation_deadline,
			pending_valor_amount, delivery_type
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + swapColumns
	err := r.db.GetContext(ctx, swap, query,
		swap.RequesterID, swap.OwnerID, swap.ProductID, swap.OfferedProductID, swap.MultiSwapID,
		swap.Status, swap.NegotiationStatus, swap.MaxCounterOffers, swap.NegotiationDeadline,
		swap.PendingValorAmount, swap.DeliveryType,
	)
	if err != nil {
		return fmt.Errorf("swap repository: create %w", err)
	}
	return nil
}

// GetByID returns one swap request.
func (r *SwapRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SwapRequest, error) {
	var swap models.SwapRequest
	err := r.db.GetContext(ctx, &swap, `SELECT `+swapColumns+` FROM swap_requests WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("swap repository: get %w", err)
	}
	return &swap, nil
}

// Update writes every mutable field guarded by the version the caller read.
// Zero affected rows means a concurrent writer got there first.
func (r *SwapRepository) Update(ctx context.Context, swap *models.SwapRequest) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE swap_requests SET
			status = $2,
			negotiation_status = $3,
			agreed_price_requester = $4,
			agreed_price_owner = $5,
			counter_offer_count = $6,
			last_counter_offer_at = $7,
			negotiation_deadline = $8,
			price_agreed_at = $9,
			pending_valor_amount = $10,
			risk_tier = $11,
			drop_off_deadline = $12,
			dispute_window_ends_at = $13,
			auto_complete_blocked = $14,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND version = $15
	`, swap.ID, swap.Status, swap.NegotiationStatus, swap.AgreedPriceRequester,
		swap.AgreedPriceOwner, swap.CounterOfferCount, swap.LastCounterOfferAt,
		swap.NegotiationDeadline, swap.PriceAgreedAt, swap.PendingValorAmount,
		swap.RiskTier, swap.DropOffDeadline, swap.DisputeWindowEndsAt,
		swap.AutoCompleteBlocked, swap.Version)
	if err != nil {
		return fmt.Errorf("swap repository: update %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("swap repository: update rows affected %w", err)
	}
	if affected == 0 {
		return common.ErrStaleVersion
	}

	swap.Version++
	return nil
}

// ListByUser returns the user's swaps on either side, newest first.
func (r *SwapRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.SwapRequest, error) {
	var swaps []models.SwapRequest
	err := r.db.SelectContext(ctx, &swaps, `
		SELECT `+swapColumns+` FROM swap_requests
		WHERE requester_id = $1 OR owner_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return swaps, err
}

// ListByMultiSwap returns every swap materialized from a barter chain.
func (r *SwapRepository) ListByMultiSwap(ctx context.Context, multiSwapID uuid.UUID) ([]models.SwapRequest, error) {
	var swaps []models.SwapRequest
	err := r.db.SelectContext(ctx, &swaps, `
		SELECT `+swapColumns+` FROM swap_requests WHERE multi_swap_id = $1 ORDER BY created_at
	`, multiSwapID)
	return swaps, err
}

// ListExpiredNegotiations picks swaps whose negotiation deadline passed.
// The list is only a hint for the sweep; the optimistic version check on
// Update keeps concurrent sweeps from double-applying a transition.
func (r *SwapRepository) ListExpiredNegotiations(ctx context.Context, now time.Time, limit int) ([]models.SwapRequest, error) {
	var swaps []models.SwapRequest
	err := r.db.SelectContext(ctx, &swaps, `
		SELECT `+swapColumns+` FROM swap_requests
		WHERE status IN ($1, $2)
		  AND negotiation_deadline IS NOT NULL AND negotiation_deadline < $3
		ORDER BY negotiation_deadline LIMIT $4
	`, models.SwapStatusPending, models.SwapStatusNegotiating, now, limit)
	return swaps, err
}

// ListExpiredDropOffs picks dropped-off swaps nobody picked up in time.
func (r *SwapRepository) ListExpiredDropOffs(ctx context.Context, now time.Time, limit int) ([]models.SwapRequest, error) {
	var swaps []models.SwapRequest
	err := r.db.SelectContext(ctx, &swaps, `
		SELECT `+swapColumns+` FROM swap_requests
		WHERE status = $1
		  AND drop_off_deadline IS NOT NULL AND drop_off_deadline < $2
		ORDER BY drop_off_deadline LIMIT $3
	`, models.SwapStatusDroppedOff, now, limit)
	return swaps, err
}

// ListAutoCompletable picks delivered swaps whose dispute window closed
// without a dispute. Rows the sweep found ineligible are flagged and never
// re-selected, so they cannot crowd newer swaps out of the batch.
func (r *SwapRepository) ListAutoCompletable(ctx context.Context, now time.Time, limit int) ([]models.SwapRequest, error) {
	var swaps []models.SwapRequest
	err := r.db.SelectContext(ctx, &swaps, `
		SELECT `+swapColumns+` FROM swap_requests
		WHERE status IN ($1, $2)
		  AND NOT auto_complete_blocked
		  AND dispute_window_ends_at IS NOT NULL AND dispute_window_ends_at < $3
		ORDER BY dispute_window_ends_at LIMIT $4
	`, models.SwapStatusInspection, models.SwapStatusCodeSent, now, limit)
	return swaps, err
}
