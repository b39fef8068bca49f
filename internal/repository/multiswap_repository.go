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

// MultiSwapRepository stores barter chains and their per-participant
// confirmation flags.
type MultiSwapRepository struct {
	db *sqlx.DB
}

func NewMultiSwapRepository(db *sqlx.DB) *MultiSwapRepository {
	return &MultiSwapRepository{db: db}
}

// Create inserts the chain grouping record and its participants in one
// transaction.
func (r *MultiSwapRepository) Create(ctx context.Context, ms *models.MultiSwap, participants []models.MultiSwapParticipant) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.GetContext(ctx, ms, `
		INSERT INTO multi_swaps (status, chain_length, total_score, confirm_deadline)
		VALUES ($1, $2, $3, $4)
		RETURNING id, status, chain_length, total_score, confirm_deadline, completed_at, created_at, updated_at
	`, ms.Status, ms.ChainLength, ms.TotalScore, ms.ConfirmDeadline)
	if err != nil {
		return fmt.Errorf("multiswap repository: create %w", err)
	}

	for i := range participants {
		p := &participants[i]
		p.MultiSwapID = ms.ID
		err = tx.GetContext(ctx, p, `
			INSERT INTO multi_swap_participants (multi_swap_id, user_id, give_product_id, receive_product_id, position)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, multi_swap_id, user_id, give_product_id, receive_product_id, position, confirmed, confirmed_at
		`, p.MultiSwapID, p.UserID, p.GiveProductID, p.ReceiveProductID, p.Position)
		if err != nil {
			return fmt.Errorf("multiswap repository: create participant %w", err)
		}
	}

	return tx.Commit()
}

// GetByID returns the chain record.
func (r *MultiSwapRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MultiSwap, error) {
	var ms models.MultiSwap
	err := r.db.GetContext(ctx, &ms, `
		SELECT id, status, chain_length, total_score, confirm_deadline, completed_at, created_at, updated_at
		FROM multi_swaps WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("multiswap repository: get %w", err)
	}
	return &ms, nil
}

// ListParticipants returns the chain members ordered by position.
func (r *MultiSwapRepository) ListParticipants(ctx context.Context, multiSwapID uuid.UUID) ([]models.MultiSwapParticipant, error) {
	var participants []models.MultiSwapParticipant
	err := r.db.SelectContext(ctx, &participants, `
		SELECT id, multi_swap_id, user_id, give_product_id, receive_product_id, position, confirmed, confirmed_at
		FROM multi_swap_participants WHERE multi_swap_id = $1 ORDER BY position
	`, multiSwapID)
	return participants, err
}

// ConfirmParticipant flips one participant's flag and reports whether the
// whole chain is now confirmed, all under a FOR UPDATE lock on the chain
// row so two last confirmations cannot both see an incomplete set.
func (r *MultiSwapRepository) ConfirmParticipant(ctx context.Context, multiSwapID, userID uuid.UUID, now time.Time) (allConfirmed bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var status string
	err = tx.GetContext(ctx, &status, `SELECT status FROM multi_swaps WHERE id = $1 FOR UPDATE`, multiSwapID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, common.ErrNotFound
		}
		return false, err
	}
	if status != models.MultiSwapStatusProposed {
		return false, fmt.Errorf("multiswap repository: chain %s is %s, not confirmable", multiSwapID, status)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE multi_swap_participants SET confirmed = TRUE, confirmed_at = $3
		WHERE multi_swap_id = $1 AND user_id = $2 AND NOT confirmed
	`, multiSwapID, userID, now)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		// Either not a participant or already confirmed; the caller decides.
		var count int
		if err := tx.GetContext(ctx, &count, `
			SELECT COUNT(*) FROM multi_swap_participants WHERE multi_swap_id = $1 AND user_id = $2
		`, multiSwapID, userID); err != nil {
			return false, err
		}
		if count == 0 {
			return false, common.ErrNotFound
		}
	}

	var remaining int
	err = tx.GetContext(ctx, &remaining, `
		SELECT COUNT(*) FROM multi_swap_participants WHERE multi_swap_id = $1 AND NOT confirmed
	`, multiSwapID)
	if err != nil {
		return false, err
	}

	if remaining == 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE multi_swaps SET status = $2, updated_at = NOW() WHERE id = $1
		`, multiSwapID, models.MultiSwapStatusConfirmed); err != nil {
			return false, err
		}
	}

	return remaining == 0, tx.Commit()
}

// UpdateStatus moves the chain between states.
func (r *MultiSwapRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string, completedAt *time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE multi_swaps SET status = $2, completed_at = $3, updated_at = NOW() WHERE id = $1
	`, id, status, completedAt)
	if err != nil {
		return fmt.Errorf("multiswap repository: update status %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}

// ListExpiredUnconfirmed picks proposed chains whose confirmation deadline
// passed, for saga compensation by the sweep.
func (r *MultiSwapRepository) ListExpiredUnconfirmed(ctx context.Context, now time.Time, limit int) ([]models.MultiSwap, error) {
	var chains []models.MultiSwap
	err := r.db.SelectContext(ctx, &chains, `
		SELECT id, status, chain_length, total_score, confirm_deadline, completed_at, created_at, updated_at
		FROM multi_swaps
		WHERE status = $1 AND confirm_deadline < $2
		ORDER BY confirm_deadline LIMIT $3
	`, models.MultiSwapStatusProposed, now, limit)
	return chains, err
}
