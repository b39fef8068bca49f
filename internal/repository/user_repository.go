package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gokselkaptan/takas-app-sub005/internal/models"
	"github.com/gokselkaptan/takas-app-sub005/internal/repository/common"
)

// UserRepository reads the user subset the swap core depends on and owns
// the trust-score mutation path.
type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID returns the user.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `
		SELECT id, username, trust_score, open_fraud_flags, city, district, created_at, updated_at
		FROM users WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("user repository: get %w", err)
	}
	return &user, nil
}

// AdjustTrustScore shifts the trust score by delta, clamped to [0,100]
// inside the statement so concurrent adjustments cannot escape the range.
func (r *UserRepository) AdjustTrustScore(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	var score int
	err := r.db.GetContext(ctx, &score, `
		UPDATE users
		SET trust_score = LEAST(100, GREATEST(0, trust_score + $2)), updated_at = NOW()
		WHERE id = $1
		RETURNING trust_score
	`, id, delta)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrNotFound
		}
		return 0, fmt.Errorf("user repository: adjust trust score %w", err)
	}
	return score, nil
}
