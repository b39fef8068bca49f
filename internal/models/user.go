package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the subset of the platform user the swap core reads and mutates.
// Identity, sessions and profile editing live in the identity subsystem.
type User struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	TrustScore     int       `db:"trust_score" json:"trust_score"`
	OpenFraudFlags int       `db:"open_fraud_flags" json:"open_fraud_flags"`
	City           *string   `db:"city" json:"city,omitempty"`
	District       *string   `db:"district" json:"district,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ClampTrustScore keeps a trust score inside [0,100].
func ClampTrustScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
