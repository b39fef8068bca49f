package models

import (
	"time"

	"github.com/google/uuid"
)

// UserBalance is the transactional (valor_balance, locked_valor) pair.
// The escrow ledger is the sole source of truth: the pair must always be
// reconstructable by folding the user's entries in order.
type UserBalance struct {
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	ValorAmount int64     `db:"valor_balance" json:"valor_balance"`
	LockedValor int64     `db:"locked_valor" json:"locked_valor"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Available returns the spendable part of the balance.
func (b *UserBalance) Available() int64 {
	return b.ValorAmount - b.LockedValor
}

// EscrowEntry is one ledger movement for one user, optionally tied to a swap.
// Append-only.
type EscrowEntry struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	UserID        uuid.UUID  `db:"user_id" json:"user_id"`
	SwapRequestID *uuid.UUID `db:"swap_request_id" json:"swap_request_id,omitempty"`
	Type          string     `db:"type" json:"type"`
	Amount        int64      `db:"amount" json:"amount"`
	BalanceBefore int64      `db:"balance_before" json:"balance_before"`
	BalanceAfter  int64      `db:"balance_after" json:"balance_after"`
	LockedBefore  int64      `db:"locked_before" json:"locked_before"`
	LockedAfter   int64      `db:"locked_after" json:"locked_after"`
	Reason        string     `db:"reason" json:"reason"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// BalanceDelta returns the signed effect of the entry on valor_balance.
// Lock-type entries move locked_valor only and leave the balance untouched.
func (e *EscrowEntry) BalanceDelta() int64 {
	switch e.Type {
	case EscrowEntryCredit, EscrowEntryTransferIn, EscrowEntryRefund,
		EscrowEntryBonus, EscrowEntryReward:
		return e.Amount
	case EscrowEntryDebit, EscrowEntryTransferOut, EscrowEntryPayment:
		return -e.Amount
	default:
		return 0
	}
}

// LockedDelta returns the signed effect of the entry on locked_valor.
func (e *EscrowEntry) LockedDelta() int64 {
	switch e.Type {
	case EscrowEntryLock, EscrowEntryEscrowLock:
		return e.Amount
	case EscrowEntryUnlock, EscrowEntryEscrowRelease:
		return -e.Amount
	default:
		return 0
	}
}
