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

// EscrowRepository owns the (valor_balance, locked_valor) pair and the
// append-only escrow_entries ledger. Every mutation is one transaction with
// a FOR UPDATE row lock on the affected balances, so concurrent operations
// on the same user serialize at the database.
type EscrowRepository struct {
	db *sqlx.DB
}

func NewEscrowRepository(db *sqlx.DB) *EscrowRepository {
	return &EscrowRepository{db: db}
}

// GetBalance returns the user's balance, creating a zero row if missing.
func (r *EscrowRepository) GetBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error) {
	var balance models.UserBalance
	query := `
		INSERT INTO user_balances (user_id, valor_balance, locked_valor)
		VALUES ($1, 0, 0)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		RETURNING user_id, valor_balance, locked_valor, updated_at
	`
	if err := r.db.GetContext(ctx, &balance, query, userID); err != nil {
		return nil, fmt.Errorf("escrow repository: get balance %w", err)
	}
	return &balance, nil
}

// Lock reserves amount of the user's available valor against a swap.
// entryType is LOCK for risk deposits and ESCROW_LOCK for the payment hold.
// Fails with common.ErrInsufficientFunds when amount exceeds
// valor_balance - locked_valor.
func (r *EscrowRepository) Lock(ctx context.Context, userID uuid.UUID, amount int64, swapID *uuid.UUID, entryType, reason string) (*models.EscrowEntry, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	balance, err := lockBalanceRow(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if amount > balance.Available() {
		return nil, common.ErrInsufficientFunds
	}

	entry, err := applyMovement(ctx, tx, balance, &models.EscrowEntry{
		UserID:        userID,
		SwapRequestID: swapID,
		Type:          entryType,
		Amount:        amount,
		Reason:        reason,
	})
	if err != nil {
		return nil, err
	}

	return entry, tx.Commit()
}

// Unlock releases a previously locked amount without moving the balance.
// entryType is UNLOCK for risk deposits and ESCROW_RELEASE for payment holds.
func (r *EscrowRepository) Unlock(ctx context.Context, userID uuid.UUID, amount int64, swapID *uuid.UUID, entryType, reason string) (*models.EscrowEntry, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	balance, err := lockBalanceRow(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if amount > balance.LockedValor {
		return nil, fmt.Errorf("escrow repository: unlock %d exceeds locked %d for user %s", amount, balance.LockedValor, userID)
	}

	entry, err := applyMovement(ctx, tx, balance, &models.EscrowEntry{
		UserID:        userID,
		SwapRequestID: swapID,
		Type:          entryType,
		Amount:        amount,
		Reason:        reason,
	})
	if err != nil {
		return nil, err
	}

	return entry, tx.Commit()
}

// Credit adds valor to the user's balance (CREDIT, REFUND, BONUS, REWARD).
func (r *EscrowRepository) Credit(ctx context.Context, userID uuid.UUID, amount int64, swapID *uuid.UUID, entryType, reason string) (*models.EscrowEntry, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	balance, err := lockBalanceRow(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	entry, err := applyMovement(ctx, tx, balance, &models.EscrowEntry{
		UserID:        userID,
		SwapRequestID: swapID,
		Type:          entryType,
		Amount:        amount,
		Reason:        reason,
	})
	if err != nil {
		return nil, err
	}

	return entry, tx.Commit()
}

// Debit removes valor from the user's available balance (DEBIT, PAYMENT).
func (r *EscrowRepository) Debit(ctx context.Context, userID uuid.UUID, amount int64, swapID *uuid.UUID, entryType, reason string) (*models.EscrowEntry, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	balance, err := lockBalanceRow(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if amount > balance.Available() {
		return nil, common.ErrInsufficientFunds
	}

	entry, err := applyMovement(ctx, tx, balance, &models.EscrowEntry{
		UserID:        userID,
		SwapRequestID: swapID,
		Type:          entryType,
		Amount:        amount,
		Reason:        reason,
	})
	if err != nil {
		return nil, err
	}

	return entry, tx.Commit()
}

// Settle performs the completed-swap settlement in one transaction:
// the payer's payment hold is released and transferred out, the payee
// receives the net amount, the community pool receives the fee and the
// outstanding risk deposits of both parties are unlocked.
func (r *EscrowRepository) Settle(ctx context.Context, swapID uuid.UUID, payerID, payeeID, poolID uuid.UUID, amount, fee int64) ([]models.EscrowEntry, error) {
	if fee < 0 || fee > amount {
		return nil, fmt.Errorf("escrow repository: fee %d out of range for amount %d", fee, amount)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Lock balance rows in a stable order so two settlements touching the
	// same users cannot deadlock.
	balances, err := lockBalanceRows(ctx, tx, payerID, payeeID, poolID)
	if err != nil {
		return nil, err
	}

	ledger, err := swapEntries(ctx, tx, swapID)
	if err != nil {
		return nil, err
	}
	outstanding := foldOutstanding(ledger)
	if outstanding[payerID][models.EscrowEntryEscrowLock] < amount {
		// A repeated completion (crash retry, dispute resolved back to
		// completed) finds the hold already consumed. No-op, not an error.
		if settledAmount(ledger, payerID) >= amount {
			return nil, tx.Commit()
		}
		return nil, fmt.Errorf("escrow repository: payment hold for swap %s is smaller than settlement amount %d", swapID, amount)
	}

	var entries []models.EscrowEntry

	post := func(userID uuid.UUID, entryType string, amt int64, reason string) error {
		if amt <= 0 {
			return nil
		}
		entry, err := applyMovement(ctx, tx, balances[userID], &models.EscrowEntry{
			UserID:        userID,
			SwapRequestID: &swapID,
			Type:          entryType,
			Amount:        amt,
			Reason:        reason,
		})
		if err != nil {
			return err
		}
		entries = append(entries, *entry)
		return nil
	}

	// Payment hold: release the lock, then move the valor out.
	if err := post(payerID, models.EscrowEntryEscrowRelease, amount, "payment hold released for settlement"); err != nil {
		return nil, err
	}
	if err := post(payerID, models.EscrowEntryTransferOut, amount, "swap settlement"); err != nil {
		return nil, err
	}
	if err := post(payeeID, models.EscrowEntryTransferIn, amount-fee, "swap settlement"); err != nil {
		return nil, err
	}
	if err := post(poolID, models.EscrowEntryCredit, fee, "platform fee"); err != nil {
		return nil, err
	}

	// Risk deposits of both parties go back in full.
	for _, userID := range []uuid.UUID{payerID, payeeID} {
		if dep := outstanding[userID][models.EscrowEntryLock]; dep > 0 {
			if err := post(userID, models.EscrowEntryUnlock, dep, "risk deposit returned"); err != nil {
				return nil, err
			}
		}
	}

	return entries, tx.Commit()
}

// ReverseSettlement posts the compensating transfers that undo a completed
// settlement: the payer's payment comes back, the payee and the pool give
// up what they received. Driven by the ledger fold, so a swap that never
// settled, or was already reversed, produces no entries.
func (r *EscrowRepository) ReverseSettlement(ctx context.Context, swapID uuid.UUID, reason string) ([]models.EscrowEntry, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ledger, err := swapEntries(ctx, tx, swapID)
	if err != nil {
		return nil, err
	}
	net := settlementNet(ledger)

	userIDs := make([]uuid.UUID, 0, len(net))
	for userID, delta := range net {
		if delta != 0 {
			userIDs = append(userIDs, userID)
		}
	}
	if len(userIDs) == 0 {
		return nil, tx.Commit()
	}
	balances, err := lockBalanceRows(ctx, tx, userIDs...)
	if err != nil {
		return nil, err
	}

	var entries []models.EscrowEntry
	for _, userID := range userIDs {
		entryType := models.EscrowEntryDebit
		amount := net[userID]
		if amount < 0 {
			entryType = models.EscrowEntryRefund
			amount = -amount
		}
		entry, err := applyMovement(ctx, tx, balances[userID], &models.EscrowEntry{
			UserID:        userID,
			SwapRequestID: &swapID,
			Type:          entryType,
			Amount:        amount,
			Reason:        reason,
		})
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	return entries, tx.Commit()
}

// RefundSwapLocks releases every outstanding lock tied to a swap without
// any transfer. Safe to call repeatedly: already-released locks are no-ops.
func (r *EscrowRepository) RefundSwapLocks(ctx context.Context, swapID uuid.UUID, reason string) ([]models.EscrowEntry, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ledger, err := swapEntries(ctx, tx, swapID)
	if err != nil {
		return nil, err
	}
	outstanding := foldOutstanding(ledger)

	userIDs := make([]uuid.UUID, 0, len(outstanding))
	for userID := range outstanding {
		userIDs = append(userIDs, userID)
	}
	balances, err := lockBalanceRows(ctx, tx, userIDs...)
	if err != nil {
		return nil, err
	}

	var entries []models.EscrowEntry
	for userID, byType := range outstanding {
		for lockType, amount := range byType {
			if amount <= 0 {
				continue
			}
			releaseType := models.EscrowEntryUnlock
			if lockType == models.EscrowEntryEscrowLock {
				releaseType = models.EscrowEntryEscrowRelease
			}
			entry, err := applyMovement(ctx, tx, balances[userID], &models.EscrowEntry{
				UserID:        userID,
				SwapRequestID: &swapID,
				Type:          releaseType,
				Amount:        amount,
				Reason:        reason,
			})
			if err != nil {
				return nil, err
			}
			entries = append(entries, *entry)
		}
	}

	return entries, tx.Commit()
}

// ListEntries returns the user's ledger history, newest first.
func (r *EscrowRepository) ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.EscrowEntry, error) {
	var entries []models.EscrowEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT id, user_id, swap_request_id, type, amount, balance_before, balance_after,
		       locked_before, locked_after, reason, created_at
		FROM escrow_entries WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return entries, err
}

// ListEntriesBySwap returns every ledger movement of a swap in order.
func (r *EscrowRepository) ListEntriesBySwap(ctx context.Context, swapID uuid.UUID) ([]models.EscrowEntry, error) {
	var entries []models.EscrowEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT id, user_id, swap_request_id, type, amount, balance_before, balance_after,
		       locked_before, locked_after, reason, created_at
		FROM escrow_entries WHERE swap_request_id = $1 ORDER BY created_at, id
	`, swapID)
	return entries, err
}

// lockBalanceRow selects a single balance row FOR UPDATE, creating it first
// if the user has no balance yet.
func lockBalanceRow(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*models.UserBalance, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO user_balances (user_id, valor_balance, locked_valor)
		VALUES ($1, 0, 0) ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return nil, err
	}

	var balance models.UserBalance
	err = tx.GetContext(ctx, &balance, `
		SELECT user_id, valor_balance, locked_valor, updated_at
		FROM user_balances WHERE user_id = $1 FOR UPDATE
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return &balance, nil
}

// lockBalanceRows locks several balance rows ordered by user id.
func lockBalanceRows(ctx context.Context, tx *sqlx.Tx, userIDs ...uuid.UUID) (map[uuid.UUID]*models.UserBalance, error) {
	seen := make(map[uuid.UUID]struct{}, len(userIDs))
	ordered := make([]uuid.UUID, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ordered = append(ordered, id)
	}
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j].String() < ordered[i].String() {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}

	balances := make(map[uuid.UUID]*models.UserBalance, len(ordered))
	for _, id := range ordered {
		balance, err := lockBalanceRow(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		balances[id] = balance
	}
	return balances, nil
}

// stampMovement fills the entry's before/after snapshots against the given
// balance and rejects any movement that would break the balance invariant
// (negative balance, negative locked, or locked exceeding balance). Pure;
// the serialization that makes two concurrent movements see each other is
// the FOR UPDATE row lock taken by the caller.
func stampMovement(balance *models.UserBalance, entry *models.EscrowEntry) error {
	if entry.Amount <= 0 {
		return fmt.Errorf("escrow repository: movement amount must be positive")
	}

	entry.BalanceBefore = balance.ValorAmount
	entry.LockedBefore = balance.LockedValor
	entry.BalanceAfter = balance.ValorAmount + entry.BalanceDelta()
	entry.LockedAfter = balance.LockedValor + entry.LockedDelta()

	if entry.BalanceAfter < 0 || entry.LockedAfter < 0 || entry.BalanceAfter < entry.LockedAfter {
		return fmt.Errorf("escrow repository: movement %s %d would break balance invariant for user %s", entry.Type, entry.Amount, entry.UserID)
	}
	return nil
}

// applyMovement updates the locked balance row and appends the ledger entry
// with before/after snapshots. The caller holds the row lock.
func applyMovement(ctx context.Context, tx *sqlx.Tx, balance *models.UserBalance, entry *models.EscrowEntry) (*models.EscrowEntry, error) {
	if err := stampMovement(balance, entry); err != nil {
		return nil, err
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE user_balances SET valor_balance = $2, locked_valor = $3, updated_at = NOW()
		WHERE user_id = $1
	`, entry.UserID, entry.BalanceAfter, entry.LockedAfter)
	if err != nil {
		return nil, err
	}

	balance.ValorAmount = entry.BalanceAfter
	balance.LockedValor = entry.LockedAfter

	err = tx.GetContext(ctx, entry, `
		INSERT INTO escrow_entries (user_id, swap_request_id, type, amount, balance_before, balance_after, locked_before, locked_after, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, user_id, swap_request_id, type, amount, balance_before, balance_after, locked_before, locked_after, reason, created_at
	`, entry.UserID, entry.SwapRequestID, entry.Type, entry.Amount, entry.BalanceBefore, entry.BalanceAfter, entry.LockedBefore, entry.LockedAfter, entry.Reason)
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// swapEntries loads the swap's full ledger in posting order.
func swapEntries(ctx context.Context, tx *sqlx.Tx, swapID uuid.UUID) ([]models.EscrowEntry, error) {
	var entries []models.EscrowEntry
	err := tx.SelectContext(ctx, &entries, `
		SELECT id, user_id, swap_request_id, type, amount, balance_before, balance_after,
		       locked_before, locked_after, reason, created_at
		FROM escrow_entries WHERE swap_request_id = $1 ORDER BY created_at, id
	`, swapID)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// foldOutstanding folds a swap's ledger entries into the still-held lock
// amounts per user and lock type.
func foldOutstanding(entries []models.EscrowEntry) map[uuid.UUID]map[string]int64 {
	outstanding := make(map[uuid.UUID]map[string]int64)
	add := func(userID uuid.UUID, lockType string, amount int64) {
		if outstanding[userID] == nil {
			outstanding[userID] = make(map[string]int64)
		}
		outstanding[userID][lockType] += amount
	}

	for _, e := range entries {
		switch e.Type {
		case models.EscrowEntryLock:
			add(e.UserID, models.EscrowEntryLock, e.Amount)
		case models.EscrowEntryEscrowLock:
			add(e.UserID, models.EscrowEntryEscrowLock, e.Amount)
		case models.EscrowEntryUnlock:
			add(e.UserID, models.EscrowEntryLock, -e.Amount)
		case models.EscrowEntryEscrowRelease:
			add(e.UserID, models.EscrowEntryEscrowLock, -e.Amount)
		}
	}
	return outstanding
}

// settledAmount is the net valor the payer has transferred out for a swap,
// reduced by any reversal refunds.
func settledAmount(entries []models.EscrowEntry, payerID uuid.UUID) int64 {
	var net int64
	for _, e := range entries {
		if e.UserID != payerID {
			continue
		}
		net -= e.BalanceDelta()
	}
	return net
}

// settlementNet folds a swap's ledger into the signed valor each user has
// gained from it. All zeros for an unsettled or already-reversed swap.
func settlementNet(entries []models.EscrowEntry) map[uuid.UUID]int64 {
	net := make(map[uuid.UUID]int64)
	for _, e := range entries {
		net[e.UserID] += e.BalanceDelta()
	}
	return net
}
