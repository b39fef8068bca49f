package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gokselkaptan/takas-app-sub005/internal/models"
	"github.com/gokselkaptan/takas-app-sub005/internal/pkg/apperror"
	"github.com/gokselkaptan/takas-app-sub005/internal/repository/common"
)

// EscrowRepo is the ledger contract the escrow service builds on.
type EscrowRepo interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error)
	Lock(ctx context.Context, userID uuid.UUID, amount int64, swapID *uuid.UUID, entryType, reason string) (*models.EscrowEntry, error)
	Unlock(ctx context.Context, userID uuid.UUID, amount int64, swapID *uuid.UUID, entryType, reason string) (*models.EscrowEntry, error)
	Credit(ctx context.Context, userID uuid.UUID, amount int64, swapID *uuid.UUID, entryType, reason string) (*models.EscrowEntry, error)
	Debit(ctx context.Context, userID uuid.UUID, amount int64, swapID *uuid.UUID, entryType, reason string) (*models.EscrowEntry, error)
	Settle(ctx context.Context, swapID uuid.UUID, payerID, payeeID, poolID uuid.UUID, amount, fee int64) ([]models.EscrowEntry, error)
	ReverseSettlement(ctx context.Context, swapID uuid.UUID, reason string) ([]models.EscrowEntry, error)
	RefundSwapLocks(ctx context.Context, swapID uuid.UUID, reason string) ([]models.EscrowEntry, error)
	ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.EscrowEntry, error)
	ListEntriesBySwap(ctx context.Context, swapID uuid.UUID) ([]models.EscrowEntry, error)
}

// EscrowService wraps the ledger with validation, fee policy and error
// code mapping. Amounts are always positive valor.
type EscrowService struct {
	repo       EscrowRepo
	feePercent int
	poolID     uuid.UUID
}

func NewEscrowService(repo EscrowRepo, feePercent int, poolID uuid.UUID) *EscrowService {
	return &EscrowService{repo: repo, feePercent: feePercent, poolID: poolID}
}

// GetBalance returns the user's balance pair.
func (s *EscrowService) GetBalance(ctx context.Context, userID uuid.UUID) (*models.UserBalance, error) {
	return s.repo.GetBalance(ctx, userID)
}

// LockDeposit reserves a risk deposit against a swap.
func (s *EscrowService) LockDeposit(ctx context.Context, userID uuid.UUID, amount int64, swapID uuid.UUID, reason string) (*models.EscrowEntry, error) {
	if amount <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "deposit amount must be positive")
	}
	entry, err := s.repo.Lock(ctx, userID, amount, &swapID, models.EscrowEntryLock, reason)
	if err != nil {
		if errors.Is(err, common.ErrInsufficientFunds) {
			return nil, apperror.New(apperror.ErrCodeInsufficientFunds, "available balance is lower than the required deposit")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "lock deposit failed")
	}
	return entry, nil
}

// LockPayment reserves the agreed swap price on the paying side.
func (s *EscrowService) LockPayment(ctx context.Context, userID uuid.UUID, amount int64, swapID uuid.UUID) (*models.EscrowEntry, error) {
	if amount <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "payment amount must be positive")
	}
	entry, err := s.repo.Lock(ctx, userID, amount, &swapID, models.EscrowEntryEscrowLock, "payment hold for agreed price")
	if err != nil {
		if errors.Is(err, common.ErrInsufficientFunds) {
			return nil, apperror.New(apperror.ErrCodeInsufficientFunds, "available balance is lower than the agreed price")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "lock payment failed")
	}
	return entry, nil
}

// ReleaseEscrow settles a completed swap: net amount to the counterparty,
// fee to the community pool, deposits back to their owners.
func (s *EscrowService) ReleaseEscrow(ctx context.Context, swap *models.SwapRequest) ([]models.EscrowEntry, error) {
	amount := swap.PendingValorAmount
	if amount <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "swap has no pending valor amount to settle")
	}
	fee := s.Fee(amount)
	entries, err := s.repo.Settle(ctx, swap.ID, swap.RequesterID, swap.OwnerID, s.poolID, amount, fee)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "escrow settlement failed")
	}
	return entries, nil
}

// ReverseEscrow undoes a completed settlement by posting the compensating
// transfers. Used by saga compensation when a chain leg has already settled.
// Idempotent: an unsettled or already-reversed swap produces no entries.
func (s *EscrowService) ReverseEscrow(ctx context.Context, swapID uuid.UUID, reason string) ([]models.EscrowEntry, error) {
	entries, err := s.repo.ReverseSettlement(ctx, swapID, reason)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "escrow reversal failed")
	}
	return entries, nil
}

// RefundEscrow releases every outstanding lock of a swap without transfer.
// Idempotent: a second call finds nothing outstanding and returns no entries.
func (s *EscrowService) RefundEscrow(ctx context.Context, swapID uuid.UUID, reason string) ([]models.EscrowEntry, error) {
	entries, err := s.repo.RefundSwapLocks(ctx, swapID, reason)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "escrow refund failed")
	}
	return entries, nil
}

// Credit adds valor to a balance (bonus, reward, refund of a payment).
func (s *EscrowService) Credit(ctx context.Context, userID uuid.UUID, amount int64, entryType, reason string) (*models.EscrowEntry, error) {
	if amount <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "credit amount must be positive")
	}
	switch entryType {
	case models.EscrowEntryCredit, models.EscrowEntryRefund, models.EscrowEntryBonus, models.EscrowEntryReward:
	default:
		return nil, apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("%s is not a credit entry type", entryType))
	}
	entry, err := s.repo.Credit(ctx, userID, amount, nil, entryType, reason)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "credit failed")
	}
	return entry, nil
}

// Debit removes valor from a balance.
func (s *EscrowService) Debit(ctx context.Context, userID uuid.UUID, amount int64, entryType, reason string) (*models.EscrowEntry, error) {
	if amount <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "debit amount must be positive")
	}
	switch entryType {
	case models.EscrowEntryDebit, models.EscrowEntryPayment:
	default:
		return nil, apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("%s is not a debit entry type", entryType))
	}
	entry, err := s.repo.Debit(ctx, userID, amount, nil, entryType, reason)
	if err != nil {
		if errors.Is(err, common.ErrInsufficientFunds) {
			return nil, apperror.New(apperror.ErrCodeInsufficientFunds, "available balance is lower than the debit amount")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "debit failed")
	}
	return entry, nil
}

// ListEntries returns the user's ledger history.
func (s *EscrowService) ListEntries(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.EscrowEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListEntries(ctx, userID, limit, offset)
}

// ListEntriesBySwap returns every movement of one swap.
func (s *EscrowService) ListEntriesBySwap(ctx context.Context, swapID uuid.UUID) ([]models.EscrowEntry, error) {
	return s.repo.ListEntriesBySwap(ctx, swapID)
}

// Fee computes the platform fee for a settlement amount.
func (s *EscrowService) Fee(amount int64) int64 {
	return amount * int64(s.feePercent) / 100
}

// ReplayBalance folds a user's full ledger into the balance pair it should
// produce. The ledger is the source of truth; a mismatch against the
// stored pair means corruption.
func ReplayBalance(entries []models.EscrowEntry) (valor int64, locked int64) {
	for _, e := range entries {
		valor += e.BalanceDelta()
		locked += e.LockedDelta()
	}
	return valor, locked
}
