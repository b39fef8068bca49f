package repository

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/gokselkaptan/takas-app-sub005/internal/models"
)

// settledLedger builds the entry sequence Settle posts for a swap paid by
// payer to payee with the fee credited to the pool, deposits included.
func settledLedger(swapID uuid.UUID, payer, payee, pool uuid.UUID, amount, fee int64) []models.EscrowEntry {
	ref := &swapID
	return []models.EscrowEntry{
		{UserID: payer, SwapRequestID: ref, Type: models.EscrowEntryEscrowLock, Amount: amount},
		{UserID: payer, SwapRequestID: ref, Type: models.EscrowEntryLock, Amount: 100},
		{UserID: payee, SwapRequestID: ref, Type: models.EscrowEntryLock, Amount: 50},
		{UserID: payer, SwapRequestID: ref, Type: models.EscrowEntryEscrowRelease, Amount: amount},
		{UserID: payer, SwapRequestID: ref, Type: models.EscrowEntryTransferOut, Amount: amount},
		{UserID: payee, SwapRequestID: ref, Type: models.EscrowEntryTransferIn, Amount: amount - fee},
		{UserID: pool, SwapRequestID: ref, Type: models.EscrowEntryCredit, Amount: fee},
		{UserID: payer, SwapRequestID: ref, Type: models.EscrowEntryUnlock, Amount: 100},
		{UserID: payee, SwapRequestID: ref, Type: models.EscrowEntryUnlock, Amount: 50},
	}
}

// Two lock attempts that jointly exceed the balance: the row lock
// serializes them, so the second sees the first's effect and exactly one
// succeeds.
func TestStampMovement_SecondOverdrawingLockRejected(t *testing.T) {
	userID := uuid.New()
	balance := &models.UserBalance{UserID: userID, ValorAmount: 1000}

	first := &models.EscrowEntry{UserID: userID, Type: models.EscrowEntryLock, Amount: 600}
	assert.NoError(t, stampMovement(balance, first))
	assert.Equal(t, int64(1000), first.BalanceAfter)
	assert.Equal(t, int64(600), first.LockedAfter)

	balance.ValorAmount = first.BalanceAfter
	balance.LockedValor = first.LockedAfter

	second := &models.EscrowEntry{UserID: userID, Type: models.EscrowEntryLock, Amount: 500}
	assert.Error(t, stampMovement(balance, second))
}

func TestStampMovement_RejectsNonPositiveAndNegativeOutcomes(t *testing.T) {
	userID := uuid.New()
	balance := &models.UserBalance{UserID: userID, ValorAmount: 100}

	assert.Error(t, stampMovement(balance, &models.EscrowEntry{UserID: userID, Type: models.EscrowEntryLock, Amount: 0}))
	assert.Error(t, stampMovement(balance, &models.EscrowEntry{UserID: userID, Type: models.EscrowEntryDebit, Amount: 200}))
	assert.Error(t, stampMovement(balance, &models.EscrowEntry{UserID: userID, Type: models.EscrowEntryUnlock, Amount: 10}))
}

func TestFoldOutstanding_ReleasedLocksVanish(t *testing.T) {
	swapID := uuid.New()
	payer := uuid.New()
	payee := uuid.New()
	pool := uuid.New()

	ledger := settledLedger(swapID, payer, payee, pool, 1000, 50)
	outstanding := foldOutstanding(ledger)

	assert.Equal(t, int64(0), outstanding[payer][models.EscrowEntryEscrowLock])
	assert.Equal(t, int64(0), outstanding[payer][models.EscrowEntryLock])
	assert.Equal(t, int64(0), outstanding[payee][models.EscrowEntryLock])

	// before settlement the holds are still outstanding
	open := foldOutstanding(ledger[:3])
	assert.Equal(t, int64(1000), open[payer][models.EscrowEntryEscrowLock])
	assert.Equal(t, int64(100), open[payer][models.EscrowEntryLock])
	assert.Equal(t, int64(50), open[payee][models.EscrowEntryLock])
}

// A repeated settlement finds the hold consumed but the transfer already
// posted, which is what Settle treats as its no-op condition.
func TestSettledAmount_DetectsRepeatedSettlement(t *testing.T) {
	swapID := uuid.New()
	payer := uuid.New()
	payee := uuid.New()
	pool := uuid.New()

	ledger := settledLedger(swapID, payer, payee, pool, 1000, 50)

	assert.Equal(t, int64(0), foldOutstanding(ledger)[payer][models.EscrowEntryEscrowLock])
	assert.Equal(t, int64(1000), settledAmount(ledger, payer))
	assert.Equal(t, int64(0), settledAmount(ledger[:3], payer))
}

func TestSettlementNet_ReversalZeroesTheFold(t *testing.T) {
	swapID := uuid.New()
	payer := uuid.New()
	payee := uuid.New()
	pool := uuid.New()

	ledger := settledLedger(swapID, payer, payee, pool, 1000, 50)
	net := settlementNet(ledger)

	assert.Equal(t, int64(-1000), net[payer])
	assert.Equal(t, int64(950), net[payee])
	assert.Equal(t, int64(50), net[pool])

	reversed := append(ledger,
		models.EscrowEntry{UserID: payer, SwapRequestID: &swapID, Type: models.EscrowEntryRefund, Amount: 1000},
		models.EscrowEntry{UserID: payee, SwapRequestID: &swapID, Type: models.EscrowEntryDebit, Amount: 950},
		models.EscrowEntry{UserID: pool, SwapRequestID: &swapID, Type: models.EscrowEntryDebit, Amount: 50},
	)
	for userID, delta := range settlementNet(reversed) {
		assert.Equal(t, int64(0), delta, userID)
	}
}
