package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/gokselkaptan/takas-app-sub005/internal/config"
	"github.com/gokselkaptan/takas-app-sub005/internal/models"
	"github.com/gokselkaptan/takas-app-sub005/internal/pkg/apperror"
	"github.com/gokselkaptan/takas-app-sub005/internal/repository/common"
)

type mockNegotiationRepo struct {
	mock.Mock
}

func (m *mockNegotiationRepo) Append(ctx context.Context, event *models.NegotiationEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *mockNegotiationRepo) ListBySwap(ctx context.Context, swapID uuid.UUID) ([]models.NegotiationEvent, error) {
	args := m.Called(ctx, swapID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.NegotiationEvent), args.Error(1)
}

type mockSwapRowRepo struct {
	mock.Mock
}

func (m *mockSwapRowRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.SwapRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SwapRequest), args.Error(1)
}

func (m *mockSwapRowRepo) Update(ctx context.Context, swap *models.SwapRequest) error {
	args := m.Called(ctx, swap)
	return args.Error(0)
}

type mockLifecycle struct {
	mock.Mock
}

func (m *mockLifecycle) Accept(ctx context.Context, swapID, actorID uuid.UUID) (*models.SwapRequest, error) {
	args := m.Called(ctx, swapID, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SwapRequest), args.Error(1)
}

func (m *mockLifecycle) Transition(ctx context.Context, swapID uuid.UUID, event string, actorID uuid.UUID) (*models.SwapRequest, error) {
	args := m.Called(ctx, swapID, event, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SwapRequest), args.Error(1)
}

func negotiationTestConfig() config.SwapConfig {
	return config.SwapConfig{
		MaxCounterOffers: 5,
		CounterExtension: 24 * time.Hour,
		TxRetryAttempts:  3,
	}
}

func openSwap(requester, owner uuid.UUID) *models.SwapRequest {
	deadline := time.Now().Add(72 * time.Hour)
	return &models.SwapRequest{
		ID:                  uuid.New(),
		RequesterID:         requester,
		OwnerID:             owner,
		ProductID:           uuid.New(),
		Status:              models.SwapStatusPending,
		NegotiationStatus:   models.NegotiationStatusNone,
		MaxCounterOffers:    5,
		NegotiationDeadline: &deadline,
	}
}

func int64Ptr(v int64) *int64 { return &v }

func TestNegotiation_ProposeOpensNegotiation(t *testing.T) {
	requester := uuid.New()
	owner := uuid.New()
	swap := openSwap(requester, owner)

	swaps := new(mockSwapRowRepo)
	events := new(mockNegotiationRepo)
	lifecycle := new(mockLifecycle)
	svc := NewNegotiationService(swaps, events, lifecycle, negotiationTestConfig())

	swaps.On("GetByID", mock.Anything, swap.ID).Return(swap, nil)
	events.On("ListBySwap", mock.Anything, swap.ID).Return([]models.NegotiationEvent{}, nil)
	swaps.On("Update", mock.Anything, swap).Return(nil)
	events.On("Append", mock.Anything, mock.Anything).Return(nil)

	result, err := svc.Negotiate(context.Background(), NegotiationInput{
		SwapID:  swap.ID,
		ActorID: requester,
		Action:  models.NegotiationActionPropose,
		Price:   int64Ptr(500),
	})

	assert.NoError(t, err)
	assert.Equal(t, models.SwapStatusNegotiating, result.Swap.Status)
	assert.Equal(t, models.NegotiationStatusProposed, result.Swap.NegotiationStatus)
	assert.Equal(t, int64(500), *result.Swap.AgreedPriceRequester)
	assert.Nil(t, result.Swap.AgreedPriceOwner)
	swaps.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestNegotiation_CounterByOtherParty(t *testing.T) {
	requester := uuid.New()
	owner := uuid.New()
	swap := openSwap(requester, owner)
	swap.Status = models.SwapStatusNegotiating
	swap.NegotiationStatus = models.NegotiationStatusProposed
	swap.AgreedPriceRequester = int64Ptr(500)
	originalDeadline := *swap.NegotiationDeadline

	history := []models.NegotiationEvent{
		{SwapRequestID: swap.ID, ActorID: requester, ActionType: models.NegotiationActionPropose, ProposedPrice: int64Ptr(500)},
	}

	swaps := new(mockSwapRowRepo)
	events := new(mockNegotiationRepo)
	svc := NewNegotiationService(swaps, events, new(mockLifecycle), negotiationTestConfig())

	swaps.On("GetByID", mock.Anything, swap.ID).Return(swap, nil)
	events.On("ListBySwap", mock.Anything, swap.ID).Return(history, nil)
	swaps.On("Update", mock.Anything, swap).Return(nil)
	events.On("Append", mock.Anything, mock.Anything).Return(nil)

	result, err := svc.Negotiate(context.Background(), NegotiationInput{
		SwapID:        swap.ID,
		ActorID:       owner,
		Action:        models.NegotiationActionCounter,
		Price:         int64Ptr(450),
		PreviousPrice: int64Ptr(500),
	})

	assert.NoError(t, err)
	assert.Equal(t, models.NegotiationStatusCountered, result.Swap.NegotiationStatus)
	assert.Equal(t, 1, result.Swap.CounterOfferCount)
	assert.Equal(t, int64(450), *result.Swap.AgreedPriceOwner)
	assert.Nil(t, result.Swap.AgreedPriceRequester)
	assert.Equal(t, originalDeadline.Add(24*time.Hour), *result.Swap.NegotiationDeadline)
	assert.Equal(t, int64(500), *result.Event.PreviousPrice)
}

func TestNegotiation_CannotCounterOwnOffer(t *testing.T) {
	requester := uuid.New()
	owner := uuid.New()
	swap := openSwap(requester, owner)
	swap.Status = models.SwapStatusNegotiating
	swap.NegotiationStatus = models.NegotiationStatusProposed

	history := []models.NegotiationEvent{
		{SwapRequestID: swap.ID, ActorID: requester, ActionType: models.NegotiationActionPropose, ProposedPrice: int64Ptr(500)},
	}

	swaps := new(mockSwapRowRepo)
	events := new(mockNegotiationRepo)
	svc := NewNegotiationService(swaps, events, new(mockLifecycle), negotiationTestConfig())

	swaps.On("GetByID", mock.Anything, swap.ID).Return(swap, nil)
	events.On("ListBySwap", mock.Anything, swap.ID).Return(history, nil)

	_, err := svc.Negotiate(context.Background(), NegotiationInput{
		SwapID:  swap.ID,
		ActorID: requester,
		Action:  models.NegotiationActionCounter,
		Price:   int64Ptr(480),
	})

	assert.True(t, apperror.Is(err, apperror.ErrCodeUnauthorizedActor))
	swaps.AssertNotCalled(t, "Update")
}

func TestNegotiation_CounterLimitExceeded(t *testing.T) {
	requester := uuid.New()
	owner := uuid.New()
	swap := openSwap(requester, owner)
	swap.Status = models.SwapStatusNegotiating
	swap.NegotiationStatus = models.NegotiationStatusCountered
	swap.CounterOfferCount = 5
	swap.AgreedPriceOwner = int64Ptr(450)

	history := []models.NegotiationEvent{
		{SwapRequestID: swap.ID, ActorID: owner, ActionType: models.NegotiationActionCounter, ProposedPrice: int64Ptr(450)},
	}

	swaps := new(mockSwapRowRepo)
	events := new(mockNegotiationRepo)
	svc := NewNegotiationService(swaps, events, new(mockLifecycle), negotiationTestConfig())

	swaps.On("GetByID", mock.Anything, swap.ID).Return(swap, nil)
	events.On("ListBySwap", mock.Anything, swap.ID).Return(history, nil)

	_, err := svc.Negotiate(context.Background(), NegotiationInput{
		SwapID:  swap.ID,
		ActorID: requester,
		Action:  models.NegotiationActionCounter,
		Price:   int64Ptr(470),
	})

	assert.True(t, apperror.Is(err, apperror.ErrCodeNegotiationLimitExceeded))
}

func TestNegotiation_StalePreviousPrice(t *testing.T) {
	requester := uuid.New()
	owner := uuid.New()
	swap := openSwap(requester, owner)
	swap.Status = models.SwapStatusNegotiating
	swap.NegotiationStatus = models.NegotiationStatusCountered
	swap.AgreedPriceOwner = int64Ptr(460)

	history := []models.NegotiationEvent{
		{SwapRequestID: swap.ID, ActorID: requester, ActionType: models.NegotiationActionPropose, ProposedPrice: int64Ptr(500)},
		{SwapRequestID: swap.ID, ActorID: owner, ActionType: models.NegotiationActionCounter, ProposedPrice: int64Ptr(460)},
	}

	swaps := new(mockSwapRowRepo)
	events := new(mockNegotiationRepo)
	svc := NewNegotiationService(swaps, events, new(mockLifecycle), negotiationTestConfig())

	swaps.On("GetByID", mock.Anything, swap.ID).Return(swap, nil)
	events.On("ListBySwap", mock.Anything, swap.ID).Return(history, nil)

	// the actor still sees the original 500 offer
	_, err := svc.Negotiate(context.Background(), NegotiationInput{
		SwapID:        swap.ID,
		ActorID:       requester,
		Action:        models.NegotiationActionAccept,
		PreviousPrice: int64Ptr(500),
	})

	assert.True(t, apperror.Is(err, apperror.ErrCodeStalePriceConflict))
	swaps.AssertNotCalled(t, "Update")
}

func TestNegotiation_AcceptEqualizesPricesAndHandsOff(t *testing.T) {
	requester := uuid.New()
	owner := uuid.New()
	swap := openSwap(requester, owner)
	swap.Status = models.SwapStatusNegotiating
	swap.NegotiationStatus = models.NegotiationStatusCountered
	swap.AgreedPriceOwner = int64Ptr(480)

	history := []models.NegotiationEvent{
		{SwapRequestID: swap.ID, ActorID: requester, ActionType: models.NegotiationActionPropose, ProposedPrice: int64Ptr(500)},
		{SwapRequestID: swap.ID, ActorID: owner, ActionType: models.NegotiationActionCounter, ProposedPrice: int64Ptr(480)},
	}

	accepted := &models.SwapRequest{ID: swap.ID, Status: models.SwapStatusAccepted}

	swaps := new(mockSwapRowRepo)
	events := new(mockNegotiationRepo)
	lifecycle := new(mockLifecycle)
	svc := NewNegotiationService(swaps, events, lifecycle, negotiationTestConfig())

	swaps.On("GetByID", mock.Anything, swap.ID).Return(swap, nil)
	events.On("ListBySwap", mock.Anything, swap.ID).Return(history, nil)
	swaps.On("Update", mock.Anything, swap).Return(nil)
	events.On("Append", mock.Anything, mock.Anything).Return(nil)
	lifecycle.On("Accept", mock.Anything, swap.ID, requester).Return(accepted, nil)

	result, err := svc.Negotiate(context.Background(), NegotiationInput{
		SwapID:        swap.ID,
		ActorID:       requester,
		Action:        models.NegotiationActionAccept,
		PreviousPrice: int64Ptr(480),
	})

	assert.NoError(t, err)
	assert.Equal(t, models.NegotiationStatusPriceAgreed, swap.NegotiationStatus)
	assert.Equal(t, int64(480), *swap.AgreedPriceRequester)
	assert.Equal(t, int64(480), *swap.AgreedPriceOwner)
	assert.Equal(t, int64(480), swap.PendingValorAmount)
	assert.NotNil(t, swap.PriceAgreedAt)
	assert.Equal(t, accepted, result.Swap)
	lifecycle.AssertExpectations(t)
}

func TestNegotiation_RejectHandsOffToLifecycle(t *testing.T) {
	requester := uuid.New()
	owner := uuid.New()
	swap := openSwap(requester, owner)
	swap.Status = models.SwapStatusNegotiating
	swap.NegotiationStatus = models.NegotiationStatusProposed

	history := []models.NegotiationEvent{
		{SwapRequestID: swap.ID, ActorID: requester, ActionType: models.NegotiationActionPropose, ProposedPrice: int64Ptr(500)},
	}

	rejected := &models.SwapRequest{ID: swap.ID, Status: models.SwapStatusRejected}

	swaps := new(mockSwapRowRepo)
	events := new(mockNegotiationRepo)
	lifecycle := new(mockLifecycle)
	svc := NewNegotiationService(swaps, events, lifecycle, negotiationTestConfig())

	swaps.On("GetByID", mock.Anything, swap.ID).Return(swap, nil)
	events.On("ListBySwap", mock.Anything, swap.ID).Return(history, nil)
	swaps.On("Update", mock.Anything, swap).Return(nil)
	events.On("Append", mock.Anything, mock.Anything).Return(nil)
	lifecycle.On("Transition", mock.Anything, swap.ID, models.SwapEventReject, owner).Return(rejected, nil)

	result, err := svc.Negotiate(context.Background(), NegotiationInput{
		SwapID:  swap.ID,
		ActorID: owner,
		Action:  models.NegotiationActionReject,
	})

	assert.NoError(t, err)
	assert.Equal(t, rejected, result.Swap)
	lifecycle.AssertExpectations(t)
}

func TestNegotiation_DeadlineExpired(t *testing.T) {
	requester := uuid.New()
	owner := uuid.New()
	swap := openSwap(requester, owner)
	past := time.Now().Add(-time.Hour)
	swap.NegotiationDeadline = &past

	swaps := new(mockSwapRowRepo)
	svc := NewNegotiationService(swaps, new(mockNegotiationRepo), new(mockLifecycle), negotiationTestConfig())

	swaps.On("GetByID", mock.Anything, swap.ID).Return(swap, nil)

	_, err := svc.Negotiate(context.Background(), NegotiationInput{
		SwapID:  swap.ID,
		ActorID: requester,
		Action:  models.NegotiationActionPropose,
		Price:   int64Ptr(300),
	})

	assert.True(t, apperror.Is(err, apperror.ErrCodeDeadlineExpired))
}

func TestNegotiation_OutsiderCannotAct(t *testing.T) {
	swap := openSwap(uuid.New(), uuid.New())

	swaps := new(mockSwapRowRepo)
	svc := NewNegotiationService(swaps, new(mockNegotiationRepo), new(mockLifecycle), negotiationTestConfig())

	swaps.On("GetByID", mock.Anything, swap.ID).Return(swap, nil)

	_, err := svc.Negotiate(context.Background(), NegotiationInput{
		SwapID:  swap.ID,
		ActorID: uuid.New(),
		Action:  models.NegotiationActionPropose,
		Price:   int64Ptr(300),
	})

	assert.ErrorIs(t, err, apperror.ErrNotAParty)
}

func TestNegotiation_StaleVersionExhaustsRetries(t *testing.T) {
	requester := uuid.New()
	owner := uuid.New()
	swap := openSwap(requester, owner)

	swaps := new(mockSwapRowRepo)
	events := new(mockNegotiationRepo)
	svc := NewNegotiationService(swaps, events, new(mockLifecycle), negotiationTestConfig())

	// every read hands back a fresh pending row, as the real repo would
	swaps.On("GetByID", mock.Anything, swap.ID).Run(func(mock.Arguments) {
		swap.Status = models.SwapStatusPending
		swap.NegotiationStatus = models.NegotiationStatusNone
		swap.AgreedPriceRequester = nil
	}).Return(swap, nil)
	events.On("ListBySwap", mock.Anything, swap.ID).Return([]models.NegotiationEvent{}, nil)
	swaps.On("Update", mock.Anything, mock.Anything).Return(common.ErrStaleVersion)

	_, err := svc.Negotiate(context.Background(), NegotiationInput{
		SwapID:  swap.ID,
		ActorID: requester,
		Action:  models.NegotiationActionPropose,
		Price:   int64Ptr(300),
	})

	assert.True(t, apperror.Is(err, apperror.ErrCodeStalePriceConflict))
	swaps.AssertNumberOfCalls(t, "Update", 3)
}
