package service

import (
	"context"
	"errors"
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

type mockMultiSwapRepo struct {
	mock.Mock
}

func (m *mockMultiSwapRepo) Create(ctx context.Context, ms *models.MultiSwap, participants []models.MultiSwapParticipant) error {
	args := m.Called(ctx, ms, participants)
	return args.Error(0)
}

func (m *mockMultiSwapRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.MultiSwap, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MultiSwap), args.Error(1)
}

func (m *mockMultiSwapRepo) ListParticipants(ctx context.Context, multiSwapID uuid.UUID) ([]models.MultiSwapParticipant, error) {
	args := m.Called(ctx, multiSwapID)
	return args.Get(0).([]models.MultiSwapParticipant), args.Error(1)
}

func (m *mockMultiSwapRepo) ConfirmParticipant(ctx context.Context, multiSwapID, userID uuid.UUID, now time.Time) (bool, error) {
	args := m.Called(ctx, multiSwapID, userID, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockMultiSwapRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string, completedAt *time.Time) error {
	args := m.Called(ctx, id, status, completedAt)
	return args.Error(0)
}

func (m *mockMultiSwapRepo) ListExpiredUnconfirmed(ctx context.Context, now time.Time, limit int) ([]models.MultiSwap, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]models.MultiSwap), args.Error(1)
}

type mockMatcherProducts struct {
	mock.Mock
}

func (m *mockMatcherProducts) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Product), args.Error(1)
}

func (m *mockMatcherProducts) ListActive(ctx context.Context, city *string) ([]models.Product, error) {
	args := m.Called(ctx, city)
	return args.Get(0).([]models.Product), args.Error(1)
}

func (m *mockMatcherProducts) ListWants(ctx context.Context, productIDs []uuid.UUID) ([]models.ProductWant, error) {
	args := m.Called(ctx, productIDs)
	return args.Get(0).([]models.ProductWant), args.Error(1)
}

type mockMaterializer struct {
	mock.Mock
}

func (m *mockMaterializer) MaterializeChainSwap(ctx context.Context, in ChainSwapInput) (*models.SwapRequest, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SwapRequest), args.Error(1)
}

func (m *mockMaterializer) Transition(ctx context.Context, swapID uuid.UUID, event string, actorID uuid.UUID) (*models.SwapRequest, error) {
	args := m.Called(ctx, swapID, event, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SwapRequest), args.Error(1)
}

func (m *mockMaterializer) CompensateChainSwap(ctx context.Context, swapID uuid.UUID) error {
	args := m.Called(ctx, swapID)
	return args.Error(0)
}

func (m *mockMaterializer) ListByMultiSwap(ctx context.Context, multiSwapID uuid.UUID) ([]models.SwapRequest, error) {
	args := m.Called(ctx, multiSwapID)
	return args.Get(0).([]models.SwapRequest), args.Error(1)
}

func matcherTestConfig() config.MatcherConfig {
	return config.MatcherConfig{
		MaxDepth:           5,
		MaxCandidates:      10,
		ValueTolerance:     0.25,
		ValueBalanceWeight: 0.6,
		LocationWeight:     0.4,
	}
}

func newMatcherService(repo *mockMultiSwapRepo, products *mockMatcherProducts, swaps *mockMaterializer) *MultiSwapService {
	return NewMultiSwapService(repo, products, swaps, matcherTestConfig(), config.SwapConfig{
		ConfirmWindow:  24 * time.Hour,
		SweepBatchSize: 100,
	})
}

func chainNodes(prices ...int64) []models.ChainNode {
	nodes := make([]models.ChainNode, len(prices))
	for i, p := range prices {
		nodes[i] = models.ChainNode{UserID: uuid.New(), ProductID: uuid.New(), ValorPrice: p}
	}
	return nodes
}

func TestValueBalanceScore(t *testing.T) {
	assert.InDelta(t, 1.0, valueBalanceScore(chainNodes(100, 100, 100)), 0.0001)
	assert.InDelta(t, 0.25, valueBalanceScore(chainNodes(100, 100, 40)), 0.0001)
	// spread wider than the average clamps to zero
	assert.Equal(t, 0.0, valueBalanceScore(chainNodes(100, 10, 10)))
}

func TestPairProximity(t *testing.T) {
	city := "istanbul"
	district := "kadikoy"
	other := "ankara"
	otherDistrict := "besiktas"

	a := models.ChainNode{City: &city, District: &district}
	b := models.ChainNode{City: &city, District: &district}
	assert.Equal(t, 1.0, pairProximity(a, b))

	b.District = &otherDistrict
	assert.Equal(t, 0.7, pairProximity(a, b))

	// an unknown district is not evidence of the same district
	b.District = nil
	assert.Equal(t, 0.7, pairProximity(a, b))

	b.City = &other
	assert.Equal(t, 0.2, pairProximity(a, b))

	b.City = nil
	assert.Equal(t, 0.2, pairProximity(a, b))
}

// threeCycle builds products and wants for a 3-way cycle a->b->c->a.
func threeCycle() ([]models.Product, []models.ProductWant) {
	city := "istanbul"
	district := "kadikoy"
	users := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	products := []models.Product{
		{ID: uuid.New(), OwnerID: users[0], Category: "books", ValorPrice: 100, Status: models.ProductStatusActive, City: &city, District: &district},
		{ID: uuid.New(), OwnerID: users[1], Category: "games", ValorPrice: 110, Status: models.ProductStatusActive, City: &city, District: &district},
		{ID: uuid.New(), OwnerID: users[2], Category: "music", ValorPrice: 90, Status: models.ProductStatusActive, City: &city, District: &district},
	}
	wants := []models.ProductWant{
		{ProductID: products[0].ID, WantedProductID: &products[1].ID},
		{ProductID: products[1].ID, WantedProductID: &products[2].ID},
		{ProductID: products[2].ID, WantedProductID: &products[0].ID},
	}
	return products, wants
}

func TestFindCandidates_ThreeWayCycle(t *testing.T) {
	repo := new(mockMultiSwapRepo)
	productRepo := new(mockMatcherProducts)
	svc := newMatcherService(repo, productRepo, new(mockMaterializer))

	products, wants := threeCycle()
	productRepo.On("ListActive", mock.Anything, (*string)(nil)).Return(products, nil)
	productRepo.On("ListWants", mock.Anything, mock.Anything).Return(wants, nil)

	chains, err := svc.FindCandidates(context.Background(), products[0].OwnerID)

	assert.NoError(t, err)
	assert.Len(t, chains, 1)
	assert.Equal(t, 3, chains[0].ChainLength)
	assert.Greater(t, chains[0].TotalScore, 0.0)
	// every hop stays inside the same city and district
	assert.InDelta(t, 1.0, chains[0].LocationScore, 0.0001)
}

func TestFindCandidates_CategoryWants(t *testing.T) {
	repo := new(mockMultiSwapRepo)
	productRepo := new(mockMatcherProducts)
	svc := newMatcherService(repo, productRepo, new(mockMaterializer))

	products, _ := threeCycle()
	games := "Games"
	music := "music"
	books := "BOOKS"
	wants := []models.ProductWant{
		{ProductID: products[0].ID, WantedCategory: &games},
		{ProductID: products[1].ID, WantedCategory: &music},
		{ProductID: products[2].ID, WantedCategory: &books},
	}
	productRepo.On("ListActive", mock.Anything, (*string)(nil)).Return(products, nil)
	productRepo.On("ListWants", mock.Anything, mock.Anything).Return(wants, nil)

	chains, err := svc.FindCandidates(context.Background(), products[0].OwnerID)

	assert.NoError(t, err)
	assert.Len(t, chains, 1)
}

func TestFindCandidates_ToleranceExcludesLopsidedEdges(t *testing.T) {
	repo := new(mockMultiSwapRepo)
	productRepo := new(mockMatcherProducts)
	svc := newMatcherService(repo, productRepo, new(mockMaterializer))

	products, wants := threeCycle()
	products[1].ValorPrice = 1000 // far outside 25% of 100

	productRepo.On("ListActive", mock.Anything, (*string)(nil)).Return(products, nil)
	productRepo.On("ListWants", mock.Anything, mock.Anything).Return(wants, nil)

	chains, err := svc.FindCandidates(context.Background(), products[0].OwnerID)

	assert.NoError(t, err)
	assert.Empty(t, chains)
}

func TestFindCandidates_SameOwnerNeverTwice(t *testing.T) {
	repo := new(mockMultiSwapRepo)
	productRepo := new(mockMatcherProducts)
	svc := newMatcherService(repo, productRepo, new(mockMaterializer))

	products, wants := threeCycle()
	// the third product now belongs to the first owner
	products[2].OwnerID = products[0].OwnerID

	productRepo.On("ListActive", mock.Anything, (*string)(nil)).Return(products, nil)
	productRepo.On("ListWants", mock.Anything, mock.Anything).Return(wants, nil)

	chains, err := svc.FindCandidates(context.Background(), products[0].OwnerID)

	assert.NoError(t, err)
	assert.Empty(t, chains)
}

func TestProposeChain_LengthBounds(t *testing.T) {
	repo := new(mockMultiSwapRepo)
	svc := newMatcherService(repo, new(mockMatcherProducts), new(mockMaterializer))

	_, err := svc.ProposeChain(context.Background(), models.SwapChain{
		ChainLength:  2,
		Participants: chainNodes(100, 100),
	})
	assert.True(t, apperror.Is(err, apperror.ErrCodeValidation))

	_, err = svc.ProposeChain(context.Background(), models.SwapChain{
		ChainLength:  6,
		Participants: chainNodes(1, 2, 3, 4, 5, 6),
	})
	assert.True(t, apperror.Is(err, apperror.ErrCodeValidation))

	repo.AssertNotCalled(t, "Create")
}

func TestProposeChain_MaterializesLegsAndOpensConfirmWindow(t *testing.T) {
	repo := new(mockMultiSwapRepo)
	productRepo := new(mockMatcherProducts)
	swaps := new(mockMaterializer)
	svc := newMatcherService(repo, productRepo, swaps)

	nodes := chainNodes(100, 110, 90)
	for i := range nodes {
		nodes[i].WantsProductID = nodes[(i+1)%len(nodes)].ProductID
	}

	repo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	for i, node := range nodes {
		product := &models.Product{ID: node.ProductID, ValorPrice: node.ValorPrice}
		productRepo.On("GetByID", mock.Anything, node.ProductID).Return(product, nil)

		// the previous member in the cycle receives this node's product
		receiver := nodes[(i+3-1)%3]
		swaps.On("MaterializeChainSwap", mock.Anything, mock.MatchedBy(func(in ChainSwapInput) bool {
			return in.OwnerID == node.UserID &&
				in.RequesterID == receiver.UserID &&
				in.ProductID == node.ProductID &&
				in.OfferedProductID == receiver.ProductID &&
				in.DeliveryType == models.DeliveryTypeDropOff
		})).Return(&models.SwapRequest{ID: uuid.New(), Status: models.SwapStatusAccepted}, nil)
	}

	before := time.Now()
	ms, err := svc.ProposeChain(context.Background(), models.SwapChain{
		ChainLength:  3,
		Participants: nodes,
		TotalScore:   0.8,
	})

	assert.NoError(t, err)
	assert.Equal(t, models.MultiSwapStatusProposed, ms.Status)
	assert.WithinDuration(t, before.Add(24*time.Hour), ms.ConfirmDeadline, time.Minute)
	repo.AssertExpectations(t)
	swaps.AssertExpectations(t)
}

func TestProposeChain_FailedLegUnwindsTheCreatedOnes(t *testing.T) {
	repo := new(mockMultiSwapRepo)
	productRepo := new(mockMatcherProducts)
	swaps := new(mockMaterializer)
	svc := newMatcherService(repo, productRepo, swaps)

	nodes := chainNodes(100, 110, 90)
	for i := range nodes {
		nodes[i].WantsProductID = nodes[(i+1)%len(nodes)].ProductID
	}

	repo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	for _, node := range nodes {
		product := &models.Product{ID: node.ProductID, ValorPrice: node.ValorPrice}
		productRepo.On("GetByID", mock.Anything, node.ProductID).Return(product, nil)
	}

	firstLeg := uuid.New()
	swaps.On("MaterializeChainSwap", mock.Anything, mock.MatchedBy(func(in ChainSwapInput) bool {
		return in.OwnerID == nodes[0].UserID
	})).Return(&models.SwapRequest{ID: firstLeg, Status: models.SwapStatusAccepted}, nil)
	swaps.On("MaterializeChainSwap", mock.Anything, mock.MatchedBy(func(in ChainSwapInput) bool {
		return in.OwnerID == nodes[1].UserID
	})).Return(nil, apperror.New(apperror.ErrCodeInsufficientFunds, "short"))

	swaps.On("CompensateChainSwap", mock.Anything, firstLeg).Return(nil)
	repo.On("UpdateStatus", mock.Anything, mock.Anything, models.MultiSwapStatusCancelled, (*time.Time)(nil)).Return(nil)

	_, err := svc.ProposeChain(context.Background(), models.SwapChain{
		ChainLength:  3,
		Participants: nodes,
		TotalScore:   0.8,
	})

	assert.True(t, apperror.Is(err, apperror.ErrCodeInsufficientFunds))
	swaps.AssertCalled(t, "CompensateChainSwap", mock.Anything, firstLeg)
	repo.AssertCalled(t, "UpdateStatus", mock.Anything, mock.Anything, models.MultiSwapStatusCancelled, (*time.Time)(nil))
}

func TestConfirm_NonParticipant(t *testing.T) {
	repo := new(mockMultiSwapRepo)
	svc := newMatcherService(repo, new(mockMatcherProducts), new(mockMaterializer))

	ms := &models.MultiSwap{
		ID:              uuid.New(),
		Status:          models.MultiSwapStatusProposed,
		ConfirmDeadline: time.Now().Add(time.Hour),
	}
	outsider := uuid.New()

	repo.On("GetByID", mock.Anything, ms.ID).Return(ms, nil)
	repo.On("ConfirmParticipant", mock.Anything, ms.ID, outsider, mock.Anything).Return(false, common.ErrNotFound)

	_, err := svc.Confirm(context.Background(), ms.ID, outsider)

	assert.True(t, apperror.Is(err, apperror.ErrCodeUnauthorizedActor))
}

func TestConfirm_ExpiredWindow(t *testing.T) {
	repo := new(mockMultiSwapRepo)
	svc := newMatcherService(repo, new(mockMatcherProducts), new(mockMaterializer))

	ms := &models.MultiSwap{
		ID:              uuid.New(),
		Status:          models.MultiSwapStatusProposed,
		ConfirmDeadline: time.Now().Add(-time.Hour),
	}

	repo.On("GetByID", mock.Anything, ms.ID).Return(ms, nil)

	_, err := svc.Confirm(context.Background(), ms.ID, uuid.New())

	assert.True(t, apperror.Is(err, apperror.ErrCodeDeadlineExpired))
	repo.AssertNotCalled(t, "ConfirmParticipant")
}

func chainParticipants(chainID uuid.UUID, n int) []models.MultiSwapParticipant {
	parts := make([]models.MultiSwapParticipant, n)
	for i := range parts {
		parts[i] = models.MultiSwapParticipant{
			MultiSwapID:   chainID,
			UserID:        uuid.New(),
			GiveProductID: uuid.New(),
			Position:      i,
		}
	}
	for i := range parts {
		parts[i].ReceiveProductID = parts[(i+1)%n].GiveProductID
	}
	return parts
}

func chainLegSwaps(multiSwapID uuid.UUID, n int) []models.SwapRequest {
	legs := make([]models.SwapRequest, n)
	for i := range legs {
		legs[i] = models.SwapRequest{
			ID:          uuid.New(),
			MultiSwapID: &multiSwapID,
			Status:      models.SwapStatusAccepted,
		}
	}
	return legs
}

func TestConfirm_LastConfirmationCommitsChain(t *testing.T) {
	repo := new(mockMultiSwapRepo)
	swaps := new(mockMaterializer)
	svc := newMatcherService(repo, new(mockMatcherProducts), swaps)

	ms := &models.MultiSwap{
		ID:              uuid.New(),
		Status:          models.MultiSwapStatusProposed,
		ChainLength:     3,
		ConfirmDeadline: time.Now().Add(time.Hour),
	}
	parts := chainParticipants(ms.ID, 3)
	last := parts[2].UserID
	legs := chainLegSwaps(ms.ID, 3)

	repo.On("GetByID", mock.Anything, ms.ID).Return(ms, nil)
	repo.On("ConfirmParticipant", mock.Anything, ms.ID, last, mock.Anything).Return(true, nil)
	swaps.On("ListByMultiSwap", mock.Anything, ms.ID).Return(legs, nil)
	for _, leg := range legs {
		swaps.On("Transition", mock.Anything, leg.ID, models.SwapEventComplete, SystemActor).
			Return(&models.SwapRequest{ID: leg.ID, Status: models.SwapStatusCompleted}, nil)
	}
	repo.On("UpdateStatus", mock.Anything, ms.ID, models.MultiSwapStatusCompleted, mock.Anything).Return(nil)

	_, err := svc.Confirm(context.Background(), ms.ID, last)

	assert.NoError(t, err)
	swaps.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestCommitChain_FailureRollsBackSettledLegs(t *testing.T) {
	repo := new(mockMultiSwapRepo)
	swaps := new(mockMaterializer)
	svc := newMatcherService(repo, new(mockMatcherProducts), swaps)

	ms := &models.MultiSwap{
		ID:              uuid.New(),
		Status:          models.MultiSwapStatusProposed,
		ChainLength:     3,
		ConfirmDeadline: time.Now().Add(time.Hour),
	}
	parts := chainParticipants(ms.ID, 3)
	last := parts[0].UserID
	legs := chainLegSwaps(ms.ID, 3)

	repo.On("GetByID", mock.Anything, ms.ID).Return(ms, nil)
	repo.On("ConfirmParticipant", mock.Anything, ms.ID, last, mock.Anything).Return(true, nil)
	swaps.On("ListByMultiSwap", mock.Anything, ms.ID).Return(legs, nil)

	// the first leg settles, the second fails mid-commit
	swaps.On("Transition", mock.Anything, legs[0].ID, models.SwapEventComplete, SystemActor).
		Return(&models.SwapRequest{ID: legs[0].ID, Status: models.SwapStatusCompleted}, nil)
	swaps.On("Transition", mock.Anything, legs[1].ID, models.SwapEventComplete, SystemActor).
		Return(nil, errors.New("settlement failed"))

	// every leg is rolled back, the already settled one included
	for _, leg := range legs {
		swaps.On("CompensateChainSwap", mock.Anything, leg.ID).Return(nil)
	}
	repo.On("UpdateStatus", mock.Anything, ms.ID, models.MultiSwapStatusCancelled, (*time.Time)(nil)).Return(nil)

	_, err := svc.Confirm(context.Background(), ms.ID, last)

	assert.Error(t, err)
	swaps.AssertNotCalled(t, "Transition", mock.Anything, legs[2].ID, models.SwapEventComplete, SystemActor)
	for _, leg := range legs {
		swaps.AssertCalled(t, "CompensateChainSwap", mock.Anything, leg.ID)
	}
	repo.AssertCalled(t, "UpdateStatus", mock.Anything, ms.ID, models.MultiSwapStatusCancelled, (*time.Time)(nil))
}

func TestSweepExpiredChains_UnwindsLegs(t *testing.T) {
	repo := new(mockMultiSwapRepo)
	swaps := new(mockMaterializer)
	svc := newMatcherService(repo, new(mockMatcherProducts), swaps)
	now := time.Now()

	expired := []models.MultiSwap{
		{ID: uuid.New(), Status: models.MultiSwapStatusProposed},
		{ID: uuid.New(), Status: models.MultiSwapStatusProposed},
	}
	legs := chainLegSwaps(expired[0].ID, 3)

	repo.On("ListExpiredUnconfirmed", mock.Anything, now, 100).Return(expired, nil)
	swaps.On("ListByMultiSwap", mock.Anything, expired[0].ID).Return(legs, nil)
	swaps.On("ListByMultiSwap", mock.Anything, expired[1].ID).Return([]models.SwapRequest{}, nil)
	for _, leg := range legs {
		swaps.On("CompensateChainSwap", mock.Anything, leg.ID).Return(nil)
	}
	repo.On("UpdateStatus", mock.Anything, expired[0].ID, models.MultiSwapStatusCancelled, (*time.Time)(nil)).Return(nil)
	repo.On("UpdateStatus", mock.Anything, expired[1].ID, models.MultiSwapStatusCancelled, (*time.Time)(nil)).Return(nil)

	count, err := svc.SweepExpiredChains(context.Background(), now)

	assert.NoError(t, err)
	assert.Equal(t, 2, count)
	swaps.AssertExpectations(t)
	repo.AssertExpectations(t)
}
