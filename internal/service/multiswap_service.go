package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gokselkaptan/takas-app-sub005/internal/config"
	"github.com/gokselkaptan/takas-app-sub005/internal/logger"
	"github.com/gokselkaptan/takas-app-sub005/internal/models"
	"github.com/gokselkaptan/takas-app-sub005/internal/pkg/apperror"
	"github.com/gokselkaptan/takas-app-sub005/internal/repository/common"
)

// MultiSwapRepo persists barter chains and their participants.
type MultiSwapRepo interface {
	Create(ctx context.Context, ms *models.MultiSwap, participants []models.MultiSwapParticipant) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.MultiSwap, error)
	ListParticipants(ctx context.Context, multiSwapID uuid.UUID) ([]models.MultiSwapParticipant, error)
	ConfirmParticipant(ctx context.Context, multiSwapID, userID uuid.UUID, now time.Time) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, completedAt *time.Time) error
	ListExpiredUnconfirmed(ctx context.Context, now time.Time, limit int) ([]models.MultiSwap, error)
}

// ProductRepoForMatcher feeds the wants graph into the matcher.
type ProductRepoForMatcher interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListActive(ctx context.Context, city *string) ([]models.Product, error)
	ListWants(ctx context.Context, productIDs []uuid.UUID) ([]models.ProductWant, error)
}

// ChainMaterializer is the slice of the swap lifecycle the saga uses to
// turn an accepted chain into real swaps and to unwind them.
type ChainMaterializer interface {
	MaterializeChainSwap(ctx context.Context, in ChainSwapInput) (*models.SwapRequest, error)
	Transition(ctx context.Context, swapID uuid.UUID, event string, actorID uuid.UUID) (*models.SwapRequest, error)
	CompensateChainSwap(ctx context.Context, swapID uuid.UUID) error
	ListByMultiSwap(ctx context.Context, multiSwapID uuid.UUID) ([]models.SwapRequest, error)
}

// MultiSwapService finds N-way barter cycles in the wants graph and runs
// the confirm-then-commit saga that executes them.
type MultiSwapService struct {
	repo     MultiSwapRepo
	products ProductRepoForMatcher
	swaps    ChainMaterializer
	cfg      config.MatcherConfig
	swapCfg  config.SwapConfig
}

func NewMultiSwapService(repo MultiSwapRepo, products ProductRepoForMatcher, swaps ChainMaterializer, cfg config.MatcherConfig, swapCfg config.SwapConfig) *MultiSwapService {
	return &MultiSwapService{
		repo:     repo,
		products: products,
		swaps:    swaps,
		cfg:      cfg,
		swapCfg:  swapCfg,
	}
}

// arena is the in-memory matching graph: products indexed densely, edges
// keyed by product index.
type arena struct {
	products []models.Product
	byID     map[uuid.UUID]int
	edges    [][]int
}

// FindCandidates returns the best barter cycles that include one of the
// user's products, ordered by score.
func (s *MultiSwapService) FindCandidates(ctx context.Context, userID uuid.UUID) ([]models.SwapChain, error) {
	a, err := s.buildArena(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var candidates []models.SwapChain

	for start, p := range a.products {
		if p.OwnerID != userID {
			continue
		}
		s.dfs(a, start, []int{start}, map[uuid.UUID]struct{}{p.OwnerID: {}}, seen, &candidates)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].TotalScore != candidates[j].TotalScore {
			return candidates[i].TotalScore > candidates[j].TotalScore
		}
		if candidates[i].ChainLength != candidates[j].ChainLength {
			return candidates[i].ChainLength < candidates[j].ChainLength
		}
		return candidates[i].AverageValorPrice() > candidates[j].AverageValorPrice()
	})

	if len(candidates) > s.cfg.MaxCandidates {
		candidates = candidates[:s.cfg.MaxCandidates]
	}
	return candidates, nil
}

// buildArena loads active products and the wants graph into adjacency
// lists. An edge i->j means the owner of product i gives it away and
// receives product j.
func (s *MultiSwapService) buildArena(ctx context.Context) (*arena, error) {
	products, err := s.products.ListActive(ctx, nil)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "load active products failed")
	}

	a := &arena{
		products: products,
		byID:     make(map[uuid.UUID]int, len(products)),
		edges:    make([][]int, len(products)),
	}
	for i, p := range products {
		a.byID[p.ID] = i
	}

	ids := make([]uuid.UUID, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	wants, err := s.products.ListWants(ctx, ids)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "load wants graph failed")
	}

	byProduct := make(map[uuid.UUID][]models.ProductWant)
	for _, w := range wants {
		byProduct[w.ProductID] = append(byProduct[w.ProductID], w)
	}

	for i, give := range products {
		for _, w := range byProduct[give.ID] {
			for j, receive := range products {
				if i == j || give.OwnerID == receive.OwnerID {
					continue
				}
				if !wantMatches(w, &receive) {
					continue
				}
				if !s.withinTolerance(give.ValorPrice, receive.ValorPrice) {
					continue
				}
				a.edges[i] = append(a.edges[i], j)
			}
		}
	}
	return a, nil
}

// dfs extends the current path one hop at a time, emitting every cycle
// that closes back onto the start within the depth bound.
func (s *MultiSwapService) dfs(a *arena, start int, path []int, owners map[uuid.UUID]struct{}, seen map[string]struct{}, out *[]models.SwapChain) {
	current := path[len(path)-1]
	for _, next := range a.edges[current] {
		if next == start {
			if len(path) >= 3 {
				s.emitCycle(a, path, seen, out)
			}
			continue
		}
		if len(path) >= s.cfg.MaxDepth {
			continue
		}
		owner := a.products[next].OwnerID
		if _, dup := owners[owner]; dup {
			continue
		}
		owners[owner] = struct{}{}
		s.dfs(a, start, append(path, next), owners, seen, out)
		delete(owners, owner)
	}
}

// emitCycle scores one closed path and records it unless an equivalent
// rotation was already found.
func (s *MultiSwapService) emitCycle(a *arena, path []int, seen map[string]struct{}, out *[]models.SwapChain) {
	key := canonicalCycleKey(a, path)
	if _, dup := seen[key]; dup {
		return
	}
	seen[key] = struct{}{}

	nodes := make([]models.ChainNode, len(path))
	for i, idx := range path {
		give := a.products[idx]
		receive := a.products[path[(i+1)%len(path)]]
		nodes[i] = models.ChainNode{
			UserID:         give.OwnerID,
			ProductID:      give.ID,
			WantsProductID: receive.ID,
			ValorPrice:     give.ValorPrice,
			City:           give.City,
			District:       give.District,
		}
	}

	vb := valueBalanceScore(nodes)
	loc := s.locationScore(nodes)
	*out = append(*out, models.SwapChain{
		Participants:      nodes,
		ChainLength:       len(nodes),
		ValueBalanceScore: vb,
		LocationScore:     loc,
		TotalScore:        s.cfg.ValueBalanceWeight*vb + s.cfg.LocationWeight*loc,
	})
}

// ProposeChain persists a candidate cycle, materializes one swap per
// adjacent pair with its escrow locks taken, and opens the confirmation
// window. The locks bind every participant until the chain either commits
// or unwinds.
func (s *MultiSwapService) ProposeChain(ctx context.Context, chain models.SwapChain) (*models.MultiSwap, error) {
	if chain.ChainLength < 3 || chain.ChainLength > s.cfg.MaxDepth || len(chain.Participants) != chain.ChainLength {
		return nil, apperror.New(apperror.ErrCodeValidation, "chain length is out of bounds")
	}

	ms := &models.MultiSwap{
		Status:          models.MultiSwapStatusProposed,
		ChainLength:     chain.ChainLength,
		TotalScore:      chain.TotalScore,
		ConfirmDeadline: time.Now().Add(s.swapCfg.ConfirmWindow),
	}

	participants := make([]models.MultiSwapParticipant, len(chain.Participants))
	for i, node := range chain.Participants {
		participants[i] = models.MultiSwapParticipant{
			UserID:           node.UserID,
			GiveProductID:    node.ProductID,
			ReceiveProductID: node.WantsProductID,
			Position:         i,
		}
	}

	if err := s.repo.Create(ctx, ms, participants); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "create multi swap failed")
	}

	if err := s.materializeLegs(ctx, ms.ID, participants); err != nil {
		return nil, err
	}
	return ms, nil
}

// materializeLegs creates one accepted swap with locks per adjacent pair.
// A failed leg (typically insufficient funds) unwinds the ones already
// created and cancels the chain.
func (s *MultiSwapService) materializeLegs(ctx context.Context, multiSwapID uuid.UUID, participants []models.MultiSwapParticipant) error {
	n := len(participants)
	var created []uuid.UUID
	for i, giver := range participants {
		receiver := participants[(i+n-1)%n] // previous member receives giver's product
		price, err := s.receiveValue(ctx, giver.GiveProductID)
		if err != nil {
			s.failChain(ctx, multiSwapID, created, "chain proposal aborted")
			return err
		}

		swap, err := s.swaps.MaterializeChainSwap(ctx, ChainSwapInput{
			MultiSwapID:      multiSwapID,
			RequesterID:      receiver.UserID,
			OwnerID:          giver.UserID,
			ProductID:        giver.GiveProductID,
			OfferedProductID: receiver.GiveProductID,
			Price:            price,
			DeliveryType:     models.DeliveryTypeDropOff,
		})
		if err != nil {
			s.failChain(ctx, multiSwapID, created, "chain proposal aborted")
			return err
		}
		created = append(created, swap.ID)
	}
	return nil
}

// Confirm records one participant's confirmation. The last confirmation
// commits the whole chain.
func (s *MultiSwapService) Confirm(ctx context.Context, multiSwapID, userID uuid.UUID) (*models.MultiSwap, error) {
	ms, err := s.loadChain(ctx, multiSwapID)
	if err != nil {
		return nil, err
	}
	if ms.Status != models.MultiSwapStatusProposed {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition, "chain is no longer awaiting confirmations")
	}
	if time.Now().After(ms.ConfirmDeadline) {
		return nil, apperror.New(apperror.ErrCodeDeadlineExpired, "confirmation window has closed")
	}

	allConfirmed, err := s.repo.ConfirmParticipant(ctx, multiSwapID, userID, time.Now())
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, apperror.New(apperror.ErrCodeUnauthorizedActor, "user is not a participant of this chain")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "confirm participant failed")
	}

	if allConfirmed {
		if err := s.commitChain(ctx, multiSwapID); err != nil {
			return nil, err
		}
	}
	return s.loadChain(ctx, multiSwapID)
}

// GetChain returns one chain with its participants.
func (s *MultiSwapService) GetChain(ctx context.Context, multiSwapID uuid.UUID) (*models.MultiSwap, []models.MultiSwapParticipant, error) {
	ms, err := s.loadChain(ctx, multiSwapID)
	if err != nil {
		return nil, nil, err
	}
	participants, err := s.repo.ListParticipants(ctx, multiSwapID)
	if err != nil {
		return nil, nil, apperror.Wrap(err, apperror.ErrCodeInternal, "load participants failed")
	}
	return ms, participants, nil
}

// commitChain executes a fully confirmed chain by completing the legs
// materialized at proposal, in position order. Any failure rolls every leg
// back, settled ones included, and cancels the chain: the exchange is
// all-or-nothing.
func (s *MultiSwapService) commitChain(ctx context.Context, multiSwapID uuid.UUID) error {
	legs, err := s.chainLegs(ctx, multiSwapID)
	if err != nil {
		return err
	}

	for _, swapID := range legs {
		if _, err := s.swaps.Transition(ctx, swapID, models.SwapEventComplete, SystemActor); err != nil {
			s.failChain(ctx, multiSwapID, legs, "chain completion aborted")
			return err
		}
	}

	now := time.Now()
	if err := s.repo.UpdateStatus(ctx, multiSwapID, models.MultiSwapStatusCompleted, &now); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "mark chain completed failed")
	}
	return nil
}

// failChain is the compensation path: roll back every leg of the chain and
// mark the chain cancelled. Legs still holding locks are cancelled with a
// refund; legs that already settled get a reverse settlement.
func (s *MultiSwapService) failChain(ctx context.Context, multiSwapID uuid.UUID, legs []uuid.UUID, reason string) {
	for _, swapID := range legs {
		if err := s.swaps.CompensateChainSwap(ctx, swapID); err != nil {
			logger.Log.WithFields(logrus.Fields{"multi_swap_id": multiSwapID, "swap_id": swapID, "error": err}).
				Error("chain compensation: roll back leg failed")
		}
	}
	if err := s.repo.UpdateStatus(ctx, multiSwapID, models.MultiSwapStatusCancelled, nil); err != nil {
		logger.Log.WithFields(logrus.Fields{"multi_swap_id": multiSwapID, "error": err}).
			Error("chain compensation: mark cancelled failed")
	}
	logger.Log.WithFields(logrus.Fields{"multi_swap_id": multiSwapID, "reason": reason}).
		Warn("multi swap chain unwound")
}

// chainLegs returns the ids of the swaps materialized for a chain.
func (s *MultiSwapService) chainLegs(ctx context.Context, multiSwapID uuid.UUID) ([]uuid.UUID, error) {
	swaps, err := s.swaps.ListByMultiSwap(ctx, multiSwapID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "load chain swaps failed")
	}
	ids := make([]uuid.UUID, len(swaps))
	for i, swap := range swaps {
		ids[i] = swap.ID
	}
	return ids, nil
}

// SweepExpiredChains unwinds chains whose confirmation window lapsed
// before every participant confirmed, cancelling their legs and returning
// the locks.
func (s *MultiSwapService) SweepExpiredChains(ctx context.Context, now time.Time) (int, error) {
	batch := s.swapCfg.SweepBatchSize
	if batch <= 0 {
		batch = 100
	}
	expired, err := s.repo.ListExpiredUnconfirmed(ctx, now, batch)
	if err != nil {
		return 0, apperror.Wrap(err, apperror.ErrCodeInternal, "sweep: list expired chains failed")
	}

	count := 0
	for _, ms := range expired {
		legs, err := s.chainLegs(ctx, ms.ID)
		if err != nil {
			logger.Log.WithFields(logrus.Fields{"multi_swap_id": ms.ID, "error": err}).
				Error("sweep: load expired chain legs failed")
			continue
		}
		s.failChain(ctx, ms.ID, legs, "confirmation window expired")
		count++
	}
	return count, nil
}

func (s *MultiSwapService) loadChain(ctx context.Context, multiSwapID uuid.UUID) (*models.MultiSwap, error) {
	ms, err := s.repo.GetByID(ctx, multiSwapID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, apperror.ErrMultiSwapNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "load multi swap failed")
	}
	return ms, nil
}

// receiveValue prices a chain hop at the listed valor price of the
// product changing hands.
func (s *MultiSwapService) receiveValue(ctx context.Context, productID uuid.UUID) (int64, error) {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return 0, apperror.ErrProductNotFound
		}
		return 0, apperror.Wrap(err, apperror.ErrCodeInternal, "load product failed")
	}
	return product.ValorPrice, nil
}

// wantMatches reports whether a candidate product satisfies one want
// edge, either by explicit product id or by category.
func wantMatches(w models.ProductWant, candidate *models.Product) bool {
	if w.WantedProductID != nil {
		return *w.WantedProductID == candidate.ID
	}
	if w.WantedCategory != nil {
		return strings.EqualFold(*w.WantedCategory, candidate.Category)
	}
	return false
}

// withinTolerance accepts edges whose two prices differ by at most the
// configured fraction of the larger one.
func (s *MultiSwapService) withinTolerance(a, b int64) bool {
	max := a
	if b > max {
		max = b
	}
	if max == 0 {
		return true
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) <= s.cfg.ValueTolerance*float64(max)
}

// locationScore averages pair proximity over the cycle: same city and
// district scores 1.0, same city 0.7, anything else 0.2.
func (s *MultiSwapService) locationScore(nodes []models.ChainNode) float64 {
	if len(nodes) == 0 {
		return 0
	}
	var sum float64
	for i, a := range nodes {
		b := nodes[(i+1)%len(nodes)]
		sum += pairProximity(a, b)
	}
	return sum / float64(len(nodes))
}

func pairProximity(a, b models.ChainNode) float64 {
	if a.City == nil || b.City == nil || !strings.EqualFold(*a.City, *b.City) {
		return 0.2
	}
	if a.District != nil && b.District != nil && strings.EqualFold(*a.District, *b.District) {
		return 1.0
	}
	return 0.7
}

// valueBalanceScore rewards cycles whose items are close in value:
// 1 - (max-min)/avg, clamped to [0,1].
func valueBalanceScore(nodes []models.ChainNode) float64 {
	if len(nodes) == 0 {
		return 0
	}
	min, max, sum := nodes[0].ValorPrice, nodes[0].ValorPrice, int64(0)
	for _, n := range nodes {
		if n.ValorPrice < min {
			min = n.ValorPrice
		}
		if n.ValorPrice > max {
			max = n.ValorPrice
		}
		sum += n.ValorPrice
	}
	avg := float64(sum) / float64(len(nodes))
	if avg == 0 {
		return 0
	}
	score := 1 - float64(max-min)/avg
	return math.Max(0, math.Min(1, score))
}

// canonicalCycleKey rotates the cycle so the smallest product id leads,
// making rotations of the same cycle compare equal.
func canonicalCycleKey(a *arena, path []int) string {
	minAt := 0
	for i := 1; i < len(path); i++ {
		if a.products[path[i]].ID.String() < a.products[path[minAt]].ID.String() {
			minAt = i
		}
	}
	var sb strings.Builder
	for i := 0; i < len(path); i++ {
		sb.WriteString(a.products[path[(minAt+i)%len(path)]].ID.String())
		sb.WriteByte('|')
	}
	return sb.String()
}
