package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gokselkaptan/takas-app-sub005/internal/config"
	"github.com/gokselkaptan/takas-app-sub005/internal/goroutine"
	"github.com/gokselkaptan/takas-app-sub005/internal/logger"
	"github.com/gokselkaptan/takas-app-sub005/internal/models"
	"github.com/gokselkaptan/takas-app-sub005/internal/pkg/apperror"
	"github.com/gokselkaptan/takas-app-sub005/internal/repository/common"
)

// SystemActor marks transitions triggered by the engine itself (sweep,
// chain commits) rather than by one of the swap parties.
var SystemActor = uuid.Nil

// SwapRepo is the storage contract of the lifecycle service.
type SwapRepo interface {
	Create(ctx context.Context, swap *models.SwapRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SwapRequest, error)
	Update(ctx context.Context, swap *models.SwapRequest) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.SwapRequest, error)
	ListByMultiSwap(ctx context.Context, multiSwapID uuid.UUID) ([]models.SwapRequest, error)
	ListExpiredNegotiations(ctx context.Context, now time.Time, limit int) ([]models.SwapRequest, error)
	ListExpiredDropOffs(ctx context.Context, now time.Time, limit int) ([]models.SwapRequest, error)
	ListAutoCompletable(ctx context.Context, now time.Time, limit int) ([]models.SwapRequest, error)
}

// UserRepoForSwap reads parties and adjusts trust after completion.
type UserRepoForSwap interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	AdjustTrustScore(ctx context.Context, id uuid.UUID, delta int) (int, error)
}

// ProductRepoForSwap reserves and releases the traded listings.
type ProductRepoForSwap interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
}

// EscrowManager is the slice of the escrow service the lifecycle needs.
type EscrowManager interface {
	LockDeposit(ctx context.Context, userID uuid.UUID, amount int64, swapID uuid.UUID, reason string) (*models.EscrowEntry, error)
	LockPayment(ctx context.Context, userID uuid.UUID, amount int64, swapID uuid.UUID) (*models.EscrowEntry, error)
	ReleaseEscrow(ctx context.Context, swap *models.SwapRequest) ([]models.EscrowEntry, error)
	ReverseEscrow(ctx context.Context, swapID uuid.UUID, reason string) ([]models.EscrowEntry, error)
	RefundEscrow(ctx context.Context, swapID uuid.UUID, reason string) ([]models.EscrowEntry, error)
}

// WSNotifier delivers best-effort event notifications.
type WSNotifier interface {
	BroadcastToUser(userID uuid.UUID, event string, data interface{}) error
}

// transitionTable enumerates, per state, the allowed events and their
// target states. Anything absent is INVALID_TRANSITION.
var transitionTable = map[string]map[string]string{
	models.SwapStatusPending: {
		models.SwapEventNegotiate: models.SwapStatusNegotiating,
		models.SwapEventReject:    models.SwapStatusRejected,
		models.SwapEventCancel:    models.SwapStatusCancelled,
	},
	models.SwapStatusNegotiating: {
		models.SwapEventAccept: models.SwapStatusAccepted,
		models.SwapEventReject: models.SwapStatusRejected,
		models.SwapEventCancel: models.SwapStatusCancelled,
	},
	models.SwapStatusAccepted: {
		models.SwapEventProposeDelivery: models.SwapStatusDeliveryProposed,
		models.SwapEventComplete:        models.SwapStatusCompleted, // chain swaps only, see guard
		models.SwapEventCancel:          models.SwapStatusCancelled,
	},
	models.SwapStatusDeliveryProposed: {
		models.SwapEventGenerateQR: models.SwapStatusQRGenerated,
		models.SwapEventCancel:     models.SwapStatusCancelled,
	},
	models.SwapStatusQRGenerated: {
		models.SwapEventArrive:  models.SwapStatusArrived,
		models.SwapEventDropOff: models.SwapStatusDroppedOff,
		models.SwapEventCancel:  models.SwapStatusCancelled,
	},
	models.SwapStatusArrived: {
		models.SwapEventScanQR: models.SwapStatusQRScanned,
		models.SwapEventCancel: models.SwapStatusCancelled,
	},
	models.SwapStatusDroppedOff: {
		models.SwapEventScanQR: models.SwapStatusQRScanned,
		models.SwapEventCancel: models.SwapStatusCancelled,
	},
	models.SwapStatusQRScanned: {
		models.SwapEventInspect: models.SwapStatusInspection,
	},
	models.SwapStatusInspection: {
		models.SwapEventSendCode: models.SwapStatusCodeSent,
		models.SwapEventComplete: models.SwapStatusCompleted,
		models.SwapEventDispute:  models.SwapStatusDisputed,
	},
	models.SwapStatusCodeSent: {
		models.SwapEventComplete: models.SwapStatusCompleted,
		models.SwapEventDispute:  models.SwapStatusDisputed,
	},
	models.SwapStatusCompleted: {
		models.SwapEventDispute: models.SwapStatusDisputed, // time-boxed re-entry
	},
	models.SwapStatusDisputed: {
		models.SwapEventResolveComplete: models.SwapStatusCompleted,
		models.SwapEventResolveCancel:   models.SwapStatusCancelled,
	},
}

// SwapService drives the swap lifecycle and its escrow side effects.
type SwapService struct {
	repo     SwapRepo
	users    UserRepoForSwap
	products ProductRepoForSwap
	escrow   EscrowManager
	trust    *TrustRiskModel
	cfg      config.SwapConfig
	hub      WSNotifier
}

func NewSwapService(repo SwapRepo, users UserRepoForSwap, products ProductRepoForSwap, escrow EscrowManager, trust *TrustRiskModel, cfg config.SwapConfig) *SwapService {
	return &SwapService{
		repo:     repo,
		users:    users,
		products: products,
		escrow:   escrow,
		trust:    trust,
		cfg:      cfg,
	}
}

// SetHub installs the websocket hub for event notifications.
func (s *SwapService) SetHub(hub WSNotifier) {
	s.hub = hub
}

// CreateSwapInput describes a new swap request.
type CreateSwapInput struct {
	RequesterID      uuid.UUID
	ProductID        uuid.UUID
	OfferedProductID *uuid.UUID
	DeliveryType     string
}

// CreateSwap opens a pending swap request over an active product.
func (s *SwapService) CreateSwap(ctx context.Context, in CreateSwapInput) (*models.SwapRequest, error) {
	if _, ok := models.ValidDeliveryTypes[in.DeliveryType]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("unknown delivery type %q", in.DeliveryType))
	}

	product, err := s.products.GetByID(ctx, in.ProductID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, apperror.ErrProductNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "load product failed")
	}
	if product.Status != models.ProductStatusActive {
		return nil, apperror.New(apperror.ErrCodeValidation, "product is not available for swapping")
	}
	if product.OwnerID == in.RequesterID {
		return nil, apperror.New(apperror.ErrCodeValidation, "cannot request a swap for your own product")
	}

	if in.OfferedProductID != nil {
		offered, err := s.products.GetByID(ctx, *in.OfferedProductID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil, apperror.ErrProductNotFound
			}
			return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "load offered product failed")
		}
		if offered.OwnerID != in.RequesterID {
			return nil, apperror.New(apperror.ErrCodeValidation, "offered product does not belong to the requester")
		}
	}

	deadline := time.Now().Add(s.cfg.NegotiationWindow)
	swap := &models.SwapRequest{
		RequesterID:         in.RequesterID,
		OwnerID:             product.OwnerID,
		ProductID:           in.ProductID,
		OfferedProductID:    in.OfferedProductID,
		Status:              models.SwapStatusPending,
		NegotiationStatus:   models.NegotiationStatusNone,
		MaxCounterOffers:    s.cfg.MaxCounterOffers,
		NegotiationDeadline: &deadline,
		DeliveryType:        in.DeliveryType,
	}

	if err := s.repo.Create(ctx, swap); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "create swap failed")
	}

	s.notify(swap, "swap_requested")
	return swap, nil
}

// GetSwap returns one swap visible to a party.
func (s *SwapService) GetSwap(ctx context.Context, swapID, actorID uuid.UUID) (*models.SwapRequest, error) {
	swap, err := s.loadSwap(ctx, swapID)
	if err != nil {
		return nil, err
	}
	if actorID != SystemActor && !swap.IsParty(actorID) {
		return nil, apperror.ErrNotAParty
	}
	return swap, nil
}

// ListByMultiSwap returns the swaps materialized from one chain.
func (s *SwapService) ListByMultiSwap(ctx context.Context, multiSwapID uuid.UUID) ([]models.SwapRequest, error) {
	return s.repo.ListByMultiSwap(ctx, multiSwapID)
}

// ListMySwaps returns the actor's swaps on either side.
func (s *SwapService) ListMySwaps(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.SwapRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// Transition applies one lifecycle event. Retried a bounded number of
// times when a concurrent writer invalidates the optimistic version.
func (s *SwapService) Transition(ctx context.Context, swapID uuid.UUID, event string, actorID uuid.UUID) (*models.SwapRequest, error) {
	var lastErr error
	attempts := s.cfg.TxRetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		swap, err := s.loadSwap(ctx, swapID)
		if err != nil {
			return nil, err
		}

		swap, err = s.applyTransition(ctx, swap, event, actorID, time.Now())
		if err == nil {
			return swap, nil
		}
		if !errors.Is(err, common.ErrStaleVersion) {
			return nil, err
		}
		lastErr = err
	}

	return nil, apperror.Wrap(lastErr, apperror.ErrCodeStalePriceConflict, "swap was modified concurrently")
}

// Accept is the hand-off from the negotiation protocol once the price is
// agreed.
func (s *SwapService) Accept(ctx context.Context, swapID uuid.UUID, actorID uuid.UUID) (*models.SwapRequest, error) {
	return s.Transition(ctx, swapID, models.SwapEventAccept, actorID)
}

// applyTransition validates one event against the table and the guards,
// persists the new state and runs the bound side effects.
func (s *SwapService) applyTransition(ctx context.Context, swap *models.SwapRequest, event string, actorID uuid.UUID, now time.Time) (*models.SwapRequest, error) {
	next, ok := transitionTable[swap.Status][event]
	if !ok {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition,
			fmt.Sprintf("event %s is not allowed in state %s", event, swap.Status))
	}

	if actorID != SystemActor && !swap.IsParty(actorID) {
		return nil, apperror.ErrNotAParty
	}

	if err := s.checkGuards(swap, event, actorID, now); err != nil {
		return nil, err
	}

	prev := swap.Status
	swap.Status = next

	switch next {
	case models.SwapStatusAccepted:
		if err := s.prepareAccept(ctx, swap, now); err != nil {
			swap.Status = prev
			return nil, err
		}
	case models.SwapStatusDroppedOff:
		deadline := now.Add(s.cfg.DropOffWindow)
		swap.DropOffDeadline = &deadline
	case models.SwapStatusQRScanned:
		if err := s.openDisputeWindow(ctx, swap, now); err != nil {
			swap.Status = prev
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, swap); err != nil {
		if errors.Is(err, common.ErrStaleVersion) && next == models.SwapStatusAccepted {
			// The locks we just took belong to a transition that lost the
			// race; give them back before retrying.
			if _, refundErr := s.escrow.RefundEscrow(ctx, swap.ID, "accept superseded by concurrent update"); refundErr != nil {
				logger.Log.WithFields(logrus.Fields{"swap_id": swap.ID, "error": refundErr}).
					Error("compensating refund after lost accept race failed")
			}
		}
		if errors.Is(err, common.ErrStaleVersion) {
			return nil, common.ErrStaleVersion
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "persist transition failed")
	}

	if err := s.runPostCommit(ctx, swap, prev, event, now); err != nil {
		return nil, err
	}

	s.notify(swap, "swap_"+swap.Status)
	return swap, nil
}

// checkGuards enforces the conditions the bare table cannot express.
func (s *SwapService) checkGuards(swap *models.SwapRequest, event string, actorID uuid.UUID, now time.Time) error {
	switch event {
	case models.SwapEventAccept:
		if swap.NegotiationStatus != models.NegotiationStatusPriceAgreed {
			return apperror.New(apperror.ErrCodeInvalidTransition, "price has not been agreed yet")
		}
		if swap.AgreedPrice() == nil {
			return apperror.New(apperror.ErrCodeStalePriceConflict, "agreed price fields do not match")
		}
	case models.SwapEventArrive, models.SwapEventSendCode:
		if swap.DeliveryType != models.DeliveryTypeFaceToFace {
			return apperror.New(apperror.ErrCodeInvalidTransition, "event is only valid on the face-to-face rail")
		}
	case models.SwapEventDropOff:
		if swap.DeliveryType != models.DeliveryTypeDropOff {
			return apperror.New(apperror.ErrCodeInvalidTransition, "event is only valid on the drop-off rail")
		}
	case models.SwapEventComplete:
		switch swap.Status {
		case models.SwapStatusAccepted:
			if swap.MultiSwapID == nil {
				return apperror.New(apperror.ErrCodeInvalidTransition, "only chain swaps complete directly from accepted")
			}
		case models.SwapStatusInspection:
			// The sweep treats an expired dispute window as implicit
			// confirmation on either rail, so a face-to-face swap stuck in
			// inspection still has a terminal path.
			if swap.DeliveryType != models.DeliveryTypeDropOff && actorID != SystemActor {
				return apperror.New(apperror.ErrCodeInvalidTransition, "face-to-face swaps complete after the confirmation code")
			}
		}
	case models.SwapEventDispute:
		if swap.Status == models.SwapStatusCompleted {
			if swap.DisputeWindowEndsAt == nil || now.After(*swap.DisputeWindowEndsAt) {
				return apperror.New(apperror.ErrCodeDeadlineExpired, "dispute window has closed")
			}
		}
	case models.SwapEventResolveComplete, models.SwapEventResolveCancel:
		if actorID != SystemActor {
			return apperror.New(apperror.ErrCodeUnauthorizedActor, "dispute resolution is not available to swap parties")
		}
	}
	return nil
}

// prepareAccept sizes and takes the escrow locks that back an accepted
// swap: the payment hold on the requester and a risk deposit on each side.
func (s *SwapService) prepareAccept(ctx context.Context, swap *models.SwapRequest, now time.Time) error {
	price := swap.AgreedPrice()
	if price == nil {
		return apperror.New(apperror.ErrCodeStalePriceConflict, "agreed price fields do not match")
	}

	requester, err := s.users.GetByID(ctx, swap.RequesterID)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "load requester failed")
	}
	owner, err := s.users.GetByID(ctx, swap.OwnerID)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "load owner failed")
	}

	profile := HigherRisk(s.trust.ProfileFor(requester, *price), s.trust.ProfileFor(owner, *price))
	tier := profile.Tier
	swap.RiskTier = &tier
	swap.PendingValorAmount = *price

	requesterDeposit := s.trust.DepositAmount(requester.TrustScore, *price)
	ownerDeposit := s.trust.DepositAmount(owner.TrustScore, *price)

	undo := func() {
		if _, err := s.escrow.RefundEscrow(ctx, swap.ID, "accept aborted"); err != nil {
			logger.Log.WithFields(logrus.Fields{"swap_id": swap.ID, "error": err}).
				Error("refund after aborted accept failed")
		}
	}

	if _, err := s.escrow.LockPayment(ctx, swap.RequesterID, *price, swap.ID); err != nil {
		return err
	}
	if requesterDeposit > 0 {
		if _, err := s.escrow.LockDeposit(ctx, swap.RequesterID, requesterDeposit, swap.ID, "requester risk deposit"); err != nil {
			undo()
			return err
		}
	}
	if ownerDeposit > 0 {
		if _, err := s.escrow.LockDeposit(ctx, swap.OwnerID, ownerDeposit, swap.ID, "owner risk deposit"); err != nil {
			undo()
			return err
		}
	}

	for _, productID := range s.swapProductIDs(swap) {
		if err := s.products.SetStatus(ctx, productID, models.ProductStatusReserved); err != nil {
			logger.Log.WithFields(logrus.Fields{"swap_id": swap.ID, "product_id": productID, "error": err}).
				Warn("reserve product failed")
		}
	}

	return nil
}

// openDisputeWindow starts the dispute clock when the item changes hands.
func (s *SwapService) openDisputeWindow(ctx context.Context, swap *models.SwapRequest, now time.Time) error {
	tier := models.RiskTierCritical
	if swap.RiskTier != nil {
		tier = *swap.RiskTier
	}
	hours := s.trust.WindowHoursForTier(tier)
	ends := now.Add(time.Duration(hours) * time.Hour)
	swap.DisputeWindowEndsAt = &ends
	return nil
}

// runPostCommit applies the side effects bound to the committed target
// state. The status row is already persisted, so each effect must be
// idempotent against repeats after a crash.
func (s *SwapService) runPostCommit(ctx context.Context, swap *models.SwapRequest, prev, event string, now time.Time) error {
	switch swap.Status {
	case models.SwapStatusCompleted:
		// Resolution in favour of completion settles exactly like a
		// normal completion.
		if _, err := s.escrow.ReleaseEscrow(ctx, swap); err != nil {
			return err
		}
		for _, userID := range []uuid.UUID{swap.RequesterID, swap.OwnerID} {
			if _, err := s.users.AdjustTrustScore(ctx, userID, s.cfg.TrustRewardOnComplete); err != nil {
				logger.Log.WithFields(logrus.Fields{"swap_id": swap.ID, "user_id": userID, "error": err}).
					Warn("trust reward failed")
			}
		}
		for _, productID := range s.swapProductIDs(swap) {
			if err := s.products.SetStatus(ctx, productID, models.ProductStatusSwapped); err != nil {
				logger.Log.WithFields(logrus.Fields{"swap_id": swap.ID, "product_id": productID, "error": err}).
					Warn("mark product swapped failed")
			}
		}

	case models.SwapStatusCancelled, models.SwapStatusRejected:
		if _, err := s.escrow.RefundEscrow(ctx, swap.ID, "swap "+swap.Status); err != nil {
			return err
		}
		if prev != models.SwapStatusPending && prev != models.SwapStatusNegotiating {
			for _, productID := range s.swapProductIDs(swap) {
				if err := s.products.SetStatus(ctx, productID, models.ProductStatusActive); err != nil {
					logger.Log.WithFields(logrus.Fields{"swap_id": swap.ID, "product_id": productID, "error": err}).
						Warn("release product failed")
				}
			}
		}
	}
	return nil
}

// swapProductIDs returns the listings involved in the swap.
func (s *SwapService) swapProductIDs(swap *models.SwapRequest) []uuid.UUID {
	ids := []uuid.UUID{swap.ProductID}
	if swap.OfferedProductID != nil {
		ids = append(ids, *swap.OfferedProductID)
	}
	return ids
}

// ChainSwapInput materializes one adjacent pair of an accepted barter
// chain. Chain swaps skip negotiation: the price is the listed valor price
// of the received product.
type ChainSwapInput struct {
	MultiSwapID      uuid.UUID
	RequesterID      uuid.UUID
	OwnerID          uuid.UUID
	ProductID        uuid.UUID
	OfferedProductID uuid.UUID
	Price            int64
	DeliveryType     string
}

// MaterializeChainSwap creates a swap already in accepted state with its
// escrow locks taken. Used only by the multi-swap saga.
func (s *SwapService) MaterializeChainSwap(ctx context.Context, in ChainSwapInput) (*models.SwapRequest, error) {
	now := time.Now()
	offered := in.OfferedProductID
	swap := &models.SwapRequest{
		RequesterID:          in.RequesterID,
		OwnerID:              in.OwnerID,
		ProductID:            in.ProductID,
		OfferedProductID:     &offered,
		MultiSwapID:          &in.MultiSwapID,
		Status:               models.SwapStatusPending,
		NegotiationStatus:    models.NegotiationStatusPriceAgreed,
		MaxCounterOffers:     s.cfg.MaxCounterOffers,
		AgreedPriceRequester: &in.Price,
		AgreedPriceOwner:     &in.Price,
		PriceAgreedAt:        &now,
		PendingValorAmount:   in.Price,
		DeliveryType:         in.DeliveryType,
	}

	if err := s.repo.Create(ctx, swap); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "create chain swap failed")
	}

	// Create only persists the initial columns; re-apply the agreed price
	// and advance to negotiating so the regular accept path takes over and
	// the escrow side effects stay in one place.
	swap.Status = models.SwapStatusNegotiating
	swap.NegotiationStatus = models.NegotiationStatusPriceAgreed
	swap.AgreedPriceRequester = &in.Price
	swap.AgreedPriceOwner = &in.Price
	swap.PriceAgreedAt = &now
	if err := s.repo.Update(ctx, swap); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "advance chain swap failed")
	}

	return s.Transition(ctx, swap.ID, models.SwapEventAccept, SystemActor)
}

// CompensateChainSwap rolls one chain leg back to where it was before the
// chain committed. Legs still holding locks are cancelled through the
// regular path; a leg that already completed gets its settlement reversed
// so the chain never ends as a partial exchange.
func (s *SwapService) CompensateChainSwap(ctx context.Context, swapID uuid.UUID) error {
	swap, err := s.loadSwap(ctx, swapID)
	if err != nil {
		return err
	}

	switch swap.Status {
	case models.SwapStatusCancelled, models.SwapStatusRejected:
		return nil
	case models.SwapStatusCompleted:
		return s.reverseCompletion(ctx, swap)
	default:
		if _, err := s.Transition(ctx, swapID, models.SwapEventCancel, SystemActor); err != nil && !apperror.IsConflict(err) {
			return err
		}
		return nil
	}
}

// reverseCompletion undoes the side effects of a completed chain leg and
// forces the terminal state to cancelled.
func (s *SwapService) reverseCompletion(ctx context.Context, swap *models.SwapRequest) error {
	if _, err := s.escrow.ReverseEscrow(ctx, swap.ID, "chain unwound after completion"); err != nil {
		return err
	}

	for _, userID := range []uuid.UUID{swap.RequesterID, swap.OwnerID} {
		if _, err := s.users.AdjustTrustScore(ctx, userID, -s.cfg.TrustRewardOnComplete); err != nil {
			logger.Log.WithFields(logrus.Fields{"swap_id": swap.ID, "user_id": userID, "error": err}).
				Warn("trust reward rollback failed")
		}
	}
	for _, productID := range s.swapProductIDs(swap) {
		if err := s.products.SetStatus(ctx, productID, models.ProductStatusActive); err != nil {
			logger.Log.WithFields(logrus.Fields{"swap_id": swap.ID, "product_id": productID, "error": err}).
				Warn("release product failed")
		}
	}

	swap.Status = models.SwapStatusCancelled
	if err := s.repo.Update(ctx, swap); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "persist chain leg rollback failed")
	}
	s.notify(swap, "swap_"+swap.Status)
	return nil
}

// SweepExpired applies every deadline-driven auto-transition that is due
// at now. Idempotent: a transition already applied by a concurrent sweep
// surfaces as a stale version or an invalid transition and is skipped.
func (s *SwapService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	count := 0
	batch := s.cfg.SweepBatchSize
	if batch <= 0 {
		batch = 100
	}

	expired, err := s.repo.ListExpiredNegotiations(ctx, now, batch)
	if err != nil {
		return count, apperror.Wrap(err, apperror.ErrCodeInternal, "sweep: list expired negotiations failed")
	}
	for i := range expired {
		if s.sweepOne(ctx, &expired[i], models.SwapEventReject, "negotiation deadline passed") {
			count++
		}
	}

	dropOffs, err := s.repo.ListExpiredDropOffs(ctx, now, batch)
	if err != nil {
		return count, apperror.Wrap(err, apperror.ErrCodeInternal, "sweep: list expired drop-offs failed")
	}
	for i := range dropOffs {
		if s.sweepOne(ctx, &dropOffs[i], models.SwapEventCancel, "drop-off not picked up in time") {
			count++
		}
	}

	completable, err := s.repo.ListAutoCompletable(ctx, now, batch)
	if err != nil {
		return count, apperror.Wrap(err, apperror.ErrCodeInternal, "sweep: list auto-completable failed")
	}
	for i := range completable {
		swap := &completable[i]
		eligible, err := s.autoCompleteEligible(ctx, swap)
		if err != nil {
			logger.Log.WithFields(logrus.Fields{"swap_id": swap.ID, "error": err}).
				Warn("sweep: auto-complete eligibility check failed")
			continue
		}
		if !eligible {
			// Flag the row so it stops occupying the batch; completion stays
			// available through the manual and dispute paths.
			swap.AutoCompleteBlocked = true
			if err := s.repo.Update(ctx, swap); err != nil && !errors.Is(err, common.ErrStaleVersion) {
				logger.Log.WithFields(logrus.Fields{"swap_id": swap.ID, "error": err}).
					Warn("sweep: flag ineligible swap failed")
			}
			continue
		}
		if s.sweepOne(ctx, swap, models.SwapEventComplete, "dispute window closed without dispute") {
			count++
		}
	}

	return count, nil
}

// sweepOne applies a single auto-transition, treating conflicts as
// already-handled rather than failures.
func (s *SwapService) sweepOne(ctx context.Context, swap *models.SwapRequest, event, reason string) bool {
	_, err := s.Transition(ctx, swap.ID, event, SystemActor)
	if err != nil {
		if apperror.IsConflict(err) || apperror.Is(err, apperror.ErrCodeStalePriceConflict) {
			return false
		}
		logger.Log.WithFields(logrus.Fields{"swap_id": swap.ID, "event": event, "reason": reason, "error": err}).
			Error("sweep: auto-transition failed")
		return false
	}
	logger.Log.WithFields(logrus.Fields{"swap_id": swap.ID, "event": event, "reason": reason}).
		Info("sweep: auto-transition applied")
	return true
}

// autoCompleteEligible re-evaluates the risk model at sweep time: both
// parties must currently qualify for auto-completion.
func (s *SwapService) autoCompleteEligible(ctx context.Context, swap *models.SwapRequest) (bool, error) {
	requester, err := s.users.GetByID(ctx, swap.RequesterID)
	if err != nil {
		return false, err
	}
	owner, err := s.users.GetByID(ctx, swap.OwnerID)
	if err != nil {
		return false, err
	}
	value := swap.PendingValorAmount
	return s.trust.ProfileFor(requester, value).CanAutoComplete &&
		s.trust.ProfileFor(owner, value).CanAutoComplete, nil
}

// loadSwap translates the repository sentinel into the API error.
func (s *SwapService) loadSwap(ctx context.Context, swapID uuid.UUID) (*models.SwapRequest, error) {
	swap, err := s.repo.GetByID(ctx, swapID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, apperror.ErrSwapNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "load swap failed")
	}
	return swap, nil
}

// notify broadcasts a swap event to both parties, best effort. A failure
// here never affects the committed transition.
func (s *SwapService) notify(swap *models.SwapRequest, event string) {
	if s.hub == nil {
		return
	}
	payload := map[string]interface{}{
		"swap_id": swap.ID,
		"status":  swap.Status,
	}
	snapshot := *swap
	goroutine.SafeGo(func() {
		for _, userID := range []uuid.UUID{snapshot.RequesterID, snapshot.OwnerID} {
			if err := s.hub.BroadcastToUser(userID, event, payload); err != nil {
				logger.Log.WithFields(logrus.Fields{"swap_id": snapshot.ID, "user_id": userID, "error": err}).
					Debug("swap notification dropped")
			}
		}
	})
}
