package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gokselkaptan/takas-app-sub005/internal/config"
	"github.com/gokselkaptan/takas-app-sub005/internal/models"
	"github.com/gokselkaptan/takas-app-sub005/internal/pkg/apperror"
	"github.com/gokselkaptan/takas-app-sub005/internal/repository/common"
)

// NegotiationRepo persists the append-only negotiation log.
type NegotiationRepo interface {
	Append(ctx context.Context, event *models.NegotiationEvent) error
	ListBySwap(ctx context.Context, swapID uuid.UUID) ([]models.NegotiationEvent, error)
}

// SwapRepoForNegotiation is the slice of swap storage negotiation needs.
type SwapRepoForNegotiation interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.SwapRequest, error)
	Update(ctx context.Context, swap *models.SwapRequest) error
}

// SwapLifecycle hands control back to the state machine once the
// negotiation reaches a terminal outcome.
type SwapLifecycle interface {
	Accept(ctx context.Context, swapID, actorID uuid.UUID) (*models.SwapRequest, error)
	Transition(ctx context.Context, swapID uuid.UUID, event string, actorID uuid.UUID) (*models.SwapRequest, error)
}

// NegotiationInput is one action of the bounded price negotiation.
// PreviousPrice is the price the actor saw when acting; a mismatch with
// the current offer means the actor acted on stale data.
type NegotiationInput struct {
	SwapID        uuid.UUID
	ActorID       uuid.UUID
	Action        string
	Price         *int64
	PreviousPrice *int64
	Message       *string
}

// NegotiationResult carries the updated swap and the logged event.
type NegotiationResult struct {
	Swap  *models.SwapRequest      `json:"swap"`
	Event *models.NegotiationEvent `json:"event"`
}

// NegotiationService implements the bounded offer/counter protocol on top
// of the swap row and the append-only event log.
type NegotiationService struct {
	swaps     SwapRepoForNegotiation
	events    NegotiationRepo
	lifecycle SwapLifecycle
	cfg       config.SwapConfig
}

func NewNegotiationService(swaps SwapRepoForNegotiation, events NegotiationRepo, lifecycle SwapLifecycle, cfg config.SwapConfig) *NegotiationService {
	return &NegotiationService{
		swaps:     swaps,
		events:    events,
		lifecycle: lifecycle,
		cfg:       cfg,
	}
}

// Negotiate applies one negotiation action. Concurrent writers are
// detected twice: optimistically via the swap row version and explicitly
// via the PreviousPrice echo.
func (s *NegotiationService) Negotiate(ctx context.Context, in NegotiationInput) (*NegotiationResult, error) {
	attempts := s.cfg.TxRetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := s.negotiateOnce(ctx, in)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, common.ErrStaleVersion) {
			return nil, err
		}
		lastErr = err
	}

	return nil, apperror.Wrap(lastErr, apperror.ErrCodeStalePriceConflict, "negotiation was modified concurrently")
}

func (s *NegotiationService) negotiateOnce(ctx context.Context, in NegotiationInput) (*NegotiationResult, error) {
	swap, err := s.swaps.GetByID(ctx, in.SwapID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, apperror.ErrSwapNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "load swap failed")
	}

	if !swap.IsParty(in.ActorID) {
		return nil, apperror.ErrNotAParty
	}
	if swap.Status != models.SwapStatusPending && swap.Status != models.SwapStatusNegotiating {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition,
			fmt.Sprintf("negotiation is closed in state %s", swap.Status))
	}

	now := time.Now()
	if swap.NegotiationDeadline != nil && now.After(*swap.NegotiationDeadline) {
		return nil, apperror.New(apperror.ErrCodeDeadlineExpired, "negotiation deadline has passed")
	}

	history, err := s.events.ListBySwap(ctx, in.SwapID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "load negotiation history failed")
	}
	lastOffer := lastPriceOffer(history)

	var result *NegotiationResult
	switch in.Action {
	case models.NegotiationActionPropose:
		result, err = s.propose(ctx, swap, in, lastOffer, now)
	case models.NegotiationActionCounter:
		result, err = s.counter(ctx, swap, in, lastOffer, now)
	case models.NegotiationActionAccept:
		result, err = s.accept(ctx, swap, in, lastOffer, now)
	case models.NegotiationActionReject:
		result, err = s.reject(ctx, swap, in, lastOffer)
	default:
		return nil, apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("unknown negotiation action %q", in.Action))
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// propose opens the negotiation with the first price offer.
func (s *NegotiationService) propose(ctx context.Context, swap *models.SwapRequest, in NegotiationInput, lastOffer *models.NegotiationEvent, now time.Time) (*NegotiationResult, error) {
	if swap.NegotiationStatus != models.NegotiationStatusNone {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition, "negotiation already has an open offer")
	}
	if lastOffer != nil {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition, "negotiation already has an open offer")
	}
	if err := validatePrice(in.Price); err != nil {
		return nil, err
	}

	swap.Status = models.SwapStatusNegotiating
	swap.NegotiationStatus = models.NegotiationStatusProposed
	s.setOfferPrice(swap, in.ActorID, *in.Price)

	return s.commit(ctx, swap, in, nil)
}

// counter replaces the open offer with a new price from the other party.
func (s *NegotiationService) counter(ctx context.Context, swap *models.SwapRequest, in NegotiationInput, lastOffer *models.NegotiationEvent, now time.Time) (*NegotiationResult, error) {
	if err := s.requireOpenOffer(swap, lastOffer); err != nil {
		return nil, err
	}
	if lastOffer.ActorID == in.ActorID {
		return nil, apperror.New(apperror.ErrCodeUnauthorizedActor, "cannot counter your own offer")
	}
	if swap.CounterOfferCount >= swap.MaxCounterOffers {
		return nil, apperror.New(apperror.ErrCodeNegotiationLimitExceeded,
			fmt.Sprintf("counter-offer limit of %d reached", swap.MaxCounterOffers))
	}
	if err := validatePrice(in.Price); err != nil {
		return nil, err
	}
	if err := checkPreviousPrice(in.PreviousPrice, lastOffer.ProposedPrice); err != nil {
		return nil, err
	}

	swap.NegotiationStatus = models.NegotiationStatusCountered
	swap.CounterOfferCount++
	swap.LastCounterOfferAt = &now
	s.setOfferPrice(swap, in.ActorID, *in.Price)
	if swap.NegotiationDeadline != nil {
		extended := swap.NegotiationDeadline.Add(s.cfg.CounterExtension)
		swap.NegotiationDeadline = &extended
	}

	return s.commit(ctx, swap, in, lastOffer.ProposedPrice)
}

// accept locks the open offer in as the agreed price and hands the swap
// to the lifecycle, which takes the escrow locks.
func (s *NegotiationService) accept(ctx context.Context, swap *models.SwapRequest, in NegotiationInput, lastOffer *models.NegotiationEvent, now time.Time) (*NegotiationResult, error) {
	if err := s.requireOpenOffer(swap, lastOffer); err != nil {
		return nil, err
	}
	if lastOffer.ActorID == in.ActorID {
		return nil, apperror.New(apperror.ErrCodeUnauthorizedActor, "cannot accept your own offer")
	}
	if err := checkPreviousPrice(in.PreviousPrice, lastOffer.ProposedPrice); err != nil {
		return nil, err
	}

	price := *lastOffer.ProposedPrice
	swap.AgreedPriceRequester = &price
	swap.AgreedPriceOwner = &price
	swap.NegotiationStatus = models.NegotiationStatusPriceAgreed
	swap.PriceAgreedAt = &now
	swap.PendingValorAmount = price

	result, err := s.commit(ctx, swap, in, lastOffer.ProposedPrice)
	if err != nil {
		return nil, err
	}

	accepted, err := s.lifecycle.Accept(ctx, swap.ID, in.ActorID)
	if err != nil {
		return nil, err
	}
	result.Swap = accepted
	return result, nil
}

// reject closes the negotiation and the swap with it.
func (s *NegotiationService) reject(ctx context.Context, swap *models.SwapRequest, in NegotiationInput, lastOffer *models.NegotiationEvent) (*NegotiationResult, error) {
	if swap.NegotiationStatus == models.NegotiationStatusPriceAgreed {
		return nil, apperror.New(apperror.ErrCodeInvalidTransition, "cannot reject an agreed price")
	}

	swap.NegotiationStatus = models.NegotiationStatusRejected

	var prev *int64
	if lastOffer != nil {
		prev = lastOffer.ProposedPrice
	}
	result, err := s.commit(ctx, swap, in, prev)
	if err != nil {
		return nil, err
	}

	rejected, err := s.lifecycle.Transition(ctx, swap.ID, models.SwapEventReject, in.ActorID)
	if err != nil {
		return nil, err
	}
	result.Swap = rejected
	return result, nil
}

// commit persists the mutated swap row and appends the log entry.
func (s *NegotiationService) commit(ctx context.Context, swap *models.SwapRequest, in NegotiationInput, previousPrice *int64) (*NegotiationResult, error) {
	if err := s.swaps.Update(ctx, swap); err != nil {
		if errors.Is(err, common.ErrStaleVersion) {
			return nil, common.ErrStaleVersion
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "persist negotiation failed")
	}

	event := &models.NegotiationEvent{
		SwapRequestID: swap.ID,
		ActorID:       in.ActorID,
		ActionType:    in.Action,
		ProposedPrice: in.Price,
		PreviousPrice: previousPrice,
		Message:       in.Message,
	}
	if err := s.events.Append(ctx, event); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "append negotiation event failed")
	}

	return &NegotiationResult{Swap: swap, Event: event}, nil
}

// GetHistory returns the full negotiation log of a swap for one of its
// parties.
func (s *NegotiationService) GetHistory(ctx context.Context, swapID, actorID uuid.UUID) ([]models.NegotiationEvent, error) {
	swap, err := s.swaps.GetByID(ctx, swapID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, apperror.ErrSwapNotFound
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "load swap failed")
	}
	if !swap.IsParty(actorID) {
		return nil, apperror.ErrNotAParty
	}
	return s.events.ListBySwap(ctx, swapID)
}

func (s *NegotiationService) requireOpenOffer(swap *models.SwapRequest, lastOffer *models.NegotiationEvent) error {
	open := swap.NegotiationStatus == models.NegotiationStatusProposed ||
		swap.NegotiationStatus == models.NegotiationStatusCountered
	if !open || lastOffer == nil || lastOffer.ProposedPrice == nil {
		return apperror.New(apperror.ErrCodeInvalidTransition, "no open offer to act on")
	}
	return nil
}

// setOfferPrice records the offer on the acting party's side of the row.
// The two sides only match once an offer is accepted.
func (s *NegotiationService) setOfferPrice(swap *models.SwapRequest, actorID uuid.UUID, price int64) {
	if actorID == swap.RequesterID {
		swap.AgreedPriceRequester = &price
		swap.AgreedPriceOwner = nil
	} else {
		swap.AgreedPriceOwner = &price
		swap.AgreedPriceRequester = nil
	}
}

// lastPriceOffer returns the most recent propose or counter event.
func lastPriceOffer(history []models.NegotiationEvent) *models.NegotiationEvent {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].ActionType == models.NegotiationActionPropose ||
			history[i].ActionType == models.NegotiationActionCounter {
			return &history[i]
		}
	}
	return nil
}

func validatePrice(price *int64) error {
	if price == nil || *price <= 0 {
		return apperror.New(apperror.ErrCodeValidation, "a positive price is required")
	}
	return nil
}

// checkPreviousPrice compares the price the actor saw against the current
// open offer.
func checkPreviousPrice(seen, current *int64) error {
	if seen == nil {
		return nil
	}
	if current == nil || *seen != *current {
		return apperror.New(apperror.ErrCodeStalePriceConflict, "the offer changed while you were responding")
	}
	return nil
}
