package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/gavelhouse/gavel/internal/cache"
	"github.com/gavelhouse/gavel/internal/entity"
	"github.com/gavelhouse/gavel/internal/eventbus"
	"github.com/gavelhouse/gavel/internal/notification"
	auctionrepo "github.com/gavelhouse/gavel/internal/repository/auction"
	bidrepo "github.com/gavelhouse/gavel/internal/repository/bid"
	"github.com/gavelhouse/gavel/pkg/errorbank"
)

var serviceTracer = otel.Tracer("github.com/gavelhouse/gavel/service/auction")

const sideEffectTimeout = 5 * time.Second

// Options tunes the engine.
type Options struct {
	// BidRetryBudget bounds re-validations after a lost compare-and-swap.
	BidRetryBudget int
	// EndingSoonWindow is the lookahead for the ending-soon pass.
	EndingSoonWindow time.Duration
	// SnapshotTTL bounds staleness of cached auction views.
	SnapshotTTL time.Duration
}

// BidResult reports an accepted bid back to the caller.
type BidResult struct {
	BidID         string
	Sequence      int64
	NewCurrentBid decimal.Decimal
	AcceptedAt    time.Time
}

// Service is the bidding and lifecycle engine. It never holds an in-process
// lock around auction state: the store's conditional updates are the only
// synchronization, so the service stays correct across multiple processes.
type Service struct {
	auctions   AuctionStore
	ledger     BidLedger
	bus        eventbus.Bus
	dispatcher notification.Dispatcher
	cache      cache.Store
	logger     *zap.Logger
	opts       Options
	metrics    *metrics

	now func() time.Time

	// effects tracks in-flight post-commit side effects so shutdown and
	// tests can wait for them.
	effects sync.WaitGroup
}

// New wires a Service. The bus, dispatcher, and cache may be noop
// implementations; the commit path does not depend on them.
func New(auctions AuctionStore, ledger BidLedger, bus eventbus.Bus, dispatcher notification.Dispatcher, store cache.Store, logger *zap.Logger, opts Options) *Service {
	if opts.BidRetryBudget < 0 {
		opts.BidRetryBudget = 0
	}
	if opts.EndingSoonWindow <= 0 {
		opts.EndingSoonWindow = time.Hour
	}
	return &Service{
		auctions:   auctions,
		ledger:     ledger,
		bus:        bus,
		dispatcher: dispatcher,
		cache:      store,
		logger:     logger,
		opts:       opts,
		metrics:    newMetrics(),
		now:        time.Now,
	}
}

// SubmitBid validates and commits a bid. The commit is an optimistic
// compare-and-swap on the auction version; a lost race triggers a re-read
// and re-validation, bounded by the retry budget. Exhaustion surfaces a
// retryable conflict, never a stall.
func (s *Service) SubmitBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (*BidResult, error) {
	ctx, span := serviceTracer.Start(ctx, "AuctionService.SubmitBid", trace.WithAttributes(
		attribute.String("auction.id", auctionID),
		attribute.String("bid.amount", amount.String()),
	))
	defer span.End()

	if auctionID == "" || bidderID == "" {
		return nil, errorbank.BadRequest("auction id and bidder id are required")
	}
	if !amount.IsPositive() {
		s.metrics.bidRejected(ctx, "malformed_amount")
		return nil, errorbank.BadRequest("bid amount must be positive")
	}

	for attempt := 0; ; attempt++ {
		auction, err := s.auctions.Get(ctx, auctionID)
		if err != nil {
			if errors.Is(err, auctionrepo.ErrNotFound) {
				return nil, errorbank.NotFound("auction not found")
			}
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, "store error")
			return nil, errorbank.Internal("failed to load auction", errorbank.WithCause(err))
		}

		now := s.now().UTC()
		if err := s.validateBid(ctx, auction, bidderID, amount, now); err != nil {
			return nil, err
		}

		// The displaced leader is read before the commit; after it the
		// snapshot is gone.
		leader, err := s.ledger.Highest(ctx, auctionID)
		if err != nil && !errors.Is(err, bidrepo.ErrNoBids) {
			span.RecordError(err)
			return nil, errorbank.Internal("failed to read ledger", errorbank.WithCause(err))
		}

		committed, err := s.ledger.Commit(ctx, bidrepo.CommitParams{
			BidID:           uuid.NewString(),
			AuctionID:       auctionID,
			BidderID:        bidderID,
			Amount:          amount,
			ExpectedVersion: auction.Version,
			AcceptedAt:      now,
		})
		if errors.Is(err, bidrepo.ErrVersionConflict) {
			s.metrics.bidConflict(ctx)
			if attempt < s.opts.BidRetryBudget {
				continue
			}
			span.SetAttributes(attribute.Int("bid.attempts", attempt+1))
			return nil, errorbank.Conflict("bid lost concurrent update race; resubmit with fresh state")
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, "commit failed")
			return nil, errorbank.Internal("failed to commit bid", errorbank.WithCause(err))
		}

		s.metrics.bidAccepted(ctx)
		s.invalidateSnapshot(ctx, auctionID)
		s.runEffects(ctx, func(ctx context.Context) {
			s.afterBidCommit(ctx, auction, committed, leader)
		})

		return &BidResult{
			BidID:         committed.ID,
			Sequence:      committed.Sequence,
			NewCurrentBid: committed.Amount,
			AcceptedAt:    committed.AcceptedAt,
		}, nil
	}
}

func (s *Service) validateBid(ctx context.Context, auction *entity.Auction, bidderID string, amount decimal.Decimal, now time.Time) error {
	switch auction.Status {
	case entity.StatusUpcoming:
		s.metrics.bidRejected(ctx, "not_live")
		return errorbank.Unprocessable("auction is not live yet")
	case entity.StatusEnded:
		s.metrics.bidRejected(ctx, "ended")
		return errorbank.Unprocessable("auction has ended")
	}
	if !now.Before(auction.EndTime) {
		s.metrics.bidRejected(ctx, "ended")
		return errorbank.Unprocessable("auction has ended")
	}
	if bidderID == auction.SellerID {
		s.metrics.bidRejected(ctx, "self_bid")
		return errorbank.BadRequest("seller cannot bid on own auction")
	}
	if amount.LessThan(auction.MinimumBid()) {
		s.metrics.bidRejected(ctx, "too_low")
		return errorbank.BadRequest(
			fmt.Sprintf("bid must be at least %s", auction.MinimumBid()),
			errorbank.WithDetail("minimum_bid", auction.MinimumBid().String()),
		)
	}
	return nil
}

// GetCurrentState returns a fresh auction snapshot. It first runs the
// lifecycle check, so a live record whose window elapsed is ended before it
// is returned; stale "live" state never escapes this method.
func (s *Service) GetCurrentState(ctx context.Context, auctionID string) (*entity.Auction, error) {
	ctx, span := serviceTracer.Start(ctx, "AuctionService.GetCurrentState", trace.WithAttributes(attribute.String("auction.id", auctionID)))
	defer span.End()

	if cached := s.snapshotFromCache(ctx, auctionID); cached != nil {
		return cached, nil
	}

	auction, err := s.auctions.Get(ctx, auctionID)
	if err != nil {
		if errors.Is(err, auctionrepo.ErrNotFound) {
			return nil, errorbank.NotFound("auction not found")
		}
		span.RecordError(err)
		return nil, errorbank.Internal("failed to load auction", errorbank.WithCause(err))
	}

	auction, err = s.advance(ctx, auction)
	if err != nil {
		span.RecordError(err)
		return nil, errorbank.Internal("lifecycle check failed", errorbank.WithCause(err))
	}

	s.storeSnapshot(ctx, auction)
	return auction, nil
}

// ListBids returns the auction's ledger in sequence order.
func (s *Service) ListBids(ctx context.Context, auctionID string) ([]entity.Bid, error) {
	ctx, span := serviceTracer.Start(ctx, "AuctionService.ListBids", trace.WithAttributes(attribute.String("auction.id", auctionID)))
	defer span.End()

	if _, err := s.auctions.Get(ctx, auctionID); err != nil {
		if errors.Is(err, auctionrepo.ErrNotFound) {
			return nil, errorbank.NotFound("auction not found")
		}
		return nil, errorbank.Internal("failed to load auction", errorbank.WithCause(err))
	}
	bids, err := s.ledger.ListByAuction(ctx, auctionID)
	if err != nil {
		span.RecordError(err)
		return nil, errorbank.Internal("failed to read ledger", errorbank.WithCause(err))
	}
	return bids, nil
}

// ForceLifecycleCheck runs the transition check for one auction on demand.
// Safe to call concurrently with the sweeper: both sides race on the same
// conditional updates and only one performs the one-time side effects.
func (s *Service) ForceLifecycleCheck(ctx context.Context, auctionID string) error {
	ctx, span := serviceTracer.Start(ctx, "AuctionService.ForceLifecycleCheck", trace.WithAttributes(attribute.String("auction.id", auctionID)))
	defer span.End()

	auction, err := s.auctions.Get(ctx, auctionID)
	if err != nil {
		if errors.Is(err, auctionrepo.ErrNotFound) {
			return errorbank.NotFound("auction not found")
		}
		return errorbank.Internal("failed to load auction", errorbank.WithCause(err))
	}
	if _, err := s.advance(ctx, auction); err != nil {
		span.RecordError(err)
		return errorbank.Internal("lifecycle check failed", errorbank.WithCause(err))
	}
	return nil
}

// runEffects executes post-commit side effects off the request path. A
// failure in here is logged and swallowed; the commit already happened and
// must never be rolled back by a notification problem.
func (s *Service) runEffects(ctx context.Context, fn func(ctx context.Context)) {
	detached := context.WithoutCancel(ctx)
	s.effects.Add(1)
	go func() {
		defer s.effects.Done()
		effectCtx, cancel := context.WithTimeout(detached, sideEffectTimeout)
		defer cancel()
		fn(effectCtx)
	}()
}

// WaitEffects blocks until all in-flight side effects finish. Called on
// shutdown and by tests.
func (s *Service) WaitEffects() {
	s.effects.Wait()
}

func (s *Service) snapshotKey(auctionID string) string {
	return "auctions:" + auctionID
}

// snapshotFromCache serves a cached view only while it cannot be stale: a
// cached record due for a lifecycle transition (live past its end time, or
// upcoming past its start time) is discarded so the check runs against the
// store.
func (s *Service) snapshotFromCache(ctx context.Context, auctionID string) *entity.Auction {
	if s.cache == nil || s.opts.SnapshotTTL <= 0 {
		return nil
	}
	raw, err := s.cache.Get(ctx, s.snapshotKey(auctionID))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("auction cache read failed", zap.String("auction_id", auctionID), zap.Error(err))
		}
		return nil
	}
	var auction entity.Auction
	if err := json.Unmarshal(raw, &auction); err != nil {
		return nil
	}
	now := s.now().UTC()
	if auction.Status == entity.StatusLive && !now.Before(auction.EndTime) {
		return nil
	}
	if auction.Status == entity.StatusUpcoming && !now.Before(auction.StartTime) {
		return nil
	}
	return &auction
}

func (s *Service) storeSnapshot(ctx context.Context, auction *entity.Auction) {
	if s.cache == nil || s.opts.SnapshotTTL <= 0 || auction == nil {
		return
	}
	raw, err := json.Marshal(auction)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.snapshotKey(auction.ID), raw, s.opts.SnapshotTTL); err != nil {
		s.logger.Warn("auction cache write failed", zap.String("auction_id", auction.ID), zap.Error(err))
	}
}

func (s *Service) invalidateSnapshot(ctx context.Context, auctionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, s.snapshotKey(auctionID)); err != nil {
		s.logger.Warn("auction cache invalidation failed", zap.String("auction_id", auctionID), zap.Error(err))
	}
}
