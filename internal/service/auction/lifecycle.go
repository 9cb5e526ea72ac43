package auction

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/gavelhouse/gavel/internal/entity"
	bidrepo "github.com/gavelhouse/gavel/internal/repository/bid"
)

// advance walks the auction forward through any due transitions. Both the
// sweeper and on-demand checks funnel through here; every transition is a
// conditional update, so concurrent callers produce it exactly once and only
// the winner emits the one-time side effects.
func (s *Service) advance(ctx context.Context, auction *entity.Auction) (*entity.Auction, error) {
	now := s.now().UTC()

	if auction.DueToStart(now) {
		won, err := s.auctions.MarkLive(ctx, auction.ID, now)
		if err != nil {
			return auction, err
		}
		auction.Status = entity.StatusLive
		auction.Version++
		s.invalidateSnapshot(ctx, auction.ID)
		if won {
			s.metrics.transition(ctx, "live")
			s.runEffects(ctx, func(ctx context.Context) {
				s.afterStart(ctx, auction)
			})
		}
	}

	if auction.DueToEnd(now) {
		won, err := s.auctions.MarkEnded(ctx, auction.ID, now)
		if err != nil {
			return auction, err
		}
		auction.Status = entity.StatusEnded
		auction.Version++
		s.invalidateSnapshot(ctx, auction.ID)
		if won {
			s.metrics.transition(ctx, "ended")
			if err := s.settle(ctx, auction); err != nil {
				// The transition itself is committed; settlement effects
				// are best-effort and the error is surfaced for logging
				// only.
				s.logger.Error("auction settlement effects failed",
					zap.String("auction_id", auction.ID), zap.Error(err))
			}
		}
	}

	return auction, nil
}

// settle performs the one-time end-of-auction work for the transition
// winner: consult the ledger, then publish and notify.
func (s *Service) settle(ctx context.Context, auction *entity.Auction) error {
	winner, err := s.ledger.Highest(ctx, auction.ID)
	if err != nil && !errors.Is(err, bidrepo.ErrNoBids) {
		return err
	}

	snapshot := *auction
	s.runEffects(ctx, func(ctx context.Context) {
		s.afterEnd(ctx, &snapshot, winner)
	})
	return nil
}

// SweepDueToStart is the activation pass: flip overdue upcoming auctions
// live. Per-auction failures are logged and skipped; the next tick retries
// them because the transition is an idempotent guard.
func (s *Service) SweepDueToStart(ctx context.Context) {
	ctx, span := serviceTracer.Start(ctx, "AuctionService.SweepDueToStart")
	defer span.End()

	now := s.now().UTC()
	due, err := s.auctions.ListDueToStart(ctx, now)
	if err != nil {
		s.logger.Error("activation pass scan failed", zap.Error(err))
		return
	}
	for i := range due {
		auction := due[i]
		if _, err := s.advance(ctx, &auction); err != nil {
			s.logger.Error("activation failed; will retry next tick",
				zap.String("auction_id", auction.ID), zap.Error(err))
		}
	}
	span.SetAttributes(attribute.Int("auctions.due", len(due)))
}

// SweepExpired is the expiry pass: end overdue live auctions and settle the
// ones this process transitions.
func (s *Service) SweepExpired(ctx context.Context) {
	ctx, span := serviceTracer.Start(ctx, "AuctionService.SweepExpired")
	defer span.End()

	now := s.now().UTC()
	expired, err := s.auctions.ListExpired(ctx, now)
	if err != nil {
		s.logger.Error("expiry pass scan failed", zap.Error(err))
		return
	}
	for i := range expired {
		auction := expired[i]
		if _, err := s.advance(ctx, &auction); err != nil {
			s.logger.Error("expiry failed; will retry next tick",
				zap.String("auction_id", auction.ID), zap.Error(err))
		}
	}
	span.SetAttributes(attribute.Int("auctions.expired", len(expired)))
}

// SweepEndingSoon latches the ending-soon flag for live auctions inside the
// lookahead window. The flag is never reset, so the event fires at most once
// per auction no matter how many ticks observe the window.
func (s *Service) SweepEndingSoon(ctx context.Context) {
	ctx, span := serviceTracer.Start(ctx, "AuctionService.SweepEndingSoon")
	defer span.End()

	now := s.now().UTC()
	closing, err := s.auctions.ListEndingSoon(ctx, now, s.opts.EndingSoonWindow)
	if err != nil {
		s.logger.Error("ending-soon pass scan failed", zap.Error(err))
		return
	}
	for i := range closing {
		auction := closing[i]
		won, err := s.auctions.LatchEndingSoon(ctx, auction.ID, now)
		if err != nil {
			s.logger.Error("ending-soon latch failed; will retry next tick",
				zap.String("auction_id", auction.ID), zap.Error(err))
			continue
		}
		if !won {
			continue
		}
		s.invalidateSnapshot(ctx, auction.ID)
		snapshot := auction
		s.runEffects(ctx, func(ctx context.Context) {
			s.afterEndingSoon(ctx, &snapshot)
		})
	}
	span.SetAttributes(attribute.Int("auctions.closing", len(closing)))
}
