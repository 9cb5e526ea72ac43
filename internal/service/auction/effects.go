package auction

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gavelhouse/gavel/internal/entity"
	"github.com/gavelhouse/gavel/internal/eventbus"
	"github.com/gavelhouse/gavel/internal/notification"
)

// Side effects live on the far side of the commit: they are best-effort,
// tolerant of at-least-once delivery, and their failure is logged, never
// propagated back to the committed write.

func (s *Service) afterBidCommit(ctx context.Context, auction *entity.Auction, bid *entity.Bid, displaced *entity.Bid) {
	s.publish(ctx, eventbus.AuctionTopic(auction.ID), eventbus.TypeBidAccepted, auction.ID, eventbus.BidAccepted{
		BidID:      bid.ID,
		BidderID:   bid.BidderID,
		Amount:     bid.Amount,
		Sequence:   bid.Sequence,
		CurrentBid: bid.Amount,
	})

	// Only the displaced leader is told they were outbid. Broadcasting to
	// every prior bidder on each new bid is unbounded fan-out, not product
	// behavior.
	if displaced != nil && displaced.BidderID != bid.BidderID {
		s.notify(ctx, notification.Notification{
			UserID:    displaced.BidderID,
			AuctionID: auction.ID,
			Type:      notification.TypeOutbid,
			Message:   fmt.Sprintf("You were outbid: the price is now %s", bid.Amount),
		})
	}
}

func (s *Service) afterStart(ctx context.Context, auction *entity.Auction) {
	s.publish(ctx, eventbus.AuctionTopic(auction.ID), eventbus.TypeAuctionStarted, auction.ID, eventbus.AuctionStarted{
		StartTime: auction.StartTime,
		EndTime:   auction.EndTime,
	})
}

func (s *Service) afterEndingSoon(ctx context.Context, auction *entity.Auction) {
	s.publish(ctx, eventbus.AuctionTopic(auction.ID), eventbus.TypeEndingSoon, auction.ID, eventbus.EndingSoon{
		EndTime: auction.EndTime,
	})

	for _, bidderID := range s.distinctBidders(ctx, auction.ID) {
		s.notify(ctx, notification.Notification{
			UserID:    bidderID,
			AuctionID: auction.ID,
			Type:      notification.TypeEndingSoon,
			Message:   fmt.Sprintf("Auction ends at %s", auction.EndTime.Format("15:04 MST")),
		})
	}
}

func (s *Service) afterEnd(ctx context.Context, auction *entity.Auction, winner *entity.Bid) {
	if winner == nil {
		s.publish(ctx, eventbus.AuctionTopic(auction.ID), eventbus.TypeNoBidsEnded, auction.ID, eventbus.NoBidsEnded{})
		s.notify(ctx, notification.Notification{
			UserID:    auction.SellerID,
			AuctionID: auction.ID,
			Type:      notification.TypeAuctionNoBids,
			Message:   "Your auction ended without bids",
		})
		return
	}

	s.publish(ctx, eventbus.AuctionTopic(auction.ID), eventbus.TypeWinnerDetermined, auction.ID, eventbus.WinnerDetermined{
		BidderID: winner.BidderID,
		Amount:   winner.Amount,
		Sequence: winner.Sequence,
	})

	s.notify(ctx, notification.Notification{
		UserID:    winner.BidderID,
		AuctionID: auction.ID,
		Type:      notification.TypeAuctionWon,
		Message:   fmt.Sprintf("You won the auction at %s", winner.Amount),
	})
	s.notify(ctx, notification.Notification{
		UserID:    auction.SellerID,
		AuctionID: auction.ID,
		Type:      notification.TypeAuctionEnded,
		Message:   fmt.Sprintf("Your auction sold for %s", winner.Amount),
	})
	for _, bidderID := range s.distinctBidders(ctx, auction.ID) {
		if bidderID == winner.BidderID {
			continue
		}
		s.notify(ctx, notification.Notification{
			UserID:    bidderID,
			AuctionID: auction.ID,
			Type:      notification.TypeAuctionEnded,
			Message:   fmt.Sprintf("The auction ended at %s", winner.Amount),
		})
	}
}

func (s *Service) publish(ctx context.Context, topic string, typ eventbus.Type, auctionID string, payload any) {
	event, err := eventbus.NewEvent(typ, auctionID, payload)
	if err != nil {
		s.logger.Error("event build failed", zap.String("type", string(typ)), zap.Error(err))
		return
	}
	if err := s.bus.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("event publish failed",
			zap.String("topic", topic), zap.String("type", string(typ)), zap.Error(err))
		return
	}
	s.metrics.eventPublished(ctx, string(typ))
}

func (s *Service) notify(ctx context.Context, n notification.Notification) {
	if err := s.dispatcher.Notify(ctx, n); err != nil {
		s.logger.Warn("notification dispatch failed",
			zap.String("user_id", n.UserID), zap.String("type", string(n.Type)), zap.Error(err))
	}
}

func (s *Service) distinctBidders(ctx context.Context, auctionID string) []string {
	bids, err := s.ledger.ListByAuction(ctx, auctionID)
	if err != nil {
		s.logger.Warn("ledger read for notifications failed", zap.String("auction_id", auctionID), zap.Error(err))
		return nil
	}
	seen := make(map[string]struct{}, len(bids))
	ids := make([]string, 0, len(bids))
	for _, b := range bids {
		if _, ok := seen[b.BidderID]; ok {
			continue
		}
		seen[b.BidderID] = struct{}{}
		ids = append(ids, b.BidderID)
	}
	return ids
}
