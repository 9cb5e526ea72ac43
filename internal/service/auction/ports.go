package auction

import (
	"context"
	"time"

	"github.com/gavelhouse/gavel/internal/entity"
	bidrepo "github.com/gavelhouse/gavel/internal/repository/bid"
)

// AuctionStore is the persistent-store boundary for auction state. All
// mutating methods are conditional updates: the bool result reports whether
// this caller's update changed the row (won the race).
type AuctionStore interface {
	Get(ctx context.Context, id string) (*entity.Auction, error)
	MarkLive(ctx context.Context, id string, now time.Time) (bool, error)
	MarkEnded(ctx context.Context, id string, now time.Time) (bool, error)
	LatchEndingSoon(ctx context.Context, id string, now time.Time) (bool, error)
	ListDueToStart(ctx context.Context, now time.Time) ([]entity.Auction, error)
	ListExpired(ctx context.Context, now time.Time) ([]entity.Auction, error)
	ListEndingSoon(ctx context.Context, now time.Time, window time.Duration) ([]entity.Auction, error)
}

// BidLedger is the append-only ledger boundary. Commit is atomic with the
// auction-state compare-and-swap and the sequence assignment.
type BidLedger interface {
	Commit(ctx context.Context, p bidrepo.CommitParams) (*entity.Bid, error)
	Highest(ctx context.Context, auctionID string) (*entity.Bid, error)
	ListByAuction(ctx context.Context, auctionID string) ([]entity.Bid, error)
}
