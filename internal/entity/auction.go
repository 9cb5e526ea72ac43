package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Status is the lifecycle state of an auction. Transitions only ever move
// forward: upcoming -> live -> ended.
type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusLive     Status = "live"
	StatusEnded    Status = "ended"
)

// Auction is the authoritative lifecycle record for one listed item. Every
// mutation goes through a conditional update on Version or Status; the row
// is never written with a bare read-then-write.
type Auction struct {
	bun.BaseModel `bun:"table:auctions"`

	ID                 string          `bun:",pk"`
	SellerID           string          `bun:"seller_id,notnull"`
	StartingPrice      decimal.Decimal `bun:"starting_price,notnull"`
	BidIncrement       decimal.Decimal `bun:"bid_increment,notnull"`
	CurrentBid         decimal.Decimal `bun:"current_bid,notnull"`
	Status             Status          `bun:"status,notnull"`
	Version            int64           `bun:"version,notnull"`
	EndingSoonNotified bool            `bun:"ending_soon_notified,notnull"`
	StartTime          time.Time       `bun:"start_time,notnull"`
	EndTime            time.Time       `bun:"end_time,notnull"`
	CreatedAt          time.Time       `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time       `bun:"updated_at,nullzero"`
}

// MinimumBid returns the lowest amount the next bid must reach.
func (a *Auction) MinimumBid() decimal.Decimal {
	return a.CurrentBid.Add(a.BidIncrement)
}

// Biddable reports whether the auction accepts bids at the given instant.
func (a *Auction) Biddable(now time.Time) bool {
	return a.Status == StatusLive && now.Before(a.EndTime)
}

// DueToStart reports whether an upcoming auction should go live.
func (a *Auction) DueToStart(now time.Time) bool {
	return a.Status == StatusUpcoming && !now.Before(a.StartTime)
}

// DueToEnd reports whether a live auction's window has elapsed.
func (a *Auction) DueToEnd(now time.Time) bool {
	return a.Status == StatusLive && !now.Before(a.EndTime)
}
