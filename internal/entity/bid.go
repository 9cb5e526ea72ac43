package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Bid is one accepted price offer. Rows are append-only: once written they
// are never mutated or deleted. Sequence is assigned at commit time from the
// auction-scoped counter, so ordering is independent of wall clocks.
type Bid struct {
	bun.BaseModel `bun:"table:bids"`

	ID         string          `bun:",pk"`
	AuctionID  string          `bun:"auction_id,notnull"`
	BidderID   string          `bun:"bidder_id,notnull"`
	Amount     decimal.Decimal `bun:"amount,notnull"`
	Sequence   int64           `bun:"sequence,notnull"`
	AcceptedAt time.Time       `bun:"accepted_at,notnull"`
}

// BidSequence holds the last assigned sequence value per auction. The row is
// bumped with an atomic UPDATE inside the bid commit transaction.
type BidSequence struct {
	bun.BaseModel `bun:"table:bid_sequences"`

	AuctionID string `bun:"auction_id,pk"`
	LastValue int64  `bun:"last_value,notnull"`
}

// Outranks reports whether b beats other under the winner ordering:
// highest amount first, earliest sequence breaking ties.
func (b *Bid) Outranks(other *Bid) bool {
	if other == nil {
		return true
	}
	if c := b.Amount.Cmp(other.Amount); c != 0 {
		return c > 0
	}
	return b.Sequence < other.Sequence
}
