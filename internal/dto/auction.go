package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionView is the read model exposed via transport layers.
type AuctionView struct {
	ID            string          `json:"id"`
	SellerID      string          `json:"seller_id"`
	Status        string          `json:"status"`
	CurrentBid    decimal.Decimal `json:"current_bid"`
	MinimumBid    decimal.Decimal `json:"minimum_bid"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	BidIncrement  decimal.Decimal `json:"bid_increment"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
}

// BidAccepted is returned to a bidder whose bid committed.
type BidAccepted struct {
	BidID         string          `json:"bid_id"`
	Sequence      int64           `json:"sequence"`
	NewCurrentBid decimal.Decimal `json:"new_current_bid"`
	AcceptedAt    time.Time       `json:"accepted_at"`
}

// BidRecord is one ledger entry in the bid history.
type BidRecord struct {
	BidderID   string          `json:"bidder_id"`
	Amount     decimal.Decimal `json:"amount"`
	Sequence   int64           `json:"sequence"`
	AcceptedAt time.Time       `json:"accepted_at"`
}
