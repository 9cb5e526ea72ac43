package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Type discriminates the closed set of events carried on the bus.
type Type string

const (
	TypeBidAccepted      Type = "bid_accepted"
	TypeAuctionStarted   Type = "auction_started"
	TypeEndingSoon       Type = "ending_soon"
	TypeWinnerDetermined Type = "winner_determined"
	TypeNoBidsEnded      Type = "no_bids_ended"
)

// Event is the wire envelope published to a topic. Payload holds exactly one
// of the typed payload structs below, selected by Type.
type Event struct {
	Type      Type            `json:"type"`
	AuctionID string          `json:"auction_id"`
	EmittedAt time.Time       `json:"emitted_at"`
	Payload   json.RawMessage `json:"payload"`
}

// BidAccepted is published after a bid commit; viewers refresh the price.
type BidAccepted struct {
	BidID      string          `json:"bid_id"`
	BidderID   string          `json:"bidder_id"`
	Amount     decimal.Decimal `json:"amount"`
	Sequence   int64           `json:"sequence"`
	CurrentBid decimal.Decimal `json:"current_bid"`
}

// AuctionStarted is published when an upcoming auction goes live.
type AuctionStarted struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// EndingSoon is published at most once per auction inside the lookahead
// window.
type EndingSoon struct {
	EndTime time.Time `json:"end_time"`
}

// WinnerDetermined is published exactly once when an auction with bids ends.
type WinnerDetermined struct {
	BidderID string          `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
	Sequence int64           `json:"sequence"`
}

// NoBidsEnded is published exactly once when an auction ends without bids.
type NoBidsEnded struct{}

// NewEvent wraps a typed payload into the envelope.
func NewEvent(typ Type, auctionID string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Event{
		Type:      typ,
		AuctionID: auctionID,
		EmittedAt: time.Now().UTC(),
		Payload:   raw,
	}, nil
}

// AuctionTopic names the per-auction topic viewers subscribe to.
func AuctionTopic(auctionID string) string {
	return "auction:" + auctionID
}

// UserTopic names the per-user topic for personal updates.
func UserTopic(userID string) string {
	return "user:" + userID
}
