package notification

import (
	"context"
	"time"
)

// Type classifies a notification for templating by the downstream
// dispatcher.
type Type string

const (
	TypeOutbid        Type = "outbid"
	TypeEndingSoon    Type = "ending_soon"
	TypeAuctionWon    Type = "auction_won"
	TypeAuctionEnded  Type = "auction_ended"
	TypeAuctionNoBids Type = "auction_no_bids"
)

// Notification is one best-effort message to a single user. Delivery is
// at-least-once downstream, so consumers must tolerate duplicates.
type Notification struct {
	UserID    string    `json:"user_id"`
	AuctionID string    `json:"auction_id"`
	Type      Type      `json:"type"`
	Message   string    `json:"message"`
	SentAt    time.Time `json:"sent_at"`
}

// Handler processes an inbound notification on the delivery side.
type Handler func(ctx context.Context, n Notification) error

// Dispatcher is the boundary to the external notification collaborator.
// Notify never blocks the bid commit path: callers invoke it after the
// authoritative write and swallow its errors.
type Dispatcher interface {
	Notify(ctx context.Context, n Notification) error
	// Consume drains the notification stream, invoking handler per
	// message. Used by the delivery worker; blocks until ctx is done.
	Consume(ctx context.Context, handler Handler) error
}
