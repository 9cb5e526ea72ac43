package eventbus

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEvent(t *testing.T, auctionID string) Event {
	t.Helper()
	e, err := NewEvent(TypeBidAccepted, auctionID, BidAccepted{
		BidID:      "b1",
		BidderID:   "bidder-1",
		Amount:     decimal.NewFromInt(110),
		Sequence:   1,
		CurrentBid: decimal.NewFromInt(110),
	})
	require.NoError(t, err)
	return e
}

func TestInprocBus_DeliversToTopicSubscribers(t *testing.T) {
	bus := NewInprocBus(zap.NewNop())
	ctx := context.Background()

	var mu sync.Mutex
	var got []Event
	unsub, err := bus.Subscribe(ctx, AuctionTopic("a1"), func(_ context.Context, e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})
	require.NoError(t, err)
	defer unsub()

	other := 0
	_, err = bus.Subscribe(ctx, AuctionTopic("a2"), func(context.Context, Event) {
		other++
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, AuctionTopic("a1"), testEvent(t, "a1")))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, TypeBidAccepted, got[0].Type)
	assert.Equal(t, "a1", got[0].AuctionID)
	assert.Zero(t, other, "subscriber on another topic must not be invoked")
}

func TestInprocBus_LateSubscriberMissesEvent(t *testing.T) {
	bus := NewInprocBus(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, AuctionTopic("a1"), testEvent(t, "a1")))

	delivered := 0
	_, err := bus.Subscribe(ctx, AuctionTopic("a1"), func(context.Context, Event) {
		delivered++
	})
	require.NoError(t, err)

	// Delivery is fire-and-forget; nothing is replayed to late joiners.
	assert.Zero(t, delivered)
}

func TestInprocBus_Unsubscribe(t *testing.T) {
	bus := NewInprocBus(zap.NewNop())
	ctx := context.Background()

	delivered := 0
	unsub, err := bus.Subscribe(ctx, AuctionTopic("a1"), func(context.Context, Event) {
		delivered++
	})
	require.NoError(t, err)
	require.Equal(t, 1, bus.SubscriberCount(AuctionTopic("a1")))

	unsub()
	require.Zero(t, bus.SubscriberCount(AuctionTopic("a1")))

	require.NoError(t, bus.Publish(ctx, AuctionTopic("a1"), testEvent(t, "a1")))
	assert.Zero(t, delivered)
}

func TestInprocBus_ConcurrentPublishAndSubscribe(t *testing.T) {
	bus := NewInprocBus(zap.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub, err := bus.Subscribe(ctx, AuctionTopic("a1"), func(context.Context, Event) {})
			assert.NoError(t, err)
			unsub()
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, bus.Publish(ctx, AuctionTopic("a1"), testEvent(t, "a1")))
		}()
	}
	wg.Wait()
	assert.Zero(t, bus.SubscriberCount(AuctionTopic("a1")))
}
