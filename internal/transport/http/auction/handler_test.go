package auction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gavelhouse/gavel/internal/entity"
	"github.com/gavelhouse/gavel/internal/eventbus"
	"github.com/gavelhouse/gavel/internal/notification"
	auctionrepo "github.com/gavelhouse/gavel/internal/repository/auction"
	bidrepo "github.com/gavelhouse/gavel/internal/repository/bid"
	service "github.com/gavelhouse/gavel/internal/service/auction"
)

// memStore is a single-auction in-memory store good enough to drive the
// service under the handler.
type memStore struct {
	mu      sync.Mutex
	auction *entity.Auction
	bids    []entity.Bid
	seq     int64
}

func (m *memStore) Get(_ context.Context, id string) (*entity.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.auction == nil || m.auction.ID != id {
		return nil, auctionrepo.ErrNotFound
	}
	snapshot := *m.auction
	return &snapshot, nil
}

func (m *memStore) MarkLive(_ context.Context, id string, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.auction == nil || m.auction.ID != id || m.auction.Status != entity.StatusUpcoming {
		return false, nil
	}
	m.auction.Status = entity.StatusLive
	m.auction.Version++
	return true, nil
}

func (m *memStore) MarkEnded(_ context.Context, id string, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.auction == nil || m.auction.ID != id || m.auction.Status != entity.StatusLive {
		return false, nil
	}
	m.auction.Status = entity.StatusEnded
	m.auction.Version++
	return true, nil
}

func (m *memStore) LatchEndingSoon(_ context.Context, id string, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.auction == nil || m.auction.ID != id || m.auction.Status != entity.StatusLive || m.auction.EndingSoonNotified {
		return false, nil
	}
	m.auction.EndingSoonNotified = true
	m.auction.Version++
	return true, nil
}

func (m *memStore) ListDueToStart(context.Context, time.Time) ([]entity.Auction, error) {
	return nil, nil
}

func (m *memStore) ListExpired(context.Context, time.Time) ([]entity.Auction, error) {
	return nil, nil
}

func (m *memStore) ListEndingSoon(context.Context, time.Time, time.Duration) ([]entity.Auction, error) {
	return nil, nil
}

func (m *memStore) Commit(_ context.Context, p bidrepo.CommitParams) (*entity.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.auction == nil || m.auction.ID != p.AuctionID {
		return nil, auctionrepo.ErrNotFound
	}
	if m.auction.Version != p.ExpectedVersion || m.auction.Status != entity.StatusLive {
		return nil, bidrepo.ErrVersionConflict
	}
	m.auction.CurrentBid = p.Amount
	m.auction.Version++
	m.seq++
	bid := entity.Bid{
		ID:         p.BidID,
		AuctionID:  p.AuctionID,
		BidderID:   p.BidderID,
		Amount:     p.Amount,
		Sequence:   m.seq,
		AcceptedAt: p.AcceptedAt,
	}
	m.bids = append(m.bids, bid)
	return &bid, nil
}

func (m *memStore) Highest(_ context.Context, _ string) (*entity.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *entity.Bid
	for i := range m.bids {
		b := m.bids[i]
		if b.Outranks(best) {
			best = &b
		}
	}
	if best == nil {
		return nil, bidrepo.ErrNoBids
	}
	snapshot := *best
	return &snapshot, nil
}

func (m *memStore) ListByAuction(context.Context, string) ([]entity.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entity.Bid(nil), m.bids...), nil
}

type silentDispatcher struct{}

func (silentDispatcher) Notify(context.Context, notification.Notification) error { return nil }

func (silentDispatcher) Consume(ctx context.Context, _ notification.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func newTestHandler(store *memStore) (*echo.Echo, *service.Service) {
	svc := service.New(
		store,
		store,
		eventbus.NewInprocBus(zap.NewNop()),
		silentDispatcher{},
		nil,
		zap.NewNop(),
		service.Options{BidRetryBudget: 3},
	)
	e := echo.New()
	Register(e, NewHandler(svc))
	return e, svc
}

func liveStore() *memStore {
	now := time.Now().UTC()
	return &memStore{auction: &entity.Auction{
		ID:            "a1",
		SellerID:      "seller-1",
		StartingPrice: decimal.RequireFromString("100"),
		BidIncrement:  decimal.RequireFromString("5"),
		CurrentBid:    decimal.RequireFromString("100"),
		Status:        entity.StatusLive,
		StartTime:     now.Add(-time.Hour),
		EndTime:       now.Add(time.Hour),
	}}
}

func doRequest(e *echo.Echo, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGetAuction(t *testing.T) {
	e, _ := newTestHandler(liveStore())

	rec := doRequest(e, http.MethodGet, "/auctions/a1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			ID         string `json:"id"`
			Status     string `json:"status"`
			CurrentBid string `json:"current_bid"`
			MinimumBid string `json:"minimum_bid"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "a1", body.Data.ID)
	assert.Equal(t, "live", body.Data.Status)
	assert.Equal(t, "100", body.Data.CurrentBid)
	assert.Equal(t, "105", body.Data.MinimumBid)
}

func TestGetAuction_NotFound(t *testing.T) {
	e, _ := newTestHandler(liveStore())

	rec := doRequest(e, http.MethodGet, "/auctions/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Kind string `json:"kind"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "not_found", body.Error.Kind)
}

func TestSubmitBid(t *testing.T) {
	e, svc := newTestHandler(liveStore())

	rec := doRequest(e, http.MethodPost, "/auctions/a1/bids", `{"amount":"110"}`,
		map[string]string{"X-Bidder-ID": "bidder-1"})
	svc.WaitEffects()

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			BidID         string `json:"bid_id"`
			Sequence      int64  `json:"sequence"`
			NewCurrentBid string `json:"new_current_bid"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.NotEmpty(t, body.Data.BidID)
	assert.Equal(t, int64(1), body.Data.Sequence)
	assert.Equal(t, "110", body.Data.NewCurrentBid)
}

func TestSubmitBid_MissingPrincipal(t *testing.T) {
	e, _ := newTestHandler(liveStore())

	rec := doRequest(e, http.MethodPost, "/auctions/a1/bids", `{"amount":"110"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitBid_TooLow(t *testing.T) {
	e, _ := newTestHandler(liveStore())

	rec := doRequest(e, http.MethodPost, "/auctions/a1/bids", `{"amount":"104"}`,
		map[string]string{"X-Bidder-ID": "bidder-1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error struct {
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "105", body.Error.Details["minimum_bid"])
}

func TestSubmitBid_EndedAuction(t *testing.T) {
	store := liveStore()
	store.auction.Status = entity.StatusEnded
	e, _ := newTestHandler(store)

	rec := doRequest(e, http.MethodPost, "/auctions/a1/bids", `{"amount":"110"}`,
		map[string]string{"X-Bidder-ID": "bidder-1"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestListBids(t *testing.T) {
	e, svc := newTestHandler(liveStore())

	for _, amt := range []string{"110", "120"} {
		rec := doRequest(e, http.MethodPost, "/auctions/a1/bids", `{"amount":"`+amt+`"}`,
			map[string]string{"X-Bidder-ID": "bidder-" + amt})
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	svc.WaitEffects()

	rec := doRequest(e, http.MethodGet, "/auctions/a1/bids", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []struct {
			BidderID string `json:"bidder_id"`
			Sequence int64  `json:"sequence"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, int64(1), body.Data[0].Sequence)
	assert.Equal(t, int64(2), body.Data[1].Sequence)
}

func TestForceLifecycleCheck(t *testing.T) {
	store := liveStore()
	store.auction.EndTime = time.Now().UTC().Add(-time.Second)
	e, svc := newTestHandler(store)

	rec := doRequest(e, http.MethodPost, "/auctions/a1/lifecycle-check", "", nil)
	svc.WaitEffects()
	require.Equal(t, http.StatusAccepted, rec.Code)

	get := doRequest(e, http.MethodGet, "/auctions/a1", "", nil)
	var body struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(get.Body.Bytes(), &body))
	assert.Equal(t, "ended", body.Data.Status)
}
