package auction

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gavelhouse/gavel/internal/dto"
	"github.com/gavelhouse/gavel/internal/entity"
	"github.com/gavelhouse/gavel/internal/presentation/http/response"
	service "github.com/gavelhouse/gavel/internal/service/auction"
	"github.com/gavelhouse/gavel/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/gavelhouse/gavel/transport/http/auction")

// Handler exposes the bidding engine over HTTP.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an auction Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with the provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/auctions")
	g.GET("/:id", h.getCurrentState)
	g.GET("/:id/bids", h.listBids)
	g.POST("/:id/bids", h.submitBid)
	g.POST("/:id/lifecycle-check", h.forceLifecycleCheck)
}

func (h *Handler) getCurrentState(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "auctions.getCurrentState", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	auction, err := h.svc.GetCurrentState(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithData(toView(auction)).Build()
}

func (h *Handler) listBids(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "auctions.listBids", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	bids, err := h.svc.ListBids(ctx, id)
	if err != nil {
		return b.WithError(err).Build()
	}

	records := make([]dto.BidRecord, 0, len(bids))
	for _, bid := range bids {
		records = append(records, dto.BidRecord{
			BidderID:   bid.BidderID,
			Amount:     bid.Amount,
			Sequence:   bid.Sequence,
			AcceptedAt: bid.AcceptedAt,
		})
	}
	return b.WithData(records).Build()
}

func (h *Handler) submitBid(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	var payload struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := c.Bind(&payload); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	// The authentication layer has already verified the principal; this
	// core trusts the header it forwards and performs no credential checks.
	bidderID := c.Request().Header.Get("X-Bidder-ID")
	if bidderID == "" {
		return b.WithError(errorbank.BadRequest("missing bidder principal")).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "auctions.submitBid", trace.WithAttributes(
		attribute.String("auction.id", id),
		attribute.String("bid.amount", payload.Amount.String()),
	))
	defer span.End()

	result, err := h.svc.SubmitBid(ctx, id, bidderID, payload.Amount)
	if err != nil {
		return b.WithError(err).Build()
	}

	return b.WithStatus(http.StatusCreated).WithData(dto.BidAccepted{
		BidID:         result.BidID,
		Sequence:      result.Sequence,
		NewCurrentBid: result.NewCurrentBid,
		AcceptedAt:    result.AcceptedAt,
	}).Build()
}

func (h *Handler) forceLifecycleCheck(c echo.Context) error {
	b := response.New(c)
	id := c.Param("id")

	ctx, span := httpTracer.Start(c.Request().Context(), "auctions.forceLifecycleCheck", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	if err := h.svc.ForceLifecycleCheck(ctx, id); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithStatus(http.StatusAccepted).WithData(map[string]string{"status": "checked"}).Build()
}

func toView(auction *entity.Auction) dto.AuctionView {
	return dto.AuctionView{
		ID:            auction.ID,
		SellerID:      auction.SellerID,
		Status:        string(auction.Status),
		CurrentBid:    auction.CurrentBid,
		MinimumBid:    auction.MinimumBid(),
		StartingPrice: auction.StartingPrice,
		BidIncrement:  auction.BidIncrement,
		StartTime:     auction.StartTime,
		EndTime:       auction.EndTime,
	}
}
