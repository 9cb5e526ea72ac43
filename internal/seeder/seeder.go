package seeder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/gavelhouse/gavel/internal/database"
	"github.com/gavelhouse/gavel/internal/entity"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// Seeder performs database seeding for local/dev setups.
type Seeder struct {
	db     *bun.DB
	logger *zap.Logger
}

// New constructs a Seeder backed by the primary database connection.
func New(conns *database.Connections, logger *zap.Logger) *Seeder {
	return &Seeder{db: conns.Writer, logger: logger}
}

// Auctions seeds one demo auction per lifecycle state if missing.
func (s *Seeder) Auctions(ctx context.Context) error {
	now := time.Now().UTC()
	price := func(v string) decimal.Decimal { return decimal.RequireFromString(v) }

	samples := []entity.Auction{
		{
			ID:            uuid.NewString(),
			SellerID:      "seed-seller-1",
			StartingPrice: price("100.00"),
			BidIncrement:  price("5.00"),
			CurrentBid:    price("100.00"),
			Status:        entity.StatusUpcoming,
			StartTime:     now.Add(time.Hour),
			EndTime:       now.Add(25 * time.Hour),
		},
		{
			ID:            uuid.NewString(),
			SellerID:      "seed-seller-1",
			StartingPrice: price("50.00"),
			BidIncrement:  price("1.00"),
			CurrentBid:    price("50.00"),
			Status:        entity.StatusLive,
			StartTime:     now.Add(-time.Hour),
			EndTime:       now.Add(30 * time.Minute),
		},
		{
			ID:            uuid.NewString(),
			SellerID:      "seed-seller-2",
			StartingPrice: price("250.00"),
			BidIncrement:  price("10.00"),
			CurrentBid:    price("250.00"),
			Status:        entity.StatusEnded,
			StartTime:     now.Add(-48 * time.Hour),
			EndTime:       now.Add(-24 * time.Hour),
		},
	}

	for i := range samples {
		auction := samples[i]
		auction.CreatedAt = now
		auction.UpdatedAt = now
		_, err := s.db.NewInsert().Model(&auction).
			On("CONFLICT (id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		counter := &entity.BidSequence{AuctionID: auction.ID, LastValue: 0}
		_, err = s.db.NewInsert().Model(counter).
			On("CONFLICT (auction_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded auctions", zap.Int("count", len(samples)))
	}
	return nil
}
