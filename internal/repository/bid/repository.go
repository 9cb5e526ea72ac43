package bid

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gavelhouse/gavel/internal/database"
	"github.com/gavelhouse/gavel/internal/entity"
)

var repoTracer = otel.Tracer("github.com/gavelhouse/gavel/repository/bid")

var (
	// ErrVersionConflict signals the auction row changed under the caller;
	// the commit was not applied and may be retried with a fresh snapshot.
	ErrVersionConflict = errors.New("auction version conflict")
	// ErrNoBids is returned when an auction's ledger is empty.
	ErrNoBids = errors.New("no bids recorded")
)

// CommitParams carries everything needed to commit one bid atomically.
type CommitParams struct {
	BidID           string
	AuctionID       string
	BidderID        string
	Amount          decimal.Decimal
	ExpectedVersion int64
	AcceptedAt      time.Time
}

// Repository owns the append-only bid ledger and the auction-scoped
// sequence counters.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Commit performs the bid commit in one transaction: a compare-and-swap on
// the auction's version raises current_bid, the auction-scoped counter
// assigns the next sequence, and the bid row is appended. The CAS update
// row-locks the auction until commit, so sequence assignment and ledger
// ordering are serialized with the price change. A lost CAS returns
// ErrVersionConflict with nothing written.
func (r *Repository) Commit(ctx context.Context, p CommitParams) (*entity.Bid, error) {
	ctx, span := repoTracer.Start(ctx, "BidRepository.Commit", trace.WithAttributes(
		attribute.String("auction.id", p.AuctionID),
		attribute.Int64("auction.expected_version", p.ExpectedVersion),
	))
	defer span.End()

	var committed *entity.Bid
	err := r.writer.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*entity.Auction)(nil)).
			Set("current_bid = ?", p.Amount).
			Set("version = version + 1").
			Set("updated_at = ?", p.AcceptedAt).
			Where("id = ?", p.AuctionID).
			Where("version = ?", p.ExpectedVersion).
			Where("status = ?", entity.StatusLive).
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrVersionConflict
		}

		seq, err := nextSequence(ctx, tx, p.AuctionID)
		if err != nil {
			return err
		}

		bid := &entity.Bid{
			ID:         p.BidID,
			AuctionID:  p.AuctionID,
			BidderID:   p.BidderID,
			Amount:     p.Amount,
			Sequence:   seq,
			AcceptedAt: p.AcceptedAt,
		}
		if _, err := tx.NewInsert().Model(bid).Exec(ctx); err != nil {
			return err
		}
		committed = bid
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrVersionConflict) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "commit failed")
		}
		return nil, err
	}
	span.SetAttributes(attribute.Int64("bid.sequence", committed.Sequence))
	return committed, nil
}

// nextSequence bumps the auction's counter row and reads the new value.
// The caller already holds the auction row lock, so the update/select pair
// cannot interleave with another committer.
func nextSequence(ctx context.Context, tx bun.Tx, auctionID string) (int64, error) {
	res, err := tx.NewUpdate().
		Model((*entity.BidSequence)(nil)).
		Set("last_value = last_value + 1").
		Where("auction_id = ?", auctionID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if rows == 0 {
		// Counter row missing for auctions created outside Create.
		counter := &entity.BidSequence{AuctionID: auctionID, LastValue: 1}
		if _, err := tx.NewInsert().Model(counter).Exec(ctx); err != nil {
			return 0, err
		}
		return 1, nil
	}

	counter := new(entity.BidSequence)
	if err := tx.NewSelect().Model(counter).Where("auction_id = ?", auctionID).Scan(ctx); err != nil {
		return 0, err
	}
	return counter.LastValue, nil
}

// Highest returns the winning-order leader: highest amount, ties broken by
// earliest sequence.
func (r *Repository) Highest(ctx context.Context, auctionID string) (*entity.Bid, error) {
	ctx, span := repoTracer.Start(ctx, "BidRepository.Highest", trace.WithAttributes(attribute.String("auction.id", auctionID)))
	defer span.End()

	bid := new(entity.Bid)
	err := r.reader.NewSelect().
		Model(bid).
		Where("auction_id = ?", auctionID).
		Order("amount DESC", "sequence ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoBids
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return bid, nil
}

// ListByAuction returns the full ledger in sequence order.
func (r *Repository) ListByAuction(ctx context.Context, auctionID string) ([]entity.Bid, error) {
	ctx, span := repoTracer.Start(ctx, "BidRepository.ListByAuction", trace.WithAttributes(attribute.String("auction.id", auctionID)))
	defer span.End()

	var bids []entity.Bid
	err := r.reader.NewSelect().
		Model(&bids).
		Where("auction_id = ?", auctionID).
		Order("sequence ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return bids, nil
}
