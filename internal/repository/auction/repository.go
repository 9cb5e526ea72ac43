package auction

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gavelhouse/gavel/internal/database"
	"github.com/gavelhouse/gavel/internal/entity"
)

var repoTracer = otel.Tracer("github.com/gavelhouse/gavel/repository/auction")

// ErrNotFound is returned when an auction is missing.
var ErrNotFound = errors.New("auction not found")

// Repository encapsulates access to auction state. Every mutation is a
// conditional update: callers learn whether they won the race from the
// returned flag, never by re-reading.
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

// Get fetches an auction snapshot by id.
func (r *Repository) Get(ctx context.Context, id string) (*entity.Auction, error) {
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.Get", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	auction := new(entity.Auction)
	err := r.reader.NewSelect().Model(auction).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return auction, nil
}

// Create persists a new auction together with its sequence counter row.
func (r *Repository) Create(ctx context.Context, auction *entity.Auction) error {
	if auction == nil {
		return errors.New("nil auction")
	}
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.Create", trace.WithAttributes(attribute.String("auction.id", auction.ID)))
	defer span.End()

	err := r.writer.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(auction).Exec(ctx); err != nil {
			return err
		}
		counter := &entity.BidSequence{AuctionID: auction.ID, LastValue: 0}
		_, err := tx.NewInsert().Model(counter).Exec(ctx)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
	}
	return err
}

// MarkLive flips upcoming -> live. Returns true only for the caller whose
// conditional update actually changed the row.
func (r *Repository) MarkLive(ctx context.Context, id string, now time.Time) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.MarkLive", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	res, err := r.writer.NewUpdate().
		Model((*entity.Auction)(nil)).
		Set("status = ?", entity.StatusLive).
		Set("version = version + 1").
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", entity.StatusUpcoming).
		Exec(ctx)
	return wonRace(span, res, err)
}

// MarkEnded flips live -> ended. Losing the race is not an error; the
// transition already happened.
func (r *Repository) MarkEnded(ctx context.Context, id string, now time.Time) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.MarkEnded", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	res, err := r.writer.NewUpdate().
		Model((*entity.Auction)(nil)).
		Set("status = ?", entity.StatusEnded).
		Set("version = version + 1").
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", entity.StatusLive).
		Exec(ctx)
	return wonRace(span, res, err)
}

// LatchEndingSoon sets the ending-soon flag once. The flag is never reset,
// so the caller that wins here is the only one that ever emits the event.
func (r *Repository) LatchEndingSoon(ctx context.Context, id string, now time.Time) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.LatchEndingSoon", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	res, err := r.writer.NewUpdate().
		Model((*entity.Auction)(nil)).
		Set("ending_soon_notified = ?", true).
		Set("version = version + 1").
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", entity.StatusLive).
		Where("ending_soon_notified = ?", false).
		Exec(ctx)
	return wonRace(span, res, err)
}

// ListDueToStart returns upcoming auctions whose start time has passed.
func (r *Repository) ListDueToStart(ctx context.Context, now time.Time) ([]entity.Auction, error) {
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.ListDueToStart")
	defer span.End()

	var auctions []entity.Auction
	err := r.reader.NewSelect().
		Model(&auctions).
		Where("status = ?", entity.StatusUpcoming).
		Where("start_time <= ?", now).
		Order("start_time ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return auctions, nil
}

// ListExpired returns live auctions whose end time has passed.
func (r *Repository) ListExpired(ctx context.Context, now time.Time) ([]entity.Auction, error) {
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.ListExpired")
	defer span.End()

	var auctions []entity.Auction
	err := r.reader.NewSelect().
		Model(&auctions).
		Where("status = ?", entity.StatusLive).
		Where("end_time <= ?", now).
		Order("end_time ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return auctions, nil
}

// ListEndingSoon returns live, not yet notified auctions ending within the
// lookahead window.
func (r *Repository) ListEndingSoon(ctx context.Context, now time.Time, window time.Duration) ([]entity.Auction, error) {
	ctx, span := repoTracer.Start(ctx, "AuctionRepository.ListEndingSoon")
	defer span.End()

	var auctions []entity.Auction
	err := r.reader.NewSelect().
		Model(&auctions).
		Where("status = ?", entity.StatusLive).
		Where("ending_soon_notified = ?", false).
		Where("end_time > ?", now).
		Where("end_time <= ?", now.Add(window)).
		Order("end_time ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return auctions, nil
}

func wonRace(span trace.Span, res sql.Result, err error) (bool, error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	return rows == 1, nil
}
