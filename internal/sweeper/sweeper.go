package sweeper

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/gavelhouse/gavel/internal/config"
	auctionsvc "github.com/gavelhouse/gavel/internal/service/auction"
)

// Sweeper drives the auction lifecycle on a fixed timer, independent of
// request traffic. Each tick runs the activation, expiry, and ending-soon
// passes. A slow tick delays only the next tick; it never blocks request
// handling, and anything it fails to process is retried on the next tick
// because every transition is an idempotent guard.
type Sweeper struct {
	svc      *auctionsvc.Service
	logger   *zap.Logger
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Sweeper over the auction service.
func New(svc *auctionsvc.Service, logger *zap.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Sweeper{
		svc:      svc,
		logger:   logger,
		interval: interval,
	}
}

// Module wires the sweeper into the Fx lifecycle.
var Module = fx.Options(
	fx.Provide(func(svc *auctionsvc.Service, cfg config.Config, logger *zap.Logger) *Sweeper {
		return New(svc, logger, cfg.Auction.SweepInterval)
	}),
	fx.Invoke(func(lc fx.Lifecycle, s *Sweeper) {
		lc.Append(fx.Hook{
			OnStart: s.start,
			OnStop:  s.stop,
		})
	}),
)

func (s *Sweeper) start(context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(runCtx)
	}()

	s.logger.Info("lifecycle sweeper started", zap.Duration("interval", s.interval))
	return nil
}

func (s *Sweeper) stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		s.logger.Info("lifecycle sweeper stopped")
		return nil
	}
}

func (s *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// One immediate pass so overdue auctions are not left waiting a full
	// interval after startup.
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one sweep: activation, expiry, then ending-soon. The passes are
// independent; each isolates its own per-auction failures.
func (s *Sweeper) Tick(ctx context.Context) {
	s.svc.SweepDueToStart(ctx)
	s.svc.SweepExpired(ctx)
	s.svc.SweepEndingSoon(ctx)
}
