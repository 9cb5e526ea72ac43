package auction

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/gavelhouse/gavel/internal/cache"
	"github.com/gavelhouse/gavel/internal/config"
	"github.com/gavelhouse/gavel/internal/eventbus"
	"github.com/gavelhouse/gavel/internal/notification"
	auctionrepo "github.com/gavelhouse/gavel/internal/repository/auction"
	bidrepo "github.com/gavelhouse/gavel/internal/repository/bid"
)

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Auctions   *auctionrepo.Repository
	Ledger     *bidrepo.Repository
	Bus        eventbus.Bus
	Dispatcher notification.Dispatcher
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
}

// Module provides the auction service to Fx and drains side effects on
// shutdown.
var Module = fx.Options(
	fx.Provide(func(p Params) *Service {
		return New(p.Auctions, p.Ledger, p.Bus, p.Dispatcher, p.Cache, p.Logger, Options{
			BidRetryBudget:   p.Config.Auction.BidRetryBudget,
			EndingSoonWindow: p.Config.Auction.EndingSoonWindow,
			SnapshotTTL:      p.Config.Auction.SnapshotTTL,
		})
	}),
	fx.Invoke(func(lc fx.Lifecycle, s *Service) {
		lc.Append(fx.StopHook(s.WaitEffects))
	}),
)
