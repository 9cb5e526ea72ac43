package delivery

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/gavelhouse/gavel/internal/notification"
	"github.com/gavelhouse/gavel/internal/worker"
)

// Module registers delivery handlers for every notification type the engine
// emits. The handlers stand in for the external templated-delivery
// collaborator: they record the delivery so the topic drains even when no
// email/push gateway is attached.
var Module = fx.Module("worker_delivery",
	fx.Provide(
		fx.Annotate(newHandler(notification.TypeOutbid), fx.ResultTags(`group:"worker.handlers"`)),
		fx.Annotate(newHandler(notification.TypeEndingSoon), fx.ResultTags(`group:"worker.handlers"`)),
		fx.Annotate(newHandler(notification.TypeAuctionWon), fx.ResultTags(`group:"worker.handlers"`)),
		fx.Annotate(newHandler(notification.TypeAuctionEnded), fx.ResultTags(`group:"worker.handlers"`)),
		fx.Annotate(newHandler(notification.TypeAuctionNoBids), fx.ResultTags(`group:"worker.handlers"`)),
	),
)

func newHandler(typ notification.Type) func(logger *zap.Logger) worker.HandlerRegistration {
	return func(logger *zap.Logger) worker.HandlerRegistration {
		handler := func(ctx context.Context, n notification.Notification) error {
			// At-least-once upstream: a redelivered notification logs
			// twice, which is harmless here.
			logger.Info("notification delivered",
				zap.String("type", string(n.Type)),
				zap.String("user_id", n.UserID),
				zap.String("auction_id", n.AuctionID),
				zap.String("message", n.Message),
			)
			return nil
		}
		return worker.HandlerRegistration{Type: typ, Handler: handler}
	}
}
