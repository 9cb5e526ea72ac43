package eventbus

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/gavelhouse/gavel/internal/config"
)

// Handler consumes one delivered event. Errors are logged, never retried:
// the bus is a UI-freshness channel, not a correctness channel.
type Handler func(ctx context.Context, event Event)

// Bus is best-effort topic pub/sub. Delivery is at-most-once to currently
// connected subscribers; there is no durable queue and no replay. Clients
// that miss an event reconcile by re-reading auction state.
type Bus interface {
	Publish(ctx context.Context, topic string, event Event) error
	// Subscribe registers handler for topic and returns an unsubscribe
	// function. The handler stops receiving once unsubscribe returns.
	Subscribe(ctx context.Context, topic string, handler Handler) (func(), error)
}

// Module provides the event bus to the Fx graph.
var Module = fx.Provide(NewBus)

// NewBus selects the configured bus driver.
func NewBus(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Bus, error) {
	switch cfg.EventBus.Driver {
	case "inproc":
		logger.Info("event bus using in-process driver")
		return NewInprocBus(logger), nil
	case "redis":
		return newRedisBus(lc, cfg.EventBus.Redis, logger)
	default:
		return nil, fmt.Errorf("unsupported event bus driver: %s", cfg.EventBus.Driver)
	}
}
