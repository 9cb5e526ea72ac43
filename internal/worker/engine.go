package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/gavelhouse/gavel/internal/config"
	"github.com/gavelhouse/gavel/internal/notification"
)

// HandlerRegistration binds notification types to delivery handlers.
type HandlerRegistration struct {
	Type    notification.Type
	Handler notification.Handler
}

// Params collects dependencies via Fx.
type Params struct {
	fx.In

	Dispatcher    notification.Dispatcher
	Logger        *zap.Logger
	Config        config.Config
	Registrations []HandlerRegistration `group:"worker.handlers"`
}

// Engine drains the notification stream and fans each message to the
// handler registered for its type. Unhandled types are acknowledged and
// dropped; duplicates are expected (at-least-once upstream) and handlers
// must tolerate them.
type Engine struct {
	dispatcher    notification.Dispatcher
	logger        *zap.Logger
	cfg           config.Config
	registrations map[notification.Type]notification.Handler
	cancel        context.CancelFunc
	wg            *sync.WaitGroup
}

// NewEngine constructs the delivery Engine.
func NewEngine(p Params) *Engine {
	reg := make(map[notification.Type]notification.Handler, len(p.Registrations))
	for _, r := range p.Registrations {
		if r.Type == "" || r.Handler == nil {
			continue
		}
		reg[r.Type] = r.Handler
	}

	return &Engine{
		dispatcher:    p.Dispatcher,
		logger:        p.Logger,
		cfg:           p.Config,
		registrations: reg,
	}
}

// Module wires the engine into Fx lifecycle.
var Module = fx.Options(
	fx.Provide(NewEngine),
	fx.Invoke(func(lc fx.Lifecycle, engine *Engine) {
		lc.Append(fx.Hook{
			OnStart: engine.start,
			OnStop:  engine.stop,
		})
	}),
)

func (e *Engine) start(ctx context.Context) error {
	if !e.cfg.Notification.Enabled || !e.cfg.Notification.Workers.Enabled {
		e.logger.Info("delivery worker disabled")

		return nil
	}
	if len(e.registrations) == 0 {
		e.logger.Info("delivery worker has no handlers; skipping")

		return nil
	}

	concurrency := e.cfg.Notification.Workers.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.wg = &sync.WaitGroup{}

	for i := 0; i < concurrency; i++ {
		workerID := i
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.consumeLoop(runCtx, workerID)
		}()
	}

	e.logger.Info("delivery worker started", zap.Int("workers", concurrency))

	return nil
}

func (e *Engine) stop(ctx context.Context) error {
	if e.cancel == nil {
		return nil
	}
	e.cancel()
	done := make(chan struct{})
	go func() {
		if e.wg != nil {
			e.wg.Wait()
		}
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		e.logger.Info("delivery worker stopped")

		return nil
	}
}

func (e *Engine) consumeLoop(ctx context.Context, workerID int) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		err := e.dispatcher.Consume(ctx, func(msgCtx context.Context, n notification.Notification) error {
			handler, ok := e.registrations[n.Type]
			if !ok {
				e.logger.Warn("no handler for notification type", zap.String("type", string(n.Type)))

				return nil
			}

			e.logger.Debug("delivering notification",
				zap.String("type", string(n.Type)),
				zap.String("user_id", n.UserID),
				zap.Int("worker", workerID),
			)

			return handler(msgCtx, n)
		})

		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}

		e.logger.Error("consume loop error", zap.Error(err))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}

		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}
