package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/gavelhouse/gavel/internal/config"
)

// redisBus fans events out through redis pub/sub. Redis pub/sub is
// inherently fire-and-forget: disconnected subscribers miss messages, which
// matches the bus contract.
type redisBus struct {
	client *goredis.Client
	logger *zap.Logger
}

func newRedisBus(lc fx.Lifecycle, cfg config.Redis, logger *zap.Logger) (Bus, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	bus := &redisBus{client: client, logger: logger}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("ping event bus redis: %w", err)
			}
			logger.Info("event bus connected", zap.String("addr", cfg.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("closing event bus")
			return client.Close()
		},
	})

	return bus, nil
}

func (b *redisBus) Publish(ctx context.Context, topic string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return b.client.Publish(ctx, topic, payload).Err()
}

func (b *redisBus) Subscribe(ctx context.Context, topic string, handler Handler) (func(), error) {
	sub := b.client.Subscribe(ctx, topic)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range sub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("event bus decode failed", zap.String("topic", topic), zap.Error(err))
				continue
			}
			handler(ctx, event)
		}
	}()

	return func() {
		_ = sub.Close()
		<-done
	}, nil
}
