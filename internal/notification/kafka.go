package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/gavelhouse/gavel/internal/config"
)

// Module wires the notification dispatcher.
var Module = fx.Provide(NewDispatcher)

// NewDispatcher builds a dispatcher based on configuration.
func NewDispatcher(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Dispatcher, error) {
	if !cfg.Notification.Enabled || cfg.Notification.Driver == "noop" {
		logger.Info("notifications disabled; using noop dispatcher")
		return noopDispatcher{}, nil
	}

	switch cfg.Notification.Driver {
	case "kafka":
		return newKafkaDispatcher(lc, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported notification driver: %s", cfg.Notification.Driver)
	}
}

// noopDispatcher is used when notifications are disabled.
type noopDispatcher struct{}

func (noopDispatcher) Notify(context.Context, Notification) error { return nil }
func (noopDispatcher) Consume(ctx context.Context, handler Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

// kafkaDispatcher publishes notifications to a kafka topic consumed by the
// external dispatcher (or the built-in delivery worker).
type kafkaDispatcher struct {
	writer *kafka.Writer
	reader *kafka.Reader
	logger *zap.Logger
}

func newKafkaDispatcher(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Dispatcher, error) {
	kcfg := cfg.Notification.Kafka

	writer := &kafka.Writer{
		Addr:         kafka.TCP(kcfg.Brokers...),
		Topic:        kcfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		Logger:       kafkaLogger{logger: logger},
		ErrorLogger:  kafkaLogger{logger: logger},
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        kcfg.Brokers,
		GroupID:        kcfg.ConsumerGroup,
		Topic:          kcfg.Topic,
		MinBytes:       kcfg.MinBytes,
		MaxBytes:       kcfg.MaxBytes,
		CommitInterval: kcfg.CommitInterval,
		Dialer: &kafka.Dialer{
			Timeout:  kcfg.ConnectTimeout,
			ClientID: kcfg.ClientID,
		},
	})

	d := &kafkaDispatcher{writer: writer, reader: reader, logger: logger}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("closing notification dispatcher")
			if err := writer.Close(); err != nil {
				return err
			}
			return reader.Close()
		},
	})

	return d, nil
}

func (d *kafkaDispatcher) Notify(ctx context.Context, n Notification) error {
	msg, err := encodeMessage(n)
	if err != nil {
		return err
	}
	return d.writer.WriteMessages(ctx, msg)
}

// encodeMessage builds the kafka message for a notification. The topic is owned
// by the writer; setting it on the message as well makes WriteMessages fail.
func encodeMessage(n Notification) (kafka.Message, error) {
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}
	value, err := json.Marshal(n)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal notification: %w", err)
	}
	// Keyed by user so notifications to one user stay ordered.
	return kafka.Message{Key: []byte(n.UserID), Value: value}, nil
}

func (d *kafkaDispatcher) Consume(ctx context.Context, handler Handler) error {
	for {
		msg, err := d.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			d.logger.Error("notification fetch failed", zap.Error(err))

			time.Sleep(time.Second)
			continue
		}

		var n Notification
		if err := json.Unmarshal(msg.Value, &n); err != nil {
			d.logger.Error("notification decode failed", zap.Error(err), zap.Int64("offset", msg.Offset))

			// Poison message; commit and move on.
			if err := d.reader.CommitMessages(ctx, msg); err != nil {
				d.logger.Warn("commit failed", zap.Error(err))
			}
			continue
		}

		if err := handler(ctx, n); err != nil {
			d.logger.Error("notification handler failed", zap.Error(err), zap.Int64("offset", msg.Offset))

			// Handler signals failure; skip commit to allow redelivery.
			continue
		}

		if err := d.reader.CommitMessages(ctx, msg); err != nil {
			d.logger.Warn("commit failed", zap.Error(err))
		}
	}
}

type kafkaLogger struct {
	logger *zap.Logger
}

func (k kafkaLogger) Printf(msg string, args ...interface{}) {
	k.logger.Sugar().Debugf(msg, args...)
}
