package eventbus

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// InprocBus delivers events to subscribers in the same process. The
// subscription table is owned by the bus and mutated only through
// Subscribe/unsubscribe; no other call site touches it.
type InprocBus struct {
	logger *zap.Logger

	mu     sync.RWMutex
	nextID int64
	topics map[string]map[int64]Handler
}

// NewInprocBus constructs an empty in-process bus.
func NewInprocBus(logger *zap.Logger) *InprocBus {
	return &InprocBus{
		logger: logger,
		topics: make(map[string]map[int64]Handler),
	}
}

// Publish delivers event to the subscribers registered at this instant.
// Subscribers joining later never see it.
func (b *InprocBus) Publish(ctx context.Context, topic string, event Event) error {
	b.mu.RLock()
	subs := make([]Handler, 0, len(b.topics[topic]))
	for _, h := range b.topics[topic] {
		subs = append(subs, h)
	}
	b.mu.RUnlock()

	for _, h := range subs {
		h(ctx, event)
	}
	return nil
}

// Subscribe registers handler under topic.
func (b *InprocBus) Subscribe(ctx context.Context, topic string, handler Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[int64]Handler)
	}
	b.topics[topic][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.topics[topic], id)
		if len(b.topics[topic]) == 0 {
			delete(b.topics, topic)
		}
	}, nil
}

// SubscriberCount reports the number of live subscriptions for a topic.
func (b *InprocBus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
