package eventbus

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Handler receives a published event.
type Handler func(ctx context.Context, routingKey string, payload []byte) error

type subscription struct {
	pattern string
	handler Handler
}

// InProcessBus dispatches events synchronously to local subscribers. It is
// the Publisher used in local mode, when no broker is configured.
type InProcessBus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *slog.Logger
}

// NewInProcessBus creates an empty bus. A nil logger uses slog.Default.
func NewInProcessBus(logger *slog.Logger) *InProcessBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcessBus{logger: logger}
}

// Subscribe registers handler for routing keys matching pattern, using AMQP
// topic rules: "*" matches one word and "#" matches zero or more.
func (b *InProcessBus) Subscribe(pattern string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{pattern: pattern, handler: handler})
}

// Publish calls every matching handler. Handler errors are logged, not
// returned, so one failing subscriber cannot block the outbox.
func (b *InProcessBus) Publish(ctx context.Context, routingKey string, payload []byte) error {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		if !MatchTopic(sub.pattern, routingKey) {
			continue
		}
		if err := sub.handler(ctx, routingKey, payload); err != nil {
			b.logger.ErrorContext(ctx, "event handler failed",
				"pattern", sub.pattern,
				"routing_key", routingKey,
				"error", err,
			)
		}
	}
	return nil
}

func (b *InProcessBus) Close() error { return nil }

// MatchTopic reports whether routingKey matches an AMQP topic pattern.
func MatchTopic(pattern, routingKey string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(routingKey, "."))
}

func matchWords(pattern, key []string) bool {
	if len(pattern) == 0 {
		return len(key) == 0
	}
	switch pattern[0] {
	case "#":
		for i := 0; i <= len(key); i++ {
			if matchWords(pattern[1:], key[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(key) > 0 && matchWords(pattern[1:], key[1:])
	default:
		return len(key) > 0 && pattern[0] == key[0] && matchWords(pattern[1:], key[1:])
	}
}
