package nats

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/floworc/floworc-backend-nats/internal/core"
)

// CrudEventBroker publishes and subscribes to flow CRUD audit events using
// NATS core pub/sub. Events are fire-and-forget notifications, not part of
// the persisted record: a subscriber that was down misses them.
type CrudEventBroker struct {
	nc   *nats.Conn
	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewCrudEventBroker creates a broker on the given NATS connection.
func NewCrudEventBroker(nc *nats.Conn) *CrudEventBroker {
	return &CrudEventBroker{nc: nc}
}

// Publish broadcasts a CRUD event to all subscribers.
func (b *CrudEventBroker) Publish(event *core.CrudEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal crud event: %w", err)
	}
	if err := b.nc.Publish(CrudEventSubject(), data); err != nil {
		slog.Error("failed to publish crud event", "error", err, "type", event.Type)
		return fmt.Errorf("publish crud event: %w", err)
	}
	return nil
}

// Subscribe delivers every CRUD event on the returned channel until the
// unsubscribe func is called. Slow consumers drop events rather than block
// the delivery goroutine.
func (b *CrudEventBroker) Subscribe() (<-chan *core.CrudEvent, func(), error) {
	ch := make(chan *core.CrudEvent, 64)

	sub, err := b.nc.Subscribe(CrudEventSubject(), func(msg *nats.Msg) {
		var event core.CrudEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			slog.Error("failed to unmarshal crud event", "error", err)
			return
		}
		select {
		case ch <- &event:
		default:
			slog.Warn("dropping crud event, subscriber channel full")
		}
	})
	if err != nil {
		close(ch)
		return nil, nil, fmt.Errorf("subscribe to %s: %w", CrudEventSubject(), err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	unsubscribe := func() {
		_ = sub.Unsubscribe()
		close(ch)
	}

	return ch, unsubscribe, nil
}

// Close unsubscribes all subscriptions.
func (b *CrudEventBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
	return nil
}
