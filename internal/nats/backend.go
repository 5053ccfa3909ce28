package nats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/floworc/floworc-backend-nats/internal/core"
	"github.com/floworc/floworc-backend-nats/internal/kv"
)

// Backend is the NATS-backed persistence and transport layer: the flow
// repository over JetStream KV, the flow-change queue over a JetStream
// stream and the CRUD event bus over core pub/sub.
type Backend struct {
	nc *nats.Conn
	js jetstream.JetStream

	flows        *kv.RevisionStore[core.Flow, *core.Flow]
	triggerState *kv.TriggerStateStore

	queue  *FlowQueue
	events *CrudEventBroker

	// Serializes writers per flow key. Revision numbers are derived from
	// an observed-history read immediately before the append, so two
	// concurrent writers to the same (namespace, id) would otherwise race
	// on the next revision number. Cross-process writers still can.
	locks sync.Map // map[string]*sync.Mutex

	startTime time.Time
}

// New creates a Backend, connecting to NATS and setting up JetStream
// resources.
func New(natsURL string) (*Backend, error) {
	nc, err := nats.Connect(natsURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := SetupJetStream(ctx, js); err != nil {
		nc.Close()
		return nil, fmt.Errorf("setting up JetStream: %w", err)
	}

	openKV := func(name string) (jetstream.KeyValue, error) {
		bucket, err := js.KeyValue(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("opening KV bucket %s: %w", name, err)
		}
		return bucket, nil
	}

	flowsKV, err := openKV(BucketFlows)
	if err != nil {
		nc.Close()
		return nil, err
	}
	revisionsKV, err := openKV(BucketFlowRevisions)
	if err != nil {
		nc.Close()
		return nil, err
	}
	triggerStateKV, err := openKV(BucketTriggerState)
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &Backend{
		nc:           nc,
		js:           js,
		flows:        kv.NewRevisionStore[core.Flow, *core.Flow](flowsKV, revisionsKV, "Flow"),
		triggerState: kv.NewTriggerStateStore(triggerStateKV),
		queue:        NewFlowQueue(js),
		events:       NewCrudEventBroker(nc),
		startTime:    time.Now(),
	}, nil
}

// Conn returns the underlying NATS connection for auxiliary services.
func (b *Backend) Conn() *nats.Conn {
	return b.nc
}

// Events returns the CRUD event broker.
func (b *Backend) Events() *CrudEventBroker {
	return b.events
}

// Uptime reports how long the backend has been running.
func (b *Backend) Uptime() time.Duration {
	return time.Since(b.startTime)
}

// Healthy reports whether the NATS connection is usable.
func (b *Backend) Healthy(ctx context.Context) error {
	if status := b.nc.Status(); status != nats.CONNECTED {
		return fmt.Errorf("NATS not connected: %v", status)
	}
	return nil
}

func (b *Backend) Close() error {
	b.events.Close()
	b.nc.Close()
	return nil
}

// lock acquires the per-flow write lock and returns its release func.
func (b *Backend) lock(key string) func() {
	v, _ := b.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// TriggerState returns the last evaluation state for a trigger.
func (b *Backend) TriggerState(ctx context.Context, key core.TriggerKey) (*kv.TriggerState, error) {
	return b.triggerState.Get(ctx, key)
}

// PutTriggerState stores the evaluation state for a trigger.
func (b *Backend) PutTriggerState(ctx context.Context, state *kv.TriggerState) error {
	return b.triggerState.Put(ctx, state)
}

// DeleteTriggerState drops the evaluation state for a trigger.
func (b *Backend) DeleteTriggerState(ctx context.Context, key core.TriggerKey) error {
	return b.triggerState.Delete(ctx, key)
}

// DeleteFlowTriggerState drops the evaluation state of every trigger of a
// flow.
func (b *Backend) DeleteFlowTriggerState(ctx context.Context, namespace, flowID string) error {
	return b.triggerState.DeleteFlow(ctx, namespace, flowID)
}

// PublishExecution broadcasts an execution request for downstream
// consumption.
func (b *Backend) PublishExecution(ctx context.Context, execution *core.Execution) error {
	return b.queue.PublishExecution(ctx, execution)
}
