package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/floworc/floworc-backend-nats/internal/core"
)

// FlowQueue is the queue transport: it broadcasts flow changes (including
// deletions) to interested subscribers and retracts pending trigger
// executions. Delivery is at-least-once; subscribers must be idempotent.
type FlowQueue struct {
	js jetstream.JetStream
}

// NewFlowQueue wraps a JetStream context.
func NewFlowQueue(js jetstream.JetStream) *FlowQueue {
	return &FlowQueue{js: js}
}

// EmitFlow broadcasts a flow change. A snapshot with deleted=true tells
// subscribers to drop all live state for the flow.
func (q *FlowQueue) EmitFlow(ctx context.Context, flow *core.Flow) error {
	data, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("marshal flow %s: %w", flow.UID(), err)
	}
	subject := FlowSubject(flow.Namespace, flow.ID)
	if _, err := q.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("emit flow %s to %s: %w", flow.UID(), subject, err)
	}
	return nil
}

// DeleteTrigger retracts the pending/scheduled execution of one trigger.
func (q *FlowQueue) DeleteTrigger(ctx context.Context, key core.TriggerKey) error {
	data, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("marshal trigger key %s: %w", key.String(), err)
	}
	if _, err := q.js.Publish(ctx, TriggerDeleteSubject(), data); err != nil {
		return fmt.Errorf("retract trigger %s: %w", key.String(), err)
	}
	return nil
}

// PublishExecution broadcasts an execution request.
func (q *FlowQueue) PublishExecution(ctx context.Context, execution *core.Execution) error {
	data, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("marshal execution %s: %w", execution.ID, err)
	}
	subject := ExecutionSubject(execution.Namespace, execution.FlowID)
	if _, err := q.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish execution %s to %s: %w", execution.ID, subject, err)
	}
	return nil
}

// SubscribeFlowChanges delivers every broadcast flow change to handler.
// Returns an unsubscribe func.
func (b *Backend) SubscribeFlowChanges(handler func(*core.Flow)) (func(), error) {
	sub, err := b.nc.Subscribe(FlowAllSubject(), func(msg *nats.Msg) {
		var flow core.Flow
		if err := json.Unmarshal(msg.Data, &flow); err != nil {
			return
		}
		handler(&flow)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", FlowAllSubject(), err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// SubscribeTriggerDeletes delivers every trigger retraction to handler.
// Returns an unsubscribe func.
func (b *Backend) SubscribeTriggerDeletes(handler func(core.TriggerKey)) (func(), error) {
	sub, err := b.nc.Subscribe(TriggerDeleteSubject(), func(msg *nats.Msg) {
		var key core.TriggerKey
		if err := json.Unmarshal(msg.Data, &key); err != nil {
			return
		}
		handler(key)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", TriggerDeleteSubject(), err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}
