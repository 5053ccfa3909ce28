package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/floworc/floworc-backend-nats/internal/core"
)

// TriggerState is the last-known evaluation state of one trigger: the date
// the polling loop last evaluated it at. It is written back after every
// fired execution so that the next poll reasons relative to the last fire,
// never re-consulting any backfill start.
type TriggerState struct {
	Namespace string    `json:"namespace"`
	FlowID    string    `json:"flow_id"`
	TriggerID string    `json:"trigger_id"`
	Date      time.Time `json:"date"`
	UpdatedAt string    `json:"updated_at"`
}

// Key returns the trigger identity of this state entry.
func (s *TriggerState) Key() core.TriggerKey {
	return core.TriggerKey{Namespace: s.Namespace, FlowID: s.FlowID, TriggerID: s.TriggerID}
}

// TriggerStateStore persists trigger evaluation state in a NATS KV bucket.
type TriggerStateStore struct {
	store *Store
}

// NewTriggerStateStore wraps the trigger-state KV bucket.
func NewTriggerStateStore(kv jetstream.KeyValue) *TriggerStateStore {
	return &TriggerStateStore{store: NewStore(kv)}
}

// Get retrieves the state for a trigger key.
func (t *TriggerStateStore) Get(ctx context.Context, key core.TriggerKey) (*TriggerState, error) {
	var state TriggerState
	if err := t.store.GetJSON(ctx, key.String(), &state); err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, core.NewNotFoundError("Trigger state", key.String())
		}
		return nil, fmt.Errorf("read trigger state %s: %w", key.String(), err)
	}
	return &state, nil
}

// Put stores the state for a trigger, stamping the update time.
func (t *TriggerStateStore) Put(ctx context.Context, state *TriggerState) error {
	state.UpdatedAt = core.NowFormatted()
	return t.store.PutJSON(ctx, state.Key().String(), state)
}

// Delete removes the state for a trigger key. Missing keys are not an
// error: retractions may race with flow deletion cleanup.
func (t *TriggerStateStore) Delete(ctx context.Context, key core.TriggerKey) error {
	err := t.store.Delete(ctx, key.String())
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

// DeleteFlow removes the state of every trigger belonging to a flow. Used
// when a deleted flow is broadcast and subscribers must drop all live
// state for it.
func (t *TriggerStateStore) DeleteFlow(ctx context.Context, namespace, flowID string) error {
	var keys []string
	err := t.store.ForEach(ctx, func(key string, value []byte) error {
		var state TriggerState
		if err := json.Unmarshal(value, &state); err != nil {
			return nil
		}
		if state.Namespace == namespace && state.FlowID == flowID {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := t.store.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("delete trigger state %s: %w", key, err)
		}
	}
	return nil
}
