package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// SetupJetStream creates the floworc stream and KV buckets.
func SetupJetStream(ctx context.Context, js jetstream.JetStream) error {
	// One stream carries all broadcasts: flow changes, trigger
	// retractions and execution requests. Limits retention because the
	// same message fans out to multiple subscriber kinds (scheduler,
	// workers); consumers track their own progress.
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{FlowAllSubject(), TriggerDeleteSubject(), ExecutionAllSubject()},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Discard:   jetstream.DiscardOld,
	})
	if err != nil {
		return fmt.Errorf("creating stream %s: %w", StreamName, err)
	}

	buckets := []string{
		BucketFlows,
		BucketFlowRevisions,
		BucketTriggerState,
	}
	for _, name := range buckets {
		cfg := jetstream.KeyValueConfig{
			Bucket:  name,
			Storage: jetstream.FileStorage,
		}
		if _, err := js.CreateOrUpdateKeyValue(ctx, cfg); err != nil {
			return fmt.Errorf("creating KV bucket %s: %w", name, err)
		}
	}

	return nil
}
