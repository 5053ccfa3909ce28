// Package scheduler runs the polling loop that evaluates schedule triggers
// and fires executions. The evaluation itself is pure (core.Schedule); this
// package owns the trigger-state persistence and the reaction to flow
// change broadcasts.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/floworc/floworc-backend-nats/internal/core"
	"github.com/floworc/floworc-backend-nats/internal/kv"
	"github.com/floworc/floworc-backend-nats/internal/metrics"
)

// Backend is the slice of the persistence layer the scheduler needs. Kept
// narrow so tests can fake it without a NATS server.
type Backend interface {
	FindAll(ctx context.Context) ([]*core.Flow, error)

	TriggerState(ctx context.Context, key core.TriggerKey) (*kv.TriggerState, error)
	PutTriggerState(ctx context.Context, state *kv.TriggerState) error
	DeleteTriggerState(ctx context.Context, key core.TriggerKey) error
	DeleteFlowTriggerState(ctx context.Context, namespace, flowID string) error

	PublishExecution(ctx context.Context, execution *core.Execution) error

	SubscribeFlowChanges(handler func(*core.Flow)) (func(), error)
	SubscribeTriggerDeletes(handler func(core.TriggerKey)) (func(), error)
}

// Scheduler polls current flows at a fixed interval, evaluates their
// schedule triggers against persisted trigger state and publishes an
// execution for every matched occurrence. Sequential backfill emerges from
// the state advancing exactly one occurrence per fire.
type Scheduler struct {
	backend  Backend
	interval time.Duration
	run      core.RunContext

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	unsubs   []func()
}

// New creates a Scheduler polling at the given interval.
func New(backend Backend, interval time.Duration) *Scheduler {
	return &Scheduler{
		backend:  backend,
		interval: interval,
		run:      core.NewRunContext(),
		stop:     make(chan struct{}),
	}
}

// Start launches the polling loop and subscribes to flow change and trigger
// retraction broadcasts so stale trigger state is dropped promptly.
func (s *Scheduler) Start() error {
	unsubFlows, err := s.backend.SubscribeFlowChanges(s.onFlowChange)
	if err != nil {
		return err
	}
	s.unsubs = append(s.unsubs, unsubFlows)

	unsubTriggers, err := s.backend.SubscribeTriggerDeletes(s.onTriggerDelete)
	if err != nil {
		for _, unsub := range s.unsubs {
			unsub()
		}
		return err
	}
	s.unsubs = append(s.unsubs, unsubTriggers)

	s.wg.Add(1)
	go s.loop()

	slog.Info("scheduler started", "poll_interval", s.interval)
	return nil
}

// Stop terminates the polling loop and unsubscribes. Safe to call more
// than once, and on a Scheduler that was never started.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.stop != nil {
			close(s.stop)
		}
		for _, unsub := range s.unsubs {
			unsub()
		}
		s.unsubs = nil
	})
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			s.Tick(ctx)
			cancel()
		}
	}
}

// Tick evaluates every schedule trigger of every current flow once.
// Exported so an operator endpoint or a test can force a poll.
func (s *Scheduler) Tick(ctx context.Context) {
	flows, err := s.backend.FindAll(ctx)
	if err != nil {
		slog.Error("scheduler failed to list flows", "error", err)
		return
	}

	for _, flow := range flows {
		for _, trigger := range flow.Triggers {
			if trigger.Type != core.TriggerTypeSchedule {
				continue
			}
			s.evaluateTrigger(ctx, flow, trigger)
		}
	}
}

func (s *Scheduler) evaluateTrigger(ctx context.Context, flow *core.Flow, trigger core.Trigger) {
	key := flow.TriggerKeyFor(trigger)

	schedule, err := core.NewSchedule(trigger)
	if err != nil {
		// Validation rejects malformed expressions at save time; this
		// only happens for flows persisted before the rule existed.
		slog.Error("skipping trigger with malformed expression",
			"error", err, "trigger", key.String())
		return
	}

	state, err := s.backend.TriggerState(ctx, key)
	if err != nil {
		if !core.IsNotFound(err) {
			slog.Error("failed to read trigger state", "error", err, "trigger", key.String())
			return
		}
		// First sighting: seed the state with the first date this
		// trigger may fire at. Evaluation starts on the next poll.
		seed := &kv.TriggerState{
			Namespace: key.Namespace,
			FlowID:    key.FlowID,
			TriggerID: key.TriggerID,
			Date:      schedule.NextDate(nil),
		}
		if err := s.backend.PutTriggerState(ctx, seed); err != nil {
			slog.Error("failed to seed trigger state", "error", err, "trigger", key.String())
		}
		return
	}

	triggerCtx := core.TriggerContext{
		Namespace:    key.Namespace,
		FlowID:       key.FlowID,
		FlowRevision: flow.Revision,
		TriggerID:    key.TriggerID,
		Date:         state.Date,
	}

	metrics.TriggerEvaluations.Inc()
	execution, fired := schedule.Evaluate(s.run, triggerCtx)
	if !fired {
		return
	}

	if err := s.backend.PublishExecution(ctx, execution); err != nil {
		// State is not advanced: the occurrence is retried next poll.
		slog.Error("failed to publish execution", "error", err, "trigger", key.String())
		return
	}
	metrics.ExecutionsFired.Inc()

	vars, ok := execution.Variables["schedule"].(core.ScheduleVariables)
	if !ok {
		slog.Error("execution missing schedule variables", "execution", execution.ID)
		return
	}
	state.Date = vars.Next
	if err := s.backend.PutTriggerState(ctx, state); err != nil {
		slog.Error("failed to advance trigger state", "error", err, "trigger", key.String())
		return
	}

	slog.Info("fired schedule trigger",
		"trigger", key.String(),
		"execution_id", execution.ID,
		"date", vars.Date,
		"next", vars.Next,
	)
}

// onFlowChange drops all trigger state of a flow when its deletion is
// broadcast. Non-deleted changes need no reaction: the next poll reads the
// new definition, and state of removed triggers arrives as retractions.
func (s *Scheduler) onFlowChange(flow *core.Flow) {
	if !flow.Deleted {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.backend.DeleteFlowTriggerState(ctx, flow.Namespace, flow.ID); err != nil {
		slog.Error("failed to drop trigger state for deleted flow",
			"error", err, "flow", flow.Key())
	}
}

// onTriggerDelete drops the state of one retracted trigger.
func (s *Scheduler) onTriggerDelete(key core.TriggerKey) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.backend.DeleteTriggerState(ctx, key); err != nil {
		slog.Error("failed to drop retracted trigger state",
			"error", err, "trigger", key.String())
	}
}
