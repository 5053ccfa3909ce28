package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/floworc/floworc-backend-nats/internal/core"
	"github.com/floworc/floworc-backend-nats/internal/kv"
)

type fakeBackend struct {
	mu         sync.Mutex
	flows      []*core.Flow
	states     map[string]*kv.TriggerState
	executions []*core.Execution
}

func newFakeBackend(flows ...*core.Flow) *fakeBackend {
	return &fakeBackend{
		flows:  flows,
		states: make(map[string]*kv.TriggerState),
	}
}

func (f *fakeBackend) FindAll(ctx context.Context) ([]*core.Flow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*core.Flow(nil), f.flows...), nil
}

func (f *fakeBackend) TriggerState(ctx context.Context, key core.TriggerKey) (*kv.TriggerState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[key.String()]
	if !ok {
		return nil, core.NewNotFoundError("Trigger state", key.String())
	}
	c := *state
	return &c, nil
}

func (f *fakeBackend) PutTriggerState(ctx context.Context, state *kv.TriggerState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *state
	f.states[state.Key().String()] = &c
	return nil
}

func (f *fakeBackend) DeleteTriggerState(ctx context.Context, key core.TriggerKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, key.String())
	return nil
}

func (f *fakeBackend) DeleteFlowTriggerState(ctx context.Context, namespace, flowID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, state := range f.states {
		if state.Namespace == namespace && state.FlowID == flowID {
			delete(f.states, key)
		}
	}
	return nil
}

func (f *fakeBackend) PublishExecution(ctx context.Context, execution *core.Execution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executions = append(f.executions, execution)
	return nil
}

func (f *fakeBackend) SubscribeFlowChanges(handler func(*core.Flow)) (func(), error) {
	return func() {}, nil
}

func (f *fakeBackend) SubscribeTriggerDeletes(handler func(core.TriggerKey)) (func(), error) {
	return func() {}, nil
}

func (f *fakeBackend) executionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.executions)
}

func (f *fakeBackend) state(key core.TriggerKey) *kv.TriggerState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[key.String()]
}

func scheduledFlow(cronExpr string, backfill *core.Backfill) *core.Flow {
	return &core.Flow{
		Namespace: "io.floworc.unittest",
		ID:        "monthly-report",
		Revision:  3,
		Tasks:     []core.Task{{ID: "render", Type: "report.render"}},
		Triggers: []core.Trigger{
			{ID: "schedule", Type: core.TriggerTypeSchedule, Cron: cronExpr, Backfill: backfill},
		},
	}
}

func fixedScheduler(backend Backend, now time.Time) *Scheduler {
	s := New(backend, time.Second)
	s.run = core.RunContext{Now: func() time.Time { return now }}
	return s
}

func TestTickSeedsNewTriggerState(t *testing.T) {
	flow := scheduledFlow("0 0 1 * *", nil)
	backend := newFakeBackend(flow)
	now := time.Date(2023, time.April, 15, 10, 0, 0, 0, time.UTC)
	s := fixedScheduler(backend, now)

	s.Tick(context.Background())

	key := flow.TriggerKeyFor(flow.Triggers[0])
	state := backend.state(key)
	if state == nil {
		t.Fatal("expected trigger state to be seeded")
	}
	if state.Date.IsZero() {
		t.Fatal("seeded state has zero date")
	}
	if backend.executionCount() != 0 {
		t.Fatalf("seeding tick fired %d executions, want 0", backend.executionCount())
	}
}

func TestTickSeedsFromBackfillStart(t *testing.T) {
	start := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	flow := scheduledFlow("0 0 1 * *", &core.Backfill{Start: &start})
	backend := newFakeBackend(flow)
	now := time.Date(2023, time.April, 15, 10, 0, 0, 0, time.UTC)
	s := fixedScheduler(backend, now)

	s.Tick(context.Background())

	key := flow.TriggerKeyFor(flow.Triggers[0])
	state := backend.state(key)
	if state == nil {
		t.Fatal("expected trigger state to be seeded")
	}
	if !state.Date.Equal(start) {
		t.Fatalf("seeded date = %v, want backfill start %v", state.Date, start)
	}
}

func TestTickFiresDueTriggerAndAdvancesState(t *testing.T) {
	flow := scheduledFlow("0 0 1 * *", nil)
	backend := newFakeBackend(flow)
	key := flow.TriggerKeyFor(flow.Triggers[0])

	due := time.Date(2023, time.April, 1, 0, 0, 0, 0, time.UTC)
	backend.states[key.String()] = &kv.TriggerState{
		Namespace: key.Namespace, FlowID: key.FlowID, TriggerID: key.TriggerID,
		Date: due,
	}

	now := time.Date(2023, time.April, 1, 0, 5, 0, 0, time.UTC)
	s := fixedScheduler(backend, now)
	s.Tick(context.Background())

	if backend.executionCount() != 1 {
		t.Fatalf("fired %d executions, want 1", backend.executionCount())
	}
	execution := backend.executions[0]
	if execution.Namespace != flow.Namespace || execution.FlowID != flow.ID {
		t.Fatalf("execution targets %s/%s, want %s/%s",
			execution.Namespace, execution.FlowID, flow.Namespace, flow.ID)
	}
	if execution.FlowRevision != flow.Revision {
		t.Fatalf("execution revision = %d, want %d", execution.FlowRevision, flow.Revision)
	}
	if execution.State != core.ExecutionStateCreated {
		t.Fatalf("execution state = %q, want %q", execution.State, core.ExecutionStateCreated)
	}

	wantNext := time.Date(2023, time.May, 1, 0, 0, 0, 0, time.UTC)
	state := backend.state(key)
	if !state.Date.Equal(wantNext) {
		t.Fatalf("advanced state date = %v, want %v", state.Date, wantNext)
	}

	// The same occurrence must not fire twice.
	s.Tick(context.Background())
	if backend.executionCount() != 1 {
		t.Fatalf("second tick fired again, total %d executions", backend.executionCount())
	}
}

func TestTickDoesNotFireFutureOccurrence(t *testing.T) {
	flow := scheduledFlow("0 0 1 * *", nil)
	backend := newFakeBackend(flow)
	key := flow.TriggerKeyFor(flow.Triggers[0])

	backend.states[key.String()] = &kv.TriggerState{
		Namespace: key.Namespace, FlowID: key.FlowID, TriggerID: key.TriggerID,
		Date: time.Date(2023, time.May, 1, 0, 0, 0, 0, time.UTC),
	}

	now := time.Date(2023, time.April, 15, 10, 0, 0, 0, time.UTC)
	s := fixedScheduler(backend, now)
	s.Tick(context.Background())

	if backend.executionCount() != 0 {
		t.Fatalf("fired %d executions for a future occurrence, want 0", backend.executionCount())
	}
}

func TestTickBackfillsOneOccurrencePerPoll(t *testing.T) {
	flow := scheduledFlow("0 0 1 * *", nil)
	backend := newFakeBackend(flow)
	key := flow.TriggerKeyFor(flow.Triggers[0])

	// Three months behind.
	backend.states[key.String()] = &kv.TriggerState{
		Namespace: key.Namespace, FlowID: key.FlowID, TriggerID: key.TriggerID,
		Date: time.Date(2023, time.February, 1, 0, 0, 0, 0, time.UTC),
	}

	now := time.Date(2023, time.April, 15, 10, 0, 0, 0, time.UTC)
	s := fixedScheduler(backend, now)

	wantDates := []time.Time{
		time.Date(2023, time.February, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, time.April, 1, 0, 0, 0, 0, time.UTC),
	}
	for i, want := range wantDates {
		s.Tick(context.Background())
		if backend.executionCount() != i+1 {
			t.Fatalf("after tick %d: %d executions, want %d", i+1, backend.executionCount(), i+1)
		}
		vars, ok := backend.executions[i].Variables["schedule"].(core.ScheduleVariables)
		if !ok {
			t.Fatalf("execution %d missing schedule variables", i)
		}
		if !vars.Date.Equal(want) {
			t.Fatalf("execution %d date = %v, want %v", i, vars.Date, want)
		}
	}

	// Caught up: May 1st has not happened yet.
	s.Tick(context.Background())
	if backend.executionCount() != len(wantDates) {
		t.Fatalf("caught-up tick fired again, total %d executions", backend.executionCount())
	}
}

func TestTickSkipsMalformedExpression(t *testing.T) {
	flow := scheduledFlow("not a cron", nil)
	backend := newFakeBackend(flow)
	now := time.Date(2023, time.April, 15, 10, 0, 0, 0, time.UTC)
	s := fixedScheduler(backend, now)

	s.Tick(context.Background())

	if backend.executionCount() != 0 {
		t.Fatalf("fired %d executions for malformed expression, want 0", backend.executionCount())
	}
	if backend.state(flow.TriggerKeyFor(flow.Triggers[0])) != nil {
		t.Fatal("state seeded for malformed expression")
	}
}

func TestTickIgnoresNonScheduleTriggers(t *testing.T) {
	flow := scheduledFlow("0 0 1 * *", nil)
	flow.Triggers[0].Type = "webhook"
	backend := newFakeBackend(flow)
	s := fixedScheduler(backend, time.Now())

	s.Tick(context.Background())

	if len(backend.states) != 0 {
		t.Fatal("state seeded for non-schedule trigger")
	}
}

func TestDeletedFlowBroadcastDropsTriggerState(t *testing.T) {
	flow := scheduledFlow("0 0 1 * *", nil)
	backend := newFakeBackend(flow)
	key := flow.TriggerKeyFor(flow.Triggers[0])
	backend.states[key.String()] = &kv.TriggerState{
		Namespace: key.Namespace, FlowID: key.FlowID, TriggerID: key.TriggerID,
		Date: time.Now(),
	}

	s := New(backend, time.Second)
	s.onFlowChange(flow.ToDeleted())

	if backend.state(key) != nil {
		t.Fatal("trigger state survived flow deletion broadcast")
	}
}

func TestTriggerRetractionDropsTriggerState(t *testing.T) {
	flow := scheduledFlow("0 0 1 * *", nil)
	backend := newFakeBackend(flow)
	key := flow.TriggerKeyFor(flow.Triggers[0])
	backend.states[key.String()] = &kv.TriggerState{
		Namespace: key.Namespace, FlowID: key.FlowID, TriggerID: key.TriggerID,
		Date: time.Now(),
	}

	s := New(backend, time.Second)
	s.onTriggerDelete(key)

	if backend.state(key) != nil {
		t.Fatal("trigger state survived retraction")
	}
}

func TestSchedulerStopIdempotent(t *testing.T) {
	s := &Scheduler{
		stop: make(chan struct{}),
	}

	s.Stop()

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Stop should be idempotent, panicked on second call: %v", r)
		}
	}()

	s.Stop()
}

func TestSchedulerStartStop(t *testing.T) {
	backend := newFakeBackend()
	s := New(backend, 10*time.Millisecond)

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	s.Stop()
}
