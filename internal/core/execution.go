package core

import (
	"log/slog"
	"time"
)

// TriggerContext is the evaluation unit passed to the scheduler for one
// poll: the flow identity the trigger belongs to and the last date the
// trigger was evaluated at. Its lifetime is owned by the polling loop; the
// scheduler only reads it.
type TriggerContext struct {
	Namespace    string    `json:"namespace"`
	FlowID       string    `json:"flow_id"`
	FlowRevision int       `json:"flow_revision"`
	TriggerID    string    `json:"trigger_id"`
	Date         time.Time `json:"date"`
}

// Key returns the trigger identity of this context.
func (c TriggerContext) Key() TriggerKey {
	return TriggerKey{Namespace: c.Namespace, FlowID: c.FlowID, TriggerID: c.TriggerID}
}

// RunContext carries the ambient dependencies of a trigger evaluation.
// Now is injectable so that evaluation is a pure function under test.
type RunContext struct {
	Logger *slog.Logger
	Now    func() time.Time
}

// NewRunContext returns a run context bound to the default logger and clock.
func NewRunContext() RunContext {
	return RunContext{Logger: slog.Default(), Now: time.Now}
}

func (rc RunContext) now() time.Time {
	if rc.Now != nil {
		return rc.Now()
	}
	return time.Now()
}

func (rc RunContext) logger() *slog.Logger {
	if rc.Logger != nil {
		return rc.Logger
	}
	return slog.Default()
}

// ExecutionStateCreated is the only state this backend ever assigns; the
// execution pipeline downstream owns the rest of the state machine.
const ExecutionStateCreated = "created"

// ScheduleVariables is the variable bundle a schedule trigger exposes to
// downstream task templating: the matched fire date and the cron
// occurrences immediately around it.
type ScheduleVariables struct {
	Date     time.Time `json:"date"`
	Next     time.Time `json:"next"`
	Previous time.Time `json:"previous"`
}

// Execution is a request to start a new run of a flow at a specific
// revision.
type Execution struct {
	ID           string         `json:"id"`
	Namespace    string         `json:"namespace"`
	FlowID       string         `json:"flow_id"`
	FlowRevision int            `json:"flow_revision"`
	TriggerID    string         `json:"trigger_id,omitempty"`
	State        string         `json:"state"`
	Variables    map[string]any `json:"variables,omitempty"`
	CreatedAt    string         `json:"created_at"`
}
