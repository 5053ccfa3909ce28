package core

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Trigger types.
const (
	TriggerTypeSchedule = "schedule"
)

// Flow is a versioned workflow definition scoped to a namespace/id.
// Revisions are append-only: every successful mutation produces a new
// immutable snapshot, and the latest non-deleted one is the current flow.
type Flow struct {
	Namespace string    `json:"namespace"`
	ID        string    `json:"id"`
	Revision  int       `json:"revision,omitempty"`
	Tasks     []Task    `json:"tasks,omitempty"`
	Triggers  []Trigger `json:"triggers,omitempty"`
	Deleted   bool      `json:"deleted,omitempty"`
}

// Task is a single task definition inside a flow. The engine executing
// tasks lives outside this backend; here a task is an opaque typed payload.
type Task struct {
	ID     string          `json:"id"`
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Trigger is a named scheduling rule embedded in a flow.
type Trigger struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Cron     string    `json:"cron,omitempty"`
	Backfill *Backfill `json:"backfill,omitempty"`
}

// Backfill catches execution up from a fixed historical start instant
// instead of only firing from now forward.
type Backfill struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// TriggerKey identifies one trigger of one flow across the whole cluster.
type TriggerKey struct {
	Namespace string `json:"namespace"`
	FlowID    string `json:"flow_id"`
	TriggerID string `json:"trigger_id"`
}

func (k TriggerKey) String() string {
	return strings.Join([]string{k.Namespace, k.FlowID, k.TriggerID}, "_")
}

// Key is the current-index identity: namespace + id.
func (f *Flow) Key() string {
	return strings.Join([]string{f.Namespace, f.ID}, "_")
}

// UID is the revision-scoped identity: namespace + id + revision.
func (f *Flow) UID() string {
	return strings.Join([]string{f.Namespace, f.ID, strconv.Itoa(f.Revision)}, "_")
}

// GetNamespace implements the revisioned document contract.
func (f *Flow) GetNamespace() string { return f.Namespace }

// GetID implements the revisioned document contract.
func (f *Flow) GetID() string { return f.ID }

// GetRevision implements the revisioned document contract.
func (f *Flow) GetRevision() int { return f.Revision }

// IsDeleted implements the revisioned document contract.
func (f *Flow) IsDeleted() bool { return f.Deleted }

// WithRevision returns a copy of the flow at the given revision number.
func (f *Flow) WithRevision(revision int) *Flow {
	c := *f
	c.Revision = revision
	return &c
}

// ToDeleted returns the terminal snapshot for this flow.
func (f *Flow) ToDeleted() *Flow {
	c := *f
	c.Deleted = true
	return &c
}

// TriggerKeyFor returns the cluster-wide key of one of this flow's triggers.
func (f *Flow) TriggerKeyFor(t Trigger) TriggerKey {
	return TriggerKey{Namespace: f.Namespace, FlowID: f.ID, TriggerID: t.ID}
}

// EqualsIgnoringRevision reports value equality of two flows over every
// field except the revision number. Submitting an unchanged definition must
// not create a spurious revision, so the repository uses this as its no-op
// short circuit. Comparison goes through the canonical JSON form, which is
// already the document codec.
func (f *Flow) EqualsIgnoringRevision(other *Flow) bool {
	if f == nil || other == nil {
		return f == other
	}
	a, errA := json.Marshal(f.WithRevision(0))
	b, errB := json.Marshal(other.WithRevision(0))
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// FindRemovedTriggers returns the triggers present in previous but absent
// (by trigger id) from current. Removing a trigger from a flow must not
// leave orphaned scheduled executions, so the repository retracts each of
// these through the queue transport on update.
func FindRemovedTriggers(current, previous *Flow) []Trigger {
	kept := make(map[string]struct{}, len(current.Triggers))
	for _, t := range current.Triggers {
		kept[t.ID] = struct{}{}
	}

	var removed []Trigger
	for _, t := range previous.Triggers {
		if _, ok := kept[t.ID]; !ok {
			removed = append(removed, t)
		}
	}
	return removed
}
