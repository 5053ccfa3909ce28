package nats

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/floworc/floworc-backend-nats/internal/core"
	"github.com/floworc/floworc-backend-nats/internal/metrics"
)

// Flow repository. All mutations funnel through save: validate, short
// circuit no-ops, derive the next revision from the observed history,
// commit the snapshot, then notify. Notifications (queue broadcast, CRUD
// event) happen strictly after the commit and their failures are logged,
// never surfaced: the persisted state is already authoritative.

// FindByID returns a flow. revision <= 0 means the current (latest
// non-deleted) revision; a positive revision reads the exact historical
// snapshot, delete markers included.
func (b *Backend) FindByID(ctx context.Context, namespace, id string, revision int) (*core.Flow, error) {
	if revision > 0 {
		return b.flows.FindRevision(ctx, namespace, id, revision)
	}
	return b.flows.FindCurrent(ctx, namespace, id)
}

// FindRevisions returns the full history of a flow, ascending by revision,
// including the terminal delete marker if any.
func (b *Backend) FindRevisions(ctx context.Context, namespace, id string) ([]*core.Flow, error) {
	history, err := b.flows.FindHistory(ctx, namespace, id)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, core.NewNotFoundError("Flow", namespace+"_"+id)
	}
	return history, nil
}

// FindAll returns every current flow across all namespaces.
func (b *Backend) FindAll(ctx context.Context) ([]*core.Flow, error) {
	return b.flows.FindAll(ctx, "")
}

// FindByNamespace returns every current flow in one namespace.
func (b *Backend) FindByNamespace(ctx context.Context, namespace string) ([]*core.Flow, error) {
	return b.flows.FindAll(ctx, namespace)
}

// FindAllWithRevisions returns every snapshot of every flow ever written,
// ordered by (id, revision).
func (b *Backend) FindAllWithRevisions(ctx context.Context) ([]*core.Flow, error) {
	return b.flows.FindAllWithHistory(ctx)
}

// FindDistinctNamespaces returns the sorted set of namespaces that have at
// least one current flow.
func (b *Backend) FindDistinctNamespaces(ctx context.Context) ([]string, error) {
	flows, err := b.flows.FindAll(ctx, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var namespaces []string
	for _, f := range flows {
		if _, ok := seen[f.Namespace]; !ok {
			seen[f.Namespace] = struct{}{}
			namespaces = append(namespaces, f.Namespace)
		}
	}
	sort.Strings(namespaces)
	return namespaces, nil
}

// Find searches current flows whose namespace or id contains the query
// substring, case-insensitive. Returns the page and the total match count.
func (b *Backend) Find(ctx context.Context, query string, limit, offset int) ([]*core.Flow, int, error) {
	flows, err := b.flows.FindAll(ctx, "")
	if err != nil {
		return nil, 0, err
	}

	q := strings.ToLower(query)
	var matched []*core.Flow
	for _, f := range flows {
		if q == "" ||
			strings.Contains(strings.ToLower(f.Namespace), q) ||
			strings.Contains(strings.ToLower(f.ID), q) {
			matched = append(matched, f)
		}
	}

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

// Create persists a new flow, or an update if the identity already exists.
// The submitted revision number is ignored; the repository assigns it.
func (b *Backend) Create(ctx context.Context, flow *core.Flow) (*core.Flow, error) {
	return b.save(ctx, flow, core.CrudEventCreate)
}

// Update replaces the flow identified by previous with the submitted
// definition. Identity is immutable: the submitted namespace/id must match
// the previous one. Triggers removed by the update are retracted through
// the queue so no orphaned scheduled execution survives.
func (b *Backend) Update(ctx context.Context, flow, previous *core.Flow) (*core.Flow, error) {
	current, err := b.flows.FindCurrent(ctx, previous.Namespace, previous.ID)
	if err != nil {
		if core.IsNotFound(err) {
			return nil, core.NewNotFoundError("Flow", previous.Key())
		}
		return nil, err
	}

	if verr := core.ValidateUpdate(current, flow); verr != nil {
		return nil, verr
	}

	saved, err := b.save(ctx, flow, core.CrudEventUpdate)
	if err != nil {
		return nil, err
	}

	for _, trigger := range core.FindRemovedTriggers(saved, current) {
		key := current.TriggerKeyFor(trigger)
		if err := b.queue.DeleteTrigger(ctx, key); err != nil {
			slog.Error("failed to retract removed trigger", "error", err, "trigger", key.String())
			metrics.NotifyFailures.WithLabelValues("trigger_retract").Inc()
			continue
		}
		metrics.TriggersRetracted.Inc()
	}

	return saved, nil
}

// Delete appends the terminal deleted snapshot to the flow's history and
// removes it from the current index. Historical revisions stay readable.
func (b *Backend) Delete(ctx context.Context, namespace, id string) (*core.Flow, error) {
	unlock := b.lock(namespace + "_" + id)
	defer unlock()

	history, err := b.flows.FindHistory(ctx, namespace, id)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, core.NewNotFoundError("Flow", namespace+"_"+id)
	}

	last := history[len(history)-1]
	if last.Deleted {
		return nil, core.NewNotFoundError("Flow", namespace+"_"+id)
	}

	terminal := last.ToDeleted().WithRevision(last.Revision + 1)
	deleted, err := b.flows.Delete(ctx, terminal)
	if err != nil {
		return nil, err
	}

	b.notify(ctx, deleted, core.CrudEventDelete)
	return deleted, nil
}

// save is the single mutation path. It holds the per-flow lock across the
// history read and the snapshot write so two in-process writers cannot
// derive the same revision number.
func (b *Backend) save(ctx context.Context, flow *core.Flow, eventType core.CrudEventType) (*core.Flow, error) {
	if verr := core.ValidateFlow(flow); verr != nil {
		return nil, verr
	}

	unlock := b.lock(flow.Key())
	defer unlock()

	existing, err := b.flows.FindCurrent(ctx, flow.Namespace, flow.ID)
	if err != nil && !core.IsNotFound(err) {
		return nil, err
	}
	if existing != nil && existing.EqualsIgnoringRevision(flow) {
		metrics.FlowSaveNoops.Inc()
		return existing, nil
	}

	history, err := b.flows.FindHistory(ctx, flow.Namespace, flow.ID)
	if err != nil {
		return nil, err
	}
	next := 1
	if len(history) > 0 {
		next = history[len(history)-1].Revision + 1
	}

	saved := flow.WithRevision(next)
	saved.Deleted = false
	if err := b.flows.Put(ctx, saved); err != nil {
		return nil, err
	}

	b.notify(ctx, saved, eventType)
	return saved, nil
}

// notify broadcasts a committed mutation: queue emission first, then the
// CRUD audit event. Failures here lose a notification, never the mutation.
func (b *Backend) notify(ctx context.Context, flow *core.Flow, eventType core.CrudEventType) {
	if err := b.queue.EmitFlow(ctx, flow); err != nil {
		slog.Error("failed to emit flow to queue", "error", err, "flow", flow.UID())
		metrics.NotifyFailures.WithLabelValues("queue").Inc()
	}
	if err := b.events.Publish(core.NewCrudEvent(flow, eventType)); err != nil {
		slog.Error("failed to publish crud event", "error", err, "flow", flow.UID())
		metrics.NotifyFailures.WithLabelValues("crud_event").Inc()
	}
	metrics.FlowsSaved.WithLabelValues(string(eventType)).Inc()
}
