package core

import "context"

// FlowRepository is the persistence contract the HTTP surface consumes.
// The NATS backend is the only production implementation; tests mock it.
type FlowRepository interface {
	// FindByID resolves a flow. revision <= 0 means the current revision;
	// a positive revision reads that exact historical snapshot.
	FindByID(ctx context.Context, namespace, id string, revision int) (*Flow, error)

	// FindRevisions returns the flow's full history, ascending by
	// revision, the terminal delete marker included.
	FindRevisions(ctx context.Context, namespace, id string) ([]*Flow, error)

	// FindAll returns every current flow across all namespaces.
	FindAll(ctx context.Context) ([]*Flow, error)

	// FindByNamespace returns every current flow in one namespace.
	FindByNamespace(ctx context.Context, namespace string) ([]*Flow, error)

	// FindAllWithRevisions returns every snapshot of every flow.
	FindAllWithRevisions(ctx context.Context) ([]*Flow, error)

	// FindDistinctNamespaces returns the sorted namespaces with at least
	// one current flow.
	FindDistinctNamespaces(ctx context.Context) ([]string, error)

	// Find searches current flows by namespace/id substring and paginates.
	Find(ctx context.Context, query string, limit, offset int) ([]*Flow, int, error)

	// Create persists a new flow revision; the repository assigns the
	// revision number.
	Create(ctx context.Context, flow *Flow) (*Flow, error)

	// Update replaces the flow identified by previous and retracts
	// triggers the update removed.
	Update(ctx context.Context, flow, previous *Flow) (*Flow, error)

	// Delete soft-deletes a flow, appending the terminal snapshot.
	Delete(ctx context.Context, namespace, id string) (*Flow, error)
}
