package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/floworc/floworc-backend-nats/internal/core"
)

// Document is the shape a revisioned document must expose. Revisions of a
// document are append-only snapshots; the store never rewrites one.
type Document interface {
	GetNamespace() string
	GetID() string
	GetRevision() int
	IsDeleted() bool
}

// RevisionStore keeps two projections of one conceptual append log in
// separate KV buckets: "current" holds the latest non-deleted revision per
// (namespace, id) for hot-path lookups, "history" holds every snapshot ever
// written. PT is the pointer form of the document type.
type RevisionStore[T any, PT interface {
	Document
	*T
}] struct {
	current  *Store
	history  *Store
	resource string
}

// NewRevisionStore builds a revisioned store over a current and a history
// bucket. resource names the document type in not-found errors.
func NewRevisionStore[T any, PT interface {
	Document
	*T
}](current, history jetstream.KeyValue, resource string) *RevisionStore[T, PT] {
	return &RevisionStore[T, PT]{
		current:  NewStore(current),
		history:  NewStore(history),
		resource: resource,
	}
}

func documentKey(namespace, id string) string {
	return strings.Join([]string{namespace, id}, "_")
}

func snapshotKey(namespace, id string, revision int) string {
	return strings.Join([]string{namespace, id, strconv.Itoa(revision)}, "_")
}

// FindCurrent returns the latest non-deleted revision for (namespace, id)
// through the current index.
func (s *RevisionStore[T, PT]) FindCurrent(ctx context.Context, namespace, id string) (PT, error) {
	var doc T
	err := s.current.GetJSON(ctx, documentKey(namespace, id), PT(&doc))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, core.NewNotFoundError(s.resource, documentKey(namespace, id))
		}
		return nil, fmt.Errorf("read current %s: %w", documentKey(namespace, id), err)
	}
	return PT(&doc), nil
}

// FindRevision returns the exact historical snapshot at the given revision.
// The non-deleted filter does not apply here: a specific revision may
// itself be the terminal delete marker, and a caller asking for it is
// entitled to see it.
func (s *RevisionStore[T, PT]) FindRevision(ctx context.Context, namespace, id string, revision int) (PT, error) {
	var doc T
	key := snapshotKey(namespace, id, revision)
	err := s.history.GetJSON(ctx, key, PT(&doc))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, core.NewNotFoundError(s.resource, key)
		}
		return nil, fmt.Errorf("read revision %s: %w", key, err)
	}
	return PT(&doc), nil
}

// FindHistory returns every snapshot for (namespace, id), ascending by
// revision, including the terminal delete marker. This is the full audit
// trail and the basis for revision-number derivation and trigger diffing.
func (s *RevisionStore[T, PT]) FindHistory(ctx context.Context, namespace, id string) ([]PT, error) {
	var history []PT
	err := s.history.ForEach(ctx, func(_ string, value []byte) error {
		var doc T
		if err := json.Unmarshal(value, PT(&doc)); err != nil {
			return fmt.Errorf("decode history snapshot: %w", err)
		}
		pt := PT(&doc)
		if pt.GetNamespace() == namespace && pt.GetID() == id {
			history = append(history, pt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(history, func(i, j int) bool {
		return history[i].GetRevision() < history[j].GetRevision()
	})
	return history, nil
}

// FindAll returns all current documents, optionally restricted to a
// namespace (empty string means all). Soft-deleted documents are never
// part of the current index.
func (s *RevisionStore[T, PT]) FindAll(ctx context.Context, namespace string) ([]PT, error) {
	var docs []PT
	err := s.current.ForEach(ctx, func(_ string, value []byte) error {
		var doc T
		if err := json.Unmarshal(value, PT(&doc)); err != nil {
			return fmt.Errorf("decode current document: %w", err)
		}
		pt := PT(&doc)
		if pt.IsDeleted() {
			return nil
		}
		if namespace != "" && pt.GetNamespace() != namespace {
			return nil
		}
		docs = append(docs, pt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].GetNamespace() != docs[j].GetNamespace() {
			return docs[i].GetNamespace() < docs[j].GetNamespace()
		}
		return docs[i].GetID() < docs[j].GetID()
	})
	return docs, nil
}

// FindAllWithHistory returns every historical snapshot across all
// documents, ordered by (id, revision) ascending. Delete markers stay
// visible: they are the terminal entries of their histories.
func (s *RevisionStore[T, PT]) FindAllWithHistory(ctx context.Context) ([]PT, error) {
	var docs []PT
	err := s.history.ForEach(ctx, func(_ string, value []byte) error {
		var doc T
		if err := json.Unmarshal(value, PT(&doc)); err != nil {
			return fmt.Errorf("decode history snapshot: %w", err)
		}
		docs = append(docs, PT(&doc))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].GetID() != docs[j].GetID() {
			return docs[i].GetID() < docs[j].GetID()
		}
		if docs[i].GetRevision() != docs[j].GetRevision() {
			return docs[i].GetRevision() < docs[j].GetRevision()
		}
		return docs[i].GetNamespace() < docs[j].GetNamespace()
	})
	return docs, nil
}

// Put appends the document's snapshot to history and upserts the current
// index entry. The history write comes first: the append log is the source
// of truth and an index entry must never point at a missing snapshot. The
// append is create-only, so a cross-process writer that derived the same
// revision number surfaces as a conflict instead of silently rewriting a
// snapshot.
func (s *RevisionStore[T, PT]) Put(ctx context.Context, doc PT) error {
	key := snapshotKey(doc.GetNamespace(), doc.GetID(), doc.GetRevision())
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal revision %s: %w", key, err)
	}
	if err := s.history.Create(ctx, key, data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return core.NewConflictError(
				fmt.Sprintf("Revision %d of %s '%s' already exists.", doc.GetRevision(), s.resource, documentKey(doc.GetNamespace(), doc.GetID())),
				map[string]any{"revision": doc.GetRevision()},
			)
		}
		return fmt.Errorf("append revision %s: %w", key, err)
	}
	if err := s.current.PutJSON(ctx, documentKey(doc.GetNamespace(), doc.GetID()), doc); err != nil {
		return fmt.Errorf("upsert current %s: %w", documentKey(doc.GetNamespace(), doc.GetID()), err)
	}
	return nil
}

// Delete writes the terminal deleted snapshot into history and removes the
// entry from the current index. doc must already carry deleted=true and
// its terminal revision number; it is returned unchanged as the result of
// the deletion.
func (s *RevisionStore[T, PT]) Delete(ctx context.Context, doc PT) (PT, error) {
	key := snapshotKey(doc.GetNamespace(), doc.GetID(), doc.GetRevision())
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal delete marker %s: %w", key, err)
	}
	if err := s.history.Create(ctx, key, data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return nil, core.NewConflictError(
				fmt.Sprintf("Revision %d of %s '%s' already exists.", doc.GetRevision(), s.resource, documentKey(doc.GetNamespace(), doc.GetID())),
				map[string]any{"revision": doc.GetRevision()},
			)
		}
		return nil, fmt.Errorf("append delete marker %s: %w", key, err)
	}
	if err := s.current.Delete(ctx, documentKey(doc.GetNamespace(), doc.GetID())); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, fmt.Errorf("remove current %s: %w", documentKey(doc.GetNamespace(), doc.GetID()), err)
	}
	return doc, nil
}
