// Package store defines the document-store contract the engine's
// services are written against. The contract is deliberately small:
// insert, find by id, filtered find with sort and limit, partial update,
// delete, an atomic field increment, and an atomic array append. Anything
// document-oriented can
// sit behind it; the SDK ships an in-memory implementation in
// store/memdb.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no document matches the requested id.
// Callers map it to a "not found" outcome, distinct from generic failure.
var ErrNotFound = errors.New("store: document not found")

// Document is a schemaless record. Every stored document carries a
// string "id" field.
type Document = map[string]interface{}

// Filter is an exact-match filter. Dotted keys ("metadata.character")
// reach into nested maps.
type Filter = map[string]interface{}

// Sort orders Find results by a single field.
type Sort struct {
	Field      string
	Descending bool
}

// Store is the document storage backend interface.
type Store interface {
	// Insert stores a document and returns its id. A document without an
	// "id" field gets one assigned.
	Insert(ctx context.Context, collection string, doc Document) (string, error)

	// FindByID retrieves a document by id. Returns ErrNotFound when absent.
	FindByID(ctx context.Context, collection, id string) (Document, error)

	// Find retrieves documents matching filter, optionally sorted, capped
	// at limit (limit <= 0 means no cap). A nil filter matches everything.
	Find(ctx context.Context, collection string, filter Filter, sort *Sort, limit int) ([]Document, error)

	// UpdateByID sets the given fields on a document. Untouched fields
	// are preserved. Returns ErrNotFound when absent.
	UpdateByID(ctx context.Context, collection, id string, fields Document) error

	// DeleteByID removes a document. Returns ErrNotFound when absent.
	DeleteByID(ctx context.Context, collection, id string) error

	// Inc atomically adds delta to a numeric field, creating it at delta
	// if missing. Returns ErrNotFound when the document is absent.
	Inc(ctx context.Context, collection, id, field string, delta int64) error

	// Push atomically appends values to an array field, creating it when
	// missing. Concurrent pushes to the same field never lose elements.
	// Returns ErrNotFound when the document is absent.
	Push(ctx context.Context, collection, id, field string, values ...interface{}) error
}
