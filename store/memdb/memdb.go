// Package memdb is the in-memory store.Store implementation. Writes are
// serialized by a single mutex, which gives the per-document write
// atomicity the pipeline relies on. Nothing persists across restarts.
package memdb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/core"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/store"
)

// DB is an in-memory document store.
type DB struct {
	mu          sync.RWMutex
	collections map[string]map[string]store.Document
}

// New creates an empty in-memory store.
func New() *DB {
	return &DB{
		collections: make(map[string]map[string]store.Document),
	}
}

// Insert stores a document and returns its id.
func (db *DB) Insert(ctx context.Context, collection string, doc store.Document) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	id, _ := doc["id"].(string)
	if id == "" {
		id = uuid.New().String()
	}

	col := db.collections[collection]
	if col == nil {
		col = make(map[string]store.Document)
		db.collections[collection] = col
	}

	stored := cloneDoc(doc)
	stored["id"] = id
	col[id] = stored
	return id, nil
}

// FindByID retrieves a document by id.
func (db *DB) FindByID(ctx context.Context, collection, id string) (store.Document, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	doc, ok := db.collections[collection][id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneDoc(doc), nil
}

// Find retrieves documents matching filter, sorted and capped.
func (db *DB) Find(ctx context.Context, collection string, filter store.Filter, sortBy *store.Sort, limit int) ([]store.Document, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var results []store.Document
	for _, doc := range db.collections[collection] {
		if matches(doc, filter) {
			results = append(results, cloneDoc(doc))
		}
	}

	if sortBy != nil {
		field, desc := sortBy.Field, sortBy.Descending
		sort.SliceStable(results, func(i, j int) bool {
			less := compareValues(lookup(results[i], field), lookup(results[j], field)) < 0
			if desc {
				return !less
			}
			return less
		})
	}

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// UpdateByID sets fields on an existing document.
func (db *DB) UpdateByID(ctx context.Context, collection, id string, fields store.Document) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	doc, ok := db.collections[collection][id]
	if !ok {
		return store.ErrNotFound
	}
	for k, v := range fields {
		if k == "id" {
			continue
		}
		doc[k] = cloneValue(v)
	}
	return nil
}

// DeleteByID removes a document.
func (db *DB) DeleteByID(ctx context.Context, collection, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	col := db.collections[collection]
	if _, ok := col[id]; !ok {
		return store.ErrNotFound
	}
	delete(col, id)
	return nil
}

// Inc atomically adds delta to a numeric field.
func (db *DB) Inc(ctx context.Context, collection, id, field string, delta int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	doc, ok := db.collections[collection][id]
	if !ok {
		return store.ErrNotFound
	}

	switch v := doc[field].(type) {
	case int64:
		doc[field] = v + delta
	case int:
		doc[field] = int64(v) + delta
	case float64:
		doc[field] = v + float64(delta)
	default:
		doc[field] = delta
	}
	return nil
}

// Push atomically appends values to an array field. The read-append-write
// happens under the store mutex, so concurrent pushes to the same field
// interleave without losing elements.
func (db *DB) Push(ctx context.Context, collection, id, field string, values ...interface{}) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	doc, ok := db.collections[collection][id]
	if !ok {
		return store.ErrNotFound
	}

	var arr []interface{}
	switch v := doc[field].(type) {
	case nil:
	case []interface{}:
		arr = v
	case []core.Message:
		arr = make([]interface{}, 0, len(v)+len(values))
		for _, m := range v {
			arr = append(arr, m)
		}
	default:
		return fmt.Errorf("memdb: field %s holds %T, not an array", field, v)
	}

	for _, v := range values {
		arr = append(arr, cloneValue(v))
	}
	doc[field] = arr
	return nil
}

// matches reports whether doc satisfies every exact-match entry in
// filter. Dotted keys descend into nested maps.
func matches(doc store.Document, filter store.Filter) bool {
	for key, want := range filter {
		got, ok := lookupOK(doc, key)
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

func lookup(doc store.Document, key string) interface{} {
	v, _ := lookupOK(doc, key)
	return v
}

func lookupOK(doc store.Document, key string) (interface{}, bool) {
	parts := strings.Split(key, ".")
	var cur interface{} = map[string]interface{}(doc)
	for _, p := range parts {
		switch m := cur.(type) {
		case map[string]interface{}:
			v, ok := m[p]
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]string:
			v, ok := m[p]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}

func valuesEqual(a, b interface{}) bool {
	if a == b {
		return true
	}
	// Tolerate numeric type drift between writers
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// compareValues orders two field values: numbers numerically, times
// chronologically, everything else as strings.
func compareValues(a, b interface{}) int {
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}

	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}

	as, _ := a.(string)
	bs, _ := b.(string)
	return strings.Compare(as, bs)
}

func cloneDoc(doc store.Document) store.Document {
	out := make(store.Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch m := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, vv := range m {
			out[k] = cloneValue(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(m))
		for i, vv := range m {
			out[i] = cloneValue(vv)
		}
		return out
	case []float32:
		out := make([]float32, len(m))
		copy(out, m)
		return out
	case []string:
		out := make([]string, len(m))
		copy(out, m)
		return out
	case core.Message:
		out := m
		if m.Metadata != nil {
			out.Metadata = cloneDoc(m.Metadata)
		}
		return out
	case []core.Message:
		out := make([]core.Message, len(m))
		for i := range m {
			out[i] = cloneValue(m[i]).(core.Message)
		}
		return out
	default:
		return v
	}
}
