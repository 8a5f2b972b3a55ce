// Package memory is an in-process backend loaded from a fixture file. It
// implements the document store, the eligibility provider and the schema
// source, and is used for local runs and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"

	"docgate/internal/domain/data"
	"docgate/internal/domain/query"
	"docgate/internal/domain/schema"
	"docgate/internal/infrastructure/fixtures"
)

// Store holds every document, eligibility set and schema in memory. Safe
// for concurrent use.
type Store struct {
	mu          sync.RWMutex
	docs        map[string]map[string]data.Document
	eligibility map[string]map[string][]string
	indexes     map[string]map[string]struct{}
	settings    map[string]any
	schemas     map[string]map[string]json.RawMessage
	apps        map[string]map[string]map[string]json.RawMessage
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		docs:        map[string]map[string]data.Document{},
		eligibility: map[string]map[string][]string{},
		indexes:     map[string]map[string]struct{}{},
		settings:    map[string]any{},
		schemas:     map[string]map[string]json.RawMessage{},
		apps:        map[string]map[string]map[string]json.RawMessage{},
	}
}

// FromFixtures returns a Store holding the contents of file.
func FromFixtures(file *fixtures.File) *Store {
	s := New()
	if file.Settings != nil {
		s.settings = file.Settings
	}
	if file.Schemas != nil {
		s.schemas = file.Schemas
	}
	if file.Apps != nil {
		s.apps = file.Apps
	}
	for docType, docs := range file.Documents {
		for _, doc := range docs {
			if id, _ := doc["uuid"].(string); id != "" {
				s.put(docType, id, doc)
			}
		}
	}
	for user, sets := range file.Eligibility {
		for docType, ids := range sets {
			s.Grant(user, docType, ids...)
		}
	}
	for docType, fields := range file.Indexes {
		s.Index(docType, fields...)
	}
	return s
}

// Grant adds ids to the eligibility set of (userID, docType).
func (s *Store) Grant(userID, docType string, ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sets, ok := s.eligibility[userID]
	if !ok {
		sets = map[string][]string{}
		s.eligibility[userID] = sets
	}
	set := append(sets[docType], ids...)
	sort.Strings(set)
	sets[docType] = slices.Compact(set)
}

// Index declares the filterable fields of docType. Once a type has
// declared fields, filters on any other field fail with
// data.ErrPrecondition.
func (s *Store) Index(docType string, fields ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.indexes[docType]
	if !ok {
		set = map[string]struct{}{}
		s.indexes[docType] = set
	}
	for _, f := range fields {
		set[f] = struct{}{}
	}
}

// SetSettings replaces the application settings.
func (s *Store) SetSettings(settings map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

// PutSchema stores the raw schema of name at version.
func (s *Store) PutSchema(version, name string, raw json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schemas[version] == nil {
		s.schemas[version] = map[string]json.RawMessage{}
	}
	s.schemas[version][name] = raw
}

func (s *Store) put(docType, id string, doc data.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs[docType] == nil {
		s.docs[docType] = map[string]data.Document{}
	}
	s.docs[docType][id] = clone(doc)
}

// --- data.Store ---

func (s *Store) Collection(docType string) data.Query {
	return &collectionQuery{store: s, docType: docType}
}

func (s *Store) Get(_ context.Context, docType, id string) (data.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docType][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", docType, id, data.ErrNotFound)
	}
	return clone(doc), nil
}

func (s *Store) Create(_ context.Context, docType, id string, doc data.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[docType][id]; ok {
		return fmt.Errorf("%s/%s: %w", docType, id, data.ErrAlreadyExists)
	}
	if s.docs[docType] == nil {
		s.docs[docType] = map[string]data.Document{}
	}
	stored := clone(doc)
	stored["uuid"] = id
	s.docs[docType][id] = stored
	return nil
}

func (s *Store) Update(_ context.Context, docType, id string, doc data.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.docs[docType][id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", docType, id, data.ErrNotFound)
	}
	for k, v := range clone(doc) {
		stored[k] = v
	}
	stored["uuid"] = id
	return nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}

// --- eligibility.Provider ---

func (s *Store) Eligible(_ context.Context, userID, docType string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.eligibility[userID][docType]), nil
}

func (s *Store) IsEligible(_ context.Context, userID, docType, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, found := slices.BinarySearch(s.eligibility[userID][docType], id)
	return found, nil
}

// --- schema.Source ---

func (s *Store) Settings(context.Context) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.settings), nil
}

func (s *Store) ListSchemas(_ context.Context, version string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.schemas[version]))
	for name := range s.schemas[version] {
		names = append(names, name)
	}
	return names, nil
}

func (s *Store) Schema(_ context.Context, version, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.schemas[version][name]
	if !ok {
		return nil, fmt.Errorf("%s@%s: %w", name, version, schema.ErrNotFound)
	}
	return slices.Clone(raw), nil
}

func (s *Store) App(_ context.Context, alias, version, lang string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.apps[alias][version][lang]
	if !ok {
		return nil, fmt.Errorf("app %s@%s/%s: %w", alias, version, lang, schema.ErrNotFound)
	}
	return slices.Clone(raw), nil
}

// --- queries ---

type collectionQuery struct {
	store   *Store
	docType string
	filters []*query.Comparison
	ids     []string
	byID    bool
	limit   int
	err     error
}

func (q *collectionQuery) copy() *collectionQuery {
	c := *q
	c.filters = slices.Clone(q.filters)
	return &c
}

func (q *collectionQuery) Where(field string, op query.Operator, value query.Value) data.Query {
	c := q.copy()
	c.filters = append(c.filters, &query.Comparison{Field: field, Op: op, Value: value})
	if c.err == nil && !q.store.indexed(q.docType, field) {
		c.err = fmt.Errorf("%s has no index on %q: %w", q.docType, field, data.ErrPrecondition)
	}
	return c
}

func (q *collectionQuery) IDIn(ids []string) data.Query {
	c := q.copy()
	c.ids = slices.Clone(ids)
	c.byID = true
	return c
}

func (q *collectionQuery) Limit(n int) data.Query {
	c := q.copy()
	c.limit = n
	return c
}

func (q *collectionQuery) All(ctx context.Context) ([]data.Document, error) {
	if q.err != nil {
		return nil, q.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.store.mu.RLock()
	defer q.store.mu.RUnlock()
	docs := q.store.docs[q.docType]

	var candidates []data.Document
	if q.byID {
		for _, id := range q.ids {
			if doc, ok := docs[id]; ok {
				candidates = append(candidates, doc)
			}
		}
	} else {
		for _, doc := range docs {
			candidates = append(candidates, doc)
		}
	}

	var out []data.Document
	for _, doc := range candidates {
		if !q.matches(doc) {
			continue
		}
		out = append(out, clone(doc))
		if q.limit > 0 && len(out) == q.limit {
			break
		}
	}
	return out, nil
}

func (q *collectionQuery) matches(doc data.Document) bool {
	for _, c := range q.filters {
		if !c.Matches(doc) {
			return false
		}
	}
	return true
}

func (s *Store) indexed(docType, field string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields, ok := s.indexes[docType]
	if !ok {
		return true
	}
	_, ok = fields[field]
	return ok
}

func clone(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return clone(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
