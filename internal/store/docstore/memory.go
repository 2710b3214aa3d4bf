package docstore

import (
	"context"
	"reflect"
	"slices"
	"sync"

	"github.com/google/uuid"
)

var _ Store = (*Memory)(nil)

// Memory is a process-local Store for tests and local development.
type Memory struct {
	mu    sync.Mutex
	cols  map[string]map[string]Fields
	order map[string][]string
}

func NewMemory() *Memory {
	return &Memory{
		cols:  make(map[string]map[string]Fields),
		order: make(map[string][]string),
	}
}

func (m *Memory) Create(_ context.Context, collection string, fields Fields) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	col, ok := m.cols[collection]
	if !ok {
		col = make(map[string]Fields)
		m.cols[collection] = col
	}
	col[id] = clone(fields)
	m.order[collection] = append(m.order[collection], id)
	return id, nil
}

func (m *Memory) Get(_ context.Context, collection, id string) (Fields, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.cols[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(doc), nil
}

func (m *Memory) Patch(_ context.Context, collection, id string, fields Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.cols[collection][id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range fields {
		doc[k] = v
	}
	return nil
}

func (m *Memory) Query(_ context.Context, collection string, filters ...Filter) ([]Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Doc
	for _, id := range m.order[collection] {
		doc, ok := m.cols[collection][id]
		if !ok || !matches(doc, filters) {
			continue
		}
		out = append(out, Doc{ID: id, Fields: clone(doc)})
	}
	return out, nil
}

func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cols[collection][id]; !ok {
		return ErrNotFound
	}
	delete(m.cols[collection], id)
	m.order[collection] = slices.DeleteFunc(m.order[collection], func(o string) bool { return o == id })
	return nil
}

// Len is the number of documents in collection.
func (m *Memory) Len(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cols[collection])
}

func matches(doc Fields, filters []Filter) bool {
	for _, f := range filters {
		v, ok := doc[f.Field]
		if !ok || !reflect.DeepEqual(v, f.Value) {
			return false
		}
	}
	return true
}
