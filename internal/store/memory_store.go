package store

import (
	"sync"

	"bookbeacon/internal/util"
)

// MemoryStore keeps documents in-process. It mirrors GormStore semantics for
// tests and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]map[string]Document // collection -> id -> document
	orders map[string][]string            // collection -> insertion order
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]map[string]Document),
		orders: make(map[string][]string),
	}
}

// FindAll returns every document of a collection in insertion order.
func (m *MemoryStore) FindAll(collection string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]Document, 0, len(m.orders[collection]))
	for _, id := range m.orders[collection] {
		if doc, ok := m.docs[collection][id]; ok {
			res = append(res, withID(doc, id))
		}
	}
	return res, nil
}

// FindByField returns documents whose field equals value.
func (m *MemoryStore) FindByField(collection, field, value string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []Document
	for _, id := range m.orders[collection] {
		doc, ok := m.docs[collection][id]
		if !ok {
			continue
		}
		// String comparison only, matching the jsonb text equality of
		// the database backend.
		if s, ok := doc[field].(string); ok && s == value {
			res = append(res, withID(doc, id))
		}
	}
	if res == nil {
		res = []Document{}
	}
	return res, nil
}

// FindByID retrieves one document by identifier.
func (m *MemoryStore) FindByID(collection, id string) (Document, bool, error) {
	if !ValidDocumentID(id) {
		return nil, false, ErrInvalidDocumentID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[collection][id]
	if !ok {
		return nil, false, nil
	}
	return withID(doc, id), true, nil
}

// InsertOne stores a document under a fresh identifier.
func (m *MemoryStore) InsertOne(collection string, doc Document) (InsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := util.NewID()
	if m.docs[collection] == nil {
		m.docs[collection] = make(map[string]Document)
	}
	m.docs[collection][id] = copyDoc(stripID(doc))
	m.orders[collection] = append(m.orders[collection], id)
	return InsertResult{Acknowledged: true, InsertedID: id}, nil
}

// UpdateByID merges the supplied fields into the stored document.
func (m *MemoryStore) UpdateByID(collection, id string, set Document) (UpdateResult, error) {
	if !ValidDocumentID(id) {
		return UpdateResult{}, ErrInvalidDocumentID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[collection][id]
	if !ok {
		return UpdateResult{Acknowledged: true}, nil
	}
	for k, v := range stripID(set) {
		doc[k] = v
	}
	return UpdateResult{Acknowledged: true, MatchedCount: 1, ModifiedCount: 1}, nil
}

// DeleteByID removes one document by identifier.
func (m *MemoryStore) DeleteByID(collection, id string) (DeleteResult, error) {
	if !ValidDocumentID(id) {
		return DeleteResult{}, ErrInvalidDocumentID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[collection][id]; !ok {
		return DeleteResult{Acknowledged: true}, nil
	}
	delete(m.docs[collection], id)
	order := m.orders[collection]
	filtered := order[:0]
	for _, item := range order {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.orders[collection] = filtered
	return DeleteResult{Acknowledged: true, DeletedCount: 1}, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}

func withID(doc Document, id string) Document {
	out := copyDoc(doc)
	out["_id"] = id
	return out
}

func copyDoc(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
