package store

import (
	"errors"
	"testing"
)

func TestMemoryStoreInsertAndFind(t *testing.T) {
	m := NewMemoryStore()

	res, err := m.InsertOne(CollectionBooks, Document{"name": "Dune", "quantity": 3})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !res.Acknowledged || !ValidDocumentID(res.InsertedID) {
		t.Fatalf("unexpected insert result: %+v", res)
	}

	doc, found, err := m.FindByID(CollectionBooks, res.InsertedID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if !found {
		t.Fatalf("expected document")
	}
	if doc["name"] != "Dune" {
		t.Fatalf("name = %v, want Dune", doc["name"])
	}
	if doc["_id"] != res.InsertedID {
		t.Fatalf("_id = %v, want %s", doc["_id"], res.InsertedID)
	}

	// Collections are isolated.
	if _, found, err := m.FindByID(CollectionUser, res.InsertedID); err != nil || found {
		t.Fatalf("document should not appear in other collection, found=%v err=%v", found, err)
	}
}

func TestMemoryStoreFindAllKeepsInsertionOrder(t *testing.T) {
	m := NewMemoryStore()

	for _, name := range []string{"first", "second", "third"} {
		if _, err := m.InsertOne(CollectionCategory, Document{"name": name}); err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
	}

	docs, err := m.FindAll(CollectionCategory)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("len = %d, want 3", len(docs))
	}
	for i, name := range []string{"first", "second", "third"} {
		if docs[i]["name"] != name {
			t.Fatalf("docs[%d] = %v, want %s", i, docs[i]["name"], name)
		}
	}
}

func TestMemoryStoreFindByField(t *testing.T) {
	m := NewMemoryStore()

	if _, err := m.InsertOne(CollectionUser, Document{"email": "a@x.com", "bookName": "Dune"}); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if _, err := m.InsertOne(CollectionUser, Document{"email": "b@x.com", "bookName": "Solaris"}); err != nil {
		t.Fatalf("insert b: %v", err)
	}

	docs, err := m.FindByField(CollectionUser, "email", "a@x.com")
	if err != nil {
		t.Fatalf("find by field: %v", err)
	}
	if len(docs) != 1 || docs[0]["email"] != "a@x.com" {
		t.Fatalf("unexpected result: %+v", docs)
	}

	docs, err = m.FindByField(CollectionUser, "email", "nobody@x.com")
	if err != nil {
		t.Fatalf("find by field (no match): %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected empty result, got %+v", docs)
	}
}

func TestMemoryStoreFindByFieldMatchesStringsOnly(t *testing.T) {
	m := NewMemoryStore()

	if _, err := m.InsertOne(CollectionBooks, Document{"quantity": 3, "name": "Dune"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Non-string values never match a string filter, mirroring the jsonb
	// text comparison of the database backend.
	docs, err := m.FindByField(CollectionBooks, "quantity", "3")
	if err != nil {
		t.Fatalf("find by field: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("numeric value matched string filter: %+v", docs)
	}

	// Absent fields never match either.
	docs, err = m.FindByField(CollectionBooks, "email", "")
	if err != nil {
		t.Fatalf("find by field: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("missing field matched empty filter: %+v", docs)
	}
}

func TestMemoryStorePartialUpdate(t *testing.T) {
	m := NewMemoryStore()

	res, err := m.InsertOne(CollectionBooks, Document{"name": "Dune", "category": "SciFi", "quantity": 3})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	upd, err := m.UpdateByID(CollectionBooks, res.InsertedID, Document{"quantity": 2})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.MatchedCount != 1 || upd.ModifiedCount != 1 {
		t.Fatalf("unexpected update result: %+v", upd)
	}

	doc, _, err := m.FindByID(CollectionBooks, res.InsertedID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if doc["quantity"] != 2 {
		t.Fatalf("quantity = %v, want 2", doc["quantity"])
	}
	if doc["name"] != "Dune" || doc["category"] != "SciFi" {
		t.Fatalf("untouched fields changed: %+v", doc)
	}
}

func TestMemoryStoreUpdateMissingDocument(t *testing.T) {
	m := NewMemoryStore()

	upd, err := m.UpdateByID(CollectionBooks, "aaaaaaaaaaaaaaaaaaaaaaaa", Document{"quantity": 1})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.MatchedCount != 0 || upd.ModifiedCount != 0 {
		t.Fatalf("expected zero counts, got %+v", upd)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	m := NewMemoryStore()

	res, err := m.InsertOne(CollectionUser, Document{"email": "a@x.com"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	del, err := m.DeleteByID(CollectionUser, res.InsertedID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if del.DeletedCount != 1 {
		t.Fatalf("deleted = %d, want 1", del.DeletedCount)
	}

	docs, err := m.FindAll(CollectionUser)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected empty collection, got %+v", docs)
	}

	del, err = m.DeleteByID(CollectionUser, res.InsertedID)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if del.DeletedCount != 0 {
		t.Fatalf("second delete count = %d, want 0", del.DeletedCount)
	}
}

func TestMemoryStoreRejectsMalformedID(t *testing.T) {
	m := NewMemoryStore()

	if _, _, err := m.FindByID(CollectionBooks, "not-hex"); !errors.Is(err, ErrInvalidDocumentID) {
		t.Fatalf("find: expected ErrInvalidDocumentID, got %v", err)
	}
	if _, err := m.UpdateByID(CollectionBooks, "123", Document{"quantity": 1}); !errors.Is(err, ErrInvalidDocumentID) {
		t.Fatalf("update: expected ErrInvalidDocumentID, got %v", err)
	}
	if _, err := m.DeleteByID(CollectionBooks, "zzzzzzzzzzzzzzzzzzzzzzzz"); !errors.Is(err, ErrInvalidDocumentID) {
		t.Fatalf("delete: expected ErrInvalidDocumentID, got %v", err)
	}
}

func TestMemoryStoreReadsDoNotAlias(t *testing.T) {
	m := NewMemoryStore()

	res, err := m.InsertOne(CollectionBooks, Document{"name": "Dune"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	doc, _, err := m.FindByID(CollectionBooks, res.InsertedID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	doc["name"] = "mutated"

	again, _, err := m.FindByID(CollectionBooks, res.InsertedID)
	if err != nil {
		t.Fatalf("find again: %v", err)
	}
	if again["name"] != "Dune" {
		t.Fatalf("stored document mutated through read copy: %+v", again)
	}
}
