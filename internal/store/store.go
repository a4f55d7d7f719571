package store

import "errors"

// Collection names backing the catalog. BorrowRecords live in the legacy
// "user" collection.
const (
	CollectionCategory = "category"
	CollectionBooks    = "books"
	CollectionUser     = "user"
	CollectionReviews  = "reviews"
)

// Document is a schema-flexible record stored in a named collection. The
// generated identifier is surfaced to callers under the "_id" key.
type Document map[string]any

// ErrInvalidDocumentID marks identifiers that are not 24 hex characters.
var ErrInvalidDocumentID = errors.New("invalid document id")

// InsertResult reports a completed insert.
type InsertResult struct {
	Acknowledged bool   `json:"acknowledged"`
	InsertedID   string `json:"insertedId"`
}

// UpdateResult reports a completed partial update.
type UpdateResult struct {
	Acknowledged  bool  `json:"acknowledged"`
	MatchedCount  int64 `json:"matchedCount"`
	ModifiedCount int64 `json:"modifiedCount"`
}

// DeleteResult reports a completed delete.
type DeleteResult struct {
	Acknowledged bool  `json:"acknowledged"`
	DeletedCount int64 `json:"deletedCount"`
}

// Store defines generic document operations over named collections.
type Store interface {
	FindAll(collection string) ([]Document, error)
	FindByField(collection, field, value string) ([]Document, error)
	FindByID(collection, id string) (Document, bool, error)
	InsertOne(collection string, doc Document) (InsertResult, error)
	UpdateByID(collection, id string, set Document) (UpdateResult, error)
	DeleteByID(collection, id string) (DeleteResult, error)
	Close() error
}

// SessionStore issues and verifies session tokens.
type SessionStore interface {
	Issue(claims map[string]any) (string, error)
	Verify(token string) (map[string]any, error)
	Revoke(token string) error
}

// ValidDocumentID reports whether id has the 24-hex-char generated format.
func ValidDocumentID(id string) bool {
	if len(id) != 24 {
		return false
	}
	for _, c := range id {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
