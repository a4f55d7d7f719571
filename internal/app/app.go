package app

import (
	"errors"
	"fmt"
	"time"

	"bookbeacon/internal/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL   string
	JWTSecret     string
	SessionTTL    time.Duration
	RedisAddr     string
	RedisPassword string

	// Injected for tests; wired from DatabaseURL/RedisAddr when nil.
	Store    store.Store
	Sessions store.SessionStore
}

// App wires the document store and the session token service. It owns the
// database handle: callers must Close it on shutdown.
type App struct {
	store      store.Store
	sessions   store.SessionStore
	sessionTTL time.Duration
	revoker    store.TokenRevoker
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = time.Hour
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, errors.New("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	var revoker store.TokenRevoker
	sessions := cfg.Sessions
	if sessions == nil {
		if cfg.JWTSecret == "" {
			return nil, errors.New("jwt secret required")
		}
		if cfg.RedisAddr != "" {
			revoker = store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
		} else {
			revoker = store.NewMemoryTokenRevoker()
		}
		sessions = store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL, revoker)
	}

	return &App{
		store:      dataStore,
		sessions:   sessions,
		sessionTTL: cfg.SessionTTL,
		revoker:    revoker,
	}, nil
}

// SessionTTL is the lifetime of issued tokens and their cookie.
func (a *App) SessionTTL() time.Duration {
	return a.sessionTTL
}

// IssueToken signs the supplied claims into a session token.
func (a *App) IssueToken(claims map[string]any) (string, error) {
	return a.sessions.Issue(claims)
}

// VerifyToken validates a session token and returns its claims.
func (a *App) VerifyToken(token string) (map[string]any, error) {
	return a.sessions.Verify(token)
}

// RevokeToken denylists a token for the rest of its lifetime.
func (a *App) RevokeToken(token string) error {
	return a.sessions.Revoke(token)
}

// ListReviews returns all review documents.
func (a *App) ListReviews() ([]store.Document, error) {
	return a.store.FindAll(store.CollectionReviews)
}

// ListCategories returns all category documents.
func (a *App) ListCategories() ([]store.Document, error) {
	return a.store.FindAll(store.CollectionCategory)
}

// ListBooks returns all book documents.
func (a *App) ListBooks() ([]store.Document, error) {
	return a.store.FindAll(store.CollectionBooks)
}

// CreateBook inserts a book document as supplied by the caller.
func (a *App) CreateBook(doc store.Document) (store.InsertResult, error) {
	return a.store.InsertOne(store.CollectionBooks, doc)
}

// GetBook retrieves one book by identifier.
func (a *App) GetBook(id string) (store.Document, bool, error) {
	return a.store.FindByID(store.CollectionBooks, id)
}

// UpdateBook merges the supplied fields into a book document. Callers
// restrict the field set per route.
func (a *App) UpdateBook(id string, set store.Document) (store.UpdateResult, error) {
	return a.store.UpdateByID(store.CollectionBooks, id, set)
}

// ListBorrowsByEmail returns borrow records whose email field equals the
// supplied value.
func (a *App) ListBorrowsByEmail(email string) ([]store.Document, error) {
	return a.store.FindByField(store.CollectionUser, "email", email)
}

// GetBorrow retrieves one borrow record by identifier.
func (a *App) GetBorrow(id string) (store.Document, bool, error) {
	return a.store.FindByID(store.CollectionUser, id)
}

// CreateBorrow inserts a borrow record.
func (a *App) CreateBorrow(doc store.Document) (store.InsertResult, error) {
	return a.store.InsertOne(store.CollectionUser, doc)
}

// DeleteBorrow removes a borrow record by identifier.
func (a *App) DeleteBorrow(id string) (store.DeleteResult, error) {
	return a.store.DeleteByID(store.CollectionUser, id)
}

// Close tears down the database handle and the revoker connection.
func (a *App) Close() error {
	err := a.store.Close()
	if closer, ok := a.revoker.(interface{ Close() error }); ok {
		if cerr := closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
