package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"bookbeacon/internal/app"
	"bookbeacon/internal/ratelimit"
	"bookbeacon/internal/store"
	"bookbeacon/internal/util"
)

const sessionCookieName = "token"

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                     *app.App
	AllowedOrigins          []string
	RedisAddr               string
	RedisPassword           string
	TokenRateLimitPerMinute int
}

// Server exposes the HTTP endpoints of the lending catalog.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	allowedOrigins []string
	tokenLimiter   *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	tokenLimit := cfg.TokenRateLimitPerMinute
	if tokenLimit <= 0 {
		tokenLimit = 20
	}
	var limiter *ratelimit.FixedWindowLimiter
	var err error
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "bookbeacon:ratelimit:token", tokenLimit, time.Minute)
	} else {
		limiter, err = ratelimit.NewMemoryFixedWindowLimiter(tokenLimit, time.Minute)
	}
	if err != nil {
		return nil, fmt.Errorf("init token limiter: %w", err)
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		allowedOrigins: cfg.AllowedOrigins,
		tokenLimiter:   limiter,
	}
	s.routes()
	return s, nil
}

// Close releases server-owned resources, currently the token limiter's
// Redis connection.
func (s *Server) Close() error {
	return s.tokenLimiter.Close()
}

// Router returns the configured handler wrapped in the middleware stack.
func (s *Server) Router() http.Handler {
	handler := util.WithRequestLog(s.mux)
	handler = util.WithRequestID(handler)
	handler = util.WithCORS(s.allowedOrigins, handler)
	return util.WithSecurityHeaders(handler)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleRoot)

	// auth
	s.mux.HandleFunc("/jwt", s.handleIssueToken)
	s.mux.HandleFunc("/logout", s.handleLogout)

	// catalog
	s.mux.HandleFunc("/reviews", s.handleReviews)
	s.mux.HandleFunc("/category", s.handleCategories)
	s.mux.HandleFunc("/books", s.handleBooks)
	s.mux.HandleFunc("/books/", s.handleBookByID)
	s.mux.HandleFunc("/book/", s.handleBookDetails)

	// borrow records ("/borrow" is a legacy alias of "/borrowed")
	s.mux.Handle("/borrowed", s.authenticated(s.handleBorrows))
	s.mux.Handle("/borrowed/", s.authenticated(s.handleBorrowByID))
	s.mux.Handle("/borrow", s.authenticated(s.handleListBorrowsOnly))
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "BookBeacon is running")
}

// auth wrappers
type claimsHandler func(http.ResponseWriter, *http.Request, map[string]any)

// authenticated gates a route on a valid session cookie. Verified claims are
// handed to the wrapped handler.
func (s *Server) authenticated(next claimsHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			s.audit(r, "auth.verify", "fail", "reason", "missing_cookie")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		claims, err := s.app.VerifyToken(cookie.Value)
		if err != nil {
			s.audit(r, "auth.verify", "fail", "reason", "invalid_or_revoked_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		s.audit(r, "auth.verify", "success", "email", subjectEmail(claims))
		next(w, r, claims)
	})
}

// auth handlers
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, "too many token requests") {
		s.audit(r, "auth.issue", "rate_limited")
		return
	}
	var claims map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&claims); err != nil {
		s.audit(r, "auth.issue", "fail", "reason", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	token, err := s.app.IssueToken(claims)
	if err != nil {
		s.audit(r, "auth.issue", "fail", "reason", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.audit(r, "auth.issue", "success", "email", subjectEmail(claims))
	http.SetCookie(w, s.sessionCookie(token, int(s.app.SessionTTL().Seconds())))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		if err := s.app.RevokeToken(cookie.Value); err != nil {
			util.LoggerFromContext(r.Context()).Warn("revoke token", "err", err)
		}
	}
	s.audit(r, "auth.logout", "success")
	http.SetCookie(w, s.sessionCookie("", -1))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// catalog handlers
func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	docs, err := s.app.ListReviews()
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	docs, err := s.app.ListCategories()
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// /books
func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		docs, err := s.app.ListBooks()
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, docs)
	case http.MethodPost:
		doc, ok := decodeDocument(w, r)
		if !ok {
			return
		}
		res, err := s.app.CreateBook(doc)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	default:
		methodNotAllowed(w)
	}
}

// /books/{id}: fetch, or quantity-only partial update.
func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "/books/")
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		doc, found, err := s.app.GetBook(id)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		if !found {
			writeJSON(w, http.StatusOK, nil)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case http.MethodPatch:
		body, ok := decodeDocument(w, r)
		if !ok {
			return
		}
		set := pickFields(body, "quantity")
		if len(set) == 0 {
			writeError(w, http.StatusBadRequest, "quantity is required")
			return
		}
		res, err := s.app.UpdateBook(id, set)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	default:
		methodNotAllowed(w)
	}
}

// /book/{id}: descriptive-fields partial update, distinct from the
// quantity-only route.
func (s *Server) handleBookDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "/book/")
	if !ok {
		return
	}
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}
	body, ok := decodeDocument(w, r)
	if !ok {
		return
	}
	set := pickFields(body, "image", "name", "category", "authorName", "rating")
	if len(set) == 0 {
		writeError(w, http.StatusBadRequest, "no updatable fields in body")
		return
	}
	res, err := s.app.UpdateBook(id, set)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// borrow handlers
func (s *Server) handleBorrows(w http.ResponseWriter, r *http.Request, claims map[string]any) {
	switch r.Method {
	case http.MethodGet:
		s.listBorrows(w, r, claims)
	case http.MethodPost:
		doc, ok := decodeDocument(w, r)
		if !ok {
			return
		}
		// The record is always owned by the verified subject.
		doc["email"] = subjectEmail(claims)
		res, err := s.app.CreateBorrow(doc)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleListBorrowsOnly(w http.ResponseWriter, r *http.Request, claims map[string]any) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	s.listBorrows(w, r, claims)
}

func (s *Server) listBorrows(w http.ResponseWriter, r *http.Request, claims map[string]any) {
	subject := subjectEmail(claims)
	email := r.URL.Query().Get("email")
	// A session without an email claim owns no records; "" must never
	// widen the filter.
	if subject == "" || email != subject {
		s.audit(r, "borrow.list", "fail", "reason", "email_mismatch")
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	docs, err := s.app.ListBorrowsByEmail(email)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// /borrowed/{id}
func (s *Server) handleBorrowByID(w http.ResponseWriter, r *http.Request, claims map[string]any) {
	id, ok := pathID(w, r, "/borrowed/")
	if !ok {
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	rec, found, err := s.app.GetBorrow(id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if found {
		if owner, _ := rec["email"].(string); owner != subjectEmail(claims) {
			s.audit(r, "borrow.delete", "fail", "reason", "not_owner")
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
	}
	res, err := s.app.DeleteBorrow(id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.audit(r, "borrow.delete", "success", "id", id)
	writeJSON(w, http.StatusOK, res)
}

// helpers

func (s *Server) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	}
}

func subjectEmail(claims map[string]any) string {
	email, _ := claims["email"].(string)
	return email
}

func pathID(w http.ResponseWriter, r *http.Request, prefix string) (string, bool) {
	id := strings.TrimPrefix(r.URL.Path, prefix)
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return "", false
	}
	return id, true
}

func decodeDocument(w http.ResponseWriter, r *http.Request) (store.Document, bool) {
	var doc store.Document
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if doc == nil {
		doc = store.Document{}
	}
	return doc, true
}

// pickFields keeps only the allow-listed keys of a request body. Values pass
// through untouched; storage stays schema-flexible.
func pickFields(doc store.Document, fields ...string) store.Document {
	out := store.Document{}
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError hides storage details behind a generic response. Malformed
// identifiers surface the same way: the id format is a storage concern.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrInvalidDocumentID) {
		util.LoggerFromContext(r.Context()).Warn("storage failure", "err", err)
	} else {
		util.LoggerFromContext(r.Context()).Error("storage failure", "err", err)
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, msg string) bool {
	key := r.URL.Path + "|" + clientIP(r)
	if s.tokenLimiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", clientIP(r),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func clientIP(r *http.Request) string {
	if xfwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xfwd != "" {
		parts := strings.Split(xfwd, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
