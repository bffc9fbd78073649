// Package testserver is a mock HTTP API for exercising flows: token
// authentication, resources that return identifiers to extract, endpoints
// that fail on demand for retry rules, and latency knobs.
package testserver

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	mrand "math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"flowload/internal/log"
)

// Server is the mock API. It is safe for concurrent use.
type Server struct {
	mux       *http.ServeMux
	requestID atomic.Int64

	mu     sync.Mutex
	tokens map[string]string // token -> username
	items  map[string]map[string]any
	flaky  map[string]int
}

// NewServer creates a server with every endpoint registered.
func NewServer() *Server {
	s := &Server{
		mux:    http.NewServeMux(),
		tokens: make(map[string]string),
		items:  make(map[string]map[string]any),
		flaky:  make(map[string]int),
	}
	s.registerHandlers()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/status/", s.handleStatus)
	s.mux.HandleFunc("/delay/", s.handleDelay)
	s.mux.HandleFunc("/echo", s.handleEcho)
	s.mux.HandleFunc("/fail-rate", s.handleFailRate)
	s.mux.HandleFunc("/flaky/", s.handleFlaky)
	s.mux.HandleFunc("/headers", s.handleHeaders)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.HandleFunc("/auth/logout", s.requireAuth(s.handleLogout))
	s.mux.HandleFunc("/users/me", s.requireAuth(s.handleMe))
	s.mux.HandleFunc("/items", s.requireAuth(s.handleItems))
	s.mux.HandleFunc("/items/", s.requireAuth(s.handleItem))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.L().Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleStatus returns the status code named in the path, e.g. /status/404.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/status/"))
	if err != nil || code < 100 || code > 599 {
		writeError(w, http.StatusBadRequest, "invalid status code")
		return
	}
	writeJSON(w, code, map[string]any{"status": code, "text": http.StatusText(code)})
}

// handleDelay waits the number of milliseconds named in the path.
func (s *Server) handleDelay(w http.ResponseWriter, r *http.Request) {
	ms, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/delay/"))
	if err != nil || ms < 0 {
		writeError(w, http.StatusBadRequest, "invalid delay")
		return
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
	case <-r.Context().Done():
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"delayed_ms": ms})
}

// handleEcho reflects the method, query, headers and body of the request.
// A JSON body is echoed back as JSON under "json".
func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read body")
		return
	}

	query := make(map[string]string)
	for k, v := range r.URL.Query() {
		query[k] = v[0]
	}
	resp := map[string]any{
		"method":       r.Method,
		"query":        query,
		"content_type": r.Header.Get("Content-Type"),
		"body":         string(body),
	}
	var parsed any
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil {
		resp["json"] = parsed
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleFailRate fails the given percentage of requests, e.g.
// /fail-rate?rate=10.
func (s *Server) handleFailRate(w http.ResponseWriter, r *http.Request) {
	rate, err := strconv.Atoi(r.URL.Query().Get("rate"))
	if err != nil || rate < 0 || rate > 100 {
		rate = 0
	}
	if mrand.Intn(100) < rate {
		writeError(w, http.StatusInternalServerError, "simulated failure")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": "success"})
}

// handleFlaky fails the first n calls for a key with 503, then succeeds.
// /flaky/{key}?fail=n, n defaults to 1.
func (s *Server) handleFlaky(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/flaky/")
	fail, err := strconv.Atoi(r.URL.Query().Get("fail"))
	if err != nil {
		fail = 1
	}

	s.mu.Lock()
	calls := s.flaky[key]
	s.flaky[key] = calls + 1
	s.mu.Unlock()

	if calls < fail {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "attempt": calls + 1})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "attempt": calls + 1})
}

func (s *Server) handleHeaders(w http.ResponseWriter, r *http.Request) {
	headers := make(map[string]string)
	for name, values := range r.Header {
		headers[name] = values[0]
	}
	writeJSON(w, http.StatusOK, map[string]any{"headers": headers})
}

// handleLogin accepts {"username": ..., "password": ...} and issues a
// bearer token. Any non-empty password is accepted.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Username == "" || creds.Password == "" {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token := newToken()
	s.mu.Lock()
	s.tokens[token] = creds.Username
	s.mu.Unlock()

	w.Header().Set("X-Request-Id", strconv.FormatInt(s.requestID.Add(1), 10))
	writeJSON(w, http.StatusOK, map[string]any{
		"auth": map[string]any{"token": token, "expires_in": 3600},
		"user": map[string]any{"name": creds.Username},
	})
}

func newToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// requireAuth rejects requests without a known bearer token.
func (s *Server) requireAuth(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		user, known := s.tokens[token]
		s.mu.Unlock()
		if !ok || !known {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, _ string) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user string) {
	writeJSON(w, http.StatusOK, map[string]any{"name": user, "authenticated": true})
}

// handleItems lists (GET) or creates (POST) items of the current user.
func (s *Server) handleItems(w http.ResponseWriter, r *http.Request, user string) {
	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		list := make([]map[string]any, 0)
		for _, item := range s.items {
			if item["owner"] == user {
				list = append(list, item)
			}
		}
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"items": list, "count": len(list)})
	case http.MethodPost:
		var item map[string]any
		if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
		id := fmt.Sprintf("item-%d", s.requestID.Add(1))
		item["id"] = id
		item["owner"] = user
		s.mu.Lock()
		s.items[id] = item
		s.mu.Unlock()
		w.Header().Set("Location", "/items/"+id)
		writeJSON(w, http.StatusCreated, item)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleItem reads (GET) or deletes (DELETE) one item.
func (s *Server) handleItem(w http.ResponseWriter, r *http.Request, user string) {
	id := strings.TrimPrefix(r.URL.Path, "/items/")

	s.mu.Lock()
	item, ok := s.items[id]
	if ok && item["owner"] != user {
		ok = false
	}
	if ok && r.Method == http.MethodDelete {
		delete(s.items, id)
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, item)
	case http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
