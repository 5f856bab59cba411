package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/xdial/xdial/internal/api/middleware"
	"github.com/xdial/xdial/internal/database"
	"github.com/xdial/xdial/internal/session"
	"github.com/xdial/xdial/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if s.cfg.AdminPassword == "" {
		writeError(w, http.StatusForbidden, "operator login is not configured")
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.cfg.AdminUser)) == 1
	passOK := checkPassword(s.cfg.AdminPassword, req.Password)
	if !userOK || !passOK {
		s.logger.Warn("failed operator login", "username", req.Username, "remote_addr", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := middleware.GenerateOperatorToken(s.jwtSecret, req.Username)
	if err != nil {
		s.logger.Error("generating operator token", "error", err)
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

// checkPassword accepts either a bcrypt hash or a plaintext value in the
// configured admin password, so deployments can keep only the hash on disk.
func checkPassword(configured, supplied string) bool {
	if strings.HasPrefix(configured, "$2a$") || strings.HasPrefix(configured, "$2b$") || strings.HasPrefix(configured, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(supplied)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(supplied)) == 1
}

type reconRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
}

type reconResponse struct {
	SessionID      string    `json:"session_id"`
	Status         string    `json:"status"`
	Query          string    `json:"query"`
	ResolvedNumber string    `json:"resolved_number"`
	CreatedAt      time.Time `json:"created_at"`
}

// handleRecon creates a crawl session for a query, resolving the destination
// number from the known-targets table. No call is placed yet.
func (s *Server) handleRecon(w http.ResponseWriter, r *http.Request) {
	var req reconRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	number, err := s.targets.Resolve(r.Context(), req.Query)
	if err != nil {
		if errors.Is(err, database.ErrNoTarget) {
			writeError(w, http.StatusUnprocessableEntity, "no known target matches the query")
			return
		}
		s.logger.Error("resolving target", "error", err)
		writeError(w, http.StatusInternalServerError, "target lookup failed")
		return
	}

	sess := session.New(uuid.NewString(), req.UserID, req.Query, number)
	if err := s.store.Put(r.Context(), sess); err != nil {
		s.logger.Error("creating session", "error", err)
		writeError(w, http.StatusInternalServerError, "could not persist session")
		return
	}

	s.logger.Info("session created", "session_id", sess.ID, "query", req.Query, "resolved_number", number)
	writeJSON(w, http.StatusCreated, reconResponse{
		SessionID:      sess.ID,
		Status:         string(sess.Status),
		Query:          sess.Query,
		ResolvedNumber: sess.ResolvedNumber,
		CreatedAt:      sess.CreatedAt,
	})
}

type crawlRequest struct {
	SessionID   string `json:"session_id"`
	PhoneNumber string `json:"phone_number"`
}

// handleCrawl starts (or restarts) the crawl for an existing session by
// placing the first discovery leg.
func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	unlock := s.store.Lock(req.SessionID)
	defer unlock()

	sess, err := s.store.Get(r.Context(), req.SessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("loading session", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load session")
		return
	}

	if req.PhoneNumber != "" {
		sess.ResolvedNumber = req.PhoneNumber
	}
	if sess.ResolvedNumber == "" {
		writeError(w, http.StatusUnprocessableEntity, "session has no destination number")
		return
	}

	if err := s.crawler.StartCrawl(r.Context(), sess); err != nil {
		s.logger.Error("starting crawl", "session_id", sess.ID, "error", err)
		writeError(w, http.StatusBadGateway, "could not place the discovery call")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"session_id": sess.ID,
		"status":     string(sess.Status),
		"call_sid":   sess.CallSID,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	unlock := s.store.Lock(id)
	defer unlock()

	sess, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("loading session", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load session")
		return
	}

	// The cached record is shared with the webhook handlers, which mutate it
	// under the same lock. Marshal while still holding it.
	body, err := json.Marshal(sess)
	if err != nil {
		s.logger.Error("encoding session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not encode session")
		return
	}
	writeJSON(w, http.StatusOK, json.RawMessage(body))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	unlock := s.store.Lock(id)
	defer unlock()

	if err := s.store.Delete(r.Context(), id); err != nil {
		s.logger.Error("deleting session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not delete session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "deleted"})
}

type setPathRequest struct {
	Path string `json:"path"`
}

// handleSetPath manually repositions a session's current tree path.
func (s *Server) handleSetPath(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req setPathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" || !strings.HasPrefix(req.Path, "root") {
		writeError(w, http.StatusBadRequest, "path must be a root-anchored dotted path")
		return
	}

	unlock := s.store.Lock(id)
	defer unlock()

	sess, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("loading session", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load session")
		return
	}

	sess.Path = req.Path
	if err := s.store.Put(r.Context(), sess); err != nil {
		s.logger.Error("saving session", "error", err)
		writeError(w, http.StatusInternalServerError, "could not persist session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id, "path": req.Path})
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.targets.List(r.Context())
	if err != nil {
		s.logger.Error("listing targets", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list targets")
		return
	}
	writeJSON(w, http.StatusOK, targets)
}

type createTargetRequest struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

func (s *Server) handleCreateTarget(w http.ResponseWriter, r *http.Request) {
	var req createTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Number = strings.TrimSpace(req.Number)
	if req.Name == "" || req.Number == "" {
		writeError(w, http.StatusBadRequest, "name and number are required")
		return
	}

	target := database.Target{Name: req.Name, Number: req.Number}
	if err := s.targets.Create(r.Context(), &target); err != nil {
		s.logger.Error("creating target", "error", err)
		writeError(w, http.StatusInternalServerError, "could not create target")
		return
	}
	writeJSON(w, http.StatusCreated, target)
}
