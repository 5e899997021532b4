package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/joescharf/trackflow/internal/analytics"
	"github.com/joescharf/trackflow/internal/board"
	"github.com/joescharf/trackflow/internal/llm"
	"github.com/joescharf/trackflow/internal/models"
	"github.com/joescharf/trackflow/internal/store"
)

// Triager suggests a description, priority and labels for an issue.
type Triager interface {
	TriageIssue(ctx context.Context, issue *models.Issue, labels []*models.Label) (*llm.Triage, error)
}

// Server provides the REST API handlers.
type Server struct {
	store      store.Store
	triager    Triager
	aggregator *analytics.Aggregator
	logger     *slog.Logger
}

// NewServer creates a new API server.
// The triager may be nil if no API key is configured.
func NewServer(s store.Store, triager Triager, agg *analytics.Aggregator, logger *slog.Logger) *Server {
	if agg == nil {
		agg = analytics.NewAggregator(analytics.DefaultRecentDays)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		store:      s,
		triager:    triager,
		aggregator: agg,
		logger:     logger,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/issues", s.listIssues)
	mux.HandleFunc("POST /api/v1/issues", s.createIssue)
	mux.HandleFunc("POST /api/v1/issues/bulk-update", s.bulkUpdateIssues)
	mux.HandleFunc("POST /api/v1/issues/bulk-delete", s.bulkDeleteIssues)
	mux.HandleFunc("GET /api/v1/issues/{id}", s.getIssue)
	mux.HandleFunc("PUT /api/v1/issues/{id}", s.updateIssue)
	mux.HandleFunc("PATCH /api/v1/issues/{id}", s.updateIssue)
	mux.HandleFunc("DELETE /api/v1/issues/{id}", s.deleteIssue)
	mux.HandleFunc("POST /api/v1/issues/{id}/triage", s.triageIssue)

	mux.HandleFunc("GET /api/v1/users", s.listUsers)
	mux.HandleFunc("POST /api/v1/users", s.createUser)
	mux.HandleFunc("GET /api/v1/users/{id}", s.getUser)
	mux.HandleFunc("PUT /api/v1/users/{id}", s.updateUser)
	mux.HandleFunc("PATCH /api/v1/users/{id}", s.updateUser)
	mux.HandleFunc("DELETE /api/v1/users/{id}", s.deleteUser)

	mux.HandleFunc("GET /api/v1/labels", s.listLabels)
	mux.HandleFunc("POST /api/v1/labels", s.createLabel)
	mux.HandleFunc("GET /api/v1/labels/{id}", s.getLabel)
	mux.HandleFunc("PUT /api/v1/labels/{id}", s.updateLabel)
	mux.HandleFunc("PATCH /api/v1/labels/{id}", s.updateLabel)
	mux.HandleFunc("DELETE /api/v1/labels/{id}", s.deleteLabel)

	mux.HandleFunc("GET /api/v1/board", s.getBoard)
	mux.HandleFunc("GET /api/v1/analytics", s.getAnalytics)

	return chain(mux, s.recoverPanic, s.logRequests, corsMiddleware)
}

type middleware func(http.Handler) http.Handler

// chain applies middleware in declaration order.
func chain(h http.Handler, mw ...middleware) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
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

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps the error taxonomy onto HTTP status codes.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case models.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case models.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("store error", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func pathInt64(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid id: %s", raw))
		return 0, false
	}
	return id, true
}

// queryFromRequest reads filter and sort parameters. Sort and direction
// default to most recently updated first.
func queryFromRequest(r *http.Request) (board.Query, error) {
	q := board.DefaultQuery()
	v := r.URL.Query()

	q.Status = models.IssueStatus(v.Get("status"))
	q.Priority = models.IssuePriority(v.Get("priority"))
	q.Assignee = v.Get("assignee")
	q.Search = v.Get("search")
	if q.Search == "" {
		q.Search = v.Get("q")
	}
	if err := q.Criteria.Validate(); err != nil {
		return q, err
	}

	if raw := v.Get("sort"); raw != "" {
		key, err := board.ParseSortKey(raw)
		if err != nil {
			return q, err
		}
		q.Sort = key
	}
	if raw := v.Get("direction"); raw != "" {
		dir, err := board.ParseDirection(raw)
		if err != nil {
			return q, err
		}
		q.Direction = dir
	}
	return q, nil
}

// --- Issues ---

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	q, err := queryFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	issues, err := s.store.ListIssues(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board.Apply(issues, q))
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := s.store.GetIssue(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	var issue models.Issue
	if !decodeJSON(w, r, &issue) {
		return
	}
	// IDs and timestamps are assigned by the store
	issue.ID = ""
	issue.CreatedAt = time.Time{}
	issue.UpdatedAt = time.Time{}

	created, err := s.store.CreateIssue(r.Context(), &issue)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) updateIssue(w http.ResponseWriter, r *http.Request) {
	var patch models.IssuePatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	updated, err := s.store.UpdateIssue(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteIssue(r.Context(), r.PathValue("id")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) bulkUpdateIssues(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs    []string           `json:"ids"`
		Status models.IssueStatus `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status: "+string(req.Status))
		return
	}

	updated := make([]*models.Issue, 0, len(req.IDs))
	for _, id := range req.IDs {
		issue, err := s.store.UpdateIssue(r.Context(), id, models.IssuePatch{Status: &req.Status})
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		updated = append(updated, issue)
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": len(updated), "issues": updated})
}

func (s *Server) bulkDeleteIssues(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}
	deleted := 0
	for _, id := range req.IDs {
		if err := s.store.DeleteIssue(r.Context(), id); err != nil {
			s.writeStoreError(w, err)
			return
		}
		deleted++
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (s *Server) triageIssue(w http.ResponseWriter, r *http.Request) {
	if s.triager == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM not configured (set ANTHROPIC_API_KEY)")
		return
	}

	id := r.PathValue("id")
	issue, err := s.store.GetIssue(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	labels, err := s.store.ListLabels(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	triage, err := s.triager.TriageIssue(r.Context(), issue, labels)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("LLM triage failed: %v", err))
		return
	}

	if patch := triage.Apply(labels); !patch.Empty() {
		issue, err = s.store.UpdateIssue(r.Context(), id, patch)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"issue": issue, "triage": triage})
}

// --- Users ---

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if users == nil {
		users = []*models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r)
	if !ok {
		return
	}
	user, err := s.store.GetUser(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var user models.User
	if !decodeJSON(w, r, &user) {
		return
	}
	user.ID = 0
	created, err := s.store.CreateUser(r.Context(), &user)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r)
	if !ok {
		return
	}
	var patch models.UserPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	updated, err := s.store.UpdateUser(r.Context(), id, patch)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteUser(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// --- Labels ---

func (s *Server) listLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := s.store.ListLabels(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	out := []*models.Label{}
	search := r.URL.Query().Get("search")
	for _, l := range labels {
		if search == "" || l.Matches(search) {
			out = append(out, l)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getLabel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r)
	if !ok {
		return
	}
	label, err := s.store.GetLabel(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, label)
}

func (s *Server) createLabel(w http.ResponseWriter, r *http.Request) {
	var label models.Label
	if !decodeJSON(w, r, &label) {
		return
	}
	label.ID = 0
	created, err := s.store.CreateLabel(r.Context(), &label)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) updateLabel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r)
	if !ok {
		return
	}
	var patch models.LabelPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	updated, err := s.store.UpdateLabel(r.Context(), id, patch)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteLabel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r)
	if !ok {
		return
	}
	if err := s.store.DeleteLabel(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// --- Board & analytics ---

func (s *Server) getBoard(w http.ResponseWriter, r *http.Request) {
	q, err := queryFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	issues, err := s.store.ListIssues(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   q,
		"columns": board.Columns(board.Apply(issues, q)),
	})
}

func (s *Server) getAnalytics(w http.ResponseWriter, r *http.Request) {
	agg := s.aggregator
	if raw := r.URL.Query().Get("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			writeError(w, http.StatusBadRequest, "invalid days: "+raw)
			return
		}
		agg = analytics.NewAggregator(days)
	}

	issues, err := s.store.ListIssues(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg.Compute(issues, users))
}
