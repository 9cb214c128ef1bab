// Package api exposes the tracker over HTTP/JSON. It owns routing,
// actor resolution from bearer tokens, pagination defaults, and the
// mapping from tracker errors to status codes. All business rules
// live in the tracker service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/trk-project/trk/internal/auth"
	"github.com/trk-project/trk/internal/models"
	"github.com/trk-project/trk/internal/policy"
	"github.com/trk-project/trk/internal/tracker"
)

// Config carries boundary-layer settings. These are explicit
// parameters, not ambient globals.
type Config struct {
	PageSize        int // default issues per page
	UserPageSize    int
	CommentPageSize int
	MaxPageSize     int
}

// DefaultConfig mirrors the tracker's stock page sizes.
func DefaultConfig() Config {
	return Config{
		PageSize:        10,
		UserPageSize:    20,
		CommentPageSize: 5,
		MaxPageSize:     50,
	}
}

// Server provides the REST API handlers.
type Server struct {
	svc  *tracker.Service
	auth *auth.Authenticator
	cfg  Config
}

// NewServer creates a new API server.
func NewServer(svc *tracker.Service, a *auth.Authenticator, cfg Config) *Server {
	if cfg.PageSize <= 0 {
		cfg = DefaultConfig()
	}
	return &Server{svc: svc, auth: a, cfg: cfg}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/register", s.register)
	mux.HandleFunc("POST /api/v1/login", s.login)
	mux.HandleFunc("GET /api/v1/users", s.listUsers)

	mux.HandleFunc("GET /api/v1/issues", s.listIssues)
	mux.HandleFunc("POST /api/v1/issues", s.createIssue)
	mux.HandleFunc("GET /api/v1/issues/{id}", s.getIssue)
	mux.HandleFunc("PATCH /api/v1/issues/{id}", s.updateIssue)
	mux.HandleFunc("DELETE /api/v1/issues/{id}", s.deleteIssue)
	mux.HandleFunc("POST /api/v1/issues/{id}/assign", s.assignIssue)
	mux.HandleFunc("POST /api/v1/issues/{id}/status", s.changeStatus)
	mux.HandleFunc("POST /api/v1/issues/{id}/archive", s.archiveIssue)

	mux.HandleFunc("GET /api/v1/issues/{id}/comments", s.listComments)
	mux.HandleFunc("POST /api/v1/issues/{id}/comments", s.createComment)
	mux.HandleFunc("PATCH /api/v1/comments/{id}", s.updateComment)
	mux.HandleFunc("DELETE /api/v1/comments/{id}", s.deleteComment)

	return s.actorMiddleware(corsMiddleware(mux))
}

type ctxKey int

const actorKey ctxKey = 0

// actorMiddleware resolves the Authorization bearer token to an
// actor. A missing header yields the anonymous actor; a token that
// does not resolve is rejected outright.
func (s *Server) actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := policy.Actor{}
		if h := r.Header.Get("Authorization"); h != "" {
			token, ok := strings.CutPrefix(h, "Bearer ")
			if !ok {
				writeError(w, http.StatusUnauthorized, "malformed authorization header")
				return
			}
			resolved, err := s.auth.Resolve(r.Context(), token)
			if err != nil {
				if errors.Is(err, auth.ErrInvalidCredentials) {
					writeError(w, http.StatusUnauthorized, "invalid token")
					return
				}
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			actor = resolved
		}
		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFrom(r *http.Request) policy.Actor {
	if a, ok := r.Context().Value(actorKey).(policy.Actor); ok {
		return a
	}
	return policy.Actor{}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
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

// writeServiceError maps tracker errors to HTTP responses. Every
// denial surfaces its specific reason so clients can render an
// accurate response.
func writeServiceError(w http.ResponseWriter, err error) {
	if reason, ok := tracker.Denied(err); ok {
		status := http.StatusForbidden
		if reason == policy.ReasonAnonymous {
			status = http.StatusUnauthorized
		}
		writeJSON(w, status, map[string]string{
			"error":  "permission denied",
			"reason": string(reason),
		})
		return
	}
	if tracker.IsValidation(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if tracker.IsNotFound(err) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	slog.Error("internal error", "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

// --- Response shapes ---

type issueResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ReporterID  string `json:"reporter_id"`
	AssigneeID  string `json:"assignee_id,omitempty"`
	Status      string `json:"status,omitempty"`
	Priority    string `json:"priority"`
	IsArchived  bool   `json:"is_archived"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toIssueResponse(i *models.Issue) issueResponse {
	return issueResponse{
		ID:          i.ID,
		Title:       i.Title,
		Description: i.Description,
		ReporterID:  i.ReporterID,
		AssigneeID:  i.AssigneeID,
		Status:      string(i.Status),
		Priority:    string(i.Priority),
		IsArchived:  i.Archived,
		CreatedAt:   i.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   i.UpdatedAt.Format(time.RFC3339),
	}
}

type commentResponse struct {
	ID        string `json:"id"`
	IssueID   string `json:"issue_id"`
	AuthorID  string `json:"author_id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toCommentResponse(c *models.Comment) commentResponse {
	return commentResponse{
		ID:        c.ID,
		IssueID:   c.IssueID,
		AuthorID:  c.AuthorID,
		Body:      c.Body,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
		UpdatedAt: c.UpdatedAt.Format(time.RFC3339),
	}
}

type userResponse struct {
	ID          string `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
}

func toUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Handle: u.Handle, DisplayName: u.DisplayName}
}

// --- Pagination ---

func (s *Server) pageParams(r *http.Request, def int) (limit, offset int) {
	limit = def
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, s.cfg.MaxPageSize)
		}
	}
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 1 {
			offset = (n - 1) * limit
		}
	}
	return limit, offset
}

// --- Auth ---

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Handle      string `json:"handle"`
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
		Password    string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	u, err := s.svc.RegisterUser(r.Context(), tracker.RegisterParams{
		Handle:      req.Handle,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Password:    req.Password,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "user registered successfully",
		"handle":  u.Handle,
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Handle   string `json:"handle"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	token, err := s.auth.Login(r.Context(), req.Handle, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := s.pageParams(r, s.cfg.UserPageSize)
	users, err := s.svc.ListUsers(r.Context(), actorFrom(r), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(users, func(u *models.User, _ int) userResponse {
		return toUserResponse(u)
	}))
}

// --- Issues ---

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := s.pageParams(r, s.cfg.PageSize)

	filter := tracker.IssueFilter{
		Status:     q.Get("status"),
		Priority:   q.Get("priority"),
		AssigneeID: q.Get("assignee"),
		ReporterID: q.Get("reporter"),
		Search:     q.Get("search"),
		OrderBy:    q.Get("order_by"),
		Limit:      limit,
		Offset:     offset,
	}
	if v := q.Get("archived"); v != "" {
		archived := v == "true" || v == "1"
		filter.Archived = &archived
	}

	issues, err := s.svc.ListIssues(r.Context(), actorFrom(r), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(issues, func(i *models.Issue, _ int) issueResponse {
		return toIssueResponse(i)
	}))
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Priority    string `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	issue, err := s.svc.CreateIssue(r.Context(), actorFrom(r), tracker.CreateIssueParams{
		Title:       req.Title,
		Description: req.Description,
		Priority:    models.IssuePriority(req.Priority),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toIssueResponse(issue))
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := s.svc.GetIssue(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIssueResponse(issue))
}

func (s *Server) updateIssue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Priority    *string `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	patch := tracker.IssuePatch{
		Title:       req.Title,
		Description: req.Description,
	}
	if req.Priority != nil {
		p := models.IssuePriority(*req.Priority)
		patch.Priority = &p
	}

	issue, err := s.svc.UpdateIssue(r.Context(), actorFrom(r), r.PathValue("id"), patch)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIssueResponse(issue))
}

func (s *Server) deleteIssue(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteIssue(r.Context(), actorFrom(r), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) assignIssue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AssigneeID *string `json:"assignee_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	assigneeID := ""
	if req.AssigneeID != nil {
		assigneeID = *req.AssigneeID
	}

	issue, err := s.svc.SetAssignee(r.Context(), actorFrom(r), r.PathValue("id"), assigneeID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIssueResponse(issue))
}

func (s *Server) changeStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	issue, err := s.svc.SetStatus(r.Context(), actorFrom(r), r.PathValue("id"), models.IssueStatus(req.Status))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIssueResponse(issue))
}

func (s *Server) archiveIssue(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Archived *bool `json:"archived"`
	}{}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	// Bare POST archives; {"archived": false} unarchives.
	archived := true
	if req.Archived != nil {
		archived = *req.Archived
	}

	issue, err := s.svc.SetArchived(r.Context(), actorFrom(r), r.PathValue("id"), archived)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIssueResponse(issue))
}

// --- Comments ---

func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	limit, offset := s.pageParams(r, s.cfg.CommentPageSize)
	comments, err := s.svc.ListComments(r.Context(), actorFrom(r), r.PathValue("id"), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Map(comments, func(c *models.Comment, _ int) commentResponse {
		return toCommentResponse(c)
	}))
}

func (s *Server) createComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	comment, err := s.svc.CreateComment(r.Context(), actorFrom(r), r.PathValue("id"), req.Body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommentResponse(comment))
}

func (s *Server) updateComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	comment, err := s.svc.UpdateComment(r.Context(), actorFrom(r), r.PathValue("id"), req.Body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCommentResponse(comment))
}

func (s *Server) deleteComment(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteComment(r.Context(), actorFrom(r), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
