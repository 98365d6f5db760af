package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/inficreator0/hello-mom/internal/config"
	"github.com/inficreator0/hello-mom/internal/domain"
	"github.com/inficreator0/hello-mom/internal/hellomom"
	"github.com/inficreator0/hello-mom/internal/store"
)

// Server is the local HTTP API over the posts store. UI shells drive the
// store through it and render the snapshots it returns.
type Server struct {
	store      *store.Store
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a new HTTP server for the given store.
func NewServer(cfg *config.Config, st *store.Store, logger *slog.Logger) *Server {
	s := &Server{
		store:  st,
		logger: logger,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      withLogging(logger, s.routes()),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.HTTPTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /categories", s.handleCategories)
	mux.HandleFunc("GET /posts", s.handleListPosts)
	mux.HandleFunc("POST /posts", s.handleCreatePost)
	mux.HandleFunc("POST /posts/refresh", s.handleRefresh)
	mux.HandleFunc("POST /posts/more", s.handleLoadMore)
	mux.HandleFunc("GET /posts/{id}", s.handleGetPost)
	mux.HandleFunc("PUT /posts/{id}", s.handleEditPost)
	mux.HandleFunc("DELETE /posts/{id}", s.handleDeletePost)
	mux.HandleFunc("POST /posts/{id}/vote", s.handleVote)
	mux.HandleFunc("POST /posts/{id}/bookmark", s.handleBookmark)
	mux.HandleFunc("GET /posts/{id}/comments", s.handleGetComments)
	mux.HandleFunc("POST /posts/{id}/comments", s.handleAddComment)
	return mux
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": domain.Categories})
}

type listResponse struct {
	Posts      []*domain.Post `json:"posts"`
	Category   string         `json:"category,omitempty"`
	Sort       domain.Sort    `json:"sort,omitempty"`
	NextCursor string         `json:"nextCursor,omitempty"`
	HasMore    bool           `json:"hasMore"`
	IsLoading  bool           `json:"isLoading"`
	HasLoaded  bool           `json:"hasLoaded"`
	Stale      bool           `json:"stale"`
	Version    uint64         `json:"version"`
}

func toListResponse(snap *store.Snapshot, posts []*domain.Post, stale bool) listResponse {
	return listResponse{
		Posts:      posts,
		Category:   snap.Query.Category,
		Sort:       snap.Query.Sort,
		NextCursor: snap.NextCursor,
		HasMore:    snap.HasMore,
		IsLoading:  snap.IsLoading,
		HasLoaded:  snap.HasLoaded,
		Stale:      stale,
		Version:    snap.Version,
	}
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	listing, stale := snap.Listing()
	posts := make([]*domain.Post, 0, len(listing))
	category, search := r.URL.Query().Get("category"), r.URL.Query().Get("q")
	for _, p := range listing {
		if domain.MatchesFilter(p, category, search) {
			posts = append(posts, p)
		}
	}
	writeJSON(w, http.StatusOK, toListResponse(snap, posts, stale))
}

// parseQuery reads the category and sort parameters. ok is false after an
// error response has been written.
func (s *Server) parseQuery(w http.ResponseWriter, r *http.Request) (q domain.Query, ok bool) {
	params := r.URL.Query()
	if raw := params.Get("sort"); raw != "" {
		sort, err := domain.ParseSort(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
			return q, false
		}
		q.Sort = sort
	}
	q.Category = params.Get("category")
	return q, true
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	q, ok := s.parseQuery(w, r)
	if !ok {
		return
	}
	if q.Sort == "" {
		q.Sort = domain.SortNewest
	}

	s.store.Refresh(r.Context(), q)
	snap := s.store.Snapshot()
	writeJSON(w, http.StatusOK, toListResponse(snap, snap.Posts, false))
}

func (s *Server) handleLoadMore(w http.ResponseWriter, r *http.Request) {
	q, ok := s.parseQuery(w, r)
	if !ok {
		return
	}

	s.store.LoadMore(r.Context(), q)
	snap := s.store.Snapshot()
	writeJSON(w, http.StatusOK, toListResponse(snap, snap.Posts, false))
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, ok := s.store.Post(domain.ID(r.PathValue("id")))
	if !ok {
		writeError(w, http.StatusNotFound, "NotFound", "post not found")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var input domain.PostInput
	if !decodeBody(w, r, &input) {
		return
	}

	post, err := s.store.CreatePost(r.Context(), input)
	if err != nil {
		s.writeStoreError(w, "failed to create post", "", err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) handleEditPost(w http.ResponseWriter, r *http.Request) {
	id := domain.ID(r.PathValue("id"))
	var input domain.PostInput
	if !decodeBody(w, r, &input) {
		return
	}

	if _, err := s.store.EditPost(r.Context(), id, input); err != nil {
		s.writeStoreError(w, "failed to edit post", id, err)
		return
	}
	s.writePost(w, id)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	id := domain.ID(r.PathValue("id"))
	if err := s.store.DeletePost(r.Context(), id); err != nil {
		s.writeStoreError(w, "failed to delete post", id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type voteRequest struct {
	Direction string `json:"direction"`
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	id := domain.ID(r.PathValue("id"))
	var req voteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	direction, err := domain.ParseDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	if err := s.store.Vote(r.Context(), id, direction); err != nil {
		s.writeOptimisticError(w, id, err)
		return
	}
	s.writePost(w, id)
}

func (s *Server) handleBookmark(w http.ResponseWriter, r *http.Request) {
	id := domain.ID(r.PathValue("id"))
	if err := s.store.ToggleBookmark(r.Context(), id); err != nil {
		s.writeOptimisticError(w, id, err)
		return
	}
	s.writePost(w, id)
}

func (s *Server) handleGetComments(w http.ResponseWriter, r *http.Request) {
	id := domain.ID(r.PathValue("id"))
	if _, ok := s.store.Post(id); !ok {
		writeError(w, http.StatusNotFound, "NotFound", "post not found")
		return
	}

	s.store.LoadComments(r.Context(), id)
	post, ok := s.store.Post(id)
	if !ok {
		writeError(w, http.StatusNotFound, "NotFound", "post not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": post.Comments})
}

type commentRequest struct {
	Content         string    `json:"content"`
	ParentCommentID domain.ID `json:"parentCommentId,omitempty"`
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	id := domain.ID(r.PathValue("id"))
	var req commentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	comment, err := s.store.AddComment(r.Context(), id, req.Content, req.ParentCommentID)
	if err != nil {
		s.writeStoreError(w, "failed to add comment", id, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (s *Server) writePost(w http.ResponseWriter, id domain.ID) {
	post, ok := s.store.Post(id)
	if !ok {
		// Removed between the change and this read, e.g. by a delete event.
		writeError(w, http.StatusNotFound, "NotFound", "post not found")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// writeOptimisticError answers a failed vote or bookmark. The store has
// already reverted the post, so the body carries its current state.
func (s *Server) writeOptimisticError(w http.ResponseWriter, id domain.ID, err error) {
	if errors.Is(err, domain.ErrPostNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "post not found")
		return
	}
	if errors.Is(err, store.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	s.logger.Warn("optimistic update reverted", "post_id", id, "error", err)
	body := map[string]any{
		"error":   "UpstreamError",
		"message": err.Error(),
	}
	if post, ok := s.store.Post(id); ok {
		body["post"] = post
	}
	writeJSON(w, http.StatusBadGateway, body)
}

func (s *Server) writeStoreError(w http.ResponseWriter, msg string, id domain.ID, err error) {
	var apiErr *hellomom.APIError
	switch {
	case errors.Is(err, store.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
	case errors.Is(err, domain.ErrPostNotFound):
		writeError(w, http.StatusNotFound, "NotFound", "post not found")
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		writeError(w, apiErr.StatusCode, "UpstreamRejected", apiErr.Message)
	default:
		s.logger.Error(msg, "post_id", id, "error", err)
		writeError(w, http.StatusBadGateway, "UpstreamError", err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
