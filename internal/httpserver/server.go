package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/openplans/visionstream/internal/domain"
)

// Server exposes the operator-facing trigger endpoints: bulk conversion of
// candidate posts into visions and replies, plus vision administration.
// Authentication is handled by the fronting admin application.
type Server struct {
	store      domain.ConversationStore
	visions    domain.VisionStore
	converter  *domain.BulkConverter
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates the admin HTTP server.
func NewServer(
	port int,
	store domain.ConversationStore,
	visions domain.VisionStore,
	converter *domain.BulkConverter,
	logger *slog.Logger,
) *Server {
	s := &Server{
		store:     store,
		visions:   visions,
		converter: converter,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /admin/candidates", s.handleListCandidates)
	mux.HandleFunc("POST /admin/convert/visions", s.handleConvertVisions)
	mux.HandleFunc("POST /admin/convert/replies", s.handleConvertReplies)
	mux.HandleFunc("POST /admin/visions/{id}/share", s.handleShare)
	mux.HandleFunc("POST /admin/visions/{id}/support", s.handleSupport)
	mux.HandleFunc("POST /admin/visions/{id}/feature", s.handleFeature)
	mux.HandleFunc("POST /admin/visions/{id}/categorize", s.handleCategorize)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      withLogging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting admin HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	posts, err := s.store.ListCandidates(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list candidates", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list candidates")
		return
	}

	resp := candidatesResponse{Candidates: make([]candidate, len(posts))}
	for i, p := range posts {
		resp.Candidates[i] = candidate{
			ExternalID: p.ExternalID,
			Author:     p.Author.Handle,
			Text:       p.Text,
			InReplyTo:  p.InReplyTo,
			CreatedAt:  p.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConvertVisions(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}

	converted, err := s.converter.MakeVisions(r.Context(), req.IDs)
	if err != nil {
		s.logger.Error("vision conversion failed", "error", err, "converted", converted)
		writeError(w, http.StatusInternalServerError, "vision conversion failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"converted": converted,
		"message":   fmt.Sprintf("Successfully converted %d post(s) to visions.", converted),
	})
}

func (s *Server) handleConvertReplies(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}

	report, err := s.converter.MakeReplies(r.Context(), req.IDs)
	if err != nil {
		s.logger.Error("reply conversion failed", "error", err)
		writeError(w, http.StatusInternalServerError, "reply conversion failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
		"message":   report.Message(),
	})
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	visionID, ok := visionIDFromPath(w, r)
	if !ok {
		return
	}

	var req userActionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	share, err := s.visions.CreateShare(r.Context(), visionID, req.UserID)
	if err != nil {
		s.logger.Error("failed to create share", "vision_id", visionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create share")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"share_id": share.ID})
}

func (s *Server) handleSupport(w http.ResponseWriter, r *http.Request) {
	visionID, ok := visionIDFromPath(w, r)
	if !ok {
		return
	}

	var req userActionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := s.visions.AddSupporter(r.Context(), visionID, req.UserID); err != nil {
		s.logger.Error("failed to add supporter", "vision_id", visionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add supporter")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFeature(w http.ResponseWriter, r *http.Request) {
	visionID, ok := visionIDFromPath(w, r)
	if !ok {
		return
	}

	var req featureRequest
	if !decodeBody(w, r, &req) {
		return
	}

	err := s.visions.SetFeatured(r.Context(), visionID, req.Featured)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "vision not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to set featured", "vision_id", visionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to set featured")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	visionID, ok := visionIDFromPath(w, r)
	if !ok {
		return
	}

	var req categorizeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !domain.ValidCategory(req.Category) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown category %q", req.Category))
		return
	}

	err := s.visions.SetCategory(r.Context(), visionID, req.Category)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "vision not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to set category", "vision_id", visionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to set category")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type convertRequest struct {
	IDs []string `json:"ids"`
}

type userActionRequest struct {
	UserID string `json:"user_id"`
}

type featureRequest struct {
	Featured bool `json:"featured"`
}

type categorizeRequest struct {
	Category string `json:"category"`
}

type candidate struct {
	ExternalID string    `json:"external_id"`
	Author     string    `json:"author"`
	Text       string    `json:"text"`
	InReplyTo  string    `json:"in_reply_to,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type candidatesResponse struct {
	Candidates []candidate `json:"candidates"`
}

func visionIDFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid vision id")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
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
