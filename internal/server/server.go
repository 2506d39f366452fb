package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/yuin/goldmark"

	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/database"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/discovery"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/generator"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/marketplace"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/progress"
	"github.com/mike-seoasis/client-fulfillment-v2-sub005/internal/submit"
)

var md = goldmark.New()

// Options wires the server to the engines it fronts.
type Options struct {
	DB         *database.DB
	Discovery  *discovery.Engine
	Generator  *generator.Generator
	Submitter  *submit.Engine
	Reconciler *submit.Reconciler
	Tracker    *progress.Tracker

	// WebhookSecret enables HMAC verification of marketplace callbacks.
	// Empty disables verification.
	WebhookSecret string
}

// Server is the JSON HTTP API over the engagement pipeline.
type Server struct {
	db            *database.DB
	discovery     *discovery.Engine
	generator     *generator.Generator
	submitter     *submit.Engine
	reconciler    *submit.Reconciler
	tracker       *progress.Tracker
	webhookSecret string
	mux           *http.ServeMux
}

// New creates a new Server.
func New(opts Options) *Server {
	s := &Server{
		db:            opts.DB,
		discovery:     opts.Discovery,
		generator:     opts.Generator,
		submitter:     opts.Submitter,
		reconciler:    opts.Reconciler,
		tracker:       opts.Tracker,
		webhookSecret: opts.WebhookSecret,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/projects", s.handleListProjects)
	s.mux.HandleFunc("GET /api/projects/{id}/posts", s.handleListPosts)
	s.mux.HandleFunc("GET /api/projects/{id}/comments", s.handleListComments)
	s.mux.HandleFunc("GET /api/projects/{id}/runs/{kind}", s.handleRunStatus)

	s.mux.HandleFunc("POST /api/projects/{id}/discover", s.handleDiscover)
	s.mux.HandleFunc("POST /api/projects/{id}/posts/filter-status", s.handleBulkFilterStatus)
	s.mux.HandleFunc("POST /api/projects/{id}/posts/{postID}/generate", s.handleGenerateOne)
	s.mux.HandleFunc("POST /api/projects/{id}/generate", s.handleGenerateBatch)
	s.mux.HandleFunc("POST /api/projects/{id}/submit", s.handleSubmit)

	s.mux.HandleFunc("POST /api/comments/{id}/approve", s.handleApprove)
	s.mux.HandleFunc("POST /api/comments/{id}/reject", s.handleReject)
	s.mux.HandleFunc("POST /api/comments/reject", s.handleBulkReject)
	s.mux.HandleFunc("GET /api/comments/{id}/preview", s.handlePreview)
	s.mux.HandleFunc("POST /api/comments/{id}/simulate-callback", s.handleSimulate)

	s.mux.HandleFunc("POST /api/webhooks/crowdreply", s.handleWebhook)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.db.GetAllProjects()
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "listing projects failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var (
		posts []database.DiscoveredPost
		err   error
	)
	if status := r.URL.Query().Get("filter_status"); status != "" {
		posts, err = s.db.GetPostsByFilterStatus(projectID, status)
	} else {
		posts, err = s.db.GetPostsForProject(projectID)
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "listing posts failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var (
		comments []database.Comment
		err      error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		comments, err = s.db.GetCommentsByStatus(projectID, status)
	} else {
		comments, err = s.db.GetCommentsForProject(projectID)
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "listing comments failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	kind := r.PathValue("kind")
	switch kind {
	case progress.KindDiscovery, progress.KindGeneration, progress.KindSubmission:
	default:
		jsonError(w, http.StatusNotFound, "unknown run kind")
		return
	}

	record := s.tracker.Get(kind, projectID)
	if record == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": progress.StatusIdle})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		TimeRange string `json:"time_range"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	// Advisory check so concurrent triggers answer 409; the run itself
	// enforces single-flight.
	if rec := s.tracker.Get(progress.KindDiscovery, projectID); rec != nil && rec.FinishedAt == nil {
		jsonError(w, http.StatusConflict, "discovery run already active")
		return
	}

	go func() {
		if _, err := s.discovery.Run(context.Background(), projectID, req.TimeRange); err != nil {
			log.Printf("Discovery run for project %d: %v", projectID, err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

func (s *Server) handleBulkFilterStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := pathID(w, r, "id"); !ok {
		return
	}

	var req struct {
		PostIDs []int64 `json:"post_ids"`
		Status  string  `json:"status"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if len(req.PostIDs) == 0 {
		jsonError(w, http.StatusBadRequest, "post_ids is required")
		return
	}

	updated, err := s.db.BulkUpdateFilterStatus(req.PostIDs, req.Status)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

func (s *Server) handleGenerateOne(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	postID, ok := pathID(w, r, "postID")
	if !ok {
		return
	}

	var req struct {
		Promotional bool `json:"promotional"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	comment, err := s.generator.GenerateForPost(r.Context(), projectID, postID, req.Promotional)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (s *Server) handleGenerateBatch(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		PostIDs     []int64 `json:"post_ids"`
		Promotional bool    `json:"promotional"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	if rec := s.tracker.Get(progress.KindGeneration, projectID); rec != nil && rec.FinishedAt == nil {
		jsonError(w, http.StatusConflict, "generation run already active")
		return
	}

	go func() {
		if _, err := s.generator.GenerateBatch(context.Background(), projectID, req.PostIDs, req.Promotional); err != nil {
			log.Printf("Generation run for project %d: %v", projectID, err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		CommentIDs []int64 `json:"comment_ids"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	if rec := s.tracker.Get(progress.KindSubmission, projectID); rec != nil && rec.FinishedAt == nil {
		jsonError(w, http.StatusConflict, "submission run already active")
		return
	}

	go func() {
		if _, err := s.submitter.Submit(context.Background(), projectID, req.CommentIDs); err != nil {
			log.Printf("Submission run for project %d: %v", projectID, err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	commentID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.db.ApproveComment(commentID); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"approved": true})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	commentID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Reason *string `json:"reason"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	if err := s.db.RejectComment(commentID, req.Reason); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rejected": true})
}

func (s *Server) handleBulkReject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CommentIDs []int64 `json:"comment_ids"`
		Reason     *string `json:"reason"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if len(req.CommentIDs) == 0 {
		jsonError(w, http.StatusBadRequest, "comment_ids is required")
		return
	}

	updated, err := s.db.BulkRejectComments(req.CommentIDs, req.Reason)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rejected": updated})
}

// handlePreview renders a comment draft's markdown body to HTML for review.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	commentID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	comment, err := s.db.GetCommentByID(commentID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "loading comment failed")
		return
	}
	if comment == nil {
		jsonError(w, http.StatusNotFound, "comment not found")
		return
	}

	var buf bytes.Buffer
	if err := md.Convert([]byte(comment.Body), &buf); err != nil {
		jsonError(w, http.StatusInternalServerError, "rendering comment failed")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	commentID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	result, err := s.reconciler.Simulate(commentID)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reconcileResponse(result))
}

// handleWebhook receives marketplace callbacks. Unmatched callbacks answer
// 200 so the provider stops retrying; only structurally invalid payloads or
// bad signatures are rejected.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		jsonError(w, http.StatusBadRequest, "reading body failed")
		return
	}

	if s.webhookSecret != "" {
		if !verifySignature(body, r.Header.Get("X-Crowdreply-Signature"), s.webhookSecret) {
			jsonError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	var payload marketplace.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	result, err := s.reconciler.Reconcile(&payload)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reconcileResponse(result))
}

func reconcileResponse(result *submit.ReconcileResult) map[string]any {
	resp := map[string]any{"matched": result.Matched}
	if result.Matched {
		resp["task_id"] = result.TaskID
		resp["task_status"] = result.TaskStatus
		resp["comment_status"] = result.CommentStatus
		if result.CommentID != nil {
			resp["comment_id"] = *result.CommentID
		}
	}
	return resp
}

// verifySignature checks a hex HMAC-SHA256 of the raw body.
func verifySignature(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// readJSON decodes the request body into v. An empty body decodes to the
// zero value so triggers work without arguments.
func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		jsonError(w, http.StatusBadRequest, "reading body failed")
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Encoding response: %v", err)
	}
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve starts the HTTP server on the given port.
func Serve(opts Options, port int) error {
	srv := New(opts)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
