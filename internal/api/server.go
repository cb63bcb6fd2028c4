package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"flash-quiz/internal/models"
	"flash-quiz/internal/services"
	"flash-quiz/internal/session"
)

const maxMultipartMemory = 8 << 20 // 8 MB

// Quota reports how many runs a session may still start; -1 means unlimited.
type Quota interface {
	Remaining(ctx context.Context, sessionID string) (int, error)
}

type Options struct {
	Sessions  *session.Manager
	Ingestion *services.IngestionService
	Runner    *services.BatchRunner
	Quota     Quota
	// DefaultKey is true when the server has its own completion API key.
	DefaultKey  bool
	CORSOrigins []string
	Logger      zerolog.Logger
}

type Server struct {
	router     chi.Router
	sessions   *session.Manager
	ingestion  *services.IngestionService
	runner     *services.BatchRunner
	quota      Quota
	defaultKey bool
	jobs       *JobManager
	log        zerolog.Logger
}

func NewServer(opts Options) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		sessions:   opts.Sessions,
		ingestion:  opts.Ingestion,
		runner:     opts.Runner,
		quota:      opts.Quota,
		defaultKey: opts.DefaultKey,
		jobs:       NewJobManager(),
		log:        opts.Logger.With().Str("component", "api").Logger(),
	}
	s.routes(opts.CORSOrigins)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes(origins []string) {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Put("/mode", s.handleSetMode)
			r.Put("/key", s.handleSetKey)
			r.Post("/document", s.handleUploadDocument)
			r.Post("/runs", s.handleStartRun)
			r.Get("/runs/{task}", s.handleGetRun)
			r.Get("/runs/{task}/export.csv", s.handleExportCSV)
			r.Get("/runs/{task}/export.xlsx", s.handleExportXLSX)
		})
		r.Get("/jobs/{jobID}", s.handleJobStatus)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type sessionRequest struct {
	APIKey string `json:"apiKey"`
}

type sessionResponse struct {
	session.Snapshot
	RemainingQueries int `json:"remainingQueries"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload sessionRequest
	if err := decodeOptionalJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	snap := s.sessions.Create(payload.APIKey)
	s.writeSession(w, r, http.StatusCreated, snap)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeSession(w, r, http.StatusOK, snap)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Delete(chi.URLParam(r, "sessionID")) {
		s.writeFailure(w, session.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	snap, err := s.sessions.SetMode(chi.URLParam(r, "sessionID"), models.Mode(strings.ToLower(strings.TrimSpace(payload.Mode))))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeSession(w, r, http.StatusOK, snap)
}

func (s *Server) handleSetKey(w http.ResponseWriter, r *http.Request) {
	var payload sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	snap, err := s.sessions.SetAPIKey(chi.URLParam(r, "sessionID"), payload.APIKey)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeSession(w, r, http.StatusOK, snap)
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := s.sessions.Get(sessionID); err != nil {
		s.writeFailure(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, services.MaxDocumentBytes+maxMultipartMemory)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	if form := r.MultipartForm; form != nil {
		defer form.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	doc, err := s.ingestion.Ingest(r.Context(), header.Filename, file)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	snap, err := s.sessions.SetDocument(sessionID, doc)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeSession(w, r, http.StatusOK, snap)
}

type runRequest struct {
	Task   string `json:"task"`
	APIKey string `json:"apiKey"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload runRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	task, ok := models.ParseTask(payload.Task)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("task must be one of %s", taskNames()))
		return
	}

	prep, err := s.sessions.Prepare(sessionID, task, payload.APIKey)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if prep.APIKey == "" && !s.defaultKey {
		writeError(w, http.StatusBadRequest, "an API key is required")
		return
	}
	if s.quota != nil {
		left, err := s.quota.Remaining(r.Context(), sessionID)
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		if left == 0 {
			s.writeFailure(w, services.ErrQuotaExceeded)
			return
		}
	}

	total := len(prep.Chunks)
	if !task.PerChunk() && total > 0 {
		total = 1
	}
	job, err := s.jobs.CreateJob(sessionID, task, total)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if _, err := s.sessions.SetMode(sessionID, task.Mode()); err != nil {
		s.log.Warn().Err(err).Str("session", sessionID).Msg("could not switch mode for run")
	}

	go s.runJob(context.Background(), job.ID, prep)

	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) runJob(ctx context.Context, jobID string, prep session.Prepared) {
	s.jobs.MarkProcessing(jobID)

	run, err := s.runner.Run(ctx, services.RunRequest{
		SessionID: prep.SessionID,
		Task:      prep.Task,
		Chunks:    prep.Chunks,
		APIKey:    prep.APIKey,
		Progress: func(step, message string, current, total int) {
			s.jobs.UpdateProgress(jobID, step, message, current, total)
		},
	})

	if !s.sessions.RecordRun(prep.SessionID, prep.DocumentID, run) {
		s.log.Info().Str("job", jobID).Msg("document replaced during run; results discarded")
	}
	s.jobs.Finish(jobID, run, failureMessage(err))
}

func failureMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, services.ErrQuotaExceeded):
		return "Daily query limit reached. Try again tomorrow."
	case errors.Is(err, services.ErrRateLimited):
		return "The completion service is rate limiting requests. Partial results were kept; try again later or use a shorter document."
	default:
		return "Generation stopped: " + err.Error()
	}
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.GetJob(chi.URLParam(r, "jobID"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type resultView struct {
	models.GenerationResult
	HTML string `json:"html,omitempty"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}

	renderHTML := r.URL.Query().Get("format") == "html"
	results := make([]resultView, 0, len(run.Results))
	for _, res := range run.Results {
		view := resultView{GenerationResult: res}
		if renderHTML {
			html, err := services.RenderHTML(res.Content)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			view.HTML = html
		}
		results = append(results, view)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":         run.ID,
		"task":       run.Task,
		"status":     run.Status,
		"partial":    run.Partial(),
		"error":      run.Error,
		"results":    results,
		"startedAt":  run.StartedAt.Format(timeLayout),
		"finishedAt": run.FinishedAt.Format(timeLayout),
	})
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := services.WriteCSV(&buf, run); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAttachment(w, "text/csv; charset=utf-8", string(run.Task)+".csv", buf.Bytes())
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := services.WriteXLSX(&buf, run); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAttachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", string(run.Task)+".xlsx", buf.Bytes())
}

func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*models.BatchRun, bool) {
	task, ok := models.ParseTask(chi.URLParam(r, "task"))
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("task must be one of %s", taskNames()))
		return nil, false
	}
	run, err := s.sessions.Run(chi.URLParam(r, "sessionID"), task)
	if err != nil {
		s.writeFailure(w, err)
		return nil, false
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "no results for this task yet")
		return nil, false
	}
	return run, true
}

func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, status int, snap session.Snapshot) {
	resp := sessionResponse{Snapshot: snap, RemainingQueries: -1}
	if s.quota != nil {
		left, err := s.quota.Remaining(r.Context(), snap.ID)
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		resp.RemainingQueries = left
	}
	writeJSON(w, status, resp)
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrNoDocument), errors.Is(err, ErrRunInProgress):
		status = http.StatusConflict
	case errors.Is(err, session.ErrInvalidMode), errors.Is(err, services.ErrUnknownTask):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrDocumentUnreadable):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrQuotaExceeded):
		status = http.StatusTooManyRequests
	}
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

const timeLayout = time.RFC3339

func taskNames() string {
	names := make([]string, len(models.Tasks))
	for i, t := range models.Tasks {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func decodeOptionalJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeAttachment(w http.ResponseWriter, contentType, name string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
