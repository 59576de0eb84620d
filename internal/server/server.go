package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/liqtrade/offer-extractor/internal/async"
	"github.com/liqtrade/offer-extractor/internal/common"
	"github.com/liqtrade/offer-extractor/internal/jobstore"
	"github.com/liqtrade/offer-extractor/internal/pipeline"
)

// maxUploadBytes bounds one uploaded document.
const maxUploadBytes = 50 << 20

// Server is the HTTP ingestion boundary. Ingestion is fire-and-forget: the
// handler validates, persists the upload, enqueues, and answers with the job
// id immediately. Extraction latency never holds an HTTP connection open.
type Server struct {
	logger    *slog.Logger
	store     jobstore.Store
	queue     async.Queue
	uploadDir string
}

func NewServer(logger *slog.Logger, store jobstore.Store, queue async.Queue, uploadDir string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{logger: logger, store: store, queue: queue, uploadDir: uploadDir}
}

// Routes returns the handler tree.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/ingest", s.handleIngest)
	mux.HandleFunc("POST /v1/ingest/file", s.handleIngestFile)
	mux.HandleFunc("GET /v1/jobs/{id}", s.handleJob)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return s.withRequestID(mux)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r.WithContext(common.WithRequestID(r.Context(), rid)))
	})
}

// ingestRequest is the JSON ingestion body. TextBody and FilePath are
// alternatives; file uploads go through /v1/ingest/file instead.
type ingestRequest struct {
	SupplierName    string `json:"supplier_name"`
	SupplierEmail   string `json:"supplier_email"`
	SourceChannel   string `json:"source_channel"`
	SourceMessageID string `json:"source_message_id"`
	SourceFilename  string `json:"source_filename"`
	TextBody        string `json:"text_body"`
	FilePath        string `json:"file_path"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	if req.TextBody == "" && req.FilePath == "" {
		s.writeError(w, r, http.StatusBadRequest, "one of text_body or file_path is required")
		return
	}

	s.accept(w, r, pipeline.Payload{
		SupplierName:    req.SupplierName,
		SupplierEmail:   req.SupplierEmail,
		SourceChannel:   req.SourceChannel,
		SourceMessageID: req.SourceMessageID,
		SourceFilename:  req.SourceFilename,
		TextBody:        req.TextBody,
		FilePath:        req.FilePath,
	})
}

func (s *Server) handleIngestFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("parse form: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	path, err := s.saveUpload(file, header.Filename)
	if err != nil {
		s.logger.Error("server.upload_failed", "error", err, "request_id", common.RequestIDFromContext(r.Context()))
		s.writeError(w, r, http.StatusInternalServerError, "store upload")
		return
	}

	s.accept(w, r, pipeline.Payload{
		SupplierName:    r.FormValue("supplier_name"),
		SupplierEmail:   r.FormValue("supplier_email"),
		SourceChannel:   r.FormValue("source_channel"),
		SourceMessageID: r.FormValue("source_message_id"),
		SourceFilename:  header.Filename,
		FilePath:        path,
	})
}

// saveUpload copies the upload under a fresh name, keeping the original
// extension so the reader can route on it.
func (s *Server) saveUpload(src io.Reader, original string) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(s.uploadDir, uuid.NewString()+filepath.Ext(original))
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, io.LimitReader(src, maxUploadBytes)); err != nil {
		return "", fmt.Errorf("write upload file: %w", err)
	}
	return path, nil
}

func (s *Server) accept(w http.ResponseWriter, r *http.Request, payload pipeline.Payload) {
	jobID := uuid.NewString()
	ctx := r.Context()

	if err := s.store.Create(ctx, jobID); err != nil {
		s.logger.Error("server.create_job_failed", "job_id", jobID, "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "create job")
		return
	}
	if err := s.queue.Enqueue(ctx, async.Job{JobID: jobID, Payload: payload, SubmittedAt: time.Now()}); err != nil {
		s.logger.Error("server.enqueue_failed", "job_id", jobID, "error", err)
		s.writeError(w, r, http.StatusServiceUnavailable, "enqueue job")
		return
	}

	s.logger.Info("server.accepted",
		"job_id", jobID,
		"source_channel", payload.SourceChannel,
		"request_id", common.RequestIDFromContext(ctx),
	)
	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"job_id": jobID,
	})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	v := common.NewValidator()
	if v.Field("id", jobID, common.Required, common.UUID); v.HasErrors() {
		s.writeError(w, r, http.StatusBadRequest, v.ErrorMessage())
		return
	}

	job, ok, err := s.store.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Error("server.get_job_failed", "job_id", jobID, "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "get job")
		return
	}
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "job not found")
		return
	}

	resp := map[string]any{
		"job_id": job.ID,
		"status": string(job.Status),
	}
	if job.Result != nil {
		resp["products"] = job.Result.Products
		resp["unit_errors"] = job.Result.UnitErrors
		resp["total_extracted"] = len(job.Result.Products)
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		s.logger.Warn("server.write_response_failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error":      message,
		"request_id": common.RequestIDFromContext(r.Context()),
	})
}
