package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/nps-engine/pkg/apperrors"
	"github.com/ekaya-inc/nps-engine/pkg/ingest"
	"github.com/ekaya-inc/nps-engine/pkg/services"
)

// DefaultMaxUploadBytes caps an upload when no limit is configured.
const DefaultMaxUploadBytes int64 = 10 << 20

// IngestHandler handles survey file uploads.
type IngestHandler struct {
	ingestion services.IngestionService
	jobs      services.UploadJobService
	maxBytes  int64
	logger    *zap.Logger
}

// NewIngestHandler creates a new IngestHandler.
func NewIngestHandler(ingestion services.IngestionService, jobs services.UploadJobService, maxBytes int64, logger *zap.Logger) *IngestHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &IngestHandler{
		ingestion: ingestion,
		jobs:      jobs,
		maxBytes:  maxBytes,
		logger:    logger,
	}
}

// RegisterRoutes registers the ingest handler's routes on the given mux.
func (h *IngestHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ingest", h.Upload)
	mux.HandleFunc("GET /api/ingest/jobs/{id}", h.GetJob)
}

// Upload handles POST /api/ingest
// Expects a multipart form with a "file" part. With ?async=true the upload is
// queued and 202 is returned with the job record.
func (h *IngestHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "file_too_large",
				"Upload exceeds the limit of "+strconv.FormatInt(h.maxBytes, 10)+" bytes")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Expected a multipart form upload")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "missing_file", "Form field 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("Failed to read uploaded file", zap.String("filename", header.Filename), zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to read uploaded file")
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		job, err := h.jobs.Submit(r.Context(), header.Filename, data)
		if err != nil {
			h.logger.Error("Failed to queue upload", zap.String("filename", header.Filename), zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to queue upload")
			return
		}
		if err := WriteJSON(w, http.StatusAccepted, ApiResponse{Success: true, Data: job}); err != nil {
			h.logger.Error("Failed to write upload job response", zap.Error(err))
		}
		return
	}

	result, err := h.ingestion.Ingest(r.Context(), header.Filename, data)
	if err != nil {
		if ingest.IsUnreadable(err) {
			h.writeError(w, http.StatusUnprocessableEntity, "unreadable_file", err.Error())
			return
		}
		h.logger.Error("Ingestion failed", zap.String("filename", header.Filename), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Ingestion failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write ingest response", zap.Error(err))
	}
}

// GetJob handles GET /api/ingest/jobs/{id}
func (h *IngestHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_job_id", "Invalid job ID format")
		return
	}

	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Upload job not found")
			return
		}
		h.logger.Error("Failed to load upload job", zap.String("job_id", id.String()), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to load upload job")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: job}); err != nil {
		h.logger.Error("Failed to write upload job response", zap.Error(err))
	}
}

func (h *IngestHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
