package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/nps-engine/pkg/llm"
	"github.com/ekaya-inc/nps-engine/pkg/logging"
	"github.com/ekaya-inc/nps-engine/pkg/models"
	"github.com/ekaya-inc/nps-engine/pkg/services"
)

// EnrichmentHandler triggers enrichment runs and reports coverage.
type EnrichmentHandler struct {
	enrichment services.EnrichmentService
	logger     *zap.Logger
}

// NewEnrichmentHandler creates a new EnrichmentHandler.
func NewEnrichmentHandler(enrichment services.EnrichmentService, logger *zap.Logger) *EnrichmentHandler {
	return &EnrichmentHandler{enrichment: enrichment, logger: logger}
}

// RegisterRoutes registers the enrichment handler's routes on the given mux.
func (h *EnrichmentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/enrich", h.Run)
	mux.HandleFunc("GET /api/enrich/stats", h.Stats)
}

// enrichRunResponse carries the partial summary alongside an interruption message.
type enrichRunResponse struct {
	*models.EnrichmentRunResult
	Interrupted bool `json:"interrupted,omitempty"`
}

// Run handles POST /api/enrich
// The body is optional: {"batch_size": n, "max_batches": n, "force": bool}.
func (h *EnrichmentHandler) Run(w http.ResponseWriter, r *http.Request) {
	var opts services.EnrichmentOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if opts.BatchSize < 0 || opts.MaxBatches < 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_parameters", "batch_size and max_batches must not be negative")
		return
	}

	result, err := h.enrichment.Run(r.Context(), opts)
	if err != nil {
		if result != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			h.logger.Warn("Enrichment run interrupted by client", zap.Int("processed", result.Processed))
			if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: enrichRunResponse{result, true}}); err != nil {
				h.logger.Error("Failed to write enrichment response", zap.Error(err))
			}
			return
		}
		msg := logging.SanitizeError(err)
		h.logger.Error("Enrichment run failed", zap.String("error", msg))
		status := http.StatusInternalServerError
		var llmErr *llm.Error
		if errors.As(err, &llmErr) {
			status = http.StatusBadGateway
		}
		h.writeError(w, status, "enrichment_failed", msg)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: enrichRunResponse{EnrichmentRunResult: result}}); err != nil {
		h.logger.Error("Failed to write enrichment response", zap.Error(err))
	}
}

// Stats handles GET /api/enrich/stats
func (h *EnrichmentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.enrichment.Stats(r.Context())
	if err != nil {
		h.logger.Error("Failed to compute enrichment stats", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to compute enrichment stats")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: stats}); err != nil {
		h.logger.Error("Failed to write stats response", zap.Error(err))
	}
}

func (h *EnrichmentHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
