package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/census-engine/pkg/conversation"
	"github.com/ekaya-inc/census-engine/pkg/models"
	"github.com/ekaya-inc/census-engine/pkg/pipeline"
)

// ============================================================================
// Request/Response Types
// ============================================================================

// IngestResponse for POST /api/ingest.
type IngestResponse struct {
	Session        *conversation.SessionView `json:"session"`
	Detection      models.FormatDetection    `json:"detection"`
	FormatAnalysis models.FormatAnalysis     `json:"format_analysis"`
	Metadata       models.FileMetadata       `json:"metadata"`
}

// ============================================================================
// Handler
// ============================================================================

// FileProcessor runs the inference pipeline over one upload.
type FileProcessor interface {
	Process(ctx context.Context, in pipeline.FileInput) (*models.ProcessedFileData, error)
}

// IngestHandler accepts uploads, runs the pipeline and opens a session.
type IngestHandler struct {
	processor      FileProcessor
	conversations  conversation.ConversationService
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(processor FileProcessor, conversations conversation.ConversationService, maxUploadMB int, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{
		processor:      processor,
		conversations:  conversations,
		maxUploadBytes: int64(maxUploadMB) << 20,
		logger:         logger,
	}
}

// RegisterRoutes registers the ingest handler's routes on the given mux.
func (h *IngestHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ingest", h.Ingest)
	mux.HandleFunc("POST /api/analyze", h.Analyze)
}

// Ingest handles POST /api/ingest
// Multipart form: file (required), client_id (optional).
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	in, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	processed, err := h.processor.Process(r.Context(), in)
	if err != nil {
		writeServiceError(w, err, "process file", h.logger)
		return
	}

	view, err := h.conversations.StartSession(r.Context(), r.FormValue("client_id"), processed)
	if err != nil {
		writeServiceError(w, err, "start session", h.logger)
		return
	}

	writeOK(w, http.StatusCreated, IngestResponse{
		Session:        view,
		Detection:      processed.Detection,
		FormatAnalysis: processed.FormatAnalysis,
		Metadata:       processed.Metadata,
	}, h.logger)
}

// Analyze handles POST /api/analyze
// Runs the pipeline without opening a session and returns the full result.
func (h *IngestHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	in, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	processed, err := h.processor.Process(r.Context(), in)
	if err != nil {
		writeServiceError(w, err, "process file", h.logger)
		return
	}
	writeOK(w, http.StatusOK, processed, h.logger)
}

func (h *IngestHandler) readUpload(w http.ResponseWriter, r *http.Request) (pipeline.FileInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", "Upload exceeds the size limit", h.logger)
			return pipeline.FileInput{}, false
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "Expected a multipart form upload", h.logger)
		return pipeline.FileInput{}, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file", "Form field 'file' is required", h.logger)
		return pipeline.FileInput{}, false
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("Failed to read upload", zap.String("file_name", header.Filename), zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid_request", "Failed to read upload", h.logger)
		return pipeline.FileInput{}, false
	}

	return pipeline.FileInput{
		Identity: models.FileIdentity{
			Name:      header.Filename,
			MediaType: header.Header.Get("Content-Type"),
			Size:      int64(len(content)),
		},
		Content: content,
	}, true
}
