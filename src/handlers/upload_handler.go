// backend/src/handlers/upload_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/username/agriarche/backend/src/config"
	"github.com/username/agriarche/backend/src/logger"
	"github.com/username/agriarche/backend/src/models"
	"github.com/username/agriarche/backend/src/processors"
	"github.com/username/agriarche/backend/src/security/validation"
	"github.com/username/agriarche/backend/src/services"
	"github.com/username/agriarche/backend/src/store"
	"github.com/username/agriarche/backend/src/utils"
)

type UploadHandler struct {
	uploadService services.UploadService
}

func NewUploadHandler(service services.UploadService) *UploadHandler {
	return &UploadHandler{
		uploadService: service,
	}
}

// HandleUpload accepts a multipart upload and runs it through the ingestion
// pipeline. The two-phase flow is driven by the confirm form field: without
// it the response reports the run parked in AwaitingConfirmation with the
// pending count, and the client repeats the request with confirm=true to
// actually insert.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		ctxLogger.Warn("Failed to parse multipart form or request too large", "error", err, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("Failed to process upload or file too large (max %d MB)", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	schema, err := processors.ParseSourceSchema(r.FormValue("source_schema"))
	if err != nil {
		ctxLogger.Warn("Upload request with invalid source_schema", "value", r.FormValue("source_schema"))
		utils.SendJSONError(w, "source_schema must be 'internal' or 'other_sources'", http.StatusBadRequest)
		return
	}
	confirm, _ := strconv.ParseBool(r.FormValue("confirm"))
	ackFailOpen, _ := strconv.ParseBool(r.FormValue("ack_fail_open"))

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		ctxLogger.Warn("Failed to retrieve file from request", "error", err)
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if fileHeader.Size > config.Cfg.MaxUploadSizeBytes {
		ctxLogger.Warn("Uploaded file too large", "fileSize", fileHeader.Size, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("File too large, max %d MB", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	clientContentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateClientContentType(clientContentType); err != nil {
		ctxLogger.Warn("Invalid client-declared file type", "contentType", clientContentType, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := validation.ValidateFileContentByMagicBytes(file); err != nil {
		ctxLogger.Warn("File content validation failed", "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctxLogger.Info("Processing upload request", "filename", fileHeader.Filename, "schema", string(schema), "confirm", confirm)

	opts := services.UploadOptions{
		Schema:              schema,
		Filename:            fileHeader.Filename,
		BatchSize:           config.Cfg.UploadBatchSize,
		AcknowledgeFailOpen: ackFailOpen,
	}
	if confirm {
		opts.Confirm = func(*models.UploadReport) bool { return true }
	}

	report, err := h.uploadService.Upload(r.Context(), file, opts)
	if err != nil {
		var partialErr *services.PartialUploadError
		var schemaErr *processors.SchemaError
		switch {
		case errors.As(err, &partialErr):
			// Partial outcome still returns the report; the state field
			// tells the client what happened.
			writeReport(w, report, ctxLogger)
			return
		case errors.As(err, &schemaErr):
			utils.SendJSONError(w, schemaErr.Error(), http.StatusBadRequest)
			return
		case errors.Is(err, services.ErrReadFailed):
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
			return
		case errors.Is(err, store.ErrUnavailable):
			ctxLogger.Error("Upload failed, store unavailable", "error", err)
			utils.SendJSONError(w, "Price store is temporarily unavailable", http.StatusServiceUnavailable)
			return
		default:
			ctxLogger.Error("Upload failed", "error", err)
			utils.SendJSONError(w, "Failed to process uploaded file", http.StatusInternalServerError)
			return
		}
	}

	writeReport(w, report, ctxLogger)
}

// HandleAddPrice accepts one manually entered price observation as JSON.
// It goes through the same validation and defaulting as file rows.
func (h *UploadHandler) HandleAddPrice(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	var rec models.PriceRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		utils.SendJSONError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	stored, err := h.uploadService.AddPrice(r.Context(), rec)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			ctxLogger.Error("Manual price insert failed, store unavailable", "error", err)
			utils.SendJSONError(w, "Price store is temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		ctxLogger.Warn("Manual price insert rejected", "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(stored); err != nil {
		ctxLogger.Error("Error encoding JSON response for manual price insert", "error", err)
	}
}

func writeReport(w http.ResponseWriter, report *models.UploadReport, ctxLogger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(report); err != nil {
		ctxLogger.Error("Error encoding JSON response for upload report", "error", err)
	}
}
