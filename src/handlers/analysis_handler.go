// backend/src/handlers/analysis_handler.go
package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/username/agriarche/backend/src/logger"
	"github.com/username/agriarche/backend/src/processors"
	"github.com/username/agriarche/backend/src/security/validation"
	"github.com/username/agriarche/backend/src/services"
	"github.com/username/agriarche/backend/src/store"
	"github.com/username/agriarche/backend/src/utils"
)

type AnalysisHandler struct {
	analysisService services.AnalysisService
}

func NewAnalysisHandler(service services.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{
		analysisService: service,
	}
}

// HandleGetAnalysis serves the dashboard aggregation for one commodity,
// optionally narrowed by month and market. exact=true disables the
// substring commodity match.
func (h *AnalysisHandler) HandleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	commodity := validation.SanitizeFilterParam(r.URL.Query().Get("commodity"))
	if commodity == "" {
		utils.SendJSONError(w, "commodity query parameter is required", http.StatusBadRequest)
		return
	}
	exact, _ := strconv.ParseBool(r.URL.Query().Get("exact"))

	filter := processors.AnalysisFilter{
		Commodity: commodity,
		Month:     utils.NormalizeMonthName(r.URL.Query().Get("month")),
		Market:    validation.SanitizeFilterParam(r.URL.Query().Get("market")),
		Exact:     exact,
	}
	result, err := h.analysisService.GetAnalysis(r.Context(), filter)
	if err != nil {
		ctxLogger.Error("Error computing analysis", "commodity", commodity, "error", err)
		utils.SendJSONError(w, "Error computing analysis", http.StatusInternalServerError)
		return
	}

	writeJSON(w, result, ctxLogger)
}

// HandleGetGapAnalysis serves the paginated per-commodity monthly report.
func (h *AnalysisHandler) HandleGetGapAnalysis(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	month := utils.NormalizeMonthName(r.URL.Query().Get("month"))
	if month == "" {
		utils.SendJSONError(w, "month query parameter is required", http.StatusBadRequest)
		return
	}
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 10)

	result, err := h.analysisService.GetGapAnalysis(r.Context(), month, page, pageSize)
	if err != nil {
		ctxLogger.Error("Error computing gap analysis", "month", month, "error", err)
		utils.SendJSONError(w, "Error computing gap analysis", http.StatusInternalServerError)
		return
	}

	writeJSON(w, result, ctxLogger)
}

// HandleGetFilterOptions serves the sidebar selector values with ETag support
// so the dashboard can poll cheaply.
func (h *AnalysisHandler) HandleGetFilterOptions(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	opts, err := h.analysisService.GetFilterOptions(r.Context())
	if err != nil {
		ctxLogger.Error("Error retrieving filter options", "error", err)
		utils.SendJSONError(w, "Error retrieving filter options", http.StatusInternalServerError)
		return
	}

	currentETag, etagErr := utils.GenerateETag(opts)
	if etagErr != nil {
		ctxLogger.Error("Failed to generate ETag for filter options", "error", etagErr)
	}

	w.Header().Set("Cache-Control", "no-cache, private")
	if etagErr == nil && currentETag != "" {
		quotedETag := fmt.Sprintf("\"%s\"", currentETag)
		w.Header().Set("ETag", quotedETag)
		for _, cETag := range strings.Split(r.Header.Get("If-None-Match"), ",") {
			if strings.TrimSpace(cETag) == quotedETag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	}

	writeJSON(w, opts, ctxLogger)
}

// HandleGetRecords serves a filtered, paginated page of raw price records.
func (h *AnalysisHandler) HandleGetRecords(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())
	q := r.URL.Query()

	filter := store.PriceFilter{
		Commodity: validation.SanitizeFilterParam(q.Get("commodity")),
		Market:    validation.SanitizeFilterParam(q.Get("market")),
		State:     validation.SanitizeFilterParam(q.Get("state")),
	}
	if v := q.Get("min_price"); v != "" {
		minPrice, err := strconv.ParseFloat(v, 64)
		if err != nil {
			utils.SendJSONError(w, "min_price must be a number", http.StatusBadRequest)
			return
		}
		filter.MinPrice = &minPrice
	}
	if v := q.Get("max_price"); v != "" {
		maxPrice, err := strconv.ParseFloat(v, 64)
		if err != nil {
			utils.SendJSONError(w, "max_price must be a number", http.StatusBadRequest)
			return
		}
		filter.MaxPrice = &maxPrice
	}
	if v := q.Get("from"); v != "" {
		from, err := utils.ParseFlexibleTime(v)
		if err != nil {
			utils.SendJSONError(w, "from must be a date", http.StatusBadRequest)
			return
		}
		filter.From = &from
	}
	if v := q.Get("to"); v != "" {
		to, err := utils.ParseFlexibleTime(v)
		if err != nil {
			utils.SendJSONError(w, "to must be a date", http.StatusBadRequest)
			return
		}
		// An end date without a time component covers the whole day.
		if to.Hour() == 0 && to.Minute() == 0 && to.Second() == 0 {
			to = to.Add(24*time.Hour - time.Second)
		}
		filter.To = &to
	}

	records, pagination, err := h.analysisService.GetFilteredRecords(r.Context(), filter, queryInt(r, "page", 1), queryInt(r, "page_size", 50))
	if err != nil {
		ctxLogger.Error("Error retrieving filtered records", "error", err)
		utils.SendJSONError(w, "Error retrieving records", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"data":       records,
		"pagination": pagination,
	}, ctxLogger)
}

// HandleGetIntelligence serves the catalog entry plus live statistics for
// one commodity.
func (h *AnalysisHandler) HandleGetIntelligence(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logger.FromContext(r.Context())

	commodity := chi.URLParam(r, "commodity")
	result, err := h.analysisService.GetIntelligence(r.Context(), commodity)
	if err != nil {
		ctxLogger.Warn("Intelligence lookup failed", "commodity", commodity, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("No intelligence available for commodity '%s'", commodity), http.StatusNotFound)
		return
	}

	writeJSON(w, result, ctxLogger)
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, payload interface{}, ctxLogger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		ctxLogger.Error("Error encoding JSON response", "error", err)
	}
}
