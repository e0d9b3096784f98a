// backend/src/services/interfaces.go
package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/username/agriarche/backend/src/catalog"
	"github.com/username/agriarche/backend/src/models"
	"github.com/username/agriarche/backend/src/processors"
	"github.com/username/agriarche/backend/src/store"
)

// ErrReadFailed wraps parser failures so the transport layer can map them to
// a client error instead of a server one.
var ErrReadFailed = errors.New("could not read uploaded file")

// PartialUploadError signals that some batches inserted and some failed.
// The run report still carries the full counts; this error exists so callers
// can distinguish a partial outcome from a clean completion.
type PartialUploadError struct {
	Uploaded int
	Failed   int
}

func (e *PartialUploadError) Error() string {
	return fmt.Sprintf("upload partially failed: %d inserted, %d failed", e.Uploaded, e.Failed)
}

// ConfirmFunc decides whether a prepared run proceeds to upload. It receives
// the report in AwaitingConfirmation state with Pending set. Returning false
// leaves the run parked; the transport layer implements the two-phase flow by
// returning the report to the client for a second, confirmed request.
type ConfirmFunc func(report *models.UploadReport) bool

// UploadOptions configures one upload run.
type UploadOptions struct {
	Schema   processors.SourceSchema
	Filename string
	// BatchSize caps how many records go into a single store write.
	BatchSize int
	// Confirm gates the Uploading phase. Nil never confirms.
	Confirm ConfirmFunc
	// AcknowledgeFailOpen lets the run continue with an empty existing-key
	// set when the store cannot be read during the dedup pre-check. Without
	// it such a run fails rather than risk silently re-inserting data.
	AcknowledgeFailOpen bool
}

// UploadService runs the full ingestion pipeline for one uploaded file, and
// accepts single manual price corrections outside the file flow.
type UploadService interface {
	Upload(ctx context.Context, file io.Reader, opts UploadOptions) (*models.UploadReport, error)
	AddPrice(ctx context.Context, rec models.PriceRecord) (models.PriceRecord, error)
}

// AnalysisService serves the dashboard reads over stored price records.
type AnalysisService interface {
	GetAnalysis(ctx context.Context, f processors.AnalysisFilter) (*models.AnalysisResult, error)
	GetGapAnalysis(ctx context.Context, month string, page, pageSize int) (*models.GapAnalysisResult, error)
	GetFilterOptions(ctx context.Context) (*models.FilterOptions, error)
	GetFilteredRecords(ctx context.Context, f store.PriceFilter, page, pageSize int) ([]models.PriceRecord, models.Pagination, error)
	GetIntelligence(ctx context.Context, commodity string) (*CommodityIntelligence, error)
	InvalidateCache()
}

// CommodityIntelligence combines the static catalog entry for a commodity
// with live statistics computed from stored records.
type CommodityIntelligence struct {
	Commodity         string       `json:"commodity"`
	Info              catalog.Info `json:"info"`
	CurrentAvgPerKg   float64      `json:"current_avg_per_kg"`
	VolatilityPercent float64      `json:"volatility_percent"`
	Advisory          string       `json:"advisory"`
}
