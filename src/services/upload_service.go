// backend/src/services/upload_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/username/agriarche/backend/src/logger"
	"github.com/username/agriarche/backend/src/models"
	"github.com/username/agriarche/backend/src/parsers"
	"github.com/username/agriarche/backend/src/processors"
	"github.com/username/agriarche/backend/src/store"
	"github.com/username/agriarche/backend/src/utils"
)

const defaultBatchSize = 500

// uploadService drives one file through the ingestion pipeline:
// parse, normalize, validate, dedup pre-check, confirmation gate, batched
// insert. The report mutates in place as the run advances, so even a failed
// run returns the counts accumulated up to the failure.
type uploadService struct {
	store         store.Store
	dedup         *processors.DeduplicationEngine
	validator     *processors.RecordValidator
	canonicalName func(string) string
	// onUpload runs after any records were inserted, for cache invalidation.
	onUpload func()
}

func NewUploadService(s store.Store, dedup *processors.DeduplicationEngine, canonicalName func(string) string, onUpload func()) UploadService {
	return &uploadService{
		store:         s,
		dedup:         dedup,
		validator:     processors.NewRecordValidator(),
		canonicalName: canonicalName,
		onUpload:      onUpload,
	}
}

func (s *uploadService) Upload(ctx context.Context, file io.Reader, opts UploadOptions) (*models.UploadReport, error) {
	log := logger.FromContext(ctx)
	report := &models.UploadReport{
		RunID:     uuid.NewString(),
		Schema:    string(opts.Schema),
		Filename:  opts.Filename,
		State:     models.StateIdle,
		StartedAt: time.Now(),
	}
	log = log.With("runID", report.RunID, "schema", report.Schema, "filename", report.Filename)

	report.State = models.StateReading
	parser, err := parsers.GetParser(opts.Filename)
	if err != nil {
		report.State = models.StateFailed
		return report, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	columns, rows, err := parser.Parse(file)
	if err != nil {
		report.State = models.StateFailed
		return report, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	report.RowsRead = len(rows)

	report.State = models.StateNormalizing
	normalizer := processors.NewFieldNormalizer(opts.Schema, s.canonicalName)
	normalized, err := normalizer.Normalize(columns, rows)
	if err != nil {
		report.State = models.StateFailed
		return report, err
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	if opts.Schema == processors.SchemaOtherSource {
		err = s.runOtherSource(ctx, report, normalized, opts, batchSize)
	} else {
		err = s.runInternal(ctx, report, normalized, opts, batchSize)
	}

	if report.State.Terminal() {
		s.recordRun(ctx, report)
	}
	log.Info("Upload run finished",
		"state", string(report.State),
		"rowsRead", report.RowsRead,
		"rowsValid", report.RowsValid,
		"duplicates", report.Duplicates,
		"uploaded", report.Uploaded,
		"failed", report.Failed)
	return report, err
}

// AddPrice validates and stores a single manually entered observation,
// applying the same defaults and derivations as the file pipeline. The
// returned record carries the canonicalized and derived values.
func (s *uploadService) AddPrice(ctx context.Context, rec models.PriceRecord) (models.PriceRecord, error) {
	row := models.RawRecord{
		"start_time":     rec.StartTime.Format("2006-01-02 15:04:05"),
		"agent_code":     rec.AgentCode,
		"state":          rec.State,
		"market":         rec.Market,
		"commodity":      s.canonicalName(rec.Commodity),
		"availability":   rec.Availability,
		"commodity_type": rec.CommodityType,
	}
	if rec.PricePerKg > 0 {
		row["price_per_kg"] = strconv.FormatFloat(rec.PricePerKg, 'f', -1, 64)
	}
	if rec.PricePerBag > 0 {
		row["price_per_bag"] = strconv.FormatFloat(rec.PricePerBag, 'f', -1, 64)
	}
	if rec.WeightOfBagKg > 0 {
		row["weight_of_bag_kg"] = strconv.FormatFloat(rec.WeightOfBagKg, 'f', -1, 64)
	}

	valid, rejections := s.validator.ValidateInternal([]models.RawRecord{row})
	if len(rejections) > 0 {
		return models.PriceRecord{}, fmt.Errorf("invalid price record: %s", rejections[0].Reason)
	}
	if err := s.store.InsertPrice(ctx, valid[0]); err != nil {
		return models.PriceRecord{}, err
	}
	if s.onUpload != nil {
		s.onUpload()
	}
	return valid[0], nil
}

func (s *uploadService) runInternal(ctx context.Context, report *models.UploadReport, rows []models.RawRecord, opts UploadOptions, batchSize int) error {
	report.State = models.StateValidating
	valid, rejections := s.validator.ValidateInternal(rows)
	report.RowsValid = len(valid)
	report.Rejections = rejections
	if len(valid) == 0 {
		report.State = models.StateCompleted
		return nil
	}

	existing, err := s.existingKeys(ctx, report, opts, s.dedup.ExistingPriceKeys)
	if err != nil {
		return err
	}

	report.State = models.StateDeduplicating
	fresh, duplicates := processors.FilterNew(valid, existing)
	report.Duplicates = duplicates
	if len(fresh) == 0 {
		report.State = models.StateCompleted
		return nil
	}

	report.State = models.StateAwaitingConfirmation
	report.Pending = len(fresh)
	if opts.Confirm == nil || !opts.Confirm(report) {
		return nil
	}

	report.State = models.StateUploading
	inserted, errs := insertBatches(ctx, fresh, batchSize, s.store.InsertPrices)
	return s.finishUpload(report, inserted, errs)
}

func (s *uploadService) runOtherSource(ctx context.Context, report *models.UploadReport, rows []models.RawRecord, opts UploadOptions, batchSize int) error {
	report.State = models.StateValidating
	valid, rejections := s.validator.ValidateOtherSource(rows)
	report.RowsValid = len(valid)
	report.Rejections = rejections
	if len(valid) == 0 {
		report.State = models.StateCompleted
		return nil
	}

	existing, err := s.existingKeys(ctx, report, opts, s.dedup.ExistingOtherSourceKeys)
	if err != nil {
		return err
	}

	report.State = models.StateDeduplicating
	fresh, duplicates := processors.FilterNew(valid, existing)
	report.Duplicates = duplicates
	if len(fresh) == 0 {
		report.State = models.StateCompleted
		return nil
	}

	report.State = models.StateAwaitingConfirmation
	report.Pending = len(fresh)
	if opts.Confirm == nil || !opts.Confirm(report) {
		return nil
	}

	report.State = models.StateUploading
	inserted, errs := insertBatches(ctx, fresh, batchSize, s.store.InsertOtherSources)
	return s.finishUpload(report, inserted, errs)
}

// existingKeys runs the dedup pre-check. An unreachable store fails the run
// unless the caller explicitly acknowledged the fail-open path, in which case
// the run continues with an empty key set and a warning on the report. The
// store's unique indexes still absorb any resulting duplicate inserts.
func (s *uploadService) existingKeys(ctx context.Context, report *models.UploadReport, opts UploadOptions,
	fetch func(context.Context) (map[string]struct{}, error)) (map[string]struct{}, error) {

	report.State = models.StateFetchingExisting
	existing, err := fetch(ctx)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) && opts.AcknowledgeFailOpen {
			logger.FromContext(ctx).Warn("Dedup pre-check unavailable, continuing fail-open", "runID", report.RunID, "error", err)
			report.Warnings = append(report.Warnings,
				"duplicate pre-check unavailable; records uploaded without pre-filtering")
			return map[string]struct{}{}, nil
		}
		report.State = models.StateFailed
		return nil, fmt.Errorf("dedup pre-check failed: %w", err)
	}
	return existing, nil
}

func (s *uploadService) finishUpload(report *models.UploadReport, inserted int, errs []error) error {
	report.Uploaded = inserted
	report.Failed = len(errs)
	for _, err := range errs {
		logger.L.Error("Record insert failed", "runID", report.RunID, "error", err)
	}
	if inserted > 0 && s.onUpload != nil {
		s.onUpload()
	}
	if len(errs) > 0 {
		report.State = models.StatePartiallyFailed
		return &PartialUploadError{Uploaded: inserted, Failed: len(errs)}
	}
	report.State = models.StateCompleted
	return nil
}

func (s *uploadService) recordRun(ctx context.Context, report *models.UploadReport) {
	if err := s.store.RecordUploadRun(ctx, report); err != nil {
		logger.FromContext(ctx).Error("Could not record upload run", "runID", report.RunID, "error", err)
	}
}

// insertBatches splits records into store-sized writes and accumulates the
// per-record outcomes across batches.
func insertBatches[T models.Keyed](ctx context.Context, recs []T, batchSize int,
	insert func(context.Context, []T) (int, []error)) (int, []error) {

	inserted := 0
	var errs []error
	for start := 0; start < len(recs); start += batchSize {
		end := utils.MinInt(start+batchSize, len(recs))
		n, batchErrs := insert(ctx, recs[start:end])
		inserted += n
		errs = append(errs, batchErrs...)
	}
	return inserted, errs
}
