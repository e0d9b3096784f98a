package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/agriarche/backend/src/catalog"
	"github.com/username/agriarche/backend/src/logger"
	"github.com/username/agriarche/backend/src/models"
	"github.com/username/agriarche/backend/src/processors"
	"github.com/username/agriarche/backend/src/store"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

// fakeStore is an in-memory Store with switchable failure modes.
type fakeStore struct {
	prices      []models.PriceRecord
	others      []models.OtherSourceRecord
	runs        []*models.UploadReport
	unavailable bool
	// failMarkets makes inserts for these markets fail.
	failMarkets map[string]bool
}

func (f *fakeStore) FetchPricePage(_ context.Context, page, pageSize int) ([]models.PriceRecord, bool, error) {
	if f.unavailable {
		return nil, false, fmt.Errorf("%w: connection refused", store.ErrUnavailable)
	}
	start := (page - 1) * pageSize
	if start >= len(f.prices) {
		return nil, false, nil
	}
	end := start + pageSize
	if end > len(f.prices) {
		end = len(f.prices)
	}
	return f.prices[start:end], end < len(f.prices), nil
}

func (f *fakeStore) FetchOtherSourcePage(_ context.Context, page, pageSize int) ([]models.OtherSourceRecord, bool, error) {
	if f.unavailable {
		return nil, false, fmt.Errorf("%w: connection refused", store.ErrUnavailable)
	}
	start := (page - 1) * pageSize
	if start >= len(f.others) {
		return nil, false, nil
	}
	end := start + pageSize
	if end > len(f.others) {
		end = len(f.others)
	}
	return f.others[start:end], end < len(f.others), nil
}

func (f *fakeStore) InsertPrice(_ context.Context, rec models.PriceRecord) error {
	f.prices = append(f.prices, rec)
	return nil
}

func (f *fakeStore) InsertPrices(_ context.Context, recs []models.PriceRecord) (int, []error) {
	inserted := 0
	var errs []error
	for _, rec := range recs {
		if f.failMarkets[rec.Market] {
			errs = append(errs, fmt.Errorf("insert failed for %s", rec.DedupKey()))
			continue
		}
		f.prices = append(f.prices, rec)
		inserted++
	}
	return inserted, errs
}

func (f *fakeStore) InsertOtherSources(_ context.Context, recs []models.OtherSourceRecord) (int, []error) {
	f.others = append(f.others, recs...)
	return len(recs), nil
}

func (f *fakeStore) QueryFilteredPrices(_ context.Context, _ store.PriceFilter, page, pageSize int) ([]models.PriceRecord, models.Pagination, error) {
	return f.prices, paginate(page, pageSize, len(f.prices)), nil
}

func (f *fakeStore) RecordUploadRun(_ context.Context, report *models.UploadReport) error {
	f.runs = append(f.runs, report)
	return nil
}

func newTestUploadService(fs *fakeStore, onUpload func()) UploadService {
	dedup := processors.NewDeduplicationEngine(fs, 100)
	return NewUploadService(fs, dedup, catalog.CanonicalName, onUpload)
}

func confirmAlways(*models.UploadReport) bool { return true }

const internalCSV = "Start Time,Commodity,Market,Price per KG\n" +
	"2024-03-01 09:30,white maize,Dawanau,520\n" +
	"2024-03-01 10:00,red sorghum,Giwa,480\n" +
	"not a date,millet,Giwa,300\n"

func TestUpload_InternalHappyPath(t *testing.T) {
	fs := &fakeStore{}
	invalidated := false
	svc := newTestUploadService(fs, func() { invalidated = true })

	report, err := svc.Upload(context.Background(), strings.NewReader(internalCSV), UploadOptions{
		Schema:   processors.SchemaInternal,
		Filename: "prices.csv",
		Confirm:  confirmAlways,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StateCompleted, report.State)
	assert.Equal(t, 3, report.RowsRead)
	assert.Equal(t, 2, report.RowsValid)
	assert.Equal(t, 0, report.Duplicates)
	assert.Equal(t, 2, report.Uploaded)
	assert.Equal(t, 0, report.Failed)
	require.Len(t, report.Rejections, 1)
	assert.Equal(t, "unparseable date", report.Rejections[0].Reason)

	require.Len(t, fs.prices, 2)
	assert.Equal(t, "Maize White", fs.prices[0].Commodity, "commodity names are canonicalized before insert")
	assert.True(t, invalidated, "cache invalidation fires after inserts")
	require.Len(t, fs.runs, 1)
	assert.Equal(t, report.RunID, fs.runs[0].RunID)
}

func TestUpload_DeclinedConfirmationParksRun(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestUploadService(fs, nil)

	report, err := svc.Upload(context.Background(), strings.NewReader(internalCSV), UploadOptions{
		Schema:   processors.SchemaInternal,
		Filename: "prices.csv",
		// No Confirm: the run must stop before inserting anything.
	})
	require.NoError(t, err)

	assert.Equal(t, models.StateAwaitingConfirmation, report.State)
	assert.Equal(t, 2, report.Pending)
	assert.Equal(t, 0, report.Uploaded)
	assert.Empty(t, fs.prices)
	assert.Empty(t, fs.runs, "non-terminal runs are not recorded")
}

func TestUpload_ReuploadReportsDuplicates(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestUploadService(fs, nil)

	opts := UploadOptions{Schema: processors.SchemaInternal, Filename: "prices.csv", Confirm: confirmAlways}

	_, err := svc.Upload(context.Background(), strings.NewReader(internalCSV), opts)
	require.NoError(t, err)

	report, err := svc.Upload(context.Background(), strings.NewReader(internalCSV), opts)
	require.NoError(t, err)

	assert.Equal(t, models.StateCompleted, report.State)
	assert.Equal(t, 2, report.Duplicates)
	assert.Equal(t, 0, report.Uploaded)
	assert.Len(t, fs.prices, 2, "second upload inserts nothing")
}

func TestUpload_MissingColumnsFailsRun(t *testing.T) {
	svc := newTestUploadService(&fakeStore{}, nil)

	report, err := svc.Upload(context.Background(), strings.NewReader("Commodity,Market\nmaize,Giwa\n"), UploadOptions{
		Schema:   processors.SchemaInternal,
		Filename: "prices.csv",
	})
	require.Error(t, err)

	var schemaErr *processors.SchemaError
	assert.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, models.StateFailed, report.State)
}

func TestUpload_UnreadableFileFailsRun(t *testing.T) {
	svc := newTestUploadService(&fakeStore{}, nil)

	report, err := svc.Upload(context.Background(), strings.NewReader(""), UploadOptions{
		Schema:   processors.SchemaInternal,
		Filename: "prices.csv",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReadFailed)
	assert.Equal(t, models.StateFailed, report.State)
}

func TestUpload_NoValidRowsCompletesWithRejections(t *testing.T) {
	svc := newTestUploadService(&fakeStore{}, nil)

	csv := "Start Time,Commodity,Market,Price per KG\nbad date,maize,Giwa,100\n"
	report, err := svc.Upload(context.Background(), strings.NewReader(csv), UploadOptions{
		Schema:   processors.SchemaInternal,
		Filename: "prices.csv",
		Confirm:  confirmAlways,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StateCompleted, report.State)
	assert.Equal(t, 0, report.RowsValid)
	assert.Len(t, report.Rejections, 1)
}

func TestUpload_UnavailableStoreFailsWithoutAcknowledgement(t *testing.T) {
	fs := &fakeStore{unavailable: true}
	svc := newTestUploadService(fs, nil)

	report, err := svc.Upload(context.Background(), strings.NewReader(internalCSV), UploadOptions{
		Schema:   processors.SchemaInternal,
		Filename: "prices.csv",
		Confirm:  confirmAlways,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Equal(t, models.StateFailed, report.State)
}

func TestUpload_AcknowledgedFailOpenContinuesWithWarning(t *testing.T) {
	fs := &fakeStore{unavailable: true}
	svc := newTestUploadService(fs, nil)

	report, err := svc.Upload(context.Background(), strings.NewReader(internalCSV), UploadOptions{
		Schema:              processors.SchemaInternal,
		Filename:            "prices.csv",
		Confirm:             confirmAlways,
		AcknowledgeFailOpen: true,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StateCompleted, report.State)
	assert.Equal(t, 2, report.Uploaded)
	assert.Equal(t, 0, report.Duplicates, "pre-check skipped, nothing flagged as duplicate")
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "pre-check unavailable")
}

func TestUpload_PartialInsertFailure(t *testing.T) {
	fs := &fakeStore{failMarkets: map[string]bool{"Giwa": true}}
	svc := newTestUploadService(fs, nil)

	report, err := svc.Upload(context.Background(), strings.NewReader(internalCSV), UploadOptions{
		Schema:   processors.SchemaInternal,
		Filename: "prices.csv",
		Confirm:  confirmAlways,
	})
	require.Error(t, err)

	var partialErr *PartialUploadError
	require.ErrorAs(t, err, &partialErr)
	assert.Equal(t, 1, partialErr.Uploaded)
	assert.Equal(t, 1, partialErr.Failed)
	assert.Equal(t, models.StatePartiallyFailed, report.State)
	assert.Equal(t, 1, report.Uploaded)
	assert.Equal(t, 1, report.Failed)
}

func TestAddPrice_ValidatesAndDerives(t *testing.T) {
	fs := &fakeStore{}
	invalidated := false
	svc := newTestUploadService(fs, func() { invalidated = true })

	stored, err := svc.AddPrice(context.Background(), models.PriceRecord{
		StartTime:  mustTime(t, "2024-03-01 09:30"),
		Commodity:  "white maize",
		Market:     "Dawanau",
		PricePerKg: 520,
	})
	require.NoError(t, err)

	assert.Equal(t, "Maize White", stored.Commodity)
	assert.Equal(t, 52000.0, stored.PricePerBag)
	assert.Equal(t, "WEB_UPLOAD", stored.AgentCode)
	assert.Len(t, fs.prices, 1)
	assert.True(t, invalidated)

	_, err = svc.AddPrice(context.Background(), models.PriceRecord{
		StartTime: mustTime(t, "2024-03-01 09:30"),
		Commodity: "maize",
		Market:    "Dawanau",
	})
	assert.Error(t, err, "a record without any price is rejected")
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04", s)
	require.NoError(t, err)
	return parsed
}

func TestUpload_OtherSourceSchema(t *testing.T) {
	fs := &fakeStore{}
	svc := newTestUploadService(fs, nil)

	csv := "Date,Commodity,Market,Unit,Price\n" +
		"2024-03-01,white maize,Bodija,100KG,52000\n" +
		"2024-03-01,white maize,Bodija,100KG,52100\n" // same day and place, dropped as duplicate

	report, err := svc.Upload(context.Background(), strings.NewReader(csv), UploadOptions{
		Schema:   processors.SchemaOtherSource,
		Filename: "scraped.csv",
		Confirm:  confirmAlways,
	})
	require.NoError(t, err)

	assert.Equal(t, models.StateCompleted, report.State)
	assert.Equal(t, 2, report.RowsValid)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, 1, report.Uploaded)
	require.Len(t, fs.others, 1)
	assert.Equal(t, "Bodija", fs.others[0].Location)
	assert.Equal(t, "web_scraping", fs.others[0].Source)
}
