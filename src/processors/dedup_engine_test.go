package processors

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/agriarche/backend/src/logger"
	"github.com/username/agriarche/backend/src/models"
	"github.com/username/agriarche/backend/src/store"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

// fakeStore serves canned records in pages and can simulate an outage.
type fakeStore struct {
	store.Store
	prices      []models.PriceRecord
	others      []models.OtherSourceRecord
	unavailable bool
	pagesServed int
}

func (f *fakeStore) FetchPricePage(_ context.Context, page, pageSize int) ([]models.PriceRecord, bool, error) {
	if f.unavailable {
		return nil, false, fmt.Errorf("%w: connection refused", store.ErrUnavailable)
	}
	f.pagesServed++
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

func priceRec(ts, commodity, market string) models.PriceRecord {
	parsed, _ := time.Parse("2006-01-02 15:04", ts)
	return models.PriceRecord{StartTime: parsed, Commodity: commodity, Market: market, PricePerKg: 100}
}

func TestExistingPriceKeys_PagesThroughWholeTable(t *testing.T) {
	fs := &fakeStore{prices: []models.PriceRecord{
		priceRec("2024-03-01 09:30", "Maize White", "Dawanau"),
		priceRec("2024-03-01 10:00", "Maize White", "Dawanau"),
		priceRec("2024-03-01 09:30", "Millet", "Giwa"),
	}}
	engine := NewDeduplicationEngine(fs, 2)

	keys, err := engine.ExistingPriceKeys(context.Background())
	require.NoError(t, err)

	assert.Len(t, keys, 3)
	assert.Equal(t, 2, fs.pagesServed)
	assert.Contains(t, keys, "2024-03-01 09:30_maize white_dawanau")
}

func TestExistingPriceKeys_UnavailableStorePropagates(t *testing.T) {
	engine := NewDeduplicationEngine(&fakeStore{unavailable: true}, 10)

	_, err := engine.ExistingPriceKeys(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestFilterNew_ReuploadIsIdempotent(t *testing.T) {
	existingRecs := []models.PriceRecord{
		priceRec("2024-03-01 09:30", "Maize White", "Dawanau"),
	}
	existing := map[string]struct{}{existingRecs[0].DedupKey(): {}}

	candidates := []models.PriceRecord{
		priceRec("2024-03-01 09:30", "maize white", "DAWANAU"), // same key, different casing
		priceRec("2024-03-01 09:31", "Maize White", "Dawanau"), // next minute is distinct
	}

	fresh, duplicates := FilterNew(candidates, existing)
	assert.Equal(t, 1, duplicates)
	require.Len(t, fresh, 1)
	assert.Equal(t, "2024-03-01 09:31_maize white_dawanau", fresh[0].DedupKey())

	// Second pass with the fresh record now registered yields nothing new.
	existing[fresh[0].DedupKey()] = struct{}{}
	fresh, duplicates = FilterNew(candidates, existing)
	assert.Empty(t, fresh)
	assert.Equal(t, 2, duplicates)
}

func TestFilterNew_DropsWithinBatchRepeats(t *testing.T) {
	candidates := []models.PriceRecord{
		priceRec("2024-03-01 09:30", "Millet", "Giwa"),
		priceRec("2024-03-01 09:30", "Millet", "Giwa"),
	}

	fresh, duplicates := FilterNew(candidates, map[string]struct{}{})
	assert.Len(t, fresh, 1)
	assert.Equal(t, 1, duplicates)
}

func TestOtherSourceKeys_DayGranularity(t *testing.T) {
	morning, _ := time.Parse("2006-01-02 15:04", "2024-03-01 08:00")
	evening, _ := time.Parse("2006-01-02 15:04", "2024-03-01 19:00")

	a := models.OtherSourceRecord{Date: morning, Commodity: "Maize", Location: "Bodija", Price: 100}
	b := models.OtherSourceRecord{Date: evening, Commodity: "Maize", Location: "Bodija", Price: 120}

	// Same day collapses to one key even with different times and prices.
	assert.Equal(t, a.DedupKey(), b.DedupKey())

	fresh, duplicates := FilterNew([]models.OtherSourceRecord{a, b}, map[string]struct{}{})
	assert.Len(t, fresh, 1)
	assert.Equal(t, 1, duplicates)
}
