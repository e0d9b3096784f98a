package processors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/agriarche/backend/src/models"
)

func marchRec(day int, commodity, market string, pricePerKg float64) models.PriceRecord {
	return models.PriceRecord{
		StartTime:  time.Date(2024, time.March, day, 10, 0, 0, 0, time.UTC),
		Commodity:  commodity,
		Market:     market,
		PricePerKg: pricePerKg,
	}
}

func TestAnalyze_MetricsAndStrategicSourcing(t *testing.T) {
	records := []models.PriceRecord{
		marchRec(1, "Maize White", "Dawanau", 200),
		marchRec(2, "Maize White", "Giwa", 220),
		marchRec(3, "Maize White", "Bodija", 240),
	}

	result := NewMetricsAggregator().Analyze(records, AnalysisFilter{Commodity: "Maize White", Exact: true})

	assert.Equal(t, 220.0, result.Metrics.Avg)
	assert.Equal(t, 240.0, result.Metrics.Max)
	assert.Equal(t, 200.0, result.Metrics.Min)
	assert.Equal(t, 3, result.Metrics.Count)
	assert.Len(t, result.ChartData, 3)

	require.NotNil(t, result.StrategicSourcing)
	assert.Equal(t, "Dawanau", result.StrategicSourcing.BestBuy.Market)
	assert.Equal(t, 200.0, result.StrategicSourcing.BestBuy.PricePerKg)
	assert.Equal(t, "Bodija", result.StrategicSourcing.WorstMarket.Market)
}

func TestAnalyze_PartialVersusExactCommodityMatch(t *testing.T) {
	records := []models.PriceRecord{
		marchRec(1, "Maize", "Dawanau", 180),
		marchRec(1, "Maize White", "Giwa", 220),
	}
	agg := NewMetricsAggregator()

	partial := agg.Analyze(records, AnalysisFilter{Commodity: "maize"})
	assert.Equal(t, 2, partial.Metrics.Count)

	exact := agg.Analyze(records, AnalysisFilter{Commodity: "maize", Exact: true})
	assert.Equal(t, 1, exact.Metrics.Count)
	assert.Equal(t, 180.0, exact.Metrics.Min)
}

func TestAnalyze_MonthAndMarketFilters(t *testing.T) {
	records := []models.PriceRecord{
		marchRec(1, "Millet", "Giwa", 300),
		{StartTime: time.Date(2024, time.April, 1, 10, 0, 0, 0, time.UTC), Commodity: "Millet", Market: "Giwa", PricePerKg: 350},
	}
	agg := NewMetricsAggregator()

	result := agg.Analyze(records, AnalysisFilter{Commodity: "Millet", Month: "march"})
	assert.Equal(t, 1, result.Metrics.Count)

	// "All Markets" disables the market filter.
	result = agg.Analyze(records, AnalysisFilter{Commodity: "Millet", Market: AllMarkets})
	assert.Equal(t, 2, result.Metrics.Count)

	result = agg.Analyze(records, AnalysisFilter{Commodity: "Millet", Market: "Dawanau"})
	assert.Equal(t, 0, result.Metrics.Count)
}

func TestAnalyze_EmptySetIsZeroValuedNotError(t *testing.T) {
	result := NewMetricsAggregator().Analyze(nil, AnalysisFilter{Commodity: "Maize"})

	assert.Equal(t, models.PriceMetrics{}, result.Metrics)
	assert.Empty(t, result.ChartData)
	assert.Nil(t, result.StrategicSourcing)
}

func TestAnalyze_SingleMarketHasNoSourcing(t *testing.T) {
	records := []models.PriceRecord{
		marchRec(1, "Millet", "Giwa", 300),
		marchRec(2, "Millet", "Giwa", 320),
	}

	result := NewMetricsAggregator().Analyze(records, AnalysisFilter{Commodity: "Millet"})
	assert.Nil(t, result.StrategicSourcing)
}

func TestVolatility(t *testing.T) {
	assert.Equal(t, 20.0, Volatility(200, 240))
	assert.Equal(t, 0.0, Volatility(0, 240), "non-positive minimum reports zero")
	assert.Equal(t, 0.0, Volatility(-5, 240))
}

func TestGapAnalysis_SummarizesPerCommodity(t *testing.T) {
	records := []models.PriceRecord{
		marchRec(1, "Maize White", "Dawanau", 200),
		marchRec(2, "Maize White", "Giwa", 240),
		marchRec(3, "Millet", "Giwa", 300),
		{StartTime: time.Date(2024, time.April, 1, 10, 0, 0, 0, time.UTC), Commodity: "Maize White", Market: "Dawanau", PricePerKg: 999},
	}

	summaries := NewMetricsAggregator().GapAnalysis(records, "March")
	require.Len(t, summaries, 2)

	maize := summaries[0]
	assert.Equal(t, "Maize White", maize.Commodity)
	assert.Equal(t, 200.0, maize.Min)
	assert.Equal(t, 240.0, maize.Max)
	assert.Equal(t, 220.0, maize.Avg)
	assert.Equal(t, "Dawanau", maize.CheapestSource)
	assert.Equal(t, "Giwa", maize.TopSellingMarket)

	millet := summaries[1]
	assert.Equal(t, "Millet", millet.Commodity)
	assert.Equal(t, "Giwa", millet.CheapestSource, "single-market commodity points both labels at that market")
	assert.Equal(t, "Giwa", millet.TopSellingMarket)
}

func TestFilterOptions_MonthsInCalendarOrder(t *testing.T) {
	records := []models.PriceRecord{
		{StartTime: time.Date(2024, time.November, 1, 0, 0, 0, 0, time.UTC), Commodity: "Millet", Market: "Giwa", State: "Kano", PricePerKg: 300},
		{StartTime: time.Date(2023, time.February, 1, 0, 0, 0, 0, time.UTC), Commodity: "Maize White", Market: "Dawanau", PricePerKg: 200},
	}

	opts := NewMetricsAggregator().FilterOptions(records)

	assert.Equal(t, []string{"Maize White", "Millet"}, opts.Commodities)
	assert.Equal(t, []string{"Dawanau", "Giwa"}, opts.Markets)
	assert.Equal(t, []string{"Kano"}, opts.States)
	assert.Equal(t, []int{2023, 2024}, opts.Years)
	assert.Equal(t, []string{"February", "November"}, opts.Months)
}
