// backend/src/services/analysis_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/patrickmn/go-cache"

	"github.com/username/agriarche/backend/src/catalog"
	"github.com/username/agriarche/backend/src/logger"
	"github.com/username/agriarche/backend/src/models"
	"github.com/username/agriarche/backend/src/processors"
	"github.com/username/agriarche/backend/src/store"
)

const (
	cacheKeyAnalysisPrefix = "analysis:"
	cacheKeyGapPrefix      = "gap:"
	cacheKeyFilterOptions  = "filter_options"
)

// analysisService serves the dashboard reads. Aggregations run over the full
// price table fetched page by page; results are cached until the next upload
// invalidates them.
type analysisService struct {
	store      store.Store
	aggregator *processors.MetricsAggregator
	catalog    *catalog.Catalog
	cache      *cache.Cache
	pageSize   int
}

func NewAnalysisService(s store.Store, aggregator *processors.MetricsAggregator, cat *catalog.Catalog, c *cache.Cache, pageSize int) AnalysisService {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &analysisService{
		store:      s,
		aggregator: aggregator,
		catalog:    cat,
		cache:      c,
		pageSize:   pageSize,
	}
}

func (s *analysisService) GetAnalysis(ctx context.Context, f processors.AnalysisFilter) (*models.AnalysisResult, error) {
	key := fmt.Sprintf("%s%s|%s|%s|%t", cacheKeyAnalysisPrefix, strings.ToLower(f.Commodity), f.Month, f.Market, f.Exact)
	if cached, found := s.cache.Get(key); found {
		return cached.(*models.AnalysisResult), nil
	}

	records, err := s.fetchAllPrices(ctx)
	if err != nil {
		return nil, err
	}
	result := s.aggregator.Analyze(records, f)
	s.cache.Set(key, result, cache.DefaultExpiration)
	return result, nil
}

func (s *analysisService) GetGapAnalysis(ctx context.Context, month string, page, pageSize int) (*models.GapAnalysisResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	key := cacheKeyGapPrefix + strings.ToLower(strings.TrimSpace(month))
	summaries, found := s.cachedGapSummaries(key)
	if !found {
		records, err := s.fetchAllPrices(ctx)
		if err != nil {
			return nil, err
		}
		summaries = s.aggregator.GapAnalysis(records, month)
		s.cache.Set(key, summaries, cache.DefaultExpiration)
	}

	total := len(summaries)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return &models.GapAnalysisResult{
		Data:       summaries[start:end],
		Pagination: paginate(page, pageSize, total),
	}, nil
}

func (s *analysisService) GetFilterOptions(ctx context.Context) (*models.FilterOptions, error) {
	if cached, found := s.cache.Get(cacheKeyFilterOptions); found {
		return cached.(*models.FilterOptions), nil
	}
	records, err := s.fetchAllPrices(ctx)
	if err != nil {
		return nil, err
	}
	opts := s.aggregator.FilterOptions(records)
	s.cache.Set(cacheKeyFilterOptions, opts, cache.DefaultExpiration)
	return opts, nil
}

func (s *analysisService) GetFilteredRecords(ctx context.Context, f store.PriceFilter, page, pageSize int) ([]models.PriceRecord, models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	return s.store.QueryFilteredPrices(ctx, f, page, pageSize)
}

// GetIntelligence pairs the static catalog entry with live statistics for one
// commodity. Matching against stored records is exact on the canonical name.
func (s *analysisService) GetIntelligence(ctx context.Context, commodity string) (*CommodityIntelligence, error) {
	canonical := catalog.CanonicalName(commodity)
	info, ok := s.catalog.Lookup(canonical)
	if !ok {
		return nil, fmt.Errorf("unknown commodity %q", commodity)
	}

	result, err := s.GetAnalysis(ctx, processors.AnalysisFilter{Commodity: canonical, Exact: true})
	if err != nil {
		return nil, err
	}

	volatility := processors.Volatility(result.Metrics.Min, result.Metrics.Max)
	return &CommodityIntelligence{
		Commodity:         canonical,
		Info:              info,
		CurrentAvgPerKg:   result.Metrics.Avg,
		VolatilityPercent: volatility,
		Advisory:          advisory(volatility, result.Metrics.Count),
	}, nil
}

func (s *analysisService) InvalidateCache() {
	s.cache.Flush()
	logger.L.Debug("Analysis cache invalidated")
}

func (s *analysisService) cachedGapSummaries(key string) ([]models.CommodityGapSummary, bool) {
	cached, found := s.cache.Get(key)
	if !found {
		return nil, false
	}
	summaries, ok := cached.([]models.CommodityGapSummary)
	return summaries, ok
}

// fetchAllPrices pages through the price table until the store reports no
// next page.
func (s *analysisService) fetchAllPrices(ctx context.Context) ([]models.PriceRecord, error) {
	var records []models.PriceRecord
	for page := 1; ; page++ {
		pageRecords, hasNext, err := s.store.FetchPricePage(ctx, page, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("fetching price records (page %d): %w", page, err)
		}
		records = append(records, pageRecords...)
		if !hasNext {
			return records, nil
		}
	}
}

func paginate(page, pageSize, total int) models.Pagination {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}
	return models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

func advisory(volatility float64, count int) string {
	switch {
	case count == 0:
		return "No recorded observations for this commodity yet."
	case volatility >= 30:
		return fmt.Sprintf("High price volatility (%.1f%%). Compare markets before committing volume.", volatility)
	case volatility >= 10:
		return fmt.Sprintf("Moderate price volatility (%.1f%%). Spot-check alternative markets.", volatility)
	default:
		return "Prices are stable across recorded markets."
	}
}
