// backend/src/processors/metrics_aggregator.go
package processors

import (
	"sort"
	"strings"
	"time"

	"github.com/username/agriarche/backend/src/models"
	"github.com/username/agriarche/backend/src/utils"
)

// AllMarkets is the sentinel the dashboard sends when no market filter is
// applied.
const AllMarkets = "All Markets"

// AnalysisFilter selects the record subset to aggregate over.
// Commodity matching is case-insensitive; with Exact=false (the default)
// it is a substring match, intentionally permissive so "Maize" also covers
// "Maize White". Month is matched case-insensitively against the full
// English month name. An empty or "All Markets" market means no market
// filter.
type AnalysisFilter struct {
	Commodity string
	Month     string
	Market    string
	Exact     bool
}

// MetricsAggregator computes the dashboard statistics over stored records.
// All methods are pure functions of their inputs. Stored data may contain
// duplicate dedup keys (concurrent uploads can race past the pre-check);
// the aggregator simply averages over whatever rows exist.
type MetricsAggregator struct{}

func NewMetricsAggregator() *MetricsAggregator {
	return &MetricsAggregator{}
}

// Analyze filters the record set and returns the chart projection, the
// headline metrics (all zero on an empty set, never an error), and the
// strategic sourcing comparison when at least two distinct markets are
// present.
func (a *MetricsAggregator) Analyze(records []models.PriceRecord, f AnalysisFilter) *models.AnalysisResult {
	filtered := filterRecords(records, f)

	result := &models.AnalysisResult{
		ChartData: make([]models.ChartPoint, 0, len(filtered)),
	}
	if len(filtered) == 0 {
		return result
	}

	var sum float64
	min, max := filtered[0].PricePerKg, filtered[0].PricePerKg
	for _, rec := range filtered {
		result.ChartData = append(result.ChartData, models.ChartPoint{
			Market:      rec.Market,
			PricePerKg:  rec.PricePerKg,
			PricePerBag: rec.PricePerBag,
			StartTime:   rec.StartTime,
			Commodity:   rec.Commodity,
		})
		sum += rec.PricePerKg
		if rec.PricePerKg < min {
			min = rec.PricePerKg
		}
		if rec.PricePerKg > max {
			max = rec.PricePerKg
		}
	}
	result.Metrics = models.PriceMetrics{
		Avg:   utils.RoundFloat(sum/float64(len(filtered)), 2),
		Max:   max,
		Min:   min,
		Count: len(filtered),
	}
	result.StrategicSourcing = strategicSourcing(filtered)
	return result
}

// Volatility is the (max-min)/min spread as a percentage, used by advisory
// text. A non-positive minimum reports 0 rather than dividing by zero.
func Volatility(min, max float64) float64 {
	if min <= 0 {
		return 0
	}
	return utils.RoundFloat((max-min)/min*100, 1)
}

// GapAnalysis is the fan-out reporting view: for one month, every commodity
// is summarized across all markets that traded it. Results are sorted by
// commodity name; transport pagination is the caller's concern.
func (a *MetricsAggregator) GapAnalysis(records []models.PriceRecord, month string) []models.CommodityGapSummary {
	byCommodity := make(map[string][]models.PriceRecord)
	for _, rec := range records {
		if !strings.EqualFold(rec.MonthName(), strings.TrimSpace(month)) {
			continue
		}
		byCommodity[rec.Commodity] = append(byCommodity[rec.Commodity], rec)
	}

	summaries := make([]models.CommodityGapSummary, 0, len(byCommodity))
	for commodity, recs := range byCommodity {
		var sum float64
		min, max := recs[0].PricePerKg, recs[0].PricePerKg
		for _, rec := range recs {
			sum += rec.PricePerKg
			if rec.PricePerKg < min {
				min = rec.PricePerKg
			}
			if rec.PricePerKg > max {
				max = rec.PricePerKg
			}
		}
		summary := models.CommodityGapSummary{
			Commodity: commodity,
			Min:       min,
			Max:       max,
			Avg:       utils.RoundFloat(sum/float64(len(recs)), 2),
		}
		if sourcing := strategicSourcing(recs); sourcing != nil {
			summary.CheapestSource = sourcing.BestBuy.Market
			summary.TopSellingMarket = sourcing.WorstMarket.Market
		} else {
			// Single-market commodity: both labels point at that market.
			summary.CheapestSource = recs[0].Market
			summary.TopSellingMarket = recs[0].Market
		}
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Commodity < summaries[j].Commodity
	})
	return summaries
}

// FilterOptions enumerates the distinct filter values present in the record
// set, for the dashboard's sidebar selectors.
func (a *MetricsAggregator) FilterOptions(records []models.PriceRecord) *models.FilterOptions {
	commodities := make(map[string]struct{})
	markets := make(map[string]struct{})
	states := make(map[string]struct{})
	years := make(map[int]struct{})
	months := make(map[string]struct{})
	for _, rec := range records {
		commodities[rec.Commodity] = struct{}{}
		markets[rec.Market] = struct{}{}
		if rec.State != "" {
			states[rec.State] = struct{}{}
		}
		years[rec.StartTime.Year()] = struct{}{}
		months[rec.MonthName()] = struct{}{}
	}

	opts := &models.FilterOptions{
		Commodities: sortedKeys(commodities),
		Markets:     sortedKeys(markets),
		States:      sortedKeys(states),
	}
	for year := range years {
		opts.Years = append(opts.Years, year)
	}
	sort.Ints(opts.Years)
	// Months come back in calendar order, not alphabetical.
	opts.Months = make([]string, 0, len(months))
	for m := time.January; m <= time.December; m++ {
		if _, ok := months[m.String()]; ok {
			opts.Months = append(opts.Months, m.String())
		}
	}
	return opts
}

func filterRecords(records []models.PriceRecord, f AnalysisFilter) []models.PriceRecord {
	commodity := strings.ToLower(strings.TrimSpace(f.Commodity))
	month := strings.TrimSpace(f.Month)
	market := strings.TrimSpace(f.Market)
	marketFiltered := market != "" && !strings.EqualFold(market, AllMarkets)

	var filtered []models.PriceRecord
	for _, rec := range records {
		recCommodity := strings.ToLower(rec.Commodity)
		if f.Exact {
			if recCommodity != commodity {
				continue
			}
		} else if !strings.Contains(recCommodity, commodity) {
			continue
		}
		if month != "" && !strings.EqualFold(rec.MonthName(), month) {
			continue
		}
		if marketFiltered && !strings.EqualFold(rec.Market, market) {
			continue
		}
		filtered = append(filtered, rec)
	}
	return filtered
}

// strategicSourcing compares per-market mean prices. Returns nil unless at
// least two distinct markets are present. Ties are broken by the
// first-encountered market in sorted name order.
func strategicSourcing(records []models.PriceRecord) *models.StrategicSourcing {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, rec := range records {
		sums[rec.Market] += rec.PricePerKg
		counts[rec.Market]++
	}
	if len(sums) < 2 {
		return nil
	}

	names := make([]string, 0, len(sums))
	for market := range sums {
		names = append(names, market)
	}
	sort.Strings(names)

	best := names[0]
	worst := names[0]
	for _, market := range names[1:] {
		if mean(sums, counts, market) < mean(sums, counts, best) {
			best = market
		}
		if mean(sums, counts, market) > mean(sums, counts, worst) {
			worst = market
		}
	}
	return &models.StrategicSourcing{
		BestBuy:     models.MarketPrice{Market: best, PricePerKg: utils.RoundFloat(mean(sums, counts, best), 2)},
		WorstMarket: models.MarketPrice{Market: worst, PricePerKg: utils.RoundFloat(mean(sums, counts, worst), 2)},
	}
}

func mean(sums map[string]float64, counts map[string]int, market string) float64 {
	return sums[market] / float64(counts[market])
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
