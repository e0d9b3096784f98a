// backend/src/models/analysis.go
package models

import "time"

// ChartPoint is the projection of a price record consumed by the dashboard
// chart. Field names match what the presentation layer already plots.
type ChartPoint struct {
	Market      string    `json:"market"`
	PricePerKg  float64   `json:"price_per_kg"`
	PricePerBag float64   `json:"price_per_bag"`
	StartTime   time.Time `json:"start_time"`
	Commodity   string    `json:"commodity"`
}

// PriceMetrics holds the headline KPI values over a filtered record set.
// All fields are zero when the filtered set is empty; an empty filter result
// is not an error.
type PriceMetrics struct {
	Avg   float64 `json:"avg"`
	Max   float64 `json:"max"`
	Min   float64 `json:"min"`
	Count int     `json:"count"`
}

// MarketPrice pairs a market with its mean price per kg.
type MarketPrice struct {
	Market     string  `json:"market"`
	PricePerKg float64 `json:"price_per_kg"`
}

// StrategicSourcing compares per-market averages. Only populated when the
// filtered set spans at least two distinct markets.
type StrategicSourcing struct {
	BestBuy     MarketPrice `json:"best_buy"`
	WorstMarket MarketPrice `json:"worst_market"`
}

// AnalysisResult is the payload of the analysis boundary call.
type AnalysisResult struct {
	ChartData         []ChartPoint       `json:"chart_data"`
	Metrics           PriceMetrics       `json:"metrics"`
	StrategicSourcing *StrategicSourcing `json:"strategic_sourcing,omitempty"`
}

// CommodityGapSummary is one row of the gap-analysis reporting view:
// per-commodity statistics across every market that traded it in the month.
// TopSellingMarket is the market with the highest mean price per kg, the
// mirror of CheapestSource.
type CommodityGapSummary struct {
	Commodity        string  `json:"commodity"`
	Min              float64 `json:"min"`
	Max              float64 `json:"max"`
	Avg              float64 `json:"avg"`
	CheapestSource   string  `json:"cheapest_source"`
	TopSellingMarket string  `json:"top_selling_market"`
}

// Pagination describes one page of a paged response.
type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	TotalItems int  `json:"total_items"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
}

// GapAnalysisResult is a paginated set of gap summaries.
type GapAnalysisResult struct {
	Data       []CommodityGapSummary `json:"data"`
	Pagination Pagination            `json:"pagination"`
}

// FilterOptions enumerates the distinct values the dashboard offers in its
// sidebar selectors.
type FilterOptions struct {
	Commodities []string `json:"commodities"`
	Markets     []string `json:"markets"`
	States      []string `json:"states"`
	Years       []int    `json:"years"`
	Months      []string `json:"months"`
}
