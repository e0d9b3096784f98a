// backend/src/models/record.go
package models

import (
	"strings"
	"time"
)

// RawRecord is a single untyped row as read from an uploaded CSV/XLSX file,
// keyed by the column names the source used. Column names are not trusted;
// the field normalizer maps them onto the canonical schema.
type RawRecord map[string]string

// PriceRecord is the canonical internal-source price observation submitted
// by field agents. Instances are immutable once validated; the invariant
// PricePerKg == PricePerBag / WeightOfBagKg holds within rounding tolerance
// whenever both prices were present in the source row.
type PriceRecord struct {
	ID            int64     `json:"id,omitempty"` // Database primary key
	StartTime     time.Time `json:"start_time"`
	AgentCode     string    `json:"agent_code"`
	State         string    `json:"state"`
	Market        string    `json:"market"`
	Commodity     string    `json:"commodity"`
	PricePerBag   float64   `json:"price_per_bag"`
	WeightOfBagKg float64   `json:"weight_of_bag_kg"`
	PricePerKg    float64   `json:"price_per_kg"`
	Availability  string    `json:"availability"`
	CommodityType string    `json:"commodity_type"`
}

// DedupKey returns the identity string used to detect already-ingested
// internal records. Granularity is the minute: two observations of the same
// commodity in the same market at different minutes are distinct.
// The key is always recomputed from content, never stored.
func (r PriceRecord) DedupKey() string {
	return r.StartTime.Format("2006-01-02 15:04") + "_" +
		strings.ToLower(r.Commodity) + "_" +
		strings.ToLower(r.Market)
}

// MonthName returns the full English month name of the observation.
func (r PriceRecord) MonthName() string {
	return r.StartTime.Month().String()
}

// OtherSourceRecord is the canonical externally scraped price listing.
// Invariant: Price >= 0 after currency-symbol and separator cleanup.
type OtherSourceRecord struct {
	ID        int64     `json:"id,omitempty"`
	Date      time.Time `json:"date"`
	Commodity string    `json:"commodity"`
	Location  string    `json:"location"`
	Unit      string    `json:"unit"`
	Price     float64   `json:"price"`
	Source    string    `json:"source"`
}

// DedupKey for scraped records is coarser than for internal ones: the same
// day, commodity and location collapse to one key regardless of time-of-day
// or exact price, because scraped sources do not guarantee stable timestamps
// for the same physical observation.
func (r OtherSourceRecord) DedupKey() string {
	return r.Date.Format("2006-01-02") + "_" +
		strings.ToLower(r.Commodity) + "_" +
		strings.ToLower(r.Location)
}

// Keyed is any record carrying a deduplication identity.
type Keyed interface {
	DedupKey() string
}
