// backend/src/processors/record_validator.go
package processors

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/username/agriarche/backend/src/models"
	"github.com/username/agriarche/backend/src/utils"
)

// Documented defaults applied to optional fields before the required-field
// check runs. Rows still missing a required field after defaulting are
// dropped with a reason naming the field.
const (
	DefaultBagWeightKg   = 100.0
	DefaultAgentCode     = "WEB_UPLOAD"
	DefaultState         = "Unknown"
	DefaultAvailability  = "Available"
	DefaultCommodityType = "General"
	DefaultSourceTag     = "web_scraping"
)

// RecordValidator type-coerces normalized rows into canonical records and
// collects per-row rejections. It is a pure transform: no side effects, and
// the rejection report is always returned to the caller.
type RecordValidator struct{}

func NewRecordValidator() *RecordValidator {
	return &RecordValidator{}
}

// ValidateInternal coerces field-agent rows into PriceRecords.
// When only one of the two prices is present the other is derived via the
// bag weight, so the PricePerKg == PricePerBag/WeightOfBagKg invariant holds
// on every record this returns.
func (v *RecordValidator) ValidateInternal(rows []models.RawRecord) ([]models.PriceRecord, []models.Rejection) {
	var valid []models.PriceRecord
	var rejections []models.Rejection

	for i, row := range rows {
		rowNum := i + 1

		startTime, err := utils.ParseFlexibleTime(row["start_time"])
		if err != nil {
			rejections = append(rejections, models.Rejection{Row: rowNum, Reason: "unparseable date"})
			continue
		}

		commodity := strings.TrimSpace(row["commodity"])
		if commodity == "" {
			rejections = append(rejections, models.Rejection{Row: rowNum, Reason: "missing required field: commodity"})
			continue
		}
		market := strings.TrimSpace(row["market"])
		if market == "" {
			rejections = append(rejections, models.Rejection{Row: rowNum, Reason: "missing required field: market"})
			continue
		}

		perKg, perKgOK, err := parseOptionalPrice(row["price_per_kg"])
		if err != nil {
			rejections = append(rejections, models.Rejection{Row: rowNum, Reason: "invalid price"})
			continue
		}
		perBag, perBagOK, err := parseOptionalPrice(row["price_per_bag"])
		if err != nil {
			rejections = append(rejections, models.Rejection{Row: rowNum, Reason: "invalid price"})
			continue
		}
		if !perKgOK && !perBagOK {
			rejections = append(rejections, models.Rejection{Row: rowNum, Reason: "missing required field: price_per_kg"})
			continue
		}

		weight, weightOK, err := parseOptionalPrice(row["weight_of_bag_kg"])
		if err != nil || (weightOK && weight <= 0) {
			rejections = append(rejections, models.Rejection{Row: rowNum, Reason: "invalid price"})
			continue
		}
		if !weightOK {
			weight = DefaultBagWeightKg
		}

		// Derive the missing price from the present one plus the bag weight.
		if !perKgOK {
			perKg = perBag / weight
		}
		if !perBagOK {
			perBag = perKg * weight
		}

		valid = append(valid, models.PriceRecord{
			StartTime:     startTime,
			AgentCode:     defaultString(row["agent_code"], DefaultAgentCode),
			State:         defaultString(row["state"], DefaultState),
			Market:        market,
			Commodity:     commodity,
			PricePerBag:   perBag,
			WeightOfBagKg: weight,
			PricePerKg:    perKg,
			Availability:  defaultString(row["availability"], DefaultAvailability),
			CommodityType: defaultString(row["commodity_type"], DefaultCommodityType),
		})
	}
	return valid, rejections
}

// ValidateOtherSource coerces scraped rows into OtherSourceRecords.
func (v *RecordValidator) ValidateOtherSource(rows []models.RawRecord) ([]models.OtherSourceRecord, []models.Rejection) {
	var valid []models.OtherSourceRecord
	var rejections []models.Rejection

	for i, row := range rows {
		rowNum := i + 1

		date, err := utils.ParseFlexibleTime(row["date"])
		if err != nil {
			rejections = append(rejections, models.Rejection{Row: rowNum, Reason: "unparseable date"})
			continue
		}

		commodity := strings.TrimSpace(row["commodity"])
		if commodity == "" {
			rejections = append(rejections, models.Rejection{Row: rowNum, Reason: "missing required field: commodity"})
			continue
		}
		location := strings.TrimSpace(row["location"])
		if location == "" {
			rejections = append(rejections, models.Rejection{Row: rowNum, Reason: "missing required field: location"})
			continue
		}
		unit := strings.TrimSpace(row["unit"])
		if unit == "" {
			rejections = append(rejections, models.Rejection{Row: rowNum, Reason: "missing required field: unit"})
			continue
		}

		price, ok, err := parseOptionalPrice(row["price"])
		if err != nil {
			rejections = append(rejections, models.Rejection{Row: rowNum, Reason: "invalid price"})
			continue
		}
		if !ok {
			rejections = append(rejections, models.Rejection{Row: rowNum, Reason: "missing required field: price"})
			continue
		}

		valid = append(valid, models.OtherSourceRecord{
			Date:      date,
			Commodity: commodity,
			Location:  location,
			Unit:      unit,
			Price:     price,
			Source:    defaultString(row["source"], DefaultSourceTag),
		})
	}
	return valid, rejections
}

// priceCleaner strips currency glyphs and thousand separators before
// numeric coercion: "₦1,250.50" -> "1250.50".
var priceCleaner = strings.NewReplacer(",", "", "₦", "", "NGN", "", "N", "", " ", "")

// parseOptionalPrice parses a possibly empty price string. Returns
// (0, false, nil) for an absent value, and an error for garbage or a
// negative result.
func parseOptionalPrice(s string) (float64, bool, error) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return 0, false, nil
	}
	cleaned = priceCleaner.Replace(cleaned)
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, false, fmt.Errorf("invalid price %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, false, fmt.Errorf("negative price %q", s)
	}
	return d.InexactFloat64(), true, nil
}

func defaultString(s, fallback string) string {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" {
		return fallback
	}
	return cleaned
}
