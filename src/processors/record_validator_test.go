package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/agriarche/backend/src/models"
)

func TestValidateInternal_AppliesDefaults(t *testing.T) {
	v := NewRecordValidator()

	valid, rejections := v.ValidateInternal([]models.RawRecord{
		{"start_time": "2024-03-01 09:30", "commodity": "Maize White", "market": "Dawanau", "price_per_kg": "520"},
	})
	require.Empty(t, rejections)
	require.Len(t, valid, 1)

	rec := valid[0]
	assert.Equal(t, DefaultAgentCode, rec.AgentCode)
	assert.Equal(t, DefaultState, rec.State)
	assert.Equal(t, DefaultAvailability, rec.Availability)
	assert.Equal(t, DefaultCommodityType, rec.CommodityType)
	assert.Equal(t, DefaultBagWeightKg, rec.WeightOfBagKg)
	assert.Equal(t, 520.0, rec.PricePerKg)
	assert.Equal(t, 52000.0, rec.PricePerBag, "per-bag price derives from per-kg and bag weight")
}

func TestValidateInternal_DerivesPerKgFromPerBag(t *testing.T) {
	v := NewRecordValidator()

	valid, rejections := v.ValidateInternal([]models.RawRecord{
		{"start_time": "2024-03-01", "commodity": "Millet", "market": "Giwa", "price_per_bag": "45000", "weight_of_bag_kg": "90"},
	})
	require.Empty(t, rejections)
	require.Len(t, valid, 1)

	assert.InDelta(t, 500.0, valid[0].PricePerKg, 1e-6)
	assert.InDelta(t, valid[0].PricePerBag/valid[0].WeightOfBagKg, valid[0].PricePerKg, 1e-6)
}

func TestValidateInternal_RejectionReasons(t *testing.T) {
	v := NewRecordValidator()

	valid, rejections := v.ValidateInternal([]models.RawRecord{
		{"start_time": "not a date", "commodity": "Maize", "market": "Giwa", "price_per_kg": "100"},
		{"start_time": "2024-03-01", "commodity": "", "market": "Giwa", "price_per_kg": "100"},
		{"start_time": "2024-03-01", "commodity": "Maize", "market": "", "price_per_kg": "100"},
		{"start_time": "2024-03-01", "commodity": "Maize", "market": "Giwa", "price_per_kg": "abc"},
		{"start_time": "2024-03-01", "commodity": "Maize", "market": "Giwa", "price_per_kg": "-50"},
		{"start_time": "2024-03-01", "commodity": "Maize", "market": "Giwa"},
	})
	assert.Empty(t, valid)
	require.Len(t, rejections, 6)

	assert.Equal(t, models.Rejection{Row: 1, Reason: "unparseable date"}, rejections[0])
	assert.Equal(t, models.Rejection{Row: 2, Reason: "missing required field: commodity"}, rejections[1])
	assert.Equal(t, models.Rejection{Row: 3, Reason: "missing required field: market"}, rejections[2])
	assert.Equal(t, models.Rejection{Row: 4, Reason: "invalid price"}, rejections[3])
	assert.Equal(t, models.Rejection{Row: 5, Reason: "invalid price"}, rejections[4])
	assert.Equal(t, models.Rejection{Row: 6, Reason: "missing required field: price_per_kg"}, rejections[5])
}

func TestValidateInternal_CleansCurrencyFormatting(t *testing.T) {
	v := NewRecordValidator()

	valid, rejections := v.ValidateInternal([]models.RawRecord{
		{"start_time": "2024-03-01", "commodity": "Maize", "market": "Giwa", "price_per_kg": "₦1,250.50"},
	})
	require.Empty(t, rejections)
	require.Len(t, valid, 1)
	assert.InDelta(t, 1250.50, valid[0].PricePerKg, 1e-9)
}

func TestValidateOtherSource_RequiredFieldsAndSourceDefault(t *testing.T) {
	v := NewRecordValidator()

	valid, rejections := v.ValidateOtherSource([]models.RawRecord{
		{"date": "2024-03-01", "commodity": "Maize", "location": "Bodija", "unit": "100KG", "price": "52,000"},
		{"date": "2024-03-01", "commodity": "Maize", "location": "Bodija", "unit": "", "price": "52000"},
		{"date": "2024-03-01", "commodity": "Maize", "location": "Bodija", "unit": "100KG"},
	})
	require.Len(t, valid, 1)
	require.Len(t, rejections, 2)

	assert.Equal(t, DefaultSourceTag, valid[0].Source)
	assert.Equal(t, 52000.0, valid[0].Price)
	assert.Equal(t, "missing required field: unit", rejections[0].Reason)
	assert.Equal(t, "missing required field: price", rejections[1].Reason)
}
