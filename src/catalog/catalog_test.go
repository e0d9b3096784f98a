package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalName_CompoundVariants(t *testing.T) {
	cases := map[string]string{
		"white maize":     "Maize White",
		"MAIZE (WHITE)":   "Maize White",
		"Maize white dry": "Maize White",
		"red sorghum":     "Sorghum Red",
		"Sorghum (Red)":   "Sorghum Red",
		"brown cowpea":    "Cowpea Brown",
		"cowpea white":    "Cowpea White",
		"soya beans":      "Soybeans",
		"soyabean":        "Soybeans",
		"paddy rice":      "Rice Paddy",
	}
	for raw, want := range cases {
		assert.Equal(t, want, CanonicalName(raw), "raw=%q", raw)
	}
}

func TestCanonicalName_PlainCropKeepsSimpleName(t *testing.T) {
	// Without a colour token the generic name stays generic, so "Maize"
	// and "Maize White" remain distinct entries in the store.
	assert.Equal(t, "Maize", CanonicalName("maize"))
	assert.Equal(t, "Sorghum", CanonicalName("SORGHUM"))
}

func TestCanonicalName_UnknownCapitalizes(t *testing.T) {
	assert.Equal(t, "Cassava", CanonicalName("cassava"))
	assert.Equal(t, "Yam flour", CanonicalName("yam flour"))
}

func TestCatalogLookupIsCaseInsensitive(t *testing.T) {
	cat := NewDefault()
	info, ok := cat.Lookup("maize white")
	require.True(t, ok)
	assert.NotEmpty(t, info.Description)

	_, ok = cat.Lookup("unobtainium")
	assert.False(t, ok)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	payload := `{"Maize White": {"desc": "Staple grain", "markets": "Dawanau", "abundance": "High", "note": ""}}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	cat, err := LoadFromFile(path)
	require.NoError(t, err)

	info, ok := cat.Lookup("Maize White")
	require.True(t, ok)
	assert.Equal(t, "Staple grain", info.Description)
	assert.Equal(t, "Dawanau", info.PrimaryMarkets)
}
