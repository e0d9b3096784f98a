// backend/src/catalog/catalog.go
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"
)

// Info is the descriptive metadata kept per canonical commodity.
type Info struct {
	Description    string `json:"desc"`
	PrimaryMarkets string `json:"markets"`
	Abundance      string `json:"abundance"`
	Note           string `json:"note"`
}

// Catalog maps canonical commodity names to their metadata. It is loaded
// once at process start and read-only thereafter, so it needs no locking
// and can be shared freely across components.
type Catalog struct {
	entries map[string]Info
}

// NewDefault returns the built-in commodity catalog.
func NewDefault() *Catalog {
	return &Catalog{entries: map[string]Info{
		"Soybeans": {"A raw leguminous crop used for oil and feed.", "Mubi, Giwa, and Kumo", "Nov, Dec, and April", "A key industrial driver for the poultry and vegetable oil sectors."},
		"Cowpea Brown": {"Protein-rich legume popular in local diets.", "Dawanau and Potiskum", "Oct through Jan", "Supply depends on Northern storage."},
		"Cowpea White": {"Staple bean variety used for commercial flour.", "Dawanau and Bodija", "Oct and Nov", "High demand in South drives prices."},
		"Honey beans": {"Premium sweet brown beans (Oloyin).", "Oyingbo and Dawanau", "Oct to Dec", "Often carries a price premium."},
		"Maize White": {"Primary cereal crop for food and industry.", "Giwa, Makarfi, and Funtua", "Sept to Nov", "Correlates strongly with Sorghum trends."},
		"Rice Paddy": {"Raw rice before milling/processing.", "Argungu and Kano", "Nov and Dec", "Foundations for processed rice pricing."},
		"Rice processed": {"Milled and polished local rice.", "Kano, Lagos, and Onitsha", "Year-round", "Price fluctuates with fuel/milling costs."},
		"Sorghum Red": {"Drought-resistant grain staple.", "Dawanau and Gombe", "Dec and Jan", "Market substitute for Maize."},
		"Millet": {"Fast-growing cereal for the lean season.", "Dawanau and Potiskum", "Sept and Oct", "First harvest after rainy season."},
		"Groundnut gargaja": {"Local peanut variety for oil extraction.", "Dawanau and Gombe", "Oct and Nov", "Sahel region specialty."},
		"Groundnut kampala": {"Large, premium roasting groundnuts.", "Kano and Dawanau", "Oct and Nov", "Higher oil content than Gargaja."},
	}}
}

// LoadFromFile reads a catalog from a JSON file shaped as
// {"Canonical Name": {"desc": ..., "markets": ..., "abundance": ..., "note": ...}}.
func LoadFromFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read commodity catalog %s: %w", path, err)
	}
	entries := make(map[string]Info)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse commodity catalog %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("commodity catalog %s is empty", path)
	}
	return &Catalog{entries: entries}, nil
}

// Lookup canonicalizes name and returns the catalog entry for it.
func (c *Catalog) Lookup(name string) (Info, bool) {
	info, ok := c.entries[CanonicalName(name)]
	return info, ok
}

// Names returns all canonical commodity names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// compoundRule matches a commodity when the input contains any crop token
// and, if colour tokens are listed, any colour token as well. Token
// containment makes the match independent of adjective order and casing:
// "White Maize", "maize white" and "MAIZE, WHITE" all land on the same
// canonical spelling.
type compoundRule struct {
	canonical string
	crop      []string
	colour    []string
}

// Rules are ordered most-specific first; the first match wins. This is the
// single normalization used by the catalog lookup, the field normalizer and
// dedup key construction. If the forms ever diverge, identical commodities
// silently split into separate buckets.
var nameRules = []compoundRule{
	{"Soybeans", []string{"soya", "soy"}, nil},
	{"Maize White", []string{"maize", "corn"}, []string{"white"}},
	{"Maize", []string{"maize", "corn"}, nil},
	{"Cowpea Brown", []string{"cowpea"}, []string{"brown"}},
	{"Cowpea White", []string{"cowpea"}, []string{"white"}},
	{"Honey beans", []string{"honey"}, nil},
	{"Rice Paddy", []string{"rice"}, []string{"paddy"}},
	{"Rice processed", []string{"rice"}, []string{"process"}},
	{"Sorghum Red", []string{"sorghum"}, []string{"red"}},
	{"Sorghum", []string{"sorghum"}, nil},
	{"Millet", []string{"millet"}, nil},
	{"Groundnut gargaja", []string{"groundnut"}, []string{"gargaja"}},
	{"Groundnut kampala", []string{"groundnut"}, []string{"kampala"}},
}

// CanonicalName maps any commodity name variant onto its single canonical
// spelling. Unrecognized names are returned capitalized, so they still form
// stable (if uncatalogued) aggregation buckets.
func CanonicalName(raw string) string {
	text := strings.ToLower(strings.TrimSpace(raw))
	for _, rule := range nameRules {
		if !containsAny(text, rule.crop) {
			continue
		}
		if rule.colour != nil && !containsAny(text, rule.colour) {
			continue
		}
		return rule.canonical
	}
	return capitalize(text)
}

func containsAny(text string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(text, tok) {
			return true
		}
	}
	return false
}

// capitalize upper-cases the first rune and leaves the rest lower-cased,
// matching how unrecognized names were labelled upstream.
func capitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
