package normalize

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wegman-software/osmwrangle/internal/rules"
)

func newTestNormalizer() *Normalizer {
	return New(rules.Default())
}

func TestNormalizeState(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		value      string
		want       string
		recognized bool
	}{
		{"CA", "CA", true},
		{"ca", "CA", true},
		{"California", "CA", true},
		{"CALIFORNIA", "CA", true},
		{"Calif.", "CA", true},
		{"NY", "None", false},
		{"", "None", false},
		{"Nevada", "None", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got := n.Normalize("addr:state", tt.value)
			assert.Equal(t, tt.want, got.Value)
			assert.Equal(t, RuleState, got.Rule)
			assert.Equal(t, tt.recognized, got.Recognized)
		})
	}
}

func TestNormalizeStateOnlyProducesCAOrSentinel(t *testing.T) {
	n := newTestNormalizer()
	for _, v := range []string{"CA", "ca ", "Oregon", "94110", "C A", "cA", "  california  ", "WA", "-"} {
		got := n.Normalize("addr:state", v).Value
		assert.Contains(t, []string{"CA", "None"}, got, "input %q", v)
	}
}

func TestNormalizeStateRequiresExactKey(t *testing.T) {
	n := newTestNormalizer()

	got := n.Normalize("is_in:state", "California")
	assert.Equal(t, "California", got.Value)
	assert.Equal(t, RuleNone, got.Rule)
}

func TestNormalizePostcode(t *testing.T) {
	n := newTestNormalizer()
	valid := regexp.MustCompile(`^\d{5}(-\d{4})?$`)

	tests := []struct {
		key   string
		value string
		want  string
	}{
		{"addr:postcode", "94110", "94110"},
		{"addr:postcode", "94110-1234", "94110-1234"},
		{"addr:postcode", "CA 94103", "94103"},
		{"addr:postcode", "94110-12", "94110"},
		{"addr:postcode", "9411", "None"},
		{"addr:postcode", "CA", "None"},
		{"postcode", "94016", "94016"},
		{"tiger:zip_left_postcode", "  94107  ", "94107"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			got := n.Normalize(tt.key, tt.value)
			assert.Equal(t, tt.want, got.Value)
			assert.Equal(t, RulePostcode, got.Rule)
			if got.Value != "None" {
				assert.Regexp(t, valid, got.Value)
				assert.True(t, got.Recognized)
			} else {
				assert.False(t, got.Recognized)
			}
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		key   string
		value string
		want  string
	}{
		{"phone", "+1 415 555 1234", "+1 415 555 1234"},
		{"phone", "(415) 555-1234", "(415) 555-1234"},
		{"contact:phone", "415.555.1234", "415.555.1234"},
		{"phone", "415-555-CALL", "None"},
		{"phone", "ext 12", "None"},
		{"phone", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got := n.Normalize(tt.key, tt.value)
			assert.Equal(t, tt.want, got.Value)
			assert.Equal(t, RulePhone, got.Rule)
		})
	}
}

func TestNormalizeStreet(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		value string
		want  string
	}{
		{"123 Main St.", "123 Main Street"},
		{"Market St", "Market Street"},
		{"Van Ness Ave.", "Van Ness Avenue"},
		{"Cesar Chavez Blvd", "Cesar Chavez Boulevard"},
		{"Howard Rd.", "Howard Road"},
		{"Embarcadero Ctr", "Embarcadero Center"},
		{"Valencia Street", "Valencia Street"},
		{"Lombard Ln.", "Lombard Lane"},
		{"", ""},
		{"   ", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got := n.Normalize("addr:street", tt.value)
			assert.Equal(t, tt.want, got.Value)
			assert.Equal(t, RuleStreet, got.Rule)
		})
	}
}

func TestExpandStreetMatchesInsideWords(t *testing.T) {
	n := newTestNormalizer()

	// substring replacement also hits abbreviations inside longer words
	assert.Equal(t, "Streetockton Avenue", n.ExpandStreet("Stockton Ave"))
	assert.Equal(t, "Main Placeaza", n.ExpandStreet("Main Plz"))
}

func TestExpandStreetIsIdempotent(t *testing.T) {
	n := newTestNormalizer()

	inputs := []string{
		"123 Main St.", "Market St", "Van Ness Ave", "Stockton Ave", "Main Plz",
		"Dr. Carlton B. Goodlett Pl", "Embarcadero Ctr", "Howard Rd", "Mission Street",
		"Lombard Ln.", "Ocean Blvd.", "Grant Ct",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			once := n.Normalize("addr:street", in).Value
			twice := n.Normalize("addr:street", once).Value
			assert.Equal(t, once, twice)
		})
	}
}

func TestExpandStreetRewritesInsideExpandedWords(t *testing.T) {
	n := newTestNormalizer()

	// Pl matches inside Plaza and Place is not present yet
	assert.Equal(t, "Main Placeaza", n.Normalize("addr:street", "Main Plaza").Value)
	assert.Equal(t, "Main Placeaza", n.Normalize("addr:street", "Main Placeaza").Value)
}

func TestNormalizeDispatchOrder(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		key  string
		rule Rule
	}{
		{"addr:state", RuleState},
		{"addr:postcode", RulePostcode},
		{"postcode_phone", RulePostcode},
		{"street_phone", RulePhone},
		{"addr:street", RuleStreet},
		{"street:name", RuleStreet},
		{"name", RuleNone},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.rule, n.Normalize(tt.key, "x").Rule)
		})
	}
}

func TestNormalizeOtherKeysUnchanged(t *testing.T) {
	n := newTestNormalizer()

	got := n.Normalize("tiger:county", "San Francisco, CA")
	assert.Equal(t, Result{Value: "San Francisco, CA", Recognized: true}, got)
}

func TestCustomSentinel(t *testing.T) {
	r := rules.Default()
	r.Sentinel = "UNKNOWN"
	n := New(r)

	assert.Equal(t, "UNKNOWN", n.Normalize("addr:state", "TX").Value)
}

func TestStreetType(t *testing.T) {
	typ, ok := StreetType("123 Main St.")
	assert.True(t, ok)
	assert.Equal(t, "St.", typ)

	_, ok = StreetType("")
	assert.False(t, ok)
}
