package rules

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidRules is returned when a rules file fails validation
var ErrInvalidRules = errors.New("invalid rules")

// Abbreviation maps an abbreviated street-type token to its expanded form
type Abbreviation struct {
	Abbrev    string `yaml:"abbrev"`
	Expansion string `yaml:"expansion"`
}

// Rules holds the classification and normalization configuration.
// A Rules value is never mutated after Load or Default returns it.
type Rules struct {
	// DisallowedKeyChars rejects any tag key containing one of these characters
	DisallowedKeyChars string `yaml:"disallowed_key_chars"`
	// DefaultNamespace is the type assigned to keys without a namespace
	DefaultNamespace string `yaml:"default_namespace"`
	// Placeholder marks an attribute value as absent
	Placeholder string `yaml:"placeholder"`
	// Sentinel is written for values that fail validation
	Sentinel string `yaml:"sentinel"`
	// StreetAbbreviations is applied in order, first entry first
	StreetAbbreviations []Abbreviation `yaml:"street_abbreviations"`
	// ExpectedStreetTypes is used by the audit to flag unusual street names
	ExpectedStreetTypes []string `yaml:"expected_street_types"`
	// AuditSampleLimit caps the number of sample values kept per audit bucket
	AuditSampleLimit int `yaml:"audit_sample_limit"`
}

// Default returns the built-in rules.
// Dotted abbreviations precede their undotted forms. Matching is by substring,
// so a short token still fires inside a longer word: "Plaza" contains "Pl"
// and becomes "Placeaza".
func Default() *Rules {
	return &Rules{
		DisallowedKeyChars: "=+/&<>;'\"?%#$@,. \t\r\n",
		DefaultNamespace:   "regular",
		Placeholder:        "NULL",
		Sentinel:           "None",
		StreetAbbreviations: []Abbreviation{
			{Abbrev: "St.", Expansion: "Street"},
			{Abbrev: "St", Expansion: "Street"},
			{Abbrev: "Ave.", Expansion: "Avenue"},
			{Abbrev: "Ave", Expansion: "Avenue"},
			{Abbrev: "Rd.", Expansion: "Road"},
			{Abbrev: "Rd", Expansion: "Road"},
			{Abbrev: "Dr.", Expansion: "Drive"},
			{Abbrev: "Dr", Expansion: "Drive"},
			{Abbrev: "Plz", Expansion: "Plaza"},
			{Abbrev: "Pl", Expansion: "Place"},
			{Abbrev: "Blvd.", Expansion: "Boulevard"},
			{Abbrev: "Blvd", Expansion: "Boulevard"},
			{Abbrev: "Ctr", Expansion: "Center"},
			{Abbrev: "Ct", Expansion: "Court"},
			{Abbrev: "Ln.", Expansion: "Lane"},
		},
		ExpectedStreetTypes: []string{
			"Street", "Avenue", "Boulevard", "Drive", "Court", "Place", "Square",
			"Lane", "Road", "Trail", "Parkway", "Commons",
		},
		AuditSampleLimit: 20,
	}
}

// Load reads rules from a YAML file. Fields missing from the file keep
// their built-in defaults.
func Load(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return Parse(data)
}

// Parse decodes rules from YAML bytes on top of the defaults
func Parse(data []byte) (*Rules, error) {
	r := Default()
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the rules for internal consistency
func (r *Rules) Validate() error {
	if r.DefaultNamespace == "" {
		return fmt.Errorf("%w: default_namespace must not be empty", ErrInvalidRules)
	}
	if r.Sentinel == "" {
		return fmt.Errorf("%w: sentinel must not be empty", ErrInvalidRules)
	}
	for i, a := range r.StreetAbbreviations {
		if a.Abbrev == "" || a.Expansion == "" {
			return fmt.Errorf("%w: street_abbreviations[%d] needs abbrev and expansion", ErrInvalidRules, i)
		}
	}
	if r.AuditSampleLimit < 0 {
		return fmt.Errorf("%w: audit_sample_limit must not be negative", ErrInvalidRules)
	}
	return nil
}
