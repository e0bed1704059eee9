// Package normalize cleans tag values for the address and contact keys that
// need domain-specific repair.
package normalize

import (
	"regexp"
	"strings"

	"github.com/wegman-software/osmwrangle/internal/rules"
)

var (
	californiaRe = regexp.MustCompile(`[Cc][Aa]([Ll][Ii][Ff][Oo][Rr][Nn][Ii][Aa])?`)
	postcodeRe   = regexp.MustCompile(`\d{5}(-\d{4}$)?`)
	lettersRe    = regexp.MustCompile(`[a-zA-Z]`)
	streetTypeRe = regexp.MustCompile(`\b\S+\.?$`)
)

// Rule names which normalization branch handled a value
type Rule string

const (
	RuleNone     Rule = ""
	RuleState    Rule = "state"
	RulePostcode Rule = "postcode"
	RulePhone    Rule = "phone"
	RuleStreet   Rule = "street"
)

// Result is a normalized value plus the rule that produced it.
// Recognized is false when the value was replaced by the sentinel.
type Result struct {
	Value      string
	Rule       Rule
	Recognized bool
}

// Normalizer rewrites tag values according to fixed rules
type Normalizer struct {
	sentinel      string
	abbreviations []rules.Abbreviation
}

// New creates a normalizer from rules
func New(r *rules.Rules) *Normalizer {
	abbrevs := make([]rules.Abbreviation, len(r.StreetAbbreviations))
	copy(abbrevs, r.StreetAbbreviations)
	return &Normalizer{
		sentinel:      r.Sentinel,
		abbreviations: abbrevs,
	}
}

// Normalize rewrites value based on the original namespaced key.
// Dispatch is first match wins: state, postcode, phone, street.
func (n *Normalizer) Normalize(rawKey, value string) Result {
	switch {
	case rawKey == "addr:state":
		if californiaRe.MatchString(value) {
			return Result{Value: "CA", Rule: RuleState, Recognized: true}
		}
		return Result{Value: n.sentinel, Rule: RuleState}

	case strings.Contains(rawKey, "postcode"):
		if m := postcodeRe.FindString(value); m != "" {
			return Result{Value: m, Rule: RulePostcode, Recognized: true}
		}
		return Result{Value: n.sentinel, Rule: RulePostcode}

	case strings.Contains(rawKey, "phone"):
		if lettersRe.MatchString(value) {
			return Result{Value: n.sentinel, Rule: RulePhone}
		}
		return Result{Value: value, Rule: RulePhone, Recognized: true}

	case strings.Contains(rawKey, "street"):
		if !streetTypeRe.MatchString(value) {
			return Result{Value: value, Rule: RuleStreet, Recognized: true}
		}
		return Result{Value: n.ExpandStreet(value), Rule: RuleStreet, Recognized: true}
	}

	return Result{Value: value, Recognized: true}
}

// ExpandStreet replaces the first occurrence of each abbreviation whose
// expansion is not already present. Matching is by substring, so an
// abbreviation embedded in a longer word is replaced too.
func (n *Normalizer) ExpandStreet(name string) string {
	for _, a := range n.abbreviations {
		if strings.Contains(name, a.Expansion) {
			continue
		}
		if strings.Contains(name, a.Abbrev) {
			name = strings.Replace(name, a.Abbrev, a.Expansion, 1)
		}
	}
	return name
}

// StreetType returns the trailing street-type-like token of name, if any
func StreetType(name string) (string, bool) {
	m := streetTypeRe.FindString(name)
	return m, m != ""
}

// IsCalifornia reports whether value contains a California spelling
func IsCalifornia(value string) bool {
	return californiaRe.MatchString(value)
}
