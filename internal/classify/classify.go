// Package classify decides how a raw OSM tag key maps onto a typed tag row.
package classify

import (
	"regexp"
	"strings"

	"github.com/wegman-software/osmwrangle/internal/rules"
)

// lowerColon matches keys that start with a lowercase namespace, a colon and
// at least one more lowercase or underscore character. Only the prefix has to
// match, so addr:street:name still qualifies.
var lowerColon = regexp.MustCompile(`^[a-z_]+:[a-z_]+`)

// Classification is the outcome of classifying one tag key
type Classification struct {
	Namespace string
	Key       string
	Rejected  bool
}

// Classifier assigns namespaces to tag keys and rejects keys with problem characters
type Classifier struct {
	disallowed       string
	defaultNamespace string
}

// New creates a classifier from rules
func New(r *rules.Rules) *Classifier {
	return &Classifier{
		disallowed:       r.DisallowedKeyChars,
		defaultNamespace: r.DefaultNamespace,
	}
}

// Classify splits a raw key into namespace and key.
// Keys containing a disallowed character are rejected regardless of value.
func (c *Classifier) Classify(rawKey string) Classification {
	if strings.ContainsAny(rawKey, c.disallowed) {
		return Classification{Rejected: true}
	}

	if lowerColon.MatchString(rawKey) {
		ns, key, _ := strings.Cut(rawKey, ":")
		return Classification{Namespace: ns, Key: key}
	}

	return Classification{Namespace: c.defaultNamespace, Key: rawKey}
}

// KeyClass labels a key for auditing, using the same character classes as
// the classifier
type KeyClass string

const (
	KeyLower        KeyClass = "lower"
	KeyLowerColon   KeyClass = "lower_colon"
	KeyProblemChars KeyClass = "problemchars"
	KeyAllDigits    KeyClass = "alldigits"
	KeyAllLetters   KeyClass = "allletters"
	KeyOther        KeyClass = "other"
)

var (
	lowerOnly      = regexp.MustCompile(`^[a-z_]*$`)
	lowerColonOnly = regexp.MustCompile(`^[a-z_]*:[a-z_]*$`)
	allDigits      = regexp.MustCompile(`^[0-9]+$`)
	allLetters     = regexp.MustCompile(`^[a-zA-Z]+$`)
)

// Audit reports which class a key falls into. Checks run in order and the
// first match wins.
func (c *Classifier) Audit(rawKey string) KeyClass {
	switch {
	case lowerOnly.MatchString(rawKey):
		return KeyLower
	case lowerColonOnly.MatchString(rawKey):
		return KeyLowerColon
	case strings.ContainsAny(rawKey, c.disallowed):
		return KeyProblemChars
	case allDigits.MatchString(rawKey):
		return KeyAllDigits
	case allLetters.MatchString(rawKey):
		return KeyAllLetters
	default:
		return KeyOther
	}
}
