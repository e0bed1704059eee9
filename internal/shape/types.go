package shape

import (
	"github.com/paulmach/osm"

	"github.com/wegman-software/osmwrangle/internal/normalize"
)

// PrimaryRecord is the row for one node or way. Lat and Lon are only
// meaningful when Type is osm.TypeNode.
type PrimaryRecord struct {
	ID        int64
	Type      osm.Type
	User      string
	UID       int64
	Version   string
	Changeset int64
	Timestamp string
	Lat       float64
	Lon       float64
}

// TagRecord is one classified and normalized tag of a primary record
type TagRecord struct {
	OwnerID   int64
	Namespace string
	Key       string
	Value     string
}

// WayNodeRef is one ordered node reference of a way
type WayNodeRef struct {
	WayID    int64
	NodeID   int64
	Position int
}

// RejectReason explains why a single tag produced no row
type RejectReason string

const (
	RejectDisallowedKey RejectReason = "disallowed_key"
	RejectScript        RejectReason = "script"
)

// RejectedTag records a tag that was dropped while its owner was kept
type RejectedTag struct {
	Key    string
	Reason RejectReason
}

// Element is the full row set produced from one source element
type Element struct {
	Primary  PrimaryRecord
	Tags     []TagRecord
	WayNodes []WayNodeRef

	Rejected     []RejectedTag
	Unrecognized []normalize.Rule
}

func (e *Element) reset() {
	e.Primary = PrimaryRecord{}
	e.Tags = e.Tags[:0]
	e.WayNodes = e.WayNodes[:0]
	e.Rejected = e.Rejected[:0]
	e.Unrecognized = e.Unrecognized[:0]
}

// SkipReason explains why a whole element produced no rows
type SkipReason string

const (
	SkipNone             SkipReason = ""
	SkipUnsupportedType  SkipReason = "unsupported_type"
	SkipMissingAttribute SkipReason = "missing_attribute"
	SkipEmptyAttribute   SkipReason = "empty_attribute"
	SkipPlaceholder      SkipReason = "placeholder_attribute"
	SkipInvalidAttribute SkipReason = "invalid_attribute"
	SkipInvalidNodeRef   SkipReason = "invalid_node_ref"
)

// Outcome is either an emitted element or a skip with its reason
type Outcome struct {
	Element *Element
	Reason  SkipReason
	// Field names the attribute responsible for a skip
	Field string
}

// Emitted wraps a shaped element
func Emitted(el *Element) Outcome {
	return Outcome{Element: el}
}

// Skipped records why an element was dropped
func Skipped(reason SkipReason, field string) Outcome {
	return Outcome{Reason: reason, Field: field}
}

// IsEmitted reports whether the outcome carries rows
func (o Outcome) IsEmitted() bool {
	return o.Element != nil
}
