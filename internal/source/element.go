// Package source streams OSM node and way elements one at a time from XML
// or PBF input without building a document tree.
package source

import (
	"errors"

	"github.com/paulmach/osm"
)

var (
	// ErrMalformedInput wraps every decode failure. It is fatal for a run.
	ErrMalformedInput = errors.New("malformed input")
	// ErrUnsupportedInput is returned by Open for unknown file types
	ErrUnsupportedInput = errors.New("unsupported input")
)

// Tag is a raw k/v child of an element
type Tag struct {
	Key   string
	Value string
}

// Element is one top-level node or way with its raw attributes and children
// in document order. Attribute values are kept as strings so that missing,
// empty and placeholder values can be told apart downstream.
type Element struct {
	Type  osm.Type
	Attrs map[string]string
	Tags  []Tag
	// Refs holds the ref attribute of each nd child, empty if absent
	Refs []string
}

// reset prepares the element buffer for the next element, keeping capacity
func (e *Element) reset(typ osm.Type) {
	e.Type = typ
	if e.Attrs == nil {
		e.Attrs = make(map[string]string, 8)
	} else {
		clear(e.Attrs)
	}
	e.Tags = e.Tags[:0]
	e.Refs = e.Refs[:0]
}

// Attr returns an attribute value and whether it was present
func (e *Element) Attr(name string) (string, bool) {
	v, ok := e.Attrs[name]
	return v, ok
}

// Scanner yields elements one at a time. The element returned by Element is
// only valid until the next call to Scan.
type Scanner interface {
	Scan() bool
	Element() *Element
	// Relations counts relations passed over; they are never surfaced
	Relations() int64
	Err() error
	Close() error
}
