package source

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/paulmach/osm"
)

// XMLScanner walks an OSM XML document token by token. Only node and way
// elements are surfaced; relations are skipped with their members and any
// other element is passed over.
type XMLScanner struct {
	decoder   *xml.Decoder
	el        Element
	err       error
	done      bool
	relations int64
}

// NewXMLScanner creates a scanner over r
func NewXMLScanner(r io.Reader) *XMLScanner {
	return &XMLScanner{decoder: xml.NewDecoder(r)}
}

// Scan advances to the next node or way. It returns false at the end of the
// document or on the first decode error.
func (s *XMLScanner) Scan() bool {
	if s.done {
		return false
	}

	for {
		token, err := s.decoder.Token()
		if err == io.EOF {
			s.done = true
			return false
		}
		if err != nil {
			s.fail(err)
			return false
		}

		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "node":
			if err := s.readElement(start, osm.TypeNode); err != nil {
				s.fail(err)
				return false
			}
			return true
		case "way":
			if err := s.readElement(start, osm.TypeWay); err != nil {
				s.fail(err)
				return false
			}
			return true
		case "relation":
			if err := s.decoder.Skip(); err != nil {
				s.fail(err)
				return false
			}
			s.relations++
		}
	}
}

// Element returns the current element
func (s *XMLScanner) Element() *Element {
	return &s.el
}

// Relations returns how many relations have been skipped so far
func (s *XMLScanner) Relations() int64 {
	return s.relations
}

// Err returns the first decode error, wrapped with ErrMalformedInput
func (s *XMLScanner) Err() error {
	return s.err
}

// Close is a no-op; the underlying reader is owned by the caller
func (s *XMLScanner) Close() error {
	return nil
}

func (s *XMLScanner) fail(err error) {
	s.done = true
	s.err = fmt.Errorf("%w at offset %d: %w", ErrMalformedInput, s.decoder.InputOffset(), err)
}

// readElement consumes one node or way up to its end tag
func (s *XMLScanner) readElement(start xml.StartElement, typ osm.Type) error {
	s.el.reset(typ)
	for _, attr := range start.Attr {
		s.el.Attrs[attr.Name.Local] = attr.Value
	}

	for {
		token, err := s.decoder.Token()
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		if err != nil {
			return err
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tag":
				var k, v string
				for _, attr := range t.Attr {
					switch attr.Name.Local {
					case "k":
						k = attr.Value
					case "v":
						v = attr.Value
					}
				}
				s.el.Tags = append(s.el.Tags, Tag{Key: k, Value: v})
			case "nd":
				var ref string
				for _, attr := range t.Attr {
					if attr.Name.Local == "ref" {
						ref = attr.Value
					}
				}
				s.el.Refs = append(s.el.Refs, ref)
			}
			// children never nest anything we read
			if err := s.decoder.Skip(); err != nil {
				return err
			}
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return nil
			}
		}
	}
}
