package source

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
)

// PBFScanner adapts an osmpbf scanner to the Scanner interface. Decoded
// objects are converted back to string attributes; metadata the PBF block
// did not carry (zero uid, version, changeset or timestamp) is left out so
// the element is treated as incomplete.
type PBFScanner struct {
	scanner   *osmpbf.Scanner
	el        Element
	relations int64
}

// NewPBFScanner creates a scanner over r decoding blocks with procs goroutines
func NewPBFScanner(ctx context.Context, r io.Reader, procs int) *PBFScanner {
	return &PBFScanner{scanner: osmpbf.New(ctx, r, procs)}
}

// Scan advances to the next node or way
func (s *PBFScanner) Scan() bool {
	for s.scanner.Scan() {
		switch o := s.scanner.Object().(type) {
		case *osm.Node:
			s.el.fromNode(o)
			return true
		case *osm.Way:
			s.el.fromWay(o)
			return true
		case *osm.Relation:
			s.relations++
		}
	}
	return false
}

// Element returns the current element
func (s *PBFScanner) Element() *Element {
	return &s.el
}

// Relations returns how many relations have been passed over so far
func (s *PBFScanner) Relations() int64 {
	return s.relations
}

// Err returns the decode error, if any
func (s *PBFScanner) Err() error {
	err := s.scanner.Err()
	if err == nil || err == io.EOF {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrMalformedInput, err)
}

// Close stops the decoder goroutines
func (s *PBFScanner) Close() error {
	return s.scanner.Close()
}

func (e *Element) fromNode(n *osm.Node) {
	e.reset(osm.TypeNode)
	e.Attrs["id"] = strconv.FormatInt(int64(n.ID), 10)
	e.Attrs["lat"] = strconv.FormatFloat(n.Lat, 'f', -1, 64)
	e.Attrs["lon"] = strconv.FormatFloat(n.Lon, 'f', -1, 64)
	e.setMeta(n.User, int64(n.UserID), n.Version, int64(n.ChangesetID), n.Timestamp)
	for _, t := range n.Tags {
		e.Tags = append(e.Tags, Tag{Key: t.Key, Value: t.Value})
	}
}

func (e *Element) fromWay(w *osm.Way) {
	e.reset(osm.TypeWay)
	e.Attrs["id"] = strconv.FormatInt(int64(w.ID), 10)
	e.setMeta(w.User, int64(w.UserID), w.Version, int64(w.ChangesetID), w.Timestamp)
	for _, t := range w.Tags {
		e.Tags = append(e.Tags, Tag{Key: t.Key, Value: t.Value})
	}
	for _, wn := range w.Nodes {
		e.Refs = append(e.Refs, strconv.FormatInt(int64(wn.ID), 10))
	}
}

func (e *Element) setMeta(user string, uid int64, version int, changeset int64, ts time.Time) {
	if user != "" {
		e.Attrs["user"] = user
	}
	if uid != 0 {
		e.Attrs["uid"] = strconv.FormatInt(uid, 10)
	}
	if version != 0 {
		e.Attrs["version"] = strconv.Itoa(version)
	}
	if changeset != 0 {
		e.Attrs["changeset"] = strconv.FormatInt(changeset, 10)
	}
	if !ts.IsZero() {
		e.Attrs["timestamp"] = ts.UTC().Format(time.RFC3339)
	}
}
