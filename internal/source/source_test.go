package source

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOSM = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test">
  <bounds minlat="37.7" minlon="-122.5" maxlat="37.8" maxlon="-122.4"/>
  <node id="1" lat="37.7749" lon="-122.4194" version="2" changeset="123" timestamp="2016-01-15T12:00:00Z" user="alice" uid="7">
    <tag k="name" v="Cafe"/>
    <tag k="addr:street" v="Main St."/>
  </node>
  <node id="2" lat="37.775" lon="-122.42" version="1" changeset="124" timestamp="2016-01-15T12:00:00Z" user="bob" uid="8"/>
  <way id="100" version="1" changeset="125" timestamp="2016-01-16T00:00:00Z" user="carol" uid="9">
    <nd ref="1"/>
    <nd ref="2"/>
    <nd ref="1"/>
    <tag k="highway" v="residential"/>
  </way>
  <relation id="500" version="1" changeset="126" timestamp="2016-01-17T00:00:00Z" user="dave" uid="10">
    <member type="way" ref="100" role="outer"/>
    <tag k="type" v="multipolygon"/>
  </relation>
  <way id="101" user="erin" uid="11">
    <nd/>
  </way>
</osm>`

type scanned struct {
	Type  osm.Type
	Attrs map[string]string
	Tags  []Tag
	Refs  []string
}

// drain copies every element since the scanner reuses its buffer
func drain(t *testing.T, s Scanner) []scanned {
	t.Helper()
	var out []scanned
	for s.Scan() {
		el := s.Element()
		attrs := make(map[string]string, len(el.Attrs))
		for k, v := range el.Attrs {
			attrs[k] = v
		}
		out = append(out, scanned{
			Type:  el.Type,
			Attrs: attrs,
			Tags:  append([]Tag(nil), el.Tags...),
			Refs:  append([]string(nil), el.Refs...),
		})
	}
	return out
}

func TestXMLScannerElements(t *testing.T) {
	s := NewXMLScanner(strings.NewReader(sampleOSM))
	got := drain(t, s)
	require.NoError(t, s.Err())
	require.Len(t, got, 4, "relation and bounds are skipped")
	assert.Equal(t, int64(1), s.Relations())

	node := got[0]
	assert.Equal(t, osm.TypeNode, node.Type)
	assert.Equal(t, "1", node.Attrs["id"])
	assert.Equal(t, "alice", node.Attrs["user"])
	assert.Equal(t, "37.7749", node.Attrs["lat"])
	assert.Equal(t, []Tag{{"name", "Cafe"}, {"addr:street", "Main St."}}, node.Tags)
	assert.Empty(t, node.Refs)

	bare := got[1]
	assert.Equal(t, "2", bare.Attrs["id"])
	assert.Empty(t, bare.Tags)

	way := got[2]
	assert.Equal(t, osm.TypeWay, way.Type)
	assert.Equal(t, []string{"1", "2", "1"}, way.Refs)
	assert.Equal(t, []Tag{{"highway", "residential"}}, way.Tags)

	partial := got[3]
	assert.Equal(t, "101", partial.Attrs["id"])
	_, hasVersion := partial.Attrs["version"]
	assert.False(t, hasVersion)
	assert.Equal(t, []string{""}, partial.Refs, "nd without ref keeps its slot")
}

func TestXMLScannerResetsBetweenElements(t *testing.T) {
	doc := `<osm><way id="1" user="a"><nd ref="5"/><tag k="a" v="b"/></way><node id="2"/></osm>`
	s := NewXMLScanner(strings.NewReader(doc))

	require.True(t, s.Scan())
	assert.Len(t, s.Element().Refs, 1)

	require.True(t, s.Scan())
	el := s.Element()
	assert.Equal(t, osm.TypeNode, el.Type)
	assert.Empty(t, el.Refs)
	assert.Empty(t, el.Tags)
	_, ok := el.Attr("user")
	assert.False(t, ok, "attributes from the previous element must not leak")

	assert.False(t, s.Scan())
	assert.NoError(t, s.Err())
}

func TestXMLScannerMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want int
	}{
		{"truncated element", `<osm><node id="1" user="a"><tag k="a" v="b"/>`, 0},
		{"mismatched end", `<osm><node id="1"></way></osm>`, 0},
		{"garbage after good element", `<osm><node id="1"/><node id="2" <</osm>`, 1},
		{"truncated relation", `<osm><relation id="1"><member type="way"`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewXMLScanner(strings.NewReader(tt.doc))
			got := drain(t, s)
			assert.Len(t, got, tt.want)
			assert.ErrorIs(t, s.Err(), ErrMalformedInput)
			assert.False(t, s.Scan(), "scanner stays stopped after an error")
		})
	}
}

func TestElementFromPBFObjects(t *testing.T) {
	var el Element

	el.fromNode(&osm.Node{
		ID:          42,
		Lat:         37.5,
		Lon:         -122.25,
		User:        "alice",
		UserID:      7,
		Version:     3,
		ChangesetID: 99,
		Timestamp:   time.Date(2016, 1, 15, 12, 0, 0, 0, time.UTC),
		Tags:        osm.Tags{{Key: "name", Value: "Cafe"}},
	})
	assert.Equal(t, osm.TypeNode, el.Type)
	assert.Equal(t, map[string]string{
		"id": "42", "lat": "37.5", "lon": "-122.25", "user": "alice", "uid": "7",
		"version": "3", "changeset": "99", "timestamp": "2016-01-15T12:00:00Z",
	}, el.Attrs)
	assert.Equal(t, []Tag{{"name", "Cafe"}}, el.Tags)

	el.fromWay(&osm.Way{
		ID:    100,
		Nodes: osm.WayNodes{{ID: 1}, {ID: 2}, {ID: 1}},
	})
	assert.Equal(t, osm.TypeWay, el.Type)
	assert.Equal(t, map[string]string{"id": "100"}, el.Attrs, "missing metadata stays missing")
	assert.Equal(t, []string{"1", "2", "1"}, el.Refs)
	assert.Empty(t, el.Tags)
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"sf.osm", FormatXML},
		{"sf.XML", FormatXML},
		{"sf.osm.gz", FormatXMLGzip},
		{"sf.osm.bz2", FormatXMLBzip2},
		{"planet.osm.pbf", FormatPBF},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := DetectFormat(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DetectFormat("data.csv")
	assert.ErrorIs(t, err, ErrUnsupportedInput)
}

func TestOpenGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.osm.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(sampleOSM))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	in, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer in.Close()

	assert.Equal(t, FormatXMLGzip, in.Format)
	got := drain(t, in)
	require.NoError(t, in.Err())
	assert.Len(t, got, 4)
	assert.Equal(t, in.Size, in.BytesRead())
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "nope.osm"))
	assert.Error(t, err)
}
