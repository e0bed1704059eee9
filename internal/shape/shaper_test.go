package shape

import (
	"errors"
	"strings"
	"testing"

	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wegman-software/osmwrangle/internal/normalize"
	"github.com/wegman-software/osmwrangle/internal/rules"
	"github.com/wegman-software/osmwrangle/internal/source"
)

func nodeAttrs() map[string]string {
	return map[string]string{
		"id": "1", "lat": "37.7749", "lon": "-122.4194", "user": "alice", "uid": "7",
		"version": "2", "changeset": "123", "timestamp": "2016-01-15T12:00:00Z",
	}
}

func wayAttrs(id string) map[string]string {
	return map[string]string{
		"id": id, "user": "carol", "uid": "9", "version": "1",
		"changeset": "125", "timestamp": "2016-01-16T00:00:00Z",
	}
}

func TestShapeWayEndToEnd(t *testing.T) {
	s := New(rules.Default(), nil)
	raw := &source.Element{
		Type:  osm.TypeWay,
		Attrs: wayAttrs("100"),
		Tags: []source.Tag{
			{Key: "addr:street", Value: "123 Main St."},
			{Key: "addr:postcode", Value: "94110"},
		},
		Refs: []string{"200", "201"},
	}

	out, err := s.Shape(raw)
	require.NoError(t, err)
	require.True(t, out.IsEmitted())

	el := out.Element
	assert.Equal(t, PrimaryRecord{
		ID: 100, Type: osm.TypeWay, User: "carol", UID: 9, Version: "1",
		Changeset: 125, Timestamp: "2016-01-16T00:00:00Z",
	}, el.Primary)
	assert.Equal(t, []TagRecord{
		{OwnerID: 100, Namespace: "addr", Key: "street", Value: "123 Main Street"},
		{OwnerID: 100, Namespace: "addr", Key: "postcode", Value: "94110"},
	}, el.Tags)
	assert.Equal(t, []WayNodeRef{
		{WayID: 100, NodeID: 200, Position: 0},
		{WayID: 100, NodeID: 201, Position: 1},
	}, el.WayNodes)
	assert.Empty(t, el.Rejected)
}

// Rejection is decided by the key alone, so a comma in the tiger:county value
// is written out and quoted by the sink.
func TestShapeNodeKeepsCommaInValue(t *testing.T) {
	s := New(rules.Default(), nil)
	raw := &source.Element{
		Type:  osm.TypeNode,
		Attrs: nodeAttrs(),
		Tags: []source.Tag{
			{Key: "tiger:county", Value: "Alameda, CA"},
			{Key: "name", Value: "Cafe"},
			{Key: "addr:state", Value: "Texas"},
			{Key: "fixme note", Value: "check"},
		},
		Refs: []string{"9"},
	}

	out, err := s.Shape(raw)
	require.NoError(t, err)
	require.True(t, out.IsEmitted())

	el := out.Element
	assert.Equal(t, 37.7749, el.Primary.Lat)
	assert.Equal(t, -122.4194, el.Primary.Lon)
	assert.Equal(t, "2", el.Primary.Version)
	assert.Equal(t, []TagRecord{
		{OwnerID: 1, Namespace: "tiger", Key: "county", Value: "Alameda, CA"},
		{OwnerID: 1, Namespace: "regular", Key: "name", Value: "Cafe"},
		{OwnerID: 1, Namespace: "addr", Key: "state", Value: "None"},
	}, el.Tags)
	assert.Equal(t, []RejectedTag{{Key: "fixme note", Reason: RejectDisallowedKey}}, el.Rejected)
	assert.Equal(t, []normalize.Rule{normalize.RuleState}, el.Unrecognized)
	assert.Empty(t, el.WayNodes, "nd children are ignored on nodes")
}

func TestShapeRejectsProblemKeyButKeepsOwner(t *testing.T) {
	s := New(rules.Default(), nil)
	raw := &source.Element{
		Type:  osm.TypeNode,
		Attrs: nodeAttrs(),
		Tags: []source.Tag{
			{Key: "tiger:county, CA", Value: "Alameda, CA"},
			{Key: "amenity", Value: "cafe"},
		},
	}

	out, err := s.Shape(raw)
	require.NoError(t, err)
	require.True(t, out.IsEmitted())
	assert.Equal(t, []TagRecord{{OwnerID: 1, Namespace: "regular", Key: "amenity", Value: "cafe"}}, out.Element.Tags)
	assert.Len(t, out.Element.Rejected, 1)
}

func TestShapeSkipsIncompleteElements(t *testing.T) {
	tests := []struct {
		name   string
		typ    osm.Type
		mutate func(map[string]string)
		reason SkipReason
		field  string
	}{
		{"node missing uid", osm.TypeNode, func(a map[string]string) { delete(a, "uid") }, SkipMissingAttribute, "uid"},
		{"node missing lat", osm.TypeNode, func(a map[string]string) { delete(a, "lat") }, SkipMissingAttribute, "lat"},
		{"node empty user", osm.TypeNode, func(a map[string]string) { a["user"] = "" }, SkipEmptyAttribute, "user"},
		{"node NULL timestamp", osm.TypeNode, func(a map[string]string) { a["timestamp"] = "NULL" }, SkipPlaceholder, "timestamp"},
		{"node bad id", osm.TypeNode, func(a map[string]string) { a["id"] = "n1" }, SkipInvalidAttribute, "id"},
		{"node bad lon", osm.TypeNode, func(a map[string]string) { a["lon"] = "west" }, SkipInvalidAttribute, "lon"},
		{"way missing changeset", osm.TypeWay, func(a map[string]string) { delete(a, "changeset") }, SkipMissingAttribute, "changeset"},
		{"way bad uid", osm.TypeWay, func(a map[string]string) { a["uid"] = "x" }, SkipInvalidAttribute, "uid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := nodeAttrs()
			if tt.typ == osm.TypeWay {
				attrs = wayAttrs("100")
			}
			tt.mutate(attrs)

			s := New(rules.Default(), nil)
			out, err := s.Shape(&source.Element{
				Type:  tt.typ,
				Attrs: attrs,
				Tags:  []source.Tag{{Key: "name", Value: "x"}},
				Refs:  []string{"1"},
			})
			require.NoError(t, err)
			assert.False(t, out.IsEmitted())
			assert.Nil(t, out.Element)
			assert.Equal(t, tt.reason, out.Reason)
			assert.Equal(t, tt.field, out.Field)
		})
	}
}

func TestShapeWayWithoutLatLonIsComplete(t *testing.T) {
	s := New(rules.Default(), nil)
	out, err := s.Shape(&source.Element{Type: osm.TypeWay, Attrs: wayAttrs("5")})
	require.NoError(t, err)
	require.True(t, out.IsEmitted())
	assert.Empty(t, out.Element.Tags)
	assert.Empty(t, out.Element.WayNodes)
}

func TestShapeWayNodePositions(t *testing.T) {
	s := New(rules.Default(), nil)
	refs := []string{"10", "11", "12", "13", "10"}

	out, err := s.Shape(&source.Element{Type: osm.TypeWay, Attrs: wayAttrs("7"), Refs: refs})
	require.NoError(t, err)
	require.True(t, out.IsEmitted())

	require.Len(t, out.Element.WayNodes, len(refs))
	for i, wn := range out.Element.WayNodes {
		assert.Equal(t, i, wn.Position)
		assert.Equal(t, int64(7), wn.WayID)
	}
	assert.Equal(t, int64(10), out.Element.WayNodes[0].NodeID)
	assert.Equal(t, int64(10), out.Element.WayNodes[4].NodeID, "closed way keeps the repeated node")
}

func TestShapeInvalidNodeRefSkipsWay(t *testing.T) {
	s := New(rules.Default(), nil)
	out, err := s.Shape(&source.Element{Type: osm.TypeWay, Attrs: wayAttrs("7"), Refs: []string{"1", ""}})
	require.NoError(t, err)
	assert.False(t, out.IsEmitted())
	assert.Equal(t, SkipInvalidNodeRef, out.Reason)
	assert.Equal(t, "nd[1]", out.Field)
}

func TestShapeUnsupportedType(t *testing.T) {
	s := New(rules.Default(), nil)
	out, err := s.Shape(&source.Element{Type: osm.TypeRelation, Attrs: map[string]string{"id": "1"}})
	require.NoError(t, err)
	assert.Equal(t, SkipUnsupportedType, out.Reason)
}

func TestShapeReusesBuffer(t *testing.T) {
	s := New(rules.Default(), nil)

	first, err := s.Shape(&source.Element{
		Type: osm.TypeWay, Attrs: wayAttrs("1"),
		Tags: []source.Tag{{Key: "a", Value: "b"}, {Key: "bad key", Value: "c"}},
		Refs: []string{"1", "2"},
	})
	require.NoError(t, err)
	require.True(t, first.IsEmitted())

	second, err := s.Shape(&source.Element{Type: osm.TypeNode, Attrs: nodeAttrs()})
	require.NoError(t, err)
	require.True(t, second.IsEmitted())
	assert.Empty(t, second.Element.Tags)
	assert.Empty(t, second.Element.WayNodes)
	assert.Empty(t, second.Element.Rejected)
	assert.Equal(t, osm.TypeNode, second.Element.Primary.Type)
}

type upperHook struct {
	drop string
	err  error
}

func (h upperHook) TransformTag(namespace, key, value string) (string, bool, error) {
	if h.err != nil {
		return "", false, h.err
	}
	if key == h.drop {
		return "", false, nil
	}
	return strings.ToUpper(value), true, nil
}

func TestShapeTagHook(t *testing.T) {
	s := New(rules.Default(), upperHook{drop: "note"})
	out, err := s.Shape(&source.Element{
		Type:  osm.TypeNode,
		Attrs: nodeAttrs(),
		Tags:  []source.Tag{{Key: "name", Value: "cafe"}, {Key: "note", Value: "remove me"}},
	})
	require.NoError(t, err)
	require.True(t, out.IsEmitted())

	assert.Equal(t, []TagRecord{{OwnerID: 1, Namespace: "regular", Key: "name", Value: "CAFE"}}, out.Element.Tags)
	assert.Equal(t, []RejectedTag{{Key: "note", Reason: RejectScript}}, out.Element.Rejected)
}

func TestShapeTagHookError(t *testing.T) {
	boom := errors.New("boom")
	s := New(rules.Default(), upperHook{err: boom})
	_, err := s.Shape(&source.Element{
		Type:  osm.TypeNode,
		Attrs: nodeAttrs(),
		Tags:  []source.Tag{{Key: "name", Value: "cafe"}},
	})
	assert.ErrorIs(t, err, boom)
}
