// Package shape turns one raw node or way into its primary, tag and
// way-node rows.
package shape

import (
	"fmt"
	"strconv"

	"github.com/paulmach/osm"

	"github.com/wegman-software/osmwrangle/internal/classify"
	"github.com/wegman-software/osmwrangle/internal/normalize"
	"github.com/wegman-software/osmwrangle/internal/rules"
	"github.com/wegman-software/osmwrangle/internal/source"
)

var (
	// NodeFields are the attributes a node must carry, in output column order
	NodeFields = []string{"id", "lat", "lon", "user", "uid", "version", "changeset", "timestamp"}
	// WayFields are the attributes a way must carry, in output column order
	WayFields = []string{"id", "user", "uid", "version", "changeset", "timestamp"}
)

// TagHook can rewrite or drop a tag after built-in normalization.
// keep=false drops the tag.
type TagHook interface {
	TransformTag(namespace, key, value string) (newValue string, keep bool, err error)
}

// Shaper converts raw elements into row sets
type Shaper struct {
	classifier  *classify.Classifier
	normalizer  *normalize.Normalizer
	placeholder string
	hook        TagHook

	buf Element
}

// New creates a shaper from rules. hook may be nil.
func New(r *rules.Rules, hook TagHook) *Shaper {
	return &Shaper{
		classifier:  classify.New(r),
		normalizer:  normalize.New(r),
		placeholder: r.Placeholder,
		hook:        hook,
	}
}

// Shape builds the rows for one element. The returned element is reused by
// the next call. An error is only returned when the tag hook fails.
func (s *Shaper) Shape(raw *source.Element) (Outcome, error) {
	var fields []string
	switch raw.Type {
	case osm.TypeNode:
		fields = NodeFields
	case osm.TypeWay:
		fields = WayFields
	default:
		return Skipped(SkipUnsupportedType, string(raw.Type)), nil
	}

	if reason, field := s.checkRequired(raw, fields); reason != SkipNone {
		return Skipped(reason, field), nil
	}

	el := &s.buf
	el.reset()
	if reason, field := parsePrimary(raw, &el.Primary); reason != SkipNone {
		return Skipped(reason, field), nil
	}

	if raw.Type == osm.TypeWay {
		for i, ref := range raw.Refs {
			nodeID, err := strconv.ParseInt(ref, 10, 64)
			if err != nil {
				return Skipped(SkipInvalidNodeRef, fmt.Sprintf("nd[%d]", i)), nil
			}
			el.WayNodes = append(el.WayNodes, WayNodeRef{
				WayID:    el.Primary.ID,
				NodeID:   nodeID,
				Position: i,
			})
		}
	}

	for _, tag := range raw.Tags {
		c := s.classifier.Classify(tag.Key)
		if c.Rejected {
			el.Rejected = append(el.Rejected, RejectedTag{Key: tag.Key, Reason: RejectDisallowedKey})
			continue
		}

		res := s.normalizer.Normalize(tag.Key, tag.Value)
		if !res.Recognized {
			el.Unrecognized = append(el.Unrecognized, res.Rule)
		}

		value := res.Value
		if s.hook != nil {
			v, keep, err := s.hook.TransformTag(c.Namespace, c.Key, value)
			if err != nil {
				return Outcome{}, fmt.Errorf("tag %q of %s %d: %w", tag.Key, raw.Type, el.Primary.ID, err)
			}
			if !keep {
				el.Rejected = append(el.Rejected, RejectedTag{Key: tag.Key, Reason: RejectScript})
				continue
			}
			value = v
		}

		el.Tags = append(el.Tags, TagRecord{
			OwnerID:   el.Primary.ID,
			Namespace: c.Namespace,
			Key:       c.Key,
			Value:     value,
		})
	}

	return Emitted(el), nil
}

// checkRequired reports the first required attribute that is missing,
// empty or the placeholder
func (s *Shaper) checkRequired(raw *source.Element, fields []string) (SkipReason, string) {
	for _, f := range fields {
		v, ok := raw.Attr(f)
		switch {
		case !ok:
			return SkipMissingAttribute, f
		case v == "":
			return SkipEmptyAttribute, f
		case v == s.placeholder:
			return SkipPlaceholder, f
		}
	}
	return SkipNone, ""
}

func parsePrimary(raw *source.Element, p *PrimaryRecord) (SkipReason, string) {
	var err error
	p.Type = raw.Type
	p.User = raw.Attrs["user"]
	p.Version = raw.Attrs["version"]
	p.Timestamp = raw.Attrs["timestamp"]

	if p.ID, err = strconv.ParseInt(raw.Attrs["id"], 10, 64); err != nil {
		return SkipInvalidAttribute, "id"
	}
	if p.UID, err = strconv.ParseInt(raw.Attrs["uid"], 10, 64); err != nil {
		return SkipInvalidAttribute, "uid"
	}
	if p.Changeset, err = strconv.ParseInt(raw.Attrs["changeset"], 10, 64); err != nil {
		return SkipInvalidAttribute, "changeset"
	}

	if raw.Type == osm.TypeNode {
		if p.Lat, err = strconv.ParseFloat(raw.Attrs["lat"], 64); err != nil {
			return SkipInvalidAttribute, "lat"
		}
		if p.Lon, err = strconv.ParseFloat(raw.Attrs["lon"], 64); err != nil {
			return SkipInvalidAttribute, "lon"
		}
	}
	return SkipNone, ""
}
