// Package sites validates survey sites against scouting-area polygons:
// global id assignment and uniqueness, and which scouting area each site
// geometrically falls in compared with the area it is labelled with.
package sites

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// SurveySite is one trapping or survey location.
type SurveySite struct {
	// FID is the feature id: the GeoPackage row id or the GeoJSON feature index.
	FID          int64
	GlobalID     *string
	Geometry     orb.Geometry
	AssignedArea *string
	// Attributes holds every other field, species counts included, in file order.
	Attributes []Attribute
}

// Label identifies the site in logs and reports.
func (s *SurveySite) Label() string {
	if s.GlobalID != nil {
		return *s.GlobalID
	}
	return "fid:" + strconv.FormatInt(s.FID, 10)
}

// Attribute returns the value of a named attribute.
func (s *SurveySite) Attribute(name string) (any, bool) {
	for _, a := range s.Attributes {
		if a.Name == name {
			return a.Value, true
		}
	}
	return nil, false
}

// Attribute is a named site field. Value is nil, string, int64, float64,
// bool or []byte.
type Attribute struct {
	Name  string
	Value any
}

// ScoutingArea is a labelled polygon or multipolygon.
type ScoutingArea struct {
	ID       string
	Geometry orb.Geometry
	bound    orb.Bound
}

func newScoutingArea(id string, g orb.Geometry) (ScoutingArea, error) {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
	default:
		if g == nil {
			return ScoutingArea{}, fmt.Errorf("scouting area %q has no geometry", id)
		}
		return ScoutingArea{}, fmt.Errorf("scouting area %q is a %s, want Polygon or MultiPolygon", id, g.GeoJSONType())
	}
	return ScoutingArea{ID: id, Geometry: g, bound: g.Bound()}, nil
}

// missingSentinels are the text values GIS exports use for an empty field.
var missingSentinels = map[string]struct{}{
	"":       {},
	"none":   {},
	"null":   {},
	"nan":    {},
	"<null>": {},
}

// normalizeValue maps missing-value sentinels to nil and integral JSON
// numbers to int64.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		if _, ok := missingSentinels[strings.ToLower(strings.TrimSpace(x))]; ok {
			return nil
		}
		return x
	case float64:
		if math.IsNaN(x) {
			return nil
		}
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
		return x
	case float32:
		return normalizeValue(float64(x))
	case int:
		return int64(x)
	case int32:
		return int64(x)
	default:
		return v
	}
}

// textValue returns a normalized value as an optional string.
func textValue(v any) *string {
	v = normalizeValue(v)
	if v == nil {
		return nil
	}
	var s string
	switch x := v.(type) {
	case string:
		s = strings.TrimSpace(x)
	case []byte:
		s = strings.TrimSpace(string(x))
	default:
		s = fmt.Sprint(x)
	}
	if _, ok := missingSentinels[strings.ToLower(s)]; ok {
		return nil
	}
	return &s
}

func sameText(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func deref(s *string) string {
	if s == nil {
		return "<none>"
	}
	return *s
}
