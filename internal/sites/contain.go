package sites

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// siteShape is a site geometry reduced to what containment looks at: the
// paths whose vertices and edges must lie in an area and the exterior rings
// whose interior must. Holes of the site are ignored.
type siteShape struct {
	paths []orb.LineString
	rings []orb.Ring
}

func newSiteShape(g orb.Geometry) siteShape {
	var s siteShape
	s.add(g)
	return s
}

func (s *siteShape) add(g orb.Geometry) {
	switch t := g.(type) {
	case orb.Point:
		s.paths = append(s.paths, orb.LineString{t})
	case orb.MultiPoint:
		for _, p := range t {
			s.paths = append(s.paths, orb.LineString{p})
		}
	case orb.LineString:
		if len(t) > 0 {
			s.paths = append(s.paths, t)
		}
	case orb.MultiLineString:
		for _, ls := range t {
			s.add(ls)
		}
	case orb.Ring:
		s.addRing(t)
	case orb.Polygon:
		if len(t) > 0 {
			s.addRing(t[0])
		}
	case orb.MultiPolygon:
		for _, p := range t {
			s.add(p)
		}
	case orb.Collection:
		for _, c := range t {
			s.add(c)
		}
	}
}

func (s *siteShape) addRing(r orb.Ring) {
	if len(r) == 0 {
		return
	}
	s.paths = append(s.paths, orb.LineString(r))
	if len(r) >= 3 {
		s.rings = append(s.rings, r)
	}
}

func (s siteShape) empty() bool { return len(s.paths) == 0 }

// contains reports whether the whole site lies in the area. Every vertex and
// edge midpoint must be inside, no site edge may cross an area ring, and no
// area vertex may lie strictly inside a site ring. Touching the area
// boundary is allowed.
func (a *ScoutingArea) contains(s siteShape) bool {
	if s.empty() {
		return false
	}
	rings := a.rings()

	for _, path := range s.paths {
		for i, p := range path {
			if !a.containsPoint(p) {
				return false
			}
			if i == 0 {
				continue
			}
			q := path[i-1]
			if !a.containsPoint(midpoint(q, p)) {
				return false
			}
			for _, r := range rings {
				if crossesRing(q, p, r) {
					return false
				}
			}
		}
	}

	for _, sr := range s.rings {
		for _, r := range rings {
			for _, p := range r {
				if strictlyInside(sr, p) {
					return false
				}
			}
		}
	}
	return true
}

// containsPoint counts points on the area boundary as inside.
func (a *ScoutingArea) containsPoint(p orb.Point) bool {
	if !a.bound.Contains(p) {
		return false
	}
	switch g := a.Geometry.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	}
	return false
}

// rings returns every ring of the area, holes included.
func (a *ScoutingArea) rings() []orb.Ring {
	switch g := a.Geometry.(type) {
	case orb.Polygon:
		return g
	case orb.MultiPolygon:
		var out []orb.Ring
		for _, p := range g {
			out = append(out, p...)
		}
		return out
	}
	return nil
}

func midpoint(a, b orb.Point) orb.Point {
	return orb.Point{(a[0] + b[0]) / 2, (a[1] + b[1]) / 2}
}

// orient is positive when c lies left of a→b, negative when right and zero
// when the three points are collinear.
func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func opposite(x, y float64) bool {
	return (x > 0 && y < 0) || (x < 0 && y > 0)
}

// crossesRing reports whether segment a-b properly crosses an edge of r.
// Touching an edge or a vertex is not a crossing.
func crossesRing(a, b orb.Point, r orb.Ring) bool {
	if len(r) < 2 {
		return false
	}
	j := len(r) - 1
	for i := range r {
		c, d := r[j], r[i]
		j = i
		if opposite(orient(c, d, a), orient(c, d, b)) && opposite(orient(a, b, c), orient(a, b, d)) {
			return true
		}
	}
	return false
}

// strictlyInside reports whether p is inside r and not on its boundary.
func strictlyInside(r orb.Ring, p orb.Point) bool {
	return planar.RingContains(r, p) && !onRing(r, p)
}

func onRing(r orb.Ring, p orb.Point) bool {
	j := len(r) - 1
	for i := range r {
		c, d := r[j], r[i]
		j = i
		if orient(c, d, p) != 0 {
			continue
		}
		if min(c[0], d[0]) <= p[0] && p[0] <= max(c[0], d[0]) &&
			min(c[1], d[1]) <= p[1] && p[1] <= max(c[1], d[1]) {
			return true
		}
	}
	return false
}
