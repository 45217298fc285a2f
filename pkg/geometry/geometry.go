// Package geometry repairs and canonicalizes user-supplied AOI
// polygons. Inputs arrive from map draw tools and uploaded files, so
// self-intersecting rings, unclosed rings, heterogeneous collections
// and swapped extents are all expected rather than exceptional.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

// ErrInvalidGeometry is returned when no polygonal content survives
// cleaning.
var ErrInvalidGeometry = errors.New("geometry: no valid polygon in input")

// BoundingBox is a geographic extent in decimal degrees with
// west <= east and south <= north.
type BoundingBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// String formats the box in west,south,east,north order.
func (b BoundingBox) String() string {
	return fmt.Sprintf("[%g,%g,%g,%g]", b.West, b.South, b.East, b.North)
}

// Normalizer repairs raw AOI geometry into a single closed polygon.
type Normalizer struct{}

// NewNormalizer creates a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize makes the input valid, merges polygonal members of
// collections, and returns one polygon with explicitly closed rings.
// Disjoint parts survive as separate rings of the result; an AOI drawn
// as several islands is analyzed whole. ErrInvalidGeometry is returned
// when nothing polygonal remains.
func (n *Normalizer) Normalize(g geom.Geom) (geom.Polygon, error) {
	if g == nil {
		return nil, ErrInvalidGeometry
	}

	polys := collectPolygons(g)
	if len(polys) == 0 {
		return nil, ErrInvalidGeometry
	}

	// Self-union routes every ring through the polygon clipper, which
	// resolves self-intersections and merges the parts into a valid
	// result. This is the clipper analogue of a buffer(0) repair.
	merged := polys[0].Union(polys[0])
	for _, p := range polys[1:] {
		merged = merged.Union(p)
	}
	if merged == nil || merged.Area() == 0 {
		return nil, ErrInvalidGeometry
	}

	out := flattenPolygons(merged.Polygons())
	if len(out) == 0 {
		return nil, ErrInvalidGeometry
	}
	return closeRings(out), nil
}

// collectPolygons extracts all polygonal members from an arbitrary
// geometry, recursing into collections.
func collectPolygons(g geom.Geom) []geom.Polygon {
	switch t := g.(type) {
	case geom.Polygon:
		if len(t) == 0 {
			return nil
		}
		return []geom.Polygon{t}
	case geom.MultiPolygon:
		var out []geom.Polygon
		for _, p := range t {
			out = append(out, collectPolygons(p)...)
		}
		return out
	case geom.GeometryCollection:
		var out []geom.Polygon
		for _, member := range t {
			out = append(out, collectPolygons(member)...)
		}
		return out
	case *geom.Bounds:
		return []geom.Polygon{boundsPolygon(t)}
	default:
		return nil
	}
}

// flattenPolygons collects the rings of every polygon the union
// produced into one polygon. A union of disjoint inputs legitimately
// yields several parts; all of them belong to the AOI, and the
// clipper's ring orientation keeps holes as holes.
func flattenPolygons(polys []geom.Polygon) geom.Polygon {
	var out geom.Polygon
	for _, p := range polys {
		out = append(out, p...)
	}
	return out
}

// closeRings appends the first vertex to any ring that does not end
// where it starts.
func closeRings(p geom.Polygon) geom.Polygon {
	out := make(geom.Polygon, 0, len(p))
	for _, ring := range p {
		if len(ring) == 0 {
			continue
		}
		if ring[0] != ring[len(ring)-1] {
			ring = append(append([]geom.Point{}, ring...), ring[0])
		}
		out = append(out, ring)
	}
	return out
}

func boundsPolygon(b *geom.Bounds) geom.Polygon {
	return geom.Polygon{{
		{X: b.Min.X, Y: b.Min.Y},
		{X: b.Max.X, Y: b.Min.Y},
		{X: b.Max.X, Y: b.Max.Y},
		{X: b.Min.X, Y: b.Max.Y},
		{X: b.Min.X, Y: b.Min.Y},
	}}
}

// BoundingBoxOf returns the geometry's extent reordered so that
// west <= east and south <= north. Malformed inputs may present
// swapped min/max and must never propagate un-normalized.
func BoundingBoxOf(g geom.Geom) BoundingBox {
	b := g.Bounds()
	return BoundingBox{
		West:  math.Min(b.Min.X, b.Max.X),
		South: math.Min(b.Min.Y, b.Max.Y),
		East:  math.Max(b.Min.X, b.Max.X),
		North: math.Max(b.Min.Y, b.Max.Y),
	}
}
