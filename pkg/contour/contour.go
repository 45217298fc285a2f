// Package contour extracts "flat areas" from an elevation grid: it
// thresholds the raw gradient magnitude into a boolean mask, traces
// the mask's boundaries into closed rings, and maps the rings to
// geographic coordinates through the grid's affine transform.
package contour

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/stat"

	"github.com/geoslope/slope-analyzer/pkg/raster"
	"github.com/geoslope/slope-analyzer/pkg/slope"
)

// DefaultThreshold is the raw-unit gradient magnitude below which a
// cell counts as flat.
const DefaultThreshold = 0.5

// FlatAreaName is the label attached to every extracted polygon.
const FlatAreaName = "Flat Area"

// FlatArea is one closed boundary ring of a contiguous low-slope
// region, in geographic coordinates.
type FlatArea struct {
	Name string
	Ring []geom.Point
}

// Polygon returns the ring as a single-ring polygon.
func (f FlatArea) Polygon() geom.Polygon {
	return geom.Polygon{f.Ring}
}

// Extractor traces flat-area boundaries from elevation grids.
type Extractor struct {
	threshold float64
}

// New creates an Extractor with the default threshold.
func New() *Extractor {
	return NewWithThreshold(DefaultThreshold)
}

// NewWithThreshold creates an Extractor with a custom raw-unit slope
// threshold.
func NewWithThreshold(threshold float64) *Extractor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Extractor{threshold: threshold}
}

// ExtractFlatAreas returns zero or more closed polygons tracing the
// regions whose gradient magnitude is below the threshold. Nodata
// cells are never flat. An AOI with no sub-threshold cells yields an
// empty slice, not an error; a grid with no defined samples at all
// returns slope.ErrAllNoData.
func (e *Extractor) ExtractFlatAreas(g *raster.Grid) ([]FlatArea, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	data := make([]float64, len(g.Data))
	copy(data, g.Data)
	defined := make([]float64, 0, len(data))
	for _, v := range data {
		if v != g.NoData && !math.IsNaN(v) {
			defined = append(defined, v)
		}
	}
	if len(defined) == 0 {
		return nil, fmt.Errorf("flat-area mask: %w", slope.ErrAllNoData)
	}
	// Mean-fill keeps the finite differences defined near nodata
	// holes; the holes themselves stay out of the mask below.
	if len(defined) < len(data) {
		mean := stat.Mean(defined, nil)
		for i, v := range data {
			if v == g.NoData || math.IsNaN(v) {
				data[i] = mean
			}
		}
	}

	mag := slope.Magnitude(data, g.Width, g.Height)
	mask := make([]bool, len(mag))
	for i, m := range mag {
		if m < e.threshold && !(g.Data[i] == g.NoData || math.IsNaN(g.Data[i])) {
			mask[i] = true
		}
	}

	rings := traceRings(mask, g.Width, g.Height)
	areas := make([]FlatArea, 0, len(rings))
	for _, ring := range rings {
		pts := make([]geom.Point, len(ring))
		for i, v := range ring {
			x, y := g.Transform.PixelToWorld(float64(v[0]), float64(v[1]))
			pts[i] = geom.Point{X: x, Y: y}
		}
		areas = append(areas, FlatArea{Name: FlatAreaName, Ring: pts})
	}
	return areas, nil
}

// vertex is a pixel-corner coordinate: x is the column edge, y the row
// edge, y increasing southward.
type vertex [2]int

// Directions in screen order: +x, +y, -x, -y. Boundary edges are
// emitted clockwise in screen coordinates (interior on the right when
// y grows downward), so following the right-most turn at a junction
// keeps separate regions in separate rings.
var deltas = [4]vertex{{1, 0}, {0, 1}, {-1, 0}, {0, -1}}

// traceRings converts a boolean cell mask into closed boundary rings
// in pixel-corner coordinates, merging collinear runs.
func traceRings(mask []bool, width, height int) [][]vertex {
	inside := func(r, c int) bool {
		return r >= 0 && r < height && c >= 0 && c < width && mask[r*width+c]
	}

	// Directed boundary edges: one per cell side facing an outside
	// neighbor.
	edges := map[vertex][4]bool{}
	addEdge := func(v vertex, dir int) {
		e := edges[v]
		e[dir] = true
		edges[v] = e
	}
	for r := 0; r < height; r++ {
		for c := 0; c < width; c++ {
			if !inside(r, c) {
				continue
			}
			if !inside(r-1, c) {
				addEdge(vertex{c, r}, 0)
			}
			if !inside(r, c+1) {
				addEdge(vertex{c + 1, r}, 1)
			}
			if !inside(r+1, c) {
				addEdge(vertex{c + 1, r + 1}, 2)
			}
			if !inside(r, c-1) {
				addEdge(vertex{c, r + 1}, 3)
			}
		}
	}

	takeEdge := func(v vertex, incoming int, first bool) (int, bool) {
		e, ok := edges[v]
		if !ok {
			return 0, false
		}
		// Right turn first, then straight, then left, then back.
		order := [4]int{(incoming + 1) % 4, incoming, (incoming + 3) % 4, (incoming + 2) % 4}
		if first {
			order = [4]int{0, 1, 2, 3}
		}
		for _, dir := range order {
			if e[dir] {
				e[dir] = false
				if e == ([4]bool{}) {
					delete(edges, v)
				} else {
					edges[v] = e
				}
				return dir, true
			}
		}
		return 0, false
	}

	var rings [][]vertex
	for len(edges) > 0 {
		// Deterministic start: smallest vertex with an available edge.
		start := anyMinVertex(edges)
		var ring []vertex
		v := start
		dir, ok := takeEdge(v, 0, true)
		if !ok {
			delete(edges, v)
			continue
		}
		for {
			ring = appendVertex(ring, v)
			v = vertex{v[0] + deltas[dir][0], v[1] + deltas[dir][1]}
			if v == start {
				break
			}
			next, ok := takeEdge(v, dir, false)
			if !ok {
				break
			}
			dir = next
		}
		if len(ring) >= 3 {
			// Drop a collinear final vertex, then close the ring.
			if len(ring) >= 2 && collinear(ring[len(ring)-2], ring[len(ring)-1], ring[0]) {
				ring = ring[:len(ring)-1]
			}
			ring = append(ring, ring[0])
			rings = append(rings, ring)
		}
	}
	return rings
}

// appendVertex adds v, replacing the previous vertex when the last
// three points are collinear.
func appendVertex(ring []vertex, v vertex) []vertex {
	n := len(ring)
	if n >= 2 && collinear(ring[n-2], ring[n-1], v) {
		ring[n-1] = v
		return ring
	}
	return append(ring, v)
}

func collinear(a, b, c vertex) bool {
	return (b[0]-a[0])*(c[1]-a[1]) == (b[1]-a[1])*(c[0]-a[0])
}

func anyMinVertex(edges map[vertex][4]bool) vertex {
	first := true
	var best vertex
	for v := range edges {
		if first || v[1] < best[1] || (v[1] == best[1] && v[0] < best[0]) {
			best = v
			first = false
		}
	}
	return best
}
