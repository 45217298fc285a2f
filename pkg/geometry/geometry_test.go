package geometry

import (
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeClosesOpenRing(t *testing.T) {
	open := geom.Polygon{{
		{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1},
	}}

	out, err := NewNormalizer().Normalize(open)
	require.NoError(t, err)
	require.NotEmpty(t, out)
	for _, ring := range out {
		require.GreaterOrEqual(t, len(ring), 4)
		assert.Equal(t, ring[0], ring[len(ring)-1], "ring must be explicitly closed")
	}
}

func TestNormalizeRepairsSelfIntersection(t *testing.T) {
	// A bowtie: the ring crosses itself at (0.5, 0.5).
	bowtie := geom.Polygon{{
		{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 0, Y: 0},
	}}

	out, err := NewNormalizer().Normalize(bowtie)
	require.NoError(t, err)
	assert.Greater(t, out.Area(), 0.0)
	for _, ring := range out {
		assert.Equal(t, ring[0], ring[len(ring)-1])
	}
}

func TestNormalizeCollection(t *testing.T) {
	square := geom.Polygon{{
		{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}, {X: 0, Y: 0},
	}}
	gc := geom.GeometryCollection{
		geom.Point{X: 5, Y: 5},
		square,
		geom.Polygon{{
			{X: 0.5, Y: 0}, {X: 1.5, Y: 0}, {X: 1.5, Y: 1}, {X: 0.5, Y: 1}, {X: 0.5, Y: 0},
		}},
	}

	out, err := NewNormalizer().Normalize(gc)
	require.NoError(t, err)
	// The two overlapping squares merge into one polygon spanning both.
	assert.InDelta(t, 1.5, out.Area(), 1e-9)
}

func TestNormalizeKeepsDisjointParts(t *testing.T) {
	// Two separate unit-square islands; both belong to the AOI.
	islands := geom.MultiPolygon{
		{{
			{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}, {X: 0, Y: 0},
		}},
		{{
			{X: 3, Y: 3}, {X: 4, Y: 3}, {X: 4, Y: 4}, {X: 3, Y: 4}, {X: 3, Y: 3},
		}},
	}

	out, err := NewNormalizer().Normalize(islands)
	require.NoError(t, err)
	require.Len(t, out, 2, "both disjoint parts must survive")
	assert.InDelta(t, 2.0, out.Area(), 1e-9)
	for _, ring := range out {
		assert.Equal(t, ring[0], ring[len(ring)-1])
	}

	// Each island keeps its own cells after clipping: points in both
	// squares test inside, the gap between them outside.
	assert.Equal(t, geom.Inside, geom.Point{X: 0.5, Y: 0.5}.Within(out))
	assert.Equal(t, geom.Inside, geom.Point{X: 3.5, Y: 3.5}.Within(out))
	assert.Equal(t, geom.Outside, geom.Point{X: 2, Y: 2}.Within(out))
}

func TestNormalizeRejectsNonPolygonal(t *testing.T) {
	_, err := NewNormalizer().Normalize(geom.Point{X: 1, Y: 2})
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	_, err = NewNormalizer().Normalize(nil)
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	_, err = NewNormalizer().Normalize(geom.GeometryCollection{geom.Point{X: 0, Y: 0}})
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}

func TestBoundingBoxOf(t *testing.T) {
	poly := geom.Polygon{{
		{X: 2, Y: 7}, {X: 5, Y: 7}, {X: 5, Y: 9}, {X: 2, Y: 9}, {X: 2, Y: 7},
	}}
	box := BoundingBoxOf(poly)
	assert.Equal(t, BoundingBox{West: 2, South: 7, East: 5, North: 9}, box)
}

func TestBoundingBoxOfSwappedExtent(t *testing.T) {
	// A degenerate bounds with min/max swapped on both axes, as a
	// malformed upstream source might hand over.
	swapped := &geom.Bounds{
		Min: geom.Point{X: 5, Y: 9},
		Max: geom.Point{X: 2, Y: 7},
	}
	box := BoundingBoxOf(swapped)
	assert.LessOrEqual(t, box.West, box.East)
	assert.LessOrEqual(t, box.South, box.North)
	assert.Equal(t, BoundingBox{West: 2, South: 7, East: 5, North: 9}, box)
}

func TestBoundingBoxString(t *testing.T) {
	box := BoundingBox{West: -1.5, South: 2, East: 3, North: 4}
	assert.Equal(t, "[-1.5,2,3,4]", box.String())
}
