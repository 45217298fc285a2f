// Package raster holds the elevation grid model: a row-major, north-up
// sample array paired with the affine transform that places it on the
// map. The Transform type is the single source of truth for every
// pixel-to-world conversion in the pipeline; both the world-file writer
// and the embedded-bounds output derive from it.
package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/ctessum/geom"
)

// ErrClipFailure is returned when a polygon does not intersect the grid
// or clipping yields an empty grid.
var ErrClipFailure = errors.New("raster: polygon does not intersect grid")

// DefaultNoData is the sentinel used for samples with no measurement
// when the source does not declare one.
const DefaultNoData = -9999.0

// Transform is the 6-coefficient affine mapping between pixel
// column/row indices and world coordinates. OriginX/OriginY locate the
// CORNER of the upper-left pixel; PixelHeight is negative for a
// north-up grid.
type Transform struct {
	PixelWidth     float64
	RowRotation    float64
	ColumnRotation float64
	PixelHeight    float64
	OriginX        float64
	OriginY        float64
}

// PixelToWorld maps fractional pixel coordinates (col, row) to world
// coordinates. Integer inputs address pixel corners; add 0.5 to
// address centers.
func (t Transform) PixelToWorld(col, row float64) (x, y float64) {
	x = t.OriginX + col*t.PixelWidth + row*t.RowRotation
	y = t.OriginY + col*t.ColumnRotation + row*t.PixelHeight
	return x, y
}

// WorldToPixel is the inverse of PixelToWorld for axis-aligned
// transforms (zero rotation terms).
func (t Transform) WorldToPixel(x, y float64) (col, row float64) {
	col = (x - t.OriginX) / t.PixelWidth
	row = (y - t.OriginY) / t.PixelHeight
	return col, row
}

// CellCenter returns the world coordinates of the center of the pixel
// at (col, row).
func (t Transform) CellCenter(col, row int) (x, y float64) {
	return t.PixelToWorld(float64(col)+0.5, float64(row)+0.5)
}

// CenterOfUpperLeft returns the world coordinates of the center of the
// upper-left pixel. This is the origin a world file expects.
func (t Transform) CenterOfUpperLeft() (x, y float64) {
	return t.OriginX + t.PixelWidth/2, t.OriginY + t.PixelHeight/2
}

// Bounds returns the world extent of a width x height grid under this
// transform, normalized so min <= max on both axes.
func (t Transform) Bounds(width, height int) *geom.Bounds {
	x0, y0 := t.PixelToWorld(0, 0)
	x1, y1 := t.PixelToWorld(float64(width), float64(height))
	return &geom.Bounds{
		Min: geom.Point{X: math.Min(x0, x1), Y: math.Min(y0, y1)},
		Max: geom.Point{X: math.Max(x0, x1), Y: math.Max(y0, y1)},
	}
}

// Grid is a single-band elevation raster. Data is row-major with row 0
// at the north edge.
type Grid struct {
	Data      []float64
	Width     int
	Height    int
	Transform Transform
	NoData    float64
}

// NewGrid allocates a width x height grid filled with the nodata
// sentinel.
func NewGrid(width, height int, tr Transform, nodata float64) *Grid {
	g := &Grid{
		Data:      make([]float64, width*height),
		Width:     width,
		Height:    height,
		Transform: tr,
		NoData:    nodata,
	}
	for i := range g.Data {
		g.Data[i] = nodata
	}
	return g
}

// At returns the sample at (row, col). Callers must stay in bounds.
func (g *Grid) At(row, col int) float64 {
	return g.Data[row*g.Width+col]
}

// Set stores a sample at (row, col).
func (g *Grid) Set(row, col int, v float64) {
	g.Data[row*g.Width+col] = v
}

// IsNoData reports whether the sample at (row, col) is the nodata
// sentinel.
func (g *Grid) IsNoData(row, col int) bool {
	v := g.At(row, col)
	return v == g.NoData || math.IsNaN(v)
}

// Bounds returns the world extent of the grid.
func (g *Grid) Bounds() *geom.Bounds {
	return g.Transform.Bounds(g.Width, g.Height)
}

// Validate checks structural invariants: positive dimensions, matching
// data length, north-up transform.
func (g *Grid) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("raster: invalid dimensions %dx%d", g.Width, g.Height)
	}
	if len(g.Data) != g.Width*g.Height {
		return fmt.Errorf("raster: data length %d does not match %dx%d", len(g.Data), g.Width, g.Height)
	}
	if g.Transform.PixelWidth <= 0 || g.Transform.PixelHeight >= 0 {
		return fmt.Errorf("raster: transform is not north-up (pixel %g x %g)",
			g.Transform.PixelWidth, g.Transform.PixelHeight)
	}
	return nil
}

// Clip crops the grid to the polygon's bounding box and marks every
// cell whose center falls outside the polygon as nodata. The returned
// grid carries an adjusted transform. ErrClipFailure is returned when
// the polygon misses the grid entirely or the cropped window is empty.
func (g *Grid) Clip(poly geom.Polygonal) (*Grid, error) {
	if poly == nil {
		return nil, fmt.Errorf("%w: nil polygon", ErrClipFailure)
	}
	pb := poly.Bounds()
	gb := g.Bounds()
	if !gb.Overlaps(pb) {
		return nil, fmt.Errorf("%w: polygon bounds %v outside grid bounds %v", ErrClipFailure, pb, gb)
	}

	// Cropped pixel window covering the polygon bounds.
	c0, r0 := g.Transform.WorldToPixel(pb.Min.X, pb.Max.Y)
	c1, r1 := g.Transform.WorldToPixel(pb.Max.X, pb.Min.Y)
	col0 := clampInt(int(math.Floor(c0)), 0, g.Width)
	row0 := clampInt(int(math.Floor(r0)), 0, g.Height)
	col1 := clampInt(int(math.Ceil(c1)), 0, g.Width)
	row1 := clampInt(int(math.Ceil(r1)), 0, g.Height)
	if col1 <= col0 || row1 <= row0 {
		return nil, fmt.Errorf("%w: empty clip window", ErrClipFailure)
	}

	ox, oy := g.Transform.PixelToWorld(float64(col0), float64(row0))
	tr := g.Transform
	tr.OriginX = ox
	tr.OriginY = oy

	out := NewGrid(col1-col0, row1-row0, tr, g.NoData)
	for r := row0; r < row1; r++ {
		for c := col0; c < col1; c++ {
			if g.IsNoData(r, c) {
				continue
			}
			x, y := g.Transform.CellCenter(c, r)
			if (geom.Point{X: x, Y: y}).Within(poly) == geom.Outside {
				continue
			}
			out.Set(r-row0, c-col0, g.At(r, c))
		}
	}
	return out, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
