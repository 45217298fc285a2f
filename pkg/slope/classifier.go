// Package slope computes per-cell terrain slope from an elevation grid
// and buckets it into nine fixed 8-degree classes.
package slope

import (
	"errors"
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/geoslope/slope-analyzer/pkg/raster"
)

// ErrAllNoData is returned when every sample in the grid is nodata.
var ErrAllNoData = errors.New("slope: grid contains only nodata samples")

// ErrNoData is returned by the reject fill strategy when the grid
// contains any nodata sample.
var ErrNoData = errors.New("slope: grid contains nodata samples")

// FillStrategy selects how nodata samples are repaired before the
// gradient is computed. Mean fill is an approximation, not a spatial
// interpolation; callers who need correctness over coverage should use
// FillReject.
type FillStrategy int

const (
	// FillMean replaces nodata samples with the mean of defined samples.
	FillMean FillStrategy = iota
	// FillNearest replaces nodata samples with the nearest defined
	// sample (4-neighbor distance).
	FillNearest
	// FillReject refuses grids containing any nodata sample.
	FillReject
)

// NumClasses is the number of slope classes. Class NumClasses-1 means
// "steeper than 64 degrees".
const NumClasses = 9

// classWidth is the degree span of one class bucket.
const classWidth = 8.0

// Palette maps class id to display color. Other components reproduce
// these colors exactly; changing them breaks visual consistency with
// previously rendered maps.
var Palette = [NumClasses]color.NRGBA{
	{173, 216, 230, 255}, // 0: 0-8 light blue
	{144, 238, 144, 255}, // 1: 8-16 light green
	{0, 100, 0, 255},     // 2: 16-24 dark green
	{255, 255, 102, 255}, // 3: 24-32 yellow
	{255, 165, 0, 255},   // 4: 32-40 orange
	{255, 0, 0, 255},     // 5: 40-48 red
	{139, 0, 0, 255},     // 6: 48-56 dark red
	{128, 0, 128, 255},   // 7: 56-64 purple
	{0, 0, 0, 255},       // 8: >64 black
}

// ClassOf buckets a slope in degrees: floor(slope/8) clamped to [0,8].
// Boundaries are exact; 8.0 degrees is class 1, 64.0 degrees is class 8.
func ClassOf(slopeDegrees float64) int {
	cls := int(math.Floor(slopeDegrees / classWidth))
	if cls < 0 {
		cls = 0
	}
	if cls >= NumClasses {
		cls = NumClasses - 1
	}
	return cls
}

// Config holds classifier configuration.
type Config struct {
	Fill FillStrategy
}

// Classifier derives a ClassMap from an elevation grid.
type Classifier struct {
	config Config
}

// New creates a Classifier with the default mean-fill policy.
func New() *Classifier {
	return &Classifier{config: Config{Fill: FillMean}}
}

// NewWithConfig creates a Classifier with a custom configuration.
func NewWithConfig(config Config) *Classifier {
	return &Classifier{config: config}
}

// ClassMap is a grid of class ids with the same shape and transform as
// the elevation grid it was derived from.
type ClassMap struct {
	Classes   []uint8
	Width     int
	Height    int
	Transform raster.Transform
}

// At returns the class id at (row, col).
func (m *ClassMap) At(row, col int) int {
	return int(m.Classes[row*m.Width+col])
}

// Classify repairs nodata per the configured fill strategy, computes
// per-cell slope in degrees and buckets it into classes.
func (c *Classifier) Classify(g *raster.Grid) (*ClassMap, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	filled, err := c.fill(g)
	if err != nil {
		return nil, err
	}
	deg := SlopeDegrees(filled, g.Width, g.Height)
	m := &ClassMap{
		Classes:   make([]uint8, len(deg)),
		Width:     g.Width,
		Height:    g.Height,
		Transform: g.Transform,
	}
	for i, s := range deg {
		m.Classes[i] = uint8(ClassOf(s))
	}
	return m, nil
}

// Stats returns the minimum, maximum and mean slope in degrees after
// nodata repair.
func (c *Classifier) Stats(g *raster.Grid) (min, max, mean float64, err error) {
	if err := g.Validate(); err != nil {
		return 0, 0, 0, err
	}
	filled, err := c.fill(g)
	if err != nil {
		return 0, 0, 0, err
	}
	deg := SlopeDegrees(filled, g.Width, g.Height)
	return floats.Min(deg), floats.Max(deg), stat.Mean(deg, nil), nil
}

// fill returns a copy of the grid data with nodata samples repaired.
func (c *Classifier) fill(g *raster.Grid) ([]float64, error) {
	data := make([]float64, len(g.Data))
	copy(data, g.Data)

	defined := make([]float64, 0, len(data))
	missing := 0
	for _, v := range data {
		if v == g.NoData || math.IsNaN(v) {
			missing++
		} else {
			defined = append(defined, v)
		}
	}
	if len(defined) == 0 {
		return nil, ErrAllNoData
	}
	if missing == 0 {
		return data, nil
	}

	switch c.config.Fill {
	case FillReject:
		return nil, fmt.Errorf("%w: %d of %d samples", ErrNoData, missing, len(data))
	case FillNearest:
		fillNearest(data, g)
	default:
		mean := stat.Mean(defined, nil)
		for i, v := range data {
			if v == g.NoData || math.IsNaN(v) {
				data[i] = mean
			}
		}
	}
	return data, nil
}

// fillNearest replaces nodata samples with the value of the nearest
// defined sample, via a multi-source breadth-first sweep from every
// defined cell.
func fillNearest(data []float64, g *raster.Grid) {
	w, h := g.Width, g.Height
	queue := make([]int, 0, len(data))
	known := make([]bool, len(data))
	for i, v := range data {
		if v != g.NoData && !math.IsNaN(v) {
			known[i] = true
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		r, c := i/w, i%w
		for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
			nr, nc := r+d[0], c+d[1]
			if nr < 0 || nr >= h || nc < 0 || nc >= w {
				continue
			}
			j := nr*w + nc
			if known[j] {
				continue
			}
			data[j] = data[i]
			known[j] = true
			queue = append(queue, j)
		}
	}
}

// Gradient computes per-axis finite differences in the numpy.gradient
// convention: central differences in the interior, one-sided at the
// boundary. gy is the derivative along rows (north-south), gx along
// columns (east-west), both in sample units per cell.
func Gradient(data []float64, width, height int) (gx, gy []float64) {
	gx = make([]float64, len(data))
	gy = make([]float64, len(data))
	at := func(r, c int) float64 { return data[r*width+c] }
	for r := 0; r < height; r++ {
		for c := 0; c < width; c++ {
			i := r*width + c
			switch {
			case width == 1:
				gx[i] = 0
			case c == 0:
				gx[i] = at(r, 1) - at(r, 0)
			case c == width-1:
				gx[i] = at(r, width-1) - at(r, width-2)
			default:
				gx[i] = (at(r, c+1) - at(r, c-1)) / 2
			}
			switch {
			case height == 1:
				gy[i] = 0
			case r == 0:
				gy[i] = at(1, c) - at(0, c)
			case r == height-1:
				gy[i] = at(height-1, c) - at(height-2, c)
			default:
				gy[i] = (at(r+1, c) - at(r-1, c)) / 2
			}
		}
	}
	return gx, gy
}

// Magnitude computes the per-cell gradient magnitude in raw sample
// units. The flat-area extractor thresholds this directly.
func Magnitude(data []float64, width, height int) []float64 {
	gx, gy := Gradient(data, width, height)
	out := make([]float64, len(data))
	for i := range out {
		out[i] = math.Hypot(gx[i], gy[i])
	}
	return out
}

// SlopeDegrees converts gradient magnitude to slope angle in degrees.
func SlopeDegrees(data []float64, width, height int) []float64 {
	out := Magnitude(data, width, height)
	for i, m := range out {
		out[i] = math.Atan(m) * 180 / math.Pi
	}
	return out
}
