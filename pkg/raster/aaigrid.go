package raster

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseASCIIGrid decodes an ESRI ASCII grid (the AAIGrid format the
// elevation provider serves). Both xllcorner/yllcorner and
// xllcenter/yllcenter header variants are accepted; the nodata header
// is optional.
func ParseASCIIGrid(r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var (
		ncols, nrows   int
		xll, yll, cell float64
		nodata         = DefaultNoData
		centerOrigin   bool
		seen           = map[string]bool{}
	)

	// Header: key/value lines until the first row of samples.
	var firstDataLine string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		key := strings.ToLower(fields[0])
		if _, err := strconv.ParseFloat(fields[0], 64); err == nil {
			firstDataLine = line
			break
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("raster: malformed header line %q", line)
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("raster: bad header value in %q: %w", line, err)
		}
		switch key {
		case "ncols":
			ncols = int(v)
		case "nrows":
			nrows = int(v)
		case "xllcorner":
			xll = v
		case "yllcorner":
			yll = v
		case "xllcenter":
			xll = v
			centerOrigin = true
		case "yllcenter":
			yll = v
			centerOrigin = true
		case "cellsize":
			cell = v
		case "nodata_value":
			nodata = v
		default:
			return nil, fmt.Errorf("raster: unknown header key %q", key)
		}
		seen[key] = true
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("raster: read header: %w", err)
	}
	if ncols <= 0 || nrows <= 0 || cell <= 0 {
		return nil, fmt.Errorf("raster: incomplete grid header (ncols=%d nrows=%d cellsize=%g)", ncols, nrows, cell)
	}
	if !seen["xllcorner"] && !seen["xllcenter"] {
		return nil, fmt.Errorf("raster: grid header missing x origin")
	}
	if centerOrigin {
		xll -= cell / 2
		yll -= cell / 2
	}

	// The lower-left corner header becomes an upper-left origin.
	tr := Transform{
		PixelWidth:  cell,
		PixelHeight: -cell,
		OriginX:     xll,
		OriginY:     yll + float64(nrows)*cell,
	}
	g := NewGrid(ncols, nrows, tr, nodata)

	fill := func(line string, idx *int) error {
		for _, tok := range strings.Fields(line) {
			if *idx >= len(g.Data) {
				return fmt.Errorf("raster: more than %d samples in %dx%d grid", len(g.Data), ncols, nrows)
			}
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return fmt.Errorf("raster: bad sample %q: %w", tok, err)
			}
			g.Data[*idx] = v
			*idx++
		}
		return nil
	}

	idx := 0
	if firstDataLine != "" {
		if err := fill(firstDataLine, &idx); err != nil {
			return nil, err
		}
	}
	for sc.Scan() {
		if err := fill(sc.Text(), &idx); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("raster: read samples: %w", err)
	}
	if idx != len(g.Data) {
		return nil, fmt.Errorf("raster: expected %d samples, got %d", len(g.Data), idx)
	}
	return g, nil
}

// WriteASCIIGrid encodes the grid in the same format ParseASCIIGrid
// reads. Square cells are required; the format has a single cellsize.
func WriteASCIIGrid(w io.Writer, g *Grid) error {
	if err := g.Validate(); err != nil {
		return err
	}
	if g.Transform.PixelWidth != -g.Transform.PixelHeight {
		return fmt.Errorf("raster: ASCII grid requires square cells, have %g x %g",
			g.Transform.PixelWidth, g.Transform.PixelHeight)
	}
	bw := bufio.NewWriter(w)
	yll := g.Transform.OriginY + float64(g.Height)*g.Transform.PixelHeight
	fmt.Fprintf(bw, "ncols %d\n", g.Width)
	fmt.Fprintf(bw, "nrows %d\n", g.Height)
	fmt.Fprintf(bw, "xllcorner %g\n", g.Transform.OriginX)
	fmt.Fprintf(bw, "yllcorner %g\n", yll)
	fmt.Fprintf(bw, "cellsize %g\n", g.Transform.PixelWidth)
	fmt.Fprintf(bw, "NODATA_value %g\n", g.NoData)
	for r := 0; r < g.Height; r++ {
		for c := 0; c < g.Width; c++ {
			if c > 0 {
				bw.WriteByte(' ')
			}
			fmt.Fprintf(bw, "%g", g.At(r, c))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
