package render

import (
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/geoslope/slope-analyzer/pkg/raster"
	"github.com/geoslope/slope-analyzer/pkg/slope"
)

func testClassMap() *slope.ClassMap {
	return &slope.ClassMap{
		Classes: []uint8{0, 1, 2, 3, 4, 5},
		Width:   3,
		Height:  2,
		Transform: raster.Transform{
			PixelWidth:  0.5,
			PixelHeight: -0.5,
			OriginX:     10,
			OriginY:     51,
		},
	}
}

func TestImagePaletteMapping(t *testing.T) {
	img := New().Image(testClassMap())
	if got := img.Bounds(); got != image.Rect(0, 0, 3, 2) {
		t.Fatalf("bounds = %v, want 3x2", got)
	}
	for i, class := range []uint8{0, 1, 2, 3, 4, 5} {
		col, row := i%3, i/3
		if got := img.NRGBAAt(col, row); got != slope.Palette[class] {
			t.Errorf("pixel (%d,%d) = %v, want palette[%d] = %v", col, row, got, class, slope.Palette[class])
		}
	}
}

func TestImageUpscaling(t *testing.T) {
	r := NewWithConfig(Config{Scale: 4})
	img := r.Image(testClassMap())
	if got := img.Bounds(); got != image.Rect(0, 0, 12, 8) {
		t.Fatalf("bounds = %v, want 12x8", got)
	}
	// Nearest-neighbor: every pixel of the 4x4 block keeps the source color.
	for dy := 0; dy < 4; dy++ {
		for dx := 0; dx < 4; dx++ {
			if got := img.NRGBAAt(dx, dy); got != slope.Palette[0] {
				t.Errorf("pixel (%d,%d) = %v, want palette[0]", dx, dy, got)
			}
			if got := img.NRGBAAt(4+dx, dy); got != slope.Palette[1] {
				t.Errorf("pixel (%d,%d) = %v, want palette[1]", 4+dx, dy, got)
			}
		}
	}
}

func TestWorldFileCenterOfUpperLeftPixel(t *testing.T) {
	wf := New().WorldFile(testClassMap())
	lines := strings.Split(strings.TrimSpace(wf), "\n")
	if len(lines) != 6 {
		t.Fatalf("world file has %d lines, want 6", len(lines))
	}
	want := []string{
		"0.5000000000",  // pixel width
		"0.0000000000",  // row rotation
		"0.0000000000",  // column rotation
		"-0.5000000000", // pixel height (negative, north-up)
		"10.2500000000", // center x of upper-left pixel
		"50.7500000000", // center y of upper-left pixel
	}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("line %d = %q, want %q", i+1, lines[i], w)
		}
	}
}

func TestWorldFileCompensatesForScale(t *testing.T) {
	r := NewWithConfig(Config{Scale: 2})
	lines := strings.Split(strings.TrimSpace(r.WorldFile(testClassMap())), "\n")
	if lines[0] != "0.2500000000" || lines[3] != "-0.2500000000" {
		t.Errorf("scaled pixel size = %q/%q, want halved", lines[0], lines[3])
	}
	// The half-pixel shift uses the scaled pixel, so the map footprint
	// of the upper-left corner is unchanged.
	if lines[4] != "10.1250000000" || lines[5] != "50.8750000000" {
		t.Errorf("scaled center = %q/%q, want quarter-cell inset", lines[4], lines[5])
	}
}

func TestWorldFilePath(t *testing.T) {
	cases := map[string]string{
		"slope.png":  "slope.pgw",
		"slope.jpg":  "slope.jgw",
		"slope.jpeg": "slope.jgw",
		"slope.webp": "slope.wld",
		"slope.PNG":  "slope.pgw",
		"slope":      "slope.wld",
	}
	for in, want := range cases {
		if got := WorldFilePath(in); got != want {
			t.Errorf("WorldFilePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRenderWritesImageAndWorldFile(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "slope.png")
	wfPath, err := New().Render(testClassMap(), imagePath)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if wfPath != filepath.Join(dir, "slope.pgw") {
		t.Errorf("world file path = %q", wfPath)
	}

	f, err := os.Open(imagePath)
	if err != nil {
		t.Fatalf("open rendered image: %v", err)
	}
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode rendered image: %v", err)
	}
	if format != "png" || cfg.Width != 3 || cfg.Height != 2 {
		t.Errorf("decoded %s %dx%d, want png 3x2", format, cfg.Width, cfg.Height)
	}

	wf, err := os.ReadFile(wfPath)
	if err != nil {
		t.Fatalf("read world file: %v", err)
	}
	if got := len(strings.Split(strings.TrimSpace(string(wf)), "\n")); got != 6 {
		t.Errorf("world file has %d lines, want 6", got)
	}
}

func TestRenderEmbedded(t *testing.T) {
	e, err := New().RenderEmbedded(testClassMap())
	if err != nil {
		t.Fatalf("RenderEmbedded failed: %v", err)
	}
	if !strings.HasPrefix(e.DataURI, "data:image/png;base64,") {
		t.Errorf("data URI prefix = %.40q", e.DataURI)
	}
	// 3x2 cells of half a degree hanging south-east of the north-west
	// corner (10, 51): bounds are [[50, 10], [51, 11.5]].
	want := [2][2]float64{{50, 10}, {51, 11.5}}
	if e.Bounds != want {
		t.Errorf("bounds = %v, want %v", e.Bounds, want)
	}
}

func TestEmbeddedBoundsMatchWorldFile(t *testing.T) {
	m := testClassMap()
	e, err := New().RenderEmbedded(m)
	if err != nil {
		t.Fatalf("RenderEmbedded failed: %v", err)
	}
	cx, cy := m.Transform.CenterOfUpperLeft()
	// The world file's upper-left pixel center sits half a pixel inside
	// the embedded bounds' north-west corner.
	if wantX := e.Bounds[0][1] + m.Transform.PixelWidth/2; cx != wantX {
		t.Errorf("center x = %v, want %v", cx, wantX)
	}
	if wantY := e.Bounds[1][0] + m.Transform.PixelHeight/2; cy != wantY {
		t.Errorf("center y = %v, want %v", cy, wantY)
	}
}
