// Package render turns a classified slope grid into a display raster
// plus the georeferencing needed to place it on a map: either a PNG,
// JPEG or WebP file with a 6-line world file, or an embedded data-URI
// image with explicit geographic bounds. Both modes derive their
// placement from the same raster.Transform utility, so they can never
// disagree.
package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	"github.com/geoslope/slope-analyzer/pkg/raster"
	"github.com/geoslope/slope-analyzer/pkg/slope"
)

// Config holds renderer configuration.
type Config struct {
	// Scale is the integer upscale factor applied to the class grid.
	// DEM cells are ~30m, so a 1:1 raster for a small AOI is only a
	// handful of pixels; nearest-neighbor upscaling keeps the class
	// colors crisp. Zero or one means no scaling.
	Scale int

	Format   string // png, jpg or webp
	Quality  int    // JPEG/WebP quality
	Lossless bool   // WebP lossless mode
}

// Renderer produces georeferenced raster artifacts from class maps.
type Renderer struct {
	config Config
}

// New creates a Renderer with PNG output and no scaling.
func New() *Renderer {
	return &Renderer{config: Config{Scale: 1, Format: "png", Quality: 90}}
}

// NewWithConfig creates a Renderer with a custom configuration.
func NewWithConfig(config Config) *Renderer {
	if config.Scale < 1 {
		config.Scale = 1
	}
	if config.Format == "" {
		config.Format = "png"
	}
	if config.Quality == 0 {
		config.Quality = 90
	}
	return &Renderer{config: config}
}

// Image renders one palette-colored pixel per class cell, upscaled by
// the configured factor.
func (r *Renderer) Image(m *slope.ClassMap) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, m.Width, m.Height))
	for row := 0; row < m.Height; row++ {
		for col := 0; col < m.Width; col++ {
			img.SetNRGBA(col, row, slope.Palette[m.At(row, col)])
		}
	}
	if r.config.Scale <= 1 {
		return img
	}
	dst := image.NewNRGBA(image.Rect(0, 0, m.Width*r.config.Scale, m.Height*r.config.Scale))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// scaledTransform shrinks the pixel size to compensate for upscaling,
// keeping the image footprint on the map unchanged.
func (r *Renderer) scaledTransform(t raster.Transform) raster.Transform {
	if r.config.Scale <= 1 {
		return t
	}
	s := float64(r.config.Scale)
	t.PixelWidth /= s
	t.PixelHeight /= s
	return t
}

// WorldFile formats the 6-line ESRI world file for the rendered image.
// Lines 5 and 6 are the CENTER of the upper-left pixel, not its
// corner; the half-pixel shift comes from the transform itself.
func (r *Renderer) WorldFile(m *slope.ClassMap) string {
	t := r.scaledTransform(m.Transform)
	cx, cy := t.CenterOfUpperLeft()
	return fmt.Sprintf("%.10f\n%.10f\n%.10f\n%.10f\n%.10f\n%.10f\n",
		t.PixelWidth, t.RowRotation, t.ColumnRotation, t.PixelHeight, cx, cy)
}

// SaveImage writes the image in the configured format: webp through
// the chai2010 encoder, png/jpeg through imaging.
func (r *Renderer) SaveImage(img image.Image, path string) error {
	switch strings.ToLower(r.config.Format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: r.config.Lossless, Quality: float32(r.config.Quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(r.config.Quality))
	}
}

// Render writes the image and its world file side by side. The world
// file takes the image path's extension replaced by the conventional
// w-suffixed form (png -> pgw, jpg -> jgw, webp -> wld).
func (r *Renderer) Render(m *slope.ClassMap, imagePath string) (worldFilePath string, err error) {
	img := r.Image(m)
	if err := r.SaveImage(img, imagePath); err != nil {
		return "", fmt.Errorf("render: save image: %w", err)
	}
	worldFilePath = WorldFilePath(imagePath)
	if err := os.WriteFile(worldFilePath, []byte(r.WorldFile(m)), 0o644); err != nil {
		return "", fmt.Errorf("render: save world file: %w", err)
	}
	return worldFilePath, nil
}

// WorldFilePath derives the sidecar world-file path for an image path.
func WorldFilePath(imagePath string) string {
	low := strings.ToLower(imagePath)
	switch {
	case strings.HasSuffix(low, ".png"):
		return imagePath[:len(imagePath)-4] + ".pgw"
	case strings.HasSuffix(low, ".jpg"):
		return imagePath[:len(imagePath)-4] + ".jgw"
	case strings.HasSuffix(low, ".jpeg"):
		return imagePath[:len(imagePath)-5] + ".jgw"
	case strings.HasSuffix(low, ".webp"):
		return imagePath[:len(imagePath)-5] + ".wld"
	default:
		return imagePath + ".wld"
	}
}

// Embedded is the self-contained output mode: the image as a data URI
// plus its geographic bounds as [[minLat,minLon],[maxLat,maxLon]].
type Embedded struct {
	DataURI string        `json:"data_uri"`
	Bounds  [2][2]float64 `json:"bounds"`
}

// RenderEmbedded encodes the image in memory and computes its bounds
// from the same transform the world file uses.
func (r *Renderer) RenderEmbedded(m *slope.ClassMap) (*Embedded, error) {
	img := r.Image(m)
	var buf bytes.Buffer
	var mime string
	switch strings.ToLower(r.config.Format) {
	case "webp":
		mime = "image/webp"
		opts := &webp.Options{Lossless: r.config.Lossless, Quality: float32(r.config.Quality)}
		if err := webp.Encode(&buf, img, opts); err != nil {
			return nil, fmt.Errorf("render: encode webp: %w", err)
		}
	case "png":
		mime = "image/png"
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("render: encode png: %w", err)
		}
	default:
		mime = "image/jpeg"
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(r.config.Quality)); err != nil {
			return nil, fmt.Errorf("render: encode jpeg: %w", err)
		}
	}

	b := m.Transform.Bounds(m.Width, m.Height)
	return &Embedded{
		DataURI: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		Bounds: [2][2]float64{
			{b.Min.Y, b.Min.X}, // min lat, min lon
			{b.Max.Y, b.Max.X}, // max lat, max lon
		},
	}, nil
}
