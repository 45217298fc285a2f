// Package slopeanalyzer turns an area-of-interest polygon into a
// terrain-analysis artifact: a georeferenced classified-slope raster,
// or a set of vector polygons marking the areas whose local slope
// falls below a threshold.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//		"os"
//
//		slopeanalyzer "github.com/geoslope/slope-analyzer"
//		"github.com/geoslope/slope-analyzer/pkg/elevation"
//	)
//
//	func main() {
//		client, err := elevation.NewClient(elevation.Config{
//			APIKey: os.Getenv("OPENTOPO_API_KEY"),
//		})
//		if err != nil {
//			log.Fatal(err)
//		}
//		pipeline := slopeanalyzer.New(client)
//
//		raw, err := os.ReadFile("aoi.geojson")
//		if err != nil {
//			log.Fatal(err)
//		}
//		aoi, err := pipeline.NormalizeAOI(raw)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		result, err := pipeline.ProcessSlopeRaster(context.Background(), aoi, "slope.png")
//		if err != nil {
//			log.Fatal(err)
//		}
//		log.Printf("wrote %s and %s", result.ImagePath, result.WorldFilePath)
//	}
//
// The pipeline consists of five components, consumed in order:
//
//  1. Normalizer (pkg/geometry): repairs and canonicalizes the AOI polygon
//  2. Source (pkg/elevation): resolves a bounding box to an elevation grid
//  3. Classifier (pkg/slope): computes per-cell slope and buckets it into classes
//  4. Renderer (pkg/render): maps the class grid to a georeferenced image
//  5. Extractor (pkg/contour): traces flat areas into geographic polygons
//
// All entities live within a single invocation; nothing is shared
// between concurrent invocations, and every blocking stage accepts a
// context.
package slopeanalyzer

import (
	"context"
	"fmt"

	"github.com/ctessum/geom"

	"github.com/geoslope/slope-analyzer/pkg/contour"
	"github.com/geoslope/slope-analyzer/pkg/elevation"
	"github.com/geoslope/slope-analyzer/pkg/geometry"
	"github.com/geoslope/slope-analyzer/pkg/render"
	"github.com/geoslope/slope-analyzer/pkg/slope"
)

// Version of the slope analyzer library
const Version = "1.0.0"

// Pipeline wires the five terrain-analysis components together.
type Pipeline struct {
	normalizer *geometry.Normalizer
	source     elevation.Source
	classifier *slope.Classifier
	renderer   *render.Renderer
	extractor  *contour.Extractor
}

// New creates a Pipeline with default configuration around an
// elevation source.
func New(source elevation.Source) *Pipeline {
	return &Pipeline{
		normalizer: geometry.NewNormalizer(),
		source:     source,
		classifier: slope.New(),
		renderer:   render.New(),
		extractor:  contour.New(),
	}
}

// NewWithComponents creates a Pipeline from explicitly configured
// components.
func NewWithComponents(source elevation.Source, classifier *slope.Classifier, renderer *render.Renderer, extractor *contour.Extractor) *Pipeline {
	return &Pipeline{
		normalizer: geometry.NewNormalizer(),
		source:     source,
		classifier: classifier,
		renderer:   renderer,
		extractor:  extractor,
	}
}

// NormalizeAOI parses a GeoJSON AOI and repairs it into a single
// closed polygon.
func (p *Pipeline) NormalizeAOI(rawGeoJSON []byte) (geom.Polygon, error) {
	g, err := geometry.ParseGeoJSON(rawGeoJSON)
	if err != nil {
		return nil, err
	}
	return p.normalizer.Normalize(g)
}

// RasterResult is the file-pair output of ProcessSlopeRaster.
type RasterResult struct {
	ImagePath     string
	WorldFilePath string
	ClassMap      *slope.ClassMap
}

// ProcessSlopeRaster runs the full raster path: normalize the AOI,
// fetch and clip the DEM, classify slope, and write the image plus its
// world file next to imagePath.
func (p *Pipeline) ProcessSlopeRaster(ctx context.Context, aoi geom.Geom, imagePath string) (*RasterResult, error) {
	m, err := p.classMapFor(ctx, aoi)
	if err != nil {
		return nil, err
	}
	worldPath, err := p.renderer.Render(m, imagePath)
	if err != nil {
		return nil, err
	}
	return &RasterResult{ImagePath: imagePath, WorldFilePath: worldPath, ClassMap: m}, nil
}

// ProcessSlopeEmbedded runs the raster path but returns a
// self-contained data-URI image with explicit geographic bounds
// instead of writing files.
func (p *Pipeline) ProcessSlopeEmbedded(ctx context.Context, aoi geom.Geom) (*render.Embedded, error) {
	m, err := p.classMapFor(ctx, aoi)
	if err != nil {
		return nil, err
	}
	return p.renderer.RenderEmbedded(m)
}

// ExtractFlatAreas runs the vector path: normalize the AOI, fetch and
// clip the DEM, and trace the sub-threshold slope regions into
// geographic polygons. An AOI with no flat cells yields an empty
// slice.
func (p *Pipeline) ExtractFlatAreas(ctx context.Context, aoi geom.Geom) ([]contour.FlatArea, error) {
	poly, box, err := p.prepare(aoi)
	if err != nil {
		return nil, err
	}
	grid, err := p.source.FetchPolygon(ctx, poly)
	if err != nil {
		return nil, fmt.Errorf("fetch DEM for AOI %s: %w", box, err)
	}
	areas, err := p.extractor.ExtractFlatAreas(grid)
	if err != nil {
		return nil, fmt.Errorf("extract flat areas for AOI %s: %w", box, err)
	}
	return areas, nil
}

// SaveFlatAreas writes flat areas as a KML file.
func (p *Pipeline) SaveFlatAreas(path string, areas []contour.FlatArea) error {
	return contour.SaveKML(path, areas)
}

func (p *Pipeline) classMapFor(ctx context.Context, aoi geom.Geom) (*slope.ClassMap, error) {
	poly, box, err := p.prepare(aoi)
	if err != nil {
		return nil, err
	}
	grid, err := p.source.FetchPolygon(ctx, poly)
	if err != nil {
		return nil, fmt.Errorf("fetch DEM for AOI %s: %w", box, err)
	}
	m, err := p.classifier.Classify(grid)
	if err != nil {
		return nil, fmt.Errorf("classify slope for AOI %s: %w", box, err)
	}
	return m, nil
}

func (p *Pipeline) prepare(aoi geom.Geom) (geom.Polygon, geometry.BoundingBox, error) {
	poly, err := p.normalizer.Normalize(aoi)
	if err != nil {
		return nil, geometry.BoundingBox{}, fmt.Errorf("normalize AOI: %w", err)
	}
	return poly, geometry.BoundingBoxOf(poly), nil
}
