package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	slopeanalyzer "github.com/geoslope/slope-analyzer"
	"github.com/geoslope/slope-analyzer/internal/artifact"
	"github.com/geoslope/slope-analyzer/internal/config"
	"github.com/geoslope/slope-analyzer/pkg/contour"
	"github.com/geoslope/slope-analyzer/pkg/elevation"
	"github.com/geoslope/slope-analyzer/pkg/render"
	"github.com/geoslope/slope-analyzer/pkg/slope"
)

func main() {
	var aoiPath, outDir, mode, configPath string
	var apiKey, demType, format, fill string
	var threshold float64
	var quality, scale int
	var lossless, embed bool

	flag.StringVar(&aoiPath, "aoi", "", "AOI polygon as a GeoJSON file (required)")
	flag.StringVar(&outDir, "out", "out", "output directory (each run gets its own subdirectory)")
	flag.StringVar(&mode, "mode", "slope", "analysis mode: slope or flat")
	flag.StringVar(&configPath, "config", "", "config file (defaults to "+config.GetConfigPath()+" when present)")

	flag.StringVar(&apiKey, "apikey", "", "elevation provider API key (overrides config and "+config.EnvAPIKey+")")
	flag.StringVar(&demType, "demtype", "", "DEM dataset identifier (default SRTMGL1)")
	flag.StringVar(&fill, "fill", "", "nodata fill strategy: mean|nearest|reject")
	flag.Float64Var(&threshold, "threshold", 0, "flat-area slope threshold in raw gradient units (default 0.5)")

	flag.StringVar(&format, "format", "", "raster output format: png|jpg|webp")
	flag.IntVar(&quality, "quality", 0, "JPEG/WebP output quality (1-100)")
	flag.BoolVar(&lossless, "lossless", false, "WebP lossless mode")
	flag.IntVar(&scale, "scale", 0, "integer upscale factor for the output raster")
	flag.BoolVar(&embed, "embed", false, "slope mode: print a data-URI image with bounds instead of writing files")

	flag.Parse()
	if aoiPath == "" {
		log.Fatalf("usage: %s -aoi area.geojson [-mode slope|flat] [-out outdir] [-threshold 0.5] [-format png|jpg|webp]", filepath.Base(os.Args[0]))
	}

	cfg := loadConfig(configPath)
	if apiKey != "" {
		cfg.Provider.APIKey = apiKey
	}
	if demType != "" {
		cfg.Provider.DEMType = demType
	}
	if fill != "" {
		cfg.Slope.FillStrategy = fill
	}
	if threshold > 0 {
		cfg.Slope.FlatThreshold = threshold
	}
	if format != "" {
		cfg.Output.Format = format
	}
	if quality > 0 {
		cfg.Output.Quality = quality
	}
	if lossless {
		cfg.Output.Lossless = true
	}
	if scale > 0 {
		cfg.Output.Scale = scale
	}
	if outDir != "" {
		cfg.Output.OutputDir = outDir
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if cfg.Provider.APIKey == "" {
		log.Fatalf("missing provider API key: set -apikey, provider.api_key in the config, or %s", config.EnvAPIKey)
	}

	pipeline, err := buildPipeline(cfg)
	if err != nil {
		log.Fatal(err)
	}

	raw, err := os.ReadFile(aoiPath)
	if err != nil {
		log.Fatalf("read AOI: %v", err)
	}
	aoi, err := pipeline.NormalizeAOI(raw)
	if err != nil {
		log.Fatalf("normalize AOI: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scope, err := artifact.NewScope(cfg.Output.OutputDir)
	if err != nil {
		log.Fatal(err)
	}

	switch mode {
	case "slope":
		if embed {
			result, err := pipeline.ProcessSlopeEmbedded(ctx, aoi)
			if err != nil {
				log.Fatal(err)
			}
			log.Printf("bounds: %v", result.Bounds)
			os.Stdout.WriteString(result.DataURI + "\n")
			return
		}
		result, err := pipeline.ProcessSlopeRaster(ctx, aoi, scope.ImagePath(cfg.Output.Format))
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %s", result.ImagePath)
		log.Printf("wrote %s", result.WorldFilePath)
	case "flat":
		areas, err := pipeline.ExtractFlatAreas(ctx, aoi)
		if err != nil {
			log.Fatal(err)
		}
		kmlPath := scope.FlatAreasPath()
		if err := pipeline.SaveFlatAreas(kmlPath, areas); err != nil {
			log.Fatal(err)
		}
		log.Printf("found %d flat area(s)", len(areas))
		log.Printf("wrote %s", kmlPath)
	default:
		log.Fatalf("unknown mode: %s (use 'slope' or 'flat')", mode)
	}
}

// loadConfig reads the config file when one is given or present at the
// default path, otherwise starts from defaults. The API key
// environment override applies in every case.
func loadConfig(path string) *config.Config {
	if path == "" {
		if def := config.GetConfigPath(); fileExists(def) {
			path = def
		}
	}
	if path == "" {
		cfg := config.Default()
		cfg.ApplyEnv()
		return cfg
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	return cfg
}

// buildPipeline assembles the pipeline components the config
// describes.
func buildPipeline(cfg *config.Config) (*slopeanalyzer.Pipeline, error) {
	elevCfg := elevation.Config{
		APIKey:    cfg.Provider.APIKey,
		DEMType:   cfg.Provider.DEMType,
		Endpoints: cfg.Provider.Endpoints,
		Retry: elevation.RetryPolicy{
			MaxAttempts:       cfg.Provider.MaxAttempts,
			PerAttemptTimeout: cfg.Provider.AttemptTimeout(),
		},
	}
	if cfg.Provider.CacheDir != "" {
		cache, err := elevation.NewCache(cfg.Provider.CacheDir)
		if err != nil {
			return nil, err
		}
		elevCfg.Cache = cache
	}
	client, err := elevation.NewClient(elevCfg)
	if err != nil {
		return nil, err
	}

	var fill slope.FillStrategy
	switch cfg.Slope.FillStrategy {
	case "nearest":
		fill = slope.FillNearest
	case "reject":
		fill = slope.FillReject
	default:
		fill = slope.FillMean
	}

	return slopeanalyzer.NewWithComponents(
		client,
		slope.NewWithConfig(slope.Config{Fill: fill}),
		render.NewWithConfig(render.Config{
			Scale:    cfg.Output.Scale,
			Format:   cfg.Output.Format,
			Quality:  cfg.Output.Quality,
			Lossless: cfg.Output.Lossless,
		}),
		contour.NewWithThreshold(cfg.Slope.FlatThreshold),
	), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
