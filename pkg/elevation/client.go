// Package elevation resolves a bounding box to an elevation grid by
// querying a global DEM tile provider, with bounded retry over
// mirrored endpoints and an optional shared on-disk cache.
package elevation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ctessum/geom"

	"github.com/geoslope/slope-analyzer/pkg/geometry"
	"github.com/geoslope/slope-analyzer/pkg/raster"
)

// ErrSourceUnavailable is returned once the retry budget is exhausted
// without a successful fetch.
var ErrSourceUnavailable = errors.New("elevation: provider unavailable")

// ErrMissingAPIKey is a configuration error: the provider key must be
// present before any network call is made.
var ErrMissingAPIKey = errors.New("elevation: missing provider API key")

// DefaultDEMType is the global 30m SRTM dataset.
const DefaultDEMType = "SRTMGL1"

// DefaultEndpoints lists the primary provider endpoint followed by its
// geographic mirror. Each retry round tries them in order.
var DefaultEndpoints = []string{
	"https://portal.opentopography.org/API/globaldem",
	"https://portal.apac.opentopography.org/API/globaldem",
}

// outputFormat is the raster format requested from the provider. The
// ASCII grid variant is self-describing (origin and cell size in the
// header), which is what lets the client build the affine transform
// without a GeoTIFF reader.
const outputFormat = "AAIGrid"

// Source resolves bounding boxes to elevation grids. The pipeline
// depends on this interface so tests can substitute a synthetic
// provider.
type Source interface {
	Fetch(ctx context.Context, box geometry.BoundingBox) (*raster.Grid, error)
	FetchPolygon(ctx context.Context, poly geom.Polygonal) (*raster.Grid, error)
}

// Config holds client configuration. APIKey is injected; it is not
// this package's job to store credentials.
type Config struct {
	APIKey    string
	DEMType   string
	Endpoints []string
	Retry     RetryPolicy
	Cache     *Cache
}

// Client fetches DEM tiles over HTTP.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a Client, filling defaults for unset fields and
// validating the endpoint URLs.
func NewClient(config Config) (*Client, error) {
	if config.DEMType == "" {
		config.DEMType = DefaultDEMType
	}
	if len(config.Endpoints) == 0 {
		config.Endpoints = DefaultEndpoints
	}
	if config.Retry.MaxAttempts == 0 {
		config.Retry = DefaultRetryPolicy()
	}
	for _, ep := range config.Endpoints {
		u, err := url.Parse(ep)
		if err != nil {
			return nil, fmt.Errorf("elevation: invalid endpoint %q: %v", ep, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("elevation: unsupported endpoint scheme %q", u.Scheme)
		}
	}
	// Per-attempt deadlines come from the retry policy's context, not
	// the transport.
	return &Client{config: config, httpClient: &http.Client{}}, nil
}

// Fetch downloads the DEM covering the bounding box and parses it into
// a grid. Failures are retried per the configured policy; exhaustion
// surfaces as ErrSourceUnavailable with the last provider error.
func (c *Client) Fetch(ctx context.Context, box geometry.BoundingBox) (*raster.Grid, error) {
	if c.config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if c.config.Cache != nil {
		return c.config.Cache.Do(c.config.DEMType, box, func() (*raster.Grid, error) {
			return c.fetchWithRetry(ctx, box)
		})
	}
	return c.fetchWithRetry(ctx, box)
}

// FetchPolygon derives the polygon's normalized bounding box, fetches
// the covering DEM and clips it: cells outside the polygon become
// nodata.
func (c *Client) FetchPolygon(ctx context.Context, poly geom.Polygonal) (*raster.Grid, error) {
	box := geometry.BoundingBoxOf(poly)
	g, err := c.Fetch(ctx, box)
	if err != nil {
		return nil, err
	}
	clipped, err := g.Clip(poly)
	if err != nil {
		return nil, fmt.Errorf("clip DEM to AOI %s: %w", box, err)
	}
	return clipped, nil
}

func (c *Client) fetchWithRetry(ctx context.Context, box geometry.BoundingBox) (*raster.Grid, error) {
	var grid *raster.Grid
	err := c.config.Retry.Do(ctx, c.config.Endpoints, func(ctx context.Context, endpoint string) error {
		g, err := c.fetchOnce(ctx, endpoint, box)
		if err != nil {
			return err
		}
		grid = g
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w for bbox %s after %d rounds: %v",
			ErrSourceUnavailable, box, c.config.Retry.MaxAttempts, err)
	}
	return grid, nil
}

// fetchOnce issues a single provider request. Any non-200 status or
// transport failure is a retryable error; the provider's error body is
// carried in the message rather than swallowed.
func (c *Client) fetchOnce(ctx context.Context, endpoint string, box geometry.BoundingBox) (*raster.Grid, error) {
	q := url.Values{}
	q.Set("demtype", c.config.DEMType)
	q.Set("south", formatCoord(box.South))
	q.Set("north", formatCoord(box.North))
	q.Set("west", formatCoord(box.West))
	q.Set("east", formatCoord(box.East))
	q.Set("outputFormat", outputFormat)
	q.Set("API_Key", c.config.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build DEM request: %v", err)
	}
	req.Header.Set("User-Agent", "slope-analyzer/1.0 (+https://github.com/geoslope/slope-analyzer)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("DEM request to %s: %v", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("provider %s returned HTTP %d: %s",
			endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	g, err := raster.ParseASCIIGrid(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse DEM payload from %s: %v", endpoint, err)
	}
	return g, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
