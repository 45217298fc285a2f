package elevation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ctessum/geom"

	"github.com/geoslope/slope-analyzer/pkg/geometry"
)

// sampleGridBody is a 3x2 ASCII grid covering [10,51]..[13,53] with one
// degree cells. Row order is north to south.
const sampleGridBody = `ncols 3
nrows 2
xllcorner 10
yllcorner 51
cellsize 1
NODATA_value -9999
1 2 3
4 5 6
`

func testBox() geometry.BoundingBox {
	return geometry.BoundingBox{West: 10, South: 51, East: 13, North: 53}
}

func TestClientFetch(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		fmt.Fprint(w, sampleGridBody)
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "k", Endpoints: []string{srv.URL}})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	g, err := c.Fetch(context.Background(), testBox())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if g.Width != 3 || g.Height != 2 {
		t.Errorf("grid dims = %dx%d, want 3x2", g.Width, g.Height)
	}
	if v := g.At(0, 0); v != 1 {
		t.Errorf("northwest sample = %v, want 1", v)
	}

	q := gotQuery.Load().(url.Values)
	for key, want := range map[string]string{
		"demtype":      DefaultDEMType,
		"south":        "51",
		"north":        "53",
		"west":         "10",
		"east":         "13",
		"outputFormat": "AAIGrid",
		"API_Key":      "k",
	} {
		if got := q[key]; len(got) != 1 || got[0] != want {
			t.Errorf("query %s = %v, want %q", key, got, want)
		}
	}
}

func TestClientMissingAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request reached the provider despite missing key")
	}))
	defer srv.Close()

	c, err := NewClient(Config{Endpoints: []string{srv.URL}})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := c.Fetch(context.Background(), testBox()); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestClientFallsBackToMirror(t *testing.T) {
	var primaryHits, mirrorHits atomic.Int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryHits.Add(1)
		http.Error(w, "dataset temporarily offline", http.StatusServiceUnavailable)
	}))
	defer primary.Close()
	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mirrorHits.Add(1)
		fmt.Fprint(w, sampleGridBody)
	}))
	defer mirror.Close()

	c, err := NewClient(Config{
		APIKey:    "k",
		Endpoints: []string{primary.URL, mirror.URL},
		Retry:     RetryPolicy{MaxAttempts: 3},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := c.Fetch(context.Background(), testBox()); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if primaryHits.Load() != 1 || mirrorHits.Load() != 1 {
		t.Errorf("hits = primary %d, mirror %d; want 1 each", primaryHits.Load(), mirrorHits.Load())
	}
}

func TestClientExhaustsRetryBudget(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewClient(Config{
		APIKey:    "k",
		Endpoints: []string{srv.URL},
		Retry:     RetryPolicy{MaxAttempts: 3},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	_, err = c.Fetch(context.Background(), testBox())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
	if !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Errorf("err = %v, want provider body in message", err)
	}
	if hits.Load() != 3 {
		t.Errorf("hits = %d, want 3", hits.Load())
	}
}

func TestClientStopsOnCancel(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c, err := NewClient(Config{
		APIKey:    "k",
		Endpoints: []string{srv.URL},
		Retry:     RetryPolicy{MaxAttempts: 1000},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	cancel()
	if _, err := c.Fetch(ctx, testBox()); err == nil {
		t.Fatal("expected error for canceled context")
	}
	if hits.Load() != 0 {
		t.Errorf("hits = %d, want 0 after upfront cancellation", hits.Load())
	}
}

func TestClientRejectsBadEndpoint(t *testing.T) {
	if _, err := NewClient(Config{Endpoints: []string{"ftp://example.com/dem"}}); err == nil {
		t.Error("expected error for non-HTTP endpoint")
	}
}

func TestClientFetchPolygon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sampleGridBody)
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "k", Endpoints: []string{srv.URL}})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	// Covers the western two columns only.
	aoi := geom.Polygon{{
		{X: 10, Y: 51}, {X: 12, Y: 51}, {X: 12, Y: 53}, {X: 10, Y: 53}, {X: 10, Y: 51},
	}}
	g, err := c.FetchPolygon(context.Background(), aoi)
	if err != nil {
		t.Fatalf("FetchPolygon failed: %v", err)
	}
	if g.Width != 2 || g.Height != 2 {
		t.Errorf("clipped dims = %dx%d, want 2x2", g.Width, g.Height)
	}
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			if g.IsNoData(row, col) {
				t.Errorf("cell (%d,%d) is nodata, want elevation inside AOI", row, col)
			}
		}
	}
}

func TestCacheHitSkipsFetch(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		fmt.Fprint(w, sampleGridBody)
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "k", Endpoints: []string{srv.URL}, Cache: cache})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		g, err := c.Fetch(context.Background(), testBox())
		if err != nil {
			t.Fatalf("Fetch %d failed: %v", i, err)
		}
		if v := g.At(1, 2); v != 6 {
			t.Errorf("Fetch %d southeast sample = %v, want 6", i, v)
		}
	}
	if fetches.Load() != 1 {
		t.Errorf("provider fetches = %d, want 1 (subsequent calls served from cache)", fetches.Load())
	}
}

func TestCacheKeysByDatasetAndBox(t *testing.T) {
	boxA := testBox()
	boxB := geometry.BoundingBox{West: 20, South: 40, East: 21, North: 41}
	keys := map[string]bool{
		cacheKey("SRTMGL1", boxA): true,
		cacheKey("SRTMGL1", boxB): true,
		cacheKey("SRTMGL3", boxA): true,
		cacheKey("COP30", boxA):   true,
	}
	if len(keys) != 4 {
		t.Errorf("distinct keys = %d, want 4", len(keys))
	}
}
