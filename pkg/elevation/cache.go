package elevation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/geoslope/slope-analyzer/pkg/geometry"
	"github.com/geoslope/slope-analyzer/pkg/raster"
)

// Cache is a shared on-disk DEM cache keyed by (dataset, bounding
// box). Each key has its own lock, so concurrent invocations for the
// same tile serialize on the fetch while distinct tiles proceed in
// parallel. Entries are written to a temporary file and renamed into
// place; a concurrent reader never observes a partial write.
type Cache struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCache creates a cache rooted at dir, creating it if needed.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("elevation: create cache dir: %w", err)
	}
	return &Cache{dir: dir, locks: map[string]*sync.Mutex{}}, nil
}

// Do returns the cached grid for (demType, box) or runs fetch, stores
// the result, and returns it. The per-key lock is held for the whole
// lookup-fetch-store sequence.
func (c *Cache) Do(demType string, box geometry.BoundingBox, fetch func() (*raster.Grid, error)) (*raster.Grid, error) {
	key := cacheKey(demType, box)
	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	path := filepath.Join(c.dir, key+".asc")
	if f, err := os.Open(path); err == nil {
		g, err := raster.ParseASCIIGrid(f)
		f.Close()
		if err == nil {
			return g, nil
		}
		// Unreadable entry: drop it and refetch.
		os.Remove(path)
	}

	g, err := fetch()
	if err != nil {
		return nil, err
	}
	if err := c.store(path, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (c *Cache) store(path string, g *raster.Grid) error {
	tmp, err := os.CreateTemp(c.dir, "dem-*.tmp")
	if err != nil {
		return fmt.Errorf("elevation: cache temp file: %w", err)
	}
	if err := raster.WriteASCIIGrid(tmp, g); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("elevation: write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("elevation: close cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("elevation: publish cache entry: %w", err)
	}
	return nil
}

func (c *Cache) keyLock(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	c.locks[key] = l
	return l
}

func cacheKey(demType string, box geometry.BoundingBox) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%.8f|%.8f|%.8f|%.8f",
		demType, box.West, box.South, box.East, box.North)))
	return demType + "-" + hex.EncodeToString(sum[:8])
}
