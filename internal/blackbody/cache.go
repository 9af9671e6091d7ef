package blackbody

import (
	"hash/fnv"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/rjboer/GoIR/internal/spectral"
)

const (
	defaultCacheSize = 64
	// Total wavelength samples held across all cached curves.
	cacheSampleBudget = 4 * spectral.MaxGridSamples
)

type cacheKey struct {
	kelvin float64
	grid   uint64
	n      int
}

type cacheEntry struct {
	grid  []float64
	curve spectral.Curve
}

// Cache keeps the exitance curves of recently used temperature and grid
// pairs so repeated requests skip the Planck evaluation. Entries are evicted
// oldest first once size curves or the sample budget is reached.
type Cache struct {
	mu      sync.RWMutex
	size    int
	samples int
	curves  map[cacheKey]cacheEntry
	order   []cacheKey
	hits    int
	misses  int
}

// NewCache returns a cache holding up to size curves. Non-positive sizes
// select a default of 64.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = defaultCacheSize
	}
	return &Cache{size: size, curves: make(map[cacheKey]cacheEntry, size)}
}

// Exitance returns s.Exitance(wavelengths), computing it at most once per
// temperature and grid.
func (c *Cache) Exitance(s Source, wavelengths []float64) (spectral.Curve, error) {
	key := cacheKey{kelvin: s.kelvin, grid: gridHash(wavelengths), n: len(wavelengths)}

	c.mu.RLock()
	entry, ok := c.curves[key]
	c.mu.RUnlock()
	if ok && floats.Equal(entry.grid, wavelengths) {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return entry.curve, nil
	}

	curve, err := s.Exitance(wavelengths)
	if err != nil {
		return spectral.Curve{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.misses++
	n := len(wavelengths)
	if n > cacheSampleBudget {
		return curve, nil
	}
	if old, ok := c.curves[key]; ok {
		c.remove(key, len(old.grid))
	}
	for len(c.order) > 0 && (len(c.order) >= c.size || c.samples+n > cacheSampleBudget) {
		oldest := c.order[0]
		c.remove(oldest, len(c.curves[oldest].grid))
	}
	c.curves[key] = cacheEntry{grid: append([]float64(nil), wavelengths...), curve: curve}
	c.order = append(c.order, key)
	c.samples += n
	return curve, nil
}

func (c *Cache) remove(key cacheKey, n int) {
	delete(c.curves, key)
	c.samples -= n
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Stats reports cache hits and misses since creation.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Len returns the number of cached curves.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.curves)
}

func gridHash(wavelengths []float64) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, w := range wavelengths {
		bits := math.Float64bits(w)
		for i := range buf {
			buf[i] = byte(bits >> (8 * i))
		}
		h.Write(buf[:])
	}
	return h.Sum64()
}
