package blackbody

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/GoIR/internal/spectral"
)

func TestCacheMatchesDirectEvaluation(t *testing.T) {
	grid, err := spectral.Grid(8, 14, 0.01)
	require.NoError(t, err)
	src, err := Kelvin(300)
	require.NoError(t, err)

	cache := NewCache(4)
	first, err := cache.Exitance(src, grid)
	require.NoError(t, err)
	second, err := cache.Exitance(src, grid)
	require.NoError(t, err)
	direct, err := src.Exitance(grid)
	require.NoError(t, err)

	assert.Equal(t, direct.Values(), first.Values())
	assert.Equal(t, first.Values(), second.Values())
	hits, misses := cache.Stats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}

func TestCacheKeysOnTemperatureAndGrid(t *testing.T) {
	coarse, err := spectral.Grid(8, 14, 0.5)
	require.NoError(t, err)
	fine, err := spectral.Grid(8, 14, 0.25)
	require.NoError(t, err)
	warm, err := Kelvin(300)
	require.NoError(t, err)
	hot, err := Kelvin(600)
	require.NoError(t, err)

	cache := NewCache(0)
	a, err := cache.Exitance(warm, coarse)
	require.NoError(t, err)
	b, err := cache.Exitance(hot, coarse)
	require.NoError(t, err)
	c, err := cache.Exitance(warm, fine)
	require.NoError(t, err)

	assert.Equal(t, 3, cache.Len())
	assert.NotEqual(t, a.Values(), b.Values())
	assert.NotEqual(t, a.Len(), c.Len())
}

func TestCacheEvictsOldest(t *testing.T) {
	grid, err := spectral.Grid(8, 14, 0.5)
	require.NoError(t, err)

	cache := NewCache(2)
	for _, k := range []float64{200, 300, 400} {
		src, err := Kelvin(k)
		require.NoError(t, err)
		_, err = cache.Exitance(src, grid)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, cache.Len())

	src, err := Kelvin(200)
	require.NoError(t, err)
	_, err = cache.Exitance(src, grid)
	require.NoError(t, err)
	_, misses := cache.Stats()
	assert.Equal(t, 4, misses)
}

func TestCacheConcurrentUse(t *testing.T) {
	grid, err := spectral.Grid(8, 14, 0.1)
	require.NoError(t, err)
	src, err := Kelvin(310)
	require.NoError(t, err)

	cache := NewCache(8)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Exitance(src, grid)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	hits, misses := cache.Stats()
	assert.Equal(t, 16, hits+misses)
	assert.Equal(t, 1, cache.Len())
}

func TestCacheRecomputesOnKeyCollision(t *testing.T) {
	stored, err := spectral.Grid(8, 14, 0.5)
	require.NoError(t, err)
	asked, err := spectral.Grid(3, 9, 0.5)
	require.NoError(t, err)
	require.Equal(t, len(stored), len(asked))
	src, err := Kelvin(300)
	require.NoError(t, err)

	cache := NewCache(4)
	wrong, err := src.Exitance(stored)
	require.NoError(t, err)
	key := cacheKey{kelvin: src.kelvin, grid: gridHash(asked), n: len(asked)}
	cache.curves[key] = cacheEntry{grid: stored, curve: wrong}
	cache.order = append(cache.order, key)
	cache.samples = len(stored)

	got, err := cache.Exitance(src, asked)
	require.NoError(t, err)
	assert.Equal(t, asked, got.Wavelengths())
	hits, misses := cache.Stats()
	assert.Equal(t, 0, hits)
	assert.Equal(t, 1, misses)
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, len(asked), cache.samples)

	_, err = cache.Exitance(src, asked)
	require.NoError(t, err)
	hits, _ = cache.Stats()
	assert.Equal(t, 1, hits)
}
