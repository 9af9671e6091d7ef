package spectral

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidBand reports a waveband or grid whose limits are unusable.
var ErrInvalidBand = errors.New("spectral: invalid band")

// MaxGridSamples bounds the length of grids built by Grid.
const MaxGridSamples = 1_000_000

// Band is a named wavelength interval in µm.
type Band struct {
	Name string  `json:"name" yaml:"name"`
	Min  float64 `json:"min_um" yaml:"min_um"`
	Max  float64 `json:"max_um" yaml:"max_um"`
}

// Validate checks 0 < Min < Max.
func (b Band) Validate() error {
	if math.IsNaN(b.Min) || math.IsNaN(b.Max) || b.Min <= 0 || b.Max <= b.Min {
		return fmt.Errorf("%w: %s", ErrInvalidBand, b)
	}
	return nil
}

// Width returns Max-Min in µm.
func (b Band) Width() float64 { return b.Max - b.Min }

// Contains reports whether lambda lies inside the band.
func (b Band) Contains(lambda float64) bool {
	return lambda >= b.Min && lambda <= b.Max
}

func (b Band) String() string {
	if b.Name == "" {
		return fmt.Sprintf("[%g, %g] um", b.Min, b.Max)
	}
	return fmt.Sprintf("%s [%g, %g] um", b.Name, b.Min, b.Max)
}

// Grid returns uniformly spaced wavelengths from lo to hi inclusive. The last
// sample is dropped when hi is not reachable in whole steps. Grids longer
// than MaxGridSamples are rejected.
func Grid(lo, hi, step float64) ([]float64, error) {
	if lo <= 0 || hi <= lo || step <= 0 || math.IsNaN(step) || math.IsInf(hi, 1) {
		return nil, fmt.Errorf("%w: grid [%g, %g] um step %g", ErrInvalidBand, lo, hi, step)
	}
	count := math.Floor((hi-lo)/step+1e-9) + 1
	if count > MaxGridSamples {
		return nil, fmt.Errorf("%w: step %g um over [%g, %g] needs %.0f samples, limit is %d",
			ErrInvalidBand, step, lo, hi, count, MaxGridSamples)
	}
	n := int(count)
	if n < 2 {
		return nil, fmt.Errorf("%w: step %g um leaves fewer than 2 samples in [%g, %g]", ErrInvalidBand, step, lo, hi)
	}
	return floats.Span(make([]float64, n), lo, lo+float64(n-1)*step), nil
}

// GridFor returns a grid spanning band with the given step.
func GridFor(b Band, step float64) ([]float64, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return Grid(b.Min, b.Max, step)
}
