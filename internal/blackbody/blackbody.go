// Package blackbody evaluates Planck's law over wavelength grids.
package blackbody

import (
	"errors"
	"fmt"
	"math"

	"github.com/rjboer/GoIR/internal/spectral"
	"github.com/rjboer/GoIR/internal/units"
)

var (
	// ErrInvalidTemperature is returned for non-positive or non-thermodynamic temperatures.
	ErrInvalidTemperature = errors.New("blackbody: invalid temperature")
	// ErrInvalidWavelength is returned for non-positive wavelengths.
	ErrInvalidWavelength = errors.New("blackbody: invalid wavelength")
)

// WienDisplacement is Wien's displacement constant in µm·K.
const WienDisplacement = 2897.771955

// maxExponent keeps exp(hc/λkT) representable; beyond it the Planck term is 0.
const maxExponent = 700.0

// Source is a blackbody at a fixed temperature.
type Source struct {
	kelvin float64
}

// NewSource validates t and returns a Source at that temperature.
func NewSource(t units.Quantity) (Source, error) {
	k, err := kelvinOf(t)
	if err != nil {
		return Source{}, err
	}
	return Source{kelvin: k}, nil
}

// Kelvin is NewSource for a bare kelvin value.
func Kelvin(k float64) (Source, error) {
	return NewSource(units.New(k, units.Kelvin))
}

// Temperature returns the source temperature.
func (s Source) Temperature() units.Quantity { return units.New(s.kelvin, units.Kelvin) }

// Exitance is SpectralExitance at the source temperature.
func (s Source) Exitance(wavelengths []float64) (spectral.Curve, error) {
	return SpectralExitance(wavelengths, s.Temperature())
}

// RadiantDensity is SpectralRadiantDensity at the source temperature.
func (s Source) RadiantDensity(wavelengths []float64) (spectral.Curve, error) {
	return SpectralRadiantDensity(wavelengths, s.Temperature())
}

// PeakWavelength returns the wavelength of maximum exitance in µm.
func (s Source) PeakWavelength() float64 { return WienDisplacement / s.kelvin }

func kelvinOf(t units.Quantity) (float64, error) {
	k, err := t.In(units.Kelvin)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTemperature, err)
	}
	if !(k > 0) || math.IsInf(k, 0) {
		return 0, fmt.Errorf("%w: %g K", ErrInvalidTemperature, k)
	}
	return k, nil
}

// SpectralRadiantDensity evaluates u(λ,T) = 8πhc / (λ⁵ (exp(hc/λkT) − 1)) in J/m³/µm.
func SpectralRadiantDensity(wavelengths []float64, t units.Quantity) (spectral.Curve, error) {
	coeff := units.New(8*math.Pi, units.Dimensionless).Mul(units.Planck).Mul(units.SpeedOfLight)
	c, err := planck(wavelengths, t, coeff, units.SpectralEnergyDensity)
	if err != nil {
		return spectral.Curve{}, err
	}
	return c.WithName("blackbody density"), nil
}

// SpectralExitance evaluates M(λ,T) = 2hc² / (λ⁵ (exp(hc/λkT) − 1)) in W/m²/µm.
func SpectralExitance(wavelengths []float64, t units.Quantity) (spectral.Curve, error) {
	coeff := units.New(2, units.Dimensionless).Mul(units.Planck).Mul(units.SpeedOfLight.Pow(2))
	c, err := planck(wavelengths, t, coeff, units.SpectralExitance)
	if err != nil {
		return spectral.Curve{}, err
	}
	return c.WithName("blackbody exitance"), nil
}

// planck evaluates coeff / (λ⁵ (exp(c2/λT) − 1)) and expresses it in target.
// The unit algebra is carried by Quantity once; the per-sample loop is plain
// float arithmetic in µm and K.
func planck(wavelengths []float64, t units.Quantity, coeff units.Quantity, target units.Unit) (spectral.Curve, error) {
	kelvin, err := kelvinOf(t)
	if err != nil {
		return spectral.Curve{}, err
	}
	for i, w := range wavelengths {
		if !(w > 0) {
			return spectral.Curve{}, fmt.Errorf("%w: %g um at index %d", ErrInvalidWavelength, w, i)
		}
	}

	c2, err := secondRadiationConstant()
	if err != nil {
		return spectral.Curve{}, err
	}
	scale, err := coeff.Div(units.New(1, units.Micrometer.Pow(5))).In(target)
	if err != nil {
		return spectral.Curve{}, fmt.Errorf("blackbody: %w", err)
	}

	values := make([]float64, len(wavelengths))
	for i, w := range wavelengths {
		b := c2 / (w * kelvin)
		if b > maxExponent {
			continue
		}
		values[i] = scale / (math.Pow(w, 5) * math.Expm1(b))
	}
	return spectral.New(wavelengths, values, target)
}

// secondRadiationConstant returns hc/k_B in µm·K.
func secondRadiationConstant() (float64, error) {
	return units.Planck.Mul(units.SpeedOfLight).Div(units.Boltzmann).In(units.Micrometer.Mul(units.Kelvin))
}

// TotalExitance returns the Stefan–Boltzmann integral π·∫M dλ over all
// wavelengths for the 2hc² form used by SpectralExitance, i.e. σT⁴, in W/m².
func TotalExitance(t units.Quantity) (units.Quantity, error) {
	kelvin, err := kelvinOf(t)
	if err != nil {
		return units.Quantity{}, err
	}
	k := units.Boltzmann.SI()
	h := units.Planck.SI()
	c := units.SpeedOfLight.SI()
	sigma := 2 * math.Pow(math.Pi, 5) * math.Pow(k, 4) / (15 * math.Pow(h, 3) * c * c)
	return units.New(sigma*math.Pow(kelvin, 4), units.Irradiance), nil
}
