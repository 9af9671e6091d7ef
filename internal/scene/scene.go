// Package scene combines a thermal background, a reflective signature and
// the atmosphere into the spectral exitance arriving at the instrument
// aperture.
package scene

import (
	"errors"
	"fmt"

	"github.com/rjboer/GoIR/internal/blackbody"
	"github.com/rjboer/GoIR/internal/spectral"
	"github.com/rjboer/GoIR/internal/units"
)

// ErrInvalidScene reports fractions outside [0, 1] or a missing atmosphere.
var ErrInvalidScene = errors.New("scene: invalid scene")

// Description is everything the composer needs for one pixel.
type Description struct {
	// Background is the thermal source behind every surface in the pixel.
	Background blackbody.Source
	// Reflectance of the signature material, in % or as a fraction. Nil means
	// a pure blackbody.
	Reflectance *spectral.Curve
	// Atmosphere is the path transmission, in % or as a fraction.
	Atmosphere spectral.Curve
	// Illumination is the solar or artificial irradiance in W/m^2/um.
	Illumination *spectral.Curve
	// PixelFill is the fraction of the pixel covered by the signature
	// material; the remainder is a blackbody at the background temperature.
	// Zero means 1.
	PixelFill float64
}

// Components holds every intermediate curve of a composition, all sampled on
// the same grid.
type Components struct {
	Blackbody  spectral.Curve
	Emissivity spectral.Curve
	Emitted    spectral.Curve
	// Reflected is empty when no illumination or reflectance was given.
	Reflected  spectral.Curve
	Atmosphere spectral.Curve
	AtAperture spectral.Curve
}

// Composer builds at-aperture curves. It keeps no state between calls.
type Composer struct{}

// NewComposer returns a Composer.
func NewComposer() Composer { return Composer{} }

// Compose returns the at-aperture spectral exitance (W/m^2/um) on wavelengths.
func (c Composer) Compose(d Description, wavelengths []float64) (spectral.Curve, error) {
	parts, err := c.ComposeComponents(d, wavelengths)
	if err != nil {
		return spectral.Curve{}, err
	}
	return parts.AtAperture, nil
}

// ComposeComponents runs the composition and returns every intermediate:
//
//	emissivity = 1 - fill·reflectance
//	emitted    = M(T) · emissivity
//	reflected  = illumination · fill·reflectance
//	at_aperture = (emitted + reflected) · atmosphere
func (c Composer) ComposeComponents(d Description, wavelengths []float64) (Components, error) {
	fill := d.PixelFill
	if fill == 0 {
		fill = 1
	}
	if !(fill > 0 && fill <= 1) {
		return Components{}, fmt.Errorf("%w: pixel fill must be in (0, 1], got %g", ErrInvalidScene, d.PixelFill)
	}
	if d.Atmosphere.IsZero() {
		return Components{}, fmt.Errorf("%w: no atmospheric transmission", ErrInvalidScene)
	}

	bb, err := d.Background.Exitance(wavelengths)
	if err != nil {
		return Components{}, fmt.Errorf("background: %w", err)
	}

	atm, err := fractionOnGrid(d.Atmosphere, wavelengths, "atmosphere")
	if err != nil {
		return Components{}, err
	}

	refl, err := spectral.Constant(wavelengths, 0, units.Dimensionless)
	if err != nil {
		return Components{}, err
	}
	if d.Reflectance != nil {
		r, err := fractionOnGrid(*d.Reflectance, wavelengths, "reflectance")
		if err != nil {
			return Components{}, err
		}
		refl = r.Scale(fill)
	}

	emissivity := refl.Map(func(_, r float64) float64 { return 1 - r }, units.Dimensionless).WithName("emissivity")
	emitted, err := bb.Combine(emissivity, spectral.OpMul)
	if err != nil {
		return Components{}, err
	}
	emitted, err = emitted.Convert(units.SpectralExitance)
	if err != nil {
		return Components{}, err
	}
	emitted = emitted.WithName("emitted")

	total := emitted
	var reflected spectral.Curve
	if d.Illumination != nil && d.Reflectance != nil {
		illum, err := d.Illumination.Resample(wavelengths)
		if err != nil {
			return Components{}, fmt.Errorf("illumination: %w", err)
		}
		if reflected, err = illum.Combine(refl, spectral.OpMul); err != nil {
			return Components{}, err
		}
		if reflected, err = reflected.Convert(units.SpectralExitance); err != nil {
			return Components{}, fmt.Errorf("illumination: %w", err)
		}
		reflected = reflected.WithName("reflected")
		if total, err = emitted.Combine(reflected, spectral.OpAdd); err != nil {
			return Components{}, err
		}
	}

	aperture, err := total.Combine(atm, spectral.OpMul)
	if err != nil {
		return Components{}, err
	}
	aperture, err = aperture.Convert(units.SpectralExitance)
	if err != nil {
		return Components{}, err
	}

	return Components{
		Blackbody:  bb,
		Emissivity: emissivity,
		Emitted:    emitted,
		Reflected:  reflected,
		Atmosphere: atm,
		AtAperture: aperture.WithName("at aperture"),
	}, nil
}

// fractionOnGrid resamples c onto grid and expresses it as a fraction in [0, 1].
func fractionOnGrid(c spectral.Curve, grid []float64, role string) (spectral.Curve, error) {
	if c.Name() == "" {
		c = c.WithName(role)
	}
	r, err := c.Resample(grid)
	if err != nil {
		return spectral.Curve{}, fmt.Errorf("%s: %w", role, err)
	}
	r, err = r.Convert(units.Dimensionless)
	if err != nil {
		return spectral.Curve{}, fmt.Errorf("%s: %w", role, err)
	}
	for i, v := range r.Values() {
		if v < 0 || v > 1 {
			w, _ := r.At(i)
			return spectral.Curve{}, fmt.Errorf("%w: %s is %g at %g um, outside [0, 1]",
				ErrInvalidScene, c.Name(), v, w)
		}
	}
	return r, nil
}
