package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/GoIR/internal/blackbody"
	"github.com/rjboer/GoIR/internal/spectral"
	"github.com/rjboer/GoIR/internal/units"
)

func constant(t *testing.T, lo, hi, v float64, u units.Unit) spectral.Curve {
	t.Helper()
	grid, err := spectral.Grid(lo, hi, 0.5)
	require.NoError(t, err)
	c, err := spectral.Constant(grid, v, u)
	require.NoError(t, err)
	return c
}

func background(t *testing.T) blackbody.Source {
	t.Helper()
	src, err := blackbody.Kelvin(300)
	require.NoError(t, err)
	return src
}

func testGrid(t *testing.T) []float64 {
	t.Helper()
	g, err := spectral.Grid(9.5, 14, 0.005)
	require.NoError(t, err)
	return g
}

func TestComposePureBlackbody(t *testing.T) {
	grid := testGrid(t)
	d := Description{
		Background: background(t),
		Atmosphere: constant(t, 8, 15, 100, units.Percent),
	}
	got, err := NewComposer().Compose(d, grid)
	require.NoError(t, err)

	bb, err := d.Background.Exitance(grid)
	require.NoError(t, err)
	assert.True(t, got.Unit().Equal(units.SpectralExitance))
	assert.InDeltaSlice(t, bb.Values(), got.Values(), 1e-9)
}

func TestComposeComponents(t *testing.T) {
	grid := testGrid(t)
	refl := constant(t, 8, 15, 20, units.Percent)
	illum := constant(t, 8, 15, 100, units.SpectralExitance)
	d := Description{
		Background:   background(t),
		Reflectance:  &refl,
		Atmosphere:   constant(t, 8, 15, 0.8, units.Dimensionless),
		Illumination: &illum,
	}

	parts, err := NewComposer().ComposeComponents(d, grid)
	require.NoError(t, err)
	bb := parts.Blackbody.Values()
	emitted := parts.Emitted.Values()
	reflected := parts.Reflected.Values()
	aperture := parts.AtAperture.Values()
	for i := range grid {
		assert.InDelta(t, 0.8, parts.Emissivity.Values()[i], 1e-12)
		assert.InDelta(t, 0.8*bb[i], emitted[i], 1e-9)
		assert.InDelta(t, 20, reflected[i], 1e-9)
		// atmosphere applies once to the sum, reflected term included
		assert.InDelta(t, (0.8*bb[i]+20)*0.8, aperture[i], 1e-9)
	}

	direct, err := NewComposer().Compose(d, grid)
	require.NoError(t, err)
	assert.Equal(t, parts.AtAperture.Values(), direct.Values(), "composition must be repeatable")
}

func TestReflectanceWithoutIllumination(t *testing.T) {
	grid := testGrid(t)
	refl := constant(t, 8, 15, 0.5, units.Dimensionless)
	d := Description{
		Background:  background(t),
		Reflectance: &refl,
		Atmosphere:  constant(t, 8, 15, 1, units.Dimensionless),
	}
	parts, err := NewComposer().ComposeComponents(d, grid)
	require.NoError(t, err)
	assert.True(t, parts.Reflected.IsZero())
	bb := parts.Blackbody.Values()
	for i, v := range parts.AtAperture.Values() {
		assert.InDelta(t, 0.5*bb[i], v, 1e-9)
	}
}

func TestPixelFill(t *testing.T) {
	grid := testGrid(t)
	refl := constant(t, 8, 15, 40, units.Percent)
	illum := constant(t, 8, 15, 10, units.SpectralExitance)
	d := Description{
		Background:   background(t),
		Reflectance:  &refl,
		Atmosphere:   constant(t, 8, 15, 100, units.Percent),
		Illumination: &illum,
		PixelFill:    0.5,
	}
	parts, err := NewComposer().ComposeComponents(d, grid)
	require.NoError(t, err)
	bb := parts.Blackbody.Values()
	for i, v := range parts.AtAperture.Values() {
		assert.InDelta(t, 0.8*bb[i]+2, v, 1e-9)
	}

	d.PixelFill = 1.5
	_, err = NewComposer().Compose(d, grid)
	assert.ErrorIs(t, err, ErrInvalidScene)
}

func TestComposeErrors(t *testing.T) {
	grid := testGrid(t)
	narrow := constant(t, 10, 15, 20, units.Percent).WithName("ecostress-579")
	tooBright := constant(t, 8, 15, 120, units.Percent)
	notAFraction := constant(t, 8, 15, 1, units.Watt)
	atm := constant(t, 8, 15, 100, units.Percent)

	_, err := NewComposer().Compose(Description{Background: background(t), Reflectance: &narrow, Atmosphere: atm}, grid)
	require.ErrorIs(t, err, spectral.ErrOutOfDomain)
	assert.Contains(t, err.Error(), "ecostress-579")

	_, err = NewComposer().Compose(Description{Background: background(t), Reflectance: &tooBright, Atmosphere: atm}, grid)
	assert.ErrorIs(t, err, ErrInvalidScene)

	_, err = NewComposer().Compose(Description{Background: background(t), Reflectance: &notAFraction, Atmosphere: atm}, grid)
	assert.ErrorIs(t, err, units.ErrIncompatibleUnit)

	_, err = NewComposer().Compose(Description{Background: background(t)}, grid)
	assert.ErrorIs(t, err, ErrInvalidScene)

	_, err = NewComposer().Compose(Description{Background: blackbody.Source{}, Atmosphere: atm}, grid)
	assert.ErrorIs(t, err, blackbody.ErrInvalidTemperature)

	short := constant(t, 10, 15, 1, units.Dimensionless)
	_, err = NewComposer().Compose(Description{Background: background(t), Atmosphere: short}, grid)
	require.ErrorIs(t, err, spectral.ErrOutOfDomain)
	assert.Contains(t, err.Error(), "atmosphere")
}
