package units

import (
	"fmt"

	"gonum.org/v1/gonum/unit"
	"gonum.org/v1/gonum/unit/constant"
)

// Built-in units. They are immutable values; a System resolves symbols to them.
var (
	Dimensionless   = Unit{scale: 1, symbol: "1"}
	Percent         = Unit{scale: 1e-2, symbol: "%"}
	PartsPerMillion = Unit{scale: 1e-6, symbol: "ppm"}

	Meter      = Unit{scale: 1, dims: Dimensions{Length: 1}, symbol: "m"}
	Kilometer  = Unit{scale: 1e3, dims: Dimensions{Length: 1}, symbol: "km"}
	Centimeter = Unit{scale: 1e-2, dims: Dimensions{Length: 1}, symbol: "cm"}
	Millimeter = Unit{scale: 1e-3, dims: Dimensions{Length: 1}, symbol: "mm"}
	Micrometer = Unit{scale: 1e-6, dims: Dimensions{Length: 1}, symbol: "um"}
	Nanometer  = Unit{scale: 1e-9, dims: Dimensions{Length: 1}, symbol: "nm"}

	Second      = Unit{scale: 1, dims: Dimensions{Time: 1}, symbol: "s"}
	Millisecond = Unit{scale: 1e-3, dims: Dimensions{Time: 1}, symbol: "ms"}
	Microsecond = Unit{scale: 1e-6, dims: Dimensions{Time: 1}, symbol: "us"}
	Nanosecond  = Unit{scale: 1e-9, dims: Dimensions{Time: 1}, symbol: "ns"}
	Hertz       = Unit{scale: 1, dims: Dimensions{Time: -1}, symbol: "Hz"}

	Kilogram = Unit{scale: 1, dims: Dimensions{Mass: 1}, symbol: "kg"}
	Gram     = Unit{scale: 1e-3, dims: Dimensions{Mass: 1}, symbol: "g"}
	Kelvin   = Unit{scale: 1, dims: Dimensions{Temperature: 1}, symbol: "K"}
	Ampere   = Unit{scale: 1, dims: Dimensions{Current: 1}, symbol: "A"}
	Mole     = Unit{scale: 1, dims: Dimensions{Amount: 1}, symbol: "mol"}
	Candela  = Unit{scale: 1, dims: Dimensions{LuminousIntensity: 1}, symbol: "cd"}

	Radian    = Unit{scale: 1, dims: Dimensions{Angle: 1}, symbol: "rad"}
	Steradian = Unit{scale: 1, dims: Dimensions{SolidAngle: 1}, symbol: "sr"}

	Joule = Unit{scale: 1, dims: Dimensions{Mass: 1, Length: 2, Time: -2}, symbol: "J"}
	Watt  = Unit{scale: 1, dims: Dimensions{Mass: 1, Length: 2, Time: -3}, symbol: "W"}

	// Jones is the unit of specific detectivity, cm·Hz^0.5/W.
	Jones = Centimeter.Mul(Hertz.Pow(0.5)).Div(Watt).Named("Jones")

	SquareMeter           = Meter.Pow(2).Named("m^2")
	Irradiance            = Watt.Div(SquareMeter).Named("W/m^2")
	SpectralExitance      = Irradiance.Div(Micrometer).Named("W/m^2/um")
	SpectralRadiance      = SpectralExitance.Div(Steradian).Named("W/m^2/um/sr")
	SpectralEnergyDensity = Joule.Div(Meter.Pow(3)).Div(Micrometer).Named("J/m^3/um")
)

// Physical constants used by the Planck evaluators, sourced from gonum's
// CODATA values.
var (
	Planck       = mustFromUniter(constant.Planck, Joule.Mul(Second).Named("J·s"))
	SpeedOfLight = mustFromUniter(constant.LightSpeedInVacuum, Meter.Div(Second).Named("m/s"))
	Boltzmann    = mustFromUniter(constant.Boltzmann, Joule.Div(Kelvin).Named("J/K"))
)

var gonumDimensions = map[unit.Dimension]Dimension{
	unit.LengthDim:            Length,
	unit.MassDim:              Mass,
	unit.TimeDim:              Time,
	unit.TemperatureDim:       Temperature,
	unit.CurrentDim:           Current,
	unit.MoleDim:              Amount,
	unit.LuminousIntensityDim: LuminousIntensity,
	unit.AngleDim:             Angle,
}

// FromUniter converts a gonum dimensional value into a Quantity expressed in
// coherent SI units.
func FromUniter(u unit.Uniter) (Quantity, error) {
	gu := u.Unit()
	var dims Dimensions
	for d, exp := range gu.Dimensions() {
		ours, ok := gonumDimensions[d]
		if !ok {
			return Quantity{}, fmt.Errorf("%w: gonum dimension %s has no counterpart", ErrIncompatibleUnit, d)
		}
		dims[ours] = float64(exp)
	}
	return New(gu.Value(), Unit{scale: 1, dims: dims}), nil
}

func mustFromUniter(u unit.Uniter, as Unit) Quantity {
	q, err := FromUniter(u)
	if err != nil {
		panic(err)
	}
	q, err = q.Convert(as)
	if err != nil {
		panic(err)
	}
	return q
}
