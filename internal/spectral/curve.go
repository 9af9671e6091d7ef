package spectral

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/interp"

	"github.com/rjboer/GoIR/internal/units"
)

var (
	// ErrInvalidCurve reports malformed curve data (length mismatch,
	// non-increasing wavelengths, NaN values).
	ErrInvalidCurve = errors.New("spectral: invalid curve")
	// ErrOutOfDomain is returned when a wavelength lies outside the sampled
	// range of a curve. Curves are never extrapolated.
	ErrOutOfDomain = errors.New("spectral: wavelength outside curve domain")
	// ErrGridMismatch is returned when element-wise operations see curves
	// sampled on different wavelength grids.
	ErrGridMismatch = errors.New("spectral: wavelength grids differ")
)

// WavelengthUnit is the unit of every curve abscissa.
var WavelengthUnit = units.Micrometer

// domainTolerance absorbs floating point drift at the ends of generated grids (µm).
const domainTolerance = 1e-9

// Curve pairs strictly increasing wavelengths (µm) with values sharing one
// unit. Curves are immutable: accessors hand out copies and every operation
// returns a new Curve.
type Curve struct {
	name        string
	wavelengths []float64
	values      []float64
	unit        units.Unit
}

// New validates and copies the samples into a Curve.
func New(wavelengths, values []float64, unit units.Unit) (Curve, error) {
	if len(wavelengths) != len(values) {
		return Curve{}, fmt.Errorf("%w: %d wavelengths but %d values", ErrInvalidCurve, len(wavelengths), len(values))
	}
	if err := validateGrid(wavelengths); err != nil {
		return Curve{}, err
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Curve{}, fmt.Errorf("%w: non-finite value %v at %g um", ErrInvalidCurve, v, wavelengths[i])
		}
	}
	return Curve{
		wavelengths: append([]float64(nil), wavelengths...),
		values:      append([]float64(nil), values...),
		unit:        unit,
	}, nil
}

// FromQuantities builds a curve from dimensioned samples, expressing every
// value in the unit of the first one.
func FromQuantities(wavelengths []float64, values []units.Quantity) (Curve, error) {
	if len(values) == 0 {
		return Curve{}, fmt.Errorf("%w: no samples", ErrInvalidCurve)
	}
	u := values[0].Unit()
	raw := make([]float64, len(values))
	for i, q := range values {
		v, err := q.In(u)
		if err != nil {
			return Curve{}, fmt.Errorf("sample %d: %w", i, err)
		}
		raw[i] = v
	}
	return New(wavelengths, raw, u)
}

func validateGrid(wavelengths []float64) error {
	if len(wavelengths) < 2 {
		return fmt.Errorf("%w: need at least 2 samples, got %d", ErrInvalidCurve, len(wavelengths))
	}
	for i, w := range wavelengths {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: non-finite wavelength at index %d", ErrInvalidCurve, i)
		}
		if i > 0 && w <= wavelengths[i-1] {
			return fmt.Errorf("%w: wavelengths not strictly increasing at index %d (%g after %g um)",
				ErrInvalidCurve, i, w, wavelengths[i-1])
		}
	}
	return nil
}

// WithName returns a copy of c labelled name; the label shows up in errors.
func (c Curve) WithName(name string) Curve {
	c.name = name
	return c
}

// Name returns the curve label.
func (c Curve) Name() string { return c.name }

func (c Curve) label() string {
	if c.name == "" {
		return "curve"
	}
	return fmt.Sprintf("curve %q", c.name)
}

// Len returns the number of samples.
func (c Curve) Len() int { return len(c.wavelengths) }

// IsZero reports whether c holds no samples.
func (c Curve) IsZero() bool { return len(c.wavelengths) == 0 }

// Wavelengths returns a copy of the sample wavelengths in µm.
func (c Curve) Wavelengths() []float64 { return append([]float64(nil), c.wavelengths...) }

// Values returns a copy of the sample values expressed in Unit().
func (c Curve) Values() []float64 { return append([]float64(nil), c.values...) }

// Unit returns the unit shared by every value.
func (c Curve) Unit() units.Unit { return c.unit }

// Domain returns the first and last sampled wavelength.
func (c Curve) Domain() (lo, hi float64) {
	if c.IsZero() {
		return 0, 0
	}
	return c.wavelengths[0], c.wavelengths[len(c.wavelengths)-1]
}

// Covers reports whether [lo, hi] lies inside the domain of c.
func (c Curve) Covers(lo, hi float64) bool {
	if c.IsZero() {
		return false
	}
	dlo, dhi := c.Domain()
	return lo >= dlo-domainTolerance && hi <= dhi+domainTolerance
}

// At returns the i-th sample.
func (c Curve) At(i int) (float64, units.Quantity) {
	return c.wavelengths[i], units.New(c.values[i], c.unit)
}

func (c Curve) check() error {
	if c.IsZero() {
		return fmt.Errorf("%w: %s is empty", ErrInvalidCurve, c.label())
	}
	return nil
}

func (c Curve) predictor() *interp.PiecewiseLinear {
	var pl interp.PiecewiseLinear
	// Fit only rejects inputs New already refuses.
	_ = pl.Fit(c.wavelengths, c.values)
	return &pl
}

// clamp maps x onto the domain when it sits within rounding distance of an
// edge and fails otherwise.
func (c Curve) clamp(x float64) (float64, error) {
	lo, hi := c.Domain()
	switch {
	case x >= lo && x <= hi:
		return x, nil
	case x < lo && lo-x <= domainTolerance:
		return lo, nil
	case x > hi && x-hi <= domainTolerance:
		return hi, nil
	}
	return 0, fmt.Errorf("%w: %g um requested from %s sampled on [%g, %g] um",
		ErrOutOfDomain, x, c.label(), lo, hi)
}

// ValueAt linearly interpolates c at lambda (µm).
func (c Curve) ValueAt(lambda float64) (units.Quantity, error) {
	if err := c.check(); err != nil {
		return units.Quantity{}, err
	}
	x, err := c.clamp(lambda)
	if err != nil {
		return units.Quantity{}, err
	}
	return units.New(c.predictor().Predict(x), c.unit), nil
}

// Resample interpolates c piecewise-linearly onto grid. Every grid point must
// fall inside the domain of c.
func (c Curve) Resample(grid []float64) (Curve, error) {
	if err := c.check(); err != nil {
		return Curve{}, err
	}
	if err := validateGrid(grid); err != nil {
		return Curve{}, fmt.Errorf("resample grid: %w", err)
	}
	pl := c.predictor()
	out := make([]float64, len(grid))
	for i, w := range grid {
		x, err := c.clamp(w)
		if err != nil {
			return Curve{}, err
		}
		out[i] = pl.Predict(x)
	}
	return Curve{
		name:        c.name,
		wavelengths: append([]float64(nil), grid...),
		values:      out,
		unit:        c.unit,
	}, nil
}

// window returns the samples of c restricted to [lo, hi], interpolating the
// edges when they are not sample points.
func (c Curve) window(lo, hi float64) ([]float64, []float64, error) {
	lo, err := c.clamp(lo)
	if err != nil {
		return nil, nil, err
	}
	hi, err = c.clamp(hi)
	if err != nil {
		return nil, nil, err
	}
	pl := c.predictor()
	xs := []float64{lo}
	ys := []float64{pl.Predict(lo)}
	for i, w := range c.wavelengths {
		if w > lo && w < hi {
			xs = append(xs, w)
			ys = append(ys, c.values[i])
		}
	}
	xs = append(xs, hi)
	ys = append(ys, pl.Predict(hi))
	return xs, ys, nil
}

// Integrate applies the trapezoidal rule over the whole curve, or over band
// when it is non-nil. The result carries unit Unit()·µm.
func (c Curve) Integrate(band *Band) (units.Quantity, error) {
	if err := c.check(); err != nil {
		return units.Quantity{}, err
	}
	xs, ys := c.wavelengths, c.values
	if band != nil {
		if err := band.Validate(); err != nil {
			return units.Quantity{}, err
		}
		var err error
		xs, ys, err = c.window(band.Min, band.Max)
		if err != nil {
			return units.Quantity{}, fmt.Errorf("integrate %s: %w", band, err)
		}
	}
	return units.New(integrate.Trapezoidal(xs, ys), c.unit.Mul(WavelengthUnit)), nil
}

// Mean returns the band-averaged value: the integral divided by the band
// width, in Unit().
func (c Curve) Mean(band *Band) (units.Quantity, error) {
	total, err := c.Integrate(band)
	if err != nil {
		return units.Quantity{}, err
	}
	lo, hi := c.Domain()
	if band != nil {
		lo, hi = band.Min, band.Max
	}
	return units.New(total.Value()/(hi-lo), c.unit), nil
}

// SameGrid reports whether c and o are sampled on identical wavelengths.
func (c Curve) SameGrid(o Curve) bool {
	if len(c.wavelengths) != len(o.wavelengths) {
		return false
	}
	for i, w := range c.wavelengths {
		if math.Abs(w-o.wavelengths[i]) > 1e-12*math.Max(1, math.Abs(w)) {
			return false
		}
	}
	return true
}

// Op selects the element-wise operator used by Combine.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
)

func (op Op) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDiv:
		return "div"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}

// Combine applies op sample by sample. Both curves must share a grid; call
// Resample first otherwise. Add and Sub express other in c's unit. Results
// that are not finite, such as division by a zero sample, are rejected.
func (c Curve) Combine(other Curve, op Op) (Curve, error) {
	if err := c.check(); err != nil {
		return Curve{}, err
	}
	if err := other.check(); err != nil {
		return Curve{}, err
	}
	if !c.SameGrid(other) {
		alo, ahi := c.Domain()
		blo, bhi := other.Domain()
		return Curve{}, fmt.Errorf("%w: %s has %d samples on [%g, %g] um, %s has %d samples on [%g, %g] um",
			ErrGridMismatch, c.label(), c.Len(), alo, ahi, other.label(), other.Len(), blo, bhi)
	}

	out := make([]float64, c.Len())
	unit := c.unit
	switch op {
	case OpAdd, OpSub:
		f, err := units.Factor(other.unit, c.unit)
		if err != nil {
			return Curve{}, fmt.Errorf("%s %s and %s: %w", op, c.label(), other.label(), err)
		}
		if op == OpSub {
			f = -f
		}
		floats.AddScaledTo(out, c.values, f, other.values)
	case OpMul:
		floats.MulTo(out, c.values, other.values)
		unit = c.unit.Mul(other.unit)
	case OpDiv:
		for i, v := range other.values {
			if v == 0 {
				return Curve{}, fmt.Errorf("%w: %s divides by zero at %g um", ErrInvalidCurve, c.label(), c.wavelengths[i])
			}
		}
		floats.DivTo(out, c.values, other.values)
		unit = c.unit.Div(other.unit)
	default:
		return Curve{}, fmt.Errorf("spectral: unsupported operator %s", op)
	}
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Curve{}, fmt.Errorf("%w: %s %s %s overflows at %g um", ErrInvalidCurve, c.label(), op, other.label(), c.wavelengths[i])
		}
	}
	return Curve{name: c.name, wavelengths: c.Wavelengths(), values: out, unit: unit}, nil
}

// Convert expresses every value in u.
func (c Curve) Convert(u units.Unit) (Curve, error) {
	if err := c.check(); err != nil {
		return Curve{}, err
	}
	f, err := units.Factor(c.unit, u)
	if err != nil {
		return Curve{}, fmt.Errorf("convert %s: %w", c.label(), err)
	}
	out := make([]float64, c.Len())
	floats.ScaleTo(out, f, c.values)
	return Curve{name: c.name, wavelengths: c.Wavelengths(), values: out, unit: u}, nil
}

// Scale multiplies every value by a dimensionless factor.
func (c Curve) Scale(f float64) Curve {
	out := make([]float64, c.Len())
	floats.ScaleTo(out, f, c.values)
	return Curve{name: c.name, wavelengths: c.Wavelengths(), values: out, unit: c.unit}
}

// Map returns a curve whose values are fn(wavelength, value), labelled with unit.
func (c Curve) Map(fn func(lambda, v float64) float64, unit units.Unit) Curve {
	out := make([]float64, c.Len())
	for i, w := range c.wavelengths {
		out[i] = fn(w, c.values[i])
	}
	return Curve{name: c.name, wavelengths: c.Wavelengths(), values: out, unit: unit}
}

// Constant returns a curve holding v at every grid wavelength.
func Constant(grid []float64, v float64, unit units.Unit) (Curve, error) {
	values := make([]float64, len(grid))
	for i := range values {
		values[i] = v
	}
	return New(grid, values, unit)
}
