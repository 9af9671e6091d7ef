package units

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrIncompatibleUnit is returned when two units do not share a dimension vector.
	ErrIncompatibleUnit = errors.New("units: incompatible units")
	// ErrUnknownUnit is returned when a symbol is not registered in a System.
	ErrUnknownUnit = errors.New("units: unknown unit")
	// ErrUnitSyntax is returned for malformed unit expressions.
	ErrUnitSyntax = errors.New("units: malformed unit expression")
)

// Dimension indexes one axis of a dimension vector.
type Dimension int

const (
	Length Dimension = iota
	Mass
	Time
	Temperature
	Current
	Amount
	LuminousIntensity
	Angle
	SolidAngle
	numDimensions
)

var dimensionSymbols = [numDimensions]string{"m", "kg", "s", "K", "A", "mol", "cd", "rad", "sr"}

func (d Dimension) String() string {
	if d < 0 || d >= numDimensions {
		return "Dimension(" + strconv.Itoa(int(d)) + ")"
	}
	return dimensionSymbols[d]
}

// dimensionTolerance absorbs rounding when fractional exponents are composed.
const dimensionTolerance = 1e-9

// Dimensions holds the exponent of every base dimension. Exponents are real
// valued because specific detectivity carries Hz^0.5.
type Dimensions [numDimensions]float64

// Equal reports whether both vectors carry the same exponents.
func (d Dimensions) Equal(o Dimensions) bool {
	for i := range d {
		if math.Abs(d[i]-o[i]) > dimensionTolerance {
			return false
		}
	}
	return true
}

// IsZero reports whether d is dimensionless.
func (d Dimensions) IsZero() bool {
	return d.Equal(Dimensions{})
}

func (d Dimensions) plus(o Dimensions) Dimensions {
	var out Dimensions
	for i := range d {
		out[i] = d[i] + o[i]
	}
	return out
}

func (d Dimensions) times(n float64) Dimensions {
	var out Dimensions
	for i := range d {
		out[i] = d[i] * n
	}
	return out
}

// String renders the vector in SI base symbols, e.g. "kg m^2 s^-3".
func (d Dimensions) String() string {
	var parts []string
	for i, exp := range d {
		if math.Abs(exp) <= dimensionTolerance {
			continue
		}
		sym := Dimension(i).String()
		if math.Abs(exp-1) <= dimensionTolerance {
			parts = append(parts, sym)
			continue
		}
		parts = append(parts, sym+"^"+strconv.FormatFloat(exp, 'g', -1, 64))
	}
	if len(parts) == 0 {
		return "1"
	}
	return strings.Join(parts, " ")
}

// Unit is a scale factor relative to SI plus a dimension vector. The zero
// value behaves as Dimensionless.
type Unit struct {
	scale  float64
	dims   Dimensions
	symbol string
}

// NewUnit builds a unit worth scale SI units of the given dimensions.
func NewUnit(symbol string, scale float64, dims Dimensions) Unit {
	return Unit{scale: scale, dims: dims, symbol: symbol}
}

func (u Unit) norm() Unit {
	if u.scale == 0 {
		return Dimensionless
	}
	return u
}

// Scale returns the SI value of one u.
func (u Unit) Scale() float64 { return u.norm().scale }

// Dimensions returns the dimension vector of u.
func (u Unit) Dimensions() Dimensions { return u.norm().dims }

// Symbol returns the label u was created or parsed with.
func (u Unit) Symbol() string { return u.norm().symbol }

func (u Unit) String() string {
	u = u.norm()
	if u.symbol != "" {
		return u.symbol
	}
	if u.scale == 1 {
		return u.dims.String()
	}
	return strconv.FormatFloat(u.scale, 'g', -1, 64) + " " + u.dims.String()
}

// Named relabels u without changing its value.
func (u Unit) Named(symbol string) Unit {
	u = u.norm()
	u.symbol = symbol
	return u
}

// Compatible reports whether values in u can be converted to o.
func (u Unit) Compatible(o Unit) bool {
	return u.Dimensions().Equal(o.Dimensions())
}

// Equal reports whether u and o describe the same physical unit.
func (u Unit) Equal(o Unit) bool {
	if !u.Compatible(o) {
		return false
	}
	a, b := u.Scale(), o.Scale()
	return math.Abs(a-b) <= 1e-12*math.Max(math.Abs(a), math.Abs(b))
}

// Mul composes u·o.
func (u Unit) Mul(o Unit) Unit {
	u, o = u.norm(), o.norm()
	return Unit{
		scale:  u.scale * o.scale,
		dims:   u.dims.plus(o.dims),
		symbol: joinSymbol(u.String(), "·", o.String()),
	}
}

// Div composes u/o.
func (u Unit) Div(o Unit) Unit {
	u, o = u.norm(), o.norm()
	return Unit{
		scale:  u.scale / o.scale,
		dims:   u.dims.plus(o.dims.times(-1)),
		symbol: joinSymbol(u.String(), "/", o.String()),
	}
}

// Pow raises u to n.
func (u Unit) Pow(n float64) Unit {
	u = u.norm()
	base := u.String()
	if strings.ContainsAny(base, "·/ ^") {
		base = "(" + base + ")"
	}
	return Unit{
		scale:  math.Pow(u.scale, n),
		dims:   u.dims.times(n),
		symbol: base + "^" + strconv.FormatFloat(n, 'g', -1, 64),
	}
}

func joinSymbol(a, op, b string) string {
	if op == "/" && strings.ContainsAny(b, "·/") {
		b = "(" + b + ")"
	}
	return a + op + b
}

// Factor returns the multiplier converting values expressed in from into to.
func Factor(from, to Unit) (float64, error) {
	if !from.Compatible(to) {
		return 0, fmt.Errorf("%w: %s [%s] vs %s [%s]", ErrIncompatibleUnit,
			from, from.Dimensions(), to, to.Dimensions())
	}
	return from.Scale() / to.Scale(), nil
}
