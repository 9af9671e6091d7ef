package units

import (
	"fmt"
	"math"
	"strconv"
)

// Quantity is an immutable dimensioned scalar.
type Quantity struct {
	value float64
	unit  Unit
}

// New returns value expressed in u.
func New(value float64, u Unit) Quantity {
	return Quantity{value: value, unit: u.norm()}
}

// Value returns the magnitude in the quantity's own unit.
func (q Quantity) Value() float64 { return q.value }

// Unit returns the unit the value is expressed in.
func (q Quantity) Unit() Unit { return q.unit.norm() }

// SI returns the magnitude in coherent SI units.
func (q Quantity) SI() float64 { return q.value * q.unit.Scale() }

// Convert rescales q into u.
func (q Quantity) Convert(u Unit) (Quantity, error) {
	f, err := Factor(q.Unit(), u)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{value: q.value * f, unit: u.norm()}, nil
}

// In returns the magnitude of q expressed in u.
func (q Quantity) In(u Unit) (float64, error) {
	c, err := q.Convert(u)
	if err != nil {
		return 0, err
	}
	return c.value, nil
}

// Add returns q+o in q's unit.
func (q Quantity) Add(o Quantity) (Quantity, error) {
	v, err := o.In(q.Unit())
	if err != nil {
		return Quantity{}, fmt.Errorf("add: %w", err)
	}
	return Quantity{value: q.value + v, unit: q.Unit()}, nil
}

// Sub returns q-o in q's unit.
func (q Quantity) Sub(o Quantity) (Quantity, error) {
	v, err := o.In(q.Unit())
	if err != nil {
		return Quantity{}, fmt.Errorf("sub: %w", err)
	}
	return Quantity{value: q.value - v, unit: q.Unit()}, nil
}

// Mul returns q·o.
func (q Quantity) Mul(o Quantity) Quantity {
	return Quantity{value: q.value * o.value, unit: q.Unit().Mul(o.Unit())}
}

// Div returns q/o.
func (q Quantity) Div(o Quantity) Quantity {
	return Quantity{value: q.value / o.value, unit: q.Unit().Div(o.Unit())}
}

// Pow raises both value and unit to n.
func (q Quantity) Pow(n float64) Quantity {
	return Quantity{value: math.Pow(q.value, n), unit: q.Unit().Pow(n)}
}

// Sqrt is Pow(0.5).
func (q Quantity) Sqrt() Quantity { return q.Pow(0.5) }

// Scale multiplies the magnitude by a dimensionless factor.
func (q Quantity) Scale(f float64) Quantity {
	return Quantity{value: q.value * f, unit: q.Unit()}
}

// ApproxEqual compares q and o after conversion with a relative tolerance.
func (q Quantity) ApproxEqual(o Quantity, relTol float64) bool {
	v, err := o.In(q.Unit())
	if err != nil {
		return false
	}
	if q.value == v {
		return true
	}
	return math.Abs(q.value-v) <= relTol*math.Max(math.Abs(q.value), math.Abs(v))
}

// IsFinite reports whether the magnitude is neither NaN nor infinite.
func (q Quantity) IsFinite() bool {
	return !math.IsNaN(q.value) && !math.IsInf(q.value, 0)
}

func (q Quantity) String() string {
	return strconv.FormatFloat(q.value, 'g', 6, 64) + " " + q.Unit().String()
}
