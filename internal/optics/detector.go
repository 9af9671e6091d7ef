package optics

import (
	"fmt"
	"math"

	"github.com/rjboer/GoIR/internal/units"
)

// DetectorSpec describes a single focal-plane pixel.
type DetectorSpec struct {
	name        string
	pitch       units.Quantity
	integration units.Quantity
	detectivity units.Quantity
}

// NewDetector validates the pixel pitch (length), integration time (time) and
// specific detectivity (Jones) and returns a DetectorSpec.
func NewDetector(name string, pitch, integration, detectivity units.Quantity) (DetectorSpec, error) {
	d := DetectorSpec{name: name, pitch: pitch, integration: integration, detectivity: detectivity}
	if err := d.Validate(); err != nil {
		return DetectorSpec{}, err
	}
	return d, nil
}

// Validate checks that every parameter has the right dimension and is positive.
func (d DetectorSpec) Validate() error {
	checks := []struct {
		field string
		q     units.Quantity
		want  units.Unit
	}{
		{"pixel pitch", d.pitch, units.Meter},
		{"integration time", d.integration, units.Second},
		{"detectivity", d.detectivity, units.Jones},
	}
	for _, c := range checks {
		v, err := c.q.In(c.want)
		if err != nil {
			return fmt.Errorf("%w: detector %s: %v", ErrInvalidConfiguration, c.field, err)
		}
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: detector %s must be positive, got %s", ErrInvalidConfiguration, c.field, c.q)
		}
	}
	return nil
}

func (d DetectorSpec) Name() string                    { return d.name }
func (d DetectorSpec) PixelPitch() units.Quantity      { return d.pitch }
func (d DetectorSpec) IntegrationTime() units.Quantity { return d.integration }
func (d DetectorSpec) Detectivity() units.Quantity     { return d.detectivity }

// Area returns pitch² in m².
func (d DetectorSpec) Area() (units.Quantity, error) {
	if err := d.Validate(); err != nil {
		return units.Quantity{}, err
	}
	return d.pitch.Pow(2).Convert(units.SquareMeter)
}

// Bandwidth returns the noise-equivalent bandwidth 1/t_int in Hz.
func (d DetectorSpec) Bandwidth() (units.Quantity, error) {
	if err := d.Validate(); err != nil {
		return units.Quantity{}, err
	}
	return units.New(1, units.Dimensionless).Div(d.integration).Convert(units.Hertz)
}

// NEP returns sqrt(area·bandwidth)/D* in W.
func (d DetectorSpec) NEP() (units.Quantity, error) {
	area, err := d.Area()
	if err != nil {
		return units.Quantity{}, err
	}
	bw, err := d.Bandwidth()
	if err != nil {
		return units.Quantity{}, err
	}
	nep := area.Mul(bw).Sqrt().Div(d.detectivity)
	w, err := nep.Convert(units.Watt)
	if err != nil {
		return units.Quantity{}, fmt.Errorf("optics: NEP: %w", err)
	}
	return w, nil
}
