// Package optics models the collecting optics and detector of an infrared
// instrument: G-factor, noise equivalent power and detector-incident power.
package optics

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rjboer/GoIR/internal/spectral"
	"github.com/rjboer/GoIR/internal/units"
)

var (
	// ErrInvalidConfiguration reports optical or detector parameters outside their valid range.
	ErrInvalidConfiguration = errors.New("optics: invalid configuration")
	// ErrMissingDetector is returned by detector-dependent calculations when no detector is attached.
	ErrMissingDetector = errors.New("optics: no detector attached")
	// ErrUnknownBand is returned by Band for names the instrument does not carry.
	ErrUnknownBand = errors.New("optics: unknown band")
)

// DefaultObscurationFactor is the unobscured aperture fraction assumed for a
// Cassegrain telescope when none is configured.
const DefaultObscurationFactor = 0.7

// Kind is the optical layout.
type Kind string

const (
	Lens       Kind = "lens"
	Cassegrain Kind = "cassegrain"
)

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Lens, Cassegrain:
		return k, nil
	case "":
		return Lens, nil
	default:
		return "", fmt.Errorf("%w: unsupported optics kind %q", ErrInvalidConfiguration, s)
	}
}

// Config holds the mandatory optical parameters.
type Config struct {
	FNumber      float64 `json:"f_number" yaml:"f_number"`
	Transmission float64 `json:"transmission" yaml:"transmission"`
	Kind         Kind    `json:"kind" yaml:"kind"`
}

// OpticalSystem is an immutable description of the instrument optics.
// Reconfiguring returns a new value.
type OpticalSystem struct {
	cfg         Config
	obscuration float64
	focalLength *units.Quantity
	detector    *DetectorSpec
	bands       []spectral.Band
}

// Option customises an OpticalSystem.
type Option func(*OpticalSystem)

// WithDetector attaches a detector.
func WithDetector(d DetectorSpec) Option {
	return func(o *OpticalSystem) { o.detector = &d }
}

// WithBands sets the named instrument bands.
func WithBands(bands ...spectral.Band) Option {
	return func(o *OpticalSystem) { o.bands = append([]spectral.Band(nil), bands...) }
}

// WithObscurationFactor overrides the Cassegrain obscuration factor.
func WithObscurationFactor(f float64) Option {
	return func(o *OpticalSystem) { o.obscuration = f }
}

// WithFocalLength records the focal length.
func WithFocalLength(q units.Quantity) Option {
	return func(o *OpticalSystem) { o.focalLength = &q }
}

// New validates cfg and the options and returns the optical system.
func New(cfg Config, opts ...Option) (OpticalSystem, error) {
	kind, err := ParseKind(string(cfg.Kind))
	if err != nil {
		return OpticalSystem{}, err
	}
	cfg.Kind = kind
	o := OpticalSystem{cfg: cfg, obscuration: DefaultObscurationFactor}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.Validate(); err != nil {
		return OpticalSystem{}, err
	}
	return o, nil
}

// With returns a copy of o with opts applied.
func (o OpticalSystem) With(opts ...Option) (OpticalSystem, error) {
	o.bands = append([]spectral.Band(nil), o.bands...)
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.Validate(); err != nil {
		return OpticalSystem{}, err
	}
	return o, nil
}

// Validate checks every parameter of the system and its detector.
func (o OpticalSystem) Validate() error {
	if !(o.cfg.FNumber > 0) || math.IsInf(o.cfg.FNumber, 0) {
		return fmt.Errorf("%w: f-number must be positive, got %g", ErrInvalidConfiguration, o.cfg.FNumber)
	}
	if !(o.cfg.Transmission > 0 && o.cfg.Transmission <= 1) {
		return fmt.Errorf("%w: transmission must be in (0, 1], got %g", ErrInvalidConfiguration, o.cfg.Transmission)
	}
	if o.cfg.Kind != Lens && o.cfg.Kind != Cassegrain {
		return fmt.Errorf("%w: unsupported optics kind %q", ErrInvalidConfiguration, o.cfg.Kind)
	}
	if !(o.obscuration > 0 && o.obscuration <= 1) {
		return fmt.Errorf("%w: obscuration factor must be in (0, 1], got %g", ErrInvalidConfiguration, o.obscuration)
	}
	if o.focalLength != nil {
		f, err := o.focalLength.In(units.Meter)
		if err != nil {
			return fmt.Errorf("%w: focal length: %v", ErrInvalidConfiguration, err)
		}
		if !(f > 0) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: focal length must be positive, got %s", ErrInvalidConfiguration, o.focalLength)
		}
	}
	if o.detector != nil {
		if err := o.detector.Validate(); err != nil {
			return err
		}
	}
	seen := make(map[string]bool, len(o.bands))
	for _, b := range o.bands {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
		}
		if seen[b.Name] {
			return fmt.Errorf("%w: duplicate band %q", ErrInvalidConfiguration, b.Name)
		}
		seen[b.Name] = true
	}
	return nil
}

func (o OpticalSystem) Config() Config             { return o.cfg }
func (o OpticalSystem) FNumber() float64           { return o.cfg.FNumber }
func (o OpticalSystem) Transmission() float64      { return o.cfg.Transmission }
func (o OpticalSystem) Kind() Kind                 { return o.cfg.Kind }
func (o OpticalSystem) ObscurationFactor() float64 { return o.obscuration }

// FocalLength returns the focal length when one was configured.
func (o OpticalSystem) FocalLength() (units.Quantity, bool) {
	if o.focalLength == nil {
		return units.Quantity{}, false
	}
	return *o.focalLength, true
}

// ApertureDiameter returns focal length / N.
func (o OpticalSystem) ApertureDiameter() (units.Quantity, error) {
	f, ok := o.FocalLength()
	if !ok {
		return units.Quantity{}, fmt.Errorf("%w: no focal length configured", ErrInvalidConfiguration)
	}
	return f.Scale(1 / o.cfg.FNumber), nil
}

// Detector returns the attached detector.
func (o OpticalSystem) Detector() (DetectorSpec, error) {
	if o.detector == nil {
		return DetectorSpec{}, ErrMissingDetector
	}
	return *o.detector, nil
}

// Bands returns a copy of the instrument bands.
func (o OpticalSystem) Bands() []spectral.Band {
	return append([]spectral.Band(nil), o.bands...)
}

// Band looks up an instrument band by name.
func (o OpticalSystem) Band(name string) (spectral.Band, error) {
	for _, b := range o.bands {
		if b.Name == name {
			return b, nil
		}
	}
	return spectral.Band{}, fmt.Errorf("%w: %q", ErrUnknownBand, name)
}

// GFactor returns the radiometric G-factor, 4N²/τ for a lens and
// (1+4N²)/(ε·τ) for a Cassegrain. It is derived from the current parameters
// on every call.
func (o OpticalSystem) GFactor() (float64, error) {
	if err := o.Validate(); err != nil {
		return 0, err
	}
	n := o.cfg.FNumber
	tau := o.cfg.Transmission
	switch o.cfg.Kind {
	case Lens:
		return 4 * n * n / tau, nil
	case Cassegrain:
		return (1 + 4*n*n) / (o.obscuration * tau), nil
	default:
		return 0, fmt.Errorf("%w: unsupported optics kind %q", ErrInvalidConfiguration, o.cfg.Kind)
	}
}

// NEP returns the noise equivalent power of the attached detector in W.
func (o OpticalSystem) NEP() (units.Quantity, error) {
	d, err := o.Detector()
	if err != nil {
		return units.Quantity{}, err
	}
	return d.NEP()
}

// DetectorPower integrates the at-aperture spectral exitance over band (the
// whole curve when band is nil) and returns ∫L dλ · area / G in W.
func (o OpticalSystem) DetectorPower(curve spectral.Curve, band *spectral.Band) (units.Quantity, error) {
	d, err := o.Detector()
	if err != nil {
		return units.Quantity{}, err
	}
	g, err := o.GFactor()
	if err != nil {
		return units.Quantity{}, err
	}
	flux, err := curve.Integrate(band)
	if err != nil {
		return units.Quantity{}, err
	}
	if _, err := flux.In(units.Irradiance); err != nil {
		return units.Quantity{}, fmt.Errorf("optics: detector power needs a W/m^2/um curve: %w", err)
	}
	area, err := d.Area()
	if err != nil {
		return units.Quantity{}, err
	}
	return flux.Mul(area).Scale(1 / g).Convert(units.Watt)
}
