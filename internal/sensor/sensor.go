// Package sensor turns at-aperture spectral exitance into detector power and
// signal-to-noise estimates.
package sensor

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/rjboer/GoIR/internal/blackbody"
	"github.com/rjboer/GoIR/internal/logging"
	"github.com/rjboer/GoIR/internal/optics"
	"github.com/rjboer/GoIR/internal/spectral"
	"github.com/rjboer/GoIR/internal/units"
)

// Method names how a detector power was obtained.
type Method string

const (
	// FullIntegration integrates the whole sampled curve across the band.
	FullIntegration Method = "full-integration"
	// TwoPoint is the fast edge-only trapezoid ((L1+L2)/2)·ε·Δλ.
	TwoPoint Method = "two-point"
)

// Response is the evaluation of one band.
type Response struct {
	Band   spectral.Band
	Method Method
	Power  units.Quantity
	NEP    units.Quantity
	SNR    float64
}

// Calculator is stateless apart from its logger.
type Calculator struct {
	log     logging.Logger
	workers int
}

// Option customises a Calculator.
type Option func(*Calculator)

// WithLogger sets the logger used for per-band diagnostics.
func WithLogger(l logging.Logger) Option {
	return func(c *Calculator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithWorkers bounds EvaluateBands parallelism. Values below 1 select runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(c *Calculator) { c.workers = n }
}

// NewCalculator returns a Calculator.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{log: logging.Noop()}
	for _, opt := range opts {
		opt(c)
	}
	if c.workers < 1 {
		c.workers = runtime.NumCPU()
	}
	if c.workers < 1 {
		c.workers = 1
	}
	return c
}

// DetectorPower integrates curve over band and maps it onto the detector.
// This is the reference method.
func (c *Calculator) DetectorPower(o optics.OpticalSystem, curve spectral.Curve, band *spectral.Band) (units.Quantity, error) {
	return o.DetectorPower(curve, band)
}

// TwoPointDetectorPower approximates the band integral from the exitance at
// the two band edges only: ((L1+L2)/2)·ε·Δλ·area/G. Use it when no sampled
// curve is available; it is never substituted for DetectorPower.
func (c *Calculator) TwoPointDetectorPower(o optics.OpticalSystem, l1, l2 units.Quantity, band spectral.Band, emissivity float64) (units.Quantity, error) {
	if err := band.Validate(); err != nil {
		return units.Quantity{}, err
	}
	if !(emissivity >= 0 && emissivity <= 1) {
		return units.Quantity{}, fmt.Errorf("%w: emissivity must be in [0, 1], got %g", optics.ErrInvalidConfiguration, emissivity)
	}
	d, err := o.Detector()
	if err != nil {
		return units.Quantity{}, err
	}
	g, err := o.GFactor()
	if err != nil {
		return units.Quantity{}, err
	}
	sum, err := l1.Add(l2)
	if err != nil {
		return units.Quantity{}, fmt.Errorf("two-point edges: %w", err)
	}
	width := units.New(band.Width(), spectral.WavelengthUnit)
	flux := sum.Scale(emissivity / 2).Mul(width)
	if _, err := flux.In(units.Irradiance); err != nil {
		return units.Quantity{}, fmt.Errorf("two-point edges need W/m^2/um: %w", err)
	}
	area, err := d.Area()
	if err != nil {
		return units.Quantity{}, err
	}
	return flux.Mul(area).Scale(1 / g).Convert(units.Watt)
}

// GreybodyTwoPoint evaluates the source exitance at the band edges and
// applies TwoPointDetectorPower.
func (c *Calculator) GreybodyTwoPoint(o optics.OpticalSystem, src blackbody.Source, band spectral.Band, emissivity float64) (units.Quantity, error) {
	if err := band.Validate(); err != nil {
		return units.Quantity{}, err
	}
	edges, err := src.Exitance([]float64{band.Min, band.Max})
	if err != nil {
		return units.Quantity{}, err
	}
	_, l1 := edges.At(0)
	_, l2 := edges.At(1)
	return c.TwoPointDetectorPower(o, l1, l2, band, emissivity)
}

// Evaluate computes the full-integration power, the detector NEP and their
// ratio for one band.
func (c *Calculator) Evaluate(o optics.OpticalSystem, curve spectral.Curve, band spectral.Band) (Response, error) {
	power, err := c.DetectorPower(o, curve, &band)
	if err != nil {
		return Response{}, fmt.Errorf("band %s: %w", band, err)
	}
	nep, err := o.NEP()
	if err != nil {
		return Response{}, fmt.Errorf("band %s: %w", band, err)
	}
	snr := power.Value() / nep.Value()
	if math.IsInf(snr, 0) || math.IsNaN(snr) {
		return Response{}, fmt.Errorf("band %s: %w: NEP %s gives SNR %g", band, optics.ErrInvalidConfiguration, nep, snr)
	}
	c.log.Debug("band evaluated",
		logging.String("band", band.Name),
		logging.Float("power_w", power.Value()),
		logging.Float("nep_w", nep.Value()),
		logging.Float("snr", snr))
	return Response{Band: band, Method: FullIntegration, Power: power, NEP: nep, SNR: snr}, nil
}

// EvaluateTwoPoint is Evaluate for the greybody edge approximation. The
// response is labelled TwoPoint.
func (c *Calculator) EvaluateTwoPoint(o optics.OpticalSystem, src blackbody.Source, band spectral.Band, emissivity float64) (Response, error) {
	power, err := c.GreybodyTwoPoint(o, src, band, emissivity)
	if err != nil {
		return Response{}, fmt.Errorf("band %s: %w", band, err)
	}
	nep, err := o.NEP()
	if err != nil {
		return Response{}, fmt.Errorf("band %s: %w", band, err)
	}
	return Response{Band: band, Method: TwoPoint, Power: power, NEP: nep, SNR: power.Value() / nep.Value()}, nil
}

type bandJob struct {
	index int
	band  spectral.Band
}

type bandResult struct {
	index int
	resp  Response
	err   error
}

// EvaluateBands evaluates every band on a worker pool. Results keep the order
// of bands. The first error cancels the remaining work.
func (c *Calculator) EvaluateBands(ctx context.Context, o optics.OpticalSystem, curve spectral.Curve, bands []spectral.Band) ([]Response, error) {
	if len(bands) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	numWorkers := c.workers
	if numWorkers > len(bands) {
		numWorkers = len(bands)
	}

	jobs := make(chan bandJob)
	results := make(chan bandResult, len(bands))

	for w := 0; w < numWorkers; w++ {
		go func() {
			for job := range jobs {
				resp, err := c.Evaluate(o, curve, job.band)
				results <- bandResult{index: job.index, resp: resp, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, b := range bands {
			select {
			case jobs <- bandJob{index: i, band: b}:
			case <-ctx.Done():
				return
			}
		}
	}()

	out := make([]Response, len(bands))
	var firstErr error
	for received := 0; received < len(bands); received++ {
		select {
		case r := <-results:
			if r.err != nil && firstErr == nil {
				firstErr = r.err
				cancel()
			}
			out[r.index] = r.resp
		case <-ctx.Done():
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			c.log.Warn("band evaluation stopped", logging.Err(firstErr), logging.Int("completed", received))
			return nil, firstErr
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
