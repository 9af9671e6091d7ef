// Package app runs configured radiometry scenarios end to end: resolve the
// reference data, compose the scene, evaluate every band and report.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rjboer/GoIR/internal/blackbody"
	"github.com/rjboer/GoIR/internal/config"
	"github.com/rjboer/GoIR/internal/logging"
	"github.com/rjboer/GoIR/internal/optics"
	"github.com/rjboer/GoIR/internal/reference"
	"github.com/rjboer/GoIR/internal/scene"
	"github.com/rjboer/GoIR/internal/sensor"
	"github.com/rjboer/GoIR/internal/spectral"
	"github.com/rjboer/GoIR/internal/telemetry"
	"github.com/rjboer/GoIR/internal/units"
)

// ErrSourceUnavailable is returned when a scenario asks for reference data
// the runner was built without.
var ErrSourceUnavailable = errors.New("app: reference source unavailable")

// Sources bundles the reference data loaders. Nil members are only a problem
// for scenarios that need them.
type Sources struct {
	Signatures   reference.SignatureSource
	Atmosphere   reference.AtmosphereSource
	Illumination reference.IlluminationSource
}

// Plan is a scenario resolved into model values, ready to evaluate.
type Plan struct {
	Name        string
	Optics      optics.OpticalSystem
	Scene       scene.Description
	Wavelengths []float64
	Emissivity  float64
	Signature   string
}

// Result is the outcome of one run.
type Result struct {
	RunID      string
	Scenario   string
	Signature  string
	GFactor    float64
	NEP        units.Quantity
	Responses  []sensor.Response
	TwoPoint   []sensor.Response
	Components scene.Components
	Elapsed    time.Duration
}

// Runner evaluates scenarios. It is safe for concurrent use when its sources
// are.
type Runner struct {
	units    *units.System
	sources  Sources
	composer scene.Composer
	calc     *sensor.Calculator
	reporter telemetry.Reporter
	logger   logging.Logger
}

// NewRunner builds a runner. A nil reporter disables reporting and a nil
// logger falls back to logging.Default().
func NewRunner(sys *units.System, sources Sources, reporter telemetry.Reporter, logger logging.Logger, calcOpts ...sensor.Option) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	if sys == nil {
		sys = units.NewSystem()
	}
	if sources.Atmosphere == nil {
		sources.Atmosphere = reference.CSVAtmosphere{Log: logger}
	}
	opts := append([]sensor.Option{sensor.WithLogger(logger)}, calcOpts...)
	return &Runner{
		units:    sys,
		sources:  sources,
		composer: scene.NewComposer(),
		calc:     sensor.NewCalculator(opts...),
		reporter: reporter,
		logger:   logger.With(logging.String("subsystem", "runner")),
	}
}

// Units returns the unit system the runner parses scenarios with.
func (r *Runner) Units() *units.System { return r.units }

// Calculator exposes the sensor calculator for single computations.
func (r *Runner) Calculator() *sensor.Calculator { return r.calc }

// Prepare validates sc and loads the reference data it names.
func (r *Runner) Prepare(ctx context.Context, sc config.Scenario) (Plan, error) {
	if err := sc.Validate(r.units); err != nil {
		return Plan{}, err
	}
	o, err := sc.OpticalSystem(r.units)
	if err != nil {
		return Plan{}, err
	}
	bg, err := sc.Background(r.units)
	if err != nil {
		return Plan{}, err
	}
	grid, err := sc.Wavelengths()
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{
		Name:        sc.Name,
		Optics:      o,
		Wavelengths: grid,
		Emissivity:  sc.Scene.Emissivity,
		Scene:       scene.Description{Background: bg, PixelFill: sc.Scene.PixelFill},
	}

	if id := sc.Scene.SignatureID; id > 0 {
		if r.sources.Signatures == nil {
			return Plan{}, fmt.Errorf("%w: signature %d requested without a signature database", ErrSourceUnavailable, id)
		}
		sig, err := r.sources.Signatures.Lookup(ctx, id)
		if err != nil {
			return Plan{}, err
		}
		refl := sig.Curve
		plan.Scene.Reflectance = &refl
		plan.Signature = sig.Name
	}

	atmID := sc.Scene.Atmosphere
	if strings.TrimSpace(atmID) == "" {
		atmID = reference.Vacuum
	}
	atm, err := r.sources.Atmosphere.Load(atmID)
	if err != nil {
		return Plan{}, err
	}
	plan.Scene.Atmosphere = atm

	if id := sc.Scene.Illumination; id != "" {
		if r.sources.Illumination == nil {
			return Plan{}, fmt.Errorf("%w: illumination %q requested without an illumination library", ErrSourceUnavailable, id)
		}
		sun, err := r.sources.Illumination.Load(id)
		if err != nil {
			return Plan{}, err
		}
		plan.Scene.Illumination = &sun
	}
	return plan, nil
}

// Run prepares and evaluates sc.
func (r *Runner) Run(ctx context.Context, sc config.Scenario) (Result, error) {
	plan, err := r.Prepare(ctx, sc)
	if err != nil {
		return Result{}, err
	}
	return r.Evaluate(ctx, plan)
}

// Evaluate composes the scene of plan and evaluates every instrument band by
// full integration and by the two-point approximation.
func (r *Runner) Evaluate(ctx context.Context, plan Plan) (Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := r.logger.With(logging.String("run_id", runID), logging.String("scenario", plan.Name))

	comps, err := r.composer.ComposeComponents(plan.Scene, plan.Wavelengths)
	if err != nil {
		return Result{}, fmt.Errorf("compose scene: %w", err)
	}
	g, err := plan.Optics.GFactor()
	if err != nil {
		return Result{}, err
	}
	nep, err := plan.Optics.NEP()
	if err != nil {
		return Result{}, err
	}

	bands := plan.Optics.Bands()
	responses, err := r.calc.EvaluateBands(ctx, plan.Optics, comps.AtAperture, bands)
	if err != nil {
		return Result{}, fmt.Errorf("evaluate bands: %w", err)
	}
	twoPoint, err := r.twoPoint(plan.Optics, plan.Scene.Background, bands, plan.Emissivity)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		RunID:      runID,
		Scenario:   plan.Name,
		Signature:  plan.Signature,
		GFactor:    g,
		NEP:        nep,
		Responses:  responses,
		TwoPoint:   twoPoint,
		Components: comps,
		Elapsed:    time.Since(start),
	}
	r.report(res)
	log.Info("scenario evaluated",
		logging.Int("bands", len(bands)),
		logging.Float("g_factor", g),
		logging.Float("elapsed_ms", res.Elapsed.Seconds()*1000))
	return res, nil
}

func (r *Runner) twoPoint(o optics.OpticalSystem, bg blackbody.Source, bands []spectral.Band, emissivity float64) ([]sensor.Response, error) {
	out := make([]sensor.Response, 0, len(bands))
	for _, b := range bands {
		resp, err := r.calc.EvaluateTwoPoint(o, bg, b, emissivity)
		if err != nil {
			return nil, fmt.Errorf("two-point: %w", err)
		}
		out = append(out, resp)
	}
	return out, nil
}

func (r *Runner) report(res Result) {
	if r.reporter == nil {
		return
	}
	now := time.Now()
	for _, set := range [][]sensor.Response{res.Responses, res.TwoPoint} {
		for _, resp := range set {
			r.reporter.Report(telemetry.Sample{
				Timestamp: now,
				RunID:     res.RunID,
				Scenario:  res.Scenario,
				Band:      resp.Band.Name,
				Method:    string(resp.Method),
				PowerW:    resp.Power.Value(),
				NEPW:      resp.NEP.Value(),
				SNR:       resp.SNR,
			})
		}
	}
}
