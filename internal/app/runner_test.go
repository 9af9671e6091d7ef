package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/GoIR/internal/config"
	"github.com/rjboer/GoIR/internal/logging"
	"github.com/rjboer/GoIR/internal/reference"
	"github.com/rjboer/GoIR/internal/sensor"
	"github.com/rjboer/GoIR/internal/spectral"
	"github.com/rjboer/GoIR/internal/telemetry"
	"github.com/rjboer/GoIR/internal/units"
)

type fakeSignatures map[int]reference.Signature

func (f fakeSignatures) Lookup(_ context.Context, id int) (reference.Signature, error) {
	sig, ok := f[id]
	if !ok {
		return reference.Signature{}, fmt.Errorf("%w: %d", reference.ErrSignatureNotFound, id)
	}
	return sig, nil
}

func greySignature(t *testing.T, reflectance float64) reference.Signature {
	t.Helper()
	c, err := spectral.New([]float64{8, 15}, []float64{reflectance, reflectance}, units.Dimensionless)
	require.NoError(t, err)
	return reference.Signature{SpectrumID: 7, Name: "grey paint", Curve: c}
}

func newTestRunner(sources Sources, reporter telemetry.Reporter) *Runner {
	return NewRunner(nil, sources, reporter, logging.Noop(), sensor.WithWorkers(2))
}

func TestRunDemoScenario(t *testing.T) {
	hub := telemetry.NewHub(10)
	r := newTestRunner(Sources{}, hub)

	res, err := r.Run(context.Background(), config.Default())
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "lwir-demo", res.Scenario)
	assert.InDelta(t, 5.0, res.GFactor, 1e-12)
	require.Len(t, res.Responses, 1)
	require.Len(t, res.TwoPoint, 1)

	full := res.Responses[0]
	assert.Equal(t, sensor.FullIntegration, full.Method)
	assert.InEpsilon(t, 2.3389e-9, full.Power.Value(), 1e-3)
	assert.InEpsilon(t, 120.57, full.SNR, 1e-3)
	assert.Equal(t, sensor.TwoPoint, res.TwoPoint[0].Method)
	assert.InEpsilon(t, full.Power.Value(), res.TwoPoint[0].Power.Value(), 0.05)

	history := hub.History()
	require.Len(t, history, 2)
	assert.Equal(t, res.RunID, history[0].RunID)
	assert.Equal(t, "full-integration", history[0].Method)
	assert.Equal(t, "two-point", history[1].Method)
}

func TestRunWithAtmosphere(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "half.csv"), []byte("x,y\n8,0.5\n15,0.5\n"), 0o644))

	r := newTestRunner(Sources{Atmosphere: reference.CSVAtmosphere{Dir: dir}}, nil)
	vac, err := r.Run(context.Background(), config.Default())
	require.NoError(t, err)

	sc := config.Default()
	sc.Scene.Atmosphere = "half"
	hazy, err := r.Run(context.Background(), sc)
	require.NoError(t, err)
	assert.InEpsilon(t, vac.Responses[0].Power.Value()/2, hazy.Responses[0].Power.Value(), 1e-9)

	sc.Scene.Atmosphere = "fog"
	_, err = r.Run(context.Background(), sc)
	assert.ErrorIs(t, err, reference.ErrNotFound)
}

func TestRunWithSignatureAndSun(t *testing.T) {
	sigs := fakeSignatures{7: greySignature(t, 0.1)}
	r := newTestRunner(Sources{Signatures: sigs, Illumination: reference.NewSolarLibrary()}, nil)

	pure, err := r.Run(context.Background(), config.Default())
	require.NoError(t, err)

	sc := config.Default()
	sc.Scene.SignatureID = 7
	sc.Scene.Illumination = reference.BlackbodySun
	res, err := r.Run(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, "grey paint", res.Signature)
	assert.False(t, res.Components.Reflected.IsZero())

	p, bb := res.Responses[0].Power.Value(), pure.Responses[0].Power.Value()
	assert.Less(t, p, bb)
	assert.Greater(t, p, 0.9*bb)
}

func TestPrepareMissingSources(t *testing.T) {
	r := newTestRunner(Sources{}, nil)

	sc := config.Default()
	sc.Scene.SignatureID = 3
	_, err := r.Prepare(context.Background(), sc)
	assert.ErrorIs(t, err, ErrSourceUnavailable)

	sc = config.Default()
	sc.Scene.Illumination = reference.BlackbodySun
	_, err = r.Prepare(context.Background(), sc)
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestPrepareSignatureNotFound(t *testing.T) {
	r := newTestRunner(Sources{Signatures: fakeSignatures{}}, nil)
	sc := config.Default()
	sc.Scene.SignatureID = 579
	_, err := r.Prepare(context.Background(), sc)
	assert.ErrorIs(t, err, reference.ErrSignatureNotFound)
}

func TestRunInvalidScenario(t *testing.T) {
	r := newTestRunner(Sources{}, nil)
	sc := config.Default()
	sc.Bands = nil
	_, err := r.Run(context.Background(), sc)
	assert.ErrorIs(t, err, config.ErrInvalidScenario)
}
