package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/GoIR/internal/app"
	"github.com/rjboer/GoIR/internal/logging"
	"github.com/rjboer/GoIR/internal/reference"
	"github.com/rjboer/GoIR/internal/telemetry"
	"github.com/rjboer/GoIR/internal/units"
)

type noSignatures struct{}

func (noSignatures) Lookup(_ context.Context, id int) (reference.Signature, error) {
	return reference.Signature{}, fmt.Errorf("%w: %d", reference.ErrSignatureNotFound, id)
}

type fixture struct {
	srv       *Server
	hub       *telemetry.Hub
	collector *Collector
	// root holds the atmosphere directory and files outside it.
	root string
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "atmosphere")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "narrow.csv"), []byte("x,y\n10,0.9\n12,0.9\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "secrets.csv"), []byte("user,password\nadmin,hunter2\n"), 0o600))

	collector, err := NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	hub := telemetry.NewHub(100)
	runner := app.NewRunner(units.NewSystem(), app.Sources{
		Signatures:   noSignatures{},
		Atmosphere:   reference.CSVAtmosphere{Dir: dir, Confined: true},
		Illumination: reference.NewSolarLibrary(),
	}, hub, logging.Noop())

	opts = append([]Option{WithHub(hub), WithCollector(collector), WithLogger(logging.Noop())}, opts...)
	return fixture{srv: New(Config{Addr: "127.0.0.1:0"}, runner, opts...), hub: hub, collector: collector, root: root}
}

func (f fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func TestHealthAndRequestID(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get(RequestIDHeader))
}

func TestGFactorEndpoint(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		body   string
		status int
		want   float64
	}{
		{name: "lens", body: `{"f_number":1,"transmission":0.8}`, status: http.StatusOK, want: 5},
		{name: "cassegrain", body: `{"f_number":1,"transmission":0.8,"kind":"cassegrain"}`, status: http.StatusOK, want: 5 / (0.7 * 0.8)},
		{name: "cassegrain_obscuration", body: `{"f_number":1,"transmission":0.8,"kind":"cassegrain","obscuration_factor":0.5}`, status: http.StatusOK, want: 5 / (0.5 * 0.8)},
		{name: "missing_f_number", body: `{"transmission":0.8}`, status: http.StatusBadRequest},
		{name: "bad_transmission", body: `{"f_number":1,"transmission":1.5}`, status: http.StatusBadRequest},
		{name: "bad_kind", body: `{"f_number":1,"transmission":0.8,"kind":"pinhole"}`, status: http.StatusBadRequest},
		{name: "not_json", body: `f=1`, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, http.MethodPost, "/api/v1/gfactor", tt.body)
			require.Equal(t, tt.status, rr.Code, rr.Body.String())
			if tt.status != http.StatusOK {
				var e map[string]any
				decode(t, rr, &e)
				assert.NotEmpty(t, e["details"])
				assert.NotEmpty(t, e["request_id"])
				return
			}
			var resp gfactorResponse
			decode(t, rr, &resp)
			assert.InDelta(t, tt.want, resp.GFactor, 1e-12)
		})
	}
}

func TestNEPEndpoint(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPost, "/api/v1/nep", `{"pixel_pitch":"17 um","integration_time":"12 ms","detectivity":"8e8 Jones"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp nepResponse
	decode(t, rr, &resp)
	assert.InEpsilon(t, 1.93985e-11, resp.NEPW, 1e-4)
	assert.InEpsilon(t, 2.89e-10, resp.AreaM2, 1e-9)
	assert.InEpsilon(t, 1/0.012, resp.BandwidthHz, 1e-9)

	rr = f.do(t, http.MethodPost, "/api/v1/nep", `{"pixel_pitch":"17 ms","integration_time":"12 ms","detectivity":"8e8 Jones"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = f.do(t, http.MethodPost, "/api/v1/nep", `{"pixel_pitch":"17 um","integration_time":"12 ms","detectivity":"8e8 parsecs"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBlackbodyEndpoint(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPost, "/api/v1/blackbody", `{"temperature":"300 K","min_um":9.5,"max_um":14,"include_curve":true}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp blackbodyResponse
	decode(t, rr, &resp)
	assert.Equal(t, 300.0, resp.TemperatureK)
	assert.InDelta(t, 9.659, resp.PeakUm, 1e-3)
	assert.InEpsilon(t, 459.3, resp.TotalExitanceWM2, 1e-3)
	assert.InEpsilon(t, 40.47, resp.BandExitanceWM2, 1e-3)
	assert.Len(t, resp.WavelengthsUm, 901)
	assert.Len(t, resp.ExitanceWM2PerUm, 901)

	rr = f.do(t, http.MethodPost, "/api/v1/blackbody", `{"temperature":"300 K","min_um":9.5,"max_um":14}`)
	require.Equal(t, http.StatusOK, rr.Code)
	hits, _ := f.srv.exitance.Stats()
	assert.Equal(t, 1, hits)

	rr = f.do(t, http.MethodPost, "/api/v1/blackbody", `{"temperature":"-3 K","min_um":9.5,"max_um":14}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = f.do(t, http.MethodPost, "/api/v1/blackbody", `{"temperature":"300 K","min_um":14,"max_um":9.5}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPost, "/api/v1/blackbody", `{"temperature":"NaN K","min_um":9.5,"max_um":14}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOversizedGridsRejected(t *testing.T) {
	f := newFixture(t)
	for _, step := range []string{"0.000005", "5e-9"} {
		rr := f.do(t, http.MethodPost, "/api/v1/blackbody", `{"temperature":"300 K","min_um":1,"max_um":51,"step_um":`+step+`}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code, step)
	}
	assert.Zero(t, f.srv.exitance.Len())

	rr := f.do(t, http.MethodPost, "/api/v1/scenario", `{"grid":{"min_um":1,"max_um":51,"step_um":0.000005}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
}

func TestScenarioEndpoint(t *testing.T) {
	f := newFixture(t)
	rr := f.do(t, http.MethodPost, "/api/v1/scenario", `{}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var sum app.Summary
	decode(t, rr, &sum)
	assert.Equal(t, "lwir-demo", sum.Scenario)
	assert.InDelta(t, 5.0, sum.GFactor, 1e-12)
	require.Len(t, sum.Bands, 1)
	assert.InEpsilon(t, 120.57, sum.Bands[0].SNR, 1e-3)
	assert.InEpsilon(t, sum.Bands[0].PowerW, sum.Bands[0].TwoPointPowerW, 0.05)

	rr = f.do(t, http.MethodGet, "/api/v1/history", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var history []telemetry.Sample
	decode(t, rr, &history)
	require.Len(t, history, 2)
	assert.Equal(t, sum.RunID, history[0].RunID)
}

func TestScenarioErrorMapping(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "unknown_signature", body: `{"scene":{"temperature":"300 K","signature_id":579,"atmosphere":"vacuum","emissivity":1}}`, status: http.StatusNotFound},
		{name: "unknown_atmosphere", body: `{"scene":{"temperature":"300 K","atmosphere":"fog","emissivity":1}}`, status: http.StatusNotFound},
		{name: "atmosphere_too_narrow", body: `{"scene":{"temperature":"300 K","atmosphere":"narrow","emissivity":1}}`, status: http.StatusUnprocessableEntity},
		{name: "bad_temperature", body: `{"scene":{"temperature":"0 K","atmosphere":"vacuum","emissivity":1}}`, status: http.StatusBadRequest},
		{name: "no_bands", body: `{"bands":[]}`, status: http.StatusBadRequest},
		{name: "wrong_type", body: `{"bands":"LWIR"}`, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, http.MethodPost, "/api/v1/scenario", tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
		})
	}
}

func TestScenarioAtmosphereStaysInDirectory(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{
		filepath.Join(f.root, "secrets.csv"),
		"../secrets",
		"../../../../../../etc/hostname",
	} {
		body, err := json.Marshal(map[string]any{"scene": map[string]any{"temperature": "300 K", "atmosphere": id, "emissivity": 1}})
		require.NoError(t, err)
		rr := f.do(t, http.MethodPost, "/api/v1/scenario", string(body))
		assert.Equal(t, http.StatusBadRequest, rr.Code, id)
		assert.NotContains(t, rr.Body.String(), "hunter2", id)
		assert.Contains(t, rr.Body.String(), "invalid identifier", id)
	}
}

func TestMetricsRecorded(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/api/v1/gfactor", `{"f_number":1,"transmission":0.8}`)
	f.do(t, http.MethodPost, "/api/v1/gfactor", `{"f_number":1,"transmission":2}`)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.collector.Requests.WithLabelValues("/api/v1/gfactor", "POST", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.collector.Requests.WithLabelValues("/api/v1/gfactor", "POST", "400")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.collector.Computations.WithLabelValues("gfactor", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.collector.Computations.WithLabelValues("gfactor", "error")))

	rr := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "radiometry_request_duration_seconds")
	assert.Contains(t, rr.Body.String(), "radiometry_computations_total")
}

func TestCollectorReregistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewCollector(reg)
	require.NoError(t, err)
	b, err := NewCollector(reg)
	require.NoError(t, err)
	assert.Same(t, a.Requests, b.Requests)
}

func TestTracingExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	tp, shutdown, err := InitTracing(context.Background(), TracingConfig{Enabled: true, ServiceName: "test", Writer: &buf}, logging.Noop())
	require.NoError(t, err)

	f := newFixture(t, WithTracerProvider(tp))
	rr := f.do(t, http.MethodPost, "/api/v1/gfactor", `{"f_number":2,"transmission":0.5}`)
	require.Equal(t, http.StatusOK, rr.Code)

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "radiometry.gfactor")
}

func TestTracingDisabledAndUnsupported(t *testing.T) {
	tp, shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, tp)
	assert.NoError(t, shutdown(context.Background()))

	_, _, err = InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, nil)
	assert.Error(t, err)
}

func TestStartStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Start(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
