package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rjboer/GoIR/internal/app"
	"github.com/rjboer/GoIR/internal/blackbody"
	"github.com/rjboer/GoIR/internal/config"
	"github.com/rjboer/GoIR/internal/logging"
	"github.com/rjboer/GoIR/internal/optics"
	"github.com/rjboer/GoIR/internal/reference"
	"github.com/rjboer/GoIR/internal/scene"
	"github.com/rjboer/GoIR/internal/spectral"
	"github.com/rjboer/GoIR/internal/units"
)

const defaultBlackbodyStep = 0.005

type gfactorRequest struct {
	FNumber           float64 `json:"f_number" binding:"required"`
	Transmission      float64 `json:"transmission" binding:"required"`
	Kind              string  `json:"kind"`
	ObscurationFactor float64 `json:"obscuration_factor"`
}

type gfactorResponse struct {
	Kind    optics.Kind `json:"kind"`
	GFactor float64     `json:"g_factor"`
}

type nepRequest struct {
	PixelPitch      string `json:"pixel_pitch" binding:"required"`
	IntegrationTime string `json:"integration_time" binding:"required"`
	Detectivity     string `json:"detectivity" binding:"required"`
}

type nepResponse struct {
	NEPW        float64 `json:"nep_w"`
	AreaM2      float64 `json:"area_m2"`
	BandwidthHz float64 `json:"bandwidth_hz"`
}

type blackbodyRequest struct {
	Temperature  string  `json:"temperature" binding:"required"`
	MinUm        float64 `json:"min_um" binding:"required"`
	MaxUm        float64 `json:"max_um" binding:"required"`
	StepUm       float64 `json:"step_um"`
	IncludeCurve bool    `json:"include_curve"`
}

type blackbodyResponse struct {
	TemperatureK     float64   `json:"temperature_k"`
	PeakUm           float64   `json:"peak_um"`
	TotalExitanceWM2 float64   `json:"total_exitance_w_m2"`
	BandExitanceWM2  float64   `json:"band_exitance_w_m2"`
	WavelengthsUm    []float64 `json:"wavelengths_um,omitempty"`
	ExitanceWM2PerUm []float64 `json:"exitance_w_m2_um,omitempty"`
}

func (s *Server) gfactor(c *gin.Context) {
	var req gfactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	var opts []optics.Option
	if req.ObscurationFactor != 0 {
		opts = append(opts, optics.WithObscurationFactor(req.ObscurationFactor))
	}

	var resp gfactorResponse
	err := s.compute(c, "gfactor", func(context.Context) error {
		o, err := optics.New(optics.Config{
			FNumber:      req.FNumber,
			Transmission: req.Transmission,
			Kind:         optics.Kind(req.Kind),
		}, opts...)
		if err != nil {
			return err
		}
		g, err := o.GFactor()
		resp = gfactorResponse{Kind: o.Kind(), GFactor: g}
		return err
	})
	if err != nil {
		s.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) nep(c *gin.Context) {
	var req nepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	var resp nepResponse
	err := s.compute(c, "nep", func(context.Context) error {
		sc := config.Scenario{Detector: config.Detector{
			Name:            "request",
			PixelPitch:      req.PixelPitch,
			IntegrationTime: req.IntegrationTime,
			Detectivity:     req.Detectivity,
		}}
		d, err := sc.DetectorSpec(s.runner.Units())
		if err != nil {
			return err
		}
		nep, err := d.NEP()
		if err != nil {
			return err
		}
		area, err := d.Area()
		if err != nil {
			return err
		}
		bw, err := d.Bandwidth()
		if err != nil {
			return err
		}
		resp = nepResponse{NEPW: nep.Value(), AreaM2: area.Value(), BandwidthHz: bw.Value()}
		return nil
	})
	if err != nil {
		s.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) blackbody(c *gin.Context) {
	var req blackbodyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	if req.StepUm == 0 {
		req.StepUm = defaultBlackbodyStep
	}

	var resp blackbodyResponse
	err := s.compute(c, "blackbody", func(context.Context) error {
		t, err := s.runner.Units().ParseQuantity(req.Temperature)
		if err != nil {
			return err
		}
		src, err := blackbody.NewSource(t)
		if err != nil {
			return err
		}
		band := spectral.Band{Min: req.MinUm, Max: req.MaxUm}
		grid, err := spectral.GridFor(band, req.StepUm)
		if err != nil {
			return err
		}
		m, err := s.exitance.Exitance(src, grid)
		if err != nil {
			return err
		}
		inBand, err := m.Integrate(nil)
		if err != nil {
			return err
		}
		total, err := blackbody.TotalExitance(src.Temperature())
		if err != nil {
			return err
		}
		resp.TemperatureK = src.Temperature().Value()
		resp.PeakUm = src.PeakWavelength()
		resp.TotalExitanceWM2 = total.Value()
		if resp.BandExitanceWM2, err = inBand.In(units.Irradiance); err != nil {
			return err
		}
		if req.IncludeCurve {
			resp.WavelengthsUm = m.Wavelengths()
			resp.ExitanceWM2PerUm = m.Values()
		}
		return nil
	})
	if err != nil {
		s.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) scenario(c *gin.Context) {
	sc := config.Default()
	if err := c.ShouldBindJSON(&sc); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	var res app.Result
	err := s.compute(c, "scenario", func(ctx context.Context) error {
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String("scenario", sc.Name),
			attribute.Int("bands", len(sc.Bands)),
		)
		var err error
		res, err = s.runner.Run(ctx, sc)
		return err
	})
	if err != nil {
		s.fail(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, res.Summary())
}

// compute runs fn inside a span named after kind and counts the outcome.
func (s *Server) compute(c *gin.Context, kind string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(c.Request.Context(), "radiometry."+kind)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.metrics.Observe(kind, err)
	return err
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	id := logging.RequestIDFromContext(c.Request.Context())
	log := s.log.With(logging.String("request_id", id), logging.String("path", c.FullPath()))
	if status >= http.StatusInternalServerError {
		log.Error("request failed", logging.Int("status", status), logging.Err(err))
	} else {
		log.Debug("request rejected", logging.Int("status", status), logging.Err(err))
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":      http.StatusText(status),
		"details":    err.Error(),
		"request_id": id,
	})
}

// statusFor maps model errors onto HTTP status codes: unknown reference data
// is 404, unit and domain violations are 422, malformed parameters are 400.
func statusFor(err error) int {
	switch {
	case errors.Is(err, reference.ErrSignatureNotFound), errors.Is(err, reference.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, units.ErrIncompatibleUnit),
		errors.Is(err, spectral.ErrOutOfDomain),
		errors.Is(err, spectral.ErrGridMismatch),
		errors.Is(err, scene.ErrInvalidScene),
		errors.Is(err, reference.ErrMalformedData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, config.ErrInvalidScenario),
		errors.Is(err, optics.ErrInvalidConfiguration),
		errors.Is(err, optics.ErrMissingDetector),
		errors.Is(err, blackbody.ErrInvalidTemperature),
		errors.Is(err, blackbody.ErrInvalidWavelength),
		errors.Is(err, spectral.ErrInvalidBand),
		errors.Is(err, spectral.ErrInvalidCurve),
		errors.Is(err, units.ErrUnitSyntax),
		errors.Is(err, units.ErrUnknownUnit),
		errors.Is(err, reference.ErrInvalidIdentifier):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
