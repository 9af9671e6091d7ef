// Package server exposes the radiometry engine over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/rjboer/GoIR/internal/app"
	"github.com/rjboer/GoIR/internal/blackbody"
	"github.com/rjboer/GoIR/internal/logging"
	"github.com/rjboer/GoIR/internal/telemetry"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// Config holds the listener settings.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Server is the HTTP front end of a Runner.
type Server struct {
	cfg      Config
	runner   *app.Runner
	hub      *telemetry.Hub
	metrics  *Collector
	exitance *blackbody.Cache
	tracer   trace.Tracer
	log      logging.Logger
	engine   *gin.Engine
	srv      *http.Server
}

// Option customises a Server.
type Option func(*Server)

// WithHub serves hub history and live updates. The hub should also be the
// runner's reporter.
func WithHub(h *telemetry.Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithCollector enables Prometheus metrics.
func WithCollector(c *Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithTracerProvider sets where computation spans go.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		if tp != nil {
			s.tracer = tp.Tracer(TracerName)
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// New builds the gin engine and routes.
func New(cfg Config, runner *app.Runner, opts ...Option) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 2 * time.Second
	}
	s := &Server{
		cfg:      cfg,
		runner:   runner,
		exitance: blackbody.NewCache(0),
		tracer:   noop.NewTracerProvider().Tracer(TracerName),
		log:      logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logging.String("subsystem", "server"))

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestID())
	if s.metrics != nil {
		engine.Use(s.metrics.Middleware())
	}

	engine.GET("/healthz", s.health)
	if s.metrics != nil {
		engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	api := engine.Group("/api/v1")
	{
		api.POST("/gfactor", s.gfactor)
		api.POST("/nep", s.nep)
		api.POST("/blackbody", s.blackbody)
		api.POST("/scenario", s.scenario)
		if s.hub != nil {
			api.GET("/history", gin.WrapF(s.hub.HandleHistory))
			api.GET("/live", gin.WrapF(s.hub.HandleLive))
		}
	}

	s.engine = engine
	s.srv = &http.Server{Addr: cfg.Addr, Handler: engine}
	return s
}

// Handler returns the routed engine, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Start listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("http shutdown", logging.Err(err))
		}
	}()

	s.log.Info("listening", logging.String("addr", s.cfg.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id := c.GetHeader(RequestIDHeader); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ctx, id := logging.EnsureRequestID(ctx)
		c.Request = c.Request.WithContext(ctx)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}
