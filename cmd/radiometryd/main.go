package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rjboer/GoIR/internal/app"
	"github.com/rjboer/GoIR/internal/config"
	"github.com/rjboer/GoIR/internal/logging"
	"github.com/rjboer/GoIR/internal/mdns"
	"github.com/rjboer/GoIR/internal/sensor"
	"github.com/rjboer/GoIR/internal/server"
	"github.com/rjboer/GoIR/internal/telemetry"
	"github.com/rjboer/GoIR/internal/units"
)

func main() {
	cfg, err := parseConfig(os.Args[1:], os.LookupEnv, defaultCLIConfig())
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("parse config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, os.Stderr, prometheus.DefaultRegisterer); err != nil {
		log.Fatalf("radiometryd: %v", err)
	}
}

type cliConfig struct {
	addr            string
	scenarioPath    string
	historyLimit    int
	workers         int
	shutdownTimeout time.Duration
	tracing         bool
	traceRatio      float64
	announce        bool
	instance        string
	logLevel        string
	logFormat       string
}

func defaultCLIConfig() cliConfig {
	return cliConfig{
		addr:            ":8080",
		historyLimit:    500,
		shutdownTimeout: 5 * time.Second,
		traceRatio:      1,
		instance:        "radiometryd",
		logLevel:        "info",
		logFormat:       "json",
	}
}

func parseConfig(args []string, lookup config.Lookup, defaults cliConfig) (cliConfig, error) {
	cfg := cliConfig{}
	fs := flag.NewFlagSet("radiometryd", flag.ContinueOnError)
	fs.StringVar(&cfg.addr, "addr", config.EnvString(lookup, "ADDR", defaults.addr), "HTTP listen address")
	fs.StringVar(&cfg.scenarioPath, "scenario", config.EnvString(lookup, "SCENARIO", defaults.scenarioPath), "Optional scenario file whose reference settings locate signature, atmosphere and illumination data")
	fs.IntVar(&cfg.historyLimit, "history-limit", config.EnvInt(lookup, "HISTORY_LIMIT", defaults.historyLimit), "Maximum samples to keep in telemetry history")
	fs.IntVar(&cfg.workers, "workers", config.EnvInt(lookup, "WORKERS", defaults.workers), "Band evaluation workers (0 = one per CPU)")
	fs.DurationVar(&cfg.shutdownTimeout, "shutdown-timeout", defaults.shutdownTimeout, "Graceful shutdown timeout")
	fs.BoolVar(&cfg.tracing, "tracing", config.EnvBool(lookup, "TRACING", defaults.tracing), "Export spans to stdout")
	fs.Float64Var(&cfg.traceRatio, "trace-ratio", config.EnvFloat(lookup, "TRACE_RATIO", defaults.traceRatio), "Fraction of traces to sample")
	fs.BoolVar(&cfg.announce, "mdns", config.EnvBool(lookup, "MDNS", defaults.announce), "Announce the service over mDNS ("+mdns.Service+")")
	fs.StringVar(&cfg.instance, "instance", config.EnvString(lookup, "INSTANCE", defaults.instance), "mDNS instance name")
	fs.StringVar(&cfg.logLevel, "log-level", config.EnvString(lookup, "LOG_LEVEL", defaults.logLevel), "Log level (debug|info|warn|error)")
	fs.StringVar(&cfg.logFormat, "log-format", config.EnvString(lookup, "LOG_FORMAT", defaults.logFormat), "Log format (text|json)")

	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

// referenceSettings returns the reference block of the scenario file, or the
// defaults when no file is configured.
func referenceSettings(path string) (config.Reference, error) {
	if path == "" {
		return config.Default().Reference, nil
	}
	sc, err := config.Load(path)
	if err != nil {
		return config.Reference{}, err
	}
	return sc.Reference, nil
}

// newServer wires the runner, hub, metrics and tracing into a server. The
// returned shutdown flushes the tracer and closes reference data.
func newServer(ctx context.Context, cfg cliConfig, logger logging.Logger, reg prometheus.Registerer) (*server.Server, func(), error) {
	ref, err := referenceSettings(cfg.scenarioPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load scenario: %w", err)
	}

	sys := units.NewSystem()
	sources, closeSources, err := app.OpenSources(ref, sys, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open reference data: %w", err)
	}
	sources = sources.Confine()

	collector, err := server.NewCollector(reg)
	if err != nil {
		closeSources()
		return nil, nil, err
	}

	tp, shutdownTracing, err := server.InitTracing(ctx, server.TracingConfig{
		Enabled:     cfg.tracing,
		ServiceName: "radiometryd",
		Exporter:    "stdout",
		SampleRatio: cfg.traceRatio,
	}, logger)
	if err != nil {
		closeSources()
		return nil, nil, err
	}

	hub := telemetry.NewHub(cfg.historyLimit)
	runner := app.NewRunner(sys, sources, hub, logger, sensor.WithWorkers(cfg.workers), sensor.WithLogger(logger))
	srv := server.New(server.Config{Addr: cfg.addr, ShutdownTimeout: cfg.shutdownTimeout}, runner,
		server.WithHub(hub),
		server.WithCollector(collector),
		server.WithTracerProvider(tp),
		server.WithLogger(logger),
	)

	shutdown := func() {
		server.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)
		if err := closeSources(); err != nil {
			logger.Warn("close reference data", logging.Err(err))
		}
	}
	return srv, shutdown, nil
}

func run(ctx context.Context, cfg cliConfig, logOut io.Writer, reg prometheus.Registerer) error {
	level, err := logging.ParseLevel(cfg.logLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(cfg.logFormat)
	if err != nil {
		return err
	}
	logger := logging.New(level, format, logOut)
	logging.SetDefault(logger)

	srv, shutdown, err := newServer(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer shutdown()

	if cfg.announce {
		port, err := mdns.PortFromAddr(cfg.addr)
		if err != nil {
			return err
		}
		stop, err := mdns.Announce(cfg.instance, port, []string{"api=/api/v1", "metrics=/metrics"})
		if err != nil {
			return err
		}
		defer stop()
		logger.Info("announced over mDNS", logging.String("service", mdns.Service), logging.String("instance", cfg.instance))
	}

	logger.Info("radiometryd starting", logging.String("addr", cfg.addr), logging.Any("tracing", cfg.tracing))
	return srv.Start(ctx)
}
