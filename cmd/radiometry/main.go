package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rjboer/GoIR/internal/app"
	"github.com/rjboer/GoIR/internal/config"
	"github.com/rjboer/GoIR/internal/logging"
	"github.com/rjboer/GoIR/internal/mdns"
	"github.com/rjboer/GoIR/internal/sensor"
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

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if cfg.discover > 0 {
		if err := discover(ctx, cfg.discover, os.Stdout); err != nil {
			log.Fatalf("discover: %v", err)
		}
		return
	}
	if err := run(ctx, cfg, os.Stdout, os.Stderr); err != nil {
		log.Fatalf("radiometry: %v", err)
	}
}

type cliConfig struct {
	scenarioPath  string
	temperature   string
	fNumber       float64
	transmission  float64
	kind          string
	signatureID   int
	atmosphere    string
	illumination  string
	pixelFill     float64
	emissivity    float64
	signatureDB   string
	atmosphereDir string
	format        string
	logLevel      string
	logFormat     string
	workers       int
	discover      time.Duration
}

func defaultCLIConfig() cliConfig {
	return cliConfig{
		scenarioPath: "scenario.yaml",
		format:       "table",
		logLevel:     "warn",
		logFormat:    "text",
	}
}

// parseConfig reads flags with RADIOMETRY_* environment fallbacks. Zero
// values leave the scenario file untouched.
func parseConfig(args []string, lookup config.Lookup, defaults cliConfig) (cliConfig, error) {
	cfg := cliConfig{}
	fs := flag.NewFlagSet("radiometry", flag.ContinueOnError)
	fs.StringVar(&cfg.scenarioPath, "scenario", config.EnvString(lookup, "SCENARIO", defaults.scenarioPath), "Scenario file (.yaml or .json); created with defaults if missing")
	fs.StringVar(&cfg.temperature, "temperature", config.EnvString(lookup, "TEMPERATURE", defaults.temperature), "Background temperature, e.g. \"300 K\"")
	fs.Float64Var(&cfg.fNumber, "f-number", config.EnvFloat(lookup, "F_NUMBER", defaults.fNumber), "Optics f-number")
	fs.Float64Var(&cfg.transmission, "transmission", config.EnvFloat(lookup, "TRANSMISSION", defaults.transmission), "Optics transmission (0,1]")
	fs.StringVar(&cfg.kind, "kind", config.EnvString(lookup, "KIND", defaults.kind), "Optics layout (lens|cassegrain)")
	fs.IntVar(&cfg.signatureID, "signature-id", config.EnvInt(lookup, "SIGNATURE_ID", defaults.signatureID), "Reflectance signature spectrum ID")
	fs.StringVar(&cfg.atmosphere, "atmosphere", config.EnvString(lookup, "ATMOSPHERE", defaults.atmosphere), "Atmosphere id or CSV path (vacuum for none)")
	fs.StringVar(&cfg.illumination, "illumination", config.EnvString(lookup, "ILLUMINATION", defaults.illumination), "Illumination standard id")
	fs.Float64Var(&cfg.pixelFill, "pixel-fill", config.EnvFloat(lookup, "PIXEL_FILL", defaults.pixelFill), "Fraction of the pixel covered by the signature")
	fs.Float64Var(&cfg.emissivity, "emissivity", config.EnvFloat(lookup, "EMISSIVITY", defaults.emissivity), "Emissivity for the two-point approximation")
	fs.StringVar(&cfg.signatureDB, "signature-db", config.EnvString(lookup, "SIGNATURE_DB", defaults.signatureDB), "SQLite signature database path")
	fs.StringVar(&cfg.atmosphereDir, "atmosphere-dir", config.EnvString(lookup, "ATMOSPHERE_DIR", defaults.atmosphereDir), "Directory holding atmosphere CSV files")
	fs.StringVar(&cfg.format, "format", config.EnvString(lookup, "FORMAT", defaults.format), "Output format (table|json)")
	fs.StringVar(&cfg.logLevel, "log-level", config.EnvString(lookup, "LOG_LEVEL", defaults.logLevel), "Log level (debug|info|warn|error)")
	fs.StringVar(&cfg.logFormat, "log-format", config.EnvString(lookup, "LOG_FORMAT", defaults.logFormat), "Log format (text|json)")
	fs.IntVar(&cfg.workers, "workers", config.EnvInt(lookup, "WORKERS", defaults.workers), "Band evaluation workers (0 = one per CPU)")
	fs.DurationVar(&cfg.discover, "discover", defaults.discover, "Browse the network this long for radiometryd instances and exit")

	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}
	switch cfg.format {
	case "table", "json":
	default:
		return cliConfig{}, fmt.Errorf("unknown output format %q", cfg.format)
	}
	return cfg, nil
}

// applyOverrides copies every non-zero CLI setting onto sc.
func applyOverrides(sc config.Scenario, cfg cliConfig) config.Scenario {
	if cfg.temperature != "" {
		sc.Scene.Temperature = cfg.temperature
	}
	if cfg.fNumber != 0 {
		sc.Optics.FNumber = cfg.fNumber
	}
	if cfg.transmission != 0 {
		sc.Optics.Transmission = cfg.transmission
	}
	if cfg.kind != "" {
		sc.Optics.Kind = cfg.kind
	}
	if cfg.signatureID != 0 {
		sc.Scene.SignatureID = cfg.signatureID
	}
	if cfg.atmosphere != "" {
		sc.Scene.Atmosphere = cfg.atmosphere
	}
	if cfg.illumination != "" {
		sc.Scene.Illumination = cfg.illumination
	}
	if cfg.pixelFill != 0 {
		sc.Scene.PixelFill = cfg.pixelFill
	}
	if cfg.emissivity != 0 {
		sc.Scene.Emissivity = cfg.emissivity
	}
	if cfg.signatureDB != "" {
		sc.Reference.SignatureDriver = config.DriverSQLite
		sc.Reference.SignatureDB = cfg.signatureDB
	}
	if cfg.atmosphereDir != "" {
		sc.Reference.AtmosphereDir = cfg.atmosphereDir
	}
	return sc
}

// loadOrCreateScenario reads path, writing the default scenario there first
// when it does not exist yet.
func loadOrCreateScenario(path string) (config.Scenario, error) {
	sc, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		sc = config.Default()
		if saveErr := config.Save(path, sc); saveErr != nil {
			return config.Scenario{}, saveErr
		}
		return sc, nil
	}
	return sc, err
}

func run(ctx context.Context, cfg cliConfig, stdout, stderr io.Writer) error {
	level, err := logging.ParseLevel(cfg.logLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(cfg.logFormat)
	if err != nil {
		return err
	}
	logger := logging.New(level, format, stderr)
	logging.SetDefault(logger)

	sc, err := loadOrCreateScenario(cfg.scenarioPath)
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}
	sc = applyOverrides(sc, cfg)

	sys := units.NewSystem()
	sources, closeSources, err := app.OpenSources(sc.Reference, sys, logger)
	if err != nil {
		return fmt.Errorf("open reference data: %w", err)
	}
	defer closeSources()

	runner := app.NewRunner(sys, sources, telemetry.NewStdoutReporter(logger), logger,
		sensor.WithWorkers(cfg.workers), sensor.WithLogger(logger))
	res, err := runner.Run(ctx, sc)
	if err != nil {
		return err
	}

	summary := res.Summary()
	if cfg.format == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	return printTable(stdout, summary)
}

func discover(ctx context.Context, timeout time.Duration, w io.Writer) error {
	hosts, err := mdns.Discover(ctx, timeout)
	if err != nil {
		return err
	}
	printHosts(w, hosts)
	return nil
}

func printHosts(w io.Writer, hosts []mdns.Host) {
	if len(hosts) == 0 {
		fmt.Fprintln(w, "no radiometryd instances found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tURL\tTXT")
	for _, h := range hosts {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", h.Instance, h.URL(), strings.Join(h.TXT, " "))
	}
	tw.Flush()
}

func printTable(w io.Writer, s app.Summary) error {
	fmt.Fprintf(w, "scenario:  %s\n", s.Scenario)
	if s.Signature != "" {
		fmt.Fprintf(w, "signature: %s\n", s.Signature)
	}
	fmt.Fprintf(w, "G:         %.4g\n", s.GFactor)
	fmt.Fprintf(w, "NEP:       %.4e W\n\n", s.NEPW)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BAND\tRANGE (um)\tPOWER (W)\tSNR\tTWO-POINT (W)\tTWO-POINT SNR")
	for _, b := range s.Bands {
		fmt.Fprintf(tw, "%s\t%g-%g\t%.4e\t%.2f\t%.4e\t%.2f\n",
			b.Band, b.MinUm, b.MaxUm, b.PowerW, b.SNR, b.TwoPointPowerW, b.TwoPointSNR)
	}
	return tw.Flush()
}
