// Package config describes a radiometry scenario on disk: instrument,
// detector, bands, scene and the reference data to load.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rjboer/GoIR/internal/blackbody"
	"github.com/rjboer/GoIR/internal/optics"
	"github.com/rjboer/GoIR/internal/reference"
	"github.com/rjboer/GoIR/internal/spectral"
	"github.com/rjboer/GoIR/internal/units"
)

var (
	// ErrInvalidScenario reports a scenario that fails validation.
	ErrInvalidScenario = errors.New("config: invalid scenario")
	// ErrUnsupportedFormat is returned for files that are neither YAML nor JSON.
	ErrUnsupportedFormat = errors.New("config: unsupported file format")
)

// Scenario is the complete input of one radiometry run.
type Scenario struct {
	Name      string          `json:"name" yaml:"name"`
	Optics    Optics          `json:"optics" yaml:"optics"`
	Detector  Detector        `json:"detector" yaml:"detector"`
	Bands     []spectral.Band `json:"bands" yaml:"bands"`
	Scene     Scene           `json:"scene" yaml:"scene"`
	Grid      Grid            `json:"grid" yaml:"grid"`
	Reference Reference       `json:"reference" yaml:"reference"`
}

// Optics extends optics.Config with the optional layout parameters.
type Optics struct {
	FNumber           float64 `json:"f_number" yaml:"f_number"`
	Transmission      float64 `json:"transmission" yaml:"transmission"`
	Kind              string  `json:"kind" yaml:"kind"`
	ObscurationFactor float64 `json:"obscuration_factor,omitempty" yaml:"obscuration_factor,omitempty"`
	FocalLength       string  `json:"focal_length,omitempty" yaml:"focal_length,omitempty"`
}

// Detector quantities are written with their unit, e.g. "17 um".
type Detector struct {
	Name            string `json:"name" yaml:"name"`
	PixelPitch      string `json:"pixel_pitch" yaml:"pixel_pitch"`
	IntegrationTime string `json:"integration_time" yaml:"integration_time"`
	Detectivity     string `json:"detectivity" yaml:"detectivity"`
}

// Scene selects the background, signature, atmosphere and illumination.
type Scene struct {
	Temperature  string  `json:"temperature" yaml:"temperature"`
	SignatureID  int     `json:"signature_id,omitempty" yaml:"signature_id,omitempty"`
	PixelFill    float64 `json:"pixel_fill,omitempty" yaml:"pixel_fill,omitempty"`
	Atmosphere   string  `json:"atmosphere" yaml:"atmosphere"`
	Illumination string  `json:"illumination,omitempty" yaml:"illumination,omitempty"`
	// Emissivity used by the two-point approximation.
	Emissivity float64 `json:"emissivity" yaml:"emissivity"`
}

// Grid is the evaluation grid in µm.
type Grid struct {
	MinUm  float64 `json:"min_um" yaml:"min_um"`
	MaxUm  float64 `json:"max_um" yaml:"max_um"`
	StepUm float64 `json:"step_um" yaml:"step_um"`
}

// Reference locates the external data sets.
type Reference struct {
	SignatureDriver string                `json:"signature_driver,omitempty" yaml:"signature_driver,omitempty"`
	SignatureDB     string                `json:"signature_db,omitempty" yaml:"signature_db,omitempty"`
	MySQL           reference.MySQLConfig `json:"mysql,omitempty" yaml:"mysql,omitempty"`
	// MySQLPasswordFile, when set, replaces MySQL.Password with the file's
	// trimmed content.
	MySQLPasswordFile string `json:"mysql_password_file,omitempty" yaml:"mysql_password_file,omitempty"`
	AtmosphereDir     string `json:"atmosphere_dir,omitempty" yaml:"atmosphere_dir,omitempty"`
	// Illumination maps extra standard ids onto CSV files in W/m^2/um.
	Illumination map[string]string `json:"illumination,omitempty" yaml:"illumination,omitempty"`
}

// Signature database drivers.
const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
)

// Default returns the demo instrument: an f/1 lens with 80% transmission in
// front of a 17 µm LWIR microbolometer looking at a 300 K blackbody.
func Default() Scenario {
	return Scenario{
		Name: "lwir-demo",
		Optics: Optics{
			FNumber:      1,
			Transmission: 0.8,
			Kind:         string(optics.Lens),
		},
		Detector: Detector{
			Name:            "microbolometer",
			PixelPitch:      "17 um",
			IntegrationTime: "12 ms",
			Detectivity:     "8e8 Jones",
		},
		Bands: []spectral.Band{{Name: "LWIR", Min: 9.5, Max: 14}},
		Scene: Scene{
			Temperature: "300 K",
			Atmosphere:  reference.Vacuum,
			Emissivity:  1,
		},
		Grid: Grid{MinUm: 9.5, MaxUm: 14, StepUm: 0.005},
		Reference: Reference{
			SignatureDriver: DriverSQLite,
		},
	}
}

// Load reads a scenario from a .yaml, .yml or .json file on top of Default.
func Load(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	sc := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &sc)
	case ".json":
		err = json.Unmarshal(data, &sc)
	default:
		return Scenario{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return Scenario{}, fmt.Errorf("decode scenario %s: %w", path, err)
	}
	return sc, nil
}

// Save writes sc to path, choosing the encoding by extension.
func Save(path string, sc Scenario) error {
	var (
		data []byte
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(sc)
	case ".json":
		data, err = json.MarshalIndent(sc, "", "  ")
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return fmt.Errorf("encode scenario: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create scenario directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks every field that can be checked without loading reference
// data.
func (sc Scenario) Validate(sys *units.System) error {
	if _, err := sc.OpticalSystem(sys); err != nil {
		return err
	}
	if _, err := sc.Background(sys); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	if _, err := sc.Wavelengths(); err != nil {
		return err
	}
	if len(sc.Bands) == 0 {
		return fmt.Errorf("%w: no bands", ErrInvalidScenario)
	}
	for _, b := range sc.Bands {
		if b.Min < sc.Grid.MinUm || b.Max > sc.Grid.MaxUm {
			return fmt.Errorf("%w: band %s outside grid [%g, %g] um", ErrInvalidScenario, b, sc.Grid.MinUm, sc.Grid.MaxUm)
		}
	}
	if f := sc.Scene.PixelFill; f < 0 || f > 1 || math.IsNaN(f) {
		return fmt.Errorf("%w: pixel fill %g outside [0, 1]", ErrInvalidScenario, f)
	}
	if e := sc.Scene.Emissivity; e <= 0 || e > 1 || math.IsNaN(e) {
		return fmt.Errorf("%w: emissivity %g outside (0, 1]", ErrInvalidScenario, e)
	}
	if sc.Scene.SignatureID < 0 {
		return fmt.Errorf("%w: negative signature id %d", ErrInvalidScenario, sc.Scene.SignatureID)
	}
	switch sc.Reference.SignatureDriver {
	case "", DriverSQLite, DriverMySQL:
	default:
		return fmt.Errorf("%w: unknown signature driver %q", ErrInvalidScenario, sc.Reference.SignatureDriver)
	}
	return nil
}

// DetectorSpec parses the detector quantities.
func (sc Scenario) DetectorSpec(sys *units.System) (optics.DetectorSpec, error) {
	d := sc.Detector
	pitch, err := sys.ParseQuantity(d.PixelPitch)
	if err != nil {
		return optics.DetectorSpec{}, fmt.Errorf("%w: pixel_pitch: %w", ErrInvalidScenario, err)
	}
	tint, err := sys.ParseQuantity(d.IntegrationTime)
	if err != nil {
		return optics.DetectorSpec{}, fmt.Errorf("%w: integration_time: %w", ErrInvalidScenario, err)
	}
	dstar, err := sys.ParseQuantity(d.Detectivity)
	if err != nil {
		return optics.DetectorSpec{}, fmt.Errorf("%w: detectivity: %w", ErrInvalidScenario, err)
	}
	return optics.NewDetector(d.Name, pitch, tint, dstar)
}

// OpticalSystem builds the validated instrument with its detector and bands.
func (sc Scenario) OpticalSystem(sys *units.System) (optics.OpticalSystem, error) {
	kind, err := optics.ParseKind(sc.Optics.Kind)
	if err != nil {
		return optics.OpticalSystem{}, err
	}
	det, err := sc.DetectorSpec(sys)
	if err != nil {
		return optics.OpticalSystem{}, err
	}
	opts := []optics.Option{optics.WithDetector(det), optics.WithBands(sc.Bands...)}
	if sc.Optics.ObscurationFactor != 0 {
		opts = append(opts, optics.WithObscurationFactor(sc.Optics.ObscurationFactor))
	}
	if sc.Optics.FocalLength != "" {
		fl, err := sys.ParseQuantity(sc.Optics.FocalLength)
		if err != nil {
			return optics.OpticalSystem{}, fmt.Errorf("%w: focal_length: %w", ErrInvalidScenario, err)
		}
		opts = append(opts, optics.WithFocalLength(fl))
	}
	return optics.New(optics.Config{
		FNumber:      sc.Optics.FNumber,
		Transmission: sc.Optics.Transmission,
		Kind:         kind,
	}, opts...)
}

// Background parses the scene temperature into a blackbody source.
func (sc Scenario) Background(sys *units.System) (blackbody.Source, error) {
	t, err := sys.ParseQuantity(sc.Scene.Temperature)
	if err != nil {
		return blackbody.Source{}, fmt.Errorf("temperature: %w", err)
	}
	return blackbody.NewSource(t)
}

// Wavelengths samples the evaluation grid.
func (sc Scenario) Wavelengths() ([]float64, error) {
	g, err := spectral.Grid(sc.Grid.MinUm, sc.Grid.MaxUm, sc.Grid.StepUm)
	if err != nil {
		return nil, fmt.Errorf("%w: grid: %w", ErrInvalidScenario, err)
	}
	return g, nil
}
