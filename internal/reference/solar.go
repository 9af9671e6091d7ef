package reference

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rjboer/GoIR/internal/blackbody"
	"github.com/rjboer/GoIR/internal/spectral"
	"github.com/rjboer/GoIR/internal/units"
)

// BlackbodySun is the analytic solar standard: a 5772 K blackbody seen from 1 AU.
const BlackbodySun = "blackbody-sun"

// Solar geometry used by BlackbodySun: temperature in K, distances in m.
const (
	SunTemperature   = 5772.0
	SolarRadius      = 6.957e8
	AstronomicalUnit = 1.495978707e11
)

const (
	blackbodySunStep  = 0.005
	blackbodySunMinUm = 0.2
	blackbodySunMaxUm = 100.0
)

// IlluminationSource resolves illumination spectra in W/m^2/um.
type IlluminationSource interface {
	Load(standardID string) (spectral.Curve, error)
}

type solarStandard struct {
	path string
	unit units.Unit
}

// SolarLibrary serves the analytic blackbody sun plus CSV standards
// registered at runtime (for example ASTM E-490).
type SolarLibrary struct {
	mu        sync.RWMutex
	standards map[string]solarStandard
}

// NewSolarLibrary returns a library holding only BlackbodySun.
func NewSolarLibrary() *SolarLibrary {
	return &SolarLibrary{standards: make(map[string]solarStandard)}
}

// Register maps id onto a two-column CSV in unit, which must be a spectral
// irradiance; the zero Unit means W/m^2/um.
func (l *SolarLibrary) Register(id, path string, unit units.Unit) error {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" || id == BlackbodySun {
		return fmt.Errorf("reference: cannot register illumination standard %q", id)
	}
	if unit == (units.Unit{}) {
		unit = units.SpectralExitance
	}
	if !unit.Compatible(units.SpectralExitance) {
		return fmt.Errorf("reference: standard %q: %w: %s is not a spectral irradiance", id, units.ErrIncompatibleUnit, unit)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.standards[id] = solarStandard{path: path, unit: unit}
	return nil
}

// Standards lists the known identifiers.
func (l *SolarLibrary) Standards() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []string{BlackbodySun}
	for id := range l.standards {
		out = append(out, id)
	}
	sort.Strings(out[1:])
	return out
}

// Load returns the illumination spectrum for standardID in W/m^2/um.
func (l *SolarLibrary) Load(standardID string) (spectral.Curve, error) {
	id := strings.ToLower(strings.TrimSpace(standardID))
	if id == BlackbodySun {
		return blackbodySun()
	}

	l.mu.RLock()
	std, ok := l.standards[id]
	l.mu.RUnlock()
	if !ok {
		return spectral.Curve{}, fmt.Errorf("%w: illumination standard %q", ErrNotFound, standardID)
	}

	f, err := os.Open(std.path)
	if errors.Is(err, fs.ErrNotExist) {
		return spectral.Curve{}, fmt.Errorf("%w: illumination standard %q (%s)", ErrNotFound, id, std.path)
	}
	if err != nil {
		return spectral.Curve{}, fmt.Errorf("illumination standard %q: %w", id, err)
	}
	defer f.Close()

	c, err := ReadCurve(f, id, std.unit)
	if err != nil {
		return spectral.Curve{}, err
	}
	return c.Convert(units.SpectralExitance)
}

// blackbodySun returns π·M(λ, 5772 K)·(R☉/AU)², the top-of-atmosphere
// spectral irradiance of a blackbody sun.
func blackbodySun() (spectral.Curve, error) {
	src, err := blackbody.Kelvin(SunTemperature)
	if err != nil {
		return spectral.Curve{}, err
	}
	grid, err := spectral.Grid(blackbodySunMinUm, blackbodySunMaxUm, blackbodySunStep)
	if err != nil {
		return spectral.Curve{}, err
	}
	m, err := src.Exitance(grid)
	if err != nil {
		return spectral.Curve{}, err
	}
	dilution := math.Pow(SolarRadius/AstronomicalUnit, 2)
	return m.Scale(math.Pi * dilution).WithName(BlackbodySun), nil
}
