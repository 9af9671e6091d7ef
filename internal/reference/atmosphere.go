package reference

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rjboer/GoIR/internal/logging"
	"github.com/rjboer/GoIR/internal/spectral"
	"github.com/rjboer/GoIR/internal/units"
)

// Vacuum is the built-in atmosphere with unity transmission.
const Vacuum = "vacuum"

// Vacuum transmission is defined over this range (µm).
const (
	VacuumMin = 0.2
	VacuumMax = 100.0
)

// AtmosphereSource resolves atmospheric transmission curves.
type AtmosphereSource interface {
	Load(pathOrID string) (spectral.Curve, error)
}

// CSVAtmosphere loads MODTRAN-style "x,y" transmission tables. Relative
// identifiers resolve inside Dir and may omit the .csv extension.
type CSVAtmosphere struct {
	Dir string
	// Confined rejects absolute identifiers and any that leave Dir.
	Confined bool
	// Unit of the y column; zero means a fraction.
	Unit units.Unit
	Log  logging.Logger
}

// Load returns the transmission curve for pathOrID.
func (a CSVAtmosphere) Load(pathOrID string) (spectral.Curve, error) {
	id := strings.TrimSpace(pathOrID)
	if strings.EqualFold(id, Vacuum) {
		c, err := spectral.Constant([]float64{VacuumMin, VacuumMax}, 1, units.Dimensionless)
		if err != nil {
			return spectral.Curve{}, err
		}
		return c.WithName(Vacuum), nil
	}
	if id == "" {
		return spectral.Curve{}, fmt.Errorf("%w: empty atmosphere identifier", ErrNotFound)
	}

	if a.Confined && !filepath.IsLocal(id) {
		return spectral.Curve{}, fmt.Errorf("%w: atmosphere %q is not a name inside the atmosphere directory", ErrInvalidIdentifier, id)
	}

	path := resolve(a.Dir, id)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return spectral.Curve{}, fmt.Errorf("%w: atmosphere %q", ErrNotFound, id)
	}
	if err != nil {
		return spectral.Curve{}, fmt.Errorf("atmosphere %q: %w", id, err)
	}
	defer f.Close()

	c, err := ReadCurve(f, "atmosphere "+id, a.Unit)
	if err != nil {
		return spectral.Curve{}, err
	}
	if a.Log != nil {
		lo, hi := c.Domain()
		a.Log.Debug("atmosphere loaded", logging.String("path", path), logging.Int("samples", c.Len()),
			logging.Float("min_um", lo), logging.Float("max_um", hi))
	}
	return c, nil
}

func resolve(dir, id string) string {
	path := id
	if !filepath.IsAbs(path) && dir != "" {
		path = filepath.Join(dir, path)
	}
	if filepath.Ext(path) == "" {
		path += ".csv"
	}
	return path
}
