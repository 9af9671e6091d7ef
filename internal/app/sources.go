package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/rjboer/GoIR/internal/config"
	"github.com/rjboer/GoIR/internal/logging"
	"github.com/rjboer/GoIR/internal/reference"
	"github.com/rjboer/GoIR/internal/units"
)

// OpenSources opens the reference data ref points at. The signature
// database is only opened when ref names one. The returned close func
// releases it.
func OpenSources(ref config.Reference, sys *units.System, log logging.Logger) (Sources, func() error, error) {
	if log == nil {
		log = logging.Default()
	}
	noop := func() error { return nil }

	lib := reference.NewSolarLibrary()
	for id, path := range ref.Illumination {
		if err := lib.Register(id, path, units.Unit{}); err != nil {
			return Sources{}, noop, err
		}
	}
	sources := Sources{
		Atmosphere:   reference.CSVAtmosphere{Dir: ref.AtmosphereDir, Log: log},
		Illumination: lib,
	}

	db, err := OpenSignatureDB(ref, sys, log)
	if err != nil {
		return Sources{}, noop, err
	}
	if db == nil {
		return sources, noop, nil
	}
	sources.Signatures = db
	return sources, db.Close, nil
}

// Confine restricts CSV atmosphere lookups to names inside the atmosphere
// directory. Services taking identifiers from clients call it.
func (s Sources) Confine() Sources {
	if atm, ok := s.Atmosphere.(reference.CSVAtmosphere); ok {
		atm.Confined = true
		s.Atmosphere = atm
	}
	return s
}

// OpenSignatureDB opens the configured signature database, or returns nil
// when none is configured.
func OpenSignatureDB(ref config.Reference, sys *units.System, log logging.Logger) (*reference.SignatureDB, error) {
	switch ref.SignatureDriver {
	case config.DriverSQLite, "":
		if ref.SignatureDB == "" {
			return nil, nil
		}
		return reference.OpenSQLite(ref.SignatureDB, sys, log)
	case config.DriverMySQL:
		if ref.MySQL.Addr == "" {
			return nil, nil
		}
		cfg := ref.MySQL
		if ref.MySQLPasswordFile != "" {
			pass, err := os.ReadFile(ref.MySQLPasswordFile)
			if err != nil {
				return nil, fmt.Errorf("unable to read MySQL password file %q: %w", ref.MySQLPasswordFile, err)
			}
			cfg.Password = strings.TrimSpace(string(pass))
		}
		return reference.OpenMySQL(cfg, sys, log)
	default:
		return nil, fmt.Errorf("%w: unknown signature driver %q", config.ErrInvalidScenario, ref.SignatureDriver)
	}
}
