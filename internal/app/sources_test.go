package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/GoIR/internal/config"
	"github.com/rjboer/GoIR/internal/logging"
	"github.com/rjboer/GoIR/internal/reference"
	"github.com/rjboer/GoIR/internal/units"
)

func TestOpenSourcesWithoutDatabase(t *testing.T) {
	sources, closeFn, err := OpenSources(config.Default().Reference, nil, logging.Noop())
	require.NoError(t, err)
	defer closeFn()

	assert.Nil(t, sources.Signatures)
	atm, err := sources.Atmosphere.Load(reference.Vacuum)
	require.NoError(t, err)
	assert.Equal(t, reference.Vacuum, atm.Name())
	_, err = sources.Illumination.Load(reference.BlackbodySun)
	require.NoError(t, err)
}

func TestSourcesConfine(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "atm")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lwir.csv"), []byte("8,0.5\n12,0.8\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "other.csv"), []byte("8,0.5\n12,0.8\n"), 0o644))

	ref := config.Default().Reference
	ref.AtmosphereDir = dir
	sources, closeFn, err := OpenSources(ref, nil, logging.Noop())
	require.NoError(t, err)
	defer closeFn()

	_, err = sources.Atmosphere.Load("../other")
	require.NoError(t, err)

	confined := sources.Confine()
	_, err = confined.Atmosphere.Load("lwir")
	require.NoError(t, err)
	_, err = confined.Atmosphere.Load("../other")
	assert.ErrorIs(t, err, reference.ErrInvalidIdentifier)
	_, err = confined.Atmosphere.Load(filepath.Join(root, "other.csv"))
	assert.ErrorIs(t, err, reference.ErrInvalidIdentifier)
}

func TestOpenSourcesSQLite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "signatures.db")

	seed, err := reference.OpenSQLite(path, units.NewSystem(), nil)
	require.NoError(t, err)
	require.NoError(t, seed.CreateSchema(ctx))
	id, err := seed.Insert(ctx, reference.SignatureRecord{
		Name:  "grey paint",
		XUnit: "Wavelength (micrometers)",
		YUnit: "Reflectance (percent)",
		X:     []float64{8, 15},
		Y:     []float64{50, 50},
	})
	require.NoError(t, err)
	require.NoError(t, seed.Close())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "flat.csv"), []byte("0.2,100\n100,100\n"), 0o644))

	ref := config.Reference{
		SignatureDriver: config.DriverSQLite,
		SignatureDB:     path,
		Illumination:    map[string]string{"flat": filepath.Join(dir, "flat.csv")},
	}
	sources, closeFn, err := OpenSources(ref, units.NewSystem(), logging.Noop())
	require.NoError(t, err)
	defer closeFn()

	require.NotNil(t, sources.Signatures)
	sig, err := sources.Signatures.Lookup(ctx, int(id))
	require.NoError(t, err)
	assert.Equal(t, "grey paint", sig.Name)

	sun, err := sources.Illumination.Load("flat")
	require.NoError(t, err)
	assert.Equal(t, 2, sun.Len())
}

func TestOpenSignatureDBMySQLPasswordFile(t *testing.T) {
	ref := config.Reference{
		SignatureDriver:   config.DriverMySQL,
		MySQL:             reference.MySQLConfig{User: "radiometry", Addr: "127.0.0.1:3306", DBName: "ecostress"},
		MySQLPasswordFile: filepath.Join(t.TempDir(), "missing"),
	}
	_, err := OpenSignatureDB(ref, nil, logging.Noop())
	require.Error(t, err)

	pass := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(pass, []byte("s3cret\n"), 0o600))
	ref.MySQLPasswordFile = pass
	db, err := OpenSignatureDB(ref, nil, logging.Noop())
	require.NoError(t, err)
	require.NotNil(t, db)
	assert.NoError(t, db.Close())

	ref.MySQL.Addr = ""
	db, err = OpenSignatureDB(ref, nil, logging.Noop())
	require.NoError(t, err)
	assert.Nil(t, db)
}

func TestOpenSourcesRejects(t *testing.T) {
	_, _, err := OpenSources(config.Reference{SignatureDriver: "oracle", SignatureDB: "x"}, nil, logging.Noop())
	assert.ErrorIs(t, err, config.ErrInvalidScenario)

	_, _, err = OpenSources(config.Reference{Illumination: map[string]string{reference.BlackbodySun: "x.csv"}}, nil, logging.Noop())
	assert.Error(t, err)
}
