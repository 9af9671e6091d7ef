package reference

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/GoIR/internal/spectral"
	"github.com/rjboer/GoIR/internal/units"
)

func openTestDB(t *testing.T) *SignatureDB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "ecostress.db"), units.NewSystem(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.CreateSchema(context.Background()))
	return db
}

func TestSignatureRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	id, err := db.Insert(ctx, SignatureRecord{
		Name:        "Construction Concrete",
		Type:        "manmade",
		Class:       "Concrete",
		Description: "gray concrete slab",
		XUnit:       "Wavelength (micrometers)",
		YUnit:       "Reflectance (percent)",
		X:           []float64{8, 9, 10, 11, 12, 13, 14, 15},
		Y:           []float64{5, 6, 7, 8, 8.5, 9, 9.25, 9.5},
	})
	require.NoError(t, err)

	var src SignatureSource = db
	sig, err := src.Lookup(ctx, int(id))
	require.NoError(t, err)
	assert.Equal(t, "Construction Concrete", sig.Name)
	assert.Equal(t, "Concrete", sig.Class)
	assert.Equal(t, id, sig.SpectrumID)
	assert.True(t, sig.Curve.Unit().Equal(units.Percent))
	assert.Equal(t, []float64{8, 9, 10, 11, 12, 13, 14, 15}, sig.Curve.Wavelengths())
	assert.Equal(t, []float64{5, 6, 7, 8, 8.5, 9, 9.25, 9.5}, sig.Curve.Values())
	assert.Contains(t, sig.Curve.Name(), "Construction Concrete")
}

func TestSignatureDescendingAndNanometers(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	id, err := db.Insert(ctx, SignatureRecord{
		Name:  "Grass",
		XUnit: "Wavelength (nanometers)",
		YUnit: "Reflectance (fraction)",
		X:     []float64{14000, 12000, 10000, 8000},
		Y:     []float64{0.04, 0.03, 0.02, 0.01},
	})
	require.NoError(t, err)

	sig, err := db.Lookup(ctx, int(id))
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{8, 10, 12, 14}, sig.Curve.Wavelengths(), 1e-6)
	assert.InDeltaSlice(t, []float64{0.01, 0.02, 0.03, 0.04}, sig.Curve.Values(), 1e-6)
	assert.True(t, sig.Curve.Unit().Equal(units.Dimensionless))
}

func TestSignatureNotFound(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Lookup(context.Background(), 579)
	require.ErrorIs(t, err, ErrSignatureNotFound)
	assert.Contains(t, err.Error(), "579")
}

func TestSignatureInsertValidation(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.Insert(ctx, SignatureRecord{Name: "short", X: []float64{1}, Y: []float64{1}})
	assert.ErrorIs(t, err, ErrMalformedData)
	_, err = db.Insert(ctx, SignatureRecord{X: []float64{1, 2}, Y: []float64{1, 2}})
	assert.ErrorIs(t, err, ErrMalformedData)
	_, err = db.Insert(ctx, SignatureRecord{Name: "seconds", XUnit: "Time (s)", X: []float64{1, 2}, Y: []float64{1, 2}})
	assert.ErrorIs(t, err, units.ErrIncompatibleUnit)
	_, err = db.Insert(ctx, SignatureRecord{Name: "bogus", YUnit: "Reflectance (furlongs)", X: []float64{1, 2}, Y: []float64{1, 2}})
	assert.ErrorIs(t, err, ErrMalformedData)
}

func TestSignatureList(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	for _, name := range []string{"a", "b", "c"} {
		_, err := db.Insert(ctx, SignatureRecord{Name: name, X: []float64{2, 4}, Y: []float64{1, 2}})
		require.NoError(t, err)
	}
	all, err := db.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Name)
	assert.Equal(t, 2.0, all[0].MinWavelength)
	assert.Equal(t, 4.0, all[0].MaxWavelength)
	assert.Equal(t, 2, all[0].NumValues)

	two, err := db.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestFloatBlobs(t *testing.T) {
	in := []float64{0.5, 9.5, 14, -1}
	out, err := decodeFloats(encodeFloats(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeFloats([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrMalformedData)
}

func TestMySQLDSN(t *testing.T) {
	dsn := MySQLConfig{User: "ir", Password: "secret", Addr: "db:3306", DBName: "ecostress"}.DSN()
	assert.True(t, strings.HasPrefix(dsn, "ir:secret@tcp(db:3306)/ecostress"), dsn)
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCSVAtmosphere(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "modtran_lwir.csv", "x,y\n8,0.5\n10,0.9\n12,0.8\n15,0.3\n")
	writeFile(t, dir, "percent.csv", "# MODTRAN in percent\n15,30\n12,80\n10,90\n8,50\n")

	atm := CSVAtmosphere{Dir: dir}
	c, err := atm.Load("modtran_lwir")
	require.NoError(t, err)
	assert.Equal(t, []float64{8, 10, 12, 15}, c.Wavelengths())
	assert.True(t, c.Unit().Compatible(units.Dimensionless))

	pct, err := CSVAtmosphere{Dir: dir, Unit: units.Percent}.Load("percent.csv")
	require.NoError(t, err)
	frac, err := pct.Convert(units.Dimensionless)
	require.NoError(t, err)
	assert.InDeltaSlice(t, c.Values(), frac.Values(), 1e-12)

	v, err := atm.Load("Vacuum")
	require.NoError(t, err)
	lo, hi := v.Domain()
	assert.Equal(t, VacuumMin, lo)
	assert.Equal(t, VacuumMax, hi)
	assert.Equal(t, []float64{1, 1}, v.Values())

	_, err = atm.Load("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	writeFile(t, dir, "bad.csv", "x,y\n8,0.5\n9,abc\n")
	_, err = atm.Load("bad")
	assert.ErrorIs(t, err, ErrMalformedData)

	writeFile(t, dir, "dup.csv", "8,0.5\n8,0.6\n9,0.7\n")
	_, err = atm.Load("dup")
	assert.ErrorIs(t, err, spectral.ErrInvalidCurve)
}

func TestCSVAtmosphereConfined(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "atm")
	require.NoError(t, os.Mkdir(dir, 0o755))
	writeFile(t, dir, "lwir.csv", "x,y\n8,0.5\n12,0.8\n")
	outside := writeFile(t, root, "secrets.csv", "user,pass\nadmin,hunter2\n")

	open := CSVAtmosphere{Dir: dir}
	_, err := open.Load(outside)
	assert.ErrorIs(t, err, ErrMalformedData)
	assert.NotContains(t, err.Error(), "hunter2")

	atm := CSVAtmosphere{Dir: dir, Confined: true}
	_, err = atm.Load("lwir")
	require.NoError(t, err)
	_, err = atm.Load("vacuum")
	require.NoError(t, err)

	for _, id := range []string{outside, "../secrets", "sub/../../secrets.csv", "../../../../etc/hostname"} {
		_, err := atm.Load(id)
		assert.ErrorIs(t, err, ErrInvalidIdentifier, id)
	}
}

func TestReadColumnsOmitsRowText(t *testing.T) {
	_, _, err := ReadColumns(strings.NewReader("x,y\n8,0.5\ntoken,s3cr3t\n"))
	require.ErrorIs(t, err, ErrMalformedData)
	assert.Contains(t, err.Error(), "line 3")
	assert.NotContains(t, err.Error(), "s3cr3t")

	_, _, err = ReadColumns(strings.NewReader("8,0.5\n9,\"s3cr3t\n"))
	require.ErrorIs(t, err, ErrMalformedData)
	assert.NotContains(t, err.Error(), "s3cr3t")
}

func TestBlackbodySun(t *testing.T) {
	lib := NewSolarLibrary()
	sun, err := lib.Load("Blackbody-Sun")
	require.NoError(t, err)
	assert.True(t, sun.Unit().Equal(units.SpectralExitance))

	total, err := sun.Integrate(nil)
	require.NoError(t, err)
	v, err := total.In(units.Irradiance)
	require.NoError(t, err)
	assert.InEpsilon(t, 1361, v, 0.01, "solar constant")
}

func TestSolarLibraryStandards(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "e490.csv", "wavelength,irradiance\n0.5,1.9\n1,0.75\n10,0.0005\n")

	lib := NewSolarLibrary()
	require.NoError(t, lib.Register("ASTM-E490", path, units.Unit{}))
	assert.Equal(t, []string{BlackbodySun, "astm-e490"}, lib.Standards())

	c, err := lib.Load("astm-e490")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.9, 0.75, 0.0005}, c.Values())

	perNm := units.Irradiance.Div(units.Nanometer).Named("W/m^2/nm")
	require.NoError(t, lib.Register("per-nm", path, perNm))
	c, err = lib.Load("per-nm")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1900, 750, 0.5}, c.Values(), 1e-9)

	assert.ErrorIs(t, lib.Register("bad", path, units.Percent), units.ErrIncompatibleUnit)
	assert.Error(t, lib.Register(BlackbodySun, path, units.Unit{}))

	_, err = lib.Load("astm-g173")
	assert.ErrorIs(t, err, ErrNotFound)
}
