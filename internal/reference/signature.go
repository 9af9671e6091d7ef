// Package reference loads the external data a scene is built from: material
// reflectance signatures, atmospheric transmission and illumination spectra.
package reference

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rjboer/GoIR/internal/logging"
	"github.com/rjboer/GoIR/internal/spectral"
	"github.com/rjboer/GoIR/internal/units"
)

var (
	// ErrSignatureNotFound is returned when no spectrum matches the requested ID.
	ErrSignatureNotFound = errors.New("reference: signature not found")
	// ErrNotFound is returned for unknown atmosphere or illumination identifiers.
	ErrNotFound = errors.New("reference: data source not found")
	// ErrMalformedData reports reference data that cannot be decoded into a curve.
	ErrMalformedData = errors.New("reference: malformed data")
	// ErrInvalidIdentifier is returned for identifiers a source refuses to resolve.
	ErrInvalidIdentifier = errors.New("reference: invalid identifier")
)

// SignatureSource resolves spectral signatures by spectrum ID.
type SignatureSource interface {
	Lookup(ctx context.Context, id int) (Signature, error)
}

// Signature is a material spectrum with its catalogue metadata.
type Signature struct {
	SpectrumID  int64
	SampleID    int64
	Name        string
	Type        string
	Class       string
	Description string
	XUnit       string
	YUnit       string
	Curve       spectral.Curve
}

// SignatureInfo is the catalogue entry List returns.
type SignatureInfo struct {
	SpectrumID    int64
	SampleID      int64
	Name          string
	Type          string
	Class         string
	MinWavelength float64
	MaxWavelength float64
	NumValues     int
}

// SignatureRecord is a spectrum to store. X is in XUnit, Y in YUnit, both as
// ECOSTRESS labels such as "Wavelength (micrometers)".
type SignatureRecord struct {
	Name        string
	Type        string
	Class       string
	Description string
	XUnit       string
	YUnit       string
	X           []float64
	Y           []float64
}

const (
	sqliteCreateSamplesTmpl = `CREATE TABLE IF NOT EXISTS Samples (
		SampleID     INTEGER PRIMARY KEY AUTOINCREMENT,
		Name         TEXT NOT NULL,
		Type         TEXT,
		Class        TEXT,
		SubClass     TEXT,
		ParticleSize TEXT,
		SampleNum    TEXT,
		Owner        TEXT,
		Origin       TEXT,
		Phase        TEXT,
		Description  TEXT
	);`
	sqliteCreateSpectraTmpl = `CREATE TABLE IF NOT EXISTS Spectra (
		SpectrumID          INTEGER PRIMARY KEY AUTOINCREMENT,
		SampleID            INTEGER NOT NULL,
		SensorCalibrationID INTEGER,
		Instrument          TEXT,
		Environment         TEXT,
		Measurement         TEXT,
		XUnit               TEXT,
		YUnit               TEXT,
		MinWavelength       FLOAT,
		MaxWavelength       FLOAT,
		NumValues           INTEGER,
		XData               BLOB,
		YData               BLOB
	);`

	mysqlCreateSamplesTmpl = `CREATE TABLE IF NOT EXISTS Samples (
		SampleID     INTEGER NOT NULL PRIMARY KEY AUTO_INCREMENT,
		Name         TEXT NOT NULL,
		Type         TEXT,
		Class        TEXT,
		SubClass     TEXT,
		ParticleSize TEXT,
		SampleNum    TEXT,
		Owner        TEXT,
		Origin       TEXT,
		Phase        TEXT,
		Description  TEXT
	);`
	mysqlCreateSpectraTmpl = `CREATE TABLE IF NOT EXISTS Spectra (
		SpectrumID          INTEGER NOT NULL PRIMARY KEY AUTO_INCREMENT,
		SampleID            INTEGER NOT NULL,
		SensorCalibrationID INTEGER,
		Instrument          TEXT,
		Environment         TEXT,
		Measurement         TEXT,
		XUnit               TEXT,
		YUnit               TEXT,
		MinWavelength       DOUBLE,
		MaxWavelength       DOUBLE,
		NumValues           INTEGER,
		XData               LONGBLOB,
		YData               LONGBLOB
	);`

	insertSampleTmpl = `INSERT INTO Samples (
		Name,
		Type,
		Class,
		Description
	) VALUES (?, ?, ?, ?);`
	insertSpectrumTmpl = `INSERT INTO Spectra (
		SampleID,
		XUnit,
		YUnit,
		MinWavelength,
		MaxWavelength,
		NumValues,
		XData,
		YData
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?);`
	lookupTmpl = `SELECT Spectra.SpectrumID, Samples.SampleID, Samples.Name, Samples.Type, Samples.Class,
		Samples.Description, Spectra.XUnit, Spectra.YUnit, Spectra.XData, Spectra.YData
		FROM Samples, Spectra
		WHERE Samples.SampleID = Spectra.SampleID AND Spectra.SpectrumID = ?;`
	listTmpl = `SELECT Spectra.SpectrumID, Samples.SampleID, Samples.Name, Samples.Type, Samples.Class,
		Spectra.MinWavelength, Spectra.MaxWavelength, Spectra.NumValues
		FROM Samples, Spectra
		WHERE Samples.SampleID = Spectra.SampleID
		ORDER BY Spectra.SpectrumID
		LIMIT ?;`
)

// MySQLConfig holds the connection settings for a MySQL signature database.
type MySQLConfig struct {
	User     string `json:"user,omitempty" yaml:"user,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Addr     string `json:"addr,omitempty" yaml:"addr,omitempty"`
	DBName   string `json:"db_name,omitempty" yaml:"db_name,omitempty"`
}

// DSN renders the go-sql-driver/mysql data source name.
func (c MySQLConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = c.Addr
	cfg.DBName = c.DBName
	return cfg.FormatDSN()
}

// SignatureDB reads and writes ECOSTRESS-style Samples/Spectra tables.
type SignatureDB struct {
	db     *sql.DB
	driver string
	units  *units.System
	log    logging.Logger
}

// OpenSQLite opens (or creates) a sqlite signature database file.
func OpenSQLite(path string, sys *units.System, log logging.Logger) (*SignatureDB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite DB %q: %w", path, err)
	}
	return NewSignatureDB(db, "sqlite3", sys, log), nil
}

// OpenMySQL connects to a MySQL signature database.
func OpenMySQL(cfg MySQLConfig, sys *units.System, log logging.Logger) (*SignatureDB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to open MySQL DB %q: %w", cfg.Addr, err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	return NewSignatureDB(db, "mysql", sys, log), nil
}

// NewSignatureDB wraps an open handle. driver selects the DDL dialect.
func NewSignatureDB(db *sql.DB, driver string, sys *units.System, log logging.Logger) *SignatureDB {
	if sys == nil {
		sys = units.NewSystem()
	}
	if log == nil {
		log = logging.Noop()
	}
	return &SignatureDB{db: db, driver: driver, units: sys, log: log.With(logging.String("component", "signature-db"))}
}

// Close releases the database handle.
func (s *SignatureDB) Close() error { return s.db.Close() }

// CreateSchema creates the Samples and Spectra tables if they do not exist.
func (s *SignatureDB) CreateSchema(ctx context.Context) error {
	stmts := []string{sqliteCreateSamplesTmpl, sqliteCreateSpectraTmpl}
	if s.driver == "mysql" {
		stmts = []string{mysqlCreateSamplesTmpl, mysqlCreateSpectraTmpl}
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("unable to create table: %w", err)
		}
	}
	return nil
}

// Insert stores rec as a new sample with one spectrum and returns the spectrum ID.
func (s *SignatureDB) Insert(ctx context.Context, rec SignatureRecord) (int64, error) {
	if rec.Name == "" {
		return 0, fmt.Errorf("%w: signature needs a name", ErrMalformedData)
	}
	if len(rec.X) != len(rec.Y) || len(rec.X) < 2 {
		return 0, fmt.Errorf("%w: %d wavelengths, %d values", ErrMalformedData, len(rec.X), len(rec.Y))
	}
	if _, err := s.xFactor(rec.XUnit); err != nil {
		return 0, err
	}
	if _, err := s.yUnit(rec.YUnit); err != nil {
		return 0, err
	}
	lo, hi := rec.X[0], rec.X[0]
	for _, x := range rec.X {
		lo, hi = math.Min(lo, x), math.Max(hi, x)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, insertSampleTmpl, rec.Name, rec.Type, rec.Class, rec.Description)
	if err != nil {
		return 0, fmt.Errorf("insert sample %q: %w", rec.Name, err)
	}
	sampleID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	res, err = tx.ExecContext(ctx, insertSpectrumTmpl, sampleID, rec.XUnit, rec.YUnit, lo, hi, len(rec.X),
		encodeFloats(rec.X), encodeFloats(rec.Y))
	if err != nil {
		return 0, fmt.Errorf("insert spectrum %q: %w", rec.Name, err)
	}
	spectrumID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	s.log.Debug("signature stored", logging.String("name", rec.Name), logging.Int("spectrum_id", int(spectrumID)))
	return spectrumID, nil
}

// Lookup loads spectrum id as a curve in µm, reversing descending data.
func (s *SignatureDB) Lookup(ctx context.Context, id int) (Signature, error) {
	var (
		sig              Signature
		typ, class, desc sql.NullString
		xUnit, yUnit     sql.NullString
		xBlob, yBlob     []byte
	)
	err := s.db.QueryRowContext(ctx, lookupTmpl, id).Scan(
		&sig.SpectrumID, &sig.SampleID, &sig.Name, &typ, &class, &desc, &xUnit, &yUnit, &xBlob, &yBlob)
	if errors.Is(err, sql.ErrNoRows) {
		return Signature{}, fmt.Errorf("%w: spectrum %d", ErrSignatureNotFound, id)
	}
	if err != nil {
		return Signature{}, fmt.Errorf("lookup spectrum %d: %w", id, err)
	}
	sig.Type, sig.Class, sig.Description = typ.String, class.String, desc.String
	sig.XUnit, sig.YUnit = xUnit.String, yUnit.String

	xs, err := decodeFloats(xBlob)
	if err != nil {
		return Signature{}, fmt.Errorf("spectrum %d XData: %w", id, err)
	}
	ys, err := decodeFloats(yBlob)
	if err != nil {
		return Signature{}, fmt.Errorf("spectrum %d YData: %w", id, err)
	}
	f, err := s.xFactor(sig.XUnit)
	if err != nil {
		return Signature{}, fmt.Errorf("spectrum %d: %w", id, err)
	}
	for i := range xs {
		xs[i] *= f
	}
	yu, err := s.yUnit(sig.YUnit)
	if err != nil {
		return Signature{}, fmt.Errorf("spectrum %d: %w", id, err)
	}
	if len(xs) > 1 && xs[0] > xs[len(xs)-1] {
		reverse(xs)
		reverse(ys)
	}
	c, err := spectral.New(xs, ys, yu)
	if err != nil {
		return Signature{}, fmt.Errorf("spectrum %d (%s): %w", id, sig.Name, err)
	}
	sig.Curve = c.WithName(fmt.Sprintf("%s #%d", sig.Name, sig.SpectrumID))
	return sig, nil
}

// List returns up to limit catalogue entries ordered by spectrum ID.
func (s *SignatureDB) List(ctx context.Context, limit int) ([]SignatureInfo, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, listTmpl, limit)
	if err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	defer rows.Close()

	var out []SignatureInfo
	for rows.Next() {
		var (
			info       SignatureInfo
			typ, class sql.NullString
		)
		if err := rows.Scan(&info.SpectrumID, &info.SampleID, &info.Name, &typ, &class,
			&info.MinWavelength, &info.MaxWavelength, &info.NumValues); err != nil {
			return nil, err
		}
		info.Type, info.Class = typ.String, class.String
		out = append(out, info)
	}
	return out, rows.Err()
}

// xFactor maps an ECOSTRESS X label onto the factor that converts it to µm.
func (s *SignatureDB) xFactor(label string) (float64, error) {
	u, err := parseLabel(s.units, label, units.Micrometer)
	if err != nil {
		return 0, err
	}
	f, err := units.Factor(u, spectral.WavelengthUnit)
	if err != nil {
		return 0, fmt.Errorf("%w: X unit %q: %w", ErrMalformedData, label, err)
	}
	return f, nil
}

func (s *SignatureDB) yUnit(label string) (units.Unit, error) {
	return parseLabel(s.units, label, units.Percent)
}

// parseLabel understands "Quantity (unit words)" labels as well as plain unit
// expressions. An empty label yields def.
func parseLabel(sys *units.System, label string, def units.Unit) (units.Unit, error) {
	inner := strings.TrimSpace(label)
	if open := strings.LastIndex(inner, "("); open >= 0 && strings.HasSuffix(inner, ")") {
		inner = strings.TrimSpace(inner[open+1 : len(inner)-1])
	}
	switch strings.ToLower(inner) {
	case "":
		return def, nil
	case "micrometers", "micrometer", "microns", "micron":
		return units.Micrometer, nil
	case "nanometers", "nanometer":
		return units.Nanometer, nil
	case "percent", "percentage":
		return units.Percent, nil
	case "fraction", "unitless", "dimensionless":
		return units.Dimensionless, nil
	}
	u, err := sys.Parse(inner)
	if err != nil {
		return units.Unit{}, fmt.Errorf("%w: unit label %q: %w", ErrMalformedData, label, err)
	}
	return u, nil
}

// encodeFloats packs values as little-endian float32, the ECOSTRESS blob layout.
func encodeFloats(values []float64) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(v)))
	}
	return buf
}

func decodeFloats(buf []byte) ([]float64, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("%w: blob length %d is not a multiple of 4", ErrMalformedData, len(buf))
	}
	out := make([]float64, len(buf)/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:])))
	}
	return out, nil
}

func reverse(v []float64) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
}
