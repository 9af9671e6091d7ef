package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/rjboer/GoIR/internal/app"
	"github.com/rjboer/GoIR/internal/config"
	"github.com/rjboer/GoIR/internal/logging"
	"github.com/rjboer/GoIR/internal/reference"
	"github.com/rjboer/GoIR/internal/units"
)

const usage = `usage: sigdb [flags] <command> [args]

commands:
  create-schema            create the Samples and Spectra tables
  import [flags] FILE.csv  store a two-column wavelength,value CSV
  list [-limit N]          list stored spectra
`

func main() {
	if err := run(context.Background(), os.Args[1:], os.LookupEnv, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("sigdb: %v", err)
	}
}

type dbConfig struct {
	driver       string
	path         string
	mysqlUser    string
	mysqlAddr    string
	mysqlDB      string
	passwordFile string
	logLevel     string
}

func (c dbConfig) reference() config.Reference {
	return config.Reference{
		SignatureDriver: c.driver,
		SignatureDB:     c.path,
		MySQL: reference.MySQLConfig{
			User:   c.mysqlUser,
			Addr:   c.mysqlAddr,
			DBName: c.mysqlDB,
		},
		MySQLPasswordFile: c.passwordFile,
	}
}

// parseGlobal reads the connection flags and returns the remaining
// arguments, starting with the command name.
func parseGlobal(args []string, lookup config.Lookup) (dbConfig, []string, error) {
	cfg := dbConfig{}
	fs := flag.NewFlagSet("sigdb", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	fs.StringVar(&cfg.driver, "driver", config.EnvString(lookup, "SIGNATURE_DRIVER", config.DriverSQLite), "Database driver (sqlite3|mysql)")
	fs.StringVar(&cfg.path, "db", config.EnvString(lookup, "SIGNATURE_DB", "signatures.db"), "SQLite database path")
	fs.StringVar(&cfg.mysqlUser, "mysql-user", config.EnvString(lookup, "MYSQL_USER", ""), "MySQL user")
	fs.StringVar(&cfg.mysqlAddr, "mysql-addr", config.EnvString(lookup, "MYSQL_ADDR", ""), "MySQL address (host:port)")
	fs.StringVar(&cfg.mysqlDB, "mysql-db", config.EnvString(lookup, "MYSQL_DB", "ecostress"), "MySQL database name")
	fs.StringVar(&cfg.passwordFile, "mysql-password-file", config.EnvString(lookup, "MYSQL_PASSWORD_FILE", ""), "File holding the MySQL password")
	fs.StringVar(&cfg.logLevel, "log-level", config.EnvString(lookup, "LOG_LEVEL", "warn"), "Log level (debug|info|warn|error)")

	if err := fs.Parse(args); err != nil {
		return dbConfig{}, nil, err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return dbConfig{}, nil, errors.New("missing command")
	}
	return cfg, fs.Args(), nil
}

func run(ctx context.Context, args []string, lookup config.Lookup, out io.Writer) error {
	cfg, rest, err := parseGlobal(args, lookup)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.logLevel)
	if err != nil {
		return err
	}
	logger := logging.New(level, logging.Text, os.Stderr)

	db, err := app.OpenSignatureDB(cfg.reference(), units.NewSystem(), logger)
	if err != nil {
		return err
	}
	if db == nil {
		return errors.New("no signature database configured")
	}
	defer db.Close()

	switch cmd, cmdArgs := rest[0], rest[1:]; cmd {
	case "create-schema":
		if err := db.CreateSchema(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "schema ready")
		return nil
	case "import":
		return importSignature(ctx, db, cmdArgs, out)
	case "list":
		return listSignatures(ctx, db, cmdArgs, out)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func importSignature(ctx context.Context, db *reference.SignatureDB, args []string, out io.Writer) error {
	rec := reference.SignatureRecord{}
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.StringVar(&rec.Name, "name", "", "Sample name (defaults to the file base name)")
	fs.StringVar(&rec.Type, "type", "", "Sample type, e.g. manmade")
	fs.StringVar(&rec.Class, "class", "", "Sample class, e.g. paint")
	fs.StringVar(&rec.Description, "description", "", "Free-form description")
	fs.StringVar(&rec.XUnit, "x-unit", "Wavelength (micrometers)", "Wavelength column label")
	fs.StringVar(&rec.YUnit, "y-unit", "Reflectance (percent)", "Value column label")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("import needs exactly one CSV file")
	}
	path := fs.Arg(0)
	if rec.Name == "" {
		rec.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if rec.X, rec.Y, err = reference.ReadColumns(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	id, err := db.Insert(ctx, rec)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "stored %q as spectrum %d (%d values)\n", rec.Name, id, len(rec.X))
	return nil
}

func listSignatures(ctx context.Context, db *reference.SignatureDB, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	limit := fs.Int("limit", 50, "Maximum rows to print")
	if err := fs.Parse(args); err != nil {
		return err
	}

	infos, err := db.List(ctx, *limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SPECTRUM\tSAMPLE\tNAME\tTYPE\tCLASS\tRANGE\tVALUES")
	for _, info := range infos {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%g-%g\t%d\n", info.SpectrumID, info.SampleID, info.Name,
			info.Type, info.Class, info.MinWavelength, info.MaxWavelength, info.NumValues)
	}
	return tw.Flush()
}
