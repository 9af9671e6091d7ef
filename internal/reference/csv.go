package reference

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rjboer/GoIR/internal/spectral"
	"github.com/rjboer/GoIR/internal/units"
)

// ReadColumns reads a two-column numeric CSV (wavelength, value). A leading
// header row such as "x,y" is skipped; extra columns are ignored. Rows are
// returned in file order.
func ReadColumns(r io.Reader) (xs, ys []float64, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrMalformedData, csvError(err))
		}
		if len(rec) < 2 {
			return nil, nil, fmt.Errorf("%w: line %d has %d columns, need 2", ErrMalformedData, line, len(rec))
		}
		x, errX := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		y, errY := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if errX != nil || errY != nil {
			if line == 1 {
				continue
			}
			return nil, nil, fmt.Errorf("%w: line %d: non-numeric value", ErrMalformedData, line)
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}
	if len(xs) < 2 {
		return nil, nil, fmt.Errorf("%w: need at least 2 rows, got %d", ErrMalformedData, len(xs))
	}
	return xs, ys, nil
}

// ReadCurve reads a two-column CSV into a curve with wavelengths in µm and
// values in unit. Descending files are reversed.
func ReadCurve(r io.Reader, name string, unit units.Unit) (spectral.Curve, error) {
	xs, ys, err := ReadColumns(r)
	if err != nil {
		return spectral.Curve{}, fmt.Errorf("%s: %w", name, err)
	}
	if xs[0] > xs[len(xs)-1] {
		reverse(xs)
		reverse(ys)
	}
	c, err := spectral.New(xs, ys, unit)
	if err != nil {
		return spectral.Curve{}, fmt.Errorf("%s: %w", name, err)
	}
	return c.WithName(name), nil
}

// csvError drops the offending record text from csv parse errors.
func csvError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return fmt.Errorf("line %d, column %d: %v", pe.Line, pe.Column, pe.Err)
	}
	return err
}
