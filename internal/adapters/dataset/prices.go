// Package dataset loads the Brent price and event CSV exports and derives the
// daily log-return series fed to the changepoint engine.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Column names of the price export.
const (
	ColumnDate  = "Date"
	ColumnPrice = "Price"
)

const ctxCheckEvery = 1024

// PricePoint is one daily closing price.
type PricePoint struct {
	Date  time.Time
	Price float64
}

// Prices is a date-sorted price history.
type Prices struct {
	Points []PricePoint
	// Dropped counts rows discarded because their date could not be parsed.
	Dropped int
}

// LoadPrices reads a price CSV from path.
func LoadPrices(ctx context.Context, path string) (*Prices, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadPrices(ctx, f)
}

// ReadPrices parses a price CSV with Date and Price columns. Rows whose date
// cannot be parsed are dropped; a price that is not a positive number fails
// with ErrMalformedRow.
func ReadPrices(ctx context.Context, r io.Reader) (*Prices, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrMalformedRow, err)
	}
	cols, err := columnIndex(header, ColumnDate, ColumnPrice)
	if err != nil {
		return nil, err
	}
	dateCol, priceCol := cols[0], cols[1]

	out := &Prices{}
	for line := 2; ; line++ {
		if line%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedRow, line, err)
		}
		if len(rec) <= dateCol || len(rec) <= priceCol {
			return nil, fmt.Errorf("%w: line %d has %d fields", ErrMalformedRow, line, len(rec))
		}

		date, err := ParseDate(rec[dateCol])
		if err != nil {
			out.Dropped++
			continue
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(rec[priceCol]), 64)
		if err != nil || price <= 0 || math.IsInf(price, 0) || math.IsNaN(price) {
			return nil, fmt.Errorf("%w: line %d: price %q is not a positive number", ErrMalformedRow, line, rec[priceCol])
		}
		out.Points = append(out.Points, PricePoint{Date: date, Price: price})
	}

	sort.SliceStable(out.Points, func(i, j int) bool {
		return out.Points[i].Date.Before(out.Points[j].Date)
	})
	return out, nil
}

// Len returns the number of price points.
func (p *Prices) Len() int { return len(p.Points) }

// DateAt returns the date of the i-th point.
func (p *Prices) DateAt(i int) time.Time { return p.Points[i].Date }

// Window returns the points dated within [start, end]. A zero bound is open.
func (p *Prices) Window(start, end time.Time) *Prices {
	out := &Prices{Dropped: p.Dropped}
	for _, pt := range p.Points {
		if !start.IsZero() && pt.Date.Before(start) {
			continue
		}
		if !end.IsZero() && pt.Date.After(end) {
			continue
		}
		out.Points = append(out.Points, pt)
	}
	return out
}

// LogReturns returns log(p[i]/p[i-1]) aligned with Points: element 0 is NaN
// because the first day has no predecessor.
func (p *Prices) LogReturns() []float64 {
	out := make([]float64, len(p.Points))
	if len(out) == 0 {
		return out
	}
	out[0] = math.NaN()
	for i := 1; i < len(p.Points); i++ {
		out[i] = math.Log(p.Points[i].Price / p.Points[i-1].Price)
	}
	return out
}

// WriteCSV writes the points as a Date,Price CSV with ISO dates, which
// ReadPrices reads back unchanged.
func (p *Prices) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColumnDate, ColumnPrice}); err != nil {
		return fmt.Errorf("%w: header: %w", ErrWriteFailed, err)
	}
	for _, pt := range p.Points {
		row := []string{pt.Date.Format(time.DateOnly), strconv.FormatFloat(pt.Price, 'f', -1, 64)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("%w: row %s: %w", ErrWriteFailed, row[0], err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

// Save writes the cleaned prices to path, creating parent directories. The
// file is written beside path and renamed into place.
func (p *Prices) Save(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already renamed on success

	if err := p.WriteCSV(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

func openFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// columnIndex locates each wanted column in header, ignoring case, quotes and
// surrounding whitespace.
func columnIndex(header []string, wanted ...string) ([]int, error) {
	idx := make([]int, len(wanted))
	for i, name := range wanted {
		idx[i] = -1
		for j, h := range header {
			h = strings.TrimSpace(strings.Trim(strings.TrimPrefix(h, "\ufeff"), `"`))
			if strings.EqualFold(h, name) {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}
	return idx, nil
}
