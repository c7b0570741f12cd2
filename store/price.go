package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// PriceColumns are the loadable columns of tbl_belpex_prices.
var PriceColumns = []string{
	"datetime", "year", "month", "day", "weekday", "hour", "price_eur_per_mwh",
}

// belpexLayout is the timestamp format of the Elexys CSV export.
const belpexLayout = "02/01/2006 15:04:05"

// Everything that is not a digit, decimal separator or sign. The export
// prefixes prices with a currency glyph in a legacy encoding, so the value
// is scrubbed byte-wise before parsing.
var nonNumeric = regexp.MustCompile(`[^0-9,.\-]`)

// ParsePrice turns an Elexys "Euro" cell into a float, stripping currency
// glyphs and normalizing the decimal comma.
func ParsePrice(raw string) (float64, error) {
	cleaned := strings.ReplaceAll(nonNumeric.ReplaceAllString(raw, ""), ",", ".")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("store: price %q: %w", raw, err)
	}
	return v, nil
}

// ProcessPriceDir loads every Belpex CSV in dir. Files use a semicolon
// separator with Date and Euro columns. Rows that fail to parse are logged
// and skipped, as is any file without the expected header.
func (l *Loader) ProcessPriceDir(ctx context.Context, dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return fmt.Errorf("store: scan %s: %w", dir, err)
	}
	sort.Strings(files)

	inserted, total := 0, 0
	var batch [][]any

	flush := func() error {
		n, err := l.InsertBatch(ctx, "tbl_belpex_prices", PriceColumns, batch)
		if err != nil {
			return err
		}
		inserted += n
		batch = batch[:0]
		return nil
	}

	for _, path := range files {
		rows, n, err := l.readPriceFile(path)
		total += n
		if err != nil {
			l.logger.Warn("store: skipping price file", "file", path, "error", err)
			continue
		}
		for _, row := range rows {
			batch = append(batch, row)
			if len(batch) >= l.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	if len(batch) > 0 {
		if err := flush(); err != nil {
			return err
		}
	}

	if inserted > 0 {
		l.logger.Info("store: prices loaded", "inserted", inserted, "total", total)
	} else {
		l.logger.Info("store: prices already up to date")
	}
	return nil
}

// readPriceFile parses one export, returning the loadable rows and the
// number of data rows seen.
func (l *Loader) readPriceFile(path string) ([][]any, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = ';'
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	dateCol, euroCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "Date":
			dateCol = i
		case "Euro":
			euroCol = i
		}
	}
	if dateCol < 0 || euroCol < 0 {
		return nil, 0, fmt.Errorf("header %v lacks Date/Euro columns", header)
	}

	var rows [][]any
	total := 0
	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		total++
		if dateCol >= len(rec) || euroCol >= len(rec) {
			l.logger.Warn("store: short price row", "file", path, "row", total)
			continue
		}

		dt, err := time.Parse(belpexLayout, rec[dateCol])
		if err != nil {
			l.logger.Warn("store: bad price timestamp", "file", path, "value", rec[dateCol])
			continue
		}
		price, err := ParsePrice(rec[euroCol])
		if err != nil {
			l.logger.Warn("store: bad price value", "file", path, "value", rec[euroCol])
			continue
		}

		ts := stampOf(dt)
		rows = append(rows, []any{
			ts.text, ts.year, ts.month, ts.day, ts.weekday, ts.hour, price,
		})
	}
	return rows, total, nil
}
