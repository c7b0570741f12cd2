package priceexport

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// legacyLayout is the timestamp format of the historical CSV exports; the
// loader still expects it.
const legacyLayout = "02/01/2006 15:04:05"

// Timestamp formats seen in the spreadsheet export, depending on how the
// cell was typed by the exporter.
var sheetLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01-02-06 15:04",
}

// ConvertToLegacyCSV rewrites an xlsx price export as a legacy-format CSV
// sibling: rows filtered to (year, month), sub-hourly rows collapsed to
// hourly means, dd/mm/yyyy timestamps and decimal-comma prices. When the
// sheet has no recognizable columns or no rows for the period, the
// conversion is skipped with a logged reason and no CSV is written; that is
// an empty month, not a failure.
func ConvertToLegacyCSV(xlsxPath string, year int, month time.Month, logger *slog.Logger) error {
	f, err := excelize.OpenFile(xlsxPath)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		logger.Warn("priceexport: workbook has no sheets", "file", xlsxPath)
		return nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return fmt.Errorf("read sheet: %w", err)
	}
	if len(rows) == 0 {
		logger.Warn("priceexport: sheet is empty", "file", xlsxPath)
		return nil
	}

	dateCol, priceCol := findColumns(rows[0])
	if dateCol < 0 || priceCol < 0 {
		logger.Warn("priceexport: no usable columns, skipping conversion",
			"file", xlsxPath, "header", rows[0])
		return nil
	}

	hours := collectHourlyMeans(rows[1:], dateCol, priceCol, year, month)
	if len(hours) == 0 {
		logger.Warn("priceexport: no rows for period, skipping conversion",
			"file", xlsxPath, "period", fmt.Sprintf("%d-%02d", year, month))
		return nil
	}

	csvPath := strings.TrimSuffix(xlsxPath, ".xlsx") + ".csv"
	if err := writeLegacyCSV(csvPath, hours); err != nil {
		return err
	}
	logger.Info("priceexport: converted export", "csv", csvPath, "hours", len(hours))
	return nil
}

// findColumns locates the timestamp and price columns by header name.
func findColumns(header []string) (dateCol, priceCol int) {
	dateCol, priceCol = -1, -1
	for i, name := range header {
		n := strings.ToLower(strings.TrimSpace(name))
		switch {
		case strings.Contains(n, "date"):
			dateCol = i
		case strings.Contains(n, "euro") || strings.Contains(n, "price"):
			priceCol = i
		}
	}
	return dateCol, priceCol
}

// collectHourlyMeans filters the data rows to (year, month) and averages
// the prices of each hour. Unparsable rows are dropped.
func collectHourlyMeans(rows [][]string, dateCol, priceCol, year int, month time.Month) map[time.Time]float64 {
	type acc struct {
		sum float64
		n   int
	}
	byHour := map[time.Time]*acc{}

	for _, row := range rows {
		if dateCol >= len(row) || priceCol >= len(row) {
			continue
		}
		dt, ok := parseSheetTime(row[dateCol])
		if !ok || dt.Year() != year || dt.Month() != month {
			continue
		}
		price, ok := parseSheetNumber(row[priceCol])
		if !ok {
			continue
		}

		hour := dt.Truncate(time.Hour)
		a := byHour[hour]
		if a == nil {
			a = &acc{}
			byHour[hour] = a
		}
		a.sum += price
		a.n++
	}

	out := make(map[time.Time]float64, len(byHour))
	for hour, a := range byHour {
		out[hour] = a.sum / float64(a.n)
	}
	return out
}

func parseSheetTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range sheetLayouts {
		if dt, err := time.Parse(layout, raw); err == nil {
			return dt, true
		}
	}
	return time.Time{}, false
}

func parseSheetNumber(raw string) (float64, bool) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func writeLegacyCSV(path string, hours map[time.Time]float64) error {
	keys := make([]time.Time, 0, len(hours))
	for hour := range hours {
		keys = append(keys, hour)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = ';'

	if err := w.Write([]string{"Date", "Euro"}); err != nil {
		return err
	}
	for _, hour := range keys {
		price := strings.ReplaceAll(strconv.FormatFloat(hours[hour], 'f', 2, 64), ".", ",")
		if err := w.Write([]string{hour.Format(legacyLayout), price}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return f.Close()
}
