package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Loader feeds parsed rows into the database in INSERT OR IGNORE batches.
type Loader struct {
	db        *sql.DB
	batchSize int
	logger    *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithBatchSize sets how many rows are buffered per insert statement.
func WithBatchSize(n int) LoaderOption { return func(l *Loader) { l.batchSize = n } }

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) LoaderOption { return func(l *Loader) { l.logger = log } }

// NewLoader creates a Loader on an open database handle.
func NewLoader(db *sql.DB, opts ...LoaderOption) *Loader {
	l := &Loader{db: db, batchSize: 1000, logger: slog.Default()}
	for _, o := range opts {
		o(l)
	}
	return l
}

// InsertBatch inserts rows into table with a single multi-row
// INSERT OR IGNORE and returns how many were actually added (duplicates
// count as ignored, not failed). If the batch statement itself fails it
// falls back to row-at-a-time inserts, logging each row that still fails,
// so one poisoned row cannot discard its batch.
func (l *Loader) InsertBatch(ctx context.Context, table string, columns []string, rows [][]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	res, err := l.db.ExecContext(ctx, insertSQL(table, columns, len(rows)), flatten(rows)...)
	if err == nil {
		n, _ := res.RowsAffected()
		return int(n), nil
	}
	l.logger.Warn("store: batch insert failed, retrying row by row",
		"table", table, "rows", len(rows), "error", err)

	single := insertSQL(table, columns, 1)
	inserted := 0
	for _, row := range rows {
		res, err := l.db.ExecContext(ctx, single, row...)
		if err != nil {
			l.logger.Warn("store: row insert failed", "table", table, "error", err)
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, nil
}

func insertSQL(table string, columns []string, rows int) string {
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	var b strings.Builder
	b.WriteString("INSERT OR IGNORE INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES ")
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(row)
	}
	return b.String()
}

func flatten(rows [][]any) []any {
	args := make([]any, 0, len(rows)*len(rows[0]))
	for _, row := range rows {
		args = append(args, row...)
	}
	return args
}

// ProcessDirectory loads every daily JSON file under dir's year
// subdirectories into t, year by year in sorted order. Unreadable files
// and unparsable records are logged and skipped. Per year it reports how
// many records were new against the total seen.
func (l *Loader) ProcessDirectory(ctx context.Context, dir string, t Table) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		l.logger.Warn("store: directory missing, nothing to load", "dir", dir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("store: read %s: %w", dir, err)
	}

	for _, e := range entries {
		if !e.IsDir() || !isYearName(e.Name()) {
			continue
		}
		if err := l.processYear(ctx, filepath.Join(dir, e.Name()), e.Name(), t); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) processYear(ctx context.Context, yearDir, year string, t Table) error {
	files, err := jsonFiles(yearDir)
	if err != nil {
		return fmt.Errorf("store: scan %s: %w", yearDir, err)
	}

	inserted, total := 0, 0
	var batch [][]any

	flush := func() error {
		n, err := l.InsertBatch(ctx, t.Name, t.Columns, batch)
		if err != nil {
			return err
		}
		inserted += n
		batch = batch[:0]
		return nil
	}

	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			l.logger.Warn("store: cannot read file", "file", path, "error", err)
			continue
		}
		records, err := decodeRecords(data)
		if err != nil {
			l.logger.Warn("store: cannot decode file", "file", path, "error", err)
			continue
		}

		for i := range records {
			total++
			row := ParseRecord(t, &records[i])
			if row == nil {
				continue
			}
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
		l.logger.Info("store: year loaded",
			"table", t.Name, "year", year, "inserted", inserted, "total", total)
	} else {
		l.logger.Info("store: year already up to date", "table", t.Name, "year", year)
	}
	return nil
}

func jsonFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func isYearName(name string) bool {
	if len(name) != 4 {
		return false
	}
	for i := range name {
		if name[i] < '0' || name[i] > '9' {
			return false
		}
	}
	return true
}
