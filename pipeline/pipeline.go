package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/powerlog-be/powerlog/archive"
	"github.com/powerlog-be/powerlog/config"
	"github.com/powerlog-be/powerlog/harvest"
	"github.com/powerlog-be/powerlog/priceexport"
	"github.com/powerlog-be/powerlog/retry"
	"github.com/powerlog-be/powerlog/safeget"
	"github.com/powerlog-be/powerlog/store"
)

// dataset binds a Kind to its fetch function and archive location.
type dataset struct {
	label        string
	dir          string
	archiveLabel string // empty for kinds without zip bundles
	fetch        func(ctx context.Context, year int, month time.Month) error
}

// Orchestrator drives the full refresh cycle over the configured datasets.
type Orchestrator struct {
	cfg      *config.Config
	archives *archive.Manager
	logger   *slog.Logger
	now      func() time.Time

	datasets map[Kind]dataset
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithNow substitutes the clock used for the fetch window, for tests.
func WithNow(fn func() time.Time) Option { return func(o *Orchestrator) { o.now = fn } }

// WithArchiveManager replaces the archive manager.
func WithArchiveManager(m *archive.Manager) Option {
	return func(o *Orchestrator) { o.archives = m }
}

// WithDataset overrides one dataset binding; tests use it to substitute
// fetch functions.
func WithDataset(k Kind, label, dir, archiveLabel string,
	fetch func(ctx context.Context, year int, month time.Month) error) Option {
	return func(o *Orchestrator) {
		o.datasets[k] = dataset{label: label, dir: dir, archiveLabel: archiveLabel, fetch: fetch}
	}
}

// NewOrchestrator wires harvester, exporter and archive manager from cfg.
func NewOrchestrator(cfg *config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
		datasets: map[Kind]dataset{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.archives == nil {
		o.archives = archive.NewManager(archive.WithLogger(o.logger))
	}

	policy := retry.Policy{
		Tries:   cfg.Tries,
		Delay:   cfg.RetryDelay,
		Backoff: cfg.RetryBackoff,
		Logger:  o.logger,
	}

	_, haveWind := o.datasets[Wind]
	_, haveSolar := o.datasets[Solar]
	if !haveWind || !haveSolar {
		client := safeget.New(
			safeget.WithTimeout(cfg.HTTPTimeout),
			safeget.WithTries(cfg.Tries),
			safeget.WithDelay(cfg.RetryDelay),
			safeget.WithLogger(o.logger),
		)
		harvester := harvest.New(client,
			harvest.WithPageSize(cfg.PageSize),
			harvest.WithRetryPolicy(policy),
			harvest.WithLogger(o.logger),
		)

		if !haveWind {
			ds := harvest.Dataset{BaseURL: cfg.WindURL, Dir: cfg.WindDir(), Prefix: "WindForecast_Elia"}
			o.datasets[Wind] = dataset{
				label: "wind", dir: ds.Dir, archiveLabel: "WindForecast",
				fetch: func(ctx context.Context, year int, month time.Month) error {
					return harvester.ImportMonth(ctx, ds, year, month)
				},
			}
		}
		if !haveSolar {
			ds := harvest.Dataset{
				BaseURL: cfg.SolarURL, Dir: cfg.SolarDir(), Prefix: "SolarForecast_Elia",
				Refine: []string{`region:"Belgium"`},
			}
			o.datasets[Solar] = dataset{
				label: "solar", dir: ds.Dir, archiveLabel: "SolarForecast",
				fetch: func(ctx context.Context, year int, month time.Month) error {
					return harvester.ImportMonth(ctx, ds, year, month)
				},
			}
		}
	}
	if _, ok := o.datasets[Price]; !ok {
		exporter := priceexport.New(cfg.BelpexDir(),
			priceexport.WithPageURL(cfg.ExportURL),
			priceexport.WithRetryPolicy(policy),
			priceexport.WithLogger(o.logger),
		)
		o.datasets[Price] = dataset{
			label: "belpex", dir: cfg.BelpexDir(),
			fetch: exporter.Export,
		}
	}
	return o
}

// Update refreshes the selected kinds for the years fromYear..toYear.
// Forecast archives are expanded up front so already-fetched days are seen,
// every fetchable (year, month, kind) is imported with per-period error
// isolation, and forecast archives are compacted again at the end. When not
// a single period succeeded it reports "no data available".
func (o *Orchestrator) Update(ctx context.Context, fromYear, toYear int, kinds []Kind) error {
	window := ComputeWindow(o.now())
	o.logger.Info("pipeline: starting update",
		"from", fromYear, "to", toYear,
		"latest", fmt.Sprintf("%d-%02d", window.LatestYear, window.LatestMonth))

	for _, k := range kinds {
		ds := o.datasets[k]
		if ds.archiveLabel == "" {
			continue
		}
		if err := o.archives.ExpandAll(ds.dir); err != nil {
			return fmt.Errorf("pipeline: expand %s: %w", ds.label, err)
		}
	}

	fetched := 0
	for year := fromYear; year <= toYear; year++ {
		for month := time.January; month <= time.December; month++ {
			if !window.Contains(year, month) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			for _, k := range kinds {
				ds := o.datasets[k]
				if err := ds.fetch(ctx, year, month); err != nil {
					o.logger.Error("pipeline: period failed",
						"kind", ds.label, "year", year, "month", int(month), "error", err)
					continue
				}
				fetched++
			}
		}
	}
	if fetched == 0 {
		o.logger.Warn("pipeline: no data available",
			"from", fromYear, "to", toYear)
	}

	for _, k := range kinds {
		ds := o.datasets[k]
		if ds.archiveLabel == "" {
			continue
		}
		if err := o.archives.Compact(ds.dir, ds.archiveLabel); err != nil {
			return fmt.Errorf("pipeline: compact %s: %w", ds.label, err)
		}
	}
	return nil
}

// Load ingests the archive trees of the selected kinds into db. Kinds fail
// independently; the joined error reports every failed kind.
func (o *Orchestrator) Load(ctx context.Context, db *sql.DB, kinds []Kind) error {
	loader := store.NewLoader(db,
		store.WithBatchSize(o.cfg.BatchSize),
		store.WithLogger(o.logger),
	)

	var errs []error
	for _, k := range kinds {
		ds := o.datasets[k]
		o.logger.Info("pipeline: loading", "kind", ds.label, "dir", ds.dir)

		var err error
		switch k {
		case Wind:
			err = loader.ProcessDirectory(ctx, ds.dir, store.Wind)
		case Solar:
			err = loader.ProcessDirectory(ctx, ds.dir, store.Solar)
		case Price:
			err = loader.ProcessPriceDir(ctx, ds.dir)
		}
		if err != nil {
			o.logger.Error("pipeline: load failed", "kind", ds.label, "error", err)
			errs = append(errs, fmt.Errorf("load %s: %w", ds.label, err))
		}
	}
	return errors.Join(errs...)
}
