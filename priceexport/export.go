// Package priceexport pulls monthly Belpex spot prices out of the Elexys
// market site. The site has no API for this, so a headless browser fills
// the date form, triggers the grid export and waits for the download. The
// flow is modeled as an explicit state machine; the UI is the fragile part,
// and named states make a failed run tell exactly how far it got.
package priceexport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/powerlog-be/powerlog/retry"
)

// ErrDownloadMissing marks an export run where every UI step succeeded but
// the file never appeared in the download directory.
var ErrDownloadMissing = errors.New("download missing")

// ExportURL is the Elexys Belpex spot price page.
const ExportURL = "https://my.elexys.be/MarketInformation/SpotBelpex.aspx"

// Element IDs of the ASP.NET export form.
const (
	selFromField   = "#contentPlaceHolder_fromASPxDateEdit_I"
	selUntilField  = "#contentPlaceHolder_untilASPxDateEdit_I"
	selShowButton  = "#contentPlaceHolder_refreshBelpexCustomButton_I"
	selResultsGrid = "#contentPlaceHolder_belpexFilterGrid_DXMainTable"
	selCSVExport   = "#ctl00_contentPlaceHolder_GridViewExportUserControl1_csvExport"
)

// downloadStem is the fixed name the site gives every export; the file is
// renamed to its period-stamped name once the download lands.
const downloadStem = "BelpexFilter"

var downloadExts = []string{".csv", ".xlsx"}

// State is one step of the export flow.
type State int

const (
	Idle State = iota
	PageLoaded
	FormFilled
	ExportTriggered
	FileDownloaded
	Renamed
	Done
	Failed
)

var stateNames = [...]string{
	"Idle", "PageLoaded", "FormFilled", "ExportTriggered",
	"FileDownloaded", "Renamed", "Done", "Failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Page is the slice of browser behaviour the state machine needs. The
// production implementation is a rod session; tests drive the machine with
// a scripted fake.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string) error
	SetField(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Close() error
}

// PageFactory opens a fresh browser page whose downloads land in dir.
type PageFactory func(ctx context.Context, dir string) (Page, error)

// Exporter downloads one month of Belpex prices per Export call.
type Exporter struct {
	pageURL     string
	downloadDir string
	newPage     PageFactory
	policy      retry.Policy
	settle      time.Duration
	sleep       func(time.Duration)
	logger      *slog.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithPageURL overrides the export page URL.
func WithPageURL(u string) Option { return func(e *Exporter) { e.pageURL = u } }

// WithPageFactory replaces the browser session factory.
func WithPageFactory(f PageFactory) Option { return func(e *Exporter) { e.newPage = f } }

// WithRetryPolicy sets the policy wrapped around a whole export run.
func WithRetryPolicy(p retry.Policy) Option { return func(e *Exporter) { e.policy = p } }

// WithSettleDelay sets the fixed wait after the grid renders and again
// after the export click, covering render jitter and download completion.
func WithSettleDelay(d time.Duration) Option { return func(e *Exporter) { e.settle = d } }

// WithSleep substitutes the sleep function, for tests.
func WithSleep(fn func(time.Duration)) Option { return func(e *Exporter) { e.sleep = fn } }

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option { return func(e *Exporter) { e.logger = l } }

// New creates an Exporter saving downloads under downloadDir.
func New(downloadDir string, opts ...Option) *Exporter {
	e := &Exporter{
		pageURL:     ExportURL,
		downloadDir: downloadDir,
		newPage:     NewSessionPage,
		policy:      retry.Policy{Tries: 3, Delay: 5 * time.Second, Backoff: 2},
		settle:      5 * time.Second,
		sleep:       time.Sleep,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Export obtains the price file for (year, month) as Belpex_<YYYYMM>.csv
// (or .xlsx, converted to a CSV sibling). If the period's file already
// exists the browser is never started. A leftover generic download from an
// earlier failed run is deleted before the first attempt. The whole run is
// retried with backoff; the browser session is closed on every exit path.
func (e *Exporter) Export(ctx context.Context, year int, month time.Month) error {
	stem := fmt.Sprintf("Belpex_%d%02d", year, month)
	for _, ext := range downloadExts {
		if _, err := os.Stat(filepath.Join(e.downloadDir, stem+ext)); err == nil {
			return nil
		}
	}

	if err := os.MkdirAll(e.downloadDir, 0o755); err != nil {
		return fmt.Errorf("priceexport: mkdir %s: %w", e.downloadDir, err)
	}
	e.clearStaleDownloads()

	label := fmt.Sprintf("belpex export %d-%02d", year, month)
	return e.policy.Do(label, func() error {
		return e.run(ctx, year, month, stem)
	})
}

// clearStaleDownloads removes generic downloads a previous failed run left
// behind; a stale file would otherwise be renamed as this period's data.
func (e *Exporter) clearStaleDownloads() {
	for _, ext := range downloadExts {
		path := filepath.Join(e.downloadDir, downloadStem+ext)
		if err := os.Remove(path); err == nil {
			e.logger.Warn("priceexport: removed stale download", "file", filepath.Base(path))
		}
	}
}

func (e *Exporter) run(ctx context.Context, year int, month time.Month, stem string) error {
	page, err := e.newPage(ctx, e.downloadDir)
	if err != nil {
		return fmt.Errorf("priceexport: open session: %w", err)
	}
	defer page.Close()

	job := &exportJob{exp: e, page: page, year: year, month: month, stem: stem}

	state := Idle
	for {
		next, err := job.step(ctx, state)
		if err != nil {
			job.cause = err
			next = Failed
		}
		e.logger.Debug("priceexport: transition", "from", state, "to", next)
		state = next

		switch state {
		case Done:
			return nil
		case Failed:
			return fmt.Errorf("priceexport: %d-%02d failed: %w", year, month, job.cause)
		}
	}
}

// exportJob is one pass through the state machine.
type exportJob struct {
	exp   *Exporter
	page  Page
	year  int
	month time.Month
	stem  string

	download string // generic download path, set by awaitDownload
	renamed  string // period-stamped path, set by renameDownload
	cause    error
}

// step runs the single transition out of state s.
func (j *exportJob) step(ctx context.Context, s State) (State, error) {
	switch s {
	case Idle:
		return j.loadPage(ctx)
	case PageLoaded:
		return j.fillForm(ctx)
	case FormFilled:
		return j.triggerExport(ctx)
	case ExportTriggered:
		return j.awaitDownload()
	case FileDownloaded:
		return j.renameDownload()
	case Renamed:
		return j.convert()
	default:
		return Failed, fmt.Errorf("no transition out of %s", s)
	}
}

func (j *exportJob) loadPage(ctx context.Context) (State, error) {
	if err := j.page.Navigate(ctx, j.exp.pageURL); err != nil {
		return Failed, fmt.Errorf("navigate: %w", err)
	}
	if err := j.page.WaitVisible(ctx, selFromField); err != nil {
		return Failed, fmt.Errorf("date form never appeared: %w", err)
	}
	return PageLoaded, nil
}

func (j *exportJob) fillForm(ctx context.Context) (State, error) {
	from, until := DateRange(j.year, j.month)
	j.exp.logger.Info("priceexport: filling date range", "from", from, "until", until)

	if err := j.page.SetField(ctx, selFromField, from); err != nil {
		return Failed, fmt.Errorf("set from date: %w", err)
	}
	if err := j.page.SetField(ctx, selUntilField, until); err != nil {
		return Failed, fmt.Errorf("set until date: %w", err)
	}
	return FormFilled, nil
}

func (j *exportJob) triggerExport(ctx context.Context) (State, error) {
	if err := j.page.Click(ctx, selShowButton); err != nil {
		return Failed, fmt.Errorf("show data: %w", err)
	}
	if err := j.page.WaitVisible(ctx, selResultsGrid); err != nil {
		return Failed, fmt.Errorf("results grid never appeared: %w", err)
	}
	// The grid keeps re-rendering briefly after it first appears.
	j.exp.sleep(j.exp.settle)

	if err := j.page.Click(ctx, selCSVExport); err != nil {
		return Failed, fmt.Errorf("export click: %w", err)
	}
	return ExportTriggered, nil
}

// awaitDownload gives the browser a fixed window to finish writing the
// file; there is no completion event to hook on this page.
func (j *exportJob) awaitDownload() (State, error) {
	j.exp.sleep(j.exp.settle)

	for _, ext := range downloadExts {
		path := filepath.Join(j.exp.downloadDir, downloadStem+ext)
		if _, err := os.Stat(path); err == nil {
			j.download = path
			return FileDownloaded, nil
		}
	}
	return Failed, fmt.Errorf("%w after %s", ErrDownloadMissing, j.exp.settle)
}

func (j *exportJob) renameDownload() (State, error) {
	target := filepath.Join(j.exp.downloadDir, j.stem+filepath.Ext(j.download))
	if err := os.Rename(j.download, target); err != nil {
		return Failed, fmt.Errorf("rename download: %w", err)
	}
	j.renamed = target
	j.exp.logger.Info("priceexport: download saved", "file", filepath.Base(target))
	return Renamed, nil
}

// convert bridges the site's newer spreadsheet export back to the legacy
// CSV layout the loader reads. Legacy CSV downloads pass straight through.
func (j *exportJob) convert() (State, error) {
	if filepath.Ext(j.renamed) != ".xlsx" {
		return Done, nil
	}
	if err := ConvertToLegacyCSV(j.renamed, j.year, j.month, j.exp.logger); err != nil {
		return Failed, fmt.Errorf("convert %s: %w", filepath.Base(j.renamed), err)
	}
	return Done, nil
}
