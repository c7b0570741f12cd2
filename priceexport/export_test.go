package priceexport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/powerlog-be/powerlog/retry"
	"github.com/xuri/excelize/v2"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestDateRange(t *testing.T) {
	cases := []struct {
		year        int
		month       time.Month
		from, until string
	}{
		{2024, time.March, "29/02/2024", "01/04/2024"},
		{2024, time.January, "31/12/2023", "01/02/2024"},
		{2023, time.December, "30/11/2023", "01/01/2024"},
	}
	for _, c := range cases {
		from, until := DateRange(c.year, c.month)
		if from != c.from || until != c.until {
			t.Fatalf("DateRange(%d, %v) = (%q, %q), want (%q, %q)",
				c.year, c.month, from, until, c.from, c.until)
		}
	}
}

// fakePage scripts the browser: it records every call and drops the
// download file when the export control is clicked.
type fakePage struct {
	t           *testing.T
	downloadDir string
	downloadExt string
	calls       []string
	failClickOn string
	closed      bool
}

func (p *fakePage) record(call string) { p.calls = append(p.calls, call) }

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.record("navigate " + url)
	return nil
}

func (p *fakePage) WaitVisible(_ context.Context, sel string) error {
	p.record("wait " + sel)
	return nil
}

func (p *fakePage) SetField(_ context.Context, sel, value string) error {
	p.record("set " + sel + "=" + value)
	return nil
}

func (p *fakePage) Click(_ context.Context, sel string) error {
	p.record("click " + sel)
	if sel == p.failClickOn {
		return errors.New("element detached")
	}
	if sel == selCSVExport && p.downloadExt != "" {
		path := filepath.Join(p.downloadDir, downloadStem+p.downloadExt)
		if err := os.WriteFile(path, []byte("Date;Euro\n01/03/2024 00:00:00;50,00\n"), 0o644); err != nil {
			p.t.Fatal(err)
		}
	}
	return nil
}

func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

func newExporter(dir string, page *fakePage, tries int) *Exporter {
	return New(dir,
		WithLogger(quiet()),
		WithSleep(func(time.Duration) {}),
		WithRetryPolicy(retry.Policy{Tries: tries, Logger: quiet(), Sleep: func(time.Duration) {}}),
		WithPageFactory(func(context.Context, string) (Page, error) { return page, nil }),
		WithPageURL("https://example.test/belpex"),
	)
}

func TestExportHappyPath(t *testing.T) {
	dir := t.TempDir()
	page := &fakePage{t: t, downloadDir: dir, downloadExt: ".csv"}

	e := newExporter(dir, page, 1)
	if err := e.Export(context.Background(), 2024, time.March); err != nil {
		t.Fatalf("Export: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "Belpex_202403.csv")); err != nil {
		t.Fatalf("renamed export missing: %v", err)
	}
	if !page.closed {
		t.Fatal("session not closed after success")
	}

	// Form values and click order follow the page flow.
	want := []string{
		"navigate https://example.test/belpex",
		"wait " + selFromField,
		"set " + selFromField + "=29/02/2024",
		"set " + selUntilField + "=01/04/2024",
		"click " + selShowButton,
		"wait " + selResultsGrid,
		"click " + selCSVExport,
	}
	if len(page.calls) != len(want) {
		t.Fatalf("calls = %q, want %q", page.calls, want)
	}
	for i := range want {
		if page.calls[i] != want[i] {
			t.Fatalf("call[%d] = %q, want %q", i, page.calls[i], want[i])
		}
	}
}

func TestExportBypassedWhenFilePresent(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Belpex_202403.csv"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	page := &fakePage{t: t, downloadDir: dir}
	e := newExporter(dir, page, 1)
	if err := e.Export(context.Background(), 2024, time.March); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(page.calls) != 0 {
		t.Fatalf("browser was driven despite existing export: %q", page.calls)
	}
}

func TestExportDeletesStaleDownload(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, downloadStem+".csv")
	if err := os.WriteFile(stale, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	page := &fakePage{t: t, downloadDir: dir, downloadExt: ".csv"}
	e := newExporter(dir, page, 1)
	if err := e.Export(context.Background(), 2024, time.March); err != nil {
		t.Fatalf("Export: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "Belpex_202403.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) == "stale" {
		t.Fatal("stale download was renamed as this period's data")
	}
}

func TestExportMissingDownloadFails(t *testing.T) {
	dir := t.TempDir()
	// Export click succeeds but no file ever lands.
	page := &fakePage{t: t, downloadDir: dir}

	e := newExporter(dir, page, 2)
	err := e.Export(context.Background(), 2024, time.March)
	if err == nil {
		t.Fatal("Export succeeded without a download")
	}
	if !errors.Is(err, ErrDownloadMissing) {
		t.Fatalf("error = %v, want ErrDownloadMissing", err)
	}
	if !page.closed {
		t.Fatal("session not closed after failure")
	}
}

func TestExportUIFailureClosesSession(t *testing.T) {
	dir := t.TempDir()
	page := &fakePage{t: t, downloadDir: dir, failClickOn: selShowButton}

	e := newExporter(dir, page, 1)
	err := e.Export(context.Background(), 2024, time.March)
	if err == nil {
		t.Fatal("Export succeeded despite click failure")
	}
	if !page.closed {
		t.Fatal("session not closed after UI failure")
	}
}

func TestExportConvertsSpreadsheetDownload(t *testing.T) {
	dir := t.TempDir()
	// The plain fake drops a text file; the xlsx path needs a real workbook
	// under the generic download name.
	page := &plantingPage{
		fakePage: &fakePage{t: t, downloadDir: dir},
		plant: func() {
			writeWorkbook(t, filepath.Join(dir, downloadStem+".xlsx"), [][]any{
				{"Date", "Euro"},
				{"01/03/2024 00:00:00", "50,0"},
				{"01/03/2024 00:30:00", "70,0"},
			})
		},
	}

	e := New(dir,
		WithLogger(quiet()),
		WithSleep(func(time.Duration) {}),
		WithRetryPolicy(retry.Policy{Tries: 1, Logger: quiet(), Sleep: func(time.Duration) {}}),
		WithPageURL("https://example.test/belpex"),
		WithPageFactory(func(context.Context, string) (Page, error) { return page, nil }),
	)

	if err := e.Export(context.Background(), 2024, time.March); err != nil {
		t.Fatalf("Export: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "Belpex_202403.csv"))
	if err != nil {
		t.Fatalf("converted csv missing: %v", err)
	}
	if !strings.Contains(string(data), "01/03/2024 00:00:00;60,00") {
		t.Fatalf("csv lacks hourly mean row:\n%s", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "Belpex_202403.xlsx")); err != nil {
		t.Fatalf("renamed workbook missing: %v", err)
	}
}

// plantingPage is a fakePage that plants a download on the export click.
type plantingPage struct {
	*fakePage
	plant func()
}

func (p *plantingPage) Click(ctx context.Context, sel string) error {
	if err := p.fakePage.Click(ctx, sel); err != nil {
		return err
	}
	if sel == selCSVExport {
		p.plant()
	}
	return nil
}

func writeWorkbook(t *testing.T, path string, rows [][]any) {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
}
