package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/powerlog-be/powerlog/config"
	"github.com/powerlog-be/powerlog/store"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestComputeWindow(t *testing.T) {
	cases := []struct {
		today time.Time
		year  int
		month time.Month
	}{
		// After the 4th the previous month is complete.
		{time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC), 2024, time.May},
		{time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), 2024, time.May},
		// Up to and including the 4th the cutoff moves back one more.
		{time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC), 2024, time.April},
		// Year rollovers.
		{time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), 2023, time.December},
		{time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), 2023, time.November},
		{time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC), 2023, time.December},
	}
	for _, c := range cases {
		w := ComputeWindow(c.today)
		if w.LatestYear != c.year || w.LatestMonth != c.month {
			t.Fatalf("ComputeWindow(%v) = %d-%02d, want %d-%02d",
				c.today.Format("2006-01-02"), w.LatestYear, w.LatestMonth, c.year, c.month)
		}
	}
}

func TestWindowContains(t *testing.T) {
	w := Window{LatestYear: 2024, LatestMonth: time.May}
	if !w.Contains(2023, time.December) {
		t.Fatal("earlier year must be contained")
	}
	if !w.Contains(2024, time.May) {
		t.Fatal("latest month itself must be contained")
	}
	if w.Contains(2024, time.June) {
		t.Fatal("month past the cutoff must not be contained")
	}
	if w.Contains(2025, time.January) {
		t.Fatal("later year must not be contained")
	}
}

func TestParseSelection(t *testing.T) {
	kinds, err := ParseSelection("all")
	if err != nil {
		t.Fatal(err)
	}
	if len(kinds) != 3 {
		t.Fatalf("all = %v, want three kinds", kinds)
	}

	kinds, err = ParseSelection("Belpex")
	if err != nil {
		t.Fatal(err)
	}
	if len(kinds) != 1 || kinds[0] != Price {
		t.Fatalf("belpex = %v, want [Price]", kinds)
	}

	if _, err := ParseSelection("nuclear"); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("err = %v, want ErrInvalidKind", err)
	}
}

// fetchRecorder collects the periods a dataset was asked to fetch.
type fetchRecorder struct {
	periods []string
	fail    map[string]error
}

func (r *fetchRecorder) fetch(_ context.Context, year int, month time.Month) error {
	p := fmt.Sprintf("%d-%02d", year, month)
	r.periods = append(r.periods, p)
	if err := r.fail[p]; err != nil {
		return err
	}
	return nil
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	return &cfg
}

func newTestOrchestrator(cfg *config.Config, wind, solar, price *fetchRecorder, now time.Time) *Orchestrator {
	return NewOrchestrator(cfg,
		WithLogger(quiet()),
		WithNow(func() time.Time { return now }),
		WithDataset(Wind, "wind", cfg.WindDir(), "WindForecast", wind.fetch),
		WithDataset(Solar, "solar", cfg.SolarDir(), "SolarForecast", solar.fetch),
		WithDataset(Price, "belpex", cfg.BelpexDir(), "", price.fetch),
	)
}

func TestUpdateRespectsWindow(t *testing.T) {
	cfg := testConfig(t)
	wind := &fetchRecorder{}
	solar := &fetchRecorder{}
	price := &fetchRecorder{}
	// March 3rd: cutoff is January, so February is out of reach.
	o := newTestOrchestrator(cfg, wind, solar, price, time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC))

	if err := o.Update(context.Background(), 2024, 2024, []Kind{Wind, Solar, Price}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	for name, r := range map[string]*fetchRecorder{"wind": wind, "solar": solar, "price": price} {
		if len(r.periods) != 1 || r.periods[0] != "2024-01" {
			t.Fatalf("%s fetched %v, want [2024-01]", name, r.periods)
		}
	}
}

func TestUpdateIsolatesPeriodFailures(t *testing.T) {
	cfg := testConfig(t)
	wind := &fetchRecorder{fail: map[string]error{"2023-02": errors.New("upstream down")}}
	solar := &fetchRecorder{}
	price := &fetchRecorder{}
	o := newTestOrchestrator(cfg, wind, solar, price, time.Date(2023, 5, 10, 0, 0, 0, 0, time.UTC))

	if err := o.Update(context.Background(), 2023, 2023, []Kind{Wind}); err != nil {
		t.Fatalf("Update must absorb per-period errors, got %v", err)
	}
	// January through April attempted despite February failing.
	want := []string{"2023-01", "2023-02", "2023-03", "2023-04"}
	if len(wind.periods) != len(want) {
		t.Fatalf("periods = %v, want %v", wind.periods, want)
	}
	for i := range want {
		if wind.periods[i] != want[i] {
			t.Fatalf("periods = %v, want %v", wind.periods, want)
		}
	}
}

func TestUpdateCompactsForecastArchives(t *testing.T) {
	cfg := testConfig(t)
	wind := &fetchRecorder{}
	solar := &fetchRecorder{}
	price := &fetchRecorder{}
	o := newTestOrchestrator(cfg, wind, solar, price, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))

	// Simulate a harvested day so Compact has something to bundle.
	yearDir := filepath.Join(cfg.WindDir(), "2024")
	if err := os.MkdirAll(yearDir, 0o755); err != nil {
		t.Fatal(err)
	}
	day := filepath.Join(yearDir, "WindForecast_Elia_20240101.json")
	if err := os.WriteFile(day, []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := o.Update(context.Background(), 2024, 2024, []Kind{Wind, Price}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if _, err := os.Stat(filepath.Join(cfg.WindDir(), "WindForecast_2024.zip")); err != nil {
		t.Fatalf("wind bundle missing after update: %v", err)
	}
	// Price has no archive tree; no bundle should appear.
	bundles, _ := filepath.Glob(filepath.Join(cfg.BelpexDir(), "*.zip"))
	if len(bundles) != 0 {
		t.Fatalf("unexpected bundles in price dir: %v", bundles)
	}
}

func TestLoadIsolatesKinds(t *testing.T) {
	cfg := testConfig(t)
	wind := &fetchRecorder{}
	solar := &fetchRecorder{}
	price := &fetchRecorder{}
	o := newTestOrchestrator(cfg, wind, solar, price, time.Now())

	// One loadable solar day; wind dir left missing, price dir empty.
	yearDir := filepath.Join(cfg.SolarDir(), "2024")
	if err := os.MkdirAll(yearDir, 0o755); err != nil {
		t.Fatal(err)
	}
	body := `[{"datetime": "2024-01-01T00:00:00Z", "region": "Belgium", "measured": 5.5}]`
	if err := os.WriteFile(filepath.Join(yearDir, "SolarForecast_Elia_20240101.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	db := store.OpenMemory(t)
	if err := o.Load(context.Background(), db, []Kind{Wind, Solar, Price}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM tbl_solar_data").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("solar rows = %d, want 1", count)
	}
}
