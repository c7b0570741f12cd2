// Package harvest pulls daily generation forecast records from the Elia
// Open Data API and writes one JSON file per calendar day, one year
// directory per dataset. Days whose file already exists are skipped, so an
// interrupted month resumes where it left off.
package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/powerlog-be/powerlog/retry"
	"github.com/powerlog-be/powerlog/safeget"
)

// Dataset describes one harvestable API dataset.
type Dataset struct {
	// BaseURL is the records endpoint for the dataset.
	BaseURL string

	// Dir is the dataset's archive tree; files land in Dir/<year>/.
	Dir string

	// Prefix names the daily files: <Prefix>_<YYYYMMDD>.json.
	Prefix string

	// Refine holds extra refine filters sent with every request, e.g.
	// `region:"Belgium"` for the solar dataset.
	Refine []string
}

// Harvester fetches datasets day by day.
type Harvester struct {
	client   *safeget.Client
	pageSize int
	policy   retry.Policy
	logger   *slog.Logger
}

// Option configures a Harvester.
type Option func(*Harvester)

// WithPageSize sets the API page size. The upstream caps pages at 100.
func WithPageSize(n int) Option { return func(h *Harvester) { h.pageSize = n } }

// WithRetryPolicy sets the policy wrapped around a whole month import.
func WithRetryPolicy(p retry.Policy) Option { return func(h *Harvester) { h.policy = p } }

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option { return func(h *Harvester) { h.logger = l } }

// New creates a Harvester on top of the given HTTP client.
func New(client *safeget.Client, opts ...Option) *Harvester {
	h := &Harvester{
		client:   client,
		pageSize: 100,
		policy:   retry.Policy{Tries: 3, Delay: 5 * time.Second},
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

type recordsPage struct {
	Results []json.RawMessage `json:"results"`
}

// FetchDay retrieves every record for one day, paging by offset until a
// short or empty page marks the end. Records are kept verbatim as raw JSON.
// A non-2xx
// page after a successful exchange stops the loop and keeps the partial
// result; a transport failure that survives the client's own retries
// propagates so the month-level retry can re-drive the day loop.
func (h *Harvester) FetchDay(ctx context.Context, baseURL, date string, extraRefine []string) ([]json.RawMessage, error) {
	var records []json.RawMessage
	offset := 0

	for {
		params := url.Values{}
		params.Set("order_by", "datetime")
		params.Set("limit", strconv.Itoa(h.pageSize))
		params.Set("offset", strconv.Itoa(offset))
		params.Add("refine", fmt.Sprintf("datetime:%q", date))
		for _, r := range extraRefine {
			params.Add("refine", r)
		}

		resp, err := h.client.Get(ctx, baseURL, params)
		if err != nil {
			if resp != nil && !resp.IsSuccess() {
				h.logger.Error("harvest: upstream error, keeping partial day",
					"date", date, "offset", offset, "status", resp.StatusCode())
				return records, nil
			}
			return records, fmt.Errorf("harvest: fetch %s offset %d: %w", date, offset, err)
		}

		var page recordsPage
		if err := json.Unmarshal(resp.Body(), &page); err != nil {
			return records, fmt.Errorf("harvest: decode %s offset %d: %w", date, offset, err)
		}
		records = append(records, page.Results...)
		if len(page.Results) < h.pageSize {
			return records, nil
		}
		if offset != 0 {
			h.logger.Debug("harvest: page fetched", "date", date, "records_so_far", offset)
		}
		offset += h.pageSize
	}
}

// ImportMonth fetches every day of (year, month) for ds, writing one JSON
// array file per day. The whole month is retried as a unit: a transient
// upstream error re-drives the day loop, and already-written days are
// skipped on the next pass.
func (h *Harvester) ImportMonth(ctx context.Context, ds Dataset, year int, month time.Month) error {
	label := fmt.Sprintf("%s %d-%02d", ds.Prefix, year, month)
	return h.policy.Do(label, func() error {
		return h.importMonth(ctx, ds, year, month)
	})
}

func (h *Harvester) importMonth(ctx context.Context, ds Dataset, year int, month time.Month) error {
	yearDir := filepath.Join(ds.Dir, strconv.Itoa(year))
	if err := os.MkdirAll(yearDir, 0o755); err != nil {
		return fmt.Errorf("harvest: mkdir %s: %w", yearDir, err)
	}

	for _, date := range daysInMonth(year, month) {
		name := fmt.Sprintf("%s_%s.json", ds.Prefix, compact(date))
		path := filepath.Join(yearDir, name)

		if _, err := os.Stat(path); err == nil {
			continue // idempotent resume: the day is already on disk
		}

		h.logger.Info("harvest: fetching day", "file", name)
		records, err := h.FetchDay(ctx, ds.BaseURL, date, ds.Refine)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			h.logger.Warn("harvest: no data for day", "date", date)
			continue
		}

		if err := writeRecords(path, records); err != nil {
			return err
		}
		h.logger.Info("harvest: saved day", "file", name, "records", len(records))
	}
	return nil
}

func writeRecords(path string, records []json.RawMessage) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("harvest: encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("harvest: write %s: %w", path, err)
	}
	return nil
}

// daysInMonth lists every date of the month as YYYY-MM-DD strings, the
// format the API's datetime refine filter expects.
func daysInMonth(year int, month time.Month) []string {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	var days []string
	for d := first; d.Month() == month; d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format("2006-01-02"))
	}
	return days
}

func compact(date string) string {
	b := make([]byte, 0, 8)
	for i := range date {
		if date[i] != '-' {
			b = append(b, date[i])
		}
	}
	return string(b)
}
