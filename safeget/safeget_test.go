package safeget_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/powerlog-be/powerlog/safeget"
)

func quiet() safeget.Option {
	return safeget.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func noSleep() safeget.Option {
	return safeget.WithSleep(func(time.Duration) {})
}

func TestGetSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := safeget.New(quiet(), noSleep())
	resp, err := c.Get(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode() != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode())
	}
}

func TestGetRetriesOn500ThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := safeget.New(quiet(), noSleep(), safeget.WithTries(3))
	resp, err := c.Get(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode() != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode())
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestGetExhaustedReturnsError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	var slept int
	c := safeget.New(quiet(), safeget.WithTries(3),
		safeget.WithSleep(func(time.Duration) { slept++ }))
	_, err := c.Get(context.Background(), srv.URL, nil)
	if err == nil {
		t.Fatal("want error after exhausted retries")
	}
	// tries-1 guarded attempts with a sleep after each, then the final one.
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
	if slept != 2 {
		t.Fatalf("sleeps = %d, want 2", slept)
	}
}

func TestGetSendsRepeatedParams(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	params := url.Values{}
	params.Set("order_by", "datetime")
	params.Add("refine", `datetime:"2024-03-15"`)
	params.Add("refine", `region:"Belgium"`)

	c := safeget.New(quiet(), noSleep())
	if _, err := c.Get(context.Background(), srv.URL, params); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Get("order_by") != "datetime" {
		t.Fatalf("order_by = %q", got.Get("order_by"))
	}
	if len(got["refine"]) != 2 {
		t.Fatalf("refine = %v, want 2 values", got["refine"])
	}
}
