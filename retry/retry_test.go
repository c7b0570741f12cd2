package retry_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/powerlog-be/powerlog/retry"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	p := retry.Policy{Tries: 3, Delay: time.Second, Logger: quietLogger(),
		Sleep: func(time.Duration) { t.Fatal("slept on success") }}

	err := p.Do("op", func() error { calls++; return nil })
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoExhaustsBudget(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	var slept []time.Duration
	p := retry.Policy{
		Tries:   4,
		Delay:   2 * time.Second,
		Backoff: 2,
		Logger:  quietLogger(),
		Sleep:   func(d time.Duration) { slept = append(slept, d) },
	}

	err := p.Do("op", func() error { calls++; return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	// tries=N performs exactly N invocations with N-1 sleeps of
	// d, d*b, d*b^2, ...
	if calls != 4 {
		t.Fatalf("calls = %d, want 4", calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
	if len(slept) != len(want) {
		t.Fatalf("sleeps = %v, want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Fatalf("sleep[%d] = %v, want %v", i, slept[i], want[i])
		}
	}
}

func TestDoRecoversMidway(t *testing.T) {
	calls := 0
	p := retry.Policy{Tries: 5, Delay: time.Millisecond, Logger: quietLogger(),
		Sleep: func(time.Duration) {}}

	err := p.Do("op", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoNonRetryableStopsImmediately(t *testing.T) {
	fatal := errors.New("contract violation")
	calls := 0
	p := retry.Policy{
		Tries:     5,
		Delay:     time.Second,
		Logger:    quietLogger(),
		Retryable: func(err error) bool { return !errors.Is(err, fatal) },
		Sleep:     func(time.Duration) { t.Fatal("slept on non-retryable error") },
	}

	err := p.Do("op", func() error { calls++; return fatal })
	if !errors.Is(err, fatal) {
		t.Fatalf("err = %v, want %v", err, fatal)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoSingleTryIsUnguarded(t *testing.T) {
	calls := 0
	p := retry.Policy{Tries: 1, Delay: time.Second, Logger: quietLogger(),
		Sleep: func(time.Duration) { t.Fatal("slept with tries=1") }}

	err := p.Do("op", func() error { calls++; return errors.New("boom") })
	if err == nil {
		t.Fatal("want error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestConstantBackoffDefault(t *testing.T) {
	var slept []time.Duration
	p := retry.Policy{Tries: 3, Delay: 5 * time.Second, Logger: quietLogger(),
		Sleep: func(d time.Duration) { slept = append(slept, d) }}

	_ = p.Do("op", func() error { return errors.New("boom") })
	for i, d := range slept {
		if d != 5*time.Second {
			t.Fatalf("sleep[%d] = %v, want 5s", i, d)
		}
	}
	if len(slept) != 2 {
		t.Fatalf("sleeps = %d, want 2", len(slept))
	}
}
