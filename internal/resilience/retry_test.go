package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"testing"
	"time"
)

func fastRetry(attempts int) Retry {
	return Retry{Attempts: attempts, Backoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Multiplier: 2}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := DefaultRetry().Do(context.Background(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	var calls, retries int
	r := fastRetry(3)
	r.OnRetry = func(int, error) { retries++ }

	err := r.Do(context.Background(), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return Transient(errors.New("temporary"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 || retries != 2 {
		t.Errorf("expected 3 calls and 2 retries, got %d and %d", calls, retries)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	var calls int
	err := fastRetry(3).Do(context.Background(), func(_ context.Context) error {
		calls++
		return Transient(fmt.Errorf("try %d", calls))
	})
	if err == nil || err.Error() != "try 3" {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_PermanentErrorStops(t *testing.T) {
	var calls int
	err := fastRetry(5).Do(context.Background(), func(_ context.Context) error {
		calls++
		return errors.New("bad request")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_CustomRetryable(t *testing.T) {
	var calls int
	r := fastRetry(2)
	r.Retryable = func(error) bool { return true }
	_ = r.Do(context.Background(), func(_ context.Context) error {
		calls++
		return errors.New("plain")
	})
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := Retry{Attempts: 5, Backoff: time.Hour}
	r.OnRetry = func(int, error) { cancel() }

	var calls int
	start := time.Now()
	err := r.Do(ctx, func(_ context.Context) error {
		calls++
		return Transient(errors.New("down"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if time.Since(start) > time.Minute {
		t.Error("wait was not interrupted")
	}
}

func TestDelay(t *testing.T) {
	r := Retry{Backoff: 500 * time.Millisecond, MaxBackoff: 3 * time.Second, Multiplier: 2}
	want := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second, 3 * time.Second}
	for i, w := range want {
		if got := r.Delay(i + 1); got != w {
			t.Errorf("attempt %d: got %v, want %v", i+1, got, w)
		}
	}

	r.Jitter = 0.5
	for i := 0; i < 100; i++ {
		if d := r.Delay(1); d < 250*time.Millisecond || d > 750*time.Millisecond {
			t.Fatalf("jittered delay %v out of range", d)
		}
	}
	if d := (Retry{}).Delay(3); d != 0 {
		t.Errorf("zero backoff should not wait, got %v", d)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("nope"), false},
		{"marked", Transient(errors.New("503")), true},
		{"wrapped mark", fmt.Errorf("outer: %w", Transient(errors.New("x"))), true},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"conn refused", syscall.ECONNREFUSED, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
	if Transient(nil) != nil {
		t.Error("Transient(nil) should be nil")
	}
}

func TestTransientStatus(t *testing.T) {
	for code, want := range map[int]bool{
		http.StatusOK:                  false,
		http.StatusBadRequest:          false,
		http.StatusNotFound:            false,
		http.StatusRequestTimeout:      true,
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusBadGateway:          true,
	} {
		if got := TransientStatus(code); got != want {
			t.Errorf("TransientStatus(%d) = %v, want %v", code, got, want)
		}
	}
}
