package retry

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"interview-insights-go/internal/logger"
	"interview-insights-go/internal/types"
)

// fakeTimer fires immediately and records every requested wait.
type fakeTimer struct {
	waits *[]time.Duration
	c     chan time.Time
}

func (f *fakeTimer) Start(d time.Duration) {
	*f.waits = append(*f.waits, d)
	f.c = make(chan time.Time, 1)
	f.c <- time.Now()
}

func (f *fakeTimer) Stop() {}

func (f *fakeTimer) C() <-chan time.Time { return f.c }

func newTestRetrier(p Policy) (*Retrier, *[]time.Duration) {
	waits := &[]time.Duration{}
	r := New(p, logger.Discard())
	r.newTimer = func() backoff.Timer { return &fakeTimer{waits: waits} }
	return r, waits
}

func serverError() error {
	return &types.ProviderError{Provider: "whisper", Kind: types.KindStatus, StatusCode: 503, Message: "unavailable"}
}

// TestDoSucceedsAfterTransientFailures verifies k failures then success with exponential waits.
func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	r, waits := newTestRetrier(DefaultPolicy())

	calls := 0
	err := r.Do(context.Background(), "transcribe", func(context.Context) error {
		calls++
		if calls <= 3 {
			return serverError()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 4 {
		t.Fatalf("calls = %d, want 4", calls)
	}
	want := []time.Duration{3 * time.Second, 6 * time.Second, 12 * time.Second}
	if fmt.Sprint(*waits) != fmt.Sprint(want) {
		t.Fatalf("waits = %v, want %v", *waits, want)
	}
}

// TestDoCapsDelayAndGivesUp verifies the cap on the wait and the final error after the budget.
func TestDoCapsDelayAndGivesUp(t *testing.T) {
	r, waits := newTestRetrier(DefaultPolicy())

	calls := 0
	last := serverError()
	err := r.Do(context.Background(), "analyze", func(context.Context) error {
		calls++
		return last
	})
	if err != last {
		t.Fatalf("err = %v, want the final provider error unchanged", err)
	}
	if calls != 6 {
		t.Fatalf("calls = %d, want 6 (1 + 5 retries)", calls)
	}
	want := []time.Duration{3 * time.Second, 6 * time.Second, 12 * time.Second, 24 * time.Second, 48 * time.Second}
	if fmt.Sprint(*waits) != fmt.Sprint(want) {
		t.Fatalf("waits = %v, want %v", *waits, want)
	}
}

// TestDoClientErrorIsPermanent verifies a 4xx failure is invoked exactly once.
func TestDoClientErrorIsPermanent(t *testing.T) {
	r, waits := newTestRetrier(DefaultPolicy())

	calls := 0
	bad := &types.ProviderError{Provider: "notion", Kind: types.KindStatus, StatusCode: 400, Message: "validation"}
	err := r.Do(context.Background(), "create session", func(context.Context) error {
		calls++
		return bad
	})
	var pe *types.ProviderError
	if !errors.As(err, &pe) || pe != bad {
		t.Fatalf("err = %v, want the 400 provider error", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if len(*waits) != 0 {
		t.Fatalf("waits = %v, want none", *waits)
	}
}

// TestValueReturnsResult verifies the generic helper passes the successful value through.
func TestValueReturnsResult(t *testing.T) {
	r, _ := newTestRetrier(Policy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})

	calls := 0
	got, err := Value(context.Background(), r, "fetch", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", syscall.ECONNRESET
		}
		return "hello", nil
	})
	if err != nil || got != "hello" {
		t.Fatalf("Value = %q, %v", got, err)
	}
}

// TestDoStopsOnCanceledContext verifies cancellation ends the loop without retrying.
func TestDoStopsOnCanceledContext(t *testing.T) {
	r, _ := newTestRetrier(DefaultPolicy())
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := r.Do(ctx, "fetch", func(context.Context) error {
		calls++
		cancel()
		return serverError()
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"5xx", serverError(), true},
		{"4xx", &types.ProviderError{Kind: types.KindStatus, StatusCode: 404}, false},
		{"network", &types.ProviderError{Kind: types.KindNetwork}, true},
		{"decode", &types.ProviderError{Kind: types.KindDecode}, false},
		{"wrapped reset", fmt.Errorf("fetch chunk: %w", syscall.ECONNRESET), true},
		{"refused", syscall.ECONNREFUSED, true},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("empty transcript"), false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Fatalf("%s: IsRetryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}
