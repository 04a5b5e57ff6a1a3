package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanout/internal/platform/retry"
)

var fastPolicy = retry.Policy{
	MaxAttempts:    3,
	InitialBackoff: 1 * time.Millisecond,
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	calls := 0
	val, err := retry.Do(context.Background(), fastPolicy, alwaysRetry, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if val != 42 || calls != 3 {
		t.Fatalf("expected 42 after 3 calls, got %d after %d", val, calls)
	}
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := retry.DoVoid(context.Background(), fastPolicy, alwaysStop, func() error {
		calls++
		return permanent
	})
	var permErr *retry.PermanentError
	if !errors.As(err, &permErr) {
		t.Fatalf("expected PermanentError, got %T: %v", err, err)
	}
	if !errors.Is(err, permanent) {
		t.Fatalf("expected wrapped permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_ExhaustedRetries(t *testing.T) {
	underlying := errors.New("transient")
	calls := 0
	err := retry.DoVoid(context.Background(), fastPolicy, alwaysRetry, func() error {
		calls++
		return underlying
	})
	if !errors.Is(err, underlying) {
		t.Fatalf("expected wrapped underlying error, got %v", err)
	}
	if calls != fastPolicy.MaxAttempts {
		t.Fatalf("expected %d calls, got %d", fastPolicy.MaxAttempts, calls)
	}
}

func TestDo_UnlimitedAttempts(t *testing.T) {
	p := retry.Policy{InitialBackoff: time.Microsecond, MaxBackoff: time.Microsecond}

	calls := 0
	err := retry.DoVoid(context.Background(), p, alwaysRetry, func() error {
		calls++
		if calls < 25 {
			return errors.New("still down")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if calls != 25 {
		t.Fatalf("expected 25 calls, got %d", calls)
	}
}

func TestDo_BackoffDoublesUpToCap(t *testing.T) {
	var observed []time.Duration
	p := retry.Policy{
		MaxAttempts:    6,
		InitialBackoff: time.Microsecond,
		MaxBackoff:     4 * time.Microsecond,
		OnRetry: func(_ int, _ error, backoff time.Duration) {
			observed = append(observed, backoff)
		},
	}

	_ = retry.DoVoid(context.Background(), p, alwaysRetry, func() error { return errors.New("fail") })

	expected := []time.Duration{1, 2, 4, 4, 4}
	if len(observed) != len(expected) {
		t.Fatalf("expected %d OnRetry calls, got %d", len(expected), len(observed))
	}
	for i, v := range expected {
		if observed[i] != v*time.Microsecond {
			t.Fatalf("retry %d: expected backoff %v, got %v", i+1, v*time.Microsecond, observed[i])
		}
	}
}

func TestDo_LongAttemptResetsBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for {
			if err := clock.BlockUntilContext(ctx, 1); err != nil {
				return
			}
			clock.Advance(time.Minute)
		}
	}()

	var observed []time.Duration
	p := retry.Policy{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     time.Minute,
		ResetAfter:     time.Hour,
		Clock:          clock,
		OnRetry: func(_ int, _ error, backoff time.Duration) {
			observed = append(observed, backoff)
		},
	}

	calls := 0
	_ = retry.DoVoid(ctx, p, alwaysRetry, func() error {
		calls++
		if calls == 3 {
			// A long healthy run before failing.
			clock.Advance(time.Hour)
		}
		return errors.New("dropped")
	})

	expected := []time.Duration{time.Second, 2 * time.Second, time.Second, 2 * time.Second}
	if len(observed) != len(expected) {
		t.Fatalf("expected %d OnRetry calls, got %d: %v", len(expected), len(observed), observed)
	}
	for i, v := range expected {
		if observed[i] != v {
			t.Fatalf("retry %d: expected backoff %v, got %v", i+1, v, observed[i])
		}
	}
}

func TestDo_WaitsOnInjectedClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := retry.Policy{InitialBackoff: time.Minute, Clock: clock}

	calls := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() {
		n := 0
		done <- retry.DoVoid(context.Background(), p, alwaysRetry, func() error {
			n++
			calls <- struct{}{}
			if n < 2 {
				return errors.New("fail")
			}
			return nil
		})
	}()

	<-calls
	if err := clock.BlockUntilContext(context.Background(), 1); err != nil {
		t.Fatalf("waiting for backoff timer: %v", err)
	}
	clock.Advance(time.Minute)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not resume after clock advance")
	}
}

func TestDo_ContextCancellationDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := retry.Policy{InitialBackoff: 10 * time.Second}

	calls := 0
	err := retry.DoVoid(ctx, p, alwaysRetry, func() error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call before cancel, got %d", calls)
	}
}

func alwaysStop(error) retry.Action { return retry.Stop }

func alwaysRetry(error) retry.Action { return retry.Retry }
