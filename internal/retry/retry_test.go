package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastConfig keeps test runtime negligible.
func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Factor:       2.0,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	result := Do(context.Background(), fastConfig(3), func() error { return nil })
	if result.Err != nil || result.Attempts != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestDoRetriesTransientFailure(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if result.Err != nil {
		t.Fatalf("err = %v", result.Err)
	}
	if result.Attempts != 3 {
		t.Errorf("attempts = %d", result.Attempts)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	wantErr := errors.New("still failing")
	result := Do(context.Background(), fastConfig(3), func() error { return wantErr })
	if !errors.Is(result.Err, wantErr) || result.Attempts != 3 {
		t.Errorf("result = %+v", result)
	}
}

func TestPermanentErrorStopsRetries(t *testing.T) {
	calls := 0
	wantErr := errors.New("bad request")
	result := Do(context.Background(), fastConfig(5), func() error {
		calls++
		return Permanent(wantErr)
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(result.Err, wantErr) {
		t.Errorf("err = %v", result.Err)
	}
}

func TestIsPermanentUnwraps(t *testing.T) {
	inner := errors.New("inner")
	if !IsPermanent(Permanent(inner)) {
		t.Error("wrapped error not detected")
	}
	if IsPermanent(inner) {
		t.Error("plain error reported permanent")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestContextCancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := Do(ctx, fastConfig(5), func() error { return errors.New("nope") })
	if !errors.Is(result.Err, context.Canceled) {
		t.Errorf("err = %v", result.Err)
	}
}

func TestUnhealthyDownstreamSkipsRetry(t *testing.T) {
	calls := 0
	wantErr := errors.New("backend down")
	result := DoWithHealth(context.Background(), fastConfig(5),
		func(context.Context) bool { return false },
		func() error {
			calls++
			return wantErr
		})
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (health gate should stop retries)", calls)
	}
	if !errors.Is(result.Err, wantErr) {
		t.Errorf("err = %v", result.Err)
	}
}

func TestHealthyDownstreamKeepsRetrying(t *testing.T) {
	calls := 0
	pings := 0
	result := DoWithHealth(context.Background(), fastConfig(3),
		func(context.Context) bool {
			pings++
			return true
		},
		func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
	if result.Err != nil || calls != 3 {
		t.Errorf("result = %+v calls = %d", result, calls)
	}
	// Consulted before each retry, not before the first attempt.
	if pings != 2 {
		t.Errorf("pings = %d, want 2", pings)
	}
}

func TestDoWithValue(t *testing.T) {
	calls := 0
	value, result := DoWithValue(context.Background(), fastConfig(3), func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("transient")
		}
		return "done", nil
	})
	if value != "done" || result.Err != nil || result.Attempts != 2 {
		t.Errorf("value = %q result = %+v", value, result)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
		{5, 8 * time.Second},  // capped
		{10, 8 * time.Second}, // still capped
	}
	for _, tt := range tests {
		got := Backoff(tt.attempt, 500*time.Millisecond, 8*time.Second, 2.0)
		if got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
