package ratelimit

import (
	"testing"
	"time"
)

func newTestLimiter(limits map[string]int) *Limiter {
	return NewLimiter(Config{Enabled: true, Window: time.Minute, Limits: limits})
}

func TestAllowWithinLimit(t *testing.T) {
	l := newTestLimiter(map[string]int{"execute_command": 3})
	for i := 0; i < 3; i++ {
		if !l.Allow("execute_command") {
			t.Fatalf("call %d denied", i+1)
		}
	}
	if l.Allow("execute_command") {
		t.Error("call over limit allowed")
	}
}

func TestUnlistedToolUnlimited(t *testing.T) {
	l := newTestLimiter(map[string]int{"execute_command": 1})
	for i := 0; i < 100; i++ {
		if !l.Allow("get_time") {
			t.Fatal("unlisted tool denied")
		}
	}
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	l := NewLimiter(Config{Enabled: false, Limits: map[string]int{"execute_command": 1}})
	for i := 0; i < 10; i++ {
		if !l.Allow("execute_command") {
			t.Fatal("disabled limiter denied a call")
		}
	}
}

func TestWindowSlides(t *testing.T) {
	l := newTestLimiter(map[string]int{"execute_command": 1})
	base := time.Now()
	l.nowFunc = func() time.Time { return base }

	if !l.Allow("execute_command") {
		t.Fatal("first call denied")
	}
	if l.Allow("execute_command") {
		t.Fatal("second call in window allowed")
	}

	l.nowFunc = func() time.Time { return base.Add(61 * time.Second) }
	if !l.Allow("execute_command") {
		t.Error("call after window slid denied")
	}
}

func TestRetryAfter(t *testing.T) {
	l := newTestLimiter(map[string]int{"execute_command": 1})
	base := time.Now()
	l.nowFunc = func() time.Time { return base }

	if after := l.RetryAfter("execute_command"); after != 0 {
		t.Errorf("retry-after before any call = %v", after)
	}
	l.Allow("execute_command")

	if after := l.RetryAfter("execute_command"); after != time.Minute {
		t.Errorf("retry-after = %v, want 1m", after)
	}

	l.nowFunc = func() time.Time { return base.Add(40 * time.Second) }
	if after := l.RetryAfter("execute_command"); after != 20*time.Second {
		t.Errorf("retry-after = %v, want 20s", after)
	}
}

func TestGetStatus(t *testing.T) {
	l := newTestLimiter(map[string]int{"execute_command": 2})
	l.Allow("execute_command")

	st := l.GetStatus("execute_command")
	if st.Limit != 2 || st.Used != 1 || !st.AllowedNow {
		t.Errorf("status = %+v", st)
	}

	l.Allow("execute_command")
	st = l.GetStatus("execute_command")
	if st.AllowedNow || st.RetryAfter <= 0 {
		t.Errorf("exhausted status = %+v", st)
	}
}

func TestResetClearsWindow(t *testing.T) {
	l := newTestLimiter(map[string]int{"execute_command": 1})
	l.Allow("execute_command")
	if l.Allow("execute_command") {
		t.Fatal("limit not enforced")
	}

	l.Reset("execute_command")
	if !l.Allow("execute_command") {
		t.Error("call denied after reset")
	}
}

func TestSetLimitInstallsKeyAtRuntime(t *testing.T) {
	l := NewLimiter(Config{Enabled: true, Window: time.Minute})
	l.SetLimit("http:/health:10.0.0.1", 1)

	if !l.Allow("http:/health:10.0.0.1") {
		t.Fatal("first call denied")
	}
	if l.Allow("http:/health:10.0.0.1") {
		t.Error("runtime limit not enforced")
	}
}
