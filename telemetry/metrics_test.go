package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	Init() // second call must not re-register (panic)
	if PollsTotal == nil || PostsTotal == nil || LiveAccounts == nil {
		t.Fatal("metrics not initialized")
	}
	PollsTotal.WithLabelValues("twitch").Inc()
	EventsTotal.WithLabelValues("live_started").Inc()
	SetLiveAccounts(2)
}

func TestTimeFunc(t *testing.T) {
	Init()
	d := TimeFunc(PollDuration.WithLabelValues("twitch"), func() { time.Sleep(5 * time.Millisecond) })
	if d < 5*time.Millisecond {
		t.Errorf("TimeFunc returned %v, want >= 5ms", d)
	}
	// nil observer must not panic
	TimeFunc(nil, func() {})
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if GetCorrelation(ctx) != "" {
		t.Error("expected empty correlation on fresh context")
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation = %q, want abc-123", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}
