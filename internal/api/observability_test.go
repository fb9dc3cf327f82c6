package api

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"flow-field/internal/config"
	"flow-field/internal/flowfield"
)

func TestDebugListenAddr(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ObservabilityConfig
		want string
	}{
		{"loopback kept", config.ObservabilityConfig{ListenAddr: "127.0.0.1:7070"}, "127.0.0.1:7070"},
		{"localhost kept", config.ObservabilityConfig{ListenAddr: "localhost:7070"}, "localhost:7070"},
		{"wildcard pinned", config.ObservabilityConfig{ListenAddr: ":7070"}, "127.0.0.1:7070"},
		{"public pinned", config.ObservabilityConfig{ListenAddr: "0.0.0.0:7070"}, "127.0.0.1:7070"},
		{"external allowed", config.ObservabilityConfig{ListenAddr: "0.0.0.0:7070", AllowExternal: true}, "0.0.0.0:7070"},
		{"garbage", config.ObservabilityConfig{ListenAddr: "nonsense"}, "127.0.0.1:6060"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := debugListenAddr(tt.cfg); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestStartDebugServerDisabled(t *testing.T) {
	if srv := StartDebugServer(config.ObservabilityConfig{Enabled: false}); srv != nil {
		t.Error("Expected nil server when disabled")
	}
}

func TestRateLimiterSweep(t *testing.T) {
	rl := NewIPRateLimiter(config.RateLimitConfig{
		RequestsPerSecond: 10,
		Burst:             10,
		CleanupInterval:   time.Minute,
	})
	defer rl.Stop()

	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.2")

	// Within two intervals nothing is dropped
	rl.sweep(time.Now().Add(time.Minute))
	if n := countLimiters(rl); n != 2 {
		t.Fatalf("Expected 2 limiters, got %d", n)
	}

	rl.sweep(time.Now().Add(3 * time.Minute))
	if n := countLimiters(rl); n != 0 {
		t.Errorf("Expected stale limiters removed, got %d", n)
	}
}

func countLimiters(rl *IPRateLimiter) int {
	return rl.Stats().Tracked
}

func TestGenerationErrorReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("generate f1: %w", flowfield.ErrGoalBlocked), "goal_blocked"},
		{fmt.Errorf("generate f1: %w", flowfield.ErrSizeMismatch), "size_mismatch"},
		{errors.New("disk on fire"), "other"},
	}
	for _, tt := range tests {
		if got := generationErrorReason(tt.err); got != tt.want {
			t.Errorf("Expected %s for %v, got %s", tt.want, tt.err, got)
		}
	}
}

func TestConnLimiter(t *testing.T) {
	cl := NewConnLimiter(2)
	if !cl.Acquire("10.0.0.1") || !cl.Acquire("10.0.0.1") {
		t.Fatal("Expected two slots")
	}
	if cl.Acquire("10.0.0.1") {
		t.Error("Expected third slot to be refused")
	}
	if !cl.Acquire("10.0.0.2") {
		t.Error("Expected other IP to get a slot")
	}

	cl.Release("10.0.0.1")
	if got := cl.Open("10.0.0.1"); got != 1 {
		t.Errorf("Expected 1 open, got %d", got)
	}
	cl.Release("10.0.0.1")
	cl.Release("10.0.0.1") // extra release is ignored
	if got := cl.Open("10.0.0.1"); got != 0 {
		t.Errorf("Expected 0 open, got %d", got)
	}

	stats := cl.Stats()
	if stats.Allowed != 3 || stats.Rejected != 1 || stats.Tracked != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}
