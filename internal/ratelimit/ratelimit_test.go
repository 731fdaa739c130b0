package ratelimit

import (
	"testing"
	"time"
)

func TestAllow_BurstThenDeny(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         5,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	for i := 0; i < 5; i++ {
		if !limiter.Allow("10.1.2.3") {
			t.Errorf("request %d should be allowed (within burst)", i)
		}
	}

	if limiter.Allow("10.1.2.3") {
		t.Error("request after burst should be denied")
	}

	// 60/min replenishes one token per second
	time.Sleep(1100 * time.Millisecond)

	if !limiter.Allow("10.1.2.3") {
		t.Error("request after replenishment should be allowed")
	}
}

func TestAllow_IndependentClients(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         2,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	limiter.Allow("client-a")
	limiter.Allow("client-a")

	if limiter.Allow("client-a") {
		t.Error("client-a should be rate limited")
	}
	if !limiter.Allow("client-b") {
		t.Error("client-b should have its own bucket")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RequestsPerMinute != 120 {
		t.Errorf("RequestsPerMinute = %d, want 120", cfg.RequestsPerMinute)
	}
	if cfg.BurstSize != 20 {
		t.Errorf("BurstSize = %d, want 20", cfg.BurstSize)
	}
	if cfg.CleanupInterval != time.Minute {
		t.Errorf("CleanupInterval = %v, want 1m", cfg.CleanupInterval)
	}
}
