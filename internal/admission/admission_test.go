package admission

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestAllowRespectsPerIPBurst(t *testing.T) {
	cfg := Config{
		PerIPBurst:  3,
		PerIPRate:   0.001,
		PerIPTTL:    time.Minute,
		GlobalBurst: 1000,
		GlobalRate:  1000,
	}
	l := New(cfg, zerolog.Nop())
	defer l.Stop()

	for i := 0; i < cfg.PerIPBurst; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("expected request %d to be allowed within burst", i)
		}
	}
	if l.Allow("1.2.3.4") {
		t.Errorf("expected the request beyond the burst to be rejected")
	}
}

func TestAllowIsolatesByIP(t *testing.T) {
	cfg := Config{
		PerIPBurst:  1,
		PerIPRate:   0.001,
		PerIPTTL:    time.Minute,
		GlobalBurst: 1000,
		GlobalRate:  1000,
	}
	l := New(cfg, zerolog.Nop())
	defer l.Stop()

	if !l.Allow("1.2.3.4") {
		t.Fatalf("expected first request from 1.2.3.4 to be allowed")
	}
	if !l.Allow("5.6.7.8") {
		t.Errorf("expected a different IP to have its own independent budget")
	}
}

func TestGlobalLimiterCapsAcrossAllIPs(t *testing.T) {
	cfg := Config{
		PerIPBurst:  1000,
		PerIPRate:   1000,
		PerIPTTL:    time.Minute,
		GlobalBurst: 2,
		GlobalRate:  0.001,
	}
	l := New(cfg, zerolog.Nop())
	defer l.Stop()

	if !l.Allow("1.1.1.1") || !l.Allow("2.2.2.2") {
		t.Fatalf("expected the first two requests to consume the global burst")
	}
	if l.Allow("3.3.3.3") {
		t.Errorf("expected the global limiter to reject once its burst is exhausted, regardless of source IP")
	}
}

func TestCleanupRemovesStaleEntries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PerIPTTL = time.Millisecond
	l := New(cfg, zerolog.Nop())
	defer l.Stop()

	l.Allow("9.9.9.9")
	l.mu.Lock()
	if _, ok := l.ips["9.9.9.9"]; !ok {
		l.mu.Unlock()
		t.Fatalf("expected an entry to exist right after Allow")
	}
	l.mu.Unlock()

	time.Sleep(5 * time.Millisecond)
	l.cleanup()

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.ips["9.9.9.9"]; ok {
		t.Errorf("expected the stale entry to be cleaned up")
	}
}
