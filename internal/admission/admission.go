// Package admission guards the WebSocket upgrade path against
// connection storms: a per-IP and a global token-bucket limiter, on
// top of the hard MAX_CONNECTIONS ceiling spec.md §4.J step 3 requires.
// Modeled on the teacher's connection_rate_limiter.go, trimmed to drop
// the CPU/memory-aware admission logic that has no home in this spec
// (spec.md Non-goals: "no backpressure beyond what the underlying
// transport provides").
package admission

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config configures the rate limiter's burst/sustained rates.
type Config struct {
	PerIPBurst   int
	PerIPRate    float64
	PerIPTTL     time.Duration
	GlobalBurst  int
	GlobalRate   float64
}

// DefaultConfig returns sane defaults: a generous global rate so
// ordinary traffic is never rate limited, and a tighter per-IP rate to
// blunt a single misbehaving client.
func DefaultConfig() Config {
	return Config{
		PerIPBurst:  20,
		PerIPRate:   5,
		PerIPTTL:    5 * time.Minute,
		GlobalBurst: 500,
		GlobalRate:  100,
	}
}

type ipEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiter tracks a global limiter plus one limiter per source IP,
// cleaning up IPs that have gone quiet for longer than PerIPTTL.
type Limiter struct {
	cfg    Config
	global *rate.Limiter

	mu  sync.Mutex
	ips map[string]*ipEntry

	stop   chan struct{}
	logger zerolog.Logger
}

// New constructs a Limiter and starts its background cleanup loop.
// Callers must call Stop on shutdown.
func New(cfg Config, logger zerolog.Logger) *Limiter {
	l := &Limiter{
		cfg:    cfg,
		global: rate.NewLimiter(rate.Limit(cfg.GlobalRate), cfg.GlobalBurst),
		ips:    make(map[string]*ipEntry),
		stop:   make(chan struct{}),
		logger: logger.With().Str("component", "admission").Logger(),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether a new connection attempt from ip should be
// admitted: the global limiter is checked first (cheap, no map
// lookup), then the per-IP limiter.
func (l *Limiter) Allow(ip string) bool {
	if !l.global.Allow() {
		return false
	}
	return l.ipLimiter(ip).Allow()
}

func (l *Limiter) ipLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.ips[ip]
	if !ok {
		entry = &ipEntry{limiter: rate.NewLimiter(rate.Limit(l.cfg.PerIPRate), l.cfg.PerIPBurst)}
		l.ips[ip] = entry
	}
	entry.lastAccess = time.Now()
	return entry.limiter
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	for ip, entry := range l.ips {
		if now.Sub(entry.lastAccess) > l.cfg.PerIPTTL {
			delete(l.ips, ip)
		}
	}
}

// Stop ends the cleanup loop.
func (l *Limiter) Stop() { close(l.stop) }
