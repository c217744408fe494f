package ratelimit

import (
	"math"
	"sync"
	"time"

	"github.com/jiahaoliu666/aws-blog-sub002/internal/domain"
)

// Clock abstracts the time source so tests can drive the limiter
// deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by the wall clock.
func SystemClock() Clock { return systemClock{} }

// Config tunes the two limiter algorithms. Either can be disabled:
// MaxRequests <= 0 turns off the sliding window (Check always allows),
// TokensPerSec <= 0 turns off the token bucket (Acquire always succeeds).
type Config struct {
	MaxRequests  int           // per-identity ceiling within Window
	Window       time.Duration // sliding-window length
	TokensPerSec float64       // global refill rate; capacity equals the rate
}

// Limiter bounds outbound call volume with two complementary algorithms:
// a per-identity sliding window (distinct-caller abuse) and a global token
// bucket (aggregate throughput against a provider's limit). State is
// in-memory and resets on restart; no cross-process coordination.
type Limiter struct {
	mu  sync.Mutex
	cfg Config
	clk Clock

	windows    map[string][]time.Time
	lastSweep  time.Time
	tokens     float64
	capacity   float64
	lastRefill time.Time
}

func New(cfg Config, clk Clock) *Limiter {
	if clk == nil {
		clk = SystemClock()
	}
	l := &Limiter{
		cfg:       cfg,
		clk:       clk,
		windows:   make(map[string][]time.Time),
		lastSweep: clk.Now(),
	}
	if cfg.TokensPerSec > 0 {
		l.capacity = cfg.TokensPerSec
		l.tokens = cfg.TokensPerSec
		l.lastRefill = clk.Now()
	}
	return l
}

// Check reports whether identity may make another request within the
// sliding window, recording the request timestamp when allowed.
func (l *Limiter) Check(identity string) bool {
	if l.cfg.MaxRequests <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now()
	cutoff := now.Add(-l.cfg.Window)
	l.sweep(now, cutoff)

	log := l.windows[identity]
	kept := log[:0]
	for _, ts := range log {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.cfg.MaxRequests {
		l.windows[identity] = kept
		return false
	}
	l.windows[identity] = append(kept, now)
	return true
}

// sweep drops identities whose every timestamp has aged out of the window.
// It runs at most once per window length, so Check stays O(one identity)
// on the hot path while the map cannot grow with one-shot callers.
// Caller must hold l.mu.
func (l *Limiter) sweep(now time.Time, cutoff time.Time) {
	if now.Sub(l.lastSweep) < l.cfg.Window {
		return
	}
	for id, log := range l.windows {
		kept := log[:0]
		for _, ts := range log {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(l.windows, id)
			continue
		}
		l.windows[id] = kept
	}
	l.lastSweep = now
}

// Acquire consumes one token from the global bucket, returning
// domain.ErrRateExceeded when none are available.
func (l *Limiter) Acquire() error {
	if l.cfg.TokensPerSec <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	if l.tokens <= 0 {
		return domain.ErrRateExceeded
	}
	l.tokens--
	return nil
}

// refill adds floor(elapsed_ms * rate / 1000) tokens capped at capacity.
// lastRefill only advances when at least one whole token accrued, so
// sub-token elapsed time is never lost to truncation. Caller must hold l.mu.
func (l *Limiter) refill() {
	now := l.clk.Now()
	elapsedMS := now.Sub(l.lastRefill).Milliseconds()
	added := math.Floor(float64(elapsedMS) * l.cfg.TokensPerSec / 1000)
	if added <= 0 {
		return
	}
	l.tokens = math.Min(l.tokens+added, l.capacity)
	l.lastRefill = now
}

// Identities returns the number of identities the sliding window tracks.
// Intended for tests and introspection.
func (l *Limiter) Identities() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Tokens returns the current token count after a refill. Intended for
// tests and introspection.
func (l *Limiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return l.tokens
}
