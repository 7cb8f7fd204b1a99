// Package ratelimit bounds request rates on the node's public RPC surface.
// Limits use a sliding window per key, so a burst straddling a fixed window
// boundary cannot double the admitted rate.
package ratelimit

import (
	"sync"
	"time"
)

// Config sizes one sliding-window limit.
type Config struct {
	MaxRequests  int           // requests admitted per window
	Window       time.Duration // window length
	CleanupEvery time.Duration // idle key sweep interval
}

// Limiter admits requests per key within a sliding window. Keys are client
// addresses or whatever caller identity the transport can attach.
type Limiter struct {
	cfg  Config
	mu   sync.Mutex
	seen map[string][]time.Time
	stop chan struct{}
}

// NewLimiter starts a limiter and its background sweep. Call Stop when the
// owning server shuts down.
func NewLimiter(cfg Config) *Limiter {
	l := &Limiter{
		cfg:  cfg,
		seen: make(map[string][]time.Time),
		stop: make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Allow records a request for key and reports whether it fits the window.
func (l *Limiter) Allow(key string) bool {
	now := time.Now()
	cutoff := now.Add(-l.cfg.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	stamps := l.seen[key]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.cfg.MaxRequests {
		l.seen[key] = kept
		return false
	}
	l.seen[key] = append(kept, now)
	return true
}

// Stop ends the background sweep.
func (l *Limiter) Stop() {
	close(l.stop)
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(l.cfg.CleanupEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.dropIdle()
		case <-l.stop:
			return
		}
	}
}

// dropIdle reclaims keys with no request inside the current window. Allow
// prunes the keys it touches itself; the sweep only exists for clients that
// never come back.
func (l *Limiter) dropIdle() {
	cutoff := time.Now().Add(-l.cfg.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, stamps := range l.seen {
		idle := true
		for _, ts := range stamps {
			if ts.After(cutoff) {
				idle = false
				break
			}
		}
		if idle {
			delete(l.seen, key)
		}
	}
}

// EndpointConfig sizes the two limits guarding one endpoint.
type EndpointConfig struct {
	PerClient Config
	Global    Config
}

// DefaultEndpointConfig allows 50 requests per second per client and 1000 per
// second across the whole endpoint.
func DefaultEndpointConfig() EndpointConfig {
	return EndpointConfig{
		PerClient: Config{MaxRequests: 50, Window: time.Second, CleanupEvery: 5 * time.Minute},
		Global:    Config{MaxRequests: 1000, Window: time.Second, CleanupEvery: 5 * time.Minute},
	}
}

// EndpointLimiter guards a public endpoint with a per-client limit plus a
// whole-endpoint ceiling. The ceiling keeps many distinct clients from
// saturating the node even when each one stays under its own limit.
type EndpointLimiter struct {
	perClient *Limiter
	global    *Limiter
}

func NewEndpointLimiter(cfg EndpointConfig) *EndpointLimiter {
	return &EndpointLimiter{
		perClient: NewLimiter(cfg.PerClient),
		global:    NewLimiter(cfg.Global),
	}
}

// Allow admits a request from client if both the client's own window and the
// endpoint ceiling have room. A denied request still counts against the
// windows it passed.
func (e *EndpointLimiter) Allow(client string) bool {
	if !e.perClient.Allow(client) {
		return false
	}
	return e.global.Allow("*")
}

// Stop ends both background sweeps.
func (e *EndpointLimiter) Stop() {
	e.perClient.Stop()
	e.global.Stop()
}
