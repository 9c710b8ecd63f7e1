// Package ratelimit implements the per-agent request-rate limiter
// (spec §5): an LRU-style map with a periodic background sweep
// evicting expired buckets, grounded on the teacher's
// pkg/agent/core/message/dedupe.Detector (same map+mutex+ticker
// shape, repurposed from duplicate-message detection to a fixed-window
// request counter).
package ratelimit

import (
	"sync"
	"time"

	"github.com/agenttrust/trustcore/internal/metrics"
)

// bucket tracks one agent's request count within the current window.
type bucket struct {
	count      int
	windowEnds time.Time
	lastSeen   time.Time
}

// Limiter is a fixed-window, per-key rate limiter with background
// eviction of stale buckets.
type Limiter struct {
	mu              sync.Mutex
	buckets         map[string]*bucket
	limit           int
	window          time.Duration
	grace           time.Duration
	cleanupInterval time.Duration
	stop            chan struct{}
	stopOnce        sync.Once
}

// New creates a Limiter allowing up to limit requests per window per
// key, sweeping buckets idle for more than grace every cleanupInterval
// (spec §5: "evicting expired buckets every 60 s with a 60 s grace").
func New(limit int, window, grace, cleanupInterval time.Duration) *Limiter {
	l := &Limiter{
		buckets:         make(map[string]*bucket),
		limit:           limit,
		window:          window,
		grace:           grace,
		cleanupInterval: cleanupInterval,
		stop:            make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether key may make another request right now,
// advancing its window if the previous one has elapsed.
func (l *Limiter) Allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.buckets[key]
	if !exists || now.After(b.windowEnds) {
		b = &bucket{count: 0, windowEnds: now.Add(l.window)}
		l.buckets[key] = b
	}

	b.lastSeen = now
	if b.count >= l.limit {
		metrics.RateLimitRejections.Inc()
		return false
	}
	b.count++
	return true
}

// Count returns the number of buckets currently tracked, for metrics.
func (l *Limiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Stop terminates the background sweep goroutine.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) sweep() {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.grace {
			delete(l.buckets, key)
		}
	}
	metrics.RateLimitBuckets.Set(float64(len(l.buckets)))
}
