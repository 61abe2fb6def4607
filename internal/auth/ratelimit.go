package auth

import (
	"sync"
	"time"
)

const (
	maxFailures   = 10
	windowDur     = 1 * time.Minute
	blockDur      = 5 * time.Minute
	evictInterval = 10 * time.Minute
)

// FailureLimiter blocks IPs that repeatedly fail admin authentication:
// 10 failures within a minute blocks the IP for five minutes.
type FailureLimiter struct {
	mu       sync.Mutex
	failures map[string]*failureBucket
}

type failureBucket struct {
	count        int
	windowStart  time.Time
	blockedUntil time.Time
}

// NewFailureLimiter creates an empty limiter.
func NewFailureLimiter() *FailureLimiter {
	return &FailureLimiter{failures: make(map[string]*failureBucket)}
}

// Blocked reports whether the IP is currently blocked.
func (l *FailureLimiter) Blocked(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.failures[ip]
	if !ok {
		return false
	}
	now := time.Now()
	if now.Before(b.blockedUntil) {
		return true
	}
	if !b.blockedUntil.IsZero() {
		delete(l.failures, ip)
	}
	return false
}

// RetryAfter returns seconds until the block on ip expires.
func (l *FailureLimiter) RetryAfter(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.failures[ip]
	if !ok {
		return 0
	}
	remaining := time.Until(b.blockedUntil).Seconds()
	if remaining <= 0 {
		return 0
	}
	return int(remaining) + 1
}

// Failure records a failed attempt. Returns true if the IP is now blocked.
func (l *FailureLimiter) Failure(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.failures[ip]
	if !ok {
		b = &failureBucket{windowStart: now}
		l.failures[ip] = b
	}

	if now.Sub(b.windowStart) > windowDur {
		b.count = 0
		b.windowStart = now
	}
	b.count++

	if b.count >= maxFailures {
		b.blockedUntil = now.Add(blockDur)
		return true
	}

	if len(l.failures) > 1000 {
		l.evictStale(now)
	}
	return false
}

// Success clears failure tracking for an IP.
func (l *FailureLimiter) Success(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, ip)
}

func (l *FailureLimiter) evictStale(now time.Time) {
	for ip, b := range l.failures {
		if !b.blockedUntil.IsZero() && now.After(b.blockedUntil) {
			delete(l.failures, ip)
		} else if now.Sub(b.windowStart) > evictInterval {
			delete(l.failures, ip)
		}
	}
}
