// Package ratelimit spaces out calls to a remote service and backs off after
// repeated failures.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	backoffThreshold = 3
	backoffStep      = 30 * time.Second
	maxBackoff       = 5 * time.Minute
)

// Limiter enforces a minimum interval between calls
type Limiter struct {
	mu              sync.Mutex
	minInterval     time.Duration
	lastRequestTime time.Time
	backoffUntil    time.Time
	requestCount    int64
	errorCount      int64
	now             func() time.Time
}

// Stats describes the limiter state
type Stats struct {
	RequestCount    int64     `json:"request_count"`
	ErrorCount      int64     `json:"error_count"`
	LastRequestTime time.Time `json:"last_request_time"`
	InBackoff       bool      `json:"in_backoff"`
	BackoffUntil    time.Time `json:"backoff_until"`
}

// New creates a limiter. A zero interval only applies error backoff.
func New(minInterval time.Duration) *Limiter {
	return &Limiter{minInterval: minInterval, now: time.Now}
}

// Wait blocks until a call may be made or ctx is done
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()

		var wait time.Duration
		if now.Before(l.backoffUntil) {
			wait = l.backoffUntil.Sub(now)
		} else if since := now.Sub(l.lastRequestTime); since < l.minInterval {
			wait = l.minInterval - since
		}

		if wait <= 0 {
			l.lastRequestTime = now
			l.requestCount++
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// RecordError counts a failed call. After more than three consecutive
// failures further calls are held back, 30s per failure up to 5m.
func (l *Limiter) RecordError() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.errorCount++
	if l.errorCount > backoffThreshold {
		backoff := time.Duration(l.errorCount) * backoffStep
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		l.backoffUntil = l.now().Add(backoff)
	}
}

// RecordSuccess resets the consecutive error count
func (l *Limiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errorCount = 0
}

// Stats returns a snapshot
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		RequestCount:    l.requestCount,
		ErrorCount:      l.errorCount,
		LastRequestTime: l.lastRequestTime,
		InBackoff:       l.now().Before(l.backoffUntil),
		BackoffUntil:    l.backoffUntil,
	}
}
