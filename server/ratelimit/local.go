package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	staleLimiterTTL = 10 * time.Minute
	cleanupInterval = time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter keeps one token bucket per key, refilled at Limit per Period
// with a burst of Limit
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	window   Window
	now      func() time.Time
	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewLocalLimiter(window Window) *LocalLimiter {
	l := &LocalLimiter{
		limiters: make(map[string]*limiterEntry),
		window:   window,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}

	go l.cleanupLoop()
	return l
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	return l.limiterFor(key).AllowN(l.now(), 1), nil
}

func (l *LocalLimiter) Close() error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	return nil
}

func (l *LocalLimiter) limiterFor(key string) *rate.Limiter {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.limiters[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	every := rate.Every(l.window.Period / time.Duration(l.window.Limit))
	limiter := rate.NewLimiter(every, int(l.window.Limit))
	l.limiters[key] = &limiterEntry{limiter: limiter, lastSeen: now}
	return limiter
}

func (l *LocalLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.evictStale()
		}
	}
}

func (l *LocalLimiter) evictStale() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > staleLimiterTTL {
			delete(l.limiters, key)
		}
	}
}

func (l *LocalLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
