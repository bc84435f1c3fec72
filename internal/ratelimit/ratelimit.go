// Package ratelimit provides token-bucket limiters keyed by client.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientLimiters hands out one token bucket per client key and forgets
// clients whose buckets have refilled.
type ClientLimiters struct {
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewClientLimiters allows each client r events per second with bursts of
// up to burst. It starts a background sweep every cleanupInterval; call Stop
// to end it.
func NewClientLimiters(r float64, burst int, cleanupInterval time.Duration) *ClientLimiters {
	cl := &ClientLimiters{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(r),
		burst:    burst,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go cl.cleanup(cleanupInterval)
	return cl
}

// Allow takes a token from the bucket of clientID.
func (cl *ClientLimiters) Allow(clientID string) bool {
	now := cl.now()

	cl.mu.Lock()
	limiter, ok := cl.limiters[clientID]
	if !ok {
		limiter = rate.NewLimiter(cl.limit, cl.burst)
		cl.limiters[clientID] = limiter
	}
	cl.mu.Unlock()

	return limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients.
func (cl *ClientLimiters) Len() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.limiters)
}

func (cl *ClientLimiters) Stop() {
	cl.stopOnce.Do(func() { close(cl.stop) })
}

// sweep drops every limiter whose bucket is full again; a fresh limiter
// behaves identically.
func (cl *ClientLimiters) sweep() {
	now := cl.now()
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for id, limiter := range cl.limiters {
		if limiter.TokensAt(now) >= float64(cl.burst) {
			delete(cl.limiters, id)
		}
	}
}

func (cl *ClientLimiters) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-cl.stop:
			return
		case <-ticker.C:
			cl.sweep()
		}
	}
}
