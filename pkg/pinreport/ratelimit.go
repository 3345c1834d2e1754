// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

package pinreport

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// reporter holds a per-source rate limiter and its last activity time.
type reporter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// sourceLimiter applies token-bucket rate limiting per reporting source
// and evicts sources that have gone quiet. A misbehaving client can flood
// the collector with reports; the limiter keeps one source from starving
// the rest.
type sourceLimiter struct {
	mu        sync.Mutex
	reporters map[string]*reporter
	rate      rate.Limit
	burst     int
	stopCh    chan struct{}
	staleAge  time.Duration
	sweepTick time.Duration
}

// newSourceLimiter creates a per-source limiter. A background sweep runs
// every sweepTick and drops sources idle for longer than staleAge.
func newSourceLimiter(r float64, burst int, staleAge, sweepTick time.Duration) *sourceLimiter {
	sl := &sourceLimiter{
		reporters: make(map[string]*reporter),
		rate:      rate.Limit(r),
		burst:     burst,
		stopCh:    make(chan struct{}),
		staleAge:  staleAge,
		sweepTick: sweepTick,
	}
	go sl.sweep()
	return sl
}

// Allow reports whether a request from the given source should be served.
// Unseen sources start with a full burst.
func (sl *sourceLimiter) Allow(source string) bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	r, ok := sl.reporters[source]
	if !ok {
		r = &reporter{
			limiter: rate.NewLimiter(sl.rate, sl.burst),
		}
		sl.reporters[source] = r
	}
	r.lastSeen = time.Now()
	return r.limiter.Allow()
}

// Stop halts the background sweep goroutine.
func (sl *sourceLimiter) Stop() {
	close(sl.stopCh)
}

func (sl *sourceLimiter) sweep() {
	ticker := time.NewTicker(sl.sweepTick)
	defer ticker.Stop()

	for {
		select {
		case <-sl.stopCh:
			return
		case <-ticker.C:
			sl.mu.Lock()
			now := time.Now()
			for source, r := range sl.reporters {
				if now.Sub(r.lastSeen) > sl.staleAge {
					delete(sl.reporters, source)
				}
			}
			sl.mu.Unlock()
		}
	}
}
