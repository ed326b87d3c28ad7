// Package ratelimit provides the per-adapter sliding-window limiter. Two
// windows run side by side: one over request timestamps, one over
// (timestamp, token-count) pairs. Limiter state is private to one adapter
// instance; each adapter enforces its own quota independently, never a
// global one.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type tokenEntry struct {
	at time.Time
	n  int
}

// Limiter caps requests and cumulative tokens per sliding 60-second window.
// A zero cap on either axis disables throttling on that axis.
type Limiter struct {
	mu                sync.Mutex
	requestsPerMinute int
	tokensPerMinute   int
	window            time.Duration

	requests  []time.Time
	tokens    []tokenEntry
	tokensSum int

	now func() time.Time
}

// New creates a limiter with the given per-minute caps. Zero disables a cap.
func New(requestsPerMinute, tokensPerMinute int) *Limiter {
	return &Limiter{
		requestsPerMinute: requestsPerMinute,
		tokensPerMinute:   tokensPerMinute,
		window:            time.Minute,
		now:               time.Now,
	}
}

// Acquire blocks until recording a request of the given token count would
// keep both windows under their caps, then records it. The wait is the time
// until the oldest window entry expires, a suspension rather than a busy
// loop.
// Returns the context's error if it is cancelled while waiting.
func (l *Limiter) Acquire(ctx context.Context, tokens int) error {
	for {
		wait := l.tryAcquire(tokens)
		if wait <= 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire records the call and returns 0 when under both caps, otherwise
// returns how long to wait before re-checking.
func (l *Limiter) tryAcquire(tokens int) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	var wait time.Duration
	if l.requestsPerMinute > 0 && len(l.requests) >= l.requestsPerMinute {
		if w := l.requests[0].Add(l.window).Sub(now); w > wait {
			wait = w
		}
	}
	if l.tokensPerMinute > 0 && len(l.tokens) > 0 && l.tokensSum+tokens > l.tokensPerMinute {
		if w := l.tokens[0].at.Add(l.window).Sub(now); w > wait {
			wait = w
		}
	}
	if wait > 0 {
		return wait
	}

	if l.requestsPerMinute > 0 {
		l.requests = append(l.requests, now)
	}
	if l.tokensPerMinute > 0 && tokens > 0 {
		l.tokens = append(l.tokens, tokenEntry{at: now, n: tokens})
		l.tokensSum += tokens
	}
	return 0
}

// prune drops entries older than the window. Callers hold l.mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.requests) && !l.requests[i].After(cutoff) {
		i++
	}
	l.requests = l.requests[i:]

	j := 0
	for j < len(l.tokens) && !l.tokens[j].at.After(cutoff) {
		l.tokensSum -= l.tokens[j].n
		j++
	}
	l.tokens = l.tokens[j:]
}
