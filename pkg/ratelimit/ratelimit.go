// Package ratelimit implements the per-client sliding-window limit applied by
// the enhancement endpoint.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultLimit is the number of requests allowed per window
	DefaultLimit = 10

	// DefaultWindow is the sliding window length
	DefaultWindow = 60 * time.Second
)

// Result is the outcome of one Allow call
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAfter time.Duration
}

// Limiter decides whether a client identified by key may make another request
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Memory is an in-process sliding-window limiter
type Memory struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	hits      map[string][]time.Time
	lastPrune time.Time
}

// NewMemory creates an in-memory limiter allowing limit requests per window
func NewMemory(limit int, window time.Duration) *Memory {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Memory{limit: limit, window: window, now: time.Now, hits: make(map[string][]time.Time)}
}

// Allow records a request for key if it fits in the window. Keys idle for a
// whole window are swept at most once per window.
func (m *Memory) Allow(ctx context.Context, key string) (Result, error) {
	now := m.now()
	cutoff := now.Add(-m.window)

	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Sub(m.lastPrune) >= m.window {
		m.prune(cutoff)
		m.lastPrune = now
	}

	hits := m.hits[key]
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	hits = hits[i:]

	if len(hits) >= m.limit {
		m.hits[key] = hits
		return Result{Allowed: false, ResetAfter: atLeastSecond(hits[0].Add(m.window).Sub(now))}, nil
	}

	hits = append(hits, now)
	m.hits[key] = hits
	return Result{Allowed: true, Remaining: m.limit - len(hits), ResetAfter: m.window}, nil
}

// Prune drops keys with no hits inside the window
func (m *Memory) Prune() int {
	cutoff := m.now().Add(-m.window)

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prune(cutoff)
}

// Len returns the number of tracked keys
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hits)
}

func (m *Memory) prune(cutoff time.Time) int {
	n := 0
	for k, hits := range m.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(m.hits, k)
			n++
		}
	}
	return n
}

func atLeastSecond(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	return d
}
