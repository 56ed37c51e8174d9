// internal/throttle/throttle.go
//
// Increment-with-expiry rate limiting for form submissions.
//
// Context
// -------
// Each submission increments a counter keyed by form, user, and client
// address.  The first increment opens a window; once the window expires the
// counter starts over.  A submission is allowed while the count is at most
// `Max`.
//
// The counter is pluggable: `Memory` serves a single process, while the SQL
// store in internal/storage keeps counts in the `transients` table so several
// processes share one budget.
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package throttle

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Counter increments key and returns the new count.  When the key is new or
// its window has lapsed the count restarts at 1 with a fresh window.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter allows up to Max events per Window per key.
type Limiter struct {
	Counter Counter
	Max     int
	Window  time.Duration
}

// Allow records one event for key and reports whether it fits the budget.
// Max <= 0 disables limiting.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.Max <= 0 {
		return true, nil
	}
	n, err := l.Counter.Incr(ctx, key, l.Window)
	if err != nil {
		return false, err
	}
	return n <= int64(l.Max), nil
}

// Key builds the canonical submission key.
func Key(formID string, userID int64, addr string) string {
	return "form_rl:" + formID + "|" + strconv.FormatInt(userID, 10) + "|" + addr
}

/*──────────────────────────── in-process counter ───────────────────────────*/

type entry struct {
	n   int64
	exp time.Time
}

// Memory is a mutex-guarded Counter.  Expired keys are dropped lazily on
// access.
type Memory struct {
	mu  sync.Mutex
	m   map[string]entry
	now func() time.Time
}

// NewMemory returns an empty in-process counter.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]entry), now: time.Now}
}

// Incr implements Counter.
func (c *Memory) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.m[key]
	if !ok || !now.Before(e.exp) {
		e = entry{exp: now.Add(window)}
	}
	e.n++
	c.m[key] = e
	return e.n, nil
}
