// Package ratelimit tracks the per-route and global request budgets the
// Discord API advertises through X-RateLimit-* response headers.
//
// Local state is only a best-effort predictor used to avoid sending requests
// that would certainly be rejected; the server's header-reported state is the
// source of truth and always overwrites local estimates.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"cordctl/internal/apierr"
	"cordctl/pkg/logging"
)

const (
	// Optimistic budget for a route we have never seen a response for.
	// The first call proceeds immediately; the server corrects us via Update.
	initialCeiling   = 5
	initialRemaining = initialCeiling - 1

	// defaultWindow is the reset horizon assumed when the server has not
	// reported one.
	defaultWindow = 5 * time.Second
)

// routeState tracks the budget for one normalized route.
type routeState struct {
	remaining int
	ceiling   int
	resetAt   time.Time

	// waiter is the shared release signal for callers blocked on an
	// exhausted budget. All of them resume on the same close.
	waiter chan struct{}
}

// globalState is set only when the server signals a global throttle. While
// active it blocks every route.
type globalState struct {
	resetAt time.Time
	waiter  chan struct{}
}

// Limiter coordinates outbound requests against server-dictated budgets.
type Limiter struct {
	mu     sync.Mutex
	routes map[string]*routeState
	global *globalState

	now func() time.Time // injectable for tests
}

// New creates a limiter with empty state. State is process-wide and never
// persisted across runs.
func New() *Limiter {
	return &Limiter{
		routes: make(map[string]*routeState),
		now:    time.Now,
	}
}

// Acquire blocks until a request on the given route is permitted, or the
// context is cancelled. A global throttle suspends every caller regardless
// of route. Callers blocked on the same exhausted budget share a single
// timer and resume together.
func (l *Limiter) Acquire(ctx context.Context, route string) error {
	for {
		l.mu.Lock()

		// Global throttle supersedes per-route budgets.
		if g := l.global; g != nil {
			now := l.now()
			if now.Before(g.resetAt) {
				ch := l.globalWaiterLocked(g, now)
				l.mu.Unlock()
				if err := waitFor(ctx, ch); err != nil {
					return err
				}
				continue
			}
			l.global = nil
		}

		st, ok := l.routes[route]
		if !ok {
			l.routes[route] = &routeState{
				remaining: initialRemaining,
				ceiling:   initialCeiling,
				resetAt:   l.now().Add(defaultWindow),
			}
			l.mu.Unlock()
			return nil
		}

		now := l.now()
		if !now.Before(st.resetAt) {
			// Window elapsed with no server correction: start a fresh one.
			st.remaining = st.ceiling - 1
			st.resetAt = now.Add(defaultWindow)
			st.waiter = nil
			l.mu.Unlock()
			return nil
		}

		if st.remaining > 0 {
			st.remaining--
			l.mu.Unlock()
			return nil
		}

		ch := l.routeWaiterLocked(route, st, now)
		wait := st.resetAt.Sub(now)
		l.mu.Unlock()

		logging.Debug("RateLimit", "budget exhausted for route %s, waiting %s", route, wait)
		if err := waitFor(ctx, ch); err != nil {
			return err
		}
	}
}

// routeWaiterLocked returns the shared waiter for an exhausted route,
// creating it (and its single release timer) on first use.
// REQUIRES: l.mu held.
func (l *Limiter) routeWaiterLocked(route string, st *routeState, now time.Time) chan struct{} {
	if st.waiter != nil {
		return st.waiter
	}

	ch := make(chan struct{})
	st.waiter = ch
	time.AfterFunc(st.resetAt.Sub(now), func() {
		l.mu.Lock()
		if cur, ok := l.routes[route]; ok && cur.waiter == ch {
			cur.waiter = nil
			cur.remaining = cur.ceiling
			cur.resetAt = l.now().Add(defaultWindow)
		}
		l.mu.Unlock()
		close(ch)
	})
	return ch
}

// globalWaiterLocked returns the shared waiter for the active global
// throttle, creating it on first use.
// REQUIRES: l.mu held.
func (l *Limiter) globalWaiterLocked(g *globalState, now time.Time) chan struct{} {
	if g.waiter != nil {
		return g.waiter
	}

	ch := make(chan struct{})
	g.waiter = ch
	time.AfterFunc(g.resetAt.Sub(now), func() {
		l.mu.Lock()
		if l.global == g {
			l.global = nil
		}
		l.mu.Unlock()
		close(ch)
	})
	return ch
}

func waitFor(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// Update overwrites the route's state with the server-reported ground truth
// from a response's headers. It returns a KindRateLimited error when the
// response announced a global throttle or an exhausted route budget, so the
// caller's retry path engages the wait instead of silently proceeding.
func (l *Limiter) Update(route string, header http.Header) error {
	if header == nil {
		return nil
	}

	// A global throttle blocks everything until Retry-After elapses.
	if header.Get("X-RateLimit-Global") != "" {
		retryAfter := parseSeconds(header.Get("Retry-After"), defaultWindow)

		l.mu.Lock()
		l.global = &globalState{resetAt: l.now().Add(retryAfter)}
		l.mu.Unlock()

		logging.Warn("RateLimit", "global rate limit hit, retry after %s", retryAfter)
		return apierr.RateLimited("global rate limit exceeded", retryAfter)
	}

	remainingStr := header.Get("X-RateLimit-Remaining")
	if remainingStr == "" {
		// Response carried no rate-limit information for this route.
		return nil
	}

	remaining, err := strconv.Atoi(remainingStr)
	if err != nil || remaining < 0 {
		remaining = 0
	}
	ceiling := initialCeiling
	if v, err := strconv.Atoi(header.Get("X-RateLimit-Limit")); err == nil && v > 0 {
		ceiling = v
	}
	resetAt := parseResetEpoch(header.Get("X-RateLimit-Reset"), l.now().Add(defaultWindow))

	l.mu.Lock()
	st, ok := l.routes[route]
	if !ok {
		st = &routeState{}
		l.routes[route] = st
	}
	// Server wins over local estimates, but an in-progress shared waiter is
	// preserved so blocked callers still release together.
	st.remaining = remaining
	st.ceiling = ceiling
	st.resetAt = resetAt
	delta := resetAt.Sub(l.now())
	l.mu.Unlock()

	if remaining == 0 {
		if delta < 0 {
			delta = 0
		}
		logging.Warn("RateLimit", "route %s exhausted, reset in %s", route, delta)
		return apierr.RateLimited(fmt.Sprintf("rate limit exceeded for %s", route), delta)
	}

	return nil
}

// Reset discards all limiter state. Used when the process-wide state must be
// abandoned, e.g. after logout in tests.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.routes = make(map[string]*routeState)
	l.global = nil
}

// parseSeconds parses a Retry-After style value (seconds, possibly
// fractional) into a duration, falling back when absent or malformed.
func parseSeconds(v string, fallback time.Duration) time.Duration {
	if v == "" {
		return fallback
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs * float64(time.Second))
}

// parseResetEpoch parses an X-RateLimit-Reset value (Unix epoch seconds,
// possibly fractional) into a time, falling back when absent or malformed.
func parseResetEpoch(v string, fallback time.Time) time.Time {
	if v == "" {
		return fallback
	}
	epoch, err := strconv.ParseFloat(v, 64)
	if err != nil || epoch <= 0 {
		return fallback
	}
	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}
