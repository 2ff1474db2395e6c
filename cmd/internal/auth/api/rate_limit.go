package authapi

import (
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"
)

// loginLimiter counts failed login actions per client address over a
// sliding window.
type loginLimiter struct {
	max    int
	window time.Duration

	mu       sync.Mutex
	failures map[string][]time.Time
}

func newLoginLimiter(max int, window time.Duration) *loginLimiter {
	return &loginLimiter{max: max, window: window, failures: make(map[string][]time.Time)}
}

// check reports whether ip is currently blocked and for how long.
func (l *loginLimiter) check(ip net.IP, now time.Time) (bool, time.Duration) {
	if l == nil || ip == nil || l.max <= 0 {
		return false, 0
	}
	key := ip.String()

	l.mu.Lock()
	defer l.mu.Unlock()
	kept := pruneBefore(l.failures[key], now.Add(-l.window))
	if len(kept) == 0 {
		delete(l.failures, key)
	} else {
		l.failures[key] = kept
	}
	return evaluateWindowThrottle(now, kept, l.max, l.window)
}

func (l *loginLimiter) fail(ip net.IP, now time.Time) {
	if l == nil || ip == nil || l.max <= 0 {
		return
	}
	key := ip.String()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[key] = append(pruneBefore(l.failures[key], now.Add(-l.window)), now)
}

func pruneBefore(ts []time.Time, cut time.Time) []time.Time {
	out := ts[:0]
	for _, t := range ts {
		if t.After(cut) {
			out = append(out, t)
		}
	}
	return out
}

// evaluateWindowThrottle blocks once max failures fall inside window. The
// retry delay is the time until enough of them age out.
func evaluateWindowThrottle(now time.Time, failures []time.Time, max int, window time.Duration) (bool, time.Duration) {
	if max <= 0 || window <= 0 {
		return false, 0
	}
	cut := now.Add(-window)
	var recent []time.Time
	for _, f := range failures {
		if f.After(cut) {
			recent = append(recent, f)
		}
	}
	if len(recent) < max {
		return false, 0
	}
	slices.SortFunc(recent, func(a, b time.Time) int { return a.Compare(b) })
	expires := recent[len(recent)-max].Add(window)
	return true, expires.Sub(now)
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}
	writeJSON(w, http.StatusTooManyRequests, actionErrors{"banner": "Too many attempts. Please try again later."})
}
