package core

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateKey builds the limiter key for one (identity, event) pair.
func RateKey(userID int64, event string) string {
	return identityPrefix(userID) + event
}

func identityPrefix(userID int64) string {
	return "u" + strconv.FormatInt(userID, 10) + ":"
}

// rateWindow holds the acceptance instants for one key inside a ring
// buffer sized to the limit, so a hot key can never grow unbounded.
type rateWindow struct {
	mu    sync.Mutex
	times []time.Time
	head  int
	count int
}

func (w *rateWindow) allow(now time.Time, limit int, window time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Lazy prune: drop instants that fell out of the trailing window.
	cutoff := now.Add(-window)
	for w.count > 0 && !w.times[w.head].After(cutoff) {
		w.head = (w.head + 1) % len(w.times)
		w.count--
	}

	if w.count >= limit {
		return false
	}

	tail := (w.head + w.count) % len(w.times)
	w.times[tail] = now
	w.count++
	return true
}

// Limiter is a sliding-window counter over caller-supplied keys. It is
// deliberately approximate: up to limit events are accepted in any
// trailing window, which permits bursts up to twice the limit across
// adjacent windows. The limiter knows nothing about rooms or event
// semantics.
type Limiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	windows map[string]*rateWindow
}

// NewLimiter builds a limiter allowing limit events per key in any
// trailing window.
func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		windows: make(map[string]*rateWindow),
	}
}

// Allow records and accepts the event unless the key already saw limit
// events inside the trailing window; rejected events are not recorded.
// A non-positive limit disables limiting.
func (l *Limiter) Allow(key string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}

	l.mu.RLock()
	w := l.windows[key]
	l.mu.RUnlock()

	if w == nil {
		l.mu.Lock()
		w = l.windows[key]
		if w == nil {
			w = &rateWindow{times: make([]time.Time, l.limit)}
			l.windows[key] = w
		}
		l.mu.Unlock()
	}

	return w.allow(l.now(), l.limit, l.window)
}

// ForgetUser drops every window belonging to the identity. Called when a
// user's last live connection goes away so windows don't outlive churn.
func (l *Limiter) ForgetUser(userID int64) {
	if l == nil {
		return
	}
	prefix := identityPrefix(userID)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.windows {
		if strings.HasPrefix(key, prefix) {
			delete(l.windows, key)
		}
	}
}
