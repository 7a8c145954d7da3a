// Package ratelimit implements fixed-window request counting per client key.
package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	count int
	reset time.Time
}

// Limiter allows at most Limit hits per key within each window. The first hit
// of a key opens its window; the window resets once it has elapsed.
type Limiter struct {
	limit  int
	period time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window

	stop chan struct{}
	done chan struct{}
}

// New returns a limiter and starts a goroutine that drops expired windows.
// Call Close to stop it.
func New(limit int, period time.Duration) *Limiter {
	l := &Limiter{
		limit:   limit,
		period:  period,
		now:     time.Now,
		windows: make(map[string]*window),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Allow records a hit for key and reports whether it is within the limit,
// together with the number of hits left and the time the window resets.
func (l *Limiter) Allow(key string) (ok bool, remaining int, reset time.Time) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, found := l.windows[key]
	if !found || !now.Before(w.reset) {
		w = &window{reset: now.Add(l.period)}
		l.windows[key] = w
	}
	w.count++
	if w.count > l.limit {
		return false, 0, w.reset
	}
	return true, l.limit - w.count, w.reset
}

func (l *Limiter) Limit() int { return l.limit }

func (l *Limiter) sweep() {
	defer close(l.done)

	interval := l.period
	if interval > time.Minute {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-t.C:
			now := l.now()
			l.mu.Lock()
			for k, w := range l.windows {
				if !now.Before(w.reset) {
					delete(l.windows, k)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Close stops the sweeper and waits for it to exit.
func (l *Limiter) Close() {
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
	<-l.done
}
