package server

import (
	"strconv"
	"sync"
	"time"
)

// rateLimiter enforces a fixed window per key (authenticated DID or
// client IP). Expired windows are garbage-collected by a background
// sweep; Allow also resets them on touch so correctness never depends on
// the sweeper.
type rateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	window  time.Duration
	max     int

	stop     chan struct{}
	stopOnce sync.Once
}

type rateWindow struct {
	count int
	start time.Time
}

func newRateLimiter(window time.Duration, max int) *rateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 120
	}
	rl := &rateLimiter{
		windows: make(map[string]*rateWindow),
		window:  window,
		max:     max,
		stop:    make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

// Close stops the sweep goroutine. Idempotent; Allow keeps working
// afterwards since it resets stale windows on touch.
func (rl *rateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Allow reports whether the request fits the window, plus the remaining
// quota and the window reset time for the standard rate-limit headers.
func (rl *rateLimiter) Allow(key string) (allowed bool, remaining int, reset time.Time) {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok || now.Sub(w.start) > rl.window {
		w = &rateWindow{start: now}
		rl.windows[key] = w
	}
	reset = w.start.Add(rl.window)
	if w.count >= rl.max {
		return false, 0, reset
	}
	w.count++
	return true, rl.max - w.count, reset
}

func (rl *rateLimiter) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			now := time.Now()
			rl.mu.Lock()
			for key, w := range rl.windows {
				if now.Sub(w.start) > 2*rl.window {
					delete(rl.windows, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func retryAfterSeconds(reset time.Time) string {
	secs := int(time.Until(reset).Seconds()) + 1
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
