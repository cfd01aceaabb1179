package http

import (
	"sync"
	"time"
)

// windowLimiter admits at most limit requests per client in each fixed
// window. Windows start at a client's first request.
type windowLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	windows map[string]*clientWindow

	done     chan struct{}
	stopOnce sync.Once
}

type clientWindow struct {
	start time.Time
	count int
}

func newWindowLimiter(limit int, window time.Duration) *windowLimiter {
	l := &windowLimiter{
		limit:   limit,
		window:  window,
		windows: make(map[string]*clientWindow),
		done:    make(chan struct{}),
	}
	go l.sweepLoop(5 * window)
	return l
}

func (l *windowLimiter) sweepLoop(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case now := <-t.C:
			l.sweep(now)
		case <-l.done:
			return
		}
	}
}

// sweep forgets clients whose window closed before now.
func (l *windowLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for client, w := range l.windows {
		if now.Sub(w.start) >= l.window {
			delete(l.windows, client)
		}
	}
}

func (l *windowLimiter) stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// allow reports whether client may make another request at now. When it
// may not, retryAfter is the time left in its window.
func (l *windowLimiter) allow(client string, now time.Time) (ok bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[client]
	if w == nil || now.Sub(w.start) >= l.window {
		l.windows[client] = &clientWindow{start: now, count: 1}
		return true, 0
	}
	if w.count >= l.limit {
		return false, l.window - now.Sub(w.start)
	}
	w.count++
	return true, 0
}
