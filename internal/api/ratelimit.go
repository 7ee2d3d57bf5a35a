package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleTTL is how long an unused client limiter is kept.
const idleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter throttles requests per client key with a token bucket each.
// Limiters idle for longer than ten minutes are dropped by a background
// sweep. Safe for concurrent use.
type Limiter struct {
	rps   rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	clients map[string]*clientLimiter

	stop     chan struct{}
	stopOnce sync.Once
}

// NewLimiter creates a [Limiter] allowing rps requests per second with the
// given burst per client. A non-positive rps allows everything. A burst
// below one is raised to one.
func NewLimiter(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
		stop:    make(chan struct{}),
	}
	if rps <= 0 {
		l.rps = rate.Inf
	}
	go l.sweepLoop()
	return l
}

// Allow reports whether the client identified by key may proceed.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	c, ok := l.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	l.mu.Unlock()
	return c.limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) sweep() {
	cutoff := l.now().Add(-idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}

func (l *Limiter) sweepLoop() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-t.C:
			l.sweep()
		}
	}
}

// Close stops the background sweep.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}
