package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter controls how frequently a user may start a new download request.
type Limiter interface {
	Allow(userID int64) bool
}

// userRateLimiter tracks request rates per chat user with expiration of idle entries.
type userRateLimiter struct {
	mu       sync.Mutex
	visitors map[int64]*visitor
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

// New constructs a per-user rate limiter that allows up to requests events per
// window. Idle entries expire after the provided ttl.
func New(requests int, window time.Duration, ttl time.Duration) Limiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Second
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &userRateLimiter{
		visitors: make(map[int64]*visitor),
		limit:    rate.Every(window / time.Duration(requests)),
		burst:    requests,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (l *userRateLimiter) Allow(userID int64) bool {
	now := l.now()

	l.mu.Lock()
	v := l.getVisitorLocked(userID, now)
	l.gcLocked(now)
	l.mu.Unlock()

	return v.limiter.Allow()
}

func (l *userRateLimiter) getVisitorLocked(userID int64, now time.Time) *visitor {
	if v, ok := l.visitors[userID]; ok {
		v.lastSeen = now
		return v
	}

	v := &visitor{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: now}
	l.visitors[userID] = v
	return v
}

func (l *userRateLimiter) gcLocked(now time.Time) {
	for userID, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, userID)
		}
	}
}
