package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// UserRateLimiter enforces a minimum interval between requests per user.
// Entries are pruned after sitting idle for ttl so the map stays bounded.
type UserRateLimiter struct {
	mu       sync.Mutex
	users    map[string]*userLimiter
	interval time.Duration
	ttl      time.Duration
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewUserRateLimiter(interval, ttl time.Duration) *UserRateLimiter {
	l := &UserRateLimiter{
		users:    make(map[string]*userLimiter),
		interval: interval,
		ttl:      ttl,
	}
	go l.prune()
	return l
}

func (l *UserRateLimiter) allow(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.users[userID]
	if !ok {
		u = &userLimiter{limiter: rate.NewLimiter(rate.Every(l.interval), 1)}
		l.users[userID] = u
	}
	u.lastSeen = time.Now()
	return u.limiter.Allow()
}

func (l *UserRateLimiter) prune() {
	ticker := time.NewTicker(l.ttl)
	defer ticker.Stop()
	for range ticker.C {
		l.mu.Lock()
		for id, u := range l.users {
			if time.Since(u.lastSeen) > l.ttl {
				delete(l.users, id)
			}
		}
		l.mu.Unlock()
	}
}

// Middleware rejects requests that arrive faster than the configured
// interval with 429. Requires JWTAuth upstream.
func (l *UserRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !l.allow(userID) {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
