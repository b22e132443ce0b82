package web

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// rateLimiter implements a fixed window rate limiter per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int           // requests per window
	window   time.Duration // time window
	now      func() time.Time
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

// newRateLimiter creates a rate limiter with the specified rate per window.
// Stale entries are swept until stop is closed.
func newRateLimiter(rate int, window time.Duration, stop <-chan struct{}) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
		now:      time.Now,
	}
	go rl.cleanup(stop)
	return rl
}

// cleanup removes stale visitor entries once per window.
func (rl *rateLimiter) cleanup(stop <-chan struct{}) {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *rateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for ip, v := range rl.visitors {
		if now.Sub(v.lastReset) > rl.window*2 {
			delete(rl.visitors, ip)
		}
	}
}

// allow checks if the request should be allowed and consumes a token if so.
// When it is not, it also returns how long until the window resets.
func (rl *rateLimiter) allow(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, exists := rl.visitors[ip]
	if !exists || now.Sub(v.lastReset) > rl.window {
		rl.visitors[ip] = &visitor{
			tokens:    rl.rate - 1, // consume one token
			lastReset: now,
		}
		return true, 0
	}

	if v.tokens <= 0 {
		return false, rl.window - now.Sub(v.lastReset)
	}

	v.tokens--
	return true, 0
}

// middleware returns an HTTP middleware that rate limits by client IP.
// RemoteAddr has already been resolved by TrustedRealIP.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retry := rl.allow(r.RemoteAddr)
		if !ok {
			seconds := int(retry.Round(time.Second) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "RATE001")
			return
		}

		next.ServeHTTP(w, r)
	})
}
