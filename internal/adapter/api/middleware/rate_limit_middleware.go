package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"tradetalk/pkg/logger"
)

// IPRateLimiter is a per-IP token bucket guarding the whole HTTP surface.
// Per-user, per-action limits live in the discussion use case; this layer only
// stops unauthenticated floods before they reach a handler.
type IPRateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rate     int
	window   time.Duration
}

type visitor struct {
	tokens     int
	lastSeen   time.Time
	blocked    bool
	blockUntil time.Time
}

func NewIPRateLimiter(rate int, window time.Duration) *IPRateLimiter {
	rl := &IPRateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}

	go rl.cleanup()

	return rl
}

// Middleware rejects requests from IPs that have exhausted their window.
func (rl *IPRateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()

			if blocked, resetTime := rl.take(ip); blocked {
				logger.Warn("Rate limit: blocked request from %s (reset in %v)", ip, time.Until(resetTime))

				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":       "Rate limit exceeded",
					"retry_after": int(time.Until(resetTime).Seconds()),
				})
			}

			return next(c)
		}
	}
}

// take consumes a token for ip, reporting whether the request must be blocked
// and until when.
func (rl *IPRateLimiter) take(ip string) (bool, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{
			tokens:   rl.rate - 1,
			lastSeen: time.Now(),
		}
		return false, time.Time{}
	}

	now := time.Now()

	if v.blocked {
		if now.Before(v.blockUntil) {
			return true, v.blockUntil
		}
		v.blocked = false
		v.tokens = rl.rate
	}

	refill := int(now.Sub(v.lastSeen) / rl.window * time.Duration(rl.rate))
	v.tokens += refill
	if v.tokens > rl.rate {
		v.tokens = rl.rate
	}
	v.lastSeen = now

	if v.tokens <= 0 {
		v.blocked = true
		v.blockUntil = now.Add(rl.window)
		return true, v.blockUntil
	}

	v.tokens--
	return false, time.Time{}
}

func (rl *IPRateLimiter) cleanup() {
	for {
		time.Sleep(time.Hour)

		rl.mu.Lock()
		now := time.Now()
		for ip, v := range rl.visitors {
			if now.Sub(v.lastSeen) > 2*time.Hour {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}
