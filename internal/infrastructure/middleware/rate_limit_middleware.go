package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"meetsignal/pkg/config"
	apperrors "meetsignal/pkg/errors"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiterStore stores per-key (for example, per IP) rate limiters.
type rateLimiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	rate      rate.Limit
	burstSize int
	lastPrune time.Time
}

func newRateLimiterStore(r rate.Limit, burst int) *rateLimiterStore {
	return &rateLimiterStore{
		limiters:  make(map[string]*limiterEntry),
		rate:      r,
		burstSize: burst,
		lastPrune: time.Now(),
	}
}

func (s *rateLimiterStore) getLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if now.Sub(s.lastPrune) > time.Minute {
		for k, e := range s.limiters {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(s.limiters, k)
			}
		}
		s.lastPrune = now
	}

	entry, exists := s.limiters[key]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(s.rate, s.burstSize)}
		s.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// clientIP extracts the caller address, preferring the first X-Forwarded-For hop.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// NewHTTPRateLimitMiddleware returns Gin middleware that applies simple IP-based rate limiting.
func NewHTTPRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	if !cfg.RateLimiting.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	store := newRateLimiterStore(rate.Limit(cfg.RateLimiting.HTTP.RequestsPerSecond), cfg.RateLimiting.HTTP.Burst)
	slots := NewConnectionSlots(cfg.RateLimiting.HTTP.MaxConcurrent)

	return func(c *gin.Context) {
		if !slots.TryAcquire() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   string(apperrors.ErrCodeServiceUnavailable),
				"message": "too many concurrent requests",
			})
			return
		}
		defer slots.Release()

		limiter := store.getLimiter(clientIP(c.Request))
		if !limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   string(apperrors.ErrCodeRateLimit),
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// NewConnectionLimiter returns the token bucket applied to one websocket connection's inbound
// messages, or nil when rate limiting is disabled.
func NewConnectionLimiter(cfg *config.Config) *rate.Limiter {
	if !cfg.RateLimiting.Enabled {
		return nil
	}
	ws := cfg.RateLimiting.WebSocket
	return rate.NewLimiter(rate.Limit(ws.MessagesPerSecond), ws.Burst)
}

// ConnectionSlots caps concurrent holders. A nil *ConnectionSlots is unlimited.
type ConnectionSlots struct {
	sem chan struct{}
}

// NewConnectionSlots returns nil when max <= 0.
func NewConnectionSlots(max int) *ConnectionSlots {
	if max <= 0 {
		return nil
	}
	return &ConnectionSlots{sem: make(chan struct{}, max)}
}

func (s *ConnectionSlots) TryAcquire() bool {
	if s == nil {
		return true
	}
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *ConnectionSlots) Release() {
	if s == nil {
		return
	}
	select {
	case <-s.sem:
	default:
	}
}

func (s *ConnectionSlots) InUse() int {
	if s == nil {
		return 0
	}
	return len(s.sem)
}
