package middleware

import (
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/WarrenAdams8/expo-credential-manager/pkg/config"
)

// AuthRateLimiter throttles the authentication endpoints. Each
// identifier gets a token bucket sized from the configured window;
// exhausting the bucket triggers a lockout.
type AuthRateLimiter struct {
	config config.AuthRateLimitConfig
	logger *zap.Logger

	mu       sync.RWMutex
	limiters map[string]*authLimiter

	cleanupInterval time.Duration
	lastCleanup     time.Time
}

// authLimiter tracks rate limiting state for a single identifier
type authLimiter struct {
	limiter    *rate.Limiter
	lastSeen   time.Time
	lockedOut  bool
	lockoutEnd time.Time
}

// NewAuthRateLimiter creates a rate limiter for auth endpoints
func NewAuthRateLimiter(cfg config.AuthRateLimitConfig, logger *zap.Logger) *AuthRateLimiter {
	cfg.SetDefaults()
	return &AuthRateLimiter{
		config:          cfg,
		logger:          logger.Named("auth-ratelimit"),
		limiters:        make(map[string]*authLimiter),
		cleanupInterval: 10 * time.Minute,
		lastCleanup:     time.Now(),
	}
}

// getLimiter returns the limiter for an identifier, creating it if needed
func (r *AuthRateLimiter) getLimiter(identifier string) *authLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if time.Since(r.lastCleanup) > r.cleanupInterval {
		r.cleanup()
	}

	limiter, exists := r.limiters[identifier]
	if exists {
		limiter.lastSeen = time.Now()
		return limiter
	}

	// MaxAttempts spread over WindowSeconds, with a burst of half
	rateLimit := rate.Limit(float64(r.config.MaxAttempts) / float64(r.config.WindowSeconds))
	burst := int(math.Ceil(float64(r.config.MaxAttempts) / 2.0))
	if burst < 1 {
		burst = 1
	}

	limiter = &authLimiter{
		limiter:  rate.NewLimiter(rateLimit, burst),
		lastSeen: time.Now(),
	}
	r.limiters[identifier] = limiter

	return limiter
}

// cleanup removes limiters that have not been touched recently.
// Caller must hold the write lock.
func (r *AuthRateLimiter) cleanup() {
	cutoff := time.Now().Add(-30 * time.Minute)
	for key, limiter := range r.limiters {
		if limiter.lastSeen.Before(cutoff) {
			delete(r.limiters, key)
		}
	}
	r.lastCleanup = time.Now()
}

// Allow reports whether a request from the identifier may proceed
func (r *AuthRateLimiter) Allow(identifier string) bool {
	if !r.config.Enabled {
		return true
	}

	limiter := r.getLimiter(identifier)

	r.mu.RLock()
	if limiter.lockedOut {
		if time.Now().Before(limiter.lockoutEnd) {
			r.mu.RUnlock()
			return false
		}
		// Lockout expired
		r.mu.RUnlock()
		r.mu.Lock()
		limiter.lockedOut = false
		r.mu.Unlock()
	} else {
		r.mu.RUnlock()
	}

	if !limiter.limiter.Allow() {
		r.mu.Lock()
		limiter.lockedOut = true
		limiter.lockoutEnd = time.Now().Add(time.Duration(r.config.LockoutSeconds) * time.Second)
		r.mu.Unlock()

		r.logger.Warn("Auth rate limit exceeded, applying lockout",
			zap.String("identifier", identifier),
			zap.Duration("lockout_duration", time.Duration(r.config.LockoutSeconds)*time.Second),
		)

		return false
	}

	return true
}

// RecordFailure charges extra for a failed authentication attempt so
// repeated failures hit the limit sooner
func (r *AuthRateLimiter) RecordFailure(identifier string) {
	if !r.config.Enabled {
		return
	}

	limiter := r.getLimiter(identifier)
	limiter.limiter.AllowN(time.Now(), 2)
}

// AuthRateLimitMiddleware returns a Gin middleware that rate limits
// requests through a shared anonymous pool. No per-client tracking:
// the ceremony endpoints accept unauthenticated traffic and we do not
// key on IP.
func AuthRateLimitMiddleware(rl *AuthRateLimiter) gin.HandlerFunc {
	return AuthRateLimitMiddlewareWithIdentifier(rl, func(*gin.Context) string { return "" })
}

// AuthRateLimitMiddlewareWithIdentifier rate limits using a caller
// supplied identifier extractor. An empty identifier falls back to the
// shared anonymous pool.
func AuthRateLimitMiddlewareWithIdentifier(rl *AuthRateLimiter, extractID func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.config.Enabled {
			c.Next()
			return
		}

		identifier := extractID(c)
		if identifier == "" {
			identifier = "_anonymous"
		}

		if !rl.Allow(identifier) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "Too many authentication attempts. Please try again later.",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
