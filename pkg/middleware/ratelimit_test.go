package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/WarrenAdams8/expo-credential-manager/pkg/config"
)

func newTestRateLimiter(cfg config.AuthRateLimitConfig) *AuthRateLimiter {
	return NewAuthRateLimiter(cfg, zap.NewNop())
}

func TestAuthRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
		requests    int
		wantAllowed int
	}{
		// Burst is half of max attempts
		{"allows up to burst", 10, 5, 5},
		{"blocks after burst exceeded", 6, 5, 3},
		{"single request allowed", 10, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := newTestRateLimiter(config.AuthRateLimitConfig{
				Enabled:        true,
				MaxAttempts:    tt.maxAttempts,
				WindowSeconds:  60,
				LockoutSeconds: 300,
			})

			allowed := 0
			for i := 0; i < tt.requests; i++ {
				if rl.Allow("test-key") {
					allowed++
				}
			}

			if allowed != tt.wantAllowed {
				t.Errorf("Allowed %d requests, want %d", allowed, tt.wantAllowed)
			}
		})
	}
}

func TestAuthRateLimiter_Disabled(t *testing.T) {
	rl := newTestRateLimiter(config.AuthRateLimitConfig{
		Enabled:     false,
		MaxAttempts: 1,
	})

	for i := 0; i < 20; i++ {
		if !rl.Allow("test-key") {
			t.Fatal("Disabled limiter should always allow")
		}
	}
}

func TestAuthRateLimiter_Lockout(t *testing.T) {
	rl := newTestRateLimiter(config.AuthRateLimitConfig{
		Enabled:        true,
		MaxAttempts:    2,
		WindowSeconds:  60,
		LockoutSeconds: 300,
	})

	// Exhaust the bucket
	for rl.Allow("victim") {
	}

	// Locked out now, even though the bucket would slowly refill
	if rl.Allow("victim") {
		t.Error("Expected lockout after exceeding the limit")
	}

	// Other identifiers unaffected
	if !rl.Allow("bystander") {
		t.Error("Lockout should be scoped to the identifier")
	}
}

func TestAuthRateLimiter_RecordFailure(t *testing.T) {
	rl := newTestRateLimiter(config.AuthRateLimitConfig{
		Enabled:        true,
		MaxAttempts:    8,
		WindowSeconds:  60,
		LockoutSeconds: 300,
	})

	// Burst is 4; each failure consumes 2 tokens
	rl.RecordFailure("test-key")
	rl.RecordFailure("test-key")

	if rl.Allow("test-key") {
		t.Error("Expected failures to drain the bucket")
	}
}

func TestAuthRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	setup := func(cfg config.AuthRateLimitConfig) *gin.Engine {
		rl := newTestRateLimiter(cfg)
		router := gin.New()
		router.POST("/login", AuthRateLimitMiddleware(rl), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})
		return router
	}

	do := func(router *gin.Engine) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		router.ServeHTTP(w, req)
		return w.Code
	}

	t.Run("UnderLimit", func(t *testing.T) {
		router := setup(config.AuthRateLimitConfig{
			Enabled:        true,
			MaxAttempts:    10,
			WindowSeconds:  60,
			LockoutSeconds: 300,
		})

		if code := do(router); code != http.StatusOK {
			t.Errorf("Expected 200, got %d", code)
		}
	})

	t.Run("OverLimit", func(t *testing.T) {
		router := setup(config.AuthRateLimitConfig{
			Enabled:        true,
			MaxAttempts:    2,
			WindowSeconds:  60,
			LockoutSeconds: 300,
		})

		var code int
		for i := 0; i < 10; i++ {
			code = do(router)
		}
		if code != http.StatusTooManyRequests {
			t.Errorf("Expected 429 after exhausting limit, got %d", code)
		}
	})

	t.Run("Disabled", func(t *testing.T) {
		router := setup(config.AuthRateLimitConfig{Enabled: false, MaxAttempts: 1})

		for i := 0; i < 10; i++ {
			if code := do(router); code != http.StatusOK {
				t.Fatalf("Expected 200 with limiter disabled, got %d", code)
			}
		}
	})
}

func TestAuthRateLimitMiddlewareWithIdentifier(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := newTestRateLimiter(config.AuthRateLimitConfig{
		Enabled:        true,
		MaxAttempts:    2,
		WindowSeconds:  60,
		LockoutSeconds: 300,
	})

	router := gin.New()
	router.GET("/options", AuthRateLimitMiddlewareWithIdentifier(rl, func(c *gin.Context) string {
		return c.Query("email")
	}), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	do := func(email string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/options?email="+email, nil)
		router.ServeHTTP(w, req)
		return w.Code
	}

	// Exhaust alice's budget
	for i := 0; i < 10; i++ {
		do("alice@example.com")
	}
	if code := do("alice@example.com"); code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 for exhausted identifier, got %d", code)
	}

	// bob has his own bucket
	if code := do("bob@example.com"); code != http.StatusOK {
		t.Errorf("Expected 200 for fresh identifier, got %d", code)
	}
}
