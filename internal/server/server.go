// Package server builds the HTTP router for the credential manager.
// The same router is served by cmd/server and exercised directly by
// the integration tests.
package server

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/WarrenAdams8/expo-credential-manager/internal/api"
	"github.com/WarrenAdams8/expo-credential-manager/internal/service"
	"github.com/WarrenAdams8/expo-credential-manager/pkg/config"
	"github.com/WarrenAdams8/expo-credential-manager/pkg/middleware"
)

// NewRouter assembles the Gin engine: recovery and logging middleware,
// CORS, rate limiting on the authentication surfaces, and all routes.
func NewRouter(cfg *config.Config, services *service.Services, logger *zap.Logger) *gin.Engine {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	handlers := api.NewHandlers(services, cfg, logger)

	// Health/status endpoints
	router.GET("/status", handlers.Status)
	router.GET("/health", handlers.Status)

	// Session token verification keys
	router.GET("/.well-known/jwks.json", handlers.JWKS)

	rateLimiter := middleware.NewAuthRateLimiter(cfg.Security.AuthRateLimit, logger)

	// Public authentication surfaces, all rate limited
	apiGroup := router.Group("/api")
	apiGroup.Use(middleware.AuthRateLimitMiddlewareWithIdentifier(rateLimiter, authIdentifier))
	{
		// Passkey registration ceremony
		apiGroup.GET("/webauthn/registration", handlers.RegistrationOptions)
		apiGroup.POST("/webauthn/registration/finish", handlers.VerifyRegistration)

		// Passkey authentication ceremony
		apiGroup.GET("/webauthn/authentication", handlers.AuthenticationOptions)
		apiGroup.POST("/webauthn/authentication/finish", handlers.VerifyAuthentication)

		// Google sign-in
		apiGroup.POST("/google/verify", handlers.GoogleSignIn)

		// Email/password
		apiGroup.POST("/password/register", handlers.PasswordRegister)
		apiGroup.POST("/password/login", handlers.PasswordLogin)
	}

	// Protected routes
	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(services.Token.PublicKey(), cfg.JWT, logger))
	{
		protected.GET("/whoami", handlers.WhoAmI)
	}

	return router
}

// maxIdentifierPeek caps how much of a request body the rate limiter
// will read looking for an email. Auth payloads are tiny.
const maxIdentifierPeek = 1 << 16

// authIdentifier keys the rate limiter on the identity under attack:
// the email query parameter on the options endpoints, or the email
// field of the JSON body on the password and finish endpoints. The
// body is peeked and restored so handlers can still bind it. Requests
// with neither share the anonymous pool.
func authIdentifier(c *gin.Context) string {
	if email := strings.TrimSpace(c.Query("email")); email != "" {
		return email
	}
	if c.Request.Body == nil {
		return ""
	}

	peeked, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIdentifierPeek))
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(peeked), c.Request.Body))

	var body struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(peeked, &body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.Email)
}
