package api

import (
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/WarrenAdams8/expo-credential-manager/internal/service"
	"github.com/WarrenAdams8/expo-credential-manager/pkg/config"
)

// Handlers aggregates all HTTP handlers
type Handlers struct {
	services *service.Services
	cfg      *config.Config
	logger   *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services *service.Services, cfg *config.Config, logger *zap.Logger) *Handlers {
	return &Handlers{
		services: services,
		cfg:      cfg,
		logger:   logger.Named("handlers"),
	}
}

// Status handles the /status endpoint
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(200, StatusResponse{
		Status:       "ok",
		Service:      "credential-manager",
		APIVersion:   CurrentAPIVersion,
		Capabilities: APICapabilities[CurrentAPIVersion],
	})
}

// RegistrationOptions issues creation options for a passkey registration
// ceremony. The email identifies (or creates) the account.
func (h *Handlers) RegistrationOptions(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		c.JSON(400, gin.H{"error": "email is required"})
		return
	}

	resp, err := h.services.WebAuthn.BeginRegistration(c.Request.Context(), email)
	if err != nil {
		h.logger.Error("Failed to start registration", zap.Error(err))
		c.JSON(500, gin.H{"error": "Failed to start registration"})
		return
	}

	c.JSON(200, resp)
}

// verifyRegistrationRequest is the registration completion body. The
// attestation response may arrive either as an inline JSON object or as
// a JSON-encoded string, depending on the client serializer.
type verifyRegistrationRequest struct {
	Email        string          `json:"email" binding:"required"`
	ResponseJSON json.RawMessage `json:"responseJson" binding:"required"`
}

// VerifyRegistration completes a passkey registration ceremony
func (h *Handlers) VerifyRegistration(c *gin.Context) {
	var req verifyRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	responseJSON, err := normalizeResponseJSON(req.ResponseJSON)
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid responseJson"})
		return
	}

	resp, err := h.services.WebAuthn.FinishRegistration(c.Request.Context(), strings.TrimSpace(req.Email), responseJSON)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoChallenge):
			c.JSON(410, gin.H{"error": "No pending challenge"})
		case errors.Is(err, service.ErrRegistrationFailed):
			c.JSON(400, gin.H{"error": "Registration verification failed"})
		default:
			h.logger.Error("Failed to finish registration", zap.Error(err))
			c.JSON(500, gin.H{"error": "Failed to complete registration"})
		}
		return
	}

	c.JSON(200, resp)
}

// AuthenticationOptions issues request options for a passkey
// authentication ceremony
func (h *Handlers) AuthenticationOptions(c *gin.Context) {
	resp, err := h.services.WebAuthn.BeginAuthentication(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to start authentication", zap.Error(err))
		c.JSON(500, gin.H{"error": "Failed to start authentication"})
		return
	}

	c.JSON(200, resp)
}

// VerifyAuthentication completes a passkey authentication ceremony. The
// body is the raw assertion response JSON.
func (h *Handlers) VerifyAuthentication(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		c.JSON(400, gin.H{"error": "request body is required"})
		return
	}

	resp, err := h.services.WebAuthn.FinishAuthentication(c.Request.Context(), body)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoChallenge):
			c.JSON(410, gin.H{"error": "No pending challenge"})
		case errors.Is(err, service.ErrUnknownCredential):
			c.JSON(404, gin.H{"error": "Unknown credential"})
		case errors.Is(err, service.ErrAuthenticationFailed):
			c.JSON(401, gin.H{"error": "Authentication failed"})
		default:
			h.logger.Error("Failed to finish authentication", zap.Error(err))
			c.JSON(500, gin.H{"error": "Failed to complete authentication"})
		}
		return
	}

	c.JSON(200, resp)
}

// GoogleSignIn exchanges a Google ID token for a session token. The body
// is the raw ID token string.
func (h *Handlers) GoogleSignIn(c *gin.Context) {
	if h.services.Google == nil {
		c.JSON(503, gin.H{"error": "Google sign-in not available"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(strings.TrimSpace(string(body))) == 0 {
		c.JSON(400, gin.H{"error": "id token is required"})
		return
	}

	resp, err := h.services.Google.VerifyIDToken(c.Request.Context(), strings.TrimSpace(string(body)))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidIDToken):
			c.JSON(401, gin.H{"error": "Invalid id token"})
		case errors.Is(err, service.ErrWrongHostedDomain):
			c.JSON(403, gin.H{"error": "Wrong hosted domain"})
		default:
			h.logger.Error("Failed to verify google id token", zap.Error(err))
			c.JSON(500, gin.H{"error": "Failed to verify id token"})
		}
		return
	}

	c.JSON(200, resp)
}

type passwordRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// PasswordRegister handles email/password registration
func (h *Handlers) PasswordRegister(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.services.Password.Register(c.Request.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			c.JSON(409, gin.H{"error": "Email already registered"})
		default:
			h.logger.Error("Failed to register password", zap.Error(err))
			c.JSON(500, gin.H{"error": "Failed to register"})
		}
		return
	}

	c.JSON(200, resp)
}

// PasswordLogin handles email/password login
func (h *Handlers) PasswordLogin(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.services.Password.Login(c.Request.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(401, gin.H{"error": "Invalid credentials"})
		default:
			h.logger.Error("Failed to login", zap.Error(err))
			c.JSON(500, gin.H{"error": "Failed to login"})
		}
		return
	}

	c.JSON(200, resp)
}

// JWKS publishes the session token verification keys
func (h *Handlers) JWKS(c *gin.Context) {
	c.JSON(200, h.services.Token.JWKS())
}

// WhoAmI returns the authenticated subject. Requires AuthMiddleware.
func (h *Handlers) WhoAmI(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(401, gin.H{"error": "Not authenticated"})
		return
	}

	c.JSON(200, gin.H{"userId": userID})
}

// normalizeResponseJSON accepts the attestation response either inline or
// double-encoded as a JSON string and returns the inner document.
func normalizeResponseJSON(raw json.RawMessage) ([]byte, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, err
		}
		return []byte(inner), nil
	}
	return raw, nil
}
