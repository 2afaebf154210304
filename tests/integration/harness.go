package integration

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/WarrenAdams8/expo-credential-manager/internal/server"
	"github.com/WarrenAdams8/expo-credential-manager/internal/service"
	"github.com/WarrenAdams8/expo-credential-manager/internal/storage"
	"github.com/WarrenAdams8/expo-credential-manager/internal/storage/memory"
	"github.com/WarrenAdams8/expo-credential-manager/pkg/config"
)

// TestHarness provides a complete test environment: the real router
// from internal/server backed by memory storage, served over
// httptest, with helpers for making API requests.
type TestHarness struct {
	T        *testing.T
	Server   *httptest.Server
	Config   *config.Config
	Router   *gin.Engine
	Storage  storage.Store
	Services *service.Services
	Logger   *zap.Logger

	Client  *http.Client
	BaseURL string
}

// TestHarnessOption configures the test harness
type TestHarnessOption func(*TestHarness)

// WithConfig sets a custom config for the test harness
func WithConfig(cfg *config.Config) TestHarnessOption {
	return func(h *TestHarness) {
		h.Config = cfg
	}
}

// NewTestHarness creates a test harness with a running test server
func NewTestHarness(t *testing.T, opts ...TestHarnessOption) *TestHarness {
	t.Helper()

	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()

	h := &TestHarness{
		T:      t,
		Logger: logger,
		Client: &http.Client{},
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.Config == nil {
		h.Config = DefaultTestConfig(t)
	}

	h.Storage = memory.NewStore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := service.NewServices(ctx, h.Storage, h.Config, logger)
	if err != nil {
		t.Fatalf("Failed to create services: %v", err)
	}
	h.Services = services

	h.Router = server.NewRouter(h.Config, services, logger)
	h.Server = httptest.NewServer(h.Router)
	h.BaseURL = h.Server.URL

	t.Cleanup(func() {
		h.Server.Close()
	})

	return h
}

// DefaultTestConfig returns a config suitable for integration tests.
// Rate limiting is off so flow tests can hammer the auth endpoints.
func DefaultTestConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		Server: config.ServerConfig{
			Host:     "localhost",
			Port:     8080,
			RPID:     "localhost",
			RPOrigin: "http://localhost:8080",
			RPName:   "Test Credential Manager",
		},
		Storage: config.StorageConfig{
			Type: "memory",
		},
		JWT: config.JWTConfig{
			PrivateKeyPEM: generateTestKeyPEM(t),
			KeyID:         "integration-key",
			Issuer:        "credential-manager-test",
			Audience:      "credential-manager-test",
			TTLSeconds:    3600,
		},
		Challenge: config.ChallengeConfig{
			TTLSeconds: 300,
		},
		Security: config.SecurityConfig{
			AuthRateLimit: config.AuthRateLimitConfig{Enabled: false},
		},
	}
}

// generateTestKeyPEM generates a fresh RSA signing key for the run
func generateTestKeyPEM(t *testing.T) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	return string(pem.EncodeToMemory(block))
}

// Request makes an HTTP request to the test server
func (h *TestHarness) Request(method, path string, body interface{}) *Response {
	h.T.Helper()

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			h.T.Fatalf("Failed to marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, h.BaseURL+path, bodyReader)
	if err != nil {
		h.T.Fatalf("Failed to create request: %v", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return h.Do(req)
}

// Do executes an HTTP request and returns a Response wrapper
func (h *TestHarness) Do(req *http.Request) *Response {
	h.T.Helper()

	resp, err := h.Client.Do(req)
	if err != nil {
		h.T.Fatalf("Request failed: %v", err)
	}

	return &Response{
		T:        h.T,
		Response: resp,
	}
}

// GET makes a GET request
func (h *TestHarness) GET(path string) *Response {
	return h.Request(http.MethodGet, path, nil)
}

// POST makes a POST request with a JSON body
func (h *TestHarness) POST(path string, body interface{}) *Response {
	return h.Request(http.MethodPost, path, body)
}

// POSTRaw makes a POST request with a raw body. The finish and verify
// endpoints take raw payloads rather than JSON envelopes.
func (h *TestHarness) POSTRaw(path, contentType string, body []byte) *Response {
	h.T.Helper()

	req, err := http.NewRequest(http.MethodPost, h.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		h.T.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", contentType)
	return h.Do(req)
}

// WithAuth returns a request builder that sends a bearer token
func (h *TestHarness) WithAuth(token string) *AuthenticatedClient {
	return &AuthenticatedClient{harness: h, token: token}
}

// AuthenticatedClient wraps the harness with auth headers
type AuthenticatedClient struct {
	harness *TestHarness
	token   string
}

// GET makes an authenticated GET request
func (c *AuthenticatedClient) GET(path string) *Response {
	c.harness.T.Helper()
	req, _ := http.NewRequest(http.MethodGet, c.harness.BaseURL+path, nil)
	req.Header.Set("Authorization", "Bearer "+c.token)
	return c.harness.Do(req)
}

// Response wraps an HTTP response with assertion helpers
type Response struct {
	T        *testing.T
	Response *http.Response
	body     []byte
	bodyRead bool
}

// Body returns the response body as bytes
func (r *Response) Body() []byte {
	r.T.Helper()
	if !r.bodyRead {
		var err error
		r.body, err = io.ReadAll(r.Response.Body)
		if err != nil {
			r.T.Fatalf("Failed to read response body: %v", err)
		}
		r.Response.Body.Close()
		r.bodyRead = true
	}
	return r.body
}

// JSON unmarshals the response body into the given target
func (r *Response) JSON(target interface{}) *Response {
	r.T.Helper()
	if err := json.Unmarshal(r.Body(), target); err != nil {
		r.T.Fatalf("Failed to unmarshal response: %v\nBody: %s", err, string(r.Body()))
	}
	return r
}

// Status asserts the response status code
func (r *Response) Status(expected int) *Response {
	r.T.Helper()
	if r.Response.StatusCode != expected {
		r.T.Errorf("Expected status %d, got %d\nBody: %s", expected, r.Response.StatusCode, string(r.Body()))
	}
	return r
}

// BodyContains asserts the response body contains a substring
func (r *Response) BodyContains(substr string) *Response {
	r.T.Helper()
	if !bytes.Contains(r.Body(), []byte(substr)) {
		r.T.Errorf("Expected body to contain %q\nBody: %s", substr, string(r.Body()))
	}
	return r
}
