package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Storage   StorageConfig   `yaml:"storage" envconfig:"STORAGE"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	JWT       JWTConfig       `yaml:"jwt" envconfig:"JWT"`
	Google    GoogleConfig    `yaml:"google" envconfig:"GOOGLE"`
	Challenge ChallengeConfig `yaml:"challenge" envconfig:"CHALLENGE"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host     string `yaml:"host" envconfig:"HOST"`
	Port     int    `yaml:"port" envconfig:"PORT"`
	RPID     string `yaml:"rp_id" envconfig:"RP_ID"`
	RPOrigin string `yaml:"rp_origin" envconfig:"RP_ORIGIN"`
	RPName   string `yaml:"rp_name" envconfig:"RP_NAME"`
	BaseURL  string `yaml:"base_url" envconfig:"BASE_URL"`
}

// StorageConfig contains storage configuration
type StorageConfig struct {
	Type    string        `yaml:"type" envconfig:"TYPE"` // memory, mongodb
	MongoDB MongoDBConfig `yaml:"mongodb" envconfig:"MONGODB"`
}

// MongoDBConfig contains MongoDB-specific configuration
type MongoDBConfig struct {
	URI      string `yaml:"uri" envconfig:"URI"`
	Database string `yaml:"database" envconfig:"DATABASE"`
	Timeout  int    `yaml:"timeout" envconfig:"TIMEOUT"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" envconfig:"FORMAT"` // json, text
}

// JWTConfig contains session token signing configuration. Tokens are
// RS256 so that resource servers can verify them offline against the
// published JWKS.
type JWTConfig struct {
	PrivateKeyPEM  string `yaml:"private_key_pem" envconfig:"PRIVATE_KEY_PEM"`
	PrivateKeyPath string `yaml:"private_key_path" envconfig:"PRIVATE_KEY_PATH"`
	KeyID          string `yaml:"key_id" envconfig:"KEY_ID"`
	Issuer         string `yaml:"issuer" envconfig:"ISSUER"`
	Audience       string `yaml:"audience" envconfig:"AUDIENCE"`
	TTLSeconds     int    `yaml:"ttl_seconds" envconfig:"TTL_SECONDS"`
}

// GoogleConfig contains Google sign-in verification configuration.
// ServerClientID is the OAuth client the ID token must be issued for;
// when empty the Google surface is disabled. HostedDomain, when set,
// restricts sign-in to members of that Workspace domain.
type GoogleConfig struct {
	ServerClientID string `yaml:"server_client_id" envconfig:"SERVER_CLIENT_ID"`
	HostedDomain   string `yaml:"hosted_domain" envconfig:"HOSTED_DOMAIN"`
}

// SecurityConfig groups abuse-protection settings
type SecurityConfig struct {
	AuthRateLimit AuthRateLimitConfig `yaml:"auth_rate_limit" envconfig:"AUTH_RATE_LIMIT"`
}

// AuthRateLimitConfig controls rate limiting on the authentication
// endpoints. Attempts beyond MaxAttempts within WindowSeconds trigger
// a lockout of LockoutSeconds.
type AuthRateLimitConfig struct {
	Enabled        bool `yaml:"enabled" envconfig:"ENABLED"`
	MaxAttempts    int  `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	WindowSeconds  int  `yaml:"window_seconds" envconfig:"WINDOW_SECONDS"`
	LockoutSeconds int  `yaml:"lockout_seconds" envconfig:"LOCKOUT_SECONDS"`
}

// SetDefaults fills in zero values with safe defaults
func (c *AuthRateLimitConfig) SetDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.WindowSeconds <= 0 {
		c.WindowSeconds = 60
	}
	if c.LockoutSeconds <= 0 {
		c.LockoutSeconds = 300
	}
}

// ChallengeConfig contains ceremony challenge configuration
type ChallengeConfig struct {
	TTLSeconds             int  `yaml:"ttl_seconds" envconfig:"TTL_SECONDS"`
	CleanupEnabled         bool `yaml:"cleanup_enabled" envconfig:"CLEANUP_ENABLED"`
	CleanupIntervalSeconds int  `yaml:"cleanup_interval_seconds" envconfig:"CLEANUP_INTERVAL_SECONDS"`
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Load from YAML file if provided (overrides defaults)
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, that's ok - we'll use defaults and env vars
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("CREDMGR", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	// A key file can stand in for the inline PEM
	if cfg.JWT.PrivateKeyPEM == "" && cfg.JWT.PrivateKeyPath != "" {
		data, err := os.ReadFile(cfg.JWT.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read jwt private key: %w", err)
		}
		cfg.JWT.PrivateKeyPEM = string(data)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Set BaseURL if not provided
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible default values
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     8080,
			RPID:     "localhost",
			RPOrigin: "http://localhost:8080",
			RPName:   "Credential Manager",
		},
		Storage: StorageConfig{
			Type: "memory",
			MongoDB: MongoDBConfig{
				URI:      "mongodb://localhost:27017",
				Database: "credential_manager",
				Timeout:  10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			KeyID:      "main",
			Issuer:     "credential-manager",
			Audience:   "credential-manager",
			TTLSeconds: 3600,
		},
		Challenge: ChallengeConfig{
			TTLSeconds:             300,
			CleanupEnabled:         true,
			CleanupIntervalSeconds: 60,
		},
		Security: SecurityConfig{
			AuthRateLimit: AuthRateLimitConfig{
				Enabled:        true,
				MaxAttempts:    10,
				WindowSeconds:  60,
				LockoutSeconds: 300,
			},
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.RPID == "" {
		return fmt.Errorf("rp_id is required")
	}

	if c.Server.RPOrigin == "" {
		return fmt.Errorf("rp_origin is required")
	}

	if c.Storage.Type != "memory" && c.Storage.Type != "mongodb" {
		return fmt.Errorf("invalid storage type: %s (must be memory or mongodb)", c.Storage.Type)
	}

	if c.Storage.Type == "mongodb" && c.Storage.MongoDB.URI == "" {
		return fmt.Errorf("mongodb uri is required when using mongodb storage")
	}

	if c.JWT.PrivateKeyPEM == "" {
		return fmt.Errorf("jwt private key is required")
	}

	if c.JWT.Issuer == "" {
		return fmt.Errorf("jwt issuer is required")
	}

	if c.JWT.Audience == "" {
		return fmt.Errorf("jwt audience is required")
	}

	if c.Challenge.TTLSeconds < 1 {
		return fmt.Errorf("invalid challenge ttl: %d", c.Challenge.TTLSeconds)
	}

	return nil
}

// Address returns the server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
