package config

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `env:",prefix=SERVER_"`

	// Database configuration
	Database DatabaseConfig `env:",prefix=DB_"`

	// Redis configuration (lock + scheduled jobs)
	Redis RedisConfig `env:",prefix=REDIS_"`

	// Text generation service configuration
	Generation GenerationConfig `env:",prefix=GEN_"`

	// Quota configuration
	Quota QuotaConfig `env:",prefix=QUOTA_"`

	// Auth configuration for shop-owner endpoints
	Auth AuthConfig `env:",prefix=AUTH_"`

	// Application configuration
	App AppConfig `env:",prefix=APP_"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `env:"PORT,default=8080"`
	Host           string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout    int      `env:"READ_TIMEOUT,default=30"`   // seconds
	WriteTimeout   int      `env:"WRITE_TIMEOUT,default=300"` // seconds, request ceiling
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=*"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=postgres"`
	Password string `env:"PASSWORD,default=postgres"`
	Name     string `env:"NAME,default=survey_review"`
	SSLMode  string `env:"SSL_MODE,default=disable"`
	MaxConns int    `env:"MAX_CONNS,default=25"`
	MinConns int    `env:"MIN_CONNS,default=5"`
	Migrate  bool   `env:"MIGRATE,default=true"`
}

// RedisConfig holds Redis configuration. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB,default=0"`
}

// GenerationConfig holds text-generation client configuration
type GenerationConfig struct {
	Provider    string  `env:"PROVIDER,default=openai"` // openai | gemini
	APIKey      string  `env:"API_KEY"`
	BaseURL     string  `env:"BASE_URL,default=https://api.openai.com"`
	Model       string  `env:"MODEL,default=gpt-4o-mini"`
	MaxTokens   int     `env:"MAX_TOKENS,default=600"`
	Temperature float64 `env:"TEMPERATURE,default=0.7"`
	Timeout     int     `env:"TIMEOUT,default=280"` // seconds
	MaxRetries  int     `env:"MAX_RETRIES,default=3"`
	RateLimit   float64 `env:"RATE_LIMIT,default=5"` // requests per second, 0 disables
	LockTTL     int     `env:"LOCK_TTL,default=290"` // seconds
}

// QuotaConfig holds quota rollover configuration
type QuotaConfig struct {
	DefaultLimit  int    `env:"DEFAULT_LIMIT,default=30"`
	SweepSchedule string `env:"SWEEP_SCHEDULE,default=@hourly"`
	SweepBatch    int    `env:"SWEEP_BATCH,default=10000"`
}

// AuthConfig holds JWT verification settings
type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET"`
	Issuer    string `env:"ISSUER"`
	Audience  string `env:"AUDIENCE"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment string `env:"ENVIRONMENT,default=development"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	Debug       bool   `env:"DEBUG,default=false"`
}

// Load loads configuration from a .env file (when present) and environment variables
func Load(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if c.Generation.Timeout <= 0 {
		return fmt.Errorf("GEN_TIMEOUT must be positive")
	}
	if c.Generation.Timeout >= c.Server.WriteTimeout {
		return fmt.Errorf("GEN_TIMEOUT (%ds) must be less than SERVER_WRITE_TIMEOUT (%ds)",
			c.Generation.Timeout, c.Server.WriteTimeout)
	}
	switch c.Generation.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown GEN_PROVIDER %q", c.Generation.Provider)
	}
	return nil
}

// GetDatabaseURL returns the PostgreSQL connection URL
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// GenerationTimeout returns the per-call generation ceiling
func (c *GenerationConfig) GenerationTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// Enabled reports whether a Redis address is configured
func (c *RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// IsDevelopment returns true if running in development environment
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}
