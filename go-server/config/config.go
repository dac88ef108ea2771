package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendREST     = "rest"
	BackendPostgres = "postgres"
)

// Config holds the application settings
type Config struct {
	Port        string
	Environment string
	ServiceName string

	StoreBackend  string
	StoreURL      string
	StoreAPIKey   string
	ProductsTable string

	PostgresURL      string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	RedisAddr string

	SessionSecret      string
	SessionIdleTimeout time.Duration

	RateLimitRequests int
	RateLimitWindow   time.Duration

	CORSAllowOrigins []string
	OTLPEndpoint     string
	LokiURL          string

	LokiTraceRequests bool
}

// LoadConfig reads the environment (and a .env file when present) into a Config
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, using system environment variables")
	}

	config := &Config{
		Port:             getEnvWithDefault("PORT", "8080"),
		Environment:      getEnvWithDefault("ENV", "development"),
		ServiceName:      getEnvWithDefault("SERVICE_NAME", "goodproducts"),
		StoreBackend:     strings.ToLower(getEnvWithDefault("STORE_BACKEND", BackendREST)),
		StoreURL:         strings.TrimRight(os.Getenv("STORE_URL"), "/"),
		StoreAPIKey:      os.Getenv("STORE_API_KEY"),
		ProductsTable:    getEnvWithDefault("PRODUCTS_TABLE", "products"),
		PostgresURL:      os.Getenv("POSTGRES_URL"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresSSLMode:  getEnvWithDefault("POSTGRES_SSLMODE", "prefer"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		SessionSecret:    os.Getenv("SESSION_SECRET"),
		CORSAllowOrigins: splitList(getEnvWithDefault("CORS_ALLOW_ORIGINS", "*")),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LokiURL:          os.Getenv("LOKI_URL"),

		LokiTraceRequests: os.Getenv("LOKI_TRACE_REQUESTS") == "true",
	}

	var err error
	if config.PostgresPort, err = getEnvAsInt("POSTGRES_PORT", 5432); err != nil {
		return nil, err
	}
	if config.RateLimitRequests, err = getEnvAsInt("RATE_LIMIT_REQUESTS", 10); err != nil {
		return nil, err
	}
	if config.RateLimitWindow, err = getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return nil, err
	}
	if config.SessionIdleTimeout, err = getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendREST:
		if c.StoreURL == "" || c.StoreAPIKey == "" {
			return fmt.Errorf("STORE_URL and STORE_API_KEY must be set for the %q backend", BackendREST)
		}
	case BackendPostgres:
		if err := c.ResolvePostgresURL(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q: must be %q or %q", c.StoreBackend, BackendREST, BackendPostgres)
	}
	return nil
}

// ValidateServer checks the settings only the HTTP server needs
func (c *Config) ValidateServer() error {
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET not set")
	}
	if c.RateLimitRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.RateLimitRequests)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimitWindow)
	}
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive, got %s", c.SessionIdleTimeout)
	}

	return nil
}

// ResolvePostgresURL builds PostgresURL from the individual settings when it is not given directly
func (c *Config) ResolvePostgresURL() error {
	if c.PostgresURL != "" {
		return nil
	}
	if c.PostgresHost == "" || c.PostgresUser == "" || c.PostgresDB == "" {
		return fmt.Errorf("either POSTGRES_URL or POSTGRES_HOST, POSTGRES_USER, and POSTGRES_DB must be set")
	}
	c.PostgresURL = buildPostgresURL(c)
	return nil
}

// getEnvWithDefault returns environment variable value or default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// buildPostgresURL constructs PostgreSQL connection URL from individual parameters
func buildPostgresURL(config *Config) string {
	password := ""
	if config.PostgresPassword != "" {
		password = ":" + config.PostgresPassword
	}

	return fmt.Sprintf("postgres://%s%s@%s:%d/%s?sslmode=%s",
		config.PostgresUser,
		password,
		config.PostgresHost,
		config.PostgresPort,
		config.PostgresDB,
		config.PostgresSSLMode,
	)
}
