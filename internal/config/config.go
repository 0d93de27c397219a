package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	Log       LogConfig       `yaml:"log"`
	Push      PushConfig      `yaml:"push"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Client    ClientConfig    `yaml:"client"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig contains member store settings
type DatabaseConfig struct {
	Type     string `yaml:"type"` // "postgres" or "memory"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	AccessTokenExpiry int    `yaml:"access_token_expiry_minutes"`
	Enforce           bool   `yaml:"enforce"` // require a bearer token on mutating routes
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// PushConfig contains push channel settings for the member service
type PushConfig struct {
	EventLogSize       int `yaml:"event_log_size"`
	PollTimeoutSeconds int `yaml:"poll_timeout_seconds"`
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	BroadcastSnapshot string `yaml:"broadcast_snapshot"`
}

// ClientConfig contains settings for staff stations connecting to the member service
type ClientConfig struct {
	BaseURL               string   `yaml:"base_url"`
	Transports            []string `yaml:"transports"` // preference order: "websocket", "polling"
	MaxReconnectAttempts  int      `yaml:"max_reconnect_attempts"`
	BackoffMinMillis      int      `yaml:"backoff_min_ms"`
	BackoffMaxMillis      int      `yaml:"backoff_max_ms"`
	RequestTimeoutSeconds int      `yaml:"request_timeout_seconds"`
	PollTimeoutSeconds    int      `yaml:"poll_timeout_seconds"`
	Username              string   `yaml:"username"`
	Password              string   `yaml:"password"`
	StaleGuard            bool     `yaml:"stale_guard"`
}

const (
	DatabaseTypePostgres = "postgres"
	DatabaseTypeMemory   = "memory"

	TransportWebsocket = "websocket"
	TransportPolling   = "polling"
)

// Load reads the member service configuration from a YAML file
func Load(configPath string) (*Config, error) {
	cfg, err := parse(configPath)
	if err != nil {
		return nil, err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadClient reads the configuration of a staff station. Only the client
// and log sections are checked.
func LoadClient(configPath string) (*Config, error) {
	cfg, err := parse(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateClient(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func parse(configPath string) (*Config, error) {
	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables if present
	cfg.overrideWithEnv()
	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_TYPE"); val != "" {
		c.Database.Type = val
	}
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Client
	if val := os.Getenv("CHECKIN_BASE_URL"); val != "" {
		c.Client.BaseURL = val
	}
	if val := os.Getenv("CHECKIN_USERNAME"); val != "" {
		c.Client.Username = val
	}
	if val := os.Getenv("CHECKIN_PASSWORD"); val != "" {
		c.Client.Password = val
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	// Set defaults for log if not configured
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the member service configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Database validation
	if c.Database.Type == "" {
		c.Database.Type = DatabaseTypePostgres
	}
	switch c.Database.Type {
	case DatabaseTypeMemory:
	case DatabaseTypePostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	default:
		return fmt.Errorf("unsupported database type: %q", c.Database.Type)
	}

	// JWT validation
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.JWT.AccessTokenExpiry == 0 {
		c.JWT.AccessTokenExpiry = 12 * 60 // one event day
	}

	// Push defaults
	if c.Push.EventLogSize == 0 {
		c.Push.EventLogSize = 512
	}
	if c.Push.PollTimeoutSeconds == 0 {
		c.Push.PollTimeoutSeconds = 25
	}

	// Scheduler defaults
	if c.Scheduler.BroadcastSnapshot == "" {
		c.Scheduler.BroadcastSnapshot = "0 */5 * * * *" // every 5 minutes
	}

	return nil
}

// ValidateClient checks the client section and fills in defaults
func (c *Config) ValidateClient() error {
	if c.Client.BaseURL == "" {
		return fmt.Errorf("client base_url is required")
	}
	u, err := url.Parse(c.Client.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid client base_url: %q", c.Client.BaseURL)
	}
	c.Client.BaseURL = strings.TrimRight(c.Client.BaseURL, "/")

	if len(c.Client.Transports) == 0 {
		c.Client.Transports = []string{TransportWebsocket, TransportPolling}
	}
	for _, t := range c.Client.Transports {
		if t != TransportWebsocket && t != TransportPolling {
			return fmt.Errorf("unsupported client transport: %q", t)
		}
	}

	if c.Client.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max_reconnect_attempts must not be negative")
	}
	if c.Client.MaxReconnectAttempts == 0 {
		c.Client.MaxReconnectAttempts = 5
	}
	if c.Client.BackoffMinMillis == 0 {
		c.Client.BackoffMinMillis = 500
	}
	if c.Client.BackoffMaxMillis == 0 {
		c.Client.BackoffMaxMillis = 8000
	}
	if c.Client.BackoffMaxMillis < c.Client.BackoffMinMillis {
		return fmt.Errorf("backoff_max_ms must be at least backoff_min_ms")
	}
	if c.Client.RequestTimeoutSeconds == 0 {
		c.Client.RequestTimeoutSeconds = 10
	}
	if c.Client.PollTimeoutSeconds == 0 {
		c.Client.PollTimeoutSeconds = 25
	}
	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c ClientConfig) BackoffMin() time.Duration {
	return time.Duration(c.BackoffMinMillis) * time.Millisecond
}

func (c ClientConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMillis) * time.Millisecond
}

func (c ClientConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c ClientConfig) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutSeconds) * time.Second
}
