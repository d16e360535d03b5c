package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Operational HTTP server (health, metrics, websocket)
	Server ServerConfig

	// Ticket document store
	Mongo MongoConfig

	// Directory database (users, building access, positions, apartments)
	Database DatabaseConfig

	// JWT configuration for websocket subscribers
	JWT JWTConfig

	// WebSocket configuration
	WebSocket WebSocketConfig

	// Notification delivery
	Channel ChannelConfig

	// Fan-out dispatch
	Dispatch DispatchConfig

	// Logging configuration
	Logging LoggingConfig

	// Application metadata
	App AppConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// MongoConfig holds the change feed source configuration
type MongoConfig struct {
	URI              string
	Database         string
	TicketCollection string
	ReadPreference   string // primary, primaryPreferred, secondary, secondaryPreferred, nearest
	PollWait         time.Duration
	ConnectTimeout   time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	AutoMigrate     bool
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret   string
	TokenTTL time.Duration
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
	PingInterval    time.Duration
	PongWait        time.Duration
	ConnectRPS      float64
	ConnectBurst    int
}

// ChannelConfig selects how notifications leave the process
type ChannelConfig struct {
	Kind string // websocket, log
}

// DispatchConfig holds fan-out configuration
type DispatchConfig struct {
	Concurrency int
	SendTimeout time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string
	Version     string
	Environment string
}

const (
	ChannelWebSocket = "websocket"
	ChannelLog       = "log"
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", ":8081"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getDurationOrDefault("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("CORS_ALLOWED_ORIGINS", []string{}),
		},
		Mongo: MongoConfig{
			URI:              os.Getenv("MONGO_URI"),
			Database:         getEnvOrDefault("MONGO_DATABASE", "servicedesk"),
			TicketCollection: getEnvOrDefault("MONGO_TICKET_COLLECTION", "tickets"),
			ReadPreference:   getEnvOrDefault("MONGO_READ_PREFERENCE", "secondaryPreferred"),
			PollWait:         getDurationOrDefault("MONGO_POLL_WAIT", 5*time.Second),
			ConnectTimeout:   getDurationOrDefault("MONGO_CONNECT_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getIntOrDefault("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntOrDefault("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getDurationOrDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getDurationOrDefault("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			AutoMigrate:     getBoolOrDefault("DB_AUTO_MIGRATE", false),
		},
		JWT: JWTConfig{
			Secret:   os.Getenv("JWT_SECRET"),
			TokenTTL: getDurationOrDefault("JWT_TOKEN_TTL", time.Hour),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins:  getStringSliceOrDefault("WS_ALLOWED_ORIGINS", []string{}),
			ReadBufferSize:  getIntOrDefault("WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize: getIntOrDefault("WS_WRITE_BUFFER_SIZE", 1024),
			PingInterval:    getDurationOrDefault("WS_PING_INTERVAL", 54*time.Second),
			PongWait:        getDurationOrDefault("WS_PONG_WAIT", 60*time.Second),
			ConnectRPS:      getFloatOrDefault("WS_CONNECT_RPS", 1),
			ConnectBurst:    getIntOrDefault("WS_CONNECT_BURST", 5),
		},
		Channel: ChannelConfig{
			Kind: getEnvOrDefault("NOTIFY_CHANNEL", ChannelWebSocket),
		},
		Dispatch: DispatchConfig{
			Concurrency: getIntOrDefault("DISPATCH_CONCURRENCY", 4),
			SendTimeout: getDurationOrDefault("DISPATCH_SEND_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		App: AppConfig{
			Name:        getEnvOrDefault("APP_NAME", "ticket-notifier"),
			Version:     getEnvOrDefault("APP_VERSION", "dev"),
			Environment: getEnvOrDefault("APP_ENV", "development"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	// Required fields
	if c.Mongo.URI == "" {
		errs = append(errs, "MONGO_URI is required")
	}

	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}

	switch c.Channel.Kind {
	case ChannelWebSocket:
		if c.JWT.Secret == "" {
			errs = append(errs, "JWT_SECRET is required for the websocket channel")
		}
	case ChannelLog:
	default:
		errs = append(errs, fmt.Sprintf("NOTIFY_CHANNEL must be %q or %q", ChannelWebSocket, ChannelLog))
	}

	// Security validations
	if c.App.Environment == "production" && c.Channel.Kind == ChannelWebSocket {
		if len(c.JWT.Secret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
		}

		if len(c.WebSocket.AllowedOrigins) == 0 {
			errs = append(errs, "WS_ALLOWED_ORIGINS must be set in production")
		}
	}

	// Logical validations
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, "DB_MAX_IDLE_CONNS cannot be greater than DB_MAX_OPEN_CONNS")
	}

	if c.Mongo.PollWait <= 0 {
		errs = append(errs, "MONGO_POLL_WAIT must be positive")
	}

	if c.Dispatch.Concurrency < 1 {
		errs = append(errs, "DISPATCH_CONCURRENCY must be at least 1")
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// String returns a redacted string representation of the config (safe for logging)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Server: %s, Mongo: %s/%s.%s, DB: %s, JWT: [REDACTED], Channel: %s, Environment: %s}",
		c.Server.Port,
		redactURL(c.Mongo.URI),
		c.Mongo.Database,
		c.Mongo.TicketCollection,
		redactURL(c.Database.URL),
		c.Channel.Kind,
		c.App.Environment,
	)
}

// redactURL redacts credentials in a connection URL
func redactURL(url string) string {
	if url == "" {
		return ""
	}
	if idx := strings.Index(url, "@"); idx > 0 {
		return "[REDACTED]" + url[idx:]
	}
	return "[REDACTED]"
}
