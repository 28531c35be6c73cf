package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the unified server configuration.
type Config struct {
	Server   ServerConfig
	Data     DataConfig
	Log      LogConfig
	Security SecurityConfig
	Realtime RealtimeConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Env  string // dev, staging, production
	Port string
}

// DataConfig holds durable storage locations.
type DataConfig struct {
	DatabasePath string
	ProjectsDir  string
	UsersDir     string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string // debug, info, warn, error
	File  string // optional rotated log file; stdout when empty
}

// SecurityConfig holds auth settings.
type SecurityConfig struct {
	JWTSecret          string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	CORSAllowedOrigins []string
}

// RealtimeConfig holds synchronization engine settings.
// DebounceWindow is the quiet period after the last edit before a durable
// write is issued; any positive value preserves correctness, only the
// latency/write-amplification tradeoff changes.
type RealtimeConfig struct {
	DebounceWindow    time.Duration
	SendQueueSize     int
	MaxMessageBytes   int64
	WriteRetries      int
	WriteRetryBackoff time.Duration
}

// GlobalConfig is the process-wide configuration instance.
var GlobalConfig *Config

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Env:  getEnv("ENV", "dev"),
			Port: getEnv("PORT", "8000"),
		},
		Data: DataConfig{
			DatabasePath: getEnv("DATABASE_PATH", "./workdeck.sqlite3"),
			ProjectsDir:  getEnv("PROJECTS_DIR", "./projects"),
			UsersDir:     getEnv("USERS_DIR", "./users"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
		Security: SecurityConfig{
			JWTSecret:          getEnv("USER_JWT_SECRET", ""),
			AccessTokenTTL:     getDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTokenTTL:    getDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
			CORSAllowedOrigins: parseStringList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		},
		Realtime: RealtimeConfig{
			DebounceWindow:    getDuration("REALTIME_DEBOUNCE_WINDOW", time.Second),
			SendQueueSize:     getInt("REALTIME_SEND_QUEUE_SIZE", 64),
			MaxMessageBytes:   int64(getInt("REALTIME_MAX_MESSAGE_BYTES", 1<<20)),
			WriteRetries:      getInt("REALTIME_WRITE_RETRIES", 1),
			WriteRetryBackoff: getDuration("REALTIME_WRITE_RETRY_BACKOFF", 250*time.Millisecond),
		},
	}

	GlobalConfig = cfg
	return cfg, nil
}

// ValidateConfig checks the configuration and reports every problem at once.
func ValidateConfig(cfg *Config) error {
	var errors []string

	if cfg.Security.JWTSecret == "" {
		errors = append(errors, "USER_JWT_SECRET is required")
	} else if len(cfg.Security.JWTSecret) < 32 {
		errors = append(errors, "USER_JWT_SECRET must be at least 32 characters long")
	}

	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid PORT value: %s (must be 1-65535)", cfg.Server.Port))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Log.Level] {
		errors = append(errors, fmt.Sprintf("invalid LOG_LEVEL: %s (must be: debug, info, warn, error)", cfg.Log.Level))
	}

	validEnvs := map[string]bool{"dev": true, "development": true, "staging": true, "production": true}
	if !validEnvs[cfg.Server.Env] {
		errors = append(errors, fmt.Sprintf("invalid ENV: %s (must be: dev, development, staging, production)", cfg.Server.Env))
	}

	if cfg.Data.DatabasePath == "" {
		errors = append(errors, "DATABASE_PATH is required")
	}

	if cfg.Security.AccessTokenTTL <= 0 {
		errors = append(errors, "ACCESS_TOKEN_TTL must be positive")
	}
	if cfg.Security.RefreshTokenTTL <= cfg.Security.AccessTokenTTL {
		errors = append(errors, "REFRESH_TOKEN_TTL must be longer than ACCESS_TOKEN_TTL")
	}

	if cfg.Realtime.DebounceWindow <= 0 {
		errors = append(errors, "REALTIME_DEBOUNCE_WINDOW must be positive")
	}
	if cfg.Realtime.SendQueueSize < 1 {
		errors = append(errors, "REALTIME_SEND_QUEUE_SIZE must be at least 1")
	}
	if cfg.Realtime.WriteRetries < 0 {
		errors = append(errors, "REALTIME_WRITE_RETRIES must not be negative")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "dev" || c.Server.Env == "development"
}

// GetServerAddr returns the listen address for the HTTP server.
func (c *Config) GetServerAddr() string {
	return ":" + c.Server.Port
}

// PrintConfig renders the configuration with secrets masked.
func (c *Config) PrintConfig() string {
	return fmt.Sprintf(`Configuration Loaded:
  Environment: %s
  Server Port: %s
  Data:
    - Database: %s
    - Projects: %s
    - Users: %s
  Logging:
    - Level: %s
    - File: %s
  Security:
    - JWT Secret: %s
    - Access Token TTL: %s
    - Refresh Token TTL: %s
    - CORS Origins: %v
  Realtime:
    - Debounce Window: %s
    - Send Queue Size: %d
    - Max Message Bytes: %d
    - Write Retries: %d
    - Write Retry Backoff: %s`,
		c.Server.Env,
		c.Server.Port,
		c.Data.DatabasePath,
		c.Data.ProjectsDir,
		c.Data.UsersDir,
		c.Log.Level,
		c.Log.File,
		maskSecret(c.Security.JWTSecret),
		c.Security.AccessTokenTTL,
		c.Security.RefreshTokenTTL,
		c.Security.CORSAllowedOrigins,
		c.Realtime.DebounceWindow,
		c.Realtime.SendQueueSize,
		c.Realtime.MaxMessageBytes,
		c.Realtime.WriteRetries,
		c.Realtime.WriteRetryBackoff,
	)
}

// helpers

// getEnv returns the environment variable value or a default when unset.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getInt parses an integer environment variable, falling back on errors.
func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

// getDuration parses a time.Duration environment variable, falling back on errors.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

// parseStringList splits a comma separated list, trimming blanks.
func parseStringList(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// maskSecret hides most of a sensitive value.
func maskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}
