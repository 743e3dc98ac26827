// Package server provides configuration helpers that define runtime defaults,
// validation, and limits for the chat service.
package server

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string `env:"SERVER_PORT,default=:8080"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	MaxFrameSize   int64  `env:"MAX_FRAME_SIZE,default=4096"`

	RateLimit       int `env:"RATE_LIMIT,default=5"`
	RateLimitWindow int `env:"RATE_LIMIT_WINDOW,default=10"` // seconds

	MinUsernameLength int `env:"MIN_USERNAME_LENGTH,default=3"`
	MaxUsernameLength int `env:"MAX_USERNAME_LENGTH,default=30"`
	MaxRoomNameLength int `env:"MAX_ROOM_NAME_LENGTH,default=50"`
	MaxMessageLength  int `env:"MAX_MESSAGE_LENGTH,default=500"`
	MaxRoomsPerUser   int `env:"MAX_ROOMS_PER_USER,default=10"`
	MaxUsersPerRoom   int `env:"MAX_USERS_PER_ROOM,default=50"`
	MaxHistory        int `env:"MAX_HISTORY,default=100"`

	SendTimeout  time.Duration `env:"SEND_TIMEOUT,default=5s"`
	EchoToSender bool          `env:"ECHO_TO_SENDER,default=true"`

	BadgerPath       string `env:"BADGER_PATH"`
	ArchiveQueueSize int    `env:"ARCHIVE_QUEUE_SIZE,default=1024"`

	LogLevel        string        `env:"LOG_LEVEL,default=INFO"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

func defaultConfig() Config {
	limits := chat.DefaultLimits()
	return Config{
		Port:              ":8080",
		AllowedOrigins:    "http://localhost:8080",
		MaxFrameSize:      4096,
		RateLimit:         5,
		RateLimitWindow:   10,
		MinUsernameLength: limits.MinUsernameLength,
		MaxUsernameLength: limits.MaxUsernameLength,
		MaxRoomNameLength: limits.MaxRoomNameLength,
		MaxMessageLength:  limits.MaxMessageLength,
		MaxRoomsPerUser:   limits.MaxRoomsPerUser,
		MaxUsersPerRoom:   limits.MaxUsersPerRoom,
		MaxHistory:        100,
		SendTimeout:       5 * time.Second,
		EchoToSender:      true,
		ArchiveQueueSize:  1024,
		LogLevel:          "INFO",
		ShutdownTimeout:   10 * time.Second,
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv loads an optional .env file, then reads the configuration
// from environment variables. Non-positive values fall back to defaults.
func NewConfigFromEnv(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	cfg.Sanitize()
	return &cfg, nil
}

// Sanitize replaces unusable values with defaults.
func (c *Config) Sanitize() {
	d := defaultConfig()
	if c.Port == "" {
		c.Port = d.Port
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = d.MaxFrameSize
	}
	positive := []struct {
		value *int
		def   int
	}{
		{&c.RateLimit, d.RateLimit},
		{&c.RateLimitWindow, d.RateLimitWindow},
		{&c.MinUsernameLength, d.MinUsernameLength},
		{&c.MaxUsernameLength, d.MaxUsernameLength},
		{&c.MaxRoomNameLength, d.MaxRoomNameLength},
		{&c.MaxMessageLength, d.MaxMessageLength},
		{&c.MaxRoomsPerUser, d.MaxRoomsPerUser},
		{&c.MaxUsersPerRoom, d.MaxUsersPerRoom},
		{&c.MaxHistory, d.MaxHistory},
		{&c.ArchiveQueueSize, d.ArchiveQueueSize},
	}
	for _, p := range positive {
		if *p.value <= 0 {
			*p.value = p.def
		}
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = d.SendTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Limits returns the chat limits described by the configuration.
func (c *Config) Limits() chat.Limits {
	return chat.Limits{
		MinUsernameLength: c.MinUsernameLength,
		MaxUsernameLength: c.MaxUsernameLength,
		MaxRoomNameLength: c.MaxRoomNameLength,
		MaxMessageLength:  c.MaxMessageLength,
		MaxRoomsPerUser:   c.MaxRoomsPerUser,
		MaxUsersPerRoom:   c.MaxUsersPerRoom,
	}
}

// Window returns the rate limit window as a duration.
func (c *Config) Window() time.Duration {
	return time.Duration(c.RateLimitWindow) * time.Second
}

// Origins returns the configured origin allow-list.
func (c *Config) Origins() []string {
	return parseOrigins(c.AllowedOrigins)
}

func parseOrigins(origins string) []string {
	if strings.TrimSpace(origins) == "" {
		return nil
	}
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
