// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay.
package server

import (
	"fmt"
	"strings"
	"sync"
	"time"

	env "github.com/Netflix/go-env"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string
	AllowedOrigins  []string
	MaxMessageSize  int64
	RateLimit       RateLimitConfig
	SendBufferSize  int
	DefaultRoom     string
	CensoredWords   []string
	CensorCharacter rune
	AuthSecret      string
	LogLevel        string
}

// environment is the flat view of Config read from the process environment.
// Unset variables leave the defaults in place.
type environment struct {
	Port            string        `env:"SERVER_PORT"`
	AllowedOrigins  string        `env:"ALLOWED_ORIGINS"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE"`
	RateLimitBurst  int           `env:"RATE_LIMIT_BURST"`
	RateLimitRefill time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL"`
	SendBufferSize  int           `env:"SEND_BUFFER_SIZE"`
	DefaultRoom     string        `env:"DEFAULT_ROOM"`
	CensoredWords   string        `env:"CENSORED_WORDS"`
	CensorCharacter string        `env:"CENSOR_CHARACTER"`
	AuthSecret      string        `env:"AUTH_SECRET"`
	LogLevel        string        `env:"LOG_LEVEL"`
}

const (
	defaultPort           = ":8908"
	defaultMaxMessageSize = 2048
	defaultBurst          = 5
	defaultSendBuffer     = 256
	defaultRoom           = "lobby"
	defaultCensorChar     = '*'
	defaultLogLevel       = "INFO"
)

var (
	configMu     sync.RWMutex
	activeConfig Config
	activePolicy originPolicy
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost" + defaultPort,
		},
		MaxMessageSize: defaultMaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: time.Second,
		},
		SendBufferSize:  defaultSendBuffer,
		DefaultRoom:     defaultRoom,
		CensorCharacter: defaultCensorChar,
		LogLevel:        defaultLogLevel,
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultBurst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBuffer
	}

	cfg.DefaultRoom = strings.TrimSpace(cfg.DefaultRoom)
	if cfg.DefaultRoom == "" {
		cfg.DefaultRoom = defaultRoom
	}

	if cfg.CensorCharacter == 0 {
		cfg.CensorCharacter = defaultCensorChar
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}

	policy, normalizedOrigins := newOriginPolicy(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	activePolicy = policy

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		sanitizeConfig(defaultConfig())
		return
	}

	sanitized := *cfg
	sanitized.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	sanitized.CensoredWords = append([]string(nil), cfg.CensoredWords...)
	sanitizeConfig(sanitized)
}

// CurrentConfig returns a copy of the active configuration.
func CurrentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	cfg.CensoredWords = append([]string(nil), cfg.CensoredWords...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Unset variables keep their default values; malformed ones are an error.
func NewConfigFromEnv() (*Config, error) {
	cfg := defaultConfig()
	vars := environment{
		Port:            cfg.Port,
		MaxMessageSize:  cfg.MaxMessageSize,
		RateLimitBurst:  cfg.RateLimit.Burst,
		RateLimitRefill: cfg.RateLimit.RefillInterval,
		SendBufferSize:  cfg.SendBufferSize,
		DefaultRoom:     cfg.DefaultRoom,
		CensorCharacter: string(cfg.CensorCharacter),
		LogLevel:        cfg.LogLevel,
	}

	if _, err := env.UnmarshalFromEnviron(&vars); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	censorChar, err := characterRune(vars.CensorCharacter)
	if err != nil {
		return nil, err
	}

	cfg.Port = vars.Port
	if vars.AllowedOrigins != "" {
		cfg.AllowedOrigins = parseList(vars.AllowedOrigins)
	}
	cfg.MaxMessageSize = vars.MaxMessageSize
	cfg.RateLimit.Burst = vars.RateLimitBurst
	cfg.RateLimit.RefillInterval = vars.RateLimitRefill
	cfg.SendBufferSize = vars.SendBufferSize
	cfg.DefaultRoom = vars.DefaultRoom
	cfg.CensoredWords = parseList(vars.CensoredWords)
	cfg.CensorCharacter = censorChar
	cfg.AuthSecret = vars.AuthSecret
	cfg.LogLevel = strings.ToUpper(vars.LogLevel)

	return &cfg, nil
}

func characterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf("CENSOR_CHARACTER must be a single character, got %q", str)
	}
	return r[0], nil
}

func parseList(value string) []string {
	var items []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
