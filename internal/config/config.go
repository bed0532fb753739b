// Package config loads runtime settings for the jobchat service from the
// environment and applies the defaults the service relies on.
package config

import (
	"context"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	defaultPort           = ":8080"
	defaultMaxMessageSize = 4096
	defaultBurst          = 5
	defaultSendBuffer     = 256
	defaultAccessTTL      = 168 * time.Hour
	defaultSocketTTL      = 5 * time.Minute
	defaultShutdown       = 10 * time.Second
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST,default=5"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s"`
}

// Config holds the service configuration including socket security controls.
type Config struct {
	Port           string          `env:"SERVER_PORT,default=:8080"`
	AllowedOrigins []string        `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	MaxMessageSize int64           `env:"MAX_MESSAGE_SIZE,default=4096"`
	SendBufferSize int             `env:"SEND_BUFFER_SIZE,default=256"`
	RateLimit      RateLimitConfig

	JWTSigningKey  string        `env:"JWT_SIGNING_KEY,required"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL,default=168h"`
	SocketTokenTTL time.Duration `env:"SOCKET_TOKEN_TTL,default=5m"`

	DBDriver string `env:"DB_DRIVER,default=postgres"`
	DBDSN    string `env:"DB_DSN,required"`

	NATSURL         string        `env:"NATS_URL"`
	OTLPEndpoint    string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Load returns a Config populated from environment variables.
func Load(ctx context.Context) (Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

// LoadFromMap returns a Config populated from the provided key/value pairs
// instead of the process environment.
func LoadFromMap(ctx context.Context, values map[string]string) (Config, error) {
	return load(ctx, envconfig.MapLookuper(values))
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return Config{}, err
	}
	return Sanitize(cfg), nil
}

// Sanitize replaces non-positive limits with their defaults and trims the
// configured origins.
func Sanitize(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBuffer
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultBurst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = defaultAccessTTL
	}

	if cfg.SocketTokenTTL <= 0 {
		cfg.SocketTokenTTL = defaultSocketTTL
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdown
	}

	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.AllowedOrigins = trimOrigins(cfg.AllowedOrigins)
	return cfg
}

func trimOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, origin := range origins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
