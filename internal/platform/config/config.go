package config

import (
	"os"
	"strings"
	"time"
)

type HTTPConfig struct {
	Addr string
}

type TrackingConfig struct {
	// SampleInterval is how often live sessions sample the playback head.
	SampleInterval time.Duration
}

type StorageConfig struct {
	// RedisURL selects the Redis KV backend when set.
	RedisURL string
	// DatabaseURL selects the Postgres KV backend when Redis is not
	// configured.
	DatabaseURL string
}

type AppConfig struct {
	ServiceName string
	LogLevel    string
	HTTP        HTTPConfig
	Tracking    TrackingConfig
	Storage     StorageConfig
	// JWTSecret enables bearer auth on mutating routes when non-empty.
	JWTSecret string
	// NATSURL enables the event publisher and playback consumer when the
	// broker is reachable; empty falls back to the natsconn default.
	NATSURL string
}

func Load() AppConfig {
	cfg := AppConfig{
		ServiceName: env("SERVICE_NAME"),
		LogLevel:    env("LOG_LEVEL"),
		HTTP: HTTPConfig{
			Addr: env("HTTP_ADDR"),
		},
		Tracking: TrackingConfig{
			SampleInterval: envDuration("SAMPLE_INTERVAL", time.Second),
		},
		Storage: StorageConfig{
			RedisURL:    env("REDIS_URL"),
			DatabaseURL: env("DATABASE_URL"),
		},
		JWTSecret: env("JWT_SECRET"),
		NATSURL:   env("NATS_URL"),
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "watchtrack"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := env(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
