package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTP     httpConfig
	Store    storeConfig
	DB       dbConfig
	Redis    redisConfig
	Provider providerConfig
	API      apiConfig
	Google   googleConfig
}

type httpConfig struct {
	ListenAddr      string        `env:"HTTP_LISTEN_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type storeConfig struct {
	// Driver is either "postgres" or "memory".
	Driver string `env:"STORE_DRIVER" envDefault:"postgres"`
}

type dbConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME" envDefault:"auth"`
}

type redisConfig struct {
	// Addr enables per-identity login locks when set.
	Addr     string        `env:"REDIS_ADDR"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	LockTTL  time.Duration `env:"REDIS_LOCK_TTL" envDefault:"10s"`
}

type providerConfig struct {
	Timeout        time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"5s"`
	ConfigCacheTTL time.Duration `env:"SERVICE_CONFIG_CACHE_TTL" envDefault:"1m"`
}

type apiConfig struct {
	// JWTSecret enables caller authentication when set.
	JWTSecret string `env:"API_JWT_SECRET"`
}

type googleConfig struct {
	ClientID       string   `env:"GOOGLE_CLIENT_ID"`
	Secret         string   `env:"GOOGLE_SECRET"`
	ValidClientIDs []string `env:"GOOGLE_VALID_CLIENT_IDS" envSeparator:","`
}

func FromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	switch cfg.Store.Driver {
	case "postgres", "memory":
	default:
		return Config{}, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	return cfg, nil
}
