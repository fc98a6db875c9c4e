// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"
	StoragePostgres StorageDriver = "postgres"
)

type Config struct {
	ServiceName string
	Env         string
	Addr        string
	LogFile     string

	StorageDriver StorageDriver
	DatabaseURL   string

	AMQPURL      string
	AMQPExchange string

	CartTTL           time.Duration
	CartSweepInterval time.Duration

	PaymentFailRate float64

	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment. A missing .env file is
// fine; explicit environment variables always win because godotenv never
// overrides existing keys.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName:       getEnv("SERVICE_NAME", "storefront"),
		Env:               getEnv("ENV", "development"),
		Addr:              getEnv("ADDR", ":8080"),
		LogFile:           os.Getenv("LOG_FILE"),
		StorageDriver:     StorageDriver(getEnv("STORAGE_DRIVER", string(StorageMemory))),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		AMQPURL:           os.Getenv("AMQP_URL"),
		AMQPExchange:      getEnv("AMQP_EXCHANGE", "storefront.events"),
		CartTTL:           getDuration("CART_TTL", 72*time.Hour),
		CartSweepInterval: getDuration("CART_SWEEP_INTERVAL", 10*time.Minute),
		PaymentFailRate:   getFloat("PAYMENT_FAIL_RATE", 0),
		ShutdownTimeout:   getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	switch cfg.StorageDriver {
	case StorageMemory, StoragePostgres:
	default:
		return nil, fmt.Errorf("config: unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	if cfg.StorageDriver == StoragePostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required with the postgres driver")
	}
	if cfg.PaymentFailRate < 0 || cfg.PaymentFailRate > 1 {
		return nil, fmt.Errorf("config: PAYMENT_FAIL_RATE must be within [0, 1]")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
