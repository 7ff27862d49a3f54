package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "easypark/backend/libs/config"
	"easypark/backend/services/parking-service/internal/gateway"
)

const (
	defaultPort             = "8084"
	defaultLedgerTTL        = 86400
	defaultOperationSeconds = 5
)

// Config defines parking service configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"PARKING_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN         string `yaml:"dsn" env:"PARKING_POSTGRES_DSN"`
		AutoMigrate bool   `yaml:"autoMigrate" env:"PARKING_AUTO_MIGRATE"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"PARKING_REDIS_ADDR"`
		Password string `yaml:"password" env:"PARKING_REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"PARKING_REDIS_DB"`
		TTL      int    `yaml:"ttlSeconds" env:"PARKING_REDIS_TTL"`
	} `yaml:"redis"`
	JWT struct {
		Secret string `yaml:"secret" env:"PARKING_JWT_SECRET"`
	} `yaml:"jwt"`
	Gateway struct {
		ServerKey       string `yaml:"serverKey" env:"PARKING_GATEWAY_SERVER_KEY"`
		VerifySignature bool   `yaml:"verifySignature" env:"PARKING_GATEWAY_VERIFY_SIGNATURE"`
	} `yaml:"gateway"`
	Timeouts struct {
		OperationSeconds int `yaml:"operationSeconds" env:"PARKING_OPERATION_TIMEOUT"`
	} `yaml:"timeouts"`
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every optional setting filled in.
func Default() *Config {
	cfg := &Config{}
	cfg.HTTP.Port = defaultPort
	cfg.Redis.TTL = defaultLedgerTTL
	cfg.Timeouts.OperationSeconds = defaultOperationSeconds
	return cfg
}

// Validate is called by the shared loader once file and env values are applied.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("config: database dsn required")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("config: jwt secret required")
	}
	if c.Gateway.VerifySignature && strings.TrimSpace(c.Gateway.ServerKey) == "" {
		return errors.New("config: gateway server key required when signature verification is on")
	}
	return nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = defaultPort
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// LedgerEnabled reports whether a redis address was configured.
func (c *Config) LedgerEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}

// LedgerTTL returns ttl as duration.
func (c *Config) LedgerTTL() time.Duration {
	if c.Redis.TTL <= 0 {
		return defaultLedgerTTL * time.Second
	}
	return time.Duration(c.Redis.TTL) * time.Second
}

// OperationTimeout bounds a single request's store work.
func (c *Config) OperationTimeout() time.Duration {
	if c.Timeouts.OperationSeconds <= 0 {
		return defaultOperationSeconds * time.Second
	}
	return time.Duration(c.Timeouts.OperationSeconds) * time.Second
}

func (c *Config) GatewayConfig() gateway.Config {
	return gateway.Config{
		ServerKey:       c.Gateway.ServerKey,
		VerifySignature: c.Gateway.VerifySignature,
	}
}
