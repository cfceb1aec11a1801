package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

const DefaultStoreTimeout = 5 * time.Second

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	SigningKey     []byte
	AllowedOrigins []string
	RedisAddr      string
	StoreTimeout   time.Duration
	Debug          bool
}

type Option func(*Config)

// WithRedisAddr enables the session cache.
func WithRedisAddr(addr string) Option {
	return func(c *Config) {
		c.RedisAddr = addr
	}
}

// WithStoreTimeout bounds every store call made on behalf of a client.
func WithStoreTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.StoreTimeout = d
	}
}

func WithDebug(debug bool) Option {
	return func(c *Config) {
		c.Debug = debug
	}
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("signing secret is empty")
	}

	return key, nil
}

// NewConfig validates the settings. An empty databaseDSN selects the
// in-memory store.
func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string, opts ...Option) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	cfg := &Config{
		ServerAddr:     serverAddr,
		DatabaseDSN:    databaseDSN,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		StoreTimeout:   DefaultStoreTimeout,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.StoreTimeout <= 0 {
		return nil, fmt.Errorf("store timeout must be positive")
	}

	return cfg, nil
}
