// Package config provides configuration management for PriceKeeper services.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the full service configuration.
type Config struct {
	API       APIConfig
	Database  DatabaseConfig
	Engine    EngineConfig
	Admin     AdminConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Inventory InventoryConfig
}

// APIConfig holds configuration for the gRPC pricing API.
type APIConfig struct {
	Host           string
	Port           int
	MaxConnections int
	RequestTimeout time.Duration
	MaxBatchSize   int // offers per SelectBuybox call
}

// DatabaseConfig selects the rule store.
type DatabaseConfig struct {
	URL string
}

// EngineConfig tunes rule evaluation.
type EngineConfig struct {
	LookupTimeout     time.Duration
	CompiledCacheSize int
	SweepInterval     time.Duration // 0 disables the lifecycle sweeper
}

// AdminConfig holds the HTTP admin listener (metrics, health).
type AdminConfig struct {
	Addr string // empty disables the admin server
}

// RedisConfig configures the shared competitor price cache.
// Password comes from PK_REDIS_PASSWORD only.
type RedisConfig struct {
	Addr     string // empty disables the cache
	Password string
	DB       int
	TTL      time.Duration
}

// KafkaConfig configures lifecycle notifications.
type KafkaConfig struct {
	Brokers []string // empty logs notifications instead
	Topic   string
}

// InventoryConfig points at the inventory service.
type InventoryConfig struct {
	BaseURL string // empty leaves INVENTORY_LEVEL conditions unavailable
	Timeout time.Duration
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		API: APIConfig{
			Host:           "0.0.0.0",
			Port:           50051,
			MaxConnections: 1000,
			RequestTimeout: 30 * time.Second,
			MaxBatchSize:   1000,
		},
		Database: DatabaseConfig{URL: "sqlite://./data/pricekeeper.db"},
		Engine: EngineConfig{
			LookupTimeout:     200 * time.Millisecond,
			CompiledCacheSize: 4096,
			SweepInterval:     time.Minute,
		},
		Admin:     AdminConfig{Addr: ":9090"},
		Redis:     RedisConfig{TTL: 5 * time.Minute},
		Kafka:     KafkaConfig{Topic: "pricekeeper.rule-events"},
		Inventory: InventoryConfig{Timeout: 2 * time.Second},
	}
}

// HMACSecrets extracts HMAC secrets from environment variables.
// Supports PK_HMAC_SECRET (single) and PK_HMAC_SECRET_N (rotation).
// Returns map of secret_id -> decoded secret bytes.
// Secret IDs are UUIDv7 (32 hex chars without hyphens) matching API key format.
func HMACSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	add := func(key, val string) error {
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[secretID]; exists {
			return fmt.Errorf("duplicate secret_id '%s' found in environment variables (check PK_HMAC_SECRET and PK_HMAC_SECRET_* for conflicts)", secretID)
		}
		secrets[secretID] = decoded
		return nil
	}

	// Format: <secret_id>:<base64_secret>
	if val := os.Getenv("PK_HMAC_SECRET"); val != "" {
		if err := add("PK_HMAC_SECRET", val); err != nil {
			return nil, err
		}
	}

	// Numbered secrets enable rotation: old and new keys valid during migration
	for i := 1; ; i++ {
		key := fmt.Sprintf("PK_HMAC_SECRET_%d", i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		if err := add(key, val); err != nil {
			return nil, err
		}
	}

	return secrets, nil
}

// ParseHMACSecret decodes base64-encoded HMAC secret from environment variable.
func ParseHMACSecret(envValue string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(envValue))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(decoded) < 32 {
		return nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(decoded))
	}
	return decoded, nil
}

// ParseHMACSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 hex chars (UUIDv7 without hyphens).
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}

	secretID = parts[0]
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars (UUIDv7 without hyphens)")
	}
	for _, c := range secretID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}

	secret, err = ParseHMACSecret(parts[1])
	if err != nil {
		return "", nil, err
	}
	return secretID, secret, nil
}
