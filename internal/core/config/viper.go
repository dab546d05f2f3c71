package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"host":           "api.host",
	"port":           "api.port",
	"db-url":         "database.url",
	"admin-addr":     "admin.addr",
	"redis-addr":     "redis.addr",
	"kafka-brokers":  "kafka.brokers",
	"inventory-url":  "inventory.base_url",
	"sweep-interval": "engine.sweep_interval",
}

// LoadConfig loads configuration using viper.
// CLI flags > environment > config file > defaults precedence.
// flags may be nil; only flags that were explicitly set override.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Bind environment variables with PK_ prefix, api.port -> PK_API_PORT
	v.SetEnvPrefix("PK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets must be environment-only per 12-factor principles
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{
		API: APIConfig{
			Host:           v.GetString("api.host"),
			Port:           v.GetInt("api.port"),
			MaxConnections: v.GetInt("api.max_connections"),
			RequestTimeout: v.GetDuration("api.request_timeout"),
			MaxBatchSize:   v.GetInt("api.max_batch_size"),
		},
		Database: DatabaseConfig{URL: v.GetString("database.url")},
		Engine: EngineConfig{
			LookupTimeout:     v.GetDuration("engine.lookup_timeout"),
			CompiledCacheSize: v.GetInt("engine.compiled_cache_size"),
			SweepInterval:     v.GetDuration("engine.sweep_interval"),
		},
		Admin: AdminConfig{Addr: v.GetString("admin.addr")},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: os.Getenv("PK_REDIS_PASSWORD"),
			DB:       v.GetInt("redis.db"),
			TTL:      v.GetDuration("redis.ttl"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetStringSlice("kafka.brokers")),
			Topic:   v.GetString("kafka.topic"),
		},
		Inventory: InventoryConfig{
			BaseURL: v.GetString("inventory.base_url"),
			Timeout: v.GetDuration("inventory.timeout"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("api.host", d.API.Host)
	v.SetDefault("api.port", d.API.Port)
	v.SetDefault("api.max_connections", d.API.MaxConnections)
	v.SetDefault("api.request_timeout", d.API.RequestTimeout.String())
	v.SetDefault("api.max_batch_size", d.API.MaxBatchSize)
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("engine.lookup_timeout", d.Engine.LookupTimeout.String())
	v.SetDefault("engine.compiled_cache_size", d.Engine.CompiledCacheSize)
	v.SetDefault("engine.sweep_interval", d.Engine.SweepInterval.String())
	v.SetDefault("admin.addr", d.Admin.Addr)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", d.Redis.TTL.String())
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", d.Kafka.Topic)
	v.SetDefault("inventory.base_url", "")
	v.SetDefault("inventory.timeout", d.Inventory.Timeout.String())
}

// splitList accepts both YAML lists and comma-separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// validateConfig checks port range and positive limits and timeouts.
func validateConfig(cfg *Config) error {
	if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.API.Port)
	}
	if cfg.API.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", cfg.API.MaxConnections)
	}
	if cfg.API.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.API.RequestTimeout)
	}
	if cfg.API.MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch_size must be positive, got %d", cfg.API.MaxBatchSize)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if cfg.Engine.LookupTimeout <= 0 {
		return fmt.Errorf("lookup_timeout must be positive, got %v", cfg.Engine.LookupTimeout)
	}
	if cfg.Engine.CompiledCacheSize <= 0 {
		return fmt.Errorf("compiled_cache_size must be positive, got %d", cfg.Engine.CompiledCacheSize)
	}
	if cfg.Engine.SweepInterval < 0 {
		return fmt.Errorf("sweep_interval must not be negative, got %v", cfg.Engine.SweepInterval)
	}
	if cfg.Redis.TTL <= 0 {
		return fmt.Errorf("redis.ttl must be positive, got %v", cfg.Redis.TTL)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets (12-factor principle).
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("hmac_secret") || v.InConfig("api.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use PK_HMAC_SECRET environment variable)")
	}
	if v.InConfig("redis.password") {
		return fmt.Errorf("redis password not allowed in config files (use PK_REDIS_PASSWORD environment variable)")
	}
	return nil
}
