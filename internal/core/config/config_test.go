package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

const (
	idA     = "0123456789abcdef0123456789abcdef"
	idB     = "fedcba9876543210fedcba9876543210"
	secret1 = "dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"
	secret2 = "YW5vdGhlcnNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHMACSecrets(t *testing.T) {
	t.Run("single secret", func(t *testing.T) {
		t.Setenv("PK_HMAC_SECRET", idA+":"+secret1)

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 1 {
			t.Errorf("expected 1 secret, got %d", len(secrets))
		}
		if _, ok := secrets[idA]; !ok {
			t.Errorf("secret_id not found in map")
		}
	})

	t.Run("multiple numbered secrets", func(t *testing.T) {
		t.Setenv("PK_HMAC_SECRET_1", idA+":"+secret1)
		t.Setenv("PK_HMAC_SECRET_2", idB+":"+secret2)

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 2 {
			t.Errorf("expected 2 secrets, got %d", len(secrets))
		}
	})

	t.Run("numbering stops at first gap", func(t *testing.T) {
		t.Setenv("PK_HMAC_SECRET_1", idA+":"+secret1)
		t.Setenv("PK_HMAC_SECRET_3", idB+":"+secret2)

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets failed: %v", err)
		}
		if len(secrets) != 1 {
			t.Errorf("expected 1 secret, got %d", len(secrets))
		}
	})

	invalid := []struct {
		name  string
		value string
	}{
		{"invalid format", "invalid_format"},
		{"short secret_id", "short:" + secret1},
		{"non-hex secret_id", "0123456789abcdefGHIJKLMNOPQRSTUV:" + secret1},
		{"short secret", idA + ":c2hvcnQ="},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PK_HMAC_SECRET", tt.value)
			if _, err := HMACSecrets(); err == nil {
				t.Errorf("HMACSecrets() with %q succeeded, want error", tt.value)
			}
		})
	}

	t.Run("duplicate secret_id", func(t *testing.T) {
		t.Setenv("PK_HMAC_SECRET_1", idA+":"+secret1)
		t.Setenv("PK_HMAC_SECRET_2", idA+":"+secret2)

		if _, err := HMACSecrets(); err == nil {
			t.Error("expected error for duplicate secret_id")
		}
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig("", nil)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		want := Default()
		if cfg.API != want.API {
			t.Errorf("API = %+v, want %+v", cfg.API, want.API)
		}
		if cfg.Engine != want.Engine {
			t.Errorf("Engine = %+v, want %+v", cfg.Engine, want.Engine)
		}
		if cfg.Database.URL != want.Database.URL {
			t.Errorf("Database.URL = %q, want %q", cfg.Database.URL, want.Database.URL)
		}
		if cfg.Redis.Addr != "" || len(cfg.Kafka.Brokers) != 0 {
			t.Errorf("optional backends enabled by default: redis=%q kafka=%v", cfg.Redis.Addr, cfg.Kafka.Brokers)
		}
	})

	t.Run("config file", func(t *testing.T) {
		path := writeConfig(t, `api:
  port: 6000
engine:
  lookup_timeout: 50ms
redis:
  addr: "localhost:6379"
  ttl: 1m
kafka:
  brokers: ["k1:9092", "k2:9092"]
`)
		cfg, err := LoadConfig(path, nil)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.API.Port != 6000 {
			t.Errorf("API.Port = %d, want 6000", cfg.API.Port)
		}
		if cfg.Engine.LookupTimeout != 50*time.Millisecond {
			t.Errorf("Engine.LookupTimeout = %v, want 50ms", cfg.Engine.LookupTimeout)
		}
		if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.TTL != time.Minute {
			t.Errorf("Redis = %+v", cfg.Redis)
		}
		if len(cfg.Kafka.Brokers) != 2 {
			t.Errorf("Kafka.Brokers = %v, want 2 brokers", cfg.Kafka.Brokers)
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfig(t, "api:\n  port: 6000\n")
		t.Setenv("PK_API_PORT", "7000")
		t.Setenv("PK_KAFKA_BROKERS", "a:9092, b:9092")
		t.Setenv("PK_REDIS_PASSWORD", "hunter2")

		cfg, err := LoadConfig(path, nil)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.API.Port != 7000 {
			t.Errorf("API.Port = %d, want 7000", cfg.API.Port)
		}
		if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "b:9092" {
			t.Errorf("Kafka.Brokers = %v, want [a:9092 b:9092]", cfg.Kafka.Brokers)
		}
		if cfg.Redis.Password != "hunter2" {
			t.Errorf("Redis.Password = %q, want from environment", cfg.Redis.Password)
		}
	})

	t.Run("flags override environment", func(t *testing.T) {
		t.Setenv("PK_API_PORT", "7000")
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.Int("port", 0, "")
		flags.String("db-url", "", "")
		if err := flags.Parse([]string{"--port=8000"}); err != nil {
			t.Fatal(err)
		}

		cfg, err := LoadConfig("", flags)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.API.Port != 8000 {
			t.Errorf("API.Port = %d, want 8000", cfg.API.Port)
		}
		// unset flags leave lower layers alone
		if cfg.Database.URL != Default().Database.URL {
			t.Errorf("Database.URL = %q, want default", cfg.Database.URL)
		}
	})

	rejected := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			"hmac secret in file",
			"api:\n  hmac_secret: \"should_be_rejected\"\n",
			"HMAC secrets not allowed in config files (use PK_HMAC_SECRET environment variable)",
		},
		{
			"redis password in file",
			"redis:\n  password: \"should_be_rejected\"\n",
			"redis password not allowed in config files (use PK_REDIS_PASSWORD environment variable)",
		},
		{"invalid port", "api:\n  port: 70000\n", "port must be between 1 and 65535, got 70000"},
		{"zero batch size", "api:\n  max_batch_size: 0\n", "max_batch_size must be positive, got 0"},
		{"negative sweep", "engine:\n  sweep_interval: -1s\n", "sweep_interval must not be negative, got -1s"},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content), nil)
			if err == nil {
				t.Fatal("LoadConfig succeeded, want error")
			}
			if err.Error() != tt.wantErr {
				t.Errorf("LoadConfig error = %q, want %q", err.Error(), tt.wantErr)
			}
		})
	}

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
			t.Error("expected error for missing config file")
		}
	})
}

func TestParseHMACSecret(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", secret1, false},
		{"surrounding whitespace", "  " + secret1 + "\n", false},
		{"not base64", "!!!not-base64!!!", true},
		{"too short", "c2hvcnQ=", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHMACSecret(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseHMACSecret() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseHMACSecretWithID(t *testing.T) {
	id, secret, err := ParseHMACSecretWithID(idA + ":" + secret1)
	if err != nil {
		t.Fatalf("ParseHMACSecretWithID() error = %v", err)
	}
	if id != idA {
		t.Errorf("secret_id = %q, want %q", id, idA)
	}
	if len(secret) < 32 {
		t.Errorf("secret length = %d, want >= 32", len(secret))
	}

	if _, _, err := ParseHMACSecretWithID("no-colon"); err == nil {
		t.Error("expected error for missing separator")
	}
}
