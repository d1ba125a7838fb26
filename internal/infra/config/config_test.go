package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StorageDriver != StorageMemory || cfg.HTTPAddr != ":5000" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.SessionTTL != 7*24*time.Hour || cfg.SocketBuffer != 64 {
		t.Fatalf("unexpected durations %+v", cfg)
	}
	if !cfg.SeedFixtures || cfg.KafkaEnabled() {
		t.Fatalf("memory mode seeds fixtures and skips kafka: %+v", cfg)
	}
	if len(cfg.RetryBackoff) != 3 {
		t.Fatalf("retry backoff = %v", cfg.RetryBackoff)
	}
}

func TestLoadParsesLists(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "mongo")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("CORS_ORIGINS", "https://zedflip.co.zm,https://www.zedflip.co.zm")
	t.Setenv("JWT_SECRET", "0123456789abcdef")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("brokers = %v", cfg.KafkaBrokers)
	}
	if !cfg.KafkaEnabled() || cfg.SeedFixtures {
		t.Fatalf("mongo mode: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Fatalf("origins = %v", cfg.CORSOrigins)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown driver", map[string]string{"STORAGE_DRIVER": "sqlite"}, "STORAGE_DRIVER"},
		{"mongo without uri", map[string]string{"STORAGE_DRIVER": "mongo", "MONGO_URI": ""}, "MONGO_URI"},
		{"bad duration", map[string]string{"SESSION_TTL": "forever"}, "SESSION_TTL"},
		{"short secret", map[string]string{"JWT_SECRET": "short"}, "JWT_SECRET"},
		{"production needs secret", map[string]string{"APP_ENV": "production", "JWT_SECRET": ""}, "JWT_SECRET"},
		{"half admin seed", map[string]string{"ADMIN_EMAIL": "admin@zedflip.co.zm", "ADMIN_PASSWORD": ""}, "ADMIN_PASSWORD"},
		{"bad buffer", map[string]string{"SOCKET_SEND_BUFFER": "0"}, "SOCKET_SEND_BUFFER"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want mention of %s", err, tc.want)
			}
		})
	}
}
