package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMemory = "memory"
	StorageMongo  = "mongo"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env             string
	HTTPAddr        string
	StorageDriver   string
	MongoURI        string
	MongoDB         string
	JWTSecret       string
	JWTIssuer       string
	SessionTTL      time.Duration
	IdempotencyTTL  time.Duration
	RedisURL        string
	RedisChannel    string
	KafkaBrokers    []string
	KafkaTopic      string
	KafkaGroup      string
	OutboxPoll      time.Duration
	OutboxBatchSize int
	RetryBackoff    []time.Duration
	S3Endpoint      string
	S3PublicURL     string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3UseSSL        bool
	CORSOrigins     []string
	SocketBuffer    int
	AdminEmail      string
	AdminPassword   string
	ShutdownTimeout time.Duration
	SeedFixtures    bool
}

// Load parses configuration from the current environment. A .env file in the
// working directory is read first when present; real variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:           getEnv("APP_ENV", "dev"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":5000"),
		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", StorageMemory)),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDB:       getEnv("MONGO_DB", "zedflip"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		JWTIssuer:     getEnv("JWT_ISSUER", "zedflip"),
		RedisURL:      os.Getenv("REDIS_URL"),
		RedisChannel:  getEnv("REDIS_CHANNEL", "zedflip:realtime"),
		KafkaBrokers:  splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "chat.events.v1"),
		KafkaGroup:    getEnv("KAFKA_GROUP", "zedflip-notifications"),
		S3Endpoint:    os.Getenv("S3_ENDPOINT"),
		S3PublicURL:   os.Getenv("S3_PUBLIC_URL"),
		S3AccessKey:   os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:   os.Getenv("S3_SECRET_KEY"),
		S3Bucket:      getEnv("S3_BUCKET", "zedflip-listings"),
		CORSOrigins:   splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}

	var err error
	if cfg.SessionTTL, err = parseDurationEnv("SESSION_TTL", 7*24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = parseDurationEnv("IDEMP_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.OutboxPoll, err = parseDurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.OutboxBatchSize, err = parseIntEnv("OUTBOX_BATCH_SIZE", 50); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = parseDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.SocketBuffer, err = parseIntEnv("SOCKET_SEND_BUFFER", 64); err != nil {
		return Config{}, err
	}
	if cfg.S3UseSSL, err = parseBoolEnv("S3_USE_SSL", false); err != nil {
		return Config{}, err
	}
	if cfg.SeedFixtures, err = parseBoolEnv("SEED_FIXTURES", cfg.StorageDriver == StorageMemory); err != nil {
		return Config{}, err
	}
	for _, raw := range splitList(getEnv("RETRY_BACKOFF", "1s,5s,30s")) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", raw, err)
		}
		cfg.RetryBackoff = append(cfg.RetryBackoff, d)
	}
	if cfg.S3PublicURL == "" {
		cfg.S3PublicURL = cfg.S3Endpoint
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	switch c.StorageDriver {
	case StorageMemory:
	case StorageMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required when STORAGE_DRIVER=mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}
	if c.JWTSecret == "" {
		if c.Production() {
			errs = append(errs, errors.New("JWT_SECRET is required"))
		}
	} else if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.SocketBuffer <= 0 {
		errs = append(errs, errors.New("SOCKET_SEND_BUFFER must be positive"))
	}
	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		errs = append(errs, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together"))
	}
	return errors.Join(errs...)
}

// Production reports whether the environment demands real secrets.
func (c Config) Production() bool {
	return c.Env == "prod" || c.Env == "production"
}

// KafkaEnabled reports whether the outbox worker and notification consumer run.
func (c Config) KafkaEnabled() bool {
	return c.StorageDriver == StorageMongo && len(c.KafkaBrokers) > 0
}

func (c Config) S3Enabled() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseIntEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s integer: %w", key, err)
	}
	return n, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
