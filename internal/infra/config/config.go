package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
)

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"

	TransportLocal = "local"
	TransportKafka = "kafka"

	PushLog = "log"
	PushFCM = "fcm"

	AuthDev      = "dev"
	AuthFirebase = "firebase"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env                string          `env:"APP_ENV" envDefault:"dev"`
	HTTPAddr           string          `env:"HTTP_ADDR" envDefault:":8080"`
	CORSOrigins        []string        `env:"CORS_ORIGINS" envSeparator:","`
	StoreBackend       string          `env:"STORE_BACKEND" envDefault:"memory"`
	MongoURI           string          `env:"MONGO_URI"`
	MongoDB            string          `env:"MONGO_DB" envDefault:"marketchat"`
	KafkaBrokers       []string        `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopicPrefix   string          `env:"KAFKA_TOPIC_PREFIX"`
	KafkaGroupID       string          `env:"KAFKA_GROUP_ID" envDefault:"marketchat-dispatcher"`
	EventTransport     string          `env:"EVENT_TRANSPORT" envDefault:"local"`
	OutboxPollInterval time.Duration   `env:"OUTBOX_POLL_INTERVAL" envDefault:"500ms"`
	RetryBackoff       []time.Duration `env:"RETRY_BACKOFF" envSeparator:"," envDefault:"1s,5s,30s"`
	PushProvider       string          `env:"PUSH_PROVIDER" envDefault:"log"`
	PushTimeout        time.Duration   `env:"PUSH_TIMEOUT" envDefault:"5s"`
	AuthMode           string          `env:"AUTH_MODE" envDefault:"dev"`
	FirebaseProjectID  string          `env:"FIREBASE_PROJECT_ID"`
	ListingsFixtures   string          `env:"LISTINGS_FIXTURES"`
	RealtimeBuffer     int             `env:"REALTIME_BUFFER" envDefault:"256"`
}

var ErrInvalidConfig = errors.New("config: invalid configuration")

// Load parses configuration from the current environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.EventTransport = strings.ToLower(strings.TrimSpace(cfg.EventTransport))
	cfg.PushProvider = strings.ToLower(strings.TrimSpace(cfg.PushProvider))
	cfg.AuthMode = strings.ToLower(strings.TrimSpace(cfg.AuthMode))
	cfg.KafkaBrokers = compact(cfg.KafkaBrokers)
	cfg.CORSOrigins = compact(cfg.CORSOrigins)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory:
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("%w: MONGO_URI is required with STORE_BACKEND=mongo", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown STORE_BACKEND %q", ErrInvalidConfig, c.StoreBackend)
	}
	switch c.EventTransport {
	case TransportLocal:
	case TransportKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("%w: KAFKA_BROKERS is required with EVENT_TRANSPORT=kafka", ErrInvalidConfig)
		}
		if c.StoreBackend != StoreMongo {
			return fmt.Errorf("%w: EVENT_TRANSPORT=kafka needs the durable mongo outbox", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown EVENT_TRANSPORT %q", ErrInvalidConfig, c.EventTransport)
	}
	if c.PushProvider != PushLog && c.PushProvider != PushFCM {
		return fmt.Errorf("%w: unknown PUSH_PROVIDER %q", ErrInvalidConfig, c.PushProvider)
	}
	switch c.AuthMode {
	case AuthDev:
		if !c.IsDev() {
			return fmt.Errorf("%w: AUTH_MODE=dev is only allowed with APP_ENV=dev or local", ErrInvalidConfig)
		}
	case AuthFirebase:
	default:
		return fmt.Errorf("%w: unknown AUTH_MODE %q", ErrInvalidConfig, c.AuthMode)
	}
	if (c.PushProvider == PushFCM || c.AuthMode == AuthFirebase) && c.FirebaseProjectID == "" {
		return fmt.Errorf("%w: FIREBASE_PROJECT_ID is required for firebase auth or fcm push", ErrInvalidConfig)
	}
	if c.PushTimeout <= 0 {
		return fmt.Errorf("%w: PUSH_TIMEOUT must be positive", ErrInvalidConfig)
	}
	if c.RealtimeBuffer <= 0 {
		return fmt.Errorf("%w: REALTIME_BUFFER must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c Config) IsDev() bool {
	return c.Env == "dev" || c.Env == "local"
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
