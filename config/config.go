// Package config loads mailkb settings from an optional YAML file and
// environment variables.
//
// Values are resolved in order: environment variable, YAML file, default.
// ${VAR} references inside the YAML file are expanded before parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/mailkb/ai"
	"github.com/poiesic/mailkb/queue"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDBPath   = "./mailkb.db"
	DefaultLogLevel = "info"

	// PathEnv names the config file when Load is given no path.
	PathEnv = "MAILKB_CONFIG"
)

// Config holds all mailkb settings.
type Config struct {
	DBPath   string
	InMemory bool

	// PoolSize is the ingestion worker pool size. Zero picks a default
	// from the CPU count.
	PoolSize int

	AIHost             string
	EmbeddingHost      string
	ClassifierHost     string
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	ClassifierModel    string
	Temperature        float64
	RequestTimeout     time.Duration
	RequestsPerSecond  float64

	// RedisURL enables the index retry queue when set.
	RedisURL         string
	RetryQueue       string
	RetryMaxAttempts int

	LogLevel string
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	LogLevel string `yaml:"log_level"`
	Database struct {
		Path     string `yaml:"path"`
		InMemory bool   `yaml:"in_memory"`
	} `yaml:"database"`
	Workers struct {
		PoolSize int `yaml:"pool_size"`
	} `yaml:"workers"`
	AI struct {
		Host               string  `yaml:"host"`
		EmbeddingHost      string  `yaml:"embedding_host"`
		ClassifierHost     string  `yaml:"classifier_host"`
		APIKey             string  `yaml:"api_key"`
		EmbeddingModel     string  `yaml:"embedding_model"`
		EmbeddingDimension int     `yaml:"embedding_dimension"`
		ClassifierModel    string  `yaml:"classifier_model"`
		Temperature        float64 `yaml:"temperature"`
		RequestTimeout     string  `yaml:"request_timeout"`
		RequestsPerSecond  float64 `yaml:"requests_per_second"`
	} `yaml:"ai"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Retry string `yaml:"retry"`
		} `yaml:"queues"`
		MaxAttempts int `yaml:"max_attempts"`
	} `yaml:"redis"`
}

// Load reads path, or $MAILKB_CONFIG when path is empty, and applies
// environment overrides. With neither set only the environment and
// defaults are used.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(PathEnv)
	}

	var raw rawConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := Parse(data, &raw); err != nil {
			return nil, err
		}
	}
	return fromRaw(&raw)
}

// Parse expands ${VAR} references in data and decodes it into out.
func Parse(data []byte, out any) error {
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), out); err != nil {
		return fmt.Errorf("parse config YAML: %w", err)
	}
	return nil
}

func fromRaw(raw *rawConfig) (*Config, error) {
	defaults := ai.DefaultConfig()

	timeout := defaults.RequestTimeout
	if raw.AI.RequestTimeout != "" {
		d, err := time.ParseDuration(raw.AI.RequestTimeout)
		if err != nil {
			return nil, fmt.Errorf("ai.request_timeout: %w", err)
		}
		timeout = d
	}

	host := firstNonEmpty(os.Getenv("MAILKB_AI_HOST"), raw.AI.Host)
	cfg := &Config{
		DBPath:   firstNonEmpty(os.Getenv("MAILKB_DB_PATH"), raw.Database.Path, DefaultDBPath),
		InMemory: envOrDefaultBool("MAILKB_IN_MEMORY", raw.Database.InMemory),
		PoolSize: envOrDefaultInt("MAILKB_POOL_SIZE", raw.Workers.PoolSize),

		AIHost:             host,
		EmbeddingHost:      firstNonEmpty(os.Getenv("MAILKB_EMBEDDING_HOST"), raw.AI.EmbeddingHost, host, defaults.EmbeddingHost),
		ClassifierHost:     firstNonEmpty(os.Getenv("MAILKB_CLASSIFIER_HOST"), raw.AI.ClassifierHost, host, defaults.ClassifierHost),
		APIKey:             firstNonEmpty(os.Getenv("MAILKB_API_KEY"), os.Getenv("OPENAI_API_KEY"), raw.AI.APIKey),
		EmbeddingModel:     firstNonEmpty(os.Getenv("MAILKB_EMBEDDING_MODEL"), raw.AI.EmbeddingModel, defaults.EmbeddingModel),
		EmbeddingDimension: envOrDefaultInt("MAILKB_EMBEDDING_DIMENSION", firstPositive(raw.AI.EmbeddingDimension, defaults.EmbeddingDimension)),
		ClassifierModel:    firstNonEmpty(os.Getenv("MAILKB_CLASSIFIER_MODEL"), raw.AI.ClassifierModel, defaults.ClassifierModel),
		Temperature:        envOrDefaultFloat("MAILKB_TEMPERATURE", firstPositiveFloat(raw.AI.Temperature, defaults.Temperature)),
		RequestTimeout:     envOrDefaultDuration("MAILKB_REQUEST_TIMEOUT", timeout),
		RequestsPerSecond:  envOrDefaultFloat("MAILKB_REQUESTS_PER_SECOND", raw.AI.RequestsPerSecond),

		RedisURL:         firstNonEmpty(os.Getenv("REDIS_URL"), raw.Redis.URL),
		RetryQueue:       firstNonEmpty(os.Getenv("MAILKB_RETRY_QUEUE"), raw.Redis.Queues.Retry, queue.DefaultQueueName),
		RetryMaxAttempts: envOrDefaultInt("MAILKB_RETRY_MAX_ATTEMPTS", firstPositive(raw.Redis.MaxAttempts, queue.DefaultMaxAttempts)),

		LogLevel: strings.ToLower(firstNonEmpty(os.Getenv("MAILKB_LOG_LEVEL"), raw.LogLevel, DefaultLogLevel)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no usable fallback.
func (c *Config) Validate() error {
	var errs []error
	if !c.InMemory && c.DBPath == "" {
		errs = append(errs, errors.New("database path is required unless in_memory is set"))
	}
	if c.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("pool size must not be negative, got %d", c.PoolSize))
	}
	if c.RetryMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry max attempts must be at least 1, got %d", c.RetryMaxAttempts))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

// AIConfig builds the provider configuration.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.EmbeddingHost),
		ai.WithClassifierHost(c.ClassifierHost),
		ai.WithAPIKey(c.APIKey),
		ai.WithEmbeddingModel(c.EmbeddingModel),
		ai.WithEmbeddingDimension(c.EmbeddingDimension),
		ai.WithClassifierModel(c.ClassifierModel),
		ai.WithTemperature(c.Temperature),
		ai.WithRequestTimeout(c.RequestTimeout),
		ai.WithRequestsPerSecond(c.RequestsPerSecond),
	)
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envOrDefaultBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstPositiveFloat(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
