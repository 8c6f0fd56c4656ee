// Package config loads the audit subsystem configuration from a YAML file
// and the environment, with environment variables taking precedence.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"custodia/pkg/audit/logger"
)

// Config is the embedding application's view of the subsystem's tunables.
type Config struct {
	// DatabaseURL selects the persistence adapter by scheme:
	// postgres://, redis://, or memory://.
	DatabaseURL string `mapstructure:"database_url"`

	// EncryptionKey is the base64-encoded symmetric key for sensitive-data
	// encryption. Generate one with fieldcrypt.GenerateKey.
	EncryptionKey string `mapstructure:"encryption_key"`

	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	FlushTimeout  time.Duration `mapstructure:"flush_timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
}

// Load reads custodia.yaml from the working directory or ./configs, then
// applies CUSTODIA_* environment overrides (CUSTODIA_BATCH_SIZE overrides
// batch_size). A missing file is fine: env and defaults carry the config.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("custodia")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.SetEnvPrefix("CUSTODIA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Every key needs a default so AutomaticEnv picks it up without a file.
	v.SetDefault("database_url", "")
	v.SetDefault("encryption_key", "")
	v.SetDefault("batch_size", logger.DefaultBatchSize)
	v.SetDefault("flush_interval", logger.DefaultFlushInterval)
	v.SetDefault("flush_timeout", logger.DefaultFlushTimeout)
	v.SetDefault("max_retries", logger.DefaultMaxRetries)
	v.SetDefault("retry_backoff", logger.DefaultRetryBackoff)
}

// Validate checks the invariants the logger cannot default its way out of.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: database_url is required")
	}
	if c.EncryptionKey == "" {
		return fmt.Errorf("config: encryption_key is required")
	}
	if _, err := base64.StdEncoding.DecodeString(c.EncryptionKey); err != nil {
		return fmt.Errorf("config: encryption_key must be base64: %w", err)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: batch_size must be positive")
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("config: flush_interval must be positive")
	}
	return nil
}

// LoggerConfig converts the loaded values into the logger's Config, decoding
// the key.
func (c *Config) LoggerConfig() (logger.Config, error) {
	key, err := base64.StdEncoding.DecodeString(c.EncryptionKey)
	if err != nil {
		return logger.Config{}, fmt.Errorf("config: decode encryption key: %w", err)
	}
	return logger.Config{
		EncryptionKey: key,
		BatchSize:     c.BatchSize,
		FlushInterval: c.FlushInterval,
		FlushTimeout:  c.FlushTimeout,
		MaxRetries:    c.MaxRetries,
		RetryBackoff:  c.RetryBackoff,
	}, nil
}
