package logger

import (
	"fmt"
	"time"

	"custodia/pkg/audit/fieldcrypt"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = 5 * time.Second
	DefaultFlushTimeout  = 10 * time.Second
	DefaultMaxRetries    = 3
	DefaultRetryBackoff  = 500 * time.Millisecond

	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
)

// Config tunes one logger instance. The zero value plus an encryption key is
// usable: every other field falls back to its default.
type Config struct {
	// EncryptionKey is the raw symmetric key for the field encryption codec.
	// Must be fieldcrypt.KeySize bytes.
	EncryptionKey []byte

	// BatchSize triggers a flush once the buffer reaches this many events.
	BatchSize int

	// FlushInterval is the background timer period.
	FlushInterval time.Duration

	// FlushTimeout bounds each persistence attempt. A timeout is a retryable
	// persistence failure, not a crash.
	FlushTimeout time.Duration

	// MaxRetries bounds persistence attempts per batch before the failure is
	// surfaced to the caller.
	MaxRetries int

	// RetryBackoff is the base delay between attempts (exponential).
	RetryBackoff time.Duration

	// BreakerThreshold and BreakerCooldown tune the circuit breaker guarding
	// the store during outages.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = DefaultFlushTimeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = DefaultRetryBackoff
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = defaultBreakerThreshold
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = defaultBreakerCooldown
	}
	return c
}

func (c Config) validate() error {
	if len(c.EncryptionKey) != fieldcrypt.KeySize {
		return fmt.Errorf("logger: encryption key must be %d bytes, got %d", fieldcrypt.KeySize, len(c.EncryptionKey))
	}
	return nil
}
