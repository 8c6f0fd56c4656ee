package config

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodia/pkg/audit/fieldcrypt"
	"custodia/pkg/audit/logger"
)

func testKeyBase64(t *testing.T) string {
	t.Helper()
	key, err := fieldcrypt.GenerateKey()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(key)
}

func TestLoad_FromEnvironment(t *testing.T) {
	key := testKeyBase64(t)
	t.Setenv("CUSTODIA_DATABASE_URL", "memory://")
	t.Setenv("CUSTODIA_ENCRYPTION_KEY", key)
	t.Setenv("CUSTODIA_BATCH_SIZE", "25")
	t.Setenv("CUSTODIA_FLUSH_INTERVAL", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory://", cfg.DatabaseURL)
	assert.Equal(t, key, cfg.EncryptionKey)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.FlushInterval)
	assert.Equal(t, logger.DefaultFlushTimeout, cfg.FlushTimeout)
	assert.Equal(t, logger.DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, logger.DefaultRetryBackoff, cfg.RetryBackoff)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("CUSTODIA_DATABASE_URL", "")
	t.Setenv("CUSTODIA_ENCRYPTION_KEY", testKeyBase64(t))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url")
}

func TestLoad_MissingEncryptionKey(t *testing.T) {
	t.Setenv("CUSTODIA_DATABASE_URL", "memory://")
	t.Setenv("CUSTODIA_ENCRYPTION_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encryption_key")
}

func TestValidate(t *testing.T) {
	valid := Config{
		DatabaseURL:   "memory://",
		EncryptionKey: testKeyBase64(t),
		BatchSize:     10,
		FlushInterval: time.Second,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"non-base64 key", func(c *Config) { c.EncryptionKey = "not base64!!!" }, "base64"},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, "batch_size"},
		{"zero flush interval", func(c *Config) { c.FlushInterval = 0 }, "flush_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantSub)
		})
	}
}

func TestLoggerConfig(t *testing.T) {
	keyB64 := testKeyBase64(t)
	cfg := Config{
		DatabaseURL:   "memory://",
		EncryptionKey: keyB64,
		BatchSize:     50,
		FlushInterval: 3 * time.Second,
		FlushTimeout:  4 * time.Second,
		MaxRetries:    2,
		RetryBackoff:  100 * time.Millisecond,
	}

	lc, err := cfg.LoggerConfig()
	require.NoError(t, err)

	key, err := base64.StdEncoding.DecodeString(keyB64)
	require.NoError(t, err)
	assert.Equal(t, key, lc.EncryptionKey)
	assert.Equal(t, 50, lc.BatchSize)
	assert.Equal(t, 3*time.Second, lc.FlushInterval)
	assert.Equal(t, 4*time.Second, lc.FlushTimeout)
	assert.Equal(t, 2, lc.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, lc.RetryBackoff)
}
