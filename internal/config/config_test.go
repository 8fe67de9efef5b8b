package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Development, cfg.Environment)
	assert.True(t, cfg.EnvironmentDefaulted)
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Minute, cfg.PaymentSignatureTolerance)
	assert.Equal(t, 72*time.Hour, cfg.NotifyDedupTTL)
	assert.True(t, cfg.MigrateOnStart)
	assert.Empty(t, cfg.PaymentWebhookSecret)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "whsec_x")
	t.Setenv("PAYMENT_API_TIMEOUT", "750ms")
	t.Setenv("AUDITOR_WORKERS", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Production, cfg.Environment)
	assert.False(t, cfg.EnvironmentDefaulted)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "whsec_x", cfg.PaymentWebhookSecret)
	assert.Equal(t, 750*time.Millisecond, cfg.PaymentAPITimeout)
	assert.Equal(t, 2, cfg.AuditorWorkers)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"APP_ENV":          "moon",
		"NOTIFY_DEDUP_TTL": "forever",
		"MIGRATE_ON_START": "maybe",
		"AUDITOR_WORKERS":  "many",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseEnvironment(t *testing.T) {
	for in, want := range map[string]Environment{
		"production": Production, "PROD": Production, " staging ": Staging, "local": Development,
	} {
		got, err := ParseEnvironment(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
