package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsToMemoryMode(t *testing.T) {
	t.Setenv("STORAGE_MODE", "")
	t.Setenv("RETRY_BACKOFF", "2s, 10s")
	t.Setenv("PAYMENT_CURRENCY", "eur")

	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.Demo())
	require.Equal(t, "EUR", cfg.PaymentCurrency)
	require.Equal(t, []time.Duration{2 * time.Second, 10 * time.Second}, cfg.RetryBackoff)
	require.Equal(t, "@every 15m", cfg.ReconcileSchedule)
	require.Equal(t, 50, cfg.ReconcileBatch)
}

func TestLoadMongoModeNeedsInfrastructure(t *testing.T) {
	t.Setenv("STORAGE_MODE", "mongo")
	t.Setenv("MONGO_URI", "")
	_, err := Load()
	require.ErrorContains(t, err, "MONGO_URI")

	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("STORAGE_MODE", "memory")
	t.Setenv("SESSION_TTL", "forever")
	_, err := Load()
	require.ErrorContains(t, err, "SESSION_TTL")
}
