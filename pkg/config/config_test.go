package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("ADMIN_PATH", "backoffice/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/backoffice", cfg.App.AdminPath)
	assert.Equal(t, 48*time.Hour, cfg.Policy.DraftExpiry())
	assert.Equal(t, 3, cfg.Policy.FreeAIGenerations)
	assert.Equal(t, ProviderMock, cfg.Stripe.Provider)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.TTL())
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PAYMENT_PROVIDER", "paypal")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "placeholder")
	require.NoError(t, os.Unsetenv("JWT_SECRET"))

	_, err := Load()
	require.Error(t, err)
}

func TestDollars(t *testing.T) {
	assert.Equal(t, "49.00", Dollars(4900).StringFixed(2))
	assert.Equal(t, "0.05", Dollars(5).StringFixed(2))
}
