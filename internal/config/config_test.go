package config

import (
	"testing"
	"time"

	"github.com/and161185/orderhub/internal/repository"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load([]string{"-jwt-key", "k"}, envMap(nil))
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, 15*time.Minute, cfg.AccessTTL)
	require.Zero(t, cfg.SessionTTL)
	require.Equal(t, repository.ProductModeCreate, cfg.ProductMode)
	require.Equal(t, 5*time.Second, cfg.HandshakeTimeout)
	require.Empty(t, cfg.RedisAddr)
}

func TestLoad_EnvThenFlagsOverride(t *testing.T) {
	env := envMap(map[string]string{
		"JWT_KEY":      "from-env",
		"ADDR":         ":9000",
		"PRODUCT_MODE": "reuse",
		"SESSION_TTL":  "12h",
		"MSG_RATE":     "2.5",
		"REDIS_ADDR":   "redis:6379",
	})
	cfg, err := Load([]string{"-addr", ":9100"}, env)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.JWTKey)
	require.Equal(t, ":9100", cfg.Addr)
	require.Equal(t, repository.ProductModeReuse, cfg.ProductMode)
	require.Equal(t, 12*time.Hour, cfg.SessionTTL)
	require.Equal(t, 2.5, cfg.MsgRate)
	require.Equal(t, "redis:6379", cfg.RedisAddr)
}

func TestLoad_BadEnvFallsBackToDefault(t *testing.T) {
	cfg, err := Load(nil, envMap(map[string]string{"JWT_KEY": "k", "MAX_DB_WORKERS": "many"}))
	require.NoError(t, err)
	require.Equal(t, 16, cfg.MaxDBWorkers)
}

func TestLoad_ValidationErrors(t *testing.T) {
	_, err := Load(nil, envMap(nil))
	require.ErrorContains(t, err, "jwt signing key")

	_, err = Load([]string{"-jwt-key", "k", "-product-mode", "link"}, envMap(nil))
	require.ErrorContains(t, err, "unknown product mode")

	_, err = Load([]string{"-jwt-key", "k", "-send-buffer", "0"}, envMap(nil))
	require.Error(t, err)
}
