package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"FLAP_TCP_ADDR", "FLAP_HTTP_ADDR", "FLAP_READ_TIMEOUT_MS", "FLAP_LOG_DEV"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	require.Equal(t, ":5555", cfg.TCPAddr)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, 500*time.Millisecond, cfg.ReadTimeout)
	require.False(t, cfg.DevLog)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FLAP_TCP_ADDR", ":9999")
	t.Setenv("FLAP_HTTP_ADDR", "127.0.0.1:8081")
	t.Setenv("FLAP_READ_TIMEOUT_MS", "250")
	t.Setenv("FLAP_LOG_DEV", "true")

	cfg := Load()
	require.Equal(t, ":9999", cfg.TCPAddr)
	require.Equal(t, "127.0.0.1:8081", cfg.HTTPAddr)
	require.Equal(t, 250*time.Millisecond, cfg.ReadTimeout)
	require.True(t, cfg.DevLog)
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	t.Setenv("FLAP_READ_TIMEOUT_MS", "soon")
	t.Setenv("FLAP_LOG_DEV", "maybe")

	cfg := Load()
	require.Equal(t, 500*time.Millisecond, cfg.ReadTimeout)
	require.False(t, cfg.DevLog)
}
