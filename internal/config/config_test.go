package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.API.Addr)
	require.Equal(t, 10*time.Second, cfg.API.ShutdownTimeout)
	require.Equal(t, "./styles", cfg.Styles.Dir)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, "pixelstyle-content", cfg.Storage.Bucket)
	require.Equal(t, "objects", cfg.Storage.Prefix)
	require.False(t, cfg.RateLimit.Enabled)
	require.Equal(t, 120, cfg.RateLimit.Capacity)
	require.Equal(t, time.Minute, cfg.RateLimit.Window)
	require.Equal(t, "none", cfg.Tracing.Exporter)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PIXELSTYLE_API_ADDR", ":9090")
	t.Setenv("PIXELSTYLE_STYLES_DIR", "/etc/pixelstyle/styles")
	t.Setenv("PIXELSTYLE_LOG_LEVEL", "debug")
	t.Setenv("PIXELSTYLE_LOG_FORMAT", "console")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("PIXELSTYLE_RATE_LIMIT_ENABLED", "true")
	t.Setenv("PIXELSTYLE_RATE_LIMIT_WINDOW", "30s")
	t.Setenv("OTEL_TRACES_EXPORTER", "otlp")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.API.Addr)
	require.Equal(t, "/etc/pixelstyle/styles", cfg.Styles.Dir)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "console", cfg.Log.Format)
	require.True(t, cfg.Storage.UseSSL)
	require.Equal(t, 3, cfg.Redis.DB)
	require.True(t, cfg.RateLimit.Enabled)
	require.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	require.Equal(t, "collector:4318", cfg.Tracing.OTLPEndpoint)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PIXELSTYLE_LOG_LEVEL":           "verbose",
		"PIXELSTYLE_RATE_LIMIT_CAPACITY": "0",
		"REDIS_DB":                       "not-a-number",
		"OTEL_TRACES_EXPORTER":           "otlp",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}
