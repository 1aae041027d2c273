package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dunamismax/pixelstyle/internal/config"
)

func TestSetupTracingDisabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), ServiceName, config.TracingConfig{Exporter: "none"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupTracingStdout(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), ServiceName, config.TracingConfig{Exporter: "stdout"}, nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupTracingRejectsBadExporter(t *testing.T) {
	_, err := SetupTracing(context.Background(), ServiceName, config.TracingConfig{Exporter: "jaeger"}, nil)
	require.ErrorContains(t, err, "unsupported trace exporter")

	_, err = SetupTracing(context.Background(), ServiceName, config.TracingConfig{Exporter: "otlp"}, nil)
	require.ErrorContains(t, err, "requires endpoint")
}
