package observability

import (
	"testing"

	"github.com/smallbiznis/nodeboss/internal/config"
	"github.com/smallbiznis/nodeboss/internal/observability/tracing"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigNormalizesAppConfig(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:              " ",
		AppVersion:           "1.2.0",
		Environment:          "Production",
		LogLevel:             "WARNING",
		LogFormat:            "Console",
		OTLPEndpoint:         "collector:4318",
		OTLPProtocol:         "http/protobuf",
		TracingEnabled:       true,
		TraceSamplingRatio:   3,
		TraceAllSaleWebhooks: true,
	})

	require.Equal(t, "nodeboss", cfg.ServiceName)
	require.Equal(t, "production", cfg.Environment)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, "console", cfg.LogFormat)
	require.True(t, cfg.OtelEnabled)
	require.Equal(t, "http", cfg.OtelExporterProtocol)
	require.Equal(t, defaultSamplingRatio, cfg.OtelSamplingRatio)
	require.Equal(t, []string{tracing.SurfaceSaleWebhook}, cfg.AlwaysSampleSurfaces)
	require.False(t, cfg.Debug())
}

func TestLoadConfigDisablesExportWithoutEndpoint(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment:        "test",
		TracingEnabled:     true,
		TraceSamplingRatio: 0.5,
	})

	require.False(t, cfg.OtelEnabled)
	require.Equal(t, "grpc", cfg.OtelExporterProtocol)
	require.Equal(t, 0.5, cfg.OtelSamplingRatio)
	require.Empty(t, cfg.AlwaysSampleSurfaces)
	require.True(t, cfg.Debug())
}
