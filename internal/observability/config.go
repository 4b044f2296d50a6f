package observability

import (
	"strings"

	"github.com/smallbiznis/nodeboss/internal/config"
	"github.com/smallbiznis/nodeboss/internal/observability/tracing"
)

const defaultSamplingRatio = 0.1

// Config is the observability view of the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64

	// AlwaysSampleSurfaces bypass the ratio sampler. Sale webhooks land here
	// by default because every delivery may move money.
	AlwaysSampleSurfaces []string
}

// LoadConfig normalizes the logging and tracing settings from cfg.
func LoadConfig(cfg config.Config) Config {
	out := Config{
		ServiceName:          strings.TrimSpace(cfg.AppName),
		Environment:          strings.ToLower(strings.TrimSpace(cfg.Environment)),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             normalizeLevel(cfg.LogLevel),
		LogFormat:            normalizeFormat(cfg.LogFormat),
		OtelEnabled:          cfg.TracingEnabled && strings.TrimSpace(cfg.OTLPEndpoint) != "",
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: normalizeProtocol(cfg.OTLPProtocol),
		OtelSamplingRatio:    cfg.TraceSamplingRatio,
	}
	if out.ServiceName == "" {
		out.ServiceName = "nodeboss"
	}
	if out.OtelSamplingRatio <= 0 || out.OtelSamplingRatio > 1 {
		out.OtelSamplingRatio = defaultSamplingRatio
	}
	if cfg.TraceAllSaleWebhooks {
		out.AlwaysSampleSurfaces = append(out.AlwaysSampleSurfaces, tracing.SurfaceSaleWebhook)
	}
	return out
}

// Debug enables development logging and gin debug mode.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch c.Environment {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func normalizeLevel(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	switch level {
	case "debug", "info", "warn", "error":
		return level
	case "warning":
		return "warn"
	default:
		return "info"
	}
}

func normalizeFormat(format string) string {
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		return "console"
	}
	return "json"
}

func normalizeProtocol(protocol string) string {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		return "http"
	default:
		return "grpc"
	}
}
