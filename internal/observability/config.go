package observability

import (
	"strings"

	"github.com/smallbiznis/revenuepulse/internal/config"
)

// Config is the slice of application config the telemetry stack reads.
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
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "revenuepulse"
	}
	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             cfg.Telemetry.LogLevel,
		LogFormat:            cfg.Telemetry.LogFormat,
		OtelEnabled:          cfg.Telemetry.OtelEnabled,
		OtelExporterEndpoint: cfg.OTLPEndpoint,
		OtelExporterProtocol: otlpProtocol(cfg.Telemetry.OtelProtocol),
		OtelSamplingRatio:    samplingRatio(cfg.Telemetry.OtelSampleRatio),
	}
}

// otlpProtocol folds the OTLP protocol names onto the two exporters.
func otlpProtocol(raw string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(raw)), "http") {
		return "http"
	}
	return "grpc"
}

func samplingRatio(v float64) float64 {
	switch {
	case v <= 0:
		return 0.1
	case v > 1:
		return 1
	}
	return v
}

// Debug is true for an explicit debug level or any development-like
// environment.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
