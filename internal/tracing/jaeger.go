package tracing

import (
	"io"
	"os"

	"github.com/opentracing/opentracing-go"
	"github.com/uber/jaeger-client-go/config"
	"github.com/uber/jaeger-client-go/log/zap"

	"github.com/customeros/codewatch/internal/logger"
)

type JaegerConfig struct {
	Endpoint     string  `env:"JAEGER_ENDPOINT"`
	ServiceName  string  `env:"JAEGER_SERVICE_NAME" envDefault:"codewatch"`
	AgentHost    string  `env:"JAEGER_AGENT_HOST" envDefault:"localhost"`
	AgentPort    string  `env:"JAEGER_AGENT_PORT" envDefault:"6831"`
	Enabled      bool    `env:"JAEGER_ENABLED" envDefault:"false"`
	LogSpans     bool    `env:"JAEGER_REPORTER_LOG_SPANS" envDefault:"false"`
	SamplerType  string  `env:"JAEGER_SAMPLER_TYPE" envDefault:"const"`
	SamplerParam float64 `env:"JAEGER_SAMPLER_PARAM" envDefault:"1"`
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// InitTracer installs the Jaeger tracer as the global tracer. When tracing is
// disabled the opentracing noop tracer stays in place.
func InitTracer(jaegerConfig *JaegerConfig, log logger.Logger) (io.Closer, error) {
	if jaegerConfig == nil || !jaegerConfig.Enabled {
		log.Info("Tracing disabled")
		return nopCloser{}, nil
	}

	tracer, closer, err := jaegerConfiguration(jaegerConfig).NewTracer(config.Logger(zap.NewLogger(log.Logger())))
	if err != nil {
		return nil, err
	}
	opentracing.SetGlobalTracer(tracer)
	log.Infof("Tracing enabled for service %s", jaegerConfig.ServiceName)
	return closer, nil
}

func jaegerConfiguration(jaegerConfig *JaegerConfig) *config.Configuration {
	cfg := &config.Configuration{
		ServiceName: jaegerConfig.ServiceName,
		Sampler: &config.SamplerConfig{
			Type:  jaegerConfig.SamplerType,
			Param: jaegerConfig.SamplerParam,
		},
		Reporter: &config.ReporterConfig{
			LogSpans: jaegerConfig.LogSpans,
		},
	}

	if hostname, err := os.Hostname(); err == nil {
		cfg.Tags = append(cfg.Tags, opentracing.Tag{Key: "hostname", Value: hostname})
	}

	if jaegerConfig.Endpoint != "" {
		cfg.Reporter.CollectorEndpoint = jaegerConfig.Endpoint
	} else {
		cfg.Reporter.LocalAgentHostPort = jaegerConfig.AgentHost + ":" + jaegerConfig.AgentPort
	}
	return cfg
}
