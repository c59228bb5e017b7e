package naming

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cadseer/naming/config"
	"github.com/cadseer/naming/store"
)

// Option configures a Service.
type Option func(*serviceConfig)

type serviceConfig struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	tracer     trace.Tracer
	meter      metric.Meter
	store      store.Store
}

// WithConfig uses cfg instead of loading a file.
func WithConfig(cfg *config.Config) Option {
	return func(c *serviceConfig) {
		c.cfg = cfg
	}
}

// WithConfigPath loads naming.yaml from path, a file or a directory.
func WithConfigPath(path string) Option {
	return func(c *serviceConfig) {
		c.configPath = path
	}
}

// WithLogger sets the logger. Without it the configured logging section
// decides the handler, writing to stderr.
func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) {
		c.logger = logger
	}
}

// WithTracer sets the tracer for matching and resolution spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *serviceConfig) {
		c.tracer = tracer
	}
}

// WithMeter sets the meter for naming metrics.
func WithMeter(meter metric.Meter) Option {
	return func(c *serviceConfig) {
		c.meter = meter
	}
}

// WithStore uses s instead of opening the configured backend. The service
// takes ownership and closes it.
func WithStore(s store.Store) Option {
	return func(c *serviceConfig) {
		c.store = s
	}
}
