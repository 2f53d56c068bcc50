package config

import (
	"errors"
	"fmt"
	"time"

	metricspkg "github.com/drblury/trust/internal/runtime/metrics"
)

// Config groups the process-wide settings of a trust application: the
// executor pool, the request/reply services started on it and the Watermill
// gateway exposing them.
type Config struct {
	// ExecutorPoolSize is the number of worker slots of the application
	// executor. Zero means runtime.GOMAXPROCS(0).
	ExecutorPoolSize int

	// ChanBufSize is the request buffer size of every service. Zero means 1.
	ChanBufSize int
	// Instances is the number of backend instances per service. Zero means 1.
	Instances int
	// TimerBuckets overrides the processing time histogram buckets.
	TimerBuckets metricspkg.DurationBuckets

	// GoChannelBufferSize is the output buffer of the in-process pub/sub the
	// gateway falls back to when no publisher or subscriber is supplied.
	GoChannelBufferSize int64
	// GoChannelPersistent keeps published messages for late subscribers.
	GoChannelPersistent bool

	// PoisonTopic receives requests that keep failing after retries. Empty
	// disables the poison queue.
	PoisonTopic string

	// RetryMiddleware tuning. Zero values fall back to library defaults.
	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	// Metrics configuration.
	MetricsEnabled bool
	// MetricsPort is the port where Prometheus metrics will be exposed.
	MetricsPort int

	// InspectEnabled serves the bindings and executors of the gateway as JSON.
	InspectEnabled bool
	// InspectPort defaults to 8081.
	InspectPort               int
	InspectCORSAllowedOrigins []string
}

func (c Config) String() string {
	// Use a type alias to avoid infinite recursion when printing
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(c))
}

// Validate returns every invalid setting joined into one error.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateExecution()...)
	errs = append(errs, c.validateGoChannel()...)
	errs = append(errs, c.validateRetry()...)
	errs = append(errs, c.validatePorts()...)

	return errors.Join(errs...)
}

func (c *Config) validateExecution() []error {
	var errs []error
	if c.ExecutorPoolSize < 0 {
		errs = append(errs, errors.New("executor: pool size cannot be negative"))
	}
	if c.ChanBufSize < 0 {
		errs = append(errs, errors.New("reqrep: channel buffer size cannot be negative"))
	}
	if c.Instances < 0 {
		errs = append(errs, errors.New("reqrep: instances cannot be negative"))
	}
	if len(c.TimerBuckets) > 0 {
		if err := c.TimerBuckets.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("reqrep: %w", err))
		}
	}
	return errs
}

func (c *Config) validateGoChannel() []error {
	if c.GoChannelBufferSize < 0 {
		return []error{errors.New("gochannel: buffer size cannot be negative")}
	}
	return nil
}

// validateRetry checks retry configuration values.
func (c *Config) validateRetry() []error {
	var errs []error
	if c.RetryMaxRetries < 0 {
		errs = append(errs, errors.New("retry: max retries cannot be negative"))
	}
	if c.RetryInitialInterval < 0 {
		errs = append(errs, errors.New("retry: initial interval cannot be negative"))
	}
	if c.RetryMaxInterval < 0 {
		errs = append(errs, errors.New("retry: max interval cannot be negative"))
	}
	if c.RetryMaxInterval > 0 && c.RetryInitialInterval > 0 && c.RetryInitialInterval > c.RetryMaxInterval {
		errs = append(errs, errors.New("retry: initial interval cannot exceed max interval"))
	}
	return errs
}

func (c *Config) validatePorts() []error {
	var errs []error
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("metrics: invalid port %d", c.MetricsPort))
	}
	if c.InspectPort < 0 || c.InspectPort > 65535 {
		errs = append(errs, fmt.Errorf("inspect: invalid port %d", c.InspectPort))
	}
	return errs
}

// ValidateConfig is a convenience function to validate a config pointer.
// Returns nil if the config is valid.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}
