package binding

import (
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	idspkg "github.com/drblury/trust/internal/runtime/ids"
	loggingpkg "github.com/drblury/trust/internal/runtime/logging"
	metadatapkg "github.com/drblury/trust/internal/runtime/metadata"
	metricspkg "github.com/drblury/trust/internal/runtime/metrics"
)

// MiddlewareBuilder constructs a handler middleware for the gateway. A nil
// middleware with a nil error skips the registration.
type MiddlewareBuilder func(*Gateway) (message.HandlerMiddleware, error)

// MiddlewareRegistration captures how a middleware should be registered on a
// gateway router.
type MiddlewareRegistration struct {
	Name       string
	Middleware message.HandlerMiddleware
	Builder    MiddlewareBuilder
}

// RetryMiddlewareConfig customises the retry middleware behaviour.
type RetryMiddlewareConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	RetryIf         func(error) bool
}

func (cfg RetryMiddlewareConfig) withDefaults() RetryMiddlewareConfig {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 16 * time.Second
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = func(err error) bool { return !IsUnprocessable(err) }
	}
	return cfg
}

// DefaultMiddlewares returns the standard middleware chain used by NewGateway.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		CorrelationIDMiddleware(),
		LogMessagesMiddleware(nil),
		MetricsMiddleware(),
		RetryMiddleware(),
		PoisonQueueMiddleware(nil),
		RecovererMiddleware(),
	}
}

// MetricsMiddleware adds Watermill's Prometheus router metrics when metrics
// are enabled, and serves them on the configured port.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(g *Gateway) (message.HandlerMiddleware, error) {
			if !g.Conf.MetricsEnabled {
				return nil, nil
			}

			metricsBuilder := metrics.NewPrometheusMetricsBuilder(
				g.metrics.Registerer(),
				metricspkg.Namespace,
				"gateway",
			)
			metricsBuilder.AddPrometheusRouterMetrics(g.router)

			if g.Conf.MetricsPort > 0 {
				g.RegisterHTTPHandler(g.Conf.MetricsPort, "/metrics", g.metrics.Handler())
			}

			return metricsBuilder.NewRouterMiddleware().Middleware, nil
		},
	}
}

// CorrelationIDMiddleware ensures each request carries a correlation id that
// its reply can echo.
func CorrelationIDMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "correlation_id",
		Middleware: correlationIDMiddleware,
	}
}

func correlationIDMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		if msg.Metadata.Get(metadatapkg.KeyCorrelationID) == "" {
			msg.Metadata.Set(metadatapkg.KeyCorrelationID, idspkg.CreateULID())
		}
		return h(msg)
	}
}

// LogMessagesMiddleware logs the payload and metadata of handled messages at
// debug level. A nil logger uses the gateway logger.
func LogMessagesMiddleware(logger loggingpkg.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_messages",
		Builder: func(g *Gateway) (message.HandlerMiddleware, error) {
			l := logger
			if l == nil {
				l = g.Logger
			}
			if l == nil {
				return nil, errors.New("log messages middleware requires a logger")
			}
			return logMessagesMiddleware(l), nil
		},
	}
}

func logMessagesMiddleware(logger loggingpkg.ServiceLogger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			logger.Debug("Processing message", loggingpkg.LogFields{
				"message_uuid": msg.UUID,
				"payload":      string(msg.Payload),
				"metadata":     msg.Metadata,
			})
			return h(msg)
		}
	}
}

// RetryMiddleware retries failed requests with exponential backoff, using the
// retry settings of the gateway config. Unprocessable requests are never
// retried.
func RetryMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "retry",
		Builder: func(g *Gateway) (message.HandlerMiddleware, error) {
			cfg := RetryMiddlewareConfig{
				MaxRetries:      g.Conf.RetryMaxRetries,
				InitialInterval: g.Conf.RetryInitialInterval,
				MaxInterval:     g.Conf.RetryMaxInterval,
			}.withDefaults()
			return middleware.Retry{
				MaxRetries:      cfg.MaxRetries,
				InitialInterval: cfg.InitialInterval,
				MaxInterval:     cfg.MaxInterval,
				Logger:          loggingpkg.NewWatermillAdapter(g.Logger),
				ShouldRetry: func(params middleware.RetryParams) bool {
					return cfg.RetryIf(params.Err)
				},
			}.Middleware, nil
		},
	}
}

// PoisonQueueMiddleware publishes requests matching filter to the configured
// poison topic. It is skipped when no poison topic is configured. A nil
// filter selects unprocessable requests.
func PoisonQueueMiddleware(filter func(error) bool) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "poison_queue",
		Builder: func(g *Gateway) (message.HandlerMiddleware, error) {
			if g.Conf.PoisonTopic == "" {
				return nil, nil
			}
			f := filter
			if f == nil {
				f = IsUnprocessable
			}
			return middleware.PoisonQueueWithFilter(g.publisher, g.Conf.PoisonTopic, f)
		},
	}
}

// RecovererMiddleware converts handler panics into errors.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "recoverer",
		Middleware: middleware.Recoverer,
	}
}

// RegisterMiddleware attaches the supplied middleware to the router.
func (g *Gateway) RegisterMiddleware(cfg MiddlewareRegistration) error {
	var mw message.HandlerMiddleware
	switch {
	case cfg.Middleware != nil:
		mw = cfg.Middleware
	case cfg.Builder != nil:
		var err error
		mw, err = cfg.Builder(g)
		if err != nil {
			return err
		}
	default:
		return errors.New("middleware registration requires Middleware or Builder")
	}

	if mw == nil {
		return nil
	}

	g.router.AddMiddleware(mw)
	return nil
}
