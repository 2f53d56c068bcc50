// Package binding exposes request/reply services over Watermill. A Gateway
// owns a router, its publisher and subscriber and a middleware chain; Bind
// attaches a service client to it as a handler that decodes each incoming
// message, sends it to the service and publishes the encoded reply.
package binding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	configpkg "github.com/drblury/trust/internal/runtime/config"
	"github.com/drblury/trust/internal/runtime/execution"
	loggingpkg "github.com/drblury/trust/internal/runtime/logging"
	metricspkg "github.com/drblury/trust/internal/runtime/metrics"
)

// Dependencies holds the optional collaborators of a Gateway. Leave the
// publisher or subscriber nil to use an in-process gochannel pub/sub.
type Dependencies struct {
	Publisher                 message.Publisher
	Subscriber                message.Subscriber
	Metrics                   *metricspkg.Registry
	Executors                 *execution.Registry      // Listed by the inspect endpoint. Defaults to execution.DefaultRegistry.
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
}

// Gateway wires a Watermill router, publisher, subscriber and middleware
// chain for bound services.
type Gateway struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router
	metrics    *metricspkg.Registry
	stats      *bindingMetrics
	executors  *execution.Registry

	bindings   []Info
	bindingsMu sync.RWMutex

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
}

// NewGateway constructs a Gateway. Bind services on it before calling Start.
func NewGateway(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps Dependencies) (*Gateway, error) {
	if conf == nil {
		conf = &configpkg.Config{}
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	log = loggingpkg.OrDefault(log)
	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating gateway", loggingpkg.LogFields{"config": conf})

	g := &Gateway{
		Conf:       conf,
		Logger:     log,
		publisher:  deps.Publisher,
		subscriber: deps.Subscriber,
		metrics:    metricspkg.OrDefault(deps.Metrics),
		executors:  deps.Executors,
	}
	if g.executors == nil {
		g.executors = execution.DefaultRegistry
	}

	if g.publisher == nil || g.subscriber == nil {
		pubSub := gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: conf.GoChannelBufferSize,
			Persistent:          conf.GoChannelPersistent,
		}, wmLogger)
		if g.publisher == nil {
			g.publisher = pubSub
		}
		if g.subscriber == nil {
			g.subscriber = pubSub
		}
	}

	stats, err := newBindingMetrics(g.metrics)
	if err != nil {
		return nil, err
	}
	g.stats = stats

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("creating router: %w", err)
	}
	g.router = router

	if err := g.registerConfiguredMiddlewares(deps); err != nil {
		return nil, err
	}
	g.registerInspectHandlers()
	return g, nil
}

// Publisher returns the publisher replies are sent with.
func (g *Gateway) Publisher() message.Publisher { return g.publisher }

// Subscriber returns the subscriber requests are consumed from.
func (g *Gateway) Subscriber() message.Subscriber { return g.subscriber }

// Router returns the underlying Watermill router.
func (g *Gateway) Router() *message.Router { return g.router }

// Start serves the registered HTTP handlers and runs the router until ctx is
// cancelled or Close is called.
func (g *Gateway) Start(ctx context.Context) error {
	g.startHTTPServers(ctx)
	return g.router.Run(ctx)
}

// Running is closed once the router is processing messages.
func (g *Gateway) Running() chan struct{} { return g.router.Running() }

// Close stops the router and waits for in-flight handlers.
func (g *Gateway) Close() error { return g.router.Close() }

// Bindings returns a snapshot of the bound services.
func (g *Gateway) Bindings() []Info {
	g.bindingsMu.RLock()
	defer g.bindingsMu.RUnlock()
	out := make([]Info, len(g.bindings))
	copy(out, g.bindings)
	return out
}

func (g *Gateway) registerConfiguredMiddlewares(deps Dependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := g.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

// RegisterHTTPHandler mounts handler on pattern of the HTTP server listening
// on port. Servers start with the gateway.
func (g *Gateway) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	g.httpServersMu.Lock()
	defer g.httpServersMu.Unlock()

	if g.httpServers == nil {
		g.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := g.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		g.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (g *Gateway) startHTTPServers(ctx context.Context) {
	g.httpServersMu.Lock()
	defer g.httpServersMu.Unlock()

	for port, mux := range g.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				g.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}
}
