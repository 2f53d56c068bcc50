package reqrep

import (
	"context"
	"errors"
	"fmt"
	"time"

	errspkg "github.com/drblury/trust/internal/runtime/errors"
	"github.com/drblury/trust/internal/runtime/execution"
	loggingpkg "github.com/drblury/trust/internal/runtime/logging"
	metricspkg "github.com/drblury/trust/internal/runtime/metrics"
)

// Config describes a request/reply service.
type Config struct {
	// ID identifies the service. A zero ID is replaced by a generated one.
	ID ID
	// ChanBufSize is the capacity of the request buffer shared by every
	// client handle. Defaults to 1.
	ChanBufSize int
	// Instances is the number of backend instances draining the buffer.
	// Defaults to 1. More than one requires a Cloner processor.
	Instances int
	// TimerBuckets are the bucket bounds of the processing time histogram.
	// Defaults to metrics.DefaultTimerBuckets.
	TimerBuckets metricspkg.DurationBuckets

	Logger  loggingpkg.ServiceLogger
	Metrics *metricspkg.Registry
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.ChanBufSize < 0 {
		errs = append(errs, fmt.Errorf("reqrep: channel buffer size cannot be negative, got %d", c.ChanBufSize))
	}
	if c.Instances < 0 {
		errs = append(errs, fmt.Errorf("reqrep: instances cannot be negative, got %d", c.Instances))
	}
	if len(c.TimerBuckets) > 0 {
		if err := c.TimerBuckets.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("reqrep: timer buckets: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c Config) withDefaults() Config {
	if c.ID.IsZero() {
		c.ID = NewID()
	}
	if c.ChanBufSize == 0 {
		c.ChanBufSize = 1
	}
	if c.Instances == 0 {
		c.Instances = 1
	}
	if len(c.TimerBuckets) == 0 {
		c.TimerBuckets = metricspkg.DefaultTimerBuckets
	}
	c.Logger = loggingpkg.OrDefault(c.Logger)
	c.Metrics = metricspkg.OrDefault(c.Metrics)
	return c
}

// StartService spawns cfg.Instances backend instances of processor on
// executor and returns the first client handle. If an instance cannot be
// spawned the instances already running are stopped and the error returned.
func StartService[Req, Rep any](cfg Config, processor Processor[Req, Rep], executor *execution.Executor) (*Client[Req, Rep], error) {
	if processor == nil {
		return nil, errspkg.ErrProcessorRequired
	}
	if executor == nil {
		return nil, errspkg.ErrExecutorRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	cloner, cloneable := processor.(Cloner[Req, Rep])
	if cfg.Instances > 1 && !cloneable {
		return nil, errspkg.ErrProcessorNotCloneable
	}

	m, err := newServiceMetrics(cfg.Metrics, cfg.ID, cfg.TimerBuckets)
	if err != nil {
		return nil, fmt.Errorf("reqrep %s: %w", cfg.ID, err)
	}
	logger := cfg.Logger.With(loggingpkg.LogFields{"reqrep_id": cfg.ID.String()})
	ch := newChannel[Req, Rep](cfg.ID, cfg.ChanBufSize, logger, m)
	client := newClient(ch)

	ch.attachBackends(cfg.Instances)
	for i := range cfg.Instances {
		p := processor
		if i > 0 {
			p = cloner.Clone()
		}
		inst := &instance[Req, Rep]{
			ch:        ch,
			processor: p,
			metrics:   m,
			logger:    logger.With(loggingpkg.LogFields{"instance": i}),
		}
		if err := executor.Spawn(inst.run); err != nil {
			// Instances that never started still count as attached.
			for range cfg.Instances - i {
				ch.detachBackend()
			}
			client.Close()
			return nil, fmt.Errorf("reqrep %s: starting instance %d: %w", cfg.ID, i, err)
		}
	}

	logger.Info("ReqRep service started", loggingpkg.LogFields{
		"instances":     cfg.Instances,
		"chan_buf_size": cfg.ChanBufSize,
		"executor_id":   executor.ID().String(),
	})
	return client, nil
}

// instance is one backend loop draining the shared request buffer.
type instance[Req, Rep any] struct {
	ch        *channel[Req, Rep]
	processor Processor[Req, Rep]
	metrics   *serviceMetrics
	logger    loggingpkg.ServiceLogger
}

func (s *instance[Req, Rep]) run(ctx context.Context) {
	s.metrics.instances.Inc()
	defer s.ch.detachBackend()
	defer s.metrics.instances.Dec()
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%v", r)
			}
			s.logger.Error("ReqRep service instance terminated", err, nil)
			panic(r)
		}
	}()
	if d, ok := s.processor.(Destroyer); ok {
		defer d.Destroy()
	}
	if in, ok := s.processor.(Initializer); ok {
		in.Init(ctx)
	}

	for {
		msg, ok := s.ch.next(ctx)
		if !ok {
			s.logger.Debug("ReqRep service instance stopped", nil)
			return
		}
		s.process(ctx, msg)
	}
}

func (s *instance[Req, Rep]) process(ctx context.Context, msg *Message[Req, Rep]) {
	defer msg.disconnect()

	req, ok := msg.TakeRequest()
	if !ok {
		return
	}

	var rep Rep
	start := time.Now()
	perr := execution.Catch(func() { rep = s.processor.Process(ctx, req) })
	s.metrics.timer.Observe(time.Since(start).Seconds())

	if perr != nil {
		s.metrics.panics.Inc()
		h, ok := s.processor.(PanicHandler)
		if !ok {
			panic(perr)
		}
		s.logger.Error("Processor panicked", perr, loggingpkg.LogFields{"message_id": msg.MessageID().String()})
		h.Panicked(perr)
		return
	}

	if err := msg.Reply(rep); err != nil {
		s.logger.Debug("Reply dropped", loggingpkg.LogFields{
			"message_id": msg.MessageID().String(),
			"error":      err.Error(),
		})
	}
}
